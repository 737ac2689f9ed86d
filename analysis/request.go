package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is one analysis request as sent by a caller.
type Request struct {
	Text         string   `json:"text,omitempty"`
	ImageURLs    []string `json:"imageUrls,omitempty"`
	SourceURL    string   `json:"sourceUrl,omitempty"`
	UseWebSearch *bool    `json:"useWebSearch,omitempty"`
	Stream       bool     `json:"stream,omitempty"`
}

// WebSearch reports whether web search is requested. Unset means yes.
func (r Request) WebSearch() bool {
	return r.UseWebSearch == nil || *r.UseWebSearch
}

// HasContent reports whether there is any text or image to analyse.
func (r Request) HasContent() bool {
	return r.Text != "" || len(r.ImageURLs) > 0
}

// ParseRequest decodes a request payload. Unknown fields are ignored.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(data)) == 0 {
		return req, fmt.Errorf("failed to parse request: empty payload")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// Bool returns a pointer to b, for UseWebSearch.
func Bool(b bool) *bool {
	return &b
}
