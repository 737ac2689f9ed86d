// Package llm provides shared data models for LLM providers.
package llm

import (
	"encoding/base64"
	"strings"
)

// PartType identifies the kind of a message part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// Part is one piece of multi-modal message content. ImageURL is either a
// remote http(s) URL or a data URL.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart creates an image part.
func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: url}
}

// Message is a chat message with role and multi-modal content.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{
		Role:  "system",
		Parts: []Part{TextPart(content)},
	}
}

// UserMessage creates a user message.
func UserMessage(parts ...Part) Message {
	return Message{
		Role:  "user",
		Parts: parts,
	}
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ThinkingMode selects the model's reasoning behaviour.
type ThinkingMode string

const (
	// ThinkingDefault leaves reasoning to the provider's default.
	ThinkingDefault ThinkingMode = ""
	// ThinkingAuto lets the model decide whether to reason.
	ThinkingAuto ThinkingMode = "auto"
	// ThinkingEnabled always requests reasoning.
	ThinkingEnabled ThinkingMode = "enabled"
	// ThinkingDisabled turns reasoning off.
	ThinkingDisabled ThinkingMode = "disabled"
)

// DefaultSearchLimit is the result-count ceiling attached to the search tool.
const DefaultSearchLimit = 10

// Request is one analysis call to a provider.
type Request struct {
	Messages    []Message
	WebSearch   bool
	SearchLimit int
	Thinking    ThinkingMode
}

// SystemPrompt returns the text of the request's system messages.
func (r Request) SystemPrompt() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == "system" {
			parts = append(parts, m.Text())
		}
	}
	return strings.Join(parts, "\n\n")
}

// Conversation returns the non-system messages.
func (r Request) Conversation() []Message {
	out := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != "system" {
			out = append(out, m)
		}
	}
	return out
}

func (r Request) searchLimit() int {
	if r.SearchLimit > 0 {
		return r.SearchLimit
	}
	return DefaultSearchLimit
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// ParseDataURL splits a base64 data URL ("data:image/png;base64,....") into
// its media type and decoded bytes.
func ParseDataURL(url string) (mediaType string, data []byte, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", nil, false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", nil, false
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return mediaType, data, true
}
