package analysis

import (
	"encoding/json"
	"fmt"

	jsonutil "github.com/richinex/verity/internal/json"
)

// Result is the outcome of one analysis. On success it carries the verdict
// fields returned by the model (or the extractor's {error, raw} recovery
// object) with success=true; the streaming path adds thinking and
// search_queries. On failure it is {success:false, error}.
type Result map[string]any

// Failure builds a failed result.
func Failure(message string) Result {
	return Result{"success": false, "error": message}
}

// Success reports whether the operation produced a verdict.
func (r Result) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// ErrorMessage returns the error string, if any.
func (r Result) ErrorMessage() string {
	msg, _ := r["error"].(string)
	return msg
}

// Thinking returns the reasoning text gathered while streaming.
func (r Result) Thinking() string {
	s, _ := r["thinking"].(string)
	return s
}

// SearchQueries returns the web search queries issued while streaming.
func (r Result) SearchQueries() []string {
	switch v := r["search_queries"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, q := range v {
			if s, ok := q.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Verdict decodes the verdict fields.
func (r Result) Verdict() (Verdict, error) {
	var v Verdict
	data, err := json.Marshal(r)
	if err != nil {
		return v, fmt.Errorf("failed to encode result: %w", err)
	}
	v, err = jsonutil.ExtractInto[Verdict](string(data))
	if err != nil {
		return v, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return v, nil
}

// VerdictType is the model's three-way classification.
type VerdictType int

const (
	// TypeLikelyTrue means probability >= 0.8.
	TypeLikelyTrue VerdictType = 1
	// TypePartlyFalse means 0.2 < probability < 0.8.
	TypePartlyFalse VerdictType = 2
	// TypeLikelyFalse means probability <= 0.2.
	TypeLikelyFalse VerdictType = 3
)

func (t VerdictType) String() string {
	switch t {
	case TypeLikelyTrue:
		return "likely true"
	case TypePartlyFalse:
		return "partly false"
	case TypeLikelyFalse:
		return "likely false"
	default:
		return "unknown"
	}
}

// Verdict is the structured judgement the model is asked to return.
type Verdict struct {
	Probability      float64           `json:"probability"`
	Type             VerdictType       `json:"type"`
	Explanation      string            `json:"explanation"`
	AnalysisPoints   []AnalysisPoint   `json:"analysis_points,omitempty"`
	FakeParts        []FakePart        `json:"fake_parts,omitempty"`
	SearchReferences []SearchReference `json:"search_references,omitempty"`
}

// AnalysisPoint is one dimension of the analysis.
type AnalysisPoint struct {
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Analysis point statuses.
const (
	StatusPositive = "positive"
	StatusWarning  = "warning"
	StatusNegative = "negative"
)

// FakePart marks a fragment of the original text judged false.
type FakePart struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// SearchReference is a source the model consulted.
type SearchReference struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Relevance string `json:"relevance"`
}
