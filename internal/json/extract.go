// Package json provides JSON extraction utilities for parsing LLM responses.
//
// Models asked for "strict JSON" still wrap it in markdown fences, prefix it
// with commentary or cut it off mid-object. This package recovers a single
// JSON object from such text, falling back to a recovery object instead of
// failing.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ParseFailed is the error value stored in the recovery object returned by
// Extract when no JSON object could be recovered.
const ParseFailed = "parse failed"

const fence = "```"

// Extract parses the JSON object contained in response.
//
// Recovery order:
//  1. Trim surrounding whitespace and strip an opening ``` fence (with or
//     without a language tag) together with the first closing fence.
//  2. Strictly parse the remainder.
//  3. Strictly parse the span from the first '{' to the last '}' of the
//     original text.
//  4. Return {"error": ParseFailed, "raw": response}.
//
// Extract never fails. Step 3 is greedy: text holding two top-level objects
// yields a span that does not parse and ends in step 4.
func Extract(response string) map[string]any {
	if obj, ok := parseObject(stripMarkdownCodeBlocks(response)); ok {
		return obj
	}
	if span, ok := braceSpan(response); ok {
		if obj, ok := parseObject(span); ok {
			return obj
		}
	}
	return map[string]any{
		"error": ParseFailed,
		"raw":   response,
	}
}

// IsRecovery reports whether obj is the recovery object produced by Extract.
func IsRecovery(obj map[string]any) bool {
	msg, ok := obj["error"].(string)
	if !ok || msg != ParseFailed {
		return false
	}
	_, hasRaw := obj["raw"]
	return hasRaw
}

// extractJSON finds and returns the JSON object portion of a response string
// following the same steps as Extract.
func extractJSON(response string) (string, error) {
	stripped := stripMarkdownCodeBlocks(response)
	if _, ok := parseObject(stripped); ok {
		return stripped, nil
	}

	if span, ok := braceSpan(response); ok {
		if _, ok := parseObject(span); ok {
			return span, nil
		}
	}

	// Create a preview for the error message
	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// stripMarkdownCodeBlocks removes an opening fence and one closing fence.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func stripMarkdownCodeBlocks(response string) string {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, fence) {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, fence)
	trimmed = strings.TrimLeftFunc(trimmed, isLanguageTagRune)
	trimmed = strings.Replace(trimmed, fence, "", 1)
	return strings.TrimSpace(trimmed)
}

func isLanguageTagRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '+':
		return true
	}
	return false
}

// braceSpan returns the text from the first '{' to the last '}'.
func braceSpan(response string) (string, bool) {
	start := strings.Index(response, "{")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(response, "}")
	if end == -1 || end < start {
		return "", false
	}
	return response[start : end+1], true
}

// parseObject strictly parses s as a JSON object. A literal null, arrays and
// scalars are rejected.
func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := decodeStrict(s, &obj); err != nil || obj == nil {
		return nil, false
	}
	normalizeNumbers(obj)
	return obj, true
}

// decodeStrict decodes exactly one JSON value from s. Numbers decode as
// json.Number and trailing data is an error.
func decodeStrict(s string, v any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// maxExactInt is the largest integer magnitude float64 holds exactly.
const maxExactInt = 1 << 53

// normalizeNumbers turns every json.Number in v into float64, except
// integer literals float64 cannot hold exactly. Those stay json.Number and
// encode back unchanged.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
	case json.Number:
		return numberValue(val)
	}
	return v
}

func numberValue(n json.Number) any {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		i, err := strconv.ParseInt(lit, 10, 64)
		if err != nil || i > maxExactInt || i < -maxExactInt {
			return n
		}
		return float64(i)
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return n
	}
	return f
}

// ExtractInto extracts the JSON object from response and decodes it into T.
// Numbers landing in interface-typed fields decode as json.Number.
func ExtractInto[T any](response string) (T, error) {
	var result T
	jsonStr, err := extractJSON(response)
	if err != nil {
		return result, err
	}
	if err := decodeStrict(jsonStr, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}
