package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/events"
)

func TestRendererStreamingSections(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	steps := []struct {
		kind events.Kind
		data map[string]any
	}{
		{events.KindThinkingStart, map[string]any{"timestamp": "t"}},
		{events.KindThinkingDelta, map[string]any{"delta": "checking "}},
		{events.KindThinkingDelta, map[string]any{"delta": "dates"}},
		{events.KindSearchStart, map[string]any{"timestamp": "t"}},
		{events.KindSearchQuery, map[string]any{"query": "moon landing 1969"}},
		{events.KindSearchComplete, map[string]any{"timestamp": "t"}},
		{events.KindAnswerStart, map[string]any{"timestamp": "t"}},
		{events.KindAnswerDelta, map[string]any{"delta": `{"probability":`}},
	}
	for _, s := range steps {
		require.NoError(t, r.Emit(s.kind, s.data))
	}

	out := buf.String()
	assert.Contains(t, out, "Thinking\n")
	assert.Contains(t, out, "checking dates\n")
	assert.Contains(t, out, "moon landing 1969")
	assert.Contains(t, out, "Search complete")
	assert.Contains(t, out, "Answering")
	assert.NotContains(t, out, "probability")
}

func TestRendererShowAnswer(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	require.NoError(t, r.Emit(events.KindAnswerDelta, map[string]any{"delta": `{"a":1}`}))
	require.NoError(t, r.Emit(events.KindComplete, map[string]any{"success": true}))
	assert.Equal(t, "{\"a\":1}\n", buf.String())
}

func TestRendererError(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	require.NoError(t, r.Emit(events.KindError, map[string]any{"error": "analysis failed: boom"}))
	assert.Contains(t, buf.String(), "analysis failed: boom")
}

func TestRendererIgnoresUnexpectedData(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	assert.NoError(t, r.Emit(events.KindAnswerDelta, "not a map"))
	assert.NoError(t, r.Emit(events.Kind("other"), nil))
	assert.Empty(t, buf.String())
}

func TestResultVerdict(t *testing.T) {
	var buf bytes.Buffer
	res := analysis.Result{
		"success":     true,
		"probability": 0.15,
		"type":        float64(analysis.TypeLikelyFalse),
		"explanation": "The photo predates the event.",
		"analysis_points": []any{
			map[string]any{"description": "Image reused", "status": "negative"},
		},
		"fake_parts": []any{
			map[string]any{"text": "taken yesterday", "reason": "EXIF shows 2015"},
		},
		"search_references": []any{
			map[string]any{"title": "Fact check", "url": "https://example.org/fc", "relevance": "high"},
		},
		"search_queries": []string{"photo origin"},
	}
	require.NoError(t, NewRenderer(&buf, false).Result(res))

	out := buf.String()
	assert.Contains(t, out, "likely false (15% credible)")
	assert.Contains(t, out, "The photo predates the event.")
	assert.Contains(t, out, "- Image reused")
	assert.Contains(t, out, `"taken yesterday"`)
	assert.Contains(t, out, "https://example.org/fc")
	assert.Contains(t, out, "searched: photo origin")
}

func TestResultFailure(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, false).Result(analysis.Failure("no content provided")))
	assert.Contains(t, buf.String(), "no content provided")
}

func TestResultParseRecovery(t *testing.T) {
	var buf bytes.Buffer
	res := analysis.Result{"success": true, "error": "parse failed", "raw": "not json at all"}
	require.NoError(t, NewRenderer(&buf, false).Result(res))

	out := buf.String()
	assert.Contains(t, out, "parse failed")
	assert.Contains(t, out, "not json at all")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "héllo...", truncateString("héllo wörld", 5))
	assert.True(t, strings.HasSuffix(truncateString(strings.Repeat("x", 100), maxPreviewLen), "..."))
}
