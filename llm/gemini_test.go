package llm

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func geminiResponse(gm *genai.GroundingMetadata, parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:           &genai.Content{Role: genai.RoleModel, Parts: parts},
			GroundingMetadata: gm,
		}},
	}
}

func TestGeminiTranslator(t *testing.T) {
	tr := newGeminiTranslator()

	chunks, err := tr.translate(geminiResponse(nil,
		&genai.Part{Text: "Checking the claim", Thought: true},
	))
	require.NoError(t, err)
	assert.Equal(t, []Chunk{ReasoningDelta("Checking the claim")}, chunks)

	chunks, err = tr.translate(geminiResponse(
		&genai.GroundingMetadata{WebSearchQueries: []string{"great wall visible from space"}},
		&genai.Part{Text: `{"verdict":"false"}`},
	))
	require.NoError(t, err)
	assert.Equal(t, []Chunk{
		SearchInProgress("ws_gemini_1"),
		SearchDone("ws_gemini_1", "great wall visible from space"),
		SearchCompleted("ws_gemini_1"),
		TextDelta(`{"verdict":"false"}`),
	}, chunks)

	// Grounding metadata repeats on later chunks; known queries are not re-announced.
	chunks, err = tr.translate(geminiResponse(
		&genai.GroundingMetadata{WebSearchQueries: []string{"great wall visible from space"}},
		&genai.Part{Text: ""},
		nil,
	))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = tr.translate(&genai.GenerateContentResponse{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestGeminiStream(t *testing.T) {
	boom := errors.New("quota exceeded")
	var seq iter.Seq2[*genai.GenerateContentResponse, error] = func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(geminiResponse(nil, &genai.Part{Text: "a"}, &genai.Part{Text: "b"}), nil) {
			return
		}
		yield(nil, boom)
	}

	s := newGeminiStream(seq)
	defer s.Close()

	chunks := collect(t, s)
	assert.Equal(t, []Chunk{TextDelta("a"), TextDelta("b")}, chunks)
	assert.ErrorIs(t, s.Err(), boom)
}

func TestConvertToGeminiContents(t *testing.T) {
	contents := convertToGeminiContents([]Message{
		UserMessage(TextPart("claim"), ImagePart("data:image/png;base64,iVBORw0K"), ImagePart("https://example.com/x.jpg")),
	})

	require.Len(t, contents, 1)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	require.Len(t, contents[0].Parts, 3)
	assert.Equal(t, "claim", contents[0].Parts[0].Text)
	require.NotNil(t, contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", contents[0].Parts[1].InlineData.MIMEType)
	require.NotNil(t, contents[0].Parts[2].FileData)
	assert.Equal(t, "https://example.com/x.jpg", contents[0].Parts[2].FileData.FileURI)
}
