// Gemini Provider implementation using official Google genai SDK.
//
// Information Hiding:
// - API endpoint and authentication
// - Request format for Gemini API (Google Search grounding, thought summaries)
// - Translation of streamed candidates into Responses API chunks

package llm

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // Stores client initialization error for deferred reporting
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	p := &GeminiProvider{
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return fmt.Errorf("gemini client not initialized")
	}
	return nil
}

// Complete sends a GenerateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}

	config := p.config(req)
	config.ThinkingConfig = nil

	response, err := p.client.Models.GenerateContent(ctx, p.model, convertToGeminiContents(req.Conversation()), config)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	var usage *TokenUsage
	if response.UsageMetadata != nil {
		usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
		}
	}

	return LLMResponse{Content: response.Text(), Usage: usage}, nil
}

// Stream opens a GenerateContentStream call.
func (p *GeminiProvider) Stream(ctx context.Context, req Request) (ChunkStream, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	seq := p.client.Models.GenerateContentStream(ctx, p.model, convertToGeminiContents(req.Conversation()), p.config(req))
	return newGeminiStream(seq), nil
}

func (p *GeminiProvider) config(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: p.maxTokens,
	}
	if p.temperature > 0 {
		config.Temperature = genai.Ptr(p.temperature)
	}
	if system := req.SystemPrompt(); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.Thinking != ThinkingDisabled {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	return config
}

// convertToGeminiContents converts messages to Gemini contents.
// Remote image URLs are passed by reference; data URLs are inlined.
func convertToGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == "assistant" {
			content.Role = genai.RoleModel
		}
		for _, part := range msg.Parts {
			switch part.Type {
			case PartText:
				content.Parts = append(content.Parts, genai.NewPartFromText(part.Text))
			case PartImageURL:
				if mediaType, data, ok := ParseDataURL(part.ImageURL); ok {
					content.Parts = append(content.Parts, genai.NewPartFromBytes(data, mediaType))
				} else {
					content.Parts = append(content.Parts, genai.NewPartFromURI(part.ImageURL, "image/jpeg"))
				}
			}
		}
		contents = append(contents, content)
	}
	return contents
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) ChunkStream {
	next, stop := iter.Pull2(seq)
	var streamErr error
	t := newGeminiTranslator()
	return &translatedStream[*genai.GenerateContentResponse]{
		next: func() (*genai.GenerateContentResponse, bool) {
			resp, err, ok := next()
			if !ok {
				return nil, false
			}
			if err != nil {
				streamErr = fmt.Errorf("stream error: %w", err)
				return nil, false
			}
			return resp, true
		},
		srcErr: func() error { return streamErr },
		close: func() error {
			stop()
			return nil
		},
		translate: t.translate,
	}
}

// geminiTranslator maps streamed candidates onto Responses API chunks.
//
// Thought parts become reasoning deltas and other text parts answer deltas.
// Grounding queries not seen before are reported as one search call.
type geminiTranslator struct {
	seen     map[string]bool
	searches int
}

func newGeminiTranslator() *geminiTranslator {
	return &geminiTranslator{seen: make(map[string]bool)}
}

func (t *geminiTranslator) translate(resp *genai.GenerateContentResponse) ([]Chunk, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, nil
	}
	cand := resp.Candidates[0]

	var chunks []Chunk
	if gm := cand.GroundingMetadata; gm != nil {
		var fresh []string
		for _, q := range gm.WebSearchQueries {
			if q != "" && !t.seen[q] {
				t.seen[q] = true
				fresh = append(fresh, q)
			}
		}
		if len(fresh) > 0 {
			t.searches++
			id := fmt.Sprintf("%sgemini_%d", SearchItemPrefix, t.searches)
			chunks = append(chunks, SearchInProgress(id))
			for _, q := range fresh {
				chunks = append(chunks, SearchDone(id, q))
			}
			chunks = append(chunks, SearchCompleted(id))
		}
	}

	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if part.Thought {
				chunks = append(chunks, ReasoningDelta(part.Text))
			} else {
				chunks = append(chunks, TextDelta(part.Text))
			}
		}
	}
	return chunks, nil
}
