// OpenAI-compatible Provider implementation.
//
// Information Hiding:
// - API endpoint and authentication (OpenAI or Ark base URL)
// - Chat Completions request format for one-shot analysis (go-openai)
// - Responses API streaming with web search and reasoning summaries (openai-go)

package llm

import (
	"context"
	"fmt"
	"sort"

	openaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the part of the go-openai client used for one-shot calls.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ResponsesClient opens Responses API streams. The body holds every
// request field except the model.
type ResponsesClient interface {
	StreamResponses(ctx context.Context, model string, body map[string]any) (ChunkStream, error)
}

// OpenAIProvider implements the Provider interface for OpenAI-compatible endpoints.
type OpenAIProvider struct {
	name        string
	chat        ChatClient
	responses   ResponsesClient
	model       string
	maxTokens   int
	temperature float32
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
// An empty baseURL selects api.openai.com.
func NewOpenAIProvider(name, apiKey, baseURL, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return NewOpenAIProviderWithClients(name, model, maxTokens, temperature,
		openai.NewClientWithConfig(cfg),
		&responsesAPI{client: openaigo.NewClient(opts...)},
	)
}

// NewOpenAIProviderWithClients creates a provider over caller-supplied clients.
func NewOpenAIProviderWithClients(name, model string, maxTokens uint32, temperature float32, chat ChatClient, responses ResponsesClient) *OpenAIProvider {
	return &OpenAIProvider{
		name:        name,
		chat:        chat,
		responses:   responses,
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (LLMResponse, error) {
	creq := openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            convertToOpenAIMessages(req.Messages),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
	}

	resp, err := p.chat.CreateChatCompletion(ctx, creq)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, Usage: usage}, nil
}

// Stream opens a Responses API stream.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (ChunkStream, error) {
	stream, err := p.responses.StreamResponses(ctx, p.model, responsesBody(req))
	if err != nil {
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}
	return stream, nil
}

// responsesBody builds the Responses API request fields for req.
func responsesBody(req Request) map[string]any {
	body := map[string]any{
		"input": responsesInput(req.Messages),
	}
	if req.WebSearch {
		body["tools"] = []map[string]any{
			{"type": "web_search", "limit": req.searchLimit()},
		}
	}
	if req.Thinking != ThinkingDefault {
		body["thinking"] = map[string]any{"type": string(req.Thinking)}
	}
	return body
}

func responsesInput(messages []Message) []map[string]any {
	input := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			input = append(input, map[string]any{"role": "system", "content": msg.Text()})
			continue
		}
		content := make([]map[string]any, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case PartText:
				content = append(content, map[string]any{"type": "input_text", "text": part.Text})
			case PartImageURL:
				content = append(content, map[string]any{"type": "input_image", "image_url": part.ImageURL})
			}
		}
		input = append(input, map[string]any{"role": msg.Role, "content": content})
	}
	return input
}

// convertToOpenAIMessages converts our Message to openai.ChatCompletionMessage.
func convertToOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		if msg.Role == "system" {
			result[i] = openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Text()}
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case PartText:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case PartImageURL:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
				})
			}
		}
		result[i] = openai.ChatCompletionMessage{Role: msg.Role, MultiContent: parts}
	}
	return result
}

// responsesAPI streams through the openai-go Responses client.
type responsesAPI struct {
	client openaigo.Client
}

func (r *responsesAPI) StreamResponses(ctx context.Context, model string, body map[string]any) (ChunkStream, error) {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]option.RequestOption, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, option.WithJSONSet(k, body[k]))
	}

	params := responses.ResponseNewParams{Model: shared.ResponsesModel(model)}
	stream := r.client.Responses.NewStreaming(ctx, params, opts...)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, err
	}
	return newRawStream[responses.ResponseStreamEventUnion](stream, decodeResponsesEvent), nil
}
