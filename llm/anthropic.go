// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request format for the Messages API (server-side web search, extended thinking)
// - Translation of Messages stream events into Responses API chunks

package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

// minThinkingBudget is the smallest extended-thinking budget the API accepts.
const minThinkingBudget = 1024

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:      client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Complete sends a Messages request and concatenates the text blocks.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (LLMResponse, error) {
	message, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	return LLMResponse{Content: content, Usage: usage}, nil
}

// Stream opens a Messages stream.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (ChunkStream, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}
	t := newAnthropicTranslator()
	return newRawStream[anthropic.MessageStreamEventUnion](stream, t.translate), nil
}

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  convertToAnthropicMessages(req.Conversation()),
	}

	if system := req.SystemPrompt(); system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	if req.WebSearch {
		params.Tools = []anthropic.ToolUnionParam{{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(int64(req.searchLimit())),
			},
		}}
	}

	thinking := req.Thinking == ThinkingAuto || req.Thinking == ThinkingEnabled
	if budget := p.maxTokens / 2; thinking && budget >= minThinkingBudget {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	} else if p.temperature > 0 {
		// Extended thinking rejects a custom temperature.
		params.Temperature = anthropic.Float(p.temperature)
	}

	return params
}

// convertToAnthropicMessages converts user turns into content blocks.
func convertToAnthropicMessages(messages []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case PartText:
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			case PartImageURL:
				if mediaType, data, ok := ParseDataURL(part.ImageURL); ok {
					blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)))
				} else {
					blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: part.ImageURL}))
				}
			}
		}
		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

// anthropicTranslator maps Messages stream events onto Responses API chunks.
//
// A server_tool_use block opens a search; its query arrives as partial JSON
// and is released as an output_item.done chunk when the block stops. The
// matching web_search_tool_result block completes the search.
type anthropicTranslator struct {
	searches map[int64]*pendingSearch
}

type pendingSearch struct {
	id    string
	input strings.Builder
}

func newAnthropicTranslator() *anthropicTranslator {
	return &anthropicTranslator{searches: make(map[int64]*pendingSearch)}
}

func (t *anthropicTranslator) translate(raw string) ([]Chunk, error) {
	if !gjson.Valid(raw) {
		return nil, ErrMalformedChunk
	}
	ev := gjson.Parse(raw)
	index := ev.Get("index").Int()

	switch ev.Get("type").String() {
	case "content_block_start":
		block := ev.Get("content_block")
		switch block.Get("type").String() {
		case "server_tool_use":
			if block.Get("name").String() != "web_search" {
				return nil, nil
			}
			search := &pendingSearch{id: SearchItemPrefix + block.Get("id").String()}
			if input := block.Get("input"); input.Get("query").Exists() {
				search.input.WriteString(input.Raw)
			}
			t.searches[index] = search
			return []Chunk{SearchInProgress(search.id)}, nil
		case "web_search_tool_result":
			return []Chunk{SearchCompleted(SearchItemPrefix + block.Get("tool_use_id").String())}, nil
		}

	case "content_block_delta":
		delta := ev.Get("delta")
		switch delta.Get("type").String() {
		case "thinking_delta":
			return []Chunk{ReasoningDelta(delta.Get("thinking").String())}, nil
		case "text_delta":
			return []Chunk{TextDelta(delta.Get("text").String())}, nil
		case "input_json_delta":
			if search, ok := t.searches[index]; ok {
				search.input.WriteString(delta.Get("partial_json").String())
			}
		}

	case "content_block_stop":
		search, ok := t.searches[index]
		if !ok {
			return nil, nil
		}
		delete(t.searches, index)
		query := gjson.Get(search.input.String(), "query")
		if !query.Exists() {
			return []Chunk{{Type: ChunkOutputItemDone, Item: &OutputItem{ID: search.id, Type: ItemWebSearchCall}}}, nil
		}
		return []Chunk{SearchDone(search.id, query.String())}, nil

	case "error":
		return nil, fmt.Errorf("anthropic stream error: %s", ev.Get("error.message").String())
	}

	return nil, nil
}
