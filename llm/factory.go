// LLM Provider Factory - builder-first API for creating analysis providers.
//
// Quick Start:
//
//	// Defaults, API key from environment
//	ark, err := llm.ProviderArk.FromEnv()  // Uses doubao-seed-1-6-251015
//
//	// Full configuration
//	claude, err := llm.ProviderAnthropic.
//	    Model(llm.ModelAnthropicClaudeSonnet45).
//	    MaxTokens(8192).
//	    FromEnv()
//
//	// OpenAI-compatible gateway
//	gw, err := llm.ProviderOpenAI.BaseURL("https://gateway.local/v1").APIKey("sk-...")

package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissingAPIKey is returned when a provider is built without a key.
var ErrMissingAPIKey = errors.New("API key not set")

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderArk is Volcengine Ark, an OpenAI-compatible endpoint with the Responses API.
	ProviderArk ProviderType = iota
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderArk:
		return "ark"
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderArk:
		return "ARK_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderArk:
		return ModelArkDoubaoSeed16
	case ProviderOpenAI:
		return ModelOpenAIGPT52
	case ProviderAnthropic:
		return ModelAnthropicClaudeSonnet45
	case ProviderGemini:
		return ModelGeminiFlash25
	default:
		return ""
	}
}

// DefaultBaseURL returns the API endpoint used when none is configured.
// Empty means the SDK default.
func (p ProviderType) DefaultBaseURL() string {
	if p == ProviderArk {
		return ArkBaseURL
	}
	return ""
}

// ArkBaseURL is the Volcengine Ark endpoint.
const ArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ark", "volcengine", "doubao":
		return ProviderArk, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// BaseURL starts configuring this provider with a custom endpoint.
func (p ProviderType) BaseURL(url string) *ProviderBuilder {
	return NewProviderBuilder(p).BaseURL(url)
}

// APIKey creates a provider with an explicit API key (uses defaults for everything else).
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	baseURL      string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL sets the API endpoint. Only OpenAI-compatible providers honour it.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s: %w", b.providerType, envVar, ErrMissingAPIKey)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	if key == "" {
		return nil, fmt.Errorf("%s: %w", b.providerType, ErrMissingAPIKey)
	}
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	baseURL := b.baseURL
	if baseURL == "" {
		baseURL = b.providerType.DefaultBaseURL()
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var temperature float32
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch b.providerType {
	case ProviderArk, ProviderOpenAI:
		return NewOpenAIProvider(b.providerType.String(), apiKey, baseURL, model, maxTokens, temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}

// Model identifier constants for all supported providers.

// Ark model identifiers
const (
	// ModelArkDoubaoSeed16 is Doubao Seed 1.6: multimodal with web search and reasoning summaries.
	ModelArkDoubaoSeed16 = "doubao-seed-1-6-251015"
	// ModelArkDoubaoSeed16Flash is the low-latency Seed 1.6 variant.
	ModelArkDoubaoSeed16Flash = "doubao-seed-1-6-flash-250828"
)

// OpenAI model identifiers
const (
	// ModelOpenAIGPT52 is GPT-5.2: Latest flagship model (December 2025).
	ModelOpenAIGPT52 = "gpt-5.2"
	// ModelOpenAIGPT5 is GPT-5: Previous flagship (August 2025).
	ModelOpenAIGPT5 = "gpt-5"
	// ModelOpenAIGPT4o is GPT-4o: Legacy model.
	ModelOpenAIGPT4o = "gpt-4o"
)

// Anthropic model identifiers
const (
	// ModelAnthropicClaudeOpus45 is Claude Opus 4.5: Latest flagship.
	ModelAnthropicClaudeOpus45 = "claude-opus-4-5-20251101"
	// ModelAnthropicClaudeSonnet45 is Claude Sonnet 4.5: Balanced performance with web search.
	ModelAnthropicClaudeSonnet45 = "claude-sonnet-4-5-20250929"
)

// Gemini model identifiers
const (
	// ModelGeminiPro25 is Gemini 2.5 Pro.
	ModelGeminiPro25 = "gemini-2.5-pro"
	// ModelGeminiFlash25 is Gemini 2.5 Flash: thinking and search grounding.
	ModelGeminiFlash25 = "gemini-2.5-flash"
)
