// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() or NewFromFile() which handle:
// - Environment variable parsing with validation
// - Optional YAML file defaults (environment wins)
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/verity/llm"
)

// ErrMissingAPIKey is returned when the selected provider has no API key.
var ErrMissingAPIKey = errors.New("API key not set")

// DefaultProvider is used when neither flag, environment nor file names one.
const DefaultProvider = "ark"

// Settings holds all application configuration.
type Settings struct {
	LLM            LLMConfig
	Storage        StorageConfig
	Bridge         BridgeConfig
	Server         ServerConfig
	LogLevel       string
	RequestTimeout time.Duration
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	MaxTokens   uint32
	Temperature float64
}

// StorageConfig holds history storage configuration.
type StorageConfig struct {
	DBPath string
}

// BridgeConfig holds child-process supervisor configuration.
type BridgeConfig struct {
	PoolSize   int
	MaxRetries int
	Timeout    time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
	baseURLEnv   string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"ark":       {"ARK_MODEL", llm.ModelArkDoubaoSeed16, "ARK_API_KEY", "ARK_BASE_URL"},
	"openai":    {"OPENAI_MODEL", llm.ModelOpenAIGPT52, "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	"anthropic": {"ANTHROPIC_MODEL", llm.ModelAnthropicClaudeSonnet45, "ANTHROPIC_API_KEY", ""},
	"gemini":    {"GEMINI_MODEL", llm.ModelGeminiFlash25, "GEMINI_API_KEY", ""},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude":     "anthropic",
	"doubao":     "ark",
	"google":     "gemini",
	"gpt":        "openai",
	"volcengine": "ark",
}

// New creates settings for the specified provider, loading values from environment variables.
// An empty provider falls back to VERITY_PROVIDER, then "ark".
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	return NewFromFile(provider, File{})
}

// NewFromFile is New with file values as defaults beneath the environment.
func NewFromFile(provider string, file File) (Settings, error) {
	if provider == "" {
		provider = firstNonEmpty(os.Getenv("VERITY_PROVIDER"), file.Provider, DefaultProvider)
	}
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", orDefault(file.MaxTokens, 4096))
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", file.Temperature)
	if err != nil {
		return Settings{}, err
	}

	fileTimeout, err := file.duration("request_timeout", file.RequestTimeout, 5*time.Minute)
	if err != nil {
		return Settings{}, err
	}
	requestTimeout, err := getEnvDuration("VERITY_REQUEST_TIMEOUT", fileTimeout)
	if err != nil {
		return Settings{}, err
	}

	poolSize, err := getEnvInt("VERITY_BRIDGE_POOL_SIZE", orDefault(file.Bridge.PoolSize, 2))
	if err != nil {
		return Settings{}, err
	}
	if poolSize < 1 {
		return Settings{}, fmt.Errorf("invalid value for VERITY_BRIDGE_POOL_SIZE: %d: must be at least 1", poolSize)
	}

	maxRetries, err := getEnvInt("VERITY_BRIDGE_MAX_RETRIES", orDefault(file.Bridge.MaxRetries, 3))
	if err != nil {
		return Settings{}, err
	}
	if maxRetries < 1 {
		return Settings{}, fmt.Errorf("invalid value for VERITY_BRIDGE_MAX_RETRIES: %d: must be at least 1", maxRetries)
	}

	fileBridgeTimeout, err := file.duration("bridge.timeout", file.Bridge.Timeout, 120*time.Second)
	if err != nil {
		return Settings{}, err
	}
	bridgeTimeout, err := getEnvDuration("VERITY_BRIDGE_TIMEOUT", fileBridgeTimeout)
	if err != nil {
		return Settings{}, err
	}

	// Get model from environment, then file, then default
	model := firstNonEmpty(os.Getenv(info.modelEnv), file.Model, info.defaultModel)

	var baseURL string
	if info.baseURLEnv != "" {
		baseURL = firstNonEmpty(os.Getenv(info.baseURLEnv), file.BaseURL)
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			BaseURL:     baseURL,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Storage: StorageConfig{
			DBPath: firstNonEmpty(os.Getenv("VERITY_DB_PATH"), file.DBPath, ".verity/verity.db"),
		},
		Bridge: BridgeConfig{
			PoolSize:   poolSize,
			MaxRetries: maxRetries,
			Timeout:    bridgeTimeout,
		},
		Server: ServerConfig{
			Addr: firstNonEmpty(os.Getenv("VERITY_ADDR"), file.Addr, ":8080"),
		},
		LogLevel:       firstNonEmpty(os.Getenv("VERITY_LOG_LEVEL"), file.LogLevel, "info"),
		RequestTimeout: requestTimeout,
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
// There is no fallback key: a missing key is an error wrapping ErrMissingAPIKey.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s: %w", info.apiKeyEnv, ErrMissingAPIKey)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the sorted list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

// getEnvDuration accepts Go durations ("90s", "2m") or plain seconds.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := parseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}

func parseDuration(val string) (time.Duration, error) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}
