package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets every variable New reads so host settings don't leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VERITY_PROVIDER", "ARK_MODEL", "ARK_BASE_URL", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"LLM_MAX_TOKENS", "LLM_TEMPERATURE", "VERITY_REQUEST_TIMEOUT", "VERITY_DB_PATH",
		"VERITY_LOG_LEVEL", "VERITY_ADDR", "VERITY_BRIDGE_POOL_SIZE",
		"VERITY_BRIDGE_MAX_RETRIES", "VERITY_BRIDGE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestNewDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "ark" {
		t.Errorf("expected provider 'ark', got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "doubao-seed-1-6-251015" {
		t.Errorf("unexpected default model %q", settings.LLM.Model)
	}
	if settings.LLM.MaxTokens != 4096 {
		t.Errorf("expected 4096 max tokens, got %d", settings.LLM.MaxTokens)
	}
	if settings.Bridge.PoolSize != 2 || settings.Bridge.MaxRetries != 3 || settings.Bridge.Timeout != 120*time.Second {
		t.Errorf("unexpected bridge defaults: %+v", settings.Bridge)
	}
	if settings.Storage.DBPath != ".verity/verity.db" {
		t.Errorf("unexpected db path %q", settings.Storage.DBPath)
	}
	if settings.LogLevel != "info" || settings.Server.Addr != ":8080" {
		t.Errorf("unexpected defaults: %+v", settings)
	}
}

func TestNewProviderFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERITY_PROVIDER", "claude")

	settings, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", settings.LLM.Provider)
	}

	settings, err = New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("explicit provider should win, got %q", settings.LLM.Provider)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	clearEnv(t)
	_, err := New("unknown_provider")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewBaseURLOnlyForCompatibleProviders(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_BASE_URL", "http://gateway.local/v1")

	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.BaseURL != "http://gateway.local/v1" {
		t.Errorf("unexpected base url %q", settings.LLM.BaseURL)
	}

	settings, err = New("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.BaseURL != "" {
		t.Errorf("anthropic should not take a base url, got %q", settings.LLM.BaseURL)
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("ARK_API_KEY", "test-key")

	key, err := APIKeyFor("doubao")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	original, had := os.LookupEnv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	if had {
		defer os.Setenv("OPENAI_API_KEY", original)
	}

	_, err := APIKeyFor("openai")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")

	model, err := ModelFor("google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gemini-2.5-pro" {
		t.Errorf("expected env model, got %q", model)
	}
}

func TestNewWithInvalidEnvVar(t *testing.T) {
	for key, val := range map[string]string{
		"LLM_MAX_TOKENS":            "not-a-number",
		"LLM_TEMPERATURE":           "hot",
		"VERITY_BRIDGE_TIMEOUT":     "soon",
		"VERITY_BRIDGE_POOL_SIZE":   "0",
		"VERITY_BRIDGE_MAX_RETRIES": "-1",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := New("ark"); err == nil {
				t.Errorf("expected error for invalid %s", key)
			}
		})
	}
}

func TestDurationForms(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERITY_BRIDGE_TIMEOUT", "45")
	t.Setenv("VERITY_REQUEST_TIMEOUT", "2m")

	settings, err := New("ark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Bridge.Timeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", settings.Bridge.Timeout)
	}
	if settings.RequestTimeout != 2*time.Minute {
		t.Errorf("expected 2m, got %v", settings.RequestTimeout)
	}
}

func TestFileDefaultsUnderEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "verity.yaml")
	content := `
provider: openai
model: gpt-4o
max_tokens: 1024
db_path: /tmp/history.db
bridge:
  pool_size: 4
  timeout: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	file, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	t.Setenv("VERITY_BRIDGE_POOL_SIZE", "6")

	settings, err := NewFromFile("", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" || settings.LLM.Model != "gpt-4o" || settings.LLM.MaxTokens != 1024 {
		t.Errorf("file values not applied: %+v", settings.LLM)
	}
	if settings.Storage.DBPath != "/tmp/history.db" {
		t.Errorf("unexpected db path %q", settings.Storage.DBPath)
	}
	if settings.Bridge.PoolSize != 6 {
		t.Errorf("env should override file, got pool size %d", settings.Bridge.PoolSize)
	}
	if settings.Bridge.Timeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", settings.Bridge.Timeout)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("api_key: sk-secret\n"), 0o644)
	if _, err := LoadFile(unknown); err == nil {
		t.Error("expected error for unknown key")
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, nil, 0o644)
	if f, err := LoadFile(empty); err != nil || f != (File{}) {
		t.Errorf("expected empty file to load as zero File, got %+v, %v", f, err)
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustNew("unknown_provider")
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) != 4 || providers[0] != "anthropic" {
		t.Errorf("unexpected providers: %v", providers)
	}
}
