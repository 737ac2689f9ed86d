package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the optional YAML configuration file. Every field is a default
// that the matching environment variable overrides. API keys are only read
// from the environment.
type File struct {
	Provider       string     `yaml:"provider"`
	Model          string     `yaml:"model"`
	BaseURL        string     `yaml:"base_url"`
	MaxTokens      uint32     `yaml:"max_tokens"`
	Temperature    float64    `yaml:"temperature"`
	RequestTimeout string     `yaml:"request_timeout"`
	DBPath         string     `yaml:"db_path"`
	LogLevel       string     `yaml:"log_level"`
	Addr           string     `yaml:"addr"`
	Bridge         BridgeFile `yaml:"bridge"`
}

// BridgeFile is the bridge section of File.
type BridgeFile struct {
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
	Timeout    string `yaml:"timeout"`
}

// LoadFile reads a YAML configuration file. Unknown keys are rejected.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return f, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return f, nil
}

func (f File) duration(key, val string, def time.Duration) (time.Duration, error) {
	if val == "" {
		return def, nil
	}
	d, err := parseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s in config file: %q: %w", key, val, err)
	}
	return d, nil
}
