// Package config loads engram configuration from defaults, an optional
// YAML file, and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/embermind/engram/core/embedding"
)

var (
	// ErrMissingDBPath indicates no database path was configured.
	ErrMissingDBPath = errors.New("config: database path required")

	// ErrMissingProviderKey indicates a remote embedding or model
	// provider was selected without an API key.
	ErrMissingProviderKey = errors.New("config: provider requires an API key")
)

// Config is the full engram configuration.
type Config struct {
	Database  DatabaseConfig   `yaml:"database"`
	Embedding embedding.Config `yaml:"embedding"`
	Retrieval RetrievalConfig  `yaml:"retrieval"`
	Tools     ToolsConfig      `yaml:"tools"`
	Agent     AgentConfig      `yaml:"agent"`
	Logging   LoggingConfig    `yaml:"logging"`
}

type DatabaseConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RetrievalConfig struct {
	MemoryLimit    int     `yaml:"memory_limit"`
	MinVectorScore float64 `yaml:"min_vector_score"`
	QueryCacheMB   int     `yaml:"query_cache_mb"`
}

type ToolsConfig struct {
	Dir          string        `yaml:"dir"`
	WatchEnabled bool          `yaml:"watch_enabled"`
	Debounce     time.Duration `yaml:"debounce"`
}

type AgentConfig struct {
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	MaxTokens     int           `yaml:"max_tokens"`
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns the baseline configuration. Data lives under
// ~/.engram unless overridden.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".engram")

	return &Config{
		Database: DatabaseConfig{
			Path:         filepath.Join(root, "engram.db"),
			MaxOpenConns: 4,
		},
		Embedding: embedding.DefaultConfig(),
		Retrieval: RetrievalConfig{
			MemoryLimit:    3,
			MinVectorScore: 0.5,
			QueryCacheMB:   8,
		},
		Tools: ToolsConfig{
			Dir:          filepath.Join(root, "tools"),
			WatchEnabled: true,
			Debounce:     200 * time.Millisecond,
		},
		Agent: AgentConfig{
			Model:         "claude-sonnet-4-20250514",
			MaxTokens:     4096,
			MaxIterations: 10,
			Timeout:       2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (missing file is fine), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv("ENGRAM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ENGRAM_TOOLS_DIR"); v != "" {
		cfg.Tools.Dir = v
	}
	if v := os.Getenv("ENGRAM_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Embedding.Provider == "gemini" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Agent.APIKey = v
	}
	if v := os.Getenv("ENGRAM_AGENT_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("ENGRAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ENGRAM_MEMORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.MemoryLimit = n
		}
	}
	if v := os.Getenv("ENGRAM_MIN_VECTOR_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.MinVectorScore = f
		}
	}
}

// Validate checks invariants that must hold before anything opens the
// database or calls a provider.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	switch c.Embedding.Provider {
	case "openai", "gemini":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%w: embedding provider %q", ErrMissingProviderKey, c.Embedding.Provider)
		}
	}
	if c.Retrieval.MinVectorScore < 0 || c.Retrieval.MinVectorScore > 1 {
		return fmt.Errorf("config: min_vector_score %.2f out of [0,1]", c.Retrieval.MinVectorScore)
	}
	return nil
}
