// Package embedding turns text into vectors for the graph's semantic search.
// Remote providers (OpenAI, Gemini) produce high quality embeddings; the
// local provider is a deterministic hashed featurizer that needs no network
// and no model files.
package embedding

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingAPIKey is returned when a remote provider is selected
	// without credentials.
	ErrMissingAPIKey = errors.New("embedding: missing API key")

	// ErrUnknownProvider is returned by the factory for an unrecognized
	// provider name.
	ErrUnknownProvider = errors.New("embedding: unknown provider")
)

// Provider generates embedding vectors for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// Config selects and tunes a provider.
type Config struct {
	// Provider is one of "openai", "gemini", or "local".
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// APIKey for remote providers. Falls back to the provider's usual
	// environment variable when empty.
	APIKey string `yaml:"api_key"`

	// Dimension overrides the local provider's vector width.
	Dimension int `yaml:"dimension"`

	// Timeout bounds each remote embedding request.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when nothing is specified:
// the local provider, which always works.
func DefaultConfig() Config {
	return Config{
		Provider:  "local",
		Dimension: localDefaultDimension,
		Timeout:   60 * time.Second,
	}
}
