package embedding

import (
	"context"
	"fmt"
	"os"
)

// NewProvider builds the provider named by cfg.Provider. An empty name
// consults the COGNITIVE_EMBEDDING_PROVIDER environment variable and
// finally falls back to the local featurizer.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	name := cfg.Provider
	if name == "" {
		name = os.Getenv("COGNITIVE_EMBEDDING_PROVIDER")
	}
	if name == "" {
		name = "local"
	}

	switch name {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "gemini":
		return NewGeminiProvider(ctx, cfg)
	case "local":
		return NewLocalProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
