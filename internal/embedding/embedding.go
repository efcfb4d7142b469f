package embedding

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings from text.
// Implementations must be safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api", "local" or "mock"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds the Provider selected by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "api":
		return NewAPIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	case "mock":
		dim := cfg.Dimension
		if dim <= 0 {
			dim = KnownDimension(cfg.Model)
		}
		if dim <= 0 {
			return nil, fmt.Errorf("embedding: mock provider needs a dimension for model %q", cfg.Model)
		}
		return NewMockProvider(dim), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
