package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrDimension is returned when a provider yields a vector whose length
// differs from the model dimension.
var ErrDimension = errors.New("embedding: dimension mismatch")

// probeText is embedded once at load time to discover the output dimension.
const probeText = "dimension probe"

// Model is a loaded embedding model: a provider bound to a fixed name and
// dimension for the lifetime of the process.
type Model struct {
	name     string
	dim      int
	provider Provider
	logger   *zap.Logger
}

// Load probes provider once and returns a Model fixed to the observed
// dimension. When expectedDim is positive the probe must agree with it.
func Load(ctx context.Context, provider Provider, name string, expectedDim int, logger *zap.Logger) (*Model, error) {
	logger.Info("Loading embedding model", zap.String("model", name))

	vecs, err := provider.Embed(ctx, []string{probeText})
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", name, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("load model %s: probe returned no embedding", name)
	}

	dim := len(vecs[0])
	if expectedDim > 0 && dim != expectedDim {
		return nil, fmt.Errorf("load model %s: %w: expected %d, got %d", name, ErrDimension, expectedDim, dim)
	}

	logger.Info("Model loaded successfully", zap.String("model", name), zap.Int("dimension", dim))
	return &Model{name: name, dim: dim, provider: provider, logger: logger}, nil
}

// Name returns the model identifier.
func (m *Model) Name() string { return m.name }

// Dimension returns the fixed embedding dimension.
func (m *Model) Dimension() int { return m.dim }

// Embed returns one vector per text, in input order. Results that break the
// count or dimension contract are rejected.
func (m *Model) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := m.provider.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding: provider returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != m.dim {
			return nil, fmt.Errorf("%w: item %d has %d values, expected %d", ErrDimension, i, len(v), m.dim)
		}
	}
	return vecs, nil
}
