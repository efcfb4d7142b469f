package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
)

// MockProvider returns deterministic unit vectors seeded by the text hash.
// The same text always yields the same vector.
type MockProvider struct {
	Dim int

	mu    sync.RWMutex
	err   error
	calls atomic.Int64
}

// NewMockProvider creates a MockProvider producing dim-length vectors.
func NewMockProvider(dim int) *MockProvider {
	return &MockProvider{Dim: dim}
}

// Embed implements Provider.
func (m *MockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	m.mu.RLock()
	err := m.err
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = mockVector(text, m.Dim)
	}
	return out, nil
}

// SetErr makes subsequent Embed calls fail with err; nil restores success.
func (m *MockProvider) SetErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Calls reports how many times Embed has been invoked.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

func mockVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
