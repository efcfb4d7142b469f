// Package service validates embedding requests and delegates them to the
// loaded model.
package service

import (
	"context"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Model is the loaded embedding model the service delegates to.
// *embedding.Model satisfies it.
type Model interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status       string `json:"status"`
	Model        string `json:"model"`
	EmbeddingDim int    `json:"embedding_dim"`
}

// Service holds no mutable state; it is safe for concurrent use as long as
// the model is.
type Service struct {
	model  Model
	logger *zap.Logger
}

// New creates a Service bound to model.
func New(model Model, logger *zap.Logger) *Service {
	return &Service{model: model, logger: logger}
}

// Health reports the served model and its dimension.
func (s *Service) Health() HealthStatus {
	return HealthStatus{
		Status:       "healthy",
		Model:        s.model.Name(),
		EmbeddingDim: s.model.Dimension(),
	}
}

// EmbedOne validates body and embeds its text. Errors are *ValidationError
// or *ProviderError.
func (s *Service) EmbedOne(ctx context.Context, body any) ([]float32, error) {
	req, err := ParseEmbedRequest(body)
	if err != nil {
		return nil, err
	}
	s.noteModel(req.Model)

	vecs, err := s.model.Embed(ctx, []string{req.Text})
	if err != nil {
		s.logger.Error("Error generating embedding",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.Error(err))
		return nil, &ProviderError{Message: "Failed to generate embedding", Err: err}
	}

	vec := vecs[0]
	s.logger.Info("Generated embedding",
		zap.Int("dimension", len(vec)),
		zap.Int("text_length", utf8.RuneCountInString(req.Text)))
	return vec, nil
}

// EmbedBatch validates body and embeds all texts in one model call. The
// result is all-or-nothing and follows input order.
func (s *Service) EmbedBatch(ctx context.Context, body any) ([][]float32, error) {
	req, err := ParseBatchEmbedRequest(body)
	if err != nil {
		return nil, err
	}
	s.noteModel(req.Model)

	vecs, err := s.model.Embed(ctx, req.Texts)
	if err != nil {
		s.logger.Error("Error generating batch embeddings",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.Error(err))
		return nil, &ProviderError{Message: "Failed to generate embeddings", Err: err}
	}

	s.logger.Info("Generated embeddings", zap.Int("count", len(vecs)))
	return vecs, nil
}

// noteModel logs a request for a model other than the loaded one. The field
// has no effect on which model is used.
func (s *Service) noteModel(requested string) {
	if requested != "" && requested != s.model.Name() {
		s.logger.Debug("ignoring requested model",
			zap.String("requested", requested),
			zap.String("serving", s.model.Name()))
	}
}
