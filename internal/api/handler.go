package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/sbert-service/internal/metrics"
	"github.com/nidhogg/sbert-service/internal/service"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies; large batches fit comfortably.
const maxBodyBytes = 10 << 20

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc     *service.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, m *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, metrics: m, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.health)
	r.Post("/embed", h.embed)
	r.Post("/batch-embed", h.batchEmbed)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

func (h *Handler) embed(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r, "embed")
	if !ok {
		return
	}
	vec, err := h.svc.EmbedOne(r.Context(), body)
	if err != nil {
		h.writeError(w, "embed", err)
		return
	}
	h.metrics.Embedded("embed", 1)
	writeJSON(w, http.StatusOK, vec)
}

func (h *Handler) batchEmbed(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r, "batch-embed")
	if !ok {
		return
	}
	vecs, err := h.svc.EmbedBatch(r.Context(), body)
	if err != nil {
		h.writeError(w, "batch-embed", err)
		return
	}
	h.metrics.Embedded("batch-embed", len(vecs))
	writeJSON(w, http.StatusOK, vecs)
}

// readBody decodes the request body into a loosely typed JSON tree. An empty
// body decodes to nil and is left for the service to reject.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, endpoint string) (any, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.metrics.ValidationError(endpoint)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("request body too large",
				zap.String("endpoint", endpoint),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Int64("limit", tooLarge.Limit))
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("Request body too large"))
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("Failed to read request body: "+err.Error()))
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, true
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		h.metrics.ValidationError(endpoint)
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid JSON body: "+err.Error()))
		return nil, false
	}
	return body, true
}

func (h *Handler) writeError(w http.ResponseWriter, endpoint string, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		h.metrics.ValidationError(endpoint)
		writeJSON(w, http.StatusBadRequest, errorBody(ve.Message))
		return
	}

	h.metrics.ProviderError(endpoint)
	writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
