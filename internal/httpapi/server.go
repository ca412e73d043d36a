package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"npud/internal/manager"
	"npud/internal/store"
	"npud/pkg/types"
)

// Version is stamped by the build; /api/version reports it.
var Version = "dev"

// Service defines the methods required by the HTTP API layer.
// *manager.Manager is the production implementation.
type Service interface {
	Models() []types.OpenAIModel
	Resident() []types.ResidentModel
	Status() manager.Status
	History(limit int) ([]store.Record, error)
	ChatCompletions(ctx context.Context, req *types.ChatCompletionsRequest, out manager.ChunkWriter) (*types.ChatCompletionsResponse, error)
}

// NewMux assembles the router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// JSON only: compressing the SSE stream would defeat flushing.
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		handleChatCompletions(svc, w, r)
	})

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelListResponse{Object: "list", Data: svc.Models()})
	})

	// Minimal Ollama-style surface so local clients that probe it work.
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})
	r.Get("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		models := svc.Models()
		tags := make([]map[string]any, 0, len(models))
		for _, m := range models {
			tags = append(tags, map[string]any{
				"name":        m.ID,
				"model":       m.ID,
				"modified_at": time.Unix(m.Created, 0).UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": tags})
	})
	r.Get("/api/ps", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"models": svc.Resident()})
	})
	// Models come from the config directory, not a registry push/pull.
	for _, path := range []string{"/api/push", "/api/pull"} {
		r.Post(path, func(w http.ResponseWriter, r *http.Request) {
			writeErrorEnvelope(w, http.StatusNotImplemented, "invalid_request_error", "not_supported",
				"model transfer is not supported; add a model config file instead")
		})
	}
	r.Get("/api/history", func(w http.ResponseWriter, r *http.Request) {
		handleHistory(svc, w, r)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	health := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			w.Write([]byte("ok"))
		}
	}
	r.Get("/health", health)
	r.Head("/health", health)
	r.Get("/healthz", health)

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// handleChatCompletions decodes the request, runs the pipeline and
// relays either the SSE stream or the single JSON object.
//
//	@Summary	OpenAI-compatible chat completions
//	@Accept		json
//	@Produce	json
//	@Param		request	body	types.ChatCompletionsRequest	true	"chat request"
//	@Success	200	{object}	types.ChatCompletionsResponse
//	@Failure	400	{object}	types.OpenAIError
//	@Failure	503	{object}	types.OpenAIError
//	@Router		/v1/chat/completions [post]
func handleChatCompletions(svc Service, w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeErrorEnvelope(w, http.StatusUnsupportedMediaType, "invalid_request_error", "invalid_content_type",
			"Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.ChatCompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "invalid_request_error", "invalid_json",
			"invalid JSON body")
		return
	}
	if req.Model == "" {
		writeErrorEnvelope(w, http.StatusBadRequest, "invalid_request_error", "missing_model",
			"model is required")
		return
	}

	lvl := requestLogLevel(r)
	start := time.Now()
	logChatStart(r, req.Model, req.Stream, lvl)

	// Join server base context with request context so shutdown cancels
	// in-flight generations too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var sw *sseWriter
	var out manager.ChunkWriter
	if req.Stream {
		sw = newSSEWriter(w, lvl)
		out = sw
	}
	resp, err := svc.ChatCompletions(ctx, &req, out)
	switch {
	case err != nil:
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		if sw != nil && sw.wrote {
			// Headers are on the wire; all that is left is to stop.
			logChatEnd(r, 0, time.Since(start), err, lvl)
			return
		}
		status := writeWireError(w, err)
		if manager.IsBusy(err) {
			IncrementBackpressure("slot_busy")
		}
		logChatEnd(r, status, time.Since(start), err, lvl)
	case req.Stream:
		logChatEnd(r, http.StatusOK, time.Since(start), nil, lvl)
	default:
		writeJSON(w, http.StatusOK, resp)
		logChatEnd(r, http.StatusOK, time.Since(start), nil, lvl)
	}
}

// historyEntry is the wire form of one ledger record.
type historyEntry struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Created    int64  `json:"created"`
	Streamed   bool   `json:"streamed"`
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Finish     string `json:"finish"`
	DurationMS int64  `json:"duration_ms"`
}

// handleHistory lists recent completions from the ledger, newest first.
// With no ledger configured the list is empty.
func handleHistory(svc Service, w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeErrorEnvelope(w, http.StatusBadRequest, "invalid_request_error", "invalid_limit",
				"limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}
	recs, err := svc.History(limit)
	if err != nil {
		writeErrorEnvelope(w, http.StatusInternalServerError, "internal_error", "store_error",
			"failed to read completion history")
		return
	}
	out := make([]historyEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyEntry{
			ID:         rec.ID,
			Model:      rec.Model,
			Created:    rec.Created.Unix(),
			Streamed:   rec.Streamed,
			Prompt:     rec.Prompt,
			Completion: rec.Completion,
			Finish:     rec.Finish,
			DurationMS: rec.Duration.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"completions": out})
}

// sseWriter adapts an http.ResponseWriter into the pipeline's chunk
// sink. Headers are written lazily on the first chunk so an error
// before any output can still pick its own status code.
type sseWriter struct {
	w     http.ResponseWriter
	flush func()
	lvl   LogLevel
	wrote bool
}

func newSSEWriter(w http.ResponseWriter, lvl LogLevel) *sseWriter {
	sw := &sseWriter{w: w, lvl: lvl}
	if f, ok := w.(http.Flusher); ok {
		sw.flush = f.Flush
	}
	return sw
}

func (s *sseWriter) WriteChunk(resp *types.ChatCompletionsResponse) error {
	if !s.wrote {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.WriteHeader(http.StatusOK)
		s.wrote = true
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if s.lvl >= LevelDebug {
		logChunk(b)
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing sensible left to do.
		return
	}
}
