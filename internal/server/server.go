package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkdust2021/promptveil/internal/config"
	"github.com/inkdust2021/promptveil/internal/detect"
	"github.com/inkdust2021/promptveil/internal/engine"
	"github.com/inkdust2021/promptveil/internal/metrics"
	"github.com/inkdust2021/promptveil/internal/store"
)

// Completer is the upstream model client surface the server needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, placeholders []string, lang string) (string, error)
}

// Server wires the detection pipeline, the engine, and the upstream model
// behind the HTTP API. Redaction state never outlives a request: each call
// builds its own mapping inside engine.Redact and hands it back to the
// client, so concurrent requests share nothing mutable but the pipeline
// pointer (swapped atomically on config reload).
type Server struct {
	cfg     config.Config
	llm     Completer
	store   *store.Store // optional; enables auth and audit
	metrics *metrics.Metrics

	mu       sync.RWMutex
	pipeline *detect.Pipeline
}

// New creates a Server. st may be nil when neither auth nor audit is wanted.
func New(cfg config.Config, pipeline *detect.Pipeline, llm Completer, st *store.Store, m *metrics.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		llm:      llm,
		store:    st,
		metrics:  m,
		pipeline: pipeline,
	}
}

// UpdatePipeline swaps the detection pipeline (config hot reload).
func (s *Server) UpdatePipeline(p *detect.Pipeline) {
	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()
}

func (s *Server) currentPipeline() *detect.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/process", s.withAuth(s.handleProcess))
	mux.HandleFunc("/redact", s.withAuth(s.handleRedact))
	mux.HandleFunc("/restore", s.withAuth(s.handleRestore))
	mux.Handle("/metrics", s.metrics.Handler())
	return s.withObservability(mux)
}

type processRequest struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
}

type processResponse struct {
	Response          string                `json:"response"`
	LLMRaw            string                `json:"llm_raw"`
	LLMAfterRecontext string                `json:"llm_after_recontext"`
	AnonymizedPrompt  string                `json:"anonymized_prompt"`
	Mapping           []engine.MappingEntry `json:"mapping"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Use POST method")
		return
	}
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	started := time.Now()
	ctx := r.Context()

	spans := s.currentPipeline().Detect(ctx, req.Prompt)
	res, err := engine.Redact(req.Prompt, spans)
	if err != nil {
		// 检测适配层产出越界 span 属于契约违规；整次请求失败，绝不部分替换。
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	placeholders := make([]string, 0, len(res.Mapping))
	for _, e := range res.Mapping {
		placeholders = append(placeholders, e.Placeholder)
		s.metrics.AddRedacted(string(e.Type), 1)
	}

	raw, err := s.llm.Complete(ctx, res.RedactedText, placeholders, req.Language)
	if err != nil {
		slog.Error("Upstream LLM call failed", "error", err)
		writeError(w, http.StatusBadGateway, "upstream model request failed")
		return
	}

	afterRecontext := engine.RestoreKnown(raw, res.Mapping)
	final, stats := engine.ReconstructWithStats(raw, res.Mapping)
	s.metrics.AddReconstructed(stats.Restored, stats.Stripped)

	s.audit(ctx, "/process", len(res.Mapping), time.Since(started))

	writeJSON(w, http.StatusOK, processResponse{
		Response:          final,
		LLMRaw:            raw,
		LLMAfterRecontext: afterRecontext,
		AnonymizedPrompt:  res.RedactedText,
		Mapping:           res.Mapping,
	})
}

type redactRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Use POST method")
		return
	}
	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	started := time.Now()
	spans := s.currentPipeline().Detect(r.Context(), req.Text)
	res, err := engine.Redact(req.Text, spans)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, e := range res.Mapping {
		s.metrics.AddRedacted(string(e.Type), 1)
	}
	s.audit(r.Context(), "/redact", len(res.Mapping), time.Since(started))
	writeJSON(w, http.StatusOK, res)
}

type restoreRequest struct {
	Text    string                `json:"text"`
	Mapping []engine.MappingEntry `json:"mapping"`
}

type restoreResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Use POST method")
		return
	}
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, stats := engine.ReconstructWithStats(req.Text, req.Mapping)
	s.metrics.AddReconstructed(stats.Restored, stats.Stripped)
	writeJSON(w, http.StatusOK, restoreResponse{Text: out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/healthz" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// withAuth enforces HTTP basic auth against the user store when enabled.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if !s.cfg.Server.AuthEnabled || s.store == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="promptveil"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, err := s.store.Authenticate(r.Context(), username, password); err != nil {
			if !errors.Is(err, store.ErrInvalidCredentials) {
				slog.Error("Auth lookup failed", "error", err)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="promptveil"`)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next(w, r)
	}
}

// withObservability assigns a request ID, logs the request, and records
// metrics.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()

		next.ServeHTTP(rec, r)

		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.URL.Path, strconv.Itoa(rec.status), elapsed)
		slog.Info("Request handled",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func (s *Server) audit(ctx context.Context, route string, entities int, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	err := s.store.AppendAudit(ctx, store.AuditRecord{
		RequestID: requestIDFromContext(ctx),
		Route:     route,
		Entities:  entities,
		Duration:  elapsed,
	})
	if err != nil {
		slog.Warn("Failed to append audit record", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
