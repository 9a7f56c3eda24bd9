// Package server binds an infergate Gateway to HTTP using chi.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ineyio/infergate"
)

// maxBodyBytes bounds generate request bodies.
const maxBodyBytes = 1 << 20

// Service is the gateway surface the HTTP layer binds to.
type Service interface {
	Generate(ctx context.Context, req infergate.GenerateRequest) (infergate.GenerateResponse, error)
	Job(ctx context.Context, id string) (infergate.JobRecord, error)
	AdminMetrics(ctx context.Context) (infergate.AdminMetrics, error)
}

var _ Service = (*infergate.Gateway)(nil)

// Server serves the generation, job and admin endpoints.
type Server struct {
	svc      Service
	resolver IdentityResolver
	logger   *zap.Logger
	metrics  http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a Server.
func New(svc Service, resolver IdentityResolver, opts ...Option) *Server {
	s := &Server{svc: svc, resolver: resolver}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	// Health and metrics (no identity)
	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)

		r.Post("/ia/generate", s.generate)
		r.Get("/jobs/{id}", s.job)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/metrics", s.adminMetrics)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateBody struct {
	Prompt    string         `json:"prompt"`
	ModelTier string         `json:"modelTier"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	id, _ := IdentityFrom(r.Context())
	async, _ := body.Metadata["async"].(bool)

	resp, err := s.svc.Generate(r.Context(), infergate.GenerateRequest{
		Identity:  id,
		Prompt:    body.Prompt,
		Tier:      infergate.Tier(body.ModelTier),
		Async:     async,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Metadata:  body.Metadata,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("x-quota-limit", strconv.FormatInt(resp.Quota.Limit, 10))
	w.Header().Set("x-quota-used", strconv.FormatInt(resp.Quota.Used, 10))

	if resp.Pending() {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"jobId":  resp.JobID,
			"status": resp.Status,
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) adminMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.AdminMetrics(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// identify resolves the caller once per request.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.resolver.Resolve(r.Header)
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.Privileged() {
			writeError(w, http.StatusUnauthorized, "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var admission *infergate.AdmissionError
	if errors.As(err, &admission) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             "daily quota exceeded",
			"upgradeSuggestion": admission.UpgradeHint,
			"used":              admission.Used,
			"limit":             admission.Limit,
		})
		return
	}

	var risk *infergate.RiskError
	if errors.As(err, &risk) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":           "additional verification required",
			"reasons":         risk.Reasons,
			"verificationUrl": risk.VerificationURL,
		})
		return
	}

	code := infergate.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, code, http.StatusText(code))
		return
	}
	writeError(w, code, err.Error())
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
