package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/infra/logging"
	"analysis-tracker/internal/infra/metrics"
	red "analysis-tracker/internal/infra/redis"
	"analysis-tracker/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the submission projection to the presentation layer over
// JSON. It holds no tracking logic of its own; every route delegates to the
// submission use case.
type Server struct {
	subUC     usecase.SubmissionUseCase
	limiter   *red.RateLimiter
	rateLimit int // requests per minute per caller, 0 disables
	log       *zerolog.Logger
	server    *http.Server
}

func NewServer(subUC usecase.SubmissionUseCase, limiter *red.RateLimiter, rateLimit int, logger *zerolog.Logger) *Server {
	return &Server{subUC: subUC, limiter: limiter, rateLimit: rateLimit, log: logger}
}

// Routes builds the router; split from Start so handler tests can drive it
// through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.traceID, s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.rateLimited).Post("/submissions", s.handleSubmit)
		r.Post("/submissions/cancel", s.handleCancel)
		r.Get("/state", s.handleState)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Delete("/history/{id}", s.handleRemoveHistory)
	})
	return r
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Routes(),
	}
	s.log.Info().Int("port", port).Msg("web facade listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type submitRequest struct {
	Input       string `json:"input"`
	Instruction string `json:"instruction,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	err := s.subUC.Submit(r.Context(), req.Input, req.Instruction)
	switch {
	case err == nil:
		s.writeJSON(w, r, http.StatusAccepted, s.subUC.View())
	case errors.Is(err, domain.ErrNotSignedIn):
		// Deferred, not failed: the view carries the redirect target.
		s.writeJSON(w, r, http.StatusOK, s.subUC.View())
	case errors.Is(err, domain.ErrCooldownActive), errors.Is(err, domain.ErrSubmissionInFlight):
		s.writeError(w, r, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRedirectFailed):
		s.writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.subUC.Cancel()
	s.writeJSON(w, r, http.StatusOK, s.subUC.View())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.subUC.View())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.subUC.History().Items())
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.subUC.History().Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
	metrics.IncHTTPRequest(r.URL.Path, http.StatusNoContent)
}

func (s *Server) handleRemoveHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing id")
		return
	}
	s.subUC.History().RemoveByID(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
	metrics.IncHTTPRequest(r.URL.Path, http.StatusNoContent)
}

// ---- middleware ----

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		start := time.Now()
		next.ServeHTTP(w, r)
		l.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).Msg("request")
	})
}

// rateLimited applies the per-caller fixed-window limit to the submission
// endpoint. The window is deliberately coarse; the orchestrator's own
// cooldown is the real duplicate gate.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.rateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		caller, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			caller = r.RemoteAddr
		}
		ok, err := s.limiter.Allow(r.Context(), red.CallerKey(caller, "submit"), s.rateLimit, time.Minute)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate limit check failed, allowing request")
			ok = true
		}
		if !ok {
			s.writeError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---- helpers ----

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
	metrics.IncHTTPRequest(r.URL.Path, code)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	s.writeJSON(w, r, code, map[string]string{"error": msg})
}
