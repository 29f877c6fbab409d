// Package server exposes the matcher over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sketchmapper/sketchmapper/internal/model"
	"github.com/sketchmapper/sketchmapper/internal/resilience"
)

const maxBodyBytes = 1 << 20

// Matcher ranks reference locations for a sketch.
type Matcher interface {
	Match(ctx context.Context, shapes []model.Shape) ([]model.Match, error)
}

// Pinger reports reference store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CircuitReporter exposes the store circuit breaker state.
type CircuitReporter interface {
	Circuit() resilience.Snapshot
}

// Config configures the HTTP server.
type Config struct {
	Port        int
	AccessToken string
	RateLimit   float64 // requests per second; 0 disables limiting
	RateBurst   int
	CORSOrigins []string
	Circuit     CircuitReporter // optional; reported by /health
}

type health struct {
	Status  string               `json:"status"`
	Circuit *resilience.Snapshot `json:"circuit,omitempty"`
}

// Server serves POST /sketchmapper and GET /health.
type Server struct {
	cfg     Config
	matcher Matcher
	pinger  Pinger
	limiter *rate.Limiter
}

// New creates a server. pinger may be nil, in which case /health only reports liveness.
func New(m Matcher, pinger Pinger, cfg Config) *Server {
	s := &Server{cfg: cfg, matcher: m, pinger: pinger}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Use(s.rateLimit)
		r.Post("/sketchmapper", s.handleMatch)
	})
	return r
}

// Run listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An unset token rejects every request.
		got := r.URL.Query().Get("access_token")
		if s.cfg.AccessToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AccessToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok"}
	if s.cfg.Circuit != nil {
		snap := s.cfg.Circuit.Circuit()
		h.Circuit = &snap
	}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			zap.L().Warn("server: health check failed", zap.Error(err))
			h.Status = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, h)
			return
		}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	log := zap.L().With(zap.String("request_id", uuid.NewString()))

	var shapes []model.Shape
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&shapes); err != nil {
		log.Debug("server: bad request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "request body must be a JSON array of shapes")
		return
	}

	matches, err := s.matcher.Match(r.Context(), shapes)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("server: match failed", zap.Int("status", status), zap.Error(err))
		}
		writeError(w, status, eris.Cause(err).Error())
		return
	}

	if matches == nil {
		matches = []model.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// statusFor maps matcher errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case model.IsValidation(err):
		return http.StatusBadRequest
	case eris.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
