// Package server exposes the dispatcher over a single JSON POST endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"toolcall/internal/dispatch"
	"toolcall/internal/protocol"
)

const (
	defaultMaxBodyBytes = 1 << 20
	shutdownTimeout     = 5 * time.Second
	requestIDHeader     = "X-Request-ID"
)

type Config struct {
	Host         string
	Port         int
	Path         string // protocol endpoint, default /mcp
	APIKey       string // optional bearer token for the protocol endpoint
	MaxBodyBytes int64
	MetricsPath  string       // empty disables the metrics endpoint
	Metrics      http.Handler // rendered at MetricsPath
	Dispatcher   *dispatch.Dispatcher
	Logger       *slog.Logger

	// RateLimitPerMinute > 0 enables a token bucket on the protocol endpoint.
	RateLimitPerMinute float64
	RateLimitBurst     int
}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	server  *http.Server
	limiter *rateLimiter
}

func New(cfg Config) *Server {
	if cfg.Path == "" {
		cfg.Path = "/mcp"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitPerMinute)
	}
	return s
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.cfg.Path, s.requireAuth(s.rateLimit(s.handleEnvelope)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.cfg.MetricsPath != "" && s.cfg.Metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics)
	}
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("protocol endpoint listening", "addr", ln.Addr().String(), "path", s.cfg.Path)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down protocol endpoint")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleEnvelope(rw http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(rw, r.Body, s.cfg.MaxBodyBytes)

	req, err := protocol.Decode(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(rw, http.StatusRequestEntityTooLarge, protocol.ErrorResponse("Request body too large."))
			return
		}
		s.logger.Debug("malformed envelope", "err", err)
		resp, code := protocol.FromError(err)
		writeJSON(rw, code, resp)
		return
	}

	reply := s.cfg.Dispatcher.Dispatch(r.Context(), req)
	if reply.RequestID != "" {
		rw.Header().Set(requestIDHeader, reply.RequestID)
	}
	writeJSON(rw, reply.Code, reply.Response)
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":       "ok",
		"tools":        len(s.cfg.Dispatcher.ListTools()),
		"context_keys": len(s.cfg.Dispatcher.Context()),
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next(rw, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIKey)) != 1 {
			writeJSON(rw, http.StatusUnauthorized, protocol.ErrorResponse("Invalid API key."))
			return
		}
		next(rw, r)
	}
}

func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			rw.Header().Set("Retry-After", "1")
			writeJSON(rw, http.StatusTooManyRequests, protocol.ErrorResponse("Too many requests."))
			return
		}
		next(rw, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", rec.Header().Get(requestIDHeader),
		)
	})
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(v)
}
