package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pegcore/native/ledger"
	"pegcore/native/queue"
	"pegcore/observability"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
	defaultListLimit    = 50
	maxListLimit        = 500
)

// Backend is the read side of the protocol.
type Backend interface {
	View(fn func(l *ledger.Ledger, q *queue.Queue) error) error
	Height() uint64
}

// Config tunes the HTTP server.
type Config struct {
	RateLimitPerSecond float64
	Burst              int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
}

// Server exposes read-only protocol state over HTTP.
type Server struct {
	backend Backend
	history HistoryReader
	cfg     Config
	logger  *slog.Logger
	router  http.Handler
}

// New constructs the server. history may be nil, in which case the history
// routes answer 404.
func New(backend Backend, history HistoryReader, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	s := &Server{backend: backend, history: history, cfg: cfg, logger: logger}
	s.router = s.routes(newRateLimiter(cfg.RateLimitPerSecond, cfg.Burst))
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(limiter *rateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(limiter.middleware)
		v1.Get("/protocol", s.handleProtocol)
		v1.Get("/pegged", s.handlePeggedList)
		v1.Get("/pegged/{tp}", s.handlePegged)
		v1.Get("/queue", s.handleQueue)
		v1.Get("/operations/{id}", s.handleOperation)
		v1.Route("/history", func(h chi.Router) {
			h.Get("/operations", s.handleHistoryBySender)
			h.Get("/operations/{id}", s.handleHistoryOperation)
			h.Get("/batches", s.handleHistoryBatches)
		})
	})
	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.ModuleMetrics().Observe("rpc", route, status, time.Since(start))
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", "route", route, "status", status, "requestId", chimw.GetReqID(r.Context()))
		}
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func parseUint(r *http.Request, key string, bits int) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, key), 10, bits)
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
