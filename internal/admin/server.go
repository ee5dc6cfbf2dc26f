// Package admin serves a read-mostly HTTP API over a running host:
// loaded plugins, services, the event dispatch table and Prometheus
// metrics.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/plugin"
	"github.com/dshills/hostkit/internal/service"
)

// Host is the part of the runtime the API reads. *host.Runtime satisfies it.
type Host interface {
	Manager() *plugin.Manager
	Services() *service.Registry
	Bus() *event.Bus
	Catalog() *event.Catalog
	Metrics() prometheus.Gatherer
	Reload(ctx context.Context) (*plugin.Report, error)
}

// ShutdownTimeout bounds graceful shutdown of the listener.
const ShutdownTimeout = 5 * time.Second

// Server is the admin HTTP server.
type Server struct {
	host   Host
	logger zerolog.Logger
	cors   []string
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l.With().Str("component", "admin").Logger()
	}
}

// WithCORSOrigins allows browser requests from origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.cors = origins
	}
}

// New builds the server and its routes.
func New(h Host, opts ...Option) *Server {
	s := &Server{host: h, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	if len(s.cors) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cors,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/plugins", func(r chi.Router) {
		r.Get("/", s.listPlugins)
		r.Post("/reload", s.reload)
		r.Get("/{id}", s.getPlugin)
	})
	r.Get("/services", s.listServices)
	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.listEvents)
		r.Get("/recent", s.recentEvents)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.host.Metrics(), promhttp.HandlerOpts{}))
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin API listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
