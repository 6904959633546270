package facilitator

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/server/internal/logger"
	"github.com/CedrosPay/server/internal/ratelimit"
	"github.com/CedrosPay/server/internal/versioning"
)

// Server is the standalone facilitator HTTP service.
type Server struct {
	httpServer *http.Server
}

// Config wires a facilitator Server together.
type Config struct {
	Address      string
	CORSOrigins  []string
	RateLimit    ratelimit.Config
	Handlers     *Handlers
	Logger       zerolog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New builds the facilitator's router and server.
func New(cfg Config) *Server {
	router := chi.NewRouter()
	ConfigureRouter(router, cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Address,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			Handler:      router,
		},
	}
}

// ConfigureRouter attaches the facilitator's three endpoints to an
// existing chi router.
func ConfigureRouter(router chi.Router, cfg Config) {
	if router == nil || cfg.Handlers == nil {
		return
	}

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}).Handler)
	}

	router.Use(logger.Middleware(cfg.Logger))
	router.Use(versioning.Negotiation)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(10 * time.Second))

	router.Use(ratelimit.GlobalLimiter(cfg.RateLimit))
	router.Use(ratelimit.PayerLimiter(cfg.RateLimit))
	router.Use(ratelimit.IPLimiter(cfg.RateLimit))

	router.Get("/supported", cfg.Handlers.Supported)
	router.Post("/verify", cfg.Handlers.Verify)
	router.Post("/settle", cfg.Handlers.Settle)
	router.Get("/healthz", health)
	router.Handle("/metrics", promhttp.Handler())
}

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe starts the facilitator's HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the facilitator's HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
