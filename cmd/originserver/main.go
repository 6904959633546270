// Command originserver runs the HTTP server a resource owner puts in
// front of paid content: every configured resource is wrapped in the
// payment middleware (C8), which demands and verifies an X-PAYMENT header
// before the request reaches its handler.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CedrosPay/server/internal/bootstrap"
	"github.com/CedrosPay/server/internal/config"
	"github.com/CedrosPay/server/internal/lifecycle"
	"github.com/CedrosPay/server/internal/logger"
	"github.com/CedrosPay/server/internal/money"
	"github.com/CedrosPay/server/internal/paymentmw"
	"github.com/CedrosPay/server/internal/requirements"
	"github.com/CedrosPay/server/pkg/responders"
	"github.com/CedrosPay/server/pkg/x402"
)

func main() {
	cfgPath := flag.String("config", "configs/local.yaml", "path to the origin server's config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("load config:", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, "originserver")
	if err != nil {
		fmt.Println("bootstrap:", err)
		return
	}

	lm := lifecycle.NewManager()
	lm.RegisterFunc("runtime", func() error { rt.Close(); return nil })
	defer lm.Close()

	gen := requirements.New(cfg.Ledger.Network, 0)

	router := chi.NewRouter()
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}).Handler)
	}
	router.Use(logger.Middleware(rt.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(10 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	for path, resource := range cfg.Resources {
		router.With(paymentMiddleware(resource, gen, rt)).Get(path, serveResource(resource))
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}
	lm.Register("http-server", serverCloser{server})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	rt.Logger.Info().Str("address", cfg.Server.Address).Int("resources", len(cfg.Resources)).Msg("originserver.starting")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		rt.Logger.Error().Err(err).Msg("originserver.listen_failed")
	}
}

// paymentMiddleware builds a per-resource payment requirement and wires
// the payment middleware (C8) to the exact/channel verifiers bootstrap
// already built.
func paymentMiddleware(resource config.Resource, gen *requirements.Generator, rt *bootstrap.Runtime) func(http.Handler) http.Handler {
	// rt.Channel is a typed *solana.ChannelVerifier, nil when the channel
	// scheme is disabled; assigning it directly into the Verifier interface
	// field would produce a non-nil interface wrapping a nil pointer, so it
	// is only assigned when genuinely present.
	var channelVerifier paymentmw.Verifier
	if rt.Channel != nil {
		channelVerifier = rt.Channel
	}
	return paymentmw.Middleware(paymentmw.Config{
		Network: rt.Config.Ledger.Network,
		Exact:   rt.Exact,
		Channel: channelVerifier,
		Requirements: func(r *http.Request) (x402.PaymentRequirementsDocument, error) {
			asset, err := money.GetAsset(resource.Asset)
			if err != nil {
				return x402.PaymentRequirementsDocument{}, err
			}
			priced := requirements.PricedResource{
				Resource:          resource.ResourceID,
				PriceUSD:          money.New(asset, resource.AtomicAmount).ToMajor(),
				AssetCode:         resource.Asset,
				PayToOwner:        resource.PayToOwner,
				MaxTimeoutSeconds: resource.MaxTimeoutSec,
				Description:       resource.Description,
			}
			requirement, err := gen.Generate(priced)
			if err != nil {
				return x402.PaymentRequirementsDocument{}, err
			}
			return x402.PaymentRequirementsDocument{
				ProtocolVersion: x402.ProtocolVersion,
				Accepts:         []x402.PaymentRequirement{requirement},
			}, nil
		},
	})
}

// serveResource is a placeholder handler: once the middleware admits the
// request, it reports the payment info it verified. Real deployments
// replace this with the protected handler for the resource in question.
func serveResource(resource config.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, _ := paymentmw.FromContext(r.Context())
		responders.JSON(w, http.StatusOK, struct {
			Resource string `json:"resource"`
			Payer    string `json:"payer"`
			Amount   int64  `json:"amount"`
		}{Resource: resource.ResourceID, Payer: info.Payer, Amount: info.Amount})
	}
}

type serverCloser struct {
	server *http.Server
}

func (s serverCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
