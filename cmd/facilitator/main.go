// Command facilitator runs the standalone facilitator service (C9):
// resource servers that don't want to talk to the ledger themselves
// delegate /verify and /settle to this process instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/CedrosPay/server/internal/bootstrap"
	"github.com/CedrosPay/server/internal/config"
	"github.com/CedrosPay/server/internal/facilitator"
	"github.com/CedrosPay/server/internal/lifecycle"
	"github.com/CedrosPay/server/internal/ratelimit"
)

func main() {
	cfgPath := flag.String("config", "configs/local.yaml", "path to the facilitator's config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("load config:", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, "facilitator")
	if err != nil {
		fmt.Println("bootstrap:", err)
		return
	}

	lm := lifecycle.NewManager()
	lm.RegisterFunc("runtime", func() error { rt.Close(); return nil })
	defer lm.Close()

	handlers := &facilitator.Handlers{
		Exact:   rt.Exact,
		Metrics: rt.Metrics,
		Supported: []facilitator.SupportedKind{
			{Scheme: "exact", Network: cfg.Ledger.Network},
		},
	}
	// rt.Channel is a typed *solana.ChannelVerifier, nil when the channel
	// scheme is disabled; only assigned when non-nil to avoid a non-nil
	// Verifier interface wrapping a nil pointer (see Handlers.verifierFor).
	if rt.Channel != nil {
		handlers.Channel = rt.Channel
		handlers.Supported = append(handlers.Supported, facilitator.SupportedKind{Scheme: "channel", Network: cfg.Ledger.Network})
	}
	if rt.Receipts != nil {
		handlers.Receipts = rt.Receipts
	}

	server := facilitator.New(facilitator.Config{
		Address:     cfg.Facilitator.Address,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimit: ratelimit.Config{
			GlobalEnabled:   cfg.RateLimit.GlobalEnabled,
			GlobalLimit:     cfg.RateLimit.GlobalLimit,
			GlobalWindow:    cfg.RateLimit.GlobalWindow.Duration,
			PerPayerEnabled: cfg.RateLimit.PerPayerEnabled,
			PerPayerLimit:   cfg.RateLimit.PerPayerLimit,
			PerPayerWindow:  cfg.RateLimit.PerPayerWindow.Duration,
			PerIPEnabled:    cfg.RateLimit.PerIPEnabled,
			PerIPLimit:      cfg.RateLimit.PerIPLimit,
			PerIPWindow:     cfg.RateLimit.PerIPWindow.Duration,
			Metrics:         rt.Metrics,
		},
		Handlers:     handlers,
		Logger:       rt.Logger,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	})
	lm.Register("http-server", facilitatorCloser{server})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	rt.Logger.Info().Str("address", cfg.Facilitator.Address).Msg("facilitator.starting")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		rt.Logger.Error().Err(err).Msg("facilitator.listen_failed")
	}
}

type facilitatorCloser struct {
	server *facilitator.Server
}

func (f facilitatorCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.server.Shutdown(ctx)
}
