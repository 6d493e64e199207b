package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

type config struct {
	Port          int           `env:"PORT" envDefault:"8081"`
	WebhookURL    string        `env:"WEBHOOK_URL" envDefault:"http://api:8080/api/v1/webhooks/provider"`
	WebhookSecret string        `env:"WEBHOOK_SECRET,required"`
	APIKey        string        `env:"PROVIDER_API_KEY"`
	SettleAfter   time.Duration `env:"SETTLE_AFTER" envDefault:"3s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv        string        `env:"APP_ENV" envDefault:"development"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := newWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, logger)
	p := newProvider(notifier, cfg.SettleAfter)
	go p.settleLoop(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.routes(cfg.APIKey),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("mock provider started", "addr", addr, "webhook_url", cfg.WebhookURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
}
