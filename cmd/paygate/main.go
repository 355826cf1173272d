package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"paygate/internal/common/api"
	"paygate/internal/common/cache"
	"paygate/internal/common/httpx"
	"paygate/internal/common/middleware"
	"paygate/internal/common/nats"
	"paygate/internal/payments"
	paymentsapi "paygate/internal/payments/api"
	"paygate/internal/providers/airtel"
	"paygate/internal/providers/cards"
	"paygate/internal/providers/mpesa"
	"paygate/internal/providers/paypal"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PAYGATE_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	PollCeiling    time.Duration `envconfig:"POLL_CEILING" default:"120s"`

	IdempotencyEnabled bool `envconfig:"IDEMPOTENCY_ENABLED" default:"false"`

	Gateway httpx.Config
	Redis   cache.Config
	NATS    nats.Config
	Mpesa   mpesa.Config
	Airtel  airtel.Config
	Card    cards.Config
	PayPal  paypal.Config
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	development := cfg.Environment == "development"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Lifecycle events via NATS; optional, on NATS_URL.
	var publisher payments.EventPublisher
	var natsClient *nats.Client
	if cfg.NATS.URL != "" {
		client, err := nats.New(cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		natsClient = client
		defer natsClient.Close()
		publisher = nats.NewPublisher(natsClient, logger)
	}

	store := payments.NewStore()
	poller := payments.NewPoller(cfg.PollInterval, cfg.PollCeiling, logger)
	service := payments.NewService(store, poller, publisher, logger)

	// One outbound client per gateway so a failing provider trips only
	// its own breaker.
	service.RegisterMobile(mpesa.New(cfg.Mpesa, httpx.New("mpesa", cfg.Gateway), logger))
	service.RegisterMobile(airtel.New(cfg.Airtel, httpx.New("airtel", cfg.Gateway), logger))
	service.SetCardProcessor(cards.New(cfg.Card, logger))
	service.SetWalletProvider(paypal.New(cfg.PayPal, httpx.New("paypal", cfg.Gateway), logger))

	handler := paymentsapi.NewHandler(service, development)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	if cfg.IdempotencyEnabled {
		redisStore, err := cache.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		r.Use(middleware.Idempotency(redisStore, cfg.Redis.KeyTTL))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if natsClient != nil {
			if err := natsClient.HealthCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Mount("/", handler.Routes())
	})

	r.NotFound(api.NotFoundHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting payment gateway",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Outstanding confirmation loops are cancelled, not drained.
	service.Close()

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
