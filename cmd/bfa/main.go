package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/upsell-checkout-bfa/internal/checkout"
	"github.com/boddenberg/upsell-checkout-bfa/internal/config"
	"github.com/boddenberg/upsell-checkout-bfa/internal/countdown"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/handler"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/cache"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/client"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/resilience"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/storage"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
	"github.com/boddenberg/upsell-checkout-bfa/internal/service"
	"github.com/boddenberg/upsell-checkout-bfa/internal/tracking"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("gateway_url", cfg.GatewayURL),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Duration("offer_countdown", cfg.OfferCountdown),
		zap.Duration("pix_countdown", cfg.PixCountdown),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Bool("debug_tracking", cfg.DebugTracking),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "upsell-checkout-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	gatewayCB := resilience.NewCircuitBreaker("payment-gateway", client.IsGatewaySuccess)
	lookupCB := resilience.NewCircuitBreaker("cpf-lookup", nil)
	analyticsCB := resilience.NewCircuitBreaker("analytics", nil)

	// --- Storage ---
	var store port.KeyValueStore
	var probes []handler.Probe

	switch cfg.StorageBackend {
	case "redis":
		var rdb *redis.Client
		err := resilience.RetryWithBackoff(context.Background(), resilienceCfg, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c, err := storage.NewRedisClient(ctx, cfg.RedisURL)
			if errors.Is(err, storage.ErrInvalidURL) {
				return resilience.Permanent(err)
			}
			if err != nil {
				logger.Warn("redis not ready, retrying", zap.Error(err))
				return err
			}
			rdb = c
			return nil
		})
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		redisStore := storage.NewRedisStore(rdb, cfg.SessionTTL)
		store = redisStore
		probes = append(probes, handler.Probe{Name: "redis", Check: redisStore.Ping})
		logger.Info("using Redis as session storage")
	default:
		store = storage.NewMemoryStore()
		logger.Info("using in-memory session storage")
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	reachCache := cache.New[bool](cfg.ReachabilityTTL)
	defer reachCache.Close()
	probe, err := client.NewDialProbe(cfg.GatewayURL, 2*time.Second, reachCache)
	if err != nil {
		logger.Fatal("invalid gateway url", zap.Error(err))
	}
	probe.WithMetrics(metrics)
	probes = append(probes, handler.Probe{Name: "payment-gateway", Check: func(ctx context.Context) error {
		if !probe.Online(ctx) {
			return fmt.Errorf("gateway unreachable")
		}
		return nil
	}})

	lookupClient := client.NewCPFLookupClient(httpClient, cfg.CPFLookupURL, lookupCB)
	gatewayClient := client.NewGatewayClient(httpClient, cfg.GatewayURL, cfg.GatewaySecret, gatewayCB, probe, logger)

	var sinks []port.AnalyticsSink
	if cfg.AnalyticsSinkURL != "" {
		sinks = append(sinks, client.NewHTTPAnalyticsSink(httpClient, cfg.AnalyticsSinkURL, analyticsCB))
		logger.Info("analytics sink enabled", zap.String("url", cfg.AnalyticsSinkURL))
	}

	// --- Services ---
	tracker := tracking.NewTracker(sinks, resilience.NewBulkhead(cfg.MaxConcurrency), metrics, logger)
	checkoutSvc := service.NewCheckoutService(lookupClient, gatewayClient, metrics, logger)
	trackingSvc := service.NewTrackingService(store, tracker, service.WhatsAppConfig{
		Number:  cfg.WhatsAppNumber,
		Message: cfg.WhatsAppMessage,
	}, logger)
	tokens := service.NewSessionTokens(cfg.SessionSecret, cfg.SessionTTL)

	// --- Countdowns & sessions ---
	scheduler, err := countdown.NewScheduler(cfg.CountdownTick, metrics, logger)
	if err != nil {
		logger.Fatal("failed to start countdown scheduler", zap.Error(err))
	}

	offer := domain.Offer{
		Title:            cfg.OfferTitle,
		AmountMinorUnits: cfg.OfferAmountCents,
		Countdown:        cfg.OfferCountdown,
		PixCountdown:     cfg.PixCountdown,
	}
	sessions := checkout.NewSessions(cfg.SessionTTL, checkout.Deps{
		Offer:       offer,
		Identities:  checkoutSvc,
		Payments:    checkoutSvc,
		Events:      trackingSvc,
		Attribution: trackingSvc,
		Scheduler:   scheduler,
		Logger:      logger,
	})

	// --- Router ---
	router := handler.NewRouter(handler.Options{
		Checkout:       checkoutSvc,
		Tracking:       trackingSvc,
		Tokens:         tokens,
		Sessions:       sessions,
		Offer:          offer,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		DebugTracking:  cfg.DebugTracking,
		Probes:         probes,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	sessions.Shutdown()
	if err := scheduler.Shutdown(); err != nil {
		logger.Warn("countdown scheduler shutdown", zap.Error(err))
	}
	tracker.Wait()

	logger.Info("server stopped")
}
