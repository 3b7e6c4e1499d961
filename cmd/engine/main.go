// Command engine is the process entry point for the payment orchestration
// and yield accrual engine: it loads configuration, wires storage, the
// strategy adapter registry, resilience settings, the command/query
// service, every background lifecycle loop, and the HTTP transport, then
// runs until signaled to stop.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yieldrails/engine/internal/api/httpapi"
	"github.com/yieldrails/engine/internal/chainclient"
	"github.com/yieldrails/engine/internal/compliance"
	"github.com/yieldrails/engine/internal/config"
	"github.com/yieldrails/engine/internal/core/service"
	"github.com/yieldrails/engine/internal/engine/abandonment"
	"github.com/yieldrails/engine/internal/engine/adapter"
	"github.com/yieldrails/engine/internal/engine/bridge"
	"github.com/yieldrails/engine/internal/engine/health"
	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/engine/settlement"
	"github.com/yieldrails/engine/internal/engine/yield"
	"github.com/yieldrails/engine/internal/logger"
	"github.com/yieldrails/engine/internal/metrics"
	"github.com/yieldrails/engine/internal/resilience"
	"github.com/yieldrails/engine/internal/storage"
	"github.com/yieldrails/engine/internal/storage/memory"
	"github.com/yieldrails/engine/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.WithField("env", cfg.Env).Info("starting engine")

	store, closeStore := mustStore(cfg, log)
	defer closeStore()

	registry := adapter.NewRegistry()
	cbCfg, retryCfg := defaultAdapterResilience(cfg, log)
	log.WithField("resilience_tier", cfg.StrategyResilienceTier).WithField("failure_threshold", cbCfg.MaxFailures).
		WithField("max_retries", retryCfg.MaxAttempts).
		Info("strategy adapter resilience defaults computed; register adapters via registry.Register before Start")
	// Strategy adapters are supplied by deployment-specific integration
	// code; each is registered with registry.Register(adapter, cbCfg,
	// retryCfg, log) before Start. None are wired by default.

	m := metrics.New(prometheus.DefaultRegisterer)

	svc := paymentsvc.New(store, registry, chainclient.Noop{}, chainclient.Noop{}, compliance.AllowAll{}, cfg, log)
	svc.SetMetrics(m)

	loops := []service.Lifecycle{
		yield.New(svc, cfg.SnapshotInterval, log),
		health.New(svc, cfg.HealthInterval, log),
		bridge.New(svc, cfg.AttestationPollInterval, log),
		abandonment.New(svc, cfg.AbandonmentHorizon/24, log),
		settlement.New(svc, defaultConfirmer, 15*time.Second, log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, l := range loops {
		if err := l.Start(ctx); err != nil {
			log.WithField("loop", l.Name()).WithField("error", err).Error("failed to start background loop")
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.New(svc, log))
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Error("http server exited")
		}
	}()

	waitForShutdown(log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
	for _, l := range loops {
		if err := l.Stop(shutdownCtx); err != nil {
			log.WithField("loop", l.Name()).WithField("error", err).Warn("loop did not stop cleanly")
		}
	}
	log.Info("engine stopped")
}

// defaultAdapterResilience returns the circuit breaker and retry settings
// every strategy adapter is wrapped with unless an operator overrides them
// per-strategy at registration time. STRATEGY_RESILIENCE_TIER selects one
// of the named presets in internal/resilience (strict/default/lenient);
// "custom" (the default) instead uses the engine's own numerically-tuned
// FAILURE_THRESHOLD/OPEN_DURATION values.
func defaultAdapterResilience(cfg *config.EngineConfig, log *logger.Logger) (resilience.Config, resilience.RetryConfig) {
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.BaseDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   2.0,
		Jitter:       cfg.Jitter,
	}

	if tier := resilience.Tier(cfg.StrategyResilienceTier); tier != resilience.TierCustom {
		return resilience.TierConfig(tier, log), retryCfg
	}
	return resilience.Config{
		MaxFailures: cfg.FailureThreshold,
		Timeout:     cfg.OpenDuration,
		HalfOpenMax: 3,
	}, retryCfg
}

func mustStore(cfg *config.EngineConfig, log *logger.Logger) (storage.LedgerStore, func()) {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set, using in-memory ledger store")
		return memory.New(), func() {}
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	return postgres.New(db), func() { _ = db.Close() }
}

// defaultConfirmer treats every submitted settlement as unconfirmed until
// a real chain integration supplies transaction finality. Operators
// replace this with a confirmer backed by chainclient's RPC surface.
func defaultConfirmer(ctx context.Context, txRef string) (bool, error) {
	return false, nil
}

func waitForShutdown(log *logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("shutdown signal received")
}
