// Package config provides environment-aware configuration management for
// the payment orchestration engine, following the teacher's .env-driven
// loading convention.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// DistributionPolicy is the configurable user/merchant/protocol split
// (spec §4.2, §6). Percentages are out of 100; the protocol share is the
// residual of accruedYield - userYield - merchantYield, never a fixed
// subtraction of configured percentages, so conservation always holds.
type DistributionPolicy struct {
	UserPct     int64
	MerchantPct int64
}

// EngineConfig holds all configuration recognized by the engine (spec §6
// "Configuration (recognized options)").
type EngineConfig struct {
	Env Environment

	// Yield accrual (§4.2, §6)
	SnapshotInterval time.Duration
	StaleAfter       time.Duration
	MaxStaleInterval time.Duration
	YieldPrecision   int

	// Circuit breaker / retry (§4.4, §6)
	FailureThreshold       int
	OpenDuration           time.Duration
	MaxRetries             int
	BaseDelay              time.Duration
	MaxDelay               time.Duration
	Jitter                 float64
	StrategyResilienceTier string

	// Health probing (§4.4)
	HealthInterval time.Duration

	// Lifecycle (§3)
	AbandonmentHorizon time.Duration

	// Distribution (§4.2)
	DistributionPolicy DistributionPolicy

	// Bridge coordinator deadlines (§4.5)
	BridgeQuoteDeadline    time.Duration
	BridgeBurnDeadline     time.Duration
	BridgeAttestDeadline   time.Duration
	BridgeDeliverDeadline  time.Duration
	AttestationPollInterval time.Duration

	// Command surface (§5 Backpressure)
	CommandQueueDepth int

	// Logging (ambient)
	LogLevel  string
	LogFormat string

	// HTTP transport (ambient)
	ListenAddr string

	// Persistence (ambient)
	DatabaseURL string
}

// Load reads configuration from the environment, applying an optional
// ENGINE_ENV-selected .env file the same way the teacher selects a
// per-environment file, then falls back to the documented defaults.
func Load() (*EngineConfig, error) {
	envStr := getEnv("ENGINE_ENV", string(Development))
	env := Environment(envStr)
	switch env {
	case Development, Testing, Production:
	default:
		return nil, fmt.Errorf("invalid ENGINE_ENV: %s (must be development, testing, or production)", envStr)
	}

	envFile := fmt.Sprintf("config/%s.env", env)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("warning: could not load %s: %v\n", envFile, err)
	}

	cfg := &EngineConfig{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load engine configuration: %w", err)
	}
	return cfg, nil
}

func (c *EngineConfig) loadFromEnv() error {
	var err error

	c.SnapshotInterval, err = getDurationEnv("SNAPSHOT_INTERVAL", 60*time.Second)
	if err != nil {
		return err
	}
	c.StaleAfter, err = getDurationEnv("STALE_AFTER", 120*time.Second)
	if err != nil {
		return err
	}
	c.MaxStaleInterval, err = getDurationEnv("MAX_STALE_INTERVAL", 600*time.Second)
	if err != nil {
		return err
	}
	c.YieldPrecision = getIntEnv("YIELD_PRECISION", 6)

	c.FailureThreshold = getIntEnv("FAILURE_THRESHOLD", 5)
	c.OpenDuration, err = getDurationEnv("OPEN_DURATION", 30*time.Second)
	if err != nil {
		return err
	}
	c.MaxRetries = getIntEnv("MAX_RETRIES", 3)
	c.BaseDelay, err = getDurationEnv("BASE_DELAY", 200*time.Millisecond)
	if err != nil {
		return err
	}
	c.MaxDelay, err = getDurationEnv("MAX_DELAY", 5*time.Second)
	if err != nil {
		return err
	}
	c.Jitter = getFloatEnv("JITTER", 0.2)

	c.StrategyResilienceTier = getEnv("STRATEGY_RESILIENCE_TIER", "custom")
	switch c.StrategyResilienceTier {
	case "custom", "default", "strict", "lenient":
	default:
		return fmt.Errorf("invalid STRATEGY_RESILIENCE_TIER: %s (must be custom, default, strict, or lenient)", c.StrategyResilienceTier)
	}

	c.HealthInterval, err = getDurationEnv("HEALTH_INTERVAL", 30*time.Second)
	if err != nil {
		return err
	}

	c.AbandonmentHorizon, err = getDurationEnv("ABANDONMENT_HORIZON", 7*24*time.Hour)
	if err != nil {
		return err
	}

	c.DistributionPolicy = DistributionPolicy{
		UserPct:     int64(getIntEnv("DISTRIBUTION_USER_PCT", 70)),
		MerchantPct: int64(getIntEnv("DISTRIBUTION_MERCHANT_PCT", 20)),
	}
	if c.DistributionPolicy.UserPct+c.DistributionPolicy.MerchantPct > 100 {
		return fmt.Errorf("distribution policy user+merchant pct (%d+%d) exceeds 100",
			c.DistributionPolicy.UserPct, c.DistributionPolicy.MerchantPct)
	}

	c.BridgeQuoteDeadline, err = getDurationEnv("BRIDGE_QUOTE_DEADLINE", 10*time.Second)
	if err != nil {
		return err
	}
	c.BridgeBurnDeadline, err = getDurationEnv("BRIDGE_BURN_DEADLINE", 60*time.Second)
	if err != nil {
		return err
	}
	c.BridgeAttestDeadline, err = getDurationEnv("BRIDGE_ATTEST_DEADLINE", 15*time.Minute)
	if err != nil {
		return err
	}
	c.BridgeDeliverDeadline, err = getDurationEnv("BRIDGE_DELIVER_DEADLINE", 5*time.Minute)
	if err != nil {
		return err
	}
	c.AttestationPollInterval, err = getDurationEnv("ATTESTATION_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return err
	}

	c.CommandQueueDepth = getIntEnv("COMMAND_QUEUE_DEPTH", 1024)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	c.DatabaseURL = getEnv("DATABASE_URL", "")

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
