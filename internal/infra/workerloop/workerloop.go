// Package workerloop provides the interval+jitter, signal-driven shutdown
// loop shared by the background worker entrypoints (fetch worker, digest
// scheduler). Each cycle runs to completion; shutdown is cooperative and
// only takes effect between cycles or while sleeping.
package workerloop

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"secdigest/internal/pkg/config"
)

// pollInterval is how often the sleep between cycles checks for a shutdown
// request. The worker loop contract requires polling at 1Hz or faster.
const pollInterval = 1 * time.Second

// Config holds the interval/jitter parameters read from the environment.
// Env values always win over any settings-table equivalent, since the
// worker must be able to start before the database is reachable.
type Config struct {
	Interval   time.Duration
	Jitter     time.Duration
	MaxSources int
	LogLevel   string
}

// LoadConfig loads Config from environment variables with fail-open
// fallback to defaults, the same pattern config.LoadEnvWithFallback uses
// elsewhere: a bad value is logged and the default is used instead of
// aborting startup.
func LoadConfig(logger *slog.Logger, metrics *config.ConfigMetrics, intervalEnv, jitterEnv, maxSourcesEnv, logLevelEnv string, defaultInterval, defaultJitter time.Duration, defaultMaxSources int) Config {
	intervalResult := config.LoadEnvDuration(intervalEnv, defaultInterval, config.ValidatePositiveDuration)
	logFallback(logger, metrics, intervalEnv, intervalResult)

	jitterResult := config.LoadEnvDuration(jitterEnv, defaultJitter, func(d time.Duration) error {
		return config.ValidateDuration(d, 0, 10*time.Minute)
	})
	logFallback(logger, metrics, jitterEnv, jitterResult)

	maxSourcesResult := config.LoadEnvInt(maxSourcesEnv, defaultMaxSources, func(n int) error {
		return config.ValidateIntRange(n, 1, 10000)
	})
	logFallback(logger, metrics, maxSourcesEnv, maxSourcesResult)

	logLevel := config.LoadEnvString(logLevelEnv, "info")

	return Config{
		Interval:   intervalResult.Value.(time.Duration),
		Jitter:     jitterResult.Value.(time.Duration),
		MaxSources: maxSourcesResult.Value.(int),
		LogLevel:   logLevel,
	}
}

func logFallback(logger *slog.Logger, metrics *config.ConfigMetrics, envKey string, result config.ConfigLoadResult) {
	if !result.FallbackApplied {
		return
	}
	for _, warning := range result.Warnings {
		logger.Warn("config fallback", slog.String("env", envKey), slog.String("warning", warning))
	}
	if metrics != nil {
		metrics.RecordFallback(envKey, "invalid_value")
	}
}

// CycleFunc runs one unit of work. Its error, if any, is logged by Run but
// never stops the loop — only a shutdown signal does that.
type CycleFunc func(ctx context.Context) error

// Run invokes fn once, then sleeps Interval+uniform(0,Jitter) before the
// next invocation, until SIGINT or SIGTERM arrives. The sleep is polled in
// pollInterval steps so shutdown is never delayed by more than that.
func Run(ctx context.Context, logger *slog.Logger, cfg Config, fn CycleFunc) {
	var shuttingDown atomic.Bool

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shuttingDown.Store(true)
	}()

	for {
		if shuttingDown.Load() || ctx.Err() != nil {
			logger.Info("worker loop stopping")
			return
		}

		if err := fn(ctx); err != nil {
			logger.Error("worker cycle failed", slog.Any("error", err))
		}

		if !sleepInterruptible(cfg.sleepDuration(), &shuttingDown) {
			logger.Info("worker loop stopping")
			return
		}
	}
}

// sleepDuration returns Interval plus a uniformly random jitter in
// [0, Jitter). Jitter of zero is a valid, deterministic configuration.
func (c Config) sleepDuration() time.Duration {
	if c.Jitter <= 0 {
		return c.Interval
	}
	return c.Interval + time.Duration(rand.Int63n(int64(c.Jitter)))
}

// sleepInterruptible sleeps for d in pollInterval steps, returning false as
// soon as shuttingDown flips true.
func sleepInterruptible(d time.Duration, shuttingDown *atomic.Bool) bool {
	deadline := time.Now().Add(d)
	for {
		if shuttingDown.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := pollInterval
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
	}
}
