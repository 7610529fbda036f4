package digest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"secdigest/internal/domain/entity"
	"secdigest/internal/pkg/clock"
	"secdigest/internal/pkg/logsafe"
	"secdigest/internal/usecase/jobrun"
	"secdigest/internal/usecase/settings"
)

// schedulerPollInterval bounds how often the sleep-until-next-run loop
// checks the shutdown flag, matching the fetch worker's 1Hz contract.
const schedulerPollInterval = 1 * time.Second

// defaultDigestTime is used when the digest_time setting can't be read,
// matching the settings package's own default.
const defaultDigestTime = "08:00"

const jobNameDigestScheduler = "digest_scheduler"

// Scheduler fires Generator.Generate once per day at the digest_time
// setting, sleeping until the next occurrence and polling for shutdown in
// between. Each cycle is independent: the scheduler itself only decides
// whether "today" still needs a digest.
type Scheduler struct {
	Generator *Generator
	Settings  *settings.Service
	Jobs      *jobrun.Ledger
	Clock     clock.Clock
	Logger    *slog.Logger
}

// NewScheduler builds a Scheduler.
func NewScheduler(gen *Generator, settingsSvc *settings.Service, jobs *jobrun.Ledger, clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{Generator: gen, Settings: settingsSvc, Jobs: jobs, Clock: clk, Logger: logger}
}

// Run sleeps until the next digest_time occurrence, runs one cycle, and
// repeats, until SIGINT/SIGTERM. Unlike the fetch worker's fixed
// interval+jitter loop, the next wakeup is recomputed every cycle from the
// (possibly just-changed) digest_time setting.
func (s *Scheduler) Run(ctx context.Context) {
	var shuttingDown atomic.Bool

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		s.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shuttingDown.Store(true)
	}()

	for {
		if shuttingDown.Load() || ctx.Err() != nil {
			s.Logger.Info("digest scheduler stopping")
			return
		}

		next := clock.NextRunUTC(s.Clock.Now(), s.readDigestTime(ctx))
		if !sleepUntilInterruptible(next, &shuttingDown) {
			s.Logger.Info("digest scheduler stopping")
			return
		}

		if err := s.RunCycle(ctx); err != nil {
			s.Logger.Error("digest cycle failed", slog.String("error", logsafe.SanitizeError(err)))
		}
	}
}

// sleepUntilInterruptible sleeps in schedulerPollInterval steps until
// deadline, returning false as soon as shuttingDown flips true.
func sleepUntilInterruptible(deadline time.Time, shuttingDown *atomic.Bool) bool {
	for {
		if shuttingDown.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := schedulerPollInterval
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
	}
}

// RunCycle runs one digest-generation attempt: start a job run, check for
// an existing digest, and invoke Generate if needed. It is exported so
// tests and manual triggers can run a single cycle without the sleep loop.
// It is safe to call even when today's digest already exists: it records
// a "skipped" job run and returns nil.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	now := s.Clock.Now()
	digestTime := s.readDigestTime(ctx)

	run, err := s.Jobs.Start(ctx, jobNameDigestScheduler, map[string]interface{}{
		"digest_date":     truncateToDate(now).Format("2006-01-02"),
		"digest_time_utc": digestTime,
	})
	if err != nil {
		s.Logger.Error("failed to start job run", slog.Any("error", err))
		return err
	}

	exists, err := s.Generator.Digests.ExistsForDate(ctx, truncateToDate(now))
	if err != nil {
		errMsg := jobrun.TruncateError(err, 500)
		_ = s.Jobs.Finish(ctx, run, entity.JobRunStatusError, nil, &errMsg)
		return err
	}
	if exists {
		details := map[string]interface{}{"reason": "already_exists"}
		if err := s.Jobs.Finish(ctx, run, entity.JobRunStatusSkipped, details, nil); err != nil {
			s.Logger.Error("failed to finish skipped job run", slog.Any("error", err))
		}
		return nil
	}

	d, err := s.Generator.Generate(ctx)
	switch {
	case err == nil:
		details := map[string]interface{}{"digest_id": d.ID.String(), "html_path": d.HTMLPath}
		if err := s.Jobs.Finish(ctx, run, entity.JobRunStatusSuccess, details, nil); err != nil {
			s.Logger.Error("failed to finish successful job run", slog.Any("error", err))
		}
		return nil

	case errors.Is(err, entity.ErrDigestConflict):
		details := map[string]interface{}{"reason": "already_exists"}
		if err := s.Jobs.Finish(ctx, run, entity.JobRunStatusSkipped, details, nil); err != nil {
			s.Logger.Error("failed to finish skipped job run", slog.Any("error", err))
		}
		return nil

	case errors.Is(err, entity.ErrNoUnprocessedArticles):
		details := map[string]interface{}{"reason": "no_unprocessed_articles"}
		if err := s.Jobs.Finish(ctx, run, entity.JobRunStatusSkipped, details, nil); err != nil {
			s.Logger.Error("failed to finish skipped job run", slog.Any("error", err))
		}
		return nil

	default:
		errMsg := jobrun.TruncateError(err, 500)
		if err := s.Jobs.Finish(ctx, run, entity.JobRunStatusError, nil, &errMsg); err != nil {
			s.Logger.Error("failed to finish errored job run", slog.Any("error", err))
		}
		return err
	}
}

func (s *Scheduler) readDigestTime(ctx context.Context) string {
	setting, err := s.Settings.Get(ctx, settings.KeyDigestTime)
	if err != nil {
		return defaultDigestTime
	}
	t, ok := setting.Value.(string)
	if !ok || t == "" {
		return defaultDigestTime
	}
	return t
}
