package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"secdigest/internal/domain/entity"
	pgRepo "secdigest/internal/infra/adapter/persistence/postgres"
	"secdigest/internal/infra/db"
	"secdigest/internal/infra/fetcher"
	"secdigest/internal/infra/scraper"
	workerPkg "secdigest/internal/infra/worker"
	"secdigest/internal/infra/workerloop"
	"secdigest/internal/observability/logging"
	"secdigest/internal/pkg/logsafe"
	fetchUC "secdigest/internal/usecase/fetch"
	"secdigest/internal/usecase/jobrun"
)

const jobNameFetchCycle = "fetch_cycle"

// Default interval/jitter/max_sources, overridable by environment. These
// are env-driven rather than settings-table driven so a worker can start
// before the database is reachable.
const (
	defaultFetchInterval   = 5 * time.Minute
	defaultFetchJitter     = 30 * time.Second
	defaultFetchMaxSources = 50
)

func waitForMigrations(logger *slog.Logger, database *sql.DB) {
	const probe = "SELECT 1 FROM sources LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := database.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := workerPkg.NewWorkerMetrics()
	metrics.MustRegister()

	cfg := workerloop.LoadConfig(logger, metrics.ConfigMetrics,
		"WORKER_INTERVAL_SECONDS", "WORKER_JITTER_SECONDS", "WORKER_MAX_SOURCES", "WORKER_LOG_LEVEL",
		defaultFetchInterval, defaultFetchJitter, defaultFetchMaxSources)
	logger.Info("fetch worker configuration loaded",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("jitter", cfg.Jitter),
		slog.Int("max_sources", cfg.MaxSources))

	healthAddr := fmt.Sprintf(":%d", healthPortFromEnv())
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	manager := setupFetchManager(logger, database)
	jobs := jobrun.NewLedger(pgRepo.NewJobRunRepo(database))

	healthServer.SetReady(true)
	logger.Info("fetch worker ready")

	workerloop.Run(ctx, logger, cfg, func(ctx context.Context) error {
		return runFetchCycle(ctx, logger, manager, jobs, metrics, cfg.MaxSources)
	})
}

func healthPortFromEnv() int {
	const defaultPort = 9091
	raw := os.Getenv("HEALTH_PORT")
	if raw == "" {
		return defaultPort
	}
	var port int
	if _, err := fmt.Sscanf(raw, "%d", &port); err != nil || port <= 0 {
		return defaultPort
	}
	return port
}

// runFetchCycle wraps one fetch.Manager.FetchDueSources pass with a
// fetch_cycle JobRun and the worker's Prometheus metrics.
func runFetchCycle(ctx context.Context, logger *slog.Logger, manager *fetchUC.Manager, jobs *jobrun.Ledger, metrics *workerPkg.WorkerMetrics, maxSources int) error {
	start := time.Now()

	run, err := jobs.Start(ctx, jobNameFetchCycle, map[string]interface{}{"max_sources": float64(maxSources)})
	if err != nil {
		logger.Error("failed to start job run", slog.Any("error", err))
	}

	stats, err := manager.FetchDueSources(ctx, maxSources)

	metrics.RecordJobDuration(time.Since(start).Seconds())
	if err != nil {
		metrics.RecordJobRun("failure")
		logger.Error("fetch cycle failed", slog.String("error", logsafe.SanitizeError(err)))
		if run != nil {
			errMsg := jobrun.TruncateError(err, 500)
			_ = jobs.Finish(ctx, run, entity.JobRunStatusError, nil, &errMsg)
		}
		return err
	}

	metrics.RecordJobRun("success")
	metrics.RecordFeedsProcessed(stats.SourcesFetched)
	metrics.RecordLastSuccess()
	logger.Info("fetch cycle completed",
		slog.Int("sources_fetched", stats.SourcesFetched),
		slog.Int64("articles_saved", stats.ArticlesSaved),
		slog.Int64("articles_filtered", stats.ArticlesFiltered),
		slog.Int64("articles_skipped", stats.ArticlesSkipped),
		slog.Int("errors", stats.Errors))

	if run != nil {
		details := map[string]interface{}{
			"sources_fetched":   float64(stats.SourcesFetched),
			"articles_saved":    float64(stats.ArticlesSaved),
			"articles_filtered": float64(stats.ArticlesFiltered),
			"errors":            float64(stats.Errors),
		}
		if ferr := jobs.Finish(ctx, run, entity.JobRunStatusSuccess, details, nil); ferr != nil {
			logger.Error("failed to finish job run", slog.Any("error", ferr))
		}
	}
	return nil
}

func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	waitForMigrations(logger, database)
	return database
}

// setupFetchManager wires fetch.Service's feed/content dependencies and
// wraps it in a fetch.Manager for the claim-and-fetch loop.
func setupFetchManager(logger *slog.Logger, database *sql.DB) *fetchUC.Manager {
	srcRepo := pgRepo.NewSourceRepo(database)
	artRepo := pgRepo.NewArticleRepo(database)

	httpClient := createHTTPClient()
	feedFetcher := scraper.NewRSSFetcher(httpClient)

	webScraperClient := createWebScraperHTTPClient()
	scraperFactory := scraper.NewScraperFactory(webScraperClient)
	webScrapers := scraperFactory.CreateScrapers()
	logger.Info("web scrapers initialized", slog.Int("count", len(webScrapers)))

	contentFetchConfig, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load content fetch configuration", slog.Any("error", err))
		logger.Warn("content fetching disabled due to configuration error")
		contentFetchConfig = fetcher.DefaultConfig()
		contentFetchConfig.Enabled = false
	}

	var contentFetcher fetchUC.ContentFetcher
	if contentFetchConfig.Enabled {
		contentFetcher = fetcher.NewReadabilityFetcher(contentFetchConfig)
		logger.Info("content fetching enabled",
			slog.Int("threshold", contentFetchConfig.Threshold),
			slog.Int("parallelism", contentFetchConfig.Parallelism),
			slog.Duration("timeout", contentFetchConfig.Timeout))
	} else {
		logger.Info("content fetching disabled")
	}

	fetchConfig := fetchUC.ContentFetchConfig{
		Parallelism: contentFetchConfig.Parallelism,
		Threshold:   contentFetchConfig.Threshold,
	}

	service := fetchUC.NewService(srcRepo, artRepo, feedFetcher, webScrapers, contentFetcher, fetchConfig)
	return fetchUC.NewManager(database, &service)
}

func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

func createWebScraperHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}
