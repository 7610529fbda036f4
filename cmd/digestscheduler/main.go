package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	pgRepo "secdigest/internal/infra/adapter/persistence/postgres"
	"secdigest/internal/infra/db"
	"secdigest/internal/infra/notifier"
	"secdigest/internal/infra/summarizer"
	workerPkg "secdigest/internal/infra/worker"
	"secdigest/internal/observability/logging"
	"secdigest/internal/pkg/clock"
	digestUC "secdigest/internal/usecase/digest"
	"secdigest/internal/usecase/jobrun"
	"secdigest/internal/usecase/notify"
	"secdigest/internal/usecase/settings"
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

	healthAddr := fmt.Sprintf(":%d", healthPortFromEnv())
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	settingsSvc := settings.NewService(pgRepo.NewSettingsRepo(database))
	jobs := jobrun.NewLedger(pgRepo.NewJobRunRepo(database))
	notifyService := setupNotifyService(logger)
	sum := createSummarizer(logger)

	gen := digestUC.NewGenerator(
		database,
		pgRepo.NewArticleRepo(database),
		pgRepo.NewDigestRepo(database),
		settingsSvc,
		sum,
		notifyService,
		clock.Real{},
	)
	sched := digestUC.NewScheduler(gen, settingsSvc, jobs, clock.Real{}, logger)

	healthServer.SetReady(true)
	logger.Info("digest scheduler ready")

	sched.Run(ctx)

	if err := notifyService.Shutdown(context.Background()); err != nil {
		logger.Error("notify service shutdown failed", slog.Any("error", err))
	}
}

func healthPortFromEnv() int {
	const defaultPort = 9092
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

// setupNotifyService wires the Discord and Slack channels from environment
// configuration. Both are optional; a digest is still generated without
// either, since Generator only calls the notifier when telegram_notifications
// is enabled and a channel exists to carry it.
func setupNotifyService(logger *slog.Logger) notify.Service {
	var channels []notify.Channel

	discordConfig := loadDiscordConfig(logger)
	if discordConfig.Enabled {
		channels = append(channels, notify.NewDiscordChannel(discordConfig))
		logger.Info("Discord channel initialized")
	} else {
		logger.Info("Discord channel disabled")
	}

	slackConfig := loadSlackConfig(logger)
	if slackConfig.Enabled {
		channels = append(channels, notify.NewSlackChannel(slackConfig))
		logger.Info("Slack channel initialized")
	} else {
		logger.Info("Slack channel disabled")
	}

	maxConcurrent := notifyMaxConcurrentFromEnv()
	service := notify.NewService(channels, maxConcurrent)
	logger.Info("notification service initialized",
		slog.Int("channels", len(channels)),
		slog.Int("max_concurrent", maxConcurrent))
	return service
}

func notifyMaxConcurrentFromEnv() int {
	const defaultMaxConcurrent = 4
	raw := os.Getenv("NOTIFY_MAX_CONCURRENT")
	if raw == "" {
		return defaultMaxConcurrent
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return defaultMaxConcurrent
	}
	return n
}

// createSummarizer selects the digest.Summarizer implementation from
// SUMMARIZER_TYPE, defaulting to Claude. A noop summarizer is used only when
// explicitly requested, so a missing API key fails fast instead of silently
// shipping unsummarized digests.
func createSummarizer(logger *slog.Logger) digestUC.Summarizer {
	summarizerType := os.Getenv("SUMMARIZER_TYPE")
	if summarizerType == "" {
		summarizerType = "claude"
	}

	switch summarizerType {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			logger.Error("ANTHROPIC_API_KEY is required when SUMMARIZER_TYPE=claude")
			os.Exit(1)
		}
		logger.Info("using Claude API for summarization")
		return summarizer.NewClaude(apiKey)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			logger.Error("OPENAI_API_KEY is required when SUMMARIZER_TYPE=openai")
			os.Exit(1)
		}
		cfg, err := summarizer.LoadOpenAIConfig()
		if err != nil {
			logger.Error("failed to load OpenAI configuration", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("using OpenAI API for summarization", slog.Int("character_limit", cfg.GetCharacterLimit()))
		return summarizer.NewOpenAI(apiKey, cfg)
	case "noop":
		logger.Warn("using noop summarizer, digests will carry raw content only")
		return summarizer.NewNoOp()
	default:
		logger.Error("invalid SUMMARIZER_TYPE", slog.String("type", summarizerType), slog.String("expected", "claude, openai, or noop"))
		os.Exit(1)
		return nil
	}
}

// loadDiscordConfig loads and validates Discord webhook configuration from
// DISCORD_ENABLED/DISCORD_WEBHOOK_URL, rejecting anything that isn't an
// HTTPS discord.com/api/webhooks/ URL.
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	enabled := os.Getenv("DISCORD_ENABLED") == "true"
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")

	if !enabled {
		return notifier.DiscordConfig{Enabled: false}
	}
	if webhookURL == "" {
		logger.Warn("Discord webhook URL is empty, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid Discord webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.DiscordConfig{Enabled: false}
	}
	if u.Scheme != "https" {
		logger.Warn("Discord webhook URL must use HTTPS, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}
	if u.Host != "discord.com" {
		logger.Warn("invalid Discord webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.DiscordConfig{Enabled: false}
	}
	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		logger.Warn("invalid Discord webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{Enabled: true, WebhookURL: webhookURL, Timeout: 30 * time.Second}
}

// loadSlackConfig loads and validates Slack webhook configuration from
// SLACK_ENABLED/SLACK_WEBHOOK_URL, rejecting anything that isn't an HTTPS
// hooks.slack.com/services/ URL.
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	enabled := os.Getenv("SLACK_ENABLED") == "true"
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")

	if !enabled {
		return notifier.SlackConfig{Enabled: false}
	}
	if webhookURL == "" {
		logger.Warn("Slack webhook URL is empty, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid Slack webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.SlackConfig{Enabled: false}
	}
	if u.Scheme != "https" {
		logger.Warn("Slack webhook URL must use HTTPS, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}
	if u.Host != "hooks.slack.com" {
		logger.Warn("invalid Slack webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.SlackConfig{Enabled: false}
	}
	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("invalid Slack webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{Enabled: true, WebhookURL: webhookURL, Timeout: 30 * time.Second}
}
