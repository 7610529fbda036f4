package fetch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"secdigest/internal/domain/entity"
	"secdigest/internal/observability/metrics"
	"secdigest/internal/repository"

	"golang.org/x/sync/errgroup"
)

// scraperConfigKey is the context key for ScraperConfig.
type scraperConfigKey string

// FeedFetcher is an interface for fetching RSS/Atom feeds from a URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]FeedItem, error)
}

// ContentFetchConfig holds configuration for content fetching behavior.
type ContentFetchConfig struct {
	Parallelism int // Maximum number of concurrent content fetching operations
	Threshold   int // Minimum feed content length before fetching full content
}

// FeedItem represents a single item from an RSS/Atom feed or a scraped listing.
type FeedItem struct {
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
}

// Service fetches a single already-claimed source's items, filters and
// de-duplicates them, and stores the survivors as raw, unsummarized
// articles. Summarization is deferred to digest generation (see
// internal/usecase/digest), so no AI calls happen on this path.
type Service struct {
	SourceRepo     repository.SourceRepository
	ArticleRepo    repository.ArticleRepository
	FeedFetcher    FeedFetcher
	WebScrapers    map[string]FeedFetcher // Web scraper registry for non-RSS sources
	ContentFetcher ContentFetcher         // Content enhancement for thin feed items
	contentConfig  ContentFetchConfig
}

// NewService creates a new fetch Service with the provided dependencies.
func NewService(
	sourceRepo repository.SourceRepository,
	articleRepo repository.ArticleRepository,
	feedFetcher FeedFetcher,
	webScrapers map[string]FeedFetcher,
	contentFetcher ContentFetcher,
	contentConfig ContentFetchConfig,
) Service {
	return Service{
		SourceRepo:     sourceRepo,
		ArticleRepo:    articleRepo,
		FeedFetcher:    feedFetcher,
		WebScrapers:    webScrapers,
		ContentFetcher: contentFetcher,
		contentConfig:  contentConfig,
	}
}

// CrawlStats contains statistics about a single source's fetch.
type CrawlStats struct {
	FeedItems  int64
	Inserted   int64
	Duplicated int64
	Filtered   int64
	Duration   time.Duration
}

// CrawlAllSources fetches every active source sequentially, without the
// claim/lock protocol. Useful for single-process/administrative runs and
// exercised directly by tests; production fetch workers use Manager
// instead, which claims sources one at a time under a row lock.
func (s *Service) CrawlAllSources(ctx context.Context) (*CrawlStats, error) {
	total := &CrawlStats{}
	srcs, err := s.SourceRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	for _, src := range srcs {
		stats, err := s.FetchAndStoreOne(ctx, src)
		if err != nil {
			return total, err
		}
		total.FeedItems += stats.FeedItems
		total.Inserted += stats.Inserted
		total.Duplicated += stats.Duplicated
		total.Filtered += stats.Filtered
		total.Duration += stats.Duration
	}
	return total, nil
}

// selectFetcher chooses the appropriate fetcher based on the source type.
func (s *Service) selectFetcher(src *entity.Source) FeedFetcher {
	if src.SourceType == "" || src.SourceType == "RSS" {
		return s.FeedFetcher
	}
	if s.WebScrapers != nil {
		if fetcher, exists := s.WebScrapers[src.SourceType]; exists {
			return fetcher
		}
	}
	slog.Warn("unknown source type, falling back to RSS fetcher",
		slog.String("source_type", src.SourceType),
		slog.Int64("source_id", src.ID),
		slog.String("source_name", src.Name))
	return s.FeedFetcher
}

// FetchAndStoreOne fetches src's feed/listing, filters items by recency and
// keyword match, de-duplicates against existing URLs, enhances thin content
// via ContentFetcher, and stores survivors with no summary (raw_content
// only). It does not touch src.LastCrawledAt — callers own that, so the
// claim protocol can mark a source "done" before slow network I/O begins.
func (s *Service) FetchAndStoreOne(ctx context.Context, src *entity.Source) (*CrawlStats, error) {
	logger := slog.Default()
	start := time.Now()
	stats := &CrawlStats{}

	fetcher := s.selectFetcher(src)
	if src.ScraperConfig != nil {
		ctx = context.WithValue(ctx, scraperConfigKey("scraper_config"), src.ScraperConfig)
	}

	feedItems, err := fetcher.Fetch(ctx, src.FeedURL)
	if err != nil {
		logger.Warn("failed to fetch feed",
			slog.Int64("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Any("error", err))
		metrics.RecordFeedCrawlError(src.ID, "fetch_failed")
		return stats, nil
	}
	stats.FeedItems = int64(len(feedItems))
	if len(feedItems) == 0 {
		return stats, nil
	}

	urls := make([]string, 0, len(feedItems))
	for _, item := range feedItems {
		urls = append(urls, item.URL)
	}
	existsMap, err := s.ArticleRepo.ExistsByURLBatch(ctx, urls)
	if err != nil {
		logger.Warn("failed to batch check URLs", slog.Int64("source_id", src.ID), slog.Any("error", err))
		metrics.RecordFeedCrawlError(src.ID, "batch_check_failed")
		return stats, nil
	}

	category, err := s.SourceRepo.GetCategory(ctx, src.ID)
	if err != nil {
		logger.Warn("failed to load source category", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}
	keywords := mergeKeywords(src.Keywords, category)
	cutoff := recencyCutoff(src.LastCrawledAt)
	digestSection := ""
	if category != nil {
		digestSection = category.DigestSection
	}

	if err := s.storeFilteredItems(ctx, src, feedItems, existsMap, keywords, cutoff, digestSection, stats); err != nil {
		metrics.RecordFeedCrawlError(src.ID, "process_items_failed")
		return stats, fmt.Errorf("process feed items: %w", err)
	}

	stats.Duration = time.Since(start)
	metrics.RecordFeedCrawl(src.ID, stats.Duration, stats.FeedItems, stats.Inserted, stats.Duplicated)
	logger.Info("source fetch completed",
		slog.Int64("source_id", src.ID),
		slog.Int64("feed_items", stats.FeedItems),
		slog.Int64("inserted", stats.Inserted),
		slog.Int64("duplicated", stats.Duplicated),
		slog.Int64("filtered", stats.Filtered),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// FetchAndStoreOneTx is FetchAndStoreOne scoped to an existing transaction.
// Every article insert uses tx, so the caller can roll the whole fetch back
// atomically with the source-claim release: a failed fetch never leaves
// last_crawled_at touched. Content enhancement still runs sequentially
// against tx rather than via the errgroup fan-out FetchAndStoreOne uses,
// since the claim-and-fetch path processes one source at a time and holds
// the row lock for the duration.
func (s *Service) FetchAndStoreOneTx(ctx context.Context, tx *sql.Tx, src *entity.Source) (*CrawlStats, error) {
	logger := slog.Default()
	start := time.Now()
	stats := &CrawlStats{}

	fetcher := s.selectFetcher(src)
	if src.ScraperConfig != nil {
		ctx = context.WithValue(ctx, scraperConfigKey("scraper_config"), src.ScraperConfig)
	}

	feedItems, err := fetcher.Fetch(ctx, src.FeedURL)
	if err != nil {
		return stats, fmt.Errorf("%w: %w", ErrFeedFetchFailed, err)
	}
	stats.FeedItems = int64(len(feedItems))
	if len(feedItems) == 0 {
		return stats, nil
	}

	urls := make([]string, 0, len(feedItems))
	for _, item := range feedItems {
		urls = append(urls, item.URL)
	}
	existsMap, err := s.ArticleRepo.ExistsByURLBatch(ctx, urls)
	if err != nil {
		return stats, fmt.Errorf("batch check existing URLs: %w", err)
	}

	category, err := s.SourceRepo.GetCategory(ctx, src.ID)
	if err != nil {
		logger.Warn("failed to load source category", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}
	keywords := mergeKeywords(src.Keywords, category)
	cutoff := recencyCutoff(src.LastCrawledAt)
	digestSection := ""
	if category != nil {
		digestSection = category.DigestSection
	}

	for _, item := range feedItems {
		if existsMap[item.URL] {
			stats.Duplicated++
			continue
		}
		if !isRecentEnough(item.PublishedAt, cutoff) {
			stats.Filtered++
			continue
		}

		content := s.enhanceContent(ctx, item)
		if !matchesKeywords(item.Title, content, keywords) {
			stats.Filtered++
			continue
		}

		now := time.Now()
		art := &entity.Article{
			SourceID:      src.ID,
			Title:         item.Title,
			URL:           item.URL,
			RawContent:    content,
			DigestSection: digestSection,
			PublishedAt:   item.PublishedAt,
			FetchedAt:     now,
			CreatedAt:     now,
		}
		if err := s.ArticleRepo.CreateTx(ctx, tx, art); err != nil {
			return stats, fmt.Errorf("create article in transaction: %w", err)
		}
		stats.Inserted++
	}

	stats.Duration = time.Since(start)
	metrics.RecordFeedCrawl(src.ID, stats.Duration, stats.FeedItems, stats.Inserted, stats.Duplicated)
	logger.Info("claimed source fetch completed",
		slog.Int64("source_id", src.ID),
		slog.Int64("feed_items", stats.FeedItems),
		slog.Int64("inserted", stats.Inserted),
		slog.Int64("duplicated", stats.Duplicated),
		slog.Int64("filtered", stats.Filtered),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// recencyCutoff mirrors the original fetcher's date-cutoff rule: a source
// that has never been fetched gets a 24h lookback window; otherwise the
// cutoff is its last fetch time.
func recencyCutoff(lastCrawledAt *time.Time) time.Time {
	if lastCrawledAt == nil {
		return time.Now().Add(-24 * time.Hour)
	}
	return *lastCrawledAt
}

// isRecentEnough reports whether an item with no publish date (always
// passes) or a publish date at/after cutoff should be kept.
func isRecentEnough(publishedAt time.Time, cutoff time.Time) bool {
	if publishedAt.IsZero() {
		return true
	}
	return !publishedAt.Before(cutoff)
}

// mergeKeywords unions a source's own keywords with its category's, matching
// the original's "source OR category" keyword set.
func mergeKeywords(sourceKeywords []string, category *entity.Category) []string {
	if category == nil {
		return sourceKeywords
	}
	merged := make([]string, 0, len(sourceKeywords)+len(category.Keywords))
	merged = append(merged, sourceKeywords...)
	merged = append(merged, category.Keywords...)
	return merged
}

// matchesKeywords reports whether title+content contains any of keywords
// (case-insensitive substring match). An empty keyword set always passes.
func matchesKeywords(title, content string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(title + " " + content)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (s *Service) storeFilteredItems(
	ctx context.Context,
	src *entity.Source,
	feedItems []FeedItem,
	existsMap map[string]bool,
	keywords []string,
	cutoff time.Time,
	digestSection string,
	stats *CrawlStats,
) error {
	contentSem := make(chan struct{}, max(1, s.contentConfig.Parallelism))
	eg, egCtx := errgroup.WithContext(ctx)

	for _, feedItem := range feedItems {
		item := feedItem

		if existsMap[item.URL] {
			atomic.AddInt64(&stats.Duplicated, 1)
			continue
		}
		if !isRecentEnough(item.PublishedAt, cutoff) {
			atomic.AddInt64(&stats.Filtered, 1)
			continue
		}

		eg.Go(func() error {
			contentSem <- struct{}{}
			content := s.enhanceContent(egCtx, item)
			<-contentSem

			if !matchesKeywords(item.Title, content, keywords) {
				atomic.AddInt64(&stats.Filtered, 1)
				return nil
			}

			now := time.Now()
			art := &entity.Article{
				SourceID:      src.ID,
				Title:         item.Title,
				URL:           item.URL,
				RawContent:    content,
				DigestSection: digestSection,
				PublishedAt:   item.PublishedAt,
				FetchedAt:     now,
				CreatedAt:     now,
			}
			if err := s.ArticleRepo.Create(egCtx, art); err != nil {
				return fmt.Errorf("create article in repository: %w", err)
			}
			atomic.AddInt64(&stats.Inserted, 1)
			return nil
		})
	}

	return eg.Wait()
}

// enhanceContent fetches full article content when the feed's own content
// is too thin, falling back to the feed content on any failure. Never
// returns an error.
func (s *Service) enhanceContent(ctx context.Context, item FeedItem) string {
	logger := slog.Default()

	if s.ContentFetcher == nil {
		return item.Content
	}

	rssLength := len(item.Content)
	if rssLength >= s.contentConfig.Threshold {
		metrics.RecordContentFetchSkipped()
		return item.Content
	}

	fetchStart := time.Now()
	fullContent, err := s.ContentFetcher.FetchContent(ctx, item.URL)
	fetchDuration := time.Since(fetchStart)

	if err != nil {
		logger.Warn("content fetch failed, using feed fallback",
			slog.String("url", item.URL), slog.Any("error", err), slog.Duration("fetch_duration", fetchDuration))
		metrics.RecordContentFetchFailed(fetchDuration)
		return item.Content
	}

	fetchedLength := len(fullContent)
	metrics.RecordContentFetchSuccess(fetchDuration, fetchedLength)
	if fetchedLength > rssLength {
		return fullContent
	}
	return item.Content
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
