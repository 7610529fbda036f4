package fetch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"secdigest/internal/domain/entity"
)

// Manager coordinates fetch workers across a pool of cooperating processes.
// It claims one due source at a time under a row lock (SELECT ... FOR
// UPDATE SKIP LOCKED) and runs the entire fetch — extract, filter, insert,
// and the last_crawled_at stamp — inside that one transaction. The
// transaction commits only if the fetch fully succeeds; any failure rolls
// everything back, releasing the lock and leaving last_crawled_at untouched
// so the source is retried on the next cycle. The row lock is therefore
// held for the duration of the network fetch, which is deliberate: it is
// what makes a claimed source's outcome atomic with its due-ness. Multiple
// Manager instances can run concurrently against the same database without
// double-fetching a source.
type Manager struct {
	DB      *sql.DB
	Service *Service
}

// NewManager creates a Manager wired to db and service.
func NewManager(db *sql.DB, service *Service) *Manager {
	return &Manager{DB: db, Service: service}
}

// FetchStats aggregates the outcome of a FetchDueSources pass.
type FetchStats struct {
	SourcesFetched   int
	ArticlesSaved    int64
	ArticlesFiltered int64
	ArticlesSkipped  int64
	Errors           int
}

// FetchDueSources claims and fetches due sources one at a time until none
// remain, up to maxSources (0 means unlimited).
func (m *Manager) FetchDueSources(ctx context.Context, maxSources int) (*FetchStats, error) {
	stats := &FetchStats{}
	claimed := make([]int64, 0)

	for maxSources <= 0 || stats.SourcesFetched < maxSources {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		srcID, crawlStats, err := m.claimAndFetchOne(ctx, time.Now(), claimed)
		if errors.Is(err, entity.ErrNotFound) {
			break
		}
		if srcID != 0 {
			claimed = append(claimed, srcID)
		}
		if err != nil {
			stats.Errors++
			slog.Warn("fetch failed for claimed source",
				slog.Int64("source_id", srcID), slog.Any("error", err))
			continue
		}
		stats.SourcesFetched++
		stats.ArticlesSaved += crawlStats.Inserted
		stats.ArticlesFiltered += crawlStats.Filtered
		stats.ArticlesSkipped += crawlStats.Duplicated
	}

	return stats, nil
}

// claimAndFetchOne claims the most-overdue source not in excludeIDs and
// performs its entire fetch in one transaction: claim, extract, filter,
// insert survivors, stamp last_crawled_at, commit. Any failure after the
// claim rolls the transaction back, so the claimed source keeps its prior
// last_crawled_at and its SKIP LOCKED lock is released for the next cycle
// to retry. Returns entity.ErrNotFound (with srcID 0) when nothing is due.
func (m *Manager) claimAndFetchOne(ctx context.Context, now time.Time, excludeIDs []int64) (int64, *CrawlStats, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin fetch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	src, err := m.Service.SourceRepo.ClaimNextDue(ctx, tx, now, excludeIDs)
	if err != nil {
		return 0, nil, err
	}

	crawlStats, err := m.Service.FetchAndStoreOneTx(ctx, tx, src)
	if err != nil {
		return src.ID, nil, fmt.Errorf("fetch claimed source %d: %w", src.ID, err)
	}

	if err := m.Service.SourceRepo.TouchCrawledAtTx(ctx, tx, src.ID, now); err != nil {
		return src.ID, nil, fmt.Errorf("touch crawled_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return src.ID, nil, fmt.Errorf("commit fetch transaction: %w", err)
	}

	return src.ID, crawlStats, nil
}
