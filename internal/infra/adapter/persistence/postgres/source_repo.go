package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"secdigest/internal/domain/entity"
	"secdigest/internal/repository"
)

type SourceRepo struct{ db *sql.DB }

func NewSourceRepo(db *sql.DB) repository.SourceRepository {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, name, feed_url, category_id, keywords, fetch_interval_minutes,
       last_crawled_at, active, source_type, scraper_config`

// scanSource is a helper function to scan a source row including scraper_config
func scanSource(rows *sql.Rows) (*entity.Source, error) {
	var source entity.Source
	var scraperConfigJSON, keywordsJSON []byte
	if err := rows.Scan(
		&source.ID, &source.Name, &source.FeedURL, &source.CategoryID, &keywordsJSON,
		&source.FetchIntervalMinutes, &source.LastCrawledAt, &source.Active,
		&source.SourceType, &scraperConfigJSON,
	); err != nil {
		return nil, err
	}
	if err := unmarshalSourceExtras(&source, scraperConfigJSON, keywordsJSON); err != nil {
		return nil, err
	}
	return &source, nil
}

func unmarshalSourceExtras(source *entity.Source, scraperConfigJSON, keywordsJSON []byte) error {
	if len(scraperConfigJSON) > 0 {
		var config entity.ScraperConfig
		if err := json.Unmarshal(scraperConfigJSON, &config); err != nil {
			return fmt.Errorf("unmarshal scraper_config: %w", err)
		}
		source.ScraperConfig = &config
	}
	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &source.Keywords); err != nil {
			return fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	return nil
}

func (repo *SourceRepo) Get(ctx context.Context, id int64) (*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE id = $1 LIMIT 1`, sourceColumns)
	var source entity.Source
	var scraperConfigJSON, keywordsJSON []byte
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&source.ID, &source.Name, &source.FeedURL, &source.CategoryID, &keywordsJSON,
		&source.FetchIntervalMinutes, &source.LastCrawledAt, &source.Active,
		&source.SourceType, &scraperConfigJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if err := unmarshalSourceExtras(&source, scraperConfigJSON, keywordsJSON); err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &source, nil
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources ORDER BY id ASC`, sourceColumns)
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (repo *SourceRepo) ListActive(ctx context.Context) ([]*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE active = TRUE ORDER BY id ASC`, sourceColumns)
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	activeSource := make([]*entity.Source, 0, 50)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: %w", err)
		}
		activeSource = append(activeSource, source)
	}
	return activeSource, rows.Err()
}

func (repo *SourceRepo) Search(ctx context.Context, kw string) ([]*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE name ILIKE $1 OR feed_url ILIKE $1 ORDER BY id ASC`, sourceColumns)
	param := "%" + kw + "%"
	rows, err := repo.db.QueryContext(ctx, query, param)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (repo *SourceRepo) Create(ctx context.Context, source *entity.Source) error {
	if source.SourceType == "" {
		source.SourceType = "RSS"
	}
	if source.FetchIntervalMinutes < 1 {
		source.FetchIntervalMinutes = 1
	}

	scraperConfigJSON, keywordsJSON, err := marshalSourceExtras(source)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	const query = `
INSERT INTO sources (name, feed_url, category_id, keywords, fetch_interval_minutes, last_crawled_at, active, source_type, scraper_config)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = repo.db.ExecContext(ctx, query,
		source.Name, source.FeedURL, source.CategoryID, keywordsJSON, source.FetchIntervalMinutes,
		source.LastCrawledAt, source.Active, source.SourceType, scraperConfigJSON,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func marshalSourceExtras(source *entity.Source) (scraperConfigJSON, keywordsJSON []byte, err error) {
	if source.ScraperConfig != nil {
		scraperConfigJSON, err = json.Marshal(source.ScraperConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal scraper_config: %w", err)
		}
	}
	if len(source.Keywords) > 0 {
		keywordsJSON, err = json.Marshal(source.Keywords)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal keywords: %w", err)
		}
	}
	return scraperConfigJSON, keywordsJSON, nil
}

func (repo *SourceRepo) Update(ctx context.Context, source *entity.Source) error {
	if source.SourceType == "" {
		source.SourceType = "RSS"
	}

	scraperConfigJSON, keywordsJSON, err := marshalSourceExtras(source)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	const query = `
UPDATE sources SET
       name                    = $1,
       feed_url                = $2,
       category_id             = $3,
       keywords                = $4,
       fetch_interval_minutes  = $5,
       last_crawled_at         = $6,
       active                  = $7,
       source_type             = $8,
       scraper_config          = $9
WHERE id = $10`
	res, err := repo.db.ExecContext(ctx, query,
		source.Name, source.FeedURL, source.CategoryID, keywordsJSON, source.FetchIntervalMinutes,
		source.LastCrawledAt, source.Active, source.SourceType, scraperConfigJSON, source.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: no rows affected")
	}
	return nil
}

func (repo *SourceRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM sources WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}

func (repo *SourceRepo) TouchCrawledAt(ctx context.Context, id int64, t time.Time) error {
	const query = `UPDATE sources SET last_crawled_at = $1 WHERE id = $2`
	_, err := repo.db.ExecContext(ctx, query, t, id)
	return err
}

func (repo *SourceRepo) TouchCrawledAtTx(ctx context.Context, tx *sql.Tx, id int64, t time.Time) error {
	const query = `UPDATE sources SET last_crawled_at = $1 WHERE id = $2`
	_, err := tx.ExecContext(ctx, query, t, id)
	if err != nil {
		return fmt.Errorf("TouchCrawledAtTx: %w", err)
	}
	return nil
}

// ClaimNextDue locks the single most-overdue enabled source not already
// claimed by another worker. The due condition is evaluated in SQL so it
// composes with the row lock atomically: a source becomes visible to a
// claimant only once last_crawled_at + fetch_interval_minutes has elapsed.
func (repo *SourceRepo) ClaimNextDue(ctx context.Context, tx *sql.Tx, now time.Time, excludeIDs []int64) (*entity.Source, error) {
	excluded := excludeIDs
	if excluded == nil {
		excluded = []int64{}
	}
	query := fmt.Sprintf(`
SELECT %s
FROM sources
WHERE active = TRUE
  AND NOT (id = ANY($1))
  AND (last_crawled_at IS NULL OR last_crawled_at + (fetch_interval_minutes * INTERVAL '1 minute') <= $2)
ORDER BY last_crawled_at ASC NULLS FIRST
LIMIT 1
FOR UPDATE SKIP LOCKED`, sourceColumns)

	rows, err := tx.QueryContext(ctx, query, excluded, now)
	if err != nil {
		return nil, fmt.Errorf("ClaimNextDue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("ClaimNextDue: %w", err)
		}
		return nil, entity.ErrNotFound
	}
	source, err := scanSource(rows)
	if err != nil {
		return nil, fmt.Errorf("ClaimNextDue: %w", err)
	}
	return source, nil
}

func (repo *SourceRepo) GetCategory(ctx context.Context, sourceID int64) (*entity.Category, error) {
	const query = `
SELECT c.id, c.name, c.digest_section, c.keywords
FROM categories c
JOIN sources s ON s.category_id = c.id
WHERE s.id = $1`
	var cat entity.Category
	var keywordsJSON []byte
	err := repo.db.QueryRowContext(ctx, query, sourceID).Scan(&cat.ID, &cat.Name, &cat.DigestSection, &keywordsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCategory: %w", err)
	}
	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &cat.Keywords); err != nil {
			return nil, fmt.Errorf("GetCategory: unmarshal keywords: %w", err)
		}
	}
	return &cat, nil
}
