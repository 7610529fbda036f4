package db

import (
	"database/sql"
)

func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS categories (
    id             SERIAL PRIMARY KEY,
    name           TEXT NOT NULL UNIQUE,
    digest_section TEXT NOT NULL,
    keywords       JSONB
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sources (
    id                     SERIAL PRIMARY KEY,
    name                   TEXT NOT NULL,
    feed_url               TEXT NOT NULL UNIQUE,
    category_id            INTEGER REFERENCES categories(id),
    keywords               JSONB,
    fetch_interval_minutes INTEGER NOT NULL DEFAULT 60,
    last_crawled_at        TIMESTAMPTZ,
    active                 BOOLEAN DEFAULT TRUE,
    source_type            VARCHAR(20) NOT NULL DEFAULT 'RSS',
    scraper_config         JSONB
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id             SERIAL PRIMARY KEY,
    source_id      INTEGER REFERENCES sources(id),
    title          TEXT NOT NULL,
    url            TEXT UNIQUE,
    summary        TEXT,
    raw_content    TEXT,
    digest_section TEXT,
    digest_id      UUID,
    published_at   TIMESTAMPTZ,
    fetched_at     TIMESTAMPTZ DEFAULT now(),
    created_at     TIMESTAMPTZ DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS digests (
    id          UUID PRIMARY KEY,
    date        DATE NOT NULL UNIQUE,
    status      VARCHAR(20) NOT NULL DEFAULT 'ready',
    html_path   TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    notified_at TIMESTAMPTZ
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value JSONB NOT NULL
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS job_runs (
    id            UUID PRIMARY KEY,
    job_name      TEXT NOT NULL,
    status        VARCHAR(20) NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    details       JSONB,
    error_message TEXT
)`); err != nil {
		return err
	}

	// パフォーマンス最適化: インデックス追加
	indexes := []string{
		// ORDER BY published_at DESC で使用(全クエリで使用)
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
		// ソース別記事取得用
		`CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id)`,
		// 未配信記事のスナップショット取得用(digest_id IS NULL)
		`CREATE INDEX IF NOT EXISTS idx_articles_undigested ON articles(fetched_at DESC) WHERE digest_id IS NULL`,
		// アクティブソース絞り込み用(WHERE active = TRUE)
		`CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(active) WHERE active = TRUE`,
		// 次回フェッチ対象の選定用(last_crawled_at ASC NULLS FIRST)
		`CREATE INDEX IF NOT EXISTS idx_sources_last_crawled_at ON sources(last_crawled_at ASC NULLS FIRST) WHERE active = TRUE`,
		// ソースタイプ別フィルタリング用(Web Scraper対応)
		`CREATE INDEX IF NOT EXISTS idx_sources_source_type ON sources(source_type)`,
		// ジョブ名別の最新実行取得用
		`CREATE INDEX IF NOT EXISTS idx_job_runs_job_name_started_at ON job_runs(job_name, started_at DESC)`,
	}

	// pg_trgm拡張を有効化(ILIKE検索高速化用)
	// エラーを無視(既に存在する場合やスーパーユーザー権限がない場合)
	_, _ = db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`)

	// ILIKE検索用GINインデックス追加(マルチキーワード検索高速化)
	searchIndexes := []string{
		// 記事タイトル・サマリーのILIKE検索用
		`CREATE INDEX IF NOT EXISTS idx_articles_title_gin ON articles USING gin(title gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_summary_gin ON articles USING gin(summary gin_trgm_ops)`,
		// ソース名・URLのILIKE検索用
		`CREATE INDEX IF NOT EXISTS idx_sources_name_gin ON sources USING gin(name gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_feed_url_gin ON sources USING gin(feed_url gin_trgm_ops)`,
	}
	for _, idx := range searchIndexes {
		// pg_trgm拡張がない場合はエラーになるため無視
		_, _ = db.Exec(idx)
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	// Web Scraper対応: source_type制約追加
	// PostgreSQL特有の制約構文のため、エラーを無視(既に存在する場合)
	_, _ = db.Exec(`
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_constraint
        WHERE conname = 'chk_source_type'
    ) THEN
        ALTER TABLE sources ADD CONSTRAINT chk_source_type
        CHECK (source_type IN ('RSS', 'Webflow', 'NextJS', 'Remix'));
    END IF;
END $$;
`)

	_, _ = db.Exec(`
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_constraint
        WHERE conname = 'chk_job_run_status'
    ) THEN
        ALTER TABLE job_runs ADD CONSTRAINT chk_job_run_status
        CHECK (status IN ('running', 'success', 'error', 'skipped'));
    END IF;
END $$;
`)

	return nil
}

// MigrateDown rolls back the daily-digest schema additions. Core
// sources/articles tables are never dropped here.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS job_runs CASCADE`,
		`DROP TABLE IF EXISTS settings CASCADE`,
		`DROP TABLE IF EXISTS digests CASCADE`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
