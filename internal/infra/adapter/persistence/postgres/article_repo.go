package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"secdigest/internal/domain/entity"
	"secdigest/internal/pkg/search"
	"secdigest/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ArticleRepo struct{ db *sql.DB }

func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

const articleColumns = `id, source_id, title, url, summary, raw_content, digest_section,
       digest_id, published_at, fetched_at, created_at`

func scanArticle(scanner interface{ Scan(...interface{}) error }, article *entity.Article) error {
	var digestID *uuid.UUID
	if err := scanner.Scan(
		&article.ID, &article.SourceID, &article.Title, &article.URL, &article.Summary,
		&article.RawContent, &article.DigestSection, &digestID,
		&article.PublishedAt, &article.FetchedAt, &article.CreatedAt,
	); err != nil {
		return err
	}
	article.DigestID = digestID
	return nil
}

func (repo *ArticleRepo) List(ctx context.Context) ([]*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles ORDER BY published_at DESC`, articleColumns)
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, 100)
	for rows.Next() {
		var article entity.Article
		if err := scanArticle(rows, &article); err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		articles = append(articles, &article)
	}
	return articles, rows.Err()
}

func (repo *ArticleRepo) ListWithSource(ctx context.Context) ([]repository.ArticleWithSource, error) {
	query := fmt.Sprintf(`
SELECT %s, s.name AS source_name
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
ORDER BY a.published_at DESC`, prefixColumns("a", articleColumns))
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListWithSource: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]repository.ArticleWithSource, 0, 100)
	for rows.Next() {
		var article entity.Article
		var sourceName string
		if err := scanArticleWithSourceName(rows, &article, &sourceName); err != nil {
			return nil, fmt.Errorf("ListWithSource: Scan: %w", err)
		}
		result = append(result, repository.ArticleWithSource{Article: &article, SourceName: sourceName})
	}
	return result, rows.Err()
}

// ListWithSourcePaginated retrieves paginated articles with source names.
func (repo *ArticleRepo) ListWithSourcePaginated(ctx context.Context, offset, limit int) ([]repository.ArticleWithSource, error) {
	query := fmt.Sprintf(`
SELECT %s, s.name AS source_name
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
ORDER BY a.published_at DESC
LIMIT $1 OFFSET $2`, prefixColumns("a", articleColumns))

	rows, err := repo.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListWithSourcePaginated: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]repository.ArticleWithSource, 0, limit)
	for rows.Next() {
		var article entity.Article
		var sourceName string
		if err := scanArticleWithSourceName(rows, &article, &sourceName); err != nil {
			return nil, fmt.Errorf("ListWithSourcePaginated: Scan: %w", err)
		}
		result = append(result, repository.ArticleWithSource{Article: &article, SourceName: sourceName})
	}
	return result, rows.Err()
}

func scanArticleWithSourceName(rows *sql.Rows, article *entity.Article, sourceName *string) error {
	var digestID *uuid.UUID
	if err := rows.Scan(
		&article.ID, &article.SourceID, &article.Title, &article.URL, &article.Summary,
		&article.RawContent, &article.DigestSection, &digestID,
		&article.PublishedAt, &article.FetchedAt, &article.CreatedAt, sourceName,
	); err != nil {
		return err
	}
	article.DigestID = digestID
	return nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// CountArticles returns the total number of articles in the database.
func (repo *ArticleRepo) CountArticles(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM articles`
	var count int64
	err := repo.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("CountArticles: %w", err)
	}
	return count, nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE id = $1 LIMIT 1`, articleColumns)
	var article entity.Article
	row := repo.db.QueryRowContext(ctx, query, id)
	err := scanArticle(row, &article)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &article, nil
}

func (repo *ArticleRepo) GetWithSource(ctx context.Context, id int64) (*entity.Article, string, error) {
	query := fmt.Sprintf(`
SELECT %s, s.name AS source_name
FROM articles a
INNER JOIN sources s ON a.source_id = s.id
WHERE a.id = $1
LIMIT 1`, prefixColumns("a", articleColumns))
	var article entity.Article
	var sourceName string
	var digestID *uuid.UUID
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&article.ID, &article.SourceID, &article.Title, &article.URL, &article.Summary,
		&article.RawContent, &article.DigestSection, &digestID,
		&article.PublishedAt, &article.FetchedAt, &article.CreatedAt, &sourceName,
	)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("GetWithSource: %w", err)
	}
	article.DigestID = digestID
	return &article, sourceName, nil
}

func (repo *ArticleRepo) Search(ctx context.Context, keyword string) ([]*entity.Article, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM articles
WHERE title ILIKE $1 OR summary ILIKE $1
ORDER BY published_at DESC`, articleColumns)
	param := "%" + keyword + "%"
	rows, err := repo.db.QueryContext(ctx, query, param)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, 100)
	for rows.Next() {
		var article entity.Article
		if err := scanArticle(rows, &article); err != nil {
			return nil, fmt.Errorf("Search: Scan: %w", err)
		}
		articles = append(articles, &article)
	}
	return articles, rows.Err()
}

func (repo *ArticleRepo) SearchWithFilters(ctx context.Context, keywords []string, filters repository.ArticleSearchFilters) ([]*entity.Article, error) {
	if len(keywords) == 0 {
		return []*entity.Article{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, search.DefaultSearchTimeout)
	defer cancel()

	var whereClauses []string
	var args []interface{}
	paramIndex := 1

	for _, keyword := range keywords {
		escapedKeyword := search.EscapeILIKE(keyword)
		whereClauses = append(whereClauses, fmt.Sprintf("(title ILIKE $%d OR summary ILIKE $%d)", paramIndex, paramIndex))
		args = append(args, escapedKeyword)
		paramIndex++
	}

	if filters.SourceID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("source_id = $%d", paramIndex))
		args = append(args, *filters.SourceID)
		paramIndex++
	}

	if filters.From != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("published_at >= $%d", paramIndex))
		args = append(args, *filters.From)
		paramIndex++
	}

	if filters.To != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("published_at <= $%d", paramIndex))
		args = append(args, *filters.To)
	}

	query := fmt.Sprintf(`
SELECT %s
FROM articles
WHERE `, articleColumns) + strings.Join(whereClauses, " AND ") + `
ORDER BY published_at DESC`

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchWithFilters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, 100)
	for rows.Next() {
		var article entity.Article
		if err := scanArticle(rows, &article); err != nil {
			return nil, fmt.Errorf("SearchWithFilters: Scan: %w", err)
		}
		articles = append(articles, &article)
	}
	return articles, rows.Err()
}

func (repo *ArticleRepo) Create(ctx context.Context, article *entity.Article) error {
	const query = `
INSERT INTO articles
	   (source_id, title, url, summary, raw_content, digest_section, published_at, fetched_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.ExecContext(ctx, query,
		article.SourceID, article.Title, article.URL, article.Summary, article.RawContent,
		article.DigestSection, article.PublishedAt, article.FetchedAt, article.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// CreateTx is Create scoped to tx, used when releasing a source claim and
// inserting its newly fetched articles atomically.
func (repo *ArticleRepo) CreateTx(ctx context.Context, tx *sql.Tx, article *entity.Article) error {
	const query = `
INSERT INTO articles
	   (source_id, title, url, summary, raw_content, digest_section, published_at, fetched_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := tx.ExecContext(ctx, query,
		article.SourceID, article.Title, article.URL, article.Summary, article.RawContent,
		article.DigestSection, article.PublishedAt, article.FetchedAt, article.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateTx: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) Update(ctx context.Context, article *entity.Article) error {
	const query = `
UPDATE articles SET
       source_id    = $1,
       title        = $2,
       url          = $3,
       summary      = $4,
       published_at = $5
WHERE id = $6`
	res, err := repo.db.ExecContext(ctx, query,
		article.SourceID, article.Title, article.URL,
		article.Summary, article.PublishedAt, article.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: no rows affected")
	}
	return nil
}

func (repo *ArticleRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM articles WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}

func (repo *ArticleRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`
	var existsFlag bool
	err := repo.db.QueryRowContext(ctx, query, url).Scan(&existsFlag)
	if err != nil {
		return false, fmt.Errorf("ExistsByURL: %w", err)
	}
	return existsFlag, nil
}

// ExistsByURLBatch はバッチでURL存在チェックを行い、N+1問題を解消する
func (repo *ArticleRepo) ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return make(map[string]bool), nil
	}

	const query = `SELECT url FROM articles WHERE url = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(urls))
	if err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("ExistsByURLBatch: Scan: %w", err)
		}
		result[url] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: rows.Err: %w", err)
	}

	return result, nil
}

// ListUndigested returns articles with no digest_id yet, newest-fetched
// first, matching the digest generator's snapshot read.
func (repo *ArticleRepo) ListUndigested(ctx context.Context) ([]*entity.Article, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM articles
WHERE digest_id IS NULL
ORDER BY fetched_at DESC`, articleColumns)
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListUndigested: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, 100)
	for rows.Next() {
		var article entity.Article
		if err := scanArticle(rows, &article); err != nil {
			return nil, fmt.Errorf("ListUndigested: Scan: %w", err)
		}
		articles = append(articles, &article)
	}
	return articles, rows.Err()
}

// AttachToDigestTx assigns digestID and summary to an article as part of
// the digest generator's single commit/rollback transaction.
func (repo *ArticleRepo) AttachToDigestTx(ctx context.Context, tx *sql.Tx, articleID int64, digestID uuid.UUID, summary string) error {
	const query = `UPDATE articles SET digest_id = $1, summary = $2 WHERE id = $3`
	_, err := tx.ExecContext(ctx, query, digestID, summary, articleID)
	if err != nil {
		return fmt.Errorf("AttachToDigestTx: %w", err)
	}
	return nil
}
