// Package digest implements digest generation: gathering undigested
// articles, summarizing and grouping them, rendering a standalone HTML
// document, and persisting the result atomically.
package digest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"secdigest/internal/domain/entity"
	"secdigest/internal/pkg/clock"
	"secdigest/internal/usecase/notify"
	"secdigest/internal/usecase/settings"

	"github.com/google/uuid"
)

// defaultOutputDir matches the database layer contract's digest artifact
// path, data/digests/digest-<date>.html.
const defaultOutputDir = "data/digests"

// sectionOrder is the fallback section order used when digest_sections
// comes back empty or fails validation; it mirrors the settings package's
// default.
var sectionOrder = []string{"security_news", "product_news", "market", "research"}

// Summarizer produces a short summary for an article's raw content. Any of
// internal/infra/summarizer's adapters (Claude, OpenAI, NoOp) satisfy this.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ArticleRepository is the slice of repository.ArticleRepository the
// generator needs.
type ArticleRepository interface {
	ListUndigested(ctx context.Context) ([]*entity.Article, error)
	AttachToDigestTx(ctx context.Context, tx *sql.Tx, articleID int64, digestID uuid.UUID, summary string) error
}

// DigestRepository is the slice of repository.DigestRepository the
// generator needs.
type DigestRepository interface {
	ExistsForDate(ctx context.Context, date time.Time) (bool, error)
	CreateTx(ctx context.Context, tx *sql.Tx, d *entity.Digest) error
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Generator runs the end-to-end digest generation algorithm for a single
// calendar day.
type Generator struct {
	DB         *sql.DB
	Articles   ArticleRepository
	Digests    DigestRepository
	Settings   *settings.Service
	Summarizer Summarizer
	Notifier   notify.Service
	Clock      clock.Clock
	OutputDir  string
}

// NewGenerator builds a Generator with defaultOutputDir; set g.OutputDir
// afterward to override it (tests do this to write under a temp dir).
func NewGenerator(db *sql.DB, articles ArticleRepository, digests DigestRepository, settingsSvc *settings.Service, summarizer Summarizer, notifier notify.Service, clk clock.Clock) *Generator {
	return &Generator{
		DB:         db,
		Articles:   articles,
		Digests:    digests,
		Settings:   settingsSvc,
		Summarizer: summarizer,
		Notifier:   notifier,
		Clock:      clk,
		OutputDir:  defaultOutputDir,
	}
}

// Generate runs the full algorithm for "today" (the generator's clock,
// UTC midnight). It returns entity.ErrDigestConflict if another process
// already generated today's digest, and entity.ErrNoUnprocessedArticles if
// there is nothing to include.
func (g *Generator) Generate(ctx context.Context) (*entity.Digest, error) {
	today := truncateToDate(g.Clock.Now())

	articles, err := g.Articles.ListUndigested(ctx)
	if err != nil {
		return nil, fmt.Errorf("list undigested articles: %w", err)
	}
	if len(articles) == 0 {
		return nil, entity.ErrNoUnprocessedArticles
	}

	sections, err := g.enabledSections(ctx)
	if err != nil {
		return nil, fmt.Errorf("load digest_sections setting: %w", err)
	}

	grouped := groupBySection(articles, sections)
	if len(grouped) == 0 {
		return nil, entity.ErrNoUnprocessedArticles
	}

	if err := g.summarizeMissing(ctx, grouped); err != nil {
		return nil, fmt.Errorf("summarize articles: %w", err)
	}

	html, err := g.render(today, grouped)
	if err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}

	htmlPath, err := g.writeHTML(today, html)
	if err != nil {
		return nil, fmt.Errorf("write digest file: %w", err)
	}

	d := &entity.Digest{
		ID:        uuid.New(),
		Date:      today,
		Status:    entity.DigestStatusReady,
		HTMLPath:  htmlPath,
		CreatedAt: g.Clock.Now(),
	}

	if err := g.commit(ctx, d, grouped); err != nil {
		return nil, err
	}

	g.notify(ctx, d, grouped)

	return d, nil
}

// enabledSections reads digest_sections and returns it as an ordered list
// of section names, falling back to sectionOrder if the stored value is
// missing or malformed.
func (g *Generator) enabledSections(ctx context.Context) ([]string, error) {
	setting, err := g.Settings.Get(ctx, settings.KeyDigestSections)
	if err != nil {
		return nil, err
	}
	names := toStringSlice(setting.Value)
	if len(names) == 0 {
		return sectionOrder, nil
	}
	return names, nil
}

// groupBySection buckets articles by DigestSection, preserving the
// digest_sections order and dropping articles whose section isn't
// enabled. Sections with no matching articles are omitted entirely.
func groupBySection(articles []*entity.Article, order []string) []entity.DigestSection {
	bySection := make(map[string][]entity.Article, len(order))
	for _, a := range articles {
		bySection[a.DigestSection] = append(bySection[a.DigestSection], *a)
	}

	sections := make([]entity.DigestSection, 0, len(order))
	for _, name := range order {
		articles, ok := bySection[name]
		if !ok || len(articles) == 0 {
			continue
		}
		sections = append(sections, entity.DigestSection{Name: name, Articles: articles})
	}
	return sections
}

// summarizeMissing summarizes every article with raw content but no
// summary yet, mutating grouped in place so the render and commit steps
// see the filled-in summaries.
func (g *Generator) summarizeMissing(ctx context.Context, grouped []entity.DigestSection) error {
	for si := range grouped {
		for ai := range grouped[si].Articles {
			a := &grouped[si].Articles[ai]
			if !a.NeedsSummary() {
				continue
			}
			summary, err := g.Summarizer.Summarize(ctx, a.RawContent)
			if err != nil {
				return fmt.Errorf("summarize article %d: %w", a.ID, err)
			}
			a.Summary = summary
		}
	}
	return nil
}

func (g *Generator) render(date time.Time, sections []entity.DigestSection) ([]byte, error) {
	data := templateData{
		Date:     date.Format("2006-01-02"),
		Sections: make([]templateSection, 0, len(sections)),
	}
	for _, sec := range sections {
		ts := templateSection{Name: sec.Name, Articles: make([]templateArticle, 0, len(sec.Articles))}
		for _, a := range sec.Articles {
			ts.Articles = append(ts.Articles, templateArticle{Title: a.Title, URL: a.URL, Summary: a.Summary})
		}
		data.Sections = append(data.Sections, ts)
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeHTML(date time.Time, html []byte) (string, error) {
	outputDir := g.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", outputDir, err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("digest-%s.html", date.Format("2006-01-02")))
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// commit inserts d and backfills digest_id/summary on every included
// article inside a single transaction, rolling back entirely on any
// failure. A unique violation on the digest's date surfaces as
// entity.ErrDigestConflict unchanged, so the scheduler can treat the run
// as skipped rather than failed.
func (g *Generator) commit(ctx context.Context, d *entity.Digest, sections []entity.DigestSection) error {
	tx, err := g.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin digest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := g.Digests.CreateTx(ctx, tx, d); err != nil {
		if errors.Is(err, entity.ErrDigestConflict) {
			return entity.ErrDigestConflict
		}
		return fmt.Errorf("create digest: %w", err)
	}

	for _, sec := range sections {
		for _, a := range sec.Articles {
			if err := g.Articles.AttachToDigestTx(ctx, tx, a.ID, d.ID, a.Summary); err != nil {
				return fmt.Errorf("attach article %d to digest: %w", a.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit digest transaction: %w", err)
	}
	return nil
}

// notify dispatches the digest-ready notification if telegram_notifications
// is enabled, and records notified_at on success. Notification failures are
// logged by notify.Service itself and never fail Generate: a digest is
// still "ready" even if nobody was told about it.
func (g *Generator) notify(ctx context.Context, d *entity.Digest, sections []entity.DigestSection) {
	setting, err := g.Settings.Get(ctx, settings.KeyTelegramNotifications)
	if err != nil {
		return
	}
	enabled, _ := setting.Value.(bool)
	if !enabled {
		return
	}

	if err := g.Notifier.NotifyDigestReady(ctx, d, sections); err != nil {
		return
	}
	_ = g.Digests.MarkNotified(ctx, d.ID, g.Clock.Now())
}

func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// toStringSlice normalizes a settings value that may arrive as
// []string (in-process default) or []interface{} (round-tripped through
// JSON storage) into a plain []string.
func toStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
