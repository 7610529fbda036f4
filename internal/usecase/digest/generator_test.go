package digest_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"secdigest/internal/domain/entity"
	"secdigest/internal/usecase/digest"
	"secdigest/internal/usecase/notify"
	"secdigest/internal/usecase/settings"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type stubArticleRepo struct {
	articles []*entity.Article
	attached map[int64]string
}

func (s *stubArticleRepo) ListUndigested(ctx context.Context) ([]*entity.Article, error) {
	return s.articles, nil
}

func (s *stubArticleRepo) AttachToDigestTx(ctx context.Context, tx *sql.Tx, articleID int64, digestID uuid.UUID, summary string) error {
	if s.attached == nil {
		s.attached = make(map[int64]string)
	}
	s.attached[articleID] = summary
	return nil
}

type stubDigestRepo struct {
	exists    bool
	created   *entity.Digest
	createErr error
}

func (s *stubDigestRepo) ExistsForDate(ctx context.Context, date time.Time) (bool, error) {
	return s.exists, nil
}

func (s *stubDigestRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *entity.Digest) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = d
	return nil
}

func (s *stubDigestRepo) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type stubSettingsRepo struct{ values map[string]interface{} }

func (s *stubSettingsRepo) Get(ctx context.Context, key string) (interface{}, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}
func (s *stubSettingsRepo) Upsert(ctx context.Context, key string, value interface{}) error {
	if s.values == nil {
		s.values = make(map[string]interface{})
	}
	s.values[key] = value
	return nil
}
func (s *stubSettingsRepo) Delete(ctx context.Context, key string) error {
	delete(s.values, key)
	return nil
}
func (s *stubSettingsRepo) GetAll(ctx context.Context) (map[string]interface{}, error) {
	return s.values, nil
}

type stubSummarizer struct{ calls int }

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.calls++
	return "summary of: " + text, nil
}

type stubNotifier struct{ called bool }

func (s *stubNotifier) NotifyDigestReady(ctx context.Context, d *entity.Digest, sections []entity.DigestSection) error {
	s.called = true
	return nil
}
func (s *stubNotifier) GetChannelHealth() []notify.ChannelHealthStatus { return nil }
func (s *stubNotifier) Shutdown(ctx context.Context) error             { return nil }

func newTestGenerator(t *testing.T, articles *stubArticleRepo, digests *stubDigestRepo, settingsValues map[string]interface{}, notifier *stubNotifier, now time.Time) (*digest.Generator, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	settingsSvc := settings.NewService(&stubSettingsRepo{values: settingsValues})
	gen := digest.NewGenerator(db, articles, digests, settingsSvc, &stubSummarizer{}, notifier, fakeClock{now: now})
	gen.OutputDir = t.TempDir()
	return gen, db, mock
}

func TestGenerator_Generate_NoUnprocessedArticles(t *testing.T) {
	articles := &stubArticleRepo{articles: nil}
	digests := &stubDigestRepo{}
	gen, _, _ := newTestGenerator(t, articles, digests, nil, &stubNotifier{}, time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC))

	_, err := gen.Generate(context.Background())
	if !errors.Is(err, entity.ErrNoUnprocessedArticles) {
		t.Fatalf("Generate err=%v, want entity.ErrNoUnprocessedArticles", err)
	}
}

func TestGenerator_Generate_NoEnabledSectionsMatch(t *testing.T) {
	articles := &stubArticleRepo{articles: []*entity.Article{
		{ID: 1, DigestSection: "research", Title: "t1", URL: "https://a.example/1", RawContent: "c1"},
	}}
	digests := &stubDigestRepo{}
	settingsValues := map[string]interface{}{"digest_sections": []interface{}{"security_news"}}
	gen, _, _ := newTestGenerator(t, articles, digests, settingsValues, &stubNotifier{}, time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC))

	_, err := gen.Generate(context.Background())
	if !errors.Is(err, entity.ErrNoUnprocessedArticles) {
		t.Fatalf("Generate err=%v, want entity.ErrNoUnprocessedArticles", err)
	}
}

func TestGenerator_Generate_Success(t *testing.T) {
	articles := &stubArticleRepo{articles: []*entity.Article{
		{ID: 1, DigestSection: "security_news", Title: "CVE disclosed", URL: "https://a.example/1", RawContent: "full body"},
		{ID: 2, DigestSection: "market", Title: "Funding round", URL: "https://a.example/2", Summary: "already summarized"},
	}}
	digests := &stubDigestRepo{}
	settingsValues := map[string]interface{}{
		"digest_sections":         []interface{}{"security_news", "market"},
		"telegram_notifications": true,
	}
	notifier := &stubNotifier{}
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	gen, db, mock := newTestGenerator(t, articles, digests, settingsValues, notifier, now)

	mock.ExpectBegin()
	mock.ExpectCommit()

	d, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate err=%v", err)
	}
	if d.Status != entity.DigestStatusReady {
		t.Errorf("Status = %q, want ready", d.Status)
	}
	if !d.Date.Equal(time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", d.Date)
	}
	if _, err := os.Stat(d.HTMLPath); err != nil {
		t.Errorf("expected HTML file at %s: %v", d.HTMLPath, err)
	}
	if filepath.Base(d.HTMLPath) != "digest-2026-07-30.html" {
		t.Errorf("HTMLPath basename = %q", filepath.Base(d.HTMLPath))
	}
	if articles.attached[1] == "" {
		t.Error("expected article 1 to be summarized and attached")
	}
	if articles.attached[2] != "already summarized" {
		t.Errorf("article 2 summary = %q, want unchanged", articles.attached[2])
	}
	if digests.created == nil {
		t.Error("expected CreateTx to have been called")
	}
	if !notifier.called {
		t.Error("expected notifier to be called when telegram_notifications is true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
	_ = db
}

func TestGenerator_Generate_DigestConflictPropagates(t *testing.T) {
	articles := &stubArticleRepo{articles: []*entity.Article{
		{ID: 1, DigestSection: "security_news", Title: "t", URL: "https://a.example/1", RawContent: "c"},
	}}
	digests := &stubDigestRepo{createErr: entity.ErrDigestConflict}
	settingsValues := map[string]interface{}{"digest_sections": []interface{}{"security_news"}}
	gen, _, mock := newTestGenerator(t, articles, digests, settingsValues, &stubNotifier{}, time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := gen.Generate(context.Background())
	if !errors.Is(err, entity.ErrDigestConflict) {
		t.Fatalf("Generate err=%v, want entity.ErrDigestConflict", err)
	}
}

func TestGenerator_Generate_NoNotifyWhenDisabled(t *testing.T) {
	articles := &stubArticleRepo{articles: []*entity.Article{
		{ID: 1, DigestSection: "security_news", Title: "t", URL: "https://a.example/1", RawContent: "c"},
	}}
	digests := &stubDigestRepo{}
	settingsValues := map[string]interface{}{
		"digest_sections":         []interface{}{"security_news"},
		"telegram_notifications": false,
	}
	notifier := &stubNotifier{}
	gen, _, mock := newTestGenerator(t, articles, digests, settingsValues, notifier, time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectCommit()

	if _, err := gen.Generate(context.Background()); err != nil {
		t.Fatalf("Generate err=%v", err)
	}
	if notifier.called {
		t.Error("expected notifier not to be called when telegram_notifications is false")
	}
}
