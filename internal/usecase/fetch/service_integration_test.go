//go:build integration

package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"secdigest/internal/domain/entity"
	"secdigest/internal/infra/fetcher"
	fetchUC "secdigest/internal/usecase/fetch"
)

func TestServiceIntegration_ContentEnhancement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		html := `<!DOCTYPE html>
<html><head><title>Full Article</title></head>
<body><article><h1>Full Article Content</h1>
<p>This is the full article content fetched from the web page.</p>
<p>It contains much more information than the RSS summary.</p>
<p>This allows for better downstream summarization quality.</p>
</article></body>
</html>`
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(html)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	config := fetcher.DefaultConfig()
	contentFetcher := fetcher.NewReadabilityFetcher(config)

	feedItems := []fetchUC.FeedItem{
		{Title: "Article with sufficient content", URL: server.URL + "/sufficient", Content: strings.Repeat("Lorem ipsum dolor sit amet. ", 60), PublishedAt: time.Now()},
		{Title: "Another article with sufficient content", URL: server.URL + "/sufficient2", Content: strings.Repeat("This article has enough content. ", 50), PublishedAt: time.Now()},
		{Title: "Article with short summary", URL: server.URL + "/short1", Content: "Short RSS summary", PublishedAt: time.Now()},
		{Title: "Another short article", URL: server.URL + "/short2", Content: "Brief description", PublishedAt: time.Now()},
		{Title: "Third short article", URL: server.URL + "/short3", Content: "Minimal content", PublishedAt: time.Now()},
	}

	mockFeedFetcher := &stubFeedFetcher{items: feedItems}
	articleRepo := &stubArticleRepo{existsMap: make(map[string]bool)}
	source := &entity.Source{ID: 1, Name: "Test Source", FeedURL: "https://example.com/feed", Active: true}
	sourceRepo := &stubSourceRepo{sources: []*entity.Source{source}}

	service := fetchUC.NewService(
		sourceRepo, articleRepo, mockFeedFetcher, nil, contentFetcher,
		fetchUC.ContentFetchConfig{Parallelism: 10, Threshold: 1500},
	)

	stats, err := service.CrawlAllSources(context.Background())
	if err != nil {
		t.Fatalf("CrawlAllSources() error = %v", err)
	}
	if stats.FeedItems != 5 {
		t.Errorf("expected 5 feed items, got %d", stats.FeedItems)
	}
	if stats.Inserted != 5 {
		t.Errorf("expected 5 articles inserted, got %d", stats.Inserted)
	}
	if len(articleRepo.articles) != 5 {
		t.Errorf("expected 5 articles in repo, got %d", len(articleRepo.articles))
	}
	if stats.Duplicated != 0 {
		t.Errorf("expected 0 duplicates, got %d", stats.Duplicated)
	}
}

func TestServiceIntegration_Parallelism(t *testing.T) {
	var (
		maxConcurrentFetches int32
		currentFetches       int32
		mu                   sync.Mutex
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&currentFetches, 1)
		defer atomic.AddInt32(&currentFetches, -1)

		mu.Lock()
		if current > maxConcurrentFetches {
			maxConcurrentFetches = current
		}
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)

		html := `<!DOCTYPE html>
<html><head><title>Article</title></head>
<body><article><p>Content</p></article></body>
</html>`
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(html)); err != nil {
			t.Logf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	feedItems := make([]fetchUC.FeedItem, 20)
	for i := 0; i < 20; i++ {
		feedItems[i] = fetchUC.FeedItem{Title: "Article", URL: server.URL, Content: "Short", PublishedAt: time.Now()}
	}

	config := fetcher.DefaultConfig()
	contentFetcher := fetcher.NewReadabilityFetcher(config)

	articleRepo := &stubArticleRepo{existsMap: make(map[string]bool)}
	source := &entity.Source{ID: 1, Name: "Test Source", FeedURL: "https://example.com/feed", Active: true}
	sourceRepo := &stubSourceRepo{sources: []*entity.Source{source}}

	service := fetchUC.NewService(
		sourceRepo, articleRepo,
		&stubFeedFetcher{items: feedItems},
		nil, contentFetcher,
		fetchUC.ContentFetchConfig{Parallelism: 10, Threshold: 1500},
	)

	stats, err := service.CrawlAllSources(context.Background())
	if err != nil {
		t.Fatalf("CrawlAllSources() error = %v", err)
	}

	if maxConcurrentFetches > 10 {
		t.Errorf("expected max 10 concurrent fetches, got %d", maxConcurrentFetches)
	}
	if stats.Inserted != 20 {
		t.Errorf("expected 20 items processed, got %d (possible deadlock)", stats.Inserted)
	}
	if stats.FeedItems != 20 {
		t.Errorf("expected 20 feed items, got %d", stats.FeedItems)
	}
}
