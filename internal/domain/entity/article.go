// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Article and Source, along with
// their validation rules and domain-specific errors.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Article represents a news article entity in the system.
// It contains the article's metadata, content summary, and relationships to sources.
type Article struct {
	ID            int64
	SourceID      int64
	Title         string
	URL           string
	Summary       string
	RawContent    string
	DigestSection string
	DigestID      *uuid.UUID
	PublishedAt   time.Time
	FetchedAt     time.Time
	CreatedAt     time.Time
}

// NeedsSummary reports whether the article has raw content waiting to be
// summarized but no summary yet, matching the digest generator's
// on-demand summarization gate.
func (a *Article) NeedsSummary() bool {
	return a.Summary == "" && a.RawContent != ""
}
