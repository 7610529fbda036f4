package entity

import (
	"time"

	"github.com/google/uuid"
)

// Digest status values, matching the status column's allowed set.
const (
	DigestStatusReady = "ready"
)

// Digest represents one day's generated digest artifact.
type Digest struct {
	ID          uuid.UUID
	Date        time.Time // date-only, UTC midnight
	Status      string
	HTMLPath    string
	CreatedAt   time.Time
	NotifiedAt  *time.Time
}

// DigestSection is one rendered group of articles sharing a digest_section.
type DigestSection struct {
	Name     string
	Articles []Article
}
