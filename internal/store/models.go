// Package store persists transcripts in SQLite.
package store

import (
	"time"

	"github.com/fankserver/meeting-transcriber/internal/segment"
)

// Transcript is a stored recording transcript with its segments in order
type Transcript struct {
	ID          string
	Title       string
	Language    string
	RequestID   string
	Fallback    bool
	Segments    []segment.Segment
	CreatedAt   time.Time
	CommittedAt *time.Time
}

// Committed reports whether a reviewer finished correcting the transcript
func (t *Transcript) Committed() bool {
	return t.CommittedAt != nil
}

// Summary is the listing view of a transcript
type Summary struct {
	ID          string
	Title       string
	Language    string
	Segments    int
	Fallback    bool
	CreatedAt   time.Time
	CommittedAt *time.Time
}
