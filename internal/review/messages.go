package review

import (
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/fankserver/meeting-transcriber/internal/session"
)

// LoadedMsg carries the transcript opened for review.
type LoadedMsg struct {
	Session  *session.Session
	Speakers []string
	Err      error
}

// EditResultMsg carries the transcript after a correction.
type EditResultMsg struct {
	Segments []segment.Segment
	Speakers []string
	Editing  bool
	Status   string
	Err      error
}

// CommittedMsg is sent once the transcript has been committed.
type CommittedMsg struct {
	Segments []segment.Segment
	Err      error
}

// ClearStatusMsg clears the status line after a timeout.
type ClearStatusMsg struct{}
