package correction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fankserver/meeting-transcriber/internal/diarization"
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotEditing is returned for edits while the session is in viewing mode
	ErrNotEditing = errors.New("session is not in editing mode")

	// ErrSessionClosed is returned for any operation after Commit
	ErrSessionClosed = errors.New("correction session already committed")

	// ErrIndexOutOfRange is returned for segment indices outside the transcript
	ErrIndexOutOfRange = errors.New("segment index out of range")

	// ErrUnknownSpeaker is returned when a label is not in the assignable set
	ErrUnknownSpeaker = errors.New("speaker is not assignable")

	// ErrInvalidLabel is returned for empty speaker labels
	ErrInvalidLabel = errors.New("speaker label must not be empty")

	// ErrDuplicateLabel is returned when a new label collides with an existing one
	ErrDuplicateLabel = errors.New("speaker label already exists")

	// ErrNoTarget is returned by ApplyToSimilar without a selected target speaker
	ErrNoTarget = errors.New("no target speaker selected")

	// ErrNoHover is returned by ApplyToSimilar without a hovered segment
	ErrNoHover = errors.New("no segment selected")
)

// Mode is the interaction mode of a session
type Mode int

const (
	Viewing Mode = iota
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "editing"
	}
	return "viewing"
}

// Session is a human-in-the-loop relabeling pass over a working copy of a
// transcript. A Session has a single owner and is not safe for concurrent
// use; see Queue for serialized access from several goroutines.
type Session struct {
	id            string
	segments      []segment.Segment
	original      []string
	custom        []string
	pendingTarget *string
	hoverIndex    *int
	mode          Mode
	closed        bool
	logger        *logrus.Entry
}

// NewSession opens a session over a copy of segments
func NewSession(segments []segment.Segment) *Session {
	id := uuid.New().String()
	return &Session{
		id:       id,
		segments: segment.Clone(segments),
		original: segment.Speakers(segments),
		logger: logrus.WithFields(logrus.Fields{
			"correction_id": id,
		}),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Mode returns the current interaction mode
func (s *Session) Mode() Mode {
	return s.mode
}

// Segments returns a copy of the working transcript
func (s *Session) Segments() []segment.Segment {
	return segment.Clone(s.segments)
}

// Len returns the number of segments in the working transcript
func (s *Session) Len() int {
	return len(s.segments)
}

// Closed reports whether the session has been committed
func (s *Session) Closed() bool {
	return s.closed
}

// Speakers returns the assignable labels: labels present when the session
// was opened, in first-seen order, followed by custom labels in the order
// they were added
func (s *Session) Speakers() []string {
	out := make([]string, 0, len(s.original)+len(s.custom))
	out = append(out, s.original...)
	return append(out, s.custom...)
}

// PendingTarget returns the selected target speaker, if any
func (s *Session) PendingTarget() (string, bool) {
	if s.pendingTarget == nil {
		return "", false
	}
	return *s.pendingTarget, true
}

// HoverIndex returns the selected segment index, if any
func (s *Session) HoverIndex() (int, bool) {
	if s.hoverIndex == nil {
		return 0, false
	}
	return *s.hoverIndex, true
}

// BeginEditing switches the session to editing mode
func (s *Session) BeginEditing() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.mode = Editing
	return nil
}

// EndEditing returns to viewing mode and drops any pending selection
func (s *Session) EndEditing() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.mode = Viewing
	s.pendingTarget = nil
	s.hoverIndex = nil
	return nil
}

// SetSpeaker rewrites the speaker of a single segment
func (s *Session) SetSpeaker(index int, label string) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if !s.assignable(label) {
		return fmt.Errorf("%w: %q", ErrUnknownSpeaker, label)
	}

	s.logger.WithFields(logrus.Fields{
		"index": index,
		"from":  s.segments[index].Speaker,
		"to":    label,
	}).Debug("Segment speaker set")

	s.segments[index].Speaker = label
	return nil
}

// SelectTarget chooses the speaker that ApplyToSimilar will assign
func (s *Session) SelectTarget(label string) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if !s.assignable(label) {
		return fmt.Errorf("%w: %q", ErrUnknownSpeaker, label)
	}
	s.pendingTarget = &label
	return nil
}

// ClearTarget drops the selected target speaker
func (s *Session) ClearTarget() {
	s.pendingTarget = nil
}

// Hover marks the segment that ApplyToSimilar will use as its example
func (s *Session) Hover(index int) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.hoverIndex = &index
	return nil
}

// ApplyToSimilar assigns the pending target to the hovered segment and to
// every segment carrying the same speaker label anywhere in the transcript.
// The selection is consumed. Returns the number of segments that changed.
func (s *Session) ApplyToSimilar() (int, error) {
	if err := s.checkEditable(); err != nil {
		return 0, err
	}
	if s.pendingTarget == nil {
		return 0, ErrNoTarget
	}
	if s.hoverIndex == nil {
		return 0, ErrNoHover
	}

	target, index := *s.pendingTarget, *s.hoverIndex
	match := s.segments[index].Speaker

	before := s.segments
	s.segments = BulkReassign(s.segments, match, target)
	changed := diarization.Relabeled(before, s.segments)

	s.pendingTarget = nil
	s.hoverIndex = nil

	s.logger.WithFields(logrus.Fields{
		"match":   match,
		"target":  target,
		"changed": changed,
	}).Info("Bulk speaker reassignment applied")

	return changed, nil
}

// AddSpeaker adds a custom label to the assignable set. Labels are trimmed
// and compared case-insensitively against every existing label.
func (s *Session) AddSpeaker(label string) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrInvalidLabel
	}
	for _, existing := range s.Speakers() {
		if strings.EqualFold(existing, label) {
			return "", fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
		}
	}

	s.custom = append(s.custom, label)
	s.logger.WithField("label", label).Debug("Custom speaker added")
	return label, nil
}

// AutoCorrect replaces the working copy with its diarization-corrected form
// and returns the number of relabeled segments. It works in either mode.
func (s *Session) AutoCorrect() (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}

	corrected := diarization.Correct(s.segments)
	changed := diarization.Relabeled(s.segments, corrected)
	s.segments = corrected

	s.logger.WithField("changed", changed).Info("Automatic speaker correction applied")
	return changed, nil
}

// Commit ends the session and hands the working copy to the caller
func (s *Session) Commit() ([]segment.Segment, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.closed = true
	s.mode = Viewing
	s.pendingTarget = nil
	s.hoverIndex = nil

	out := s.segments
	s.segments = nil

	s.logger.WithField("segments", len(out)).Info("Correction session committed")
	return out, nil
}

func (s *Session) checkEditable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.mode != Editing {
		return ErrNotEditing
	}
	return nil
}

func (s *Session) checkIndex(index int) error {
	if index < 0 || index >= len(s.segments) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.segments))
	}
	return nil
}

func (s *Session) assignable(label string) bool {
	for _, l := range s.Speakers() {
		if l == label {
			return true
		}
	}
	return false
}
