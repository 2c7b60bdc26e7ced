package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/correction"
	"github.com/fankserver/meeting-transcriber/internal/diarization"
	"github.com/fankserver/meeting-transcriber/internal/feedback"
	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/internal/pipeline"
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/fankserver/meeting-transcriber/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned for unknown session IDs
	ErrNotFound = errors.New("session not found")

	// ErrNotReady is returned when a transcript is not available yet
	ErrNotReady = errors.New("transcript is not ready")

	// ErrCommitted is returned when editing a committed transcript
	ErrCommitted = errors.New("transcript already committed")
)

// Status is the lifecycle state of a recording session
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusReady        Status = "ready"
	StatusReviewing    Status = "reviewing"
	StatusCommitted    Status = "committed"
	StatusFailed       Status = "failed"
)

// Session represents one recording from submission to committed transcript
type Session struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Language  string            `json:"language"`
	RequestID string            `json:"requestId,omitempty"`
	Status    Status            `json:"status"`
	Progress  int               `json:"progress"`
	Stage     string            `json:"stage,omitempty"`
	Fallback  bool              `json:"fallback,omitempty"`
	LastError string            `json:"lastError,omitempty"`
	StartTime time.Time         `json:"startTime"`
	EndTime   *time.Time        `json:"endTime,omitempty"`
	Segments  []segment.Segment `json:"segments"`
	Jobs      []jobs.Job        `json:"jobs,omitempty"`
}

func (s Session) clone() Session {
	s.Segments = segment.Clone(s.Segments)
	s.Jobs = append([]jobs.Job(nil), s.Jobs...)
	if s.EndTime != nil {
		end := *s.EndTime
		s.EndTime = &end
	}
	return s
}

type entry struct {
	info  Session
	queue *correction.Queue
}

// Manager handles recording sessions and their correction queues
type Manager struct {
	sessions  map[string]*entry
	mu        sync.RWMutex
	store     *store.Store
	events    *feedback.EventBus
	exportDir string
}

// Option configures a Manager
type Option func(*Manager)

// WithStore persists transcripts and corrections to s
func WithStore(s *store.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithEventBus publishes transcript events to bus
func WithEventBus(bus *feedback.EventBus) Option {
	return func(m *Manager) { m.events = bus }
}

// WithExportDir sets the directory for JSON exports
func WithExportDir(dir string) Option {
	return func(m *Manager) { m.exportDir = dir }
}

// NewManager creates a new session manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*entry),
		exportDir: "exports",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession registers a recording awaiting transcription
func (m *Manager) CreateSession(title, language string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := Session{
		ID:        uuid.New().String(),
		Title:     title,
		Language:  language,
		Status:    StatusPending,
		StartTime: time.Now(),
		Segments:  []segment.Segment{},
	}

	m.sessions[session.ID] = &entry{info: session}
	return session.ID
}

// UpdateProgress records the latest progress report of a session
func (m *Manager) UpdateProgress(sessionID string, percent int, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	e.info.Status = StatusTranscribing
	if percent > e.info.Progress {
		e.info.Progress = percent
	}
	e.info.Stage = stage
	return nil
}

// MarkFailed records a session whose request never reached the pipeline
func (m *Manager) MarkFailed(sessionID string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	e.info.Status = StatusFailed
	if err != nil {
		e.info.LastError = err.Error()
	}
	return nil
}

// NewRequest registers a session for a recording and returns a queue
// request whose callbacks keep that session current
func (m *Manager) NewRequest(title string, audio []byte, settings jobs.Settings, priority int) *pipeline.Request {
	sessionID := m.CreateSession(title, settings.Language)
	logger := logrus.WithField("session_id", sessionID)

	return &pipeline.Request{
		ID:       sessionID,
		Title:    title,
		Audio:    audio,
		Settings: settings,
		Priority: priority,
		OnProgress: func(percent int, stage string) {
			_ = m.UpdateProgress(sessionID, percent, stage)
		},
		OnComplete: func(result *pipeline.Result) {
			if err := m.CompleteTranscription(context.Background(), sessionID, result); err != nil {
				logger.WithError(err).Error("Failed to store transcript")
			}
		},
		OnError: func(err error) {
			logger.WithError(err).Warn("Recording was not transcribed")
			_ = m.MarkFailed(sessionID, err)
		},
	}
}

// CompleteTranscription stores the pipeline result and opens the session
// for correction
func (m *Manager) CompleteTranscription(ctx context.Context, sessionID string, result *pipeline.Result) error {
	m.mu.Lock()
	e, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	e.info.RequestID = result.RequestID
	e.info.Segments = segment.Clone(result.Segments)
	e.info.Jobs = append([]jobs.Job(nil), result.Jobs...)
	e.info.Fallback = result.Fallback
	e.info.Status = StatusReady
	e.info.Progress = 100
	e.info.Stage = pipeline.StageMessage(jobs.StatusCompleted)
	if result.Err != nil {
		e.info.LastError = result.Err.Error()
	}
	if e.queue != nil {
		e.queue.Close()
	}
	e.queue = correction.NewQueue(correction.NewSession(result.Segments))
	info := e.info.clone()
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"segments":   len(info.Segments),
		"fallback":   info.Fallback,
	}).Info("Transcript ready for review")

	if m.store == nil {
		return nil
	}
	return m.store.SaveTranscript(ctx, &store.Transcript{
		ID:        info.ID,
		Title:     info.Title,
		Language:  info.Language,
		RequestID: info.RequestID,
		Fallback:  info.Fallback,
		Segments:  info.Segments,
		CreatedAt: info.StartTime,
	})
}

// Load makes a stored transcript available as a session. Uncommitted
// transcripts are opened for correction.
func (m *Manager) Load(ctx context.Context, sessionID string) (*Session, error) {
	if s, err := m.GetSession(sessionID); err == nil {
		return s, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	t, err := m.store.Transcript(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, err
	}

	info := Session{
		ID:        t.ID,
		Title:     t.Title,
		Language:  t.Language,
		RequestID: t.RequestID,
		Status:    StatusReady,
		Progress:  100,
		Fallback:  t.Fallback,
		StartTime: t.CreatedAt,
		EndTime:   t.CommittedAt,
		Segments:  t.Segments,
	}
	e := &entry{info: info}
	if t.Committed() {
		e.info.Status = StatusCommitted
	} else {
		e.queue = correction.NewQueue(correction.NewSession(t.Segments))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionID]; ok {
		if e.queue != nil {
			e.queue.Close()
		}
		s := existing.info.clone()
		return &s, nil
	}
	m.sessions[sessionID] = e
	s := e.info.clone()
	return &s, nil
}

// Correct applies edit to the session's correction state on its single
// writer and returns the resulting segments. Changes are persisted when a
// store is configured.
func (m *Manager) Correct(ctx context.Context, sessionID string, edit func(*correction.Session) error) ([]segment.Segment, error) {
	return m.apply(ctx, sessionID, true, edit)
}

// AutoCorrect runs the diarization repair over the session's current labels
// and reports how many segments it relabeled
func (m *Manager) AutoCorrect(ctx context.Context, sessionID string) ([]segment.Segment, int, error) {
	var changed int
	segments, err := m.apply(ctx, sessionID, false, func(s *correction.Session) error {
		var err error
		changed, err = s.AutoCorrect()
		return err
	})
	return segments, changed, err
}

func (m *Manager) apply(ctx context.Context, sessionID string, manual bool, edit func(*correction.Session) error) ([]segment.Segment, error) {
	queue, err := m.queueFor(sessionID)
	if err != nil {
		return nil, err
	}

	var before, after []segment.Segment
	err = queue.Do(ctx, func(s *correction.Session) error {
		before = s.Segments()
		if err := edit(s); err != nil {
			return err
		}
		after = s.Segments()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if e, ok := m.sessions[sessionID]; ok {
		e.info.Segments = segment.Clone(after)
		e.info.Status = StatusReviewing
	}
	m.mu.Unlock()

	relabeled := diarization.Relabeled(before, after)
	if relabeled > 0 {
		m.events.Publish(feedback.Event{
			Type:      feedback.EventTranscriptCorrected,
			RequestID: sessionID,
			Data:      feedback.TranscriptCorrectedData{Relabeled: relabeled, Manual: manual},
		})
	}

	if m.store != nil {
		if err := m.store.ReplaceSegments(ctx, sessionID, after, false); err != nil {
			return after, fmt.Errorf("persist correction: %w", err)
		}
	}
	return after, nil
}

// Speakers returns the labels that can be assigned in a session
func (m *Manager) Speakers(ctx context.Context, sessionID string) ([]string, error) {
	queue, err := m.queueFor(sessionID)
	if err != nil {
		return nil, err
	}

	var speakers []string
	err = queue.Do(ctx, func(s *correction.Session) error {
		speakers = s.Speakers()
		return nil
	})
	return speakers, err
}

// Commit finalizes the working transcript and closes the correction queue
func (m *Manager) Commit(ctx context.Context, sessionID string) ([]segment.Segment, error) {
	queue, err := m.queueFor(sessionID)
	if err != nil {
		return nil, err
	}

	var final []segment.Segment
	err = queue.Do(ctx, func(s *correction.Session) error {
		var err error
		final, err = s.Commit()
		return err
	})
	if err != nil {
		return nil, err
	}
	queue.Close()

	now := time.Now()
	m.mu.Lock()
	if e, ok := m.sessions[sessionID]; ok {
		e.info.Segments = segment.Clone(final)
		e.info.Status = StatusCommitted
		e.info.EndTime = &now
		e.queue = nil
	}
	m.mu.Unlock()

	m.events.Publish(feedback.Event{
		Type:      feedback.EventTranscriptCommitted,
		RequestID: sessionID,
		Data:      feedback.TranscriptCommittedData{Segments: len(final)},
	})

	if m.store != nil {
		if err := m.store.ReplaceSegments(ctx, sessionID, final, true); err != nil {
			return final, fmt.Errorf("persist commit: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"segments":   len(final),
	}).Info("Transcript committed")

	return final, nil
}

func (m *Manager) queueFor(sessionID string) (*correction.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	switch {
	case e.info.Status == StatusCommitted:
		return nil, fmt.Errorf("%w: %s", ErrCommitted, sessionID)
	case e.queue == nil:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, sessionID, e.info.Status)
	}
	return e.queue, nil
}

// GetSession retrieves a snapshot of a session by ID
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	s := e.info.clone()
	return &s, nil
}

// ListSessions returns snapshots of all sessions, oldest first
func (m *Manager) ListSessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		sessions = append(sessions, e.info.clone())
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartTime.Before(sessions[j].StartTime) })
	return sessions
}

// ExportSession exports a session to a JSON file
func (m *Manager) ExportSession(sessionID string) (string, error) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	// #nosec G301 - Export directory needs to be readable for serving files
	if err := os.MkdirAll(m.exportDir, 0750); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	filename := fmt.Sprintf("transcript_%s_%s.json", session.ID, session.StartTime.Format("20060102_150405"))
	path := filepath.Join(m.exportDir, filename)

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error marshaling session: %w", err)
	}

	// #nosec G306 - Export files need to be readable by the user
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("error writing file: %w", err)
	}

	return path, nil
}

// Close stops every correction queue
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.sessions {
		if e.queue != nil {
			e.queue.Close()
			e.queue = nil
		}
	}
}
