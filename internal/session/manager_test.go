package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/correction"
	"github.com/fankserver/meeting-transcriber/internal/feedback"
	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/internal/pipeline"
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/fankserver/meeting-transcriber/internal/store"
	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSegments() []segment.Segment {
	return []segment.Segment{
		{Time: "00:00", Speaker: "Speaker 1", Text: "Welcome back.", Confidence: 0.9},
		{Time: "00:04", Speaker: "Speaker 2", Text: "Thanks.", Confidence: 0.8},
		{Time: "00:07", Speaker: "Speaker 1", Text: "Let's begin.", Confidence: 0.9},
		{Time: "00:12", Speaker: "Speaker 2", Text: "Sure.", Confidence: 0.7},
	}
}

func testResult() *pipeline.Result {
	return &pipeline.Result{
		RequestID: "req-1",
		Segments:  testSegments(),
		Jobs:      []jobs.Job{{ID: "job-1", RequestID: "req-1", Attempt: 1, Status: jobs.StatusCompleted, Progress: 100}},
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func readySession(t *testing.T, manager *Manager) string {
	t.Helper()
	id := manager.CreateSession("Standup", "en")
	require.NoError(t, manager.CompleteTranscription(context.Background(), id, testResult()))
	return id
}

func TestNewManager(t *testing.T) {
	manager := NewManager()
	assert.NotNil(t, manager)
	assert.NotNil(t, manager.sessions)
	assert.Empty(t, manager.sessions)
	assert.Equal(t, "exports", manager.exportDir)
}

func TestCreateSession(t *testing.T) {
	manager := NewManager()

	sessionID := manager.CreateSession("Algebra lecture", "de")
	assert.NotEmpty(t, sessionID)

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, session.ID)
	assert.Equal(t, "Algebra lecture", session.Title)
	assert.Equal(t, "de", session.Language)
	assert.Equal(t, StatusPending, session.Status)
	assert.NotZero(t, session.StartTime)
	assert.Nil(t, session.EndTime)
	assert.Empty(t, session.Segments)
}

func TestUpdateProgress(t *testing.T) {
	manager := NewManager()
	sessionID := manager.CreateSession("t", "en")

	require.NoError(t, manager.UpdateProgress(sessionID, 40, "Transcribing audio"))
	require.NoError(t, manager.UpdateProgress(sessionID, 30, "Transcribing audio"))

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusTranscribing, session.Status)
	assert.Equal(t, 40, session.Progress)
	assert.Equal(t, "Transcribing audio", session.Stage)

	assert.ErrorIs(t, manager.UpdateProgress("non-existent", 10, ""), ErrNotFound)
}

func TestMarkFailed(t *testing.T) {
	manager := NewManager()
	sessionID := manager.CreateSession("t", "en")

	require.NoError(t, manager.MarkFailed(sessionID, pipeline.ErrQueueFull))

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, session.Status)
	assert.Equal(t, pipeline.ErrQueueFull.Error(), session.LastError)

	_, err = manager.Correct(context.Background(), sessionID, func(*correction.Session) error { return nil })
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCompleteTranscriptionPersists(t *testing.T) {
	st := openStore(t)
	manager := NewManager(WithStore(st))
	defer manager.Close()

	sessionID := readySession(t, manager)

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, session.Status)
	assert.Equal(t, 100, session.Progress)
	assert.Equal(t, "req-1", session.RequestID)
	assert.Equal(t, testSegments(), session.Segments)
	assert.Len(t, session.Jobs, 1)

	stored, err := st.Transcript(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Standup", stored.Title)
	assert.Equal(t, testSegments(), stored.Segments)
	assert.False(t, stored.Committed())
}

func TestCorrectAppliesEdits(t *testing.T) {
	st := openStore(t)
	bus := feedback.NewEventBus(10)
	corrected := make(chan feedback.TranscriptCorrectedData, 1)
	bus.Subscribe(feedback.EventTranscriptCorrected, func(e feedback.Event) {
		corrected <- e.Data.(feedback.TranscriptCorrectedData)
	})
	defer bus.Stop()

	manager := NewManager(WithStore(st), WithEventBus(bus))
	defer manager.Close()
	sessionID := readySession(t, manager)
	ctx := context.Background()

	segments, err := manager.Correct(ctx, sessionID, func(s *correction.Session) error {
		if err := s.BeginEditing(); err != nil {
			return err
		}
		if err := s.SelectTarget("Speaker 1"); err != nil {
			return err
		}
		if err := s.Hover(1); err != nil {
			return err
		}
		_, err := s.ApplyToSimilar()
		return err
	})
	require.NoError(t, err)
	for _, seg := range segments {
		assert.Equal(t, "Speaker 1", seg.Speaker)
	}

	select {
	case data := <-corrected:
		assert.Equal(t, 2, data.Relabeled)
		assert.True(t, data.Manual)
	case <-time.After(time.Second):
		t.Fatal("no correction event")
	}

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusReviewing, session.Status)
	assert.Equal(t, segments, session.Segments)

	stored, err := st.Transcript(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, segments, stored.Segments)
}

func TestAutoCorrectPublishesAutomaticCorrection(t *testing.T) {
	bus := feedback.NewEventBus(10)
	corrected := make(chan feedback.TranscriptCorrectedData, 1)
	bus.Subscribe(feedback.EventTranscriptCorrected, func(e feedback.Event) {
		corrected <- e.Data.(feedback.TranscriptCorrectedData)
	})
	defer bus.Stop()

	manager := NewManager(WithEventBus(bus))
	defer manager.Close()
	ctx := context.Background()

	labels := []string{"Speaker 1", "Speaker 1", "Speaker 1", "Speaker 2", "Speaker 1", "Speaker 1", "Speaker 1"}
	segments := make([]segment.Segment, len(labels))
	for i, label := range labels {
		segments[i] = segment.Segment{Time: fmt.Sprintf("00:%02d", i), Speaker: label, Text: "line", Confidence: 0.9}
	}
	sessionID := manager.CreateSession("Retro", "en")
	require.NoError(t, manager.CompleteTranscription(ctx, sessionID, &pipeline.Result{Segments: segments}))

	result, changed, err := manager.AutoCorrect(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	for _, seg := range result {
		assert.Equal(t, "Speaker 1", seg.Speaker)
	}

	select {
	case data := <-corrected:
		assert.Equal(t, 1, data.Relabeled)
		assert.False(t, data.Manual)
	case <-time.After(time.Second):
		t.Fatal("no correction event")
	}

	_, _, err = manager.AutoCorrect(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorrectPropagatesEditErrors(t *testing.T) {
	manager := NewManager()
	defer manager.Close()
	sessionID := readySession(t, manager)

	_, err := manager.Correct(context.Background(), sessionID, func(s *correction.Session) error {
		return s.SetSpeaker(0, "Speaker 2")
	})
	assert.ErrorIs(t, err, correction.ErrNotEditing)

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, session.Status)
}

func TestSpeakers(t *testing.T) {
	manager := NewManager()
	defer manager.Close()
	sessionID := readySession(t, manager)
	ctx := context.Background()

	_, err := manager.Correct(ctx, sessionID, func(s *correction.Session) error {
		_, err := s.AddSpeaker("Professor")
		return err
	})
	require.NoError(t, err)

	speakers, err := manager.Speakers(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Speaker 1", "Speaker 2", "Professor"}, speakers)
}

func TestCommit(t *testing.T) {
	st := openStore(t)
	bus := feedback.NewEventBus(10)
	committed := make(chan feedback.TranscriptCommittedData, 1)
	bus.Subscribe(feedback.EventTranscriptCommitted, func(e feedback.Event) {
		committed <- e.Data.(feedback.TranscriptCommittedData)
	})
	defer bus.Stop()

	manager := NewManager(WithStore(st), WithEventBus(bus))
	defer manager.Close()
	sessionID := readySession(t, manager)
	ctx := context.Background()

	final, err := manager.Commit(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, testSegments(), final)

	select {
	case data := <-committed:
		assert.Equal(t, 4, data.Segments)
	case <-time.After(time.Second):
		t.Fatal("no commit event")
	}

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, session.Status)
	require.NotNil(t, session.EndTime)

	_, err = manager.Commit(ctx, sessionID)
	assert.ErrorIs(t, err, ErrCommitted)
	_, err = manager.Correct(ctx, sessionID, func(*correction.Session) error { return nil })
	assert.ErrorIs(t, err, ErrCommitted)

	stored, err := st.Transcript(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, stored.Committed())
}

func TestLoadFromStore(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	first := NewManager(WithStore(st))
	open := readySession(t, first)
	done := readySession(t, first)
	_, err := first.Commit(ctx, done)
	require.NoError(t, err)
	first.Close()

	second := NewManager(WithStore(st))
	defer second.Close()

	session, err := second.Load(ctx, open)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, session.Status)
	assert.Equal(t, testSegments(), session.Segments)

	_, err = second.Correct(ctx, open, func(s *correction.Session) error {
		_, err := s.AutoCorrect()
		return err
	})
	assert.NoError(t, err)

	session, err = second.Load(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, session.Status)
	assert.NotNil(t, session.EndTime)

	_, err = second.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewManager().Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessions(t *testing.T) {
	manager := NewManager()

	assert.Empty(t, manager.ListSessions())

	id1 := manager.CreateSession("first", "en")
	time.Sleep(time.Millisecond)
	id2 := manager.CreateSession("second", "en")

	sessions := manager.ListSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, id1, sessions[0].ID)
	assert.Equal(t, id2, sessions[1].ID)
}

func TestGetSessionReturnsSnapshot(t *testing.T) {
	manager := NewManager()
	defer manager.Close()
	sessionID := readySession(t, manager)

	session, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	session.Segments[0].Speaker = "mutated"

	again, err := manager.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Speaker 1", again.Segments[0].Speaker)
}

func TestExportSession(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	manager := NewManager(WithExportDir(dir))
	defer manager.Close()
	sessionID := readySession(t, manager)

	path, err := manager.ExportSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var exported Session
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, sessionID, exported.ID)
	assert.Equal(t, testSegments(), exported.Segments)

	_, err = manager.ExportSession("non-existent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportSessionFileSystemErrors(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	manager := NewManager(WithExportDir(filepath.Join(blocker, "exports")))
	sessionID := manager.CreateSession("t", "en")

	_, err := manager.ExportSession(sessionID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error creating export directory")
}

func TestConcurrentCorrections(t *testing.T) {
	manager := NewManager()
	defer manager.Close()
	sessionID := readySession(t, manager)
	ctx := context.Background()

	var wg sync.WaitGroup
	numGoroutines := 10
	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			_, err := manager.Correct(ctx, sessionID, func(s *correction.Session) error {
				_, err := s.AddSpeaker(fmt.Sprintf("Guest %d", id))
				return err
			})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := manager.GetSession(sessionID)
			assert.NoError(t, err)
			assert.NotEmpty(t, manager.ListSessions())
		}()
	}
	wg.Wait()

	speakers, err := manager.Speakers(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, speakers, 2+numGoroutines)
}

func TestSessionManagerUnknownIDs(t *testing.T) {
	manager := NewManager()
	ctx := context.Background()
	noop := func(*correction.Session) error { return nil }

	for name, err := range map[string]error{
		"complete": manager.CompleteTranscription(ctx, "", testResult()),
		"progress": manager.UpdateProgress("", 1, ""),
		"failed":   manager.MarkFailed("", errors.New("x")),
	} {
		assert.ErrorIs(t, err, ErrNotFound, name)
	}

	_, err := manager.GetSession("")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = manager.Correct(ctx, "", noop)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = manager.Commit(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = manager.Speakers(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRequestTracksQueueOutcome(t *testing.T) {
	st := openStore(t)
	manager := NewManager(WithStore(st))
	defer manager.Close()

	mock := transcriber.NewMockCapability()
	mock.Result = transcriber.MockPayload(
		[2]string{"A", "Good morning."},
		[2]string{"B", "Hi."},
	)
	orchestrator := pipeline.NewOrchestrator(mock, pipeline.Config{
		Poller: pipeline.PollerConfig{MaxAttempts: 10, Interval: time.Millisecond},
	})

	queue := pipeline.NewTranscriptionQueue(pipeline.QueueConfig{WorkerCount: 1})
	queue.Start(orchestrator)
	defer queue.Stop()

	req := manager.NewRequest("Standup", []byte("audio"), jobs.Settings{Language: "en"}, pipeline.PriorityNormal)
	require.NoError(t, queue.Submit(req))

	require.Eventually(t, func() bool {
		s, err := manager.GetSession(req.ID)
		return err == nil && s.Status == StatusReady
	}, 5*time.Second, 5*time.Millisecond)

	session, err := manager.GetSession(req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Standup", session.Title)
	assert.Equal(t, 100, session.Progress)
	assert.False(t, session.Fallback)
	assert.Len(t, session.Segments, 2)

	stored, err := st.Transcript(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Segments, 2)
}

func TestNewRequestRecordsRejection(t *testing.T) {
	manager := NewManager()
	req := manager.NewRequest("t", []byte("audio"), jobs.Settings{}, pipeline.PriorityHigh)

	req.OnError(pipeline.ErrQueueFull)

	session, err := manager.GetSession(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, session.Status)
	assert.Contains(t, session.LastError, "queue")
}
