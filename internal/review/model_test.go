package review

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/fankserver/meeting-transcriber/internal/pipeline"
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/fankserver/meeting-transcriber/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tea "github.com/charmbracelet/bubbletea"
)

func key(k string) tea.KeyMsg {
	switch k {
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyEnter:
		return tea.KeyMsg{Type: tea.KeyEnter}
	case KeyDown:
		return tea.KeyMsg{Type: tea.KeyDown}
	case KeyUp:
		return tea.KeyMsg{Type: tea.KeyUp}
	case KeyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	case KeyBackspace:
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press sends a key and runs the command it produces, if any, feeding the
// resulting message back into the model
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	updated, cmd := m.Update(key(k))
	m = updated.(Model)
	if cmd == nil {
		return m
	}
	msg := cmd()
	if _, quit := msg.(tea.QuitMsg); quit {
		return m
	}
	updated, _ = m.Update(msg)
	return updated.(Model)
}

func newReviewModel(t *testing.T, speakers ...string) (Model, *session.Manager, string) {
	t.Helper()
	manager := session.NewManager()
	t.Cleanup(manager.Close)

	segments := make([]segment.Segment, len(speakers))
	for i, s := range speakers {
		segments[i] = segment.Segment{Time: fmt.Sprintf("00:%02d", i), Speaker: s, Text: "line", Confidence: 0.9}
	}
	id := manager.CreateSession("Weekly sync", "en")
	require.NoError(t, manager.CompleteTranscription(context.Background(), id, &pipeline.Result{Segments: segments}))

	m := New(context.Background(), manager, id)
	updated, _ := m.Update(m.Init()())
	return updated.(Model), manager, id
}

func speakerColumn(segments []segment.Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Speaker
	}
	return out
}

func TestNewModel(t *testing.T) {
	m := New(context.Background(), session.NewManager(), "id")
	assert.False(t, m.loaded)
	assert.False(t, m.editing)
	assert.Equal(t, "Loading transcript...", m.statusText)
}

func TestLoadTranscript(t *testing.T) {
	m, _, _ := newReviewModel(t, "Speaker 1", "Speaker 2", "Speaker 1")

	assert.True(t, m.loaded)
	assert.Equal(t, "Weekly sync", m.title)
	assert.Len(t, m.segments, 3)
	assert.Equal(t, []string{"Speaker 1", "Speaker 2"}, m.speakers)
	assert.Equal(t, "3 segments, 2 speakers", m.statusText)
}

func TestLoadUnknownTranscript(t *testing.T) {
	m := New(context.Background(), session.NewManager(), "missing")
	updated, _ := m.Update(m.Init()())
	model := updated.(Model)

	assert.False(t, model.loaded)
	assert.Contains(t, model.errorMessage, "session not found")
	assert.Error(t, model.Err())
}

func TestCursorMovement(t *testing.T) {
	m, _, _ := newReviewModel(t, "Speaker 1", "Speaker 2", "Speaker 1")

	m = press(t, m, KeyUp)
	assert.Equal(t, 0, m.cursor)

	m = press(t, m, KeyDown)
	m = press(t, m, KeyJ)
	m = press(t, m, KeyJ)
	assert.Equal(t, 2, m.cursor)

	m = press(t, m, KeyK)
	assert.Equal(t, 1, m.cursor)
}

func TestEditingRequiredForManualChanges(t *testing.T) {
	m, _, _ := newReviewModel(t, "Speaker 1", "Speaker 2")

	m = press(t, m, KeyDown)
	m = press(t, m, KeyEnter)
	assert.Equal(t, []string{"Speaker 1", "Speaker 2"}, speakerColumn(m.segments))

	m = press(t, m, KeyEdit)
	assert.True(t, m.editing)
	assert.Contains(t, m.View(), "[EDIT]")

	m = press(t, m, KeyEdit)
	assert.False(t, m.editing)
}

func TestSetSingleSegment(t *testing.T) {
	m, _, _ := newReviewModel(t, "Speaker 1", "Speaker 2", "Speaker 1", "Speaker 2")

	m = press(t, m, KeyEdit)
	m = press(t, m, KeyTab)
	assert.Equal(t, "Speaker 2", m.targetLabel())

	m = press(t, m, KeyEnter)
	require.Empty(t, m.errorMessage)
	assert.Equal(t, []string{"Speaker 2", "Speaker 2", "Speaker 1", "Speaker 2"}, speakerColumn(m.segments))
	assert.Equal(t, "Segment 1 set to Speaker 2", m.statusText)

	m = press(t, m, KeyTab)
	assert.Equal(t, "Speaker 1", m.targetLabel())
}

func TestApplyToSimilar(t *testing.T) {
	m, manager, id := newReviewModel(t, "Speaker 1", "Speaker 2", "Speaker 1", "Speaker 2")

	m = press(t, m, KeyAdd)
	for _, r := range "Guest" {
		m = press(t, m, string(r))
	}
	m = press(t, m, KeyEnter)
	require.Empty(t, m.errorMessage)
	assert.Equal(t, []string{"Speaker 1", "Speaker 2", "Guest"}, m.speakers)

	m = press(t, m, KeyEdit)
	m = press(t, m, KeyTab)
	m = press(t, m, KeyTab)
	m = press(t, m, KeyDown)
	m = press(t, m, KeySimilar)

	require.Empty(t, m.errorMessage)
	assert.Equal(t, []string{"Speaker 1", "Guest", "Speaker 1", "Guest"}, speakerColumn(m.segments))
	assert.Equal(t, "2 segments set to Guest", m.statusText)

	s, err := manager.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusReviewing, s.Status)
}

func TestAddSpeakerInput(t *testing.T) {
	m, _, _ := newReviewModel(t, "Speaker 1")

	m = press(t, m, KeyAdd)
	assert.True(t, m.adding)
	for _, r := range "Bobx" {
		m = press(t, m, string(r))
	}
	m = press(t, m, KeyBackspace)
	assert.Equal(t, "Bob", m.input)
	assert.Contains(t, m.View(), "New speaker: Bob")

	m = press(t, m, KeyEsc)
	assert.False(t, m.adding)
	assert.Equal(t, []string{"Speaker 1"}, m.speakers)

	m = press(t, m, KeyAdd)
	for _, r := range "speaker 1" {
		m = press(t, m, string(r))
	}
	m = press(t, m, KeyEnter)
	assert.Contains(t, m.errorMessage, "already exists")
}

func TestAutoCorrect(t *testing.T) {
	m, _, _ := newReviewModel(t,
		"Speaker 1", "Speaker 1", "Speaker 1",
		"Speaker 2",
		"Speaker 1", "Speaker 1", "Speaker 1",
	)

	m = press(t, m, KeyAuto)
	require.Empty(t, m.errorMessage)
	for _, s := range m.segments {
		assert.Equal(t, "Speaker 1", s.Speaker)
	}
	assert.Equal(t, "Auto-correct relabeled 1 segments", m.statusText)
}

func TestCommit(t *testing.T) {
	m, manager, id := newReviewModel(t, "Speaker 1", "Speaker 2")

	m = press(t, m, KeyCommit)
	require.Empty(t, m.errorMessage)
	assert.True(t, m.Committed())
	assert.Contains(t, m.View(), "[COMMITTED]")

	m = press(t, m, KeyEdit)
	assert.False(t, m.editing)
	assert.NotContains(t, m.renderFooter(), "Commit")

	s, err := manager.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCommitted, s.Status)
}

func TestQuit(t *testing.T) {
	m, _, _ := newReviewModel(t, "Speaker 1")

	_, cmd := m.Update(key(KeyQuit))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewScrollsWithCursor(t *testing.T) {
	speakers := make([]string, 30)
	for i := range speakers {
		speakers[i] = "Speaker 1"
	}
	m, _, _ := newReviewModel(t, speakers...)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 10})
	m = updated.(Model)
	for i := 0; i < 12; i++ {
		m = press(t, m, KeyDown)
	}

	assert.Equal(t, 12, m.cursor)
	assert.Equal(t, 12-m.visibleLines()+1, m.scroll)
	assert.Equal(t, 4+m.visibleLines()+1, strings.Count(m.View(), "\n")+1)
}

func TestTruncateToWidth(t *testing.T) {
	assert.Equal(t, "hello", truncateToWidth("hello", 10))
	assert.Equal(t, "hel…", truncateToWidth("hello", 4))
	assert.Equal(t, "", truncateToWidth("hello", 1))
}
