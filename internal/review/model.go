// Package review is a terminal UI for correcting speaker labels in a
// transcript before it is committed.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fankserver/meeting-transcriber/internal/correction"
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/fankserver/meeting-transcriber/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

// Model is the bubbletea model of the review screen.
type Model struct {
	ctx       context.Context
	sessions  *session.Manager
	sessionID string

	// Transcript
	title     string
	segments  []segment.Segment
	speakers  []string
	loaded    bool
	committed bool

	// Correction state
	cursor  int
	editing bool
	target  int

	// Speaker input
	adding bool
	input  string

	// UI state
	width  int
	height int
	scroll int

	statusText   string
	errorMessage string
}

// New creates a review model for one transcript session.
func New(ctx context.Context, sessions *session.Manager, sessionID string) Model {
	return Model{
		ctx:        ctx,
		sessions:   sessions,
		sessionID:  sessionID,
		statusText: "Loading transcript...",
	}
}

// Init loads the transcript.
func (m Model) Init() tea.Cmd {
	return loadCmd(m.ctx, m.sessions, m.sessionID)
}

func loadCmd(ctx context.Context, sessions *session.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		s, err := sessions.Load(ctx, id)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		if s.Status == session.StatusCommitted {
			return LoadedMsg{Session: s, Speakers: segment.Speakers(s.Segments)}
		}
		speakers, err := sessions.Speakers(ctx, id)
		return LoadedMsg{Session: s, Speakers: speakers, Err: err}
	}
}

// correctCmd runs edit on the session's correction queue.
func correctCmd(ctx context.Context, sessions *session.Manager, id string, edit func(*correction.Session) (string, error)) tea.Cmd {
	return func() tea.Msg {
		var (
			status   string
			speakers []string
			editing  bool
		)
		segments, err := sessions.Correct(ctx, id, func(c *correction.Session) error {
			var err error
			status, err = edit(c)
			speakers = c.Speakers()
			editing = c.Mode() == correction.Editing
			return err
		})
		return EditResultMsg{Segments: segments, Speakers: speakers, Editing: editing, Status: status, Err: err}
	}
}

func autoCorrectCmd(ctx context.Context, sessions *session.Manager, id string, editing bool) tea.Cmd {
	return func() tea.Msg {
		segments, changed, err := sessions.AutoCorrect(ctx, id)
		if err != nil {
			return EditResultMsg{Err: err}
		}
		speakers, err := sessions.Speakers(ctx, id)
		return EditResultMsg{
			Segments: segments,
			Speakers: speakers,
			Editing:  editing,
			Status:   fmt.Sprintf("Auto-correct relabeled %d segments", changed),
			Err:      err,
		}
	}
}

func commitCmd(ctx context.Context, sessions *session.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		segments, err := sessions.Commit(ctx, id)
		return CommittedMsg{Segments: segments, Err: err}
	}
}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.adding {
			return m.handleInput(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.keepCursorVisible()
		return m, nil

	case LoadedMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			m.statusText = ""
			return m, nil
		}
		m.loaded = true
		m.title = msg.Session.Title
		m.segments = msg.Session.Segments
		m.speakers = msg.Speakers
		m.committed = msg.Session.Status == session.StatusCommitted
		m.statusText = fmt.Sprintf("%d segments, %d speakers", len(m.segments), len(m.speakers))
		return m, nil

	case EditResultMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.segments = msg.Segments
		m.speakers = msg.Speakers
		m.editing = msg.Editing
		if m.target >= len(m.speakers) {
			m.target = 0
		}
		m.statusText = msg.Status
		return m, clearStatusCmd()

	case CommittedMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.segments = msg.Segments
		m.committed = true
		m.editing = false
		m.statusText = "Transcript committed"
		return m, nil

	case ClearStatusMsg:
		m.statusText = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit

	case KeyUp, KeyK:
		if m.cursor > 0 {
			m.cursor--
			m.keepCursorVisible()
		}
		return m, nil

	case KeyDown, KeyJ:
		if m.cursor < len(m.segments)-1 {
			m.cursor++
			m.keepCursorVisible()
		}
		return m, nil
	}

	if !m.loaded || m.committed {
		return m, nil
	}

	switch msg.String() {
	case KeyEdit:
		editing := m.editing
		return m, correctCmd(m.ctx, m.sessions, m.sessionID, func(c *correction.Session) (string, error) {
			if editing {
				return "Viewing", c.EndEditing()
			}
			return "Editing", c.BeginEditing()
		})

	case KeyTab:
		if m.editing && len(m.speakers) > 0 {
			m.target = (m.target + 1) % len(m.speakers)
		}
		return m, nil

	case KeyEnter:
		if !m.editing || len(m.segments) == 0 {
			return m, nil
		}
		index, label := m.cursor, m.targetLabel()
		return m, correctCmd(m.ctx, m.sessions, m.sessionID, func(c *correction.Session) (string, error) {
			if err := c.SetSpeaker(index, label); err != nil {
				return "", err
			}
			return fmt.Sprintf("Segment %d set to %s", index+1, label), nil
		})

	case KeySimilar:
		if !m.editing || len(m.segments) == 0 {
			return m, nil
		}
		index, label := m.cursor, m.targetLabel()
		return m, correctCmd(m.ctx, m.sessions, m.sessionID, func(c *correction.Session) (string, error) {
			if err := c.SelectTarget(label); err != nil {
				return "", err
			}
			if err := c.Hover(index); err != nil {
				return "", err
			}
			changed, err := c.ApplyToSimilar()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d segments set to %s", changed, label), nil
		})

	case KeyAuto:
		return m, autoCorrectCmd(m.ctx, m.sessions, m.sessionID, m.editing)

	case KeyAdd:
		m.adding = true
		m.input = ""
		return m, nil

	case KeyCommit:
		return m, commitCmd(m.ctx, m.sessions, m.sessionID)
	}

	return m, nil
}

// handleInput collects a new speaker label.
func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.adding = false
		m.input = ""
		return m, nil

	case tea.KeyEnter:
		label := m.input
		m.adding = false
		m.input = ""
		return m, correctCmd(m.ctx, m.sessions, m.sessionID, func(c *correction.Session) (string, error) {
			added, err := c.AddSpeaker(label)
			if err != nil {
				return "", err
			}
			return "Added " + added, nil
		})

	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return m, nil

	case tea.KeySpace:
		m.input += " "
		return m, nil

	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

func (m Model) targetLabel() string {
	if m.target < len(m.speakers) {
		return m.speakers[m.target]
	}
	return segment.DefaultSpeaker
}

func (m *Model) keepCursorVisible() {
	visible := m.visibleLines()
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	}
	if m.cursor >= m.scroll+visible {
		m.scroll = m.cursor - visible + 1
	}
}

func (m Model) visibleLines() int {
	if m.height == 0 {
		return 20
	}
	// header, divider, divider, status, footer
	return max(3, m.height-6)
}

// View renders the review screen.
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", width)))
	sections = append(sections, m.renderSegments(width)...)
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", width)))

	switch {
	case m.errorMessage != "":
		sections = append(sections, ErrorStyle.Render("Error: "+m.errorMessage))
	case m.adding:
		sections = append(sections, TargetStyle.Render("New speaker: ")+m.input+"█")
	case m.statusText != "":
		sections = append(sections, StatusStyle.Render(m.statusText))
	}

	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	header := TitleStyle.Render("REVIEW")
	if m.title != "" {
		header += DimStyle.Render(" " + m.title)
	}
	switch {
	case m.committed:
		header += " " + CommittedBadgeStyle.Render("[COMMITTED]")
	case m.editing:
		header += " " + EditBadgeStyle.Render("[EDIT]") + " target " + TargetStyle.Render(m.targetLabel())
	}
	return header
}

func (m Model) renderSegments(width int) []string {
	if len(m.segments) == 0 {
		return []string{DimStyle.Render("No segments")}
	}

	index := make(map[string]int, len(m.speakers))
	for i, s := range m.speakers {
		index[s] = i
	}

	end := min(len(m.segments), m.scroll+m.visibleLines())
	lines := make([]string, 0, end-m.scroll)
	for i := m.scroll; i < end; i++ {
		seg := m.segments[i]
		pos, ok := index[seg.Speaker]
		if !ok {
			pos = -1
		}

		marker := "  "
		if i == m.cursor {
			marker = SelectedStyle.Render("▸ ")
		}
		prefix := marker + TimestampStyle.Render(seg.Time) + " " + speakerStyle(pos).Render(seg.Speaker) + " "
		text := truncateToWidth(seg.Text, width-lipgloss.Width(prefix))
		if i == m.cursor {
			text = SelectedStyle.Render(text)
		}
		lines = append(lines, prefix+text)
	}
	return lines
}

func (m Model) renderFooter() string {
	var parts []string
	add := func(key, desc string) {
		parts = append(parts, FooterKeyStyle.Render(key)+FooterDescStyle.Render(" "+desc))
	}

	add("j/k", "Move")
	if !m.committed {
		if m.editing {
			add("e", "View")
			add("Tab", "Target")
			add("Enter", "Set")
			add("r", "Set similar")
		} else {
			add("e", "Edit")
		}
		add("a", "Auto")
		add("n", "Speaker")
		add("c", "Commit")
	}
	add("q", "Quit")
	return strings.Join(parts, "  ")
}

func truncateToWidth(s string, width int) string {
	if width <= 1 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

// Committed reports whether the transcript was committed during review.
func (m Model) Committed() bool {
	return m.committed
}

// Err returns the last error shown to the user, if any.
func (m Model) Err() error {
	if m.errorMessage == "" {
		return nil
	}
	return errors.New(m.errorMessage)
}
