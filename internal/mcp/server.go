package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/correction"
	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/internal/pipeline"
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/fankserver/meeting-transcriber/internal/session"
	"github.com/fankserver/meeting-transcriber/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// Server wraps the MCP server with transcript management tools
type Server struct {
	mcpServer *mcp.Server
	sessions  *session.Manager
	queue     *pipeline.TranscriptionQueue
	store     *store.Store
	defaults  jobs.Settings
}

// Option configures a Server
type Option func(*Server)

// WithStore lists and loads transcripts from the persistent store
func WithStore(s *store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// NewServer creates a new MCP server. Recordings submitted through
// transcribe_file are queued on queue with defaults as their base settings.
func NewServer(sessions *session.Manager, queue *pipeline.TranscriptionQueue, defaults jobs.Settings, opts ...Option) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "meeting-transcriber",
		Version: "1.0.0",
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		sessions:  sessions,
		queue:     queue,
		defaults:  defaults,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Tool input types

type TranscribeFileInput struct {
	Path        string `json:"path" jsonschema:"Path of the audio file to transcribe"`
	Title       string `json:"title,omitempty" jsonschema:"Display title, defaults to the file name"`
	Language    string `json:"language,omitempty" jsonschema:"Language code or auto"`
	Sensitivity *int   `json:"sensitivity,omitempty" jsonschema:"Speaker sensitivity from 0 to 100"`
	Urgent      bool   `json:"urgent,omitempty" jsonschema:"Process ahead of other queued recordings"`
}

type SessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"The transcript session ID"`
}

type ListTranscriptsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of transcripts, newest first"`
}

type SetSpeakerInput struct {
	SessionID string `json:"sessionId" jsonschema:"The transcript session ID"`
	Index     int    `json:"index" jsonschema:"Zero-based segment index"`
	Speaker   string `json:"speaker" jsonschema:"Speaker label to assign"`
}

type AddSpeakerInput struct {
	SessionID string `json:"sessionId" jsonschema:"The transcript session ID"`
	Speaker   string `json:"speaker" jsonschema:"New speaker label"`
}

// Tool output types

type TranscribeFileOutput struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type JobView struct {
	ID        string `json:"id"`
	Attempt   int    `json:"attempt"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Language  string `json:"language"`
	LastError string `json:"lastError,omitempty"`
}

type JobStatusOutput struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Jobs      []JobView `json:"jobs,omitempty"`
}

type TranscriptOutput struct {
	SessionID string            `json:"sessionId"`
	Title     string            `json:"title"`
	Language  string            `json:"language"`
	Status    string            `json:"status"`
	Fallback  bool              `json:"fallback,omitempty"`
	Segments  []segment.Segment `json:"segments"`
}

type TranscriptSummary struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
	Language  string `json:"language"`
	Status    string `json:"status"`
	Segments  int    `json:"segments"`
	Created   string `json:"created"`
}

type ListTranscriptsOutput struct {
	Transcripts []TranscriptSummary `json:"transcripts"`
}

type CorrectionOutput struct {
	Changed  int               `json:"changed"`
	Segments []segment.Segment `json:"segments"`
}

type SpeakersOutput struct {
	Speakers []string `json:"speakers"`
}

type ExportOutput struct {
	FilePath string `json:"filepath"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "transcribe_file",
		Description: "Queue an audio file for transcription with speaker labels",
	}, s.handleTranscribeFile)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "job_status",
		Description: "Get transcription progress and job attempts for a session",
	}, s.handleJobStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Get the current segments of a transcript",
	}, s.handleGetTranscript)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_transcripts",
		Description: "List transcripts, newest first",
	}, s.handleListTranscripts)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "auto_correct",
		Description: "Fix short speaker interruptions and flicker automatically",
	}, s.handleAutoCorrect)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_speaker",
		Description: "Assign a speaker to a single segment",
	}, s.handleSetSpeaker)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "reassign_speaker",
		Description: "Assign a speaker to a segment and every segment sharing its current speaker",
	}, s.handleReassignSpeaker)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_speaker",
		Description: "Add a custom speaker label to a transcript",
	}, s.handleAddSpeaker)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "commit_transcript",
		Description: "Finish reviewing a transcript and save the final segments",
	}, s.handleCommitTranscript)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_transcript",
		Description: "Export a transcript session to a JSON file",
	}, s.handleExportTranscript)
}

// Run serves MCP over stdio until ctx ends
func (s *Server) Run(ctx context.Context) error {
	logrus.Info("Starting MCP server")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleTranscribeFile(ctx context.Context, req *mcp.CallToolRequest, input TranscribeFileInput) (*mcp.CallToolResult, TranscribeFileOutput, error) {
	if input.Path == "" {
		return nil, TranscribeFileOutput{}, fmt.Errorf("path is required")
	}

	// #nosec G304 - reading the caller's recording is the purpose of this tool
	audio, err := os.ReadFile(input.Path)
	if err != nil {
		return nil, TranscribeFileOutput{}, fmt.Errorf("failed to read audio: %w", err)
	}

	settings := s.defaults
	if input.Language != "" {
		settings.Language = input.Language
	}
	if input.Sensitivity != nil {
		if *input.Sensitivity < 0 || *input.Sensitivity > 100 {
			return nil, TranscribeFileOutput{}, fmt.Errorf("sensitivity must be between 0 and 100")
		}
		settings.Sensitivity = *input.Sensitivity
	}

	title := input.Title
	if title == "" {
		title = filepath.Base(input.Path)
	}
	priority := pipeline.PriorityNormal
	if input.Urgent {
		priority = pipeline.PriorityUrgent
	}

	request := s.sessions.NewRequest(title, audio, settings, priority)
	if err := s.queue.Submit(request); err != nil {
		if errors.Is(err, pipeline.ErrEmptyAudio) {
			_ = s.sessions.MarkFailed(request.ID, err)
		}
		return nil, TranscribeFileOutput{}, fmt.Errorf("failed to queue recording: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id": request.ID,
		"path":       input.Path,
		"bytes":      len(audio),
	}).Info("Recording queued via MCP")

	return nil, TranscribeFileOutput{SessionID: request.ID, Status: string(session.StatusPending)}, nil
}

func (s *Server) handleJobStatus(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, JobStatusOutput, error) {
	sess, err := s.sessions.GetSession(input.SessionID)
	if err != nil {
		return nil, JobStatusOutput{}, err
	}

	out := JobStatusOutput{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Progress:  sess.Progress,
		Stage:     sess.Stage,
		Fallback:  sess.Fallback,
		LastError: sess.LastError,
	}
	for _, job := range sess.Jobs {
		out.Jobs = append(out.Jobs, JobView{
			ID:        job.ID,
			Attempt:   job.Attempt,
			Status:    string(job.Status),
			Progress:  job.Progress,
			Language:  job.Settings.Language,
			LastError: job.LastError,
		})
	}
	return nil, out, nil
}

func (s *Server) handleGetTranscript(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, TranscriptOutput, error) {
	sess, err := s.sessions.Load(ctx, input.SessionID)
	if err != nil {
		return nil, TranscriptOutput{}, err
	}
	return nil, transcriptOutput(sess), nil
}

func (s *Server) handleListTranscripts(ctx context.Context, req *mcp.CallToolRequest, input ListTranscriptsInput) (*mcp.CallToolResult, ListTranscriptsOutput, error) {
	out := ListTranscriptsOutput{Transcripts: []TranscriptSummary{}}

	seen := make(map[string]bool)
	live := s.sessions.ListSessions()
	for i := len(live) - 1; i >= 0; i-- {
		sess := live[i]
		seen[sess.ID] = true
		out.Transcripts = append(out.Transcripts, TranscriptSummary{
			SessionID: sess.ID,
			Title:     sess.Title,
			Language:  sess.Language,
			Status:    string(sess.Status),
			Segments:  len(sess.Segments),
			Created:   sess.StartTime.Format(time.RFC3339),
		})
	}

	if s.store != nil {
		stored, err := s.store.ListTranscripts(ctx, input.Limit)
		if err != nil {
			return nil, ListTranscriptsOutput{}, fmt.Errorf("failed to list transcripts: %w", err)
		}
		for _, sum := range stored {
			if seen[sum.ID] {
				continue
			}
			status := session.StatusReady
			if sum.CommittedAt != nil {
				status = session.StatusCommitted
			}
			out.Transcripts = append(out.Transcripts, TranscriptSummary{
				SessionID: sum.ID,
				Title:     sum.Title,
				Language:  sum.Language,
				Status:    string(status),
				Segments:  sum.Segments,
				Created:   sum.CreatedAt.Format(time.RFC3339),
			})
		}
	}

	if input.Limit > 0 && len(out.Transcripts) > input.Limit {
		out.Transcripts = out.Transcripts[:input.Limit]
	}
	return nil, out, nil
}

func (s *Server) handleAutoCorrect(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, CorrectionOutput, error) {
	if _, err := s.sessions.Load(ctx, input.SessionID); err != nil {
		return nil, CorrectionOutput{}, err
	}
	segments, changed, err := s.sessions.AutoCorrect(ctx, input.SessionID)
	if err != nil {
		return nil, CorrectionOutput{}, err
	}
	return nil, CorrectionOutput{Changed: changed, Segments: segments}, nil
}

func (s *Server) handleSetSpeaker(ctx context.Context, req *mcp.CallToolRequest, input SetSpeakerInput) (*mcp.CallToolResult, CorrectionOutput, error) {
	var changed int
	segments, err := s.correct(ctx, input.SessionID, editing(func(c *correction.Session) error {
		before := c.Segments()
		if err := c.SetSpeaker(input.Index, input.Speaker); err != nil {
			return err
		}
		if before[input.Index].Speaker != input.Speaker {
			changed = 1
		}
		return nil
	}))
	if err != nil {
		return nil, CorrectionOutput{}, err
	}
	return nil, CorrectionOutput{Changed: changed, Segments: segments}, nil
}

func (s *Server) handleReassignSpeaker(ctx context.Context, req *mcp.CallToolRequest, input SetSpeakerInput) (*mcp.CallToolResult, CorrectionOutput, error) {
	var changed int
	segments, err := s.correct(ctx, input.SessionID, editing(func(c *correction.Session) error {
		if err := c.SelectTarget(input.Speaker); err != nil {
			return err
		}
		if err := c.Hover(input.Index); err != nil {
			return err
		}
		var err error
		changed, err = c.ApplyToSimilar()
		return err
	}))
	if err != nil {
		return nil, CorrectionOutput{}, err
	}
	return nil, CorrectionOutput{Changed: changed, Segments: segments}, nil
}

func (s *Server) handleAddSpeaker(ctx context.Context, req *mcp.CallToolRequest, input AddSpeakerInput) (*mcp.CallToolResult, SpeakersOutput, error) {
	var speakers []string
	_, err := s.correct(ctx, input.SessionID, func(c *correction.Session) error {
		if _, err := c.AddSpeaker(input.Speaker); err != nil {
			return err
		}
		speakers = c.Speakers()
		return nil
	})
	if err != nil {
		return nil, SpeakersOutput{}, err
	}
	return nil, SpeakersOutput{Speakers: speakers}, nil
}

func (s *Server) handleCommitTranscript(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, TranscriptOutput, error) {
	if _, err := s.sessions.Load(ctx, input.SessionID); err != nil {
		return nil, TranscriptOutput{}, err
	}
	if _, err := s.sessions.Commit(ctx, input.SessionID); err != nil {
		return nil, TranscriptOutput{}, fmt.Errorf("failed to commit transcript: %w", err)
	}
	sess, err := s.sessions.GetSession(input.SessionID)
	if err != nil {
		return nil, TranscriptOutput{}, err
	}
	return nil, transcriptOutput(sess), nil
}

func (s *Server) handleExportTranscript(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ExportOutput, error) {
	if _, err := s.sessions.Load(ctx, input.SessionID); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to export session: %w", err)
	}
	path, err := s.sessions.ExportSession(input.SessionID)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to export session: %w", err)
	}
	return nil, ExportOutput{FilePath: path}, nil
}

// correct loads a stored transcript if needed and applies edit to it
func (s *Server) correct(ctx context.Context, sessionID string, edit func(*correction.Session) error) ([]segment.Segment, error) {
	if _, err := s.sessions.Load(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.Correct(ctx, sessionID, edit)
}

// editing wraps edit in an editing-mode round trip
func editing(edit func(*correction.Session) error) func(*correction.Session) error {
	return func(c *correction.Session) error {
		if err := c.BeginEditing(); err != nil {
			return err
		}
		defer func() { _ = c.EndEditing() }()
		return edit(c)
	}
}

func transcriptOutput(sess *session.Session) TranscriptOutput {
	return TranscriptOutput{
		SessionID: sess.ID,
		Title:     sess.Title,
		Language:  sess.Language,
		Status:    string(sess.Status),
		Fallback:  sess.Fallback,
		Segments:  sess.Segments,
	}
}
