package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrUnknownJob is returned when a job ID was never issued by the backend
var ErrUnknownJob = errors.New("unknown job")

// MockCapability is an in-memory backend for testing without a vendor.
// Jobs move through queued and processing for a configurable number of
// polls before completing.
type MockCapability struct {
	// Polls reported as queued / processing before a job completes
	QueuedPolls     int
	ProcessingPolls int

	// Result returned for completed jobs. When nil a plain-text payload
	// describing the audio is generated.
	Result *Payload

	// UploadErr, when set, fails the first UploadFailures uploads (all of
	// them when UploadFailures is 0)
	UploadErr      error
	UploadFailures int

	// RejectLanguages lists languages whose jobs end in a vendor error
	RejectLanguages []string

	mu      sync.Mutex
	assets  map[string]int
	jobs    map[string]*mockJob
	uploads int
}

type mockJob struct {
	opts  JobOptions
	size  int
	polls int
}

// NewMockCapability creates a mock backend that completes after a few polls
func NewMockCapability() *MockCapability {
	return &MockCapability{
		QueuedPolls:     1,
		ProcessingPolls: 2,
	}
}

func (m *MockCapability) Upload(ctx context.Context, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploads++
	if m.UploadErr != nil && (m.UploadFailures == 0 || m.uploads <= m.UploadFailures) {
		return "", m.UploadErr
	}

	if m.assets == nil {
		m.assets = make(map[string]int)
	}
	ref := "mock://asset/" + uuid.New().String()
	m.assets[ref] = len(audio)
	return ref, nil
}

func (m *MockCapability) CreateJob(ctx context.Context, assetRef string, opts JobOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	size, ok := m.assets[assetRef]
	if !ok {
		return "", fmt.Errorf("asset %s not found", assetRef)
	}
	if m.jobs == nil {
		m.jobs = make(map[string]*mockJob)
	}

	id := uuid.New().String()
	m.jobs[id] = &mockJob{opts: opts, size: size}

	logrus.WithFields(logrus.Fields{
		"job_id":   id,
		"language": opts.Language,
		"reduced":  opts.Reduced,
	}).Debug("Mock transcription job created")

	return id, nil
}

func (m *MockCapability) GetStatus(ctx context.Context, jobID string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	job.polls++

	for _, lang := range m.RejectLanguages {
		if strings.EqualFold(lang, job.opts.Language) {
			return &Status{
				State: StateError,
				Error: fmt.Sprintf("language %q is not supported", job.opts.Language),
			}, nil
		}
	}

	switch {
	case job.polls <= m.QueuedPolls:
		return &Status{State: StateQueued}, nil
	case job.polls <= m.QueuedPolls+m.ProcessingPolls:
		return &Status{State: StateProcessing}, nil
	}

	payload := m.Result
	if payload == nil {
		payload = &Payload{
			Text:     fmt.Sprintf("[Mock transcript: %d bytes of audio]", job.size),
			Language: job.opts.Language,
		}
	}
	return &Status{State: StateCompleted, Payload: payload}, nil
}

// Uploads returns the number of upload attempts seen so far
func (m *MockCapability) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// MockPayload builds a diarized payload from alternating speaker lines,
// spacing turns five seconds apart. Useful for demos and tests.
func MockPayload(turns ...[2]string) *Payload {
	p := &Payload{}
	var text []string
	for i, turn := range turns {
		start := time.Duration(i) * 5 * time.Second
		p.Utterances = append(p.Utterances, Utterance{
			Speaker:    turn[0],
			Text:       turn[1],
			Start:      start,
			End:        start + 4*time.Second,
			Confidence: 0.9,
		})
		text = append(text, turn[1])
	}
	p.Text = strings.Join(text, " ")
	return p
}

func hasContent(s string) bool {
	return strings.TrimSpace(s) != ""
}
