package pipeline

import (
	"context"
	"sync"

	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
	"github.com/stretchr/testify/mock"
)

// MockCapability is a testify mock of the vendor capability
type MockCapability struct {
	mock.Mock
}

func (m *MockCapability) Upload(ctx context.Context, audio []byte) (string, error) {
	args := m.Called(ctx, audio)
	return args.String(0), args.Error(1)
}

func (m *MockCapability) CreateJob(ctx context.Context, assetRef string, opts transcriber.JobOptions) (string, error) {
	args := m.Called(ctx, assetRef, opts)
	return args.String(0), args.Error(1)
}

func (m *MockCapability) GetStatus(ctx context.Context, jobID string) (*transcriber.Status, error) {
	args := m.Called(ctx, jobID)
	if status := args.Get(0); status != nil {
		return status.(*transcriber.Status), args.Error(1)
	}
	return nil, args.Error(1)
}

// step is one scripted GetStatus answer
type step struct {
	status *transcriber.Status
	err    error
}

func queued() step     { return step{status: &transcriber.Status{State: transcriber.StateQueued}} }
func processing() step { return step{status: &transcriber.Status{State: transcriber.StateProcessing}} }
func failed(err error) step {
	return step{err: err}
}
func completed(p *transcriber.Payload) step {
	return step{status: &transcriber.Status{State: transcriber.StateCompleted, Payload: p}}
}

// scriptedCapability answers status checks from a fixed script, repeating
// the last step once the script is exhausted
type scriptedCapability struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func script(steps ...step) *scriptedCapability {
	return &scriptedCapability{steps: steps}
}

func (s *scriptedCapability) Upload(ctx context.Context, audio []byte) (string, error) {
	return "asset-1", nil
}

func (s *scriptedCapability) CreateJob(ctx context.Context, assetRef string, opts transcriber.JobOptions) (string, error) {
	return "job-1", nil
}

func (s *scriptedCapability) GetStatus(ctx context.Context, jobID string) (*transcriber.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := min(s.calls, len(s.steps)-1)
	s.calls++
	return s.steps[i].status, s.steps[i].err
}

func (s *scriptedCapability) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// progressRecorder collects progress reports
type progressRecorder struct {
	mu      sync.Mutex
	percent []int
	stages  []string
}

func (r *progressRecorder) record(percent int, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percent = append(r.percent, percent)
	r.stages = append(r.stages, stage)
}

func (r *progressRecorder) values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.percent...)
}
