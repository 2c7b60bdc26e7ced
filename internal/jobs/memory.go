package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory keeps job records in process memory
type Memory struct {
	jobs map[string]Job
	mu   sync.RWMutex
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]Job),
	}
}

func (m *Memory) Save(ctx context.Context, job Job) error {
	if job.ID == "" {
		return fmt.Errorf("save job: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &job, nil
}

// ListByRequest returns the attempts of one request ordered by attempt number
func (m *Memory) ListByRequest(ctx context.Context, requestID string) ([]Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Job
	for _, job := range m.jobs {
		if job.RequestID == requestID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
