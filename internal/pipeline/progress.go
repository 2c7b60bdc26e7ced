package pipeline

import (
	"sync"

	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
)

// ProgressFunc receives a percentage in [0,100] and a human-readable stage
type ProgressFunc func(percent int, stage string)

// estimate maps a vendor state observed on a 1-based attempt to a progress
// guess for that attempt
func estimate(state transcriber.State, attempt, maxAttempts int) int {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	switch state {
	case transcriber.StateCompleted:
		return 100
	case transcriber.StateProcessing:
		return min(95, 10+attempt*85/maxAttempts)
	default:
		return min(10, attempt*2)
	}
}

// advance applies the monotonic rule: every non-terminal report moves at
// least one point past the previous one, and only completion reaches 100.
func advance(state transcriber.State, estimated, last int) int {
	if state == transcriber.StateCompleted {
		return 100
	}
	return min(99, max(estimated, last+1))
}

// requestProgress folds the progress of successive attempts into one
// sequence for the caller that follows the same rule as a single poll loop:
// every report moves at least one point, 99 is the ceiling until finish
// reports 100. The first attempt is passed through as-is; a retry continues
// from where the failed attempt stopped and scales into the remaining range.
type requestProgress struct {
	mu       sync.Mutex
	fn       ProgressFunc
	base     int
	last     int
	finished bool
}

func newRequestProgress(fn ProgressFunc) *requestProgress {
	return &requestProgress{fn: fn}
}

// report forwards one attempt-level percentage. Attempt completion is not
// forwarded: formatting may still fail, and finish reports 100.
func (r *requestProgress) report(percent int, stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished || percent >= 100 {
		return r.last
	}

	value := percent
	if r.base > 0 {
		value = r.base + percent*(99-r.base)/100
	}
	value = min(99, max(value, r.last+1))
	r.last = value

	if r.fn != nil {
		r.fn(value, stage)
	}
	return value
}

// rebase starts a new attempt at the current position
func (r *requestProgress) rebase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = r.last
}

// finish reports 100 exactly once
func (r *requestProgress) finish(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.finished = true
	r.last = 100
	if r.fn != nil {
		r.fn(100, stage)
	}
}
