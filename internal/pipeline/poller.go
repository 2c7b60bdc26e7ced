package pipeline

import (
	"context"
	"time"

	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
	"github.com/sirupsen/logrus"
)

// PollerConfig bounds the polling loop
type PollerConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollerConfig returns five minutes of polling at two-second intervals
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		MaxAttempts: 150,
		Interval:    2 * time.Second,
	}
}

// PollUpdate is reported after every successful status observation
type PollUpdate struct {
	Attempt  int
	State    transcriber.State
	Progress int
}

// Poller drives one vendor job to a terminal state
type Poller struct {
	capability transcriber.Capability
	config     PollerConfig
}

// NewPoller creates a poller; zero config fields take their defaults
func NewPoller(capability transcriber.Capability, config PollerConfig) *Poller {
	defaults := DefaultPollerConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	return &Poller{capability: capability, config: config}
}

// Poll checks the job status once per interval until it completes, fails or
// the attempt budget runs out. onUpdate is called from the polling goroutine
// with strictly increasing progress until completion reports 100. Cancelling
// ctx stops the loop before its next wake-up.
func (p *Poller) Poll(ctx context.Context, jobID string, onUpdate func(PollUpdate)) (*transcriber.Payload, error) {
	logger := logrus.WithField("vendor_job_id", jobID)

	lastProgress := 0
	var (
		lastState transcriber.State
		lastErr   error
	)

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.config.Interval); err != nil {
				return nil, err
			}
		}

		status, err := p.capability.GetStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.WithError(err).WithField("attempt", attempt).Warn("Status check failed, will poll again")
			continue
		}
		lastErr = nil

		state := status.State
		switch state {
		case transcriber.StateCompleted:
			if onUpdate != nil {
				onUpdate(PollUpdate{Attempt: attempt, State: state, Progress: 100})
			}
			logger.WithField("attempts", attempt).Debug("Transcription job completed")
			return status.Payload, nil

		case transcriber.StateError:
			return nil, &VendorJobError{JobID: jobID, Message: status.Error}

		case transcriber.StateQueued, transcriber.StateProcessing:
		default:
			logger.WithField("state", state).Debug("Unknown vendor state, treating as queued")
			state = transcriber.StateQueued
		}

		lastState = state
		lastProgress = advance(state, estimate(state, attempt, p.config.MaxAttempts), lastProgress)
		if onUpdate != nil {
			onUpdate(PollUpdate{Attempt: attempt, State: state, Progress: lastProgress})
		}
	}

	return nil, &PollingTimeoutError{
		JobID:      jobID,
		Attempts:   p.config.MaxAttempts,
		LastStatus: lastState,
		Err:        lastErr,
	}
}

// sleep waits for d unless ctx ends first. The timer is always released.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
