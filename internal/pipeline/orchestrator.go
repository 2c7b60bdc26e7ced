package pipeline

import (
	"context"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/diarization"
	"github.com/fankserver/meeting-transcriber/internal/feedback"
	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/internal/segment"
	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config configures an Orchestrator
type Config struct {
	Poller           PollerConfig
	FallbackLanguage string
}

// Result is the outcome of one transcription request. Segments is never
// empty: when every attempt failed it holds a single placeholder segment
// and Err carries the last failure.
type Result struct {
	RequestID string
	Segments  []segment.Segment
	Jobs      []jobs.Job
	Relabeled int
	Fallback  bool
	Err       error
	Duration  time.Duration
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithJobStore persists every job transition to store
func WithJobStore(store jobs.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithEventBus publishes job lifecycle events to bus
func WithEventBus(bus *feedback.EventBus) Option {
	return func(o *Orchestrator) { o.events = bus }
}

// Orchestrator is the single entry point that turns audio into a corrected
// transcript. It owns the vendor configuration for its lifetime.
type Orchestrator struct {
	submitter *Submitter
	poller    *Poller
	retry     *RetryCoordinator
	store     jobs.Store
	events    *feedback.EventBus
}

// NewOrchestrator wires the pipeline stages around one capability
func NewOrchestrator(capability transcriber.Capability, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		submitter: NewSubmitter(capability),
		poller:    NewPoller(capability, cfg.Poller),
		retry:     NewRetryCoordinator(cfg.FallbackLanguage),
		store:     jobs.NewMemory(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Transcribe submits audio, polls it to completion, formats and corrects the
// result. A failed attempt is retried once with relaxed settings; if that
// fails too a placeholder transcript is returned. onProgress receives a
// non-decreasing sequence that ends with 100.
func (o *Orchestrator) Transcribe(ctx context.Context, audio []byte, settings jobs.Settings, onProgress ProgressFunc) *Result {
	start := time.Now()
	result := &Result{RequestID: uuid.New().String()}
	progress := newRequestProgress(onProgress)

	logger := logrus.WithFields(logrus.Fields{
		"request_id": result.RequestID,
		"bytes":      len(audio),
		"language":   settings.Language,
	})
	logger.Info("Transcription requested")

	current := settings
	var lastJobID string
	for attempt := 1; ; attempt++ {
		segments, job, err := o.attempt(ctx, result.RequestID, attempt, audio, current, progress)
		result.Jobs = append(result.Jobs, job)
		lastJobID = job.ID

		if err == nil {
			corrected := diarization.Correct(segments)
			result.Relabeled = diarization.Relabeled(segments, corrected)
			result.Segments = corrected
			break
		}

		result.Err = err
		next, retry := o.retry.Next(attempt, current, err)
		if !retry {
			logger.WithError(err).WithField("attempts", attempt).Warn("Transcription failed, returning placeholder")
			result.Segments = o.retry.Placeholder(settings.Language, err)
			result.Fallback = true
			break
		}

		logger.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"language": next.Language,
		}).Warn("Transcription attempt failed, retrying with relaxed settings")

		o.events.PublishJobRetry(result.RequestID, feedback.JobRetryData{
			FailedJobID: job.ID,
			Attempt:     attempt + 1,
			Language:    next.Language,
			Reason:      err.Error(),
		})
		progress.rebase()
		current = next
	}

	if !result.Fallback {
		result.Err = nil
	}
	result.Duration = time.Since(start)
	progress.finish(StageMessage(jobs.StatusCompleted))

	o.events.PublishJobCompleted(result.RequestID, feedback.JobCompletedData{
		JobID:    lastJobID,
		Segments: len(result.Segments),
		Fallback: result.Fallback,
		Duration: result.Duration,
	})

	logger.WithFields(logrus.Fields{
		"segments":  len(result.Segments),
		"relabeled": result.Relabeled,
		"fallback":  result.Fallback,
		"duration":  result.Duration,
	}).Info("Transcription finished")

	return result
}

// Jobs returns the recorded attempts of a request
func (o *Orchestrator) Jobs(ctx context.Context, requestID string) ([]jobs.Job, error) {
	return o.store.ListByRequest(ctx, requestID)
}

// attempt runs one submission through polling and formatting
func (o *Orchestrator) attempt(ctx context.Context, requestID string, n int, audio []byte, settings jobs.Settings, progress *requestProgress) ([]segment.Segment, jobs.Job, error) {
	now := time.Now()
	job := jobs.Job{
		ID:        uuid.New().String(),
		RequestID: requestID,
		Attempt:   n,
		Status:    jobs.StatusCreated,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.save(ctx, job)
	o.events.Publish(feedback.Event{
		Type:      feedback.EventJobCreated,
		RequestID: requestID,
		Data:      feedback.JobCreatedData{JobID: job.ID, Attempt: n, Language: settings.Language},
	})

	fail := func(err error) ([]segment.Segment, jobs.Job, error) {
		job.Fail(err)
		o.save(ctx, job)
		o.events.Publish(feedback.Event{
			Type:      feedback.EventJobFailed,
			RequestID: requestID,
			Data:      feedback.JobFailedData{JobID: job.ID, Attempt: n, Error: err.Error()},
		})
		return nil, job, err
	}

	job.Advance(jobs.StatusUploading, 0)
	o.save(ctx, job)

	handle, err := o.submitter.Submit(ctx, audio, settings)
	if err != nil {
		return fail(err)
	}
	job.VendorJobID = handle.JobID
	job.Advance(jobs.StatusQueued, 0)
	o.save(ctx, job)

	payload, err := o.poller.Poll(ctx, handle.JobID, func(u PollUpdate) {
		status := jobs.StatusQueued
		switch u.State {
		case transcriber.StateProcessing:
			status = jobs.StatusProcessing
		case transcriber.StateCompleted:
			status = jobs.StatusCompleted
		}
		job.Advance(status, u.Progress)
		o.save(ctx, job)

		stage := StageMessage(status)
		reported := progress.report(u.Progress, stage)
		o.events.PublishJobProgress(requestID, feedback.JobProgressData{
			JobID:    job.ID,
			Attempt:  n,
			Progress: reported,
			Stage:    stage,
		})
	})
	if err != nil {
		return fail(err)
	}

	segments, err := segment.Format(payload)
	if err != nil {
		return fail(err)
	}
	if len(segments) == 0 {
		return fail(ErrNoSpeech)
	}

	job.Advance(jobs.StatusCompleted, 100)
	o.save(ctx, job)
	return segments, job, nil
}

// save records a job transition. Persistence is best effort: a store outage
// must not fail the transcription.
func (o *Orchestrator) save(ctx context.Context, job jobs.Job) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(context.WithoutCancel(ctx), job); err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Warn("Failed to persist job record")
	}
}
