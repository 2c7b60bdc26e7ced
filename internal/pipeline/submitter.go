package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
	"github.com/sirupsen/logrus"
)

// JobHandle identifies a job accepted by the vendor
type JobHandle struct {
	JobID       string
	AssetRef    string
	SubmittedAt time.Time
}

// Submitter uploads audio and opens a vendor job for it
type Submitter struct {
	capability transcriber.Capability
}

// NewSubmitter creates a submitter for a configured capability
func NewSubmitter(capability transcriber.Capability) *Submitter {
	return &Submitter{capability: capability}
}

// Submit performs one upload and one job creation. Failures are not retried
// here; they are returned wrapped in ErrUploadFailed.
func (s *Submitter) Submit(ctx context.Context, audio []byte, settings jobs.Settings) (*JobHandle, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	ref, err := s.capability.Upload(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	language := settings.Language
	if language == "" {
		language = "auto"
	}

	jobID, err := s.capability.CreateJob(ctx, ref, transcriber.JobOptions{
		Language:    language,
		Diarization: true,
		Reduced:     settings.Reduced,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create job: %w", ErrUploadFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"vendor_job_id": jobID,
		"bytes":         len(audio),
		"language":      language,
		"reduced":       settings.Reduced,
	}).Debug("Audio submitted for transcription")

	return &JobHandle{
		JobID:       jobID,
		AssetRef:    ref,
		SubmittedAt: time.Now(),
	}, nil
}
