package pipeline

import (
	"errors"
	"fmt"

	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
)

var (
	// ErrEmptyAudio is returned for zero-byte audio, before any network call
	ErrEmptyAudio = errors.New("audio payload is empty")

	// ErrUploadFailed wraps any failure to hand the audio to the vendor
	ErrUploadFailed = errors.New("audio upload failed")

	// ErrNoSpeech is returned when a completed job carries no text at all
	ErrNoSpeech = errors.New("transcription returned no speech")

	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueStopped is returned when the queue has been stopped
	ErrQueueStopped = errors.New("queue has been stopped")
)

// VendorJobError is returned when the vendor reports that a job failed
type VendorJobError struct {
	JobID   string
	Message string
}

func (e *VendorJobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transcription job %s failed", e.JobID)
	}
	return fmt.Sprintf("transcription job %s failed: %s", e.JobID, e.Message)
}

// PollingTimeoutError is returned when the attempt budget is exhausted.
// LastStatus is empty when no status check ever succeeded. Err holds the
// status error of the final attempt, if it had one.
type PollingTimeoutError struct {
	JobID      string
	Attempts   int
	LastStatus transcriber.State
	Err        error
}

func (e *PollingTimeoutError) Error() string {
	var msg string
	if e.LastStatus == "" {
		msg = fmt.Sprintf("transcription job %s status unavailable after %d polls", e.JobID, e.Attempts)
	} else {
		msg = fmt.Sprintf("transcription job %s still %s after %d polls", e.JobID, e.LastStatus, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PollingTimeoutError) Unwrap() error {
	return e.Err
}

// StageMessage maps a job status to the text shown next to its progress
func StageMessage(status jobs.Status) string {
	switch status {
	case jobs.StatusCreated:
		return "Preparing recording"
	case jobs.StatusUploading:
		return "Uploading audio"
	case jobs.StatusQueued:
		return "Waiting for transcription to start"
	case jobs.StatusProcessing:
		return "Transcribing audio"
	case jobs.StatusCompleted:
		return "Transcript ready"
	case jobs.StatusFailed:
		return "Transcription failed"
	default:
		return string(status)
	}
}
