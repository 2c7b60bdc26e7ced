package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a job record does not exist
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle state of a transcription job
type Status string

const (
	StatusCreated    Status = "created"
	StatusUploading  Status = "uploading"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions follow
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Settings are the caller-facing transcription settings of one attempt
type Settings struct {
	// Language hint, ISO code or "auto"
	Language string `json:"language" yaml:"language"`

	// Capture sensitivity 0-100, recorded but not consumed here
	Sensitivity int `json:"sensitivity" yaml:"sensitivity"`

	// Encoding quality hint, recorded but not consumed here
	Quality string `json:"quality" yaml:"quality"`

	// Reduced selects the vendor's permissive fallback profile
	Reduced bool `json:"reduced,omitempty" yaml:"reduced,omitempty"`
}

// Job is one submission attempt. A retry creates a new Job that shares the
// RequestID of the attempt it replaces.
type Job struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"requestId"`
	Attempt     int       `json:"attempt"`
	VendorJobID string    `json:"vendorJobId,omitempty"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Settings    Settings  `json:"settings"`
	LastError   string    `json:"lastError,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Advance moves the job to status and raises progress; progress never
// decreases over a job's lifetime and is clamped to [0,100]
func (j *Job) Advance(status Status, progress int) {
	j.Status = status
	if progress > 100 {
		progress = 100
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = time.Now()
}

// Fail marks the job failed with err
func (j *Job) Fail(err error) {
	j.Status = StatusFailed
	if err != nil {
		j.LastError = err.Error()
	}
	j.UpdatedAt = time.Now()
}

// Store persists job records
type Store interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (*Job, error)
	ListByRequest(ctx context.Context, requestID string) ([]Job, error)
	Close() error
}
