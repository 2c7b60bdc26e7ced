package transcriber

import (
	"context"
	"time"
)

// Capability is the unified interface for hosted transcription backends.
// A backend accepts an uploaded audio asset, runs a job over it and reports
// the job's status until it completes or fails.
type Capability interface {
	// Upload transfers the audio to the vendor and returns a reference to it
	Upload(ctx context.Context, audio []byte) (string, error)

	// CreateJob starts a transcription job for a previously uploaded asset
	CreateJob(ctx context.Context, assetRef string, opts JobOptions) (string, error)

	// GetStatus returns the current state of a job and, once completed, its payload
	GetStatus(ctx context.Context, jobID string) (*Status, error)
}

// State is the vendor-reported state of a job
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// JobOptions are the settings forwarded to the vendor when a job is created
type JobOptions struct {
	// Language hint (e.g., "en", "de", "auto")
	Language string

	// Diarization requests speaker labels on the result
	Diarization bool

	// Reduced asks the vendor for its cheaper, more permissive model
	Reduced bool
}

// Status is a single observation of a vendor job
type Status struct {
	State   State
	Payload *Payload
	Error   string
}

// Payload is the vendor output of a completed job. Any of the three shapes
// may be present; consumers decide which one to trust.
type Payload struct {
	// Full transcript text
	Text string

	// Detected or requested language
	Language string

	// Speaker-labeled turns, if diarization ran
	Utterances []Utterance

	// Word-level timestamps
	Words []WordTiming
}

// Utterance is one speaker turn as reported by the vendor
type Utterance struct {
	Speaker    string
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// WordTiming represents timing information for a word
type WordTiming struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
	Speaker    string
}

// HasText reports whether the payload carries any transcribed text at all
func (p *Payload) HasText() bool {
	if p == nil {
		return false
	}
	if hasContent(p.Text) {
		return true
	}
	for _, u := range p.Utterances {
		if hasContent(u.Text) {
			return true
		}
	}
	for _, w := range p.Words {
		if hasContent(w.Word) {
			return true
		}
	}
	return false
}

// Config holds vendor credentials and transport settings. It is injected
// into a backend at construction and lives as long as that backend.
type Config struct {
	// API key sent with every request
	APIKey string

	// Base URL of the vendor API
	BaseURL string

	// Requests per minute allowed against the vendor, 0 disables pacing
	RateLimitPerMin int

	// Timeout for a single HTTP exchange
	HTTPTimeout time.Duration
}
