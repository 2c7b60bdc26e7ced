package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultAssemblyAIURL is the public AssemblyAI REST endpoint
	DefaultAssemblyAIURL = "https://api.assemblyai.com"

	defaultHTTPTimeout = 5 * time.Minute
)

// ErrMissingAPIKey is returned when a hosted backend is built without credentials
var ErrMissingAPIKey = errors.New("API key is required")

// AssemblyAI talks to the AssemblyAI pre-recorded transcription API
type AssemblyAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	LanguageCode      string `json:"language_code,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
	SpeechModel       string `json:"speech_model,omitempty"`
}

type transcriptResponse struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Error        string         `json:"error"`
	Text         string         `json:"text"`
	LanguageCode string         `json:"language_code"`
	Words        []aaiWord      `json:"words"`
	Utterances   []aaiUtterance `json:"utterances"`
}

type aaiWord struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker"`
}

type aaiUtterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

// NewAssemblyAI creates a backend from injected credentials
func NewAssemblyAI(cfg Config) (*AssemblyAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("assemblyai: %w", ErrMissingAPIKey)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAssemblyAIURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), 1)
	}

	logrus.WithFields(logrus.Fields{
		"base_url":        baseURL,
		"rate_limit_rpm":  cfg.RateLimitPerMin,
		"request_timeout": timeout,
	}).Info("AssemblyAI backend initialized")

	return &AssemblyAI{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

func (a *AssemblyAI) Upload(ctx context.Context, audio []byte) (string, error) {
	var resp uploadResponse
	if err := a.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(audio), &resp); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if resp.UploadURL == "" {
		return "", errors.New("upload audio: response carried no upload_url")
	}
	return resp.UploadURL, nil
}

func (a *AssemblyAI) CreateJob(ctx context.Context, assetRef string, opts JobOptions) (string, error) {
	req := transcriptRequest{
		AudioURL:      assetRef,
		SpeakerLabels: opts.Diarization,
	}
	if opts.Language == "" || strings.EqualFold(opts.Language, "auto") {
		req.LanguageDetection = true
	} else {
		req.LanguageCode = opts.Language
	}
	if opts.Reduced {
		req.SpeechModel = "nano"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode transcript request: %w", err)
	}

	var resp transcriptResponse
	if err := a.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &resp); err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("create transcript: response carried no id")
	}
	return resp.ID, nil
}

func (a *AssemblyAI) GetStatus(ctx context.Context, jobID string) (*Status, error) {
	var resp transcriptResponse
	if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+jobID, "", nil, &resp); err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", jobID, err)
	}

	status := &Status{State: State(resp.Status), Error: resp.Error}
	if status.State == StateCompleted {
		status.Payload = resp.payload()
	}
	return status, nil
}

func (r *transcriptResponse) payload() *Payload {
	p := &Payload{Text: r.Text, Language: r.LanguageCode}
	for _, u := range r.Utterances {
		p.Utterances = append(p.Utterances, Utterance{
			Speaker:    u.Speaker,
			Text:       u.Text,
			Start:      time.Duration(u.Start) * time.Millisecond,
			End:        time.Duration(u.End) * time.Millisecond,
			Confidence: u.Confidence,
		})
	}
	for _, w := range r.Words {
		p.Words = append(p.Words, WordTiming{
			Word:       w.Text,
			Start:      time.Duration(w.Start) * time.Millisecond,
			End:        time.Duration(w.End) * time.Millisecond,
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		})
	}
	return p
}

func (a *AssemblyAI) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
