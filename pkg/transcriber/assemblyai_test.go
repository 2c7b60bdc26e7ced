package transcriber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssemblyAI(t *testing.T, handler http.HandlerFunc) *AssemblyAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewAssemblyAI(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return a
}

func TestNewAssemblyAIRequiresKey(t *testing.T) {
	_, err := NewAssemblyAI(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAssemblyAIUpload(t *testing.T) {
	a := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/upload", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "raw audio", string(body))
		_, _ = w.Write([]byte(`{"upload_url":"https://cdn.example/asset-1"}`))
	})

	ref, err := a.Upload(context.Background(), []byte("raw audio"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/asset-1", ref)
}

func TestAssemblyAICreateJob(t *testing.T) {
	tests := []struct {
		name     string
		opts     JobOptions
		expected transcriptRequest
	}{
		{
			name: "explicit_language",
			opts: JobOptions{Language: "de", Diarization: true},
			expected: transcriptRequest{
				AudioURL:      "https://cdn.example/a",
				SpeakerLabels: true,
				LanguageCode:  "de",
			},
		},
		{
			name: "auto_language_reduced",
			opts: JobOptions{Language: "auto", Diarization: true, Reduced: true},
			expected: transcriptRequest{
				AudioURL:          "https://cdn.example/a",
				SpeakerLabels:     true,
				LanguageDetection: true,
				SpeechModel:       "nano",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/transcript", r.URL.Path)
				var got transcriptRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, tt.expected, got)
				_, _ = w.Write([]byte(`{"id":"job-42","status":"queued"}`))
			})

			id, err := a.CreateJob(context.Background(), "https://cdn.example/a", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, "job-42", id)
		})
	}
}

func TestAssemblyAIGetStatusCompleted(t *testing.T) {
	a := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/transcript/job-42", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "job-42",
			"status": "completed",
			"text": "Hello there. Hi.",
			"language_code": "en",
			"utterances": [
				{"speaker": "A", "text": "Hello there.", "start": 1200, "end": 2400, "confidence": 0.93},
				{"speaker": "B", "text": "Hi.", "start": 62500, "end": 63000, "confidence": 0.88}
			],
			"words": [
				{"text": "Hello", "start": 1200, "end": 1600, "confidence": 0.9, "speaker": "A"}
			]
		}`))
	})

	status, err := a.GetStatus(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	require.NotNil(t, status.Payload)
	require.Len(t, status.Payload.Utterances, 2)
	assert.Equal(t, 62500*time.Millisecond, status.Payload.Utterances[1].Start)
	assert.Equal(t, "A", status.Payload.Words[0].Speaker)
	assert.Equal(t, "en", status.Payload.Language)
}

func TestAssemblyAIGetStatusError(t *testing.T) {
	a := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"job-1","status":"error","error":"Audio file is too short"}`))
	})

	status, err := a.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateError, status.State)
	assert.Equal(t, "Audio file is too short", status.Error)
	assert.Nil(t, status.Payload)
}

func TestAssemblyAIHTTPError(t *testing.T) {
	a := newTestAssemblyAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Authentication error"}`))
	})

	_, err := a.Upload(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "Authentication error")
}
