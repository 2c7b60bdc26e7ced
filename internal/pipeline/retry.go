package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/internal/segment"
)

// DefaultFallbackLanguage is broadly supported by every vendor we target
const DefaultFallbackLanguage = "en"

// ReducedQuality is recorded on settings of a relaxed retry
const ReducedQuality = "low"

// placeholderText holds the localized explanations used when no transcript
// could be produced
type placeholderText struct {
	failed   string
	noSpeech string
}

var placeholders = map[string]placeholderText{
	"en": {
		failed:   "Transcription failed: %s",
		noSpeech: "No speech was detected in this recording (%s).",
	},
	"de": {
		failed:   "Die Transkription ist fehlgeschlagen: %s",
		noSpeech: "In dieser Aufnahme wurde keine Sprache erkannt (%s).",
	},
	"es": {
		failed:   "La transcripción falló: %s",
		noSpeech: "No se detectó voz en esta grabación (%s).",
	},
	"fr": {
		failed:   "La transcription a échoué : %s",
		noSpeech: "Aucune parole n'a été détectée dans cet enregistrement (%s).",
	},
}

// RetryCoordinator decides whether a failed attempt is retried and builds
// the placeholder transcript when it is not
type RetryCoordinator struct {
	fallbackLanguage string
	maxRetries       int
}

// NewRetryCoordinator creates a coordinator that retries once with
// fallbackLanguage ("en" when empty)
func NewRetryCoordinator(fallbackLanguage string) *RetryCoordinator {
	if fallbackLanguage == "" {
		fallbackLanguage = DefaultFallbackLanguage
	}
	return &RetryCoordinator{
		fallbackLanguage: fallbackLanguage,
		maxRetries:       1,
	}
}

// FallbackLanguage returns the language used for the relaxed retry
func (r *RetryCoordinator) FallbackLanguage() string {
	return r.fallbackLanguage
}

// Next returns the settings for the attempt after failed attempt number
// attempt (1-based), or false when the request should end with a
// placeholder instead.
func (r *RetryCoordinator) Next(attempt int, failed jobs.Settings, err error) (jobs.Settings, bool) {
	if attempt > r.maxRetries {
		return failed, false
	}
	if errors.Is(err, ErrEmptyAudio) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failed, false
	}

	relaxed := r.relax(failed)
	if relaxed == failed {
		return failed, false
	}
	return relaxed, true
}

func (r *RetryCoordinator) relax(s jobs.Settings) jobs.Settings {
	s.Language = r.fallbackLanguage
	s.Quality = ReducedQuality
	s.Reduced = true
	return s
}

// Placeholder builds the single-segment transcript returned when every
// attempt failed. The explanation is localized for language and carries the
// error text for diagnostics.
func (r *RetryCoordinator) Placeholder(language string, err error) []segment.Segment {
	text, ok := placeholders[baseLanguage(language)]
	if !ok {
		text = placeholders[DefaultFallbackLanguage]
	}

	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}

	format := text.failed
	if errors.Is(err, ErrNoSpeech) || errors.Is(err, segment.ErrEmptyResult) {
		format = text.noSpeech
	}

	return []segment.Segment{{
		Time:       segment.Timestamp(0),
		Speaker:    segment.DefaultSpeaker,
		Text:       fmt.Sprintf(format, reason),
		Confidence: 0,
	}}
}

// baseLanguage reduces "de-DE" or "pt_BR" to its primary subtag
func baseLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(language, "-_"); i >= 0 {
		language = language[:i]
	}
	return language
}
