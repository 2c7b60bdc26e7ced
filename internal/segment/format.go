package segment

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
	"github.com/sirupsen/logrus"
)

const (
	// WindowDuration is the target span of a segment built from word timings
	WindowDuration = 30 * time.Second

	// SentencesPerSegment groups plain-text sentences when no timing exists
	SentencesPerSegment = 2
)

// ErrEmptyResult is returned when the vendor produced text but no segment
// could be built from it
var ErrEmptyResult = errors.New("formatting produced no segments from non-empty output")

// Format normalizes a vendor payload into an ordered segment list. Shapes are
// tried in priority order: speaker-labeled utterances, then word timings,
// then plain text. A payload without any text yields an empty list.
func Format(p *transcriber.Payload) ([]Segment, error) {
	if !p.HasText() {
		return []Segment{}, nil
	}

	shape := "utterances"
	segments := fromUtterances(p.Utterances)
	if len(segments) == 0 {
		shape = "words"
		segments = fromWords(p.Words)
	}
	if len(segments) == 0 {
		shape = "text"
		segments = fromText(p.Text)
	}
	if len(segments) == 0 {
		return nil, ErrEmptyResult
	}

	logrus.WithFields(logrus.Fields{
		"shape":    shape,
		"segments": len(segments),
	}).Debug("Vendor payload formatted")

	return segments, nil
}

// fromUtterances emits one segment per utterance. Vendor speaker ids are
// mapped to "Speaker N" in first-seen order so one id keeps one label.
func fromUtterances(utterances []transcriber.Utterance) []Segment {
	labels := make(map[string]string)
	var segments []Segment

	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		label, ok := labels[u.Speaker]
		if !ok {
			label = SpeakerLabel(len(labels) + 1)
			labels[u.Speaker] = label
		}
		segments = append(segments, Segment{
			Time:       Timestamp(u.Start),
			Speaker:    label,
			Text:       text,
			Confidence: clampConfidence(u.Confidence),
		})
	}
	return segments
}

// fromWords greedily accumulates words into windows of WindowDuration. A
// window closes once the span since its first word reaches the threshold.
func fromWords(words []transcriber.WordTiming) []Segment {
	var (
		segments    []Segment
		parts       []string
		confSum     float64
		windowStart time.Duration
	)

	flush := func() {
		if len(parts) == 0 {
			return
		}
		segments = append(segments, Segment{
			Time:       Timestamp(windowStart),
			Speaker:    DefaultSpeaker,
			Text:       strings.Join(parts, " "),
			Confidence: clampConfidence(confSum / float64(len(parts))),
		})
		parts = parts[:0]
		confSum = 0
	}

	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		if len(parts) == 0 {
			windowStart = w.Start
		}
		parts = append(parts, text)
		confSum += w.Confidence

		if w.End-windowStart >= WindowDuration {
			flush()
		}
	}
	flush()

	return segments
}

// fromText splits text into sentences and pairs them up. No real timing
// exists, so segment i is stamped at i*WindowDuration.
func fromText(text string) []Segment {
	sentences := SplitSentences(text)
	var segments []Segment

	for i := 0; i < len(sentences); i += SentencesPerSegment {
		end := i + SentencesPerSegment
		if end > len(sentences) {
			end = len(sentences)
		}
		n := len(segments)
		segments = append(segments, Segment{
			Time:       Timestamp(time.Duration(n) * WindowDuration),
			Speaker:    DefaultSpeaker,
			Text:       strings.Join(sentences[i:end], " "),
			Confidence: 1,
		})
	}
	return segments
}

// SplitSentences breaks text after runs of terminal punctuation (. ! ? and
// their full-width forms) that are followed by whitespace or the end of input.
// Text without terminal punctuation comes back as a single sentence.
func SplitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var (
		sentences []string
		start     int
	)

	emit := func(end int) {
		s := strings.Join(strings.Fields(string(runes[start:end])), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && isTerminal(runes[j]) {
			j++
		}
		if j == len(runes) || unicode.IsSpace(runes[j]) || isFullWidthTerminal(runes[j-1]) {
			emit(j)
		}
		i = j - 1
	}
	emit(len(runes))

	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || isFullWidthTerminal(r)
}

func isFullWidthTerminal(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}
