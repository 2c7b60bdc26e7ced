package segment

import (
	"fmt"
	"time"
)

// DefaultSpeaker labels segments whose source carried no speaker information
const DefaultSpeaker = "Speaker 1"

// Segment is one normalized unit of transcript. Order within a transcript is
// chronological; Speaker is an opaque label, not a verified identity.
type Segment struct {
	Time       string  `json:"time"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// SpeakerLabel returns the display label for the n-th distinct speaker (1-based)
func SpeakerLabel(n int) string {
	return fmt.Sprintf("Speaker %d", n)
}

// Timestamp formats an offset as mm:ss, flooring to the second. Minutes are
// not wrapped, so offsets beyond an hour read as e.g. "75:03".
func Timestamp(offset time.Duration) string {
	if offset < 0 {
		offset = 0
	}
	total := int(offset / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Clone returns a copy of segments that shares no backing array with the input
func Clone(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	copy(out, segments)
	return out
}

// Speakers returns the distinct speaker labels in first-seen order
func Speakers(segments []Segment) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, s := range segments {
		if !seen[s.Speaker] {
			seen[s.Speaker] = true
			labels = append(labels, s.Speaker)
		}
	}
	return labels
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
