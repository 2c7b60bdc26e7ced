package correction

import "github.com/fankserver/meeting-transcriber/internal/segment"

// BulkReassign returns a copy of segments in which every segment labeled
// matchSpeaker is relabeled to targetSpeaker. Matching is by label across the
// whole transcript, not by contiguous run.
func BulkReassign(segments []segment.Segment, matchSpeaker, targetSpeaker string) []segment.Segment {
	out := segment.Clone(segments)
	for i := range out {
		if out[i].Speaker == matchSpeaker {
			out[i].Speaker = targetSpeaker
		}
	}
	return out
}
