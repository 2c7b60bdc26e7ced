package diarization

import "github.com/fankserver/meeting-transcriber/internal/segment"

// Group is a maximal contiguous run of segments sharing one speaker label.
// Concatenating the segments of all groups in order reproduces the input.
type Group struct {
	Speaker  string
	Segments []segment.Segment
}

// Len returns the number of segments in the group
func (g Group) Len() int {
	return len(g.Segments)
}

// Groups partitions segments into maximal same-speaker runs
func Groups(segments []segment.Segment) []Group {
	var groups []Group
	for _, s := range segments {
		if n := len(groups); n > 0 && groups[n-1].Speaker == s.Speaker {
			groups[n-1].Segments = append(groups[n-1].Segments, s)
			continue
		}
		groups = append(groups, Group{
			Speaker:  s.Speaker,
			Segments: []segment.Segment{s},
		})
	}
	return groups
}

// Flatten concatenates the groups back into a flat list. Every segment takes
// the speaker label of the group it belongs to.
func Flatten(groups []Group) []segment.Segment {
	var n int
	for _, g := range groups {
		n += len(g.Segments)
	}

	out := make([]segment.Segment, 0, n)
	for _, g := range groups {
		for _, s := range g.Segments {
			s.Speaker = g.Speaker
			out = append(out, s)
		}
	}
	return out
}
