package processors

import (
	"strings"

	"kado/core"
)

// DefaultWindowRadius is how many segments of context are taken on each
// side of a candidate segment.
const DefaultWindowRadius = 2

// FailureKeywords are the trigger phrases that flag a transcript
// segment as potentially describing a software failure.
var FailureKeywords = []string{
	"doesn't",
	"does not",
	"nothing happens",
	"broken",
	"error",
	"bug",
	"fails",
	"wrong",
	"stuck",
	"crash",
	"not working",
	"issue",
	"problem",
}

// DetectCandidates returns the indices of segments whose text contains
// any failure keyword. Matching is case-insensitive and a segment is
// flagged at most once; output order follows the transcript.
func DetectCandidates(segments []core.Segment) []int {
	candidates := make([]int, 0)
	for i, seg := range segments {
		lower := strings.ToLower(seg.Text)
		for _, kw := range FailureKeywords {
			if strings.Contains(lower, kw) {
				candidates = append(candidates, i)
				break
			}
		}
	}
	return candidates
}

// BuildWindows expands each candidate index into a window of up to
// radius segments on either side, clipped at the transcript bounds.
// Overlapping windows are not merged; each candidate keeps its own
// local context and duplicates are resolved after extraction.
func BuildWindows(segments []core.Segment, indices []int, radius int) [][]core.Segment {
	windows := make([][]core.Segment, 0, len(indices))
	for _, idx := range indices {
		start := idx - radius
		if start < 0 {
			start = 0
		}
		end := idx + radius + 1
		if end > len(segments) {
			end = len(segments)
		}
		windows = append(windows, segments[start:end])
	}
	return windows
}
