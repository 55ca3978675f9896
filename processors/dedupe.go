package processors

import (
	"sort"
	"strings"

	"kado/core"
)

// Two failures are duplicates when their timestamps are within
// dupTimeWindow seconds and their titles score above dupTitleCutoff
// on word-level Jaccard similarity.
const (
	dupTimeWindow  = 30.0
	dupTitleCutoff = 0.5
)

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func jaccardSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}
	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func areDuplicates(a, b core.FailureEvent) bool {
	timeClose := absFloat(a.TimestampSeconds-b.TimestampSeconds) <= dupTimeWindow
	titleSimilar := jaccardSimilarity(a.Title, b.Title) > dupTitleCutoff
	return timeClose && titleSimilar
}

// mergeEvents folds two duplicates into one. The higher-confidence
// event wins (ties keep the first-encountered one); evidence from the
// dropped event is appended unless it already appears in the kept one.
func mergeEvents(keep, drop core.FailureEvent) core.FailureEvent {
	if drop.Confidence > keep.Confidence {
		keep, drop = drop, keep
	}
	if drop.Evidence != "" && !strings.Contains(keep.Evidence, drop.Evidence) {
		keep.Evidence = keep.Evidence + " | " + drop.Evidence
	}
	return keep
}

// MergeAndDedupe collapses near-duplicate failure events and returns
// the result sorted by timestamp ascending.
//
// Folding is a greedy single pass: events are sorted by timestamp, and
// each later unconsumed event is tested against the running merged
// representative of the current cluster, not against the original
// event. An event that only matches the cluster after a merge shifted
// its representative is therefore still folded in.
func MergeAndDedupe(events []core.FailureEvent) []core.FailureEvent {
	if len(events) == 0 {
		return []core.FailureEvent{}
	}

	sorted := make([]core.FailureEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampSeconds < sorted[j].TimestampSeconds
	})

	merged := make([]core.FailureEvent, 0, len(sorted))
	used := make([]bool, len(sorted))
	for i := range sorted {
		if used[i] {
			continue
		}
		current := sorted[i]
		for j := i + 1; j < len(sorted); j++ {
			if used[j] {
				continue
			}
			if areDuplicates(current, sorted[j]) {
				current = mergeEvents(current, sorted[j])
				used[j] = true
			}
		}
		merged = append(merged, current)
		used[i] = true
	}

	// Merging can move a cluster's anchoring timestamp, so re-sort.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TimestampSeconds < merged[j].TimestampSeconds
	})
	return merged
}
