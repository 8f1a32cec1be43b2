package planner

import (
	"sort"
	"time"
)

// MaxMergeGap is the default maximum gap between two windows for them to
// be merged into one.
const MaxMergeGap = 3600 * time.Second

// MergeWindows folds temporally adjacent or overlapping windows into
// single spans. Windows are sorted ascending by start time and swept left
// to right: the next window is merged into the accumulator when the gap
// between the accumulator's end and the next start is at most maxGap,
// extending the end to the later of the two and keeping the higher
// confidence. A non-positive maxGap uses MaxMergeGap.
//
// The result is deterministic, ordered by start time, pairwise
// non-overlapping, and idempotent under re-application.
func MergeWindows(windows []Window, maxGap time.Duration) []Window {
	if len(windows) == 0 {
		return nil
	}
	if maxGap <= 0 {
		maxGap = MaxMergeGap
	}

	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	merged := make([]Window, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.StartTime.Sub(current.EndTime) <= maxGap {
			if next.EndTime.After(current.EndTime) {
				current.EndTime = next.EndTime
			}
			if next.Confidence > current.Confidence {
				current.Confidence = next.Confidence
				current.Scores = next.Scores
			}
			current.SampleCount += next.SampleCount
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
