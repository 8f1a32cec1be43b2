package planner

import (
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/collection-planner/model"
)

// Window is a scored candidate interval produced by the optimizer or
// converted from oracle results for merging. Unlike
// model.CollectionWindow it carries the raw dimension sub-scores and has
// no minimum-duration constraint of its own.
type Window struct {
	StartTime   time.Time
	EndTime     time.Time
	Confidence  float64
	SampleCount int
	// Scores holds the dimension sub-scores the confidence was computed
	// from, so later rescoring with different weights stays possible.
	Scores Scores
}

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.EndTime.Sub(w.StartTime) }

// Constraints bound candidate window generation.
type Constraints struct {
	// MaxDuration caps a window's length; zero means unbounded.
	MaxDuration time.Duration
	// OptimalDuration is the duration at which the temporal sub-score
	// reaches 1.0; zero scores every window's duration as optimal.
	OptimalDuration time.Duration
}

// OptimizeWindows generates candidate collection windows from an ordered
// sequence of sample timestamps. For each start index the end index grows
// while the elapsed duration stays within MaxDuration; a window must span
// at least two samples. The temporal sub-score is
// min(duration/OptimalDuration, 1.0); the spatial, spectral, and
// radiometric sub-scores default to 1.0 and are only replaced when
// oracle-driven rescoring runs later. Output is sorted by confidence
// descending with ties broken by ascending start index, truncated to
// maxWindows when positive.
//
// Fails with a ValidationError when the total span of the samples is
// shorter than the minimum window duration.
func OptimizeWindows(times []time.Time, c Constraints, maxWindows int) ([]Window, error) {
	if len(times) == 0 {
		return nil, nil
	}

	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	if sorted[len(sorted)-1].Sub(sorted[0]) < model.MinWindowDuration {
		return nil, model.Validationf("time span must be at least %v", model.MinWindowDuration)
	}

	// Each start index is independent, so the grow loops run in
	// parallel; results land in a fixed slot per index to keep the
	// output deterministic.
	candidates := make([]*Window, len(sorted))
	var wg sync.WaitGroup
	for i := range sorted {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			candidates[start] = growWindow(sorted, start, c)
		}(i)
	}
	wg.Wait()

	windows := make([]Window, 0, len(candidates))
	for _, w := range candidates {
		if w != nil {
			windows = append(windows, *w)
		}
	}

	// Stable sort keeps the ascending start-index order for ties.
	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].Confidence > windows[j].Confidence
	})
	if maxWindows > 0 && len(windows) > maxWindows {
		windows = windows[:maxWindows]
	}
	return windows, nil
}

func growWindow(sorted []time.Time, start int, c Constraints) *Window {
	startTime := sorted[start]
	end := start + 1
	for end < len(sorted) {
		if c.MaxDuration > 0 && sorted[end].Sub(startTime) > c.MaxDuration {
			break
		}
		end++
	}
	if end-start < 2 {
		return nil
	}

	duration := sorted[end-1].Sub(startTime)
	optimal := c.OptimalDuration
	if optimal <= 0 {
		optimal = duration
	}
	temporal := 1.0
	if optimal > 0 {
		temporal = float64(duration) / float64(optimal)
		if temporal > 1 {
			temporal = 1
		}
	}

	scores := Scores{
		DimTemporal:    temporal,
		DimSpatial:     1.0,
		DimSpectral:    1.0,
		DimRadiometric: 1.0,
	}
	// Default weights always sum to 1 and all keys are present, so the
	// computation cannot fail here.
	confidence, _ := ComputeConfidence(scores, nil)

	return &Window{
		StartTime:   startTime,
		EndTime:     sorted[end-1],
		Confidence:  confidence,
		SampleCount: end - start,
		Scores:      scores,
	}
}
