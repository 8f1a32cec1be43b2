package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/collection-planner/model"
)

func sampleTimes(start time.Time, step time.Duration, n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * step)
	}
	return times
}

func TestOptimizeWindows_SpanTooShort(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := OptimizeWindows(sampleTimes(start, time.Minute, 3), Constraints{}, 0)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestOptimizeWindows_Empty(t *testing.T) {
	windows, err := OptimizeWindows(nil, Constraints{}, 0)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestOptimizeWindows_RequiresTwoSamples(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := sampleTimes(start, 10*time.Minute, 4)
	windows, err := OptimizeWindows(times, Constraints{MaxDuration: 30 * time.Minute}, 0)
	require.NoError(t, err)

	// The last start index has no second sample in range and produces
	// no window.
	for _, w := range windows {
		assert.GreaterOrEqual(t, w.SampleCount, 2)
	}
	assert.Len(t, windows, 3)
}

func TestOptimizeWindows_TemporalScore(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := sampleTimes(start, 10*time.Minute, 2) // one 600s window
	windows, err := OptimizeWindows(times, Constraints{OptimalDuration: 20 * time.Minute}, 0)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	// temporal = 600/1200 = 0.5, other dimensions 1.0
	want := 0.4*0.5 + 0.3 + 0.2 + 0.1
	assert.InDelta(t, want, windows[0].Confidence, 1e-12)
	assert.InDelta(t, 0.5, windows[0].Scores[DimTemporal], 1e-12)
}

func TestOptimizeWindows_SortedByConfidenceThenStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Irregular spacing so different start indices reach different
	// durations under the cap.
	times := []time.Time{
		start,
		start.Add(5 * time.Minute),
		start.Add(10 * time.Minute),
		start.Add(40 * time.Minute),
		start.Add(45 * time.Minute),
	}
	windows, err := OptimizeWindows(times, Constraints{
		MaxDuration:     15 * time.Minute,
		OptimalDuration: 15 * time.Minute,
	}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, windows)

	for i := 1; i < len(windows); i++ {
		prev, cur := windows[i-1], windows[i]
		assert.GreaterOrEqual(t, prev.Confidence, cur.Confidence)
		if prev.Confidence == cur.Confidence {
			assert.True(t, prev.StartTime.Before(cur.StartTime) || prev.StartTime.Equal(cur.StartTime))
		}
	}
}

func TestOptimizeWindows_MaxWindows(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := sampleTimes(start, 10*time.Minute, 10)
	windows, err := OptimizeWindows(times, Constraints{MaxDuration: time.Hour}, 3)
	require.NoError(t, err)
	assert.Len(t, windows, 3)
}

func TestOptimizeWindows_UnboundedDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := sampleTimes(start, time.Hour, 5)
	windows, err := OptimizeWindows(times, Constraints{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, windows)

	// With no duration cap the first start index spans every sample.
	var widest Window
	for _, w := range windows {
		if w.StartTime.Equal(start) {
			widest = w
		}
	}
	assert.Equal(t, 5, widest.SampleCount)
	assert.Equal(t, start.Add(4*time.Hour), widest.EndTime)
}
