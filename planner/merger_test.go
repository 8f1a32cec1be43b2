package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWindows_GapWithinLimit(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windows := []Window{
		{StartTime: start, EndTime: start.Add(10 * time.Minute), Confidence: 0.7, SampleCount: 2},
		// 1800s gap, below the 3600s default
		{StartTime: start.Add(40 * time.Minute), EndTime: start.Add(50 * time.Minute), Confidence: 0.9, SampleCount: 3},
	}

	merged := MergeWindows(windows, 0)
	require.Len(t, merged, 1)
	assert.Equal(t, start, merged[0].StartTime)
	assert.Equal(t, start.Add(50*time.Minute), merged[0].EndTime)
	assert.Equal(t, 0.9, merged[0].Confidence, "merged confidence is the max of the inputs")
	assert.Equal(t, 5, merged[0].SampleCount)
}

func TestMergeWindows_GapBeyondLimit(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windows := []Window{
		{StartTime: start, EndTime: start.Add(10 * time.Minute), Confidence: 0.7},
		{StartTime: start.Add(2 * time.Hour), EndTime: start.Add(3 * time.Hour), Confidence: 0.8},
	}

	merged := MergeWindows(windows, 0)
	assert.Len(t, merged, 2)
}

func TestMergeWindows_UnsortedInput(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windows := []Window{
		{StartTime: start.Add(3 * time.Hour), EndTime: start.Add(4 * time.Hour), Confidence: 0.5},
		{StartTime: start, EndTime: start.Add(30 * time.Minute), Confidence: 0.8},
		{StartTime: start.Add(45 * time.Minute), EndTime: start.Add(90 * time.Minute), Confidence: 0.6},
	}

	merged := MergeWindows(windows, 0)
	require.Len(t, merged, 2)
	assert.Equal(t, start, merged[0].StartTime)
	assert.Equal(t, start.Add(90*time.Minute), merged[0].EndTime)
	assert.Equal(t, 0.8, merged[0].Confidence)
	assert.Equal(t, start.Add(3*time.Hour), merged[1].StartTime)
}

func TestMergeWindows_Idempotent(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windows := []Window{
		{StartTime: start, EndTime: start.Add(20 * time.Minute), Confidence: 0.6},
		{StartTime: start.Add(30 * time.Minute), EndTime: start.Add(time.Hour), Confidence: 0.7},
		{StartTime: start.Add(4 * time.Hour), EndTime: start.Add(5 * time.Hour), Confidence: 0.9},
	}

	once := MergeWindows(windows, 0)
	twice := MergeWindows(once, 0)
	assert.Equal(t, once, twice)
}

func TestMergeWindows_NonOverlappingOutput(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windows := []Window{
		{StartTime: start, EndTime: start.Add(time.Hour), Confidence: 0.6},
		{StartTime: start.Add(30 * time.Minute), EndTime: start.Add(2 * time.Hour), Confidence: 0.7},
		{StartTime: start.Add(5 * time.Hour), EndTime: start.Add(6 * time.Hour), Confidence: 0.8},
		{StartTime: start.Add(5*time.Hour + 30*time.Minute), EndTime: start.Add(7 * time.Hour), Confidence: 0.4},
	}

	merged := MergeWindows(windows, 0)
	for i := 1; i < len(merged); i++ {
		assert.False(t, merged[i].StartTime.Before(merged[i-1].EndTime),
			"merged windows must not overlap")
	}
}

func TestMergeWindows_Empty(t *testing.T) {
	assert.Nil(t, MergeWindows(nil, 0))
}
