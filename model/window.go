package model

import "time"

// MinWindowDuration is the shortest collection window the planner will
// accept, in seconds (5 minutes).
const MinWindowDuration = 300 * time.Second

// CollectionWindow is a concrete interval during which data may be
// acquired, carrying a [0,1] confidence score.
type CollectionWindow struct {
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	ConfidenceScore float64        `json:"confidence_score"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

// NewCollectionWindow constructs and validates a window.
func NewCollectionWindow(start, end time.Time, confidence float64, params map[string]any) (*CollectionWindow, error) {
	w := &CollectionWindow{
		StartTime:       start,
		EndTime:         end,
		ConfidenceScore: confidence,
		Parameters:      params,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks interval ordering, minimum duration, and score bounds.
func (w *CollectionWindow) Validate() error {
	if !w.StartTime.Before(w.EndTime) {
		return Validationf("window start time must be before end time")
	}
	if w.EndTime.Sub(w.StartTime) < MinWindowDuration {
		return Validationf("window duration must be at least %v", MinWindowDuration)
	}
	if w.ConfidenceScore < 0 || w.ConfidenceScore > 1 {
		return Validationf("confidence score %g must be between 0 and 1", w.ConfidenceScore)
	}
	return nil
}

// Duration returns the window length.
func (w *CollectionWindow) Duration() time.Duration {
	return w.EndTime.Sub(w.StartTime)
}

// Overlaps reports whether w and other share any instant.
func (w *CollectionWindow) Overlaps(other *CollectionWindow) bool {
	return w.StartTime.Before(other.EndTime) && w.EndTime.After(other.StartTime)
}
