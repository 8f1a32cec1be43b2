// Package planner holds the pure planning computations: weighted
// confidence scoring, candidate window generation, and window merging.
// Everything here is deterministic and free of I/O so it can be exercised
// directly by the orchestrator and by tests.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signalsfoundry/collection-planner/model"
)

// Dimension keys of a confidence computation. All four must be present.
const (
	DimTemporal    = "temporal"
	DimSpatial     = "spatial"
	DimSpectral    = "spectral"
	DimRadiometric = "radiometric"
)

// ScoreTolerance is the numerical tolerance used when checking weight
// sums and when snapping scores to exact 0.0 or 1.0.
const ScoreTolerance = 1e-10

// requiredDimensions is the fixed key set of a confidence computation.
var requiredDimensions = []string{DimTemporal, DimSpatial, DimSpectral, DimRadiometric}

// Scores maps dimension keys to raw [0,1] sub-scores. Out-of-range
// values are clamped, never rejected.
type Scores map[string]float64

// Weights maps dimension keys to weight factors that must sum to 1.
type Weights map[string]float64

// DefaultWeights returns the standard weighting, prioritising temporal
// and spatial quality.
func DefaultWeights() Weights {
	return Weights{
		DimTemporal:    0.4,
		DimSpatial:     0.3,
		DimSpectral:    0.2,
		DimRadiometric: 0.1,
	}
}

// MissingParameterError reports dimension keys absent from a scoring
// input.
type MissingParameterError struct {
	Missing []string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Missing, ", "))
}

// WeightError reports a weight map that does not sum to 1.
type WeightError struct {
	Sum float64
}

func (e *WeightError) Error() string {
	return fmt.Sprintf("weight factors must sum to 1.0, got %g", e.Sum)
}

// ComputeConfidence combines the four dimension sub-scores into a single
// [0,1] confidence value. Inputs are clamped to [0,1] before weighting;
// the weighted sum is clamped again and snapped to exact 0.0/1.0 within
// ScoreTolerance. A nil weights map uses DefaultWeights. The computation
// is pure and safe to memoize by (params, weights).
func ComputeConfidence(params Scores, weights Weights) (float64, error) {
	var missing []string
	for _, dim := range requiredDimensions {
		if _, ok := params[dim]; !ok {
			missing = append(missing, dim)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return 0, &MissingParameterError{Missing: missing}
	}

	if weights == nil {
		weights = DefaultWeights()
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum < 1-ScoreTolerance || sum > 1+ScoreTolerance {
		return 0, &WeightError{Sum: sum}
	}

	score := 0.0
	for _, dim := range requiredDimensions {
		score += weights[dim] * clamp01(params[dim])
	}

	score = clamp01(score)
	if score <= ScoreTolerance {
		return 0.0, nil
	}
	if score >= 1-ScoreTolerance {
		return 1.0, nil
	}
	return score, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// detectionFactors scales detection limits per asset type.
var detectionFactors = map[model.AssetType]float64{
	model.AssetEnvironmentalMonitoring: 1.2,
	model.AssetInfrastructure:          1.0,
	model.AssetAgriculture:             1.1,
	model.AssetCustom:                  1.3,
}

type interpKey struct {
	base     float64
	distance float64
	typ      model.AssetType
}

// interpCache memoizes InterpolateDetectionLimit results. The function is
// pure, so a flat bounded map is enough; when the cap is hit the cache is
// dropped wholesale rather than tracking recency.
var interpCache = struct {
	sync.Mutex
	entries map[interpKey]float64
}{entries: make(map[interpKey]float64)}

const interpCacheCap = 1024

// InterpolateDetectionLimit scales a base detection limit by distance
// (metres) using the asset-type-specific multiplier, clamped to the valid
// detection-limit range. Unrecognised asset types and out-of-range base
// limits fail.
func InterpolateDetectionLimit(baseLimit, distance float64, assetType model.AssetType) (float64, error) {
	factor, ok := detectionFactors[assetType]
	if !ok {
		return 0, model.Validationf("invalid asset type: %s", assetType)
	}
	if baseLimit < model.MinDetectionLimit || baseLimit > model.MaxDetectionLimit {
		return 0, model.Validationf("base limit must be between %g and %g",
			model.MinDetectionLimit, model.MaxDetectionLimit)
	}

	key := interpKey{base: baseLimit, distance: distance, typ: assetType}
	interpCache.Lock()
	if v, hit := interpCache.entries[key]; hit {
		interpCache.Unlock()
		return v, nil
	}
	interpCache.Unlock()

	interpolated := baseLimit * (1 + (distance/1000)*factor)
	if interpolated < model.MinDetectionLimit {
		interpolated = model.MinDetectionLimit
	}
	if interpolated > model.MaxDetectionLimit {
		interpolated = model.MaxDetectionLimit
	}

	interpCache.Lock()
	if len(interpCache.entries) >= interpCacheCap {
		interpCache.entries = make(map[interpKey]float64)
	}
	interpCache.entries[key] = interpolated
	interpCache.Unlock()
	return interpolated, nil
}
