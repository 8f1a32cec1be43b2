package model

import (
	"time"

	"github.com/google/uuid"
)

// ParameterKind is the measurable dimension a requirement constrains.
type ParameterKind string

const (
	ParamTemporal    ParameterKind = "TEMPORAL"
	ParamSpatial     ParameterKind = "SPATIAL"
	ParamSpectral    ParameterKind = "SPECTRAL"
	ParamRadiometric ParameterKind = "RADIOMETRIC"
)

// Validity-window bounds for a requirement, in days.
const (
	MinRequirementWindowDays = 1
	MaxRequirementWindowDays = 365
)

// parameterUnits maps each kind to the unit strings it accepts.
var parameterUnits = map[ParameterKind][]string{
	ParamTemporal:    {"seconds", "minutes", "hours"},
	ParamSpatial:     {"meters", "kilometers"},
	ParamSpectral:    {"nanometers", "micrometers"},
	ParamRadiometric: {"bits", "levels"},
}

// parameterRanges bounds the numeric value per kind, in the kind's base
// unit (seconds, metres, nanometres, bits).
var parameterRanges = map[ParameterKind]struct{ min, max float64 }{
	ParamTemporal:    {1, 86400},
	ParamSpatial:     {0.1, 1000},
	ParamSpectral:    {1, 2500},
	ParamRadiometric: {1, 16},
}

// Requirement is one measurable constraint a collection must satisfy. It
// references an existing asset by ID and is valid only inside its
// [StartTime, EndTime) window.
type Requirement struct {
	ID        string        `json:"id"`
	AssetID   string        `json:"asset_id"`
	Parameter ParameterKind `json:"parameter"`
	Value     float64       `json:"value"`
	Unit      string        `json:"unit"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	// Constraints is a free-form extension map; its contents are opaque
	// to the planner and forwarded to the oracle untouched.
	Constraints map[string]any `json:"constraints,omitempty"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewRequirement constructs and validates a requirement against the given
// asset.
func NewRequirement(assetID string, kind ParameterKind, value float64, unit string, start, end time.Time, constraints map[string]any) (*Requirement, error) {
	now := time.Now().UTC()
	r := &Requirement{
		ID:          uuid.NewString(),
		AssetID:     assetID,
		Parameter:   kind,
		Value:       value,
		Unit:        unit,
		StartTime:   start,
		EndTime:     end,
		Constraints: constraints,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks parameter kind, unit, validity window, and value range.
func (r *Requirement) Validate() error {
	if r.AssetID == "" {
		return Validationf("requirement must reference an asset")
	}
	units, ok := parameterUnits[r.Parameter]
	if !ok {
		return Validationf("invalid parameter kind: %s", r.Parameter)
	}
	if !containsString(units, r.Unit) {
		return Validationf("invalid unit %q for parameter %s", r.Unit, r.Parameter)
	}
	if !r.StartTime.Before(r.EndTime) {
		return Validationf("requirement start time must be before end time")
	}
	days := int(r.EndTime.Sub(r.StartTime).Hours() / 24)
	if days < MinRequirementWindowDays || days > MaxRequirementWindowDays {
		return Validationf("requirement window must be between %d and %d days",
			MinRequirementWindowDays, MaxRequirementWindowDays)
	}
	bounds := parameterRanges[r.Parameter]
	if r.Value < bounds.min || r.Value > bounds.max {
		return Validationf("value %g for %s must be between %g and %g %s",
			r.Value, r.Parameter, bounds.min, bounds.max, r.Unit)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
