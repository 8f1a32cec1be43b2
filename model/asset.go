package model

import (
	"time"

	"github.com/google/uuid"
)

// AssetType classifies the sensing instrument an asset describes.
type AssetType string

const (
	AssetEnvironmentalMonitoring AssetType = "ENVIRONMENTAL_MONITORING"
	AssetInfrastructure          AssetType = "INFRASTRUCTURE"
	AssetAgriculture             AssetType = "AGRICULTURE"
	AssetCustom                  AssetType = "CUSTOM"
)

// Detection-limit and size bounds shared by asset validation and the
// detection-limit interpolation helper.
const (
	MinDetectionLimit = 0.1
	MaxDetectionLimit = 100.0
	MinAssetSize      = 0.5
	MaxAssetSize      = 1000.0
)

// ValidAssetType reports whether t is one of the recognised asset types.
func ValidAssetType(t AssetType) bool {
	switch t {
	case AssetEnvironmentalMonitoring, AssetInfrastructure, AssetAgriculture, AssetCustom:
		return true
	}
	return false
}

// AssetProperties are the required capability properties of an asset.
// Extra free-form properties live alongside in Asset.Extra so that new
// capabilities can be carried without a schema change.
type AssetProperties struct {
	// Resolution is the ground sample distance in metres.
	Resolution float64 `json:"resolution" yaml:"resolution"`
	// SpectralBands lists the bands the instrument senses in.
	SpectralBands []string `json:"spectral_bands" yaml:"spectral_bands"`
	// RevisitTime is the nominal revisit period in hours.
	RevisitTime int `json:"revisit_time" yaml:"revisit_time"`
}

// Asset describes a sensing instrument matched against requirements.
// Identity is immutable once created; all other fields are validated on
// construction and on every Update.
type Asset struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           AssetType       `json:"type"`
	MinSize        float64         `json:"min_size"`
	DetectionLimit float64         `json:"detection_limit"`
	Properties     AssetProperties `json:"properties"`
	// Extra holds forward-compatible free-form properties.
	Extra        map[string]any `json:"extra,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewAsset constructs and validates an asset, assigning a fresh ID and
// timestamps.
func NewAsset(name string, typ AssetType, minSize, detectionLimit float64, props AssetProperties) (*Asset, error) {
	now := time.Now().UTC()
	a := &Asset{
		ID:             uuid.NewString(),
		Name:           name,
		Type:           typ,
		MinSize:        minSize,
		DetectionLimit: detectionLimit,
		Properties:     props,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks all asset parameters against their legal ranges.
func (a *Asset) Validate() error {
	if !ValidAssetType(a.Type) {
		return Validationf("invalid asset type: %s", a.Type)
	}
	if a.MinSize < MinAssetSize || a.MinSize > MaxAssetSize {
		return Validationf("invalid minimum size %g: must be between %g and %g",
			a.MinSize, MinAssetSize, MaxAssetSize)
	}
	if a.DetectionLimit < MinDetectionLimit || a.DetectionLimit > MaxDetectionLimit {
		return Validationf("invalid detection limit %g: must be between %g and %g",
			a.DetectionLimit, MinDetectionLimit, MaxDetectionLimit)
	}
	if a.Properties.Resolution <= 0 {
		return Validationf("resolution must be a positive value")
	}
	if len(a.Properties.SpectralBands) == 0 {
		return Validationf("at least one spectral band is required")
	}
	if a.Properties.RevisitTime <= 0 {
		return Validationf("revisit time must be a positive number of hours")
	}
	return nil
}

// AssetUpdate carries the mutable fields of an asset. Nil fields are left
// unchanged.
type AssetUpdate struct {
	Name           *string
	Type           *AssetType
	MinSize        *float64
	DetectionLimit *float64
	Properties     *AssetProperties
	Capabilities   []string
}

// Update applies the non-nil fields of u, revalidates, and bumps
// UpdatedAt. On validation failure the asset is left unchanged.
func (a *Asset) Update(u AssetUpdate) error {
	next := *a
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Type != nil {
		next.Type = *u.Type
	}
	if u.MinSize != nil {
		next.MinSize = *u.MinSize
	}
	if u.DetectionLimit != nil {
		next.DetectionLimit = *u.DetectionLimit
	}
	if u.Properties != nil {
		next.Properties = *u.Properties
	}
	if u.Capabilities != nil {
		next.Capabilities = u.Capabilities
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	*a = next
	return nil
}
