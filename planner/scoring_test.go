package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/collection-planner/model"
)

func fullScores(t, s, sp, r float64) Scores {
	return Scores{DimTemporal: t, DimSpatial: s, DimSpectral: sp, DimRadiometric: r}
}

func TestComputeConfidence_WeightedSum(t *testing.T) {
	got, err := ComputeConfidence(fullScores(0.9, 0.8, 0.7, 0.9), nil)
	require.NoError(t, err)
	// 0.4*0.9 + 0.3*0.8 + 0.2*0.7 + 0.1*0.9
	assert.InDelta(t, 0.85, got, 1e-12)
}

func TestComputeConfidence_ExactBounds(t *testing.T) {
	got, err := ComputeConfidence(fullScores(1, 1, 1, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = ComputeConfidence(fullScores(0, 0, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestComputeConfidence_MissingDimension(t *testing.T) {
	params := fullScores(0.5, 0.5, 0.5, 0.5)
	delete(params, DimSpectral)
	_, err := ComputeConfidence(params, nil)
	var merr *MissingParameterError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, []string{DimSpectral}, merr.Missing)
}

func TestComputeConfidence_WeightSumChecked(t *testing.T) {
	bad := Weights{DimTemporal: 0.5, DimSpatial: 0.3, DimSpectral: 0.2, DimRadiometric: 0.1}
	_, err := ComputeConfidence(fullScores(1, 1, 1, 1), bad)
	var werr *WeightError
	require.ErrorAs(t, err, &werr)
	assert.InDelta(t, 1.1, werr.Sum, 1e-12)
}

func TestComputeConfidence_ClampsInputs(t *testing.T) {
	got, err := ComputeConfidence(fullScores(1.7, -0.3, 0.5, 0.5), nil)
	require.NoError(t, err)
	// temporal clamps to 1, spatial to 0
	assert.InDelta(t, 0.4*1+0.3*0+0.2*0.5+0.1*0.5, got, 1e-12)
}

func TestComputeConfidence_CustomWeights(t *testing.T) {
	even := Weights{DimTemporal: 0.25, DimSpatial: 0.25, DimSpectral: 0.25, DimRadiometric: 0.25}
	got, err := ComputeConfidence(fullScores(0.2, 0.4, 0.6, 0.8), even)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-12)
}

func TestComputeConfidence_OutputInRange(t *testing.T) {
	grid := []float64{0, 0.25, 0.5, 0.75, 1}
	for _, a := range grid {
		for _, b := range grid {
			got, err := ComputeConfidence(fullScores(a, b, 1-a, 1-b), nil)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestInterpolateDetectionLimit(t *testing.T) {
	got, err := InterpolateDetectionLimit(10, 1000, model.AssetInfrastructure)
	require.NoError(t, err)
	// 10 * (1 + 1*1.0)
	assert.InDelta(t, 20.0, got, 1e-12)

	got, err = InterpolateDetectionLimit(10, 1000, model.AssetEnvironmentalMonitoring)
	require.NoError(t, err)
	assert.InDelta(t, 22.0, got, 1e-12)

	// clamps at the detection-limit ceiling
	got, err = InterpolateDetectionLimit(90, 100000, model.AssetCustom)
	require.NoError(t, err)
	assert.Equal(t, model.MaxDetectionLimit, got)
}

func TestInterpolateDetectionLimit_Invalid(t *testing.T) {
	_, err := InterpolateDetectionLimit(10, 0, model.AssetType("SONAR"))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = InterpolateDetectionLimit(0.01, 0, model.AssetCustom)
	require.ErrorAs(t, err, &verr)
}

func TestInterpolateDetectionLimit_Memoized(t *testing.T) {
	first, err := InterpolateDetectionLimit(5, 2500, model.AssetAgriculture)
	require.NoError(t, err)
	second, err := InterpolateDetectionLimit(5, 2500, model.AssetAgriculture)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
