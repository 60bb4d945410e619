package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCalibFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validCalib = `{
	"max_steer_angle_deg": 25,
	"min_turn_radius_cm": 40,
	"wheelbase_cm": 9.5,
	"target_distance_cm": 15,
	"distance_source": "range",
	"speed_to_cm_per_sec": [[10, 5], [40, 18], [20, 9]]
}`

func TestLoadValidFile(t *testing.T) {
	c, err := Load(writeCalibFile(t, validCalib))
	require.NoError(t, err)

	assert.Equal(t, 25.0, c.MaxSteerDeg())
	assert.Equal(t, 40.0, c.MinTurnRadiusCm())
	assert.Equal(t, 9.5, c.WheelbaseCm())
	assert.Equal(t, 15.0, c.TargetDistanceCm())
	assert.Equal(t, SourceRange, c.Source())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	_, err := Load(writeCalibFile(t, "{not json"))
	assert.Error(t, err)
}

func TestValidationRejectsBadValues(t *testing.T) {
	base := fileSchema{
		MaxSteerAngleDeg: 25,
		MinTurnRadiusCm:  40,
		WheelbaseCm:      9.5,
		TargetDistanceCm: 15,
		SpeedToCmPerSec:  [][2]float64{{10, 5}, {40, 18}},
	}
	cases := []struct {
		name   string
		mutate func(*fileSchema)
	}{
		{"zero steer limit", func(fs *fileSchema) { fs.MaxSteerAngleDeg = 0 }},
		{"steer limit beyond servo", func(fs *fileSchema) { fs.MaxSteerAngleDeg = 60 }},
		{"negative turn radius", func(fs *fileSchema) { fs.MinTurnRadiusCm = -1 }},
		{"zero wheelbase", func(fs *fileSchema) { fs.WheelbaseCm = 0 }},
		{"zero target distance", func(fs *fileSchema) { fs.TargetDistanceCm = 0 }},
		{"unknown source", func(fs *fileSchema) { fs.DistanceSource = "lidar" }},
		{"single-point speed curve", func(fs *fileSchema) { fs.SpeedToCmPerSec = [][2]float64{{10, 5}} }},
		{"bbox source without curve", func(fs *fileSchema) { fs.DistanceSource = "bbox" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := base
			tc.mutate(&fs)
			_, err := fromSchema(fs)
			assert.Error(t, err)
		})
	}
}

func TestEmptySourceDefaultsToRange(t *testing.T) {
	c, err := fromSchema(fileSchema{
		MaxSteerAngleDeg: 25,
		MinTurnRadiusCm:  40,
		WheelbaseCm:      9.5,
		TargetDistanceCm: 15,
		SpeedToCmPerSec:  [][2]float64{{10, 5}, {40, 18}},
	})
	require.NoError(t, err)
	assert.Equal(t, SourceRange, c.Source())
}

func TestSpeedCurveInterpolation(t *testing.T) {
	c := Default()

	// Exact calibration points.
	assert.InDelta(t, 18.0, c.CmPerSec(40), 1e-9)
	assert.InDelta(t, 5.0, c.CmPerSec(10), 1e-9)

	// Linear between points: speed 30 sits midway between 20 and 40.
	assert.InDelta(t, 13.5, c.CmPerSec(30), 1e-9)

	// Clamping outside the calibrated range.
	assert.InDelta(t, 5.0, c.CmPerSec(5), 1e-9)
	assert.InDelta(t, 47.0, c.CmPerSec(120), 1e-9)

	// Reverse uses the magnitude.
	assert.InDelta(t, 18.0, c.CmPerSec(-40), 1e-9)
}

func TestDistanceFromArea(t *testing.T) {
	c := Default()

	cm, ok := c.DistanceFromArea(4000)
	require.True(t, ok)
	assert.InDelta(t, 90.0, cm, 1e-9)

	// Closer targets look bigger.
	far, _ := c.DistanceFromArea(2000)
	near, _ := c.DistanceFromArea(50000)
	assert.Greater(t, far, near)

	_, ok = c.DistanceFromArea(0)
	assert.False(t, ok)
}

func TestDistanceFromAreaWithoutCurve(t *testing.T) {
	c, err := fromSchema(fileSchema{
		MaxSteerAngleDeg: 25,
		MinTurnRadiusCm:  40,
		WheelbaseCm:      9.5,
		TargetDistanceCm: 15,
		SpeedToCmPerSec:  [][2]float64{{10, 5}, {40, 18}},
	})
	require.NoError(t, err)

	_, ok := c.DistanceFromArea(4000)
	assert.False(t, ok)
}

func TestCurveSortsUnorderedPoints(t *testing.T) {
	c, err := Load(writeCalibFile(t, validCalib))
	require.NoError(t, err)

	// The file lists [10,5],[40,18],[20,9] out of order.
	assert.InDelta(t, 9.0, c.CmPerSec(20), 1e-9)
	assert.InDelta(t, 13.5, c.CmPerSec(30), 1e-9)
}
