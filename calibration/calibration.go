// Package calibration loads the car's measured characteristics from a JSON
// file into an immutable, strongly typed structure. Everything here is read
// once at startup; a changed calibration requires a restart.
package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// DistanceSource selects which signal is authoritative for distance-to-target.
type DistanceSource string

const (
	// SourceRange uses the ultrasonic range sensor.
	SourceRange DistanceSource = "range"
	// SourceBBox uses the calibrated bounding-box-area mapping.
	SourceBBox DistanceSource = "bbox"
)

// fileSchema is the raw JSON shape of a calibration file. Curve points are
// [input, output] pairs; they do not need to be sorted in the file.
type fileSchema struct {
	MaxSteerAngleDeg float64      `json:"max_steer_angle_deg"`
	MinTurnRadiusCm  float64      `json:"min_turn_radius_cm"`
	WheelbaseCm      float64      `json:"wheelbase_cm"`
	TargetDistanceCm float64      `json:"target_distance_cm"`
	DistanceSource   string       `json:"distance_source"`
	SpeedToCmPerSec  [][2]float64 `json:"speed_to_cm_per_sec"`
	BBoxAreaToCm     [][2]float64 `json:"bbox_area_to_cm"`
}

// Curve is a clamped piecewise-linear mapping fitted once at load time.
// Inputs outside the calibrated range return the nearest endpoint value.
type Curve struct {
	pl       interp.PiecewiseLinear
	min, max float64
	fitted   bool
}

func fitCurve(points [][2]float64) (Curve, error) {
	if len(points) < 2 {
		return Curve{}, fmt.Errorf("curve needs at least 2 points, got %d", len(points))
	}
	sorted := make([][2]float64, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })

	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, p := range sorted {
		xs[i] = p[0]
		ys[i] = p[1]
	}
	var c Curve
	if err := c.pl.Fit(xs, ys); err != nil {
		return Curve{}, fmt.Errorf("fitting curve: %v", err)
	}
	c.min = xs[0]
	c.max = xs[len(xs)-1]
	c.fitted = true
	return c, nil
}

// At evaluates the curve, clamping the input to the calibrated range.
func (c Curve) At(x float64) float64 {
	if !c.fitted {
		return 0
	}
	if x < c.min {
		x = c.min
	}
	if x > c.max {
		x = c.max
	}
	return c.pl.Predict(x)
}

// Calibration holds every measured characteristic of the car. Fields are
// unexported; the struct cannot be mutated after Load returns it.
type Calibration struct {
	maxSteerDeg      float64
	minTurnRadiusCm  float64
	wheelbaseCm      float64
	targetDistanceCm float64
	distanceSource   DistanceSource
	speedCurve       Curve
	areaCurve        Curve
	hasAreaCurve     bool
}

// Load reads and validates a calibration JSON file.
func Load(path string) (*Calibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading calibration file: %v", err)
	}
	var fs fileSchema
	if err := json.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("parsing calibration file %s: %v", path, err)
	}
	return fromSchema(fs)
}

func fromSchema(fs fileSchema) (*Calibration, error) {
	if fs.MaxSteerAngleDeg <= 0 || fs.MaxSteerAngleDeg > 45 {
		return nil, fmt.Errorf("max_steer_angle_deg out of range: %v", fs.MaxSteerAngleDeg)
	}
	if fs.MinTurnRadiusCm <= 0 {
		return nil, fmt.Errorf("min_turn_radius_cm must be positive: %v", fs.MinTurnRadiusCm)
	}
	if fs.WheelbaseCm <= 0 {
		return nil, fmt.Errorf("wheelbase_cm must be positive: %v", fs.WheelbaseCm)
	}
	if fs.TargetDistanceCm <= 0 {
		return nil, fmt.Errorf("target_distance_cm must be positive: %v", fs.TargetDistanceCm)
	}
	src := DistanceSource(fs.DistanceSource)
	switch src {
	case SourceRange, SourceBBox:
	case "":
		src = SourceRange
	default:
		return nil, fmt.Errorf("unknown distance_source %q", fs.DistanceSource)
	}

	speedCurve, err := fitCurve(fs.SpeedToCmPerSec)
	if err != nil {
		return nil, fmt.Errorf("speed_to_cm_per_sec: %v", err)
	}

	c := &Calibration{
		maxSteerDeg:      fs.MaxSteerAngleDeg,
		minTurnRadiusCm:  fs.MinTurnRadiusCm,
		wheelbaseCm:      fs.WheelbaseCm,
		targetDistanceCm: fs.TargetDistanceCm,
		distanceSource:   src,
		speedCurve:       speedCurve,
	}

	if len(fs.BBoxAreaToCm) > 0 {
		areaCurve, err := fitCurve(fs.BBoxAreaToCm)
		if err != nil {
			return nil, fmt.Errorf("bbox_area_to_cm: %v", err)
		}
		c.areaCurve = areaCurve
		c.hasAreaCurve = true
	}
	if src == SourceBBox && !c.hasAreaCurve {
		return nil, fmt.Errorf("distance_source %q requires bbox_area_to_cm", src)
	}
	return c, nil
}

// Default returns a calibration with stock picar-x values, for bench runs
// and tests where no measured file exists.
func Default() *Calibration {
	c, err := fromSchema(fileSchema{
		MaxSteerAngleDeg: 25,
		MinTurnRadiusCm:  40,
		WheelbaseCm:      9.5,
		TargetDistanceCm: 15,
		DistanceSource:   string(SourceRange),
		SpeedToCmPerSec: [][2]float64{
			{10, 5}, {20, 9}, {40, 18}, {60, 28}, {80, 38}, {100, 47},
		},
		BBoxAreaToCm: [][2]float64{
			{1500, 150}, {4000, 90}, {12000, 50}, {40000, 25}, {90000, 12},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("default calibration invalid: %v", err))
	}
	return c
}

// MaxSteerDeg returns the symmetric steering limit in degrees.
func (c *Calibration) MaxSteerDeg() float64 { return c.maxSteerDeg }

// MinTurnRadiusCm returns the tightest turn the car can make.
func (c *Calibration) MinTurnRadiusCm() float64 { return c.minTurnRadiusCm }

// WheelbaseCm returns the front-to-rear axle distance.
func (c *Calibration) WheelbaseCm() float64 { return c.wheelbaseCm }

// TargetDistanceCm returns the follow distance held in the Track state.
func (c *Calibration) TargetDistanceCm() float64 { return c.targetDistanceCm }

// Source returns the configured primary distance source. The other source
// is entirely unused at runtime.
func (c *Calibration) Source() DistanceSource { return c.distanceSource }

// CmPerSec maps a commanded speed magnitude (0-100) to ground speed in cm/s.
func (c *Calibration) CmPerSec(speed int) float64 {
	return c.speedCurve.At(math.Abs(float64(speed)))
}

// DistanceFromArea maps a bounding-box area in px² to a distance estimate in
// cm. Returns false when no area curve was calibrated.
func (c *Calibration) DistanceFromArea(areaPx float64) (float64, bool) {
	if !c.hasAreaCurve || areaPx <= 0 {
		return 0, false
	}
	return c.areaCurve.At(areaPx), true
}
