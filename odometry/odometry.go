// Package odometry estimates the car's pose by dead reckoning: integrating
// commanded speed and steering over time with a bicycle model. The world
// origin is wherever the estimator was last explicitly reset; nothing here
// redefines it implicitly.
package odometry

import (
	"math"

	"github.com/ranhaber/car-x/calibration"
	"github.com/ranhaber/car-x/pool"
)

// Estimator integrates commanded motion into a 2-D pose. It is owned by
// the controller and mutated once per tick; it is not safe for concurrent
// use and does not need to be.
type Estimator struct {
	calib *calibration.Calibration

	x, y       float64 // cm
	headingDeg float64
}

// New returns an estimator at the origin, facing heading 0 (+X axis).
func New(calib *calibration.Calibration) *Estimator {
	return &Estimator{calib: calib}
}

// Reset redefines the world origin. This is the only way to move the
// origin; typically called at startup and on an explicit "set origin".
func (e *Estimator) Reset(xCm, yCm, headingDeg float64) {
	e.x = xCm
	e.y = yCm
	e.headingDeg = normalizeDeg(headingDeg)
}

// Update integrates one tick of commanded motion. speed is the signed
// commanded magnitude (-100..100), steerDeg the commanded front-wheel
// angle. The calibrated speed curve converts command units to cm/s and the
// bicycle model turns steering into heading rate.
func (e *Estimator) Update(dtSec float64, speed int, steerDeg float64) {
	if dtSec <= 0 || speed == 0 {
		return
	}
	v := e.calib.CmPerSec(speed)
	if speed < 0 {
		v = -v
	}

	headingRad := e.headingDeg * math.Pi / 180
	e.x += v * math.Cos(headingRad) * dtSec
	e.y += v * math.Sin(headingRad) * dtSec

	// Bicycle model: dθ/dt = v/L · tan(δ).
	steerRad := steerDeg * math.Pi / 180
	rateRad := v / e.calib.WheelbaseCm() * math.Tan(steerRad)
	e.headingDeg = normalizeDeg(e.headingDeg + rateRad*180/math.Pi*dtSec)
}

// Pose returns the current estimate.
func (e *Estimator) Pose() pool.Pose {
	return pool.Pose{X: e.x, Y: e.y, HeadingDeg: e.headingDeg}
}

// normalizeDeg wraps an angle into [-180, 180).
func normalizeDeg(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a >= 180 {
		a -= 360
	}
	if a < -180 {
		a += 360
	}
	return a
}
