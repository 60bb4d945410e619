// Package motion converts the controller's current intent into bounded
// steering and speed commands. Every Drive leaving this package passes
// through the same clamp, so the steering limit cannot be bypassed no
// matter which behavior produced the command.
package motion

import (
	"math"

	"github.com/ranhaber/car-x/calibration"
	"github.com/ranhaber/car-x/pool"
)

// Drive is one steering/speed command. Speed is the signed picar magnitude
// (-100..100, negative = reverse); SteerDeg positive steers left.
type Drive struct {
	SteerDeg float64
	Speed    int
}

// Tuning constants. Candidates for calibration once they have been
// measured on the car rather than tuned by eye.
const (
	steerGainPxToDeg = 0.08 // pixel error → steering degrees
	gotoHeadingGain  = 1.5  // heading error → steering degrees

	approachSpeed = 40
	retreatSpeed  = 20
	cruiseSpeed   = 40
	slowSpeed     = 20
	searchSpeed   = 20

	arrivalThresholdCm = 10.0
	slowHeadingErrDeg  = 45.0
	distanceDeadBandCm = 5.0
	searchArcPeriodSec = 2.0
)

// Planner computes drives from vision and odometry input. Stateless apart
// from its configuration; safe to call from the controller tick only.
type Planner struct {
	calib       *calibration.Calibration
	frameWidth  int
	frameHeight int
}

// NewPlanner returns a planner for the configured frame geometry.
func NewPlanner(calib *calibration.Calibration, frameWidth, frameHeight int) *Planner {
	return &Planner{calib: calib, frameWidth: frameWidth, frameHeight: frameHeight}
}

// clamp is the single choke point every command passes through. Steering
// is limited to the calibrated maximum magnitude, speed to [-100, 100].
func (p *Planner) clamp(d Drive) Drive {
	m := p.calib.MaxSteerDeg()
	if d.SteerDeg > m {
		d.SteerDeg = m
	}
	if d.SteerDeg < -m {
		d.SteerDeg = -m
	}
	if d.Speed > 100 {
		d.Speed = 100
	}
	if d.Speed < -100 {
		d.Speed = -100
	}
	return d
}

// Halt returns the all-stop command.
func (p *Planner) Halt() Drive {
	return Drive{}
}

// GoTo steers toward a target position using the dead-reckoned pose.
// Proportional heading controller: steer toward the bearing, slow down
// when the heading error is large. arrived is true within the arrival
// threshold, at which point the drive is a halt.
func (p *Planner) GoTo(ps pool.Pose, txCm, tyCm float64) (Drive, bool) {
	dx := txCm - ps.X
	dy := tyCm - ps.Y
	dist := math.Hypot(dx, dy)
	if dist < arrivalThresholdCm {
		return Drive{}, true
	}

	bearing := math.Atan2(dy, dx) * 180 / math.Pi
	errDeg := normalizeDeg(bearing - ps.HeadingDeg)

	speed := cruiseSpeed
	if math.Abs(errDeg) > slowHeadingErrDeg {
		speed = slowSpeed
	}
	return p.clamp(Drive{SteerDeg: gotoHeadingGain * errDeg, Speed: speed}), false
}

// Follow centers the target laterally and manages distance. In approach
// mode the car closes until the hold distance; in hold mode it keeps the
// distance inside a dead-zone band, reversing when too close. When no
// distance estimate is available the command is centering-only: steer, no
// forward or backward motion.
func (p *Planner) Follow(box pool.Box, distanceCm float64, distOK bool, hold bool) Drive {
	// Image x grows rightward, steering grows leftward: a target right of
	// center needs a negative steer.
	errPx := box.CenterX() - float64(p.frameWidth)/2
	steer := -errPx * steerGainPxToDeg

	if !distOK {
		return p.clamp(Drive{SteerDeg: steer})
	}

	target := p.calib.TargetDistanceCm()
	var speed int
	switch {
	case distanceCm > target+distanceDeadBandCm:
		speed = approachSpeed
	case hold && distanceCm < target-distanceDeadBandCm:
		speed = -retreatSpeed
	default:
		speed = 0
	}
	return p.clamp(Drive{SteerDeg: steer, Speed: speed})
}

// SearchArc produces the scan pattern used while no target is visible:
// alternating full-lock arcs at low speed, switching direction every
// searchArcPeriodSec. Independent of any vision input.
func (p *Planner) SearchArc(elapsedSec float64) Drive {
	dir := 1.0
	if int(elapsedSec/searchArcPeriodSec)%2 == 1 {
		dir = -1.0
	}
	return p.clamp(Drive{
		SteerDeg: dir * p.calib.MaxSteerDeg(),
		Speed:    searchSpeed,
	})
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
