package pool

import (
	"image"
	"time"
)

// Box is a bounding box in frame pixel coordinates. Valid=false means the
// other fields are not meaningful and must not be interpreted. Boxes are
// always written and read as one unit through the pool.
type Box struct {
	X, Y, W, H float64
	Valid      bool
	Confidence float64
	Timestamp  time.Time
}

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 { return b.X + b.W/2 }

// CenterY returns the vertical center of the box.
func (b Box) CenterY() float64 { return b.Y + b.H/2 }

// Area returns the box area in px².
func (b Box) Area() float64 { return b.W * b.H }

// Rect converts the box to an image.Rectangle, truncating to pixels.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.W), int(b.Y+b.H))
}

// BoxFromRect builds a Box from an image.Rectangle.
func BoxFromRect(r image.Rectangle, confidence float64, ts time.Time) Box {
	return Box{
		X:          float64(r.Min.X),
		Y:          float64(r.Min.Y),
		W:          float64(r.Dx()),
		H:          float64(r.Dy()),
		Valid:      true,
		Confidence: confidence,
		Timestamp:  ts,
	}
}

// InsideFrame reports whether the box lies fully within a width×height frame.
func (b Box) InsideFrame(width, height int) bool {
	return b.X >= 0 && b.Y >= 0 &&
		b.X+b.W <= float64(width) && b.Y+b.H <= float64(height) &&
		b.W > 0 && b.H > 0
}

// IoU returns the intersection-over-union overlap of two boxes in [0,1].
// Used to confirm a detector candidate and a tracker box refer to the same
// object before re-initialization.
func IoU(a, b Box) float64 {
	ix1 := max64(a.X, b.X)
	iy1 := max64(a.Y, b.Y)
	ix2 := min64(a.X+a.W, b.X+b.W)
	iy2 := min64(a.Y+a.H, b.Y+b.H)
	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Pose is the dead-reckoned position and heading of the car, in cm and
// degrees, relative to the origin set at the last explicit reset.
type Pose struct {
	X, Y       float64
	HeadingDeg float64
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
