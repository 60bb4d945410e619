package tracking

import (
	"image"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// Algorithm is the black-box single-target tracking capability: initialize
// on a frame plus a box, then advance one frame at a time. The concrete
// algorithm's internals are outside the core's scope.
type Algorithm interface {
	Init(frame gocv.Mat, box image.Rectangle) bool
	Update(frame gocv.Mat) (image.Rectangle, bool)
	Close() error
}

// NewKCF returns the OpenCV KCF tracker, the default algorithm. Cheap
// enough for full frame rate on a Pi.
func NewKCF() Algorithm {
	return contrib.NewTrackerKCF()
}

// NewCSRT returns the OpenCV CSRT tracker. More accurate than KCF but
// several times slower; use when the tracker rate budget allows it.
func NewCSRT() Algorithm {
	return contrib.NewTrackerCSRT()
}
