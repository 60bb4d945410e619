// Package detection runs the heavy recognition capability at a fraction of
// the frame rate. It reads the frozen snapshot frame from the pool, never
// the live ring, so it can take as long as it needs without touching the
// tracker's or the controller's timing.
package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// Candidate is one detected target.
type Candidate struct {
	Rect       image.Rectangle
	Confidence float64
}

// Provider is the black-box detection capability: frame in, best-scoring
// target candidate or none out. Stateless per call.
type Provider interface {
	Detect(frame gocv.Mat) (Candidate, bool, error)
	Close() error
}

// debugMsgFunc is set by the main package to route debug output through
// the unified logger.
var debugMsgFunc func(component, message string)

// SetDebugFunction allows the main package to provide the debug function.
func SetDebugFunction(fn func(component, message string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}
