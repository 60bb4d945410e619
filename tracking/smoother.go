package tracking

import "github.com/ranhaber/car-x/pool"

// BoxSmoother suppresses frame-to-frame jitter in the published box with
// exponential averaging of center and size. Alpha is the weight of a new
// measurement: 1 disables smoothing, small values smooth heavily.
type BoxSmoother struct {
	alpha       float64
	cx, cy      float64
	w, h        float64
	initialized bool
}

// NewBoxSmoother returns a smoother with the given measurement weight.
func NewBoxSmoother(alpha float64) *BoxSmoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &BoxSmoother{alpha: alpha}
}

// Apply folds a new measurement in and returns the smoothed box. The first
// measurement after a reset passes through unchanged.
func (s *BoxSmoother) Apply(b pool.Box) pool.Box {
	if !s.initialized {
		s.cx, s.cy = b.CenterX(), b.CenterY()
		s.w, s.h = b.W, b.H
		s.initialized = true
		return b
	}
	s.cx += s.alpha * (b.CenterX() - s.cx)
	s.cy += s.alpha * (b.CenterY() - s.cy)
	s.w += s.alpha * (b.W - s.w)
	s.h += s.alpha * (b.H - s.h)

	out := b
	out.W = s.w
	out.H = s.h
	out.X = s.cx - s.w/2
	out.Y = s.cy - s.h/2
	return out
}

// Reset clears the filter state, e.g. after a tracker re-initialization,
// so the old target's position does not bleed into the new one.
func (s *BoxSmoother) Reset() {
	s.initialized = false
}
