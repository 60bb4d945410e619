// Package tracking runs the high-frequency visual tracker: every cycle it
// pulls the latest frame from the pool, advances a black-box tracking
// algorithm, and publishes a smoothed bounding box. Low-frequency detector
// candidates re-initialize the algorithm, gated so a few blips or a second
// plausible target cannot thrash the model.
package tracking

import (
	"context"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ranhaber/car-x/pool"
)

// Config holds the tracker thresholds. Zero values are replaced by the
// defaults below.
type Config struct {
	RateHz        float64
	MinConfidence float64 // below this the published box is invalid

	// Re-initialization gating: the detector candidate must clear
	// ReinitMinConfidence, must either overlap the last valid box by
	// ReinitIoU or find the tracker invalid for InvalidCyclesForReinit
	// consecutive cycles, and ReinitCooldown must have elapsed since the
	// previous re-initialization. All three at once.
	ReinitMinConfidence    float64
	ReinitIoU              float64
	InvalidCyclesForReinit int
	ReinitCooldown         time.Duration

	SmoothingAlpha float64
}

// DefaultConfig returns the thresholds tuned for a 30 Hz camera.
func DefaultConfig() Config {
	return Config{
		RateHz:                 30,
		MinConfidence:          0.3,
		ReinitMinConfidence:    0.5,
		ReinitIoU:              0.3,
		InvalidCyclesForReinit: 15,
		ReinitCooldown:         2 * time.Second,
		SmoothingAlpha:         0.4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RateHz <= 0 {
		c.RateHz = d.RateHz
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.ReinitMinConfidence <= 0 {
		c.ReinitMinConfidence = d.ReinitMinConfidence
	}
	if c.ReinitIoU <= 0 {
		c.ReinitIoU = d.ReinitIoU
	}
	if c.InvalidCyclesForReinit <= 0 {
		c.InvalidCyclesForReinit = d.InvalidCyclesForReinit
	}
	if c.ReinitCooldown <= 0 {
		c.ReinitCooldown = d.ReinitCooldown
	}
	if c.SmoothingAlpha <= 0 {
		c.SmoothingAlpha = d.SmoothingAlpha
	}
	return c
}

// Tracker owns the tracking model state. That state is opaque to every
// other component and is only reset through the re-initialization path.
type Tracker struct {
	cfg      Config
	algo     Algorithm
	shared   *pool.Pool
	smoother *BoxSmoother

	initialized   bool
	lastValid     pool.Box
	haveValid     bool
	invalidStreak int
	lastReinit    time.Time
	lastFrameSeq  uint64
	lastCandStamp time.Time

	cycles atomic.Uint64

	now func() time.Time
}

// New creates a tracker reading from and publishing into the shared pool.
func New(algo Algorithm, shared *pool.Pool, cfg Config) *Tracker {
	return &Tracker{
		cfg:      cfg.withDefaults(),
		algo:     algo,
		shared:   shared,
		smoother: NewBoxSmoother(cfg.withDefaults().SmoothingAlpha),
		now:      time.Now,
	}
}

// Cycles returns the number of completed tracker cycles, for cadence
// reporting.
func (t *Tracker) Cycles() uint64 { return t.cycles.Load() }

// Run executes the tracker loop until ctx is cancelled. The frame copy
// buffer is allocated once here, before the loop.
func (t *Tracker) Run(ctx context.Context) {
	frame := t.shared.NewFrameMat()
	defer frame.Close()
	defer t.algo.Close()

	period := time.Duration(float64(time.Second) / t.cfg.RateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.step(&frame)
			t.cycles.Add(1)
		}
	}
}

// step is one tracker cycle: consider a detector candidate, advance the
// algorithm on the newest frame, publish.
func (t *Tracker) step(frame *gocv.Mat) {
	seq, stamp := t.shared.LatestFrame(frame)
	if seq == 0 {
		return // nothing captured yet
	}

	now := t.now()

	if cand := t.shared.DetectorBox(); t.shouldReinit(cand, now) {
		if t.algo.Init(*frame, cand.Rect()) {
			t.reinitialized(cand, now)
			t.publish(cand, now)
			t.lastFrameSeq = seq
			return
		}
	}

	if !t.initialized || seq == t.lastFrameSeq {
		// Same frame as last cycle: re-running the algorithm would only
		// burn CPU, and the published box is still current.
		if !t.initialized {
			t.publishInvalid(now)
		}
		return
	}
	t.lastFrameSeq = seq

	rect, ok := t.algo.Update(*frame)
	if !ok {
		t.publishInvalid(now)
		return
	}

	// The OpenCV trackers report only success or failure, so a successful
	// update carries full confidence; degenerate boxes carry none.
	conf := 1.0
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		conf = 0
	}
	box := pool.BoxFromRect(rect, conf, stamp)
	if box.Confidence < t.cfg.MinConfidence ||
		!box.InsideFrame(t.shared.FrameWidth(), t.shared.FrameHeight()) {
		t.publishInvalid(now)
		return
	}

	t.publish(t.smoother.Apply(box), now)
}

// shouldReinit evaluates the three reinit conditions against a detector
// candidate. Candidates already consumed (same timestamp) never qualify.
func (t *Tracker) shouldReinit(cand pool.Box, now time.Time) bool {
	if !cand.Valid || !cand.Timestamp.After(t.lastCandStamp) {
		return false
	}
	if cand.Confidence < t.cfg.ReinitMinConfidence {
		return false
	}
	overlap := t.haveValid && pool.IoU(cand, t.lastValid) >= t.cfg.ReinitIoU
	lost := t.invalidStreak >= t.cfg.InvalidCyclesForReinit || !t.initialized
	if !overlap && !lost {
		return false
	}
	if !t.lastReinit.IsZero() && now.Sub(t.lastReinit) < t.cfg.ReinitCooldown {
		return false
	}
	return true
}

// reinitialized records a completed model reset. TrackState is reset in
// place; nothing is reallocated.
func (t *Tracker) reinitialized(cand pool.Box, now time.Time) {
	t.initialized = true
	t.lastReinit = now
	t.lastCandStamp = cand.Timestamp
	t.smoother.Reset()
	t.invalidStreak = 0
}

func (t *Tracker) publish(b pool.Box, now time.Time) {
	b.Valid = true
	if b.Timestamp.IsZero() {
		b.Timestamp = now
	}
	t.lastValid = b
	t.haveValid = true
	t.invalidStreak = 0
	t.shared.SetTrackerBox(b)
}

func (t *Tracker) publishInvalid(now time.Time) {
	t.invalidStreak++
	t.shared.SetTrackerBox(pool.Box{Valid: false, Timestamp: now})
}
