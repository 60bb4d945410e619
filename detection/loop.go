package detection

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ranhaber/car-x/pool"
)

// Detector runs the provider at a low cadence against the snapshot frame
// the controller freezes for it. A slow or failed pass degrades
// reconciliation quality only; it can never stall the tracker.
type Detector struct {
	provider Provider
	shared   *pool.Pool
	rateHz   float64

	lastSnapSeq uint64
	cycles      atomic.Uint64
}

// NewDetector creates the detector loop. rateHz is the detection cadence,
// typically the frame rate divided by the reconciliation period K.
func NewDetector(provider Provider, shared *pool.Pool, rateHz float64) *Detector {
	if rateHz <= 0 {
		rateHz = 3
	}
	return &Detector{provider: provider, shared: shared, rateHz: rateHz}
}

// Cycles returns the number of completed detection passes, for cadence
// reporting.
func (d *Detector) Cycles() uint64 { return d.cycles.Load() }

// Run executes the detection loop until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	frame := d.shared.NewFrameMat()
	defer frame.Close()
	defer d.provider.Close()

	period := time.Duration(float64(time.Second) / d.rateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.step(&frame)
		}
	}
}

func (d *Detector) step(frame *gocv.Mat) {
	seq, stamp := d.shared.SnapshotFrame(frame)
	if seq == 0 || seq == d.lastSnapSeq {
		return // no fresh snapshot yet
	}
	d.lastSnapSeq = seq

	cand, found, err := d.provider.Detect(*frame)
	d.cycles.Add(1)
	if err != nil {
		// Reconciliation cycle silently skipped; the tracker keeps its
		// independent operation.
		debugMsg("DETECT", fmt.Sprintf("detection pass failed: %v", err))
		return
	}
	if !found {
		d.shared.SetDetectorBox(pool.Box{Valid: false, Timestamp: stamp})
		return
	}
	d.shared.SetDetectorBox(pool.BoxFromRect(cand.Rect, cand.Confidence, stamp))
}
