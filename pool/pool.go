// Package pool owns every fixed-size buffer shared between the capture,
// tracking, detection, and controller loops. All memory is allocated once
// by Allocate before any goroutine starts; after that the accessors only
// copy into or out of the pre-allocated slots. Each logical slot has a
// single designated writer and its own mutex, and every critical section
// is bounded by a fixed-size copy or an index swap, never by capture or
// inference work.
package pool

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ringSlots is the number of rotating frame buffers. Three is enough for
// one writer and any number of copy-out readers: the writer fills a slot
// that is not the published one, then swaps the published index.
const ringSlots = 3

// Pool is the pre-allocated shared buffer set. Create it with Allocate.
type Pool struct {
	frameW, frameH int
	matType        gocv.MatType

	muFrame     sync.Mutex
	ring        [ringSlots]gocv.Mat
	latest      int // index of the most recently published slot
	frameSeq    uint64
	frameStamp  time.Time

	muSnap    sync.Mutex
	snapshot  gocv.Mat
	snapSeq   uint64
	snapStamp time.Time

	muTracker  sync.Mutex
	trackerBox Box

	muDetector  sync.Mutex
	detectorBox Box

	muPose sync.Mutex
	pose   Pose

	allocated bool
}

// Allocate creates the pool for the configured frame geometry. It must be
// called exactly once, before any concurrent activity starts. Channels may
// be 1 (grayscale) or 3 (BGR).
func Allocate(width, height, channels int) (*Pool, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	var mt gocv.MatType
	switch channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	p := &Pool{
		frameW:  width,
		frameH:  height,
		matType: mt,
	}
	for i := range p.ring {
		p.ring[i] = gocv.NewMatWithSize(height, width, mt)
	}
	p.snapshot = gocv.NewMatWithSize(height, width, mt)
	p.allocated = true
	return p, nil
}

// Close releases the underlying frame buffers. Only call after every loop
// has been joined.
func (p *Pool) Close() {
	p.ensureAllocated()
	for i := range p.ring {
		p.ring[i].Close()
	}
	p.snapshot.Close()
	p.allocated = false
}

func (p *Pool) ensureAllocated() {
	if !p.allocated {
		panic("pool: accessor called before Allocate")
	}
}

// FrameWidth returns the fixed frame width in pixels.
func (p *Pool) FrameWidth() int { return p.frameW }

// FrameHeight returns the fixed frame height in pixels.
func (p *Pool) FrameHeight() int { return p.frameH }

// NewFrameMat allocates a frame-sized Mat for a consumer's private copy
// buffer. Call once per consumer at startup, never inside a loop.
func (p *Pool) NewFrameMat() gocv.Mat {
	p.ensureAllocated()
	return gocv.NewMatWithSize(p.frameH, p.frameW, p.matType)
}

// PublishFrame copies src into a free ring slot and swaps the published
// index. The bulk copy runs outside the frame lock; only the index swap
// and the sequence stamp happen inside it. src must match the pool's
// frame geometry.
func (p *Pool) PublishFrame(src *gocv.Mat) uint64 {
	p.ensureAllocated()
	if src.Cols() != p.frameW || src.Rows() != p.frameH {
		panic(fmt.Sprintf("pool: published frame is %dx%d, pool is %dx%d",
			src.Cols(), src.Rows(), p.frameW, p.frameH))
	}

	// The writer is the only goroutine that moves latest, so reading it
	// here without reloading under the lock is safe for slot selection.
	p.muFrame.Lock()
	cur := p.latest
	p.muFrame.Unlock()

	next := (cur + 1) % ringSlots
	src.CopyTo(&p.ring[next])

	p.muFrame.Lock()
	p.latest = next
	p.frameSeq++
	p.frameStamp = time.Now()
	seq := p.frameSeq
	p.muFrame.Unlock()
	return seq
}

// LatestFrame copies the most recently published frame into the caller's
// pre-allocated dst and returns its sequence number and capture stamp.
// The copy runs under the frame lock so the writer can never rotate onto
// the slot mid-read.
func (p *Pool) LatestFrame(dst *gocv.Mat) (uint64, time.Time) {
	p.ensureAllocated()
	p.muFrame.Lock()
	defer p.muFrame.Unlock()
	if p.frameSeq == 0 {
		return 0, time.Time{}
	}
	p.ring[p.latest].CopyTo(dst)
	return p.frameSeq, p.frameStamp
}

// FrameSeq returns the sequence number of the latest published frame.
func (p *Pool) FrameSeq() (uint64, time.Time) {
	p.ensureAllocated()
	p.muFrame.Lock()
	defer p.muFrame.Unlock()
	return p.frameSeq, p.frameStamp
}

// CopyLatestToSnapshot freezes the latest frame into the detector snapshot
// slot. Called by the controller once per reconciliation period; the
// tracker keeps reading the ring unaffected. This is the one deliberate
// full-frame copy in the pipeline.
func (p *Pool) CopyLatestToSnapshot() uint64 {
	p.ensureAllocated()
	p.muFrame.Lock()
	seq := p.frameSeq
	stamp := p.frameStamp
	if seq == 0 {
		p.muFrame.Unlock()
		return 0
	}
	p.muSnap.Lock()
	p.ring[p.latest].CopyTo(&p.snapshot)
	p.muFrame.Unlock()
	p.snapSeq = seq
	p.snapStamp = stamp
	p.muSnap.Unlock()
	return seq
}

// SnapshotFrame copies the frozen detector snapshot into dst and returns
// the sequence number of the frame it was taken from (0 when no snapshot
// has been taken yet).
func (p *Pool) SnapshotFrame(dst *gocv.Mat) (uint64, time.Time) {
	p.ensureAllocated()
	p.muSnap.Lock()
	defer p.muSnap.Unlock()
	if p.snapSeq == 0 {
		return 0, time.Time{}
	}
	p.snapshot.CopyTo(dst)
	return p.snapSeq, p.snapStamp
}

// SetTrackerBox publishes the tracker's bounding box. The whole struct is
// replaced under the slot lock; readers never see a mix of two writes.
func (p *Pool) SetTrackerBox(b Box) {
	p.ensureAllocated()
	p.muTracker.Lock()
	p.trackerBox = b
	p.muTracker.Unlock()
}

// TrackerBox returns the last published tracker box by value.
func (p *Pool) TrackerBox() Box {
	p.ensureAllocated()
	p.muTracker.Lock()
	defer p.muTracker.Unlock()
	return p.trackerBox
}

// SetDetectorBox publishes the detector's candidate box.
func (p *Pool) SetDetectorBox(b Box) {
	p.ensureAllocated()
	p.muDetector.Lock()
	p.detectorBox = b
	p.muDetector.Unlock()
}

// DetectorBox returns the last published detector candidate by value.
func (p *Pool) DetectorBox() Box {
	p.ensureAllocated()
	p.muDetector.Lock()
	defer p.muDetector.Unlock()
	return p.detectorBox
}

// SetPose publishes the odometry pose. The controller is the only writer.
func (p *Pool) SetPose(ps Pose) {
	p.ensureAllocated()
	p.muPose.Lock()
	p.pose = ps
	p.muPose.Unlock()
}

// Pose returns the last published pose by value.
func (p *Pool) Pose() Pose {
	p.ensureAllocated()
	p.muPose.Lock()
	defer p.muPose.Unlock()
	return p.pose
}
