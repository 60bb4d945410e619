package detection

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ranhaber/car-x/pool"
)

// fakeProvider replays a scripted detection result and counts calls.
type fakeProvider struct {
	calls int
	cand  Candidate
	found bool
	err   error
}

func (f *fakeProvider) Detect(_ gocv.Mat) (Candidate, bool, error) {
	f.calls++
	return f.cand, f.found, f.err
}

func (f *fakeProvider) Close() error { return nil }

type detectFixture struct {
	shared   *pool.Pool
	provider *fakeProvider
	det      *Detector
	frame    gocv.Mat
	scratch  gocv.Mat
}

func newDetectFixture(t *testing.T) *detectFixture {
	t.Helper()
	shared, err := pool.Allocate(64, 48, 3)
	require.NoError(t, err)
	t.Cleanup(shared.Close)

	f := &detectFixture{
		shared:   shared,
		provider: &fakeProvider{},
		frame:    shared.NewFrameMat(),
		scratch:  shared.NewFrameMat(),
	}
	f.det = NewDetector(f.provider, shared, 3)
	t.Cleanup(func() {
		f.frame.Close()
		f.scratch.Close()
	})
	return f
}

// freshSnapshot publishes a new frame and freezes it for the detector.
func (f *detectFixture) freshSnapshot() {
	f.shared.PublishFrame(&f.frame)
	f.shared.CopyLatestToSnapshot()
}

func TestDetectorSkipsWithoutSnapshot(t *testing.T) {
	f := newDetectFixture(t)

	f.det.step(&f.scratch)
	assert.Zero(t, f.provider.calls)
	assert.Zero(t, f.det.Cycles())
}

func TestDetectorPublishesCandidate(t *testing.T) {
	f := newDetectFixture(t)
	f.provider.cand = Candidate{Rect: image.Rect(10, 10, 30, 40), Confidence: 0.8}
	f.provider.found = true

	f.freshSnapshot()
	f.det.step(&f.scratch)

	box := f.shared.DetectorBox()
	assert.True(t, box.Valid)
	assert.Equal(t, 10.0, box.X)
	assert.Equal(t, 20.0, box.W)
	assert.Equal(t, 30.0, box.H)
	assert.Equal(t, 0.8, box.Confidence)
	assert.False(t, box.Timestamp.IsZero())
	assert.Equal(t, uint64(1), f.det.Cycles())
}

func TestDetectorPublishesInvalidWhenNotFound(t *testing.T) {
	f := newDetectFixture(t)

	f.freshSnapshot()
	f.det.step(&f.scratch)

	box := f.shared.DetectorBox()
	assert.False(t, box.Valid)
	assert.False(t, box.Timestamp.IsZero())
}

func TestDetectorSkipsRepeatedSnapshot(t *testing.T) {
	f := newDetectFixture(t)
	f.provider.found = true
	f.provider.cand = Candidate{Rect: image.Rect(0, 0, 10, 10), Confidence: 0.9}

	f.freshSnapshot()
	f.det.step(&f.scratch)
	f.det.step(&f.scratch)
	assert.Equal(t, 1, f.provider.calls, "same snapshot must not be re-detected")

	f.freshSnapshot()
	f.det.step(&f.scratch)
	assert.Equal(t, 2, f.provider.calls)
}

func TestDetectorErrorLeavesLastBox(t *testing.T) {
	f := newDetectFixture(t)
	f.provider.found = true
	f.provider.cand = Candidate{Rect: image.Rect(10, 10, 30, 30), Confidence: 0.7}

	f.freshSnapshot()
	f.det.step(&f.scratch)
	require.True(t, f.shared.DetectorBox().Valid)

	// A failed pass skips the cycle without clobbering the published box.
	f.provider.err = errors.New("inference failed")
	f.freshSnapshot()
	f.det.step(&f.scratch)
	assert.True(t, f.shared.DetectorBox().Valid)
}

func TestStubProviderNeverDetects(t *testing.T) {
	p := &StubProvider{}
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, found, err := p.Detect(frame)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, p.Close())
}
