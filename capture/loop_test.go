package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ranhaber/car-x/pool"
)

type failingSource struct{ reads atomic.Int32 }

func (f *failingSource) Read(_ *gocv.Mat) error {
	f.reads.Add(1)
	return errors.New("no frame")
}

func (f *failingSource) Close() error { return nil }

func TestLoopPublishesFrames(t *testing.T) {
	shared, err := pool.Allocate(64, 48, 3)
	require.NoError(t, err)
	defer shared.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Loop(ctx, &SyntheticSource{}, shared, 100)
	}()

	assert.Eventually(t, func() bool {
		seq, _ := shared.FrameSeq()
		return seq >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	seq, stamp := shared.FrameSeq()
	assert.GreaterOrEqual(t, seq, uint64(3))
	assert.False(t, stamp.IsZero())
}

func TestLoopDropsFailedGrabs(t *testing.T) {
	shared, err := pool.Allocate(64, 48, 3)
	require.NoError(t, err)
	defer shared.Close()

	src := &failingSource{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Loop(ctx, src, shared, 200)
	}()

	assert.Eventually(t, func() bool { return src.reads.Load() >= 5 },
		time.Second, 5*time.Millisecond)
	cancel()
	<-done

	seq, _ := shared.FrameSeq()
	assert.Zero(t, seq, "failed grabs must not publish")
}

func TestSyntheticSourceRollsValues(t *testing.T) {
	src := &SyntheticSource{}
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	require.NoError(t, src.Read(&frame))
	first := frame.GetVecbAt(0, 0)
	require.NoError(t, src.Read(&frame))
	second := frame.GetVecbAt(0, 0)

	assert.Equal(t, uint8(0), first[0])
	assert.Equal(t, uint8(1), second[0])
}
