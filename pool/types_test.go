package pool

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {
	a := Box{X: 0, Y: 0, W: 10, H: 10, Valid: true}

	t.Run("identical boxes", func(t *testing.T) {
		assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	})

	t.Run("disjoint boxes", func(t *testing.T) {
		b := Box{X: 20, Y: 20, W: 10, H: 10, Valid: true}
		assert.Equal(t, 0.0, IoU(a, b))
	})

	t.Run("touching edges do not overlap", func(t *testing.T) {
		b := Box{X: 10, Y: 0, W: 10, H: 10, Valid: true}
		assert.Equal(t, 0.0, IoU(a, b))
	})

	t.Run("half overlap", func(t *testing.T) {
		b := Box{X: 5, Y: 0, W: 10, H: 10, Valid: true}
		// intersection 50, union 150
		assert.InDelta(t, 1.0/3.0, IoU(a, b), 1e-9)
	})

	t.Run("zero-size box", func(t *testing.T) {
		b := Box{X: 5, Y: 5, W: 0, H: 0, Valid: true}
		assert.Equal(t, 0.0, IoU(a, b))
	})
}

func TestBoxInsideFrame(t *testing.T) {
	cases := []struct {
		name string
		box  Box
		want bool
	}{
		{"fully inside", Box{X: 10, Y: 10, W: 20, H: 20}, true},
		{"exactly fills frame", Box{X: 0, Y: 0, W: 100, H: 80}, true},
		{"past right edge", Box{X: 90, Y: 10, W: 20, H: 20}, false},
		{"past bottom edge", Box{X: 10, Y: 70, W: 20, H: 20}, false},
		{"negative origin", Box{X: -1, Y: 10, W: 20, H: 20}, false},
		{"zero width", Box{X: 10, Y: 10, W: 0, H: 20}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.box.InsideFrame(100, 80))
		})
	}
}

func TestBoxFromRect(t *testing.T) {
	ts := time.Now()
	b := BoxFromRect(image.Rect(10, 20, 50, 60), 0.9, ts)
	assert.Equal(t, 10.0, b.X)
	assert.Equal(t, 20.0, b.Y)
	assert.Equal(t, 40.0, b.W)
	assert.Equal(t, 40.0, b.H)
	assert.True(t, b.Valid)
	assert.Equal(t, 0.9, b.Confidence)
	assert.Equal(t, ts, b.Timestamp)

	assert.Equal(t, 30.0, b.CenterX())
	assert.Equal(t, 40.0, b.CenterY())
	assert.Equal(t, 1600.0, b.Area())
}
