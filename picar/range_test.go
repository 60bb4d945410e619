package picar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeQuerier struct {
	calls int
	cm    float64
	err   error
}

func (f *fakeQuerier) queryDistanceCm() (float64, error) {
	f.calls++
	return f.cm, f.err
}

func TestRangeSensorThrottlesHardware(t *testing.T) {
	q := &fakeQuerier{cm: 30}
	s := newRangeSensor(q, 60*time.Millisecond)

	clock := time.Unix(0, 0)
	s.now = func() time.Time { return clock }

	// One second of 30 Hz polling must not exceed 1000/60 hardware pings.
	for i := 0; i < 30; i++ {
		cm, ok := s.DistanceCm()
		assert.True(t, ok)
		assert.Equal(t, 30.0, cm)
		clock = clock.Add(time.Second / 30)
	}
	assert.LessOrEqual(t, q.calls, 17)
	assert.GreaterOrEqual(t, q.calls, 15)
}

func TestRangeSensorCachesWithinInterval(t *testing.T) {
	q := &fakeQuerier{cm: 25}
	s := newRangeSensor(q, 60*time.Millisecond)

	clock := time.Unix(0, 0)
	s.now = func() time.Time { return clock }

	s.DistanceCm()
	q.cm = 99 // hardware moved, cache must hide it
	clock = clock.Add(10 * time.Millisecond)
	cm, ok := s.DistanceCm()
	assert.True(t, ok)
	assert.Equal(t, 25.0, cm)
	assert.Equal(t, 1, q.calls)

	clock = clock.Add(60 * time.Millisecond)
	cm, ok = s.DistanceCm()
	assert.True(t, ok)
	assert.Equal(t, 99.0, cm)
	assert.Equal(t, 2, q.calls)
}

func TestRangeSensorInvalidReadings(t *testing.T) {
	cases := []struct {
		name string
		cm   float64
		err  error
	}{
		{name: "below range", cm: 0.5},
		{name: "above range", cm: 600},
		{name: "negative timeout marker", cm: -1},
		{name: "query error", cm: 40, err: errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newRangeSensor(&fakeQuerier{cm: tc.cm, err: tc.err}, time.Millisecond)
			cm, ok := s.DistanceCm()
			assert.False(t, ok)
			assert.Zero(t, cm)
		})
	}
}

func TestRangeSensorRecoversAfterInvalid(t *testing.T) {
	q := &fakeQuerier{cm: -1}
	s := newRangeSensor(q, 10*time.Millisecond)

	clock := time.Unix(0, 0)
	s.now = func() time.Time { return clock }

	_, ok := s.DistanceCm()
	assert.False(t, ok)

	q.cm = 80
	clock = clock.Add(20 * time.Millisecond)
	cm, ok := s.DistanceCm()
	assert.True(t, ok)
	assert.Equal(t, 80.0, cm)
}

func TestNoRanger(t *testing.T) {
	cm, ok := NoRanger{}.DistanceCm()
	assert.False(t, ok)
	assert.Zero(t, cm)
}
