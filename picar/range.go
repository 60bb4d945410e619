package picar

import (
	"sync"
	"time"
)

// Ultrasonic validity window. The HC-SR04 reports roughly 2-400 cm; a
// negative value is the hat's timeout marker.
const (
	minValidCm = 1.0
	maxValidCm = 500.0

	// DefaultMinReadInterval is the settling time between pings. Reading
	// faster than this makes echoes interfere with each other.
	DefaultMinReadInterval = 60 * time.Millisecond
)

// distanceQuerier is the single hardware operation RangeSensor wraps.
type distanceQuerier interface {
	queryDistanceCm() (float64, error)
}

// Ranger is a distance source. An ok=false result means "no distance
// available", which is not an error condition.
type Ranger interface {
	DistanceCm() (float64, bool)
}

// RangeSensor rate-limits ultrasonic reads to the sensor's settling time.
// Calls arriving inside the minimum interval return the cached value
// instead of re-triggering hardware, whatever the caller's tick rate.
type RangeSensor struct {
	q           distanceQuerier
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastRead time.Time
	lastCm   float64
	lastOK   bool
}

// NewRangeSensor wraps a hat link with read throttling. A zero minInterval
// falls back to DefaultMinReadInterval.
func NewRangeSensor(link *HatLink, minInterval time.Duration) *RangeSensor {
	return newRangeSensor(link, minInterval)
}

func newRangeSensor(q distanceQuerier, minInterval time.Duration) *RangeSensor {
	if minInterval <= 0 {
		minInterval = DefaultMinReadInterval
	}
	return &RangeSensor{q: q, minInterval: minInterval, now: time.Now}
}

// DistanceCm returns the distance in cm, or ok=false when the sensor has
// no valid reading. Invalid and out-of-range readings are treated as "no
// distance", never as errors.
func (r *RangeSensor) DistanceCm() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.lastRead.IsZero() && now.Sub(r.lastRead) < r.minInterval {
		return r.lastCm, r.lastOK
	}
	r.lastRead = now

	cm, err := r.q.queryDistanceCm()
	if err != nil || cm < minValidCm || cm > maxValidCm {
		r.lastCm, r.lastOK = 0, false
		return 0, false
	}
	r.lastCm, r.lastOK = cm, true
	return cm, true
}

// NoRanger is the distance source used when the range sensor is not the
// configured primary source: it never has a reading.
type NoRanger struct{}

// DistanceCm always reports no distance available.
func (NoRanger) DistanceCm() (float64, bool) { return 0, false }
