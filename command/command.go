// Package command is the ingress slot for external requests. Only the most
// recent command of each kind is kept; the controller polls and consumes it
// once per tick. Concurrent writers replace the whole pending value under
// one lock, so a poll never observes a torn command.
package command

import (
	"fmt"
	"math"
	"sync"
)

// Kind tags the command variant.
type Kind int

const (
	// KindTarget carries a target position in cm relative to the current
	// odometry origin.
	KindTarget Kind = iota
	// KindStop requests an immediate halt and a transition to Idle.
	KindStop
)

// Command is the tagged variant delivered to the controller.
type Command struct {
	Kind Kind
	X, Y float64 // cm, meaningful for KindTarget only
}

// Channel stores the latest pending command of each kind.
// Last-writer-wins; historical commands are never queued.
type Channel struct {
	mu            sync.Mutex
	pendingTarget *Command
	pendingStop   bool
}

// New returns an empty command channel.
func New() *Channel {
	return &Channel{}
}

// SubmitTarget queues a target position in cm. Coordinates must be finite;
// a malformed submission is rejected at this boundary and the channel state
// is unchanged.
func (c *Channel) SubmitTarget(xCm, yCm float64) error {
	if math.IsNaN(xCm) || math.IsInf(xCm, 0) || math.IsNaN(yCm) || math.IsInf(yCm, 0) {
		return fmt.Errorf("rejecting non-finite target (%v, %v)", xCm, yCm)
	}
	c.mu.Lock()
	c.pendingTarget = &Command{Kind: KindTarget, X: xCm, Y: yCm}
	c.mu.Unlock()
	return nil
}

// SubmitStop queues a stop request.
func (c *Channel) SubmitStop() {
	c.mu.Lock()
	c.pendingStop = true
	c.mu.Unlock()
}

// Poll consumes and returns the pending command, or ok=false when nothing
// is pending. A pending stop outranks a pending target: the stop is
// delivered first and the stale target is discarded with it, so the
// controller can never drive toward a target submitted before the stop.
func (c *Channel) Poll() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingStop {
		c.pendingStop = false
		c.pendingTarget = nil
		return Command{Kind: KindStop}, true
	}
	if c.pendingTarget != nil {
		cmd := *c.pendingTarget
		c.pendingTarget = nil
		return cmd, true
	}
	return Command{}, false
}
