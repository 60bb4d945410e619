package command

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollEmpty(t *testing.T) {
	c := New()
	_, ok := c.Poll()
	assert.False(t, ok)
}

func TestLastTargetWins(t *testing.T) {
	c := New()
	require.NoError(t, c.SubmitTarget(10, 20))
	require.NoError(t, c.SubmitTarget(30, 40))

	cmd, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, KindTarget, cmd.Kind)
	assert.Equal(t, 30.0, cmd.X)
	assert.Equal(t, 40.0, cmd.Y)

	_, ok = c.Poll()
	assert.False(t, ok, "poll consumes the command")
}

func TestStopOutranksPendingTarget(t *testing.T) {
	c := New()
	require.NoError(t, c.SubmitTarget(10, 20))
	c.SubmitStop()

	cmd, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, KindStop, cmd.Kind)

	// The pre-stop target must be discarded with the stop, not delivered
	// on the next poll.
	_, ok = c.Poll()
	assert.False(t, ok)
}

func TestMalformedTargetRejected(t *testing.T) {
	c := New()
	assert.Error(t, c.SubmitTarget(math.NaN(), 0))
	assert.Error(t, c.SubmitTarget(0, math.Inf(1)))

	_, ok := c.Poll()
	assert.False(t, ok, "channel state unchanged after rejection")
}

func TestConcurrentSubmitsNeverTear(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n float64) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c.SubmitTarget(n, n)
			}
		}(float64(i + 1))
	}
	wg.Wait()

	cmd, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, cmd.X, cmd.Y, "a poll sees one whole submission, never a mix")
}
