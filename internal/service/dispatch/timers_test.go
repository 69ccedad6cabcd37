package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerSet_StaleCallbackWithReusedID(t *testing.T) {
	clock := &fakeClock{}
	s := newTimerSet(clock.after)

	var first, second int
	s.start("ord-1", 1, time.Second, func() { first++ })
	stale := clock.timers[0].f
	s.stop("ord-1")

	s.start("ord-1", 1, time.Second, func() { second++ })

	// the stopped timer's callback was already running
	stale()

	assert.Zero(t, first)
	assert.Zero(t, second)
	id, ok := s.pending("ord-1")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	clock.fire()
	assert.Equal(t, 1, second)
	_, ok = s.pending("ord-1")
	assert.False(t, ok)
}

func TestTimerSet_StopIfMatchesTag(t *testing.T) {
	clock := &fakeClock{}
	s := newTimerSet(clock.after)

	s.start("ord-1", 7, time.Second, func() {})
	s.stopIf("ord-1", 8)
	_, ok := s.pending("ord-1")
	assert.True(t, ok)

	s.stopIf("ord-1", 7)
	_, ok = s.pending("ord-1")
	assert.False(t, ok)
	assert.Empty(t, clock.active())
}
