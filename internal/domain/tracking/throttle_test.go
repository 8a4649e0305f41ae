package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_TryAdmit(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	throttle := NewThrottle(clock, 500*time.Millisecond)

	assert.True(t, throttle.TryAdmit(), "first event always admits")
	assert.False(t, throttle.TryAdmit(), "same instant is throttled")

	clock.Advance(499 * time.Millisecond)
	assert.False(t, throttle.TryAdmit(), "window not yet elapsed")

	clock.Advance(1 * time.Millisecond)
	assert.True(t, throttle.TryAdmit(), "window elapsed")
	assert.False(t, throttle.TryAdmit(), "window consumed again")
}

func TestThrottle_Reset(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	throttle := NewThrottle(clock, time.Second)

	assert.True(t, throttle.TryAdmit())
	assert.False(t, throttle.TryAdmit())

	throttle.Reset()
	assert.True(t, throttle.TryAdmit(), "reset reopens the window immediately")
}
