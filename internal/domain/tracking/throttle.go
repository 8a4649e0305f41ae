package tracking

import (
	"sync"
	"time"

	"github.com/storefront/analytics/internal/domain/shared"
)

// SampleThrottleWindow is the default gate between mouse-move and scroll samples
const SampleThrottleWindow = 500 * time.Millisecond

// Throttle admits at most one event per window of wall-clock time. It replaces
// the closure-over-last-timestamp pattern with a small stateful object that is
// testable against an injected clock
type Throttle struct {
	mu     sync.Mutex
	clock  shared.Clock
	window time.Duration
	last   time.Time
}

// NewThrottle creates a throttle with the given admission window
func NewThrottle(clock shared.Clock, window time.Duration) *Throttle {
	return &Throttle{clock: clock, window: window}
}

// TryAdmit reports whether an event may pass now, consuming the window if so.
// The first call always admits
func (t *Throttle) TryAdmit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		return false
	}
	t.last = now
	return true
}

// Reset clears the throttle so the next TryAdmit admits immediately
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
}
