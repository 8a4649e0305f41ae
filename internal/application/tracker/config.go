// Package tracker wires the domain model, delivery queue and destinations into
// the single injected engine the storefront talks to.
package tracker

import (
	"time"

	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/storefront/analytics/internal/infrastructure/delivery"
)

// Config holds engine tuning. Zero values are replaced with the defaults below
type Config struct {
	// Queue controls delivery retry behavior
	Queue delivery.QueueConfig
	// InactivityThreshold is how long without interaction before an open cart
	// counts as abandoned
	InactivityThreshold time.Duration
	// SweepInterval drives the periodic worker that checks abandonment and
	// flushes the interaction recorder
	SweepInterval time.Duration
	// RecorderActivityWindow bounds how stale activity may be for a periodic
	// recorder flush to still be sent
	RecorderActivityWindow time.Duration
	// ThrottleWindow gates mouse-move and scroll sampling
	ThrottleWindow time.Duration
}

// DefaultConfig returns the production engine configuration
func DefaultConfig() Config {
	return Config{
		Queue:                  delivery.DefaultQueueConfig(),
		InactivityThreshold:    tracking.InactivityThreshold,
		SweepInterval:          tracking.ActivitySweepInterval,
		RecorderActivityWindow: tracking.RecorderActivityWindow,
		ThrottleWindow:         tracking.SampleThrottleWindow,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = d.Queue.MaxAttempts
	}
	if c.Queue.BaseBackoff <= 0 {
		c.Queue.BaseBackoff = d.Queue.BaseBackoff
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = d.InactivityThreshold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.RecorderActivityWindow <= 0 {
		c.RecorderActivityWindow = d.RecorderActivityWindow
	}
	if c.ThrottleWindow <= 0 {
		c.ThrottleWindow = d.ThrottleWindow
	}
	return c
}
