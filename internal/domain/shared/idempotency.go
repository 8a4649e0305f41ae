package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores delivered envelope IDs so the collector can discard
// duplicates produced by the engine's at-least-once delivery queue
type IdempotencyStore interface {
	// MarkProcessed marks an envelope as processed with a TTL
	// Returns true if the envelope was newly marked, false if it was already processed
	MarkProcessed(ctx context.Context, envelopeID string, ttl time.Duration) (bool, error)

	// IsProcessed checks if an envelope has already been processed
	IsProcessed(ctx context.Context, envelopeID string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for duplicate suppression
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed envelope IDs
	// After this duration, the same envelope ID is accepted again
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether duplicate suppression is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
