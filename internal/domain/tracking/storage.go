package tracking

import "context"

// KV is the durable, origin-scoped key-value store the engine persists its
// client state to (session descriptor, consent, experiment assignments,
// browse history, cart recovery snapshot). Implementations live in
// infrastructure/storage; Get returns shared.ErrNotFound for absent keys
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
