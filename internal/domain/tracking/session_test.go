package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memKV is a minimal in-memory KV for domain tests
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return "", shared.ErrNotFound
	}
	return value, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestSessionManager_SessionID(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	kv := newMemKV()

	manager := NewSessionManager(kv, clock)
	sessionID := manager.SessionID(ctx)
	require.NotEmpty(t, sessionID)

	t.Run("stable across calls", func(t *testing.T) {
		assert.Equal(t, sessionID, manager.SessionID(ctx))
	})

	t.Run("survives a reload against the same store", func(t *testing.T) {
		reloaded := NewSessionManager(kv, clock)
		assert.Equal(t, sessionID, reloaded.SessionID(ctx))
	})

	t.Run("malformed stored state mints a fresh session", func(t *testing.T) {
		corrupt := newMemKV()
		require.NoError(t, corrupt.Set(ctx, KeySession, "{not json"))

		manager := NewSessionManager(corrupt, clock)
		assert.NotEmpty(t, manager.SessionID(ctx))
	})
}

func TestSessionManager_Inactivity(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	manager := NewSessionManager(newMemKV(), clock)

	manager.TouchActivity(ctx)
	assert.False(t, manager.IsInactive(ctx, 30*time.Minute))

	clock.Advance(29 * time.Minute)
	assert.False(t, manager.IsInactive(ctx, 30*time.Minute))

	clock.Advance(2 * time.Minute)
	assert.True(t, manager.IsInactive(ctx, 30*time.Minute))

	manager.TouchActivity(ctx)
	assert.False(t, manager.IsInactive(ctx, 30*time.Minute))
}
