package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/analytics/internal/domain/shared"
)

// Durable storage keys used by the engine. They are origin-scoped on the
// client, so a short stable prefix is enough to avoid collisions
const (
	KeySession       = "analytics:session"
	KeyUserID        = "analytics:user_id"
	KeyUserSegment   = "analytics:user_segment"
	KeyConsent       = "analytics:consent"
	KeyExperiments   = "analytics:experiments"
	KeyBrowseHistory = "analytics:browse_history"
	KeyCartSnapshot  = "analytics:cart"
)

// Default activity windows
const (
	// InactivityThreshold is how long without interaction before an open cart
	// is treated as abandoned
	InactivityThreshold = 30 * time.Minute
	// ActivitySweepInterval drives both abandonment detection and recorder flushes
	ActivitySweepInterval = 5 * time.Minute
	// RecorderActivityWindow is how recently the user must have been active for
	// a periodic recorder flush to be worth sending
	RecorderActivityWindow = 10 * time.Minute
)

// SessionDescriptor identifies a browsing session. It is persisted so the
// session survives page reloads within the same visit
type SessionDescriptor struct {
	SessionID    string    `json:"sessionId"`
	SessionStart time.Time `json:"sessionStart"`
	LastActivity time.Time `json:"lastActivity"`
}

// SessionManager owns the stable session identifier and activity timestamps.
// It is a leaf component: in-memory state mirrored to durable storage
type SessionManager struct {
	mu    sync.Mutex
	kv    KV
	clock shared.Clock
	desc  *SessionDescriptor
}

// NewSessionManager creates a session manager backed by the given store
func NewSessionManager(kv KV, clock shared.Clock) *SessionManager {
	return &SessionManager{kv: kv, clock: clock}
}

// SessionID returns the stable per-session identifier, generating and
// persisting a new one on first call. Malformed stored state is treated as
// absent rather than an error
func (m *SessionManager) SessionID(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.descriptor(ctx).SessionID
}

// TouchActivity records "now" as the last-activity time
func (m *SessionManager) TouchActivity(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc := m.descriptor(ctx)
	desc.LastActivity = m.clock.Now()
	m.persist(ctx, desc)
}

// IsInactive reports whether more than threshold has elapsed since the last
// recorded activity
func (m *SessionManager) IsInactive(ctx context.Context, threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc := m.descriptor(ctx)
	return m.clock.Now().Sub(desc.LastActivity) > threshold
}

// LastActivity returns the last recorded activity time
func (m *SessionManager) LastActivity(ctx context.Context) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.descriptor(ctx).LastActivity
}

// descriptor lazily loads or creates the session descriptor. Callers hold m.mu
func (m *SessionManager) descriptor(ctx context.Context) *SessionDescriptor {
	if m.desc != nil {
		return m.desc
	}

	raw, err := m.kv.Get(ctx, KeySession)
	if err == nil {
		var desc SessionDescriptor
		if jsonErr := json.Unmarshal([]byte(raw), &desc); jsonErr == nil && desc.SessionID != "" {
			m.desc = &desc
			return m.desc
		}
	} else if !errors.Is(err, shared.ErrNotFound) {
		// Storage failure: fall through and mint an in-memory session so
		// tracking keeps working without durable state
		_ = err
	}

	now := m.clock.Now()
	m.desc = &SessionDescriptor{
		SessionID:    uuid.NewString(),
		SessionStart: now,
		LastActivity: now,
	}
	m.persist(ctx, m.desc)
	return m.desc
}

// persist writes the descriptor back to durable storage. Callers hold m.mu
func (m *SessionManager) persist(ctx context.Context, desc *SessionDescriptor) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return
	}
	_ = m.kv.Set(ctx, KeySession, string(raw))
}
