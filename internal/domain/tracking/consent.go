package tracking

import (
	"context"
	"encoding/json"
	"sync"
)

// Consent feature names
const (
	// FeatureSessionRecording gates the interaction recorder (heatmap capture)
	FeatureSessionRecording = "session_recording"
	// FeatureAnalytics is the host-facing preference for general tracking;
	// stored and reported but not enforced by the engine itself
	FeatureAnalytics = "analytics"
)

// ConsentStore holds durable user opt-in flags. Absent or malformed state
// always reads as false: the privacy-safe default
type ConsentStore struct {
	mu sync.Mutex
	kv KV
}

// NewConsentStore creates a consent store backed by the given KV store
func NewConsentStore(kv KV) *ConsentStore {
	return &ConsentStore{kv: kv}
}

// IsOptedIn reads a named boolean consent flag. Missing keys, storage errors
// and malformed JSON all report false
func (s *ConsentStore) IsOptedIn(ctx context.Context, feature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)[feature]
}

// Update merges the given preferences into durable storage and returns the
// resulting full preference map
func (s *ConsentStore) Update(ctx context.Context, preferences map[string]bool) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.load(ctx)
	for feature, optedIn := range preferences {
		merged[feature] = optedIn
	}

	if raw, err := json.Marshal(merged); err == nil {
		_ = s.kv.Set(ctx, KeyConsent, string(raw))
	}
	return merged
}

// load reads the stored preference map, treating any failure as empty.
// Callers hold s.mu
func (s *ConsentStore) load(ctx context.Context) map[string]bool {
	prefs := map[string]bool{}
	raw, err := s.kv.Get(ctx, KeyConsent)
	if err != nil {
		return prefs
	}
	if jsonErr := json.Unmarshal([]byte(raw), &prefs); jsonErr != nil {
		return map[string]bool{}
	}
	return prefs
}
