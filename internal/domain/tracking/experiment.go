package tracking

import (
	"context"
	"encoding/json"
	"sync"
)

// ExperimentAssignments is the read-mostly map of experiment ID to assigned
// variant label for the current user. Writes mirror to durable storage so
// assignments are sticky across reloads
type ExperimentAssignments struct {
	mu       sync.RWMutex
	kv       KV
	variants map[string]string
}

// NewExperimentAssignments creates an assignment map seeded from durable storage
func NewExperimentAssignments(ctx context.Context, kv KV) *ExperimentAssignments {
	a := &ExperimentAssignments{kv: kv, variants: map[string]string{}}
	if raw, err := kv.Get(ctx, KeyExperiments); err == nil {
		var stored map[string]string
		if jsonErr := json.Unmarshal([]byte(raw), &stored); jsonErr == nil && stored != nil {
			a.variants = stored
		}
	}
	return a
}

// Variant returns the assigned variant for an experiment, if any
func (a *ExperimentAssignments) Variant(experimentID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	variant, ok := a.variants[experimentID]
	return variant, ok
}

// Assign records a variant assignment and mirrors the map to durable storage
func (a *ExperimentAssignments) Assign(ctx context.Context, experimentID, variant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.variants[experimentID] = variant
	a.persist(ctx)
}

// Seed merges remotely fetched assignments without overriding explicit local
// assignments, so a user who was already bucketed stays in their bucket
func (a *ExperimentAssignments) Seed(ctx context.Context, remote map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for experimentID, variant := range remote {
		if _, exists := a.variants[experimentID]; !exists {
			a.variants[experimentID] = variant
		}
	}
	a.persist(ctx)
}

// Snapshot returns a copy of all current assignments
func (a *ExperimentAssignments) Snapshot() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]string, len(a.variants))
	for id, variant := range a.variants {
		out[id] = variant
	}
	return out
}

// persist writes the map to durable storage. Callers hold a.mu
func (a *ExperimentAssignments) persist(ctx context.Context) {
	if raw, err := json.Marshal(a.variants); err == nil {
		_ = a.kv.Set(ctx, KeyExperiments, string(raw))
	}
}
