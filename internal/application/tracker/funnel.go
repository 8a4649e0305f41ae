package tracker

import (
	"sync"

	"github.com/storefront/analytics/internal/domain/tracking"
)

// StepObservation is one funnel step the tracker decided to report
type StepObservation struct {
	FunnelID   string
	Step       tracking.FunnelStep
	TotalSteps int
}

// funnelTracker runs the active-funnel state machine: at most one funnel is
// current at a time, entered via start and reset on completion. Page views are
// matched against the current funnel only, and each step is reported at most
// once per run. Steps are observed, never inferred: a user who jumps from cart
// to payment produces no synthetic shipping step
type funnelTracker struct {
	mu       sync.Mutex
	registry *tracking.FunnelRegistry
	current  *tracking.FunnelDescriptor
	seen     map[string]bool // stepID within the current run
}

func newFunnelTracker(registry *tracking.FunnelRegistry) *funnelTracker {
	return &funnelTracker{registry: registry}
}

// start makes the named funnel current, resets any previous run, and returns
// the entry step to report. An unknown funnel or step leaves no funnel active
func (t *funnelTracker) start(funnelID, firstStepID string) (StepObservation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	funnel, err := t.registry.Lookup(funnelID)
	if err != nil {
		return StepObservation{}, false
	}
	step, ok := funnel.Step(firstStepID)
	if !ok {
		return StepObservation{}, false
	}

	t.current = funnel
	t.seen = map[string]bool{step.ID: true}
	return StepObservation{
		FunnelID:   funnel.ID,
		Step:       step,
		TotalSteps: funnel.TotalSteps(),
	}, true
}

// observePageView returns the newly entered step of the current funnel for the
// given path. Without an active funnel nothing is reported
func (t *funnelTracker) observePageView(path string) (StepObservation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return StepObservation{}, false
	}
	step, ok := t.current.MatchPath(path)
	if !ok || !t.markSeen(step.ID) {
		return StepObservation{}, false
	}
	return StepObservation{
		FunnelID:   t.current.ID,
		Step:       step,
		TotalSteps: t.current.TotalSteps(),
	}, true
}

// complete finishes the current funnel if it matches the given ID: the final
// step is reported (whether or not its page was ever visited) and the state
// machine resets so a later run starts clean. Completing a funnel that was
// never started reports nothing
func (t *funnelTracker) complete(funnelID string) (StepObservation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || t.current.ID != funnelID {
		return StepObservation{}, false
	}
	funnel := t.current
	reported := false
	var obs StepObservation
	if final, ok := funnel.FinalStep(); ok && t.markSeen(final.ID) {
		obs = StepObservation{
			FunnelID:   funnel.ID,
			Step:       final,
			TotalSteps: funnel.TotalSteps(),
		}
		reported = true
	}

	t.current = nil
	t.seen = nil
	return obs, reported
}

// markSeen records the step and reports whether it was new. Callers hold t.mu
func (t *funnelTracker) markSeen(stepID string) bool {
	if t.seen == nil {
		t.seen = map[string]bool{}
	}
	if t.seen[stepID] {
		return false
	}
	t.seen[stepID] = true
	return true
}
