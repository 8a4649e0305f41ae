package tracking

import (
	"strings"

	"github.com/storefront/analytics/internal/domain/shared"
)

// FunnelStep is one named step in a conversion funnel. Position is the
// 1-based rank within the funnel
type FunnelStep struct {
	ID         string
	PathPrefix string
	Position   int
}

// FunnelDescriptor is the static configuration of a conversion funnel
type FunnelDescriptor struct {
	ID    string
	Steps []FunnelStep
}

// TotalSteps returns the number of steps in the funnel
func (f *FunnelDescriptor) TotalSteps() int {
	return len(f.Steps)
}

// Step returns the step with the given ID
func (f *FunnelDescriptor) Step(stepID string) (FunnelStep, bool) {
	for _, step := range f.Steps {
		if step.ID == stepID {
			return step, true
		}
	}
	return FunnelStep{}, false
}

// FinalStep returns the last step of the funnel
func (f *FunnelDescriptor) FinalStep() (FunnelStep, bool) {
	if len(f.Steps) == 0 {
		return FunnelStep{}, false
	}
	return f.Steps[len(f.Steps)-1], true
}

// MatchPath returns the first step whose path prefix matches the given path.
// Only forward observation: callers are responsible for not re-emitting steps
// already seen
func (f *FunnelDescriptor) MatchPath(path string) (FunnelStep, bool) {
	var best FunnelStep
	found := false
	for _, step := range f.Steps {
		if strings.HasPrefix(path, step.PathPrefix) {
			// Prefer the most specific prefix so /checkout/payment matches the
			// payment step, not the checkout_info step
			if !found || len(step.PathPrefix) > len(best.PathPrefix) {
				best = step
				found = true
			}
		}
	}
	return best, found
}

// FunnelRegistry holds the named funnel descriptors supplied at configuration
// time. Read-only after construction
type FunnelRegistry struct {
	funnels map[string]*FunnelDescriptor
}

// NewFunnelRegistry creates a registry from the given descriptors
func NewFunnelRegistry(funnels ...*FunnelDescriptor) *FunnelRegistry {
	r := &FunnelRegistry{funnels: make(map[string]*FunnelDescriptor, len(funnels))}
	for _, f := range funnels {
		r.funnels[f.ID] = f
	}
	return r
}

// Lookup returns the funnel with the given ID
func (r *FunnelRegistry) Lookup(funnelID string) (*FunnelDescriptor, error) {
	f, ok := r.funnels[funnelID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return f, nil
}

// CheckoutFunnelID is the identifier of the built-in checkout funnel
const CheckoutFunnelID = "checkout"

// CheckoutFunnel returns the default five-step checkout conversion funnel
func CheckoutFunnel() *FunnelDescriptor {
	return &FunnelDescriptor{
		ID: CheckoutFunnelID,
		Steps: []FunnelStep{
			{ID: "cart", PathPrefix: "/cart", Position: 1},
			{ID: "checkout_info", PathPrefix: "/checkout", Position: 2},
			{ID: "shipping", PathPrefix: "/checkout/shipping", Position: 3},
			{ID: "payment", PathPrefix: "/checkout/payment", Position: 4},
			{ID: "confirmation", PathPrefix: "/checkout/confirmation", Position: 5},
		},
	}
}
