package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutFunnel(t *testing.T) {
	funnel := CheckoutFunnel()

	assert.Equal(t, CheckoutFunnelID, funnel.ID)
	assert.Equal(t, 5, funnel.TotalSteps())

	final, ok := funnel.FinalStep()
	require.True(t, ok)
	assert.Equal(t, "confirmation", final.ID)
	assert.Equal(t, 5, final.Position)
}

func TestFunnelDescriptor_MatchPath(t *testing.T) {
	funnel := CheckoutFunnel()

	tests := []struct {
		name     string
		path     string
		wantStep string
		wantOK   bool
	}{
		{"cart page", "/cart", "cart", true},
		{"checkout info", "/checkout", "checkout_info", true},
		{"shipping", "/checkout/shipping", "shipping", true},
		{"deep link to payment prefers most specific prefix", "/checkout/payment", "payment", true},
		{"payment subpage", "/checkout/payment/confirm-card", "payment", true},
		{"unrelated page", "/products/42", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, ok := funnel.MatchPath(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantStep, step.ID)
			}
		})
	}
}

func TestFunnelRegistry_Lookup(t *testing.T) {
	registry := NewFunnelRegistry(CheckoutFunnel(), &FunnelDescriptor{
		ID:    "onboarding",
		Steps: []FunnelStep{{ID: "welcome", PathPrefix: "/welcome", Position: 1}},
	})

	funnel, err := registry.Lookup("onboarding")
	require.NoError(t, err)
	assert.Equal(t, 1, funnel.TotalSteps())

	_, err = registry.Lookup("missing")
	assert.Error(t, err)
}
