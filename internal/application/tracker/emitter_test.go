package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFunnelTrackingEmitsEntryStep(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.StartFunnelTracking(ctx, "checkout", "cart")

	waitForEnvelopes(t, f.backend, 1)
	steps := f.backend.byKind(tracking.KindFunnelStep)
	require.Len(t, steps, 1)
	assert.Equal(t, "checkout", steps[0].Properties["funnelId"])
	assert.Equal(t, "cart", steps[0].Properties["step"])
	assert.Equal(t, 1, intProp(t, steps[0].Properties["position"]))
	assert.Equal(t, 5, intProp(t, steps[0].Properties["totalSteps"]))
}

func TestPageViewAdvancesActiveFunnelForwardOnly(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.StartFunnelTracking(ctx, "checkout", "cart")
	f.engine.TrackPageView(ctx, "/cart", "Cart")
	f.engine.TrackPageView(ctx, "/checkout/payment", "Payment")

	waitForEnvelopes(t, f.backend, 4) // entry step + 2 page views + payment step

	steps := f.backend.byKind(tracking.KindFunnelStep)
	require.Len(t, steps, 2, "revisiting the entry step must not re-emit it")
	assert.Equal(t, "cart", steps[0].Properties["step"])
	assert.Equal(t, "payment", steps[1].Properties["step"], "skipped steps are never inferred")
	assert.Equal(t, 4, intProp(t, steps[1].Properties["position"]))
	assert.Equal(t, 5, intProp(t, steps[1].Properties["totalSteps"]))
}

func TestPageViewWithoutActiveFunnelEmitsNoStep(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackPageView(ctx, "/cart", "Cart")
	f.engine.TrackPageView(ctx, "/checkout/payment", "Payment")

	waitForEnvelopes(t, f.backend, 2)
	assert.Empty(t, f.backend.byKind(tracking.KindFunnelStep))
}

func TestPageViewEmitsExposurePerAssignedExperiment(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.SetExperimentVariant(ctx, "homepage_hero", "variant_b")
	f.engine.TrackPageView(ctx, "/", "Home")

	waitForEnvelopes(t, f.backend, 2)
	views := f.backend.byKind(tracking.KindExperimentView)
	require.Len(t, views, 1)
	assert.Equal(t, "homepage_hero", views[0].Properties["experimentId"])
	assert.Equal(t, "variant_b", views[0].Properties["variant"])
	assert.Equal(t, "/", views[0].Properties["path"])
}

func TestPurchaseEmitsDerivedSignals(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.StartFunnelTracking(ctx, "checkout", "cart")
	f.engine.SetExperimentVariant(ctx, "cta_color", "green")
	f.engine.SetExperimentVariant(ctx, "homepage_hero", "variant_a")

	f.engine.TrackPurchase(ctx, Purchase{
		OrderID: "order-1",
		Revenue: decimal.NewFromFloat(149.90),
		Items: []tracking.CartItem{
			{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
			{ProductID: "p2", Quantity: 2, UnitPrice: decimal.NewFromFloat(49.95)},
			{ProductID: "p3", Quantity: 1, UnitPrice: decimal.NewFromInt(0)},
		},
	})

	// entry step + 1 purchase + 1 funnel completion + 2 conversions + 3 affinity pairs
	waitForEnvelopes(t, f.backend, 8)

	purchases := f.backend.byKind(tracking.KindPurchase)
	require.Len(t, purchases, 1)
	assert.Equal(t, "order-1", purchases[0].Properties["orderId"])
	assert.InDelta(t, 149.90, purchases[0].Properties["revenue"], 0.001)

	steps := f.backend.byKind(tracking.KindFunnelStep)
	require.Len(t, steps, 2, "purchase completes the active checkout funnel")
	assert.Equal(t, "confirmation", steps[1].Properties["step"])
	assert.Equal(t, 5, intProp(t, steps[1].Properties["position"]))

	conversions := f.backend.byKind(tracking.KindExperimentConversion)
	require.Len(t, conversions, 2, "one conversion per assigned experiment")
	for _, conv := range conversions {
		assert.InDelta(t, 149.90, conv.Properties["conversionValue"], 0.001)
	}

	affinities := f.backend.byKind(tracking.KindProductAffinity)
	assert.Len(t, affinities, 3, "one affinity per unordered product pair")
}

func TestPurchaseWithSingleItemEmitsNoAffinity(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackPurchase(ctx, Purchase{
		OrderID: "order-2",
		Revenue: decimal.NewFromInt(20),
		Items:   []tracking.CartItem{{ProductID: "p1", Quantity: 3}},
	})

	waitForEnvelopes(t, f.backend, 1)
	assert.Empty(t, f.backend.byKind(tracking.KindProductAffinity))
}

func TestPurchaseWithoutActiveFunnelEmitsNoStep(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackPurchase(ctx, Purchase{
		OrderID: "order-3",
		Revenue: decimal.NewFromInt(40),
		Items:   []tracking.CartItem{{ProductID: "p1", Quantity: 1}},
	})

	waitForEnvelopes(t, f.backend, 1)
	assert.Empty(t, f.backend.byKind(tracking.KindFunnelStep),
		"a purchase with no funnel in progress reports no step")
}

func TestCompletedFunnelCanRestart(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.StartFunnelTracking(ctx, "checkout", "cart")
	f.engine.TrackPurchase(ctx, Purchase{
		OrderID: "order-4",
		Revenue: decimal.NewFromInt(10),
		Items:   []tracking.CartItem{{ProductID: "p1", Quantity: 1}},
	})
	f.engine.StartFunnelTracking(ctx, "checkout", "cart")

	waitForEnvelopes(t, f.backend, 4) // entry, purchase, confirmation, entry again

	steps := f.backend.byKind(tracking.KindFunnelStep)
	require.Len(t, steps, 3, "completion resets the run so a second checkout reports steps again")
	assert.Equal(t, "cart", steps[0].Properties["step"])
	assert.Equal(t, "confirmation", steps[1].Properties["step"])
	assert.Equal(t, "cart", steps[2].Properties["step"])
}

func TestExperimentConversionRequiresAssignment(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackExperimentConversion(ctx, "never_assigned", decimal.NewFromInt(10))
	f.engine.TrackSearch(ctx, "marker", 0)

	waitForEnvelopes(t, f.backend, 1)
	assert.Empty(t, f.backend.byKind(tracking.KindExperimentConversion))
}

func TestProductViewUpdatesBrowseHistory(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackProductView(ctx, tracking.BrowsedProduct{ProductID: "p1", Name: "Lamp"}, decimal.NewFromInt(10))
	f.engine.TrackProductView(ctx, tracking.BrowsedProduct{ProductID: "p2", Name: "Desk"}, decimal.NewFromInt(90))

	require.Equal(t, 2, f.engine.history.Len())
	assert.Equal(t, "p2", f.engine.history.Recent()[0].ProductID)

	// Re-viewing moves the product to the front without growing the list
	f.engine.TrackProductView(ctx, tracking.BrowsedProduct{ProductID: "p1", Name: "Lamp"}, decimal.NewFromInt(10))
	require.Equal(t, 2, f.engine.history.Len())
	assert.Equal(t, "p1", f.engine.history.Recent()[0].ProductID)

	waitForEnvelopes(t, f.backend, 6) // 3 product views + 3 browse-history events
	events := f.backend.byKind(tracking.KindBrowseHistory)
	require.Len(t, events, 3)
	assert.Equal(t, "p1", events[2].Properties["productId"])
	assert.Equal(t, 2, intProp(t, events[2].Properties["historySize"]))
}

func TestBrowseHistoryBounded(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	for i := 0; i < 25; i++ {
		f.engine.TrackProductView(ctx,
			tracking.BrowsedProduct{ProductID: fmt.Sprintf("p%d", i)},
			decimal.NewFromInt(10))
	}

	assert.Equal(t, 20, f.engine.history.Len(), "history keeps the 20 most recent products")
	assert.Equal(t, "p24", f.engine.history.Recent()[0].ProductID)
}

func TestEnvelopesCarryUserSegment(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.SetUserSegment(ctx, "bargain_hunter")
	f.engine.TrackSearch(ctx, "discount lamps", 12)

	waitForEnvelopes(t, f.backend, 2)
	searches := f.backend.byKind(tracking.KindSearch)
	require.Len(t, searches, 1)
	assert.Equal(t, "bargain_hunter", searches[0].Properties["segment"])
	assert.Equal(t, "discount lamps", searches[0].Properties["query"])
}

func TestUserJourney(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackUserJourney(ctx, "consideration", "second_product_view")

	waitForEnvelopes(t, f.backend, 1)
	journeys := f.backend.byKind(tracking.KindUserJourney)
	require.Len(t, journeys, 1)
	assert.Equal(t, "consideration", journeys[0].Properties["stage"])
}

func TestComponentPerformance(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackComponentPerformance(ctx, "product-carousel", 42.5)

	waitForEnvelopes(t, f.backend, 1)
	events := f.backend.byKind(tracking.KindComponentPerformance)
	require.Len(t, events, 1)
	assert.Equal(t, "product-carousel", events[0].Properties["component"])
	assert.InDelta(t, 42.5, events[0].Properties["renderTimeMs"], 0.001)
}

func TestScrollDepthPercentage(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.UpdateConsentPreferences(ctx, map[string]bool{tracking.FeatureSessionRecording: true})

	// 750 of 1500 scrollable pixels = 50%
	f.engine.RecordScroll(ctx, 750, 2000, 500)
	waitForEnvelopes(t, f.backend, 1)

	scrolls := f.backend.byKind(tracking.KindScroll)
	require.Len(t, scrolls, 1)
	assert.InDelta(t, 50.0, scrolls[0].Properties["scrollPercent"], 0.001)

	// Nothing to scroll reads full depth
	f.clock.Advance(time.Second)
	f.engine.RecordScroll(ctx, 0, 400, 500)
	waitForEnvelopes(t, f.backend, 2)
	scrolls = f.backend.byKind(tracking.KindScroll)
	require.Len(t, scrolls, 2)
	assert.InDelta(t, 100.0, scrolls[1].Properties["scrollPercent"], 0.001)
}

func TestScrollThrottled(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.UpdateConsentPreferences(ctx, map[string]bool{tracking.FeatureSessionRecording: true})

	f.engine.RecordScroll(ctx, 100, 2000, 500)
	f.clock.Advance(499 * time.Millisecond)
	f.engine.RecordScroll(ctx, 200, 2000, 500)
	f.clock.Advance(time.Millisecond)
	f.engine.RecordScroll(ctx, 300, 2000, 500)

	waitForEnvelopes(t, f.backend, 2)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.backend.byKind(tracking.KindScroll), 2, "one scroll event per throttle window")
}

func TestScrollEmitsDiscreteEventWithoutRecordingConsent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.RecordScroll(ctx, 500, 2000, 1000)

	waitForEnvelopes(t, f.backend, 1)
	scrolls := f.backend.byKind(tracking.KindScroll)
	require.Len(t, scrolls, 1)
	assert.InDelta(t, 50.0, scrolls[0].Properties["scrollPercent"], 0.001)
	assert.Zero(t, f.engine.recorder.pending(), "heatmap sample is consent-gated")
}

func TestClickEmitsDiscreteEventWithoutRecordingConsent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.RecordClick(ctx, tracking.ClickSample{X: 10, Y: 20, ElementType: "button"})

	waitForEnvelopes(t, f.backend, 1)
	clicks := f.backend.byKind(tracking.KindClick)
	require.Len(t, clicks, 1)
	assert.Equal(t, "button", clicks[0].Properties["elementType"])
	assert.Zero(t, f.engine.recorder.pending(), "heatmap sample is consent-gated")
}

func TestFormInteraction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.RecordFormInteraction(ctx, "checkout-form", "email", "focus")

	waitForEnvelopes(t, f.backend, 1)
	forms := f.backend.byKind(tracking.KindFormInteraction)
	require.Len(t, forms, 1)
	assert.Equal(t, "checkout-form", forms[0].Properties["formId"])
	assert.Equal(t, "focus", forms[0].Properties["action"])
}

func TestExplicitCartAbandonUsesCartSignal(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.setCart(tracking.CartSnapshot{
		CartID: "cart-9",
		Items:  []tracking.CartItem{{ProductID: "p1", Quantity: 2}},
	})
	f.engine.TrackCartAbandon(ctx)

	waitForEnvelopes(t, f.backend, 1)
	abandons := f.backend.byKind(tracking.KindCartAbandon)
	require.Len(t, abandons, 1)
	assert.Equal(t, "cart-9", abandons[0].Properties["cartId"])
	assert.Equal(t, 2, intProp(t, abandons[0].Properties["cartSize"]))
}

func TestExplicitCartAbandonSkipsEmptyCart(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.TrackCartAbandon(ctx)
	f.engine.TrackPageView(ctx, "/", "Home")

	waitForEnvelopes(t, f.backend, 1)
	assert.Empty(t, f.backend.byKind(tracking.KindCartAbandon))
}

// intProp converts a property that may round-trip as int or float64
func intProp(t *testing.T, v any) int {
	t.Helper()
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		t.Fatalf("unexpected property type %T", v)
		return 0
	}
}
