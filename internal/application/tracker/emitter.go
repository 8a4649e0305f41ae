package tracker

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/storefront/analytics/internal/domain/tracking"
)

// Purchase is the completed order handed to TrackPurchase
type Purchase struct {
	OrderID string
	Revenue decimal.Decimal
	Items   []tracking.CartItem
}

// TrackPageView records a page view. It also advances funnel tracking and
// emits one exposure event per assigned experiment, so experiment analysis can
// join exposures against page traffic
func (e *Engine) TrackPageView(ctx context.Context, path, title string) {
	e.guard("page_view", func() {
		e.session.TouchActivity(ctx)
		e.recorder.setPage(path)

		e.emit(ctx, tracking.KindPageView, map[string]any{
			"path":  path,
			"title": title,
		})

		if obs, ok := e.funnels.observePageView(path); ok {
			e.emitFunnelStep(ctx, obs, path)
		}

		for experimentID, variant := range e.experiments.Snapshot() {
			e.emit(ctx, tracking.KindExperimentView, map[string]any{
				"experimentId": experimentID,
				"variant":      variant,
				"path":         path,
			})
		}
	})
}

// TrackProductView records a product detail view and pushes the product onto
// the bounded browse history (move-to-front, de-duplicated by product ID)
func (e *Engine) TrackProductView(ctx context.Context, product tracking.BrowsedProduct, price decimal.Decimal) {
	e.guard("product_view", func() {
		e.session.TouchActivity(ctx)

		priceValue, _ := price.Float64()
		e.emit(ctx, tracking.KindProductView, map[string]any{
			"productId": product.ProductID,
			"name":      product.Name,
			"category":  product.Category,
			"price":     priceValue,
		})

		if product.ViewedAt == 0 {
			product.ViewedAt = e.deps.Clock.Now().UnixMilli()
		}
		e.history.Push(ctx, product)
		e.emit(ctx, tracking.KindBrowseHistory, map[string]any{
			"productId":   product.ProductID,
			"historySize": e.history.Len(),
		})
	})
}

// TrackAddToCart records an item added to the cart
func (e *Engine) TrackAddToCart(ctx context.Context, item tracking.CartItem) {
	e.guard("add_to_cart", func() {
		e.session.TouchActivity(ctx)
		unitPrice, _ := item.UnitPrice.Float64()
		e.emit(ctx, tracking.KindAddToCart, map[string]any{
			"productId": item.ProductID,
			"name":      item.Name,
			"quantity":  item.Quantity,
			"unitPrice": unitPrice,
		})
	})
}

// TrackRemoveFromCart records an item removed from the cart
func (e *Engine) TrackRemoveFromCart(ctx context.Context, productID string, quantity int) {
	e.guard("remove_from_cart", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindRemoveFromCart, map[string]any{
			"productId": productID,
			"quantity":  quantity,
		})
	})
}

// TrackBeginCheckout records checkout entry with the current cart value
func (e *Engine) TrackBeginCheckout(ctx context.Context) {
	e.guard("begin_checkout", func() {
		e.session.TouchActivity(ctx)
		properties := map[string]any{}
		if e.deps.CartSource != nil {
			cart := e.deps.CartSource(ctx)
			properties["cartId"] = cart.CartID
			properties["cartValue"] = cart.Value()
			properties["cartSize"] = cart.Size()
		}
		e.emit(ctx, tracking.KindBeginCheckout, properties)
	})
}

// TrackPurchase records a completed order and its derived signals: the
// checkout funnel completes at its final step, every assigned experiment gets
// a conversion valued at the order revenue, and each unordered pair of
// distinct products in the order emits one affinity event
func (e *Engine) TrackPurchase(ctx context.Context, order Purchase) {
	e.guard("purchase", func() {
		e.session.TouchActivity(ctx)

		revenue, _ := order.Revenue.Float64()
		items := make([]map[string]any, 0, len(order.Items))
		for _, item := range order.Items {
			unitPrice, _ := item.UnitPrice.Float64()
			items = append(items, map[string]any{
				"productId": item.ProductID,
				"quantity":  item.Quantity,
				"unitPrice": unitPrice,
			})
		}
		e.emit(ctx, tracking.KindPurchase, map[string]any{
			"orderId": order.OrderID,
			"revenue": revenue,
			"items":   items,
		})

		if obs, ok := e.funnels.complete(tracking.CheckoutFunnelID); ok {
			e.emitFunnelStep(ctx, obs, "")
		}

		for experimentID, variant := range e.experiments.Snapshot() {
			e.emit(ctx, tracking.KindExperimentConversion, map[string]any{
				"experimentId":    experimentID,
				"variant":         variant,
				"conversionValue": revenue,
				"orderId":         order.OrderID,
			})
		}

		e.emitProductAffinities(ctx, order)
	})
}

// TrackSearch records a site search
func (e *Engine) TrackSearch(ctx context.Context, query string, resultCount int) {
	e.guard("search", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindSearch, map[string]any{
			"query":       query,
			"resultCount": resultCount,
		})
	})
}

// TrackInfluencerClick records a click-through from influencer content
func (e *Engine) TrackInfluencerClick(ctx context.Context, influencerID, targetURL string) {
	e.guard("influencer_click", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindInfluencerClick, map[string]any{
			"influencerId": influencerID,
			"targetUrl":    targetURL,
		})
	})
}

// TrackRecommendationClick records a click on a recommended product
func (e *Engine) TrackRecommendationClick(ctx context.Context, productID, source string, position int) {
	e.guard("recommendation_click", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindRecommendationClick, map[string]any{
			"productId": productID,
			"source":    source,
			"position":  position,
		})
	})
}

// TrackVirtualRoomInteraction records activity inside a virtual showroom
func (e *Engine) TrackVirtualRoomInteraction(ctx context.Context, roomID, interaction string) {
	e.guard("virtual_room", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindVirtualRoomInteraction, map[string]any{
			"roomId":      roomID,
			"interaction": interaction,
		})
	})
}

// TrackSignup records account creation
func (e *Engine) TrackSignup(ctx context.Context, method string) {
	e.guard("signup", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindSignup, map[string]any{"method": method})
	})
}

// TrackLogin records a successful login
func (e *Engine) TrackLogin(ctx context.Context, method string) {
	e.guard("login", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindLogin, map[string]any{"method": method})
	})
}

// TrackExitIntent records the cursor leaving toward browser chrome with items
// in the cart
func (e *Engine) TrackExitIntent(ctx context.Context) {
	e.guard("exit_intent", func() {
		properties := map[string]any{}
		if e.deps.CartSource != nil {
			cart := e.deps.CartSource(ctx)
			properties["cartValue"] = cart.Value()
			properties["cartSize"] = cart.Size()
		}
		e.emit(ctx, tracking.KindExitIntent, properties)
	})
}

// TrackCartAbandon reports an abandoned cart explicitly, for hosts running
// their own abandonment detection alongside the engine's idle sweep
func (e *Engine) TrackCartAbandon(ctx context.Context) {
	e.guard("cart_abandon", func() {
		properties := map[string]any{}
		if e.deps.CartSource != nil {
			cart := e.deps.CartSource(ctx)
			if cart.Empty() {
				return
			}
			properties["cartId"] = cart.CartID
			properties["cartValue"] = cart.Value()
			properties["cartSize"] = cart.Size()
		}
		e.emit(ctx, tracking.KindCartAbandon, properties)
	})
}

// TrackSaveCart records the user explicitly saving their cart for later
func (e *Engine) TrackSaveCart(ctx context.Context) {
	e.guard("save_cart", func() {
		e.session.TouchActivity(ctx)
		properties := map[string]any{}
		if e.deps.CartSource != nil {
			cart := e.deps.CartSource(ctx)
			properties["cartId"] = cart.CartID
			properties["cartValue"] = cart.Value()
		}
		e.emit(ctx, tracking.KindSaveCart, properties)
	})
}

// TrackReturnToCart records a visit resuming a previously abandoned or saved
// cart
func (e *Engine) TrackReturnToCart(ctx context.Context) {
	e.guard("return_to_cart", func() {
		e.session.TouchActivity(ctx)
		properties := map[string]any{}
		if e.deps.CartSource != nil {
			cart := e.deps.CartSource(ctx)
			properties["cartId"] = cart.CartID
			properties["cartValue"] = cart.Value()
			properties["cartSize"] = cart.Size()
		}
		e.emit(ctx, tracking.KindReturnToCart, properties)
	})
}

// TrackCrossSellClick records a click on a cross-sell placement
func (e *Engine) TrackCrossSellClick(ctx context.Context, sourceProductID, targetProductID string) {
	e.guard("cross_sell_click", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindCrossSellClick, map[string]any{
			"sourceProductId": sourceProductID,
			"targetProductId": targetProductID,
		})
	})
}

// TrackUserJourney records a milestone in the shopper's journey, e.g. moving
// from discovery to consideration
func (e *Engine) TrackUserJourney(ctx context.Context, stage, trigger string) {
	e.guard("user_journey", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindUserJourney, map[string]any{
			"stage":   stage,
			"trigger": trigger,
		})
	})
}

// TrackComponentPerformance records the render time of a UI component measured
// by the host application
func (e *Engine) TrackComponentPerformance(ctx context.Context, component string, renderMs float64) {
	e.guard("component_performance", func() {
		e.emit(ctx, tracking.KindComponentPerformance, map[string]any{
			"component":    component,
			"renderTimeMs": renderMs,
		})
	})
}

// TrackExperimentConversion records a conversion for an assigned experiment.
// Unassigned experiments produce nothing
func (e *Engine) TrackExperimentConversion(ctx context.Context, experimentID string, value decimal.Decimal) {
	e.guard("experiment_conversion", func() {
		variant, ok := e.experiments.Variant(experimentID)
		if !ok {
			return
		}
		conversionValue, _ := value.Float64()
		e.emit(ctx, tracking.KindExperimentConversion, map[string]any{
			"experimentId":    experimentID,
			"variant":         variant,
			"conversionValue": conversionValue,
		})
	})
}

// RecordClick captures a click for the recorder buffer and emits the discrete
// click event. The discrete event flows regardless of recording consent; only
// the heatmap sample is consent-gated
func (e *Engine) RecordClick(ctx context.Context, sample tracking.ClickSample) {
	e.guard("record_click", func() {
		e.session.TouchActivity(ctx)
		e.recorder.recordClick(sample)
		e.emit(ctx, tracking.KindClick, map[string]any{
			"x":           sample.X,
			"y":           sample.Y,
			"elementId":   sample.ElementID,
			"elementType": sample.ElementType,
		})
	})
}

// RecordMouseMove captures a throttled pointer sample. Movement is buffered
// only; it never becomes a discrete event
func (e *Engine) RecordMouseMove(ctx context.Context, sample tracking.MouseMoveSample) {
	e.guard("record_mouse_move", func() {
		e.recorder.recordMouseMove(sample)
	})
}

// RecordScroll captures scroll position. Depth is reported as a percentage of
// the scrollable height; a page with nothing to scroll reads 100. Admitted
// samples also emit a discrete scroll depth event under the same throttle
func (e *Engine) RecordScroll(ctx context.Context, scrollTop, documentHeight, viewportHeight int) {
	e.guard("record_scroll", func() {
		e.session.TouchActivity(ctx)

		percent := 100.0
		if scrollable := documentHeight - viewportHeight; scrollable > 0 {
			percent = float64(scrollTop) / float64(scrollable) * 100
			if percent < 0 {
				percent = 0
			}
			if percent > 100 {
				percent = 100
			}
		}

		admitted := e.recorder.recordScroll(tracking.ScrollSample{ScrollPercent: percent})
		if admitted {
			e.emit(ctx, tracking.KindScroll, map[string]any{
				"scrollPercent": percent,
			})
		}
	})
}

// RecordFormInteraction records a field-level form interaction as a discrete
// event
func (e *Engine) RecordFormInteraction(ctx context.Context, formID, field, action string) {
	e.guard("form_interaction", func() {
		e.session.TouchActivity(ctx)
		e.emit(ctx, tracking.KindFormInteraction, map[string]any{
			"formId": formID,
			"field":  field,
			"action": action,
		})
	})
}

// emitFunnelStep emits one funnel step event
func (e *Engine) emitFunnelStep(ctx context.Context, obs StepObservation, path string) {
	properties := map[string]any{
		"funnelId":   obs.FunnelID,
		"step":       obs.Step.ID,
		"position":   obs.Step.Position,
		"totalSteps": obs.TotalSteps,
	}
	if path != "" {
		properties["path"] = path
	}
	e.emit(ctx, tracking.KindFunnelStep, properties)
}

// emitProductAffinities emits one affinity event per unordered pair of
// distinct products purchased together
func (e *Engine) emitProductAffinities(ctx context.Context, order Purchase) {
	for i := 0; i < len(order.Items); i++ {
		for j := i + 1; j < len(order.Items); j++ {
			first, second := order.Items[i].ProductID, order.Items[j].ProductID
			if first == second {
				continue
			}
			e.emit(ctx, tracking.KindProductAffinity, map[string]any{
				"productA": first,
				"productB": second,
				"orderId":  order.OrderID,
			})
		}
	}
}
