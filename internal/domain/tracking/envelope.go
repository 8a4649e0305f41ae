package tracking

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/analytics/internal/domain/shared"
)

// EventKind identifies a semantic tracked event. The set is closed: every kind
// must be listed in AllKinds and routed by DestinationsFor
type EventKind string

const (
	KindPageView               EventKind = "page_view"
	KindProductView            EventKind = "product_view"
	KindAddToCart              EventKind = "add_to_cart"
	KindRemoveFromCart         EventKind = "remove_from_cart"
	KindBeginCheckout          EventKind = "begin_checkout"
	KindPurchase               EventKind = "purchase"
	KindSearch                 EventKind = "search"
	KindInfluencerClick        EventKind = "influencer_click"
	KindRecommendationClick    EventKind = "recommendation_click"
	KindVirtualRoomInteraction EventKind = "virtual_room_interaction"
	KindSignup                 EventKind = "signup"
	KindLogin                  EventKind = "login"
	KindCartAbandon            EventKind = "cart_abandon"
	KindExitIntent             EventKind = "exit_intent"
	KindSaveCart               EventKind = "save_cart"
	KindReturnToCart           EventKind = "return_to_cart"
	KindProductAffinity        EventKind = "product_affinity"
	KindBrowseHistory          EventKind = "browse_history"
	KindCrossSellClick         EventKind = "cross_sell_click"
	KindSegmentAssigned        EventKind = "segment_assigned"
	KindPagePerformance        EventKind = "page_performance"
	KindAPIPerformance         EventKind = "api_performance"
	KindComponentPerformance   EventKind = "component_performance"
	KindFunnelStep             EventKind = "funnel_step"
	KindUserJourney            EventKind = "user_journey"
	KindExperimentView         EventKind = "experiment_view"
	KindExperimentConversion   EventKind = "experiment_conversion"
	KindClick                  EventKind = "click"
	KindScroll                 EventKind = "scroll"
	KindMouseMove              EventKind = "mouse_move"
	KindFormInteraction        EventKind = "form_interaction"
)

// AllKinds returns every defined event kind
func AllKinds() []EventKind {
	return []EventKind{
		KindPageView, KindProductView, KindAddToCart, KindRemoveFromCart,
		KindBeginCheckout, KindPurchase, KindSearch, KindInfluencerClick,
		KindRecommendationClick, KindVirtualRoomInteraction, KindSignup, KindLogin,
		KindCartAbandon, KindExitIntent, KindSaveCart, KindReturnToCart,
		KindProductAffinity, KindBrowseHistory, KindCrossSellClick, KindSegmentAssigned,
		KindPagePerformance, KindAPIPerformance, KindComponentPerformance,
		KindFunnelStep, KindUserJourney, KindExperimentView, KindExperimentConversion,
		KindClick, KindScroll, KindMouseMove, KindFormInteraction,
	}
}

// DestinationName identifies an external sink that receives envelopes
type DestinationName string

const (
	// DestinationBackend is the origin analytics backend. Delivery is reliable:
	// failures requeue the envelope for retry
	DestinationBackend DestinationName = "backend"
	// DestinationWebTag is the page-level web analytics tag. Best-effort only
	DestinationWebTag DestinationName = "web_tag"
	// DestinationProductTag is the product analytics SDK. Best-effort only
	DestinationProductTag DestinationName = "product_tag"
)

// DestinationsFor returns the destinations an event kind is routed to.
// The switch is total over AllKinds; TestDestinationsForIsTotal guards the
// mapping so a new kind cannot ship without routing
func DestinationsFor(kind EventKind) []DestinationName {
	switch kind {
	case KindPageView, KindProductView, KindAddToCart, KindRemoveFromCart,
		KindBeginCheckout, KindPurchase, KindSearch, KindSignup, KindLogin:
		// Commerce events feed every sink
		return []DestinationName{DestinationBackend, DestinationWebTag, DestinationProductTag}
	case KindInfluencerClick, KindRecommendationClick, KindVirtualRoomInteraction,
		KindCartAbandon, KindExitIntent, KindSaveCart, KindReturnToCart,
		KindCrossSellClick, KindSegmentAssigned, KindUserJourney,
		KindFunnelStep, KindExperimentView, KindExperimentConversion:
		return []DestinationName{DestinationBackend, DestinationProductTag}
	case KindProductAffinity, KindBrowseHistory,
		KindPagePerformance, KindAPIPerformance, KindComponentPerformance,
		KindClick, KindScroll, KindMouseMove, KindFormInteraction:
		// High-volume or derived signals stay off the third-party tags
		return []DestinationName{DestinationBackend}
	default:
		// Unknown kinds still reach the backend so nothing is silently lost
		return []DestinationName{DestinationBackend}
	}
}

// Envelope is the canonical wrapped form of a tracked event. It is immutable
// once created and carries everything a destination needs to record it
type Envelope struct {
	EventID    uuid.UUID      `json:"eventId"`
	Kind       EventKind      `json:"type"`
	Timestamp  int64          `json:"timestamp"` // unix milliseconds
	SessionID  string         `json:"sessionId"`
	UserID     string         `json:"userId,omitempty"`
	Properties map[string]any `json:"properties"`
}

// NewEnvelope builds an envelope stamped with the clock's current time.
// Properties may be nil; the envelope always carries a non-nil map so
// destinations never need to guard against it
func NewEnvelope(clock shared.Clock, kind EventKind, sessionID, userID string, properties map[string]any) Envelope {
	if properties == nil {
		properties = map[string]any{}
	}
	return Envelope{
		EventID:    uuid.New(),
		Kind:       kind,
		Timestamp:  clock.Now().UnixMilli(),
		SessionID:  sessionID,
		UserID:     userID,
		Properties: properties,
	}
}

// OccurredAt returns the envelope timestamp as a time.Time
func (e Envelope) OccurredAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}
