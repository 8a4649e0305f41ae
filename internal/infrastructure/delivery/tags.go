package delivery

import (
	"context"

	"github.com/storefront/analytics/internal/domain/tracking"
)

// WebTagFunc mirrors the global web-analytics tag call: a function taking an
// event name and a parameter object. The SDK behind it is opaque
type WebTagFunc func(eventName string, params map[string]any)

// WebTag adapts the web-analytics tag function into a best-effort destination
type WebTag struct {
	fn WebTagFunc
}

// NewWebTag wraps the given tag function
func NewWebTag(fn WebTagFunc) *WebTag {
	return &WebTag{fn: fn}
}

// Name identifies the web tag destination
func (t *WebTag) Name() tracking.DestinationName {
	return tracking.DestinationWebTag
}

// Reliable reports that web tag failures are terminal
func (t *WebTag) Reliable() bool {
	return false
}

// Deliver forwards the envelope to the tag function. Panics inside the opaque
// SDK are converted to errors by the fanout
func (t *WebTag) Deliver(ctx context.Context, env tracking.Envelope) error {
	params := make(map[string]any, len(env.Properties)+2)
	for k, v := range env.Properties {
		params[k] = v
	}
	params["session_id"] = env.SessionID
	if env.UserID != "" {
		params["user_id"] = env.UserID
	}
	t.fn(string(env.Kind), params)
	return nil
}

// ProductTagAPI is the opaque product-analytics SDK surface the engine
// consumes: track, identify and reset. Never required for correctness
type ProductTagAPI interface {
	Track(name string, props map[string]any)
	Identify(userID string)
	Reset()
}

// ProductTag adapts a product-analytics SDK into a best-effort destination
type ProductTag struct {
	api ProductTagAPI
}

// NewProductTag wraps the given SDK
func NewProductTag(api ProductTagAPI) *ProductTag {
	return &ProductTag{api: api}
}

// Name identifies the product tag destination
func (t *ProductTag) Name() tracking.DestinationName {
	return tracking.DestinationProductTag
}

// Reliable reports that product tag failures are terminal
func (t *ProductTag) Reliable() bool {
	return false
}

// Deliver forwards the envelope to the SDK's track call
func (t *ProductTag) Deliver(ctx context.Context, env tracking.Envelope) error {
	props := make(map[string]any, len(env.Properties)+2)
	for k, v := range env.Properties {
		props[k] = v
	}
	props["session_id"] = env.SessionID
	props["timestamp"] = env.Timestamp
	t.api.Track(string(env.Kind), props)
	return nil
}

// Identify forwards a user identification to the SDK
func (t *ProductTag) Identify(userID string) {
	t.api.Identify(userID)
}

// Reset clears the SDK's user association
func (t *ProductTag) Reset() {
	t.api.Reset()
}
