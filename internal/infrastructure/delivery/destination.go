// Package delivery implements the engine's outbound path: the buffered retry
// queue and the destinations envelopes fan out to.
package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/storefront/analytics/internal/domain/tracking"
	"go.uber.org/zap"
)

// Destination is an external sink that receives envelopes. Reliable
// destinations get at-least-once semantics (failures requeue the envelope);
// unreliable ones are best-effort and never retried
type Destination interface {
	// Name identifies the destination for routing and logging
	Name() tracking.DestinationName
	// Reliable reports whether failed deliveries should be retried
	Reliable() bool
	// Deliver sends one envelope. A non-nil error means the envelope was not
	// accepted by this destination
	Deliver(ctx context.Context, env tracking.Envelope) error
}

// Fanout holds the registered destinations. Destinations can be attached
// after construction (external platform connected at runtime), so lookups are
// guarded
type Fanout struct {
	mu           sync.RWMutex
	destinations map[tracking.DestinationName]Destination
	logger       *zap.Logger
}

// NewFanout creates a fanout over the given destinations
func NewFanout(logger *zap.Logger, destinations ...Destination) *Fanout {
	f := &Fanout{
		destinations: make(map[tracking.DestinationName]Destination, len(destinations)),
		logger:       logger,
	}
	for _, d := range destinations {
		f.Register(d)
	}
	return f
}

// Register attaches a destination, replacing any existing one with the same name
func (f *Fanout) Register(d Destination) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destinations[d.Name()] = d
	f.logger.Info("destination registered",
		zap.String("destination", string(d.Name())),
		zap.Bool("reliable", d.Reliable()),
	)
}

// Lookup returns the destination with the given name, if registered
func (f *Fanout) Lookup(name tracking.DestinationName) (Destination, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.destinations[name]
	return d, ok
}

// deliver dispatches the envelope to one destination, converting panics from
// opaque tag SDKs into errors so one sink can never take down the engine
func (f *Fanout) deliver(ctx context.Context, d Destination, env tracking.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("destination %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Deliver(ctx, env)
}
