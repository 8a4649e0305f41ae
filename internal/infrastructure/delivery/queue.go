package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/storefront/analytics/internal/domain/tracking"
	"go.uber.org/zap"
)

// Retry defaults. The base backoff doubles per attempt (1s, 2s, 4s, 8s);
// after MaxAttempts the envelope is dropped and counted as a dead letter
// rather than retried forever against a permanently failing backend
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = time.Second
)

// QueueConfig holds retry tuning for the delivery queue
type QueueConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultQueueConfig returns the default retry configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// item is one queued envelope together with its delivery bookkeeping.
// remaining tracks which destinations are still owed this envelope so a retry
// after a backend failure cannot double-deliver to the tags
type item struct {
	envelope      tracking.Envelope
	remaining     []tracking.DestinationName
	attempts      int
	nextAttemptAt time.Time
}

// Queue buffers envelopes and dispatches them FIFO through the fanout.
// Envelopes enqueued before Start are parked and drained sequentially once the
// engine initializes, via the same dispatch path as live events
type Queue struct {
	mu     sync.Mutex
	items  []*item
	notify chan struct{}

	fanout *Fanout
	config QueueConfig
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	running     atomic.Bool
	delivered   atomic.Int64
	deadLetters atomic.Int64
}

// NewQueue creates a delivery queue over the given fanout
func NewQueue(fanout *Fanout, config QueueConfig, logger *zap.Logger) *Queue {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultBaseBackoff
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		fanout: fanout,
		config: config,
		logger: logger,
	}
}

// Enqueue appends an envelope to the tail of the queue and returns without
// waiting for delivery. Safe to call before Start: the envelope is parked
func (q *Queue) Enqueue(env tracking.Envelope) {
	q.mu.Lock()
	q.items = append(q.items, &item{
		envelope:  env,
		remaining: tracking.DestinationsFor(env.Kind),
	})
	q.mu.Unlock()
	q.signal()
}

// Start launches the dispatch worker. Parked envelopes are drained first, in
// insertion order, one at a time
func (q *Queue) Start(ctx context.Context) {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go q.dispatchLoop(ctx)

	q.logger.Info("delivery queue started",
		zap.Int("parked", q.Pending()),
		zap.Int("max_attempts", q.config.MaxAttempts),
		zap.Duration("base_backoff", q.config.BaseBackoff),
	)
}

// Stop halts the worker, waiting for an in-flight dispatch to finish or the
// context to expire. Undelivered envelopes stay queued in memory and are lost
// with the process; unload delivery is best-effort by design
func (q *Queue) Stop(ctx context.Context) error {
	if !q.running.CompareAndSwap(true, false) {
		return nil
	}
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("delivery queue stopped", zap.Int("pending", q.Pending()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued envelopes
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Delivered returns the number of envelopes fully delivered to every owed
// reliable destination
func (q *Queue) Delivered() int64 {
	return q.delivered.Load()
}

// DeadLetters returns the number of envelopes dropped after exhausting retries
func (q *Queue) DeadLetters() int64 {
	return q.deadLetters.Load()
}

// signal nudges the worker without blocking the caller
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// dispatchLoop pops items FIFO and dispatches them, honoring per-item backoff
func (q *Queue) dispatchLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		it := q.next(ctx)
		if it == nil {
			return
		}

		if wait := time.Until(it.nextAttemptAt); wait > 0 {
			select {
			case <-ctx.Done():
				// Push back so the envelope is not lost if the queue restarts
				q.requeue(it)
				return
			case <-time.After(wait):
			}
		}

		q.dispatch(ctx, it)
	}
}

// next blocks until an item is available or the context is cancelled
func (q *Queue) next(ctx context.Context) *item {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}

// requeue puts an item back at the tail
func (q *Queue) requeue(it *item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	q.signal()
}

// dispatch fans the envelope out to its remaining destinations. Destinations
// are attempted concurrently and independently: one sink's failure is neither
// observed by nor blocks another. Failed reliable destinations are requeued
// with exponential backoff; failed best-effort destinations are logged and
// considered terminal
func (q *Queue) dispatch(ctx context.Context, it *item) {
	type result struct {
		name     tracking.DestinationName
		reliable bool
		err      error
	}

	results := make([]result, len(it.remaining))
	var wg sync.WaitGroup
	for i, name := range it.remaining {
		dest, ok := q.fanout.Lookup(name)
		if !ok {
			// Destination not configured (tag SDK absent): nothing owed
			results[i] = result{name: name}
			continue
		}
		wg.Add(1)
		go func(i int, dest Destination) {
			defer wg.Done()
			err := q.fanout.deliver(ctx, dest, it.envelope)
			results[i] = result{name: dest.Name(), reliable: dest.Reliable(), err: err}
		}(i, dest)
	}
	wg.Wait()

	var stillOwed []tracking.DestinationName
	for _, r := range results {
		if r.err == nil {
			continue
		}
		if r.reliable {
			stillOwed = append(stillOwed, r.name)
		} else {
			q.logger.Warn("best-effort destination failed, envelope dropped for it",
				zap.String("destination", string(r.name)),
				zap.String("event_id", it.envelope.EventID.String()),
				zap.String("kind", string(it.envelope.Kind)),
				zap.Error(r.err),
			)
		}
	}

	if len(stillOwed) == 0 {
		q.delivered.Add(1)
		return
	}

	it.remaining = stillOwed
	it.attempts++
	if it.attempts >= q.config.MaxAttempts {
		q.deadLetters.Add(1)
		q.logger.Error("envelope dropped after exhausting retries",
			zap.String("event_id", it.envelope.EventID.String()),
			zap.String("kind", string(it.envelope.Kind)),
			zap.Int("attempts", it.attempts),
		)
		return
	}

	backoff := q.config.BaseBackoff * time.Duration(1<<uint(it.attempts-1))
	it.nextAttemptAt = time.Now().Add(backoff)
	q.requeue(it)

	q.logger.Warn("backend delivery failed, envelope requeued",
		zap.String("event_id", it.envelope.EventID.String()),
		zap.String("kind", string(it.envelope.Kind)),
		zap.Int("attempt", it.attempts),
		zap.Duration("backoff", backoff),
	)
}
