package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubDestination records delivered envelopes and can fail a configurable
// number of times per event before succeeding
type stubDestination struct {
	mu        sync.Mutex
	name      tracking.DestinationName
	reliable  bool
	failures  map[string]int
	delivered []tracking.Envelope
	panicking bool
}

func newStubDestination(name tracking.DestinationName, reliable bool) *stubDestination {
	return &stubDestination{
		name:     name,
		reliable: reliable,
		failures: make(map[string]int),
	}
}

func (s *stubDestination) failTimes(env tracking.Envelope, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[env.EventID.String()] = n
}

func (s *stubDestination) Name() tracking.DestinationName { return s.name }
func (s *stubDestination) Reliable() bool                 { return s.reliable }

func (s *stubDestination) Deliver(ctx context.Context, env tracking.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicking {
		panic("sdk exploded")
	}
	if n := s.failures[env.EventID.String()]; n > 0 {
		s.failures[env.EventID.String()] = n - 1
		return errors.New("delivery refused")
	}
	s.delivered = append(s.delivered, env)
	return nil
}

func (s *stubDestination) received() []tracking.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tracking.Envelope, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func (s *stubDestination) countFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, env := range s.delivered {
		if env.EventID.String() == id {
			count++
		}
	}
	return count
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func testEnvelope(t *testing.T, kind tracking.EventKind) tracking.Envelope {
	t.Helper()
	return tracking.NewEnvelope(shared.SystemClock{}, kind, "sess-1", "", nil)
}

func TestQueueParksBeforeStartAndDrainsInOrder(t *testing.T) {
	backend := newStubDestination(tracking.DestinationBackend, true)
	fanout := NewFanout(zap.NewNop(), backend)
	queue := NewQueue(fanout, DefaultQueueConfig(), zap.NewNop())

	first := testEnvelope(t, tracking.KindPageView)
	second := testEnvelope(t, tracking.KindProductView)
	third := testEnvelope(t, tracking.KindAddToCart)

	queue.Enqueue(first)
	queue.Enqueue(second)
	assert.Equal(t, 2, queue.Pending())
	assert.Empty(t, backend.received(), "nothing may be delivered before start")

	queue.Start(context.Background())
	defer queue.Stop(context.Background())
	queue.Enqueue(third)

	waitFor(t, func() bool { return queue.Delivered() == 3 })

	got := backend.received()
	require.Len(t, got, 3)
	assert.Equal(t, first.EventID, got[0].EventID)
	assert.Equal(t, second.EventID, got[1].EventID)
	assert.Equal(t, third.EventID, got[2].EventID)
}

func TestQueueRetriesBackendWithoutRedeliveringTags(t *testing.T) {
	backend := newStubDestination(tracking.DestinationBackend, true)
	webTag := newStubDestination(tracking.DestinationWebTag, false)
	productTag := newStubDestination(tracking.DestinationProductTag, false)
	fanout := NewFanout(zap.NewNop(), backend, webTag, productTag)

	config := QueueConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond}
	queue := NewQueue(fanout, config, zap.NewNop())

	env := testEnvelope(t, tracking.KindPurchase)
	backend.failTimes(env, 1)

	queue.Start(context.Background())
	defer queue.Stop(context.Background())
	queue.Enqueue(env)

	waitFor(t, func() bool { return queue.Delivered() == 1 })

	id := env.EventID.String()
	assert.Equal(t, 1, backend.countFor(id), "backend receives the envelope exactly once")
	assert.Equal(t, 1, webTag.countFor(id), "web tag must not see the retried envelope twice")
	assert.Equal(t, 1, productTag.countFor(id), "product tag must not see the retried envelope twice")
	assert.Zero(t, queue.DeadLetters())
}

func TestQueueDropsAfterMaxAttempts(t *testing.T) {
	backend := newStubDestination(tracking.DestinationBackend, true)
	fanout := NewFanout(zap.NewNop(), backend)

	config := QueueConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	queue := NewQueue(fanout, config, zap.NewNop())

	doomed := testEnvelope(t, tracking.KindPageView)
	backend.failTimes(doomed, 10)
	survivor := testEnvelope(t, tracking.KindPageView)

	queue.Start(context.Background())
	defer queue.Stop(context.Background())
	queue.Enqueue(doomed)
	queue.Enqueue(survivor)

	waitFor(t, func() bool { return queue.DeadLetters() == 1 && queue.Delivered() == 1 })

	assert.Equal(t, 0, backend.countFor(doomed.EventID.String()))
	assert.Equal(t, 1, backend.countFor(survivor.EventID.String()), "later envelopes survive an earlier dead letter")
}

func TestQueueTagFailureIsTerminal(t *testing.T) {
	backend := newStubDestination(tracking.DestinationBackend, true)
	webTag := newStubDestination(tracking.DestinationWebTag, false)
	productTag := newStubDestination(tracking.DestinationProductTag, false)
	webTag.panicking = true
	fanout := NewFanout(zap.NewNop(), backend, webTag, productTag)

	config := QueueConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond}
	queue := NewQueue(fanout, config, zap.NewNop())

	env := testEnvelope(t, tracking.KindPurchase)

	queue.Start(context.Background())
	defer queue.Stop(context.Background())
	queue.Enqueue(env)

	waitFor(t, func() bool { return queue.Delivered() == 1 })

	id := env.EventID.String()
	assert.Equal(t, 1, backend.countFor(id))
	assert.Equal(t, 1, productTag.countFor(id), "one tag's panic never reaches the other")
	assert.Equal(t, 0, webTag.countFor(id))
	assert.Zero(t, queue.DeadLetters(), "best-effort failures are not dead letters")
}

func TestQueueSkipsUnregisteredDestinations(t *testing.T) {
	// Only the backend is wired; the tag SDKs were never attached
	backend := newStubDestination(tracking.DestinationBackend, true)
	fanout := NewFanout(zap.NewNop(), backend)
	queue := NewQueue(fanout, DefaultQueueConfig(), zap.NewNop())

	env := testEnvelope(t, tracking.KindPurchase)

	queue.Start(context.Background())
	defer queue.Stop(context.Background())
	queue.Enqueue(env)

	waitFor(t, func() bool { return queue.Delivered() == 1 })
	assert.Equal(t, 1, backend.countFor(env.EventID.String()))
}

func TestQueueStopIsIdempotent(t *testing.T) {
	fanout := NewFanout(zap.NewNop(), newStubDestination(tracking.DestinationBackend, true))
	queue := NewQueue(fanout, DefaultQueueConfig(), zap.NewNop())

	queue.Start(context.Background())
	require.NoError(t, queue.Stop(context.Background()))
	require.NoError(t, queue.Stop(context.Background()))
}
