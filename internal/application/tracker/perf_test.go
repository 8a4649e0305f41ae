package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPerfFixture(t *testing.T, enabled bool) *engineFixture {
	t.Helper()
	f := &engineFixture{
		kv:      newMemKV(),
		backend: newFakeBackend(),
		clock:   newFakeClock(),
	}
	deps := Dependencies{
		KV:          f.kv,
		Backend:     f.backend,
		Clock:       f.clock,
		PerfEnabled: enabled,
	}
	config := Config{SweepInterval: time.Hour}
	f.engine = New(context.Background(), deps, config, zap.NewNop())
	return f
}

func TestPerfMonitorDisabledWithoutTimingSource(t *testing.T) {
	ctx := context.Background()
	f := newPerfFixture(t, false)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.RecordPageLoad(ctx, PageLoadTiming{Path: "/", LoadTimeMs: 1200})
	f.engine.ObserveResource(ctx, ResourceEntry{Name: "/api/products", Initiator: "fetch", DurationMs: 80})
	f.engine.TrackSearch(ctx, "marker", 0)

	waitForEnvelopes(t, f.backend, 1)
	assert.Empty(t, f.backend.byKind(tracking.KindPagePerformance))
	assert.Empty(t, f.backend.byKind(tracking.KindAPIPerformance))
}

func TestPerfMonitorEmitsPageLoad(t *testing.T) {
	ctx := context.Background()
	f := newPerfFixture(t, true)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.RecordPageLoad(ctx, PageLoadTiming{
		Path:                   "/products/1",
		LoadTimeMs:             1850,
		DOMContentLoadedMs:     900,
		DOMInteractiveMs:       750,
		TimeToFirstByteMs:      120,
		FirstPaintMs:           480,
		FirstContentfulPaintMs: 620,
	})

	waitForEnvelopes(t, f.backend, 1)
	events := f.backend.byKind(tracking.KindPagePerformance)
	require.Len(t, events, 1)
	assert.Equal(t, "/products/1", events[0].Properties["path"])
	assert.InDelta(t, 1850.0, events[0].Properties["loadTimeMs"], 0.001)
	assert.InDelta(t, 750.0, events[0].Properties["domInteractiveMs"], 0.001)
	assert.InDelta(t, 120.0, events[0].Properties["timeToFirstByteMs"], 0.001)
	assert.InDelta(t, 480.0, events[0].Properties["firstPaintMs"], 0.001)
	assert.InDelta(t, 620.0, events[0].Properties["firstContentfulPaintMs"], 0.001)
}

func TestPerfMonitorFiltersResourceInitiators(t *testing.T) {
	ctx := context.Background()
	f := newPerfFixture(t, true)
	f.engine.Init(ctx)
	defer f.engine.Shutdown(ctx)

	f.engine.ObserveResource(ctx, ResourceEntry{Name: "/api/cart", Initiator: "fetch", DurationMs: 45, Protocol: "h2"})
	f.engine.ObserveResource(ctx, ResourceEntry{Name: "/api/user", Initiator: "xmlhttprequest", DurationMs: 60})
	f.engine.ObserveResource(ctx, ResourceEntry{Name: "/static/hero.jpg", Initiator: "img", DurationMs: 300})
	f.engine.ObserveResource(ctx, ResourceEntry{Name: "/static/app.js", Initiator: "script", DurationMs: 90})

	waitForEnvelopes(t, f.backend, 2)
	time.Sleep(20 * time.Millisecond)

	events := f.backend.byKind(tracking.KindAPIPerformance)
	require.Len(t, events, 2, "only fetch/XHR entries become API events")
	assert.Equal(t, "/api/cart", events[0].Properties["endpoint"])
	assert.Equal(t, "h2", events[0].Properties["protocol"])
	assert.Equal(t, "/api/user", events[1].Properties["endpoint"])
}
