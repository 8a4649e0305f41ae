package tracker

import (
	"context"

	"github.com/storefront/analytics/internal/domain/tracking"
)

// PageLoadTiming is the navigation timing summary reported once the page has
// settled
type PageLoadTiming struct {
	Path                   string  `json:"path"`
	LoadTimeMs             float64 `json:"loadTimeMs"`
	DOMContentLoadedMs     float64 `json:"domContentLoadedMs"`
	DOMInteractiveMs       float64 `json:"domInteractiveMs"`
	TimeToFirstByteMs      float64 `json:"timeToFirstByteMs"`
	FirstPaintMs           float64 `json:"firstPaintMs"`
	FirstContentfulPaintMs float64 `json:"firstContentfulPaintMs"`
}

// ResourceEntry is one observed resource timing entry
type ResourceEntry struct {
	Name         string  `json:"name"`
	Initiator    string  `json:"initiator"`
	DurationMs   float64 `json:"durationMs"`
	TransferSize int64   `json:"transferSize"`
	Protocol     string  `json:"protocol"`
}

// API call initiators. Only these resource entries become API performance
// events; images, scripts and stylesheets are noise at this layer
const (
	initiatorFetch = "fetch"
	initiatorXHR   = "xmlhttprequest"
)

// perfMonitor turns timing observations into performance events. When the
// environment exposes no timing source the monitor is disabled and every call
// is a no-op
type perfMonitor struct {
	enabled bool
	emit    func(ctx context.Context, kind tracking.EventKind, properties map[string]any)
}

func newPerfMonitor(enabled bool, emit func(ctx context.Context, kind tracking.EventKind, properties map[string]any)) *perfMonitor {
	return &perfMonitor{enabled: enabled, emit: emit}
}

// recordPageLoad emits one page performance event for a settled page load
func (m *perfMonitor) recordPageLoad(ctx context.Context, timing PageLoadTiming) {
	if !m.enabled {
		return
	}
	m.emit(ctx, tracking.KindPagePerformance, map[string]any{
		"path":                   timing.Path,
		"loadTimeMs":             timing.LoadTimeMs,
		"domContentLoadedMs":     timing.DOMContentLoadedMs,
		"domInteractiveMs":       timing.DOMInteractiveMs,
		"timeToFirstByteMs":      timing.TimeToFirstByteMs,
		"firstPaintMs":           timing.FirstPaintMs,
		"firstContentfulPaintMs": timing.FirstContentfulPaintMs,
	})
}

// observeResource emits an API performance event for fetch/XHR entries and
// ignores everything else
func (m *perfMonitor) observeResource(ctx context.Context, entry ResourceEntry) {
	if !m.enabled {
		return
	}
	if entry.Initiator != initiatorFetch && entry.Initiator != initiatorXHR {
		return
	}
	m.emit(ctx, tracking.KindAPIPerformance, map[string]any{
		"endpoint":     entry.Name,
		"initiator":    entry.Initiator,
		"durationMs":   entry.DurationMs,
		"transferSize": entry.TransferSize,
		"protocol":     entry.Protocol,
	})
}
