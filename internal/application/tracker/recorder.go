package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/storefront/analytics/internal/domain/tracking"
	"go.uber.org/zap"
)

// batchSender is the slice of the backend client the recorder needs
type batchSender interface {
	SendSessionBatch(ctx context.Context, batch tracking.SessionBatch) error
}

// recorder captures heatmap-grade interaction samples while the user has opted
// into session recording. Samples accumulate in memory and are flushed as one
// session batch; a failed flush drops the batch, never blocks the page
type recorder struct {
	consent *tracking.ConsentStore
	session *tracking.SessionManager
	sender  batchSender
	clock   shared.Clock
	logger  *zap.Logger

	buffers        *tracking.SampleBuffers
	moveThrottle   *tracking.Throttle
	scrollThrottle *tracking.Throttle

	enabled atomic.Bool

	mu     sync.Mutex
	page   string
	userID func() string
}

func newRecorder(
	consent *tracking.ConsentStore,
	session *tracking.SessionManager,
	sender batchSender,
	clock shared.Clock,
	throttleWindow time.Duration,
	userID func() string,
	logger *zap.Logger,
) *recorder {
	return &recorder{
		consent:        consent,
		session:        session,
		sender:         sender,
		clock:          clock,
		logger:         logger,
		buffers:        tracking.NewSampleBuffers(),
		moveThrottle:   tracking.NewThrottle(clock, throttleWindow),
		scrollThrottle: tracking.NewThrottle(clock, throttleWindow),
		userID:         userID,
	}
}

// start enables sample capture. Recording requires explicit consent
func (r *recorder) start(ctx context.Context) error {
	if !r.consent.IsOptedIn(ctx, tracking.FeatureSessionRecording) {
		return fmt.Errorf("session recording: %w", shared.ErrRecordingNotEnabled)
	}
	if r.enabled.CompareAndSwap(false, true) {
		r.moveThrottle.Reset()
		r.scrollThrottle.Reset()
		r.logger.Info("session recording started")
	}
	return nil
}

// stop disables capture and flushes whatever is buffered
func (r *recorder) stop(ctx context.Context) {
	if !r.enabled.CompareAndSwap(true, false) {
		return
	}
	r.flush(ctx)
	r.logger.Info("session recording stopped")
}

func (r *recorder) isEnabled() bool {
	return r.enabled.Load()
}

// setPage records the page samples are attributed to
func (r *recorder) setPage(page string) {
	r.mu.Lock()
	r.page = page
	r.mu.Unlock()
}

// recordClick buffers a click sample. Clicks are never throttled: they are
// rare and each one matters for heatmaps
func (r *recorder) recordClick(sample tracking.ClickSample) {
	if !r.enabled.Load() {
		return
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = r.clock.Now().UnixMilli()
	}
	r.buffers.AddClick(sample)
}

// recordMouseMove buffers a pointer sample, at most one per throttle window
func (r *recorder) recordMouseMove(sample tracking.MouseMoveSample) bool {
	if !r.enabled.Load() {
		return false
	}
	if !r.moveThrottle.TryAdmit() {
		return false
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = r.clock.Now().UnixMilli()
	}
	r.buffers.AddMove(sample)
	return true
}

// recordScroll admits a scroll depth sample, at most one per throttle window,
// and reports the admission so the engine can emit the matching discrete
// scroll event. The discrete event flows like the discrete click event does;
// only buffering for session replay requires recording consent
func (r *recorder) recordScroll(sample tracking.ScrollSample) bool {
	if !r.scrollThrottle.TryAdmit() {
		return false
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = r.clock.Now().UnixMilli()
	}
	if r.enabled.Load() {
		r.buffers.AddScroll(sample)
	}
	return true
}

// pending returns the number of buffered samples
func (r *recorder) pending() int {
	return r.buffers.Len()
}

// flush drains the buffers and sends them as one session batch. An empty
// buffer sends nothing; a send failure drops the batch with a log line
func (r *recorder) flush(ctx context.Context) {
	clicks, moves, scrolls := r.buffers.Drain()

	r.mu.Lock()
	page := r.page
	r.mu.Unlock()

	batch := tracking.SessionBatch{
		SessionID:       r.session.SessionID(ctx),
		UserID:          r.userID(),
		Timestamp:       r.clock.Now().UnixMilli(),
		Page:            page,
		MouseMovements:  moves,
		Clicks:          clicks,
		ScrollPositions: scrolls,
	}
	if batch.Empty() {
		return
	}

	if err := r.sender.SendSessionBatch(ctx, batch); err != nil {
		r.logger.Warn("session batch dropped",
			zap.Int("clicks", len(clicks)),
			zap.Int("moves", len(moves)),
			zap.Int("scrolls", len(scrolls)),
			zap.Error(err),
		)
	}
}

// flushIfActive flushes only when the user interacted recently enough for the
// batch to be worth sending
func (r *recorder) flushIfActive(ctx context.Context, window time.Duration) {
	if !r.enabled.Load() {
		return
	}
	if r.clock.Now().Sub(r.session.LastActivity(ctx)) > window {
		return
	}
	r.flush(ctx)
}
