package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/storefront/analytics/internal/domain/tracking"
	"github.com/storefront/analytics/internal/infrastructure/delivery"
	"go.uber.org/zap"
)

// BackendClient is the engine's view of the origin collector: the reliable
// envelope destination plus the session batch, export and experiment calls
type BackendClient interface {
	delivery.Destination
	SendSessionBatch(ctx context.Context, batch tracking.SessionBatch) error
	Export(ctx context.Context, req delivery.ExportRequest) ([]tracking.StoredEvent, error)
	FetchActiveExperiments(ctx context.Context) (map[string]string, error)
}

// Dependencies are the collaborators the engine is constructed over. KV and
// Backend are required; the rest degrade gracefully when absent
type Dependencies struct {
	KV      tracking.KV
	Backend BackendClient

	// WebTag and ProductTag are the opaque third-party sinks. A nil tag means
	// the SDK was never attached to the page: its destination is skipped
	WebTag     delivery.Destination
	ProductTag *delivery.ProductTag

	// Funnels defaults to a registry holding the built-in checkout funnel
	Funnels []*tracking.FunnelDescriptor

	// CartSource is the read-only cart signal used for abandonment detection
	// and cart-valued event properties. Nil disables abandonment detection
	CartSource func(ctx context.Context) tracking.CartSnapshot

	// PerfEnabled reports whether the environment exposes a timing source
	PerfEnabled bool

	Clock shared.Clock
}

// Engine is the storefront's single analytics entry point. All tracking
// methods follow the never-throws contract: they log failures and return
// nothing, so instrumentation can never break the page. The one documented
// exception is ExportAnalyticsData, a read API that reports its error
type Engine struct {
	deps   Dependencies
	config Config
	logger *zap.Logger

	fanout *delivery.Fanout
	queue  *delivery.Queue

	session     *tracking.SessionManager
	consent     *tracking.ConsentStore
	experiments *tracking.ExperimentAssignments
	history     *tracking.BrowseHistory
	funnels     *funnelTracker
	recorder    *recorder
	perf        *perfMonitor

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu             sync.Mutex
	userID         string
	segment        string
	lastAbandonFor time.Time
}

// New constructs the engine and its delivery pipeline. Events tracked before
// Init are parked in the queue and delivered in order once Init runs
func New(ctx context.Context, deps Dependencies, config Config, logger *zap.Logger) *Engine {
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	config = config.withDefaults()

	destinations := []delivery.Destination{deps.Backend}
	if deps.WebTag != nil {
		destinations = append(destinations, deps.WebTag)
	} else {
		logger.Info("web tag absent, destination skipped")
	}
	if deps.ProductTag != nil {
		destinations = append(destinations, deps.ProductTag)
	} else {
		logger.Info("product tag absent, destination skipped")
	}
	fanout := delivery.NewFanout(logger, destinations...)

	funnels := deps.Funnels
	if len(funnels) == 0 {
		funnels = []*tracking.FunnelDescriptor{tracking.CheckoutFunnel()}
	}
	registry := tracking.NewFunnelRegistry(funnels...)

	e := &Engine{
		deps:        deps,
		config:      config,
		logger:      logger,
		fanout:      fanout,
		queue:       delivery.NewQueue(fanout, config.Queue, logger),
		session:     tracking.NewSessionManager(deps.KV, deps.Clock),
		consent:     tracking.NewConsentStore(deps.KV),
		experiments: tracking.NewExperimentAssignments(ctx, deps.KV),
		history:     tracking.NewBrowseHistory(ctx, deps.KV),
		funnels:     newFunnelTracker(registry),
	}
	e.recorder = newRecorder(e.consent, e.session, deps.Backend, deps.Clock,
		config.ThrottleWindow, e.currentUserID, logger)
	e.perf = newPerfMonitor(deps.PerfEnabled, e.emit)
	e.restoreIdentity(ctx)
	return e
}

// Init starts delivery (draining parked envelopes in order), seeds experiment
// assignments from the backend and launches the periodic sweep worker.
// Idempotent
func (e *Engine) Init(ctx context.Context) {
	e.guard("init", func() {
		if !e.running.CompareAndSwap(false, true) {
			return
		}

		workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel

		parked := e.queue.Pending()
		e.queue.Start(workerCtx)
		e.seedExperiments(ctx)

		if e.consent.IsOptedIn(ctx, tracking.FeatureSessionRecording) {
			if err := e.recorder.start(ctx); err != nil {
				e.logger.Warn("recorder start failed", zap.Error(err))
			}
		}

		e.wg.Add(1)
		go e.sweepLoop(workerCtx)

		e.logger.Info("tracker engine initialized",
			zap.String("session_id", e.session.SessionID(ctx)),
			zap.Int("parked", parked),
		)
	})
}

// Shutdown runs unload semantics: a final abandonment check, cart snapshot
// persistence, a final recorder flush, then stops the workers. Envelopes still
// queued are lost with the process; unload delivery is best-effort
func (e *Engine) Shutdown(ctx context.Context) {
	e.guard("shutdown", func() {
		if !e.running.CompareAndSwap(true, false) {
			return
		}

		e.checkCartAbandonment(ctx)
		e.persistCartSnapshot(ctx)
		e.recorder.stop(ctx)

		e.cancel()
		e.wg.Wait()
		if err := e.queue.Stop(ctx); err != nil {
			e.logger.Warn("delivery queue stop timed out", zap.Error(err))
		}

		e.logger.Info("tracker engine shut down", zap.Int("undelivered", e.queue.Pending()))
	})
}

// SessionID exposes the stable session identifier
func (e *Engine) SessionID(ctx context.Context) string {
	return e.session.SessionID(ctx)
}

// SetUserID associates subsequent events with the given user and identifies
// the user to the product tag
func (e *Engine) SetUserID(ctx context.Context, userID string) {
	e.guard("set_user_id", func() {
		e.mu.Lock()
		e.userID = userID
		e.mu.Unlock()
		_ = e.deps.KV.Set(ctx, tracking.KeyUserID, userID)
		if e.deps.ProductTag != nil {
			e.deps.ProductTag.Identify(userID)
		}
	})
}

// ClearUserID drops the user association on logout and resets the product tag
func (e *Engine) ClearUserID(ctx context.Context) {
	e.guard("clear_user_id", func() {
		e.mu.Lock()
		e.userID = ""
		e.mu.Unlock()
		_ = e.deps.KV.Delete(ctx, tracking.KeyUserID)
		if e.deps.ProductTag != nil {
			e.deps.ProductTag.Reset()
		}
	})
}

// SetUserSegment stores the behavioral segment and emits the assignment event
func (e *Engine) SetUserSegment(ctx context.Context, segment string) {
	e.guard("set_user_segment", func() {
		e.mu.Lock()
		previous := e.segment
		e.segment = segment
		e.mu.Unlock()
		_ = e.deps.KV.Set(ctx, tracking.KeyUserSegment, segment)
		e.emit(ctx, tracking.KindSegmentAssigned, map[string]any{
			"segment":         segment,
			"previousSegment": previous,
		})
	})
}

// UserSegment returns the current behavioral segment, if any
func (e *Engine) UserSegment() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.segment
}

// UpdateConsentPreferences merges the given preferences and applies recorder
// transitions: granting session recording starts capture, revoking stops it
// with a final flush
func (e *Engine) UpdateConsentPreferences(ctx context.Context, preferences map[string]bool) {
	e.guard("update_consent", func() {
		merged := e.consent.Update(ctx, preferences)

		recording := merged[tracking.FeatureSessionRecording]
		switch {
		case recording && !e.recorder.isEnabled():
			if err := e.recorder.start(ctx); err != nil {
				e.logger.Warn("recorder start failed", zap.Error(err))
			}
		case !recording && e.recorder.isEnabled():
			e.recorder.stop(ctx)
		}
	})
}

// StartSessionRecording enables interaction capture. Without the session
// recording consent the call is refused and logged
func (e *Engine) StartSessionRecording(ctx context.Context) {
	e.guard("start_recording", func() {
		if err := e.recorder.start(ctx); err != nil {
			e.logger.Warn("session recording refused", zap.Error(err))
		}
	})
}

// StopSessionRecording disables capture and flushes the buffered samples
func (e *Engine) StopSessionRecording(ctx context.Context) {
	e.guard("stop_recording", func() {
		e.recorder.stop(ctx)
	})
}

// SetExperimentVariant records a local variant assignment. Local assignments
// are sticky: later backend seeds never override them
func (e *Engine) SetExperimentVariant(ctx context.Context, experimentID, variant string) {
	e.guard("set_experiment_variant", func() {
		e.experiments.Assign(ctx, experimentID, variant)
	})
}

// ExperimentVariant returns the variant assigned for an experiment, if any
func (e *Engine) ExperimentVariant(experimentID string) (string, bool) {
	return e.experiments.Variant(experimentID)
}

// TrackExperimentView emits an exposure event for an assigned experiment.
// Unassigned experiments produce nothing
func (e *Engine) TrackExperimentView(ctx context.Context, experimentID string) {
	e.guard("experiment_view", func() {
		variant, ok := e.experiments.Variant(experimentID)
		if !ok {
			return
		}
		e.emit(ctx, tracking.KindExperimentView, map[string]any{
			"experimentId": experimentID,
			"variant":      variant,
		})
	})
}

// StartFunnelTracking makes the named funnel current and reports its entry
// step. Only the current funnel's steps are matched on page views; starting a
// new funnel resets any run in progress
func (e *Engine) StartFunnelTracking(ctx context.Context, funnelID, firstStepID string) {
	e.guard("start_funnel", func() {
		obs, ok := e.funnels.start(funnelID, firstStepID)
		if !ok {
			e.logger.Warn("funnel start ignored",
				zap.String("funnel_id", funnelID),
				zap.String("step_id", firstStepID),
			)
			return
		}
		e.emitFunnelStep(ctx, obs, "")
	})
}

// ConnectExternalPlatform attaches a destination at runtime, e.g. a tag SDK
// that finished loading after the engine initialized
func (e *Engine) ConnectExternalPlatform(dest delivery.Destination) {
	e.guard("connect_platform", func() {
		e.fanout.Register(dest)
	})
}

// ExportAnalyticsData retrieves stored events from the backend. This is the
// documented exception to the never-throws contract: a read API whose caller
// needs the failure
func (e *Engine) ExportAnalyticsData(ctx context.Context, startDate, endDate string, kinds []tracking.EventKind) ([]tracking.StoredEvent, error) {
	if !e.running.Load() {
		return nil, shared.ErrEngineNotRunning
	}
	return e.deps.Backend.Export(ctx, delivery.ExportRequest{
		StartDate:  startDate,
		EndDate:    endDate,
		EventTypes: kinds,
	})
}

// RecordPageLoad reports navigation timing once the page has settled
func (e *Engine) RecordPageLoad(ctx context.Context, timing PageLoadTiming) {
	e.guard("page_load", func() {
		e.perf.recordPageLoad(ctx, timing)
	})
}

// ObserveResource reports one resource timing entry. Only fetch/XHR entries
// become API performance events
func (e *Engine) ObserveResource(ctx context.Context, entry ResourceEntry) {
	e.guard("observe_resource", func() {
		e.perf.observeResource(ctx, entry)
	})
}

// emit wraps properties into an envelope and hands it to the delivery queue.
// The current user segment is merged into every envelope so downstream
// analysis can slice any event by segment. Safe before Init: the envelope
// parks until the queue starts
func (e *Engine) emit(ctx context.Context, kind tracking.EventKind, properties map[string]any) {
	if segment := e.UserSegment(); segment != "" {
		if properties == nil {
			properties = map[string]any{}
		}
		if _, ok := properties["segment"]; !ok {
			properties["segment"] = segment
		}
	}
	env := tracking.NewEnvelope(e.deps.Clock, kind, e.session.SessionID(ctx), e.currentUserID(), properties)
	e.queue.Enqueue(env)
}

// guard runs fn under the never-throws contract: a panic anywhere below a
// tracking call is logged and swallowed so instrumentation cannot break the
// storefront
func (e *Engine) guard(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tracking call panicked",
				zap.String("op", op),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func (e *Engine) currentUserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// restoreIdentity reloads the persisted user ID and segment so a page reload
// keeps attribution
func (e *Engine) restoreIdentity(ctx context.Context) {
	if userID, err := e.deps.KV.Get(ctx, tracking.KeyUserID); err == nil {
		e.userID = userID
	}
	if segment, err := e.deps.KV.Get(ctx, tracking.KeyUserSegment); err == nil {
		e.segment = segment
	}
}

// seedExperiments merges backend assignments under local ones. A fetch failure
// is tolerated: the KV-restored assignments already loaded at construction
// keep experiments sticky offline
func (e *Engine) seedExperiments(ctx context.Context) {
	remote, err := e.deps.Backend.FetchActiveExperiments(ctx)
	if err != nil {
		e.logger.Warn("active experiment fetch failed, using stored assignments", zap.Error(err))
		return
	}
	e.experiments.Seed(ctx, remote)
}

// sweepLoop periodically checks cart abandonment and flushes the recorder
func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkCartAbandonment(ctx)
			e.recorder.flushIfActive(ctx, e.config.RecorderActivityWindow)
		}
	}
}

// checkCartAbandonment emits one abandonment event per idle period: a cart
// left open past the inactivity threshold reports abandoned once, and only
// reports again after the user comes back and goes idle again
func (e *Engine) checkCartAbandonment(ctx context.Context) {
	if e.deps.CartSource == nil {
		return
	}
	cart := e.deps.CartSource(ctx)
	if cart.Empty() {
		return
	}
	if !e.session.IsInactive(ctx, e.config.InactivityThreshold) {
		return
	}

	lastActivity := e.session.LastActivity(ctx)
	e.mu.Lock()
	alreadyReported := !lastActivity.After(e.lastAbandonFor)
	if !alreadyReported {
		e.lastAbandonFor = lastActivity
	}
	e.mu.Unlock()
	if alreadyReported {
		return
	}

	e.emit(ctx, tracking.KindCartAbandon, map[string]any{
		"cartId":    cart.CartID,
		"cartValue": cart.Value(),
		"cartSize":  cart.Size(),
		"idleSince": lastActivity.UnixMilli(),
	})
}

// persistCartSnapshot mirrors the cart signal to durable storage on unload so
// a returning visit can detect a resumed cart
func (e *Engine) persistCartSnapshot(ctx context.Context) {
	if e.deps.CartSource == nil {
		return
	}
	cart := e.deps.CartSource(ctx)
	if cart.Empty() {
		_ = e.deps.KV.Delete(ctx, tracking.KeyCartSnapshot)
		return
	}
	if raw, err := json.Marshal(cart); err == nil {
		_ = e.deps.KV.Set(ctx, tracking.KeyCartSnapshot, string(raw))
	}
}

// QueueStats exposes delivery counters for diagnostics
func (e *Engine) QueueStats() (pending int, delivered, deadLetters int64) {
	return e.queue.Pending(), e.queue.Delivered(), e.queue.DeadLetters()
}
