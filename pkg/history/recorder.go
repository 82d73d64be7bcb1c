package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/ports"
)

// DefaultDelay is the coalescing window used when no delay is configured.
const DefaultDelay = 500 * time.Millisecond

// Recorder turns a stream of editor events into history entries.
//
// Events outside the history-worthy set are dropped. Worthy events arm a
// single shared timer (trailing-edge debounce): a new event replaces the
// pending one, and when the window elapses without further events the
// recorder reads the live graph once and appends one snapshot tagged with
// the last event kind.
type Recorder struct {
	source ports.GraphSource
	store  ports.HistoryStore

	delay     time.Duration
	scheduler ports.Scheduler
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
	onAppend  func(domain.Snapshot)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   ports.Timer
	pending domain.EventKind
	armed   bool
	gen     uint64
	closed  bool

	// appending is held across the closed check and the store append, so
	// Close can wait out an append already in flight.
	appending sync.Mutex
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithDelay sets the coalescing window. Non-positive values keep the default.
func WithDelay(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.delay = d
		}
	}
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s ports.Scheduler) Option {
	return func(r *Recorder) {
		r.scheduler = s
	}
}

// WithClock sets the function used to stamp CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithLogger configures a logger for the Recorder.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithOnAppend registers a callback invoked after each successful append.
// It runs on the capture goroutine and must not call back into the recorder.
func WithOnAppend(fn func(domain.Snapshot)) Option {
	return func(r *Recorder) {
		r.onAppend = fn
	}
}

// NewRecorder creates a Recorder reading from source and appending to store.
func NewRecorder(source ports.GraphSource, store ports.HistoryStore, opts ...Option) *Recorder {
	r := &Recorder{
		source:    source,
		store:     store,
		delay:     DefaultDelay,
		scheduler: WallClock{},
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Delay returns the coalescing window.
func (r *Recorder) Delay() time.Duration {
	return r.delay
}

// Record registers an editor event. It never blocks on I/O and never fails:
// UI-only kinds are ignored, worthy kinds (re)schedule a capture.
func (r *Recorder) Record(kind domain.EventKind) {
	if !domain.IsHistoryWorthy(kind) {
		r.metrics.observeEvent(kind, outcomeIgnored)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.metrics.observeEvent(kind, outcomeIgnored)
		return
	}

	if r.armed {
		r.timer.Stop()
		r.metrics.observeSuperseded()
	}
	r.gen++
	gen := r.gen
	r.pending = kind
	r.armed = true
	r.timer = r.scheduler.AfterFunc(r.delay, func() {
		r.fire(gen)
	})
	r.metrics.observeEvent(kind, outcomeScheduled)
	r.logger.Debug("History capture scheduled", "event", kind, "delay", r.delay)
}

// Pending reports the kind of the capture waiting for its window to elapse.
func (r *Recorder) Pending() (domain.EventKind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.armed
}

// Flush commits the pending capture immediately instead of waiting for the
// window. It returns true if a snapshot was appended.
func (r *Recorder) Flush() bool {
	r.mu.Lock()
	if !r.armed || r.closed {
		r.mu.Unlock()
		return false
	}
	r.timer.Stop()
	kind := r.take()
	r.mu.Unlock()

	return r.capture(kind)
}

// Close discards any pending capture and stops the recorder.
// Later calls to Record are ignored. Close is idempotent.
//
// A capture that already read the graph is abandoned. Once Close returns no
// further entry reaches the store. Close must not be called from inside the
// store's Append.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.armed {
		r.timer.Stop()
		r.logger.Debug("History capture discarded on close", "event", r.pending)
		r.metrics.observeDiscarded()
		r.take()
	}
	r.cancel()
	r.mu.Unlock()

	r.appending.Lock()
	// Wait out an append that passed the closed check before we set it.
	r.appending.Unlock()
}

// fire is the timer callback. A callback whose generation was superseded
// (its timer could not be stopped in time) is a no-op.
func (r *Recorder) fire(gen uint64) {
	r.mu.Lock()
	if r.closed || !r.armed || gen != r.gen {
		r.mu.Unlock()
		return
	}
	kind := r.take()
	r.mu.Unlock()

	r.capture(kind)
}

func (r *Recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// take clears the pending state. Caller holds r.mu.
func (r *Recorder) take() domain.EventKind {
	kind := r.pending
	r.pending = ""
	r.armed = false
	r.timer = nil
	r.gen++
	return kind
}

func (r *Recorder) capture(kind domain.EventKind) bool {
	graph, err := r.source.Graph(r.ctx)
	if err != nil {
		// The editor went away mid-window. Treat as cancellation.
		if errors.Is(err, domain.ErrSourceUnavailable) || errors.Is(err, context.Canceled) {
			r.logger.Debug("History capture abandoned", "event", kind, "err", err)
		} else {
			r.logger.Warn("History capture abandoned: graph read failed", "event", kind, "err", err)
		}
		r.metrics.observeAbandoned()
		return false
	}

	r.appending.Lock()
	if r.isClosed() {
		r.appending.Unlock()
		r.logger.Debug("History capture abandoned: recorder closed", "event", kind)
		r.metrics.observeAbandoned()
		return false
	}
	stored, err := r.store.Append(r.ctx, domain.NewSnapshot(kind, graph, r.now()))
	r.appending.Unlock()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.logger.Debug("History capture abandoned", "event", kind, "err", err)
			r.metrics.observeAbandoned()
			return false
		}
		r.logger.Warn("History append failed", "event", kind, "err", err)
		r.metrics.observeFailed()
		return false
	}

	r.metrics.observeCapture(kind)
	r.logger.Debug("History entry appended", "event", kind, "seq", stored.Seq,
		"nodes", len(stored.Nodes), "edges", len(stored.Edges))

	if r.onAppend != nil {
		r.onAppend(stored)
	}
	return true
}
