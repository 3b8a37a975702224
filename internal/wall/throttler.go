package wall

import (
	"context"
	"sync"
	"time"

	"github.com/hueview/wallpaint/internal/monitoring"
	"github.com/hueview/wallpaint/internal/timeutil"
)

// DefaultThrottleWindow bounds the reconciliation rate against the sensor
// feed.
const DefaultThrottleWindow = 100 * time.Millisecond

// ReconcileFunc is the throttler's target, invoked with the most recently
// submitted batch once per throttle window.
type ReconcileFunc func(batch []SurfaceObservation, ref Transform)

// UpdateThrottler coalesces bursts of observation batches into at most one
// reconciliation per window. Submit never blocks the producer: it only
// records the latest batch. A single worker goroutine issues reconciliations,
// so passes are totally ordered and never overlap.
type UpdateThrottler struct {
	window time.Duration
	target ReconcileFunc
	clock  timeutil.Clock

	mu      sync.Mutex
	latest  []SurfaceObservation
	ref     Transform
	pending bool

	signal  chan struct{}
	running bool
	lifeMu  sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewUpdateThrottler creates a throttler with the given window. A zero or
// negative window falls back to DefaultThrottleWindow.
func NewUpdateThrottler(window time.Duration, target ReconcileFunc) *UpdateThrottler {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &UpdateThrottler{
		window: window,
		target: target,
		clock:  timeutil.RealClock{},
		signal: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Submit records the latest batch and reference pose. If no window is open
// one is opened; submissions during an open window supersede earlier ones
// rather than queue. The batch is copied so the producer may reuse its slice.
func (t *UpdateThrottler) Submit(batch []SurfaceObservation, ref Transform) {
	t.mu.Lock()
	t.latest = append(t.latest[:0:0], batch...)
	t.ref = ref
	t.pending = true
	t.mu.Unlock()

	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// Discard drops any pending batch so the next window fires empty-handed.
// Used on session pause: an in-flight reconciliation still completes
// atomically, but the next submission is not processed.
func (t *UpdateThrottler) Discard() {
	t.mu.Lock()
	t.latest = nil
	t.pending = false
	t.mu.Unlock()
}

// take claims the pending batch, if any.
func (t *UpdateThrottler) take() ([]SurfaceObservation, Transform, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pending {
		return nil, Transform{}, false
	}
	batch, ref := t.latest, t.ref
	t.latest = nil
	t.pending = false
	return batch, ref, true
}

// Run starts the worker loop. It blocks until the context is cancelled or
// Stop() is called. Returns nil on clean shutdown.
func (t *UpdateThrottler) Run(ctx context.Context) error {
	t.lifeMu.Lock()
	if t.running {
		t.lifeMu.Unlock()
		return nil // already running
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	stopCh, doneCh := t.stopCh, t.doneCh
	t.lifeMu.Unlock()

	defer func() {
		close(doneCh)
		t.lifeMu.Lock()
		t.running = false
		t.lifeMu.Unlock()
	}()

	monitoring.Logf("throttler: started, window=%v", t.window)

	timer := t.clock.NewTimer(t.window)
	if !timer.Stop() {
		<-timer.C()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-t.signal:
		}

		// Window open: coalesce submissions until it expires.
		timer.Reset(t.window)
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-stopCh:
			stopTimer(timer)
			return nil
		case <-timer.C():
		}

		if batch, ref, ok := t.take(); ok {
			t.target(batch, ref)
		}
	}
}

// Stop requests the worker to stop and waits for it to finish. Safe to call
// multiple times.
func (t *UpdateThrottler) Stop() {
	t.lifeMu.Lock()
	if !t.running {
		t.lifeMu.Unlock()
		return
	}
	select {
	case <-t.stopCh:
		// already closed
	default:
		close(t.stopCh)
	}
	doneCh := t.doneCh
	t.lifeMu.Unlock()

	<-doneCh
}

// IsRunning returns whether the worker loop is active.
func (t *UpdateThrottler) IsRunning() bool {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	return t.running
}

func stopTimer(timer timeutil.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C():
		default:
		}
	}
}
