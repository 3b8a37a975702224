package wall

import (
	"context"
	"fmt"

	"github.com/hueview/wallpaint/internal/monitoring"
)

// Controller wires the tracking feed, throttler, registry, selection and
// session machine together and exposes the command/query surface consumed by
// the UI and render collaborators. All collaborators are constructor-injected;
// there is no process-wide shared state.
type Controller struct {
	cfg       Config
	registry  *EntityRegistry
	selection *SelectionController
	session   *SessionStateMachine
	throttler *UpdateThrottler
}

// NewController builds a controller from the given configuration.
func NewController(cfg Config) (*Controller, error) {
	if cfg.ThrottleWindow == 0 {
		cfg.ThrottleWindow = DefaultThrottleWindow
	}
	if cfg.Restart == "" {
		cfg.Restart = RestartClear
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}

	c := &Controller{cfg: cfg}
	c.registry = NewEntityRegistry(RegistryConfig{Filter: cfg.Filter, Clock: cfg.Clock})
	c.selection = NewSelectionController(c.registry)
	c.session = NewSessionStateMachine(c.registry.Population, c.registry.publishSession)
	c.throttler = NewUpdateThrottler(cfg.ThrottleWindow, c.reconcile)
	return c, nil
}

// reconcile is the throttler's target. It runs on the throttler's worker
// goroutine, so passes are serialized, and drives the session machine from
// the pass outcome.
func (c *Controller) reconcile(batch []SurfaceObservation, ref Transform) {
	stats := c.registry.Reconcile(batch, ref)
	if stats.Created > 0 {
		c.session.NoteDetected()
	}
	if stats.SelectionCleared {
		c.session.NoteSelection(false)
	}
	if stats.Removed > 0 {
		c.session.NotePopulation()
	}
}

// Run starts the session and blocks running the throttler worker until the
// context is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.session.Start(); err != nil {
		return err
	}
	return c.throttler.Run(ctx)
}

// Stop halts the throttler worker. An in-flight reconciliation completes
// atomically before Stop returns.
func (c *Controller) Stop() {
	c.throttler.Stop()
}

// Inbound boundary: calls arriving from the tracking engine.

// OnObservationBatch forwards one sensor tick to the throttler. It never
// blocks the producer. Batches arriving while the session is paused or
// failed are dropped.
func (c *Controller) OnObservationBatch(batch []SurfaceObservation, ref Transform) {
	switch c.session.Current().Phase {
	case PhasePaused, PhaseFailed, PhaseInitializing:
		return
	}
	c.throttler.Submit(batch, ref)
}

// OnTrackingQualityChanged applies a tracking-quality signal from the engine.
func (c *Controller) OnTrackingQualityChanged(q TrackingQuality, reason string) {
	c.session.SetQuality(q, reason)
}

// OnSessionFault records an unrecoverable tracking fault. The session stays
// failed until Restart.
func (c *Controller) OnSessionFault(err error) {
	monitoring.Logf("controller: session fault: %v", err)
	c.throttler.Discard()
	c.session.Fault(err)
}

// Lifecycle commands.

// Pause cancels the pending throttle window and marks the session paused.
// An in-flight reconciliation still applies atomically; the next submission
// is simply never processed.
func (c *Controller) Pause() {
	c.throttler.Discard()
	c.session.Pause()
}

// Resume leaves paused and returns to scanning, clearing or preserving the
// registry per the restart policy.
func (c *Controller) Resume() {
	if c.cfg.Restart == RestartClear {
		c.registry.Clear()
	}
	c.session.Resume()
}

// Restart performs an explicit session restart, the only way out of the
// failed phase. The registry is cleared or preserved per the restart policy.
func (c *Controller) Restart() error {
	c.throttler.Discard()
	if c.cfg.Restart == RestartClear {
		c.registry.Clear()
	}
	c.session.Restart()
	return c.session.Start()
}

// Command surface.

// SelectEntity selects the entity with the given id.
// Returns ErrNotFound if no such entity exists; state is unchanged.
func (c *Controller) SelectEntity(id string) error {
	if err := c.selection.Select(id); err != nil {
		return err
	}
	c.session.NoteSelection(true)
	return nil
}

// ClearSelection deselects the current entity, if any.
func (c *Controller) ClearSelection() {
	if c.selection.Deselect() {
		c.session.NoteSelection(false)
	}
}

// ApplyColor applies a color to the selected entity.
// Returns ErrNoSelection when nothing is selected.
func (c *Controller) ApplyColor(col Color) (EntitySnapshot, error) {
	snap, err := c.registry.ApplyColorToSelected(col)
	if err != nil {
		return EntitySnapshot{}, err
	}
	c.session.NoteColorApplied()
	return snap, nil
}

// UndoColor steps the selected entity's color history back. The bool result
// is false when there was nothing to undo.
func (c *Controller) UndoColor() (bool, error) {
	return c.registry.UndoColorOnSelected()
}

// RedoColor steps the selected entity's color history forward.
func (c *Controller) RedoColor() (bool, error) {
	return c.registry.RedoColorOnSelected()
}

// SetFinish sets the paint finish on the selected entity.
func (c *Controller) SetFinish(f Finish) (EntitySnapshot, error) {
	return c.registry.SetFinishOnSelected(f)
}

// Query surface.

// ListEntities returns snapshots of every tracked wall, ordered by id.
func (c *Controller) ListEntities() []EntitySnapshot {
	return c.registry.All()
}

// GetEntity returns a snapshot of one wall.
func (c *Controller) GetEntity(id string) (EntitySnapshot, bool) {
	return c.registry.Get(id)
}

// GetSelected returns a snapshot of the selected wall, if any.
func (c *Controller) GetSelected() (EntitySnapshot, bool) {
	return c.selection.Current()
}

// Stats returns counts over the live entity set.
func (c *Controller) Stats() RegistryStats {
	return c.registry.Stats()
}

// SessionState returns the current lifecycle state.
func (c *Controller) SessionState() SessionState {
	return c.session.Current()
}

// Attach registers an event sink for entity, selection and session events.
func (c *Controller) Attach(id string, sink EventSink) error {
	return c.registry.Attach(id, sink)
}

// Detach removes a previously attached sink.
func (c *Controller) Detach(id string) error {
	return c.registry.Detach(id)
}
