package wall

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hueview/wallpaint/internal/monitoring"
	"github.com/hueview/wallpaint/internal/timeutil"
)

var (
	// ErrNotFound is returned by operations referencing an unknown entity id.
	ErrNotFound = errors.New("entity not found")

	// ErrNoSelection is returned by operations that require a selected entity
	// when nothing is selected.
	ErrNoSelection = errors.New("no entity selected")
)

// RegistryConfig holds construction parameters for EntityRegistry.
type RegistryConfig struct {
	// Filter is the observation acceptance policy applied during reconcile.
	Filter FilterConfig
	// Clock is optional; if nil, the real clock is used. Tests inject a
	// mock clock.
	Clock timeutil.Clock
}

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Considered       int  // observations in the batch
	Filtered         int  // rejected by the acceptance policy
	Created          int  // new entities
	Updated          int  // existing entities refreshed
	Removed          int  // entities absent from the accepted set
	SelectionCleared bool // removal included the selected entity
}

// EntityRegistry owns the map from tracking identifier to WallEntity. It
// reconciles the live entity set against observation batches and exposes
// thread-safe query and mutation operations.
//
// All mutations happen under a single mutex so no partial reconciliation
// state is ever visible: a pass either completes or the prior entity set
// remains authoritative. Events are published after the critical section, in
// the order the pass produced them.
type EntityRegistry struct {
	mu         sync.RWMutex
	entities   map[string]*WallEntity
	selectedID string

	filter    FilterConfig
	clock     timeutil.Clock
	observers *observerList
}

// NewEntityRegistry creates an empty registry with the given configuration.
func NewEntityRegistry(cfg RegistryConfig) *EntityRegistry {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &EntityRegistry{
		entities:  make(map[string]*WallEntity),
		filter:    cfg.Filter,
		clock:     clock,
		observers: newObserverList(),
	}
}

// Attach registers an event sink under the given id. Events are delivered in
// attachment order.
func (r *EntityRegistry) Attach(id string, sink EventSink) error {
	return r.observers.attach(id, sink)
}

// Detach removes a previously attached sink.
func (r *EntityRegistry) Detach(id string) error {
	return r.observers.detach(id)
}

// accepts applies the observation acceptance policy. Rejection is not an
// error: filtering is policy, not fault.
func (r *EntityRegistry) accepts(obs SurfaceObservation, ref Transform) bool {
	if obs.Alignment != AlignmentVertical {
		return false
	}
	if obs.Extent.Width < r.filter.MinSize || obs.Extent.Height < r.filter.MinSize {
		return false
	}
	if !obs.Pose.IsValid() {
		monitoring.Logf("registry: dropping observation %s: invalid pose transform", obs.ID)
		return false
	}
	if obs.Pose.DistanceTo(ref) > r.filter.MaxDistance {
		return false
	}
	return true
}

// Reconcile diffs the entity set against one observation batch.
//
// Accepted observations with a new id create an entity (entity_detected);
// accepted observations with a known id replace its geometry
// (entity_updated); entities absent from the accepted set are removed
// (entity_removed), clearing the selection first if the removed entity was
// selected so consumers never observe a removal of a still-selected entity.
//
// Duplicate ids within one batch are last-write-wins. Callers must serialize
// Reconcile invocations; the UpdateThrottler's worker goroutine does so.
func (r *EntityRegistry) Reconcile(batch []SurfaceObservation, ref Transform) ReconcileStats {
	now := r.clock.Now()
	stats := ReconcileStats{Considered: len(batch)}

	r.mu.Lock()

	// Accepted set with last-write-wins for duplicate ids.
	accepted := make(map[string]SurfaceObservation)
	for _, obs := range batch {
		if r.accepts(obs, ref) {
			accepted[obs.ID] = obs
		}
	}
	stats.Filtered = len(batch) - len(accepted)

	var events []Event

	// Creates and updates in batch order, each id processed once.
	processed := make(map[string]bool)
	for _, raw := range batch {
		obs, ok := accepted[raw.ID]
		if !ok || processed[raw.ID] {
			continue
		}
		processed[raw.ID] = true

		if e, ok := r.entities[obs.ID]; ok {
			e.Geometry = Geometry{Extent: obs.Extent, Pose: obs.Pose}
			e.LastUpdatedAt = now
			stats.Updated++
			snap := e.snapshot()
			events = append(events, Event{Kind: EventEntityUpdated, Entity: &snap, At: now})
		} else {
			e := &WallEntity{
				ID:            obs.ID,
				Geometry:      Geometry{Extent: obs.Extent, Pose: obs.Pose},
				Finish:        FinishMatte,
				History:       NewColorHistory(),
				DetectedAt:    now,
				LastUpdatedAt: now,
			}
			r.entities[obs.ID] = e
			stats.Created++
			snap := e.snapshot()
			events = append(events, Event{Kind: EventEntityDetected, Entity: &snap, At: now})
		}
	}

	// Removals: every entity whose id is absent from the accepted set.
	var stale []string
	for id := range r.entities {
		if _, ok := accepted[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		events = append(events, r.removeLocked(id, now, &stats.SelectionCleared)...)
		stats.Removed++
	}

	r.mu.Unlock()

	r.observers.publish(events)
	return stats
}

// removeLocked deletes one entity, clearing the selection first when needed.
// The returned events preserve the clear-before-remove ordering.
func (r *EntityRegistry) removeLocked(id string, now time.Time, cleared *bool) []Event {
	e, ok := r.entities[id]
	if !ok {
		return nil
	}
	var events []Event
	if r.selectedID == id {
		e.Selected = false
		r.selectedID = ""
		if cleared != nil {
			*cleared = true
		}
		events = append(events, Event{Kind: EventSelectionChanged, At: now})
	}
	delete(r.entities, id)
	events = append(events, Event{Kind: EventEntityRemoved, EntityID: id, At: now})
	return events
}

// Get returns a snapshot of the entity with the given id.
func (r *EntityRegistry) Get(id string) (EntitySnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok {
		return EntitySnapshot{}, false
	}
	return e.snapshot(), true
}

// All returns snapshots of every entity, ordered by id.
func (r *EntityRegistry) All() []EntitySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EntitySnapshot, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live entities.
func (r *EntityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// RegistryStats summarizes the live entity set.
type RegistryStats struct {
	Entities int            `json:"entities"`
	Selected bool           `json:"selected"`
	Painted  int            `json:"painted"`
	ByFinish map[Finish]int `json:"by_finish"`
}

// Stats returns counts over the live entity set.
func (r *EntityRegistry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := RegistryStats{
		Entities: len(r.entities),
		Selected: r.selectedID != "",
		ByFinish: make(map[Finish]int),
	}
	for _, e := range r.entities {
		if _, ok := e.History.Current(); ok {
			st.Painted++
		}
		st.ByFinish[e.Finish]++
	}
	return st
}

// Population returns the entity count and whether one entity is selected,
// read under a single lock acquisition.
func (r *EntityRegistry) Population() (count int, selected bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities), r.selectedID != ""
}

// Remove deletes an entity outside of reconciliation (e.g. session reset).
// The same selection-clearing ordering as reconciliation applies.
func (r *EntityRegistry) Remove(id string) error {
	now := r.clock.Now()
	r.mu.Lock()
	if _, ok := r.entities[id]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	events := r.removeLocked(id, now, nil)
	r.mu.Unlock()

	r.observers.publish(events)
	return nil
}

// Clear removes every entity, clearing the selection first.
func (r *EntityRegistry) Clear() {
	now := r.clock.Now()
	r.mu.Lock()
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var events []Event
	for _, id := range ids {
		events = append(events, r.removeLocked(id, now, nil)...)
	}
	r.mu.Unlock()

	r.observers.publish(events)
}

// select and the color operations below share the registry mutex with
// reconciliation, so a caller observes either the pre- or post-reconciliation
// state, never a mix.

// selectEntity marks the target entity selected, deselecting any previous
// one. Only the final state is published: no intermediate cleared event.
func (r *EntityRegistry) selectEntity(id string) error {
	now := r.clock.Now()
	r.mu.Lock()
	e, ok := r.entities[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if r.selectedID == id {
		r.mu.Unlock()
		return nil
	}
	if prev, ok := r.entities[r.selectedID]; ok {
		prev.Selected = false
	}
	e.Selected = true
	r.selectedID = id
	r.mu.Unlock()

	r.observers.publish([]Event{{Kind: EventSelectionChanged, SelectedID: id, At: now}})
	return nil
}

// deselect clears the current selection. Returns false if nothing was
// selected.
func (r *EntityRegistry) deselect() bool {
	now := r.clock.Now()
	r.mu.Lock()
	if r.selectedID == "" {
		r.mu.Unlock()
		return false
	}
	if e, ok := r.entities[r.selectedID]; ok {
		e.Selected = false
	}
	r.selectedID = ""
	r.mu.Unlock()

	r.observers.publish([]Event{{Kind: EventSelectionChanged, At: now}})
	return true
}

// selected returns a snapshot of the currently selected entity.
func (r *EntityRegistry) selected() (EntitySnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[r.selectedID]
	if !ok {
		return EntitySnapshot{}, false
	}
	return e.snapshot(), true
}

// mutateSelected runs fn against the selected entity under the registry
// mutex and publishes an entity_updated event when fn reports a change.
func (r *EntityRegistry) mutateSelected(fn func(e *WallEntity) bool) (EntitySnapshot, error) {
	now := r.clock.Now()
	r.mu.Lock()
	e, ok := r.entities[r.selectedID]
	if !ok {
		r.mu.Unlock()
		return EntitySnapshot{}, ErrNoSelection
	}
	changed := fn(e)
	if changed {
		e.LastUpdatedAt = now
	}
	snap := e.snapshot()
	r.mu.Unlock()

	if changed {
		r.observers.publish([]Event{{Kind: EventEntityUpdated, Entity: &snap, At: now}})
	}
	return snap, nil
}

// ApplyColorToSelected records a color on the selected entity's history.
func (r *EntityRegistry) ApplyColorToSelected(c Color) (EntitySnapshot, error) {
	return r.mutateSelected(func(e *WallEntity) bool {
		if cur, ok := e.History.Current(); ok && cur == c {
			return false
		}
		e.History.Apply(c)
		return true
	})
}

// UndoColorOnSelected steps the selected entity's color history back.
func (r *EntityRegistry) UndoColorOnSelected() (bool, error) {
	var undone bool
	_, err := r.mutateSelected(func(e *WallEntity) bool {
		undone = e.History.Undo()
		return undone
	})
	return undone, err
}

// RedoColorOnSelected steps the selected entity's color history forward.
func (r *EntityRegistry) RedoColorOnSelected() (bool, error) {
	var redone bool
	_, err := r.mutateSelected(func(e *WallEntity) bool {
		redone = e.History.Redo()
		return redone
	})
	return redone, err
}

// SetFinishOnSelected sets the paint finish of the selected entity.
func (r *EntityRegistry) SetFinishOnSelected(f Finish) (EntitySnapshot, error) {
	if !ValidFinish(f) {
		return EntitySnapshot{}, errors.New("unknown finish: " + string(f))
	}
	return r.mutateSelected(func(e *WallEntity) bool {
		if e.Finish == f {
			return false
		}
		e.Finish = f
		return true
	})
}

// publishSession routes a session state change through the registry's
// observer list so consumers see one ordered event stream.
func (r *EntityRegistry) publishSession(s SessionState) {
	state := s
	r.observers.publish([]Event{{Kind: EventSessionChanged, Session: &state, At: r.clock.Now()}})
}
