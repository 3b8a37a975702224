package wall

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hueview/wallpaint/internal/timeutil"
)

func testClock() *timeutil.MockClock {
	return timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func newTestRegistry(t *testing.T) (*EntityRegistry, *eventRecorder) {
	t.Helper()
	r := NewEntityRegistry(RegistryConfig{Filter: DefaultFilterConfig(), Clock: testClock()})
	rec := &eventRecorder{}
	if err := r.Attach("test-recorder", rec.sink); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	return r, rec
}

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) sink(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// vertObs builds an accepted vertical observation at the given distance from
// the origin along x.
func vertObs(id string, w, h, dist float64) SurfaceObservation {
	return SurfaceObservation{
		ID:        id,
		Alignment: AlignmentVertical,
		Extent:    Extent{Width: w, Height: h},
		Pose:      translated(dist, 0, 0),
	}
}

func TestReconcileDetects(t *testing.T) {
	r, rec := newTestRegistry(t)

	stats := r.Reconcile([]SurfaceObservation{vertObs("A", 1.0, 2.0, 2.0)}, IdentityTransform())

	if stats.Created != 1 || stats.Updated != 0 || stats.Removed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entity, got %d", r.Len())
	}

	events := rec.all()
	if len(events) != 1 || events[0].Kind != EventEntityDetected {
		t.Fatalf("expected one detected event, got %v", rec.kinds())
	}
	if events[0].Entity == nil || events[0].Entity.ID != "A" {
		t.Errorf("detected event carries wrong entity: %+v", events[0].Entity)
	}
	if events[0].Entity.Finish != FinishMatte {
		t.Errorf("new entity should default to matte, got %s", events[0].Entity.Finish)
	}
}

func TestReconcileUpdatesGeometry(t *testing.T) {
	r, rec := newTestRegistry(t)

	r.Reconcile([]SurfaceObservation{vertObs("A", 1.0, 2.0, 2.0)}, IdentityTransform())
	rec.reset()

	stats := r.Reconcile([]SurfaceObservation{vertObs("A", 1.5, 2.5, 3.0)}, IdentityTransform())
	if stats.Created != 0 || stats.Updated != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	snap, ok := r.Get("A")
	if !ok {
		t.Fatal("entity A missing")
	}
	if snap.Geometry.Extent != (Extent{Width: 1.5, Height: 2.5}) {
		t.Errorf("geometry not replaced: %+v", snap.Geometry.Extent)
	}
	if got := rec.kinds(); len(got) != 1 || got[0] != EventEntityUpdated {
		t.Errorf("expected one updated event, got %v", got)
	}
}

func TestReconcileRemovesAbsent(t *testing.T) {
	r, rec := newTestRegistry(t)

	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2), vertObs("B", 1, 2, 2)}, IdentityTransform())
	rec.reset()

	stats := r.Reconcile([]SurfaceObservation{vertObs("B", 1, 2, 2)}, IdentityTransform())
	if stats.Removed != 1 {
		t.Errorf("expected 1 removal, got %+v", stats)
	}
	if _, ok := r.Get("A"); ok {
		t.Error("entity A should be gone")
	}
	if _, ok := r.Get("B"); !ok {
		t.Error("entity B should survive")
	}

	events := rec.all()
	var removed bool
	for _, ev := range events {
		if ev.Kind == EventEntityRemoved && ev.EntityID == "A" {
			removed = true
		}
	}
	if !removed {
		t.Errorf("missing removed event for A: %v", rec.kinds())
	}
}

// TestReconcileFilters checks that observations failing the acceptance
// policy never produce detected or updated events.
func TestReconcileFilters(t *testing.T) {
	cases := []struct {
		name string
		obs  SurfaceObservation
	}{
		{"horizontal", SurfaceObservation{
			ID: "H", Alignment: AlignmentHorizontal,
			Extent: Extent{Width: 1, Height: 2}, Pose: translated(2, 0, 0),
		}},
		{"other alignment", SurfaceObservation{
			ID: "O", Alignment: AlignmentOther,
			Extent: Extent{Width: 1, Height: 2}, Pose: translated(2, 0, 0),
		}},
		{"width below floor", vertObs("W", 0.3, 2.0, 2.0)},
		{"height below floor", vertObs("X", 2.0, 0.3, 2.0)},
		{"both below floor", vertObs("S", 0.3, 0.3, 2.0)},
		{"beyond distance ceiling", vertObs("F", 1.0, 2.0, 8.0)},
		{"invalid pose", SurfaceObservation{
			ID: "P", Alignment: AlignmentVertical,
			Extent: Extent{Width: 1, Height: 2}, Pose: Transform{},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, rec := newTestRegistry(t)
			stats := r.Reconcile([]SurfaceObservation{tc.obs}, IdentityTransform())

			if stats.Filtered != 1 {
				t.Errorf("expected 1 filtered, got %+v", stats)
			}
			if r.Len() != 0 {
				t.Errorf("registry should stay empty, has %d", r.Len())
			}
			if len(rec.all()) != 0 {
				t.Errorf("no events expected, got %v", rec.kinds())
			}
		})
	}
}

func TestReconcileDuplicateIDsLastWriteWins(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Reconcile([]SurfaceObservation{
		vertObs("A", 1.0, 1.0, 1.0),
		vertObs("A", 2.0, 3.0, 1.0),
	}, IdentityTransform())

	if r.Len() != 1 {
		t.Fatalf("duplicate ids must collapse to one entity, got %d", r.Len())
	}
	snap, _ := r.Get("A")
	if snap.Geometry.Extent != (Extent{Width: 2.0, Height: 3.0}) {
		t.Errorf("expected last observation to win, got %+v", snap.Geometry.Extent)
	}
}

// TestRemovalClearsSelectionFirst checks the ordering invariant: when the
// selected entity disappears from a batch, a selection_changed event with no
// selection is observable before the corresponding entity_removed event.
func TestRemovalClearsSelectionFirst(t *testing.T) {
	r, rec := newTestRegistry(t)

	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
	if err := r.selectEntity("A"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	rec.reset()

	stats := r.Reconcile(nil, IdentityTransform())
	if !stats.SelectionCleared {
		t.Error("stats should report selection cleared")
	}

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", rec.kinds())
	}
	if events[0].Kind != EventSelectionChanged || events[0].SelectedID != "" {
		t.Errorf("first event should clear selection, got %+v", events[0])
	}
	if events[1].Kind != EventEntityRemoved || events[1].EntityID != "A" {
		t.Errorf("second event should remove A, got %+v", events[1])
	}
	if _, ok := r.selected(); ok {
		t.Error("selection should be empty after removal")
	}
}

func TestUniquenessAcrossReconciles(t *testing.T) {
	r, _ := newTestRegistry(t)

	for i := 0; i < 10; i++ {
		r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
		if r.Len() != 1 {
			t.Fatalf("pass %d: expected exactly one entity for id A, got %d", i, r.Len())
		}
	}
}

func TestRegistryRemove(t *testing.T) {
	r, rec := newTestRegistry(t)

	if err := r.Remove("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
	r.selectEntity("A")
	rec.reset()

	if err := r.Remove("A"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if got := rec.kinds(); len(got) != 2 || got[0] != EventSelectionChanged || got[1] != EventEntityRemoved {
		t.Errorf("explicit removal must clear selection first, got %v", got)
	}
}

func TestRegistryClear(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Reconcile([]SurfaceObservation{
		vertObs("A", 1, 2, 2), vertObs("B", 1, 2, 2), vertObs("C", 1, 2, 2),
	}, IdentityTransform())
	r.selectEntity("B")

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	if _, ok := r.selected(); ok {
		t.Error("selection should be cleared")
	}
}

func TestSingleSelectionInvariant(t *testing.T) {
	r, rec := newTestRegistry(t)

	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2), vertObs("B", 1, 2, 2)}, IdentityTransform())
	rec.reset()

	if err := r.selectEntity("A"); err != nil {
		t.Fatalf("select A failed: %v", err)
	}
	if err := r.selectEntity("B"); err != nil {
		t.Fatalf("select B failed: %v", err)
	}

	selectedCount := 0
	for _, snap := range r.All() {
		if snap.Selected {
			selectedCount++
			if snap.ID != "B" {
				t.Errorf("wrong entity selected: %s", snap.ID)
			}
		}
	}
	if selectedCount != 1 {
		t.Errorf("expected exactly 1 selected entity, got %d", selectedCount)
	}

	// Only final selection states are published: one event per select call,
	// no intermediate cleared event when switching A -> B.
	got := rec.kinds()
	want := []EventKind{EventSelectionChanged, EventSelectionChanged}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("selection events mismatch (-want +got):\n%s", diff)
	}
	events := rec.all()
	if events[0].SelectedID != "A" || events[1].SelectedID != "B" {
		t.Errorf("unexpected selection payloads: %+v", events)
	}
}

func TestSelectSameEntityIsNoOp(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
	r.selectEntity("A")
	rec.reset()

	if err := r.selectEntity("A"); err != nil {
		t.Fatalf("reselect failed: %v", err)
	}
	if len(rec.all()) != 0 {
		t.Errorf("reselecting the selected entity should publish nothing, got %v", rec.kinds())
	}
}

func TestColorOpsRequireSelection(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())

	if _, err := r.ApplyColorToSelected(Color{R: 1}); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
	if _, err := r.UndoColorOnSelected(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
	if _, err := r.RedoColorOnSelected(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
	if _, err := r.SetFinishOnSelected(FinishGloss); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
}

func TestColorApplyUndoRedoOnSelected(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
	r.selectEntity("A")
	rec.reset()

	red := Color{R: 0xff}
	blue := Color{B: 0xff}

	snap, err := r.ApplyColorToSelected(red)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if snap.Color == nil || *snap.Color != red {
		t.Errorf("expected red, got %v", snap.Color)
	}

	r.ApplyColorToSelected(blue)

	undone, err := r.UndoColorOnSelected()
	if err != nil || !undone {
		t.Fatalf("undo failed: %v %v", undone, err)
	}
	snap, _ = r.Get("A")
	if snap.Color == nil || *snap.Color != red {
		t.Errorf("after undo expected red, got %v", snap.Color)
	}

	redone, err := r.RedoColorOnSelected()
	if err != nil || !redone {
		t.Fatalf("redo failed: %v %v", redone, err)
	}
	snap, _ = r.Get("A")
	if snap.Color == nil || *snap.Color != blue {
		t.Errorf("after redo expected blue, got %v", snap.Color)
	}

	// Each effective mutation publishes an updated event.
	for _, k := range rec.kinds() {
		if k != EventEntityUpdated {
			t.Errorf("unexpected event kind %s", k)
		}
	}
	if len(rec.all()) != 4 {
		t.Errorf("expected 4 updated events, got %d", len(rec.all()))
	}
}

func TestIdempotentApplyPublishesNothing(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
	r.selectEntity("A")

	red := Color{R: 0xff}
	r.ApplyColorToSelected(red)
	rec.reset()

	if _, err := r.ApplyColorToSelected(red); err != nil {
		t.Fatalf("idempotent apply errored: %v", err)
	}
	if len(rec.all()) != 0 {
		t.Errorf("idempotent apply should publish nothing, got %v", rec.kinds())
	}
}

func TestSetFinish(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
	r.selectEntity("A")

	snap, err := r.SetFinishOnSelected(FinishGloss)
	if err != nil {
		t.Fatalf("set finish failed: %v", err)
	}
	if snap.Finish != FinishGloss {
		t.Errorf("expected gloss, got %s", snap.Finish)
	}

	if _, err := r.SetFinishOnSelected("chrome"); err == nil {
		t.Error("expected error for unknown finish")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())

	a, _ := r.Get("A")
	a.Geometry.Extent.Width = 99
	a.Finish = FinishGloss

	b, _ := r.Get("A")
	if b.Geometry.Extent.Width == 99 || b.Finish == FinishGloss {
		t.Error("mutating a snapshot leaked into the registry")
	}

	all1 := r.All()
	all2 := r.All()
	if diff := cmp.Diff(all1, all2); diff != "" {
		t.Errorf("repeated All() calls differ (-first +second):\n%s", diff)
	}
}

func TestPopulation(t *testing.T) {
	r, _ := newTestRegistry(t)

	if n, sel := r.Population(); n != 0 || sel {
		t.Errorf("expected empty population, got %d %v", n, sel)
	}

	r.Reconcile([]SurfaceObservation{vertObs("A", 1, 2, 2)}, IdentityTransform())
	r.selectEntity("A")

	if n, sel := r.Population(); n != 1 || !sel {
		t.Errorf("expected 1 selected, got %d %v", n, sel)
	}
}

func TestStats(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Reconcile([]SurfaceObservation{
		vertObs("A", 1, 2, 2),
		vertObs("B", 1, 2, 3),
		vertObs("C", 1, 2, 4),
	}, IdentityTransform())
	r.selectEntity("A")
	r.ApplyColorToSelected(Color{R: 0xff})
	r.SetFinishOnSelected(FinishGloss)

	st := r.Stats()
	want := RegistryStats{
		Entities: 3,
		Selected: true,
		Painted:  1,
		ByFinish: map[Finish]int{FinishGloss: 1, FinishMatte: 2},
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}
