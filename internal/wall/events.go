package wall

import (
	"errors"
	"sync"
	"time"
)

// EventKind identifies the variant carried by an Event.
type EventKind string

const (
	EventEntityDetected   EventKind = "entity_detected"
	EventEntityUpdated    EventKind = "entity_updated"
	EventEntityRemoved    EventKind = "entity_removed"
	EventSelectionChanged EventKind = "selection_changed"
	EventSessionChanged   EventKind = "session_changed"
)

// Event is one notification published by the core. Only the fields relevant
// to the Kind are populated:
//
//	entity_detected/entity_updated: Entity
//	entity_removed:                 EntityID
//	selection_changed:              SelectedID ("" when cleared)
//	session_changed:                Session
type Event struct {
	Kind       EventKind       `json:"kind"`
	Entity     *EntitySnapshot `json:"entity,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	SelectedID string          `json:"selected_id,omitempty"`
	Session    *SessionState   `json:"session,omitempty"`
	At         time.Time       `json:"at"`
}

var (
	// ErrObserverExists is returned when Attach is called with a duplicate id.
	ErrObserverExists = errors.New("observer id already exists")

	// ErrObserverNotFound is returned when Detach is called with an unknown id.
	ErrObserverNotFound = errors.New("observer id not found")
)

// EventSink receives core events. Sinks are invoked synchronously, in
// attachment order, after the critical section that produced the events has
// completed; a sink must not block for long or call back into mutating
// operations from inside itself.
type EventSink func(Event)

// observerList is an explicit subscription list with defined delivery
// ordering. Events produced by a single pass are delivered in the order the
// pass produced them, and for each event sinks run in attachment order.
type observerList struct {
	mu    sync.Mutex
	order []string
	sinks map[string]EventSink
}

func newObserverList() *observerList {
	return &observerList{sinks: make(map[string]EventSink)}
}

func (l *observerList) attach(id string, sink EventSink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sinks[id]; ok {
		return ErrObserverExists
	}
	l.sinks[id] = sink
	l.order = append(l.order, id)
	return nil
}

func (l *observerList) detach(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sinks[id]; !ok {
		return ErrObserverNotFound
	}
	delete(l.sinks, id)
	for i, o := range l.order {
		if o == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// publish delivers events to all sinks. The sink list is copied under the
// lock so sinks run without holding it.
func (l *observerList) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	sinks := make([]EventSink, 0, len(l.order))
	for _, id := range l.order {
		sinks = append(sinks, l.sinks[id])
	}
	l.mu.Unlock()

	for _, ev := range events {
		for _, sink := range sinks {
			sink(ev)
		}
	}
}
