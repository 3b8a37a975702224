package api

import (
	"encoding/json"
	"time"

	"github.com/hueview/wallpaint/internal/wall"
)

// eventEnvelope is the wire form of a core event. Session state is flattened
// through sessionPayload so the failure payload survives marshalling. An
// absent selected_id on a selection_changed event means the selection was
// cleared.
type eventEnvelope struct {
	Kind       string                 `json:"kind"`
	At         time.Time              `json:"at"`
	Entity     *wall.EntitySnapshot   `json:"entity,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	SelectedID string                 `json:"selected_id,omitempty"`
	Session    map[string]interface{} `json:"session,omitempty"`
}

func eventPayload(ev wall.Event) *eventEnvelope {
	env := &eventEnvelope{
		Kind:       string(ev.Kind),
		At:         ev.At,
		Entity:     ev.Entity,
		EntityID:   ev.EntityID,
		SelectedID: ev.SelectedID,
	}
	if ev.Session != nil {
		env.Session = sessionPayload(*ev.Session)
	}
	return env
}

func marshalEvent(ev wall.Event) ([]byte, error) {
	return json.Marshal(eventPayload(ev))
}
