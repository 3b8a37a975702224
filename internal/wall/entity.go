package wall

import "time"

// Finish is the paint finish applied to a wall.
type Finish string

const (
	FinishMatte Finish = "matte"
	FinishSatin Finish = "satin"
	FinishGloss Finish = "gloss"
)

// ValidFinish reports whether f is one of the known finishes.
func ValidFinish(f Finish) bool {
	switch f {
	case FinishMatte, FinishSatin, FinishGloss:
		return true
	}
	return false
}

// Geometry is the latest reconciled extent and pose of a wall. It is replaced
// wholesale on each reconciled update.
type Geometry struct {
	Extent Extent    `json:"extent"`
	Pose   Transform `json:"pose"`
}

// WallEntity is the registry's mutable record for one tracked wall. The
// registry exclusively owns every instance; all fields are guarded by the
// registry mutex. Consumers receive EntitySnapshot copies instead.
type WallEntity struct {
	ID            string
	Geometry      Geometry
	Selected      bool
	Finish        Finish
	History       *ColorHistory
	DetectedAt    time.Time
	LastUpdatedAt time.Time
}

// snapshot returns a read-only copy safe to hand across the registry boundary.
func (e *WallEntity) snapshot() EntitySnapshot {
	s := EntitySnapshot{
		ID:              e.ID,
		Geometry:        e.Geometry,
		Selected:        e.Selected,
		Finish:          e.Finish,
		HistoryLen:      e.History.Len(),
		HistoryPosition: e.History.Position(),
		DetectedAt:      e.DetectedAt,
		LastUpdatedAt:   e.LastUpdatedAt,
	}
	if c, ok := e.History.Current(); ok {
		s.Color = &c
	}
	return s
}

// EntitySnapshot is an immutable copy of a WallEntity handed to consumers.
// Color is nil until a color has been applied (or after a full undo).
type EntitySnapshot struct {
	ID              string    `json:"id"`
	Geometry        Geometry  `json:"geometry"`
	Selected        bool      `json:"selected"`
	Color           *Color    `json:"color,omitempty"`
	Finish          Finish    `json:"finish"`
	HistoryLen      int       `json:"history_len"`
	HistoryPosition int       `json:"history_position"`
	DetectedAt      time.Time `json:"detected_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}
