package wall

import (
	"errors"
	"sync"

	"github.com/hueview/wallpaint/internal/monitoring"
)

// SessionPhase is the coarse lifecycle phase exposed to the UI layer.
type SessionPhase string

const (
	PhaseInitializing  SessionPhase = "initializing"
	PhaseScanning      SessionPhase = "scanning"
	PhaseWallsDetected SessionPhase = "walls_detected"
	PhaseWallSelected  SessionPhase = "wall_selected"
	PhaseColorApplied  SessionPhase = "color_applied"
	PhaseLimited       SessionPhase = "limited"
	PhaseFailed        SessionPhase = "failed"
	PhasePaused        SessionPhase = "paused"
)

// TrackingQuality is the quality signal delivered by the tracking engine.
type TrackingQuality string

const (
	TrackingInitializing TrackingQuality = "initializing"
	TrackingNormal       TrackingQuality = "normal"
	TrackingLimited      TrackingQuality = "limited"
	TrackingUnavailable  TrackingQuality = "unavailable"
)

// ErrSessionFailed is returned by operations attempted after an unrecoverable
// session fault. Only an explicit restart leaves the failed phase.
var ErrSessionFailed = errors.New("session failed; restart required")

// SessionState is the process-wide lifecycle state. Reason carries the
// degradation reason while Phase is PhaseLimited; Err carries the fault while
// Phase is PhaseFailed.
type SessionState struct {
	Phase  SessionPhase `json:"phase"`
	Reason string       `json:"reason,omitempty"`
	Err    error        `json:"-"`
}

// Equal compares two states for transition purposes. The failure payload is
// intentionally ignored: two faults are the same coarse state for the UI even
// when the underlying errors differ. The limited reason is compared, so a
// change of degradation reason is published as a transition.
func (s SessionState) Equal(o SessionState) bool {
	return s.Phase == o.Phase && s.Reason == o.Reason
}

// SessionStateMachine derives the session phase from registry population and
// tracking-quality signals. It is safe for concurrent use; the publish sink
// is invoked outside the machine's lock.
type SessionStateMachine struct {
	mu    sync.Mutex
	state SessionState

	// populated reports the current registry population and whether an
	// entity is selected. Injected at construction so the machine never
	// reaches into the registry's internals.
	populated func() (count int, selected bool)

	// publish receives each state the machine transitions into.
	publish func(SessionState)
}

// NewSessionStateMachine creates a machine in the initializing phase.
// populated must be non-nil; publish may be nil when no consumer cares.
func NewSessionStateMachine(populated func() (int, bool), publish func(SessionState)) *SessionStateMachine {
	if publish == nil {
		publish = func(SessionState) {}
	}
	return &SessionStateMachine{
		state:     SessionState{Phase: PhaseInitializing},
		populated: populated,
		publish:   publish,
	}
}

// Current returns the current state.
func (m *SessionStateMachine) Current() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition swaps in next and publishes it if it differs from the current
// state. Callers must hold m.mu; the lock is released before publishing and
// reacquired after, matching the deferred unlock in each entry point.
func (m *SessionStateMachine) transition(next SessionState) {
	if m.state.Equal(next) {
		return
	}
	prev := m.state
	m.state = next
	monitoring.Logf("session: %s -> %s", prev.Phase, next.Phase)

	m.mu.Unlock()
	m.publish(next)
	m.mu.Lock()
}

// derive computes the phase implied by the current registry population.
func (m *SessionStateMachine) derive() SessionState {
	count, selected := m.populated()
	switch {
	case count == 0:
		return SessionState{Phase: PhaseScanning}
	case selected:
		return SessionState{Phase: PhaseWallSelected}
	default:
		return SessionState{Phase: PhaseWallsDetected}
	}
}

// active reports whether the machine is in one of the phases that track
// registry activity. Limited, failed, paused and initializing phases hold
// their state until their own exit conditions fire.
func (m *SessionStateMachine) active() bool {
	switch m.state.Phase {
	case PhaseScanning, PhaseWallsDetected, PhaseWallSelected, PhaseColorApplied:
		return true
	}
	return false
}

// Start moves initializing to scanning on successful session start.
func (m *SessionStateMachine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state.Phase {
	case PhaseFailed:
		return ErrSessionFailed
	case PhaseInitializing:
		m.transition(SessionState{Phase: PhaseScanning})
	}
	return nil
}

// NoteDetected records the registry's first detection since entering
// scanning.
func (m *SessionStateMachine) NoteDetected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhaseScanning {
		m.transition(SessionState{Phase: PhaseWallsDetected})
	}
}

// NoteSelection records a selection change. Selecting enters wallSelected;
// deselecting falls back to the state implied by the registry population.
func (m *SessionStateMachine) NoteSelection(selected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active() {
		return
	}
	if selected {
		m.transition(SessionState{Phase: PhaseWallSelected})
		return
	}
	m.transition(m.derive())
}

// NotePopulation re-derives the phase after reconciliation changed the
// entity set. An empty registry always falls back to scanning.
func (m *SessionStateMachine) NotePopulation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active() {
		return
	}
	if count, _ := m.populated(); count == 0 {
		m.transition(SessionState{Phase: PhaseScanning})
	}
}

// NoteColorApplied records a successful color apply to the selected entity.
func (m *SessionStateMachine) NoteColorApplied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhaseWallSelected || m.state.Phase == PhaseColorApplied {
		m.transition(SessionState{Phase: PhaseColorApplied})
	}
}

// SetQuality applies a tracking-quality signal. Degraded quality enters
// limited(reason) from any non-failed phase; recovery returns to the phase
// implied by the registry population.
func (m *SessionStateMachine) SetQuality(q TrackingQuality, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch q {
	case TrackingLimited, TrackingUnavailable:
		if m.state.Phase == PhaseFailed || m.state.Phase == PhasePaused {
			return
		}
		if reason == "" {
			reason = string(q)
		}
		m.transition(SessionState{Phase: PhaseLimited, Reason: reason})
	case TrackingNormal:
		if m.state.Phase == PhaseLimited {
			m.transition(m.derive())
		}
	}
}

// Fault records an unrecoverable session fault. Terminal until Restart.
func (m *SessionStateMachine) Fault(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(SessionState{Phase: PhaseFailed, Err: err})
}

// Pause records a session interruption. Not valid from failed.
func (m *SessionStateMachine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhaseFailed {
		return
	}
	m.transition(SessionState{Phase: PhasePaused})
}

// Resume leaves paused and returns to scanning.
func (m *SessionStateMachine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == PhasePaused {
		m.transition(SessionState{Phase: PhaseScanning})
	}
}

// Restart returns to initializing from any phase, including failed.
func (m *SessionStateMachine) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(SessionState{Phase: PhaseInitializing})
}
