package player

// SessionState represents the lifecycle state of a playback session.
type SessionState int

const (
	// StateIdle indicates no source is attached yet.
	StateIdle SessionState = iota
	// StateReady indicates metadata has loaded and the duration is known.
	StateReady
	// StatePlaying indicates the clock is advancing.
	StatePlaying
	// StatePaused indicates the clock is stopped mid-song.
	StatePaused
	// StateEnded indicates the clock reached the duration with no loop
	// active.
	StateEnded
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// StateMachine manages session state transitions.
type StateMachine struct {
	current     SessionState
	transitions map[SessionState][]SessionState
	onEnter     map[SessionState]func()
}

// NewStateMachine creates a state machine in StateIdle with the valid
// session transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[SessionState][]SessionState{
			StateIdle:    {StateReady},
			StateReady:   {StatePlaying},
			StatePlaying: {StatePaused, StateEnded},
			StatePaused:  {StatePlaying},
			StateEnded:   {StatePlaying},
		},
		onEnter: make(map[SessionState]func()),
	}
}

// Transition attempts to move to the given state, returning false if the
// move is not a valid session transition.
func (sm *StateMachine) Transition(to SessionState) bool {
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}
	sm.current = to
	if fn, ok := sm.onEnter[to]; ok && fn != nil {
		fn()
	}
	return true
}

// Rearm forces the machine back to StateReady from any state. Setting a new
// source re-arms the session regardless of what it was doing.
func (sm *StateMachine) Rearm() {
	sm.current = StateReady
	if fn, ok := sm.onEnter[StateReady]; ok && fn != nil {
		fn()
	}
}

// Reset forces the machine back to StateIdle, for a fresh session whose
// metadata has not loaded yet.
func (sm *StateMachine) Reset() {
	sm.current = StateIdle
}

// Current returns the current state.
func (sm *StateMachine) Current() SessionState {
	return sm.current
}

// OnEnter registers a callback invoked after entering a state.
func (sm *StateMachine) OnEnter(state SessionState, fn func()) {
	sm.onEnter[state] = fn
}
