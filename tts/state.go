package tts

import "time"

// StateType represents the lifecycle state of a narration session.
type StateType int

const (
	// StateIdle indicates no narration has started yet.
	StateIdle StateType = iota
	// StateLoading indicates a session is preparing its first audio.
	StateLoading
	// StatePlaying indicates chunks are being narrated.
	StatePlaying
	// StatePaused indicates narration is held on the current chunk.
	StatePaused
	// StateCompleted indicates every chunk was narrated.
	StateCompleted
	// StateStopped indicates the session was stopped or superseded.
	StateStopped
	// StateFailed indicates every backend failed.
	StateFailed
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for states a session never leaves.
func (s StateType) IsTerminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}

// IsActive returns true while a session owns the audio output.
func (s StateType) IsActive() bool {
	return s == StateLoading || s == StatePlaying || s == StatePaused
}

// Status is a snapshot of a controller's session.
type Status struct {
	State       StateType
	Chunk       int     // Current chunk index (0-based)
	TotalChunks int     // Number of chunks in the session
	Segment     int     // Current display segment index
	Progress    float64 // Percentage, 0 to 100
	Backend     string  // Backend narrating the current chunk
	Fallback    bool    // The fallback backend has been engaged
	Elapsed     time.Duration
	Estimated   time.Duration // Estimated total duration of the script
	LastError   error
}

// StateMachine manages state transitions for a narration session.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:      {StateLoading, StateStopped},
			StateLoading:   {StatePlaying, StateStopped, StateFailed},
			StatePlaying:   {StatePaused, StateCompleted, StateStopped, StateFailed},
			StatePaused:    {StatePlaying, StateStopped, StateFailed},
			StateCompleted: {StateLoading},
			StateStopped:   {StateLoading},
			StateFailed:    {StateLoading},
		},
		onEnter: make(map[StateType]func()),
	}
}

// CanTransition reports whether moving to the given state is allowed.
func (sm *StateMachine) CanTransition(to StateType) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			return true
		}
	}
	return false
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	if !sm.CanTransition(to) {
		return false
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}
