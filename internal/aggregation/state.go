package aggregation

import (
	"encoding/json"
	"time"
)

// State is a step of the aggregation job machine.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StatePolling   State = "polling"
	StateComplete  State = "complete"
	StateError     State = "error"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// transitions lists every legal move. Terminal states have no outgoing edges.
var transitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StatePolling, StateError, StateCancelled},
	StatePolling:  {StatePolling, StateComplete, StateError, StateTimedOut, StateCancelled},
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateError, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the machine may move from one state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is the observable state of one aggregation run.
type Job struct {
	Domain     string          `json:"domain"`
	RunID      string          `json:"run_id,omitempty"`
	State      State           `json:"state"`
	Attempts   int             `json:"attempts"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Transition describes one state change of a job.
type Transition struct {
	Domain  string
	RunID   string
	From    State
	To      State
	Attempt int
}

// TransitionObserver is notified of every state change. Implementations must not block.
type TransitionObserver interface {
	OnTransition(Transition)
}

// TransitionFunc adapts a function to TransitionObserver.
type TransitionFunc func(Transition)

func (f TransitionFunc) OnTransition(t Transition) { f(t) }

type nopTransitions struct{}

func (nopTransitions) OnTransition(Transition) {}
