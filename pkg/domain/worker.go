package domain

import "time"

// WorkerState is one step of the worker lifecycle state machine.
type WorkerState string

const (
	// StateStarting covers spawn until the worker reports readiness.
	StateStarting WorkerState = "starting"
	// StateServing means the worker is accepting connections from the shared socket.
	StateServing WorkerState = "serving"
	// StateDraining means the worker finishes in-flight requests but accepts no new ones.
	StateDraining WorkerState = "draining"
	// StateTerminated is the terminal state; the worker is gone and will not return.
	StateTerminated WorkerState = "terminated"
	// StateCrashed means the worker exited outside of a drain.
	StateCrashed WorkerState = "crashed"
	// StateRestarting covers the backoff wait and respawn after a crash.
	StateRestarting WorkerState = "restarting"
)

// transitions enumerates the legal moves of the lifecycle machine.
// starting -> serving -> (draining -> terminated) | (crashed -> restarting -> serving)
var transitions = map[WorkerState][]WorkerState{
	StateStarting:   {StateServing, StateCrashed, StateDraining},
	StateServing:    {StateDraining, StateCrashed},
	StateDraining:   {StateTerminated},
	StateCrashed:    {StateRestarting, StateTerminated},
	StateRestarting: {StateServing, StateCrashed, StateTerminated},
	StateTerminated: nil,
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s WorkerState) CanTransition(next WorkerState) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is the end of the lifecycle.
func (s WorkerState) Terminal() bool {
	return s == StateTerminated
}

// WorkerStatus is a point-in-time snapshot of one supervised worker.
type WorkerStatus struct {
	ID       string      `json:"id"`
	PID      int         `json:"pid,omitempty"`
	State    WorkerState `json:"state"`
	Restarts int         `json:"restarts"`
	Since    time.Time   `json:"since"`
}
