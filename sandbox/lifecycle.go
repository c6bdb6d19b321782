package sandbox

import (
	"errors"
	"fmt"
)

// State is a step of one execution.
type State string

const (
	StateCreated       State = "created"
	StateCompiling     State = "compiling"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateTimedOut      State = "timed_out"
	StateCompileFailed State = "compile_failed"
	StateRuntimeError  State = "runtime_error"
	// StateFaulted ends executions whose infrastructure failed.
	StateFaulted State = "faulted"
)

// ErrInvalidTransition is returned for moves the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	StateCreated:   {StateCompiling, StateRunning},
	StateCompiling: {StateRunning, StateCompileFailed},
	StateRunning:   {StateCompleted, StateTimedOut, StateRuntimeError},
}

// lifecycle enforces Created → Compiling? → Running → terminal. Compiling
// and Running are entered at most once and exactly one terminal state is
// reached. Not safe for concurrent use; each execution owns its own.
type lifecycle struct {
	state State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateCreated}
}

func (l *lifecycle) State() State {
	return l.state
}

func (l *lifecycle) Terminal() bool {
	_, hasNext := transitions[l.state]
	return !hasNext
}

func (l *lifecycle) transition(to State) error {
	if to == StateFaulted {
		if l.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
		}
		l.state = to
		return nil
	}

	for _, allowed := range transitions[l.state] {
		if allowed == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
}
