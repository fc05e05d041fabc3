package bridge

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a Manager.
type State int

const (
	StateConstructed State = iota
	StateRegistering
	StateStarting
	StateRunning
	StateDisposing
	StateDisposed
	// StateFailed is entered when registering or starting fails.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRegistering:
		return "registering"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Setup steps named by SetupError.
const (
	StepWebContext = "web context"
	// StepRegisterScheme is followed by the scheme name.
	StepRegisterScheme = "register scheme"
	// StepRegisterHandler is followed by the channel name.
	StepRegisterHandler = "register script message handler"
)

var (
	// ErrNoWebContext means the widget has no network context to register the scheme with.
	ErrNoWebContext = errors.New("widget has no web context")
	// ErrNotRunning is returned by host calls made outside the started lifetime.
	ErrNotRunning = errors.New("bridge is not running")
)

// SetupError is a fatal failure while registering the bridge with the widget.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("bridge setup failed: %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// TransitionError is a lifecycle call made from the wrong state.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s bridge in state %s", e.Op, e.State)
}
