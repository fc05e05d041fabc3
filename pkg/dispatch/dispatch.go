// Package dispatch marshals work onto the single goroutine that owns the
// browser widget.
//
// Widget, injected-script and navigation state may only be touched from the
// UI loop. A Dispatcher is handed to every component that needs to cross onto
// it; nothing reads the UI loop from ambient state.
package dispatch

import (
	"errors"
	"fmt"
)

// Dispatcher posts work to the UI loop.
type Dispatcher interface {
	// CheckAccess reports whether the caller is already running on the UI loop.
	CheckAccess() bool
	// Dispatch queues fn and returns immediately. Work posted from one caller
	// runs in posting order.
	Dispatch(fn func()) error
}

// ErrLoopClosed is returned when work is posted after the loop stopped accepting it.
var ErrLoopClosed = errors.New("dispatch: ui loop closed")

// ErrWorkFailed matches every *WorkError.
var ErrWorkFailed = errors.New("dispatch: work failed")

// Phase tells where dispatched work faulted.
type Phase string

const (
	// PhaseRun is a fault raised by the work function itself.
	PhaseRun Phase = "run"
	// PhaseAwait is a fault raised by the operation the work returned and the
	// wrapper awaited.
	PhaseAwait Phase = "await"
)

// WorkError carries a fault out of dispatched work to the awaiting caller.
type WorkError struct {
	Phase Phase
	Err   error
	// Panic holds the recovered value when the work panicked.
	Panic any
}

func (e *WorkError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("dispatched work panicked (%s): %v", e.Phase, e.Panic)
	}

	return fmt.Sprintf("dispatched work failed (%s): %v", e.Phase, e.Err)
}

func (e *WorkError) Unwrap() error {
	return e.Err
}

func (e *WorkError) Is(target error) bool {
	return target == ErrWorkFailed
}
