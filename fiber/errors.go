package fiber

import (
	"fmt"
	"runtime/debug"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyWorking     = errors.New("fiber: should not already be working")
	ErrTooManyReRenders   = errors.New("fiber: too many re-renders, render phase updates are looping")
	ErrNestedUpdateLimit  = errors.New("fiber: maximum update depth exceeded, a component keeps scheduling updates from its commit effects")
	ErrInvalidChild       = errors.New("fiber: invalid child description")
	ErrInvalidRef         = errors.New("fiber: invalid ref")
	ErrIncompleteRoot     = errors.New("fiber: cannot commit an incomplete root")
	ErrSameTreeCommit     = errors.New("fiber: cannot commit the same tree as before")
	ErrNoSuspenseBoundary = errors.New("fiber: a component suspended while rendering, but no suspense boundary was found above it")
	ErrHookOrder          = errors.New("fiber: hooks were called in a different order than during the previous render")
	ErrInvalidHookCall    = errors.New("fiber: hooks can only be called while rendering a function component")
	ErrUnmountedRoot      = errors.New("fiber: root has been unmounted")
)

// PanicError carries a panic recovered from component code so it can be
// handled like any other render or commit failure.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fiber: panic in component: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// isContractError reports programming failures that no boundary may
// recover and that are never retried.
func isContractError(err error) bool {
	for _, target := range []error{
		ErrAlreadyWorking,
		ErrTooManyReRenders,
		ErrNestedUpdateLimit,
		ErrInvalidChild,
		ErrInvalidRef,
		ErrHookOrder,
		ErrInvalidHookCall,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// callSafely runs user code, turning a panic into a *PanicError.
func callSafely(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if contract, ok := v.(error); ok && isContractError(contract) {
				err = contract
				return
			}
			err = newPanicError(v)
		}
	}()
	return fn()
}

func appendError(errs, err error) error {
	if err == nil {
		return errs
	}
	return multierror.Append(errs, err)
}

// Wakeable is something a suspended component is waiting on. Then must
// invoke onSettled exactly once when the wait is over, from the scheduler
// goroutine. Implementations must be comparable (pointer types are).
type Wakeable interface {
	Then(onSettled func())
}

// SuspendError is returned by component code to suspend rendering until
// Wakeable settles.
type SuspendError struct {
	Wakeable Wakeable
}

func (e *SuspendError) Error() string {
	return "fiber: component suspended"
}

// Suspend returns the error a component returns to suspend on w.
func Suspend(w Wakeable) error {
	return &SuspendError{Wakeable: w}
}

func asSuspense(err error) (Wakeable, bool) {
	var s *SuspendError
	if errors.As(err, &s) && s.Wakeable != nil {
		return s.Wakeable, true
	}
	return nil, false
}
