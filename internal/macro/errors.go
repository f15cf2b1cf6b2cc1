package macro

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTrigger = errors.New("unknown trigger")
	ErrCyclicMacro    = errors.New("cyclic macro")
	ErrDepthExceeded  = errors.New("macro depth exceeded")
	ErrUnknownMacro   = errors.New("unknown macro")
	ErrInvalidToken   = errors.New("invalid token")
)

// CycleError reports a Call cycle found while loading the table.
type CycleError struct {
	// Path lists the macros on the cycle, first and last equal.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic macro: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicMacro
}

// ActuationError is a single failed press or release. It never aborts the
// macro that produced it.
type ActuationError struct {
	Op  Op
	Key string
	At  int
	Err error
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("%s %q (action %d): %v", e.Op, e.Key, e.At, e.Err)
}

func (e *ActuationError) Unwrap() error {
	return e.Err
}
