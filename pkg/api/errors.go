package api

import (
	"errors"
	"fmt"
)

var (
	// ErrFinished is returned by a ProcessFunc to signal that the operation
	// has exhausted its input and should stop normally. The engine forwards
	// a stop boundary downstream and moves the operation to StateStopped
	// without reporting a failure.
	ErrFinished = errors.New("operation finished")

	// ErrLockTimeout indicates that the process lock could not be acquired
	// within the configured bound. It is fatal to the operation and never
	// retried.
	ErrLockTimeout = errors.New("process lock acquisition timed out")
)

// ConfigurationError reports an invalid or incomplete port/group/threading
// setup detected by Check, or an unknown configuration option name. It never
// occurs mid-run.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Op, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the named operation.
func NewConfigurationError(op, format string, args ...any) error {
	return &ConfigurationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// StateError reports an action that is illegal for the operation's current
// lifecycle state. The operation's state is unchanged.
type StateError struct {
	Op     string
	State  State
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s", e.Action, e.Op, e.State)
}

// NewStateError creates a StateError for the named operation.
func NewStateError(op string, state State, action string) error {
	return &StateError{Op: op, State: state, Action: action}
}

// IsStateError reports whether err is a StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// SynchronizationError reports a violated strict parent/child group ordering
// invariant at run time. It is fatal to the offending operation.
type SynchronizationError struct {
	Op          string
	ParentGroup int
	ChildGroup  int
	Reason      string
}

func (e *SynchronizationError) Error() string {
	return fmt.Sprintf("synchronization error in %s (parent group %d, child group %d): %s",
		e.Op, e.ParentGroup, e.ChildGroup, e.Reason)
}

// IsSynchronizationError reports whether err is a SynchronizationError.
func IsSynchronizationError(err error) bool {
	var se *SynchronizationError
	return errors.As(err, &se)
}

// ExecutionError wraps an error raised by an operation's round logic. It
// aborts only the current round; the engine then stops the operation and
// surfaces the error to the pipeline owner. The engine never retries.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error in %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError wraps err as an ExecutionError for the named operation.
func NewExecutionError(op string, err error) error {
	return &ExecutionError{Op: op, Err: err}
}

// IsExecutionError reports whether err is an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
