package api

import (
	"context"
	"time"
)

// UngroupedID is the group id of input ports that do not take part in
// group synchronization. Ungrouped inputs are serviced only when no
// non-negative group is ready.
const UngroupedID = -1

// ProcessFunc executes one round of processing for an operation. It reads
// the objects claimed for the round from r and emits results through r.
//
// Calls to ProcessFunc, SyncFunc and SetConfig are synchronized and cannot
// occur simultaneously, except that ProcessFunc may run concurrently with
// itself when the operation declares MultiThreaded capability and
// threadCount is greater than one.
//
// Returning ErrFinished stops the operation normally after forwarding a
// stop boundary downstream. Any other error is treated as an unrecoverable
// execution failure: the round is abandoned, the operation transitions to
// StateStopped and the error is surfaced to the pipeline owner.
//
// The context is cancelled when the operation is interrupted; long rounds
// should check it occasionally.
type ProcessFunc func(ctx context.Context, r Round) error

// SyncFunc is called when an input group (and all of its strict children)
// reaches a boundary. Input ports are in an undefined position when it
// runs; objects needed here must be stored by ProcessFunc. The callback
// may read the operation's state and configuration, but must not call
// SetConfig or a lifecycle method.
type SyncFunc func(ev SyncEvent)

// Round is one execution of an operation's processing logic. It gives
// ProcessFunc access to the objects claimed from the active input group and
// to the operation's outputs.
type Round interface {
	// Group returns the id of the input group being serviced. Operations
	// with zero or one input group can ignore it.
	Group() int

	// Object returns the object claimed from the named input for this
	// round. ok is false if the input is not part of the active group or
	// is not connected.
	Object(input string) (v any, ok bool)

	// Emit pushes an object to the named output, delivering it to every
	// connected downstream input.
	Emit(output string, v any) error

	// StartGroup emits a start-of-group boundary on all connected outputs.
	StartGroup() error

	// EndGroup emits an end-of-group boundary on all connected outputs.
	EndGroup() error
}

// InputSpec declares one input port of an operation.
type InputSpec struct {
	Name string

	// Group is the synchronization group id. Inputs sharing a non-negative
	// id must be jointly ready before a round runs. Use UngroupedID for
	// inputs outside group synchronization. The zero value places the
	// input in group 0.
	Group int

	// Optional inputs may be left unconnected; Check fails if a
	// non-optional input has no producer.
	Optional bool
}

// OutputSpec declares one output port of an operation.
type OutputSpec struct {
	Name string
}

// GroupRelation declares a parent/child ordering contract between two input
// groups. With Strict set, the child group must reach exactly one boundary
// per parent boundary; otherwise any number of child boundaries may occur
// between parent boundaries.
//
// When an operation's inputs span several non-negative groups and no
// relations are declared, loose relations are assigned in order of
// ascending group id magnitude.
type GroupRelation struct {
	Parent int
	Child  int
	Strict bool
}

// OperationSpec describes an operation to be built by the engine.
type OperationSpec struct {
	Name string

	Inputs    []InputSpec
	Outputs   []OutputSpec
	Relations []GroupRelation

	// Process is the round callback. Required.
	Process ProcessFunc

	// OnSync is the boundary callback. Optional; default is a no-op.
	OnSync SyncFunc

	// ThreadCount selects the threading strategy: 0 inline, 1 dedicated
	// worker, N > 1 worker pool. May later be changed through the built-in
	// "threadCount" option while the operation is Stopped or Paused.
	ThreadCount int

	// Capabilities restricts the permitted ThreadCount values. Zero means
	// Inline|SingleThreaded.
	Capabilities ThreadingCapability

	// Options are the named configuration options the operation
	// recognizes, beyond the built-in "threadCount".
	Options []ConfigOption

	// ConfigSets are named property sets applicable through Reconfigure.
	ConfigSets map[string]map[string]any
}

// InputPort is a named input endpoint of an operation.
type InputPort interface {
	Operation() string
	Name() string
	GroupID() int
	Connected() bool
}

// OutputPort is a named output endpoint of an operation.
type OutputPort interface {
	Operation() string
	Name() string
	Connected() bool
}

// Operation is one node in a processing graph: ports, configuration, a
// lifecycle state, and the synchronization machinery that decides when its
// ProcessFunc runs.
//
// Lifecycle: Check validates the port graph and installs the flow
// controller and processor; Start moves Stopped/Paused to Running; Pause
// and Stop are boundary-driven and complete only once upstream boundaries
// have propagated; Interrupt asynchronously abandons further rounds.
type Operation interface {
	// Name returns the name given in the OperationSpec.
	Name() string

	// ID returns the unique instance id assigned at construction.
	ID() string

	// State returns the current lifecycle state.
	State() State

	// Err returns the failure that stopped the operation, if any.
	Err() error

	// Input returns the named input port.
	Input(name string) (InputPort, error)

	// Output returns the named output port.
	Output(name string) (OutputPort, error)

	// Check validates the port graph, rebuilds the flow controller for the
	// current connections and installs the processor for the current
	// threadCount. With reset, buffered inputs and group cursors are
	// discarded. Must be called before Start and after any structural
	// change.
	Check(reset bool) error

	// Start moves the operation to StateRunning. Fails with a StateError
	// if Check has not been called since the last structural change.
	Start() error

	// Pause requests a boundary-driven transition to StatePaused. A pure
	// source pauses immediately; an operation with connected inputs enters
	// StatePausing until pause boundaries arrive from upstream.
	Pause() error

	// Stop requests a boundary-driven transition to StateStopped,
	// analogous to Pause.
	Stop() error

	// Interrupt asynchronously requests the processor to abandon further
	// rounds at the next safe point. It never preempts a running round and
	// does not itself change the state.
	Interrupt()

	// Tick runs exactly one round of an inline (threadCount 0) operation
	// with no connected inputs. Returns a StateError for any other
	// configuration or when the operation is not Running.
	Tick() error

	// Reconfigure applies the named property set. If the operation is
	// Paused or Stopped the set is applied immediately; if Running it is
	// queued and applied at the next safe boundary without changing the
	// externally visible state.
	Reconfigure(set string) error

	// Wait blocks until the operation reaches a resting state or the
	// timeout elapses, and reports whether it is resting.
	Wait(timeout time.Duration) bool

	// SetConfig sets the named option under a write-held process lock.
	SetConfig(name string, value any) error

	// GetConfig reads the named option under a read-held process lock.
	GetConfig(name string) (any, error)
}
