// Package flow decides, for one operation, whether a processing round is
// runnable and which synchronization events must be forwarded, given the
// packets currently queued on the operation's input ports.
//
// Four controller variants exist, chosen by New based on the connected
// inputs: a source controller (no inputs), a one-input controller, a
// one-group controller (several inputs, one group) and a general controller
// (inputs spanning related groups). Controllers never block and never touch
// locks themselves; the engine calls them under the operation's delivery
// mutex and applies their decisions under the process lock.
package flow

import (
	"sort"

	"github.com/petrijr/flume/pkg/api"
)

// Action tells the processor what the controller wants done next.
type Action int

const (
	// NotReady means no decision can be made with the packets at hand.
	NotReady Action = iota
	// ProcessRound means a round is runnable for Readiness.Group.
	ProcessRound
	// Synchronize means boundary markers are at the head of a group and
	// must be consumed via ConsumeBoundary.
	Synchronize
	// PauseReached means pause markers are at the head of every connected
	// input; the operation may complete its transition to Paused.
	PauseReached
	// StopReached is the stop analogue of PauseReached.
	StopReached
)

// Readiness is the result of a pure, non-blocking readiness check.
type Readiness struct {
	Action Action
	Group  int
}

// Round holds the objects claimed from the active input group for one
// execution of the operation's processing logic.
type Round struct {
	Group   int
	Objects map[string]any
}

// Controller decides round readiness and boundary propagation for one
// operation.
type Controller interface {
	// IsReady inspects the queued packets and reports what can happen
	// next. It never blocks and never mutates controller state.
	IsReady() Readiness

	// PrepareRound claims the objects for the ready round and returns it.
	// Idempotent: repeated calls before FinishRound return the same round.
	// Returns nil if no round is ready.
	PrepareRound() *Round

	// FinishRound marks the claimed round as executed.
	FinishRound()

	// ActiveGroup returns the group of the round most recently prepared.
	// Meaningful only when groups cannot all proceed independently.
	ActiveGroup() int

	// ConsumeBoundary consumes the boundary markers IsReady reported,
	// updates group cursors, and queues the resulting sync events. It
	// fails with a SynchronizationError when a strict parent/child
	// invariant is violated.
	ConsumeBoundary() error

	// ConsumeControl consumes the pause or stop markers IsReady reported
	// and returns their kind.
	ConsumeControl() (PacketKind, bool)

	// TakeSyncEvents drains the queued boundary events in order. The
	// caller runs the sync callbacks and forwards matching markers
	// downstream without holding the delivery mutex.
	TakeSyncEvents() []api.SyncEvent

	// Reset discards cursors, claimed rounds and queued events.
	Reset()
}

// New selects the controller variant for the given connected inputs:
// no inputs yields a source controller, one input the one-input controller,
// several inputs in a single group the one-group controller, and anything
// else the general controller. relations may be nil, in which case loose
// parent/child relations are assigned between non-negative groups in order
// of ascending id.
func New(op string, inputs []Input, relations []api.GroupRelation) Controller {
	switch {
	case len(inputs) == 0:
		return &sourceController{}
	case len(inputs) == 1:
		return &oneInputController{op: op, in: inputs[0]}
	}

	group := inputs[0].GroupID()
	oneGroup := true
	for _, in := range inputs[1:] {
		if in.GroupID() != group {
			oneGroup = false
			break
		}
	}
	if oneGroup {
		return &oneGroupController{op: op, group: group, inputs: inputs}
	}
	return newGeneralController(op, inputs, relations)
}

// sourceController serves operations with no connected inputs: every
// invocation is immediately ready.
type sourceController struct {
	pending *Round
}

func (c *sourceController) IsReady() Readiness {
	return Readiness{Action: ProcessRound, Group: 0}
}

func (c *sourceController) PrepareRound() *Round {
	if c.pending == nil {
		c.pending = &Round{Group: 0}
	}
	return c.pending
}

func (c *sourceController) FinishRound()     { c.pending = nil }
func (c *sourceController) ActiveGroup() int { return 0 }

func (c *sourceController) ConsumeBoundary() error { return nil }

func (c *sourceController) ConsumeControl() (PacketKind, bool) { return 0, false }

func (c *sourceController) TakeSyncEvents() []api.SyncEvent { return nil }

func (c *sourceController) Reset() { c.pending = nil }

// serviceOrder sorts group ids for round servicing: non-negative ids
// ascending first, then negative ids. The smallest non-negative group wins
// ties; ungrouped inputs are serviced only when nothing else is ready.
func serviceOrder(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a >= 0 && b >= 0:
			return a < b
		case a < 0 && b < 0:
			return a > b
		default:
			return a >= 0
		}
	})
	return out
}
