package engine

import (
	"sync/atomic"

	"github.com/petrijr/flume/pkg/api"
)

// processor owns the threading model for one operation: it decides when and
// on which goroutine a ready round executes. Strategies are selected by the
// threadCount option at check time and are never switched while running.
type processor interface {
	// start spawns workers if the strategy has any. Called with the
	// operation's delivery mutex held.
	start()

	// receive signals that a packet was delivered to an input.
	receive()

	// wake signals a lifecycle or configuration change worth re-checking.
	wake()

	// interrupt wakes workers so they observe the interrupt flag.
	interrupt()

	// shutdown terminates workers and waits for them to drain. Called
	// without the delivery mutex.
	shutdown()

	// tick runs one round of an inline source operation.
	tick() error
}

// inlineProcessor executes rounds synchronously on whichever goroutine
// delivered the triggering input. No goroutine is created; concurrent
// deliveries are serialized by the busy flag and the process lock, not by a
// queue of their own.
type inlineProcessor struct {
	op   *operation
	busy atomic.Bool
}

func newInlineProcessor(op *operation) *inlineProcessor {
	return &inlineProcessor{op: op}
}

func (p *inlineProcessor) start() {}

func (p *inlineProcessor) receive()   { p.drive() }
func (p *inlineProcessor) wake()      { p.drive() }
func (p *inlineProcessor) interrupt() { p.drive() }
func (p *inlineProcessor) shutdown()  {}

// drive services the controller until nothing is actionable. Only one
// goroutine holds the busy flag at a time; losers return immediately and
// the winner re-checks after releasing so a delivery racing the release is
// never lost.
func (p *inlineProcessor) drive() {
	for {
		if !p.busy.CompareAndSwap(false, true) {
			return
		}
		for {
			progress, _ := p.op.serviceOne(false)
			if !progress {
				break
			}
		}
		p.busy.Store(false)
		if !p.op.pendingWork() {
			return
		}
	}
}

// tick runs exactly one round of a sourceless inline operation.
func (p *inlineProcessor) tick() error {
	if !p.busy.CompareAndSwap(false, true) {
		return api.NewStateError(p.op.name, p.op.State(), "tick busy")
	}
	_, err := p.op.serviceOne(true)
	p.busy.Store(false)
	if err != nil {
		return err
	}
	if p.op.pendingWork() {
		p.drive()
	}
	return nil
}
