package engine

import (
	"sync"

	"github.com/petrijr/flume/internal/flow"
	"github.com/petrijr/flume/pkg/api"
)

// pooledProcessor runs rounds on a pool of worker goroutines. Rounds may
// execute concurrently across workers, so round-to-round ordering is
// unspecified; sync callbacks and configuration writes are still totally
// ordered with respect to all rounds, enforced by a write-held process lock
// and by waiting until no round is in flight before a boundary is serviced.
//
// Only operations declaring MultiThreaded capability reach this strategy.
// Sourceless pooled operations emit their results in arbitrary order; this
// is a documented relaxation, not a defect.
type pooledProcessor struct {
	op *operation
	n  int

	// cond shares the operation's delivery mutex. quit, inFlight and
	// workers are guarded by it.
	cond     *sync.Cond
	quit     bool
	inFlight int
	workers  int
}

func newPooledProcessor(op *operation, n int) *pooledProcessor {
	return &pooledProcessor{op: op, n: n, cond: sync.NewCond(&op.mu)}
}

// start spawns the pool if it is not already alive. Called with the
// delivery mutex held.
func (p *pooledProcessor) start() {
	if p.workers > 0 {
		p.cond.Broadcast()
		return
	}
	p.quit = false
	p.workers = p.n
	for i := 0; i < p.n; i++ {
		go p.worker()
	}
}

func (p *pooledProcessor) receive()   { p.cond.Broadcast() }
func (p *pooledProcessor) wake()      { p.cond.Broadcast() }
func (p *pooledProcessor) interrupt() { p.cond.Broadcast() }

func (p *pooledProcessor) tick() error {
	return api.NewStateError(p.op.name, p.op.State(), "tick pooled")
}

func (p *pooledProcessor) shutdown() {
	p.op.mu.Lock()
	p.quit = true
	p.cond.Broadcast()
	for p.workers > 0 {
		p.cond.Wait()
	}
	p.op.mu.Unlock()
}

func (p *pooledProcessor) worker() {
	o := p.op
	o.mu.Lock()
	defer func() {
		p.workers--
		p.cond.Broadcast()
		o.mu.Unlock()
	}()

	for {
		if p.quit {
			return
		}
		if o.interrupted.Load() {
			if p.inFlight == 0 {
				switch o.stateVal {
				case api.StateRunning, api.StateStarting, api.StatePausing, api.StateStopping, api.StatePaused:
					o.setStateLocked(api.StateInterrupted)
				}
				return
			}
			p.cond.Wait()
			continue
		}

		st := o.stateVal
		if st == api.StateStopped || st == api.StateInterrupted {
			return
		}
		if st == api.StatePaused || st == api.StateStarting {
			p.cond.Wait()
			continue
		}

		// Pure source: pause/stop complete once in-flight rounds drain.
		if !o.hasConnectedInputsLocked() && st != api.StateRunning {
			if p.inFlight > 0 {
				p.cond.Wait()
				continue
			}
			if st == api.StatePausing {
				o.setStateLocked(api.StatePaused)
				o.mu.Unlock()
				o.broadcast(flow.KindPause)
				o.mu.Lock()
				continue
			}
			o.setStateLocked(api.StateStopped)
			o.mu.Unlock()
			o.broadcast(flow.KindStop)
			o.mu.Lock()
			continue
		}

		r := o.ctrl.IsReady()
		switch r.Action {
		case flow.ProcessRound:
			fr := o.ctrl.PrepareRound()
			if fr == nil {
				p.cond.Wait()
				continue
			}
			o.ctrl.FinishRound()
			p.inFlight++
			o.mu.Unlock()

			err := o.runRound(fr)

			o.mu.Lock()
			p.inFlight--
			p.cond.Broadcast()
			o.mu.Unlock()
			o.afterRound(err)
			o.mu.Lock()

		case flow.Synchronize, flow.PauseReached, flow.StopReached:
			// Boundaries are serviced by one worker at a time, only once
			// every claimed round has finished.
			if p.inFlight > 0 {
				p.cond.Wait()
				continue
			}
			switch r.Action {
			case flow.Synchronize:
				err := o.ctrl.ConsumeBoundary()
				o.mu.Unlock()
				if err != nil {
					o.fail(err)
				} else if derr := o.deliverSyncEvents(true); derr != nil {
					o.fail(derr)
				}
				o.mu.Lock()
			case flow.PauseReached:
				o.ctrl.ConsumeControl()
				o.setStateLocked(api.StatePaused)
				o.mu.Unlock()
				o.broadcast(flow.KindPause)
				o.mu.Lock()
			case flow.StopReached:
				o.ctrl.ConsumeControl()
				o.setStateLocked(api.StateStopped)
				o.mu.Unlock()
				o.broadcast(flow.KindStop)
				o.mu.Lock()
			}

		case flow.NotReady:
			p.cond.Wait()
		}
	}
}
