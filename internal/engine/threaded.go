package engine

import (
	"sync"

	"github.com/petrijr/flume/pkg/api"
)

// threadedProcessor runs all rounds and sync callbacks of one operation on
// a single dedicated worker goroutine. Deliveries enqueue a wakeup; the
// worker loops: wait for readiness, run under a read-held process lock,
// repeat. Exactly one goroutine ever calls the operation's ProcessFunc, so
// rounds never interleave.
type threadedProcessor struct {
	op     *operation
	wakeCh chan struct{}

	// quit and running are guarded by the operation's delivery mutex.
	quit    chan struct{}
	running bool
	wg      sync.WaitGroup
}

func newThreadedProcessor(op *operation) *threadedProcessor {
	return &threadedProcessor{op: op, wakeCh: make(chan struct{}, 1)}
}

// start spawns the worker if it is not already alive. Called with the
// delivery mutex held.
func (p *threadedProcessor) start() {
	if p.running {
		p.notify()
		return
	}
	p.quit = make(chan struct{})
	p.running = true
	p.wg.Add(1)
	go p.run()
}

func (p *threadedProcessor) notify() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *threadedProcessor) receive()   { p.notify() }
func (p *threadedProcessor) wake()      { p.notify() }
func (p *threadedProcessor) interrupt() { p.notify() }

func (p *threadedProcessor) tick() error {
	return api.NewStateError(p.op.name, p.op.State(), "tick threaded")
}

func (p *threadedProcessor) shutdown() {
	p.op.mu.Lock()
	running := p.running
	quit := p.quit
	p.op.mu.Unlock()
	if !running {
		return
	}
	close(quit)
	p.wg.Wait()
}

func (p *threadedProcessor) run() {
	defer p.wg.Done()
	for {
		for {
			progress, _ := p.op.serviceOne(true)
			if !progress {
				break
			}
		}

		st := p.op.State()
		if st == api.StateStopped || st == api.StateInterrupted {
			p.exit()
			return
		}

		select {
		case <-p.wakeCh:
		case <-p.quit:
			p.exit()
			return
		}
	}
}

func (p *threadedProcessor) exit() {
	p.op.mu.Lock()
	p.running = false
	p.op.mu.Unlock()
}
