package engine

import (
	"github.com/petrijr/flume/internal/flow"
	"github.com/petrijr/flume/pkg/api"
)

// inputPort is a named, typed-by-convention input endpoint. Its queue is
// guarded by the owning operation's delivery mutex.
type inputPort struct {
	op       *operation
	name     string
	group    int
	optional bool

	producer *outputPort
	queue    []flow.Packet
}

var _ api.InputPort = (*inputPort)(nil)
var _ flow.Input = (*inputPort)(nil)

func (p *inputPort) Operation() string { return p.op.name }
func (p *inputPort) Name() string      { return p.name }
func (p *inputPort) GroupID() int      { return p.group }

func (p *inputPort) Connected() bool {
	p.op.mu.Lock()
	defer p.op.mu.Unlock()
	return p.producer != nil
}

// connectedLocked is the lock-free variant for Check and the controller.
func (p *inputPort) connectedLocked() bool { return p.producer != nil }

func (p *inputPort) Head() (flow.Packet, bool) {
	if len(p.queue) == 0 {
		return flow.Packet{}, false
	}
	return p.queue[0], true
}

func (p *inputPort) Pop() (flow.Packet, bool) {
	if len(p.queue) == 0 {
		return flow.Packet{}, false
	}
	pk := p.queue[0]
	p.queue = p.queue[1:]
	return pk, true
}

func (p *inputPort) Len() int { return len(p.queue) }

// outputPort is a named output endpoint. One output may feed many inputs.
type outputPort struct {
	op        *operation
	name      string
	consumers []*inputPort
}

var _ api.OutputPort = (*outputPort)(nil)

func (p *outputPort) Operation() string { return p.op.name }
func (p *outputPort) Name() string      { return p.name }

func (p *outputPort) Connected() bool {
	p.op.mu.Lock()
	defer p.op.mu.Unlock()
	return len(p.consumers) > 0
}

// send delivers a packet to every connected downstream input. Safe to call
// from any goroutine; it never blocks beyond downstream lock acquisition.
func (p *outputPort) send(pk flow.Packet) {
	for _, in := range p.consumers {
		in.op.deliver(in, pk)
	}
}

// Connect wires an output to an input. Both operations must be stopped;
// connections may only be rebuilt while the owning operations are not
// running. A connected input always has exactly one producing output.
func Connect(out api.OutputPort, in api.InputPort) error {
	o, ok := out.(*outputPort)
	if !ok {
		return api.NewConfigurationError("connect", "output port %q was not created by this engine", out.Name())
	}
	i, ok := in.(*inputPort)
	if !ok {
		return api.NewConfigurationError("connect", "input port %q was not created by this engine", in.Name())
	}

	first, second := o.op, i.op
	if first == second {
		return connectLocked(o, i)
	}
	// Lock both operations in a stable order to avoid deadlock.
	if first.id > second.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()
	return connectBothLocked(o, i)
}

func connectLocked(o *outputPort, i *inputPort) error {
	o.op.mu.Lock()
	defer o.op.mu.Unlock()
	return connectBothLocked(o, i)
}

func connectBothLocked(o *outputPort, i *inputPort) error {
	if !o.op.stateVal.Resting() || !i.op.stateVal.Resting() {
		return api.NewStateError(i.op.name, i.op.stateVal, "connect ports of")
	}
	if i.producer != nil {
		return api.NewConfigurationError(i.op.name, "input %q is already connected to %s.%s",
			i.name, i.producer.op.name, i.producer.name)
	}
	i.producer = o
	o.consumers = append(o.consumers, i)
	// Structural change: both ends must be checked again before starting.
	o.op.checked = false
	i.op.checked = false
	return nil
}

// Disconnect removes the connection feeding the given input. Both ends must
// be stopped or paused.
func Disconnect(in api.InputPort) error {
	i, ok := in.(*inputPort)
	if !ok {
		return api.NewConfigurationError("disconnect", "input port %q was not created by this engine", in.Name())
	}
	i.op.mu.Lock()
	o := i.producer
	i.op.mu.Unlock()
	if o == nil {
		return nil
	}

	first, second := o.op, i.op
	if first != second {
		if first.id > second.id {
			first, second = second, first
		}
		first.mu.Lock()
		defer first.mu.Unlock()
		second.mu.Lock()
		defer second.mu.Unlock()
	} else {
		first.mu.Lock()
		defer first.mu.Unlock()
	}

	if !i.op.stateVal.Resting() || !o.op.stateVal.Resting() {
		return api.NewStateError(i.op.name, i.op.stateVal, "disconnect ports of")
	}
	if i.producer != o {
		// Re-check after re-locking; the connection may have been rebuilt.
		return nil
	}
	i.producer = nil
	i.queue = nil
	for n, c := range o.consumers {
		if c == i {
			o.consumers = append(o.consumers[:n], o.consumers[n+1:]...)
			break
		}
	}
	o.op.checked = false
	i.op.checked = false
	return nil
}
