package flow

import "github.com/petrijr/flume/pkg/api"

// oneInputController serves operations with exactly one connected input:
// ready whenever that input has a pending object.
type oneInputController struct {
	op string
	in Input

	depth   int
	pending *Round
	events  []api.SyncEvent
}

func (c *oneInputController) IsReady() Readiness {
	pk, ok := c.in.Head()
	if !ok {
		return Readiness{Action: NotReady}
	}
	group := c.in.GroupID()
	switch pk.Kind {
	case KindObject:
		return Readiness{Action: ProcessRound, Group: group}
	case KindStartGroup, KindEndGroup:
		return Readiness{Action: Synchronize, Group: group}
	case KindPause:
		return Readiness{Action: PauseReached}
	case KindStop:
		return Readiness{Action: StopReached}
	}
	return Readiness{Action: NotReady}
}

func (c *oneInputController) PrepareRound() *Round {
	if c.pending != nil {
		return c.pending
	}
	pk, ok := c.in.Head()
	if !ok || pk.Kind != KindObject {
		return nil
	}
	c.in.Pop()
	c.pending = &Round{
		Group:   c.in.GroupID(),
		Objects: map[string]any{c.in.Name(): pk.Value},
	}
	return c.pending
}

func (c *oneInputController) FinishRound() { c.pending = nil }

func (c *oneInputController) ActiveGroup() int { return c.in.GroupID() }

func (c *oneInputController) ConsumeBoundary() error {
	pk, ok := c.in.Head()
	if !ok || !pk.Kind.Boundary() {
		return nil
	}
	c.in.Pop()
	if pk.Kind == KindStartGroup {
		c.depth++
		c.events = append(c.events, api.SyncEvent{Type: api.StartInput, GroupID: c.in.GroupID(), Depth: c.depth})
		return nil
	}
	if c.depth > 0 {
		c.depth--
	}
	c.events = append(c.events, api.SyncEvent{Type: api.EndInput, GroupID: c.in.GroupID(), Depth: c.depth})
	return nil
}

func (c *oneInputController) ConsumeControl() (PacketKind, bool) {
	pk, ok := c.in.Head()
	if !ok || !pk.Kind.Control() {
		return 0, false
	}
	c.in.Pop()
	return pk.Kind, true
}

func (c *oneInputController) TakeSyncEvents() []api.SyncEvent {
	sent := c.events
	c.events = nil
	return sent
}

func (c *oneInputController) Reset() {
	c.depth = 0
	c.pending = nil
	c.events = nil
}
