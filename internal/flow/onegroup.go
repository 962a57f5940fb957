package flow

import "github.com/petrijr/flume/pkg/api"

// oneGroupController serves operations whose connected inputs all share a
// single group: a round is ready when every input has a pending object, and
// boundary markers pass through unmodified.
type oneGroupController struct {
	op     string
	group  int
	inputs []Input

	depth   int
	pending *Round
	events  []api.SyncEvent
}

// headKinds classifies the packets at the head of every input. uniform is
// true when all inputs have a head of the same kind.
func (c *oneGroupController) headKinds() (kind PacketKind, uniform, complete bool) {
	complete = true
	for i, in := range c.inputs {
		pk, ok := in.Head()
		if !ok {
			return 0, false, false
		}
		if i == 0 {
			kind = pk.Kind
			uniform = true
			continue
		}
		if pk.Kind != kind {
			uniform = false
		}
	}
	return kind, uniform, complete
}

// controlHeads reports whether every input has a control marker at its
// head. Mixed heads resolve to stop: a stop on any branch outranks a
// pause on another.
func (c *oneGroupController) controlHeads() (PacketKind, bool) {
	var kind PacketKind
	for _, in := range c.inputs {
		pk, ok := in.Head()
		if !ok || !pk.Kind.Control() {
			return 0, false
		}
		if kind == 0 || pk.Kind == KindStop {
			kind = pk.Kind
		}
	}
	return kind, kind != 0
}

func (c *oneGroupController) IsReady() Readiness {
	kind, uniform, complete := c.headKinds()
	if !complete {
		return Readiness{Action: NotReady}
	}
	if !uniform {
		if kind, ok := c.controlHeads(); ok {
			if kind == KindPause {
				return Readiness{Action: PauseReached}
			}
			return Readiness{Action: StopReached}
		}
		// Heads disagree: one input ran ahead of its siblings. Surfaced
		// as a Synchronize action so ConsumeBoundary can report it.
		return Readiness{Action: Synchronize, Group: c.group}
	}
	switch kind {
	case KindObject:
		return Readiness{Action: ProcessRound, Group: c.group}
	case KindStartGroup, KindEndGroup:
		return Readiness{Action: Synchronize, Group: c.group}
	case KindPause:
		return Readiness{Action: PauseReached}
	case KindStop:
		return Readiness{Action: StopReached}
	}
	return Readiness{Action: NotReady}
}

func (c *oneGroupController) PrepareRound() *Round {
	if c.pending != nil {
		return c.pending
	}
	kind, uniform, complete := c.headKinds()
	if !complete || !uniform || kind != KindObject {
		return nil
	}
	objects := make(map[string]any, len(c.inputs))
	for _, in := range c.inputs {
		pk, _ := in.Pop()
		objects[in.Name()] = pk.Value
	}
	c.pending = &Round{Group: c.group, Objects: objects}
	return c.pending
}

func (c *oneGroupController) FinishRound() { c.pending = nil }

func (c *oneGroupController) ActiveGroup() int { return c.group }

func (c *oneGroupController) ConsumeBoundary() error {
	kind, uniform, complete := c.headKinds()
	if !complete {
		return nil
	}
	if !uniform {
		if _, ok := c.controlHeads(); ok {
			return nil
		}
		return &api.SynchronizationError{
			Op:          c.op,
			ParentGroup: c.group,
			ChildGroup:  c.group,
			Reason:      "inputs in the same group received mismatched object/boundary sequences",
		}
	}
	if !kind.Boundary() {
		return nil
	}
	for _, in := range c.inputs {
		in.Pop()
	}
	if kind == KindStartGroup {
		c.depth++
		c.events = append(c.events, api.SyncEvent{Type: api.StartInput, GroupID: c.group, Depth: c.depth})
		return nil
	}
	if c.depth > 0 {
		c.depth--
	}
	c.events = append(c.events, api.SyncEvent{Type: api.EndInput, GroupID: c.group, Depth: c.depth})
	return nil
}

func (c *oneGroupController) ConsumeControl() (PacketKind, bool) {
	kind, ok := c.controlHeads()
	if !ok {
		return 0, false
	}
	for _, in := range c.inputs {
		in.Pop()
	}
	return kind, true
}

func (c *oneGroupController) TakeSyncEvents() []api.SyncEvent {
	sent := c.events
	c.events = nil
	return sent
}

func (c *oneGroupController) Reset() {
	c.depth = 0
	c.pending = nil
	c.events = nil
}
