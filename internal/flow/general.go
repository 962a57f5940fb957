package flow

import (
	"sort"

	"github.com/petrijr/flume/pkg/api"
)

// groupState tracks one input group inside the general controller.
type groupState struct {
	id     int
	inputs []Input
	depth  int
}

// queued returns the total number of packets buffered across the group.
func (g *groupState) queued() int {
	n := 0
	for _, in := range g.inputs {
		n += in.Len()
	}
	return n
}

// heads classifies the packets at the head of every input of the group.
func (g *groupState) heads() (kind PacketKind, uniform, complete bool) {
	complete = true
	for i, in := range g.inputs {
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

// controlHeads reports whether every input of the group has a control
// marker at its head.
func (g *groupState) controlHeads() bool {
	for _, in := range g.inputs {
		pk, ok := in.Head()
		if !ok || !pk.Kind.Control() {
			return false
		}
	}
	return true
}

// relation is one parent/child ordering contract with its boundary cursor.
type relation struct {
	parent, child int
	strict        bool

	// childBoundaries counts end boundaries seen on the child group since
	// the last parent boundary.
	childBoundaries int
}

// generalController serves operations whose connected inputs span multiple
// groups with parent/child relationships. It keeps a per-group cursor over
// boundary markers and enforces strict lockstep where declared.
type generalController struct {
	op     string
	groups map[int]*groupState

	// order is the round service order: non-negative ids ascending, then
	// negative ids. boundaryOrder places child groups before their
	// parents so that a parent boundary is never consumed while its
	// children still owe theirs.
	order         []int
	boundaryOrder []int

	relations []*relation

	active  int
	pending *Round
	events  []api.SyncEvent
}

func newGeneralController(op string, inputs []Input, declared []api.GroupRelation) *generalController {
	groups := make(map[int]*groupState)
	var ids []int
	for _, in := range inputs {
		g, ok := groups[in.GroupID()]
		if !ok {
			g = &groupState{id: in.GroupID()}
			groups[in.GroupID()] = g
			ids = append(ids, in.GroupID())
		}
		g.inputs = append(g.inputs, in)
	}

	var relations []*relation
	if len(declared) > 0 {
		for _, r := range declared {
			if groups[r.Parent] == nil || groups[r.Child] == nil {
				continue
			}
			relations = append(relations, &relation{parent: r.Parent, child: r.Child, strict: r.Strict})
		}
	} else {
		// No declared relations: chain non-negative groups with loose
		// relations in order of ascending id. Negative groups stay
		// independent.
		var nonNeg []int
		for _, id := range ids {
			if id >= 0 {
				nonNeg = append(nonNeg, id)
			}
		}
		sort.Ints(nonNeg)
		for i := 0; i+1 < len(nonNeg); i++ {
			relations = append(relations, &relation{parent: nonNeg[i], child: nonNeg[i+1]})
		}
	}

	c := &generalController{
		op:        op,
		groups:    groups,
		order:     serviceOrder(ids),
		relations: relations,
	}
	c.boundaryOrder = c.childFirstOrder()
	if len(c.order) > 0 {
		c.active = c.order[0]
	}
	return c
}

// childFirstOrder orders group ids so every child group precedes its
// parents. Groups outside any relation keep their service-order position.
func (c *generalController) childFirstOrder() []int {
	indeg := make(map[int]int, len(c.groups))
	for id := range c.groups {
		indeg[id] = 0
	}
	// An edge child -> parent; parents come out after their children.
	for _, r := range c.relations {
		indeg[r.parent]++
	}
	out := make([]int, 0, len(c.groups))
	remaining := len(c.groups)
	for remaining > 0 {
		progress := false
		for _, id := range c.order {
			if d, ok := indeg[id]; ok && d == 0 {
				out = append(out, id)
				delete(indeg, id)
				remaining--
				progress = true
				for _, r := range c.relations {
					if r.child == id {
						indeg[r.parent]--
					}
				}
			}
		}
		if !progress {
			// Relation cycle; fall back to service order for the rest.
			for _, id := range c.order {
				if _, ok := indeg[id]; ok {
					out = append(out, id)
				}
			}
			break
		}
	}
	return out
}

// settled reports whether g's end boundary may be consumed: every strict
// child that still owes a boundary for the current parent cycle must have
// drained its queue first, so that an in-flight child boundary is not
// misread as an underrun.
func (c *generalController) settled(g *groupState) bool {
	for _, r := range c.relations {
		if r.parent != g.id || !r.strict {
			continue
		}
		child := c.groups[r.child]
		if r.childBoundaries == 0 && child != nil && child.queued() > 0 {
			return false
		}
	}
	return true
}

// boundaryCandidate returns the first group whose head markers should be
// consumed next, scanning children before parents. violation is true when a
// group's heads are present but mismatched.
func (c *generalController) boundaryCandidate() (g *groupState, violation bool) {
	for _, id := range c.boundaryOrder {
		grp := c.groups[id]
		kind, uniform, complete := grp.heads()
		if !complete {
			continue
		}
		if !uniform {
			// Mixed pause/stop heads are a control decision, not a
			// synchronization violation.
			if grp.controlHeads() {
				continue
			}
			return grp, true
		}
		if !kind.Boundary() {
			continue
		}
		if kind == KindEndGroup && !c.settled(grp) {
			continue
		}
		return grp, false
	}
	return nil, false
}

// controlCandidate reports whether every connected input has a control
// marker at its head. Mixed heads resolve to stop: a stop on any branch
// outranks a pause on another, so split upstream decisions cannot wedge
// the operation in a transitional state.
func (c *generalController) controlCandidate() (PacketKind, bool) {
	var kind PacketKind
	for _, g := range c.groups {
		for _, in := range g.inputs {
			pk, ok := in.Head()
			if !ok || !pk.Kind.Control() {
				return 0, false
			}
			if kind == 0 || pk.Kind == KindStop {
				kind = pk.Kind
			}
		}
	}
	return kind, kind != 0
}

func (c *generalController) IsReady() Readiness {
	for _, id := range c.order {
		kind, uniform, complete := c.groups[id].heads()
		if complete && uniform && kind == KindObject {
			return Readiness{Action: ProcessRound, Group: id}
		}
	}
	if g, _ := c.boundaryCandidate(); g != nil {
		return Readiness{Action: Synchronize, Group: g.id}
	}
	if kind, ok := c.controlCandidate(); ok {
		if kind == KindPause {
			return Readiness{Action: PauseReached}
		}
		return Readiness{Action: StopReached}
	}
	return Readiness{Action: NotReady}
}

func (c *generalController) PrepareRound() *Round {
	if c.pending != nil {
		return c.pending
	}
	for _, id := range c.order {
		g := c.groups[id]
		kind, uniform, complete := g.heads()
		if !complete || !uniform || kind != KindObject {
			continue
		}
		objects := make(map[string]any, len(g.inputs))
		for _, in := range g.inputs {
			pk, _ := in.Pop()
			objects[in.Name()] = pk.Value
		}
		c.active = id
		c.pending = &Round{Group: id, Objects: objects}
		return c.pending
	}
	return nil
}

func (c *generalController) FinishRound() { c.pending = nil }

func (c *generalController) ActiveGroup() int { return c.active }

func (c *generalController) ConsumeBoundary() error {
	g, violation := c.boundaryCandidate()
	if g == nil {
		return nil
	}
	if violation {
		return &api.SynchronizationError{
			Op:          c.op,
			ParentGroup: g.id,
			ChildGroup:  g.id,
			Reason:      "inputs in the same group received mismatched object/boundary sequences",
		}
	}
	kind, _, _ := g.heads()
	for _, in := range g.inputs {
		in.Pop()
	}

	if kind == KindStartGroup {
		g.depth++
		c.events = append(c.events, api.SyncEvent{Type: api.StartInput, GroupID: g.id, Depth: g.depth})
		return nil
	}

	// End boundary: advance this group's cursor against its parents.
	for _, r := range c.relations {
		if r.child != g.id {
			continue
		}
		r.childBoundaries++
		if r.strict && r.childBoundaries > 1 {
			return &api.SynchronizationError{
				Op:          c.op,
				ParentGroup: r.parent,
				ChildGroup:  r.child,
				Reason:      "child group reached a second boundary before its parent's boundary",
			}
		}
	}
	// Then close the cycle for this group's own children.
	for _, r := range c.relations {
		if r.parent != g.id {
			continue
		}
		if r.strict && r.childBoundaries != 1 {
			return &api.SynchronizationError{
				Op:          c.op,
				ParentGroup: r.parent,
				ChildGroup:  r.child,
				Reason:      "parent group reached a boundary without a matching child boundary",
			}
		}
		r.childBoundaries = 0
	}

	if g.depth > 0 {
		g.depth--
	}
	c.events = append(c.events, api.SyncEvent{Type: api.EndInput, GroupID: g.id, Depth: g.depth})
	return nil
}

func (c *generalController) ConsumeControl() (PacketKind, bool) {
	kind, ok := c.controlCandidate()
	if !ok {
		return 0, false
	}
	for _, g := range c.groups {
		for _, in := range g.inputs {
			in.Pop()
		}
	}
	return kind, true
}

func (c *generalController) TakeSyncEvents() []api.SyncEvent {
	sent := c.events
	c.events = nil
	return sent
}

func (c *generalController) Reset() {
	for _, g := range c.groups {
		g.depth = 0
	}
	for _, r := range c.relations {
		r.childBoundaries = 0
	}
	c.pending = nil
	c.events = nil
	if len(c.order) > 0 {
		c.active = c.order[0]
	}
}
