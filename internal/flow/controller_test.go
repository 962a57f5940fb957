package flow

import (
	"testing"

	"github.com/petrijr/flume/pkg/api"
)

// queueInput is a scripted Input backed by a slice.
type queueInput struct {
	name  string
	group int
	pkts  []Packet
}

func (q *queueInput) Name() string { return q.name }
func (q *queueInput) GroupID() int { return q.group }

func (q *queueInput) Head() (Packet, bool) {
	if len(q.pkts) == 0 {
		return Packet{}, false
	}
	return q.pkts[0], true
}

func (q *queueInput) Pop() (Packet, bool) {
	if len(q.pkts) == 0 {
		return Packet{}, false
	}
	pk := q.pkts[0]
	q.pkts = q.pkts[1:]
	return pk, true
}

func (q *queueInput) Len() int { return len(q.pkts) }

func (q *queueInput) push(pks ...Packet) { q.pkts = append(q.pkts, pks...) }

func TestSourceControllerIsAlwaysReady(t *testing.T) {
	c := New("src", nil, nil)

	r := c.IsReady()
	if r.Action != ProcessRound || r.Group != 0 {
		t.Fatalf("expected ProcessRound for group 0, got %+v", r)
	}

	round := c.PrepareRound()
	if round == nil || len(round.Objects) != 0 {
		t.Fatalf("expected an empty round, got %+v", round)
	}
	if again := c.PrepareRound(); again != round {
		t.Fatalf("PrepareRound is not idempotent before FinishRound")
	}
	c.FinishRound()
}

func TestOneInputObjectsProduceRounds(t *testing.T) {
	in := &queueInput{name: "in", group: 0}
	c := New("op", []Input{in}, nil)

	if r := c.IsReady(); r.Action != NotReady {
		t.Fatalf("expected NotReady on empty input, got %+v", r)
	}

	in.push(Object("a"), Object("b"))

	if r := c.IsReady(); r.Action != ProcessRound || r.Group != 0 {
		t.Fatalf("expected ProcessRound for group 0, got %+v", r)
	}

	round := c.PrepareRound()
	if round == nil || round.Objects["in"] != "a" {
		t.Fatalf("expected round with object a, got %+v", round)
	}
	if again := c.PrepareRound(); again != round {
		t.Fatalf("PrepareRound is not idempotent before FinishRound")
	}
	c.FinishRound()

	round = c.PrepareRound()
	if round == nil || round.Objects["in"] != "b" {
		t.Fatalf("expected round with object b, got %+v", round)
	}
	c.FinishRound()

	if r := c.IsReady(); r.Action != NotReady {
		t.Fatalf("expected NotReady after draining input, got %+v", r)
	}
}

func TestOneInputBoundariesEmitSyncEvents(t *testing.T) {
	in := &queueInput{name: "in", group: 1}
	c := New("op", []Input{in}, nil)

	in.push(Marker(KindStartGroup), Object("x"), Marker(KindEndGroup))

	if r := c.IsReady(); r.Action != Synchronize || r.Group != 1 {
		t.Fatalf("expected Synchronize for group 1, got %+v", r)
	}
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("ConsumeBoundary failed: %v", err)
	}
	sent := c.TakeSyncEvents()
	if len(sent) != 1 || sent[0].Type != api.StartInput || sent[0].Depth != 1 {
		t.Fatalf("expected one StartInput event at depth 1, got %+v", sent)
	}

	round := c.PrepareRound()
	if round == nil || round.Objects["in"] != "x" {
		t.Fatalf("expected round with object x, got %+v", round)
	}
	c.FinishRound()

	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("ConsumeBoundary failed: %v", err)
	}
	sent = c.TakeSyncEvents()
	if len(sent) != 1 || sent[0].Type != api.EndInput || sent[0].Depth != 0 {
		t.Fatalf("expected one EndInput event at depth 0, got %+v", sent)
	}

	if again := c.TakeSyncEvents(); again != nil {
		t.Fatalf("expected the event queue drained, got %+v", again)
	}
}

func TestOneInputControlMarkers(t *testing.T) {
	in := &queueInput{name: "in", group: 0}
	c := New("op", []Input{in}, nil)

	in.push(Marker(KindPause))
	if r := c.IsReady(); r.Action != PauseReached {
		t.Fatalf("expected PauseReached, got %+v", r)
	}
	kind, ok := c.ConsumeControl()
	if !ok || kind != KindPause {
		t.Fatalf("expected consumed pause marker, got %v %v", kind, ok)
	}

	in.push(Marker(KindStop))
	if r := c.IsReady(); r.Action != StopReached {
		t.Fatalf("expected StopReached, got %+v", r)
	}
	kind, ok = c.ConsumeControl()
	if !ok || kind != KindStop {
		t.Fatalf("expected consumed stop marker, got %v %v", kind, ok)
	}
}

func TestOneGroupRoundNeedsEveryInput(t *testing.T) {
	a := &queueInput{name: "a", group: 0}
	b := &queueInput{name: "b", group: 0}
	c := New("op", []Input{a, b}, nil)

	a.push(Object(1))
	if r := c.IsReady(); r.Action != NotReady {
		t.Fatalf("expected NotReady with one of two inputs filled, got %+v", r)
	}

	b.push(Object(2))
	if r := c.IsReady(); r.Action != ProcessRound || r.Group != 0 {
		t.Fatalf("expected ProcessRound for group 0, got %+v", r)
	}

	round := c.PrepareRound()
	if round == nil || round.Objects["a"] != 1 || round.Objects["b"] != 2 {
		t.Fatalf("expected one object per input, got %+v", round)
	}
	c.FinishRound()
}

func TestOneGroupMismatchedHeadsFail(t *testing.T) {
	a := &queueInput{name: "a", group: 0}
	b := &queueInput{name: "b", group: 0}
	c := New("op", []Input{a, b}, nil)

	a.push(Object(1))
	b.push(Marker(KindEndGroup))

	if r := c.IsReady(); r.Action != Synchronize {
		t.Fatalf("expected Synchronize on mismatched heads, got %+v", r)
	}
	err := c.ConsumeBoundary()
	if !api.IsSynchronizationError(err) {
		t.Fatalf("expected a SynchronizationError, got %v", err)
	}
}

func TestOneGroupMixedControlMarkersStopWins(t *testing.T) {
	a := &queueInput{name: "a", group: 0}
	b := &queueInput{name: "b", group: 0}
	c := New("op", []Input{a, b}, nil)

	// One upstream branch paused, the other stopped. Stop wins.
	a.push(Marker(KindPause))
	b.push(Marker(KindStop))

	if r := c.IsReady(); r.Action != StopReached {
		t.Fatalf("expected StopReached for mixed control heads, got %+v", r)
	}
	kind, ok := c.ConsumeControl()
	if !ok || kind != KindStop {
		t.Fatalf("expected consumed stop markers, got %v %v", kind, ok)
	}
	if a.Len() != 0 || b.Len() != 0 {
		t.Fatalf("expected both markers consumed")
	}
}

func TestGeneralStrictLockstep(t *testing.T) {
	img := &queueInput{name: "image", group: 0}
	sub := &queueInput{name: "sub", group: 1}
	rels := []api.GroupRelation{{Parent: 0, Child: 1, Strict: true}}
	c := New("op", []Input{img, sub}, rels)

	// One parent object, then a bracketed child stream, then the parent
	// boundary that closes the cycle.
	img.push(Object("P1"), Marker(KindEndGroup))
	sub.push(Marker(KindStartGroup), Object("c1"), Object("c2"), Marker(KindEndGroup))

	// Parent round first: group 0 precedes group 1 in service order.
	if r := c.IsReady(); r.Action != ProcessRound || r.Group != 0 {
		t.Fatalf("expected parent round first, got %+v", r)
	}
	round := c.PrepareRound()
	if round.Objects["image"] != "P1" {
		t.Fatalf("expected parent object P1, got %+v", round)
	}
	c.FinishRound()

	// Child start boundary.
	if r := c.IsReady(); r.Action != Synchronize || r.Group != 1 {
		t.Fatalf("expected child start boundary, got %+v", r)
	}
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("ConsumeBoundary failed: %v", err)
	}
	c.TakeSyncEvents()

	// Two child rounds.
	for _, want := range []string{"c1", "c2"} {
		if r := c.IsReady(); r.Action != ProcessRound || r.Group != 1 {
			t.Fatalf("expected child round for %s, got %+v", want, r)
		}
		round = c.PrepareRound()
		if round.Objects["sub"] != want {
			t.Fatalf("expected child object %s, got %+v", want, round)
		}
		c.FinishRound()
	}

	// Child end, then parent end: consumed child-first, no violation.
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("child end boundary failed: %v", err)
	}
	if r := c.IsReady(); r.Action != Synchronize || r.Group != 0 {
		t.Fatalf("expected parent boundary next, got %+v", r)
	}
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("parent end boundary failed: %v", err)
	}
	c.TakeSyncEvents()

	if r := c.IsReady(); r.Action != NotReady {
		t.Fatalf("expected NotReady after a full cycle, got %+v", r)
	}
}

func TestGeneralStrictChildOverrun(t *testing.T) {
	img := &queueInput{name: "image", group: 0}
	sub := &queueInput{name: "sub", group: 1}
	rels := []api.GroupRelation{{Parent: 0, Child: 1, Strict: true}}
	c := New("op", []Input{img, sub}, rels)

	// Two complete child cycles with no parent boundary in between.
	sub.push(Marker(KindStartGroup), Marker(KindEndGroup), Marker(KindStartGroup), Marker(KindEndGroup))

	for i := 0; i < 3; i++ {
		if err := c.ConsumeBoundary(); err != nil {
			t.Fatalf("boundary %d failed: %v", i, err)
		}
	}
	err := c.ConsumeBoundary()
	if !api.IsSynchronizationError(err) {
		t.Fatalf("expected a SynchronizationError on the second child end, got %v", err)
	}
}

func TestGeneralStrictParentUnderrun(t *testing.T) {
	img := &queueInput{name: "image", group: 0}
	sub := &queueInput{name: "sub", group: 1}
	rels := []api.GroupRelation{{Parent: 0, Child: 1, Strict: true}}
	c := New("op", []Input{img, sub}, rels)

	// Parent end with no child cycle at all.
	img.push(Marker(KindEndGroup))

	err := c.ConsumeBoundary()
	if !api.IsSynchronizationError(err) {
		t.Fatalf("expected a SynchronizationError on the parent end, got %v", err)
	}
}

func TestGeneralParentEndWaitsForQueuedChild(t *testing.T) {
	img := &queueInput{name: "image", group: 0}
	sub := &queueInput{name: "sub", group: 1}
	rels := []api.GroupRelation{{Parent: 0, Child: 1, Strict: true}}
	c := New("op", []Input{img, sub}, rels)

	// The parent end arrives while the child cycle is still queued. The
	// controller must service the child first instead of reporting an
	// underrun.
	img.push(Marker(KindEndGroup))
	sub.push(Marker(KindStartGroup), Marker(KindEndGroup))

	if r := c.IsReady(); r.Action != Synchronize || r.Group != 1 {
		t.Fatalf("expected the child boundary first, got %+v", r)
	}
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("child start failed: %v", err)
	}
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("child end failed: %v", err)
	}
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("parent end failed: %v", err)
	}
}

func TestGeneralLooseRelationToleratesExtraChildCycles(t *testing.T) {
	img := &queueInput{name: "image", group: 0}
	sub := &queueInput{name: "sub", group: 1}
	rels := []api.GroupRelation{{Parent: 0, Child: 1, Strict: false}}
	c := New("op", []Input{img, sub}, rels)

	sub.push(Marker(KindStartGroup), Marker(KindEndGroup), Marker(KindStartGroup), Marker(KindEndGroup))
	img.push(Marker(KindEndGroup))

	for i := 0; i < 5; i++ {
		if err := c.ConsumeBoundary(); err != nil {
			t.Fatalf("boundary %d failed under a loose relation: %v", i, err)
		}
	}
}

func TestGeneralUndeclaredRelationsDefaultLoose(t *testing.T) {
	a := &queueInput{name: "a", group: 0}
	b := &queueInput{name: "b", group: 1}
	c := New("op", []Input{a, b}, nil)

	// Mismatched cycle counts must pass when no relations were declared.
	b.push(Marker(KindStartGroup), Marker(KindEndGroup), Marker(KindStartGroup), Marker(KindEndGroup))

	for i := 0; i < 4; i++ {
		if err := c.ConsumeBoundary(); err != nil {
			t.Fatalf("boundary %d failed: %v", i, err)
		}
	}
}

func TestGeneralSmallestGroupWinsTies(t *testing.T) {
	hi := &queueInput{name: "hi", group: 2}
	lo := &queueInput{name: "lo", group: 0}
	c := New("op", []Input{hi, lo}, nil)

	hi.push(Object("h"))
	lo.push(Object("l"))

	if r := c.IsReady(); r.Action != ProcessRound || r.Group != 0 {
		t.Fatalf("expected group 0 to win the tie, got %+v", r)
	}
	round := c.PrepareRound()
	if round.Group != 0 || round.Objects["lo"] != "l" {
		t.Fatalf("expected a group 0 round, got %+v", round)
	}
	c.FinishRound()

	if r := c.IsReady(); r.Action != ProcessRound || r.Group != 2 {
		t.Fatalf("expected group 2 after group 0 drained, got %+v", r)
	}
}

func TestGeneralUngroupedServicedLast(t *testing.T) {
	free := &queueInput{name: "free", group: api.UngroupedID}
	main := &queueInput{name: "main", group: 0}
	c := New("op", []Input{free, main}, nil)

	free.push(Object("f"))
	main.push(Object("m"))

	if r := c.IsReady(); r.Group != 0 {
		t.Fatalf("expected the grouped input first, got %+v", r)
	}
	c.PrepareRound()
	c.FinishRound()

	if r := c.IsReady(); r.Action != ProcessRound || r.Group != api.UngroupedID {
		t.Fatalf("expected the ungrouped input once nothing else is ready, got %+v", r)
	}
}

func TestGeneralControlMarkersNeedEveryInput(t *testing.T) {
	a := &queueInput{name: "a", group: 0}
	b := &queueInput{name: "b", group: 1}
	c := New("op", []Input{a, b}, nil)

	a.push(Marker(KindPause))
	if r := c.IsReady(); r.Action != NotReady {
		t.Fatalf("expected NotReady until the pause reaches every input, got %+v", r)
	}

	b.push(Marker(KindPause))
	if r := c.IsReady(); r.Action != PauseReached {
		t.Fatalf("expected PauseReached, got %+v", r)
	}
	kind, ok := c.ConsumeControl()
	if !ok || kind != KindPause {
		t.Fatalf("expected consumed pause markers, got %v %v", kind, ok)
	}
	if a.Len() != 0 || b.Len() != 0 {
		t.Fatalf("expected all markers consumed")
	}
}

func TestGeneralMixedControlMarkersStopWins(t *testing.T) {
	a := &queueInput{name: "a", group: 0}
	a2 := &queueInput{name: "a2", group: 0}
	b := &queueInput{name: "b", group: 1}
	c := New("op", []Input{a, a2, b}, nil)

	// One branch paused while the others stopped, within a group and
	// across groups. Stop wins; nothing is left wedged in transition.
	a.push(Marker(KindPause))
	a2.push(Marker(KindStop))
	b.push(Marker(KindStop))

	if r := c.IsReady(); r.Action != StopReached {
		t.Fatalf("expected StopReached for mixed control heads, got %+v", r)
	}
	kind, ok := c.ConsumeControl()
	if !ok || kind != KindStop {
		t.Fatalf("expected consumed stop markers, got %v %v", kind, ok)
	}
	if a.Len() != 0 || a2.Len() != 0 || b.Len() != 0 {
		t.Fatalf("expected all markers consumed")
	}
}

func TestResetClearsCursorsAndEvents(t *testing.T) {
	in := &queueInput{name: "in", group: 0}
	c := New("op", []Input{in}, nil)

	in.push(Marker(KindStartGroup))
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("ConsumeBoundary failed: %v", err)
	}
	c.Reset()

	if sent := c.TakeSyncEvents(); sent != nil {
		t.Fatalf("expected no events after Reset, got %+v", sent)
	}

	in.push(Marker(KindStartGroup))
	if err := c.ConsumeBoundary(); err != nil {
		t.Fatalf("ConsumeBoundary failed: %v", err)
	}
	sent := c.TakeSyncEvents()
	if len(sent) != 1 || sent[0].Depth != 1 {
		t.Fatalf("expected depth to restart at 1 after Reset, got %+v", sent)
	}
}

func TestServiceOrder(t *testing.T) {
	got := serviceOrder([]int{-1, 2, 0})
	want := []int{0, 2, -1}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
