// Package engine implements the dataflow execution core: operations with
// lifecycle states, port delivery, the process lock discipline and the
// three threading strategies. External callers use the root package, which
// re-exports pkg/api and wraps the constructors here.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/petrijr/flume/internal/flow"
	"github.com/petrijr/flume/pkg/api"
)

// failureHook lets a pipeline owner learn about operation failures.
type failureHook func(op *operation, err error)

// operation is the engine's api.Operation implementation.
type operation struct {
	id   string
	name string
	spec api.OperationSpec

	observer api.Observer
	plock    *processLock

	// mu is the delivery mutex: it guards lifecycle state, port queues,
	// the flow controller and the pending configuration sets. It is
	// distinct from the process lock, which orders rounds, sync callbacks
	// and configuration writes against each other.
	mu       sync.Mutex
	stateVal api.State
	stateCh  chan struct{}
	checked  bool
	err      error

	inputs    []*inputPort
	outputs   []*outputPort
	inByName  map[string]*inputPort
	outByName map[string]*outputPort

	ctrl flow.Controller
	proc processor

	threadCount int
	caps        api.ThreadingCapability

	options     map[string]api.ConfigOption
	configSets  map[string]map[string]any
	pendingSets []string

	interrupted atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc

	onFailure failureHook
}

var _ api.Operation = (*operation)(nil)

// NewOperation builds an operation from its spec. The observer may be nil.
func NewOperation(spec api.OperationSpec, obs api.Observer) (api.Operation, error) {
	if spec.Name == "" {
		return nil, api.NewConfigurationError("operation", "name is required")
	}
	if spec.Process == nil {
		return nil, api.NewConfigurationError(spec.Name, "a Process function is required")
	}
	if obs == nil {
		obs = api.NoopObserver{}
	}

	caps := spec.Capabilities
	if caps == 0 {
		caps = api.Inline | api.SingleThreaded
	}

	o := &operation{
		id:          uuid.NewString(),
		name:        spec.Name,
		spec:        spec,
		observer:    obs,
		plock:       newProcessLock(),
		stateVal:    api.StateStopped,
		stateCh:     make(chan struct{}),
		inByName:    make(map[string]*inputPort, len(spec.Inputs)),
		outByName:   make(map[string]*outputPort, len(spec.Outputs)),
		threadCount: spec.ThreadCount,
		caps:        caps,
		options:     make(map[string]api.ConfigOption, len(spec.Options)),
		configSets:  spec.ConfigSets,
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	for _, is := range spec.Inputs {
		if is.Name == "" {
			return nil, api.NewConfigurationError(spec.Name, "input ports must be named")
		}
		if _, dup := o.inByName[is.Name]; dup {
			return nil, api.NewConfigurationError(spec.Name, "duplicate input port %q", is.Name)
		}
		in := &inputPort{op: o, name: is.Name, group: is.Group, optional: is.Optional}
		o.inputs = append(o.inputs, in)
		o.inByName[is.Name] = in
	}
	for _, os := range spec.Outputs {
		if os.Name == "" {
			return nil, api.NewConfigurationError(spec.Name, "output ports must be named")
		}
		if _, dup := o.outByName[os.Name]; dup {
			return nil, api.NewConfigurationError(spec.Name, "duplicate output port %q", os.Name)
		}
		out := &outputPort{op: o, name: os.Name}
		o.outputs = append(o.outputs, out)
		o.outByName[os.Name] = out
	}
	for _, opt := range spec.Options {
		if opt.Name == "" || opt.Name == threadCountOption {
			return nil, api.NewConfigurationError(spec.Name, "invalid option name %q", opt.Name)
		}
		if _, dup := o.options[opt.Name]; dup {
			return nil, api.NewConfigurationError(spec.Name, "duplicate option %q", opt.Name)
		}
		o.options[opt.Name] = opt
	}

	return o, nil
}

func (o *operation) Name() string { return o.name }
func (o *operation) ID() string   { return o.id }

func (o *operation) info() api.OperationInfo {
	return api.OperationInfo{ID: o.id, Name: o.name}
}

func (o *operation) State() api.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateVal
}

func (o *operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *operation) Input(name string) (api.InputPort, error) {
	if in, ok := o.inByName[name]; ok {
		return in, nil
	}
	return nil, api.NewConfigurationError(o.name, "no input port %q", name)
}

func (o *operation) Output(name string) (api.OutputPort, error) {
	if out, ok := o.outByName[name]; ok {
		return out, nil
	}
	return nil, api.NewConfigurationError(o.name, "no output port %q", name)
}

// setStateLocked performs one lifecycle transition and releases Wait
// callers. Observer callbacks run with the delivery mutex held; observers
// must not call back into the operation.
func (o *operation) setStateLocked(to api.State) {
	if o.stateVal == to {
		return
	}
	from := o.stateVal
	o.stateVal = to
	close(o.stateCh)
	o.stateCh = make(chan struct{})
	o.observer.OnStateChange(o.info(), from, to)
}

func (o *operation) hasConnectedInputsLocked() bool {
	for _, in := range o.inputs {
		if in.connectedLocked() {
			return true
		}
	}
	return false
}

func (o *operation) isInlineSourceLocked() bool {
	return o.threadCount == 0 && !o.hasConnectedInputsLocked()
}

// Check validates the port graph, rebuilds the flow controller for the
// current connections and installs the processor for the current
// threadCount. Any previously built controller is discarded.
func (o *operation) Check(reset bool) error {
	o.mu.Lock()
	if !o.stateVal.Resting() {
		o.mu.Unlock()
		return api.NewStateError(o.name, o.stateVal, "check")
	}

	for _, in := range o.inputs {
		if !in.optional && !in.connectedLocked() {
			o.mu.Unlock()
			return api.NewConfigurationError(o.name, "required input %q is not connected", in.name)
		}
	}
	if !o.caps.Allows(o.threadCount) {
		o.mu.Unlock()
		return api.NewConfigurationError(o.name,
			"threadCount %d is outside the operation's threading capabilities", o.threadCount)
	}
	declared := make(map[int]bool, len(o.inputs))
	for _, in := range o.inputs {
		declared[in.group] = true
	}
	for _, r := range o.spec.Relations {
		if !declared[r.Parent] || !declared[r.Child] {
			o.mu.Unlock()
			return api.NewConfigurationError(o.name,
				"group relation %d->%d references an undeclared input group", r.Parent, r.Child)
		}
	}

	oldProc := o.proc
	o.proc = nil
	o.mu.Unlock()

	// Old workers must drain before the controller is replaced; waiting
	// under the delivery mutex would deadlock them.
	if oldProc != nil {
		oldProc.shutdown()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var connected []flow.Input
	for _, in := range o.inputs {
		if in.connectedLocked() {
			connected = append(connected, in)
		}
	}
	o.ctrl = flow.New(o.name, connected, o.spec.Relations)

	switch {
	case o.threadCount == 0:
		o.proc = newInlineProcessor(o)
	case o.threadCount == 1:
		o.proc = newThreadedProcessor(o)
	default:
		o.proc = newPooledProcessor(o, o.threadCount)
	}

	if reset {
		for _, in := range o.inputs {
			in.queue = nil
		}
	}

	o.cancel()
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.interrupted.Store(false)
	o.err = nil
	if o.stateVal == api.StateInterrupted {
		o.setStateLocked(api.StateStopped)
	}
	o.checked = true
	return nil
}

func (o *operation) Start() error {
	o.mu.Lock()
	switch o.stateVal {
	case api.StateStopped:
		if !o.checked {
			o.mu.Unlock()
			return api.NewStateError(o.name, o.stateVal, "start unchecked")
		}
		o.setStateLocked(api.StateStarting)
		o.proc.start()
		o.setStateLocked(api.StateRunning)
	case api.StatePaused:
		// A threading change while paused invalidates the installed
		// strategy just as it does while stopped.
		if !o.checked {
			o.mu.Unlock()
			return api.NewStateError(o.name, o.stateVal, "start unchecked")
		}
		o.setStateLocked(api.StateRunning)
		o.proc.start()
	default:
		st := o.stateVal
		o.mu.Unlock()
		return api.NewStateError(o.name, st, "start")
	}
	o.mu.Unlock()
	o.proc.wake()
	return nil
}

func (o *operation) Pause() error {
	o.mu.Lock()
	switch o.stateVal {
	case api.StatePaused, api.StatePausing:
		o.mu.Unlock()
		return nil
	case api.StateRunning, api.StateStarting:
		o.setStateLocked(api.StatePausing)
	default:
		st := o.stateVal
		o.mu.Unlock()
		return api.NewStateError(o.name, st, "pause")
	}
	o.mu.Unlock()
	o.proc.wake()
	return nil
}

func (o *operation) Stop() error {
	o.mu.Lock()
	switch o.stateVal {
	case api.StateStopped, api.StateStopping:
		o.mu.Unlock()
		return nil
	case api.StateRunning, api.StateStarting, api.StatePausing, api.StatePaused:
		o.setStateLocked(api.StateStopping)
	default:
		st := o.stateVal
		o.mu.Unlock()
		return api.NewStateError(o.name, st, "stop")
	}
	o.mu.Unlock()
	o.proc.wake()
	return nil
}

func (o *operation) Interrupt() {
	o.interrupted.Store(true)
	o.cancel()
	o.mu.Lock()
	if o.stateVal == api.StatePaused {
		o.setStateLocked(api.StateInterrupted)
	}
	proc := o.proc
	o.mu.Unlock()
	if proc != nil {
		proc.interrupt()
	}
}

func (o *operation) Tick() error {
	o.mu.Lock()
	inlineSource := o.isInlineSourceLocked()
	st := o.stateVal
	proc := o.proc
	o.mu.Unlock()
	if !inlineSource || proc == nil {
		return api.NewStateError(o.name, st, "tick")
	}
	if st != api.StateRunning {
		return api.NewStateError(o.name, st, "tick")
	}
	return proc.tick()
}

func (o *operation) Reconfigure(set string) error {
	values, ok := o.configSets[set]
	if !ok {
		return api.NewConfigurationError(o.name, "unknown property set %q", set)
	}
	// Validate before queueing so a bad set surfaces to the caller
	// instead of stopping the operation between rounds.
	for name := range values {
		if _, ok := o.options[name]; !ok {
			return api.NewConfigurationError(o.name, "property set %q names unknown option %q", set, name)
		}
	}
	o.mu.Lock()
	switch o.stateVal {
	case api.StateStopped, api.StatePaused:
		o.mu.Unlock()
		return o.applySets([]string{set})
	case api.StateRunning, api.StateStarting, api.StatePausing:
		o.pendingSets = append(o.pendingSets, set)
		proc := o.proc
		o.mu.Unlock()
		if proc != nil {
			proc.wake()
		}
		return nil
	}
	st := o.stateVal
	o.mu.Unlock()
	return api.NewStateError(o.name, st, "reconfigure")
}

func (o *operation) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	o.mu.Lock()
	for !o.stateVal.Resting() {
		ch := o.stateCh
		o.mu.Unlock()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-ch:
		case <-time.After(remaining):
			o.mu.Lock()
			resting := o.stateVal.Resting()
			o.mu.Unlock()
			return resting
		}
		o.mu.Lock()
	}
	o.mu.Unlock()
	return true
}

// threadCountOption is the built-in option every operation recognizes.
const threadCountOption = "threadCount"

func (o *operation) SetConfig(name string, value any) error {
	if name == threadCountOption {
		count, ok := value.(int)
		if !ok {
			return api.NewConfigurationError(o.name, "threadCount requires an int, got %T", value)
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.stateVal != api.StateStopped && o.stateVal != api.StatePaused {
			return api.NewStateError(o.name, o.stateVal, "set threadCount of")
		}
		o.threadCount = count
		// The threading strategy is chosen at check time.
		o.checked = false
		return nil
	}

	opt, ok := o.options[name]
	if !ok {
		return api.NewConfigurationError(o.name, "unknown option %q", name)
	}
	if err := o.plock.lock(); err != nil {
		return api.NewStateError(o.name, o.State(), "lock configuration of")
	}
	defer o.plock.unlock()
	return opt.Set(value)
}

func (o *operation) GetConfig(name string) (any, error) {
	if name == threadCountOption {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.threadCount, nil
	}
	opt, ok := o.options[name]
	if !ok {
		return nil, api.NewConfigurationError(o.name, "unknown option %q", name)
	}
	if err := o.plock.rlock(); err != nil {
		return nil, api.NewStateError(o.name, o.State(), "lock configuration of")
	}
	defer o.plock.runlock()
	return opt.Get(), nil
}

// deliver accepts a packet for one of this operation's inputs. Safe to call
// from any goroutine; never blocks beyond lock acquisition.
func (o *operation) deliver(in *inputPort, pk flow.Packet) {
	o.mu.Lock()
	if o.stateVal == api.StateInterrupted {
		o.mu.Unlock()
		return
	}
	in.queue = append(in.queue, pk)
	proc := o.proc
	o.mu.Unlock()
	if proc != nil {
		proc.receive()
	}
}

// serviceOne performs at most one controller action: a round, a boundary
// consumption, or a pause/stop completion. It reports whether it made
// progress; any error returned has already been handled (the operation is
// stopped and the failure surfaced).
func (o *operation) serviceOne(allowSourceRounds bool) (bool, error) {
	o.mu.Lock()
	if o.interrupted.Load() {
		switch o.stateVal {
		case api.StateRunning, api.StateStarting, api.StatePausing, api.StateStopping, api.StatePaused:
			o.setStateLocked(api.StateInterrupted)
		}
		o.mu.Unlock()
		return false, nil
	}
	st := o.stateVal
	if st != api.StateRunning && st != api.StatePausing && st != api.StateStopping {
		o.mu.Unlock()
		return false, nil
	}

	// A pure source has no upstream boundaries to wait for: pause and
	// stop complete as soon as the current round is done.
	if !o.hasConnectedInputsLocked() && st != api.StateRunning {
		if st == api.StatePausing {
			o.setStateLocked(api.StatePaused)
			o.mu.Unlock()
			o.broadcast(flow.KindPause)
			return false, nil
		}
		o.setStateLocked(api.StateStopped)
		o.mu.Unlock()
		o.broadcast(flow.KindStop)
		return false, nil
	}

	r := o.ctrl.IsReady()
	switch r.Action {
	case flow.ProcessRound:
		if !allowSourceRounds && o.isInlineSourceLocked() {
			o.mu.Unlock()
			return false, nil
		}
		fr := o.ctrl.PrepareRound()
		if fr == nil {
			o.mu.Unlock()
			return false, nil
		}
		o.mu.Unlock()
		err := o.runRound(fr)
		o.mu.Lock()
		o.ctrl.FinishRound()
		o.mu.Unlock()
		return o.afterRound(err)

	case flow.Synchronize:
		err := o.ctrl.ConsumeBoundary()
		o.mu.Unlock()
		if err != nil {
			o.fail(err)
			return false, err
		}
		if err := o.deliverSyncEvents(false); err != nil {
			o.fail(err)
			return false, err
		}
		return true, nil

	case flow.PauseReached:
		o.ctrl.ConsumeControl()
		o.setStateLocked(api.StatePaused)
		o.mu.Unlock()
		o.broadcast(flow.KindPause)
		return false, nil

	case flow.StopReached:
		o.ctrl.ConsumeControl()
		o.setStateLocked(api.StateStopped)
		o.mu.Unlock()
		o.broadcast(flow.KindStop)
		return false, nil
	}

	o.mu.Unlock()
	return false, nil
}

// runRound executes one round under a read-held process lock, applying any
// queued property sets first.
func (o *operation) runRound(fr *flow.Round) error {
	if err := o.applyPending(); err != nil {
		return err
	}
	if err := o.plock.rlock(); err != nil {
		return err
	}
	start := time.Now()
	o.observer.OnRoundStart(o.info(), fr.Group)
	err := o.spec.Process(o.ctx, &round{op: o, fr: fr})
	obsErr := err
	if errors.Is(err, api.ErrFinished) {
		obsErr = nil
	}
	o.observer.OnRoundCompleted(o.info(), fr.Group, obsErr, time.Since(start))
	o.plock.runlock()

	if err == nil || errors.Is(err, api.ErrFinished) || errors.Is(err, api.ErrLockTimeout) {
		return err
	}
	return api.NewExecutionError(o.name, err)
}

// afterRound interprets a round result: nil continues servicing,
// ErrFinished ends the run normally, anything else stops the operation and
// surfaces the failure.
func (o *operation) afterRound(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, api.ErrFinished) {
		o.finishNormally()
		return false, nil
	}
	o.fail(err)
	return false, err
}

// finishNormally ends the run after a ProcessFunc reported end of input:
// the operation stops without error and forwards a stop boundary.
func (o *operation) finishNormally() {
	o.mu.Lock()
	switch o.stateVal {
	case api.StateRunning, api.StatePausing, api.StateStopping:
		o.setStateLocked(api.StateStopped)
	default:
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.broadcast(flow.KindStop)
}

// fail stops the operation and surfaces err to the observer and the
// pipeline owner. Errors are never retried.
func (o *operation) fail(err error) {
	o.mu.Lock()
	if o.err == nil {
		o.err = err
	}
	o.setStateLocked(api.StateStopped)
	o.mu.Unlock()
	o.observer.OnFailure(o.info(), err)
	if o.onFailure != nil {
		o.onFailure(o, err)
	}
}

// deliverSyncEvents flushes the controller's queued boundary events: the
// sync callback runs under the process lock (write-held under the pool
// strategy, read-held otherwise), then matching markers are forwarded
// downstream. The delivery mutex is released before the callback runs so
// a SyncFunc may call back into the operation.
func (o *operation) deliverSyncEvents(write bool) error {
	if write {
		if err := o.plock.lock(); err != nil {
			return err
		}
	} else {
		if err := o.plock.rlock(); err != nil {
			return err
		}
	}
	o.mu.Lock()
	events := o.ctrl.TakeSyncEvents()
	o.mu.Unlock()
	for _, ev := range events {
		if o.spec.OnSync != nil {
			o.spec.OnSync(ev)
		}
		o.observer.OnSyncBoundary(o.info(), ev)
	}
	if write {
		o.plock.unlock()
	} else {
		o.plock.runlock()
	}

	for _, ev := range events {
		kind := flow.KindEndGroup
		if ev.Type == api.StartInput {
			kind = flow.KindStartGroup
		}
		o.broadcast(kind)
	}
	return nil
}

// broadcast emits a marker on all connected outputs.
func (o *operation) broadcast(kind flow.PacketKind) {
	for _, out := range o.outputs {
		out.send(flow.Marker(kind))
	}
}

// applyPending applies queued Reconfigure sets under a write-held process
// lock. Called immediately before a round, which is the next safe boundary
// for every strategy.
func (o *operation) applyPending() error {
	o.mu.Lock()
	sets := o.pendingSets
	o.pendingSets = nil
	o.mu.Unlock()
	if len(sets) == 0 {
		return nil
	}
	return o.applySets(sets)
}

func (o *operation) applySets(sets []string) error {
	if err := o.plock.lock(); err != nil {
		return err
	}
	defer o.plock.unlock()
	for _, set := range sets {
		values := o.configSets[set]
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			opt, ok := o.options[name]
			if !ok {
				return api.NewConfigurationError(o.name, "property set %q names unknown option %q", set, name)
			}
			if err := opt.Set(values[name]); err != nil {
				return err
			}
		}
	}
	return nil
}

// pendingWork reports whether the controller has something actionable,
// used by the inline driver to close the wakeup race.
func (o *operation) pendingWork() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.interrupted.Load() {
		return o.stateVal == api.StateRunning || o.stateVal.Transitional()
	}
	st := o.stateVal
	if st != api.StateRunning && st != api.StatePausing && st != api.StateStopping {
		return false
	}
	if !o.hasConnectedInputsLocked() {
		return st != api.StateRunning
	}
	return o.ctrl.IsReady().Action != flow.NotReady
}

// round adapts a claimed flow round to the public Round interface.
type round struct {
	op *operation
	fr *flow.Round
}

var _ api.Round = (*round)(nil)

func (r *round) Group() int { return r.fr.Group }

func (r *round) Object(input string) (any, bool) {
	v, ok := r.fr.Objects[input]
	return v, ok
}

func (r *round) Emit(output string, v any) error {
	out, ok := r.op.outByName[output]
	if !ok {
		return api.NewConfigurationError(r.op.name, "no output port %q", output)
	}
	out.send(flow.Object(v))
	return nil
}

func (r *round) StartGroup() error {
	r.op.broadcast(flow.KindStartGroup)
	return nil
}

func (r *round) EndGroup() error {
	r.op.broadcast(flow.KindEndGroup)
	return nil
}
