package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/petrijr/flume/pkg/api"
)

// FailurePolicy decides what a pipeline does when one of its operations
// fails.
type FailurePolicy int

const (
	// StopAll interrupts every other operation when one fails.
	StopAll FailurePolicy = iota
	// Isolate records the failure and leaves the rest of the pipeline
	// running.
	Isolate
)

// Pipeline owns a set of connected operations and drives their lifecycles
// together. It is the "pipeline owner" of the engine's failure model:
// every error that stops an operation is collected here, and the
// configured FailurePolicy decides whether the rest of the graph keeps
// running.
type Pipeline struct {
	runID  string
	policy FailurePolicy

	mu       sync.Mutex
	ops      []*operation
	failures []error
}

// NewPipeline creates an empty pipeline with a fresh run id.
func NewPipeline(policy FailurePolicy) *Pipeline {
	return &Pipeline{runID: uuid.NewString(), policy: policy}
}

// RunID returns the unique id of this pipeline run, usable as a journal
// correlation key.
func (p *Pipeline) RunID() string { return p.runID }

// Add registers an operation with the pipeline and hooks its failure path.
func (p *Pipeline) Add(op api.Operation) error {
	o, ok := op.(*operation)
	if !ok {
		return api.NewConfigurationError(op.Name(), "operation was not created by this engine")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.ops {
		if existing == o {
			return nil
		}
	}
	o.onFailure = p.operationFailed
	p.ops = append(p.ops, o)
	return nil
}

// Operations returns the registered operations in addition order.
func (p *Pipeline) Operations() []api.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]api.Operation, len(p.ops))
	for i, o := range p.ops {
		out[i] = o
	}
	return out
}

func (p *Pipeline) operationFailed(o *operation, err error) {
	p.mu.Lock()
	p.failures = append(p.failures, err)
	policy := p.policy
	ops := append([]*operation(nil), p.ops...)
	p.mu.Unlock()

	if policy != StopAll {
		return
	}
	for _, other := range ops {
		if other != o {
			other.Interrupt()
		}
	}
}

// Check validates every operation. The first error aborts the pass.
func (p *Pipeline) Check(reset bool) error {
	for _, o := range p.Operations() {
		if err := o.Check(reset); err != nil {
			return err
		}
	}
	return nil
}

// Start starts every operation. Operations already running are left alone.
func (p *Pipeline) Start() error {
	for _, o := range p.Operations() {
		if o.State() == api.StateRunning {
			continue
		}
		if err := o.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Pause requests a boundary-driven pause of every operation.
func (p *Pipeline) Pause() error {
	for _, o := range p.Operations() {
		if err := o.Pause(); err != nil {
			return err
		}
	}
	return nil
}

// Stop requests a boundary-driven stop of every operation.
func (p *Pipeline) Stop() error {
	for _, o := range p.Operations() {
		if err := o.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// Interrupt asks every operation to abandon further rounds.
func (p *Pipeline) Interrupt() {
	for _, o := range p.Operations() {
		o.Interrupt()
	}
}

// Wait blocks until every operation is resting or the timeout elapses.
func (p *Pipeline) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for _, o := range p.Operations() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = 0
		}
		if !o.Wait(remaining) {
			return false
		}
	}
	return true
}

// Err returns the first recorded failure, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.failures) == 0 {
		return nil
	}
	return p.failures[0]
}

// Failures returns every recorded failure in arrival order.
func (p *Pipeline) Failures() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.failures...)
}
