package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/flume/pkg/api"
)

func TestPipelineRunsChainToCompletion(t *testing.T) {
	srcSpec, _ := counterSource("src", 5, 1)
	col := &collector{}
	src, dst := buildChain(t, srcSpec, col.spec("dst", 1))

	p := NewPipeline(StopAll)
	if p.RunID() == "" {
		t.Fatalf("expected a run id")
	}
	if err := p.Add(src); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := p.Add(dst); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := p.Add(src); err != nil {
		t.Fatalf("re-adding must be a no-op, got %v", err)
	}
	if len(p.Operations()) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(p.Operations()))
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !p.Wait(3 * time.Second) {
		t.Fatalf("pipeline did not come to rest")
	}
	if err := p.Err(); err != nil {
		t.Fatalf("expected no failure, got %v", err)
	}
	if got := col.values(); len(got) != 5 {
		t.Fatalf("expected 5 objects, got %v", got)
	}
}

func TestPipelineChecksEveryOperation(t *testing.T) {
	spec, _ := counterSource("src", 1, 0)
	src := mustOp(t, spec, nil)

	orphanSpec := api.OperationSpec{
		Name:    "orphan",
		Inputs:  []api.InputSpec{{Name: "in"}},
		Process: func(ctx context.Context, r api.Round) error { return nil },
	}
	orphan := mustOp(t, orphanSpec, nil)

	p := NewPipeline(StopAll)
	p.Add(src)
	p.Add(orphan)

	// The orphan's required input is unconnected.
	if err := p.Check(true); !api.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError from Check, got %v", err)
	}
}

func TestPipelineStopAllInterruptsPeers(t *testing.T) {
	failSpec := api.OperationSpec{
		Name: "failing",
		Process: func(ctx context.Context, r api.Round) error {
			return errors.New("boom")
		},
		ThreadCount: 1,
	}
	runSpec := api.OperationSpec{
		Name:    "steady",
		Outputs: []api.OutputSpec{{Name: "out"}},
		Process: func(ctx context.Context, r api.Round) error {
			time.Sleep(time.Millisecond)
			return r.Emit("out", 1)
		},
		ThreadCount: 1,
	}

	failing := mustOp(t, failSpec, nil)
	steady := mustOp(t, runSpec, nil)

	p := NewPipeline(StopAll)
	p.Add(failing)
	p.Add(steady)

	if err := p.Check(true); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !p.Wait(3 * time.Second) {
		t.Fatalf("pipeline did not come to rest")
	}

	if failing.State() != api.StateStopped {
		t.Fatalf("expected the failing operation stopped, got %s", failing.State())
	}
	if steady.State() != api.StateInterrupted {
		t.Fatalf("expected the peer interrupted, got %s", steady.State())
	}

	failures := p.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 recorded failure, got %v", failures)
	}
	if !api.IsExecutionError(p.Err()) {
		t.Fatalf("expected an ExecutionError, got %v", p.Err())
	}
}

func TestPipelineIsolateKeepsPeersRunning(t *testing.T) {
	failSpec := api.OperationSpec{
		Name: "failing",
		Process: func(ctx context.Context, r api.Round) error {
			return errors.New("boom")
		},
		ThreadCount: 1,
	}
	runSpec := api.OperationSpec{
		Name:    "steady",
		Outputs: []api.OutputSpec{{Name: "out"}},
		Process: func(ctx context.Context, r api.Round) error {
			time.Sleep(time.Millisecond)
			return r.Emit("out", 1)
		},
		ThreadCount: 1,
	}

	failing := mustOp(t, failSpec, nil)
	steady := mustOp(t, runSpec, nil)

	p := NewPipeline(Isolate)
	p.Add(failing)
	p.Add(steady)

	if err := p.Check(true); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !failing.Wait(3 * time.Second) {
		t.Fatalf("failing operation did not stop")
	}
	if steady.State() != api.StateRunning {
		t.Fatalf("expected the peer to keep running, got %s", steady.State())
	}
	if len(p.Failures()) != 1 {
		t.Fatalf("expected 1 recorded failure, got %v", p.Failures())
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !p.Wait(3 * time.Second) {
		t.Fatalf("pipeline did not stop")
	}
}

func TestPipelinePauseAndResume(t *testing.T) {
	spec, n := counterSource("src", 0, 0)
	src := mustOp(t, spec, nil)

	p := NewPipeline(StopAll)
	p.Add(src)

	if err := p.Check(true); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if src.State() != api.StatePaused {
		t.Fatalf("expected StatePaused, got %s", src.State())
	}

	if err := p.Start(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if err := src.Tick(); err != nil {
		t.Fatalf("Tick after resume failed: %v", err)
	}
	if *n != 2 {
		t.Fatalf("expected 2 rounds, ran %d", *n)
	}

	p.Interrupt()
	if !p.Wait(time.Second) {
		t.Fatalf("pipeline did not come to rest after Interrupt")
	}
	if src.State() != api.StateInterrupted {
		t.Fatalf("expected StateInterrupted, got %s", src.State())
	}
}
