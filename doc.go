// Package flume provides a lightweight, embeddable dataflow execution
// engine for Go.
//
// Flume is built for programs that process streams of objects through a
// graph of connected operations: each operation reads one object from
// every synchronized input, runs its process function, and emits results
// downstream. It runs fully in Go, needs no external infrastructure, and
// integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The Flume programming model is intentionally small:
//
//  1. Operation
//  2. Ports
//  3. Synchronization groups
//  4. Processing rounds
//  5. Pipeline
//
// # Operation
//
// An Operation is the executable unit of a flume graph. It is described
// by an OperationSpec: named input and output ports, a ProcessFunc that
// runs once per round, and an optional SyncFunc notified at
// synchronization boundaries. Operations move through an explicit
// lifecycle (stopped, starting, running, pausing, paused, stopping,
// interrupted) and are controlled with Start, Pause, Stop, Interrupt and
// Wait.
//
// The threadCount option selects how rounds execute:
//
//   - 0: inline, rounds run on the caller's goroutine as objects arrive
//   - 1: a dedicated goroutine per operation
//   - N > 1: a pool of N goroutines, rounds may complete out of order
//
// # Ports
//
// Output ports connect to input ports with Connect. An input queues
// incoming objects until its operation is ready to consume them, so a
// slow consumer never blocks its producer's emit.
//
// # Synchronization groups
//
// Inputs that carry the same group id are synchronized: a round starts
// only when every connected input in the group holds an object, and one
// object is consumed from each. Group relations declare that one group's
// stream runs at a different rate than another's (say, one image in and
// many subimages out); flume tracks start/end boundaries through the
// graph and tells the operation, via its SyncFunc, when related streams
// are back in phase.
//
// # Processing rounds
//
// A ProcessFunc receives a Round holding one object per synchronized
// input. It emits results with Round.Emit and brackets higher-rate
// output with Round.StartGroup and Round.EndGroup. Returning ErrFinished
// ends the operation normally; any other error stops it and reports the
// failure to the pipeline.
//
// Configuration reads are safe during rounds. Writes made with SetConfig
// while an operation runs are applied between rounds, never in the
// middle of one.
//
// # Pipeline
//
// A Pipeline owns a set of operations and starts, pauses, stops and
// waits for them together. Its failure policy decides whether one failed
// operation interrupts the rest (StopAll) or the others keep running
// (Isolate).
//
// Observers receive every state change, round and boundary. The package
// ships a logging observer, basic metrics, and journals that record runs
// in memory or in SQLite.
//
// # Example
//
//	src, _ := flume.NewOperation(flume.OperationSpec{
//	    Name:    "numbers",
//	    Outputs: []flume.OutputSpec{{Name: "out"}},
//	    Process: func(ctx context.Context, r flume.Round) error {
//	        if next > 9 {
//	            return flume.ErrFinished
//	        }
//	        next++
//	        return r.Emit("out", next)
//	    },
//	    ThreadCount: 1,
//	}, nil)
//
// For examples, see the package tests.
package flume
