package api

// State represents the lifecycle state of an operation.
type State string

const (
	StateStopped     State = "STOPPED"
	StateStarting    State = "STARTING"
	StateRunning     State = "RUNNING"
	StatePausing     State = "PAUSING"
	StatePaused      State = "PAUSED"
	StateStopping    State = "STOPPING"
	StateInterrupted State = "INTERRUPTED"
)

// Resting reports whether the state is one in which no rounds can be
// scheduled and Wait callers should be released.
func (s State) Resting() bool {
	switch s {
	case StateStopped, StatePaused, StateInterrupted:
		return true
	}
	return false
}

// Transitional reports whether the state is a boundary-driven intermediate
// state (the operation has been asked to pause or stop and is waiting for
// upstream boundaries to propagate).
func (s State) Transitional() bool {
	return s == StatePausing || s == StateStopping || s == StateStarting
}

// ThreadingCapability declares which threadCount values an operation
// accepts. Capabilities are a bitmask; the default for operations that do
// not declare any is Inline|SingleThreaded.
type ThreadingCapability int

const (
	// Inline allows threadCount 0: rounds run on the delivering goroutine.
	Inline ThreadingCapability = 1 << iota
	// SingleThreaded allows threadCount 1: one dedicated worker goroutine.
	SingleThreaded
	// MultiThreaded allows threadCount > 1. Operations declaring this must
	// be prepared for concurrent ProcessFunc calls.
	MultiThreaded
)

// Allows reports whether the capability set permits the given threadCount.
func (c ThreadingCapability) Allows(threadCount int) bool {
	switch {
	case threadCount < 0:
		return false
	case threadCount == 0:
		return c&Inline != 0
	case threadCount == 1:
		return c&SingleThreaded != 0
	default:
		return c&MultiThreaded != 0
	}
}
