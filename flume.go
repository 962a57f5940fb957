package flume

import (
	"database/sql"

	"github.com/petrijr/flume/internal/engine"
	"github.com/petrijr/flume/internal/journal"
	"github.com/petrijr/flume/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Operation            = api.Operation
	OperationSpec        = api.OperationSpec
	InputSpec            = api.InputSpec
	OutputSpec           = api.OutputSpec
	GroupRelation        = api.GroupRelation
	InputPort            = api.InputPort
	OutputPort           = api.OutputPort
	Round                = api.Round
	ProcessFunc          = api.ProcessFunc
	SyncFunc             = api.SyncFunc
	SyncEvent            = api.SyncEvent
	SyncEventType        = api.SyncEventType
	State                = api.State
	ThreadingCapability  = api.ThreadingCapability
	ConfigOption         = api.ConfigOption
	Observer             = api.Observer
	OperationInfo        = api.OperationInfo
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export state and sync event values for convenience.

const (
	StateStopped     = api.StateStopped
	StateStarting    = api.StateStarting
	StateRunning     = api.StateRunning
	StatePausing     = api.StatePausing
	StatePaused      = api.StatePaused
	StateStopping    = api.StateStopping
	StateInterrupted = api.StateInterrupted

	StartInput = api.StartInput
	EndInput   = api.EndInput

	Inline         = api.Inline
	SingleThreaded = api.SingleThreaded
	MultiThreaded  = api.MultiThreaded

	// UngroupedID marks an input that takes no part in synchronization.
	UngroupedID = api.UngroupedID
)

// Sentinel errors.

var (
	// ErrFinished is returned by a process function that has produced
	// everything it ever will.
	ErrFinished = api.ErrFinished
	// ErrLockTimeout is returned when the process lock cannot be
	// acquired in time.
	ErrLockTimeout = api.ErrLockTimeout
)

// Failure policies for pipelines.

type Pipeline = engine.Pipeline

type FailurePolicy = engine.FailurePolicy

const (
	StopAll = engine.StopAll
	Isolate = engine.Isolate
)

// Constructors and wiring helpers. These wrap the internal packages so
// external callers never need to import them.

// NewOperation builds an operation from spec, observed by obs. A nil
// observer is replaced with a no-op one.
func NewOperation(spec OperationSpec, obs Observer) (Operation, error) {
	return engine.NewOperation(spec, obs)
}

// Connect wires an output port to an input port. Both operations must be
// stopped or paused.
func Connect(out OutputPort, in InputPort) error {
	return engine.Connect(out, in)
}

// Disconnect detaches an input port from its producer.
func Disconnect(in InputPort) error {
	return engine.Disconnect(in)
}

// NewPipeline creates an empty pipeline with the given failure policy.
func NewPipeline(policy FailurePolicy) *Pipeline {
	return engine.NewPipeline(policy)
}

// Journal types and constructors.

type (
	Journal       = journal.Reader
	JournalEntry  = journal.Entry
	JournalFilter = journal.Filter
	EventType     = journal.EventType
	SQLiteJournal = journal.SQLiteJournal
	MemoryJournal = journal.MemoryJournal
)

const (
	EventStateChange  = journal.EventStateChange
	EventRoundStart   = journal.EventRoundStart
	EventRound        = journal.EventRound
	EventSyncBoundary = journal.EventSyncBoundary
	EventFailure      = journal.EventFailure
)

// NewSQLiteJournal returns an Observer that persists engine events in a
// SQLite database. An empty runID gets a fresh one.
func NewSQLiteJournal(db *sql.DB, runID string) (*SQLiteJournal, error) {
	return journal.NewSQLiteJournal(db, runID)
}

// NewMemoryJournal returns an in-memory Observer, mainly for tests.
func NewMemoryJournal(runID string) *MemoryJournal {
	return journal.NewMemoryJournal(runID)
}

// Error helpers.

var (
	NewConfigurationError  = api.NewConfigurationError
	NewExecutionError      = api.NewExecutionError
	IsConfigurationError   = api.IsConfigurationError
	IsStateError           = api.IsStateError
	IsSynchronizationError = api.IsSynchronizationError
	IsExecutionError       = api.IsExecutionError
)
