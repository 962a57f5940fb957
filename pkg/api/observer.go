package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// OperationInfo identifies an operation in observer callbacks.
type OperationInfo struct {
	ID   string
	Name string
}

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay round execution. Callbacks may be
// invoked from any goroutine.
type Observer interface {
	// OnStateChange is called for every lifecycle state transition.
	OnStateChange(op OperationInfo, from, to State)

	// OnRoundStart is called before a round runs. group is the active
	// input group id.
	OnRoundStart(op OperationInfo, group int)

	// OnRoundCompleted is called after a round returns, for both successes
	// and failures (err != nil).
	OnRoundCompleted(op OperationInfo, group int, err error, duration time.Duration)

	// OnSyncBoundary is called when a boundary event is delivered to an
	// operation's sync callback.
	OnSyncBoundary(op OperationInfo, ev SyncEvent)

	// OnFailure is called when an error stops an operation
	// (SynchronizationError, ExecutionError, lock timeout).
	OnFailure(op OperationInfo, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnStateChange(op OperationInfo, from, to State)                           {}
func (NoopObserver) OnRoundStart(op OperationInfo, group int)                                 {}
func (NoopObserver) OnRoundCompleted(op OperationInfo, group int, err error, d time.Duration) {}
func (NoopObserver) OnSyncBoundary(op OperationInfo, ev SyncEvent)                            {}
func (NoopObserver) OnFailure(op OperationInfo, err error)                                    {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnStateChange(op OperationInfo, from, to State) {
	for _, o := range c.observers {
		o.OnStateChange(op, from, to)
	}
}

func (c *CompositeObserver) OnRoundStart(op OperationInfo, group int) {
	for _, o := range c.observers {
		o.OnRoundStart(op, group)
	}
}

func (c *CompositeObserver) OnRoundCompleted(op OperationInfo, group int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnRoundCompleted(op, group, err, d)
	}
}

func (c *CompositeObserver) OnSyncBoundary(op OperationInfo, ev SyncEvent) {
	for _, o := range c.observers {
		o.OnSyncBoundary(op, ev)
	}
}

func (c *CompositeObserver) OnFailure(op OperationInfo, err error) {
	for _, o := range c.observers {
		o.OnFailure(op, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs operation lifecycle and
// round events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnStateChange(op OperationInfo, from, to State) {
	o.Logger.Info("state_change",
		slog.String("operation", op.Name),
		slog.String("operation_id", op.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (o *LoggingObserver) OnRoundStart(op OperationInfo, group int) {
	o.Logger.Debug("round_start",
		slog.String("operation", op.Name),
		slog.String("operation_id", op.ID),
		slog.Int("group", group),
	)
}

func (o *LoggingObserver) OnRoundCompleted(op OperationInfo, group int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(context.Background(), level, "round_completed",
		slog.String("operation", op.Name),
		slog.String("operation_id", op.ID),
		slog.Int("group", group),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnSyncBoundary(op OperationInfo, ev SyncEvent) {
	o.Logger.Debug("sync_boundary",
		slog.String("operation", op.Name),
		slog.String("operation_id", op.ID),
		slog.String("type", ev.Type.String()),
		slog.Int("group", ev.GroupID),
		slog.Int("depth", ev.Depth),
	)
}

func (o *LoggingObserver) OnFailure(op OperationInfo, err error) {
	o.Logger.Error("operation_failed",
		slog.String("operation", op.Name),
		slog.String("operation_id", op.ID),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate round durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	roundsStarted      atomic.Int64
	roundsCompleted    atomic.Int64
	roundsFailed       atomic.Int64
	syncBoundaries     atomic.Int64
	failures           atomic.Int64
	totalRoundDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RoundsStarted   int64
	RoundsCompleted int64
	RoundsFailed    int64
	SyncBoundaries  int64
	Failures        int64

	AvgRoundDuration time.Duration
}

func (m *BasicMetrics) OnRoundStart(op OperationInfo, group int) {
	m.roundsStarted.Add(1)
}

func (m *BasicMetrics) OnRoundCompleted(op OperationInfo, group int, err error, d time.Duration) {
	if err != nil {
		m.roundsFailed.Add(1)
		return
	}
	// Only successful rounds count toward the average duration.
	m.roundsCompleted.Add(1)
	m.totalRoundDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnSyncBoundary(op OperationInfo, ev SyncEvent) {
	m.syncBoundaries.Add(1)
}

func (m *BasicMetrics) OnFailure(op OperationInfo, err error) {
	m.failures.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	completed := m.roundsCompleted.Load()
	totalNs := m.totalRoundDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		RoundsStarted:    m.roundsStarted.Load(),
		RoundsCompleted:  completed,
		RoundsFailed:     m.roundsFailed.Load(),
		SyncBoundaries:   m.syncBoundaries.Load(),
		Failures:         m.failures.Load(),
		AvgRoundDuration: avg,
	}
}
