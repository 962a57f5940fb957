// Package journal records engine events for later inspection.
//
// A journal is attached to operations as an api.Observer. Every state
// change, round, synchronization boundary and failure is written as an
// Entry tagged with a run id, so a single journal can hold the history
// of many pipeline runs.
package journal

import "time"

// EventType identifies the kind of engine event an Entry records.
type EventType string

const (
	EventStateChange  EventType = "STATE_CHANGE"
	EventRoundStart   EventType = "ROUND_START"
	EventRound        EventType = "ROUND"
	EventSyncBoundary EventType = "SYNC_BOUNDARY"
	EventFailure      EventType = "FAILURE"
)

// Entry is a single recorded engine event.
type Entry struct {
	// Seq orders entries within the journal. Assigned by the journal.
	Seq int64
	// RunID correlates entries from one pipeline run.
	RunID string
	// OpID and OpName identify the operation the event concerns.
	OpID   string
	OpName string
	Type   EventType
	// Group is the synchronization group a round or boundary belonged
	// to. Zero for state changes and failures.
	Group int
	// Detail carries event-specific text: "FROM->TO" for state changes,
	// the event description for boundaries, the error message for
	// failed rounds and failures.
	Detail string
	// Duration is the round duration. Zero for other event types.
	Duration time.Duration
	At       time.Time
}

// Filter selects a subset of journal entries.
type Filter struct {
	RunID  string
	OpName string
	Type   EventType
}

// Reader retrieves previously recorded entries.
type Reader interface {
	// Entries returns matching entries in seq order.
	Entries(filter Filter) ([]Entry, error)
}
