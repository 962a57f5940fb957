package journal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/petrijr/flume/pkg/api"
)

// MemoryJournal is a goroutine-safe in-memory journal backed by a slice.
// It is mainly useful in tests and short-lived runs.
type MemoryJournal struct {
	mu      sync.RWMutex
	runID   string
	nextSeq int64
	entries []Entry
}

var _ api.Observer = (*MemoryJournal)(nil)
var _ Reader = (*MemoryJournal)(nil)

// NewMemoryJournal creates a journal recording under runID. An empty
// runID gets a fresh one.
func NewMemoryJournal(runID string) *MemoryJournal {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &MemoryJournal{runID: runID, nextSeq: 1}
}

// RunID returns the run id this journal records under.
func (j *MemoryJournal) RunID() string { return j.runID }

func (j *MemoryJournal) record(op api.OperationInfo, typ EventType, group int, detail string, d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, Entry{
		Seq:      j.nextSeq,
		RunID:    j.runID,
		OpID:     op.ID,
		OpName:   op.Name,
		Type:     typ,
		Group:    group,
		Detail:   detail,
		Duration: d,
		At:       time.Now().UTC(),
	})
	j.nextSeq++
}

func (j *MemoryJournal) OnStateChange(op api.OperationInfo, from, to api.State) {
	j.record(op, EventStateChange, 0, fmt.Sprintf("%s->%s", from, to), 0)
}

func (j *MemoryJournal) OnRoundStart(op api.OperationInfo, group int) {
	j.record(op, EventRoundStart, group, "", 0)
}

func (j *MemoryJournal) OnRoundCompleted(op api.OperationInfo, group int, err error, d time.Duration) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	j.record(op, EventRound, group, detail, d)
}

func (j *MemoryJournal) OnSyncBoundary(op api.OperationInfo, ev api.SyncEvent) {
	j.record(op, EventSyncBoundary, ev.GroupID, fmt.Sprintf("%s depth=%d", ev.Type, ev.Depth), 0)
}

func (j *MemoryJournal) OnFailure(op api.OperationInfo, err error) {
	j.record(op, EventFailure, 0, err.Error(), 0)
}

// Entries returns matching entries in seq order.
func (j *MemoryJournal) Entries(filter Filter) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []Entry

	for _, e := range j.entries {
		if filter.RunID != "" && e.RunID != filter.RunID {
			continue
		}
		if filter.OpName != "" && e.OpName != filter.OpName {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		result = append(result, e)
	}

	return result, nil
}
