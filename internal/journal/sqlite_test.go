package journal

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/flume/pkg/api"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	db, err := sql.Open("sqlite", "file:"+dbPath)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	db := openTestDB(t)

	j, err := NewSQLiteJournal(db, "run-1")
	if err != nil {
		t.Fatalf("NewSQLiteJournal failed: %v", err)
	}
	op := api.OperationInfo{ID: "id-1", Name: "reader"}

	j.OnStateChange(op, api.StateStopped, api.StateRunning)
	j.OnRoundStart(op, 2)
	j.OnRoundCompleted(op, 2, nil, 7*time.Millisecond)
	j.OnSyncBoundary(op, api.SyncEvent{Type: api.EndInput, GroupID: 2, Depth: 0})
	j.OnFailure(op, errors.New("boom"))

	entries, err := j.Entries(Filter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if i > 0 && e.Seq <= entries[i-1].Seq {
			t.Fatalf("entries out of seq order: %+v", entries)
		}
		if e.OpID != "id-1" || e.OpName != "reader" {
			t.Fatalf("unexpected entry %+v", e)
		}
		if e.At.IsZero() {
			t.Fatalf("expected a recorded timestamp, got %+v", e)
		}
	}
	if entries[0].Detail != "STOPPED->RUNNING" {
		t.Fatalf("unexpected state change detail %q", entries[0].Detail)
	}
	if entries[2].Duration != 7*time.Millisecond || entries[2].Group != 2 {
		t.Fatalf("unexpected round entry %+v", entries[2])
	}
	if entries[3].Type != EventSyncBoundary || entries[3].Detail != "end depth=0" {
		t.Fatalf("unexpected boundary entry %+v", entries[3])
	}
	if entries[4].Type != EventFailure || entries[4].Detail != "boom" {
		t.Fatalf("unexpected failure entry %+v", entries[4])
	}
}

func TestSQLiteJournalFiltersAndSharedDB(t *testing.T) {
	db := openTestDB(t)

	// Two runs share one database; schema init is idempotent.
	j1, err := NewSQLiteJournal(db, "")
	if err != nil {
		t.Fatalf("NewSQLiteJournal failed: %v", err)
	}
	if j1.RunID() == "" {
		t.Fatalf("expected a generated run id")
	}
	j2, err := NewSQLiteJournal(db, "run-2")
	if err != nil {
		t.Fatalf("NewSQLiteJournal failed: %v", err)
	}

	a := api.OperationInfo{ID: "1", Name: "a"}
	b := api.OperationInfo{ID: "2", Name: "b"}
	j1.OnRoundStart(a, 0)
	j1.OnRoundCompleted(a, 0, nil, time.Millisecond)
	j2.OnRoundStart(b, 0)

	entries, err := j1.Entries(Filter{RunID: j1.RunID()})
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for run 1, got %d", len(entries))
	}

	entries, err = j2.Entries(Filter{RunID: "run-2", OpName: "b", Type: EventRoundStart})
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for run 2, got %d", len(entries))
	}
}
