package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/petrijr/flume/pkg/api"
)

// SQLiteJournal persists engine events to a SQLite database.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// SQLiteJournal implements api.Observer and may be shared by the
// operations of a pipeline; *sql.DB serializes access internally.
type SQLiteJournal struct {
	db    *sql.DB
	runID string
}

var _ api.Observer = (*SQLiteJournal)(nil)
var _ Reader = (*SQLiteJournal)(nil)

// NewSQLiteJournal initializes the required schema in the given database
// and returns a journal recording under runID. An empty runID gets a
// fresh one.
func NewSQLiteJournal(db *sql.DB, runID string) (*SQLiteJournal, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	j := &SQLiteJournal{db: db, runID: runID}
	if err := j.initSchema(); err != nil {
		return nil, err
	}
	return j, nil
}

// RunID returns the run id this journal records under.
func (j *SQLiteJournal) RunID() string { return j.runID }

func (j *SQLiteJournal) initSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			op_id TEXT NOT NULL,
			op_name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			grp INTEGER NOT NULL,
			detail TEXT,
			duration_ns INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
	)
	return err
}

func (j *SQLiteJournal) record(op api.OperationInfo, typ EventType, group int, detail string, d time.Duration) {
	// Observer callbacks have no error channel; a failed insert only
	// loses the journal entry, never the run.
	j.db.Exec(`
		INSERT INTO events (run_id, op_id, op_name, event_type, grp, detail, duration_ns, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID,
		op.ID,
		op.Name,
		string(typ),
		group,
		detail,
		int64(d),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
}

func (j *SQLiteJournal) OnStateChange(op api.OperationInfo, from, to api.State) {
	j.record(op, EventStateChange, 0, fmt.Sprintf("%s->%s", from, to), 0)
}

func (j *SQLiteJournal) OnRoundStart(op api.OperationInfo, group int) {
	j.record(op, EventRoundStart, group, "", 0)
}

func (j *SQLiteJournal) OnRoundCompleted(op api.OperationInfo, group int, err error, d time.Duration) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	j.record(op, EventRound, group, detail, d)
}

func (j *SQLiteJournal) OnSyncBoundary(op api.OperationInfo, ev api.SyncEvent) {
	j.record(op, EventSyncBoundary, ev.GroupID, fmt.Sprintf("%s depth=%d", ev.Type, ev.Depth), 0)
}

func (j *SQLiteJournal) OnFailure(op api.OperationInfo, err error) {
	j.record(op, EventFailure, 0, err.Error(), 0)
}

// Entries returns matching entries in seq order.
func (j *SQLiteJournal) Entries(filter Filter) ([]Entry, error) {
	query := `
		SELECT seq, run_id, op_id, op_name, event_type, grp, detail, duration_ns, at
		FROM events`
	var args []any
	var clauses []string

	if filter.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.OpName != "" {
		clauses = append(clauses, "op_name = ?")
		args = append(args, filter.OpName)
	}
	if filter.Type != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(filter.Type))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY seq"

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var e Entry
		var typ string
		var durationNS int64
		var at string

		if err := rows.Scan(&e.Seq, &e.RunID, &e.OpID, &e.OpName, &typ, &e.Group, &e.Detail, &durationNS, &at); err != nil {
			return nil, err
		}

		e.Type = EventType(typ)
		e.Duration = time.Duration(durationNS)
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = t
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
