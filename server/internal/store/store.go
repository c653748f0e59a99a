// Package store implements the durable, append-only result log on SQLite.
// Every submitted result ever accepted lives in one ordered sequence; there
// is no update and no delete. Retention is the operator's concern.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/omegalab/labtriage/pkg/types"
)

// Sentinel errors. Callers branch with errors.Is; the wrapped detail carries
// the underlying driver error.
var (
	// ErrStorage means the durable log could not accept a write. The append is
	// all-or-nothing: on this error nothing was stored.
	ErrStorage = errors.New("storage failure")

	// ErrQuery means a read against the log failed.
	ErrQuery = errors.New("query failure")
)

// Store is the append-only result log. Append is serialized by an internal
// mutex so sequence ids, timestamps, and real-time completion order always
// agree. Reads run outside the write lock; WAL mode keeps them from blocking
// on a writer beyond the duration of a single write.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	lastNS int64 // last assigned timestamp in unix nanos, guarded by mu

	now func() time.Time // injectable for deterministic tests
}

// Open opens (or creates) the result log at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	if err := s.loadLastTimestamp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: load last timestamp: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the results table and its indexes.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id     TEXT NOT NULL,
		test_code      TEXT NOT NULL,
		value          REAL NOT NULL,
		unit           TEXT NOT NULL,
		classification TEXT NOT NULL,
		provenance     TEXT NOT NULL,
		created_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_patient ON results(patient_id, seq);
	CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// loadLastTimestamp seeds the monotonic clock floor from an existing log so
// timestamps stay non-decreasing across restarts.
func (s *Store) loadLastTimestamp() error {
	var last sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(created_at) FROM results`).Scan(&last); err != nil {
		return err
	}
	if last.Valid {
		s.lastNS = last.Int64
	}
	return nil
}

// Append stores r and returns a copy with the assigned sequence id and
// timestamp. The sequence id is strictly increasing across all appends; the
// timestamp never moves backwards (wall clock clamped to the previous
// assignment). The insert is a single statement: either the result is fully
// durable and returned, or nothing is stored and an ErrStorage-wrapped error
// comes back.
func (s *Store) Append(ctx context.Context, r types.Result) (*types.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.now().UnixNano()
	if ns < s.lastNS {
		ns = s.lastNS
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO results (patient_id, test_code, value, unit, classification, provenance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.PatientID, r.TestCode, r.Value, r.Unit, string(r.Classification), string(r.Provenance), ns,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert result: %v", ErrStorage, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: last insert id: %v", ErrStorage, err)
	}

	s.lastNS = ns

	stored := r
	stored.Seq = seq
	stored.CreatedAt = time.Unix(0, ns).UTC()
	return &stored, nil
}

// Recent returns at most limit results, most recent (highest seq) first.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.Result, error) {
	if limit <= 0 {
		return []types.Result{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, patient_id, test_code, value, unit, classification, provenance, created_at
		FROM results ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent: %v", ErrQuery, err)
	}
	return scanResults(rows)
}

// ByPatient returns at most limit results for patientID, most recent first.
func (s *Store) ByPatient(ctx context.Context, patientID string, limit int) ([]types.Result, error) {
	if limit <= 0 {
		return []types.Result{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, patient_id, test_code, value, unit, classification, provenance, created_at
		FROM results WHERE patient_id = ? ORDER BY seq DESC LIMIT ?`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: by patient: %v", ErrQuery, err)
	}
	return scanResults(rows)
}

// Stats summarizes the whole log for the health endpoint and dashboard header.
type Stats struct {
	Total            int64            `json:"total"`
	ByClassification map[string]int64 `json:"by_classification"`
	ByProvenance     map[string]int64 `json:"by_provenance"`
}

// Stats returns result counts by classification and by provenance.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByClassification: make(map[string]int64),
		ByProvenance:     make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT classification, provenance, COUNT(*) FROM results GROUP BY classification, provenance`)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", ErrQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var class, prov string
		var n int64
		if err := rows.Scan(&class, &prov, &n); err != nil {
			return nil, fmt.Errorf("%w: stats scan: %v", ErrQuery, err)
		}
		st.Total += n
		st.ByClassification[class] += n
		st.ByProvenance[prov] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: stats rows: %v", ErrQuery, err)
	}
	return st, nil
}

// scanResults drains rows into a result slice, closing rows before returning.
func scanResults(rows *sql.Rows) ([]types.Result, error) {
	defer rows.Close()

	out := []types.Result{}
	for rows.Next() {
		var r types.Result
		var class, prov string
		var ns int64
		if err := rows.Scan(&r.Seq, &r.PatientID, &r.TestCode, &r.Value, &r.Unit, &class, &prov, &ns); err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", ErrQuery, err)
		}
		r.Classification = types.Classification(class)
		r.Provenance = types.Provenance(prov)
		r.CreatedAt = time.Unix(0, ns).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate results: %v", ErrQuery, err)
	}
	return out, nil
}
