// Package transcript records the lines printed by script runs in a SQLite
// database.
package transcript

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound indicates no run matches the requested id.
var ErrRunNotFound = errors.New("transcript: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	script      TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	started_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS lines (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq    INTEGER NOT NULL,
	line   TEXT NOT NULL,
	at     INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Store is a transcript database.
type Store struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
	mu   sync.Mutex
}

// Run describes one recorded script run.
type Run struct {
	ID          string
	Script      string
	Fingerprint string
	StartedAt   time.Time
	Lines       int
}

// Line is one recorded say line.
type Line struct {
	Seq  int
	Text string
	At   time.Time
}

// Open opens or creates the database at path, creating parent directories
// as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("transcript: creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcript: opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: creating tables: %w", err)
	}

	s := &Store{db: db, path: path, log: commonlog.GetLogger("kestrel.transcript")}
	s.log.Debugf("opened %s", path)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun registers a new run and returns a recorder for its lines. The
// fingerprint identifies the program that ran.
func (s *Store) BeginRun(script string, fingerprint [32]byte) (*Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, script, fingerprint, started_at) VALUES (?, ?, ?, ?)",
		id, script, hex.EncodeToString(fingerprint[:]), time.Now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("transcript: saving run: %w", err)
	}
	s.log.Infof("run %s: recording %s", id, script)
	return &Recorder{store: s, id: id}, nil
}

// Runs returns the most recent runs first. A limit of zero or less returns
// every run.
func (s *Store) Runs(limit int) ([]Run, error) {
	query := `SELECT r.id, r.script, r.fingerprint, r.started_at,
		(SELECT COUNT(*) FROM lines l WHERE l.run_id = r.id)
		FROM runs r ORDER BY r.started_at DESC, r.rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Script, &r.Fingerprint, &started, &r.Lines); err != nil {
			return nil, fmt.Errorf("transcript: reading run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: reading runs: %w", err)
	}
	return runs, nil
}

// FindRun resolves a run id or a unique id prefix.
func (s *Store) FindRun(idOrPrefix string) (Run, error) {
	if idOrPrefix == "" {
		return Run{}, ErrRunNotFound
	}
	runs, err := s.Runs(0)
	if err != nil {
		return Run{}, err
	}
	var match []Run
	for _, r := range runs {
		if r.ID == idOrPrefix {
			return r, nil
		}
		if len(idOrPrefix) <= len(r.ID) && r.ID[:len(idOrPrefix)] == idOrPrefix {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case 1:
		return match[0], nil
	}
	return Run{}, fmt.Errorf("transcript: run prefix %s is ambiguous (%d runs)", idOrPrefix, len(match))
}

// Lines returns the lines of a run in order.
func (s *Store) Lines(runID string) ([]Line, error) {
	rows, err := s.db.Query("SELECT seq, line, at FROM lines WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("transcript: querying lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		var at int64
		if err := rows.Scan(&l.Seq, &l.Text, &at); err != nil {
			return nil, fmt.Errorf("transcript: reading line: %w", err)
		}
		l.At = time.Unix(0, at)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: reading lines: %w", err)
	}
	return lines, nil
}

// Recorder appends the lines of one run. It satisfies vm.Sink.
type Recorder struct {
	store *Store
	id    string

	mu  sync.Mutex
	seq int
}

// ID returns the run id.
func (r *Recorder) ID() string {
	return r.id
}

// WriteLine stores the next line of the run.
func (r *Recorder) WriteLine(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	_, err := r.store.db.Exec(
		"INSERT INTO lines (run_id, seq, line, at) VALUES (?, ?, ?, ?)",
		r.id, r.seq, line, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("transcript: saving line: %w", err)
	}
	return nil
}
