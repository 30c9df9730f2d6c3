// Package store provides SQLite-backed persistence for the motion daemon:
// homing offsets that survive a restart, the fault journal and daemon runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"plcmotion/pkg/errors"
)

// Store provides access to the SQLite database.
type Store struct {
	db *sql.DB
}

// Fault is one journaled axis or safety fault. Axis is -1 for faults that
// are not tied to an axis.
type Fault struct {
	ID      string    `json:"id"`
	Axis    int32     `json:"axis"`
	Code    uint32    `json:"code"`
	Name    string    `json:"name"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Run is one daemon session.
type Run struct {
	ID        string     `json:"id"`
	Version   string     `json:"version"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.StoreError("create db directory", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, errors.StoreError("open db", err)
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.StoreError("migrate", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS home_positions (
		axis INTEGER PRIMARY KEY,
		position REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS faults (
		id TEXT PRIMARY KEY,
		axis INTEGER NOT NULL,
		code INTEGER NOT NULL,
		name TEXT NOT NULL,
		message TEXT,
		at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_faults_axis ON faults(axis);
	CREATE INDEX IF NOT EXISTS idx_faults_at ON faults(at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Home positions ---

// SaveHomePosition stores the home position of an axis.
func (s *Store) SaveHomePosition(axis int32, pos float64) error {
	_, err := s.db.Exec(
		`INSERT INTO home_positions (axis, position, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(axis) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		axis, pos, time.Now().UTC(),
	)
	if err != nil {
		return errors.StoreError("save home position", err)
	}
	return nil
}

// HomePosition returns the stored home position of an axis.
func (s *Store) HomePosition(axis int32) (float64, bool, error) {
	var pos float64
	err := s.db.QueryRow(`SELECT position FROM home_positions WHERE axis = ?`, axis).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.StoreError("query home position", err)
	}
	return pos, true, nil
}

// HomePositions returns every stored home position by axis id.
func (s *Store) HomePositions() (map[int32]float64, error) {
	rows, err := s.db.Query(`SELECT axis, position FROM home_positions`)
	if err != nil {
		return nil, errors.StoreError("query home positions", err)
	}
	defer rows.Close()

	out := make(map[int32]float64)
	for rows.Next() {
		var id int32
		var pos float64
		if err := rows.Scan(&id, &pos); err != nil {
			return nil, errors.StoreError("scan home position", err)
		}
		out[id] = pos
	}
	return out, rows.Err()
}

// --- Faults ---

// RecordFault journals code for axis.
func (s *Store) RecordFault(axis int32, code errors.Code, msg string) (*Fault, error) {
	f := &Fault{
		ID:      uuid.New().String(),
		Axis:    axis,
		Code:    uint32(code),
		Name:    code.Name(),
		Message: msg,
		At:      time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO faults (id, axis, code, name, message, at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.Axis, f.Code, f.Name, f.Message, f.At,
	)
	if err != nil {
		return nil, errors.StoreError("insert fault", err)
	}
	return f, nil
}

// ListFaults returns the newest faults first. A negative axis lists every
// axis; a limit of zero or less lists everything.
func (s *Store) ListFaults(axis int32, limit int) ([]Fault, error) {
	query := `SELECT id, axis, code, name, message, at FROM faults`
	var args []interface{}
	if axis >= 0 {
		query += ` WHERE axis = ?`
		args = append(args, axis)
	}
	query += ` ORDER BY at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.StoreError("query faults", err)
	}
	defer rows.Close()

	var faults []Fault
	for rows.Next() {
		var f Fault
		var msg sql.NullString
		if err := rows.Scan(&f.ID, &f.Axis, &f.Code, &f.Name, &msg, &f.At); err != nil {
			return nil, errors.StoreError("scan fault", err)
		}
		f.Message = msg.String
		faults = append(faults, f)
	}
	return faults, rows.Err()
}

// ClearFaults deletes the fault journal and returns the number of rows removed.
func (s *Store) ClearFaults() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM faults`)
	if err != nil {
		return 0, errors.StoreError("clear faults", err)
	}
	return res.RowsAffected()
}

// --- Runs ---

// StartRun records the start of a daemon session.
func (s *Store) StartRun(version string) (*Run, error) {
	r := &Run{ID: uuid.New().String(), Version: version, StartedAt: time.Now().UTC()}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, version, started_at) VALUES (?, ?, ?)`,
		r.ID, r.Version, r.StartedAt,
	)
	if err != nil {
		return nil, errors.StoreError("insert run", err)
	}
	return r, nil
}

// EndRun marks a session as ended.
func (s *Store) EndRun(id string) error {
	res, err := s.db.Exec(`UPDATE runs SET ended_at = ? WHERE id = ? AND ended_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return errors.StoreError("end run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.StoreError("end run", fmt.Errorf("run %s not found or already ended", id))
	}
	return nil
}

// ListRuns returns the newest sessions first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `SELECT id, version, started_at, ended_at FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.StoreError("query runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ended sql.NullTime
		if err := rows.Scan(&r.ID, &r.Version, &r.StartedAt, &ended); err != nil {
			return nil, errors.StoreError("scan run", err)
		}
		if ended.Valid {
			r.EndedAt = &ended.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
