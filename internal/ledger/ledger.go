// Package ledger records a diagnostic audit trail of download/upload
// invocations in a local sqlite database: one row per transfer, with a
// state column advanced from started to completed or failed.
//
// The ledger is diagnostic only: no engine operation consults it to
// decide behavior, and a Recorder failure never turns a successful
// stream into a failed one (DB discards its own write errors; Recorder
// methods return none).
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Direction is the transfer direction recorded for a row.
type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

// Recorder is the narrow interface the engines depend on, so tests
// can substitute Noop without touching sqlite.
type Recorder interface {
	Started(transferID string, dir Direction, url string)
	Completed(transferID string, virtualSize, dataSize uint64)
	Failed(transferID string, cause error)
}

// Noop discards every call; used when no ledger path is configured.
type Noop struct{}

func (Noop) Started(string, Direction, string) {}
func (Noop) Completed(string, uint64, uint64)  {}
func (Noop) Failed(string, error)              {}

// DB is a sqlite-backed Recorder.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if needed) the ledger database at path and runs
// its migration.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(4)
	s.SetMaxIdleConns(4)

	d := &DB{sql: s}
	if err := d.migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		url TEXT NOT NULL,
		virtual_size INTEGER NOT NULL DEFAULT 0,
		data_size INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	);`)
	return err
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) Started(transferID string, dir Direction, url string) {
	if transferID == "" {
		return
	}
	_, _ = d.sql.Exec(
		`INSERT INTO transfers(id, direction, url, state, started_at) VALUES (?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET direction=excluded.direction, url=excluded.url, state=excluded.state, started_at=excluded.started_at`,
		transferID, string(dir), url, "started", time.Now().Unix(),
	)
}

func (d *DB) Completed(transferID string, virtualSize, dataSize uint64) {
	if transferID == "" {
		return
	}
	_, _ = d.sql.Exec(
		`UPDATE transfers SET state=?, virtual_size=?, data_size=?, ended_at=? WHERE id=?`,
		"completed", virtualSize, dataSize, time.Now().Unix(), transferID,
	)
}

func (d *DB) Failed(transferID string, cause error) {
	if transferID == "" {
		return
	}
	_, _ = d.sql.Exec(
		`UPDATE transfers SET state=?, error=?, ended_at=? WHERE id=?`,
		"failed", cause.Error(), time.Now().Unix(), transferID,
	)
}

// Row is one recorded transfer, as returned by List.
type Row struct {
	ID          string
	Direction   string
	URL         string
	VirtualSize uint64
	DataSize    uint64
	State       string
	Error       string
	StartedAt   time.Time
	EndedAt     *time.Time
}

// List returns recorded transfers, most recent first, for the CLI's
// "ledger" subcommand.
func (d *DB) List() ([]Row, error) {
	rows, err := d.sql.Query(`SELECT id, direction, url, virtual_size, data_size, state, error, started_at, ended_at FROM transfers ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Direction, &r.URL, &r.VirtualSize, &r.DataSize, &r.State, &r.Error, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0)
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
