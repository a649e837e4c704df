// Package db is the session registry: one row per ingestion session plus the
// archived analysis reports computed over them. The telemetry itself lives in
// the per-session CSV files; the registry only records where they are and
// what came out of them.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/slipbench/internal/monitoring"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the registry at path and bootstraps the
// base schema. Later schema changes ship as migrations (see migrate.go).
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			run_id            TEXT PRIMARY KEY,
			name              TEXT,
			file_path         TEXT,
			serial_port       TEXT,
			baud_rate         BIGINT,
			started_at        TIMESTAMP,
			ended_at          TIMESTAMP,
			sample_rows       BIGINT DEFAULT 0,
			comment_rows      BIGINT DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS analysis_reports (
			report_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT,
			data_file         TEXT,
			report_json       TEXT,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES sessions(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Session is one registry row describing an ingestion run.
type Session struct {
	RunID       string     `json:"run_id"`
	Name        string     `json:"name"`
	FilePath    string     `json:"file_path"`
	SerialPort  string     `json:"serial_port"`
	BaudRate    int        `json:"baud_rate"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	SampleRows  int64      `json:"sample_rows"`
	CommentRows int64      `json:"comment_rows"`
}

// CreateSession registers a new session and returns its run ID.
func (db *DB) CreateSession(s *Session) (string, error) {
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	_, err := db.Exec(`
		INSERT INTO sessions (run_id, name, file_path, serial_port, baud_rate, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Name, s.FilePath, s.SerialPort, s.BaudRate, s.StartedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return s.RunID, nil
}

// FinishSession records the end of a session and its final row counts.
func (db *DB) FinishSession(runID string, endedAt time.Time, sampleRows, commentRows int64) error {
	res, err := db.Exec(`
		UPDATE sessions SET ended_at = ?, sample_rows = ?, comment_rows = ?
		WHERE run_id = ?`,
		endedAt, sampleRows, commentRows, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish session %s: %w", runID, ErrNotFound)
	}
	return nil
}

// ListSessions returns all sessions, most recently started first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT run_id, name, file_path, serial_port, baud_rate,
		       started_at, ended_at, sample_rows, comment_rows
		FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var ended sql.NullTime
		if err := rows.Scan(&s.RunID, &s.Name, &s.FilePath, &s.SerialPort, &s.BaudRate,
			&s.StartedAt, &ended, &s.SampleRows, &s.CommentRows); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StoredReport is an archived analysis report.
type StoredReport struct {
	ReportID   int64     `json:"report_id"`
	RunID      string    `json:"run_id,omitempty"`
	DataFile   string    `json:"data_file"`
	ReportJSON []byte    `json:"report_json"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordAnalysisReport archives a report document. runID may be empty when
// the analyzed file was not produced by a registered session.
func (db *DB) RecordAnalysisReport(runID, dataFile string, reportJSON []byte) error {
	_, err := db.Exec(`
		INSERT INTO analysis_reports (run_id, data_file, report_json)
		VALUES (?, ?, ?)`,
		runID, dataFile, string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to record analysis report: %w", err)
	}
	return nil
}

// LatestAnalysisReport returns the most recently archived report.
func (db *DB) LatestAnalysisReport() (*StoredReport, error) {
	var r StoredReport
	var body string
	err := db.QueryRow(`
		SELECT report_id, run_id, data_file, report_json, created_at
		FROM analysis_reports ORDER BY report_id DESC LIMIT 1`).
		Scan(&r.ReportID, &r.RunID, &r.DataFile, &body, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest report: %w", err)
	}
	r.ReportJSON = []byte(body)
	return &r, nil
}

// SessionForFile returns the session that produced the given file path, if
// one is registered.
func (db *DB) SessionForFile(path string) (*Session, error) {
	var s Session
	var ended sql.NullTime
	err := db.QueryRow(`
		SELECT run_id, name, file_path, serial_port, baud_rate,
		       started_at, ended_at, sample_rows, comment_rows
		FROM sessions WHERE file_path = ? ORDER BY started_at DESC LIMIT 1`, path).
		Scan(&s.RunID, &s.Name, &s.FilePath, &s.SerialPort, &s.BaudRate,
			&s.StartedAt, &ended, &s.SampleRows, &s.CommentRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session for %s: %w", path, err)
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// AttachAdminRoutes mounts registry debugging endpoints under /debug/: a
// tailsql console over the registry and a gzipped on-demand backup.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://slipbench.db", db.DB, &tailsql.DBOptions{
		Label: "Session registry",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the registry now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			monitoring.Logf("failed to stream backup: %v", err)
		}
	}))
}
