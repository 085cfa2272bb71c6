// Package history keeps the global cross-project run ledger
// (~/.local/share/glassbox/history.db): one row per finished run with its
// target, final stage, token usage, and cost estimate.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one run's row in the ledger.
type Entry struct {
	RunID      string
	Target     string
	Project    string
	FinalStage string
	Status     string
	TokensIn   int64
	TokensOut  int64
	Cost       float64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store manages the run ledger database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the path to the global ledger database.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "glassbox", "history.db")
}

// Open opens the ledger at the given path, creating it if needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Create table if not exists
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			target TEXT,
			project TEXT,
			final_stage TEXT,
			status TEXT,
			tokens_in INT,
			tokens_out INT,
			cost REAL,
			started_at DATETIME,
			finished_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Record upserts a run's ledger row. Resumed runs overwrite their earlier
// entry, so the ledger always shows each run's final shape.
func (s *Store) Record(e *Entry) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs (run_id, target, project, final_stage, status, tokens_in, tokens_out, cost, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Target, e.Project, e.FinalStage, e.Status, e.TokensIn, e.TokensOut, e.Cost, e.StartedAt, e.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	return nil
}

// Get retrieves a run's ledger row by ID.
func (s *Store) Get(runID string) (*Entry, error) {
	row := s.db.QueryRow(`
		SELECT run_id, target, project, final_stage, status, tokens_in, tokens_out, cost, started_at, finished_at
		FROM runs
		WHERE run_id = ?
	`, runID)

	var e Entry
	err := row.Scan(
		&e.RunID,
		&e.Target,
		&e.Project,
		&e.FinalStage,
		&e.Status,
		&e.TokensIn,
		&e.TokensOut,
		&e.Cost,
		&e.StartedAt,
		&e.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	return &e, nil
}

// List returns ledger rows newest first. A limit <= 0 returns all rows.
func (s *Store) List(limit int) ([]Entry, error) {
	query := `
		SELECT run_id, target, project, final_stage, status, tokens_in, tokens_out, cost, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.RunID,
			&e.Target,
			&e.Project,
			&e.FinalStage,
			&e.Status,
			&e.TokensIn,
			&e.TokensOut,
			&e.Cost,
			&e.StartedAt,
			&e.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete removes a run's ledger row by ID.
func (s *Store) Delete(runID string) error {
	result, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
