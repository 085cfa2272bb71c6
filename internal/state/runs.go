package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Run represents one pipeline run's persisted progress. Stage is the last
// completed boundary; Status tells whether the run is still moving.
type Run struct {
	ID          string
	Target      string
	OutputDir   string
	Stage       models.Stage
	Status      models.RunStatus
	ErrorKind   models.ErrorKind
	ErrorMsg    string
	TokensIn    int64
	TokensOut   int64
	Cost        float64
	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Run CRUD operations

// CreateRun creates a new run row.
func (db *DB) CreateRun(r *Run) error {
	if r.Status == "" {
		r.Status = models.RunRunning
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.StartedAt
	}

	_, err := db.Exec(`
		INSERT INTO runs (id, target, output_dir, stage, status, error_kind, error_msg, tokens_in, tokens_out, cost, started_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Target, r.OutputDir, r.Stage.String(), string(r.Status), nullString(string(r.ErrorKind)), nullString(r.ErrorMsg),
		r.TokensIn, r.TokensOut, r.Cost, formatTime(r.StartedAt), formatTime(r.UpdatedAt), nil)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil if no run exists.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, target, output_dir, stage, status, error_kind, error_msg, tokens_in, tokens_out, cost, started_at, updated_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// UpdateRun updates a run row.
func (db *DB) UpdateRun(r *Run) error {
	r.UpdatedAt = time.Now()
	var completedAt *string
	if r.CompletedAt != nil {
		s := formatTime(*r.CompletedAt)
		completedAt = &s
	}

	result, err := db.Exec(`
		UPDATE runs SET target = ?, output_dir = ?, stage = ?, status = ?, error_kind = ?, error_msg = ?,
			tokens_in = ?, tokens_out = ?, cost = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, r.Target, r.OutputDir, r.Stage.String(), string(r.Status), nullString(string(r.ErrorKind)), nullString(r.ErrorMsg),
		r.TokensIn, r.TokensOut, r.Cost, formatTime(r.UpdatedAt), completedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", r.ID)
	}
	return nil
}

// DeleteRun deletes a run by ID.
func (db *DB) DeleteRun(id string) error {
	_, err := db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// ListRuns lists all runs newest first, optionally filtered by status.
func (db *DB) ListRuns(status *models.RunStatus) ([]Run, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT id, target, output_dir, stage, status, error_kind, error_msg, tokens_in, tokens_out, cost, started_at, updated_at, completed_at
			FROM runs WHERE status = ? ORDER BY started_at DESC
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT id, target, output_dir, stage, status, error_kind, error_msg, tokens_in, tokens_out, cost, started_at, updated_at, completed_at
			FROM runs ORDER BY started_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, nil
}

// LatestRun returns the most recently started run, or nil if none exist.
func (db *DB) LatestRun() (*Run, error) {
	row := db.QueryRow(`
		SELECT id, target, output_dir, stage, status, error_kind, error_msg, tokens_in, tokens_out, cost, started_at, updated_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT 1
	`)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans one run row.
func scanRun(row scanner) (*Run, error) {
	var r Run
	var stage, status, startedAt, updatedAt string
	var errorKind, errorMsg, completedAt sql.NullString
	err := row.Scan(&r.ID, &r.Target, &r.OutputDir, &stage, &status, &errorKind, &errorMsg,
		&r.TokensIn, &r.TokensOut, &r.Cost, &startedAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	parsed, err := models.ParseStage(stage)
	if err != nil {
		return nil, err
	}
	r.Stage = parsed
	r.Status = models.RunStatus(status)
	if errorKind.Valid {
		r.ErrorKind = models.ErrorKind(errorKind.String)
	}
	if errorMsg.Valid {
		r.ErrorMsg = errorMsg.String
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.UpdatedAt, _ = parseTime(updatedAt)
	r.CompletedAt = parseNullableTime(completedAt)
	return &r, nil
}

// nullString maps "" to NULL for nullable text columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
