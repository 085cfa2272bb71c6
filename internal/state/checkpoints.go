package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// SaveCheckpoint persists the JSON payload for a completed stage and advances
// the run's stage column in the same transaction. Re-saving a stage replaces
// the previous payload, so resumed runs overwrite rather than duplicate.
func (db *DB) SaveCheckpoint(runID string, stage models.Stage, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal checkpoint payload: %w", err)
	}

	now := formatTime(time.Now())
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO checkpoints (run_id, stage, payload, saved_at)
			VALUES (?, ?, ?, ?)
		`, runID, stage.String(), string(data), now); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}

		result, err := tx.Exec(`
			UPDATE runs SET stage = ?, updated_at = ? WHERE id = ?
		`, stage.String(), now, runID)
		if err != nil {
			return fmt.Errorf("advance run stage: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("advance run stage: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run not found: %s", runID)
		}
		return nil
	})
}

// LoadCheckpoint unmarshals the stored payload for the given stage into v.
// Returns false if no checkpoint exists for that stage.
func (db *DB) LoadCheckpoint(runID string, stage models.Stage, v any) (bool, error) {
	row := db.QueryRow(`
		SELECT payload FROM checkpoints WHERE run_id = ? AND stage = ?
	`, runID, stage.String())

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, fmt.Errorf("unmarshal checkpoint payload: %w", err)
	}
	return true, nil
}

// CheckpointStages returns the stages with saved payloads, in pipeline order.
func (db *DB) CheckpointStages(runID string) ([]models.Stage, error) {
	rows, err := db.Query(`
		SELECT stage FROM checkpoints WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		stage, err := models.ParseStage(name)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages, nil
}

// DegradedUnit is one unit of work that fell back instead of failing the run:
// a survey chunk tagged by heuristics, an unreadable upload, a diagram kept
// render-failed.
type DegradedUnit struct {
	Stage      models.Stage
	Unit       string
	Reason     string
	RecordedAt time.Time
}

// RecordDegraded appends a degraded-unit row for a stage.
func (db *DB) RecordDegraded(runID string, stage models.Stage, unit, reason string) error {
	_, err := db.Exec(`
		INSERT INTO degraded_units (run_id, stage, unit, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, stage.String(), unit, reason, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record degraded unit: %w", err)
	}
	return nil
}

// ListDegraded lists degraded units for a run in recording order.
func (db *DB) ListDegraded(runID string) ([]DegradedUnit, error) {
	rows, err := db.Query(`
		SELECT stage, unit, reason, recorded_at
		FROM degraded_units WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list degraded units: %w", err)
	}
	defer rows.Close()

	var units []DegradedUnit
	for rows.Next() {
		var u DegradedUnit
		var stage, recordedAt string
		if err := rows.Scan(&stage, &u.Unit, &u.Reason, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan degraded unit: %w", err)
		}
		parsed, err := models.ParseStage(stage)
		if err != nil {
			return nil, err
		}
		u.Stage = parsed
		u.RecordedAt, _ = parseTime(recordedAt)
		units = append(units, u)
	}
	return units, nil
}
