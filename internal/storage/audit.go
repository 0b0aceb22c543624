// Package storage persists resolution runs for later human review. The
// audit store lives outside the resolution core, which itself performs no
// I/O; callers record a finished ResolutionResult after Resolve returns.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// SQLite driver registration
	_ "github.com/mattn/go-sqlite3"

	"osint-resolver/internal/logging"
	"osint-resolver/pkg/types"
)

// AuditStore records resolution runs and their conflicts in SQLite.
type AuditStore struct {
	db     *sql.DB
	logger logging.Logger
}

// RunRecord is one persisted resolution run.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	Strategy     string    `json:"strategy"`
	Processed    int       `json:"processed"`
	Resolved     int       `json:"resolved"`
	Merged       int       `json:"merged"`
	ManualReview int       `json:"manual_review"`
	Conflicts    int       `json:"conflicts"`
	Partial      bool      `json:"partial"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// NewAuditStore opens (or creates) the audit database at path. Use
// ":memory:" for an ephemeral store.
func NewAuditStore(path string, logger logging.Logger) (*AuditStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store %s: %w", path, err)
	}
	if logger == nil {
		logger = logging.NewNoop()
	}
	store := &AuditStore{db: db, logger: logger.WithComponent("audit_store")}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

func (s *AuditStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolution_runs (
		run_id        TEXT PRIMARY KEY,
		strategy      TEXT NOT NULL,
		processed     INTEGER NOT NULL,
		resolved      INTEGER NOT NULL,
		merged        INTEGER NOT NULL,
		manual_review INTEGER NOT NULL,
		conflicts     INTEGER NOT NULL,
		partial       INTEGER NOT NULL,
		started_at    TIMESTAMP NOT NULL,
		completed_at  TIMESTAMP NOT NULL,
		result_json   TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS resolution_conflicts (
		id                TEXT PRIMARY KEY,
		run_id            TEXT NOT NULL REFERENCES resolution_runs(run_id),
		entity_1_id       TEXT NOT NULL,
		entity_2_id       TEXT NOT NULL,
		conflict_type     TEXT NOT NULL,
		field             TEXT,
		severity          TEXT NOT NULL,
		resolved          INTEGER NOT NULL,
		resolution_method TEXT,
		details_json      TEXT,
		detected_at       TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conflicts_run ON resolution_conflicts(run_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_unresolved ON resolution_conflicts(resolved) WHERE resolved = 0;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate audit store: %w", err)
	}
	return nil
}

// RecordRun persists a finished resolution result and its conflicts in
// one transaction.
func (s *AuditStore) RecordRun(ctx context.Context, result *types.ResolutionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resolution_runs (
			run_id, strategy, processed, resolved, merged, manual_review,
			conflicts, partial, started_at, completed_at, result_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Strategy,
		result.Metrics.EntitiesProcessed,
		result.Metrics.EntitiesResolved,
		result.Metrics.EntitiesMerged,
		result.Metrics.ManualReviewCount,
		len(result.ConflictsDetected),
		result.Partial,
		result.StartedAt,
		result.CompletedAt,
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	for i := range result.ConflictsDetected {
		c := &result.ConflictsDetected[i]
		detailsJSON, err := json.Marshal(c.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal conflict details: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO resolution_conflicts (
				id, run_id, entity_1_id, entity_2_id, conflict_type, field,
				severity, resolved, resolution_method, details_json, detected_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, result.RunID, c.Entity1ID, c.Entity2ID, string(c.Type), c.Field,
			string(c.Severity), c.Resolved, c.ResolutionMethod, string(detailsJSON), c.DetectedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert conflict %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}

	s.logger.Info("recorded resolution run",
		"run_id", result.RunID, "conflicts", len(result.ConflictsDetected))
	return nil
}

// GetRun fetches one persisted run by id.
func (s *AuditStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, strategy, processed, resolved, merged, manual_review,
		       conflicts, partial, started_at, completed_at
		FROM resolution_runs WHERE run_id = ?`, runID)

	var rec RunRecord
	err := row.Scan(&rec.RunID, &rec.Strategy, &rec.Processed, &rec.Resolved,
		&rec.Merged, &rec.ManualReview, &rec.Conflicts, &rec.Partial,
		&rec.StartedAt, &rec.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *AuditStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, strategy, processed, resolved, merged, manual_review,
		       conflicts, partial, started_at, completed_at
		FROM resolution_runs ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		err := rows.Scan(&rec.RunID, &rec.Strategy, &rec.Processed, &rec.Resolved,
			&rec.Merged, &rec.ManualReview, &rec.Conflicts, &rec.Partial,
			&rec.StartedAt, &rec.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UnresolvedConflicts returns the conflicts of a run still awaiting a
// human decision.
func (s *AuditStore) UnresolvedConflicts(ctx context.Context, runID string) ([]types.EntityConflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_1_id, entity_2_id, conflict_type, field, severity,
		       resolved, resolution_method, details_json, detected_at
		FROM resolution_conflicts
		WHERE run_id = ? AND resolved = 0
		ORDER BY detected_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []types.EntityConflict
	for rows.Next() {
		var c types.EntityConflict
		var conflictType, severity string
		var detailsJSON sql.NullString
		var method sql.NullString
		var field sql.NullString
		err := rows.Scan(&c.ID, &c.Entity1ID, &c.Entity2ID, &conflictType, &field,
			&severity, &c.Resolved, &method, &detailsJSON, &c.DetectedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		c.Type = types.ConflictType(conflictType)
		c.Severity = types.ConflictSeverity(severity)
		c.Field = field.String
		c.ResolutionMethod = method.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &c.Details); err != nil {
				s.logger.Error("failed to unmarshal conflict details", "conflict_id", c.ID, "error", err)
			}
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// MarkConflictResolved records a human decision on a stored conflict.
func (s *AuditStore) MarkConflictResolved(ctx context.Context, conflictID, method string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resolution_conflicts SET resolved = 1, resolution_method = ?
		WHERE id = ?`, method, conflictID)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict %s: %w", conflictID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("conflict %s not found", conflictID)
	}
	return nil
}
