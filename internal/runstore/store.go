package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/lifecycle"
)

// Store provides SQLite-backed persistence for workflows, runs, the
// append-only run event log, and model artifact records. It is handed
// to each component explicitly; there is no ambient connection state.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateWorkflow inserts a new workflow. The pipeline spec may be nil.
func (s *Store) CreateWorkflow(name string, spec *domain.PipelineSpec) (*domain.Workflow, error) {
	var specJSON sql.NullString
	if spec != nil {
		data, err := json.Marshal(spec)
		if err != nil {
			return nil, err
		}
		specJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO workflows (name, pipeline_spec, created_at) VALUES (?, ?, ?)`,
		name, specJSON, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &domain.Workflow{ID: id, Name: name, PipelineSpec: spec, CreatedAt: now}, nil
}

// GetWorkflow retrieves a workflow by ID
func (s *Store) GetWorkflow(id int64) (*domain.Workflow, error) {
	var wf domain.Workflow
	var specJSON sql.NullString

	err := s.db.QueryRow(`SELECT id, name, pipeline_spec, created_at FROM workflows WHERE id = ?`, id).
		Scan(&wf.ID, &wf.Name, &specJSON, &wf.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}

	if specJSON.Valid {
		var spec domain.PipelineSpec
		if err := json.Unmarshal([]byte(specJSON.String), &spec); err != nil {
			return nil, err
		}
		wf.PipelineSpec = &spec
	}
	return &wf, nil
}

// ListWorkflows returns all workflows, newest first
func (s *Store) ListWorkflows() ([]*domain.Workflow, error) {
	rows, err := s.db.Query(`SELECT id, name, pipeline_spec, created_at FROM workflows ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*domain.Workflow
	for rows.Next() {
		var wf domain.Workflow
		var specJSON sql.NullString
		if err := rows.Scan(&wf.ID, &wf.Name, &specJSON, &wf.CreatedAt); err != nil {
			return nil, err
		}
		if specJSON.Valid {
			var spec domain.PipelineSpec
			if err := json.Unmarshal([]byte(specJSON.String), &spec); err != nil {
				return nil, err
			}
			wf.PipelineSpec = &spec
		}
		workflows = append(workflows, &wf)
	}
	return workflows, rows.Err()
}

// CreateRun inserts a run in the queued state and writes its initial
// "Run queued" event in the same transaction.
func (s *Store) CreateRun(workflowID *int64) (*domain.Run, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	run := &domain.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     domain.RunQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var wfID sql.NullInt64
	if workflowID != nil {
		wfID = sql.NullInt64{Int64: *workflowID, Valid: true}
	}

	_, err = tx.Exec(`INSERT INTO runs (id, workflow_id, status, metrics, created_at, updated_at) VALUES (?, ?, ?, NULL, ?, ?)`,
		run.ID, wfID, string(run.Status), now, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`INSERT INTO run_events (run_id, ts, level, title, detail) VALUES (?, ?, ?, ?, ?)`,
		run.ID, now, string(domain.LevelInfo), "Run queued", "Awaiting trainer pickup")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`SELECT id, workflow_id, status, metrics, created_at, updated_at FROM runs WHERE id = ?`, id)
	return scanRun(row.Scan)
}

// ListRuns returns all runs, most recently created first
func (s *Store) ListRuns() ([]*domain.Run, error) {
	rows, err := s.db.Query(`SELECT id, workflow_id, status, metrics, created_at, updated_at FROM runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus advances a run's cached status. The transition is
// checked against the state machine inside the transaction; illegal
// transitions are rejected with ErrInvalidTransition.
func (s *Store) UpdateRunStatus(id string, status domain.RunStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT status FROM runs WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrRunNotFound
	}
	if err != nil {
		return err
	}

	if !lifecycle.CanTransition(domain.RunStatus(current), status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	_, err = tx.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceMetrics replaces a run's metrics snapshot wholesale. Last
// write wins; there is no merge.
func (s *Store) ReplaceMetrics(id string, metrics map[string]any) (*domain.Run, error) {
	data, err := json.Marshal(metrics)
	if err != nil {
		return nil, err
	}

	res, err := s.db.Exec(`UPDATE runs SET metrics = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrRunNotFound
	}
	return s.GetRun(id)
}

// CompleteRun atomically advances a run to completed and registers the
// produced artifact. A run that is already completed or failed returns
// ErrAlreadyTerminal and is left untouched, so retried completion
// calls cannot create duplicate model records.
func (s *Store) CompleteRun(id, modelName, modelPath string) (*domain.Run, *domain.Model, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT status FROM runs WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if lifecycle.Terminal(domain.RunStatus(current)) {
		return nil, nil, ErrAlreadyTerminal
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(domain.RunCompleted), now, id); err != nil {
		return nil, nil, err
	}

	res, err := tx.Exec(`INSERT INTO models (name, path, created_at) VALUES (?, ?, ?)`,
		modelName, modelPath, now)
	if err != nil {
		return nil, nil, err
	}
	modelID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	run, err := s.GetRun(id)
	if err != nil {
		return nil, nil, err
	}
	model := &domain.Model{ID: modelID, Name: modelName, Path: modelPath, CreatedAt: now}
	return run, model, nil
}

// AppendEvent appends one event to a run's log. The supplied timestamp
// is informational; the assigned row ID is the authoritative order. A
// zero ts is replaced with the current time.
func (s *Store) AppendEvent(runID string, level domain.EventLevel, title, detail string, ts time.Time) (*domain.RunEvent, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, err := s.db.Exec(`INSERT INTO run_events (run_id, ts, level, title, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, ts, string(level), title, detail)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &domain.RunEvent{ID: id, RunID: runID, TS: ts, Level: level, Title: title, Detail: detail}, nil
}

// ListEvents returns a run's full event history in assignment order
func (s *Store) ListEvents(runID string) ([]*domain.RunEvent, error) {
	return s.queryEvents(`SELECT id, run_id, ts, level, title, detail FROM run_events WHERE run_id = ? ORDER BY id ASC`, runID)
}

// ListEventsSince returns events with ID strictly greater than cursor,
// in assignment order. An empty result is valid and means no progress.
func (s *Store) ListEventsSince(runID string, cursor int64) ([]*domain.RunEvent, error) {
	return s.queryEvents(`SELECT id, run_id, ts, level, title, detail FROM run_events WHERE run_id = ? AND id > ? ORDER BY id ASC`, runID, cursor)
}

func (s *Store) queryEvents(query string, args ...any) ([]*domain.RunEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.RunEvent
	for rows.Next() {
		var ev domain.RunEvent
		var level string
		var detail sql.NullString
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.TS, &level, &ev.Title, &detail); err != nil {
			return nil, err
		}
		ev.Level = domain.EventLevel(level)
		if detail.Valid {
			ev.Detail = detail.String
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// ListRunsByStatus returns all runs with the given status
func (s *Store) ListRunsByStatus(status domain.RunStatus) ([]*domain.Run, error) {
	rows, err := s.db.Query(`SELECT id, workflow_id, status, metrics, created_at, updated_at FROM runs WHERE status = ? ORDER BY created_at ASC, id ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastEventTS returns the timestamp of a run's most recently appended
// event, or the zero time for a run with no events.
func (s *Store) LastEventTS(runID string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRow(`SELECT ts FROM run_events WHERE run_id = ? ORDER BY id DESC LIMIT 1`, runID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, err
}

// ListModels returns all model records, newest first
func (s *Store) ListModels() ([]*domain.Model, error) {
	rows, err := s.db.Query(`SELECT id, name, path, created_at FROM models ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*domain.Model
	for rows.Next() {
		var m domain.Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Path, &m.CreatedAt); err != nil {
			return nil, err
		}
		models = append(models, &m)
	}
	return models, rows.Err()
}

// GetModel retrieves a model record by ID
func (s *Store) GetModel(id int64) (*domain.Model, error) {
	var m domain.Model
	err := s.db.QueryRow(`SELECT id, name, path, created_at FROM models WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Path, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountRunsByStatus returns the number of runs per status
func (s *Store) CountRunsByStatus() (map[domain.RunStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountModels returns the number of model records
func (s *Store) CountModels() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM models`).Scan(&n)
	return n, err
}

// LatestRuns returns the n most recently created runs
func (s *Store) LatestRuns(n int) ([]*domain.Run, error) {
	rows, err := s.db.Query(`SELECT id, workflow_id, status, metrics, created_at, updated_at FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scan func(...any) error) (*domain.Run, error) {
	var run domain.Run
	var wfID sql.NullInt64
	var status string
	var metricsJSON sql.NullString

	err := scan(&run.ID, &wfID, &status, &metricsJSON, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if wfID.Valid {
		run.WorkflowID = &wfID.Int64
	}
	if metricsJSON.Valid && metricsJSON.String != "" && metricsJSON.String != "null" {
		if err := json.Unmarshal([]byte(metricsJSON.String), &run.Metrics); err != nil {
			return nil, err
		}
	}
	return &run, nil
}
