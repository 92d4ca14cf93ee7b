package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loreforge/loreforge/internal/models"
)

// ErrJobTerminal is returned when a status change is requested on a job that
// has already reached a terminal state.
var ErrJobTerminal = errors.New("job is in a terminal state")

// JobRepository persists background jobs.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, project_id, task_kind, status, payload_json, result_json,
	error_message, total_items, processed_items, progress, created_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, job *models.BackgroundJob) error {
	query := `
		INSERT INTO background_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.ProjectID,
		string(job.TaskKind),
		string(job.Status),
		nullString(string(job.Payload)),
		nullString(string(job.Result)),
		nullString(job.ErrorMessage),
		job.TotalItems,
		job.ProcessedItems,
		job.Progress,
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.BackgroundJob, error) {
	query := `SELECT ` + jobColumns + ` FROM background_jobs WHERE id = ?`
	return scanJob(r.db.QueryRowContext(ctx, query, id))
}

// GetStatus reads only the status column. Used by the cancellation poller.
func (r *JobRepository) GetStatus(ctx context.Context, id string) (models.JobStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, "SELECT status FROM background_jobs WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read job status: %w", err)
	}
	return models.JobStatus(status), nil
}

func (r *JobRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.BackgroundJob, error) {
	query := `
		SELECT ` + jobColumns + ` FROM background_jobs
		WHERE project_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.BackgroundJob
	for rows.Next() {
		job, err := scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextPending atomically claims the oldest pending job.
// UPDATE ... RETURNING claims and fetches in one statement so no two callers
// can observe the same row. Returns nil when the queue is empty.
func (r *JobRepository) ClaimNextPending(ctx context.Context) (*models.BackgroundJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := formatTime(time.Now())
	query := `
		UPDATE background_jobs
		SET status = 'in_progress', updated_at = ?
		WHERE id = (
			SELECT id FROM background_jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(tx.QueryRowContext(ctx, query, now))
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		// No pending jobs - this is normal, not an error
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return job, nil
}

// Release reverts a freshly claimed job back to pending. Used when the job's
// task kind is already at its parallelism cap.
func (r *JobRepository) Release(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE background_jobs SET status = 'pending', updated_at = ? WHERE id = ? AND status = 'in_progress'",
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

// CountInProgressByKind counts in_progress and cancelling jobs of one kind.
// A cancelling job still occupies its worker slot until it finishes.
func (r *JobRepository) CountInProgressByKind(ctx context.Context, kind models.TaskKind) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM background_jobs WHERE task_kind = ? AND status IN ('in_progress', 'cancelling')",
		string(kind),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count in-progress jobs: %w", err)
	}
	return count, nil
}

// SetStatus updates the status and optional error message of a job.
func (r *JobRepository) SetStatus(ctx context.Context, id string, status models.JobStatus, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE background_jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
		string(status), nullString(errorMessage), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// Complete marks a job completed with its typed result and full progress.
func (r *JobRepository) Complete(ctx context.Context, id string, result []byte) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE background_jobs SET status = 'completed', result_json = ?, progress = 100, updated_at = ? WHERE id = ?",
		nullString(string(result)), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// UpdateProgress writes batch-boundary progress counters.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, totalItems, processedItems int, progress float64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE background_jobs SET total_items = ?, processed_items = ?, progress = ?, updated_at = ? WHERE id = ?",
		totalItems, processedItems, progress, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// RequestCancel transitions a job to cancelling. Pending jobs are canceled
// directly since no handler owns them. Returns ErrJobTerminal if the job has
// already finished. One guarded statement: a read-then-write here could stamp
// canceled onto a job a worker claimed in between.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) (models.JobStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `
		UPDATE background_jobs
		SET status = CASE status WHEN 'pending' THEN 'canceled' ELSE 'cancelling' END,
			updated_at = ?
		WHERE id = ? AND status IN ('pending', 'in_progress')
		RETURNING status`,
		formatTime(time.Now()), id,
	).Scan(&status)
	if err == sql.ErrNoRows {
		// The job is either missing or already past the cancellable states.
		job, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return "", getErr
		}
		if job == nil {
			return "", sql.ErrNoRows
		}
		return job.Status, ErrJobTerminal
	}
	if err != nil {
		return "", fmt.Errorf("failed to request job cancel: %w", err)
	}
	return models.JobStatus(status), nil
}

// ResetInProgress reverts every in_progress or cancelling job to pending.
// Run at startup: no worker outlives the process, so any such row is stale.
func (r *JobRepository) ResetInProgress(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE background_jobs SET status = 'pending', updated_at = ? WHERE status IN ('in_progress', 'cancelling')",
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-progress jobs: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func scanJob(row *sql.Row) (*models.BackgroundJob, error) {
	var job models.BackgroundJob
	var taskKind, status, createdAt, updatedAt string
	var payload, result, errorMessage sql.NullString

	err := row.Scan(
		&job.ID, &job.ProjectID, &taskKind, &status, &payload, &result,
		&errorMessage, &job.TotalItems, &job.ProcessedItems, &job.Progress,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.TaskKind = models.TaskKind(taskKind)
	job.Status = models.JobStatus(status)
	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if result.Valid {
		job.Result = []byte(result.String)
	}
	job.ErrorMessage = errorMessage.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)

	return &job, nil
}

func scanJobFromRows(rows *sql.Rows) (*models.BackgroundJob, error) {
	var job models.BackgroundJob
	var taskKind, status, createdAt, updatedAt string
	var payload, result, errorMessage sql.NullString

	err := rows.Scan(
		&job.ID, &job.ProjectID, &taskKind, &status, &payload, &result,
		&errorMessage, &job.TotalItems, &job.ProcessedItems, &job.Progress,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.TaskKind = models.TaskKind(taskKind)
	job.Status = models.JobStatus(status)
	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if result.Valid {
		job.Result = []byte(result.String)
	}
	job.ErrorMessage = errorMessage.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)

	return &job, nil
}
