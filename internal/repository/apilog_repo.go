package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loreforge/loreforge/internal/models"
)

// APILogRepository persists immutable LLM call audit records.
type APILogRepository struct {
	db *sql.DB
}

// NewAPILogRepository creates a new API log repository.
func NewAPILogRepository(db *sql.DB) *APILogRepository {
	return &APILogRepository{db: db}
}

const apiLogColumns = `id, project_id, job_id, provider, model, request_body, response_body,
	prompt_tokens, completion_tokens, cost, latency_ms, is_error, created_at`

// Create inserts one audit record.
func (r *APILogRepository) Create(ctx context.Context, l *models.APIRequestLog) error {
	return r.create(ctx, r.db, l)
}

// CreateTx is Create inside a caller-owned transaction, used by the batched
// entry-processing write.
func (r *APILogRepository) CreateTx(ctx context.Context, tx *sql.Tx, l *models.APIRequestLog) error {
	return r.create(ctx, tx, l)
}

func (r *APILogRepository) create(ctx context.Context, e execer, l *models.APIRequestLog) error {
	isError := 0
	if l.IsError {
		isError = 1
	}
	query := `
		INSERT INTO api_request_logs (` + apiLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := e.ExecContext(ctx, query,
		l.ID,
		l.ProjectID,
		nullString(l.JobID),
		l.Provider,
		l.Model,
		nullString(l.RequestBody),
		nullString(l.ResponseBody),
		l.PromptTokens,
		l.CompletionTokens,
		l.Cost,
		l.LatencyMs,
		isError,
		formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create api request log: %w", err)
	}
	return nil
}

func (r *APILogRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.APIRequestLog, error) {
	query := `
		SELECT ` + apiLogColumns + ` FROM api_request_logs
		WHERE project_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query api request logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.APIRequestLog
	for rows.Next() {
		var l models.APIRequestLog
		var jobID, requestBody, responseBody sql.NullString
		var isError int
		var createdAt string
		err := rows.Scan(
			&l.ID, &l.ProjectID, &jobID, &l.Provider, &l.Model, &requestBody, &responseBody,
			&l.PromptTokens, &l.CompletionTokens, &l.Cost, &l.LatencyMs, &isError, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api request log: %w", err)
		}
		l.JobID = jobID.String
		l.RequestBody = requestBody.String
		l.ResponseBody = responseBody.String
		l.IsError = isError == 1
		l.CreatedAt = parseTime(createdAt)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// CountByProject returns total and error log counts for a project.
func (r *APILogRepository) CountByProject(ctx context.Context, projectID string) (total, errors int, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_error), 0) FROM api_request_logs WHERE project_id = ?", projectID,
	).Scan(&total, &errors)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count api request logs: %w", err)
	}
	return total, errors, nil
}
