package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loreforge/loreforge/internal/models"
)

// ProjectAnalytics aggregates a project's LLM spend and pipeline state.
// HasUnknownCosts is set when any log row carries the unknown-pricing
// sentinel cost of -1; such rows contribute zero to TotalCost.
type ProjectAnalytics struct {
	TotalRequests    int                       `json:"total_requests"`
	TotalCost        float64                   `json:"total_cost"`
	HasUnknownCosts  bool                      `json:"has_unknown_costs"`
	TotalInputTokens int                       `json:"total_input_tokens"`
	TotalOutputToken int                       `json:"total_output_tokens"`
	AverageLatencyMs float64                   `json:"average_latency_ms"`
	LinkStatusCounts map[models.LinkStatus]int `json:"link_status_counts"`
	JobStatusCounts  map[models.JobStatus]int  `json:"job_status_counts"`
	TotalEntries     int                       `json:"total_lorebook_entries"`
	TotalLinks       int                       `json:"total_links"`
	TotalJobs        int                       `json:"total_jobs"`
}

// AnalyticsRepository runs aggregate queries across the per-entity tables.
type AnalyticsRepository struct {
	db *sql.DB
}

// NewAnalyticsRepository creates a new analytics repository.
func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

var allLinkStatuses = []models.LinkStatus{
	models.LinkStatusPending,
	models.LinkStatusProcessing,
	models.LinkStatusCompleted,
	models.LinkStatusFailed,
	models.LinkStatusSkipped,
}

var allJobStatuses = []models.JobStatus{
	models.JobStatusPending,
	models.JobStatusInProgress,
	models.JobStatusCancelling,
	models.JobStatusCanceled,
	models.JobStatusCompleted,
	models.JobStatusFailed,
}

// GetProjectAnalytics aggregates request, link, job and entry statistics for
// one project. Every known status appears in the count maps, zero included.
func (r *AnalyticsRepository) GetProjectAnalytics(ctx context.Context, projectID string) (*ProjectAnalytics, error) {
	a := &ProjectAnalytics{
		LinkStatusCounts: make(map[models.LinkStatus]int, len(allLinkStatuses)),
		JobStatusCounts:  make(map[models.JobStatus]int, len(allJobStatuses)),
	}
	for _, s := range allLinkStatuses {
		a.LinkStatusCounts[s] = 0
	}
	for _, s := range allJobStatuses {
		a.JobStatusCounts[s] = 0
	}

	var hasUnknown int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN cost >= 0 THEN cost ELSE 0 END), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(MAX(CASE WHEN cost < 0 THEN 1 ELSE 0 END), 0)
		FROM api_request_logs
		WHERE project_id = ?`, projectID,
	).Scan(&a.TotalRequests, &a.TotalCost, &a.TotalInputTokens, &a.TotalOutputToken,
		&a.AverageLatencyMs, &hasUnknown)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate api logs: %w", err)
	}
	a.HasUnknownCosts = hasUnknown > 0

	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM links WHERE project_id = ? GROUP BY status", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		a.LinkStatusCounts[models.LinkStatus(status)] = count
		a.TotalLinks += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobRows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM background_jobs WHERE project_id = ? GROUP BY status", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer jobRows.Close()
	for jobRows.Next() {
		var status string
		var count int
		if err := jobRows.Scan(&status, &count); err != nil {
			return nil, err
		}
		a.JobStatusCounts[models.JobStatus(status)] = count
		a.TotalJobs += count
	}
	if err := jobRows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM lorebook_entries WHERE project_id = ?", projectID,
	).Scan(&a.TotalEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	return a, nil
}
