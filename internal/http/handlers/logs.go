package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// LogHandler exposes the LLM audit trail.
type LogHandler struct {
	repos *repository.Repositories
}

type ListLogsInput struct {
	ProjectID string `path:"project_id"`
	Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	Offset    int    `query:"offset" default:"0" minimum:"0"`
}

type ListLogsOutput struct {
	Body struct {
		Logs       []*models.APIRequestLog `json:"logs"`
		TotalCount int                     `json:"total_count"`
		ErrorCount int                     `json:"error_count"`
	}
}

func (h *LogHandler) ListLogs(ctx context.Context, input *ListLogsInput) (*ListLogsOutput, error) {
	logs, err := h.repos.APILog.ListByProject(ctx, input.ProjectID, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list api request logs", err)
	}
	total, errs, err := h.repos.APILog.CountByProject(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count api request logs", err)
	}
	out := &ListLogsOutput{}
	out.Body.Logs = logs
	out.Body.TotalCount = total
	out.Body.ErrorCount = errs
	return out, nil
}
