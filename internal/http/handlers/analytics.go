package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/loreforge/loreforge/internal/repository"
)

// AnalyticsHandler exposes aggregated per-project statistics.
type AnalyticsHandler struct {
	repos *repository.Repositories
}

type GetProjectAnalyticsInput struct {
	ProjectID string `path:"project_id"`
}

type GetProjectAnalyticsOutput struct {
	Body *repository.ProjectAnalytics
}

func (h *AnalyticsHandler) GetProjectAnalytics(ctx context.Context, input *GetProjectAnalyticsInput) (*GetProjectAnalyticsOutput, error) {
	project, err := h.repos.Project.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}
	analytics, err := h.repos.Analytics.GetProjectAnalytics(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to aggregate project analytics", err)
	}
	return &GetProjectAnalyticsOutput{Body: analytics}, nil
}
