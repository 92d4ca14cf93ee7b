package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// LinkHandler handles link listing and curation endpoints.
type LinkHandler struct {
	repos *repository.Repositories
}

type ListLinksInput struct {
	ProjectID string `path:"project_id"`
	Status    string `query:"status" enum:"pending,processing,completed,failed,skipped," doc:"Optional status filter"`
}

type ListLinksOutput struct {
	Body struct {
		Links  []*models.Link            `json:"links"`
		Counts map[models.LinkStatus]int `json:"counts"`
	}
}

func (h *LinkHandler) ListLinks(ctx context.Context, input *ListLinksInput) (*ListLinksOutput, error) {
	var links []*models.Link
	var err error
	if input.Status != "" {
		links, err = h.repos.Link.ListByStatuses(ctx, input.ProjectID, models.LinkStatus(input.Status))
	} else {
		links, err = h.repos.Link.ListByProject(ctx, input.ProjectID)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list links", err)
	}
	counts, err := h.repos.Link.CountByStatus(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count links", err)
	}
	out := &ListLinksOutput{}
	out.Body.Links = links
	out.Body.Counts = counts
	return out, nil
}

type UpdateLinkInput struct {
	ID   string `path:"id"`
	Body struct {
		Status models.LinkStatus `json:"status" enum:"pending,completed,failed,skipped" doc:"New link status; use pending to requeue"`
	}
}

type LinkOutput struct {
	Body *models.Link
}

func (h *LinkHandler) UpdateLink(ctx context.Context, input *UpdateLinkInput) (*LinkOutput, error) {
	link, err := h.repos.Link.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load link", err)
	}
	if link == nil {
		return nil, huma.Error404NotFound("link not found")
	}
	if link.Status == models.LinkStatusProcessing {
		return nil, huma.Error409Conflict("link is being processed")
	}
	if err := h.repos.Link.SetStatus(ctx, input.ID, input.Body.Status); err != nil {
		return nil, huma.Error500InternalServerError("failed to update link", err)
	}
	link.Status = input.Body.Status
	return &LinkOutput{Body: link}, nil
}

type DeleteLinkInput struct {
	ID string `path:"id"`
}

func (h *LinkHandler) DeleteLink(ctx context.Context, input *DeleteLinkInput) (*EmptyOutput, error) {
	link, err := h.repos.Link.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load link", err)
	}
	if link == nil {
		return nil, huma.Error404NotFound("link not found")
	}
	if err := h.repos.Link.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete link", err)
	}
	return &EmptyOutput{}, nil
}
