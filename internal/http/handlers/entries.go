package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// EntryHandler handles lorebook entry endpoints.
type EntryHandler struct {
	repos *repository.Repositories
}

type EntryBody struct {
	Title    string   `json:"title" minLength:"1"`
	Content  string   `json:"content" minLength:"1"`
	Keywords []string `json:"keywords"`
}

type CreateEntryInput struct {
	ProjectID string `path:"project_id"`
	Body      EntryBody
}

type EntryOutput struct {
	Body *models.LorebookEntry
}

func (h *EntryHandler) CreateEntry(ctx context.Context, input *CreateEntryInput) (*EntryOutput, error) {
	project, err := h.repos.Project.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}

	now := time.Now().UTC()
	entry := &models.LorebookEntry{
		ID:        ulid.Make().String(),
		ProjectID: input.ProjectID,
		Title:     input.Body.Title,
		Content:   input.Body.Content,
		Keywords:  input.Body.Keywords,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repos.Entry.Create(ctx, entry); err != nil {
		return nil, huma.Error500InternalServerError("failed to create entry", err)
	}
	return &EntryOutput{Body: entry}, nil
}

type ListEntriesInput struct {
	ProjectID string `path:"project_id"`
}

type ListEntriesOutput struct {
	Body struct {
		Entries []*models.LorebookEntry `json:"entries"`
	}
}

func (h *EntryHandler) ListEntries(ctx context.Context, input *ListEntriesInput) (*ListEntriesOutput, error) {
	entries, err := h.repos.Entry.ListByProject(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list entries", err)
	}
	out := &ListEntriesOutput{}
	out.Body.Entries = entries
	return out, nil
}

type GetEntryInput struct {
	ID string `path:"id"`
}

func (h *EntryHandler) GetEntry(ctx context.Context, input *GetEntryInput) (*EntryOutput, error) {
	entry, err := h.repos.Entry.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load entry", err)
	}
	if entry == nil {
		return nil, huma.Error404NotFound("entry not found")
	}
	return &EntryOutput{Body: entry}, nil
}

type UpdateEntryInput struct {
	ID   string `path:"id"`
	Body EntryBody
}

func (h *EntryHandler) UpdateEntry(ctx context.Context, input *UpdateEntryInput) (*EntryOutput, error) {
	entry, err := h.repos.Entry.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load entry", err)
	}
	if entry == nil {
		return nil, huma.Error404NotFound("entry not found")
	}
	entry.Title = input.Body.Title
	entry.Content = input.Body.Content
	entry.Keywords = input.Body.Keywords
	if err := h.repos.Entry.Update(ctx, entry); err != nil {
		return nil, huma.Error500InternalServerError("failed to update entry", err)
	}
	return &EntryOutput{Body: entry}, nil
}

type DeleteEntryInput struct {
	ID string `path:"id"`
}

func (h *EntryHandler) DeleteEntry(ctx context.Context, input *DeleteEntryInput) (*EmptyOutput, error) {
	entry, err := h.repos.Entry.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load entry", err)
	}
	if entry == nil {
		return nil, huma.Error404NotFound("entry not found")
	}
	if err := h.repos.Entry.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete entry", err)
	}
	return &EmptyOutput{}, nil
}
