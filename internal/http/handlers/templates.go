package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// TemplateHandler handles global prompt template endpoints.
type TemplateHandler struct {
	repos *repository.Repositories
}

type ListTemplatesOutput struct {
	Body struct {
		Templates []*models.GlobalTemplate `json:"templates"`
	}
}

func (h *TemplateHandler) ListTemplates(ctx context.Context, input *struct{}) (*ListTemplatesOutput, error) {
	templates, err := h.repos.GlobalTemplate.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list templates", err)
	}
	out := &ListTemplatesOutput{}
	out.Body.Templates = templates
	return out, nil
}

type GetTemplateInput struct {
	ID string `path:"id"`
}

type TemplateOutput struct {
	Body *models.GlobalTemplate
}

func (h *TemplateHandler) GetTemplate(ctx context.Context, input *GetTemplateInput) (*TemplateOutput, error) {
	tpl, err := h.repos.GlobalTemplate.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load template", err)
	}
	if tpl == nil {
		return nil, huma.Error404NotFound("template not found")
	}
	return &TemplateOutput{Body: tpl}, nil
}

type UpsertTemplateInput struct {
	ID   string `path:"id" doc:"Stable template id, e.g. json-formatter-prompt"`
	Body struct {
		Name    string `json:"name" minLength:"1"`
		Content string `json:"content" minLength:"1" doc:"Role-delimited template text"`
	}
}

func (h *TemplateHandler) UpsertTemplate(ctx context.Context, input *UpsertTemplateInput) (*TemplateOutput, error) {
	now := time.Now().UTC()
	tpl := &models.GlobalTemplate{
		ID:        input.ID,
		Name:      input.Body.Name,
		Content:   input.Body.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repos.GlobalTemplate.Upsert(ctx, tpl); err != nil {
		return nil, huma.Error500InternalServerError("failed to save template", err)
	}
	return &TemplateOutput{Body: tpl}, nil
}

type DeleteTemplateInput struct {
	ID string `path:"id"`
}

func (h *TemplateHandler) DeleteTemplate(ctx context.Context, input *DeleteTemplateInput) (*EmptyOutput, error) {
	tpl, err := h.repos.GlobalTemplate.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load template", err)
	}
	if tpl == nil {
		return nil, huma.Error404NotFound("template not found")
	}
	if err := h.repos.GlobalTemplate.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete template", err)
	}
	return &EmptyOutput{}, nil
}
