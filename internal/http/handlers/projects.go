package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// ProjectHandler handles project CRUD endpoints.
type ProjectHandler struct {
	repos *repository.Repositories
}

// ProjectBody is the writable subset of a project.
type ProjectBody struct {
	Name              string                  `json:"name" minLength:"1" maxLength:"200" doc:"Display name"`
	Prompt            string                  `json:"prompt,omitempty" doc:"Research goal driving the pipeline"`
	Kind              models.ProjectKind      `json:"kind" enum:"lorebook,character" doc:"Artifact the project produces"`
	Templates         models.ProjectTemplates `json:"templates,omitempty" doc:"Per-project prompt template overrides"`
	CredentialID      string                  `json:"credential_id,omitempty" doc:"Credential used for LLM calls"`
	ModelName         string                  `json:"model_name,omitempty" doc:"Model identifier passed to the provider"`
	ModelParams       map[string]any          `json:"model_params,omitempty" doc:"Provider parameters (temperature, max_tokens, reasoning_effort)"`
	RequestsPerMinute int                     `json:"requests_per_minute,omitempty" minimum:"0" doc:"Per-project LLM rate limit; 0 is unlimited"`
}

type CreateProjectInput struct {
	Body ProjectBody
}

type ProjectOutput struct {
	Body *models.Project
}

func (h *ProjectHandler) CreateProject(ctx context.Context, input *CreateProjectInput) (*ProjectOutput, error) {
	now := time.Now().UTC()
	project := &models.Project{
		ID:                ulid.Make().String(),
		Name:              input.Body.Name,
		Prompt:            input.Body.Prompt,
		Kind:              input.Body.Kind,
		Status:            models.ProjectStatusDraft,
		Templates:         input.Body.Templates,
		CredentialID:      input.Body.CredentialID,
		ModelName:         input.Body.ModelName,
		ModelParams:       input.Body.ModelParams,
		RequestsPerMinute: input.Body.RequestsPerMinute,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := h.repos.Project.Create(ctx, project); err != nil {
		return nil, huma.Error500InternalServerError("failed to create project", err)
	}
	return &ProjectOutput{Body: project}, nil
}

type ListProjectsInput struct {
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"200"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

type ListProjectsOutput struct {
	Body struct {
		Projects []*models.Project `json:"projects"`
	}
}

func (h *ProjectHandler) ListProjects(ctx context.Context, input *ListProjectsInput) (*ListProjectsOutput, error) {
	projects, err := h.repos.Project.List(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list projects", err)
	}
	out := &ListProjectsOutput{}
	out.Body.Projects = projects
	return out, nil
}

type GetProjectInput struct {
	ID string `path:"id" doc:"Project ID"`
}

func (h *ProjectHandler) GetProject(ctx context.Context, input *GetProjectInput) (*ProjectOutput, error) {
	project, err := h.repos.Project.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}
	return &ProjectOutput{Body: project}, nil
}

type UpdateProjectInput struct {
	ID   string `path:"id"`
	Body ProjectBody
}

func (h *ProjectHandler) UpdateProject(ctx context.Context, input *UpdateProjectInput) (*ProjectOutput, error) {
	project, err := h.repos.Project.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}

	project.Name = input.Body.Name
	project.Prompt = input.Body.Prompt
	project.Kind = input.Body.Kind
	project.Templates = input.Body.Templates
	project.CredentialID = input.Body.CredentialID
	project.ModelName = input.Body.ModelName
	project.ModelParams = input.Body.ModelParams
	project.RequestsPerMinute = input.Body.RequestsPerMinute
	if err := h.repos.Project.Update(ctx, project); err != nil {
		return nil, huma.Error500InternalServerError("failed to update project", err)
	}
	return &ProjectOutput{Body: project}, nil
}

type DeleteProjectInput struct {
	ID string `path:"id"`
}

type EmptyOutput struct{}

func (h *ProjectHandler) DeleteProject(ctx context.Context, input *DeleteProjectInput) (*EmptyOutput, error) {
	project, err := h.repos.Project.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}
	if err := h.repos.Project.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete project", err)
	}
	return &EmptyOutput{}, nil
}
