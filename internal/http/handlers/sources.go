package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// SourceHandler handles project source endpoints, including the content
// version history.
type SourceHandler struct {
	repos *repository.Repositories
}

type SourceBody struct {
	Kind                 models.SourceKind `json:"kind" enum:"web_url,user_text_file,character_card" doc:"Where the content comes from"`
	URL                  string            `json:"url,omitempty" doc:"Page URL or file path"`
	RawContent           string            `json:"raw_content,omitempty" doc:"Inline content for user_text_file sources"`
	ContentSelectors     []string          `json:"content_selectors,omitempty"`
	CategorySelectors    []string          `json:"category_selectors,omitempty"`
	PaginationSelector   string            `json:"pagination_selector,omitempty"`
	URLExclusionPatterns []string          `json:"url_exclusion_patterns,omitempty" doc:"Substrings that disqualify a discovered URL"`
	MaxPagesToCrawl      int               `json:"max_pages_to_crawl,omitempty" default:"20" minimum:"1"`
	MaxCrawlDepth        int               `json:"max_crawl_depth,omitempty" default:"1" minimum:"0"`
}

type CreateSourceInput struct {
	ProjectID string `path:"project_id"`
	Body      SourceBody
}

type SourceOutput struct {
	Body *models.ProjectSource
}

func (h *SourceHandler) CreateSource(ctx context.Context, input *CreateSourceInput) (*SourceOutput, error) {
	project, err := h.repos.Project.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}

	now := time.Now().UTC()
	source := &models.ProjectSource{
		ID:                   ulid.Make().String(),
		ProjectID:            input.ProjectID,
		Kind:                 input.Body.Kind,
		URL:                  input.Body.URL,
		RawContent:           input.Body.RawContent,
		ContentSelectors:     input.Body.ContentSelectors,
		CategorySelectors:    input.Body.CategorySelectors,
		PaginationSelector:   input.Body.PaginationSelector,
		URLExclusionPatterns: input.Body.URLExclusionPatterns,
		MaxPagesToCrawl:      input.Body.MaxPagesToCrawl,
		MaxCrawlDepth:        input.Body.MaxCrawlDepth,
		ContentCharCount:     len(input.Body.RawContent),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if source.MaxPagesToCrawl <= 0 {
		source.MaxPagesToCrawl = 20
	}
	if err := h.repos.Source.Create(ctx, source); err != nil {
		return nil, huma.Error500InternalServerError("failed to create source", err)
	}
	return &SourceOutput{Body: source}, nil
}

type ListSourcesInput struct {
	ProjectID string `path:"project_id"`
}

type ListSourcesOutput struct {
	Body struct {
		Sources []*models.ProjectSource `json:"sources"`
	}
}

func (h *SourceHandler) ListSources(ctx context.Context, input *ListSourcesInput) (*ListSourcesOutput, error) {
	sources, err := h.repos.Source.ListByProject(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list sources", err)
	}
	out := &ListSourcesOutput{}
	out.Body.Sources = sources
	return out, nil
}

type GetSourceInput struct {
	ID string `path:"id"`
}

func (h *SourceHandler) GetSource(ctx context.Context, input *GetSourceInput) (*SourceOutput, error) {
	source, err := h.repos.Source.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load source", err)
	}
	if source == nil {
		return nil, huma.Error404NotFound("source not found")
	}
	return &SourceOutput{Body: source}, nil
}

type UpdateSourceInput struct {
	ID   string `path:"id"`
	Body SourceBody
}

func (h *SourceHandler) UpdateSource(ctx context.Context, input *UpdateSourceInput) (*SourceOutput, error) {
	source, err := h.repos.Source.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load source", err)
	}
	if source == nil {
		return nil, huma.Error404NotFound("source not found")
	}

	source.Kind = input.Body.Kind
	source.URL = input.Body.URL
	source.ContentSelectors = input.Body.ContentSelectors
	source.CategorySelectors = input.Body.CategorySelectors
	source.PaginationSelector = input.Body.PaginationSelector
	source.URLExclusionPatterns = input.Body.URLExclusionPatterns
	if input.Body.MaxPagesToCrawl > 0 {
		source.MaxPagesToCrawl = input.Body.MaxPagesToCrawl
	}
	source.MaxCrawlDepth = input.Body.MaxCrawlDepth
	if err := h.repos.Source.Update(ctx, source); err != nil {
		return nil, huma.Error500InternalServerError("failed to update source", err)
	}

	// Content updates go through the versioned path so the prior text is
	// snapshotted.
	if input.Body.RawContent != "" && input.Body.RawContent != source.RawContent {
		if _, err := h.repos.Source.ReplaceContent(ctx, source.ID, input.Body.RawContent, source.ContentType, ""); err != nil {
			return nil, huma.Error500InternalServerError("failed to update source content", err)
		}
		source, err = h.repos.Source.GetByID(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to reload source", err)
		}
	}
	return &SourceOutput{Body: source}, nil
}

type DeleteSourceInput struct {
	ID string `path:"id"`
}

func (h *SourceHandler) DeleteSource(ctx context.Context, input *DeleteSourceInput) (*EmptyOutput, error) {
	source, err := h.repos.Source.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load source", err)
	}
	if source == nil {
		return nil, huma.Error404NotFound("source not found")
	}
	if err := h.repos.Source.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete source", err)
	}
	return &EmptyOutput{}, nil
}

type ListVersionsInput struct {
	ID string `path:"id" doc:"Source ID"`
}

type ListVersionsOutput struct {
	Body struct {
		Versions []*models.SourceContentVersion `json:"versions"`
	}
}

func (h *SourceHandler) ListContentVersions(ctx context.Context, input *ListVersionsInput) (*ListVersionsOutput, error) {
	versions, err := h.repos.Source.ListContentVersions(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list content versions", err)
	}
	out := &ListVersionsOutput{}
	out.Body.Versions = versions
	return out, nil
}

type GetVersionInput struct {
	ID        string `path:"id" doc:"Source ID"`
	VersionID string `path:"version_id"`
}

type VersionOutput struct {
	Body *models.SourceContentVersion
}

func (h *SourceHandler) GetContentVersion(ctx context.Context, input *GetVersionInput) (*VersionOutput, error) {
	version, err := h.repos.Source.GetContentVersion(ctx, input.VersionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load content version", err)
	}
	if version == nil || version.SourceID != input.ID {
		return nil, huma.Error404NotFound("content version not found")
	}
	return &VersionOutput{Body: version}, nil
}

type RestoreVersionInput struct {
	ID        string `path:"id" doc:"Source ID"`
	VersionID string `path:"version_id"`
}

// RestoreContentVersion copies a snapshot back onto the source. The current
// content is snapshotted first, so a restore is itself undoable.
func (h *SourceHandler) RestoreContentVersion(ctx context.Context, input *RestoreVersionInput) (*SourceOutput, error) {
	version, err := h.repos.Source.GetContentVersion(ctx, input.VersionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load content version", err)
	}
	if version == nil || version.SourceID != input.ID {
		return nil, huma.Error404NotFound("content version not found")
	}
	source, err := h.repos.Source.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load source", err)
	}
	if source == nil {
		return nil, huma.Error404NotFound("source not found")
	}
	if _, err := h.repos.Source.ReplaceContent(ctx, source.ID, version.Content, source.ContentType, ""); err != nil {
		return nil, huma.Error500InternalServerError("failed to restore content", err)
	}
	source, err = h.repos.Source.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to reload source", err)
	}
	return &SourceOutput{Body: source}, nil
}
