package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/prompt"
	"github.com/loreforge/loreforge/internal/worker"
)

var searchParamsSchema = &llm.ResponseSchema{
	Name: "search_params",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"purpose":          map[string]any{"type": "string"},
			"extraction_notes": map[string]any{"type": "string"},
			"criteria":         map[string]any{"type": "string"},
		},
		"required": []any{"purpose", "extraction_notes", "criteria"},
	},
}

// HandleGenerateSearchParams derives search parameters from the project
// prompt and advances the project to search_params_generated.
func (p *Pipeline) HandleGenerateSearchParams(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	project, err := p.loadProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Prompt == "" {
		return nil, errors.New("project prompt is empty")
	}

	messages, err := prompt.Render(resolveTemplate(project, templateSearchParams), map[string]any{
		"project": map[string]any{
			"name":   project.Name,
			"prompt": project.Prompt,
			"kind":   string(project.Kind),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render search params template: %w", err)
	}

	provider, err := p.buildProvider(ctx, project)
	if err != nil {
		return nil, err
	}
	if cancelled.IsSet() {
		return nil, worker.ErrCanceled
	}
	if err := p.waitSlot(ctx, project); err != nil {
		return nil, err
	}

	resp, err := p.generateAndLog(ctx, provider, project, job.ID, p.buildRequest(project, messages, searchParamsSchema))
	if err != nil {
		return nil, err
	}

	var params models.SearchParams
	if err := json.Unmarshal(resp.Parsed, &params); err != nil {
		return nil, fmt.Errorf("failed to decode search params: %w", err)
	}
	if err := p.repos.Project.SetSearchParams(ctx, project.ID, &params); err != nil {
		return nil, err
	}
	if err := p.setProjectStatus(ctx, project.ID, models.ProjectStatusSearchParamsGenerated); err != nil {
		return nil, err
	}
	return params, nil
}
