package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/prompt"
	"github.com/loreforge/loreforge/internal/repository"
	"github.com/loreforge/loreforge/internal/scraper"
	"github.com/loreforge/loreforge/internal/worker"
)

var characterCardSchema = &llm.ResponseSchema{
	Name: "character_card",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":             map[string]any{"type": "string"},
			"description":      map[string]any{"type": "string"},
			"persona":          map[string]any{"type": "string"},
			"scenario":         map[string]any{"type": "string"},
			"first_message":    map[string]any{"type": "string"},
			"example_messages": map[string]any{"type": "string"},
		},
		"required": []any{"name", "description", "persona", "scenario", "first_message", "example_messages"},
	},
}

var newContentSchema = &llm.ResponseSchema{
	Name: "new_content",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"new_content": map[string]any{"type": "string"},
		},
		"required": []any{"new_content"},
	},
}

type newContentResponse struct {
	NewContent string `json:"new_content"`
}

// HandleFetchSourceContent scrapes every listed source and stores the
// cleaned markdown on the source row. No LLM calls.
func (p *Pipeline) HandleFetchSourceContent(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	var payload models.FetchSourceContentPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	if len(payload.SourceIDs) == 0 {
		return nil, fmt.Errorf("no sources to fetch")
	}

	p.updateProgress(ctx, job.ID, len(payload.SourceIDs), 0)

	fetched := 0
	for i, sourceID := range payload.SourceIDs {
		if cancelled.IsSet() {
			return nil, worker.ErrCanceled
		}
		source, err := p.repos.Source.GetByID(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if source == nil {
			return nil, fmt.Errorf("source %s not found", sourceID)
		}
		content, err := p.fetcher.Fetch(ctx, source.URL, scraper.FetchOptions{Clean: true, Markdown: true})
		if err != nil {
			return nil, fmt.Errorf("fetch source %s: %w", source.URL, err)
		}
		if _, err := p.repos.Source.ReplaceContent(ctx, source.ID, content, "markdown", ""); err != nil {
			return nil, err
		}
		fetched++
		p.updateProgress(ctx, job.ID, len(payload.SourceIDs), i+1)
	}

	return models.FetchSourceContentResult{SourcesFetched: fetched}, nil
}

// HandleGenerateCharacterCard renders the stored source contents into the
// character template and persists the project's single card.
func (p *Pipeline) HandleGenerateCharacterCard(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	var payload models.GenerateCharacterCardPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}

	project, err := p.loadProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	content, err := p.concatSourceContents(ctx, project.ID, payload.SourceIDs)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("no source content available for card generation")
	}

	messages, err := prompt.Render(resolveTemplate(project, templateCharacter), map[string]any{
		"project": map[string]any{
			"name":   project.Name,
			"prompt": project.Prompt,
		},
		"content": content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render character template: %w", err)
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
	resp, err := p.generateAndLog(ctx, provider, project, job.ID, p.buildRequest(project, messages, characterCardSchema))
	if err != nil {
		return nil, err
	}

	var card models.CharacterCard
	if err := json.Unmarshal(resp.Parsed, &card); err != nil {
		return nil, fmt.Errorf("failed to decode character card: %w", err)
	}
	existing, err := p.repos.CharacterCard.GetByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		card.ID = existing.ID
		card.CreatedAt = existing.CreatedAt
	} else {
		card.ID = ulid.Make().String()
		card.CreatedAt = time.Now().UTC()
	}
	card.ProjectID = project.ID
	card.UpdatedAt = time.Now().UTC()
	if err := p.repos.CharacterCard.Upsert(ctx, &card); err != nil {
		return nil, err
	}
	if err := p.setProjectStatus(ctx, project.ID, models.ProjectStatusCompleted); err != nil {
		return nil, err
	}
	return models.CharacterCardResult{CardID: card.ID}, nil
}

// HandleRegenerateCharacterField rewrites one card field using an optional
// bundle of existing fields and source contents as context.
func (p *Pipeline) HandleRegenerateCharacterField(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	var payload models.RegenerateCharacterFieldPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	if !repository.ValidCardField(payload.FieldName) {
		return nil, fmt.Errorf("unknown character card field %q", payload.FieldName)
	}

	project, err := p.loadProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	card, err := p.repos.CharacterCard.GetByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("project %s has no character card", project.ID)
	}

	content, err := p.concatSourceContents(ctx, project.ID, payload.SourceIDs)
	if err != nil {
		return nil, err
	}

	messages, err := prompt.Render(resolveTemplate(project, templateCharacterField), map[string]any{
		"project": map[string]any{
			"name":   project.Name,
			"prompt": project.Prompt,
		},
		"field_name":   payload.FieldName,
		"card_context": cardContext(card, payload.IncludeFields),
		"content":      content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render field regeneration template: %w", err)
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
	resp, err := p.generateAndLog(ctx, provider, project, job.ID, p.buildRequest(project, messages, newContentSchema))
	if err != nil {
		return nil, err
	}

	var decoded newContentResponse
	if err := json.Unmarshal(resp.Parsed, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode field content: %w", err)
	}
	if err := p.repos.CharacterCard.SetField(ctx, project.ID, payload.FieldName, decoded.NewContent); err != nil {
		return nil, err
	}
	return models.CharacterCardResult{CardID: card.ID}, nil
}

// HandleAIEditSourceContent rewrites one source's stored content per an edit
// instruction, snapshotting the prior content first.
func (p *Pipeline) HandleAIEditSourceContent(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	var payload models.AIEditSourceContentPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	if payload.SourceID == "" || payload.EditInstruction == "" {
		return nil, fmt.Errorf("source id and edit instruction are required")
	}

	project, err := p.loadProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	source, err := p.repos.Source.GetByID(ctx, payload.SourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("source %s not found", payload.SourceID)
	}
	if source.RawContent == "" {
		return nil, fmt.Errorf("source %s has no content to edit", payload.SourceID)
	}

	var b strings.Builder
	b.WriteString("Edit instruction:\n")
	b.WriteString(payload.EditInstruction)
	if payload.FullContext {
		if extra, cerr := p.concatSourceContents(ctx, project.ID, nil); cerr == nil && extra != "" {
			b.WriteString("\n\nFull project context:\n")
			b.WriteString(extra)
		}
	}
	b.WriteString("\n\nOriginal content:\n")
	b.WriteString(source.RawContent)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You apply an edit instruction to a document and return the complete revised document. Preserve everything the instruction does not touch."},
		{Role: llm.RoleUser, Content: b.String()},
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
	resp, err := p.generateAndLog(ctx, provider, project, job.ID, p.buildRequest(project, messages, newContentSchema))
	if err != nil {
		return nil, err
	}

	var decoded newContentResponse
	if err := json.Unmarshal(resp.Parsed, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode edited content: %w", err)
	}
	versionID, err := p.repos.Source.ReplaceContent(ctx, source.ID, decoded.NewContent, source.ContentType, "")
	if err != nil {
		return nil, err
	}
	return models.AIEditResult{SourceID: source.ID, VersionID: versionID}, nil
}

// concatSourceContents joins the stored contents of the named sources, or of
// every project source when ids is empty.
func (p *Pipeline) concatSourceContents(ctx context.Context, projectID string, ids []string) (string, error) {
	var sources []*models.ProjectSource
	if len(ids) == 0 {
		all, err := p.repos.Source.ListByProject(ctx, projectID)
		if err != nil {
			return "", err
		}
		sources = all
	} else {
		for _, id := range ids {
			s, err := p.repos.Source.GetByID(ctx, id)
			if err != nil {
				return "", err
			}
			if s == nil {
				return "", fmt.Errorf("source %s not found", id)
			}
			sources = append(sources, s)
		}
	}

	var parts []string
	for _, s := range sources {
		if s.RawContent == "" {
			continue
		}
		label := s.URL
		if label == "" {
			label = s.ID
		}
		parts = append(parts, fmt.Sprintf("## Source: %s\n\n%s", label, s.RawContent))
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

// cardContext renders the existing card fields selected for the prompt.
// An empty include list means all non-empty fields.
func cardContext(card *models.CharacterCard, include []string) string {
	fields := []struct {
		name  string
		value string
	}{
		{"name", card.Name},
		{"description", card.Description},
		{"persona", card.Persona},
		{"scenario", card.Scenario},
		{"first_message", card.FirstMessage},
		{"example_messages", card.ExampleMessages},
	}
	wanted := make(map[string]bool, len(include))
	for _, f := range include {
		wanted[f] = true
	}

	var b strings.Builder
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if len(include) > 0 && !wanted[f.name] {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", f.name, f.value)
	}
	return strings.TrimSpace(b.String())
}
