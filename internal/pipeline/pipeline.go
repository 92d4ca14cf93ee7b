// Package pipeline implements the task handlers behind each background job
// kind, from search-param generation through entry processing and the
// character card stages.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/crypto"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/prompt"
	"github.com/loreforge/loreforge/internal/ratelimit"
	"github.com/loreforge/loreforge/internal/repository"
	"github.com/loreforge/loreforge/internal/scraper"
	"github.com/loreforge/loreforge/internal/worker"
)

// Fetcher is the page-fetching dependency, satisfied by *scraper.Scraper.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts scraper.FetchOptions) (string, error)
}

// Config holds pipeline tunables.
type Config struct {
	// EntryBatchSize is how many phase-1 results are written per transaction.
	EntryBatchSize int

	// EntryConcurrency caps in-flight link tasks during entry processing.
	EntryConcurrency int64
}

// Pipeline carries the shared dependencies of all task handlers.
type Pipeline struct {
	repos       *repository.Repositories
	registry    *llm.Registry
	fetcher     Fetcher
	limiter     *ratelimit.Limiter
	broadcaster *events.Broadcaster
	encryptor   *crypto.Encryptor
	cfg         Config
	logger      *slog.Logger
}

// New creates the pipeline.
func New(
	repos *repository.Repositories,
	registry *llm.Registry,
	fetcher Fetcher,
	limiter *ratelimit.Limiter,
	broadcaster *events.Broadcaster,
	encryptor *crypto.Encryptor,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if cfg.EntryBatchSize <= 0 {
		cfg.EntryBatchSize = 10
	}
	if cfg.EntryConcurrency <= 0 {
		cfg.EntryConcurrency = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repos:       repos,
		registry:    registry,
		fetcher:     fetcher,
		limiter:     limiter,
		broadcaster: broadcaster,
		encryptor:   encryptor,
		cfg:         cfg,
		logger:      logger.With("component", "pipeline"),
	}
}

// RegisterHandlers binds every task kind to its handler.
func (p *Pipeline) RegisterHandlers(w *worker.Worker) {
	w.Register(models.TaskGenerateSearchParams, p.HandleGenerateSearchParams)
	w.Register(models.TaskDiscoverAndCrawlSources, p.HandleDiscoverAndCrawl)
	w.Register(models.TaskRescanLinks, p.HandleRescanLinks)
	w.Register(models.TaskConfirmLinks, p.HandleConfirmLinks)
	w.Register(models.TaskProcessProjectEntries, p.HandleProcessEntries)
	w.Register(models.TaskFetchSourceContent, p.HandleFetchSourceContent)
	w.Register(models.TaskGenerateCharacterCard, p.HandleGenerateCharacterCard)
	w.Register(models.TaskRegenerateCharacterField, p.HandleRegenerateCharacterField)
	w.Register(models.TaskAIEditSourceContent, p.HandleAIEditSourceContent)
}

// loadProject fetches the job's project or fails the job.
func (p *Pipeline) loadProject(ctx context.Context, projectID string) (*models.Project, error) {
	project, err := p.repos.Project.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	return project, nil
}

// buildProvider constructs the project's LLM provider from its credential.
func (p *Pipeline) buildProvider(ctx context.Context, project *models.Project) (llm.Provider, error) {
	if project.CredentialID == "" {
		return nil, errors.New("project has no credential configured")
	}
	cred, err := p.repos.Credential.GetByID(ctx, project.CredentialID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("credential %s not found", project.CredentialID)
	}

	opts := llm.BuildOptions{}
	for key, encrypted := range cred.Values {
		plain, derr := p.encryptor.Decrypt(encrypted)
		if derr != nil {
			return nil, fmt.Errorf("failed to decrypt credential value %q: %w", key, derr)
		}
		switch key {
		case "api_key":
			opts.APIKey = plain
		case "base_url":
			opts.BaseURL = plain
		}
	}
	return p.registry.Build(cred.Provider, opts)
}

// buildRequest assembles a generation request from project settings.
func (p *Pipeline) buildRequest(project *models.Project, messages []llm.Message, schema *llm.ResponseSchema) llm.Request {
	req := llm.Request{
		Model:    project.ModelName,
		Messages: messages,
		Schema:   schema,
	}
	if v, ok := project.ModelParams["temperature"].(float64); ok {
		req.Temperature = &v
	}
	if v, ok := project.ModelParams["max_tokens"].(float64); ok {
		req.MaxTokens = int(v)
	}
	if v, ok := project.ModelParams["reasoning_effort"].(string); ok {
		req.ReasoningEffort = v
	}
	return req
}

// generateWithLog runs one LLM call and returns the audit record alongside
// the response. The caller owns the log insert so batched stages can write
// it inside their transaction.
func (p *Pipeline) generateWithLog(
	ctx context.Context,
	provider llm.Provider,
	project *models.Project,
	jobID string,
	req llm.Request,
) (*llm.Response, *models.APIRequestLog, error) {
	if req.Schema != nil && provider.JSONStrategy() == llm.JSONStrategyPrompt {
		formatter, err := p.renderFormatterMessages(ctx, req.Schema)
		if err != nil {
			return nil, nil, err
		}
		req.FormatterMessages = formatter
	}

	resp, err := provider.Generate(ctx, req)

	record := &models.APIRequestLog{
		ID:        ulid.Make().String(),
		ProjectID: project.ID,
		JobID:     jobID,
		Provider:  provider.Name(),
		Model:     req.Model,
		CreatedAt: time.Now().UTC(),
	}
	if resp != nil {
		record.RequestBody = resp.RequestBody
		record.ResponseBody = resp.ResponseBody
		record.PromptTokens = resp.PromptTokens
		record.CompletionTokens = resp.CompletionTokens
		record.Cost = resp.Cost
		record.LatencyMs = resp.LatencyMs
	}
	if err != nil {
		record.IsError = true
		record.Cost = llm.CostUnknown
		var er *llm.ErrorResponse
		if errors.As(err, &er) {
			record.RequestBody = er.RequestBody
			record.ResponseBody = er.ResponseBody
			record.LatencyMs = er.LatencyMs
			if er.RawText != "" {
				record.ResponseBody = er.RawText
			}
		}
	}
	return resp, record, err
}

// generateAndLog is generateWithLog plus an immediate audit insert, for
// stages without batched writes.
func (p *Pipeline) generateAndLog(
	ctx context.Context,
	provider llm.Provider,
	project *models.Project,
	jobID string,
	req llm.Request,
) (*llm.Response, error) {
	resp, record, err := p.generateWithLog(ctx, provider, project, jobID, req)
	if record != nil {
		if lerr := p.repos.APILog.Create(ctx, record); lerr != nil {
			p.logger.Error("failed to write api request log", "project_id", project.ID, "error", lerr)
		}
	}
	return resp, err
}

// waitSlot blocks on the project's sliding-window rate limit. Every LLM
// call goes through it.
func (p *Pipeline) waitSlot(ctx context.Context, project *models.Project) error {
	return p.limiter.Wait(ctx, project.ID, project.RequestsPerMinute)
}

// renderFormatterMessages renders the json-formatter-prompt global template
// with the normalized schema and a synthesized example bound in.
func (p *Pipeline) renderFormatterMessages(ctx context.Context, schema *llm.ResponseSchema) ([]llm.Message, error) {
	tpl, err := p.repos.GlobalTemplate.GetByID(ctx, "json-formatter-prompt")
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, nil
	}

	normalized := llm.NormalizeSchema(schema.Schema)
	schemaJSON, _ := json.MarshalIndent(normalized, "", "  ")
	exampleJSON, _ := json.MarshalIndent(llm.ExampleFromSchema(normalized), "", "  ")

	return prompt.Render(tpl.Content, map[string]any{
		"schema":           string(schemaJSON),
		"example_response": string(exampleJSON),
	})
}

// emitJobStatus publishes the job's current row as a job_status_update.
func (p *Pipeline) emitJobStatus(ctx context.Context, jobID string) {
	job, err := p.repos.Job.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return
	}
	p.broadcaster.Publish(job.ProjectID, events.EventJobStatusUpdate, worker.StatusPayload(job))
}

// updateProgress writes progress counters and emits the matching event.
func (p *Pipeline) updateProgress(ctx context.Context, jobID string, total, processed int) {
	progress := float64(0)
	if total > 0 {
		progress = float64(processed) / float64(total) * 100
	}
	if err := p.repos.Job.UpdateProgress(ctx, jobID, total, processed, progress); err != nil {
		p.logger.Error("failed to update job progress", "job_id", jobID, "error", err)
	}
	p.emitJobStatus(ctx, jobID)
}

// emitLinkUpdated publishes a link state change.
func (p *Pipeline) emitLinkUpdated(projectID string, link *models.Link) {
	p.broadcaster.Publish(projectID, events.EventLinkUpdated, link)
}

// setProjectStatus updates the project lifecycle state.
func (p *Pipeline) setProjectStatus(ctx context.Context, projectID string, status models.ProjectStatus) error {
	return p.repos.Project.SetStatus(ctx, projectID, status)
}
