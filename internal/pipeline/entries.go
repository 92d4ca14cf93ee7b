package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/prompt"
	"github.com/loreforge/loreforge/internal/scraper"
	"github.com/loreforge/loreforge/internal/worker"
)

var entrySchema = &llm.ResponseSchema{
	Name: "lorebook_entry",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"valid":  map[string]any{"type": "boolean"},
			"reason": map[string]any{"type": "string"},
			"entry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
					"keywords": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required": []any{"title", "content", "keywords"},
			},
		},
		"required": []any{"valid"},
	},
}

type entryPayload struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

type entryResponse struct {
	Valid  bool          `json:"valid"`
	Reason string        `json:"reason"`
	Entry  *entryPayload `json:"entry"`
}

type linkOutcome int

const (
	outcomeSuccess linkOutcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeCanceled
)

// linkResult is one phase-1 result awaiting its batched write.
type linkResult struct {
	link       *models.Link
	outcome    linkOutcome
	entry      *entryPayload
	reason     string
	errMessage string
	rawContent string
	log        *models.APIRequestLog
}

// HandleProcessEntries turns every pending or failed link into a lorebook
// entry. Link I/O runs concurrently under a semaphore; results are written
// in batched transactions so the UI sees steady progress.
func (p *Pipeline) HandleProcessEntries(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	project, err := p.loadProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.SearchParams == nil {
		return nil, fmt.Errorf("project %s has no search params", project.ID)
	}
	provider, err := p.buildProvider(ctx, project)
	if err != nil {
		return nil, err
	}

	links, err := p.repos.Link.ListByStatuses(ctx, project.ID, models.LinkStatusPending, models.LinkStatusFailed)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		if err := p.setProjectStatus(ctx, project.ID, models.ProjectStatusCompleted); err != nil {
			return nil, err
		}
		return models.ProcessEntriesResult{}, nil
	}

	for _, link := range links {
		if err := p.repos.Link.SetStatus(ctx, link.ID, models.LinkStatusProcessing); err != nil {
			return nil, err
		}
		link.Status = models.LinkStatusProcessing
		link.ErrorMessage = ""
		link.SkipReason = ""
		p.emitLinkUpdated(project.ID, link)
	}

	if err := p.setProjectStatus(ctx, project.ID, models.ProjectStatusProcessing); err != nil {
		return nil, err
	}
	p.updateProgress(ctx, job.ID, len(links), 0)

	results := make(chan linkResult, len(links))
	sem := semaphore.NewWeighted(p.cfg.EntryConcurrency)
	var wg sync.WaitGroup
	for _, link := range links {
		wg.Add(1)
		go func(link *models.Link) {
			defer wg.Done()
			results <- p.processLink(ctx, project, provider, job.ID, link, sem, cancelled)
		}(link)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		batch     []linkResult
		processed int
		tally     models.ProcessEntriesResult
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		tx, terr := p.repos.BeginTx(ctx)
		if terr != nil {
			return terr
		}
		defer func() { _ = tx.Rollback() }()

		var created []*models.LorebookEntry
		var updated []*models.Link
		for _, r := range batch {
			if r.log != nil {
				if err := p.repos.APILog.CreateTx(ctx, tx, r.log); err != nil {
					return err
				}
			}
			switch r.outcome {
			case outcomeSuccess:
				entry := &models.LorebookEntry{
					ID:        ulid.Make().String(),
					ProjectID: project.ID,
					Title:     r.entry.Title,
					Content:   r.entry.Content,
					Keywords:  r.entry.Keywords,
					SourceURL: r.link.URL,
					CreatedAt: time.Now().UTC(),
					UpdatedAt: time.Now().UTC(),
				}
				if err := p.repos.Entry.CreateTx(ctx, tx, entry); err != nil {
					return err
				}
				if err := p.repos.Link.MarkCompletedTx(ctx, tx, r.link.ID, entry.ID, r.rawContent); err != nil {
					return err
				}
				r.link.Status = models.LinkStatusCompleted
				r.link.LorebookEntryID = entry.ID
				created = append(created, entry)
				updated = append(updated, r.link)
				tally.EntriesCreated++
			case outcomeSkipped:
				if err := p.repos.Link.MarkSkippedTx(ctx, tx, r.link.ID, r.reason, r.rawContent); err != nil {
					return err
				}
				r.link.Status = models.LinkStatusSkipped
				r.link.SkipReason = r.reason
				updated = append(updated, r.link)
				tally.EntriesSkipped++
			case outcomeFailed:
				if err := p.repos.Link.MarkFailedTx(ctx, tx, r.link.ID, r.errMessage); err != nil {
					return err
				}
				r.link.Status = models.LinkStatusFailed
				r.link.ErrorMessage = r.errMessage
				updated = append(updated, r.link)
				tally.EntriesFailed++
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		for _, entry := range created {
			p.broadcaster.Publish(project.ID, events.EventEntryCreated, entry)
		}
		for _, link := range updated {
			p.emitLinkUpdated(project.ID, link)
		}
		batch = batch[:0]
		p.updateProgress(ctx, job.ID, len(links), processed)
		return nil
	}

	for r := range results {
		if r.outcome == outcomeCanceled {
			if r.log != nil {
				if lerr := p.repos.APILog.Create(ctx, r.log); lerr != nil {
					p.logger.Error("failed to write api request log", "project_id", project.ID, "error", lerr)
				}
			}
		} else {
			processed++
			batch = append(batch, r)
		}
		if len(batch) >= p.cfg.EntryBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
			if cancelled.IsSet() {
				break
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if cancelled.IsSet() {
		// Drain anything still in flight, then put untouched links back.
		for r := range results {
			if r.log != nil {
				if lerr := p.repos.APILog.Create(ctx, r.log); lerr != nil {
					p.logger.Error("failed to write api request log", "project_id", project.ID, "error", lerr)
				}
			}
		}
		if _, rerr := p.repos.Link.ResetProcessing(ctx, project.ID); rerr != nil {
			p.logger.Error("failed to reset processing links", "project_id", project.ID, "error", rerr)
		}
		return nil, worker.ErrCanceled
	}

	final := models.ProjectStatusCompleted
	if tally.EntriesFailed > 0 {
		final = models.ProjectStatusFailed
	}
	if err := p.setProjectStatus(ctx, project.ID, final); err != nil {
		return nil, err
	}
	return tally, nil
}

// processLink is one phase-1 task: scrape, prompt, classify. It never
// touches the database.
func (p *Pipeline) processLink(
	ctx context.Context,
	project *models.Project,
	provider llm.Provider,
	jobID string,
	link *models.Link,
	sem *semaphore.Weighted,
	cancelled *worker.Flag,
) linkResult {
	if cancelled.IsSet() {
		return linkResult{link: link, outcome: outcomeCanceled}
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return linkResult{link: link, outcome: outcomeCanceled}
	}
	defer sem.Release(1)

	content := link.RawContent
	if content == "" {
		fetched, err := p.fetcher.Fetch(ctx, link.URL, scraper.FetchOptions{Clean: true, Markdown: true})
		if err != nil {
			return linkResult{link: link, outcome: outcomeFailed, errMessage: err.Error()}
		}
		content = fetched
	}

	if err := p.waitSlot(ctx, project); err != nil {
		return linkResult{link: link, outcome: outcomeCanceled}
	}
	if cancelled.IsSet() {
		return linkResult{link: link, outcome: outcomeCanceled}
	}

	messages, err := prompt.Render(resolveTemplate(project, templateEntryCreation), map[string]any{
		"search_params": map[string]any{
			"purpose":          project.SearchParams.Purpose,
			"extraction_notes": project.SearchParams.ExtractionNotes,
			"criteria":         project.SearchParams.Criteria,
		},
		"url":     link.URL,
		"content": content,
	})
	if err != nil {
		return linkResult{link: link, outcome: outcomeFailed, errMessage: err.Error()}
	}

	resp, record, err := p.generateWithLog(ctx, provider, project, jobID, p.buildRequest(project, messages, entrySchema))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return linkResult{link: link, outcome: outcomeCanceled, log: record}
		}
		return linkResult{link: link, outcome: outcomeFailed, errMessage: err.Error(), log: record}
	}

	var decoded entryResponse
	if err := json.Unmarshal(resp.Parsed, &decoded); err != nil {
		return linkResult{link: link, outcome: outcomeFailed, errMessage: fmt.Sprintf("failed to decode entry response: %v", err), log: record}
	}
	if !decoded.Valid {
		reason := decoded.Reason
		if reason == "" {
			reason = "page did not match the project criteria"
		}
		return linkResult{link: link, outcome: outcomeSkipped, reason: reason, rawContent: content, log: record}
	}
	if decoded.Entry == nil {
		return linkResult{link: link, outcome: outcomeFailed, errMessage: "response marked valid but carried no entry", log: record}
	}
	return linkResult{link: link, outcome: outcomeSuccess, entry: decoded.Entry, rawContent: content, log: record}
}
