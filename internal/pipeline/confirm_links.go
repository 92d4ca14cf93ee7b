package pipeline

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/worker"
)

// HandleConfirmLinks persists a curated URL list as pending links. Inserts
// are idempotent on (project, url).
func (p *Pipeline) HandleConfirmLinks(ctx context.Context, job *models.BackgroundJob, cancelled *worker.Flag) (any, error) {
	var payload models.ConfirmLinksPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}

	project, err := p.loadProject(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}

	created := 0
	var createdLinks []*models.Link
	for _, url := range payload.URLs {
		link := &models.Link{
			ID:        ulid.Make().String(),
			ProjectID: project.ID,
			URL:       url,
			Status:    models.LinkStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		inserted, err := p.repos.Link.Insert(ctx, link)
		if err != nil {
			return nil, err
		}
		if inserted {
			created++
			createdLinks = append(createdLinks, link)
		}
	}

	if len(createdLinks) > 0 {
		p.broadcaster.Publish(project.ID, events.EventLinksCreated, map[string]any{
			"count": len(createdLinks),
			"links": createdLinks,
		})
	}
	if project.Status == models.ProjectStatusSelectorGenerated {
		if err := p.setProjectStatus(ctx, project.ID, models.ProjectStatusLinksExtracted); err != nil {
			return nil, err
		}
	}

	return models.ConfirmLinksResult{LinksCreated: created}, nil
}
