package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
	"github.com/loreforge/loreforge/internal/worker"
)

// JobHandler handles background job endpoints. Enqueueing writes a pending
// row; the worker loop picks it up on its next poll.
type JobHandler struct {
	repos       *repository.Repositories
	broadcaster *events.Broadcaster
}

type EnqueueJobInput struct {
	Kind string `path:"kind" doc:"Task kind, e.g. generate_search_params"`
	Body struct {
		ProjectID string          `json:"project_id" minLength:"1"`
		Payload   json.RawMessage `json:"payload,omitempty" doc:"Kind-specific payload document"`
	}
}

type JobOutput struct {
	Body *models.BackgroundJob
}

func (h *JobHandler) EnqueueJob(ctx context.Context, input *EnqueueJobInput) (*JobOutput, error) {
	kind := models.TaskKind(input.Kind)
	if !models.ValidTaskKind(kind) {
		return nil, huma.Error422UnprocessableEntity("unknown task kind " + input.Kind)
	}
	project, err := h.repos.Project.GetByID(ctx, input.Body.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}

	now := time.Now().UTC()
	job := &models.BackgroundJob{
		ID:        ulid.Make().String(),
		ProjectID: input.Body.ProjectID,
		TaskKind:  kind,
		Status:    models.JobStatusPending,
		Payload:   input.Body.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repos.Job.Create(ctx, job); err != nil {
		return nil, huma.Error500InternalServerError("failed to enqueue job", err)
	}
	h.broadcaster.Publish(job.ProjectID, events.EventJobStatusUpdate, worker.StatusPayload(job))
	return &JobOutput{Body: job}, nil
}

type GetJobInput struct {
	ID string `path:"id"`
}

func (h *JobHandler) GetJob(ctx context.Context, input *GetJobInput) (*JobOutput, error) {
	job, err := h.repos.Job.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load job", err)
	}
	if job == nil {
		return nil, huma.Error404NotFound("job not found")
	}
	return &JobOutput{Body: job}, nil
}

type CancelJobInput struct {
	ID string `path:"id"`
}

// CancelJob requests cancellation. Pending jobs cancel immediately; running
// jobs move to cancelling and stop at their next checkpoint.
func (h *JobHandler) CancelJob(ctx context.Context, input *CancelJobInput) (*JobOutput, error) {
	if _, err := h.repos.Job.RequestCancel(ctx, input.ID); err != nil {
		if errors.Is(err, repository.ErrJobTerminal) {
			return nil, huma.Error400BadRequest("job is already finished")
		}
		return nil, huma.Error500InternalServerError("failed to cancel job", err)
	}

	job, err := h.repos.Job.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load job", err)
	}
	if job == nil {
		return nil, huma.Error404NotFound("job not found")
	}
	h.broadcaster.Publish(job.ProjectID, events.EventJobStatusUpdate, worker.StatusPayload(job))
	return &JobOutput{Body: job}, nil
}

type ListJobsInput struct {
	ProjectID string `query:"project_id" required:"true"`
	Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	Offset    int    `query:"offset" default:"0" minimum:"0"`
}

type ListJobsOutput struct {
	Body struct {
		Jobs []*models.BackgroundJob `json:"jobs"`
	}
}

func (h *JobHandler) ListJobs(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	jobs, err := h.repos.Job.ListByProject(ctx, input.ProjectID, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}
	out := &ListJobsOutput{}
	out.Body.Jobs = jobs
	return out, nil
}
