package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/models"
)

func createCostedLog(t *testing.T, repos *Repositories, projectID string, cost float64, promptTokens, completionTokens int, latencyMs int64) {
	t.Helper()
	l := &models.APIRequestLog{
		ID:               ulid.Make().String(),
		ProjectID:        projectID,
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Cost:             cost,
		LatencyMs:        latencyMs,
		CreatedAt:        time.Now().UTC(),
	}
	if err := repos.APILog.Create(context.Background(), l); err != nil {
		t.Fatalf("create log: %v", err)
	}
}

func TestProjectAnalyticsAggregates(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	other := &models.Project{
		ID:        ulid.Make().String(),
		Name:      "Other",
		Kind:      models.ProjectKindLorebook,
		Status:    models.ProjectStatusDraft,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repos.Project.Create(ctx, other); err != nil {
		t.Fatalf("create project: %v", err)
	}

	createCostedLog(t, repos, project.ID, 0.001, 100, 20, 500)
	createCostedLog(t, repos, project.ID, 0.003, 200, 40, 900)
	// Unknown pricing sentinel: counted as a request, excluded from cost.
	createCostedLog(t, repos, project.ID, -1, 50, 10, 700)
	// Another project's log must not leak in.
	createCostedLog(t, repos, other.ID, 5.0, 9000, 9000, 9999)

	createTestLink(t, repos, project.ID, "https://wiki.example/io", models.LinkStatusCompleted)
	createTestLink(t, repos, project.ID, "https://wiki.example/europa", models.LinkStatusCompleted)
	createTestLink(t, repos, project.ID, "https://wiki.example/broken", models.LinkStatusFailed)

	createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())
	done := createPendingJob(t, repos, project.ID, models.TaskConfirmLinks, time.Now().UTC())
	if err := repos.Job.SetStatus(ctx, done.ID, models.JobStatusCompleted, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	entry := &models.LorebookEntry{
		ID:        ulid.Make().String(),
		ProjectID: project.ID,
		Title:     "Io",
		Content:   "Innermost Galilean moon.",
		Keywords:  []string{"Io"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repos.Entry.Create(ctx, entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	a, err := repos.Analytics.GetProjectAnalytics(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProjectAnalytics: %v", err)
	}

	if a.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", a.TotalRequests)
	}
	if math.Abs(a.TotalCost-0.004) > 1e-9 {
		t.Errorf("TotalCost = %v, want 0.004", a.TotalCost)
	}
	if !a.HasUnknownCosts {
		t.Error("HasUnknownCosts = false, want true")
	}
	if a.TotalInputTokens != 350 || a.TotalOutputToken != 70 {
		t.Errorf("tokens = %d/%d, want 350/70", a.TotalInputTokens, a.TotalOutputToken)
	}
	if math.Abs(a.AverageLatencyMs-700) > 1e-9 {
		t.Errorf("AverageLatencyMs = %v, want 700", a.AverageLatencyMs)
	}

	if a.LinkStatusCounts[models.LinkStatusCompleted] != 2 {
		t.Errorf("completed links = %d, want 2", a.LinkStatusCounts[models.LinkStatusCompleted])
	}
	if a.LinkStatusCounts[models.LinkStatusFailed] != 1 {
		t.Errorf("failed links = %d, want 1", a.LinkStatusCounts[models.LinkStatusFailed])
	}
	if got, ok := a.LinkStatusCounts[models.LinkStatusSkipped]; !ok || got != 0 {
		t.Errorf("skipped links = %d (present %v), want explicit 0", got, ok)
	}
	if a.TotalLinks != 3 {
		t.Errorf("TotalLinks = %d, want 3", a.TotalLinks)
	}

	if a.JobStatusCounts[models.JobStatusPending] != 1 || a.JobStatusCounts[models.JobStatusCompleted] != 1 {
		t.Errorf("job counts = %v", a.JobStatusCounts)
	}
	if got, ok := a.JobStatusCounts[models.JobStatusCancelling]; !ok || got != 0 {
		t.Errorf("cancelling jobs = %d (present %v), want explicit 0", got, ok)
	}
	if a.TotalJobs != 2 {
		t.Errorf("TotalJobs = %d, want 2", a.TotalJobs)
	}
	if a.TotalEntries != 1 {
		t.Errorf("TotalEntries = %d, want 1", a.TotalEntries)
	}
}

func TestProjectAnalyticsEmptyProject(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	a, err := repos.Analytics.GetProjectAnalytics(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProjectAnalytics: %v", err)
	}
	if a.TotalRequests != 0 || a.TotalCost != 0 || a.HasUnknownCosts {
		t.Errorf("api aggregates = %+v, want zeros", a)
	}
	if a.AverageLatencyMs != 0 {
		t.Errorf("AverageLatencyMs = %v, want 0", a.AverageLatencyMs)
	}
	if len(a.LinkStatusCounts) != 5 {
		t.Errorf("len(LinkStatusCounts) = %d, want every status present", len(a.LinkStatusCounts))
	}
	if len(a.JobStatusCounts) != 6 {
		t.Errorf("len(JobStatusCounts) = %d, want every status present", len(a.JobStatusCounts))
	}
	if a.TotalLinks != 0 || a.TotalJobs != 0 || a.TotalEntries != 0 {
		t.Errorf("totals = %d/%d/%d, want 0/0/0", a.TotalLinks, a.TotalJobs, a.TotalEntries)
	}
}
