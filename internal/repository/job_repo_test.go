package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/loreforge/loreforge/internal/models"
)

func TestJobCreateAndGet(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	job := createPendingJob(t, repos, project.ID, models.TaskDiscoverAndCrawlSources, time.Now().UTC())

	got, err := repos.Job.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("job not found")
	}
	if got.TaskKind != models.TaskDiscoverAndCrawlSources {
		t.Errorf("TaskKind = %q", got.TaskKind)
	}
	if got.Status != models.JobStatusPending {
		t.Errorf("Status = %q", got.Status)
	}
}

func TestClaimNextPendingOldestFirst(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	base := time.Now().UTC()
	older := createPendingJob(t, repos, project.ID, models.TaskGenerateSearchParams, base.Add(-time.Minute))
	createPendingJob(t, repos, project.ID, models.TaskGenerateSearchParams, base)

	claimed, err := repos.Job.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed job")
	}
	if claimed.ID != older.ID {
		t.Errorf("claimed %s, want oldest %s", claimed.ID, older.ID)
	}
	if claimed.Status != models.JobStatusInProgress {
		t.Errorf("claimed status = %q, want in_progress", claimed.Status)
	}

	// Second claim gets the remaining job, third finds an empty queue.
	second, err := repos.Job.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second == nil || second.ID == claimed.ID {
		t.Fatal("second claim should return the other job")
	}
	third, err := repos.Job.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if third != nil {
		t.Errorf("empty queue should claim nil, got %s", third.ID)
	}
}

func TestReleaseRevertsClaim(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())

	claimed, err := repos.Job.ClaimNextPending(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repos.Job.Release(ctx, claimed.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got, _ := repos.Job.GetByID(ctx, claimed.ID)
	if got.Status != models.JobStatusPending {
		t.Errorf("released status = %q, want pending", got.Status)
	}
}

func TestCountInProgressByKindIncludesCancelling(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	a := createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())
	b := createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())
	if err := repos.Job.SetStatus(ctx, a.ID, models.JobStatusInProgress, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := repos.Job.SetStatus(ctx, b.ID, models.JobStatusCancelling, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	count, err := repos.Job.CountInProgressByKind(ctx, models.TaskProcessProjectEntries)
	if err != nil {
		t.Fatalf("CountInProgressByKind: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (cancelling still holds its slot)", count)
	}
}

func TestCompleteStoresResult(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	job := createPendingJob(t, repos, project.ID, models.TaskConfirmLinks, time.Now().UTC())

	result, _ := json.Marshal(models.ConfirmLinksResult{LinksCreated: 3})
	if err := repos.Job.Complete(ctx, job.ID, result); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, _ := repos.Job.GetByID(ctx, job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %v, want 100", got.Progress)
	}
	var decoded models.ConfirmLinksResult
	if err := json.Unmarshal(got.Result, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if decoded.LinksCreated != 3 {
		t.Errorf("LinksCreated = %d, want 3", decoded.LinksCreated)
	}
}

func TestRequestCancelPendingJob(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	job := createPendingJob(t, repos, project.ID, models.TaskRescanLinks, time.Now().UTC())

	status, err := repos.Job.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if status != models.JobStatusCanceled {
		t.Errorf("status = %q, want canceled (pending jobs cancel directly)", status)
	}
}

func TestRequestCancelRunningJob(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	job := createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())
	if err := repos.Job.SetStatus(ctx, job.ID, models.JobStatusInProgress, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	status, err := repos.Job.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if status != models.JobStatusCancelling {
		t.Errorf("status = %q, want cancelling", status)
	}

	// A second cancel of the same job is rejected.
	if _, err := repos.Job.RequestCancel(ctx, job.ID); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("second cancel error = %v, want ErrJobTerminal", err)
	}
}

func TestRequestCancelFinishedJob(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	for _, status := range []models.JobStatus{
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusCanceled,
	} {
		job := createPendingJob(t, repos, project.ID, models.TaskConfirmLinks, time.Now().UTC())
		if err := repos.Job.SetStatus(ctx, job.ID, status, ""); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		if _, err := repos.Job.RequestCancel(ctx, job.ID); !errors.Is(err, ErrJobTerminal) {
			t.Errorf("cancel of %s job: error = %v, want ErrJobTerminal", status, err)
		}
	}
}

func TestResetInProgress(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	running := createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())
	cancelling := createPendingJob(t, repos, project.ID, models.TaskRescanLinks, time.Now().UTC())
	done := createPendingJob(t, repos, project.ID, models.TaskConfirmLinks, time.Now().UTC())
	if err := repos.Job.SetStatus(ctx, running.ID, models.JobStatusInProgress, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := repos.Job.SetStatus(ctx, cancelling.ID, models.JobStatusCancelling, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := repos.Job.SetStatus(ctx, done.ID, models.JobStatusCompleted, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	count, err := repos.Job.ResetInProgress(ctx)
	if err != nil {
		t.Fatalf("ResetInProgress: %v", err)
	}
	if count != 2 {
		t.Errorf("reset count = %d, want 2", count)
	}
	for _, id := range []string{running.ID, cancelling.ID} {
		got, _ := repos.Job.GetByID(ctx, id)
		if got.Status != models.JobStatusPending {
			t.Errorf("job %s status = %q, want pending", id, got.Status)
		}
	}
	got, _ := repos.Job.GetByID(ctx, done.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("completed job should be untouched, got %q", got.Status)
	}
}

func TestUpdateProgress(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	job := createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())

	if err := repos.Job.UpdateProgress(ctx, job.ID, 20, 5, 25); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := repos.Job.GetByID(ctx, job.ID)
	if got.TotalItems != 20 || got.ProcessedItems != 5 || got.Progress != 25 {
		t.Errorf("progress = %d/%d (%v%%), want 5/20 (25%%)", got.ProcessedItems, got.TotalItems, got.Progress)
	}
}

func TestListByProjectNewestFirst(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	base := time.Now().UTC()
	createPendingJob(t, repos, project.ID, models.TaskGenerateSearchParams, base.Add(-time.Hour))
	newest := createPendingJob(t, repos, project.ID, models.TaskConfirmLinks, base)

	jobs, err := repos.Job.ListByProject(ctx, project.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].ID != newest.ID {
		t.Errorf("first job = %s, want newest %s", jobs[0].ID, newest.ID)
	}
}

func TestRequestCancelAfterClaim(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	job := createPendingJob(t, repos, project.ID, models.TaskProcessProjectEntries, time.Now().UTC())

	// A worker claims the job before the cancel request lands; the cancel
	// must observe the claim and mark the job cancelling, never canceled.
	claimed, err := repos.Job.ClaimNextPending(ctx)
	if err != nil || claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claim: %v (%+v)", err, claimed)
	}

	status, err := repos.Job.RequestCancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if status != models.JobStatusCancelling {
		t.Errorf("status = %q, want cancelling", status)
	}
	got, _ := repos.Job.GetByID(ctx, job.ID)
	if got.Status != models.JobStatusCancelling {
		t.Errorf("stored status = %q, want cancelling", got.Status)
	}
}
