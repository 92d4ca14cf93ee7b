package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/models"
)

func createTestLog(t *testing.T, repos *Repositories, projectID string, isError bool) *models.APIRequestLog {
	t.Helper()
	l := &models.APIRequestLog{
		ID:               ulid.Make().String(),
		ProjectID:        projectID,
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		PromptTokens:     120,
		CompletionTokens: 40,
		Cost:             0.0002,
		LatencyMs:        850,
		IsError:          isError,
		CreatedAt:        time.Now().UTC(),
	}
	if err := repos.APILog.Create(context.Background(), l); err != nil {
		t.Fatalf("create log: %v", err)
	}
	return l
}

func TestAPILogListAndCount(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	createTestLog(t, repos, project.ID, false)
	createTestLog(t, repos, project.ID, false)
	createTestLog(t, repos, project.ID, true)

	logs, err := repos.APILog.ListByProject(ctx, project.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}

	total, errCount, err := repos.APILog.CountByProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("CountByProject: %v", err)
	}
	if total != 3 || errCount != 1 {
		t.Errorf("counts = %d total / %d errors, want 3/1", total, errCount)
	}
}

func TestAPILogCreateTxCommitsWithBatch(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)

	tx, err := repos.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	l := &models.APIRequestLog{
		ID:        ulid.Make().String(),
		ProjectID: project.ID,
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		CreatedAt: time.Now().UTC(),
	}
	if err := repos.APILog.CreateTx(ctx, tx, l); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	total, _, err := repos.APILog.CountByProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("CountByProject: %v", err)
	}
	if total != 0 {
		t.Errorf("rolled-back log should not persist, total = %d", total)
	}
}
