package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/database"
	"github.com/loreforge/loreforge/internal/models"
)

func setupRepos(t *testing.T) *Repositories {
	t.Helper()

	db, err := database.New(":memory:", database.Options{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepositories(db)
}

func createTestProject(t *testing.T, repos *Repositories) *models.Project {
	t.Helper()
	now := time.Now().UTC()
	p := &models.Project{
		ID:                ulid.Make().String(),
		Name:              "Moons of Jupiter",
		Prompt:            "Collect lore about the moons of Jupiter",
		Kind:              models.ProjectKindLorebook,
		Status:            models.ProjectStatusDraft,
		RequestsPerMinute: 60,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repos.Project.Create(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func createTestSource(t *testing.T, repos *Repositories, projectID, url string) *models.ProjectSource {
	t.Helper()
	now := time.Now().UTC()
	s := &models.ProjectSource{
		ID:              ulid.Make().String(),
		ProjectID:       projectID,
		Kind:            models.SourceKindWebURL,
		URL:             url,
		MaxPagesToCrawl: 5,
		MaxCrawlDepth:   1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repos.Source.Create(context.Background(), s); err != nil {
		t.Fatalf("create source: %v", err)
	}
	return s
}

func createTestLink(t *testing.T, repos *Repositories, projectID, url string, status models.LinkStatus) *models.Link {
	t.Helper()
	l := &models.Link{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		URL:       url,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	inserted, err := repos.Link.Insert(context.Background(), l)
	if err != nil {
		t.Fatalf("insert link: %v", err)
	}
	if !inserted {
		t.Fatalf("link %s already existed", url)
	}
	return l
}

func createPendingJob(t *testing.T, repos *Repositories, projectID string, kind models.TaskKind, createdAt time.Time) *models.BackgroundJob {
	t.Helper()
	job := &models.BackgroundJob{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		TaskKind:  kind,
		Status:    models.JobStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := repos.Job.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}
