package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/database"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

func setupWorkerTest(t *testing.T) (*Worker, *repository.Repositories, *events.Broadcaster) {
	t.Helper()

	db, err := database.New(":memory:", database.Options{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repos := repository.NewRepositories(db)
	broadcaster := events.NewBroadcaster(slog.Default())
	w := New(repos.Job, broadcaster, Config{
		PollInterval:       10 * time.Millisecond,
		CancelPollInterval: 10 * time.Millisecond,
	}, slog.Default())
	return w, repos, broadcaster
}

func createTestJob(t *testing.T, repos *repository.Repositories, kind models.TaskKind) *models.BackgroundJob {
	t.Helper()
	now := time.Now().UTC()
	job := &models.BackgroundJob{
		ID:        ulid.Make().String(),
		ProjectID: "proj-" + ulid.Make().String(),
		TaskKind:  kind,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Job.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func waitForStatus(t *testing.T, repos *repository.Repositories, jobID string, want models.JobStatus) *models.BackgroundJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repos.Job.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := repos.Job.GetByID(context.Background(), jobID)
	t.Fatalf("job never reached %s, last status %s", want, job.Status)
	return nil
}

func TestWorkerCompletesJob(t *testing.T) {
	w, repos, _ := setupWorkerTest(t)

	w.Register(models.TaskGenerateSearchParams, func(ctx context.Context, job *models.BackgroundJob, cancelled *Flag) (any, error) {
		return map[string]int{"ok": 1}, nil
	})

	job := createTestJob(t, repos, models.TaskGenerateSearchParams)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	done := waitForStatus(t, repos, job.ID, models.JobStatusCompleted)
	if string(done.Result) != `{"ok":1}` {
		t.Fatalf("unexpected result: %s", done.Result)
	}
	if done.Progress != 100 {
		t.Fatalf("expected progress 100, got %v", done.Progress)
	}
}

func TestWorkerFailsJobWithError(t *testing.T) {
	w, repos, _ := setupWorkerTest(t)

	w.Register(models.TaskConfirmLinks, func(ctx context.Context, job *models.BackgroundJob, cancelled *Flag) (any, error) {
		return nil, errors.New("provider exploded")
	})

	job := createTestJob(t, repos, models.TaskConfirmLinks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	done := waitForStatus(t, repos, job.ID, models.JobStatusFailed)
	if done.ErrorMessage != "provider exploded" {
		t.Fatalf("unexpected error message: %q", done.ErrorMessage)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w, repos, _ := setupWorkerTest(t)

	w.Register(models.TaskRescanLinks, func(ctx context.Context, job *models.BackgroundJob, cancelled *Flag) (any, error) {
		panic("boom")
	})

	job := createTestJob(t, repos, models.TaskRescanLinks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	done := waitForStatus(t, repos, job.ID, models.JobStatusFailed)
	if done.ErrorMessage == "" {
		t.Fatal("expected panic message recorded")
	}
}

func TestWorkerCancellation(t *testing.T) {
	w, repos, _ := setupWorkerTest(t)

	started := make(chan struct{})
	w.Register(models.TaskProcessProjectEntries, func(ctx context.Context, job *models.BackgroundJob, cancelled *Flag) (any, error) {
		close(started)
		for !cancelled.IsSet() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
		return nil, ErrCanceled
	})

	job := createTestJob(t, repos, models.TaskProcessProjectEntries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	if _, err := repos.Job.RequestCancel(context.Background(), job.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	waitForStatus(t, repos, job.ID, models.JobStatusCanceled)
}

func TestWorkerPerKindCap(t *testing.T) {
	w, repos, _ := setupWorkerTest(t)

	release := make(chan struct{})
	running := make(chan string, 2)
	w.Register(models.TaskFetchSourceContent, func(ctx context.Context, job *models.BackgroundJob, cancelled *Flag) (any, error) {
		running <- job.ID
		<-release
		return nil, nil
	})

	first := createTestJob(t, repos, models.TaskFetchSourceContent)
	second := createTestJob(t, repos, models.TaskFetchSourceContent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case id := <-running:
		if id != first.ID {
			t.Fatalf("expected oldest job claimed first, got %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started")
	}

	// While the first is in flight the second must stay pending.
	time.Sleep(100 * time.Millisecond)
	pending, err := repos.Job.GetByID(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("get second job: %v", err)
	}
	if pending.Status != models.JobStatusPending {
		t.Fatalf("second job should be pending at cap, got %s", pending.Status)
	}

	close(release)
	waitForStatus(t, repos, first.ID, models.JobStatusCompleted)
	waitForStatus(t, repos, second.ID, models.JobStatusCompleted)
}

func TestWorkerEmitsStatusEvents(t *testing.T) {
	w, repos, broadcaster := setupWorkerTest(t)

	w.Register(models.TaskGenerateCharacterCard, func(ctx context.Context, job *models.BackgroundJob, cancelled *Flag) (any, error) {
		return nil, nil
	})

	job := createTestJob(t, repos, models.TaskGenerateCharacterCard)
	ch, unsub := broadcaster.Subscribe(job.ProjectID)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	waitForStatus(t, repos, job.ID, models.JobStatusCompleted)

	var got []events.Event
	for {
		select {
		case ev := <-ch:
			got = append(got, ev)
			continue
		default:
		}
		break
	}
	if len(got) < 2 {
		t.Fatalf("expected at least claim and completion events, got %d", len(got))
	}
	for _, ev := range got {
		if ev.Type != events.EventJobStatusUpdate {
			t.Fatalf("unexpected event type %s", ev.Type)
		}
	}
}

func TestWorkerStartStop(t *testing.T) {
	w, _, _ := setupWorkerTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out")
	}
}
