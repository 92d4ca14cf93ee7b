package repository

import (
	"context"
	"strings"
	"testing"
)

func TestReplaceContentSnapshotsPrior(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	source := createTestSource(t, repos, project.ID, "https://wiki.test/")

	// First write: no prior content, so no snapshot.
	versionID, err := repos.Source.ReplaceContent(ctx, source.ID, "first draft", "markdown", "")
	if err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	if versionID != "" {
		t.Errorf("first write should not create a version, got %q", versionID)
	}

	// Second write snapshots the first draft.
	versionID, err = repos.Source.ReplaceContent(ctx, source.ID, "second draft", "markdown", "AI edit")
	if err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	if versionID == "" {
		t.Fatal("overwrite should create a version")
	}

	version, err := repos.Source.GetContentVersion(ctx, versionID)
	if err != nil {
		t.Fatalf("GetContentVersion: %v", err)
	}
	if version.Content != "first draft" {
		t.Errorf("version content = %q, want the prior draft", version.Content)
	}
	if version.Title != "AI edit" {
		t.Errorf("version title = %q", version.Title)
	}

	got, _ := repos.Source.GetByID(ctx, source.ID)
	if got.RawContent != "second draft" {
		t.Errorf("raw content = %q", got.RawContent)
	}
	if got.ContentCharCount != len("second draft") {
		t.Errorf("char count = %d, want %d", got.ContentCharCount, len("second draft"))
	}
	if got.LastCrawledAt == nil {
		t.Error("last_crawled_at should be set")
	}
}

func TestReplaceContentIdenticalContentSkipsSnapshot(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	source := createTestSource(t, repos, project.ID, "https://wiki.test/")

	if _, err := repos.Source.ReplaceContent(ctx, source.ID, "same", "markdown", ""); err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	versionID, err := repos.Source.ReplaceContent(ctx, source.ID, "same", "markdown", "")
	if err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	if versionID != "" {
		t.Errorf("identical content should not snapshot, got version %q", versionID)
	}
}

func TestReplaceContentDefaultTitle(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	source := createTestSource(t, repos, project.ID, "https://wiki.test/")

	if _, err := repos.Source.ReplaceContent(ctx, source.ID, "one", "markdown", ""); err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	versionID, err := repos.Source.ReplaceContent(ctx, source.ID, "two", "markdown", "")
	if err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	version, _ := repos.Source.GetContentVersion(ctx, versionID)
	if !strings.HasPrefix(version.Title, "Backup (") {
		t.Errorf("default title = %q, want Backup (...)", version.Title)
	}
}

func TestListContentVersionsNewestFirst(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	source := createTestSource(t, repos, project.ID, "https://wiki.test/")

	for _, content := range []string{"v1", "v2", "v3"} {
		if _, err := repos.Source.ReplaceContent(ctx, source.ID, content, "markdown", ""); err != nil {
			t.Fatalf("ReplaceContent: %v", err)
		}
	}

	versions, err := repos.Source.ListContentVersions(ctx, source.ID)
	if err != nil {
		t.Fatalf("ListContentVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("len(versions) = %d, want 2", len(versions))
	}
	for _, v := range versions {
		if v.Content != "" {
			t.Error("list should omit version bodies")
		}
	}
}

func TestSetSelectors(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	source := createTestSource(t, repos, project.ID, "https://wiki.test/")

	err := repos.Source.SetSelectors(ctx, source.ID,
		[]string{"a.story"}, []string{".cats a"}, "a.next")
	if err != nil {
		t.Fatalf("SetSelectors: %v", err)
	}

	got, _ := repos.Source.GetByID(ctx, source.ID)
	if len(got.ContentSelectors) != 1 || got.ContentSelectors[0] != "a.story" {
		t.Errorf("content selectors = %v", got.ContentSelectors)
	}
	if len(got.CategorySelectors) != 1 || got.CategorySelectors[0] != ".cats a" {
		t.Errorf("category selectors = %v", got.CategorySelectors)
	}
	if got.PaginationSelector != "a.next" {
		t.Errorf("pagination selector = %q", got.PaginationSelector)
	}
}

func TestHierarchyEdgeIdempotent(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	parent := createTestSource(t, repos, project.ID, "https://wiki.test/")
	child := createTestSource(t, repos, project.ID, "https://wiki.test/category/moons")

	if err := repos.Source.AddHierarchyEdge(ctx, parent.ID, child.ID); err != nil {
		t.Fatalf("AddHierarchyEdge: %v", err)
	}
	if err := repos.Source.AddHierarchyEdge(ctx, parent.ID, child.ID); err != nil {
		t.Fatalf("repeat AddHierarchyEdge: %v", err)
	}

	children, err := repos.Source.ListChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 1 || children[0] != child.ID {
		t.Errorf("children = %v", children)
	}
}

func TestGetByURL(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	project := createTestProject(t, repos)
	source := createTestSource(t, repos, project.ID, "https://wiki.test/")

	got, err := repos.Source.GetByURL(ctx, project.ID, "https://wiki.test/")
	if err != nil {
		t.Fatalf("GetByURL: %v", err)
	}
	if got == nil || got.ID != source.ID {
		t.Errorf("GetByURL = %+v", got)
	}

	missing, err := repos.Source.GetByURL(ctx, project.ID, "https://elsewhere.test/")
	if err != nil {
		t.Fatalf("GetByURL: %v", err)
	}
	if missing != nil {
		t.Error("unknown URL should return nil")
	}
}
