package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/models"
)

// SourceRepository persists project sources, their hierarchy edges and
// content version snapshots.
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

const sourceColumns = `id, project_id, kind, url, raw_content, content_selectors_json,
	category_selectors_json, pagination_selector, url_exclusion_patterns_json,
	max_pages_to_crawl, max_crawl_depth, last_crawled_at, content_type, content_char_count,
	created_at, updated_at`

func (r *SourceRepository) Create(ctx context.Context, s *models.ProjectSource) error {
	selectorsJSON, _ := json.Marshal(s.ContentSelectors)
	categoriesJSON, _ := json.Marshal(s.CategorySelectors)
	patternsJSON, _ := json.Marshal(s.URLExclusionPatterns)

	query := `
		INSERT INTO project_sources (` + sourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.ProjectID,
		string(s.Kind),
		s.URL,
		nullString(s.RawContent),
		string(selectorsJSON),
		string(categoriesJSON),
		nullString(s.PaginationSelector),
		string(patternsJSON),
		s.MaxPagesToCrawl,
		s.MaxCrawlDepth,
		nullTime(s.LastCrawledAt),
		nullString(s.ContentType),
		s.ContentCharCount,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	return nil
}

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*models.ProjectSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM project_sources WHERE id = ?`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSource(rows)
}

// GetByURL finds a source by its (project, url) identity.
func (r *SourceRepository) GetByURL(ctx context.Context, projectID, url string) (*models.ProjectSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM project_sources WHERE project_id = ? AND url = ?`
	rows, err := r.db.QueryContext(ctx, query, projectID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSource(rows)
}

func (r *SourceRepository) ListByProject(ctx context.Context, projectID string) ([]*models.ProjectSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM project_sources WHERE project_id = ? ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.ProjectSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *SourceRepository) Update(ctx context.Context, s *models.ProjectSource) error {
	selectorsJSON, _ := json.Marshal(s.ContentSelectors)
	categoriesJSON, _ := json.Marshal(s.CategorySelectors)
	patternsJSON, _ := json.Marshal(s.URLExclusionPatterns)

	query := `
		UPDATE project_sources SET kind = ?, url = ?, raw_content = ?, content_selectors_json = ?,
			category_selectors_json = ?, pagination_selector = ?, url_exclusion_patterns_json = ?,
			max_pages_to_crawl = ?, max_crawl_depth = ?, last_crawled_at = ?, content_type = ?,
			content_char_count = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		string(s.Kind),
		s.URL,
		nullString(s.RawContent),
		string(selectorsJSON),
		string(categoriesJSON),
		nullString(s.PaginationSelector),
		string(patternsJSON),
		s.MaxPagesToCrawl,
		s.MaxCrawlDepth,
		nullTime(s.LastCrawledAt),
		nullString(s.ContentType),
		s.ContentCharCount,
		formatTime(time.Now()),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return nil
}

// SetSelectors persists the LLM-derived selector families on a source.
func (r *SourceRepository) SetSelectors(ctx context.Context, id string, contentSelectors, categorySelectors []string, paginationSelector string) error {
	selectorsJSON, _ := json.Marshal(contentSelectors)
	categoriesJSON, _ := json.Marshal(categorySelectors)
	_, err := r.db.ExecContext(ctx,
		"UPDATE project_sources SET content_selectors_json = ?, category_selectors_json = ?, pagination_selector = ?, updated_at = ? WHERE id = ?",
		string(selectorsJSON), string(categoriesJSON), nullString(paginationSelector), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update source selectors: %w", err)
	}
	return nil
}

// TouchLastCrawled records the end of a crawl pass over this source.
func (r *SourceRepository) TouchLastCrawled(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	_, err := r.db.ExecContext(ctx,
		"UPDATE project_sources SET last_crawled_at = ?, updated_at = ? WHERE id = ?",
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last_crawled_at: %w", err)
	}
	return nil
}

// ReplaceContent overwrites a source's raw content after snapshotting the
// prior content as a SourceContentVersion. The snapshot and the overwrite
// commit together. Returns the version id, or empty when there was no prior
// content to snapshot.
func (r *SourceRepository) ReplaceContent(ctx context.Context, id, content, contentType, versionTitle string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prior sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT raw_content FROM project_sources WHERE id = ?", id).Scan(&prior)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("source %s not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read source content: %w", err)
	}

	now := formatTime(time.Now())
	versionID := ""
	if prior.Valid && prior.String != "" && prior.String != content {
		versionID = ulid.Make().String()
		if versionTitle == "" {
			versionTitle = time.Now().UTC().Format("Backup (2006-01-02 15:04)")
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO source_content_versions (id, source_id, title, content, created_at) VALUES (?, ?, ?, ?, ?)",
			versionID, id, versionTitle, prior.String, now,
		); err != nil {
			return "", fmt.Errorf("failed to create content version: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE project_sources SET raw_content = ?, content_type = ?, content_char_count = ?, last_crawled_at = ?, updated_at = ? WHERE id = ?",
		nullString(content), nullString(contentType), len(content), now, now, id,
	); err != nil {
		return "", fmt.Errorf("failed to update source content: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return versionID, nil
}

// ListContentVersions returns snapshots newest first, without bodies.
func (r *SourceRepository) ListContentVersions(ctx context.Context, sourceID string) ([]*models.SourceContentVersion, error) {
	query := `SELECT id, source_id, title, created_at FROM source_content_versions WHERE source_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.SourceContentVersion
	for rows.Next() {
		var v models.SourceContentVersion
		var createdAt string
		if err := rows.Scan(&v.ID, &v.SourceID, &v.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan content version: %w", err)
		}
		v.CreatedAt = parseTime(createdAt)
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// GetContentVersion returns one snapshot with its body.
func (r *SourceRepository) GetContentVersion(ctx context.Context, id string) (*models.SourceContentVersion, error) {
	var v models.SourceContentVersion
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, source_id, title, content, created_at FROM source_content_versions WHERE id = ?", id,
	).Scan(&v.ID, &v.SourceID, &v.Title, &v.Content, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan content version: %w", err)
	}
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

// AddHierarchyEdge records a parent->child discovery edge. Idempotent.
func (r *SourceRepository) AddHierarchyEdge(ctx context.Context, parentID, childID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO project_source_hierarchy (parent_id, child_id, created_at) VALUES (?, ?, ?)",
		parentID, childID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to create hierarchy edge: %w", err)
	}
	return nil
}

// ListChildren returns the ids of sources discovered under a parent.
func (r *SourceRepository) ListChildren(ctx context.Context, parentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT child_id FROM project_source_hierarchy WHERE parent_id = ? ORDER BY created_at ASC", parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy: %w", err)
	}
	defer rows.Close()

	var children []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		children = append(children, id)
	}
	return children, rows.Err()
}

// Delete removes a source; hierarchy edges and versions cascade.
func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM project_sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

func scanSource(rows *sql.Rows) (*models.ProjectSource, error) {
	var s models.ProjectSource
	var kind, createdAt, updatedAt string
	var rawContent, selectorsJSON, categoriesJSON, paginationSelector, patternsJSON sql.NullString
	var lastCrawledAt, contentType sql.NullString

	err := rows.Scan(
		&s.ID, &s.ProjectID, &kind, &s.URL, &rawContent, &selectorsJSON,
		&categoriesJSON, &paginationSelector, &patternsJSON, &s.MaxPagesToCrawl, &s.MaxCrawlDepth,
		&lastCrawledAt, &contentType, &s.ContentCharCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}

	s.Kind = models.SourceKind(kind)
	s.RawContent = rawContent.String
	if selectorsJSON.Valid && selectorsJSON.String != "" {
		_ = json.Unmarshal([]byte(selectorsJSON.String), &s.ContentSelectors)
	}
	if categoriesJSON.Valid && categoriesJSON.String != "" {
		_ = json.Unmarshal([]byte(categoriesJSON.String), &s.CategorySelectors)
	}
	s.PaginationSelector = paginationSelector.String
	if patternsJSON.Valid && patternsJSON.String != "" {
		_ = json.Unmarshal([]byte(patternsJSON.String), &s.URLExclusionPatterns)
	}
	s.LastCrawledAt = parseTimePtr(lastCrawledAt)
	s.ContentType = contentType.String
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)

	return &s, nil
}
