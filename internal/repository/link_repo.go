package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loreforge/loreforge/internal/models"
)

// LinkRepository persists content links. Write methods have Tx variants so
// the entry-processing batch commits atomically.
type LinkRepository struct {
	db *sql.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

const linkColumns = `id, project_id, url, status, error_message, skip_reason,
	lorebook_entry_id, raw_content, created_at`

// Insert adds a link if its (project, url) identity is new.
// Returns true when a row was actually inserted.
func (r *LinkRepository) Insert(ctx context.Context, link *models.Link) (bool, error) {
	return r.insert(ctx, r.db, link)
}

// InsertTx is Insert inside a caller-owned transaction.
func (r *LinkRepository) InsertTx(ctx context.Context, tx *sql.Tx, link *models.Link) (bool, error) {
	return r.insert(ctx, tx, link)
}

func (r *LinkRepository) insert(ctx context.Context, e execer, link *models.Link) (bool, error) {
	query := `
		INSERT OR IGNORE INTO links (` + linkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := e.ExecContext(ctx, query,
		link.ID,
		link.ProjectID,
		link.URL,
		string(link.Status),
		nullString(link.ErrorMessage),
		nullString(link.SkipReason),
		nullString(link.LorebookEntryID),
		nullString(link.RawContent),
		formatTime(link.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert link: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (r *LinkRepository) GetByID(ctx context.Context, id string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = ?`
	return scanLink(r.db.QueryRowContext(ctx, query, id))
}

func (r *LinkRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE project_id = ? ORDER BY created_at ASC`
	return r.queryLinks(ctx, query, projectID)
}

// ListByStatuses returns project links in any of the given statuses, oldest
// first.
func (r *LinkRepository) ListByStatuses(ctx context.Context, projectID string, statuses ...models.LinkStatus) ([]*models.Link, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + linkColumns + ` FROM links WHERE project_id = ? AND status IN (`
	args := []any{projectID}
	for i, s := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(s))
	}
	query += `) ORDER BY created_at ASC`
	return r.queryLinks(ctx, query, args...)
}

// URLSet returns the set of URLs already linked in a project.
func (r *LinkRepository) URLSet(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT url FROM links WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query link urls: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls[url] = true
	}
	return urls, rows.Err()
}

// SetStatus updates one link's status.
func (r *LinkRepository) SetStatus(ctx context.Context, id string, status models.LinkStatus) error {
	_, err := r.db.ExecContext(ctx, "UPDATE links SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update link status: %w", err)
	}
	return nil
}

// MarkCompletedTx records a successful summarization: entry reference and
// cached raw content for future re-runs.
func (r *LinkRepository) MarkCompletedTx(ctx context.Context, tx *sql.Tx, id, entryID, rawContent string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE links SET status = 'completed', lorebook_entry_id = ?, raw_content = ?, error_message = NULL, skip_reason = NULL WHERE id = ?",
		entryID, nullString(rawContent), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark link completed: %w", err)
	}
	return nil
}

// MarkSkippedTx records a link the model judged to have no usable content.
func (r *LinkRepository) MarkSkippedTx(ctx context.Context, tx *sql.Tx, id, reason, rawContent string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE links SET status = 'skipped', skip_reason = ?, raw_content = COALESCE(?, raw_content), error_message = NULL WHERE id = ?",
		nullString(reason), nullString(rawContent), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark link skipped: %w", err)
	}
	return nil
}

// MarkFailedTx records a per-link failure without failing the job.
func (r *LinkRepository) MarkFailedTx(ctx context.Context, tx *sql.Tx, id, errorMessage string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE links SET status = 'failed', error_message = ? WHERE id = ?",
		nullString(errorMessage), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark link failed: %w", err)
	}
	return nil
}

// ResetProcessing reverts processing links to pending. Scoped to one project
// when projectID is non-empty; used project-wide at startup and per project
// on cancellation.
func (r *LinkRepository) ResetProcessing(ctx context.Context, projectID string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if projectID == "" {
		result, err = r.db.ExecContext(ctx, "UPDATE links SET status = 'pending' WHERE status = 'processing'")
	} else {
		result, err = r.db.ExecContext(ctx,
			"UPDATE links SET status = 'pending' WHERE status = 'processing' AND project_id = ?", projectID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing links: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// CountByStatus returns per-status link counts for a project.
func (r *LinkRepository) CountByStatus(ctx context.Context, projectID string) (map[models.LinkStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM links WHERE project_id = ? GROUP BY status", projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.LinkStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.LinkStatus(status)] = count
	}
	return counts, rows.Err()
}

// Delete removes one link.
func (r *LinkRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return nil
}

func (r *LinkRepository) queryLinks(ctx context.Context, query string, args ...any) ([]*models.Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		link, err := scanLinkFromRows(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanLink(row *sql.Row) (*models.Link, error) {
	var link models.Link
	var status, createdAt string
	var errorMessage, skipReason, entryID, rawContent sql.NullString

	err := row.Scan(
		&link.ID, &link.ProjectID, &link.URL, &status, &errorMessage,
		&skipReason, &entryID, &rawContent, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}

	link.Status = models.LinkStatus(status)
	link.ErrorMessage = errorMessage.String
	link.SkipReason = skipReason.String
	link.LorebookEntryID = entryID.String
	link.RawContent = rawContent.String
	link.CreatedAt = parseTime(createdAt)
	return &link, nil
}

func scanLinkFromRows(rows *sql.Rows) (*models.Link, error) {
	var link models.Link
	var status, createdAt string
	var errorMessage, skipReason, entryID, rawContent sql.NullString

	err := rows.Scan(
		&link.ID, &link.ProjectID, &link.URL, &status, &errorMessage,
		&skipReason, &entryID, &rawContent, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}

	link.Status = models.LinkStatus(status)
	link.ErrorMessage = errorMessage.String
	link.SkipReason = skipReason.String
	link.LorebookEntryID = entryID.String
	link.RawContent = rawContent.String
	link.CreatedAt = parseTime(createdAt)
	return &link, nil
}
