package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loreforge/loreforge/internal/models"
)

// EntryRepository persists lorebook entries.
type EntryRepository struct {
	db *sql.DB
}

// NewEntryRepository creates a new entry repository.
func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

const entryColumns = `id, project_id, title, content, keywords_json, source_url, created_at, updated_at`

// CreateTx inserts an entry inside a caller-owned transaction. Entry writes
// always happen in the batched link-processing transaction.
func (r *EntryRepository) CreateTx(ctx context.Context, tx *sql.Tx, e *models.LorebookEntry) error {
	return r.create(ctx, tx, e)
}

// Create inserts an entry outside a transaction (manual entry creation).
func (r *EntryRepository) Create(ctx context.Context, e *models.LorebookEntry) error {
	return r.create(ctx, r.db, e)
}

func (r *EntryRepository) create(ctx context.Context, ex execer, e *models.LorebookEntry) error {
	keywordsJSON, _ := json.Marshal(e.Keywords)
	query := `
		INSERT INTO lorebook_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		e.ID,
		e.ProjectID,
		e.Title,
		e.Content,
		string(keywordsJSON),
		nullString(e.SourceURL),
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

func (r *EntryRepository) GetByID(ctx context.Context, id string) (*models.LorebookEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM lorebook_entries WHERE id = ?`
	var e models.LorebookEntry
	var keywordsJSON, createdAt, updatedAt string
	var sourceURL sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.ProjectID, &e.Title, &e.Content, &keywordsJSON, &sourceURL, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &e.Keywords)
	e.SourceURL = sourceURL.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func (r *EntryRepository) ListByProject(ctx context.Context, projectID string) ([]*models.LorebookEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM lorebook_entries WHERE project_id = ? ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LorebookEntry
	for rows.Next() {
		var e models.LorebookEntry
		var keywordsJSON, createdAt, updatedAt string
		var sourceURL sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Content, &keywordsJSON, &sourceURL, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		_ = json.Unmarshal([]byte(keywordsJSON), &e.Keywords)
		e.SourceURL = sourceURL.String
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *EntryRepository) Update(ctx context.Context, e *models.LorebookEntry) error {
	keywordsJSON, _ := json.Marshal(e.Keywords)
	_, err := r.db.ExecContext(ctx,
		"UPDATE lorebook_entries SET title = ?, content = ?, keywords_json = ?, source_url = ?, updated_at = ? WHERE id = ?",
		e.Title, e.Content, string(keywordsJSON), nullString(e.SourceURL), formatTime(time.Now()), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM lorebook_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}
