package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loreforge/loreforge/internal/models"
)

// GlobalTemplateRepository persists process-wide prompt fragments.
type GlobalTemplateRepository struct {
	db *sql.DB
}

// NewGlobalTemplateRepository creates a new global template repository.
func NewGlobalTemplateRepository(db *sql.DB) *GlobalTemplateRepository {
	return &GlobalTemplateRepository{db: db}
}

// Upsert inserts or replaces a template by its stable id.
func (r *GlobalTemplateRepository) Upsert(ctx context.Context, t *models.GlobalTemplate) error {
	query := `
		INSERT INTO global_templates (id, name, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, content = excluded.content, updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Name, t.Content, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert global template: %w", err)
	}
	return nil
}

func (r *GlobalTemplateRepository) GetByID(ctx context.Context, id string) (*models.GlobalTemplate, error) {
	var t models.GlobalTemplate
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, content, created_at, updated_at FROM global_templates WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &t.Content, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan global template: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func (r *GlobalTemplateRepository) List(ctx context.Context) ([]*models.GlobalTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, content, created_at, updated_at FROM global_templates ORDER BY id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query global templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.GlobalTemplate
	for rows.Next() {
		var t models.GlobalTemplate
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Name, &t.Content, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan global template: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

func (r *GlobalTemplateRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM global_templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete global template: %w", err)
	}
	return nil
}
