package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loreforge/loreforge/internal/models"
)

// CredentialRepository persists encrypted credential bundles. Values arrive
// already encrypted; this layer never sees plaintext.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(ctx context.Context, c *models.Credential) error {
	valuesJSON, _ := json.Marshal(c.Values)
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO credentials (id, name, provider, values_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.Name, c.Provider, string(valuesJSON), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	var c models.Credential
	var valuesJSON, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, provider, values_json, created_at, updated_at FROM credentials WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Provider, &valuesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	_ = json.Unmarshal([]byte(valuesJSON), &c.Values)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (r *CredentialRepository) List(ctx context.Context) ([]*models.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, provider, values_json, created_at, updated_at FROM credentials ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var c models.Credential
		var valuesJSON, createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Provider, &valuesJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		_ = json.Unmarshal([]byte(valuesJSON), &c.Values)
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		creds = append(creds, &c)
	}
	return creds, rows.Err()
}

func (r *CredentialRepository) Update(ctx context.Context, c *models.Credential) error {
	valuesJSON, _ := json.Marshal(c.Values)
	_, err := r.db.ExecContext(ctx,
		"UPDATE credentials SET name = ?, provider = ?, values_json = ?, updated_at = ? WHERE id = ?",
		c.Name, c.Provider, string(valuesJSON), formatTime(time.Now()), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
