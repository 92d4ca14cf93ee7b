package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loreforge/loreforge/internal/models"
)

// CharacterCardRepository persists the single character card per project.
type CharacterCardRepository struct {
	db *sql.DB
}

// NewCharacterCardRepository creates a new character card repository.
func NewCharacterCardRepository(db *sql.DB) *CharacterCardRepository {
	return &CharacterCardRepository{db: db}
}

const cardColumns = `id, project_id, name, description, persona, scenario,
	first_message, example_messages, created_at, updated_at`

// Upsert inserts or replaces the project's card, keyed on project_id.
func (r *CharacterCardRepository) Upsert(ctx context.Context, c *models.CharacterCard) error {
	query := `
		INSERT INTO character_cards (` + cardColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			persona = excluded.persona,
			scenario = excluded.scenario,
			first_message = excluded.first_message,
			example_messages = excluded.example_messages,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.ProjectID, c.Name, c.Description, c.Persona, c.Scenario,
		c.FirstMessage, c.ExampleMessages, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert character card: %w", err)
	}
	return nil
}

func (r *CharacterCardRepository) GetByProject(ctx context.Context, projectID string) (*models.CharacterCard, error) {
	query := `SELECT ` + cardColumns + ` FROM character_cards WHERE project_id = ?`
	var c models.CharacterCard
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(
		&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.Persona, &c.Scenario,
		&c.FirstMessage, &c.ExampleMessages, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan character card: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// SetField patches one named card field. Field names are validated by the
// caller against the card schema.
func (r *CharacterCardRepository) SetField(ctx context.Context, projectID, field, value string) error {
	column, ok := cardFieldColumns[field]
	if !ok {
		return fmt.Errorf("unknown character card field %q", field)
	}
	query := fmt.Sprintf("UPDATE character_cards SET %s = ?, updated_at = ? WHERE project_id = ?", column)
	_, err := r.db.ExecContext(ctx, query, value, formatTime(time.Now()), projectID)
	if err != nil {
		return fmt.Errorf("failed to update character card field: %w", err)
	}
	return nil
}

// cardFieldColumns maps API field names to columns; also serves as the
// allow-list for regenerate_character_field.
var cardFieldColumns = map[string]string{
	"name":             "name",
	"description":      "description",
	"persona":          "persona",
	"scenario":         "scenario",
	"first_message":    "first_message",
	"example_messages": "example_messages",
}

// ValidCardField reports whether field can be regenerated.
func ValidCardField(field string) bool {
	_, ok := cardFieldColumns[field]
	return ok
}
