package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loreforge/loreforge/internal/models"
)

// ProjectRepository persists projects.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, prompt, kind, status, templates_json, credential_id,
	model_name, model_params_json, requests_per_minute, search_params_json, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	templatesJSON, _ := json.Marshal(p.Templates)
	var modelParamsJSON []byte
	if p.ModelParams != nil {
		modelParamsJSON, _ = json.Marshal(p.ModelParams)
	}
	var searchParamsJSON []byte
	if p.SearchParams != nil {
		searchParamsJSON, _ = json.Marshal(p.SearchParams)
	}

	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Prompt,
		string(p.Kind),
		string(p.Status),
		string(templatesJSON),
		nullString(p.CredentialID),
		nullString(p.ModelName),
		nullString(string(modelParamsJSON)),
		p.RequestsPerMinute,
		nullString(string(searchParamsJSON)),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`
	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProjectFromRows(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) error {
	templatesJSON, _ := json.Marshal(p.Templates)
	var modelParamsJSON []byte
	if p.ModelParams != nil {
		modelParamsJSON, _ = json.Marshal(p.ModelParams)
	}
	var searchParamsJSON []byte
	if p.SearchParams != nil {
		searchParamsJSON, _ = json.Marshal(p.SearchParams)
	}

	query := `
		UPDATE projects SET name = ?, prompt = ?, kind = ?, status = ?, templates_json = ?,
			credential_id = ?, model_name = ?, model_params_json = ?, requests_per_minute = ?,
			search_params_json = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		p.Name,
		p.Prompt,
		string(p.Kind),
		string(p.Status),
		string(templatesJSON),
		nullString(p.CredentialID),
		nullString(p.ModelName),
		nullString(string(modelParamsJSON)),
		p.RequestsPerMinute,
		nullString(string(searchParamsJSON)),
		formatTime(time.Now()),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// SetStatus advances the project lifecycle.
func (r *ProjectRepository) SetStatus(ctx context.Context, id string, status models.ProjectStatus) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE projects SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return nil
}

// SetSearchParams stores the LLM-derived search intent.
func (r *ProjectRepository) SetSearchParams(ctx context.Context, id string, sp *models.SearchParams) error {
	data, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("failed to encode search params: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		"UPDATE projects SET search_params_json = ?, updated_at = ? WHERE id = ?",
		string(data), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update search params: %w", err)
	}
	return nil
}

// Delete removes a project. Sources, links, entries, jobs, logs and cards
// cascade at the schema level.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	var kind, status, createdAt, updatedAt string
	var templatesJSON, credentialID, modelName, modelParamsJSON, searchParamsJSON sql.NullString

	err := row.Scan(
		&p.ID, &p.Name, &p.Prompt, &kind, &status, &templatesJSON, &credentialID,
		&modelName, &modelParamsJSON, &p.RequestsPerMinute, &searchParamsJSON,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	applyProjectFields(&p, kind, status, templatesJSON, credentialID, modelName,
		modelParamsJSON, searchParamsJSON, createdAt, updatedAt)
	return &p, nil
}

func scanProjectFromRows(rows *sql.Rows) (*models.Project, error) {
	var p models.Project
	var kind, status, createdAt, updatedAt string
	var templatesJSON, credentialID, modelName, modelParamsJSON, searchParamsJSON sql.NullString

	err := rows.Scan(
		&p.ID, &p.Name, &p.Prompt, &kind, &status, &templatesJSON, &credentialID,
		&modelName, &modelParamsJSON, &p.RequestsPerMinute, &searchParamsJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	applyProjectFields(&p, kind, status, templatesJSON, credentialID, modelName,
		modelParamsJSON, searchParamsJSON, createdAt, updatedAt)
	return &p, nil
}

func applyProjectFields(p *models.Project, kind, status string,
	templatesJSON, credentialID, modelName, modelParamsJSON, searchParamsJSON sql.NullString,
	createdAt, updatedAt string,
) {
	p.Kind = models.ProjectKind(kind)
	p.Status = models.ProjectStatus(status)
	if templatesJSON.Valid {
		_ = json.Unmarshal([]byte(templatesJSON.String), &p.Templates)
	}
	p.CredentialID = credentialID.String
	p.ModelName = modelName.String
	if modelParamsJSON.Valid && modelParamsJSON.String != "" {
		_ = json.Unmarshal([]byte(modelParamsJSON.String), &p.ModelParams)
	}
	if searchParamsJSON.Valid && searchParamsJSON.String != "" {
		var sp models.SearchParams
		if json.Unmarshal([]byte(searchParamsJSON.String), &sp) == nil {
			p.SearchParams = &sp
		}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
}
