// Package repository implements SQLite persistence for the domain entities.
package repository

import (
	"context"
	"database/sql"
	"time"
)

// Repositories bundles every repository over one shared connection pool.
type Repositories struct {
	db *sql.DB

	Project        *ProjectRepository
	Source         *SourceRepository
	Link           *LinkRepository
	Entry          *EntryRepository
	CharacterCard  *CharacterCardRepository
	Credential     *CredentialRepository
	Job            *JobRepository
	APILog         *APILogRepository
	GlobalTemplate *GlobalTemplateRepository
	Analytics      *AnalyticsRepository
}

// NewRepositories creates all repositories using a shared database handle.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		db:             db,
		Project:        NewProjectRepository(db),
		Source:         NewSourceRepository(db),
		Link:           NewLinkRepository(db),
		Entry:          NewEntryRepository(db),
		CharacterCard:  NewCharacterCardRepository(db),
		Credential:     NewCredentialRepository(db),
		Job:            NewJobRepository(db),
		APILog:         NewAPILogRepository(db),
		GlobalTemplate: NewGlobalTemplateRepository(db),
		Analytics:      NewAnalyticsRepository(db),
	}
}

// BeginTx opens a transaction for batched multi-row writes.
func (r *Repositories) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// DB exposes the underlying handle for health checks.
func (r *Repositories) DB() *sql.DB {
	return r.db
}

// execer abstracts *sql.DB and *sql.Tx so writes can run inside or outside
// a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Helper functions shared across repositories.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// Fixed-width nanosecond precision so lexicographic order matches
// chronological order in ORDER BY clauses.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
