// Package models defines the domain entities persisted by the repository layer.
package models

import "time"

// ProjectKind determines which artifact a project produces.
type ProjectKind string

const (
	ProjectKindLorebook  ProjectKind = "lorebook"
	ProjectKindCharacter ProjectKind = "character"
)

// ProjectStatus is the project lifecycle state. Transitions are monotone
// except processing<->failed (retry).
type ProjectStatus string

const (
	ProjectStatusDraft                 ProjectStatus = "draft"
	ProjectStatusSearchParamsGenerated ProjectStatus = "search_params_generated"
	ProjectStatusSelectorGenerated     ProjectStatus = "selector_generated"
	ProjectStatusLinksExtracted        ProjectStatus = "links_extracted"
	ProjectStatusProcessing            ProjectStatus = "processing"
	ProjectStatusCompleted             ProjectStatus = "completed"
	ProjectStatusFailed                ProjectStatus = "failed"
)

// SourceKind describes where a project source's content comes from.
type SourceKind string

const (
	SourceKindWebURL        SourceKind = "web_url"
	SourceKindUserTextFile  SourceKind = "user_text_file"
	SourceKindCharacterCard SourceKind = "character_card"
)

// LinkStatus is the lifecycle state of a single content URL.
type LinkStatus string

const (
	LinkStatusPending    LinkStatus = "pending"
	LinkStatusProcessing LinkStatus = "processing"
	LinkStatusCompleted  LinkStatus = "completed"
	LinkStatusFailed     LinkStatus = "failed"
	LinkStatusSkipped    LinkStatus = "skipped"
)

// ProjectTemplates holds the five named prompt templates a project can
// override. Empty fields fall back to global templates of the same name.
type ProjectTemplates struct {
	SelectorGeneration         string `json:"selector_generation,omitempty"`
	EntryCreation              string `json:"entry_creation,omitempty"`
	SearchParamsGeneration     string `json:"search_params_generation,omitempty"`
	CharacterGeneration        string `json:"character_generation,omitempty"`
	CharacterFieldRegeneration string `json:"character_field_regeneration,omitempty"`
}

// SearchParams is the LLM-derived search intent stored on a project.
type SearchParams struct {
	Purpose         string `json:"purpose"`
	ExtractionNotes string `json:"extraction_notes"`
	Criteria        string `json:"criteria"`
}

// Project is a user workspace grouping sources and output artifacts.
type Project struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Prompt            string           `json:"prompt"`
	Kind              ProjectKind      `json:"kind"`
	Status            ProjectStatus    `json:"status"`
	Templates         ProjectTemplates `json:"templates"`
	CredentialID      string           `json:"credential_id,omitempty"`
	ModelName         string           `json:"model_name,omitempty"`
	ModelParams       map[string]any   `json:"model_params,omitempty"`
	RequestsPerMinute int              `json:"requests_per_minute"`
	SearchParams      *SearchParams    `json:"search_params,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ProjectSource is a root or discovered crawl seed. Unique per (project, url).
type ProjectSource struct {
	ID                   string     `json:"id"`
	ProjectID            string     `json:"project_id"`
	Kind                 SourceKind `json:"kind"`
	URL                  string     `json:"url"`
	RawContent           string     `json:"raw_content,omitempty"`
	ContentSelectors     []string   `json:"content_selectors,omitempty"`
	CategorySelectors    []string   `json:"category_selectors,omitempty"`
	PaginationSelector   string     `json:"pagination_selector,omitempty"`
	URLExclusionPatterns []string   `json:"url_exclusion_patterns,omitempty"`
	MaxPagesToCrawl      int        `json:"max_pages_to_crawl"`
	MaxCrawlDepth        int        `json:"max_crawl_depth"`
	LastCrawledAt        *time.Time `json:"last_crawled_at,omitempty"`
	ContentType          string     `json:"content_type,omitempty"`
	ContentCharCount     int        `json:"content_char_count"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// SourceContentVersion is a snapshot of a source's raw content taken before
// the content is overwritten.
type SourceContentVersion struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Link is one content URL queued for summarization. Unique per (project, url).
type Link struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	URL             string     `json:"url"`
	Status          LinkStatus `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	SkipReason      string     `json:"skip_reason,omitempty"`
	LorebookEntryID string     `json:"lorebook_entry_id,omitempty"`
	RawContent      string     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// LorebookEntry is one finished lorebook item.
type LorebookEntry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Keywords  []string  `json:"keywords"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CharacterCard is the structured persona output. At most one per project.
type CharacterCard struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Persona         string    `json:"persona"`
	Scenario        string    `json:"scenario"`
	FirstMessage    string    `json:"first_message"`
	ExampleMessages string    `json:"example_messages"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Credential is an encrypted key/value bundle referenced by projects.
// Values are stored encrypted and never serialized to clients.
type Credential struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Provider  string            `json:"provider"`
	Values    map[string]string `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// APIRequestLog is an immutable audit record of one external LLM call.
// Cost is -1.0 when the model has no published pricing.
type APIRequestLog struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	JobID            string    `json:"job_id,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	RequestBody      string    `json:"request_body,omitempty"`
	ResponseBody     string    `json:"response_body,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Cost             float64   `json:"cost"`
	LatencyMs        int64     `json:"latency_ms"`
	IsError          bool      `json:"is_error"`
	CreatedAt        time.Time `json:"created_at"`
}

// GlobalTemplate is a process-wide reusable prompt fragment addressed by a
// stable id (e.g. "json-formatter-prompt").
type GlobalTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
