package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the status of a background job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCanceled   JobStatus = "canceled"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCanceled || s == JobStatusCompleted || s == JobStatusFailed
}

// TaskKind identifies the handler a background job is dispatched to.
type TaskKind string

const (
	TaskGenerateSearchParams     TaskKind = "generate_search_params"
	TaskDiscoverAndCrawlSources  TaskKind = "discover_and_crawl_sources"
	TaskRescanLinks              TaskKind = "rescan_links"
	TaskConfirmLinks             TaskKind = "confirm_links"
	TaskProcessProjectEntries    TaskKind = "process_project_entries"
	TaskFetchSourceContent       TaskKind = "fetch_source_content"
	TaskGenerateCharacterCard    TaskKind = "generate_character_card"
	TaskRegenerateCharacterField TaskKind = "regenerate_character_field"
	TaskAIEditSourceContent      TaskKind = "ai_edit_source_content"
)

// ParallelLimits caps concurrent in-flight jobs per task kind within one
// process. Every kind runs at most one job at a time.
var ParallelLimits = map[TaskKind]int{
	TaskGenerateSearchParams:     1,
	TaskDiscoverAndCrawlSources:  1,
	TaskRescanLinks:              1,
	TaskConfirmLinks:             1,
	TaskProcessProjectEntries:    1,
	TaskFetchSourceContent:       1,
	TaskGenerateCharacterCard:    1,
	TaskRegenerateCharacterField: 1,
	TaskAIEditSourceContent:      1,
}

// TotalParallelLimit is the pool-wide in-flight cap (sum of per-kind caps).
func TotalParallelLimit() int {
	total := 0
	for _, n := range ParallelLimits {
		total += n
	}
	return total
}

// ValidTaskKind reports whether k names a known task kind.
func ValidTaskKind(k TaskKind) bool {
	_, ok := ParallelLimits[k]
	return ok
}

// BackgroundJob is the durable queue unit. Payload and Result are JSON
// documents discriminated by TaskKind; use the typed accessors to decode.
type BackgroundJob struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	TaskKind       TaskKind        `json:"task_kind"`
	Status         JobStatus       `json:"status"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	TotalItems     int             `json:"total_items"`
	ProcessedItems int             `json:"processed_items"`
	Progress       float64         `json:"progress"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DecodePayload unmarshals the job payload into dst.
func (j *BackgroundJob) DecodePayload(dst any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.TaskKind, err)
	}
	return nil
}

// CrawlPayload drives discover_and_crawl_sources and rescan_links.
type CrawlPayload struct {
	SourceIDs []string `json:"source_ids"`
}

// ConfirmLinksPayload carries the curated URL list to persist.
type ConfirmLinksPayload struct {
	URLs []string `json:"urls"`
}

// FetchSourceContentPayload names the sources to scrape and store.
type FetchSourceContentPayload struct {
	SourceIDs []string `json:"source_ids"`
}

// GenerateCharacterCardPayload names the sources whose stored content feeds
// the card generation prompt.
type GenerateCharacterCardPayload struct {
	SourceIDs []string `json:"source_ids"`
}

// RegenerateCharacterFieldPayload identifies the card field to regenerate and
// the context to bundle into the prompt.
type RegenerateCharacterFieldPayload struct {
	FieldName     string   `json:"field_name"`
	IncludeFields []string `json:"include_fields,omitempty"`
	SourceIDs     []string `json:"source_ids,omitempty"`
}

// AIEditSourceContentPayload carries an edit instruction for one source.
type AIEditSourceContentPayload struct {
	SourceID        string `json:"source_id"`
	EditInstruction string `json:"edit_instruction"`
	FullContext     bool   `json:"full_context,omitempty"`
}

// CrawlResult is produced by discover_and_crawl_sources and rescan_links.
// Both URL buckets are sorted and de-duplicated.
type CrawlResult struct {
	NewLinks           []string `json:"new_links"`
	ExistingLinks      []string `json:"existing_links"`
	NewSourcesCreated  int      `json:"new_sources_created"`
	SelectorsGenerated int      `json:"selectors_generated"`
}

// ConfirmLinksResult reports how many Link rows were actually inserted.
type ConfirmLinksResult struct {
	LinksCreated int `json:"links_created"`
}

// ProcessEntriesResult is the terminal accounting of process_project_entries.
type ProcessEntriesResult struct {
	EntriesCreated int `json:"entries_created"`
	EntriesSkipped int `json:"entries_skipped"`
	EntriesFailed  int `json:"entries_failed"`
}

// FetchSourceContentResult reports per-source fetch accounting.
type FetchSourceContentResult struct {
	SourcesFetched int `json:"sources_fetched"`
}

// CharacterCardResult references the generated or patched card.
type CharacterCardResult struct {
	CardID string `json:"card_id"`
}

// AIEditResult references the content version created before the overwrite.
type AIEditResult struct {
	SourceID  string `json:"source_id"`
	VersionID string `json:"version_id"`
}

// EncodeResult marshals a typed result for persistence on the job row.
func EncodeResult(result any) (json.RawMessage, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}
	return data, nil
}
