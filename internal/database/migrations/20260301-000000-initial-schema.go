package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "initial schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS credentials (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				provider TEXT NOT NULL,
				values_json TEXT NOT NULL DEFAULT '{}',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				prompt TEXT NOT NULL DEFAULT '',
				kind TEXT NOT NULL DEFAULT 'lorebook',
				status TEXT NOT NULL DEFAULT 'draft',
				templates_json TEXT,
				credential_id TEXT REFERENCES credentials(id) ON DELETE SET NULL,
				model_name TEXT,
				model_params_json TEXT,
				requests_per_minute INTEGER NOT NULL DEFAULT 15,
				search_params_json TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS project_sources (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				kind TEXT NOT NULL DEFAULT 'web_url',
				url TEXT NOT NULL,
				raw_content TEXT,
				content_selectors_json TEXT,
				category_selectors_json TEXT,
				pagination_selector TEXT,
				url_exclusion_patterns_json TEXT,
				max_pages_to_crawl INTEGER NOT NULL DEFAULT 20,
				max_crawl_depth INTEGER NOT NULL DEFAULT 1,
				last_crawled_at TEXT,
				content_type TEXT,
				content_char_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (project_id, url)
			)`,

			`CREATE TABLE IF NOT EXISTS project_source_hierarchy (
				parent_id TEXT NOT NULL REFERENCES project_sources(id) ON DELETE CASCADE,
				child_id TEXT NOT NULL REFERENCES project_sources(id) ON DELETE CASCADE,
				created_at TEXT NOT NULL,
				PRIMARY KEY (parent_id, child_id)
			)`,

			`CREATE TABLE IF NOT EXISTS source_content_versions (
				id TEXT PRIMARY KEY,
				source_id TEXT NOT NULL REFERENCES project_sources(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS lorebook_entries (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				keywords_json TEXT NOT NULL DEFAULT '[]',
				source_url TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS links (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT,
				skip_reason TEXT,
				lorebook_entry_id TEXT REFERENCES lorebook_entries(id) ON DELETE SET NULL,
				raw_content TEXT,
				created_at TEXT NOT NULL,
				UNIQUE (project_id, url)
			)`,

			`CREATE TABLE IF NOT EXISTS character_cards (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				persona TEXT NOT NULL DEFAULT '',
				scenario TEXT NOT NULL DEFAULT '',
				first_message TEXT NOT NULL DEFAULT '',
				example_messages TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS background_jobs (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				task_kind TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				payload_json TEXT,
				result_json TEXT,
				error_message TEXT,
				total_items INTEGER NOT NULL DEFAULT 0,
				processed_items INTEGER NOT NULL DEFAULT 0,
				progress REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS api_request_logs (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				job_id TEXT REFERENCES background_jobs(id) ON DELETE SET NULL,
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				request_body TEXT,
				response_body TEXT,
				prompt_tokens INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				cost REAL NOT NULL DEFAULT 0,
				latency_ms INTEGER NOT NULL DEFAULT 0,
				is_error INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS global_templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON background_jobs(status, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_project ON background_jobs(project_id)`,
			`CREATE INDEX IF NOT EXISTS idx_links_project_status ON links(project_id, status)`,
			`CREATE INDEX IF NOT EXISTS idx_sources_project ON project_sources(project_id)`,
			`CREATE INDEX IF NOT EXISTS idx_entries_project ON lorebook_entries(project_id)`,
			`CREATE INDEX IF NOT EXISTS idx_api_logs_project ON api_request_logs(project_id)`,
			`CREATE INDEX IF NOT EXISTS idx_content_versions_source ON source_content_versions(source_id)`,

			// Formatter fragment appended to prompts for providers without
			// native structured output. Bound with {{schema}} and
			// {{example_response}} at render time.
			`INSERT OR IGNORE INTO global_templates (id, name, content, created_at, updated_at) VALUES (
				'json-formatter-prompt',
				'JSON Formatter Prompt',
				'--- role: system
You must reply with a single JSON object that conforms exactly to the following JSON schema. Do not include any prose outside the JSON. Wrap the JSON in a fenced code block.

Schema:
{{schema}}

Example of a conforming response:
' || char(96) || char(96) || char(96) || 'json
{{example_response}}
' || char(96) || char(96) || char(96),
				strftime('%Y-%m-%dT%H:%M:%SZ','now'),
				strftime('%Y-%m-%dT%H:%M:%SZ','now')
			)`,
		},
	})
}
