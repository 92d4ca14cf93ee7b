package pipeline

import "github.com/loreforge/loreforge/internal/models"

// Template names a project can override. Empty overrides fall back to the
// built-in defaults below.
const (
	templateSearchParams   = "search_params_generation"
	templateSelectors      = "selector_generation"
	templateEntryCreation  = "entry_creation"
	templateCharacter      = "character_generation"
	templateCharacterField = "character_field_regeneration"
)

// resolveTemplate picks the project override or the built-in default.
func resolveTemplate(project *models.Project, name string) string {
	var override string
	switch name {
	case templateSearchParams:
		override = project.Templates.SearchParamsGeneration
	case templateSelectors:
		override = project.Templates.SelectorGeneration
	case templateEntryCreation:
		override = project.Templates.EntryCreation
	case templateCharacter:
		override = project.Templates.CharacterGeneration
	case templateCharacterField:
		override = project.Templates.CharacterFieldRegeneration
	}
	if override != "" {
		return override
	}
	return defaultTemplates[name]
}

var defaultTemplates = map[string]string{
	templateSearchParams: `--- role: system
You analyze a research goal and derive structured search parameters for gathering source material.
--- role: user
Project name: {{project.name}}

Goal:
{{project.prompt}}

Derive the purpose of this research, notes on what to extract from each page, and criteria for deciding whether a page is relevant.`,

	templateSelectors: `--- role: system
You are a web scraping assistant. Given the HTML of a listing page, identify CSS selectors for three link families:
- content_selectors: anchors that lead to final content pages worth summarizing.
- category_selectors: anchors that lead to further listing or index pages.
- pagination_selector: the single anchor that leads to the next page of this listing, or an empty string if there is none.
Selectors must match anchor elements and be as specific as the markup allows.
--- role: user
Research purpose: {{search_params.purpose}}
Relevance criteria: {{search_params.criteria}}

Page URL: {{url}}

HTML:
{{html}}`,

	templateEntryCreation: `--- role: system
You turn a scraped page into one lorebook entry. Judge relevance first: if the page does not satisfy the criteria, mark it invalid and give a short reason. Otherwise produce a concise entry with a title, a self-contained summary as content, and trigger keywords.
--- role: user
Purpose: {{search_params.purpose}}
Extraction notes: {{search_params.extraction_notes}}
Criteria: {{search_params.criteria}}

Source URL: {{url}}

Page content:
{{content}}`,

	templateCharacter: `--- role: system
You write roleplay character cards. From the provided source material, produce all six card fields: name, description, persona, scenario, first_message and example_messages. Stay faithful to the source; do not invent biography the material contradicts.
--- role: user
Project: {{project.name}}
Instructions:
{{project.prompt}}

Source material:
{{content}}`,

	templateCharacterField: `--- role: system
You rewrite one field of an existing roleplay character card. Produce only the new field text.
--- role: user
Field to regenerate: {{field_name}}
{{#if card_context}}Existing card:
{{card_context}}
{{/if}}{{#if content}}Source material:
{{content}}
{{/if}}Instructions:
{{project.prompt}}`,
}
