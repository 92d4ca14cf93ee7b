// Package handlers implements the typed huma endpoint handlers.
package handlers

import (
	"log/slog"

	"github.com/loreforge/loreforge/internal/crypto"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/repository"
)

// Handlers bundles every endpoint group with its shared dependencies.
type Handlers struct {
	Project    *ProjectHandler
	Source     *SourceHandler
	Link       *LinkHandler
	Entry      *EntryHandler
	Character  *CharacterHandler
	Credential *CredentialHandler
	Template   *TemplateHandler
	Provider   *ProviderHandler
	Job        *JobHandler
	Log        *LogHandler
	Analytics  *AnalyticsHandler
	System     *SystemHandler
	SSE        *SSEHandler
}

// New wires all handler groups.
func New(
	repos *repository.Repositories,
	registry *llm.Registry,
	broadcaster *events.Broadcaster,
	encryptor *crypto.Encryptor,
	appVersion, runtimeEnv string,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		Project:    &ProjectHandler{repos: repos},
		Source:     &SourceHandler{repos: repos},
		Link:       &LinkHandler{repos: repos},
		Entry:      &EntryHandler{repos: repos},
		Character:  &CharacterHandler{repos: repos},
		Credential: &CredentialHandler{repos: repos, encryptor: encryptor, registry: registry},
		Template:   &TemplateHandler{repos: repos},
		Provider:   &ProviderHandler{registry: registry, repos: repos, encryptor: encryptor},
		Job:        &JobHandler{repos: repos, broadcaster: broadcaster},
		Log:        &LogHandler{repos: repos},
		Analytics:  &AnalyticsHandler{repos: repos},
		System:     &SystemHandler{repos: repos, appVersion: appVersion, runtimeEnv: runtimeEnv},
		SSE:        &SSEHandler{broadcaster: broadcaster, logger: logger},
	}
}
