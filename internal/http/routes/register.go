// Package routes binds the handler groups to their paths.
package routes

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/loreforge/loreforge/internal/http/handlers"
	"github.com/loreforge/loreforge/internal/http/mw"
)

// Register registers every typed API route with the huma API instance.
func Register(api huma.API, h *handlers.Handlers) {
	// --- System ---
	mw.Get(api, "/api/health", h.System.Health,
		mw.WithTags("System"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("health"))
	mw.Get(api, "/api/info", h.System.Info,
		mw.WithTags("System"),
		mw.WithSummary("Build and runtime info"),
		mw.WithOperationID("info"))

	// --- Projects ---
	mw.Post(api, "/api/projects", h.Project.CreateProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Create project"),
		mw.WithOperationID("createProject"),
		mw.WithStatus(201))
	mw.Get(api, "/api/projects", h.Project.ListProjects,
		mw.WithTags("Projects"),
		mw.WithSummary("List projects"),
		mw.WithOperationID("listProjects"))
	mw.Get(api, "/api/projects/{id}", h.Project.GetProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Get project"),
		mw.WithOperationID("getProject"))
	mw.Put(api, "/api/projects/{id}", h.Project.UpdateProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Update project"),
		mw.WithOperationID("updateProject"))
	mw.Delete(api, "/api/projects/{id}", h.Project.DeleteProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Delete project"),
		mw.WithDescription("Deletes the project and cascades to sources, links, entries, jobs, logs and the character card."),
		mw.WithOperationID("deleteProject"))

	// --- Sources ---
	mw.Post(api, "/api/projects/{project_id}/sources", h.Source.CreateSource,
		mw.WithTags("Sources"),
		mw.WithSummary("Add source"),
		mw.WithOperationID("createSource"),
		mw.WithStatus(201))
	mw.Get(api, "/api/projects/{project_id}/sources", h.Source.ListSources,
		mw.WithTags("Sources"),
		mw.WithSummary("List sources"),
		mw.WithOperationID("listSources"))
	mw.Get(api, "/api/sources/{id}", h.Source.GetSource,
		mw.WithTags("Sources"),
		mw.WithSummary("Get source"),
		mw.WithOperationID("getSource"))
	mw.Put(api, "/api/sources/{id}", h.Source.UpdateSource,
		mw.WithTags("Sources"),
		mw.WithSummary("Update source"),
		mw.WithOperationID("updateSource"))
	mw.Delete(api, "/api/sources/{id}", h.Source.DeleteSource,
		mw.WithTags("Sources"),
		mw.WithSummary("Delete source"),
		mw.WithOperationID("deleteSource"))
	mw.Get(api, "/api/sources/{id}/versions", h.Source.ListContentVersions,
		mw.WithTags("Sources"),
		mw.WithSummary("List content versions"),
		mw.WithOperationID("listContentVersions"))
	mw.Get(api, "/api/sources/{id}/versions/{version_id}", h.Source.GetContentVersion,
		mw.WithTags("Sources"),
		mw.WithSummary("Get content version"),
		mw.WithOperationID("getContentVersion"))
	mw.Post(api, "/api/sources/{id}/versions/{version_id}/restore", h.Source.RestoreContentVersion,
		mw.WithTags("Sources"),
		mw.WithSummary("Restore content version"),
		mw.WithOperationID("restoreContentVersion"))

	// --- Links ---
	mw.Get(api, "/api/projects/{project_id}/links", h.Link.ListLinks,
		mw.WithTags("Links"),
		mw.WithSummary("List links"),
		mw.WithOperationID("listLinks"))
	mw.Patch(api, "/api/links/{id}", h.Link.UpdateLink,
		mw.WithTags("Links"),
		mw.WithSummary("Update link status"),
		mw.WithOperationID("updateLink"))
	mw.Delete(api, "/api/links/{id}", h.Link.DeleteLink,
		mw.WithTags("Links"),
		mw.WithSummary("Delete link"),
		mw.WithOperationID("deleteLink"))

	// --- Entries ---
	mw.Post(api, "/api/projects/{project_id}/entries", h.Entry.CreateEntry,
		mw.WithTags("Entries"),
		mw.WithSummary("Create entry"),
		mw.WithOperationID("createEntry"),
		mw.WithStatus(201))
	mw.Get(api, "/api/projects/{project_id}/entries", h.Entry.ListEntries,
		mw.WithTags("Entries"),
		mw.WithSummary("List entries"),
		mw.WithOperationID("listEntries"))
	mw.Get(api, "/api/entries/{id}", h.Entry.GetEntry,
		mw.WithTags("Entries"),
		mw.WithSummary("Get entry"),
		mw.WithOperationID("getEntry"))
	mw.Put(api, "/api/entries/{id}", h.Entry.UpdateEntry,
		mw.WithTags("Entries"),
		mw.WithSummary("Update entry"),
		mw.WithOperationID("updateEntry"))
	mw.Delete(api, "/api/entries/{id}", h.Entry.DeleteEntry,
		mw.WithTags("Entries"),
		mw.WithSummary("Delete entry"),
		mw.WithOperationID("deleteEntry"))

	// --- Character card ---
	mw.Get(api, "/api/projects/{project_id}/character-card", h.Character.GetCard,
		mw.WithTags("Character"),
		mw.WithSummary("Get character card"),
		mw.WithOperationID("getCharacterCard"))
	mw.Put(api, "/api/projects/{project_id}/character-card", h.Character.UpdateCard,
		mw.WithTags("Character"),
		mw.WithSummary("Update character card"),
		mw.WithOperationID("updateCharacterCard"))

	// --- Credentials ---
	mw.Post(api, "/api/credentials", h.Credential.CreateCredential,
		mw.WithTags("Credentials"),
		mw.WithSummary("Create credential"),
		mw.WithOperationID("createCredential"),
		mw.WithStatus(201))
	mw.Get(api, "/api/credentials", h.Credential.ListCredentials,
		mw.WithTags("Credentials"),
		mw.WithSummary("List credentials"),
		mw.WithDescription("Secret values are write-only and never returned."),
		mw.WithOperationID("listCredentials"))
	mw.Put(api, "/api/credentials/{id}", h.Credential.UpdateCredential,
		mw.WithTags("Credentials"),
		mw.WithSummary("Update credential"),
		mw.WithOperationID("updateCredential"))
	mw.Delete(api, "/api/credentials/{id}", h.Credential.DeleteCredential,
		mw.WithTags("Credentials"),
		mw.WithSummary("Delete credential"),
		mw.WithOperationID("deleteCredential"))

	// --- Global templates ---
	mw.Get(api, "/api/templates", h.Template.ListTemplates,
		mw.WithTags("Templates"),
		mw.WithSummary("List global templates"),
		mw.WithOperationID("listTemplates"))
	mw.Get(api, "/api/templates/{id}", h.Template.GetTemplate,
		mw.WithTags("Templates"),
		mw.WithSummary("Get global template"),
		mw.WithOperationID("getTemplate"))
	mw.Put(api, "/api/templates/{id}", h.Template.UpsertTemplate,
		mw.WithTags("Templates"),
		mw.WithSummary("Create or replace global template"),
		mw.WithOperationID("upsertTemplate"))
	mw.Delete(api, "/api/templates/{id}", h.Template.DeleteTemplate,
		mw.WithTags("Templates"),
		mw.WithSummary("Delete global template"),
		mw.WithOperationID("deleteTemplate"))

	// --- Providers ---
	mw.Get(api, "/api/providers", h.Provider.ListProviders,
		mw.WithTags("Providers"),
		mw.WithSummary("List LLM providers"),
		mw.WithOperationID("listProviders"))
	mw.Get(api, "/api/providers/{name}/models", h.Provider.ListModels,
		mw.WithTags("Providers"),
		mw.WithSummary("List models for provider"),
		mw.WithOperationID("listModels"))

	// --- Jobs ---
	mw.Post(api, "/api/jobs/{kind}", h.Job.EnqueueJob,
		mw.WithTags("Jobs"),
		mw.WithSummary("Enqueue background job"),
		mw.WithOperationID("enqueueJob"),
		mw.WithStatus(202))
	mw.Get(api, "/api/jobs", h.Job.ListJobs,
		mw.WithTags("Jobs"),
		mw.WithSummary("List jobs for project"),
		mw.WithOperationID("listJobs"))
	mw.Get(api, "/api/jobs/{id}", h.Job.GetJob,
		mw.WithTags("Jobs"),
		mw.WithSummary("Get job"),
		mw.WithOperationID("getJob"))
	mw.Post(api, "/api/jobs/{id}/cancel", h.Job.CancelJob,
		mw.WithTags("Jobs"),
		mw.WithSummary("Cancel job"),
		mw.WithDescription("Pending jobs cancel immediately; running jobs stop at their next checkpoint."),
		mw.WithOperationID("cancelJob"))

	// --- Audit logs ---
	mw.Get(api, "/api/projects/{project_id}/api-request-logs", h.Log.ListLogs,
		mw.WithTags("Logs"),
		mw.WithSummary("List LLM request logs"),
		mw.WithOperationID("listApiRequestLogs"))

	// --- Analytics ---
	mw.Get(api, "/api/projects/{project_id}/analytics", h.Analytics.GetProjectAnalytics,
		mw.WithTags("Analytics"),
		mw.WithSummary("Aggregated project statistics"),
		mw.WithDescription("LLM spend and token totals plus link, job and entry counts for one project."),
		mw.WithOperationID("getProjectAnalytics"))
}

// RegisterRaw registers the endpoints whose responses huma cannot express:
// the SSE stream and the PNG export.
func RegisterRaw(r chi.Router, h *handlers.Handlers) {
	r.Get("/api/sse/subscribe/{project_id}", h.SSE.Subscribe)
	r.Get("/api/projects/{project_id}/character-card/export.png", h.Character.ExportPNG)
}
