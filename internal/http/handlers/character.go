package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/cardpng"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// CharacterHandler handles the per-project character card.
type CharacterHandler struct {
	repos *repository.Repositories
}

type GetCardInput struct {
	ProjectID string `path:"project_id"`
}

type CardOutput struct {
	Body *models.CharacterCard
}

func (h *CharacterHandler) GetCard(ctx context.Context, input *GetCardInput) (*CardOutput, error) {
	card, err := h.repos.CharacterCard.GetByProject(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load character card", err)
	}
	if card == nil {
		return nil, huma.Error404NotFound("character card not found")
	}
	return &CardOutput{Body: card}, nil
}

type UpdateCardInput struct {
	ProjectID string `path:"project_id"`
	Body      struct {
		Name            string `json:"name"`
		Description     string `json:"description"`
		Persona         string `json:"persona"`
		Scenario        string `json:"scenario"`
		FirstMessage    string `json:"first_message"`
		ExampleMessages string `json:"example_messages"`
	}
}

func (h *CharacterHandler) UpdateCard(ctx context.Context, input *UpdateCardInput) (*CardOutput, error) {
	project, err := h.repos.Project.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}

	card, err := h.repos.CharacterCard.GetByProject(ctx, input.ProjectID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load character card", err)
	}
	if card == nil {
		card = &models.CharacterCard{
			ID:        ulid.Make().String(),
			ProjectID: input.ProjectID,
			CreatedAt: time.Now().UTC(),
		}
	}
	card.Name = input.Body.Name
	card.Description = input.Body.Description
	card.Persona = input.Body.Persona
	card.Scenario = input.Body.Scenario
	card.FirstMessage = input.Body.FirstMessage
	card.ExampleMessages = input.Body.ExampleMessages
	card.UpdatedAt = time.Now().UTC()
	if err := h.repos.CharacterCard.Upsert(ctx, card); err != nil {
		return nil, huma.Error500InternalServerError("failed to save character card", err)
	}
	return &CardOutput{Body: card}, nil
}

// ExportPNG serves the card as a chara_card_v2 PNG. Registered as a raw chi
// handler because the response is an image, not JSON.
func (h *CharacterHandler) ExportPNG(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	card, err := h.repos.CharacterCard.GetByProject(r.Context(), projectID)
	if err != nil {
		http.Error(w, "failed to load character card", http.StatusInternalServerError)
		return
	}
	if card == nil {
		http.Error(w, "character card not found", http.StatusNotFound)
		return
	}

	data, err := cardpng.Encode(card)
	if err != nil {
		http.Error(w, "failed to encode card png", http.StatusInternalServerError)
		return
	}

	name := card.Name
	if name == "" {
		name = "character"
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".png"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
