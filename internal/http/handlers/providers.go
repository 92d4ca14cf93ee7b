package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/loreforge/loreforge/internal/crypto"
	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/repository"
)

// ProviderHandler exposes the provider registry and model listings.
type ProviderHandler struct {
	registry  *llm.Registry
	repos     *repository.Repositories
	encryptor *crypto.Encryptor
}

type ListProvidersOutput struct {
	Body struct {
		Providers []llm.ProviderInfo `json:"providers"`
	}
}

func (h *ProviderHandler) ListProviders(ctx context.Context, input *struct{}) (*ListProvidersOutput, error) {
	out := &ListProvidersOutput{}
	out.Body.Providers = h.registry.List()
	return out, nil
}

type ListModelsInput struct {
	Name         string `path:"name" doc:"Provider name"`
	CredentialID string `query:"credential_id" doc:"Credential supplying the api key; optional for keyless providers"`
}

type ListModelsOutput struct {
	Body struct {
		Models []llm.ModelInfo `json:"models"`
	}
}

func (h *ProviderHandler) ListModels(ctx context.Context, input *ListModelsInput) (*ListModelsOutput, error) {
	if !h.registry.Has(input.Name) {
		return nil, huma.Error404NotFound("unknown provider " + input.Name)
	}

	opts := llm.BuildOptions{}
	if input.CredentialID != "" {
		cred, err := h.repos.Credential.GetByID(ctx, input.CredentialID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load credential", err)
		}
		if cred == nil {
			return nil, huma.Error404NotFound("credential not found")
		}
		for key, encrypted := range cred.Values {
			plain, derr := h.encryptor.Decrypt(encrypted)
			if derr != nil {
				return nil, huma.Error500InternalServerError("failed to decrypt credential", derr)
			}
			switch key {
			case "api_key":
				opts.APIKey = plain
			case "base_url":
				opts.BaseURL = plain
			}
		}
	}

	provider, err := h.registry.Build(input.Name, opts)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	models, err := provider.ListModels(ctx)
	if err != nil {
		return nil, huma.Error502BadGateway("failed to list models", err)
	}
	out := &ListModelsOutput{}
	out.Body.Models = models
	return out, nil
}
