package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/loreforge/loreforge/internal/crypto"
	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/models"
	"github.com/loreforge/loreforge/internal/repository"
)

// CredentialHandler handles provider credential endpoints. Values are
// write-only: they are encrypted before storage and never serialized back.
type CredentialHandler struct {
	repos     *repository.Repositories
	encryptor *crypto.Encryptor
	registry  *llm.Registry
}

type CredentialBody struct {
	Name     string            `json:"name" minLength:"1" maxLength:"100"`
	Provider string            `json:"provider" minLength:"1" doc:"Registered provider name"`
	Values   map[string]string `json:"values,omitempty" doc:"Secret material (api_key, base_url); write-only"`
}

type CreateCredentialInput struct {
	Body CredentialBody
}

type CredentialOutput struct {
	Body *models.Credential
}

func (h *CredentialHandler) encryptValues(values map[string]string) (map[string]string, error) {
	encrypted := make(map[string]string, len(values))
	for key, plain := range values {
		ct, err := h.encryptor.Encrypt(plain)
		if err != nil {
			return nil, err
		}
		encrypted[key] = ct
	}
	return encrypted, nil
}

func (h *CredentialHandler) CreateCredential(ctx context.Context, input *CreateCredentialInput) (*CredentialOutput, error) {
	if !h.registry.Has(input.Body.Provider) {
		return nil, huma.Error422UnprocessableEntity("unknown provider " + input.Body.Provider)
	}
	values, err := h.encryptValues(input.Body.Values)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to encrypt credential values", err)
	}

	now := time.Now().UTC()
	cred := &models.Credential{
		ID:        ulid.Make().String(),
		Name:      input.Body.Name,
		Provider:  input.Body.Provider,
		Values:    values,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repos.Credential.Create(ctx, cred); err != nil {
		return nil, huma.Error500InternalServerError("failed to create credential", err)
	}
	return &CredentialOutput{Body: cred}, nil
}

type ListCredentialsOutput struct {
	Body struct {
		Credentials []*models.Credential `json:"credentials"`
	}
}

func (h *CredentialHandler) ListCredentials(ctx context.Context, input *struct{}) (*ListCredentialsOutput, error) {
	creds, err := h.repos.Credential.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list credentials", err)
	}
	out := &ListCredentialsOutput{}
	out.Body.Credentials = creds
	return out, nil
}

type UpdateCredentialInput struct {
	ID   string `path:"id"`
	Body CredentialBody
}

func (h *CredentialHandler) UpdateCredential(ctx context.Context, input *UpdateCredentialInput) (*CredentialOutput, error) {
	cred, err := h.repos.Credential.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load credential", err)
	}
	if cred == nil {
		return nil, huma.Error404NotFound("credential not found")
	}
	if !h.registry.Has(input.Body.Provider) {
		return nil, huma.Error422UnprocessableEntity("unknown provider " + input.Body.Provider)
	}

	cred.Name = input.Body.Name
	cred.Provider = input.Body.Provider
	// Omitted values keep their stored ciphertext; provided ones replace it.
	if len(input.Body.Values) > 0 {
		values, verr := h.encryptValues(input.Body.Values)
		if verr != nil {
			return nil, huma.Error500InternalServerError("failed to encrypt credential values", verr)
		}
		for key, ct := range values {
			cred.Values[key] = ct
		}
	}
	if err := h.repos.Credential.Update(ctx, cred); err != nil {
		return nil, huma.Error500InternalServerError("failed to update credential", err)
	}
	return &CredentialOutput{Body: cred}, nil
}

type DeleteCredentialInput struct {
	ID string `path:"id"`
}

func (h *CredentialHandler) DeleteCredential(ctx context.Context, input *DeleteCredentialInput) (*EmptyOutput, error) {
	cred, err := h.repos.Credential.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load credential", err)
	}
	if cred == nil {
		return nil, huma.Error404NotFound("credential not found")
	}
	if err := h.repos.Credential.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete credential", err)
	}
	return &EmptyOutput{}, nil
}
