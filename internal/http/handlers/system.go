package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/loreforge/loreforge/internal/repository"
	"github.com/loreforge/loreforge/internal/version"
)

// SystemHandler handles health and info endpoints.
type SystemHandler struct {
	repos      *repository.Repositories
	appVersion string
	runtimeEnv string
}

type HealthOutput struct {
	Body struct {
		Status   string `json:"status" example:"ok"`
		Database string `json:"database" example:"ok"`
	}
}

func (h *SystemHandler) Health(ctx context.Context, input *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.Database = "ok"
	if err := h.repos.DB().PingContext(ctx); err != nil {
		return nil, huma.Error503ServiceUnavailable("database unreachable", err)
	}
	return out, nil
}

type InfoOutput struct {
	Body struct {
		Version    string `json:"version"`
		Commit     string `json:"commit,omitempty"`
		GoVersion  string `json:"go_version"`
		Platform   string `json:"platform"`
		RuntimeEnv string `json:"runtime_env"`
	}
}

func (h *SystemHandler) Info(ctx context.Context, input *struct{}) (*InfoOutput, error) {
	v := version.Get()
	out := &InfoOutput{}
	out.Body.Version = h.appVersion
	if out.Body.Version == "" || out.Body.Version == "dev" {
		out.Body.Version = v.Version
	}
	out.Body.Commit = v.Commit
	out.Body.GoVersion = v.GoVersion
	out.Body.Platform = v.Platform
	out.Body.RuntimeEnv = h.runtimeEnv
	return out, nil
}
