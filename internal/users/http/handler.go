package usershttp

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
	"github.com/hadmean/hadmean/internal/users"
)

// Lister lists dashboard accounts.
type Lister interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// Handler manages user management endpoints.
type Handler struct {
	pipeline *request.Pipeline
	service  Lister
}

// NewHandler builds Handler instance.
func NewHandler(pipeline *request.Pipeline, service Lister) *Handler {
	return &Handler{pipeline: pipeline, service: service}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Handle("/", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.list},
	}, request.CanUser{Permission: rbac.PermManageUsers}))
}

func (h *Handler) list(ctx context.Context, _ *request.Request) (any, error) {
	list, err := h.service.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []users.User{}
	}
	return list, nil
}
