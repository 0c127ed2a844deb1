package roles

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
)

// Service is the role management surface of rbac.Service.
type Service interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	CreateRole(ctx context.Context, id string) (rbac.Role, error)
	SetRolePermissions(ctx context.Context, id string, permissions []string) error
	DeleteRole(ctx context.Context, id string) error
}

// Handler manages role management endpoints.
type Handler struct {
	pipeline *request.Pipeline
	service  Service
}

// NewHandler builds Handler instance.
func NewHandler(pipeline *request.Pipeline, service Service) *Handler {
	return &Handler{pipeline: pipeline, service: service}
}

var manageUsers = request.CanUser{Permission: rbac.PermManageUsers}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Handle("/", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.list},
		http.MethodPost: {
			Validations: []request.Validation{request.RequestBody()},
			Handle:      h.create,
		},
	}, manageUsers))
	r.Handle("/permissions", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.catalogue},
	}, manageUsers))
	r.Handle("/{roleId}", h.pipeline.Handler(request.Methods{
		http.MethodDelete: {
			Validations: []request.Validation{request.RequestQuery("roleId")},
			Handle:      h.delete,
		},
	}, manageUsers))
	r.Handle("/{roleId}/permissions", h.pipeline.Handler(request.Methods{
		http.MethodPut: {
			Validations: []request.Validation{request.RequestQuery("roleId"), request.RequestBody()},
			Handle:      h.setPermissions,
		},
	}, manageUsers))
}

func (h *Handler) list(ctx context.Context, _ *request.Request) (any, error) {
	roles, err := h.service.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := []rbac.Role{{ID: rbac.RoleCreator, Permissions: rbac.FullPermissionSet().List()}, {ID: rbac.RoleViewer, Permissions: []string{}}}
	return append(out, roles...), nil
}

func (h *Handler) catalogue(context.Context, *request.Request) (any, error) {
	return rbac.AllPermissions(), nil
}

type createInput struct {
	Name string `json:"name" validate:"required,max=64"`
}

func (h *Handler) create(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.RequestBody())
	if err != nil {
		return nil, err
	}
	var in createInput
	if err := request.Bind(v, &in); err != nil {
		return nil, err
	}
	role, err := h.service.CreateRole(ctx, in.Name)
	if err != nil {
		return nil, mapError(err)
	}
	return role, nil
}

type permissionsInput struct {
	Permissions []string `json:"permissions" validate:"required"`
}

func (h *Handler) setPermissions(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.RequestQuery("roleId"), request.RequestBody())
	if err != nil {
		return nil, err
	}
	var in permissionsInput
	if err := request.Bind(v, &in); err != nil {
		return nil, err
	}
	if err := h.service.SetRolePermissions(ctx, v.Query("roleId"), in.Permissions); err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"id": v.Query("roleId")}, nil
}

func (h *Handler) delete(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.RequestQuery("roleId"))
	if err != nil {
		return nil, err
	}
	if err := h.service.DeleteRole(ctx, v.Query("roleId")); err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"id": v.Query("roleId")}, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		return httpx.NotFound("Role not found")
	case errors.Is(err, rbac.ErrSystemRole):
		return httpx.BadRequest("System roles can't be changed", nil)
	case errors.Is(err, rbac.ErrInvalidRole):
		return httpx.BadRequest("", map[string]string{"name": "Required"})
	case errors.Is(err, rbac.ErrUnknownPermission):
		return httpx.BadRequest("", map[string]string{"permissions": err.Error()})
	}
	return err
}
