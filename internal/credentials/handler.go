package credentials

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
)

// Handler exposes credential endpoints.
type Handler struct {
	pipeline *request.Pipeline
	service  *Service
}

// NewHandler builds Handler instance.
func NewHandler(pipeline *request.Pipeline, service *Service) *Handler {
	return &Handler{pipeline: pipeline, service: service}
}

var manageIntegrations = request.CanUser{Permission: rbac.PermManageIntegrations}

// MountRoutes registers credential routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Handle("/", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.list},
	}, manageIntegrations))
	r.Handle("/reveal", h.pipeline.Handler(request.Methods{
		http.MethodPost: {Handle: h.reveal},
	}, manageIntegrations, request.WithPassword{}))
	r.Handle("/{key}", h.pipeline.Handler(request.Methods{
		http.MethodPut: {
			Validations: []request.Validation{request.RequestQuery("key"), request.RequestBody()},
			Handle:      h.upsert,
		},
		http.MethodDelete: {
			Validations: []request.Validation{request.RequestQuery("key")},
			Handle:      h.delete,
		},
	}, manageIntegrations))
}

func (h *Handler) list(ctx context.Context, _ *request.Request) (any, error) {
	return h.service.List(ctx)
}

func (h *Handler) reveal(ctx context.Context, _ *request.Request) (any, error) {
	return h.service.Reveal(ctx)
}

type upsertInput struct {
	Value string `json:"value" validate:"required"`
}

func (h *Handler) upsert(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.RequestQuery("key"), request.RequestBody())
	if err != nil {
		return nil, err
	}
	var in upsertInput
	if err := request.Bind(v, &in); err != nil {
		return nil, err
	}
	key := v.Query("key")
	if err := h.service.Upsert(ctx, req.Caller.Username, key, in.Value); err != nil {
		return nil, mapError(err)
	}
	return Credential{Key: key, Value: RedactedValue}, nil
}

func (h *Handler) delete(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.RequestQuery("key"))
	if err != nil {
		return nil, err
	}
	key := v.Query("key")
	if err := h.service.Delete(ctx, req.Caller.Username, key); err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"key": key}, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.NotFound("")
	case errors.Is(err, ErrInvalidKey):
		return httpx.BadRequest("", map[string]string{"key": "Only letters, digits, '_', '.' and '-' are allowed"})
	}
	return err
}
