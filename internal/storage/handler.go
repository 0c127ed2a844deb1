package storage

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
)

// Handler exposes storage endpoints.
type Handler struct {
	pipeline *request.Pipeline
	service  *Service
}

// NewHandler builds Handler instance.
func NewHandler(pipeline *request.Pipeline, service *Service) *Handler {
	return &Handler{pipeline: pipeline, service: service}
}

var (
	manageIntegrations = request.CanUser{Permission: rbac.PermManageIntegrations}
	providerKey        = request.RequestQuery("key")
)

// MountRoutes registers storage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Handle("/list", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.list},
	}, manageIntegrations))
	r.Handle("/active", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.active},
	}, manageIntegrations))
	r.Handle("/{key}", h.pipeline.Handler(request.Methods{
		http.MethodPut: {Validations: []request.Validation{providerKey, request.RequestBody()}, Handle: h.configure},
	}, manageIntegrations))
	r.Handle("/{key}/credentials", h.pipeline.Handler(request.Methods{
		http.MethodPost: {Validations: []request.Validation{providerKey}, Handle: h.credentials},
	}, manageIntegrations, request.WithPassword{}))
}

func (h *Handler) list(context.Context, *request.Request) (any, error) {
	return h.service.List(), nil
}

func (h *Handler) active(ctx context.Context, _ *request.Request) (any, error) {
	key, err := h.service.Active(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"storageKey": key}, nil
}

func (h *Handler) configure(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(providerKey, request.RequestBody())
	if err != nil {
		return nil, err
	}
	key := v.Query("key")
	if err := h.service.Configure(ctx, req.Caller.Username, key, Config(v.Body())); err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"storageKey": key}, nil
}

func (h *Handler) credentials(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(providerKey)
	if err != nil {
		return nil, err
	}
	config, err := h.service.ShowStorageConfig(ctx, v.Query("key"))
	if err != nil {
		return nil, mapError(err)
	}
	return config, nil
}

func mapError(err error) error {
	if errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrNotConfigured) {
		return httpx.NotFound("")
	}
	return err
}
