package entities

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/request"
)

// Handler exposes entity endpoints.
type Handler struct {
	pipeline *request.Pipeline
	service  *Service
}

// NewHandler builds Handler instance.
func NewHandler(pipeline *request.Pipeline, service *Service) *Handler {
	return &Handler{pipeline: pipeline, service: service}
}

var fieldName = request.RequestQuery("field")

// MountRoutes registers entity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Handle("/", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.list},
	}, request.Authenticated{}))
	r.Handle("/{entity}", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Validations: []request.Validation{request.Entity()}, Handle: h.show},
	}, request.Authenticated{}))
	r.Handle("/{entity}/selections/{field}", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Validations: []request.Validation{request.Entity(), fieldName}, Handle: h.selections},
	}, request.Authenticated{}))
}

func (h *Handler) list(ctx context.Context, _ *request.Request) (any, error) {
	return h.service.ListActive(ctx)
}

func (h *Handler) show(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.Entity())
	if err != nil {
		return nil, err
	}
	e, err := h.service.Find(ctx, v.Entity())
	if err != nil {
		return nil, mapError(err)
	}
	return e, nil
}

func (h *Handler) selections(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.Entity(), fieldName)
	if err != nil {
		return nil, err
	}
	options, err := h.service.Selections(ctx, v.Entity(), v.Query("field"))
	if err != nil {
		return nil, mapError(err)
	}
	return options, nil
}

func mapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return httpx.NotFound("")
	}
	return err
}
