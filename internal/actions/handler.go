package actions

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
)

// Handler exposes action integration endpoints.
type Handler struct {
	pipeline *request.Pipeline
	service  *Service
}

// NewHandler builds Handler instance.
func NewHandler(pipeline *request.Pipeline, service *Service) *Handler {
	return &Handler{pipeline: pipeline, service: service}
}

var manageIntegrations = request.CanUser{Permission: rbac.PermManageIntegrations}

var (
	integrationKey = request.RequestQuery("key")
	activationID   = request.RequestQuery("activationId")
	instanceID     = request.RequestQuery("instanceId")
	body           = request.RequestBody()
)

// MountRoutes registers action routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Handle("/list", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.list},
	}, manageIntegrations))
	r.Handle("/active", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Handle: h.active},
	}, manageIntegrations))
	r.Handle("/instances", h.pipeline.Handler(request.Methods{
		http.MethodGet:  {Handle: h.listInstances},
		http.MethodPost: {Validations: []request.Validation{body}, Handle: h.createInstance},
	}, manageIntegrations))
	r.Handle("/instances/{instanceId}", h.pipeline.Handler(request.Methods{
		http.MethodPatch:  {Validations: []request.Validation{instanceID, body}, Handle: h.updateInstance},
		http.MethodDelete: {Validations: []request.Validation{instanceID}, Handle: h.deleteInstance},
	}, manageIntegrations))
	r.Handle("/instances/{instanceId}/run", h.pipeline.Handler(request.Methods{
		http.MethodPost: {Validations: []request.Validation{instanceID, body}, Handle: h.run},
	}, manageIntegrations))
	r.Handle("/activations/{activationId}", h.pipeline.Handler(request.Methods{
		http.MethodPatch:  {Validations: []request.Validation{activationID, body}, Handle: h.updateActivation},
		http.MethodDelete: {Validations: []request.Validation{activationID}, Handle: h.deactivate},
	}, manageIntegrations))
	r.Handle("/activations/{activationId}/credentials", h.pipeline.Handler(request.Methods{
		http.MethodPost: {Validations: []request.Validation{activationID}, Handle: h.reveal},
	}, manageIntegrations, request.WithPassword{}))
	r.Handle("/{key}", h.pipeline.Handler(request.Methods{
		http.MethodPost: {Validations: []request.Validation{integrationKey, body}, Handle: h.activate},
	}, manageIntegrations))
}

func (h *Handler) list(context.Context, *request.Request) (any, error) {
	return h.service.Registry().List(), nil
}

func (h *Handler) active(ctx context.Context, _ *request.Request) (any, error) {
	return h.service.ListActivations(ctx)
}

func (h *Handler) activate(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(integrationKey, body)
	if err != nil {
		return nil, err
	}
	activation, err := h.service.Activate(ctx, req.Caller.Username, v.Query("key"), Config(v.Body()))
	if err != nil {
		return nil, mapError(err)
	}
	return activation, nil
}

func (h *Handler) updateActivation(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(activationID, body)
	if err != nil {
		return nil, err
	}
	id := v.Query("activationId")
	if err := h.service.UpdateActivation(ctx, req.Caller.Username, id, Config(v.Body())); err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"activationId": id}, nil
}

func (h *Handler) deactivate(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(activationID)
	if err != nil {
		return nil, err
	}
	id := v.Query("activationId")
	if err := h.service.Deactivate(ctx, req.Caller.Username, id); err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"activationId": id}, nil
}

func (h *Handler) reveal(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(activationID)
	if err != nil {
		return nil, err
	}
	config, err := h.service.RevealActivation(ctx, v.Query("activationId"))
	if err != nil {
		return nil, mapError(err)
	}
	return config, nil
}

func (h *Handler) listInstances(ctx context.Context, req *request.Request) (any, error) {
	q := req.HTTP.URL.Query()
	instances, err := h.service.ListInstances(ctx, InstanceFilter{Entity: q.Get("entity"), IntegrationKey: q.Get("integrationKey")})
	if err != nil {
		return nil, err
	}
	if instances == nil {
		instances = []Instance{}
	}
	return instances, nil
}

type instanceInput struct {
	IntegrationKey    string         `json:"integrationKey" validate:"required"`
	Entity            string         `json:"entity" validate:"required"`
	FormAction        string         `json:"formAction" validate:"required,oneof=create update delete"`
	ImplementationKey string         `json:"implementationKey" validate:"required"`
	Configuration     map[string]any `json:"configuration"`
}

func (in instanceInput) toInput() InstanceInput {
	return InstanceInput{
		IntegrationKey:    in.IntegrationKey,
		Entity:            in.Entity,
		FormAction:        FormAction(in.FormAction),
		ImplementationKey: in.ImplementationKey,
		Configuration:     Config(in.Configuration),
	}
}

func (h *Handler) createInstance(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(body)
	if err != nil {
		return nil, err
	}
	var in instanceInput
	if err := request.Bind(v, &in); err != nil {
		return nil, err
	}
	instance, err := h.service.CreateInstance(ctx, in.toInput())
	if err != nil {
		return nil, mapError(err)
	}
	return instance, nil
}

func (h *Handler) updateInstance(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(instanceID, body)
	if err != nil {
		return nil, err
	}
	var in instanceInput
	if err := request.Bind(v, &in); err != nil {
		return nil, err
	}
	instance, err := h.service.UpdateInstance(ctx, v.Query("instanceId"), in.toInput())
	if err != nil {
		return nil, mapError(err)
	}
	return instance, nil
}

func (h *Handler) deleteInstance(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(instanceID)
	if err != nil {
		return nil, err
	}
	id := v.Query("instanceId")
	if err := h.service.DeleteInstance(ctx, id); err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"instanceId": id}, nil
}

func (h *Handler) run(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(instanceID, body)
	if err != nil {
		return nil, err
	}
	taskID, err := h.service.EnqueueRun(ctx, v.Query("instanceId"), v.Body())
	if err != nil {
		return nil, mapError(err)
	}
	return map[string]string{"taskId": taskID}, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownIntegration):
		return httpx.NotFound("")
	case errors.Is(err, ErrUnknownPerform):
		return httpx.BadRequest("", map[string]string{"implementationKey": "Unknown action"})
	case errors.Is(err, ErrAlreadyActive):
		return httpx.BadRequest("Integration is already activated", nil)
	case errors.Is(err, ErrNotActivated):
		return httpx.BadRequest("Integration is not activated", nil)
	}
	return err
}
