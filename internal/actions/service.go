package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/shared"
)

var (
	// ErrNotFound indicates that the requested activation or instance does not exist.
	ErrNotFound = errors.New("actions: not found")
	// ErrAlreadyActive indicates the integration already has an activation.
	ErrAlreadyActive = errors.New("actions: integration already activated")
	// ErrNotActivated indicates an instance refers to an integration without activation.
	ErrNotActivated = errors.New("actions: integration not activated")
	// ErrPermanent marks run failures that retrying cannot fix.
	ErrPermanent = errors.New("actions: permanent failure")
)

// RepositoryPort defines data access methods for activations and instances.
type RepositoryPort interface {
	CreateActivation(ctx context.Context, a Activation) error
	GetActivation(ctx context.Context, id string) (Activation, error)
	GetActivationByKey(ctx context.Context, key string) (Activation, error)
	ListActivations(ctx context.Context) ([]Activation, error)
	UpdateActivation(ctx context.Context, id, sealed string) error
	DeleteActivation(ctx context.Context, id string) error
	ListInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	CreateInstance(ctx context.Context, in Instance) error
	UpdateInstance(ctx context.Context, in Instance) error
	DeleteInstance(ctx context.Context, id string) error
}

// Sealer encrypts connected configurations at rest.
type Sealer interface {
	Seal(plain []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// Enqueuer schedules instance runs on the job queue.
type Enqueuer interface {
	EnqueueActionRun(ctx context.Context, payload RunPayload) (string, error)
}

// PerformRecorder counts perform outcomes.
type PerformRecorder interface {
	RecordActionPerform(integration, perform, outcome string)
}

// Service manages activations and instances on top of the registry.
type Service struct {
	repo     RepositoryPort
	registry *Registry
	sealer   Sealer
	queue    Enqueuer
	metrics  PerformRecorder
	audit    shared.AuditRecorder
	now      func() time.Time
}

// ServiceParams groups Service dependencies. Queue, Metrics and Audit are optional.
type ServiceParams struct {
	Repo     RepositoryPort
	Registry *Registry
	Sealer   Sealer
	Queue    Enqueuer
	Metrics  PerformRecorder
	Audit    shared.AuditRecorder
}

// NewService constructs a Service.
func NewService(p ServiceParams) *Service {
	audit := p.Audit
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{
		repo:     p.Repo,
		registry: p.Registry,
		sealer:   p.Sealer,
		queue:    p.Queue,
		metrics:  p.Metrics,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Registry exposes the integration registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Activate connects integration key with config and stores the connected
// configuration. Each integration has at most one activation.
func (s *Service) Activate(ctx context.Context, actor, key string, config Config) (ActivationView, error) {
	in, err := s.registry.Lookup(key)
	if err != nil {
		return ActivationView{}, err
	}
	if _, err := s.repo.GetActivationByKey(ctx, key); err == nil {
		return ActivationView{}, ErrAlreadyActive
	} else if !errors.Is(err, ErrNotFound) {
		return ActivationView{}, err
	}
	connected, err := s.registry.Connect(ctx, key, config)
	if err != nil {
		return ActivationView{}, err
	}
	sealed, err := s.seal(connected)
	if err != nil {
		return ActivationView{}, err
	}
	a := Activation{ID: uuid.NewString(), IntegrationKey: key, Sealed: sealed, CreatedAt: s.now()}
	if err := s.repo.CreateActivation(ctx, a); err != nil {
		return ActivationView{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: "activate", Resource: "actions", Key: key}); err != nil {
		return ActivationView{}, err
	}
	return view(a, in), nil
}

// UpdateActivation reconnects an activation with a new configuration.
func (s *Service) UpdateActivation(ctx context.Context, actor, id string, config Config) error {
	a, err := s.repo.GetActivation(ctx, id)
	if err != nil {
		return err
	}
	connected, err := s.registry.Connect(ctx, a.IntegrationKey, config)
	if err != nil {
		return err
	}
	sealed, err := s.seal(connected)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateActivation(ctx, id, sealed); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: "update", Resource: "actions", Key: a.IntegrationKey})
}

// Deactivate removes an activation together with its instances.
func (s *Service) Deactivate(ctx context.Context, actor, id string) error {
	a, err := s.repo.GetActivation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteActivation(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: "deactivate", Resource: "actions", Key: a.IntegrationKey})
}

// ListActivations returns the activations without their configuration.
// Activations of integrations that are no longer registered are skipped.
func (s *Service) ListActivations(ctx context.Context) ([]ActivationView, error) {
	activations, err := s.repo.ListActivations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ActivationView, 0, len(activations))
	for _, a := range activations {
		in, err := s.registry.Lookup(a.IntegrationKey)
		if err != nil {
			continue
		}
		out = append(out, view(a, in))
	}
	return out, nil
}

// RevealActivation returns the plain connected configuration.
func (s *Service) RevealActivation(ctx context.Context, id string) (Config, error) {
	a, err := s.repo.GetActivation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open(a)
}

// ListInstances returns the instances matching filter.
func (s *Service) ListInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error) {
	return s.repo.ListInstances(ctx, filter)
}

// InstanceInput is the mutable part of an instance.
type InstanceInput struct {
	IntegrationKey    string
	Entity            string
	FormAction        FormAction
	ImplementationKey string
	Configuration     Config
}

// CreateInstance attaches a perform of an activated integration to an entity form action.
func (s *Service) CreateInstance(ctx context.Context, input InstanceInput) (Instance, error) {
	if err := s.checkInstance(ctx, input); err != nil {
		return Instance{}, err
	}
	now := s.now()
	in := Instance{
		ID:                uuid.NewString(),
		IntegrationKey:    input.IntegrationKey,
		Entity:            input.Entity,
		FormAction:        input.FormAction,
		ImplementationKey: input.ImplementationKey,
		Configuration:     input.Configuration,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateInstance(ctx, in); err != nil {
		return Instance{}, err
	}
	return in, nil
}

// UpdateInstance replaces the instance definition.
func (s *Service) UpdateInstance(ctx context.Context, id string, input InstanceInput) (Instance, error) {
	current, err := s.repo.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, err
	}
	if err := s.checkInstance(ctx, input); err != nil {
		return Instance{}, err
	}
	current.IntegrationKey = input.IntegrationKey
	current.Entity = input.Entity
	current.FormAction = input.FormAction
	current.ImplementationKey = input.ImplementationKey
	current.Configuration = input.Configuration
	current.UpdatedAt = s.now()
	if err := s.repo.UpdateInstance(ctx, current); err != nil {
		return Instance{}, err
	}
	return current, nil
}

// DeleteInstance removes an instance.
func (s *Service) DeleteInstance(ctx context.Context, id string) error {
	return s.repo.DeleteInstance(ctx, id)
}

// EnqueueRun schedules instance id for execution with the form data.
func (s *Service) EnqueueRun(ctx context.Context, id string, data map[string]any) (string, error) {
	if s.queue == nil {
		return "", errors.New("actions: queue not configured")
	}
	if _, err := s.repo.GetInstance(ctx, id); err != nil {
		return "", err
	}
	return s.queue.EnqueueActionRun(ctx, RunPayload{InstanceID: id, Data: data})
}

// Run executes an instance. String configuration values are rendered as
// templates against payload.Data before the perform is invoked. Failures
// that retrying cannot fix are joined with ErrPermanent.
func (s *Service) Run(ctx context.Context, payload RunPayload) (result any, err error) {
	in, err := s.repo.GetInstance(ctx, payload.InstanceID)
	if err != nil {
		return nil, permanentIf(err, errors.Is(err, ErrNotFound))
	}
	defer func() {
		s.record(in, err)
	}()
	a, err := s.repo.GetActivationByKey(ctx, in.IntegrationKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errors.Join(ErrPermanent, ErrNotActivated)
		}
		return nil, err
	}
	connected, err := s.open(a)
	if err != nil {
		return nil, errors.Join(ErrPermanent, err)
	}
	config, err := Render(in.Configuration, payload.Data)
	if err != nil {
		return nil, errors.Join(ErrPermanent, err)
	}
	result, err = s.registry.Do(ctx, in.IntegrationKey, in.ImplementationKey, connected, config)
	if err != nil {
		return nil, permanentIf(err, rejected(err))
	}
	return result, nil
}

// rejected reports failures caused by the stored instance rather than the provider.
func rejected(err error) bool {
	if errors.Is(err, ErrUnknownIntegration) || errors.Is(err, ErrUnknownPerform) {
		return true
	}
	if errors.Is(err, ErrIntegrationFailed) {
		return false
	}
	_, ok := httpx.AsError(err)
	return ok
}

func (s *Service) record(in Instance, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.RecordActionPerform(in.IntegrationKey, in.ImplementationKey, outcome)
}

func (s *Service) checkInstance(ctx context.Context, input InstanceInput) error {
	if !input.FormAction.Valid() {
		return httpx.BadRequest("", map[string]string{"formAction": "Should be one of create, update, delete"})
	}
	if strings.TrimSpace(input.Entity) == "" {
		return httpx.BadRequest("", map[string]string{"entity": "Required"})
	}
	if _, err := s.registry.LookupPerform(input.IntegrationKey, input.ImplementationKey); err != nil {
		return err
	}
	if _, err := s.repo.GetActivationByKey(ctx, input.IntegrationKey); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotActivated
		}
		return err
	}
	return s.registry.ValidatePerformConfiguration(input.IntegrationKey, input.ImplementationKey, input.Configuration)
}

func (s *Service) seal(config Config) (string, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("actions: encode configuration: %w", err)
	}
	return s.sealer.Seal(raw)
}

func (s *Service) open(a Activation) (Config, error) {
	raw, err := s.sealer.Open(a.Sealed)
	if err != nil {
		return nil, fmt.Errorf("actions: open activation %s: %w", a.ID, err)
	}
	var config Config
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("actions: decode activation %s: %w", a.ID, err)
	}
	return config, nil
}

// Render expands every string value of config as a text/template over data.
// Referencing a missing key is an error.
func Render(config Config, data map[string]any) (Config, error) {
	out := make(Config, len(config))
	for key, value := range config {
		text, ok := value.(string)
		if !ok || !strings.Contains(text, "{{") {
			out[key] = value
			continue
		}
		tmpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("actions: parse %s: %w", key, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("actions: render %s: %w", key, err)
		}
		out[key] = buf.String()
	}
	return out, nil
}

func permanentIf(err error, permanent bool) error {
	if permanent {
		return errors.Join(ErrPermanent, err)
	}
	return err
}

func view(a Activation, in Integration) ActivationView {
	return ActivationView{ID: a.ID, IntegrationKey: a.IntegrationKey, Title: in.Title, CreatedAt: a.CreatedAt}
}
