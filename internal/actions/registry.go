package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/schemaform"
)

var (
	// ErrUnknownIntegration indicates no integration is registered under the key.
	ErrUnknownIntegration = errors.New("actions: unknown integration")
	// ErrUnknownPerform indicates the integration has no such perform.
	ErrUnknownPerform = errors.New("actions: unknown perform")
	// ErrIntegrationFailed marks provider errors and panics.
	ErrIntegrationFailed = errors.New("actions: integration failed")
)

// IntegrationError wraps a provider failure. It reads as a BadRequest
// "<Title> integration failed" in the error envelope.
type IntegrationError struct {
	Key   string
	Title string
	Err   error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("%s integration failed: %v", e.Title, e.Err)
}

// Unwrap exposes the sentinel, the envelope error and the cause.
func (e *IntegrationError) Unwrap() []error {
	return []error{ErrIntegrationFailed, httpx.BadRequest(e.Title+" integration failed", nil), e.Err}
}

type registered struct {
	integration Integration
	config      *schemaform.Compiled
	performs    map[string]*schemaform.Compiled
}

// Registry is the write-once set of integrations. It is safe for concurrent reads.
type Registry struct {
	entries map[string]*registered
	keys    []string
}

// NewRegistry validates and compiles integrations.
func NewRegistry(compiler *schemaform.Compiler, integrations ...Integration) (*Registry, error) {
	r := &Registry{entries: make(map[string]*registered, len(integrations))}
	for _, in := range integrations {
		key := strings.TrimSpace(in.Key)
		if key == "" {
			return nil, errors.New("actions: integration without key")
		}
		if _, dup := r.entries[key]; dup {
			return nil, fmt.Errorf("actions: duplicate integration %q", key)
		}
		if len(in.Performs) == 0 {
			return nil, fmt.Errorf("actions: integration %q has no performs", key)
		}
		config, err := compiler.Compile(key, in.ConfigurationSchema)
		if err != nil {
			return nil, fmt.Errorf("actions: integration %q: %w", key, err)
		}
		entry := &registered{integration: in, config: config, performs: make(map[string]*schemaform.Compiled, len(in.Performs))}
		for name, perform := range in.Performs {
			if perform.Do == nil {
				return nil, fmt.Errorf("actions: perform %s.%s has no implementation", key, name)
			}
			compiled, err := compiler.Compile(key+"."+name, perform.ConfigurationSchema)
			if err != nil {
				return nil, fmt.Errorf("actions: perform %s.%s: %w", key, name, err)
			}
			entry.performs[name] = compiled
		}
		r.entries[key] = entry
		r.keys = append(r.keys, key)
	}
	sort.Strings(r.keys)
	return r, nil
}

// Lookup returns the integration registered under key.
func (r *Registry) Lookup(key string) (Integration, error) {
	entry, ok := r.entries[key]
	if !ok {
		return Integration{}, ErrUnknownIntegration
	}
	return entry.integration, nil
}

// LookupPerform returns one perform of an integration.
func (r *Registry) LookupPerform(key, perform string) (Perform, error) {
	entry, ok := r.entries[key]
	if !ok {
		return Perform{}, ErrUnknownIntegration
	}
	p, ok := entry.integration.Performs[perform]
	if !ok {
		return Perform{}, ErrUnknownPerform
	}
	return p, nil
}

// PerformSummary describes a perform to the dashboard.
type PerformSummary struct {
	Key                 string            `json:"key"`
	Label               string            `json:"label"`
	ConfigurationSchema schemaform.Schema `json:"configurationSchema"`
}

// Summary describes an integration to the dashboard.
type Summary struct {
	Key                 string            `json:"key"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	ConfigurationSchema schemaform.Schema `json:"configurationSchema"`
	Performs            []PerformSummary  `json:"performs"`
}

// List returns the integrations sorted by key.
func (r *Registry) List() []Summary {
	out := make([]Summary, 0, len(r.keys))
	for _, key := range r.keys {
		in := r.entries[key].integration
		performs := make([]PerformSummary, 0, len(in.Performs))
		for name, p := range in.Performs {
			performs = append(performs, PerformSummary{Key: name, Label: p.Label, ConfigurationSchema: p.ConfigurationSchema})
		}
		sort.Slice(performs, func(i, j int) bool { return performs[i].Key < performs[j].Key })
		out = append(out, Summary{
			Key:                 key,
			Title:               in.Title,
			Description:         in.Description,
			ConfigurationSchema: in.ConfigurationSchema,
			Performs:            performs,
		})
	}
	return out
}

// ValidateConfiguration checks an activation configuration.
func (r *Registry) ValidateConfiguration(key string, config Config) error {
	entry, ok := r.entries[key]
	if !ok {
		return ErrUnknownIntegration
	}
	return invalid(entry.config.Validate(config))
}

// ValidatePerformConfiguration checks a perform configuration.
func (r *Registry) ValidatePerformConfiguration(key, perform string, config Config) error {
	entry, ok := r.entries[key]
	if !ok {
		return ErrUnknownIntegration
	}
	compiled, ok := entry.performs[perform]
	if !ok {
		return ErrUnknownPerform
	}
	return invalid(compiled.Validate(config))
}

// Connect validates config and runs the integration's connect step.
func (r *Registry) Connect(ctx context.Context, key string, config Config) (connected Config, err error) {
	if err := r.ValidateConfiguration(key, config); err != nil {
		return nil, err
	}
	in := r.entries[key].integration
	if in.Connect == nil {
		return clone(config), nil
	}
	defer recoverInto(&err, in)
	connected, err = in.Connect(ctx, clone(config))
	if err != nil {
		return nil, &IntegrationError{Key: key, Title: in.Title, Err: err}
	}
	return connected, nil
}

// Do validates config and runs perform with the connected configuration.
func (r *Registry) Do(ctx context.Context, key, perform string, connected, config Config) (result any, err error) {
	if err := r.ValidatePerformConfiguration(key, perform, config); err != nil {
		return nil, err
	}
	in := r.entries[key].integration
	defer recoverInto(&err, in)
	result, err = in.Performs[perform].Do(ctx, clone(connected), clone(config))
	if err != nil {
		return nil, &IntegrationError{Key: key, Title: in.Title, Err: err}
	}
	return result, nil
}

func recoverInto(err *error, in Integration) {
	if rec := recover(); rec != nil {
		*err = &IntegrationError{Key: in.Key, Title: in.Title, Err: fmt.Errorf("panic: %v", rec)}
	}
}

func invalid(err error) error {
	var fields *schemaform.InvalidError
	if errors.As(err, &fields) {
		return httpx.BadRequest("", fields.Validations)
	}
	return err
}

func clone(c Config) Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
