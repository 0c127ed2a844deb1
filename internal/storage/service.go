package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hadmean/hadmean/internal/credentials"
	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/schemaform"
)

// activeKey holds the key of the selected provider.
const activeKey = "ACTIVE"

var (
	// ErrUnknownProvider indicates no provider is registered under the key.
	ErrUnknownProvider = errors.New("storage: unknown provider")
	// ErrNotConfigured indicates the provider has no stored configuration.
	ErrNotConfigured = errors.New("storage: provider not configured")
	// ErrConnectFailed marks configurations the provider rejected.
	ErrConnectFailed = errors.New("storage: connect failed")
)

// SecretStore persists provider configurations encrypted.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Upsert(ctx context.Context, actor, key, value string) error
}

type compiledProvider struct {
	provider Provider
	form     *schemaform.Compiled
}

// Service selects and configures the storage provider.
type Service struct {
	store     SecretStore
	providers map[string]compiledProvider
	keys      []string
}

// NewService compiles the provider forms.
func NewService(store SecretStore, compiler *schemaform.Compiler, providers ...Provider) (*Service, error) {
	s := &Service{store: store, providers: make(map[string]compiledProvider, len(providers))}
	for _, p := range providers {
		if _, dup := s.providers[p.Key]; dup || p.Key == "" {
			return nil, fmt.Errorf("storage: invalid provider key %q", p.Key)
		}
		form, err := compiler.Compile("storage-"+p.Key, p.ConfigurationSchema)
		if err != nil {
			return nil, fmt.Errorf("storage: provider %q: %w", p.Key, err)
		}
		s.providers[p.Key] = compiledProvider{provider: p, form: form}
		s.keys = append(s.keys, p.Key)
	}
	sort.Strings(s.keys)
	return s, nil
}

// Summary describes a provider to the dashboard.
type Summary struct {
	Key                 string            `json:"key"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	ConfigurationSchema schemaform.Schema `json:"configurationSchema"`
}

// List returns the providers sorted by key.
func (s *Service) List() []Summary {
	out := make([]Summary, 0, len(s.keys))
	for _, key := range s.keys {
		p := s.providers[key].provider
		out = append(out, Summary{Key: p.Key, Title: p.Title, Description: p.Description, ConfigurationSchema: p.ConfigurationSchema})
	}
	return out
}

// Active returns the key of the selected provider, or "" when none is set.
func (s *Service) Active(ctx context.Context) (string, error) {
	key, err := s.store.Get(ctx, activeKey)
	if errors.Is(err, credentials.ErrNotFound) {
		return "", nil
	}
	return key, err
}

// Configure validates and connects config, stores it and makes the provider active.
func (s *Service) Configure(ctx context.Context, actor, key string, config Config) error {
	entry, ok := s.providers[key]
	if !ok {
		return ErrUnknownProvider
	}
	if err := entry.form.Validate(config); err != nil {
		var invalid *schemaform.InvalidError
		if errors.As(err, &invalid) {
			return httpx.BadRequest("", invalid.Validations)
		}
		return err
	}
	if entry.provider.Connect != nil {
		if err := entry.provider.Connect(ctx, config); err != nil {
			return errors.Join(ErrConnectFailed, httpx.BadRequest(entry.provider.Title+" integration failed", nil), err)
		}
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("storage: encode configuration: %w", err)
	}
	if err := s.store.Upsert(ctx, actor, key, string(raw)); err != nil {
		return err
	}
	return s.store.Upsert(ctx, actor, activeKey, key)
}

// ShowStorageConfig returns the stored configuration of provider key.
func (s *Service) ShowStorageConfig(ctx context.Context, key string) (Config, error) {
	if _, ok := s.providers[key]; !ok {
		return nil, ErrUnknownProvider
	}
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	var config Config
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return config, nil
}
