package credentials

import (
	"context"
	"fmt"

	"github.com/hadmean/hadmean/internal/shared"
)

// RepositoryPort defines data access methods for credentials.
type RepositoryPort interface {
	List(ctx context.Context, group string) ([]Record, error)
	Get(ctx context.Context, group, key string) (Record, error)
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, group, key string) error
}

// Service manages the secrets of one group.
type Service struct {
	repo   RepositoryPort
	cipher *Cipher
	audit  shared.AuditRecorder
	group  string
}

// NewService constructs a Service over GroupCredentials.
func NewService(repo RepositoryPort, cipher *Cipher, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, cipher: cipher, audit: audit, group: GroupCredentials}
}

// WithGroup returns a Service sharing storage and key but scoped to group.
func (s *Service) WithGroup(group string) *Service {
	clone := *s
	clone.group = group
	return &clone
}

// List returns the keys with values redacted.
func (s *Service) List(ctx context.Context) ([]Credential, error) {
	records, err := s.repo.List(ctx, s.group)
	if err != nil {
		return nil, err
	}
	out := make([]Credential, 0, len(records))
	for _, rec := range records {
		out = append(out, Credential{Key: rec.Key, Value: RedactedValue})
	}
	return out, nil
}

// Reveal returns the keys with plain values.
func (s *Service) Reveal(ctx context.Context) ([]Credential, error) {
	records, err := s.repo.List(ctx, s.group)
	if err != nil {
		return nil, err
	}
	out := make([]Credential, 0, len(records))
	for _, rec := range records {
		plain, err := s.cipher.Open(rec.Sealed)
		if err != nil {
			return nil, fmt.Errorf("credentials: open %s: %w", rec.Key, err)
		}
		out = append(out, Credential{Key: rec.Key, Value: string(plain)})
	}
	return out, nil
}

// Get returns the plain value of key.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	rec, err := s.repo.Get(ctx, s.group, key)
	if err != nil {
		return "", err
	}
	plain, err := s.cipher.Open(rec.Sealed)
	if err != nil {
		return "", fmt.Errorf("credentials: open %s: %w", key, err)
	}
	return string(plain), nil
}

// Upsert stores value under key.
func (s *Service) Upsert(ctx context.Context, actor, key, value string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	sealed, err := s.cipher.Seal([]byte(value))
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, Record{Group: s.group, Key: key, Sealed: sealed}); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: "upsert", Resource: s.group, Key: key})
}

// Delete removes key.
func (s *Service) Delete(ctx context.Context, actor, key string) error {
	if err := s.repo.Delete(ctx, s.group, key); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: "delete", Resource: s.group, Key: key})
}
