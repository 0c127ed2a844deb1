package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrSystemRole is returned when mutating a built-in role.
	ErrSystemRole = errors.New("rbac: system roles are read only")
	// ErrInvalidRole is returned for an empty role id.
	ErrInvalidRole = errors.New("rbac: role id required")
	// ErrUnknownPermission is returned when granting a token outside the catalogue.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
)

// RepositoryPort defines data access methods for custom roles.
type RepositoryPort interface {
	GetRole(ctx context.Context, id string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, id string) (Role, error)
	SetRolePermissions(ctx context.Context, id string, permissions []string) error
	DeleteRole(ctx context.Context, id string) error
}

// Service orchestrates RBAC operations.
type Service struct {
	repo  RepositoryPort
	group singleflight.Group
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// PermissionsForRole resolves the permission set of a role. Concurrent
// lookups for the same role share one repository call.
func (s *Service) PermissionsForRole(ctx context.Context, roleID string) (PermissionSet, error) {
	roleID = strings.TrimSpace(roleID)
	switch roleID {
	case RoleCreator:
		return FullPermissionSet(), nil
	case RoleViewer, "":
		return NewPermissionSet(nil), nil
	}
	v, err, _ := s.group.Do(roleID, func() (interface{}, error) {
		return s.repo.GetRole(ctx, roleID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewPermissionSet(nil), nil
		}
		return PermissionSet{}, err
	}
	return NewPermissionSet(v.(Role).Permissions), nil
}

// ListRoles returns the custom roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// CreateRole inserts a new custom role.
func (s *Service) CreateRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return Role{}, ErrInvalidRole
	}
	if IsSystemRole(id) {
		return Role{}, ErrSystemRole
	}
	return s.repo.CreateRole(ctx, id)
}

// SetRolePermissions replaces the permissions of a custom role.
func (s *Service) SetRolePermissions(ctx context.Context, id string, permissions []string) error {
	if IsSystemRole(id) {
		return ErrSystemRole
	}
	normalized := normalizePermissions(permissions)
	for _, p := range normalized {
		if !Known(p) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
	}
	return s.repo.SetRolePermissions(ctx, id, normalized)
}

// DeleteRole removes a custom role.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	if IsSystemRole(id) {
		return ErrSystemRole
	}
	return s.repo.DeleteRole(ctx, id)
}
