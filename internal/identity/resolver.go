package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/shared"
	"github.com/hadmean/hadmean/internal/users"
)

// TokenParser turns a bearer token into a username.
type TokenParser interface {
	ParseToken(raw string) (string, error)
}

// UserStore loads accounts.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (users.User, error)
}

// RoleStore resolves role permissions.
type RoleStore interface {
	PermissionsForRole(ctx context.Context, roleID string) (rbac.PermissionSet, error)
}

// Resolver produces the Caller for a request.
type Resolver struct {
	tokens TokenParser
	users  UserStore
	roles  RoleStore
}

// NewResolver constructs a Resolver. tokens may be nil to disable bearer auth.
func NewResolver(tokens TokenParser, users UserStore, roles RoleStore) *Resolver {
	return &Resolver{tokens: tokens, users: users, roles: roles}
}

// Resolve reads the bearer token first, then the cookie session. Missing or
// invalid credentials yield Anonymous; only store failures are returned.
func (r *Resolver) Resolve(req *http.Request) (Caller, error) {
	username := r.username(req)
	if username == "" {
		return Anonymous(), nil
	}
	ctx := req.Context()
	user, err := r.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Anonymous(), nil
		}
		return Caller{}, fmt.Errorf("identity: load user: %w", err)
	}
	perms, err := r.roles.PermissionsForRole(ctx, user.RoleID)
	if err != nil {
		return Caller{}, fmt.Errorf("identity: load role %q: %w", user.RoleID, err)
	}
	return Caller{
		Username:    user.Username,
		Name:        user.Name,
		RoleID:      user.RoleID,
		Permissions: perms,
	}, nil
}

func (r *Resolver) username(req *http.Request) string {
	if raw, ok := BearerToken(req); ok {
		if r.tokens == nil {
			return ""
		}
		username, err := r.tokens.ParseToken(raw)
		if err != nil {
			return ""
		}
		return username
	}
	if sess := shared.SessionFromContext(req.Context()); sess != nil {
		return sess.User()
	}
	return ""
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(req *http.Request) (string, bool) {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
