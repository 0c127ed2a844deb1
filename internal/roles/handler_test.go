package roles_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadmean/hadmean/internal/identity"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
	"github.com/hadmean/hadmean/internal/roles"
)

type memoryRoles struct {
	roles map[string]rbac.Role
}

func (m *memoryRoles) GetRole(_ context.Context, id string) (rbac.Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, nil
}

func (m *memoryRoles) ListRoles(context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memoryRoles) CreateRole(_ context.Context, id string) (rbac.Role, error) {
	role := rbac.Role{ID: id, Permissions: []string{}}
	m.roles[id] = role
	return role, nil
}

func (m *memoryRoles) SetRolePermissions(_ context.Context, id string, permissions []string) error {
	role, ok := m.roles[id]
	if !ok {
		return rbac.ErrNotFound
	}
	role.Permissions = permissions
	m.roles[id] = role
	return nil
}

func (m *memoryRoles) DeleteRole(_ context.Context, id string) error {
	if _, ok := m.roles[id]; !ok {
		return rbac.ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

type headerResolver map[string]identity.Caller

func (h headerResolver) Resolve(r *http.Request) (identity.Caller, error) {
	return h[r.Header.Get("X-Test-Caller")], nil
}

func router(repo *memoryRoles) http.Handler {
	pipeline := request.NewPipeline(request.Config{
		Resolver: headerResolver{
			"admin":  {Username: "admin", RoleID: rbac.RoleCreator, Permissions: rbac.FullPermissionSet()},
			"viewer": {Username: "viewer", RoleID: rbac.RoleViewer, Permissions: rbac.NewPermissionSet(nil)},
		},
		Rules: request.DefaultRules(nil),
	})
	r := chi.NewRouter()
	r.Route("/api/roles", roles.NewHandler(pipeline, rbac.NewService(repo)).MountRoutes)
	return r
}

func call(h http.Handler, method, target, caller, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-Test-Caller", caller)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoleRoutesNeedManageUsers(t *testing.T) {
	h := router(&memoryRoles{roles: map[string]rbac.Role{}})
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/roles/", "viewer", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodPost, "/api/roles/", "", `{"name":"editor"}`).Code)
}

func TestRoleLifecycle(t *testing.T) {
	repo := &memoryRoles{roles: map[string]rbac.Role{}}
	h := router(repo)

	rec := call(h, http.MethodPost, "/api/roles/", "admin", `{"name":" Editor "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"editor"`)

	rec = call(h, http.MethodPut, "/api/roles/editor/permissions", "admin", `{"permissions":["can_manage_dashboard","CAN_ACCESS_ENTITY:orders"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"CAN_MANAGE_DASHBOARD", "CAN_ACCESS_ENTITY:ORDERS"}, repo.roles["editor"].Permissions)

	rec = call(h, http.MethodGet, "/api/roles/", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"creator"`)
	assert.Contains(t, rec.Body.String(), `"id":"editor"`)

	rec = call(h, http.MethodDelete, "/api/roles/editor", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.roles)

	rec = call(h, http.MethodDelete, "/api/roles/editor", "admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleValidationErrors(t *testing.T) {
	h := router(&memoryRoles{roles: map[string]rbac.Role{"editor": {ID: "editor"}}})

	rec := call(h, http.MethodDelete, "/api/roles/viewer", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "System roles can't be changed")

	rec = call(h, http.MethodPut, "/api/roles/editor/permissions", "admin", `{"permissions":["CAN_FLY"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"permissions"`)

	rec = call(h, http.MethodPost, "/api/roles/", "admin", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionCatalogue(t *testing.T) {
	h := router(&memoryRoles{roles: map[string]rbac.Role{}})
	rec := call(h, http.MethodGet, "/api/roles/permissions", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CAN_MANAGE_INTEGRATIONS")
}
