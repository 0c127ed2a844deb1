package credentials_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hadmean/hadmean/internal/credentials"
	"github.com/hadmean/hadmean/internal/identity"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
	_ "github.com/hadmean/hadmean/testing"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]credentials.Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[string]credentials.Record{}}
}

func (m *memoryRepo) List(_ context.Context, group string) ([]credentials.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []credentials.Record
	for _, rec := range m.records {
		if rec.Group == group {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, group, key string) (credentials.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[group+"/"+key]
	if !ok {
		return credentials.Record{}, credentials.ErrNotFound
	}
	return rec, nil
}

func (m *memoryRepo) Upsert(_ context.Context, rec credentials.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Group+"/"+rec.Key] = rec
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, group, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[group+"/"+key]; !ok {
		return credentials.ErrNotFound
	}
	delete(m.records, group+"/"+key)
	return nil
}

type headerResolver map[string]identity.Caller

func (h headerResolver) Resolve(r *http.Request) (identity.Caller, error) {
	return h[r.Header.Get("X-Test-Caller")], nil
}

type noEntities struct{}

func (noEntities) Status(context.Context, string) (request.EntityStatus, error) {
	return request.EntityMissing, nil
}

func setup(t *testing.T) (http.Handler, *credentials.Service) {
	t.Helper()
	cipher, err := credentials.NewCipher("0123456789abcdef-test")
	require.NoError(t, err)
	svc := credentials.NewService(newMemoryRepo(), cipher, nil)
	require.NoError(t, svc.Upsert(context.Background(), "seed", "CREDENTIAL_KEY_2", "value-2"))
	require.NoError(t, svc.Upsert(context.Background(), "seed", "CREDENTIAL_KEY_1", "value-1"))

	hash, err := bcrypt.GenerateFromPassword([]byte("app-password"), bcrypt.MinCost)
	require.NoError(t, err)
	pipeline := request.NewPipeline(request.Config{
		Resolver: headerResolver{
			"custom": {Username: "custom", RoleID: "custom-role", Permissions: rbac.NewPermissionSet([]string{"CAN_CONFIGURE_APP"})},
			"viewer": {Username: "viewer", RoleID: rbac.RoleViewer, Permissions: rbac.NewPermissionSet(nil)},
		},
		Rules:   request.DefaultRules(noEntities{}),
		Checker: request.NewChecker(string(hash)),
	})
	r := chi.NewRouter()
	r.Route("/api/integrations/credentials", credentials.NewHandler(pipeline, svc).MountRoutes)
	return r, svc
}

func do(h http.Handler, method, target, caller, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("X-Test-Caller", caller)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListRedactsValuesForConfigureApp(t *testing.T) {
	h, _ := setup(t)
	rec := do(h, http.MethodGet, "/api/integrations/credentials", "custom", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"key":"CREDENTIAL_KEY_1","value":"***********"},
		{"key":"CREDENTIAL_KEY_2","value":"***********"}
	]`, rec.Body.String())
}

func TestListRejectsViewers(t *testing.T) {
	h, _ := setup(t)
	rec := do(h, http.MethodGet, "/api/integrations/credentials", "viewer", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"ForbiddenError"`)
	assert.Contains(t, rec.Body.String(), `"message":"Your account doesn't have enough priviledge to perform this action"`)
}

func TestRevealNeedsPassword(t *testing.T) {
	h, _ := setup(t)
	rec := do(h, http.MethodPost, "/api/integrations/credentials/reveal", "custom", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/integrations/credentials/reveal", "custom", "", request.PasswordHeader, "app-password")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"key":"CREDENTIAL_KEY_1","value":"value-1"},{"key":"CREDENTIAL_KEY_2","value":"value-2"}]`, rec.Body.String())
}

func TestUpsertAndDelete(t *testing.T) {
	h, svc := setup(t)

	rec := do(h, http.MethodPut, "/api/integrations/credentials/SMTP_PASSWORD", "custom", `{"value":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	value, err := svc.Get(context.Background(), "SMTP_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	rec = do(h, http.MethodPut, "/api/integrations/credentials/SMTP_PASSWORD", "custom", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"value":"Required"`)

	rec = do(h, http.MethodDelete, "/api/integrations/credentials/SMTP_PASSWORD", "custom", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(h, http.MethodDelete, "/api/integrations/credentials/SMTP_PASSWORD", "custom", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := credentials.NewCipher("0123456789abcdef-test")
	require.NoError(t, err)
	sealed, err := c.Seal([]byte("hello"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hello")

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))

	other, err := credentials.NewCipher("another-secret-of-length")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, credentials.ErrDecrypt)

	_, err = credentials.NewCipher("short")
	assert.Error(t, err)
}
