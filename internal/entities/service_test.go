package entities_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadmean/hadmean/internal/entities"
	"github.com/hadmean/hadmean/internal/identity"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
	_ "github.com/hadmean/hadmean/testing"
)

type stubSchema struct {
	loads atomic.Int32
	err   error
}

func (s *stubSchema) Columns(context.Context) ([]entities.Column, error) {
	s.loads.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []entities.Column{
		{Table: "orders", Name: "id", DataType: "integer", UDTName: "int4", Default: true},
		{Table: "orders", Name: "status", DataType: "USER-DEFINED", UDTName: "order_status"},
		{Table: "orders", Name: "paid", DataType: "boolean", UDTName: "bool", Nullable: true},
		{Table: "orders", Name: "channel", DataType: "text", UDTName: "text", Nullable: true},
		{Table: "tests", Name: "id", DataType: "bigint", UDTName: "int8", Default: true},
		{Table: "disabled-entity-1", Name: "created_at", DataType: "timestamp with time zone", UDTName: "timestamptz"},
	}, nil
}

func (s *stubSchema) Enums(context.Context) (map[string][]string, error) {
	return map[string][]string{"order_status": {"pending", "approved", "rejected"}}, nil
}

type stubConfig map[string]string

func (c stubConfig) Get(_ context.Context, key string, dst any) error {
	raw, ok := c[key]
	if !ok {
		return entities.ErrNotFound
	}
	return json.Unmarshal([]byte(raw), dst)
}

func newService(schema *stubSchema) *entities.Service {
	return entities.NewService(schema, stubConfig{
		entities.ConfigDisabledEntities: `["disabled-entity-1"]`,
		entities.ConfigEntitySelections: `{"orders":{"channel":[{"label":"Web","value":"web","color":"#000"}]}}`,
	})
}

func TestSchemaLoadsOnce(t *testing.T) {
	schema := &stubSchema{}
	svc := newService(schema)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Find(context.Background(), "orders")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, schema.loads.Load(), int32(20))

	before := schema.loads.Load()
	_, err = svc.Find(context.Background(), "tests")
	require.NoError(t, err)
	assert.Equal(t, before, schema.loads.Load())
}

func TestFailedLoadIsRetried(t *testing.T) {
	schema := &stubSchema{err: errors.New("db down")}
	svc := newService(schema)
	_, err := svc.List(context.Background())
	require.Error(t, err)

	schema.err = nil
	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestFindMapsColumns(t *testing.T) {
	svc := newService(&stubSchema{})
	e, err := svc.Find(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "Orders", e.Label)
	assert.Equal(t, []entities.Field{
		{Name: "id", Label: "Id", Type: entities.FieldNumber},
		{Name: "status", Label: "Status", Type: entities.FieldSelectionEnum, Required: true, EnumOptions: []string{"pending", "approved", "rejected"}},
		{Name: "paid", Label: "Paid", Type: entities.FieldBoolean},
		{Name: "channel", Label: "Channel", Type: entities.FieldText},
	}, e.Fields)

	_, err = svc.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestListActiveAndStatus(t *testing.T) {
	svc := newService(&stubSchema{})
	ctx := context.Background()

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []entities.Summary{{Slug: "orders", Label: "Orders"}, {Slug: "tests", Label: "Tests"}}, active)

	status, err := svc.Status(ctx, "disabled-entity-1")
	require.NoError(t, err)
	assert.Equal(t, request.EntityDisabled, status)
	status, err = svc.Status(ctx, "tests")
	require.NoError(t, err)
	assert.Equal(t, request.EntityEnabled, status)
	status, err = svc.Status(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, request.EntityMissing, status)
}

func TestSelections(t *testing.T) {
	svc := newService(&stubSchema{})
	ctx := context.Background()

	options, err := svc.Selections(ctx, "orders", "status")
	require.NoError(t, err)
	assert.Len(t, options, 3)
	assert.Equal(t, "#00a05a", options[0].Color)

	options, err = svc.Selections(ctx, "orders", "channel")
	require.NoError(t, err)
	assert.Equal(t, []entities.Option{{Label: "Web", Value: "web", Color: "#000"}}, options)

	options, err = svc.Selections(ctx, "orders", "paid")
	require.NoError(t, err)
	assert.Equal(t, "Yes", options[0].Label)

	_, err = svc.Selections(ctx, "orders", "missing")
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

type headerResolver map[string]identity.Caller

func (h headerResolver) Resolve(r *http.Request) (identity.Caller, error) {
	return h[r.Header.Get("X-Test-Caller")], nil
}

func TestEntityRoutes(t *testing.T) {
	svc := newService(&stubSchema{})
	configureOnly := rbac.NewPermissionSet([]string{"CAN_CONFIGURE_APP"})
	configureAndAccess := rbac.NewPermissionSet([]string{"CAN_CONFIGURE_APP", rbac.CanAccessEntity("disabled-entity-1")})
	accessOnly := rbac.NewPermissionSet([]string{"CAN_MANAGE_DASHBOARD", rbac.CanAccessEntity("disabled-entity-1")})
	pipeline := request.NewPipeline(request.Config{
		Resolver: headerResolver{
			"configure-only":       {Username: "a", RoleID: "custom-role", Permissions: configureOnly},
			"configure-and-access": {Username: "b", RoleID: "custom-role", Permissions: configureAndAccess},
			"access-only":          {Username: "c", RoleID: "custom-role", Permissions: accessOnly},
		},
		Rules:   request.DefaultRules(svc),
		Checker: request.NewChecker(""),
	})
	r := chi.NewRouter()
	r.Route("/api/entities", entities.NewHandler(pipeline, svc).MountRoutes)

	get := func(target, caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-Test-Caller", caller)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/entities", "").Code)

	rec := get("/api/entities", "configure-only")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"slug":"orders","label":"Orders"},{"slug":"tests","label":"Tests"}]`, rec.Body.String())

	assert.Equal(t, http.StatusOK, get("/api/entities/tests", "access-only").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/entities/non-existent-entity", "configure-only").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/entities/disabled-entity-1", "configure-only").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/entities/disabled-entity-1", "access-only").Code)
	assert.Equal(t, http.StatusOK, get("/api/entities/disabled-entity-1", "configure-and-access").Code)

	rec = get("/api/entities/disabled-entity-1", "configure-only")
	assert.Contains(t, rec.Body.String(), `"message":"This resource doesn't exist or is disabled or you dont have access to it"`)
	assert.Contains(t, rec.Body.String(), `"name":"BadRequestError"`)

	rec = get("/api/entities/orders/selections/channel", "configure-only")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"label":"Web","value":"web","color":"#000"}]`, rec.Body.String())
}
