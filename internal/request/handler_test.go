package request_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadmean/hadmean/internal/identity"
	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/rbac"
	"github.com/hadmean/hadmean/internal/request"
	_ "github.com/hadmean/hadmean/testing"
)

const callerHeader = "X-Test-Caller"

// stubResolver maps the X-Test-Caller header to a prepared caller.
type stubResolver struct {
	callers map[string]identity.Caller
	err     error
}

func (s stubResolver) Resolve(r *http.Request) (identity.Caller, error) {
	if s.err != nil {
		return identity.Caller{}, s.err
	}
	return s.callers[r.Header.Get(callerHeader)], nil
}

type stubEntities map[string]request.EntityStatus

func (s stubEntities) Status(_ context.Context, slug string) (request.EntityStatus, error) {
	return s[slug], nil
}

func customRole(perms ...string) identity.Caller {
	return identity.Caller{Username: "custom", RoleID: "custom-role", Permissions: rbac.NewPermissionSet(perms)}
}

var callers = map[string]identity.Caller{
	"creator": {Username: "root", RoleID: rbac.RoleCreator, Permissions: rbac.FullPermissionSet()},
	"viewer":  {Username: "viewer", RoleID: rbac.RoleViewer, Permissions: rbac.NewPermissionSet(nil)},
	"configure-and-access": customRole(
		string(rbac.PermConfigureApp),
		rbac.CanAccessEntity("DISABLED-ENTITY-1"),
	),
	"configure-only": customRole(string(rbac.PermConfigureApp)),
	"access-only": customRole(
		string(rbac.PermManageDashboard),
		rbac.CanAccessEntity("DISABLED-ENTITY-1"),
	),
}

var entities = stubEntities{
	"tests":             request.EntityEnabled,
	"disabled-entity-1": request.EntityDisabled,
}

func newPipeline(t *testing.T) *request.Pipeline {
	t.Helper()
	return request.NewPipeline(request.Config{
		Resolver: stubResolver{callers: callers},
		Rules:    request.DefaultRules(entities),
	})
}

func serve(h http.Handler, method, target, caller string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func entityHandler(p *request.Pipeline) http.Handler {
	return p.Handler(request.Methods{
		http.MethodGet: {
			Validations: []request.Validation{request.Entity()},
			Handle: func(ctx context.Context, req *request.Request) (any, error) {
				v, err := req.Validate(request.Entity())
				if err != nil {
					return nil, err
				}
				return map[string]any{"data": v.Entity()}, nil
			},
		},
	})
}

func TestEntityValidation(t *testing.T) {
	h := entityHandler(newPipeline(t))

	t.Run("returns the valid entity", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/?entity=tests", "viewer")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":"tests"}`, rec.Body.String())
	})

	t.Run("404 for entities that do not exist, whatever the permissions", func(t *testing.T) {
		for _, caller := range []string{"creator", "viewer", "configure-and-access"} {
			rec := serve(h, http.MethodGet, "/?entity=non-existent-entity", caller)
			require.Equal(t, http.StatusNotFound, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "This resource doesn't exist or is disabled or you dont have access to it", body["message"])
			assert.Equal(t, "BadRequestError", body["name"])
			assert.Equal(t, "GET", body["method"])
			assert.Equal(t, "/?entity=non-existent-entity", body["path"])
			assert.EqualValues(t, 404, body["statusCode"])
			assert.NotEmpty(t, body["timestamp"])
			assert.NotContains(t, body, "validations")
		}
	})

	t.Run("disabled entity needs configure and access together", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/?entity=disabled-entity-1", "configure-and-access")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":"disabled-entity-1"}`, rec.Body.String())

		rec = serve(h, http.MethodGet, "/?entity=disabled-entity-1", "creator")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("one permission alone is not enough for a disabled entity", func(t *testing.T) {
		for _, caller := range []string{"configure-only", "access-only", "viewer"} {
			rec := serve(h, http.MethodGet, "/?entity=disabled-entity-1", caller)
			assert.Equal(t, http.StatusNotFound, rec.Code, caller)
			assert.Equal(t, "BadRequestError", decode(t, rec)["name"])
		}
	})

	t.Run("missing slug is a bad request", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/", "viewer")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, map[string]any{"entity": "Required"}, body["validations"])
	})
}

func TestCanUserRejectsAnonymousAndViewers(t *testing.T) {
	p := newPipeline(t)
	ran := false
	h := p.Handler(request.Methods{
		http.MethodGet: {Handle: func(context.Context, *request.Request) (any, error) {
			ran = true
			return []string{}, nil
		}},
	}, request.CanUser{Permission: rbac.PermManageIntegrations})

	for _, caller := range []string{"", "viewer"} {
		rec := serve(h, http.MethodGet, "/api/integrations/credentials", caller)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "ForbiddenError", body["name"])
		assert.EqualValues(t, 401, body["statusCode"])
		assert.Equal(t, "Your account doesn't have enough priviledge to perform this action", body["message"])
	}
	assert.False(t, ran)

	rec := serve(h, http.MethodGet, "/api/integrations/credentials", "configure-only")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ran)
}

func TestChecksShortCircuit(t *testing.T) {
	p := newPipeline(t)
	var calls []string
	record := func(name string, err error) request.Check {
		return request.Custom{Name: name, Fn: func(context.Context, identity.Caller, *http.Request) error {
			calls = append(calls, name)
			return err
		}}
	}
	h := p.Handler(request.Methods{
		http.MethodGet: {Handle: func(context.Context, *request.Request) (any, error) {
			calls = append(calls, "handler")
			return nil, nil
		}},
	},
		record("first", nil),
		record("second", httpx.Forbidden("")),
		record("third", nil),
	)

	rec := serve(h, http.MethodGet, "/", "creator")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestValidationIsMemoized(t *testing.T) {
	runs := 0
	rules, err := request.NewRules(map[request.Kind]request.Rule{
		request.KindEntity: request.EntityRule{Entities: entities},
		request.KindRequestQuery: request.RuleFunc(func(req *request.Request, v request.Validation) (any, error) {
			runs++
			return req.HTTP.URL.Query().Get(v.Field), nil
		}),
		request.KindRequestBody:       request.RuleFunc(func(*request.Request, request.Validation) (any, error) { return map[string]any{}, nil }),
		request.KindAuthenticatedUser: request.RuleFunc(func(*request.Request, request.Validation) (any, error) { return nil, nil }),
	})
	require.NoError(t, err)
	p := request.NewPipeline(request.Config{Resolver: stubResolver{callers: callers}, Rules: rules})

	h := p.Handler(request.Methods{
		http.MethodGet: {
			Validations: []request.Validation{request.RequestQuery("key"), request.Entity()},
			Handle: func(ctx context.Context, req *request.Request) (any, error) {
				first, err := req.Validate(request.RequestQuery("key"))
				if err != nil {
					return nil, err
				}
				second, err := req.Validate(request.RequestQuery("key"), request.Entity())
				if err != nil {
					return nil, err
				}
				return []string{first.Query("key"), second.Query("key"), second.Entity()}, nil
			},
		},
	})

	rec := serve(h, http.MethodGet, "/?key=KEY_1&entity=tests", "viewer")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["KEY_1","KEY_1","tests"]`, rec.Body.String())
	assert.Equal(t, 1, runs)
}

func TestProgrammingErrorsBecomeInternalErrors(t *testing.T) {
	p := newPipeline(t)
	cases := map[string]func(context.Context, *request.Request) (any, error){
		"undeclared validation": func(ctx context.Context, req *request.Request) (any, error) {
			_, err := req.Validate(request.RequestBody())
			return nil, err
		},
		"unrequested getter": func(ctx context.Context, req *request.Request) (any, error) {
			v, err := req.Validate(request.Entity())
			if err != nil {
				return nil, err
			}
			return v.Query("key"), nil
		},
		"panic": func(context.Context, *request.Request) (any, error) {
			panic("boom")
		},
		"unknown error": func(context.Context, *request.Request) (any, error) {
			return nil, errors.New("database exploded")
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			h := p.Handler(request.Methods{
				http.MethodGet: {Validations: []request.Validation{request.Entity()}, Handle: fn},
			})
			rec := serve(h, http.MethodGet, "/?entity=tests", "creator")
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "Internal Server Error", body["message"])
			assert.EqualValues(t, 500, body["statusCode"])
			assert.NotContains(t, body, "name")
			assert.NotContains(t, body, "validations")
		})
	}
}

func TestUnsupportedMethod(t *testing.T) {
	p := newPipeline(t)
	noop := func(context.Context, *request.Request) (any, error) { return nil, nil }
	h := p.Handler(request.Methods{
		http.MethodGet:  {Handle: noop},
		http.MethodPost: {Handle: noop},
	})

	rec := serve(h, http.MethodDelete, "/", "creator")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
	assert.Equal(t, "BadRequestError", decode(t, rec)["name"])
}

func TestResolverFailureIsInternal(t *testing.T) {
	p := request.NewPipeline(request.Config{
		Resolver: stubResolver{err: errors.New("redis down")},
		Rules:    request.DefaultRules(entities),
	})
	h := p.Handler(request.Methods{
		http.MethodGet: {Handle: func(context.Context, *request.Request) (any, error) { return "ok", nil }},
	})
	rec := serve(h, http.MethodGet, "/", "creator")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestBodyAndBind(t *testing.T) {
	p := newPipeline(t)
	type payload struct {
		Username string `json:"username" validate:"required"`
		Age      int    `json:"age" validate:"min=18"`
	}
	h := p.Handler(request.Methods{
		http.MethodPost: {
			Validations: []request.Validation{request.RequestBody()},
			Handle: func(ctx context.Context, req *request.Request) (any, error) {
				v, err := req.Validate(request.RequestBody())
				if err != nil {
					return nil, err
				}
				var in payload
				if err := request.Bind(v, &in); err != nil {
					return nil, err
				}
				return in.Username, nil
			},
		},
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(callerHeader, "creator")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"username":"root","age":30}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"root"`, rec.Body.String())

	rec = post(`{"age":3}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"username": "Required", "age": "Should be at least 18"}, decode(t, rec)["validations"])

	rec = post(`{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticatedUserValidation(t *testing.T) {
	p := newPipeline(t)
	h := p.Handler(request.Methods{
		http.MethodGet: {
			Validations: []request.Validation{request.AuthenticatedUser()},
			Handle: func(ctx context.Context, req *request.Request) (any, error) {
				v, err := req.Validate(request.AuthenticatedUser())
				if err != nil {
					return nil, err
				}
				return v.User(), nil
			},
		},
	})

	rec := serve(h, http.MethodGet, "/api/account/mine", "configure-only")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"custom","name":"","role":"custom-role","permissions":["CAN_CONFIGURE_APP"]}`, rec.Body.String())

	rec = serve(h, http.MethodGet, "/api/account/mine", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRejectsBadRouteTables(t *testing.T) {
	p := newPipeline(t)
	assert.Panics(t, func() {
		p.Handler(request.Methods{
			http.MethodGet: {
				Validations: []request.Validation{request.RequestQuery("")},
				Handle:      func(context.Context, *request.Request) (any, error) { return nil, nil },
			},
		})
	})
	assert.Panics(t, func() {
		p.Handler(request.Methods{http.MethodGet: {}})
	})
}
