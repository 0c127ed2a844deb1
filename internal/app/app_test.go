package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadmean/hadmean/internal/shared"
)

func validConfig() Config {
	return Config{
		CSRFSecret:         "csrf",
		CredentialsSecret:  "credentials",
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		JWTTTL:             time.Hour,
		IntegrationTimeout: time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	short := validConfig()
	short.JWTSecret = "short"
	assert.Error(t, short.Validate())

	missing := validConfig()
	missing.CredentialsSecret = ""
	assert.Error(t, missing.Validate())

	timeout := validConfig()
	timeout.IntegrationTimeout = 0
	assert.Error(t, timeout.Validate())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("CREDENTIALS_SECRET", "credentials")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("APP_ADDR", ":9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.AppAddr)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "public", cfg.DBSchema)
	assert.False(t, cfg.IsProduction())
}

func csrfRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "hadmean_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")

	r := chi.NewRouter()
	r.Use(sessions.Middleware(nil))
	r.Use(CSRFMiddleware(csrf, NewLogger(nil)))
	r.Post("/signin", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		sess.SetUser("root")
		token, err := csrf.EnsureToken(r.Context(), sess)
		require.NoError(t, err)
		_, _ = w.Write([]byte(token))
	})
	r.Post("/mutate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func post(h http.Handler, target string, cookies []*http.Cookie, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCSRFMiddleware(t *testing.T) {
	h := csrfRouter(t)

	rec := post(h, "/mutate", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "anonymous requests reach the pipeline")

	rec = post(h, "/signin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Body.String()
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = post(h, "/mutate", cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), MessageInvalidCSRF)

	rec = post(h, "/mutate", cookies, shared.CSRFHeader, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h, "/mutate", cookies, shared.CSRFHeader, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = post(h, "/mutate", cookies, "Authorization", "Bearer some.jwt.token")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
