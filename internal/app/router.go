package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hadmean/hadmean/internal/actions"
	"github.com/hadmean/hadmean/internal/auth"
	"github.com/hadmean/hadmean/internal/credentials"
	"github.com/hadmean/hadmean/internal/entities"
	"github.com/hadmean/hadmean/internal/observability"
	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/roles"
	"github.com/hadmean/hadmean/internal/shared"
	"github.com/hadmean/hadmean/internal/storage"
	usershttp "github.com/hadmean/hadmean/internal/users/http"
	"github.com/hadmean/hadmean/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	UsersHandler       *usershttp.Handler
	RolesHandler       *roles.Handler
	EntitiesHandler    *entities.Handler
	CredentialsHandler *credentials.Handler
	ActionsHandler     *actions.Handler
	StorageHandler     *storage.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with hadmean defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, r, httpx.NotFound(""))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/account", params.AuthHandler.MountAccountRoutes)
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		r.Route("/entities", params.EntitiesHandler.MountRoutes)
		r.Route("/integrations", func(r chi.Router) {
			r.Route("/credentials", params.CredentialsHandler.MountRoutes)
			r.Route("/actions", params.ActionsHandler.MountRoutes)
			r.Route("/storage", params.StorageHandler.MountRoutes)
		})
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
