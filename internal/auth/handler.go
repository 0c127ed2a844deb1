package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/request"
	"github.com/hadmean/hadmean/internal/shared"
)

// MessageInvalidCredentials is returned for unknown users and wrong passwords alike.
const MessageInvalidCredentials = "Invalid Login Credentials"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	pipeline *request.Pipeline
	service  *Service
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(pipeline *request.Pipeline, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{pipeline: pipeline, service: service, sessions: sessions, csrf: csrf}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Handle("/signin", h.pipeline.Handler(request.Methods{
		http.MethodPost: {Validations: []request.Validation{request.RequestBody()}, Handle: h.signIn},
	}))
	r.Handle("/signout", h.pipeline.Handler(request.Methods{
		http.MethodPost: {Handle: h.signOut},
	}, request.Authenticated{}))
}

// MountAccountRoutes registers the account routes.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Handle("/mine", h.pipeline.Handler(request.Methods{
		http.MethodGet: {Validations: []request.Validation{request.AuthenticatedUser()}, Handle: h.mine},
	}, request.Authenticated{}))
}

type signInInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type signInResponse struct {
	SignInResult
	CSRFToken string `json:"csrfToken,omitempty"`
}

func (h *Handler) signIn(ctx context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.RequestBody())
	if err != nil {
		return nil, err
	}
	var in signInInput
	if err := request.Bind(v, &in); err != nil {
		return nil, err
	}
	user, result, err := h.service.SignIn(ctx, in.Username, in.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return nil, httpx.BadRequest(MessageInvalidCredentials, nil)
		}
		return nil, err
	}
	out := signInResponse{SignInResult: result}
	if sess := shared.SessionFromContext(ctx); sess != nil {
		sess.SetUser(user.Username)
		token, err := h.csrf.EnsureToken(ctx, sess)
		if err != nil {
			return nil, err
		}
		out.CSRFToken = token
	}
	return out, nil
}

func (h *Handler) signOut(ctx context.Context, _ *request.Request) (any, error) {
	if sess := shared.SessionFromContext(ctx); sess != nil {
		h.sessions.Destroy(sess)
	}
	return map[string]bool{"success": true}, nil
}

func (h *Handler) mine(_ context.Context, req *request.Request) (any, error) {
	v, err := req.Validate(request.AuthenticatedUser())
	if err != nil {
		return nil, err
	}
	return v.User(), nil
}
