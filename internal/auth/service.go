package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/hadmean/hadmean/internal/shared"
	"github.com/hadmean/hadmean/internal/users"
)

// UserFinder loads accounts by username.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users  UserFinder
	tokens *Tokens
}

// NewService constructs a new Service.
func NewService(users UserFinder, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (users.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// SignIn authenticates and issues a bearer token.
func (s *Service) SignIn(ctx context.Context, username, password string) (users.User, SignInResult, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return users.User{}, SignInResult{}, err
	}
	token, expires, err := s.tokens.Issue(user.Username, user.RoleID)
	if err != nil {
		return users.User{}, SignInResult{}, err
	}
	return user, SignInResult{Token: token, ExpiresAt: expires.Unix(), Username: user.Username}, nil
}
