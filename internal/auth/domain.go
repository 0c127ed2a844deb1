package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or shape checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims carried by bearer tokens issued at sign in.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// SignInResult is returned to the dashboard after a successful sign in.
type SignInResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	Username  string `json:"username"`
}
