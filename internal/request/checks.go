package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/hadmean/hadmean/internal/identity"
	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/rbac"
)

// PasswordHeader carries the app password for WithPassword gated routes.
const PasswordHeader = "X-Hadmean-Password"

// MessageInvalidPassword is returned when WithPassword fails.
const MessageInvalidPassword = "Invalid Password"

// Check is an authorization gate evaluated before the handler runs.
type Check interface {
	isCheck()
}

// CanUser requires Permission, scoped to ResourceID when set.
type CanUser struct {
	Permission rbac.Permission
	ResourceID string
}

// WithPassword requires the app password in PasswordHeader.
type WithPassword struct{}

// Authenticated rejects anonymous callers.
type Authenticated struct{}

// Custom runs Fn. A nil Fn fails closed.
type Custom struct {
	Name string
	Fn   func(ctx context.Context, caller identity.Caller, r *http.Request) error
}

func (CanUser) isCheck()       {}
func (WithPassword) isCheck()  {}
func (Authenticated) isCheck() {}
func (Custom) isCheck()        {}

// Checker evaluates checks in order, stopping at the first failure.
type Checker struct {
	passwordHash []byte
}

// NewChecker returns a Checker. An empty passwordHash makes every
// WithPassword check fail.
func NewChecker(passwordHash string) *Checker {
	return &Checker{passwordHash: []byte(passwordHash)}
}

// Run evaluates checks in declared order.
func (c *Checker) Run(ctx context.Context, checks []Check, caller identity.Caller, r *http.Request) error {
	for _, check := range checks {
		if err := c.run(ctx, check, caller, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) run(ctx context.Context, check Check, caller identity.Caller, r *http.Request) error {
	switch ch := check.(type) {
	case CanUser:
		if !caller.Can(ch.Permission, ch.ResourceID) {
			return httpx.Forbidden("")
		}
		return nil
	case WithPassword:
		return c.password(r)
	case Authenticated:
		if caller.IsAnonymous() {
			return httpx.Forbidden("")
		}
		return nil
	case Custom:
		if ch.Fn == nil {
			return fmt.Errorf("request: custom check %q has no function", ch.Name)
		}
		return ch.Fn(ctx, caller, r)
	default:
		return fmt.Errorf("request: unknown check %T", check)
	}
}

func (c *Checker) password(r *http.Request) error {
	supplied := r.Header.Get(PasswordHeader)
	if supplied == "" || len(c.passwordHash) == 0 {
		return httpx.Forbidden(MessageInvalidPassword)
	}
	err := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(supplied))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return httpx.Forbidden(MessageInvalidPassword)
	}
	return fmt.Errorf("request: compare app password: %w", err)
}
