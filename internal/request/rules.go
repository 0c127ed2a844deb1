package request

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hadmean/hadmean/internal/platform/httpx"
	"github.com/hadmean/hadmean/internal/rbac"
)

// EntityStatus is what the entity store knows about a slug.
type EntityStatus int

// Entity states.
const (
	EntityMissing EntityStatus = iota
	EntityEnabled
	EntityDisabled
)

// EntityLookup reports the status of an entity slug.
type EntityLookup interface {
	Status(ctx context.Context, slug string) (EntityStatus, error)
}

// maxBodyBytes bounds the JSON bodies read by the requestBody rule.
const maxBodyBytes = 1 << 20

// DefaultRules returns the built-in rule set.
func DefaultRules(entities EntityLookup) *Rules {
	rules, err := NewRules(map[Kind]Rule{
		KindEntity:            EntityRule{Entities: entities},
		KindRequestQuery:      RuleFunc(queryRule),
		KindRequestBody:       RuleFunc(bodyRule),
		KindAuthenticatedUser: RuleFunc(userRule),
	})
	if err != nil {
		panic(err)
	}
	return rules
}

// EntityRule validates the entity slug against the entity store. Missing,
// disabled and inaccessible entities all produce the same NotFound error.
type EntityRule struct {
	Entities EntityLookup
}

// Validate implements Rule.
func (e EntityRule) Validate(req *Request, _ Validation) (any, error) {
	slug := param(req, "entity")
	if slug == "" {
		return nil, httpx.BadRequest("", map[string]string{"entity": "Required"})
	}
	status, err := e.Entities.Status(req.Context(), slug)
	if err != nil {
		return nil, err
	}
	switch status {
	case EntityEnabled:
		return slug, nil
	case EntityDisabled:
		if req.Caller.Can(rbac.PermConfigureApp, "") && req.Caller.Can(rbac.PermAccessEntity, slug) {
			return slug, nil
		}
	}
	return nil, httpx.NotFound("")
}

func queryRule(req *Request, v Validation) (any, error) {
	value := param(req, v.Field)
	if value == "" {
		return nil, httpx.BadRequest("", map[string]string{v.Field: "Required"})
	}
	return value, nil
}

func bodyRule(req *Request, _ Validation) (any, error) {
	body := map[string]any{}
	if req.HTTP.Body == nil {
		return body, nil
	}
	dec := json.NewDecoder(io.LimitReader(req.HTTP.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		return nil, httpx.BadRequest("Invalid JSON body", nil)
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func userRule(req *Request, _ Validation) (any, error) {
	if req.Caller.IsAnonymous() {
		return nil, httpx.Forbidden("")
	}
	return req.Caller.Profile(), nil
}

// param reads a chi route parameter, falling back to the query string.
func param(req *Request, name string) string {
	if value := strings.TrimSpace(chi.URLParam(req.HTTP, name)); value != "" {
		return value
	}
	return strings.TrimSpace(req.HTTP.URL.Query().Get(name))
}
