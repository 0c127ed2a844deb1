package request

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hadmean/hadmean/internal/identity"
)

// Kind names a validation rule.
type Kind string

// Validation kinds.
const (
	KindEntity            Kind = "entity"
	KindRequestQuery      Kind = "requestQuery"
	KindRequestBody       Kind = "requestBody"
	KindAuthenticatedUser Kind = "authenticatedUser"
)

var knownKinds = []Kind{KindEntity, KindRequestQuery, KindRequestBody, KindAuthenticatedUser}

// Validation identifies one validation a method may run. Field is only used
// by KindRequestQuery.
type Validation struct {
	Kind  Kind
	Field string
}

// Entity validates the entity slug of the request.
func Entity() Validation { return Validation{Kind: KindEntity} }

// RequestQuery reads field from the route parameters or the query string.
func RequestQuery(field string) Validation {
	return Validation{Kind: KindRequestQuery, Field: field}
}

// RequestBody decodes the JSON body.
func RequestBody() Validation { return Validation{Kind: KindRequestBody} }

// AuthenticatedUser exposes the caller profile, rejecting anonymous callers.
func AuthenticatedUser() Validation { return Validation{Kind: KindAuthenticatedUser} }

func (v Validation) key() string {
	if v.Field == "" {
		return string(v.Kind)
	}
	return string(v.Kind) + ":" + v.Field
}

func (v Validation) String() string {
	return v.key()
}

// Rule runs one validation kind against a request.
type Rule interface {
	Validate(req *Request, v Validation) (any, error)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(req *Request, v Validation) (any, error)

// Validate implements Rule.
func (f RuleFunc) Validate(req *Request, v Validation) (any, error) {
	return f(req, v)
}

// Rules maps every validation kind to its implementation. It is built once at
// startup and only read afterwards.
type Rules struct {
	rules map[Kind]Rule
}

// NewRules checks that every kind has exactly one rule and no unknown kind is
// present.
func NewRules(rules map[Kind]Rule) (*Rules, error) {
	out := make(map[Kind]Rule, len(knownKinds))
	for _, kind := range knownKinds {
		rule, ok := rules[kind]
		if !ok || rule == nil {
			return nil, fmt.Errorf("request: no rule for validation %q", kind)
		}
		out[kind] = rule
	}
	for kind := range rules {
		if _, ok := out[kind]; !ok {
			return nil, fmt.Errorf("request: unknown validation kind %q", kind)
		}
	}
	return &Rules{rules: out}, nil
}

func (r *Rules) rule(kind Kind) (Rule, bool) {
	rule, ok := r.rules[kind]
	return rule, ok
}

func (r *Rules) check(declared []Validation) error {
	for _, v := range declared {
		if _, ok := r.rule(v.Kind); !ok {
			return fmt.Errorf("request: unknown validation kind %q", v.Kind)
		}
		if v.Kind == KindRequestQuery && strings.TrimSpace(v.Field) == "" {
			return fmt.Errorf("request: %s needs a field", KindRequestQuery)
		}
	}
	return nil
}

// Validated holds the values produced by the validations a handler asked for.
// Reading a value that was not asked for is a programming error and panics;
// the pipeline turns the panic into a 500.
type Validated struct {
	values map[string]any
}

// UndeclaredError is raised for validations the method did not declare or the
// handler did not request.
type UndeclaredError struct {
	Validation Validation
	Declared   []string
}

func (e *UndeclaredError) Error() string {
	declared := append([]string(nil), e.Declared...)
	sort.Strings(declared)
	return fmt.Sprintf("request: validation %q was not declared (declared: %s)", e.Validation, strings.Join(declared, ", "))
}

func (v *Validated) get(want Validation) any {
	value, ok := v.values[want.key()]
	if !ok {
		declared := make([]string, 0, len(v.values))
		for k := range v.values {
			declared = append(declared, k)
		}
		panic(&UndeclaredError{Validation: want, Declared: declared})
	}
	return value
}

// Entity returns the validated entity slug.
func (v *Validated) Entity() string {
	return v.get(Entity()).(string)
}

// Query returns the validated value of field.
func (v *Validated) Query(field string) string {
	return v.get(RequestQuery(field)).(string)
}

// Body returns the decoded JSON body.
func (v *Validated) Body() map[string]any {
	return v.get(RequestBody()).(map[string]any)
}

// User returns the authenticated caller profile.
func (v *Validated) User() identity.Profile {
	return v.get(AuthenticatedUser()).(identity.Profile)
}
