package request

import (
	"context"
	"net/http"
	"sync"

	"github.com/hadmean/hadmean/internal/identity"
)

// Request is what a method handler receives: the raw request, the resolved
// caller and a lazy accessor for the validations the method declared.
type Request struct {
	HTTP   *http.Request
	Caller identity.Caller

	rules    *Rules
	declared map[string]Validation

	mu   sync.Mutex
	memo map[string]any
}

func newRequest(r *http.Request, caller identity.Caller, rules *Rules, declared []Validation) *Request {
	req := &Request{
		HTTP:     r,
		Caller:   caller,
		rules:    rules,
		declared: make(map[string]Validation, len(declared)),
		memo:     make(map[string]any, len(declared)),
	}
	for _, v := range declared {
		req.declared[v.key()] = v
	}
	return req
}

// Context returns the request context.
func (r *Request) Context() context.Context {
	return r.HTTP.Context()
}

// Validate runs the requested validations in order. Values already computed
// for this request are reused. The first failure is returned as is.
func (r *Request) Validate(validations ...Validation) (*Validated, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := &Validated{values: make(map[string]any, len(validations))}
	for _, v := range validations {
		key := v.key()
		if _, ok := r.declared[key]; !ok {
			return nil, &UndeclaredError{Validation: v, Declared: r.declaredKeys()}
		}
		if value, ok := r.memo[key]; ok {
			out.values[key] = value
			continue
		}
		rule, _ := r.rules.rule(v.Kind)
		value, err := rule.Validate(r, v)
		if err != nil {
			return nil, err
		}
		r.memo[key] = value
		out.values[key] = value
	}
	return out, nil
}

func (r *Request) declaredKeys() []string {
	keys := make([]string, 0, len(r.declared))
	for k := range r.declared {
		keys = append(keys, k)
	}
	return keys
}
