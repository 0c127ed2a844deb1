// Package request turns an HTTP request into an identified, authorized and
// lazily validated call to a method handler, and writes its outcome.
package request

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/hadmean/hadmean/internal/identity"
	"github.com/hadmean/hadmean/internal/platform/httpx"
)

// Resolver produces the caller of a request.
type Resolver interface {
	Resolve(r *http.Request) (identity.Caller, error)
}

// FailureRecorder counts failed requests by pipeline stage.
type FailureRecorder interface {
	RecordPipelineFailure(stage string, status int)
}

// Pipeline stages reported to FailureRecorder.
const (
	StageMethod    = "method"
	StageIdentity  = "identity"
	StageAuthorize = "authorize"
	StageHandle    = "handle"
)

// Method is the handler for one HTTP method and the validations it may ask for.
type Method struct {
	Validations []Validation
	Handle      func(ctx context.Context, req *Request) (any, error)
}

// Methods maps HTTP methods to handlers.
type Methods map[string]Method

// Config groups Pipeline dependencies.
type Config struct {
	Resolver Resolver
	Rules    *Rules
	Checker  *Checker
	Logger   *slog.Logger
	Failures FailureRecorder
}

// Pipeline builds http.Handlers from method tables. It holds no per-request state.
type Pipeline struct {
	resolver Resolver
	rules    *Rules
	checker  *Checker
	logger   *slog.Logger
	failures FailureRecorder
	now      func() time.Time
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checker := cfg.Checker
	if checker == nil {
		checker = NewChecker("")
	}
	return &Pipeline{
		resolver: cfg.Resolver,
		rules:    cfg.Rules,
		checker:  checker,
		logger:   logger,
		failures: cfg.Failures,
		now:      time.Now,
	}
}

// Handler returns the handler serving methods behind checks. Declared
// validations are checked here so a bad route table fails at startup.
func (p *Pipeline) Handler(methods Methods, checks ...Check) http.Handler {
	allowed := make([]string, 0, len(methods))
	for method, m := range methods {
		if m.Handle == nil {
			panic(fmt.Sprintf("request: %s has no handler", method))
		}
		if err := p.rules.check(m.Validations); err != nil {
			panic(err)
		}
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	h := &routeHandler{
		pipeline: p,
		methods:  methods,
		checks:   append([]Check(nil), checks...),
		allow:    strings.Join(allowed, ", "),
	}
	return h
}

type routeHandler struct {
	pipeline *Pipeline
	methods  Methods
	checks   []Check
	allow    string
}

func (h *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := h.pipeline
	method, ok := h.methods[r.Method]
	if !ok {
		w.Header().Set("Allow", h.allow)
		p.fail(w, r, StageMethod, httpx.MethodNotAllowed(r.Method))
		return
	}

	caller, err := p.resolver.Resolve(r)
	if err != nil {
		p.fail(w, r, StageIdentity, err)
		return
	}

	ctx := r.Context()
	if err := p.checker.Run(ctx, h.checks, caller, r); err != nil {
		p.fail(w, r, StageAuthorize, err)
		return
	}

	req := newRequest(r, caller, p.rules, method.Validations)
	data, err := invoke(ctx, method, req)
	if err != nil {
		p.fail(w, r, StageHandle, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

// invoke runs the handler, converting panics into errors.
func invoke(ctx context.Context, method Method, req *Request) (data any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if undeclared, ok := rec.(*UndeclaredError); ok {
				err = undeclared
				return
			}
			err = &panicError{value: rec, stack: debug.Stack()}
		}
	}()
	return method.Handle(ctx, req)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("request: handler panic: %v", e.value)
}

func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, stage string, err error) {
	env := httpx.NewEnvelope(r, err, p.now())
	if env.StatusCode >= http.StatusInternalServerError {
		attrs := []any{
			slog.String("stage", stage),
			slog.String("method", r.Method),
			slog.String("path", env.Path),
			slog.Any("error", err),
		}
		if pe, ok := err.(*panicError); ok {
			attrs = append(attrs, slog.String("stack", string(pe.stack)))
		}
		p.logger.Error("request failed", attrs...)
	} else {
		p.logger.Debug("request rejected",
			slog.String("stage", stage),
			slog.String("path", env.Path),
			slog.Int("status", env.StatusCode),
			slog.String("error", err.Error()),
		)
	}
	if p.failures != nil {
		p.failures.RecordPipelineFailure(stage, env.StatusCode)
	}
	httpx.JSON(w, env.StatusCode, env)
}
