// Package tool provides the registry that resolves a step's tool name to a
// handler and runs it under a timeout.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sferrors "github.com/randalmurphal/stepflow/pkg/stepflow/errors"
)

// DefaultTimeout bounds a tool call when neither the step nor the registry
// sets a timeout.
const DefaultTimeout = 10 * time.Second

// Sentinel errors.
var (
	ErrUnknownTool    = errors.New("unknown tool")
	ErrToolNotAllowed = errors.New("tool not allowed")
	ErrEmptyToolName  = errors.New("tool name cannot be empty")
	ErrNilHandler     = errors.New("tool handler cannot be nil")
)

// Args is what a tool receives: the rendered prompt and copies of the run's
// memory and variables.
type Args struct {
	Prompt string

	// Memory is a snapshot taken when the step started. Changing it does not
	// change run memory; a tool's result reaches memory through the step's
	// memoryWrite keys.
	Memory    map[string]any
	Variables map[string]any
}

// Options are per-call settings.
type Options struct {
	// Timeout overrides the registry default when positive.
	Timeout time.Duration
}

// Handler runs a tool. The context is cancelled when the call times out.
type Handler func(ctx context.Context, args Args) (any, error)

// FallbackHandler is consulted for names with no registered handler.
// Returning an error wrapping ErrUnknownTool reports the name as unknown.
type FallbackHandler func(ctx context.Context, name string, args Args) (any, error)

// Registry maps tool names to handlers. Safe for concurrent use.
type Registry struct {
	mu             sync.RWMutex
	handlers       map[string]Handler
	fallback       FallbackHandler
	allowed        map[string]struct{}
	defaultTimeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithFallback sets the handler used for unregistered names.
func WithFallback(fn FallbackHandler) Option {
	return func(r *Registry) { r.fallback = fn }
}

// WithAllowed restricts the registry to the named tools. Registering or
// invoking any other name fails with ErrToolNotAllowed. An empty list
// allows everything.
func WithAllowed(names ...string) Option {
	return func(r *Registry) {
		if len(names) == 0 {
			r.allowed = nil
			return
		}
		r.allowed = make(map[string]struct{}, len(names))
		for _, n := range names {
			r.allowed[n] = struct{}{}
		}
	}
}

// WithDefaultTimeout sets the timeout for calls that don't set one.
// Zero or negative disables the default.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) { r.defaultTimeout = d }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers:       make(map[string]Handler),
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return ErrEmptyToolName
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, name)
	}
	if !r.isAllowed(name) {
		return fmt.Errorf("%w: %s", ErrToolNotAllowed, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Unregister removes a handler.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Has reports whether name has a registered handler.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) isAllowed(name string) bool {
	if r.allowed == nil {
		return true
	}
	_, ok := r.allowed[name]
	return ok
}

// InvokeTool runs the named tool. Unknown and disallowed names fail with a
// configuration error. A call that outlives its timeout fails with
// *errors.TimeoutError; a handler panic becomes *errors.PanicError.
func (r *Registry) InvokeTool(ctx context.Context, name string, args Args, opts Options) (any, error) {
	if !r.isAllowed(name) {
		return nil, sferrors.Configuration(fmt.Errorf("%w: %s", ErrToolNotAllowed, name), "tool "+name)
	}

	r.mu.RLock()
	h, ok := r.handlers[name]
	fallback := r.fallback
	r.mu.RUnlock()

	timeout := r.defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	if ok {
		return call(ctx, name, timeout, func(ctx context.Context) (any, error) {
			return h(ctx, args)
		})
	}

	if fallback == nil {
		return nil, sferrors.Configuration(fmt.Errorf("%w: %s", ErrUnknownTool, name), "tool "+name)
	}

	out, err := call(ctx, name, timeout, func(ctx context.Context) (any, error) {
		return fallback(ctx, name, args)
	})
	if err != nil {
		wrapped := fmt.Errorf("unknown tool or handler failed: %s (%w)", name, err)
		if errors.Is(err, ErrUnknownTool) {
			return nil, sferrors.Configuration(wrapped, "tool "+name)
		}
		return nil, wrapped
	}
	return out, nil
}

type result struct {
	value any
	err   error
}

// call runs fn in its own goroutine so a handler that ignores its context
// still cannot hold the caller past the timeout.
func call(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) (any, error)) (any, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- result{err: &sferrors.PanicError{Operation: "tool " + name, Value: v}}
			}
		}()
		v, err := fn(callCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &sferrors.TimeoutError{Operation: "tool " + name, Timeout: timeout}
		}
		return res.value, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &sferrors.TimeoutError{Operation: "tool " + name, Timeout: timeout}
	}
}
