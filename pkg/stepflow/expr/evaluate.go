package expr

import (
	"errors"
	"sync"

	"github.com/randalmurphal/stepflow/pkg/stepflow/value"
)

// DefaultCacheSize is the number of compiled expressions an Evaluator keeps.
const DefaultCacheSize = 256

// BinaryOp is a custom word operator, used as "left name right".
type BinaryOp func(left, right value.Value) bool

// Program is a compiled condition. It is immutable and safe for concurrent
// use.
type Program struct {
	src  string
	root node
}

// Source returns the expression the program was compiled from.
func (p *Program) Source() string { return p.src }

// Eval runs the program against memory and variables and returns the raw
// result.
func (p *Program) Eval(memory, variables map[string]any) (value.Value, error) {
	v, err := p.root.eval(&env{memoryRaw: memory, variables: variables})
	if err != nil {
		return value.Value{}, p.annotate(err)
	}
	return v, nil
}

func (p *Program) annotate(err error) error {
	var evalErr *EvalError
	if errors.As(err, &evalErr) && evalErr.Expr == "" {
		evalErr.Expr = p.src
	}
	return err
}

// Evaluator compiles and evaluates condition expressions.
//
// Evaluator is safe for concurrent use.
type Evaluator struct {
	customOps map[string]BinaryOp
	cacheSize int

	mu    sync.RWMutex
	cache map[string]*Program
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a word operator that sits at the same
// precedence as the relational operators. Names of built-in keywords are
// ignored.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		switch name {
		case "and", "or", "not", "contains", "true", "false", "null", "nil", "undefined", "memory", "$":
			return
		}
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

// WithCacheSize bounds the compiled expression cache. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(e *Evaluator) {
		e.cacheSize = n
	}
}

// New creates a new Evaluator with the given options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		cacheSize: DefaultCacheSize,
		cache:     make(map[string]*Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile parses src, reusing a cached program when one exists.
func (e *Evaluator) Compile(src string) (*Program, error) {
	e.mu.RLock()
	p, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	root, err := parse(src, e.customOps)
	if err != nil {
		var evalErr *EvalError
		if errors.As(err, &evalErr) {
			evalErr.Expr = src
		}
		return nil, err
	}
	p = &Program{src: src, root: root}

	if e.cacheSize > 0 {
		e.mu.Lock()
		if len(e.cache) >= e.cacheSize {
			clear(e.cache)
		}
		e.cache[src] = p
		e.mu.Unlock()
	}
	return p, nil
}

// Evaluate compiles src and reports whether it is truthy against memory and
// variables. Every failure is an *EvalError wrapping ErrConditionEval.
func (e *Evaluator) Evaluate(src string, memory, variables map[string]any) (bool, error) {
	p, err := e.Compile(src)
	if err != nil {
		return false, err
	}
	v, err := p.Eval(memory, variables)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

var defaultEvaluator = New()

// Evaluate evaluates src with the shared default evaluator.
func Evaluate(src string, memory, variables map[string]any) (bool, error) {
	return defaultEvaluator.Evaluate(src, memory, variables)
}
