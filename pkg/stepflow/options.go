package stepflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/stepflow/pkg/stepflow/expr"
	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
)

// DefaultMaxConcurrency bounds how many steps of one layer run at once.
const DefaultMaxConcurrency = 4

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records run and step metrics.
//
// Example:
//
//	exec := stepflow.NewExecutor(store, models, tools,
//	    stepflow.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracing creates a span per run and per step.
func WithTracing(s observability.SpanManager) Option {
	return func(e *Executor) {
		if s != nil {
			e.spans = s
		}
	}
}

// WithMaxConcurrency sets the per-layer concurrency limit in DAG mode.
// Default: 4. Values below 1 are ignored.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithToolTimeout sets the timeout passed to tool calls for steps that
// don't set TimeoutMs. Zero defers to the tool registry.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Executor) { e.toolTimeout = d }
}

// WithEvaluator replaces the condition evaluator, e.g. to add custom
// operators.
func WithEvaluator(ev *expr.Evaluator) Option {
	return func(e *Executor) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// runConfig holds per-run settings.
type runConfig struct {
	runID       string
	concurrency int
}

// RunOption configures a single Run.
type RunOption func(*runConfig)

// WithRunID sets the run identifier. Default: a random UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithConcurrency overrides the executor's concurrency limit for one run.
func WithConcurrency(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}
