package stepflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	sferrors "github.com/randalmurphal/stepflow/pkg/stepflow/errors"
	"github.com/randalmurphal/stepflow/pkg/stepflow/expr"
	"github.com/randalmurphal/stepflow/pkg/stepflow/memory"
	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
	"github.com/randalmurphal/stepflow/pkg/stepflow/template"
)

// Executor runs flows. It is safe for concurrent use; each Run owns its
// own ExecutionContext.
type Executor struct {
	store     memory.Store
	models    ModelInvoker
	tools     ToolInvoker
	evaluator *expr.Evaluator

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	maxConcurrency int
	toolTimeout    time.Duration
}

// NewExecutor creates an executor. A nil store uses an in-process
// memory.MemoryStore. models or tools may be nil when no step needs them;
// a step that does fails with ErrStepConfig.
func NewExecutor(store memory.Store, models ModelInvoker, tools ToolInvoker, opts ...Option) *Executor {
	if store == nil {
		store = memory.NewMemoryStore()
	}
	e := &Executor{
		store:          store,
		models:         models,
		tools:          tools,
		evaluator:      expr.New(),
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes flow against the memory stored under flow.ID and the given
// variables.
//
// Flows in which any step declares DependsOn run in DAG mode; all others
// run sequentially. Memory is saved only when the run completes without a
// fatal error. On a fatal error the partial ExecutionContext is returned
// with the error (nil if the flow failed validation).
//
// Example:
//
//	exec := stepflow.NewExecutor(store, llm.NewOllamaClient(), tools)
//	ec, err := exec.Run(ctx, flow, map[string]any{"topic": "go"})
//	if err != nil {
//	    // validation, cycle, configuration or iteration-cap failure
//	}
//	fmt.Println(ec.Memory()["summary"])
func (e *Executor) Run(ctx context.Context, flow Flow, variables map[string]any, opts ...RunOption) (ec *ExecutionContext, runErr error) {
	cfg := runConfig{concurrency: e.maxConcurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	if flow.ID == "" {
		return nil, ErrFlowIDRequired
	}
	steps, err := normalizeSteps(flow.Steps)
	if err != nil {
		return nil, err
	}

	mode := ModeSequential
	var graph *Graph
	if hasDependencies(steps) {
		mode = ModeDAG
		if graph, err = BuildGraph(steps); err != nil {
			return nil, err
		}
	}

	mem, err := e.store.Load(ctx, flow.ID)
	if err != nil {
		return nil, &StoreError{FlowID: flow.ID, Op: "load", Err: err}
	}
	ec = newExecutionContext(flow.ID, cfg.runID, mode, mem, variables)

	start := time.Now()
	logger := e.runLogger(ec)
	observability.LogRunStart(logger, flow.ID, cfg.runID, string(mode), len(steps))

	ctx, span := e.spans.StartRunSpan(ctx, flow.ID, cfg.runID, string(mode))
	defer func() {
		e.spans.EndSpanWithError(span, runErr)
		duration := time.Since(start)
		e.metrics.RecordFlowRun(ctx, flow.ID, string(mode), runErr == nil, duration)
		if runErr != nil {
			observability.LogRunError(logger, flow.ID, cfg.runID, runErr, duration)
			return
		}
		observability.LogRunComplete(logger, flow.ID, cfg.runID, duration, len(ec.StepResults()), len(ec.Failed()))
	}()

	r := &run{Executor: e, ec: ec, logger: logger, concurrency: cfg.concurrency}
	if mode == ModeDAG {
		runErr = r.runDAG(ctx, graph)
	} else {
		runErr = r.runSequential(ctx, steps)
	}
	if runErr != nil {
		return ec, runErr
	}

	if err := e.store.Save(ctx, flow.ID, ec.Memory()); err != nil {
		observability.LogMemorySaveError(logger, flow.ID, err)
		return ec, &StoreError{FlowID: flow.ID, Op: "save", Err: err}
	}
	return ec, nil
}

// Validate reports every structural problem in flow without running it:
// missing flow id, duplicate ids, steps without a model or tool, unknown
// dependencies, cycles and jump targets that name no step. Problems are
// combined with errors.Join.
func Validate(flow Flow) error {
	var errs []error
	if flow.ID == "" {
		errs = append(errs, ErrFlowIDRequired)
	}

	steps, err := normalizeSteps(flow.Steps)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}

	ids := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		ids[s.ID] = struct{}{}
	}
	for _, s := range steps {
		if s.Model == "" && s.Tool == "" {
			errs = append(errs, &StepError{StepID: s.ID, Err: ErrStepConfig})
		}
		for _, target := range append(append([]string{}, s.OnSuccess...), s.OnFailure...) {
			if _, ok := ids[target]; !ok {
				errs = append(errs, &StepError{StepID: s.ID, Err: fmt.Errorf("%w: jump target %s", ErrDependencyNotFound, target)})
			}
		}
	}

	if hasDependencies(steps) {
		if _, err := BuildGraph(steps); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) runLogger(ec *ExecutionContext) *slog.Logger {
	return e.logger.With(slog.String("flow_id", ec.FlowID), slog.String("run_id", ec.RunID))
}

// run is the state shared by the steps of one Run.
type run struct {
	*Executor
	ec          *ExecutionContext
	logger      *slog.Logger
	concurrency int
}

// stepOutcome says whether a step's call was made.
type stepOutcome int

const (
	outcomeRan stepOutcome = iota
	outcomeSkipped
	outcomeConditionFailed
)

// executeStep evaluates the step's condition, renders its prompt, invokes
// it and applies its memory writes. Results of invoked steps and condition
// failures are recorded; a skipped step's result is returned for the caller
// to record or drop.
func (r *run) executeStep(ctx context.Context, step Step) (StepResult, stepOutcome, error) {
	ctx, span := r.spans.StartStepSpan(ctx, step.ID, step.Kind())
	logger := r.logger.With(slog.String("step_id", step.ID))

	mem := r.ec.Memory()
	vars := r.ec.variables

	if step.Condition != "" {
		ok, err := r.evaluator.Evaluate(step.Condition, mem, vars)
		if err != nil {
			res := StepResult{StepID: step.ID, Error: err.Error()}
			r.ec.record(res)
			observability.LogStepError(logger, step.ID, err, 0, "condition")
			r.metrics.RecordStepExecution(ctx, r.ec.FlowID, step.ID, step.Kind(), 0, 0, false, "condition")
			r.spans.EndSpanWithError(span, err)
			return res, outcomeConditionFailed, nil
		}
		if !ok {
			observability.LogStepSkipped(logger, step.ID, step.Condition)
			r.metrics.RecordStepSkipped(ctx, r.ec.FlowID, step.ID)
			r.spans.AddSpanEvent(ctx, "skipped", attribute.String("condition", step.Condition))
			r.spans.EndSpanWithError(span, nil)
			return StepResult{StepID: step.ID, Success: true, Skipped: true}, outcomeSkipped, nil
		}
	}

	prompt := template.Render(step.Prompt, mem, vars)
	observability.LogStepStart(logger, step.ID, step.Kind(), step.Target())

	res, stepErr, fatal := r.invoke(ctx, step, prompt, r.ec)
	if fatal == nil {
		r.ec.writeMemory(step.MemoryWrite, res.Output)
	}
	r.ec.record(res)

	category := ""
	if stepErr != nil {
		category = stepCategory(stepErr)
		observability.LogStepError(logger, step.ID, stepErr, res.Attempts, category)
	} else {
		observability.LogStepComplete(logger, step.ID, res.Attempts, res.Duration)
	}
	r.metrics.RecordStepExecution(ctx, r.ec.FlowID, step.ID, step.Kind(), res.Duration, res.Attempts, res.Success, category)
	r.spans.EndSpanWithError(span, stepErr)

	return res, outcomeRan, fatal
}

func stepCategory(err error) string {
	if errors.Is(err, ErrStepConfig) {
		return sferrors.CategoryConfiguration.String()
	}
	return sferrors.Categorize(err).String()
}
