package stepflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	sferrors "github.com/randalmurphal/stepflow/pkg/stepflow/errors"
	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
	"github.com/randalmurphal/stepflow/pkg/stepflow/tool"
)

// ModelInvoker calls a language model. *llm.OllamaClient and llm.ModelFunc
// implement it.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, model, prompt, systemPrompt string) (string, error)
}

// ToolInvoker calls a named tool. *tool.Registry implements it.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, name string, args tool.Args, opts tool.Options) (any, error)
}

// InvokeWithRetry runs the step's model or tool call with the given
// rendered prompt, retrying failures up to step.Retries times. The wait
// starts at step.Backoff() and doubles up to one minute.
//
// Invocation failures are reported in the result, not as an error. The
// error is non-nil only for configuration problems (no model or tool, an
// unknown tool, a missing collaborator); those are never retried and abort
// the run.
//
// Memory writes are left to the caller.
func (e *Executor) InvokeWithRetry(ctx context.Context, step Step, prompt string, ec *ExecutionContext) (StepResult, error) {
	res, _, err := e.invoke(ctx, step, prompt, ec)
	return res, err
}

// invoke is InvokeWithRetry that also returns the last invocation error.
func (e *Executor) invoke(ctx context.Context, step Step, prompt string, ec *ExecutionContext) (StepResult, error, error) {
	start := time.Now()
	logger := e.runLogger(ec)

	call, err := e.callFor(step, prompt, ec)
	if err != nil {
		res := StepResult{StepID: step.ID, Error: err.Error(), Duration: time.Since(start)}
		return res, err, &StepError{StepID: step.ID, Err: err}
	}

	cfg := sferrors.StepRetry(step.Retries, step.Backoff())
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		observability.LogRetry(logger, step.ID, attempt, err, wait)
		e.metrics.RecordRetry(ctx, ec.FlowID, step.ID)
		e.spans.AddSpanEvent(ctx, "retry",
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error()),
			attribute.Int64("wait_ms", wait.Milliseconds()),
		)
	}

	out := sferrors.WithRetryContext(ctx, cfg, call)
	res := StepResult{StepID: step.ID, Attempts: out.Attempts, Duration: time.Since(start)}
	if out.Err != nil {
		res.Error = out.Err.Error()
		if sferrors.IsConfiguration(out.Err) {
			return res, out.Err, &StepError{StepID: step.ID, Err: out.Err}
		}
		return res, out.Err, nil
	}

	res.Success = true
	res.Output = out.Value
	return res, nil, nil
}

// callFor selects the collaborator call for a step. Model takes precedence
// when both are set.
func (e *Executor) callFor(step Step, prompt string, ec *ExecutionContext) (func(context.Context) (any, error), error) {
	switch {
	case step.Model != "":
		if e.models == nil {
			return nil, fmt.Errorf("%w: no model invoker configured for model %s", ErrStepConfig, step.Model)
		}
		return func(ctx context.Context) (any, error) {
			out, err := e.models.InvokeModel(ctx, step.Model, prompt, step.SystemPrompt)
			if err != nil {
				return nil, err
			}
			return out, nil
		}, nil

	case step.Tool != "":
		if e.tools == nil {
			return nil, fmt.Errorf("%w: no tool invoker configured for tool %s", ErrStepConfig, step.Tool)
		}
		timeout := step.Timeout()
		if timeout == 0 {
			timeout = e.toolTimeout
		}
		return func(ctx context.Context) (any, error) {
			args := tool.Args{
				Prompt:    prompt,
				Memory:    ec.Memory(),
				Variables: ec.Variables(),
			}
			return e.tools.InvokeTool(ctx, step.Tool, args, tool.Options{Timeout: timeout})
		}, nil

	default:
		return nil, ErrStepConfig
	}
}
