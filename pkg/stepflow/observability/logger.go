// Package observability provides structured logging, metrics and tracing
// for flow runs.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when
// disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds step context to a logger.
func EnrichLogger(logger *slog.Logger, stepID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("step_id", stepID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a flow run.
func LogRunStart(logger *slog.Logger, flowID, runID, mode string, stepCount int) {
	if logger == nil {
		return
	}
	logger.Info("flow run starting",
		slog.String("flow_id", flowID),
		slog.String("run_id", runID),
		slog.String("mode", mode),
		slog.Int("steps", stepCount),
	)
}

// LogRunComplete logs successful flow run completion.
func LogRunComplete(logger *slog.Logger, flowID, runID string, duration time.Duration, executed, failed int) {
	if logger == nil {
		return
	}
	logger.Info("flow run completed",
		slog.String("flow_id", flowID),
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs(duration)),
		slog.Int("steps_recorded", executed),
		slog.Int("steps_failed", failed),
	)
}

// LogRunError logs a flow run aborted by a fatal error.
func LogRunError(logger *slog.Logger, flowID, runID string, err error, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Error("flow run failed",
		slog.String("flow_id", flowID),
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs(duration)),
	)
}

// LogStepStart logs step invocation start.
func LogStepStart(logger *slog.Logger, stepID, kind, target string) {
	if logger == nil {
		return
	}
	logger.Debug("step starting",
		slog.String("step_id", stepID),
		slog.String("kind", kind),
		slog.String("target", target),
	)
}

// LogStepComplete logs a step that produced a successful result.
func LogStepComplete(logger *slog.Logger, stepID string, attempts int, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("step completed",
		slog.String("step_id", stepID),
		slog.Int("attempts", attempts),
		slog.Float64("duration_ms", durationMs(duration)),
	)
}

// LogStepSkipped logs a step whose condition was false.
func LogStepSkipped(logger *slog.Logger, stepID, condition string) {
	if logger == nil {
		return
	}
	logger.Debug("step skipped",
		slog.String("step_id", stepID),
		slog.String("condition", condition),
	)
}

// LogStepError logs a step that produced a failed result. The run carries
// on, so this is a warning.
func LogStepError(logger *slog.Logger, stepID string, err error, attempts int, category string) {
	if logger == nil {
		return
	}
	logger.Warn("step failed",
		slog.String("step_id", stepID),
		slog.String("error", err.Error()),
		slog.Int("attempts", attempts),
		slog.String("category", category),
	)
}

// LogRetry logs a failed attempt that will be retried after wait.
func LogRetry(logger *slog.Logger, stepID string, attempt int, err error, wait time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("step attempt failed, retrying",
		slog.String("step_id", stepID),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
		slog.Float64("backoff_ms", durationMs(wait)),
	)
}

// LogLayer logs the start of a wavefront layer.
func LogLayer(logger *slog.Logger, index int, stepIDs []string) {
	if logger == nil {
		return
	}
	logger.Debug("layer starting",
		slog.Int("layer", index),
		slog.Int("width", len(stepIDs)),
		slog.Any("steps", stepIDs),
	)
}

// LogBranchTargetMissing logs an onSuccess/onFailure target that names no
// step. Execution falls through to the next step.
func LogBranchTargetMissing(logger *slog.Logger, stepID, branch, target string) {
	if logger == nil {
		return
	}
	logger.Warn("branch target not found",
		slog.String("step_id", stepID),
		slog.String("branch", branch),
		slog.String("target", target),
	)
}

// LogMemorySaveError logs a failure to persist memory after a run.
func LogMemorySaveError(logger *slog.Logger, flowID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("memory save failed",
		slog.String("flow_id", flowID),
		slog.String("error", err.Error()),
	)
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
