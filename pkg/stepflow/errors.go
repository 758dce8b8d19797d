package stepflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for flow validation. All are fatal to a run.
var (
	// ErrFlowIDRequired indicates the flow has no id to key its memory by.
	ErrFlowIDRequired = errors.New("flow id required")

	// ErrDuplicateStep indicates two steps share an id.
	ErrDuplicateStep = errors.New("duplicate step id")

	// ErrDependencyNotFound indicates a dependsOn entry names no step.
	ErrDependencyNotFound = errors.New("dependency not found")

	// ErrCycleDetected indicates the dependency graph is not acyclic.
	ErrCycleDetected = errors.New("cycle detected in step dependencies")
)

// Sentinel errors for execution.
var (
	// ErrStepConfig indicates a step sets neither a model nor a tool, or
	// names a collaborator that is not configured.
	ErrStepConfig = errors.New("step missing model or tool")

	// ErrNoReadySteps indicates scheduling stalled with steps left over.
	ErrNoReadySteps = errors.New("no ready steps but unprocessed steps remain")

	// ErrMaxIterations indicates the sequential executor hit its iteration cap.
	ErrMaxIterations = errors.New("exceeded maximum iterations (possible infinite loop)")
)

// DependencyError names the step and the missing dependency.
type DependencyError struct {
	StepID    string
	DependsOn string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s depends on %s: %v", e.StepID, e.DependsOn, ErrDependencyNotFound)
}

// Unwrap returns ErrDependencyNotFound for errors.Is support.
func (e *DependencyError) Unwrap() error {
	return ErrDependencyNotFound
}

// CycleError lists the steps that could not be ordered.
type CycleError struct {
	Unresolved []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Unresolved, ", "))
}

// Unwrap returns ErrCycleDetected for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// StepError is a fatal error raised while executing a step.
type StepError struct {
	StepID string
	Err    error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StepError) Unwrap() error {
	return e.Err
}

// MaxIterationsError reports where the iteration cap was hit.
type MaxIterationsError struct {
	// Max is the iteration limit.
	Max int
	// StepID is the step that would have run next.
	StepID string
}

// Error implements the error interface.
func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at step %s: possible infinite loop", e.Max, e.StepID)
}

// Unwrap returns ErrMaxIterations for errors.Is support.
func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}

// StoreError wraps a memory store failure.
type StoreError struct {
	FlowID string
	// Op is "load" or "save".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("memory %s for flow %s: %v", e.Op, e.FlowID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}
