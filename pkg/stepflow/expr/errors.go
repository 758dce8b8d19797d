package expr

import (
	"errors"
	"fmt"
)

// ErrConditionEval is wrapped by every error produced while compiling or
// evaluating a condition.
var ErrConditionEval = errors.New("condition evaluation failed")

// Error kinds carried by EvalError.
const (
	KindSyntax    = "SyntaxError"
	KindReference = "ReferenceError"
	KindType      = "TypeError"
)

// EvalError describes a condition that could not be compiled or evaluated.
type EvalError struct {
	Expr string
	Pos  int
	Kind string
	Msg  string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("condition evaluation failed: %s: %s", e.Kind, e.Msg)
}

func (e *EvalError) Unwrap() error {
	return ErrConditionEval
}

func syntaxError(pos int, format string, args ...any) *EvalError {
	return &EvalError{Pos: pos, Kind: KindSyntax, Msg: fmt.Sprintf(format, args...)}
}

func referenceError(pos int, name string) *EvalError {
	return &EvalError{Pos: pos, Kind: KindReference, Msg: name + " is not defined"}
}

func typeError(pos int, format string, args ...any) *EvalError {
	return &EvalError{Pos: pos, Kind: KindType, Msg: fmt.Sprintf(format, args...)}
}
