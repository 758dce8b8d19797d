// Package errors classifies invocation failures and retries them.
//
// Step invocations fail for very different reasons: a model server that is
// briefly overloaded, a tool that timed out, or a flow that names a tool no
// one registered. Categorize tells them apart so that the executor can
// retry what may succeed later and stop immediately on configuration
// mistakes.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: rate limits, timeouts, temporary network issues.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry is unlikely to help, though step
	// retries are still attempted.
	// Examples: authentication failures, a tool rejecting its input.
	CategoryPermanent

	// CategoryConfiguration indicates the flow or executor is misconfigured.
	// These errors are never retried.
	// Examples: unknown tool, step with neither model nor tool.
	CategoryConfiguration
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	Err      error
	Category Category

	// Context describes what operation was being attempted.
	Context string
}

func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s", e.Context, e.Err)
	}
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Configuration creates a configuration error.
func Configuration(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryConfiguration, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 408, 429, 502, 503, 504:
			return CategoryTransient
		default:
			if httpErr.StatusCode >= 500 {
				return CategoryTransient
			}
			return CategoryPermanent
		}
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsRetryable reports whether a step invocation that failed with err may be
// attempted again. Only configuration errors are excluded.
func IsRetryable(err error) bool {
	return Categorize(err) != CategoryConfiguration
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return Categorize(err) == CategoryConfiguration
}
