// Package memory persists the key-value memory each flow carries between
// runs.
package memory

import (
	"context"
	"errors"
)

// Store persists flow memory keyed by flow id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the stored memory for a flow.
	// Returns an empty map (not an error) when nothing is stored.
	Load(ctx context.Context, flowID string) (map[string]any, error)

	// Save replaces the stored memory for a flow. The store keeps its own
	// copy; later changes to data are not observed. Last writer wins.
	Save(ctx context.Context, flowID string, data map[string]any) error

	// Delete removes the stored memory for a flow.
	// Returns nil if nothing is stored.
	Delete(ctx context.Context, flowID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for memory store operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("memory store closed")

	// ErrVersionMismatch indicates a stored snapshot uses an unknown format.
	ErrVersionMismatch = errors.New("memory snapshot version mismatch")

	// ErrUnsupportedScheme indicates Open was given a URL it cannot serve.
	ErrUnsupportedScheme = errors.New("unsupported memory store scheme")
)

// Clone deep-copies maps and slices of a memory map so that the copy shares
// no mutable containers with the original. Other values are copied as-is.
func Clone(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []byte:
		out := make([]byte, len(x))
		copy(out, x)
		return out
	}
	return v
}
