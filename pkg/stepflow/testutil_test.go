package stepflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/randalmurphal/stepflow/pkg/stepflow/llm"
	"github.com/randalmurphal/stepflow/pkg/stepflow/memory"
	"github.com/randalmurphal/stepflow/pkg/stepflow/tool"
)

// errModelDown is a retryable model failure.
var errModelDown = errors.New("model down")

// fakeModel answers with a fixed reply per model and records every call.
type fakeModel struct {
	mu      sync.Mutex
	replies map[string]string
	// failures is how many times each model fails before answering.
	failures map[string]int
	calls    []modelCall
}

type modelCall struct {
	Model, Prompt, System string
}

func newFakeModel(replies map[string]string) *fakeModel {
	return &fakeModel{replies: replies, failures: map[string]int{}}
}

func (f *fakeModel) InvokeModel(_ context.Context, model, prompt, system string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCall{model, prompt, system})
	if f.failures[model] != 0 {
		if f.failures[model] > 0 {
			f.failures[model]--
		}
		return "", errModelDown
	}
	return f.replies[model], nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeModel) prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Prompt
	}
	return out
}

// quietLogger discards output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestExecutor wires a fake model, a tool registry and an in-process
// store with logging silenced.
func newTestExecutor(models ModelInvoker, tools *tool.Registry, opts ...Option) (*Executor, *memory.MemoryStore) {
	store := memory.NewMemoryStore()
	if tools == nil {
		tools = tool.NewRegistry()
	}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewExecutor(store, models, tools, opts...), store
}

// echoModel returns its prompt.
var echoModel = llm.ModelFunc(func(_ context.Context, _, prompt, _ string) (string, error) {
	return prompt, nil
})
