package tool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stepflow/pkg/stepflow/llm"
	"github.com/randalmurphal/stepflow/pkg/stepflow/memory"
)

type fakeBackend struct {
	models  []string
	listErr error
	failing map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *fakeBackend) InvokeModel(_ context.Context, model, prompt, system string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model+"|"+prompt+"|"+system)
	f.mu.Unlock()
	if err := f.failing[model]; err != nil {
		return "", err
	}
	return "answer from " + model, nil
}

func (f *fakeBackend) ListModels(context.Context) ([]string, error) {
	return f.models, f.listErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fakeBackend) sortedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func TestRegisterBuiltins(t *testing.T) {
	backend := &fakeBackend{models: []string{"llama3", "mistral"}}
	r := NewRegistry()

	names, err := RegisterBuiltins(r, backend, "llama3", WithBuiltinLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []string{ConsultModelTool, ListModelsTool, CompareModelsTool}, names)
	assert.False(t, r.Has(RememberConsultTool), "remember needs a store")

	out, err := r.InvokeTool(context.Background(), ConsultModelTool, Args{Prompt: "why?"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer from llama3", out)

	out, err = r.InvokeTool(context.Background(), ConsultModelTool, Args{
		Prompt:    "why?",
		Variables: map[string]any{"model": "mistral", "system_prompt": "terse"},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer from mistral", out)
	assert.Equal(t, []string{"llama3|why?|", "mistral|why?|terse"}, backend.calls)

	out, err = r.InvokeTool(context.Background(), ListModelsTool, Args{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"models": []any{"llama3", "mistral"}, "count": 2}, out)
}

func TestRegisterBuiltins_Errors(t *testing.T) {
	backend := &fakeBackend{listErr: errors.New("connection refused")}
	r := NewRegistry()
	_, err := RegisterBuiltins(r, backend, "", WithBuiltinLogger(quietLogger()))
	require.NoError(t, err)

	_, err = r.InvokeTool(context.Background(), ConsultModelTool, Args{Prompt: "  "}, Options{})
	assert.ErrorContains(t, err, "prompt is required")

	_, err = r.InvokeTool(context.Background(), ConsultModelTool, Args{Prompt: "q"}, Options{})
	assert.ErrorContains(t, err, "no model given")

	_, err = r.InvokeTool(context.Background(), ListModelsTool, Args{}, Options{})
	assert.ErrorContains(t, err, "list models: connection refused")

	_, err = r.InvokeTool(context.Background(), CompareModelsTool, Args{}, Options{})
	assert.ErrorContains(t, err, "prompt is required")
}

func TestRegisterBuiltins_RespectsAllowed(t *testing.T) {
	r := NewRegistry(WithAllowed(ListModelsTool))
	names, err := RegisterBuiltins(r, &fakeBackend{}, "m", WithConsultStore(memory.NewMemoryStore()))
	require.NoError(t, err)
	assert.Equal(t, []string{ListModelsTool}, names)
	assert.False(t, r.Has(ConsultModelTool))
	assert.False(t, r.Has(RememberConsultTool))
}

func TestConsult_FallsBackWhenModelMissing(t *testing.T) {
	tests := []struct {
		name     string
		pulled   []string
		opts     []llm.ResolverOption
		model    string
		wantCall string
	}{
		{
			name:     "pulled model is used",
			pulled:   []string{"qwen2.5:7b"},
			model:    "qwen2.5:7b",
			wantCall: "qwen2.5:7b",
		},
		{
			name:     "cloud model first",
			pulled:   []string{"mistral:latest"},
			model:    "llama3:70b",
			wantCall: "deepseek-v3.1:671b-cloud",
		},
		{
			name:     "local alternative without cloud",
			pulled:   []string{"phi3", "mistral:latest"},
			opts:     []llm.ResolverOption{llm.WithCloudModels()},
			model:    "llama3:70b",
			wantCall: "mistral:latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{models: tt.pulled}
			r := NewRegistry()
			_, err := RegisterBuiltins(r, backend, "",
				WithResolver(llm.NewResolver(backend, tt.opts...)),
				WithBuiltinLogger(quietLogger()),
			)
			require.NoError(t, err)

			out, err := r.InvokeTool(context.Background(), ConsultModelTool, Args{
				Prompt:    "hi",
				Variables: map[string]any{"model": tt.model},
			}, Options{})
			require.NoError(t, err)
			assert.Equal(t, "answer from "+tt.wantCall, out)
			assert.Equal(t, []string{tt.wantCall + "|hi|"}, backend.calls)
		})
	}
}

func TestCompareModels(t *testing.T) {
	backend := &fakeBackend{
		models:  []string{"llama3", "mistral", "phi3"},
		failing: map[string]error{"mistral": errors.New("out of memory")},
	}
	r := NewRegistry()
	_, err := RegisterBuiltins(r, backend, "", WithBuiltinLogger(quietLogger()))
	require.NoError(t, err)

	out, err := r.InvokeTool(context.Background(), CompareModelsTool, Args{
		Prompt:    "pick one",
		Variables: map[string]any{"models": []any{"llama3", "mistral"}, "system_prompt": "short"},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"results": []any{
			map[string]any{"model": "llama3", "response": "answer from llama3"},
			map[string]any{"model": "mistral", "error": "out of memory"},
		},
		"count": 2,
	}, out)
	assert.Equal(t, []string{"llama3|pick one|short", "mistral|pick one|short"}, backend.sortedCalls())
}

func TestCompareModels_ModelSelection(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		models  any
		want    []string
	}{
		{
			name:    "comma separated names",
			backend: &fakeBackend{models: []string{"a", "b", "c"}},
			models:  "a, c",
			want:    []string{"a", "c"},
		},
		{
			name:    "first two pulled models by default",
			backend: &fakeBackend{models: []string{"a", "b", "c"}},
			want:    []string{"a", "b"},
		},
		{
			name:    "unavailable model is replaced",
			backend: &fakeBackend{models: []string{"a"}},
			models:  []string{"a", "gone"},
			want:    []string{"a", "deepseek-v3.1:671b-cloud"},
		},
		{
			name:    "unreachable server",
			backend: &fakeBackend{listErr: errors.New("refused")},
			want:    []string{"llama2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			_, err := RegisterBuiltins(r, tt.backend, "", WithBuiltinLogger(quietLogger()))
			require.NoError(t, err)

			vars := map[string]any{}
			if tt.models != nil {
				vars["models"] = tt.models
			}
			out, err := r.InvokeTool(context.Background(), CompareModelsTool, Args{Prompt: "p", Variables: vars}, Options{})
			require.NoError(t, err)

			var got []string
			for _, res := range out.(map[string]any)["results"].([]any) {
				got = append(got, res.(map[string]any)["model"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("nothing pulled", func(t *testing.T) {
		r := NewRegistry()
		_, err := RegisterBuiltins(r, &fakeBackend{}, "")
		require.NoError(t, err)
		_, err = r.InvokeTool(context.Background(), CompareModelsTool, Args{Prompt: "p"}, Options{})
		assert.ErrorContains(t, err, "no models available")
	})
}

func TestRememberConsult(t *testing.T) {
	store := memory.NewMemoryStore()
	backend := &fakeBackend{}
	r := NewRegistry()
	names, err := RegisterBuiltins(r, backend, "", WithConsultStore(store), WithConsultNamespace("notes"))
	require.NoError(t, err)
	assert.Contains(t, names, RememberConsultTool)

	out, err := r.InvokeTool(context.Background(), RememberConsultTool, Args{
		Prompt:    "capital of France?",
		Variables: map[string]any{"key": "geo", "response": "Paris"},
	}, Options{})
	require.NoError(t, err)
	first := out.(map[string]any)
	assert.Equal(t, "notes", first["namespace"])
	assert.Equal(t, "Paris", first["response"])
	assert.Empty(t, backend.calls, "a given response is stored as is")

	out, err = r.InvokeTool(context.Background(), RememberConsultTool, Args{
		Prompt:    "capital of Spain?",
		Variables: map[string]any{"model": "llama3"},
	}, Options{})
	require.NoError(t, err)
	second := out.(map[string]any)
	assert.Equal(t, "answer from llama3", second["response"])

	saved, err := store.Load(context.Background(), "notes")
	require.NoError(t, err)
	require.Len(t, saved, 2)

	geo := saved[first["id"].(string)].(map[string]any)
	assert.Equal(t, "geo", geo["key"])
	assert.Equal(t, "capital of France?", geo["prompt"])
	assert.Nil(t, geo["model"])
	assert.Equal(t, "Paris", geo["response"])
	assert.NotEmpty(t, geo["created_at"])

	generated := saved[second["id"].(string)].(map[string]any)
	assert.Nil(t, generated["key"])
	assert.Equal(t, "llama3", generated["model"])
}

func TestRememberConsult_Errors(t *testing.T) {
	backend := &fakeBackend{failing: map[string]error{"broken": errors.New("model crashed")}}
	r := NewRegistry()
	_, err := RegisterBuiltins(r, backend, "", WithConsultStore(memory.NewMemoryStore()))
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    Args
		wantErr string
	}{
		{"no prompt", Args{Variables: map[string]any{"response": "x"}}, "prompt is required"},
		{"nothing to store", Args{Prompt: "q"}, "no response given and no model"},
		{"generation fails", Args{Prompt: "q", Variables: map[string]any{"model": "broken"}}, "generate response: model crashed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.InvokeTool(context.Background(), RememberConsultTool, tt.args, Options{})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
