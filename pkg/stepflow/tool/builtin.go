package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/stepflow/pkg/stepflow/llm"
	"github.com/randalmurphal/stepflow/pkg/stepflow/memory"
)

// Built-in tool names.
const (
	ConsultModelTool    = "consult_ollama"
	ListModelsTool      = "list_ollama_models"
	CompareModelsTool   = "compare_ollama_models"
	RememberConsultTool = "remember_consult"
)

// DefaultConsultNamespace is the memory store record remember_consult
// writes to.
const DefaultConsultNamespace = "consults"

// compareDefaultCount is how many pulled models compare_ollama_models uses
// when none are named.
const compareDefaultCount = 2

// compareLastResort is compared when no models are named and the server
// cannot be listed.
const compareLastResort = "llama2"

// ModelBackend is what the built-in tools need from a model server.
// *llm.OllamaClient satisfies it.
type ModelBackend interface {
	InvokeModel(ctx context.Context, model, prompt, systemPrompt string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

type builtinConfig struct {
	resolver  *llm.Resolver
	store     memory.Store
	namespace string
	logger    *slog.Logger
}

type builtin struct {
	name string
	h    Handler
}

// BuiltinOption configures RegisterBuiltins.
type BuiltinOption func(*builtinConfig)

// WithResolver sets the resolver used to replace models that are not
// pulled. The default resolves through the backend's model list.
func WithResolver(r *llm.Resolver) BuiltinOption {
	return func(c *builtinConfig) { c.resolver = r }
}

// WithConsultStore enables remember_consult, which saves consults to store.
func WithConsultStore(store memory.Store) BuiltinOption {
	return func(c *builtinConfig) { c.store = store }
}

// WithConsultNamespace sets the store record remember_consult writes to.
func WithConsultNamespace(ns string) BuiltinOption {
	return func(c *builtinConfig) { c.namespace = ns }
}

// WithBuiltinLogger sets the logger that reports model fallbacks.
func WithBuiltinLogger(logger *slog.Logger) BuiltinOption {
	return func(c *builtinConfig) { c.logger = logger }
}

// RegisterBuiltins registers the model tools backed by backend and returns
// the names it registered. Names excluded by WithAllowed are skipped, and
// remember_consult is only registered when WithConsultStore is given.
//
// Tools read their inputs from the step prompt and run variables:
//
//	consult_ollama         "model" (defaultModel when unset), "system_prompt"
//	list_ollama_models     none; returns {"models": [...], "count": n}
//	compare_ollama_models  "models" (list or comma separated), "system_prompt"
//	remember_consult       "key", "model", "response"
//
// consult_ollama and compare_ollama_models replace models that are not
// pulled using the resolver.
func RegisterBuiltins(r *Registry, backend ModelBackend, defaultModel string, opts ...BuiltinOption) ([]string, error) {
	cfg := builtinConfig{namespace: DefaultConsultNamespace, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.resolver == nil {
		cfg.resolver = llm.NewResolver(backend)
	}

	builtins := []builtin{
		{ConsultModelTool, consultModel(backend, defaultModel, &cfg)},
		{ListModelsTool, listModels(backend)},
		{CompareModelsTool, compareModels(backend, &cfg)},
	}
	if cfg.store != nil {
		builtins = append(builtins, builtin{RememberConsultTool, rememberConsult(backend, &cfg)})
	}

	var names []string
	for _, b := range builtins {
		err := r.Register(b.name, b.h)
		if errors.Is(err, ErrToolNotAllowed) {
			continue
		}
		if err != nil {
			return names, err
		}
		names = append(names, b.name)
	}
	return names, nil
}

func (c *builtinConfig) resolve(ctx context.Context, model string) string {
	res := c.resolver.Resolve(ctx, model)
	if res.Model != model {
		c.logger.Info("model unavailable, falling back",
			slog.String("requested", model),
			slog.String("model", res.Model),
			slog.Bool("cloud", res.IsCloud),
		)
	}
	return res.Model
}

func consultModel(backend ModelBackend, defaultModel string, cfg *builtinConfig) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		if strings.TrimSpace(args.Prompt) == "" {
			return nil, errors.New("prompt is required and must be a non-empty string")
		}
		model := stringVar(args.Variables, "model")
		if model == "" {
			model = defaultModel
		}
		if model == "" {
			return nil, errors.New("no model given and no default model configured")
		}
		model = cfg.resolve(ctx, model)
		return backend.InvokeModel(ctx, model, args.Prompt, stringVar(args.Variables, "system_prompt"))
	}
}

func listModels(backend ModelBackend) Handler {
	return func(ctx context.Context, _ Args) (any, error) {
		names, err := backend.ListModels(ctx)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		models := make([]any, len(names))
		for i, n := range names {
			models[i] = n
		}
		return map[string]any{"models": models, "count": len(names)}, nil
	}
}

// compareModels sends one prompt to several models at once. A model that
// fails gets an "error" entry instead of failing the comparison.
func compareModels(backend ModelBackend, cfg *builtinConfig) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		if strings.TrimSpace(args.Prompt) == "" {
			return nil, errors.New("prompt is required and must be a non-empty string")
		}

		var models []string
		if requested := stringsVar(args.Variables, "models"); len(requested) > 0 {
			for _, m := range requested {
				models = append(models, cfg.resolve(ctx, m))
			}
		} else {
			pulled, err := backend.ListModels(ctx)
			switch {
			case err != nil:
				models = []string{compareLastResort}
			case len(pulled) > compareDefaultCount:
				models = pulled[:compareDefaultCount]
			default:
				models = pulled
			}
		}
		if len(models) == 0 {
			return nil, errors.New("no models available to compare")
		}

		system := stringVar(args.Variables, "system_prompt")
		results := make([]any, len(models))
		var g errgroup.Group
		for i, m := range models {
			g.Go(func() error {
				entry := map[string]any{"model": m}
				out, err := backend.InvokeModel(ctx, m, args.Prompt, system)
				if err != nil {
					entry["error"] = err.Error()
				} else {
					entry["response"] = out
				}
				results[i] = entry
				return nil
			})
		}
		_ = g.Wait()

		return map[string]any{"results": results, "count": len(results)}, nil
	}
}

// rememberConsult saves a prompt and its response under a new id in the
// consult namespace. Without a "response" variable the response is
// generated with the "model" variable first.
func rememberConsult(backend ModelBackend, cfg *builtinConfig) Handler {
	var mu sync.Mutex
	return func(ctx context.Context, args Args) (any, error) {
		if strings.TrimSpace(args.Prompt) == "" {
			return nil, errors.New("prompt is required and must be a non-empty string")
		}
		key := stringVar(args.Variables, "key")
		model := stringVar(args.Variables, "model")
		response := stringVar(args.Variables, "response")

		if response == "" {
			if model == "" {
				return nil, errors.New("no response given and no model to generate one")
			}
			out, err := backend.InvokeModel(ctx, model, args.Prompt, "")
			if err != nil {
				return nil, fmt.Errorf("generate response: %w", err)
			}
			response = out
		}

		id := uuid.NewString()
		entry := map[string]any{
			"key":        nilIfEmpty(key),
			"prompt":     args.Prompt,
			"model":      nilIfEmpty(model),
			"response":   response,
			"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		}

		mu.Lock()
		defer mu.Unlock()
		saved, err := cfg.store.Load(ctx, cfg.namespace)
		if err != nil {
			return nil, fmt.Errorf("load consults: %w", err)
		}
		if saved == nil {
			saved = make(map[string]any, 1)
		}
		saved[id] = entry
		if err := cfg.store.Save(ctx, cfg.namespace, saved); err != nil {
			return nil, fmt.Errorf("save consult: %w", err)
		}
		return map[string]any{"id": id, "namespace": cfg.namespace, "response": response}, nil
	}
}

func stringVar(vars map[string]any, key string) string {
	s, _ := vars[key].(string)
	return s
}

// stringsVar reads a list of names given as a list or a comma separated
// string.
func stringsVar(vars map[string]any, key string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := vars[key].(type) {
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				add(str)
			}
		}
	}
	return out
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
