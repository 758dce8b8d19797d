package llm

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultCloudModels are used, first entry first, when a requested model is
// not pulled locally.
var DefaultCloudModels = []string{
	"deepseek-v3.1:671b-cloud",
	"kimi-k2-thinking:cloud",
	"claude-3-5-sonnet:cloud",
}

// DefaultLocalFallbacks are local models tried in order when no cloud
// model is configured.
var DefaultLocalFallbacks = []string{"mistral", "llama2", "neural-chat"}

// DefaultModelCacheTTL is how long a model listing is reused.
const DefaultModelCacheTTL = 30 * time.Second

// ModelLister lists the models a server has pulled.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Resolution is the model a request was resolved to.
type Resolution struct {
	Requested string
	Model     string
	IsCloud   bool

	// Fallback is set when Model differs from what was requested, or when
	// nothing could be confirmed and Requested is used as a last resort.
	Fallback bool
}

// Resolver maps a requested model name to one that can serve it.
//
// A cloud model name resolves to itself. A name the server lists resolves to
// itself; a name without a tag also matches its ":latest" tag. Anything else
// falls back to the first cloud model, then to the first pulled local
// fallback, then to the first pulled model, and finally to the requested name.
// A failed listing counts as no local models.
type Resolver struct {
	lister ModelLister
	cloud  []string
	local  []string
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	cached   []string
	cachedAt time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCloudModels replaces DefaultCloudModels. No names disables the cloud
// fallback.
func WithCloudModels(names ...string) ResolverOption {
	return func(r *Resolver) { r.cloud = names }
}

// WithLocalFallbacks replaces DefaultLocalFallbacks.
func WithLocalFallbacks(names ...string) ResolverOption {
	return func(r *Resolver) { r.local = names }
}

// WithModelCacheTTL sets how long a listing is reused. Zero lists on every
// call.
func WithModelCacheTTL(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = d }
}

// NewResolver creates a Resolver that lists models through lister.
func NewResolver(lister ModelLister, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lister: lister,
		cloud:  DefaultCloudModels,
		local:  DefaultLocalFallbacks,
		ttl:    DefaultModelCacheTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve picks the model to use for requested.
func (r *Resolver) Resolve(ctx context.Context, requested string) Resolution {
	if ParseModelName(requested).IsCloud {
		return Resolution{Requested: requested, Model: requested, IsCloud: true}
	}

	available := r.available(ctx)
	if name, ok := findModel(available, requested); ok {
		return Resolution{Requested: requested, Model: name}
	}

	if len(r.cloud) > 0 {
		return Resolution{Requested: requested, Model: r.cloud[0], IsCloud: true, Fallback: true}
	}
	for _, candidate := range r.local {
		if name, ok := findModel(available, candidate); ok {
			return Resolution{Requested: requested, Model: name, Fallback: true}
		}
	}
	if len(available) > 0 {
		return Resolution{Requested: requested, Model: available[0], Fallback: true}
	}
	return Resolution{Requested: requested, Model: requested, Fallback: true}
}

func (r *Resolver) available(ctx context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && r.now().Sub(r.cachedAt) < r.ttl {
		return r.cached
	}
	names, err := r.lister.ListModels(ctx)
	if err != nil {
		return nil
	}
	if names == nil {
		names = []string{}
	}
	r.cached = names
	r.cachedAt = r.now()
	return names
}

func findModel(available []string, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if slices.Contains(available, name) {
		return name, true
	}
	if !strings.Contains(name, ":") && slices.Contains(available, name+":latest") {
		return name + ":latest", true
	}
	return "", false
}
