// Package router dispatches generation requests to the adapter serving the
// requested model's family.
//
// The Router owns one [llm.Adapter] instance per family, built lazily on
// first use from a constructor table supplied at startup — there is no
// ambient global holding live adapters. Model resolution goes exclusively
// through the [llm.Registry]: an unregistered identifier fails with
// [llm.ErrUnsupportedModel] before any network I/O is attempted, and a
// family whose adapter cannot be constructed in this execution context fails
// with [llm.ErrProviderUnavailable].
//
// The Router never falls back to a different model and performs no retries;
// both are caller policy.
package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// Constructor builds the adapter for one family. It is invoked at most until
// it first succeeds; a failure is remembered and surfaced as
// [llm.ProviderUnavailableError] on this and subsequent calls, since adapter
// construction failures are execution-context restrictions (missing
// credentials, unprivileged host), not transient faults.
type Constructor func() (llm.Adapter, error)

// Router routes generation requests by model identifier.
//
// All methods are safe for concurrent use. Adapter construction and
// connection are serialised per Router; generation calls on a connected
// adapter run concurrently.
type Router struct {
	registry *llm.Registry

	mu           sync.Mutex
	constructors map[llm.Family]Constructor
	adapters     map[llm.Family]llm.Adapter
	unavailable  map[llm.Family]*llm.ProviderUnavailableError
}

// New creates a Router over the given registry and per-family adapter
// constructors.
func New(registry *llm.Registry, constructors map[llm.Family]Constructor) *Router {
	ctors := make(map[llm.Family]Constructor, len(constructors))
	for f, c := range constructors {
		ctors[f] = c
	}
	return &Router{
		registry:     registry,
		constructors: ctors,
		adapters:     make(map[llm.Family]llm.Adapter),
		unavailable:  make(map[llm.Family]*llm.ProviderUnavailableError),
	}
}

// Models returns the descriptors of every registered model. Static, no I/O.
func (r *Router) Models() []llm.ModelDescriptor {
	return r.registry.Models()
}

// Close disconnects every adapter the Router has constructed.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for family, a := range r.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = &llm.BackendError{Family: family, Op: "close", Err: err}
		}
	}
	return firstErr
}

// Generate produces a non-streaming completion for a single prompt.
// Families that decline the one-shot prompt operation are served through
// their chat operation with the prompt wrapped as a single user turn.
func (r *Router) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	desc, adapter, err := r.resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	caps := adapter.Capabilities()
	switch {
	case caps.Generate:
		return adapter.Generate(ctx, req)
	case caps.Chat:
		chatReq := req
		chatReq.Prompt = ""
		chatReq.Turns = []llm.Turn{{Role: llm.RoleUser, Content: req.Prompt}}
		return adapter.Chat(ctx, chatReq)
	default:
		return nil, &llm.ProviderUnavailableError{
			Family: desc.Family,
			Reason: "family implements neither generate nor chat",
		}
	}
}

// GenerateStream produces a streaming completion for a single prompt. For
// families without native prompt streaming the one-shot result is emitted as
// a single fragment — callers must not assume fragment granularity, only
// that concatenation in emission order reconstructs the full text.
func (r *Router) GenerateStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	desc, adapter, err := r.resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	if adapter.Capabilities().GenerateStream {
		return adapter.GenerateStream(ctx, req)
	}

	slog.Debug("streaming not implemented for family, falling back to one-shot",
		"family", desc.Family, "model", req.Model)
	return r.oneShot(ctx, func() (*llm.GenerationResult, error) {
		return r.Generate(ctx, req)
	})
}

// Chat produces a non-streaming completion for an ordered conversation.
func (r *Router) Chat(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	desc, adapter, err := r.resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	if !adapter.Capabilities().Chat {
		return nil, &llm.ProviderUnavailableError{
			Family: desc.Family,
			Reason: "chat with history not supported by this family",
		}
	}
	return adapter.Chat(ctx, req)
}

// ChatStream produces a streaming chat completion, falling back to the
// one-shot chat call emitted as a single fragment when the family has no
// native chat streaming.
func (r *Router) ChatStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	desc, adapter, err := r.resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	if adapter.Capabilities().ChatStream {
		return adapter.ChatStream(ctx, req)
	}

	slog.Debug("streaming not implemented for family, falling back to one-shot",
		"family", desc.Family, "model", req.Model)
	return r.oneShot(ctx, func() (*llm.GenerationResult, error) {
		return r.Chat(ctx, req)
	})
}

// resolve maps a model identifier to its descriptor and a connected adapter.
func (r *Router) resolve(ctx context.Context, model string) (llm.ModelDescriptor, llm.Adapter, error) {
	desc, ok := r.registry.Lookup(model)
	if !ok {
		return llm.ModelDescriptor{}, nil, &llm.UnsupportedModelError{Model: model}
	}

	adapter, err := r.adapterFor(ctx, desc.Family)
	if err != nil {
		return llm.ModelDescriptor{}, nil, err
	}
	return desc, adapter, nil
}

// adapterFor returns the family's adapter, constructing and connecting it on
// first use. Construction and connection are serialised so that Connect never
// races a concurrent generation call on the same instance.
func (r *Router) adapterFor(ctx context.Context, family llm.Family) (llm.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unavail, ok := r.unavailable[family]; ok {
		return nil, unavail
	}

	adapter, ok := r.adapters[family]
	if !ok {
		ctor, registered := r.constructors[family]
		if !registered {
			unavail := &llm.ProviderUnavailableError{
				Family: family,
				Reason: "no adapter registered for this family",
			}
			r.unavailable[family] = unavail
			return nil, unavail
		}

		built, err := ctor()
		if err != nil {
			unavail := &llm.ProviderUnavailableError{
				Family: family,
				Reason: "adapter cannot be constructed in this execution context",
				Cause:  err,
			}
			r.unavailable[family] = unavail
			slog.Warn("provider adapter unavailable", "family", family, "err", err)
			return nil, unavail
		}
		adapter = built
		r.adapters[family] = adapter
	}

	if adapter.State() != llm.StateConnected {
		if err := adapter.Connect(ctx); err != nil {
			// Connect failures are transient (network, auth endpoint down):
			// the adapter stays cached so the next call re-attempts setup.
			return nil, &llm.BackendError{Family: family, Op: "connect", Err: err}
		}
	}
	return adapter, nil
}

// oneShot adapts a non-streaming call to the fragment-stream contract: the
// full text is emitted as one fragment, errors as a terminal error fragment,
// then the channel is closed.
func (r *Router) oneShot(ctx context.Context, call func() (*llm.GenerationResult, error)) (<-chan llm.Fragment, error) {
	ch := make(chan llm.Fragment, 1)
	go func() {
		defer close(ch)

		res, err := call()
		frag := llm.Fragment{Err: err}
		if err == nil {
			frag = llm.Fragment{Text: res.Text}
		}
		select {
		case ch <- frag:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
