// Package gemini implements the llm.Adapter contract for the Google family
// using the Gemini provider of github.com/mozilla-ai/any-llm-go.
//
// Chat streaming is explicitly declined: the Gemini chat-with-history path
// has no incremental output here yet, so the router serves ChatStream via
// the one-shot fallback. One-shot prompt streaming is native.
package gemini

import (
	"context"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	anyllmgemini "github.com/mozilla-ai/any-llm-go/providers/gemini"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// Ensure Adapter implements the llm.Adapter interface.
var _ llm.Adapter = (*Adapter)(nil)

// Adapter wraps the any-llm-go Gemini backend. Safe for concurrent
// generation once connected.
type Adapter struct {
	apiKey string

	mu      sync.Mutex
	state   llm.State
	backend anyllmlib.Provider
}

// New creates a Gemini adapter. The API key must not be empty.
func New(apiKey string) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key must not be empty")
	}
	return &Adapter{apiKey: apiKey}, nil
}

// Connect builds the any-llm-go Gemini backend.
func (a *Adapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	backend, err := anyllmgemini.New(anyllmlib.WithAPIKey(a.apiKey))
	if err != nil {
		a.state = llm.StateDisconnected
		return fmt.Errorf("gemini: create backend: %w", err)
	}
	a.backend = backend
	a.state = llm.StateConnected
	return nil
}

// Close implements llm.Adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backend = nil
	a.state = llm.StateDisconnected
	return nil
}

// State implements llm.Adapter.
func (a *Adapter) State() llm.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Capabilities implements llm.Adapter.
func (a *Adapter) Capabilities() llm.Capabilities {
	return llm.Capabilities{Generate: true, GenerateStream: true, Chat: true, ChatStream: false}
}

// Generate implements llm.Adapter.
func (a *Adapter) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	return a.complete(ctx, req, buildParams(req, []llm.Turn{{Role: llm.RoleUser, Content: req.Prompt}}))
}

// Chat implements llm.Adapter.
func (a *Adapter) Chat(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	return a.complete(ctx, req, buildParams(req, req.Turns))
}

// GenerateStream implements llm.Adapter.
func (a *Adapter) GenerateStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	backend := a.currentBackend()
	if backend == nil {
		return nil, &llm.BackendError{Family: llm.FamilyGoogle, Op: "stream", Err: fmt.Errorf("not connected")}
	}

	params := buildParams(req, []llm.Turn{{Role: llm.RoleUser, Content: req.Prompt}})
	backendChunks, backendErrs := backend.CompletionStream(ctx, params)

	ch := make(chan llm.Fragment, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case ch <- llm.Fragment{Text: text}:
			case <-ctx.Done():
				return
			}
		}

		// Backend errors are reported after the chunk channel drains.
		if err := <-backendErrs; err != nil {
			frag := llm.Fragment{Err: &llm.BackendError{Family: llm.FamilyGoogle, Op: "stream", Err: err}}
			select {
			case ch <- frag:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// ChatStream implements llm.Adapter. Declined — see Capabilities.
func (a *Adapter) ChatStream(_ context.Context, _ llm.GenerationRequest) (<-chan llm.Fragment, error) {
	return nil, &llm.ProviderUnavailableError{
		Family: llm.FamilyGoogle,
		Reason: "chat streaming not implemented for this family yet",
	}
}

func (a *Adapter) currentBackend() anyllmlib.Provider {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backend
}

func (a *Adapter) complete(ctx context.Context, req llm.GenerationRequest, params anyllmlib.CompletionParams) (*llm.GenerationResult, error) {
	backend := a.currentBackend()
	if backend == nil {
		return nil, &llm.BackendError{Family: llm.FamilyGoogle, Op: "chat", Err: fmt.Errorf("not connected")}
	}

	resp, err := backend.Completion(ctx, params)
	if err != nil {
		return nil, &llm.BackendError{Family: llm.FamilyGoogle, Op: "chat", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.BackendError{
			Family: llm.FamilyGoogle, Op: "chat",
			Err: fmt.Errorf("empty choices in response"),
		}
	}

	choice := resp.Choices[0]
	result := &llm.GenerationResult{
		Text:         choice.Message.ContentString(),
		Model:        req.Model,
		Usage:        llm.UnknownUsage(),
		FinishReason: choice.FinishReason,
		Raw:          resp,
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// buildParams converts a request plus turn list into any-llm-go completion
// params. Gemini accepts system-role messages through the unified schema, so
// system turns pass through unchanged.
func buildParams(req llm.GenerationRequest, turns []llm.Turn) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, anyllmlib.Message{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    req.Model,
		Messages: messages,
	}

	temperature := req.Options.Temperature
	if temperature == 0 {
		temperature = llm.DefaultTemperature
	}
	params.Temperature = &temperature

	maxTokens := req.Options.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxOutputTokens
	}
	params.MaxTokens = &maxTokens

	return params
}
