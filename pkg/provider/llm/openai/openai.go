// Package openai implements the llm.Adapter contract for the OpenAI family
// using the official openai-go SDK.
//
// All four operations are supported natively; one-shot prompts are sent as a
// single user message on the chat completions endpoint.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// Ensure Adapter implements the llm.Adapter interface.
var _ llm.Adapter = (*Adapter)(nil)

// Adapter translates between the common turn shape and the OpenAI chat
// completions schema. Safe for concurrent generation once connected.
type Adapter struct {
	apiKey  string
	baseURL string
	timeout time.Duration

	mu     sync.Mutex
	state  llm.State
	client oai.Client
}

// Option is a functional option for [New].
type Option func(*Adapter)

// WithBaseURL overrides the default OpenAI API base URL. Useful for proxies
// and API-compatible servers.
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates an OpenAI adapter. The API key must not be empty — a host
// without one cannot use this family at all.
func New(apiKey string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	a := &Adapter{apiKey: apiKey}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Connect builds the SDK client. The OpenAI API is stateless, so no
// handshake is performed; credential problems surface on the first call.
func (a *Adapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	reqOpts := []option.RequestOption{option.WithAPIKey(a.apiKey)}
	if a.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(a.baseURL))
	}
	if a.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: a.timeout}))
	}

	a.client = oai.NewClient(reqOpts...)
	a.state = llm.StateConnected
	return nil
}

// Close implements llm.Adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = llm.StateDisconnected
	return nil
}

// State implements llm.Adapter.
func (a *Adapter) State() llm.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Capabilities implements llm.Adapter. OpenAI supports everything natively.
func (a *Adapter) Capabilities() llm.Capabilities {
	return llm.Capabilities{Generate: true, GenerateStream: true, Chat: true, ChatStream: true}
}

// Generate implements llm.Adapter by sending the prompt as a single user
// message.
func (a *Adapter) Generate(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	return a.complete(ctx, req, promptParams(req))
}

// Chat implements llm.Adapter.
func (a *Adapter) Chat(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	return a.complete(ctx, req, chatParams(req))
}

// GenerateStream implements llm.Adapter.
func (a *Adapter) GenerateStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	return a.stream(ctx, promptParams(req))
}

// ChatStream implements llm.Adapter.
func (a *Adapter) ChatStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	return a.stream(ctx, chatParams(req))
}

func (a *Adapter) complete(ctx context.Context, req llm.GenerationRequest, params oai.ChatCompletionNewParams) (*llm.GenerationResult, error) {
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &llm.BackendError{Family: llm.FamilyOpenAI, Op: "chat", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.BackendError{
			Family: llm.FamilyOpenAI, Op: "chat",
			Err: fmt.Errorf("empty choices in response"),
		}
	}

	choice := resp.Choices[0]
	return &llm.GenerationResult{
		Text:  choice.Message.Content,
		Model: req.Model,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: string(choice.FinishReason),
		Raw:          resp,
	}, nil
}

func (a *Adapter) stream(ctx context.Context, params oai.ChatCompletionNewParams) (<-chan llm.Fragment, error) {
	sdkStream := a.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan llm.Fragment, 32)
	go func() {
		defer close(ch)
		defer sdkStream.Close()

		for sdkStream.Next() {
			chunk := sdkStream.Current()
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

		if err := sdkStream.Err(); err != nil {
			frag := llm.Fragment{Err: &llm.BackendError{Family: llm.FamilyOpenAI, Op: "stream", Err: err}}
			select {
			case ch <- frag:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// promptParams builds request params for the one-shot prompt operations.
func promptParams(req llm.GenerationRequest) oai.ChatCompletionNewParams {
	params := baseParams(req)
	params.Messages = []oai.ChatCompletionMessageParamUnion{oai.UserMessage(req.Prompt)}
	return params
}

// chatParams builds request params from the ordered conversation history.
func chatParams(req llm.GenerationRequest) oai.ChatCompletionNewParams {
	params := baseParams(req)
	params.Messages = convertTurns(req.Turns)
	return params
}

func baseParams(req llm.GenerationRequest) oai.ChatCompletionNewParams {
	opts := req.Options

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = llm.DefaultTemperature
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxOutputTokens
	}
	topP := opts.TopP
	if topP == 0 {
		topP = llm.DefaultTopP
	}

	return oai.ChatCompletionNewParams{
		Model:       oai.ChatModel(req.Model),
		Temperature: oai.Float(temperature),
		MaxTokens:   oai.Int(int64(maxTokens)),
		TopP:        oai.Float(topP),
	}
}

// convertTurns maps the common turn shape onto OpenAI's message schema.
// OpenAI has a native system role, so system turns pass through directly.
func convertTurns(turns []llm.Turn) []oai.ChatCompletionMessageParamUnion {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case llm.RoleSystem:
			msgs = append(msgs, oai.SystemMessage(t.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, oai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, oai.UserMessage(t.Content))
		}
	}
	return msgs
}
