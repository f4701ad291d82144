// Package vertexai implements the llm.Adapter contract for publisher models
// hosted on Google Vertex AI, using the google.golang.org/genai SDK. It
// serves the anthropic (Claude) and mistral families.
//
// Vertex AI requires Google Cloud credentials and a project: this family is
// restricted to privileged execution contexts, and a host without a
// configured project cannot construct the adapter at all — the router
// surfaces that as [llm.ErrProviderUnavailable].
//
// One-shot prompt streaming is declined (the router emits the full result as
// a single fragment); chat streaming is native.
package vertexai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// DefaultLocation is used when no Vertex AI region is configured.
const DefaultLocation = "us-central1"

// Ensure Adapter implements the llm.Adapter interface.
var _ llm.Adapter = (*Adapter)(nil)

// Adapter translates between the common turn shape and the Vertex AI
// generateContent schema for one publisher family. Safe for concurrent
// generation once connected.
type Adapter struct {
	family   llm.Family
	project  string
	location string

	mu     sync.Mutex
	state  llm.State
	client *genai.Client
}

// New creates a Vertex AI adapter for one family (anthropic or mistral).
// The project must not be empty — that is the execution-context restriction
// that makes this family server-side only.
func New(family llm.Family, project, location string) (*Adapter, error) {
	if family != llm.FamilyAnthropic && family != llm.FamilyMistral {
		return nil, fmt.Errorf("vertexai: family %q is not served via Vertex AI", family)
	}
	if project == "" {
		return nil, fmt.Errorf("vertexai: %s models are only available with a Google Cloud project configured", family)
	}
	if location == "" {
		location = DefaultLocation
	}
	return &Adapter{family: family, project: project, location: location}, nil
}

// Connect builds the genai client against the Vertex AI backend. Credential
// resolution (application default credentials) happens here.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  a.project,
		Location: a.location,
	})
	if err != nil {
		a.state = llm.StateDisconnected
		return fmt.Errorf("vertexai: create client: %w", err)
	}
	a.client = client
	a.state = llm.StateConnected
	return nil
}

// Close implements llm.Adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
	a.state = llm.StateDisconnected
	return nil
}

// State implements llm.Adapter.
func (a *Adapter) State() llm.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Capabilities implements llm.Adapter. One-shot operations are declined:
// Vertex publisher models are driven through the chat schema, so the router
// wraps prompts as a single user turn and serves prompt streams one-shot.
func (a *Adapter) Capabilities() llm.Capabilities {
	return llm.Capabilities{Generate: false, GenerateStream: false, Chat: true, ChatStream: true}
}

// Generate implements llm.Adapter. Declined — see Capabilities.
func (a *Adapter) Generate(_ context.Context, _ llm.GenerationRequest) (*llm.GenerationResult, error) {
	return nil, &llm.ProviderUnavailableError{Family: a.family, Reason: "one-shot prompts are served through chat"}
}

// GenerateStream implements llm.Adapter. Declined — see Capabilities.
func (a *Adapter) GenerateStream(_ context.Context, _ llm.GenerationRequest) (<-chan llm.Fragment, error) {
	return nil, &llm.ProviderUnavailableError{Family: a.family, Reason: "one-shot prompt streaming is served through chat"}
}

// Chat implements llm.Adapter.
func (a *Adapter) Chat(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	client := a.currentClient()
	if client == nil {
		return nil, &llm.BackendError{Family: a.family, Op: "chat", Err: fmt.Errorf("not connected")}
	}

	model, err := publisherModel(req.Model)
	if err != nil {
		return nil, &llm.BackendError{Family: a.family, Op: "chat", Err: err}
	}
	contents, config := convertRequest(req)

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, &llm.BackendError{Family: a.family, Op: "chat", Err: err}
	}

	result := &llm.GenerationResult{
		Text:  resp.Text(),
		Model: req.Model,
		Usage: llm.UnknownUsage(),
		Raw:   resp,
	}
	if len(resp.Candidates) > 0 {
		result.FinishReason = normaliseFinishReason(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

// ChatStream implements llm.Adapter.
func (a *Adapter) ChatStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	client := a.currentClient()
	if client == nil {
		return nil, &llm.BackendError{Family: a.family, Op: "stream", Err: fmt.Errorf("not connected")}
	}

	model, err := publisherModel(req.Model)
	if err != nil {
		return nil, &llm.BackendError{Family: a.family, Op: "stream", Err: err}
	}
	contents, config := convertRequest(req)

	ch := make(chan llm.Fragment, 32)
	go func() {
		defer close(ch)

		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				frag := llm.Fragment{Err: &llm.BackendError{Family: a.family, Op: "stream", Err: err}}
				select {
				case ch <- frag:
				case <-ctx.Done():
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case ch <- llm.Fragment{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (a *Adapter) currentClient() *genai.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

// publisherModel converts a registry model identifier to the Vertex AI
// publisher model resource name.
func publisherModel(modelID string) (string, error) {
	switch {
	case strings.HasPrefix(modelID, "claude-"):
		return "publishers/anthropic/models/" + modelID, nil
	case strings.HasPrefix(modelID, "mistral-"):
		return "publishers/mistralai/models/" + modelID, nil
	default:
		return "", fmt.Errorf("model %q is not served via Vertex AI publisher models", modelID)
	}
}

// convertRequest maps the common turn shape onto the generateContent schema.
// System turns become the dedicated system instruction; assistant turns map
// to the "model" role.
func convertRequest(req llm.GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, t := range req.Turns {
		switch t.Role {
		case llm.RoleSystem:
			system = append(system, t.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}

	opts := req.Options
	temperature := float32(opts.Temperature)
	if temperature == 0 {
		temperature = float32(llm.DefaultTemperature)
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxOutputTokens
	}
	topP := float32(opts.TopP)
	if topP == 0 {
		topP = float32(llm.DefaultTopP)
	}
	topK := float32(opts.TopK)
	if topK == 0 {
		topK = float32(llm.DefaultTopK)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
		TopP:            genai.Ptr(topP),
		TopK:            genai.Ptr(topK),
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}

// normaliseFinishReason maps Vertex finish reasons onto the common values.
func normaliseFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	default:
		return string(reason)
	}
}
