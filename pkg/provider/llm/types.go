// Package llm defines the uniform contract over heterogeneous LLM backends.
//
// Every supported backend family (OpenAI, Google Gemini, Vertex AI publisher
// models) is wrapped by an [Adapter] that translates between the common
// [Turn]/[GenerationRequest]/[GenerationResult] shapes and the backend's
// native schema. The [Registry] is the single source of truth for which model
// identifiers exist and which family serves them; routing is a metadata
// lookup, never string pattern matching on the identifier.
//
// Adapters must be safe for concurrent generation calls. Connect and Close
// mutate adapter state and must be serialised against concurrent generation
// on the same instance by the caller (the router does this).
package llm

import (
	"context"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Turn is a single message in a conversation. Turns are immutable once
// created; their order within a conversation is chronological and must be
// preserved by everything that handles them.
type Turn struct {
	// Role is the author of the turn.
	Role Role `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// Timestamp is when the turn was created.
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Model records which model produced an assistant turn. Empty for user
	// and system turns.
	Model string `json:"model,omitempty"`
}

// Options carries generation tuning parameters. Zero values mean "use the
// adapter's default" — adapters must not send a zero temperature or top-p to
// a backend that would interpret it literally.
type Options struct {
	// Temperature controls output randomness. Default 0.7.
	Temperature float64 `json:"temperature,omitempty"`

	// MaxOutputTokens caps the completion length. Default 2048.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// TopK limits sampling to the K most likely tokens. Default 40 for
	// backends that support it; ignored by backends that do not.
	TopK int `json:"top_k,omitempty"`

	// TopP is the nucleus sampling threshold. Default 0.95.
	TopP float64 `json:"top_p,omitempty"`
}

// Default generation option values applied by adapters when the caller leaves
// the corresponding Options field unset.
const (
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 2048
	DefaultTopK            = 40
	DefaultTopP            = 0.95
)

// GenerationRequest is the ephemeral value object handed to an adapter.
// Exactly one of Prompt or Turns is used per operation: Generate and
// GenerateStream consume Prompt, Chat and ChatStream consume Turns.
type GenerationRequest struct {
	// Model is the registered model identifier (e.g. "gpt-4o").
	Model string

	// Prompt is the single-prompt input for Generate/GenerateStream.
	Prompt string

	// Turns is the ordered conversation history for Chat/ChatStream.
	Turns []Turn

	// Options are the generation tuning parameters.
	Options Options
}

// UsageUnknown is the sentinel for token counts a backend does not report.
// Counts are never fabricated from estimates.
const UsageUnknown = -1

// Usage holds token accounting as reported by the backend. Any field may be
// [UsageUnknown] when the backend does not report it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UnknownUsage returns a Usage with every field set to [UsageUnknown].
func UnknownUsage() Usage {
	return Usage{PromptTokens: UsageUnknown, CompletionTokens: UsageUnknown, TotalTokens: UsageUnknown}
}

// GenerationResult is the normalised non-streaming response.
type GenerationResult struct {
	// Text is the full generated text.
	Text string

	// Model is the model identifier that produced the result.
	Model string

	// Usage is the backend-reported token accounting.
	Usage Usage

	// FinishReason is the normalised stop cause: "stop", "length", or the
	// backend's native value when it maps to neither.
	FinishReason string

	// Raw preserves the provider-native response payload for diagnostics.
	// Never inspected by callers; may be nil.
	Raw any
}

// Fragment is one element of a streamed response. Fragments carry either
// incremental text or a terminal error, never both. The stream channel is
// closed by the adapter after the final fragment; concatenating Text fields
// in emission order reconstructs the full response.
type Fragment struct {
	// Text is an incremental piece of the response. Fragments split only on
	// valid encoding boundaries, so each Text is independently meaningful.
	Text string

	// Err is non-nil on the final fragment of a stream that failed mid-way.
	// The channel is closed immediately after.
	Err error
}

// Capabilities declares which operations an adapter implements natively.
// The router checks these before dispatch; a declined streaming capability
// makes the router fall back to the one-shot call and emit the whole result
// as a single fragment.
type Capabilities struct {
	Generate       bool
	GenerateStream bool
	Chat           bool
	ChatStream     bool
}

// State is the adapter connection lifecycle: Uninitialized → Connected →
// Disconnected. Connected is required before any generation call; the router
// auto-connects on first use.
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateDisconnected
)

// String returns the lowercase state name for logging.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Adapter is the per-family translation layer over one LLM backend.
//
// Generation methods must be safe for concurrent use once the adapter is
// connected. Stream channels must be closed by the adapter when generation
// finishes, the backend fails, or ctx is cancelled; adapters must release
// backend-side stream resources on every exit path including early consumer
// termination.
type Adapter interface {
	// Connect performs backend setup (credential checks, client handshake).
	// A failed Connect leaves the adapter in StateDisconnected with the
	// failure returned to the caller; re-invoking re-attempts setup. No
	// automatic retry is performed.
	Connect(ctx context.Context) error

	// Close releases backend resources and moves the adapter to
	// StateDisconnected. Closing a disconnected adapter is a no-op.
	Close() error

	// State reports the current connection state.
	State() State

	// Capabilities returns the static capability set of this adapter.
	// Constant for the lifetime of the instance.
	Capabilities() Capabilities

	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

	// GenerateStream produces a completion for a single prompt as a finite,
	// non-restartable fragment stream.
	GenerateStream(ctx context.Context, req GenerationRequest) (<-chan Fragment, error)

	// Chat produces a completion for an ordered conversation history.
	Chat(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

	// ChatStream produces a chat completion as a fragment stream.
	ChatStream(ctx context.Context, req GenerationRequest) (<-chan Fragment, error)
}
