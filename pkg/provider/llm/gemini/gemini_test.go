package gemini

import (
	"errors"
	"testing"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// TestNew_EmptyAPIKey verifies construction is refused without a key.
func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want non-nil")
	}
}

// TestCapabilities_ChatStreamDeclined verifies the declared capability set:
// chat streaming is declined so the router serves it one-shot.
func TestCapabilities_ChatStreamDeclined(t *testing.T) {
	a, err := New("key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	caps := a.Capabilities()
	if !caps.Generate || !caps.GenerateStream || !caps.Chat {
		t.Errorf("Capabilities() = %+v, want generate/generate_stream/chat true", caps)
	}
	if caps.ChatStream {
		t.Error("Capabilities().ChatStream = true, want declined")
	}
}

// TestChatStream_Declined verifies the declined operation reports provider
// unavailability with a reason, not a deep backend failure.
func TestChatStream_Declined(t *testing.T) {
	a, _ := New("key")

	_, err := a.ChatStream(t.Context(), llm.GenerationRequest{Model: "gemini-1.5-pro"})
	var pue *llm.ProviderUnavailableError
	if !errors.As(err, &pue) {
		t.Fatalf("ChatStream() error = %v, want ProviderUnavailableError", err)
	}
	if pue.Reason == "" {
		t.Error("ProviderUnavailableError.Reason is empty, want documented reason")
	}
}

// TestBuildParams verifies turn conversion and option defaulting.
func TestBuildParams(t *testing.T) {
	req := llm.GenerationRequest{Model: "gemini-1.5-flash"}
	turns := []llm.Turn{
		{Role: llm.RoleSystem, Content: "Be brief."},
		{Role: llm.RoleUser, Content: "Hi"},
		{Role: llm.RoleAssistant, Content: "Hello"},
	}

	params := buildParams(req, turns)
	if params.Model != "gemini-1.5-flash" {
		t.Errorf("Model = %q, want gemini-1.5-flash", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(params.Messages))
	}
	for i, wantRole := range []string{"system", "user", "assistant"} {
		if params.Messages[i].Role != wantRole {
			t.Errorf("Messages[%d].Role = %q, want %q", i, params.Messages[i].Role, wantRole)
		}
	}
	if params.Temperature == nil || *params.Temperature != llm.DefaultTemperature {
		t.Errorf("Temperature = %v, want default %v", params.Temperature, llm.DefaultTemperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != llm.DefaultMaxOutputTokens {
		t.Errorf("MaxTokens = %v, want default %v", params.MaxTokens, llm.DefaultMaxOutputTokens)
	}
}

// TestBuildParams_ExplicitOptions verifies explicit options pass through.
func TestBuildParams_ExplicitOptions(t *testing.T) {
	req := llm.GenerationRequest{
		Model:   "gemini-1.5-pro",
		Options: llm.Options{Temperature: 0.1, MaxOutputTokens: 32},
	}

	params := buildParams(req, []llm.Turn{{Role: llm.RoleUser, Content: "x"}})
	if *params.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", *params.Temperature)
	}
	if *params.MaxTokens != 32 {
		t.Errorf("MaxTokens = %v, want 32", *params.MaxTokens)
	}
}
