// Package promptctx assembles the token-budgeted context window for a chat
// request and extracts new memories from conversation turns.
//
// The assembler sits between the chat flow and the memory subsystem: given the
// conversation so far and a token budget, it decides whether there is room for
// retrieved memories, caps how many may be attached, and leaves the turn order
// untouched. Use [FormatWindow] to render the result into a prompt block.
package promptctx

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mnemo-ai/mnemo/pkg/memory"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// MemoryService is the slice of the memory manager the assembler consumes.
// *memory.Manager satisfies it.
type MemoryService interface {
	// Remember persists one record, returning the assigned ID.
	Remember(ctx context.Context, rec memory.Record) (string, error)

	// Relevant returns up to limit records matching filter, ranked by
	// similarity to query.
	Relevant(ctx context.Context, filter memory.Filter, query string, limit int) ([]memory.RankedRecord, error)
}

// Window is the assembled context for one generation call.
type Window struct {
	// Turns is the conversation history, in the caller's original order.
	Turns []llm.Turn

	// CurrentTokens is the estimated token count of all turn contents,
	// excluding attached memories.
	CurrentTokens int

	// Memories holds the retrieved records, most relevant first. Empty when
	// retrieval was skipped or found nothing.
	Memories []memory.RankedRecord
}

// EstimateTokens returns a cheap deterministic token-count proxy for text:
// the character count divided by four, rounded up. It is not a tokenizer;
// callers get monotonicity (longer text never estimates fewer tokens) and
// EstimateTokens("") == 0, nothing more.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Assembler builds context windows and extracts memories for one deployment's
// memory service. Safe for concurrent use; the tuning knobs may be updated at
// runtime via [Assembler.SetPerMemoryCost] and
// [Assembler.SetDefaultImportance] (config hot reload).
type Assembler struct {
	svc               MemoryService
	perMemoryCost     atomic.Int64
	defaultImportance atomic.Int64
}

// Option is a functional option for [New].
type Option func(*Assembler)

// WithPerMemoryCost overrides the estimated token cost charged per retrieved
// memory when deriving the retrieval cap. Defaults to 100.
func WithPerMemoryCost(cost int) Option {
	return func(a *Assembler) { a.SetPerMemoryCost(cost) }
}

// WithDefaultImportance overrides the importance assigned to extracted
// message memories. Defaults to 5.
func WithDefaultImportance(importance int) Option {
	return func(a *Assembler) { a.SetDefaultImportance(importance) }
}

// New creates an Assembler over the given memory service.
func New(svc MemoryService, opts ...Option) *Assembler {
	a := &Assembler{svc: svc}
	a.perMemoryCost.Store(100)
	a.defaultImportance.Store(5)
	for _, o := range opts {
		o(a)
	}
	return a
}

// SetPerMemoryCost updates the per-memory token cost. Values below 1 are
// ignored.
func (a *Assembler) SetPerMemoryCost(cost int) {
	if cost >= 1 {
		a.perMemoryCost.Store(int64(cost))
	}
}

// SetDefaultImportance updates the importance assigned to extracted
// memories. Values outside [0, 10] are ignored.
func (a *Assembler) SetDefaultImportance(importance int) {
	if importance >= 0 && importance <= 10 {
		a.defaultImportance.Store(int64(importance))
	}
}

// BuildWindow assembles the context window for userID given the conversation
// turns and a token budget.
//
// Retrieval is skipped entirely — returning the turns with an empty memory
// list — when the estimated turn tokens already meet or exceed the budget,
// when there are no turns, when no user-role turn exists to serve as the
// query, or when the remaining budget caps retrieval at zero memories. The
// cap is floor(remaining / perMemoryCost).
//
// BuildWindow never reorders turns and never attaches more memories than the
// budget allows.
func (a *Assembler) BuildWindow(ctx context.Context, userID string, turns []llm.Turn, budget int) (*Window, error) {
	if userID == "" {
		return nil, fmt.Errorf("promptctx: build window: user id must not be empty")
	}

	current := 0
	for _, t := range turns {
		current += EstimateTokens(t.Content)
	}

	w := &Window{
		Turns:         turns,
		CurrentTokens: current,
		Memories:      []memory.RankedRecord{},
	}

	if len(turns) == 0 || current >= budget {
		return w, nil
	}

	query := lastUserContent(turns)
	if query == "" {
		return w, nil
	}

	maxMemories := (budget - current) / int(a.perMemoryCost.Load())
	if maxMemories <= 0 {
		return w, nil
	}

	ranked, err := a.svc.Relevant(ctx, memory.Filter{UserID: userID}, query, maxMemories)
	if err != nil {
		return nil, fmt.Errorf("promptctx: build window: %w", err)
	}
	w.Memories = ranked
	return w, nil
}

// ExtractMemories persists every user-role turn as a message-kind memory
// scoped to conversationID, returning the created record IDs in turn order.
//
// The retention policy is deliberately simple: every user utterance becomes a
// memory with the assembler's default importance. Deduplication and
// summarization are layered on elsewhere by replacing this step.
func (a *Assembler) ExtractMemories(ctx context.Context, userID, conversationID string, turns []llm.Turn) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("promptctx: extract memories: user id must not be empty")
	}

	ids := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role != llm.RoleUser || t.Content == "" {
			continue
		}
		id, err := a.svc.Remember(ctx, memory.Record{
			UserID:         userID,
			ConversationID: conversationID,
			Content:        t.Content,
			Kind:           memory.KindMessage,
			Importance:     int(a.defaultImportance.Load()),
		})
		if err != nil {
			return nil, fmt.Errorf("promptctx: extract memories: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// lastUserContent returns the content of the most recent user-role turn,
// scanning from the end, or "" when none exists.
func lastUserContent(turns []llm.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == llm.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}
