// Package chat orchestrates one chat request end to end: memory extraction,
// context-window assembly, and the routed generation call.
//
// Memory extraction and window assembly run concurrently; both complete (or
// are explicitly skipped on failure) before the provider router sees the turn
// sequence. Memory-subsystem failures degrade the request to an empty context
// window rather than failing it — logged, never surfaced to the caller.
package chat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/internal/promptctx"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// DefaultTokenBudget is the context-window budget applied when a request
// does not set one.
const DefaultTokenBudget = 4000

// AnonymousUserID is the placeholder identity frontends send for users who
// are not signed in. Requests carrying it are treated the same as requests
// with no user at all: no memory retrieval, no memory extraction.
const AnonymousUserID = "anonymous-user"

// contextPreamble introduces the rendered window in the synthetic system
// turn so the model knows the material is retrieved background, not part of
// the live conversation.
const contextPreamble = "Here is relevant context that might help with the user's query:\n"

// Generator is the slice of the provider router the chat service consumes.
// *router.Router satisfies it.
type Generator interface {
	Chat(ctx context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error)
	ChatStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error)
	Models() []llm.ModelDescriptor
}

// ContextAssembler is the slice of the prompt-context assembler the chat
// service consumes. *promptctx.Assembler satisfies it.
type ContextAssembler interface {
	BuildWindow(ctx context.Context, userID string, turns []llm.Turn, budget int) (*promptctx.Window, error)
	ExtractMemories(ctx context.Context, userID, conversationID string, turns []llm.Turn) ([]string, error)
}

// Request is one inbound chat request.
type Request struct {
	// UserID identifies the requesting user. Required when IncludeMemory is
	// set.
	UserID string

	// ConversationID optionally scopes extracted memories.
	ConversationID string

	// Model is the registry model identifier to generate with.
	Model string

	// Turns is the ordered conversation so far. The last user turn is the
	// live message.
	Turns []llm.Turn

	// Options carries generation parameters; zero values use adapter
	// defaults.
	Options llm.Options

	// IncludeMemory enables memory extraction and context retrieval.
	IncludeMemory bool

	// TokenBudget caps the assembled context window. Zero selects
	// DefaultTokenBudget.
	TokenBudget int
}

// Response is the non-streaming chat result.
type Response struct {
	// Text is the generated assistant reply.
	Text string

	// Model is the model that produced the reply.
	Model string

	// MemoryIncluded reports whether retrieved memories were injected into
	// the prompt.
	MemoryIncluded bool

	// MemoryCount is the number of injected memories.
	MemoryCount int

	// Usage is the backend-reported token usage; counts are
	// llm.UsageUnknown when the backend does not report them.
	Usage llm.Usage
}

// Service runs chat requests against a generator and a context assembler.
// Safe for concurrent use; the default token budget may be updated at runtime
// via [Service.SetDefaultTokenBudget] (config hot reload).
type Service struct {
	gen           Generator
	assembler     ContextAssembler
	logger        *slog.Logger
	metrics       *observe.Metrics
	defaultBudget atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics overrides the metrics sink. Used in tests; production services
// report to the process-wide default.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// New creates a chat Service. A nil logger defaults to slog.Default().
func New(gen Generator, assembler ContextAssembler, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{gen: gen, assembler: assembler, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.defaultBudget.Store(DefaultTokenBudget)
	return s
}

// SetDefaultTokenBudget updates the budget applied to requests that do not
// set one. Values below 1 are ignored.
func (s *Service) SetDefaultTokenBudget(budget int) {
	if budget >= 1 {
		s.defaultBudget.Store(int64(budget))
	}
}

// Models returns the static model catalog.
func (s *Service) Models() []llm.ModelDescriptor {
	return s.gen.Models()
}

// Chat handles one non-streaming request. Router failures (unsupported
// model, unavailable provider, backend error) are fatal to the request;
// memory failures are not.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	turns, memCount := s.prepare(ctx, req)

	result, err := s.gen.Chat(ctx, llm.GenerationRequest{
		Model:   req.Model,
		Turns:   turns,
		Options: req.Options,
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:           result.Text,
		Model:          result.Model,
		MemoryIncluded: memCount > 0,
		MemoryCount:    memCount,
		Usage:          result.Usage,
	}, nil
}

// ChatStream handles one streaming request. The returned channel follows the
// llm.Fragment contract: closed after the last fragment, with a terminal
// error fragment on mid-stream failure. The memory count is returned up
// front since the window is fully assembled before streaming starts.
func (s *Service) ChatStream(ctx context.Context, req Request) (<-chan llm.Fragment, int, error) {
	turns, memCount := s.prepare(ctx, req)

	fragments, err := s.gen.ChatStream(ctx, llm.GenerationRequest{
		Model:   req.Model,
		Turns:   turns,
		Options: req.Options,
	})
	if err != nil {
		return nil, 0, err
	}
	return fragments, memCount, nil
}

// prepare runs memory extraction and window assembly concurrently and
// returns the turn sequence to generate with, plus the number of memories
// injected. Failures in either leg degrade to the raw turns.
func (s *Service) prepare(ctx context.Context, req Request) ([]llm.Turn, int) {
	if !req.IncludeMemory || req.UserID == "" || req.UserID == AnonymousUserID {
		return req.Turns, 0
	}

	budget := req.TokenBudget
	if budget <= 0 {
		budget = int(s.defaultBudget.Load())
	}

	var window *promptctx.Window

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		w, err := s.assembler.BuildWindow(gctx, req.UserID, req.Turns, budget)
		s.metrics.RecordWindowAssembly(gctx, time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("context window assembly failed, proceeding without memories",
				"user_id", req.UserID, "error", err)
			return nil
		}
		window = w
		return nil
	})
	g.Go(func() error {
		ids, err := s.assembler.ExtractMemories(gctx, req.UserID, req.ConversationID, req.Turns)
		if err != nil {
			s.logger.Warn("memory extraction failed, new memories not stored",
				"user_id", req.UserID, "error", err)
			return nil
		}
		s.metrics.RecordMemoriesStored(gctx, len(ids))
		s.logger.Debug("extracted memories", "user_id", req.UserID, "count", len(ids))
		return nil
	})
	// Both legs swallow their own errors; Wait only synchronizes.
	_ = g.Wait()

	if window == nil || len(window.Memories) == 0 {
		return req.Turns, 0
	}

	// The rendered window rides in as a synthetic leading system turn; the
	// caller's turns keep their original order after it.
	turns := make([]llm.Turn, 0, len(req.Turns)+1)
	turns = append(turns, llm.Turn{
		Role:    llm.RoleSystem,
		Content: contextPreamble + promptctx.FormatWindow(window),
	})
	turns = append(turns, req.Turns...)
	return turns, len(window.Memories)
}
