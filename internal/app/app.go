// Package app wires all Mnemo subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject fakes via functional options (WithMemoryStore,
// WithEmbeddings, WithGenerator). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mnemo-ai/mnemo/internal/chat"
	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/convstore"
	"github.com/mnemo-ai/mnemo/internal/health"
	"github.com/mnemo-ai/mnemo/internal/httpapi"
	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/internal/promptctx"
	"github.com/mnemo-ai/mnemo/pkg/memory"
	"github.com/mnemo-ai/mnemo/pkg/memory/inprocess"
	"github.com/mnemo-ai/mnemo/pkg/memory/postgres"
	"github.com/mnemo-ai/mnemo/pkg/provider/embeddings"
	ollamaembed "github.com/mnemo-ai/mnemo/pkg/provider/embeddings/ollama"
	oaembed "github.com/mnemo-ai/mnemo/pkg/provider/embeddings/openai"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm/gemini"
	oaillm "github.com/mnemo-ai/mnemo/pkg/provider/llm/openai"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm/router"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm/vertexai"
)

// App owns all subsystem lifetimes and serves the HTTP API.
type App struct {
	cfg *config.Config

	router    *router.Router
	chatSvc   *chat.Service
	assembler *promptctx.Assembler
	convs     *convstore.Store
	httpSrv   *http.Server

	// Injected test doubles, when set.
	memStore memory.Store
	embedder embeddings.Provider
	gen      chat.Generator

	// memPing probes the active memory backend for readiness.
	memPing health.Pinger

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMemoryStore injects a memory store instead of creating one from config.
func WithMemoryStore(s memory.Store) Option {
	return func(a *App) { a.memStore = s }
}

// WithEmbeddings injects an embedding provider instead of creating one from
// config.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(a *App) { a.embedder = p }
}

// WithGenerator injects a generator instead of building the provider router
// from config.
func WithGenerator(g chat.Generator) Option {
	return func(a *App) { a.gen = g }
}

// New creates an App by wiring all subsystems together: embedding provider,
// memory store and manager, context assembler, provider router, chat service,
// conversation store, and the HTTP server with API, health, and metrics
// routes. All initialisation is synchronous.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	assembler, err := a.initMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	if a.gen == nil {
		a.router = router.New(llm.NewRegistry(llm.BuiltinModels()...), buildConstructors(cfg))
		a.gen = a.router
		a.closers = append(a.closers, a.router.Close)
	}

	a.chatSvc = chat.New(a.gen, assembler, slog.Default())
	a.applyChatConfig(cfg.Chat)

	if err := a.initConversations(); err != nil {
		return nil, fmt.Errorf("app: init conversations: %w", err)
	}

	a.initHTTP()
	return a, nil
}

// initMemory builds the embedding provider, memory store, and manager, and
// returns the context assembler the chat service uses. When no embedding
// provider is configured, memory features are disabled: chat requests run
// without retrieval or extraction.
func (a *App) initMemory(ctx context.Context) (chat.ContextAssembler, error) {
	if a.embedder == nil {
		p, err := buildEmbedder(a.cfg.Providers.Embeddings)
		if err != nil {
			return nil, err
		}
		a.embedder = p
	}
	if a.embedder == nil {
		slog.Warn("no embeddings provider configured, memory features disabled")
		a.memPing = noopPinger{}
		return memoryDisabled{}, nil
	}

	if a.memStore == nil {
		switch a.cfg.Memory.Backend {
		case config.MemoryPostgres:
			store, err := postgres.New(ctx, a.cfg.Memory.PostgresDSN, a.cfg.Memory.EmbeddingDimensions)
			if err != nil {
				return nil, err
			}
			a.memStore = store
			a.memPing = store
			a.closers = append(a.closers, func() error {
				store.Close()
				return nil
			})
			slog.Info("memory store ready", "backend", "postgres",
				"dimensions", a.cfg.Memory.EmbeddingDimensions)
		default:
			store := inprocess.New()
			a.memStore = store
			a.memPing = store
			slog.Info("memory store ready", "backend", "inprocess")
		}
	}
	if a.memPing == nil {
		a.memPing = noopPinger{}
	}

	manager := memory.NewManager(a.memStore, a.embedder)
	a.assembler = promptctx.New(manager)
	return a.assembler, nil
}

// initConversations opens the bbolt conversation store.
func (a *App) initConversations() error {
	store, err := convstore.Open(a.cfg.Conversations.Path)
	if err != nil {
		return err
	}
	a.convs = store
	a.closers = append(a.closers, store.Close)
	return nil
}

// initHTTP assembles the mux and the server. Routes: the versioned API, the
// health probes, and the Prometheus scrape endpoint.
func (a *App) initHTTP() {
	metrics := observe.DefaultMetrics()

	mux := http.NewServeMux()
	httpapi.New(a.chatSvc, a.convs, metrics, slog.Default()).Register(mux)

	checkers := []health.Checker{
		health.PingChecker("memory", a.memPing),
		health.PingChecker("conversations", a.convs),
		health.ModelsChecker(func(context.Context) (int, error) {
			return len(a.chatSvc.Models()), nil
		}),
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run serves HTTP and blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ApplyConfig applies a hot-reloadable config change to the running app.
// Only the chat tuning knobs are handled here; the log level is swapped by
// main, which owns the slog handler.
func (a *App) ApplyConfig(diff config.ConfigDiff) {
	if !diff.ChatChanged {
		return
	}
	a.applyChatConfig(diff.NewChat)
	slog.Info("chat config reloaded",
		"token_budget", diff.NewChat.TokenBudget,
		"per_memory_cost", diff.NewChat.PerMemoryCost,
		"default_importance", diff.NewChat.DefaultImportance)
}

func (a *App) applyChatConfig(c config.ChatConfig) {
	a.chatSvc.SetDefaultTokenBudget(c.TokenBudget)
	if a.assembler != nil {
		a.assembler.SetPerMemoryCost(c.PerMemoryCost)
		a.assembler.SetDefaultImportance(c.DefaultImportance)
	}
}

// Shutdown stops the HTTP server, then tears down all subsystems in init
// order. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// buildConstructors maps each configured provider family to its adapter
// constructor. Families without configuration get no constructor; requests
// for their models fail with a provider-unavailable error at call time.
func buildConstructors(cfg *config.Config) map[llm.Family]router.Constructor {
	ctors := make(map[llm.Family]router.Constructor)

	if oc := cfg.Providers.OpenAI; oc != nil {
		ctors[llm.FamilyOpenAI] = func() (llm.Adapter, error) {
			var opts []oaillm.Option
			if oc.BaseURL != "" {
				opts = append(opts, oaillm.WithBaseURL(oc.BaseURL))
			}
			return oaillm.New(oc.APIKey, opts...)
		}
	}

	if gc := cfg.Providers.Gemini; gc != nil {
		ctors[llm.FamilyGoogle] = func() (llm.Adapter, error) {
			return gemini.New(gc.APIKey)
		}
	}

	if vc := cfg.Providers.VertexAI; vc != nil {
		// Vertex serves two model families with separate adapter instances.
		for _, family := range []llm.Family{llm.FamilyAnthropic, llm.FamilyMistral} {
			ctors[family] = func() (llm.Adapter, error) {
				return vertexai.New(family, vc.Project, vc.Location)
			}
		}
	}

	return ctors
}

// buildEmbedder creates the configured embedding provider, or nil when the
// config has no embeddings block.
func buildEmbedder(ec *config.EmbeddingsConfig) (embeddings.Provider, error) {
	if ec == nil || ec.Name == "" {
		return nil, nil
	}
	switch ec.Name {
	case "openai":
		var opts []oaembed.Option
		if ec.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(ec.BaseURL))
		}
		return oaembed.New(ec.APIKey, ec.Model, opts...)
	case "ollama":
		return ollamaembed.New(ec.BaseURL, ec.Model)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", ec.Name)
	}
}

// memoryDisabled is the context assembler used when no embedding provider is
// configured: windows carry no memories and extraction stores nothing.
type memoryDisabled struct{}

func (memoryDisabled) BuildWindow(_ context.Context, _ string, turns []llm.Turn, _ int) (*promptctx.Window, error) {
	current := 0
	for _, t := range turns {
		current += promptctx.EstimateTokens(t.Content)
	}
	return &promptctx.Window{Turns: turns, CurrentTokens: current}, nil
}

func (memoryDisabled) ExtractMemories(context.Context, string, string, []llm.Turn) ([]string, error) {
	return nil, nil
}

type noopPinger struct{}

func (noopPinger) Ping(context.Context) error { return nil }
