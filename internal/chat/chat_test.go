package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/internal/promptctx"
	"github.com/mnemo-ai/mnemo/pkg/memory"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// fakeGenerator records the request it receives and returns canned results.
type fakeGenerator struct {
	result    *llm.GenerationResult
	err       error
	fragments []llm.Fragment

	lastReq llm.GenerationRequest
}

func (f *fakeGenerator) Chat(_ context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeGenerator) ChatStream(_ context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.Fragment, len(f.fragments))
	for _, fr := range f.fragments {
		ch <- fr
	}
	close(ch)
	return ch, nil
}

func (f *fakeGenerator) Models() []llm.ModelDescriptor {
	return []llm.ModelDescriptor{{ID: "gpt-4o", Family: llm.FamilyOpenAI}}
}

// fakeAssembler serves a canned window and records both call legs.
type fakeAssembler struct {
	mu sync.Mutex

	window     *promptctx.Window
	buildErr   error
	extractErr error

	buildCalls   int
	extractCalls int
}

func (f *fakeAssembler) BuildWindow(_ context.Context, _ string, turns []llm.Turn, _ int) (*promptctx.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildCalls++
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	if f.window != nil {
		return f.window, nil
	}
	return &promptctx.Window{Turns: turns, Memories: []memory.RankedRecord{}}, nil
}

func (f *fakeAssembler) ExtractMemories(_ context.Context, _, _ string, _ []llm.Turn) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return []string{"id-1"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userTurns(content string) []llm.Turn {
	return []llm.Turn{{Role: llm.RoleUser, Content: content}}
}

func TestChat_WithoutMemory(t *testing.T) {
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "hi", Model: "gpt-4o", Usage: llm.UnknownUsage()}}
	asm := &fakeAssembler{}
	svc := New(gen, asm, discardLogger())

	resp, err := svc.Chat(context.Background(), Request{
		Model: "gpt-4o",
		Turns: userTurns("hello"),
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "hi" {
		t.Errorf("Text = %q, want %q", resp.Text, "hi")
	}
	if resp.MemoryIncluded || resp.MemoryCount != 0 {
		t.Errorf("memory fields = (%v, %d), want (false, 0)", resp.MemoryIncluded, resp.MemoryCount)
	}
	if asm.buildCalls != 0 || asm.extractCalls != 0 {
		t.Errorf("assembler calls = (%d, %d), want none without IncludeMemory", asm.buildCalls, asm.extractCalls)
	}
}

func TestChat_InjectsMemoryAsSystemTurn(t *testing.T) {
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "hi", Model: "gpt-4o", Usage: llm.UnknownUsage()}}
	asm := &fakeAssembler{
		window: &promptctx.Window{
			Turns: userTurns("any trails nearby?"),
			Memories: []memory.RankedRecord{
				{Record: memory.Record{Content: "likes hiking"}, Score: 0.9},
			},
		},
	}
	svc := New(gen, asm, discardLogger())

	resp, err := svc.Chat(context.Background(), Request{
		UserID:        "u1",
		Model:         "gpt-4o",
		Turns:         userTurns("any trails nearby?"),
		IncludeMemory: true,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !resp.MemoryIncluded || resp.MemoryCount != 1 {
		t.Errorf("memory fields = (%v, %d), want (true, 1)", resp.MemoryIncluded, resp.MemoryCount)
	}

	sent := gen.lastReq.Turns
	if len(sent) != 2 {
		t.Fatalf("sent turns = %d, want 2 (system + user)", len(sent))
	}
	if sent[0].Role != llm.RoleSystem {
		t.Errorf("first turn role = %q, want system", sent[0].Role)
	}
	if !strings.HasPrefix(sent[0].Content, contextPreamble) {
		t.Errorf("system turn missing preamble: %q", sent[0].Content)
	}
	if !strings.Contains(sent[0].Content, "likes hiking") {
		t.Errorf("system turn missing memory content: %q", sent[0].Content)
	}
	if sent[1].Content != "any trails nearby?" {
		t.Errorf("original turn displaced: %+v", sent[1])
	}
	if asm.extractCalls != 1 {
		t.Errorf("extract calls = %d, want 1", asm.extractCalls)
	}
}

func TestChat_MemoryFailureDegradesGracefully(t *testing.T) {
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "hi", Model: "gpt-4o", Usage: llm.UnknownUsage()}}
	asm := &fakeAssembler{
		buildErr:   errors.New("store down"),
		extractErr: errors.New("store down"),
	}
	svc := New(gen, asm, discardLogger())

	resp, err := svc.Chat(context.Background(), Request{
		UserID:        "u1",
		Model:         "gpt-4o",
		Turns:         userTurns("hello"),
		IncludeMemory: true,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v, want graceful degrade", err)
	}
	if resp.MemoryIncluded || resp.MemoryCount != 0 {
		t.Errorf("memory fields = (%v, %d), want (false, 0)", resp.MemoryIncluded, resp.MemoryCount)
	}
	if len(gen.lastReq.Turns) != 1 {
		t.Errorf("sent turns = %d, want raw turns only", len(gen.lastReq.Turns))
	}
}

func TestChat_RouterErrorIsFatal(t *testing.T) {
	gen := &fakeGenerator{err: &llm.UnsupportedModelError{Model: "nope"}}
	svc := New(gen, &fakeAssembler{}, discardLogger())

	_, err := svc.Chat(context.Background(), Request{Model: "nope", Turns: userTurns("hello")})
	if !errors.Is(err, llm.ErrUnsupportedModel) {
		t.Fatalf("Chat() error = %v, want ErrUnsupportedModel", err)
	}
}

func TestChatStream(t *testing.T) {
	gen := &fakeGenerator{fragments: []llm.Fragment{{Text: "he"}, {Text: "llo"}}}
	asm := &fakeAssembler{
		window: &promptctx.Window{
			Turns:    userTurns("hi"),
			Memories: []memory.RankedRecord{{Record: memory.Record{Content: "m"}, Score: 1}},
		},
	}
	svc := New(gen, asm, discardLogger())

	fragments, memCount, err := svc.ChatStream(context.Background(), Request{
		UserID:        "u1",
		Model:         "gpt-4o",
		Turns:         userTurns("hi"),
		IncludeMemory: true,
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if memCount != 1 {
		t.Errorf("memCount = %d, want 1", memCount)
	}

	var sb strings.Builder
	for fr := range fragments {
		if fr.Err != nil {
			t.Fatalf("fragment error = %v", fr.Err)
		}
		sb.WriteString(fr.Text)
	}
	if sb.String() != "hello" {
		t.Errorf("concatenated = %q, want %q", sb.String(), "hello")
	}
}

func TestModels_Passthrough(t *testing.T) {
	svc := New(&fakeGenerator{}, &fakeAssembler{}, discardLogger())
	models := svc.Models()
	if len(models) != 1 || models[0].ID != "gpt-4o" {
		t.Errorf("Models() = %+v, want single gpt-4o entry", models)
	}
}

func TestChat_AnonymousUserSkipsMemory(t *testing.T) {
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "hi", Model: "gpt-4o", Usage: llm.UnknownUsage()}}
	asm := &fakeAssembler{}
	svc := New(gen, asm, discardLogger())

	resp, err := svc.Chat(context.Background(), Request{
		UserID:        AnonymousUserID,
		Model:         "gpt-4o",
		Turns:         userTurns("hello"),
		IncludeMemory: true,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.MemoryIncluded || resp.MemoryCount != 0 {
		t.Errorf("memory fields = (%v, %d), want (false, 0)", resp.MemoryIncluded, resp.MemoryCount)
	}
	if asm.buildCalls != 0 || asm.extractCalls != 0 {
		t.Errorf("assembler calls = (%d, %d), want none for the anonymous placeholder",
			asm.buildCalls, asm.extractCalls)
	}
}

func TestChat_RecordsMemoryMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "hi", Model: "gpt-4o", Usage: llm.UnknownUsage()}}
	asm := &fakeAssembler{
		window: &promptctx.Window{
			Turns:    userTurns("hi"),
			Memories: []memory.RankedRecord{{Record: memory.Record{Content: "m"}, Score: 1}},
		},
	}
	svc := New(gen, asm, discardLogger(), WithMetrics(met))

	if _, err := svc.Chat(context.Background(), Request{
		UserID:        "u1",
		Model:         "gpt-4o",
		Turns:         userTurns("hi"),
		IncludeMemory: true,
	}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var storedSum int64 = -1
	var assemblyCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "mnemo.memories.stored":
				sum, ok := md.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("memories.stored data type = %T", md.Data)
				}
				storedSum = 0
				for _, dp := range sum.DataPoints {
					storedSum += dp.Value
				}
			case "mnemo.window.assembly.duration":
				hist, ok := md.Data.(metricdata.Histogram[float64])
				if !ok {
					t.Fatalf("window.assembly.duration data type = %T", md.Data)
				}
				for _, dp := range hist.DataPoints {
					assemblyCount += dp.Count
				}
			}
		}
	}
	if storedSum != 1 {
		t.Errorf("memories stored sum = %d, want 1", storedSum)
	}
	if assemblyCount != 1 {
		t.Errorf("window assembly count = %d, want 1", assemblyCount)
	}
}
