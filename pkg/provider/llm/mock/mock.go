// Package mock provides a configurable test double for the llm.Adapter
// interface.
//
// Use Adapter to return pre-canned results without a live backend and to
// verify that the router dispatches (or, for invalid models, does not
// dispatch) calls to the adapter.
package mock

import (
	"context"
	"sync"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// Ensure Adapter implements the llm.Adapter interface.
var _ llm.Adapter = (*Adapter)(nil)

// Call records a single generation invocation.
type Call struct {
	// Op is the invoked method: "generate", "generate_stream", "chat",
	// or "chat_stream".
	Op string

	// Req is the request passed to the method.
	Req llm.GenerationRequest
}

// Adapter is a mock implementation of llm.Adapter.
type Adapter struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// Caps is returned by Capabilities. The zero value declines everything;
	// most tests want at least Generate and Chat set.
	Caps llm.Capabilities

	// ConnectErr, if non-nil, is returned by Connect and leaves the adapter
	// disconnected.
	ConnectErr error

	// Result is returned by Generate and Chat when Err is nil.
	Result *llm.GenerationResult

	// Err, if non-nil, is returned by Generate and Chat.
	Err error

	// StreamFragments are emitted in order by GenerateStream and ChatStream
	// before the channel is closed.
	StreamFragments []llm.Fragment

	// StreamErr, if non-nil, is returned directly by the streaming methods
	// (the stream fails to start).
	StreamErr error

	// --- Recorded state ---

	// Calls records every generation invocation in order. Connect and Close
	// are counted separately.
	Calls []Call

	// ConnectCalls is the number of Connect invocations.
	ConnectCalls int

	// CloseCalls is the number of Close invocations.
	CloseCalls int

	state llm.State
}

// Connect records the call and, on success, moves the adapter to
// StateConnected.
func (a *Adapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ConnectCalls++
	if a.ConnectErr != nil {
		a.state = llm.StateDisconnected
		return a.ConnectErr
	}
	a.state = llm.StateConnected
	return nil
}

// Close records the call and moves the adapter to StateDisconnected.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CloseCalls++
	a.state = llm.StateDisconnected
	return nil
}

// State returns the current mock connection state.
func (a *Adapter) State() llm.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Capabilities returns Caps.
func (a *Adapter) Capabilities() llm.Capabilities { return a.Caps }

// Generate records the call and returns Result, Err.
func (a *Adapter) Generate(_ context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	a.record("generate", req)
	return a.Result, a.Err
}

// Chat records the call and returns Result, Err.
func (a *Adapter) Chat(_ context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	a.record("chat", req)
	return a.Result, a.Err
}

// GenerateStream records the call and plays back StreamFragments.
func (a *Adapter) GenerateStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	a.record("generate_stream", req)
	return a.stream(ctx)
}

// ChatStream records the call and plays back StreamFragments.
func (a *Adapter) ChatStream(ctx context.Context, req llm.GenerationRequest) (<-chan llm.Fragment, error) {
	a.record("chat_stream", req)
	return a.stream(ctx)
}

// CallCount returns the total number of generation invocations recorded.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

func (a *Adapter) record(op string, req llm.GenerationRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, Call{Op: op, Req: req})
}

func (a *Adapter) stream(ctx context.Context) (<-chan llm.Fragment, error) {
	if a.StreamErr != nil {
		return nil, a.StreamErr
	}

	a.mu.Lock()
	frags := make([]llm.Fragment, len(a.StreamFragments))
	copy(frags, a.StreamFragments)
	a.mu.Unlock()

	ch := make(chan llm.Fragment, len(frags))
	go func() {
		defer close(ch)
		for _, f := range frags {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
