// Package httpapi exposes the chat workspace over HTTP.
//
// Routes:
//
//   - POST /v1/chat — run a chat request; JSON response, or an SSE stream of
//     `data: {"text": ...}` frames terminated by `data: [DONE]` when the
//     request sets "stream".
//   - GET /v1/models — the static model catalog.
//   - POST /v1/conversations, GET /v1/conversations,
//     GET/DELETE /v1/conversations/{id} — conversation persistence.
//
// Router failures map onto status codes by taxonomy: an unsupported model is
// the caller's fault (400), an unavailable provider is a temporary condition
// (503), and a backend failure is an upstream fault (502).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mnemo-ai/mnemo/internal/chat"
	"github.com/mnemo-ai/mnemo/internal/convstore"
	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// DefaultModel is used when a chat request does not name a model.
const DefaultModel = "gemini-1.5-pro"

// ChatService is the slice of the chat orchestrator the API consumes.
// *chat.Service satisfies it.
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
	ChatStream(ctx context.Context, req chat.Request) (<-chan llm.Fragment, int, error)
	Models() []llm.ModelDescriptor
}

// ConversationStore is the persistence surface for conversation documents.
// *convstore.Store satisfies it.
type ConversationStore interface {
	Create(ctx context.Context, userID, title, model string) (*convstore.Conversation, error)
	Get(ctx context.Context, id string) (*convstore.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]*convstore.Conversation, error)
	AppendTurn(ctx context.Context, id string, turn llm.Turn) (*convstore.Conversation, error)
	Delete(ctx context.Context, id string) error
}

// Server holds the HTTP handlers. Safe for concurrent use.
type Server struct {
	chat    ChatService
	convs   ConversationStore
	metrics *observe.Metrics
	logger  *slog.Logger
}

// New creates a Server. A nil metrics uses the process-wide default; a nil
// logger defaults to slog.Default(). convs may be nil, in which case the
// conversation routes return 404 and chat requests are not persisted.
func New(svc ChatService, convs ConversationStore, metrics *observe.Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{chat: svc, convs: convs, metrics: metrics, logger: logger}
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	if s.convs != nil {
		mux.HandleFunc("POST /v1/conversations", s.handleCreateConversation)
		mux.HandleFunc("GET /v1/conversations", s.handleListConversations)
		mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
		mux.HandleFunc("DELETE /v1/conversations/{id}", s.handleDeleteConversation)
	}
}

// handleModels serves the static model catalog.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.chat.Models()})
}

// errorResponse is the JSON envelope for all error replies.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a router error onto an HTTP status code.
func statusFor(err error) int {
	var backendErr *llm.BackendError
	switch {
	case errors.Is(err, llm.ErrUnsupportedModel):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &backendErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
