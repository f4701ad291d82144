package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo/internal/chat"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	Messages       []llm.Turn  `json:"messages"`
	Model          string      `json:"model"`
	Stream         bool        `json:"stream"`
	Options        llm.Options `json:"options"`
	UserID         string      `json:"userId"`
	ConversationID string      `json:"conversationId"`
	IncludeMemory  *bool       `json:"includeMemory"`
	TokenBudget    int         `json:"tokenBudget"`
}

// chatResponse is the non-streaming POST /v1/chat reply.
type chatResponse struct {
	Response         string `json:"response"`
	Model            string `json:"model"`
	IncludedMemories bool   `json:"includedMemories"`
	MemoryCount      int    `json:"memoryCount"`
}

// streamFrame is one SSE data payload.
type streamFrame struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest,
			"invalid messages format, expected a non-empty array of message objects")
		return
	}
	for i, turn := range body.Messages {
		if !turn.Role.IsValid() {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("messages[%d]: invalid role %q", i, turn.Role))
			return
		}
	}

	model := body.Model
	if model == "" {
		model = DefaultModel
	}
	// Memory defaults on; the field is a pointer so an explicit false
	// survives decoding.
	includeMemory := body.IncludeMemory == nil || *body.IncludeMemory

	req := chat.Request{
		UserID:         body.UserID,
		ConversationID: body.ConversationID,
		Model:          model,
		Turns:          body.Messages,
		Options:        body.Options,
		IncludeMemory:  includeMemory,
		TokenBudget:    body.TokenBudget,
	}

	if body.Stream {
		s.streamChat(w, r, req)
		return
	}

	start := time.Now()
	resp, err := s.chat.Chat(r.Context(), req)
	if err != nil {
		s.recordChatError(r.Context(), model, err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	family := s.familyOf(model)
	s.metrics.RecordGenerationDuration(r.Context(), family, model, time.Since(start).Seconds())
	s.metrics.RecordGeneration(r.Context(), family, model, "ok")
	s.metrics.RecordMemoriesInjected(r.Context(), resp.MemoryCount)

	s.persistExchange(r.Context(), req, resp.Text)

	writeJSON(w, http.StatusOK, chatResponse{
		Response:         resp.Text,
		Model:            resp.Model,
		IncludedMemories: resp.MemoryIncluded,
		MemoryCount:      resp.MemoryCount,
	})
}

// streamChat relays the fragment channel as server-sent events. The channel
// close is the end marker; a terminal error fragment becomes an error frame
// before [DONE].
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req chat.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by connection")
		return
	}

	fragments, memCount, err := s.chat.ChatStream(r.Context(), req)
	if err != nil {
		s.recordChatError(r.Context(), req.Model, err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.metrics.RecordMemoriesInjected(r.Context(), memCount)
	s.metrics.ActiveStreams.Add(r.Context(), 1)
	defer s.metrics.ActiveStreams.Add(r.Context(), -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	var full strings.Builder
	failed := false
	for frag := range fragments {
		if frag.Err != nil {
			failed = true
			writeFrame(w, streamFrame{Error: frag.Err.Error()})
			flusher.Flush()
			break
		}
		full.WriteString(frag.Text)
		s.metrics.StreamFragments.Add(r.Context(), 1)
		writeFrame(w, streamFrame{Text: frag.Text})
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	status := "ok"
	if failed {
		status = "error"
	}
	family := s.familyOf(req.Model)
	s.metrics.RecordGenerationDuration(r.Context(), family, req.Model, time.Since(start).Seconds())
	s.metrics.RecordGeneration(r.Context(), family, req.Model, status)

	if !failed {
		s.persistExchange(r.Context(), req, full.String())
	}
}

func writeFrame(w http.ResponseWriter, frame streamFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// persistExchange appends the last user turn and the assistant reply to the
// request's conversation. Persistence failures are logged, never surfaced.
func (s *Server) persistExchange(ctx context.Context, req chat.Request, reply string) {
	if s.convs == nil || req.ConversationID == "" {
		return
	}
	last := req.Turns[len(req.Turns)-1]
	if last.Role == llm.RoleUser {
		if _, err := s.convs.AppendTurn(ctx, req.ConversationID, last); err != nil {
			s.logger.Warn("failed to persist user turn",
				"conversation_id", req.ConversationID, "error", err)
			return
		}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return
	}
	turn := llm.Turn{Role: llm.RoleAssistant, Content: reply}
	if _, err := s.convs.AppendTurn(ctx, req.ConversationID, turn); err != nil {
		s.logger.Warn("failed to persist assistant turn",
			"conversation_id", req.ConversationID, "error", err)
	}
}

// recordChatError counts a failed generation by taxonomy kind.
func (s *Server) recordChatError(ctx context.Context, model string, err error) {
	kind := "internal"
	var backendErr *llm.BackendError
	switch {
	case errors.Is(err, llm.ErrUnsupportedModel):
		kind = "unsupported_model"
	case errors.Is(err, llm.ErrProviderUnavailable):
		kind = "provider_unavailable"
	case errors.As(err, &backendErr):
		kind = "backend"
	}
	s.metrics.RecordGenerationError(ctx, s.familyOf(model), kind)
}

// familyOf resolves a model id to its adapter family for metric attributes.
// Unknown models report as "unknown" rather than failing the request path.
func (s *Server) familyOf(model string) string {
	for _, m := range s.chat.Models() {
		if m.ID == model {
			return string(m.Family)
		}
	}
	return "unknown"
}
