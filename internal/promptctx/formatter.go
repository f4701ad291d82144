package promptctx

import (
	"strings"

	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// FormatWindow renders a [Window] into a deterministic, human-readable prompt
// block.
//
// Retrieved memories come first as a bulleted "Previous relevant context"
// section, omitted entirely when no memories are attached, followed by a
// "Conversation history" section with one "Role: content" line per turn in
// the original order.
//
// The formatter is pure: no I/O, no side effects, safe for concurrent use.
func FormatWindow(w *Window) string {
	if w == nil {
		return ""
	}

	var sb strings.Builder

	if len(w.Memories) > 0 {
		sb.WriteString("Previous relevant context:\n")
		for _, m := range w.Memories {
			sb.WriteString("- ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Conversation history:\n")
	for _, t := range w.Turns {
		sb.WriteString(roleLabel(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}

// roleLabel maps a turn role to its display form in the prompt block.
func roleLabel(r llm.Role) string {
	switch r {
	case llm.RoleSystem:
		return "System"
	case llm.RoleUser:
		return "User"
	case llm.RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}
