// Package chat holds the client-side conversation state for one chat view:
// the session id, the ordered message list, pending attachments and the send
// pipeline that fills an assistant placeholder from a model stream.
package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Model     string       `json:"model,omitempty"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	Files     []Attachment `json:"files,omitempty"`
}

// HistoryEntry is the {role, content} pair sent to the model as context.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// historyWindow is the number of prior messages sent as context.
const historyWindow = 10

func trailingHistory(msgs []Message) []HistoryEntry {
	start := 0
	if len(msgs) > historyWindow {
		start = len(msgs) - historyWindow
	}
	out := make([]HistoryEntry, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}
