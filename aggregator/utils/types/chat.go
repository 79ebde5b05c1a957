package types

import (
	"encoding/json"
	"time"
)

type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatAttachment carries a file inline; Content is base64.
type ChatAttachment struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message             string           `json:"message"`
	SessionID           string           `json:"session_id"`
	ModelID             string           `json:"model_id"`
	ConversationHistory []HistoryEntry   `json:"conversation_history"`
	Attachments         []ChatAttachment `json:"attachments,omitempty"`
	Stream              bool             `json:"stream"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	UsedModel string `json:"used_model"`
}

type ModelList struct {
	Default string   `json:"default"`
	Models  []string `json:"models"`
}

type SaveMessageRequest struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

type StoredMessage struct {
	Model     string    `json:"model"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Messages []StoredMessage `json:"messages"`
}

// For session/thread summary in threads panel
// LastActivity: RFC3339 string
type ChatSessionSummary struct {
	SessionID       string `json:"session_id"`
	Model           string `json:"model"`
	LastMessage     string `json:"last_message"`
	LastMessageRole string `json:"last_message_role"`
	MessageCount    int    `json:"message_count"`
	LastActivity    string `json:"last_activity"`
}

// websocket frame types sent by /chat/ws
const (
	FrameChunk = "response_chunk"
	FrameDone  = "response_done"
	FrameError = "error"
)

type StreamFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ChunkPayload struct {
	Chunk string `json:"chunk"`
}

type DonePayload struct {
	UsedModel string `json:"used_model"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// NewFrame marshals payload into a frame. Payloads are plain structs, so the
// marshal error is not reachable in practice and is dropped.
func NewFrame(kind string, payload any) StreamFrame {
	raw, _ := json.Marshal(payload)
	return StreamFrame{Type: kind, Payload: raw}
}
