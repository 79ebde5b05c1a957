package chat

import (
	"context"
	"time"

	"aggregator/aggregator/utils/stream"
)

type SendRequest struct {
	Message     string         `json:"message"`
	SessionID   string         `json:"session_id"`
	ModelID     string         `json:"model_id"`
	History     []HistoryEntry `json:"conversation_history"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Stream      bool           `json:"stream"`
}

// ModelBackend is the remote "send message" endpoint. A non-streaming backend
// returns stream.Static with the whole answer.
type ModelBackend interface {
	Send(ctx context.Context, req SendRequest) (*stream.Stream, error)
}

type SaveRequest struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
}

// Persister mirrors messages to the remote store.
type Persister interface {
	SaveMessage(ctx context.Context, req SaveRequest) error
}

type StoredMessage struct {
	Model     string    `json:"model"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryBackend interface {
	History(ctx context.Context, sessionID string) ([]StoredMessage, error)
}
