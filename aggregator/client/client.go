// Package client talks to the aggregator server on behalf of a chat.Coordinator.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"aggregator/aggregator/chat"
	httputils "aggregator/aggregator/utils/http"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/stream"
	"aggregator/aggregator/utils/types"
)

// Client implements chat.ModelBackend, chat.Persister and chat.HistoryBackend.
type Client struct {
	baseURL string
	token   string
}

var (
	_ chat.ModelBackend   = (*Client)(nil)
	_ chat.Persister      = (*Client)(nil)
	_ chat.HistoryBackend = (*Client)(nil)
)

func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/")}
}

// WithToken returns a copy that sends the admin JWT on every request.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) headers() map[string]string {
	if c.token == "" {
		return nil
	}
	return httputils.Bearer(c.token)
}

// Send posts the message to /chat, or streams it over /chat/ws when
// req.Stream is set.
func (c *Client) Send(ctx context.Context, req chat.SendRequest) (*stream.Stream, error) {
	if req.Stream {
		return c.sendStream(ctx, req)
	}
	defer logging.LogDuration(ctx, "client_send")()

	var resp types.ChatResponse
	if err := httputils.PostJSON(ctx, c.baseURL+"/chat", c.headers(), toWire(req), &resp); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return stream.Static(resp.Response, resp.UsedModel), nil
}

func (c *Client) SaveMessage(ctx context.Context, req chat.SaveRequest) error {
	body := types.SaveMessageRequest{
		SessionID: req.SessionID,
		Model:     req.Model,
		Role:      string(req.Role),
		Content:   req.Content,
	}
	if err := httputils.PostJSON(ctx, c.baseURL+"/chat/messages", c.headers(), body, nil); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (c *Client) History(ctx context.Context, sessionID string) ([]chat.StoredMessage, error) {
	var resp types.HistoryResponse
	u := c.baseURL + "/chat/history?session_id=" + url.QueryEscape(sessionID)
	if err := httputils.GetJSON(ctx, u, c.headers(), &resp); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]chat.StoredMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, chat.StoredMessage{
			Model:     m.Model,
			Role:      chat.Role(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

// DeleteHistory removes a session's messages on the server.
func (c *Client) DeleteHistory(ctx context.Context, sessionID string) error {
	u := c.baseURL + "/chat/history?session_id=" + url.QueryEscape(sessionID)
	return httputils.DoJSON(ctx, http.MethodDelete, u, c.headers(), nil, nil)
}

// Sessions lists recent sessions; it needs an admin token.
func (c *Client) Sessions(ctx context.Context) ([]types.ChatSessionSummary, error) {
	var out []types.ChatSessionSummary
	if err := httputils.GetJSON(ctx, c.baseURL+"/chat/sessions", c.headers(), &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (c *Client) Models(ctx context.Context) (types.ModelList, error) {
	var out types.ModelList
	err := httputils.GetJSON(ctx, c.baseURL+"/chat/models", nil, &out)
	return out, err
}

// Login exchanges admin credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (types.LoginResponse, error) {
	var resp types.LoginResponse
	err := httputils.PostJSON(ctx, c.baseURL+"/auth/login", nil, types.LoginRequest{Email: email, Password: password}, &resp)
	return resp, err
}

func toWire(req chat.SendRequest) types.ChatRequest {
	out := types.ChatRequest{
		Message:             req.Message,
		SessionID:           req.SessionID,
		ModelID:             req.ModelID,
		ConversationHistory: make([]types.HistoryEntry, 0, len(req.History)),
		Stream:              req.Stream,
	}
	for _, h := range req.History {
		out.ConversationHistory = append(out.ConversationHistory, types.HistoryEntry{Role: string(h.Role), Content: h.Content})
	}
	for _, a := range req.Attachments {
		out.Attachments = append(out.Attachments, types.ChatAttachment{Name: a.Name, Type: a.MimeType, Size: a.Size, Content: a.Content})
	}
	return out
}
