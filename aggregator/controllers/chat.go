package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aggregator/aggregator/chat"
	"aggregator/aggregator/config"
	"aggregator/aggregator/services/llm"
	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/stream"
	"aggregator/aggregator/utils/types"

	"go.uber.org/zap"
)

var (
	ErrEmptyMessage  = errors.New("message is required")
	ErrMissingFields = errors.New("session_id, model, role and content are required")
	ErrNoSessionID   = errors.New("session_id is required")
)

// KnowledgeSource supplies the knowledge base texts added to the system prompt.
type KnowledgeSource interface {
	Texts(ctx context.Context) ([]string, error)
}

type ChatController struct {
	chatDAO   *dao.ChatMessageDAO
	summaries *dao.SessionSummaryDAO
	catalog   *config.ModelCatalog
	providers *llm.Registry
	knowledge KnowledgeSource
}

func NewChatController(chatDAO *dao.ChatMessageDAO, summaries *dao.SessionSummaryDAO, catalog *config.ModelCatalog, providers *llm.Registry, knowledge KnowledgeSource) *ChatController {
	return &ChatController{
		chatDAO:   chatDAO,
		summaries: summaries,
		catalog:   catalog,
		providers: providers,
		knowledge: knowledge,
	}
}

// prepare resolves the model and builds the upstream conversation:
// system prompt (with the knowledge base), the client's history window, then
// the new message with its attachments inlined.
func (c *ChatController) prepare(ctx context.Context, req types.ChatRequest) (llm.Provider, llm.ChatRequest, error) {
	if strings.TrimSpace(req.Message) == "" && len(req.Attachments) == 0 {
		return nil, llm.ChatRequest{}, ErrEmptyMessage
	}
	spec := c.catalog.Resolve(req.ModelID)
	provider, err := c.providers.Get(spec.Provider)
	if err != nil {
		return nil, llm.ChatRequest{}, err
	}

	msgs := make([]llm.Message, 0, len(req.ConversationHistory)+2)
	if system := c.systemPrompt(ctx, spec); system != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: system})
	}
	for _, h := range req.ConversationHistory {
		if h.Content == "" || (h.Role != "user" && h.Role != "assistant") {
			continue
		}
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userContent(req)})

	return provider, llm.ChatRequest{
		Model:       spec.Upstream,
		Messages:    msgs,
		Temperature: spec.Temperature,
		MaxTokens:   spec.MaxTokens,
	}, nil
}

func (c *ChatController) systemPrompt(ctx context.Context, spec config.ModelSpec) string {
	prompt := spec.SystemPrompt
	if c.knowledge == nil {
		return prompt
	}
	texts, err := c.knowledge.Texts(ctx)
	if err != nil {
		logging.ErrorLogger.Error("knowledge base unavailable", zap.Error(err))
		return prompt
	}
	kb := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if kb == "" {
		return prompt
	}
	if r := []rune(kb); len(r) > c.catalog.KnowledgeCharLimit {
		kb = string(r[:c.catalog.KnowledgeCharLimit])
	}
	return strings.TrimSpace(prompt + "\n\nKNOWLEDGE BASE:\n" + kb)
}

func userContent(req types.ChatRequest) string {
	if len(req.Attachments) == 0 {
		return req.Message
	}
	parts := []string{req.Message}
	for _, a := range req.Attachments {
		att := chat.Attachment{Name: a.Name, MimeType: a.Type, Size: a.Size, Content: a.Content}
		parts = append(parts, att.Inline())
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func (c *ChatController) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	defer logging.LogDuration(ctx, "chat")()
	provider, llmReq, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	answer, err := provider.Run(ctx, llmReq)
	if err != nil {
		logging.ErrorLogger.Error("chat failed",
			zap.String("session_id", req.SessionID), zap.String("model", llmReq.Model), zap.Error(err))
		return nil, err
	}
	return &types.ChatResponse{Response: answer, UsedModel: llmReq.Model}, nil
}

// ChatStream starts a streamed completion. The stream's Model() is the name
// the provider reports, falling back to the catalog's upstream name.
func (c *ChatController) ChatStream(ctx context.Context, req types.ChatRequest) (*stream.Stream, string, error) {
	provider, llmReq, err := c.prepare(ctx, req)
	if err != nil {
		return nil, "", err
	}
	s, err := provider.RunStream(ctx, llmReq)
	if err != nil {
		logging.ErrorLogger.Error("chat stream failed",
			zap.String("session_id", req.SessionID), zap.String("model", llmReq.Model), zap.Error(err))
		return nil, "", err
	}
	return s, llmReq.Model, nil
}

func (c *ChatController) SaveMessage(ctx context.Context, req types.SaveMessageRequest) error {
	if req.SessionID == "" || req.Model == "" || req.Role == "" || req.Content == "" {
		return ErrMissingFields
	}
	if req.Role != "user" && req.Role != "assistant" {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	_, err := c.chatDAO.SaveMessage(ctx, req.SessionID, req.Model, req.Role, req.Content)
	return err
}

func (c *ChatController) History(ctx context.Context, sessionID string) (*types.HistoryResponse, error) {
	if sessionID == "" {
		return nil, ErrNoSessionID
	}
	msgs, err := c.chatDAO.GetChatHistoryBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := &types.HistoryResponse{Messages: make([]types.StoredMessage, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, types.StoredMessage{
			Model:     m.Model,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func (c *ChatController) DeleteHistory(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, ErrNoSessionID
	}
	return c.chatDAO.DeleteSession(ctx, sessionID)
}

func (c *ChatController) ListSessions(ctx context.Context, limit int) ([]types.ChatSessionSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := c.summaries.ListRecentSessionSummaries(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.ChatSessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.ChatSessionSummary{
			SessionID:       r.SessionID,
			Model:           r.Model,
			LastMessage:     r.LastMessage,
			LastMessageRole: r.LastMessageRole,
			MessageCount:    r.MessageCount,
			LastActivity:    r.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

// ModelFor returns the catalog id a requested model id resolves to.
func (c *ChatController) ModelFor(id string) string {
	return c.catalog.Resolve(id).ID
}

// Models lists the selectable model ids in catalog order.
func (c *ChatController) Models() types.ModelList {
	return types.ModelList{Default: c.catalog.DefaultModel, Models: c.catalog.IDs()}
}
