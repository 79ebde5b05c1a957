package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aggregator/aggregator/chat"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.InitNop()
}

func sampleRequest(stream bool) chat.SendRequest {
	return chat.SendRequest{
		Message:   "translate: hello",
		SessionID: "session-1",
		ModelID:   "qwen",
		History:   []chat.HistoryEntry{{Role: chat.RoleUser, Content: "hi"}, {Role: chat.RoleAssistant, Content: "hey"}},
		Attachments: []chat.Attachment{
			chat.NewAttachment("a.txt", []byte("abc")),
		},
		Stream: stream,
	}
}

func TestSendPostsChatRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		var req types.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "translate: hello", req.Message)
		assert.Equal(t, "qwen", req.ModelID)
		assert.Len(t, req.ConversationHistory, 2)
		require.Len(t, req.Attachments, 1)
		assert.Equal(t, "YWJj", req.Attachments[0].Content)
		assert.False(t, req.Stream)
		json.NewEncoder(w).Encode(types.ChatResponse{Response: "Privet", UsedModel: "qwen/qwen-2.5-72b"})
	}))
	defer srv.Close()

	s, err := New(srv.URL).Send(context.Background(), sampleRequest(false))
	require.NoError(t, err)
	text, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Privet", text)
	assert.Equal(t, "qwen/qwen-2.5-72b", s.Model())
}

func TestSendRateLimitIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Send(context.Background(), sampleRequest(false))
	require.Error(t, err)
	assert.Equal(t, chat.CategoryRateLimit, chat.Classify(err))
}

func TestSendUnreachableIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(base).Send(context.Background(), sampleRequest(false))
	require.Error(t, err)
	assert.Equal(t, chat.CategoryNetwork, chat.Classify(err))
}

func TestSaveMessageAndHistory(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	var saved types.SaveMessageRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"success":true}`)
	})
	mux.HandleFunc("/chat/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session 1", r.URL.Query().Get("session_id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(types.HistoryResponse{Messages: []types.StoredMessage{
			{Model: "qwen", Role: "user", Content: "hi", CreatedAt: created},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL + "/").WithToken("tok")
	require.NoError(t, c.SaveMessage(context.Background(), chat.SaveRequest{SessionID: "s", Model: "qwen", Role: chat.RoleAssistant, Content: "ok"}))
	assert.Equal(t, "assistant", saved.Role)
	assert.Equal(t, "ok", saved.Content)

	msgs, err := c.History(context.Background(), "session 1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.True(t, created.Equal(msgs[0].CreatedAt))
}

func wsServer(t *testing.T, frames ...types.StreamFrame) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/ws", r.URL.Path)
		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "")

		var req types.ChatRequest
		if !assert.NoError(t, wsjson.Read(r.Context(), conn, &req)) {
			return
		}
		assert.True(t, req.Stream)
		for _, f := range frames {
			if err := wsjson.Write(r.Context(), conn, f); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
}

func TestSendStreamOverWebsocket(t *testing.T) {
	srv := wsServer(t,
		types.NewFrame(types.FrameChunk, types.ChunkPayload{Chunk: "Pri"}),
		types.StreamFrame{Type: "ping"},
		types.NewFrame(types.FrameChunk, types.ChunkPayload{Chunk: "vet"}),
		types.NewFrame(types.FrameDone, types.DonePayload{UsedModel: "qwen/qwen-2.5-72b"}),
	)
	defer srv.Close()

	s, err := New(srv.URL).Send(context.Background(), sampleRequest(true))
	require.NoError(t, err)

	var chunks []string
	for c := range s.Chunks() {
		chunks = append(chunks, c)
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"Pri", "vet"}, chunks)
	assert.Equal(t, "qwen/qwen-2.5-72b", s.Model())
}

func TestSendStreamErrorFrame(t *testing.T) {
	srv := wsServer(t,
		types.NewFrame(types.FrameChunk, types.ChunkPayload{Chunk: "partial"}),
		types.NewFrame(types.FrameError, types.ErrorPayload{Error: "openrouter: Rate limit exceeded"}),
	)
	defer srv.Close()

	s, err := New(srv.URL).Send(context.Background(), sampleRequest(true))
	require.NoError(t, err)
	_, err = s.Collect()
	require.Error(t, err)
	assert.Equal(t, chat.CategoryRateLimit, chat.Classify(err))
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/chat/ws", New("http://localhost:8000/").wsURL())
	assert.Equal(t, "wss://example.com/api/chat/ws", New("https://example.com/api").wsURL())
}
