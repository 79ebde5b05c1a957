package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aggregator/aggregator/chat"
	"aggregator/aggregator/client"
	"aggregator/aggregator/config"
	"aggregator/aggregator/controllers"
	"aggregator/aggregator/middlewares"
	"aggregator/aggregator/services/llm"
	"aggregator/aggregator/sources/psql"
	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/sources/storage"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/stream"
	"aggregator/aggregator/utils/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testCatalog = `
default_model: qwen
system_prompt: You are a helpful assistant.
models:
  - id: qwen
    provider: fake
    upstream: qwen/qwen-2.5-72b-instruct:free
  - id: limited
    provider: limited
    upstream: limited/model
`

type fakeProvider struct{}

func (fakeProvider) Run(context.Context, llm.ChatRequest) (string, error) {
	return "Privet", nil
}

func (fakeProvider) RunStream(ctx context.Context, req llm.ChatRequest) (*stream.Stream, error) {
	s := stream.New(ctx)
	go func() {
		for _, c := range []string{"Pri", "vet"} {
			if !s.Emit(c) {
				break
			}
		}
		s.Finish("qwen/qwen-2.5-72b", nil)
	}()
	return s, nil
}

type limitedProvider struct{}

func (limitedProvider) Run(context.Context, llm.ChatRequest) (string, error) {
	return "", llm.ErrRateLimited
}

func (limitedProvider) RunStream(context.Context, llm.ChatRequest) (*stream.Stream, error) {
	return nil, llm.ErrRateLimited
}

type testServer struct {
	*httptest.Server
	db  *gorm.DB
	cfg config.Config
}

func newTestServer(t *testing.T, chatLimit int) *testServer {
	t.Helper()
	logging.InitNop()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, psql.Migrate(context.Background(), db))

	cat, err := config.ParseModelCatalog([]byte(testCatalog))
	require.NoError(t, err)
	reg := llm.NewRegistry()
	reg.Register("fake", fakeProvider{})
	reg.Register("limited", limitedProvider{})

	cfg := config.Config{
		JWTSecret:      "secret",
		TokenTTL:       time.Hour,
		AdminEmail:     "admin@example.com",
		AdminPassword:  "correct-horse",
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
	auth := controllers.NewAuthController(dao.NewUserDAO(db), cfg)
	require.NoError(t, auth.EnsureAdmin(context.Background()))

	ctrls := Controllers{
		Chat:      controllers.NewChatController(dao.NewChatMessageDAO(db), dao.NewSessionSummaryDAO(db), cat, reg, dao.NewKnowledgeDAO(db)),
		Auth:      auth,
		Admin:     controllers.NewAdminController(dao.NewUserDAO(db)),
		APIKeys:   controllers.NewAPIKeyController(dao.NewAPIKeyDAO(db)),
		Knowledge: controllers.NewKnowledgeController(dao.NewKnowledgeDAO(db), storage.NewMemoryBlobStore()),
		Health:    controllers.NewHealthController(),
	}
	srv := httptest.NewServer(NewRouter(cfg, ctrls, middlewares.NewLocalLimiter(chatLimit, time.Hour)))
	t.Cleanup(func() {
		srv.Close()
		sqlDB.Close()
	})
	return &testServer{Server: srv, db: db, cfg: cfg}
}

func newCoordinator(t *testing.T, srv *testServer, streaming bool) *chat.Coordinator {
	t.Helper()
	c := client.New(srv.URL)
	coord := chat.New(chat.Options{
		Session:   chat.NewMemorySessionStore("session-e2e"),
		Model:     c,
		History:   c,
		Persister: c,
		ModelID:   "qwen",
		Stream:    streaming,
	})
	require.NoError(t, coord.Init(context.Background()))
	return coord
}

func TestCoordinatorRoundTrip(t *testing.T) {
	for _, streaming := range []bool{false, true} {
		srv := newTestServer(t, 100)
		coord := newCoordinator(t, srv, streaming)

		reply, err := coord.Send(context.Background(), "translate: hello")
		require.NoError(t, err)
		msg, err := reply.Wait()
		require.NoError(t, err)
		coord.Flush()

		assert.Equal(t, "Privet", msg.Content)
		if streaming {
			assert.Equal(t, "qwen/qwen-2.5-72b", msg.Model)
		} else {
			assert.Equal(t, "qwen/qwen-2.5-72b-instruct:free", msg.Model)
		}

		// a fresh coordinator on the same session sees the mirrored messages
		again := newCoordinator(t, srv, streaming)
		msgs := again.Messages()
		require.Len(t, msgs, 2, "streaming=%v", streaming)
		assert.Equal(t, chat.RoleUser, msgs[0].Role)
		assert.Equal(t, "translate: hello", msgs[0].Content)
		assert.Equal(t, "Privet", msgs[1].Content)
	}
}

func TestRoundTripWithoutModelSelectorStoresBothRoles(t *testing.T) {
	srv := newTestServer(t, 100)
	api := client.New(srv.URL)
	coord := chat.New(chat.Options{
		Session:   chat.NewMemorySessionStore("session-default-model"),
		Model:     api,
		History:   api,
		Persister: api,
		Stream:    true,
	})
	require.NoError(t, coord.Init(context.Background()))
	require.Empty(t, coord.ModelID())

	reply, err := coord.Send(context.Background(), "translate: hello")
	require.NoError(t, err)
	_, err = reply.Wait()
	require.NoError(t, err)
	coord.Flush()

	stored, err := api.History(context.Background(), "session-default-model")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, chat.RoleUser, stored[0].Role)
	assert.Equal(t, "translate: hello", stored[0].Content)
	assert.Equal(t, "qwen/qwen-2.5-72b", stored[0].Model)
	assert.Equal(t, chat.RoleAssistant, stored[1].Role)
	assert.Equal(t, "Privet", stored[1].Content)
}

func TestRateLimitedChatShowsRateLimitMessage(t *testing.T) {
	srv := newTestServer(t, 1)
	coord := newCoordinator(t, srv, false)

	reply, err := coord.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = reply.Wait()
	require.NoError(t, err)

	reply, err = coord.Send(context.Background(), "two")
	require.NoError(t, err)
	msg, err := reply.Wait()
	require.Error(t, err)
	assert.Equal(t, chat.CategoryRateLimit, chat.Classify(err))
	assert.Equal(t, chat.UserMessage(err), msg.Content)
	coord.Flush()
}

func TestUpstreamRateLimitOverWebsocket(t *testing.T) {
	srv := newTestServer(t, 100)
	coord := newCoordinator(t, srv, true)
	require.NoError(t, coord.SetModel("limited"))

	reply, err := coord.Send(context.Background(), "hi")
	require.NoError(t, err)
	_, err = reply.Wait()
	require.Error(t, err)
	assert.Equal(t, chat.CategoryRateLimit, chat.Classify(err))
	coord.Flush()
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestSaveMessageValidation(t *testing.T) {
	srv := newTestServer(t, 100)
	resp := postJSON(t, srv.URL+"/chat/messages", "", types.SaveMessageRequest{SessionID: "s", Role: "user"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/chat/messages", "", types.SaveMessageRequest{SessionID: "s", Model: "qwen", Role: "user", Content: "x"})
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	r, err := http.Get(srv.URL + "/chat/history")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestAdminFlow(t *testing.T) {
	srv := newTestServer(t, 100)
	ctx := context.Background()
	api := client.New(srv.URL)

	_, err := api.Login(ctx, "admin@example.com", "wrong")
	require.Error(t, err)

	login, err := api.Login(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, login.Token)

	// protected without a token
	r, err := http.Get(srv.URL + "/api-keys")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode)

	key := "sk-or-v1-abcdefgh"
	resp := postJSON(t, srv.URL+"/api-keys", login.Token, types.SaveAPIKeyRequest{ModelID: "openrouter", APIKey: &key})
	var view types.APIKeyView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sk-o****efgh", view.MaskedKey)

	resp = postJSON(t, srv.URL+"/api-keys", login.Token, types.SaveAPIKeyRequest{ModelID: "nobody"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/admins", login.Token, types.CreateAdminRequest{Email: "second@example.com", Password: "short"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// sessions listing uses the admin token
	require.NoError(t, api.SaveMessage(ctx, chat.SaveRequest{SessionID: "s1", Model: "qwen", Role: chat.RoleUser, Content: "hi"}))
	sessions, err := api.WithToken(login.Token).Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].SessionID)

	require.NoError(t, api.DeleteHistory(ctx, "s1"))
	hist, err := api.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, 100)
	for _, path := range []string{"/health", "/metrics", "/chat/models"} {
		r, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, http.StatusOK, r.StatusCode, path)
	}
}
