package controllers

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"aggregator/aggregator/config"
	"aggregator/aggregator/services/llm"
	"aggregator/aggregator/sources/psql"
	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/sources/psql/models"
	"aggregator/aggregator/sources/storage"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/stream"
	"aggregator/aggregator/utils/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testCatalog = `
default_model: qwen
system_prompt: You are a helpful assistant.
knowledge_char_limit: 20
models:
  - id: qwen
    provider: fake
    upstream: qwen/qwen-2.5-72b-instruct:free
  - id: local
    provider: fake
    upstream: llama3:8b
    system_prompt: Answer briefly.
`

type fakeProvider struct {
	mu   sync.Mutex
	reqs []llm.ChatRequest
}

func (p *fakeProvider) Run(_ context.Context, req llm.ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return "answer", nil
}

func (p *fakeProvider) RunStream(_ context.Context, req llm.ChatRequest) (*stream.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return stream.Static("answer", req.Model), nil
}

func (p *fakeProvider) last() llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reqs[len(p.reqs)-1]
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logging.InitNop()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, psql.Migrate(context.Background(), db))
	return db
}

func setupChat(t *testing.T) (*ChatController, *fakeProvider, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	cat, err := config.ParseModelCatalog([]byte(testCatalog))
	require.NoError(t, err)
	p := &fakeProvider{}
	reg := llm.NewRegistry()
	reg.Register("fake", p)
	ctrl := NewChatController(dao.NewChatMessageDAO(db), dao.NewSessionSummaryDAO(db), cat, reg, dao.NewKnowledgeDAO(db))
	return ctrl, p, db
}

func TestChatBuildsConversation(t *testing.T) {
	ctrl, p, db := setupChat(t)
	ctx := context.Background()
	require.NoError(t, dao.NewKnowledgeDAO(db).Create(ctx, newKnowledgeRow("Opening hours are 9 to 18 every day.")))

	resp, err := ctrl.Chat(ctx, types.ChatRequest{
		Message: "summarise",
		ModelID: "unknown-model",
		ConversationHistory: []types.HistoryEntry{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: ""},
			{Role: "system", Content: "ignored"},
			{Role: "assistant", Content: "hello"},
		},
		Attachments: []types.ChatAttachment{{Name: "a.txt", Type: "text/plain", Size: 3, Content: base64.StdEncoding.EncodeToString([]byte("abc"))}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Response)
	assert.Equal(t, "qwen/qwen-2.5-72b-instruct:free", resp.UsedModel)

	req := p.last()
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.\n\nKNOWLEDGE BASE:\nOpening hours are 9", req.Messages[0].Content)
	assert.Equal(t, "hi", req.Messages[1].Content)
	assert.Equal(t, "hello", req.Messages[2].Content)
	assert.Equal(t, "summarise\n\n--- File: a.txt ---\nabc\n--- End of file ---", req.Messages[3].Content)
}

func TestChatPerModelPromptAndStream(t *testing.T) {
	ctrl, p, _ := setupChat(t)
	s, fallback, err := ctrl.ChatStream(context.Background(), types.ChatRequest{Message: "hey", ModelID: "local"})
	require.NoError(t, err)
	assert.Equal(t, "llama3:8b", fallback)
	text, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, "Answer briefly.", p.last().Messages[0].Content)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	ctrl, _, _ := setupChat(t)
	_, err := ctrl.Chat(context.Background(), types.ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSaveHistoryAndSessions(t *testing.T) {
	ctrl, _, _ := setupChat(t)
	ctx := context.Background()

	assert.ErrorIs(t, ctrl.SaveMessage(ctx, types.SaveMessageRequest{SessionID: "s", Role: "user", Content: "x"}), ErrMissingFields)
	assert.Error(t, ctrl.SaveMessage(ctx, types.SaveMessageRequest{SessionID: "s", Model: "m", Role: "system", Content: "x"}))

	require.NoError(t, ctrl.SaveMessage(ctx, types.SaveMessageRequest{SessionID: "s", Model: "qwen", Role: "user", Content: "q"}))
	require.NoError(t, ctrl.SaveMessage(ctx, types.SaveMessageRequest{SessionID: "s", Model: "qwen", Role: "assistant", Content: "a"}))

	_, err := ctrl.History(ctx, "")
	assert.ErrorIs(t, err, ErrNoSessionID)
	hist, err := ctrl.History(ctx, "s")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "q", hist.Messages[0].Content)

	sessions, err := ctrl.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].MessageCount)
	assert.Equal(t, "assistant", sessions[0].LastMessageRole)
	_, err = time.Parse(time.RFC3339, sessions[0].LastActivity)
	assert.NoError(t, err)

	n, err := ctrl.DeleteHistory(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAuthLogin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cfg := config.Config{JWTSecret: "secret", TokenTTL: time.Hour, AdminEmail: "Admin@Example.com", AdminPassword: "correct-horse"}
	auth := NewAuthController(dao.NewUserDAO(db), cfg)

	require.NoError(t, auth.EnsureAdmin(ctx))
	require.NoError(t, auth.EnsureAdmin(ctx), "second call is a no-op")
	n, err := dao.NewUserDAO(db).CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = auth.Login(ctx, types.LoginRequest{Email: "admin@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, types.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := auth.Login(ctx, types.LoginRequest{Email: " ADMIN@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	tok, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := tok.Claims.(jwt.MapClaims)
	assert.NotZero(t, claims["user_id"])

	u, err := dao.NewUserDAO(db).GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.NotNil(t, u.LastLogin)
}

func TestAdminCreateAndChangePassword(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	admins := NewAdminController(dao.NewUserDAO(db))

	_, err := admins.Create(ctx, types.CreateAdminRequest{Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	v, err := admins.Create(ctx, types.CreateAdminRequest{Email: "a@example.com", Password: "longenough"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", v.Name)

	_, err = admins.Create(ctx, types.CreateAdminRequest{Email: "A@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, ErrAdminExists)

	assert.ErrorIs(t, admins.ChangePassword(ctx, v.ID, types.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "brand-new-pass"}), ErrInvalidCredentials)
	require.NoError(t, admins.ChangePassword(ctx, v.ID, types.ChangePasswordRequest{CurrentPassword: "longenough", NewPassword: "brand-new-pass"}))
	assert.ErrorIs(t, admins.ChangePassword(ctx, 999, types.ChangePasswordRequest{CurrentPassword: "x", NewPassword: "brand-new-pass"}), ErrNotFound)

	list, err := admins.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAPIKeys(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	keys := NewAPIKeyController(dao.NewAPIKeyDAO(db))

	_, err := keys.Save(ctx, types.SaveAPIKeyRequest{ModelID: "mystery"})
	assert.Error(t, err)
	_, err = keys.Save(ctx, types.SaveAPIKeyRequest{ModelID: "openai"})
	assert.ErrorIs(t, err, ErrNotFound)

	lookup := keys.KeyFunc("openrouter", "env-key")
	k, err := lookup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-key", k)

	secret := "sk-or-v1-1234567890"
	v, err := keys.Save(ctx, types.SaveAPIKeyRequest{ModelID: "OpenRouter", APIKey: &secret})
	require.NoError(t, err)
	assert.Equal(t, "sk-o****7890", v.MaskedKey)
	assert.True(t, v.Enabled)

	k, err = lookup(ctx)
	require.NoError(t, err)
	assert.Equal(t, secret, k)

	off := false
	_, err = keys.Save(ctx, types.SaveAPIKeyRequest{ModelID: "openrouter", Enabled: &off})
	require.NoError(t, err)
	k, err = lookup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-key", k)

	list, err := keys.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Enabled)
	assert.Equal(t, "****", MaskKey("abcd"))
}

func TestKnowledgeUploadAndDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	blobs := storage.NewMemoryBlobStore()
	kb := NewKnowledgeController(dao.NewKnowledgeDAO(db), blobs)

	html := `<html><head><style>p{}</style><script>var x=1</script></head><body><h1>Prices</h1>
<p>Basic   plan:  10 USD</p></body></html>`
	v, err := kb.Upload(ctx, types.UploadKnowledgeRequest{
		FileName:    "prices.html",
		FileType:    "text/html",
		FileContent: base64.StdEncoding.EncodeToString([]byte(html)),
	})
	require.NoError(t, err)
	assert.Equal(t, "General", v.Category)
	assert.Equal(t, 1, blobs.Len())

	texts, err := dao.NewKnowledgeDAO(db).Texts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Prices\nBasic plan: 10 USD"}, texts)

	_, err = kb.Upload(ctx, types.UploadKnowledgeRequest{FileName: "x.txt", FileContent: "%%%"})
	assert.Error(t, err)

	list, err := kb.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, kb.Delete(ctx, v.ID))
	assert.Zero(t, blobs.Len())
	assert.ErrorIs(t, kb.Delete(ctx, v.ID), ErrNotFound)
}

func TestExtractTextPlain(t *testing.T) {
	text, err := ExtractText("notes.md", "text/markdown", []byte("  # Notes\xff\n"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes", text)
}

func newKnowledgeRow(text string) *models.KnowledgeFile {
	return &models.KnowledgeFile{Filename: "faq.txt", Size: int64(len(text)), ObjectKey: "knowledge/faq.txt", Text: text}
}
