package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippedCatalogParses(t *testing.T) {
	cat, err := LoadModelCatalog("models.yaml")
	require.NoError(t, err)
	assert.Equal(t, "qwen", cat.DefaultModel)
	assert.Equal(t, "qwen", cat.IDs()[0])

	for _, id := range cat.IDs() {
		spec := cat.Resolve(id)
		assert.NotEmpty(t, spec.Upstream, id)
		assert.Contains(t, []string{"openrouter", "openai", "ollama", "yandexgpt"}, spec.Provider, id)
		assert.NotEmpty(t, spec.SystemPrompt, id)
	}
}

func TestParseModelCatalog(t *testing.T) {
	cat, err := ParseModelCatalog([]byte(`
system_prompt: shared
models:
  - id: a
    provider: OpenAI
    upstream: gpt-a
  - id: b
    provider: ollama
    upstream: llama
    system_prompt: own
`))
	require.NoError(t, err)
	assert.Equal(t, "a", cat.DefaultModel)
	assert.Equal(t, 8000, cat.KnowledgeCharLimit)
	assert.Equal(t, "openai", cat.Resolve("a").Provider)
	assert.Equal(t, "shared", cat.Resolve("a").SystemPrompt)
	assert.Equal(t, "own", cat.Resolve("b").SystemPrompt)

	// unknown ids fall back to the default
	assert.Equal(t, "a", cat.Resolve("nope").ID)
	assert.Equal(t, "a", cat.Resolve("").ID)
}

func TestParseModelCatalogRejectsBadInput(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":           `models: []`,
		"missing id":      "models:\n  - provider: openai\n",
		"unknown default": "default_model: z\nmodels:\n  - id: a\n    provider: openai\n",
		"not yaml":        "models: [",
	} {
		_, err := ParseModelCatalog([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("CHAT_RATE_LIMIT", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("TOKEN_TTL", "bogus")
	t.Setenv("ALLOWED_ORIGINS", " https://a.test , ,https://b.test")
	t.Setenv("MINIO_SECURE", "true")

	cfg := LoadConfig()
	assert.Equal(t, ":9999", cfg.ServerAddr)
	assert.Equal(t, 5, cfg.ChatRateLimit)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.MinIOSecure)
}

func TestLoadConfigRejectsNonPositiveRateLimit(t *testing.T) {
	t.Setenv("CHAT_RATE_LIMIT", "0")
	t.Setenv("RATE_LIMIT_WINDOW", "-5s")

	cfg := LoadConfig()
	assert.Equal(t, 30, cfg.ChatRateLimit)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}
