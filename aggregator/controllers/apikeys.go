package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aggregator/aggregator/services/llm"
	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/utils/types"

	"gorm.io/gorm"
)

// KeyedProviders are the providers whose credentials can be managed through
// the admin API.
var KeyedProviders = []string{"openrouter", "openai", "yandexgpt"}

type APIKeyController struct {
	dao *dao.APIKeyDAO
}

func NewAPIKeyController(dao *dao.APIKeyDAO) *APIKeyController {
	return &APIKeyController{dao: dao}
}

func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
}

func isKeyedProvider(name string) bool {
	for _, p := range KeyedProviders {
		if p == name {
			return true
		}
	}
	return false
}

func (c *APIKeyController) List(ctx context.Context) ([]types.APIKeyView, error) {
	rows, err := c.dao.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.APIKeyView, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.APIKeyView{
			ModelID:   r.ModelID,
			MaskedKey: MaskKey(r.APIKey),
			Enabled:   r.Enabled,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

func (c *APIKeyController) Save(ctx context.Context, req types.SaveAPIKeyRequest) (*types.APIKeyView, error) {
	provider := strings.ToLower(strings.TrimSpace(req.ModelID))
	if !isKeyedProvider(provider) {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidInput, req.ModelID)
	}
	var key *string
	if req.APIKey != nil {
		k := strings.TrimSpace(*req.APIKey)
		if k == "" {
			return nil, fmt.Errorf("%w: api_key must not be empty", ErrInvalidInput)
		}
		key = &k
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	row, err := c.dao.Upsert(ctx, provider, key, enabled)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &types.APIKeyView{
		ModelID:   row.ModelID,
		MaskedKey: MaskKey(row.APIKey),
		Enabled:   row.Enabled,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// KeyFunc resolves a provider key from the api_keys table, falling back to
// envKey when no enabled row exists.
func (c *APIKeyController) KeyFunc(provider, envKey string) llm.KeyFunc {
	return func(ctx context.Context) (string, error) {
		row, err := c.dao.Get(ctx, provider)
		if err != nil {
			return "", err
		}
		if row != nil && row.Enabled && row.APIKey != "" {
			return row.APIKey, nil
		}
		return envKey, nil
	}
}
