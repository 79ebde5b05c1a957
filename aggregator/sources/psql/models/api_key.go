package models

import "time"

// APIKey stores the credential for one provider. ModelID holds the provider
// name used in the model catalog (openrouter, openai, yandexgpt).
type APIKey struct {
	ModelID   string    `json:"model_id" gorm:"type:varchar(100);primaryKey"`
	APIKey    string    `json:"-" gorm:"type:text;not null"`
	Enabled   bool      `json:"enabled" gorm:"not null;default:true"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
