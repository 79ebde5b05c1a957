package models

import (
	"time"
)

// SessionSummary is the per-session index row kept next to chat_messages so
// session listings never scan message content.
type SessionSummary struct {
	SessionID       string    `json:"session_id" gorm:"type:varchar(255);primaryKey"`
	Model           string    `json:"model" gorm:"type:varchar(255)"`
	LastMessage     string    `json:"last_message" gorm:"type:text;not null"`
	LastMessageRole string    `json:"last_message_role" gorm:"type:varchar(50);not null"`
	MessageCount    int       `json:"message_count" gorm:"not null;default:0"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime;index"`
}

func (SessionSummary) TableName() string {
	return "session_summaries"
}
