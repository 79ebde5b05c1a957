package dao

import (
	"context"
	"time"

	"aggregator/aggregator/sources/psql/models"

	"gorm.io/gorm"
)

type ChatMessageDAO struct {
	DB *gorm.DB
}

func NewChatMessageDAO(db *gorm.DB) *ChatMessageDAO {
	return &ChatMessageDAO{DB: db}
}

// SaveMessage stores one message and refreshes the session summary in the
// same transaction.
func (dao *ChatMessageDAO) SaveMessage(ctx context.Context, sessionID, model, role, content string) (*models.ChatMessage, error) {
	msg := models.ChatMessage{
		SessionID: sessionID,
		Model:     model,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		_, err := NewSessionSummaryDAO(tx).Touch(ctx, sessionID, model, role, content)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetChatHistoryBySession returns the session's messages oldest first.
func (dao *ChatMessageDAO) GetChatHistoryBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := dao.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteSession removes every message of the session and its summary.
// It reports how many messages were deleted.
func (dao *ChatMessageDAO) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	var deleted int64
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("session_id = ?", sessionID).Delete(&models.ChatMessage{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return NewSessionSummaryDAO(tx).DeleteSessionSummaryBySessionID(ctx, sessionID)
	})
	return deleted, err
}
