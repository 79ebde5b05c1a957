package dao

import (
	"context"

	"aggregator/aggregator/sources/psql/models"

	"gorm.io/gorm"
)

// summaryPreviewLen bounds the last_message column.
const summaryPreviewLen = 200

type SessionSummaryDAO struct {
	DB *gorm.DB
}

func NewSessionSummaryDAO(db *gorm.DB) *SessionSummaryDAO {
	return &SessionSummaryDAO{DB: db}
}

// Touch records a new message on the session, creating the summary row on
// the first one.
func (dao *SessionSummaryDAO) Touch(ctx context.Context, sessionID, model, role, content string) (*models.SessionSummary, error) {
	preview := content
	if r := []rune(preview); len(r) > summaryPreviewLen {
		preview = string(r[:summaryPreviewLen])
	}

	var ss models.SessionSummary
	err := dao.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&ss).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			newSS := models.SessionSummary{
				SessionID:       sessionID,
				Model:           model,
				LastMessage:     preview,
				LastMessageRole: role,
				MessageCount:    1,
			}
			if err := dao.DB.WithContext(ctx).Create(&newSS).Error; err != nil {
				return nil, err
			}
			return &newSS, nil
		}
		return nil, err
	}
	ss.Model = model
	ss.LastMessage = preview
	ss.LastMessageRole = role
	ss.MessageCount++
	if err := dao.DB.WithContext(ctx).Save(&ss).Error; err != nil {
		return nil, err
	}
	return &ss, nil
}

func (dao *SessionSummaryDAO) GetSessionSummaryBySessionID(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var ss models.SessionSummary
	err := dao.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&ss).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ss, nil
}

func (dao *SessionSummaryDAO) DeleteSessionSummaryBySessionID(ctx context.Context, sessionID string) error {
	return dao.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.SessionSummary{}).Error
}

// ListRecentSessionSummaries returns up to limit summaries, most recently updated first.
func (dao *SessionSummaryDAO) ListRecentSessionSummaries(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	var summaries []models.SessionSummary
	err := dao.DB.WithContext(ctx).
		Model(&models.SessionSummary{}).
		Order("updated_at DESC").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
