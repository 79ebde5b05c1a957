package dao

import (
	"context"

	"aggregator/aggregator/sources/psql/models"

	"gorm.io/gorm"
)

type APIKeyDAO struct {
	DB *gorm.DB
}

func NewAPIKeyDAO(db *gorm.DB) *APIKeyDAO {
	return &APIKeyDAO{DB: db}
}

// Upsert stores the key for a provider. A nil key leaves the stored key
// untouched and only updates enabled; it fails with gorm.ErrRecordNotFound
// when there is nothing to update.
func (dao *APIKeyDAO) Upsert(ctx context.Context, modelID string, key *string, enabled bool) (*models.APIKey, error) {
	var row models.APIKey
	err := dao.DB.WithContext(ctx).Where("model_id = ?", modelID).First(&row).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err == gorm.ErrRecordNotFound {
		if key == nil {
			return nil, gorm.ErrRecordNotFound
		}
		row = models.APIKey{ModelID: modelID, APIKey: *key, Enabled: enabled}
		if err := dao.DB.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	}

	if key != nil {
		row.APIKey = *key
	}
	row.Enabled = enabled
	if err := dao.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (dao *APIKeyDAO) Get(ctx context.Context, modelID string) (*models.APIKey, error) {
	var row models.APIKey
	err := dao.DB.WithContext(ctx).Where("model_id = ?", modelID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (dao *APIKeyDAO) List(ctx context.Context) ([]models.APIKey, error) {
	var rows []models.APIKey
	if err := dao.DB.WithContext(ctx).Order("model_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
