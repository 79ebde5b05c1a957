package dao

import (
	"context"

	"aggregator/aggregator/sources/psql/models"

	"gorm.io/gorm"
)

type KnowledgeDAO struct {
	DB *gorm.DB
}

func NewKnowledgeDAO(db *gorm.DB) *KnowledgeDAO {
	return &KnowledgeDAO{DB: db}
}

func (dao *KnowledgeDAO) Create(ctx context.Context, file *models.KnowledgeFile) error {
	return dao.DB.WithContext(ctx).Create(file).Error
}

// List returns file metadata newest first, without the extracted text.
func (dao *KnowledgeDAO) List(ctx context.Context) ([]models.KnowledgeFile, error) {
	var files []models.KnowledgeFile
	err := dao.DB.WithContext(ctx).
		Select("id", "filename", "content_type", "size", "category", "object_key", "uploaded_at").
		Order("uploaded_at DESC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (dao *KnowledgeDAO) Get(ctx context.Context, id int) (*models.KnowledgeFile, error) {
	var f models.KnowledgeFile
	err := dao.DB.WithContext(ctx).First(&f, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (dao *KnowledgeDAO) Delete(ctx context.Context, id int) error {
	return dao.DB.WithContext(ctx).Delete(&models.KnowledgeFile{}, id).Error
}

// Texts returns the extracted text of every file, oldest first.
func (dao *KnowledgeDAO) Texts(ctx context.Context) ([]string, error) {
	var texts []string
	err := dao.DB.WithContext(ctx).
		Model(&models.KnowledgeFile{}).
		Order("uploaded_at ASC").
		Pluck("text", &texts).Error
	if err != nil {
		return nil, err
	}
	return texts, nil
}
