package models

import (
	"time"
)

// KnowledgeFile is an uploaded knowledge base document. The original bytes
// live in object storage under ObjectKey; Text is what the prompt builder uses.
type KnowledgeFile struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Filename    string    `json:"filename" gorm:"type:varchar(512);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(255)"`
	Size        int64     `json:"size" gorm:"not null"`
	Category    string    `json:"category" gorm:"type:varchar(255);not null;default:'General'"`
	ObjectKey   string    `json:"-" gorm:"type:varchar(512);not null"`
	Text        string    `json:"-" gorm:"type:text;not null"`
	UploadedAt  time.Time `json:"uploaded_at" gorm:"autoCreateTime;index"`
}

func (KnowledgeFile) TableName() string {
	return "knowledge_base"
}
