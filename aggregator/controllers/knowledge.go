package controllers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/sources/psql/models"
	"aggregator/aggregator/sources/storage"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/types"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const maxKnowledgeFileBytes = 5 << 20

type KnowledgeController struct {
	dao   *dao.KnowledgeDAO
	blobs storage.BlobStore
}

func NewKnowledgeController(dao *dao.KnowledgeDAO, blobs storage.BlobStore) *KnowledgeController {
	return &KnowledgeController{dao: dao, blobs: blobs}
}

func knowledgeView(f models.KnowledgeFile) types.KnowledgeFileView {
	return types.KnowledgeFileView{
		ID:          f.ID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		Category:    f.Category,
		UploadedAt:  f.UploadedAt,
	}
}

func (c *KnowledgeController) List(ctx context.Context) ([]types.KnowledgeFileView, error) {
	files, err := c.dao.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.KnowledgeFileView, 0, len(files))
	for _, f := range files {
		out = append(out, knowledgeView(f))
	}
	return out, nil
}

func (c *KnowledgeController) Upload(ctx context.Context, req types.UploadKnowledgeRequest) (*types.KnowledgeFileView, error) {
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return nil, fmt.Errorf("%w: file_name is required", ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		return nil, fmt.Errorf("%w: file_content is not valid base64", ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if len(data) > maxKnowledgeFileBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, maxKnowledgeFileBytes)
	}

	text, err := ExtractText(name, req.FileType, data)
	if err != nil {
		return nil, err
	}
	key, err := c.blobs.Put(ctx, name, req.FileType, data)
	if err != nil {
		return nil, err
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "General"
	}
	file := &models.KnowledgeFile{
		Filename:    name,
		ContentType: req.FileType,
		Size:        int64(len(data)),
		Category:    category,
		ObjectKey:   key,
		Text:        text,
	}
	if err := c.dao.Create(ctx, file); err != nil {
		if derr := c.blobs.Delete(ctx, key); derr != nil {
			logging.ErrorLogger.Error("orphaned knowledge blob", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}
	logging.AppLogger.Info("knowledge file uploaded",
		zap.Int("id", file.ID), zap.String("filename", name), zap.Int("chars", len(text)))
	v := knowledgeView(*file)
	return &v, nil
}

func (c *KnowledgeController) Delete(ctx context.Context, id int) error {
	f, err := c.dao.Get(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return ErrNotFound
	}
	if err := c.blobs.Delete(ctx, f.ObjectKey); err != nil {
		logging.ErrorLogger.Error("delete knowledge blob", zap.String("key", f.ObjectKey), zap.Error(err))
	}
	return c.dao.Delete(ctx, id)
}

// ExtractText returns the prompt text of an uploaded file. HTML is reduced
// to its visible text; anything else is read as UTF-8 with invalid bytes dropped.
func ExtractText(filename, contentType string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if strings.HasPrefix(contentType, "text/html") || ext == ".html" || ext == ".htm" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("%w: parse html: %v", ErrInvalidInput, err)
		}
		doc.Find("script, style, noscript").Remove()
		return collapseSpace(doc.Text()), nil
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(data), "")), nil
}

func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
