package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// Attachment is a user-selected file held as base64 until it is sent.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
}

func NewAttachment(name string, data []byte) Attachment {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return Attachment{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Content:  base64.StdEncoding.EncodeToString(data),
	}
}

func ReadAttachment(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	return NewAttachment(filepath.Base(path), data), nil
}

// ReadAttachments reads paths concurrently; the result keeps the input order.
func ReadAttachments(ctx context.Context, paths ...string) ([]Attachment, error) {
	out := make([]Attachment, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := ReadAttachment(p)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary is the line shown in the user's message, e.g. "📎 notes.txt (1.5KB)".
func (a Attachment) Summary() string {
	return fmt.Sprintf("📎 %s (%.1fKB)", a.Name, float64(a.Size)/1024)
}

// Inline renders the decoded file as a text block for the model prompt.
func (a Attachment) Inline() string {
	data, err := base64.StdEncoding.DecodeString(a.Content)
	if err != nil || !utf8.Valid(data) {
		return fmt.Sprintf("--- File: %s (could not be read) ---", a.Name)
	}
	return fmt.Sprintf("--- File: %s ---\n%s\n--- End of file ---", a.Name, data)
}

func composeUserContent(text string, files []Attachment) string {
	if len(files) == 0 {
		return text
	}
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = f.Summary()
	}
	return text + "\n\n" + strings.Join(lines, "\n")
}
