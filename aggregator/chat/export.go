package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

type Labels struct {
	User      string
	Assistant string
}

var DefaultLabels = Labels{User: "You", Assistant: "Assistant"}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Transcript renders one "[label]: content" line per message. Line breaks
// inside a message are folded to spaces.
func Transcript(msgs []Message, labels Labels) string {
	var b strings.Builder
	for i, m := range msgs {
		label := labels.Assistant
		if m.Role == RoleUser {
			label = labels.User
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s]: %s", label, lineBreaks.Replace(m.Content))
	}
	return b.String()
}

func ExportFileName(t time.Time) string {
	return "chat-" + t.UTC().Format("2006-01-02") + ".txt"
}

func writeTranscript(dir, text string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	path := filepath.Join(dir, ExportFileName(now))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return path, nil
}

type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard uses the OS clipboard (xclip/xsel/wl-copy, pbcopy, or the
// Windows API).
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard: no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}
