package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	httputils "aggregator/aggregator/utils/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptOneLinePerMessage(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello\nthere"},
		{Role: RoleUser, Content: "bye"},
	}

	out := Transcript(msgs, DefaultLabels)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, len(msgs))
	assert.Equal(t, "[You]: hi", lines[0])
	assert.Equal(t, "[Assistant]: hello there", lines[1])
	assert.Equal(t, "[You]: bye", lines[2])

	assert.Equal(t, "", Transcript(nil, DefaultLabels))
	assert.Equal(t, "[Me]: hi", Transcript(msgs[:1], Labels{User: "Me", Assistant: "Bot"}))
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "chat-2026-01-02.txt", ExportFileName(time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)))
	// the date is the UTC day, not the local one
	moscow := time.FixedZone("MSK", 3*60*60)
	assert.Equal(t, "chat-2026-01-01.txt", ExportFileName(time.Date(2026, 1, 2, 1, 0, 0, 0, moscow)))
}

func TestAttachmentSummaryAndInline(t *testing.T) {
	a := NewAttachment("report.txt", []byte("quarterly numbers"))
	assert.Equal(t, "text/plain; charset=utf-8", a.MimeType)
	assert.Equal(t, int64(17), a.Size)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("quarterly numbers")), a.Content)
	assert.Equal(t, "📎 report.txt (0.0KB)", a.Summary())
	assert.Equal(t, "--- File: report.txt ---\nquarterly numbers\n--- End of file ---", a.Inline())

	bin := NewAttachment("blob", []byte{0xff, 0xfe, 0x00})
	assert.Equal(t, "--- File: blob (could not be read) ---", bin.Inline())
}

func TestReadAttachmentsKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		p := filepath.Join(dir, fmt.Sprintf("f%d.txt", i))
		require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("x", i)), 0o600))
		paths = append(paths, p)
	}

	files, err := ReadAttachments(context.Background(), paths...)
	require.NoError(t, err)
	require.Len(t, files, 6)
	for i, f := range files {
		assert.Equal(t, fmt.Sprintf("f%d.txt", i), f.Name)
		assert.Equal(t, int64(i), f.Size)
	}

	_, err = ReadAttachments(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{errors.New("Rate limit exceeded"), CategoryRateLimit},
		{errors.New("free-models-per-day limit hit"), CategoryRateLimit},
		{errors.New("upstream returned status code 429"), CategoryRateLimit},
		{fmt.Errorf("send: %w", &httputils.StatusError{Code: 429, Body: "slow down"}), CategoryRateLimit},
		{&url.Error{Op: "Post", URL: "http://127.0.0.1:42917/chat", Err: syscall.ECONNREFUSED}, CategoryNetwork},
		{errors.New(`Post "http://127.0.0.1:8429/chat": EOF`), CategoryOther},
		{errors.New("Failed to fetch"), CategoryNetwork},
		{errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), CategoryNetwork},
		{fmt.Errorf("send: %w", timeoutErr{}), CategoryNetwork},
		{errors.New("OpenRouter API key not configured"), CategoryService},
		{errors.New("model exploded"), CategoryOther},
		{nil, CategoryOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}

	assert.Contains(t, UserMessage(errors.New("Rate limit exceeded")), "another model")
	assert.Contains(t, UserMessage(errors.New("model exploded")), "model exploded")
}

func TestNewSessionIDFormat(t *testing.T) {
	id := NewSessionID()
	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "session", parts[0])
	assert.Len(t, parts[2], 9)
	assert.NotEqual(t, id, NewSessionID())
}

func TestFileSessionStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.yaml")
	ctx := context.Background()

	s, err := OpenFileSessionStore(path)
	require.NoError(t, err)
	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.Save(ctx, "session-1-abc"))
	require.NoError(t, s.SetPreference(PreferenceModel, "llama"))

	reopened, err := OpenFileSessionStore(path)
	require.NoError(t, err)
	id, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-1-abc", id)
	assert.Equal(t, "llama", reopened.Preference(PreferenceModel))
}
