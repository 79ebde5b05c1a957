package chat

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionStore persists the current session id and small UI preferences
// (selected model, labels) between runs.
type SessionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, id string) error
	Preference(key string) string
	SetPreference(key, value string) error
}

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns "session-<unix millis>-<9 random base36 chars>".
func NewSessionID() string {
	suffix := make([]byte, 9)
	max := big.NewInt(int64(len(sessionIDAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		suffix[i] = sessionIDAlphabet[n.Int64()]
	}
	return fmt.Sprintf("session-%d-%s", time.Now().UnixMilli(), suffix)
}

type MemorySessionStore struct {
	mu    sync.Mutex
	id    string
	prefs map[string]string
}

func NewMemorySessionStore(id string) *MemorySessionStore {
	return &MemorySessionStore{id: id, prefs: map[string]string{}}
}

func (m *MemorySessionStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemorySessionStore) Save(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *MemorySessionStore) Preference(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs[key]
}

func (m *MemorySessionStore) SetPreference(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[key] = value
	return nil
}

type sessionFile struct {
	CurrentSessionID string            `yaml:"current_session_id"`
	Preferences      map[string]string `yaml:"preferences,omitempty"`
}

// FileSessionStore keeps state in a YAML file, rewritten on every change.
type FileSessionStore struct {
	path string
	mu   sync.Mutex
	data sessionFile
}

func OpenFileSessionStore(path string) (*FileSessionStore, error) {
	s := &FileSessionStore{path: path, data: sessionFile{Preferences: map[string]string{}}}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", path, err)
	}
	if s.data.Preferences == nil {
		s.data.Preferences = map[string]string{}
	}
	return s, nil
}

func (f *FileSessionStore) Load(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.CurrentSessionID, nil
}

func (f *FileSessionStore) Save(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data.CurrentSessionID = id
	return f.flush()
}

func (f *FileSessionStore) Preference(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Preferences[key]
}

func (f *FileSessionStore) SetPreference(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data.Preferences[key] = value
	return f.flush()
}

func (f *FileSessionStore) flush() error {
	raw, err := yaml.Marshal(&f.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
