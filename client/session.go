package client

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/roadlog/fleet-auth/users"
)

// Session is the client-held authentication state. The server keeps no
// counterpart: it is created on login, updated on refresh, and destroyed
// on logout or unrecoverable refresh failure.
type Session struct {
	User          *users.User `json:"user,omitempty"`
	AccessToken   string      `json:"accessToken,omitempty"`
	RefreshToken  string      `json:"refreshToken,omitempty"`
	Authenticated bool        `json:"authenticated"`
}

// SessionStore persists the session across client restarts.
type SessionStore interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	session Session
}

var _ SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, nil
}

func (m *MemoryStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	return nil
}

// FileStore persists the session as JSON on disk so it survives restarts.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ SessionStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupt session file is equivalent to no session.
		return Session{}, nil
	}
	return s, nil
}

func (f *FileStore) Save(s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
