package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/food-donation/internal/models"
)

// SessionStore persists the credential and cached profile. Operations are
// synchronous and total; implementations absorb I/O failures rather than
// surfacing them to callers, matching a browser's local storage.
type SessionStore interface {
	Save(credential string, user models.User)
	Load() (*models.Session, bool)
	Clear()
	// UpdateUserLocation is a no-op when no session exists.
	UpdateUserLocation(lat, lon float64)
}

const (
	credentialFile = "credential"
	userFile       = "user.json"
)

// FileStore keeps the credential and the JSON profile as two independently
// keyed files under dir, so they can be cleared together on logout. It
// survives process restarts but is scoped to one machine profile.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Save(credential string, user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = os.WriteFile(filepath.Join(f.dir, credentialFile), []byte(credential), 0o600)
	if b, err := json.Marshal(user); err == nil {
		_ = os.WriteFile(filepath.Join(f.dir, userFile), b, 0o600)
	}
}

func (f *FileStore) Load() (*models.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, err := os.ReadFile(filepath.Join(f.dir, credentialFile))
	if err != nil || len(cred) == 0 {
		return nil, false
	}
	var u models.User
	b, err := os.ReadFile(filepath.Join(f.dir, userFile))
	if err != nil || json.Unmarshal(b, &u) != nil {
		return nil, false
	}
	return &models.Session{Credential: string(cred), User: u}, true
}

func (f *FileStore) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = os.Remove(filepath.Join(f.dir, credentialFile))
	_ = os.Remove(filepath.Join(f.dir, userFile))
}

func (f *FileStore) UpdateUserLocation(lat, lon float64) {
	s, ok := f.Load()
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s.User.Latitude = &lat
	s.User.Longitude = &lon
	if b, err := json.Marshal(s.User); err == nil {
		_ = os.WriteFile(filepath.Join(f.dir, userFile), b, 0o600)
	}
}

// MemoryStore is the in-process SessionStore used by tests.
type MemoryStore struct {
	mu      sync.Mutex
	session *models.Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Save(credential string, user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &models.Session{Credential: credential, User: user}
}

func (m *MemoryStore) Load() (*models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, false
	}
	cp := *m.session
	return &cp, true
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}

func (m *MemoryStore) UpdateUserLocation(lat, lon float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	m.session.User.Latitude = &lat
	m.session.User.Longitude = &lon
}
