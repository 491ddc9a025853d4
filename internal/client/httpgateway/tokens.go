package httpgateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dom/car-marketplace/internal/client"
)

// TokenStore persists the signed-in identity between runs.
type TokenStore interface {
	// Load returns nil when nothing is stored.
	Load() (*client.Identity, error)
	Save(id *client.Identity) error
	Clear() error
}

// MemoryTokens forgets the session when the process exits.
type MemoryTokens struct {
	mu sync.Mutex
	id *client.Identity
}

func (m *MemoryTokens) Load() (*client.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == nil {
		return nil, nil
	}
	cp := *m.id
	return &cp, nil
}

func (m *MemoryTokens) Save(id *client.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *id
	m.id = &cp
	return nil
}

func (m *MemoryTokens) Clear() error {
	m.mu.Lock()
	m.id = nil
	m.mu.Unlock()
	return nil
}

// FileTokens keeps the session in a JSON file readable only by the owner.
type FileTokens struct {
	Path string
}

// DefaultTokenPath is where the CLI keeps its session.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "car-marketplace", "session.json"), nil
}

func (f FileTokens) Load() (*client.Identity, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var id client.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", f.Path, err)
	}
	return &id, nil
}

func (f FileTokens) Save(id *client.Identity) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f FileTokens) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
