// Package auth is a minimal stand-in for the external auth-token store and
// OAuth login flow (spec.md §1: "Authentication token storage... The core
// calls into them as black-box functions"). The processor depends only on
// the Manager interface; this file's fileManager is a concrete
// implementation good enough to exercise every auth handler end-to-end.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Method names the authentication mode currently in effect.
type Method string

const (
	MethodAPIKey  Method = "api_key"
	MethodChatGPT Method = "chatgpt"
)

// Info is the subset of stored credentials the processor reports back.
type Info struct {
	Mode  Method
	Token string
}

// Manager is the capability the processor needs from the auth subsystem.
// Kept as an interface per the same "dynamic dispatch" discipline spec.md
// §9 calls for on the conversation engine.
type Manager interface {
	Auth() (Info, bool)
	LoginAPIKey(apiKey string) error
	Logout() error
	Reload()
	RefreshToken(ctx context.Context) error
}

type storedAuth struct {
	Mode  Method `json:"mode"`
	Token string `json:"token"`
}

// fileManager persists one credential set to {codexHome}/auth.json.
type fileManager struct {
	path string

	mu      sync.Mutex
	current *storedAuth
}

// NewFileManager builds a Manager backed by a JSON file under codexHome,
// loading any credentials already on disk.
func NewFileManager(codexHome string) Manager {
	m := &fileManager{path: filepath.Join(codexHome, "auth.json")}
	m.Reload()
	return m
}

func (m *fileManager) Auth() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Info{}, false
	}
	return Info{Mode: m.current.Mode, Token: m.current.Token}, true
}

func (m *fileManager) LoginAPIKey(apiKey string) error {
	if apiKey == "" {
		return errors.New("auth: api key must not be empty")
	}
	stored := &storedAuth{Mode: MethodAPIKey, Token: apiKey}
	if err := m.persist(stored); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = stored
	m.mu.Unlock()
	return nil
}

func (m *fileManager) Logout() error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth: clearing stored credentials: %w", err)
	}
	return nil
}

func (m *fileManager) Reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return
	}
	var stored storedAuth
	if err := json.Unmarshal(data, &stored); err != nil {
		return
	}
	m.mu.Lock()
	m.current = &stored
	m.mu.Unlock()
}

// RefreshToken is a no-op for API-key auth; a ChatGPT-backed manager would
// exchange a refresh token here.
func (m *fileManager) RefreshToken(ctx context.Context) error {
	return nil
}

func (m *fileManager) persist(stored *storedAuth) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("auth: creating codex home: %w", err)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("auth: encoding credentials: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("auth: writing credentials: %w", err)
	}
	return nil
}
