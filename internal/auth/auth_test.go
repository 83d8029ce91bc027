package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileManagerStartsUnauthenticated(t *testing.T) {
	m := NewFileManager(t.TempDir())
	_, ok := m.Auth()
	assert.False(t, ok)
}

func TestLoginAPIKeyPersistsAndReloads(t *testing.T) {
	home := t.TempDir()
	m := NewFileManager(home)

	require.NoError(t, m.LoginAPIKey("sk-test-123"))

	info, ok := m.Auth()
	require.True(t, ok)
	assert.Equal(t, MethodAPIKey, info.Mode)
	assert.Equal(t, "sk-test-123", info.Token)

	reloaded := NewFileManager(home)
	reloadedInfo, ok := reloaded.Auth()
	require.True(t, ok)
	assert.Equal(t, info, reloadedInfo)
}

func TestLoginAPIKeyRejectsEmptyKey(t *testing.T) {
	m := NewFileManager(t.TempDir())
	err := m.LoginAPIKey("")
	assert.Error(t, err)

	_, ok := m.Auth()
	assert.False(t, ok)
}

func TestLogoutClearsCredentialsAndFile(t *testing.T) {
	home := t.TempDir()
	m := NewFileManager(home)
	require.NoError(t, m.LoginAPIKey("sk-test-123"))

	require.NoError(t, m.Logout())

	_, ok := m.Auth()
	assert.False(t, ok)

	reloaded := NewFileManager(home)
	_, ok = reloaded.Auth()
	assert.False(t, ok)
}

func TestLogoutOnAlreadyLoggedOutIsNotAnError(t *testing.T) {
	m := NewFileManager(t.TempDir())
	assert.NoError(t, m.Logout())
}

func TestReloadIgnoresMissingOrCorruptFile(t *testing.T) {
	home := t.TempDir()
	m := NewFileManager(home)
	m.Reload()
	_, ok := m.Auth()
	assert.False(t, ok)

	path := filepath.Join(home, "auth.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	m.Reload()
	_, ok = m.Auth()
	assert.False(t, ok)
}

func TestRefreshTokenIsANoOpForAPIKeyAuth(t *testing.T) {
	m := NewFileManager(t.TempDir())
	require.NoError(t, m.LoginAPIKey("sk-test-123"))
	assert.NoError(t, m.RefreshToken(context.Background()))
}
