package rollout

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSession(t *testing.T, dir, id, timestamp, userText string) string {
	t.Helper()
	path := filepath.Join(dir, id+".jsonl")
	content := `{"id":"` + id + `","timestamp":"` + timestamp + `"}` + "\n" +
		`{"role":"user","content":[{"type":"input_text","text":"` + userText + `"}]}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListConversationsOrdersAndPaginates(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "sessions"), 0o755))
	store := New(home)

	writeSession(t, store.SessionsDir(), "a-session", "2026-01-01T00:00:00Z", "hello a")
	writeSession(t, store.SessionsDir(), "b-session", "2026-01-02T00:00:00Z", "hello b")
	writeSession(t, store.SessionsDir(), "c-session", "2026-01-03T00:00:00Z", "hello c")

	page, cursor, err := store.ListConversations(2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a-session", string(page[0].ConversationID))
	assert.Equal(t, "b-session", string(page[1].ConversationID))
	assert.Equal(t, "b-session.jsonl", cursor)

	page2, cursor2, err := store.ListConversations(2, cursor)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "c-session", string(page2[0].ConversationID))
	assert.Empty(t, cursor2)
}

func TestListConversationsMissingSessionsDirIsEmptyNotError(t *testing.T) {
	store := New(t.TempDir())
	page, cursor, err := store.ListConversations(10, "")
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Empty(t, cursor)
}

func TestListConversationsDefaultsPageSize(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "sessions"), 0o755))
	store := New(home)
	writeSession(t, store.SessionsDir(), "only-session", "2026-01-01T00:00:00Z", "hi")

	page, _, err := store.ListConversations(0, "")
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestExtractConversationSummarySkipsWrapperMessages(t *testing.T) {
	head := []byte(`{"id":"s1","timestamp":"t"}`)
	wrapper := []byte(`{"role":"user","content":[{"type":"input_text","text":"<environment_context>ignore</environment_context>"}]}`)
	real := []byte(`{"role":"user","content":[{"type":"input_text","text":"USER_MESSAGE_BEGIN actual question"}]}`)

	summary, ok := extractConversationSummary("path", rawLines(head, wrapper, real))
	require.True(t, ok)
	assert.Equal(t, "actual question", summary.Preview)
	assert.Equal(t, "s1", string(summary.ConversationID))
}

func TestExtractConversationSummaryNoUserMessageFails(t *testing.T) {
	head := []byte(`{"id":"s1","timestamp":"t"}`)
	_, ok := extractConversationSummary("path", rawLines(head))
	assert.False(t, ok)
}

func TestExtractConversationSummaryMissingMetaFails(t *testing.T) {
	bad := []byte(`{"not":"meta"}`)
	_, ok := extractConversationSummary("path", rawLines(bad))
	assert.False(t, ok)
}

func TestExtractPreviewTrimsAfterMarker(t *testing.T) {
	assert.Equal(t, "the real prompt", ExtractPreview("context stuffUSER_MESSAGE_BEGIN the real prompt"))
	assert.Equal(t, "no marker here", ExtractPreview("no marker here"))
}

func TestIsPlainUserMessage(t *testing.T) {
	assert.True(t, isPlainUserMessage("just a question"))
	assert.False(t, isPlainUserMessage("<environment_context>stuff</environment_context>"))
	assert.False(t, isPlainUserMessage("<user_instructions>stuff</user_instructions>"))
}

func TestValidateArchivePathAcceptsMatchingFile(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "sessions"), 0o755))
	store := New(home)
	path := writeSession(t, store.SessionsDir(), "conv-1", "t", "hi")

	resolved, err := store.ValidateArchivePath(path, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestValidateArchivePathRejectsOutsideSessionsDir(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "sessions"), 0o755))
	store := New(home)

	outside := filepath.Join(t.TempDir(), "conv-1.jsonl")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0o644))

	_, err := store.ValidateArchivePath(outside, "conv-1")
	assert.Error(t, err)
}

func TestValidateArchivePathRejectsMismatchedConversationID(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "sessions"), 0o755))
	store := New(home)
	path := writeSession(t, store.SessionsDir(), "conv-1", "t", "hi")

	_, err := store.ValidateArchivePath(path, "conv-2")
	assert.Error(t, err)
}

func TestArchiveMovesFileIntoArchivedSessionsDir(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "sessions"), 0o755))
	store := New(home)
	path := writeSession(t, store.SessionsDir(), "conv-1", "t", "hi")

	require.NoError(t, store.Archive(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	archived := filepath.Join(store.ArchivedSessionsDir(), "conv-1.jsonl")
	_, err = os.Stat(archived)
	assert.NoError(t, err)
}

func rawLines(lines ...[]byte) []json.RawMessage {
	out := make([]json.RawMessage, len(lines))
	for i, l := range lines {
		out[i] = json.RawMessage(l)
	}
	return out
}
