// Package rollout is a JSONL-file stand-in for the external rollout (session
// log) store. Production auth/config/rollout persistence is explicitly out
// of scope for this repo (spec.md §1); this package gives the lifecycle
// handlers something real to call so listConversations/archiveConversation
// are fully exercised rather than stubbed.
package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sangoi-exe/codex/internal/ids"
)

// userMessageBeginMarker mirrors the original's USER_MESSAGE_BEGIN constant:
// text before it (prior context the agent injects) is stripped from the
// listConversations preview.
const userMessageBeginMarker = "USER_MESSAGE_BEGIN"

// sessionMeta is the first line of every rollout file.
type sessionMeta struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// responseItem is a generic rollout line; only plain user messages matter
// for preview extraction.
type responseItem struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content,omitempty"`
}

// Summary is one entry in a listConversations page.
type Summary struct {
	ConversationID ids.ConversationID `json:"conversationId"`
	Timestamp      string             `json:"timestamp,omitempty"`
	Path           string             `json:"path"`
	Preview        string             `json:"preview"`
}

// Store locates rollout files under codexHome/sessions and archives them
// into codexHome/archived_sessions.
type Store struct {
	codexHome string
}

// New builds a Store rooted at codexHome.
func New(codexHome string) *Store {
	return &Store{codexHome: codexHome}
}

// SessionsDir is the canonical directory live rollout files live in.
func (s *Store) SessionsDir() string { return filepath.Join(s.codexHome, "sessions") }

// ArchivedSessionsDir is where Archive moves files.
func (s *Store) ArchivedSessionsDir() string { return filepath.Join(s.codexHome, "archived_sessions") }

// ListConversations returns up to pageSize summaries whose rollout files
// sort lexicographically after cursor (an opaque, round-tripped filename),
// plus a next_cursor for the following page.
func (s *Store) ListConversations(pageSize int, cursor string) ([]Summary, string, error) {
	if pageSize <= 0 {
		pageSize = 25
	}

	entries, err := os.ReadDir(s.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("rollout: reading sessions dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	start := 0
	if cursor != "" {
		for i, n := range names {
			if n > cursor {
				start = i
				break
			}
			start = i + 1
		}
	}

	summaries := make([]Summary, 0, pageSize)
	var nextCursor string
	for i := start; i < len(names) && len(summaries) < pageSize; i++ {
		name := names[i]
		head, err := readHead(filepath.Join(s.SessionsDir(), name), 50)
		if err != nil {
			continue
		}
		summary, ok := extractConversationSummary(filepath.Join(s.SessionsDir(), name), head)
		if !ok {
			continue
		}
		summaries = append(summaries, summary)
		nextCursor = name
	}
	if start+len(summaries) >= len(names) {
		nextCursor = ""
	}

	return summaries, nextCursor, nil
}

// readHead reads up to n JSON lines from a rollout file.
func readHead(path string, n int) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var lines []json.RawMessage
	for scanner.Scan() && len(lines) < n {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
	}
	return lines, scanner.Err()
}

// extractConversationSummary mirrors the original's preview extraction:
// the first line must decode as sessionMeta; the preview is the first
// plain user message, trimmed after USER_MESSAGE_BEGIN if present.
func extractConversationSummary(path string, head []json.RawMessage) (Summary, bool) {
	if len(head) == 0 {
		return Summary{}, false
	}
	var meta sessionMeta
	if err := json.Unmarshal(head[0], &meta); err != nil || meta.ID == "" {
		return Summary{}, false
	}

	var preview string
	found := false
	for _, raw := range head {
		var item responseItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if item.Role != "user" && item.Kind != "user_message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type != "input_text" && c.Type != "text" {
				continue
			}
			if !isPlainUserMessage(c.Text) {
				continue
			}
			preview = c.Text
			found = true
			break
		}
		if found {
			break
		}
	}
	if !found {
		return Summary{}, false
	}

	preview = ExtractPreview(preview)

	return Summary{
		ConversationID: ids.ConversationID(meta.ID),
		Timestamp:      meta.Timestamp,
		Path:           path,
		Preview:        preview,
	}, true
}

// isPlainUserMessage rejects wrapper text the engine injects for
// environment context or system-level instructions, recognized by a
// leading XML-ish tag the way the original's InputMessageKind classifier
// does (best-effort: anything not starting with a known wrapper tag is
// plain).
func isPlainUserMessage(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, tag := range []string{"<environment_context>", "<user_instructions>"} {
		if strings.HasPrefix(trimmed, tag) {
			return false
		}
	}
	return true
}

// ExtractPreview trims text to the substring after USER_MESSAGE_BEGIN, if
// present, matching the round-trip law in spec.md §8.
func ExtractPreview(text string) string {
	if idx := strings.Index(text, userMessageBeginMarker); idx != -1 {
		return strings.TrimSpace(text[idx+len(userMessageBeginMarker):])
	}
	return text
}

// ValidateArchivePath enforces spec.md §4.4.a: the rollout path must
// canonicalize inside SessionsDir and its filename must be
// "{conversationId}.jsonl".
func (s *Store) ValidateArchivePath(rolloutPath string, conversationID ids.ConversationID) (string, error) {
	abs, err := filepath.Abs(rolloutPath)
	if err != nil {
		return "", fmt.Errorf("rollout: resolving path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		resolved = abs
	}

	sessionsDir, err := filepath.Abs(s.SessionsDir())
	if err != nil {
		return "", fmt.Errorf("rollout: resolving sessions dir: %w", err)
	}
	if resolvedDir, err := filepath.EvalSymlinks(sessionsDir); err == nil {
		sessionsDir = resolvedDir
	}

	rel, err := filepath.Rel(sessionsDir, resolved)
	if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
		return "", fmt.Errorf("rollout path %q must be in sessions directory", rolloutPath)
	}

	want := string(conversationID) + ".jsonl"
	if filepath.Base(resolved) != want {
		return "", fmt.Errorf("rollout path %q must end with %q", rolloutPath, want)
	}

	return resolved, nil
}

// Archive atomically moves a validated rollout path into ArchivedSessionsDir.
func (s *Store) Archive(resolvedPath string) error {
	if err := os.MkdirAll(s.ArchivedSessionsDir(), 0o755); err != nil {
		return fmt.Errorf("rollout: creating archived sessions dir: %w", err)
	}
	dest := filepath.Join(s.ArchivedSessionsDir(), filepath.Base(resolvedPath))
	if err := os.Rename(resolvedPath, dest); err != nil {
		return fmt.Errorf("rollout: archiving rollout file: %w", err)
	}
	return nil
}
