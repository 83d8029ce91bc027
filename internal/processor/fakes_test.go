package processor

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sangoi-exe/codex/internal/auth"
	"github.com/sangoi-exe/codex/internal/config"
	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/logger"
)

// fakeConversation is a hand-written engine.Conversation double: no mocking
// framework, matching the corpus's plain test-double style.
type fakeConversation struct {
	id ids.ConversationID

	mu        sync.Mutex
	events    []engine.Event
	pos       int
	submitted []engine.Op
	submitErr error
}

func newFakeConversation(id ids.ConversationID, events ...engine.Event) *fakeConversation {
	return &fakeConversation{id: id, events: events}
}

func (f *fakeConversation) ID() ids.ConversationID { return f.id }

func (f *fakeConversation) Submit(ctx context.Context, op engine.Op) (engine.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return engine.Ack{}, f.submitErr
	}
	f.submitted = append(f.submitted, op)
	return engine.Ack{}, nil
}

func (f *fakeConversation) NextEvent(ctx context.Context) (engine.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.events) {
		return engine.Event{}, io.EOF
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, nil
}

func (f *fakeConversation) submittedOps() []engine.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Op, len(f.submitted))
	copy(out, f.submitted)
	return out
}

// fakeEngine is a hand-written engine.Engine double.
type fakeEngine struct {
	newConversation func(ctx context.Context, overrides engine.TurnOverrides) (engine.Conversation, engine.RolloutInfo, error)
	resumeConv      func(ctx context.Context, path string, overrides engine.TurnOverrides) (engine.Conversation, engine.RolloutInfo, []engine.ReplayMessage, error)
}

func (e *fakeEngine) NewConversation(ctx context.Context, overrides engine.TurnOverrides) (engine.Conversation, engine.RolloutInfo, error) {
	return e.newConversation(ctx, overrides)
}

func (e *fakeEngine) ResumeConversation(ctx context.Context, path string, overrides engine.TurnOverrides) (engine.Conversation, engine.RolloutInfo, []engine.ReplayMessage, error) {
	return e.resumeConv(ctx, path, overrides)
}

// fakeAuth is a hand-written auth.Manager double.
type fakeAuth struct {
	mu         sync.Mutex
	info       auth.Info
	authed     bool
	loginErr   error
	logoutErr  error
	refreshErr error
	reloadN    int
	refreshN   int
}

func (a *fakeAuth) Auth() (auth.Info, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info, a.authed
}

func (a *fakeAuth) LoginAPIKey(apiKey string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loginErr != nil {
		return a.loginErr
	}
	a.info = auth.Info{Mode: auth.MethodAPIKey, Token: apiKey}
	a.authed = true
	return nil
}

func (a *fakeAuth) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.logoutErr != nil {
		return a.logoutErr
	}
	a.authed = false
	a.info = auth.Info{}
	return nil
}

func (a *fakeAuth) Reload() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reloadN++
}

func (a *fakeAuth) reloadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reloadN
}

func (a *fakeAuth) RefreshToken(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshN++
	return a.refreshErr
}

func (a *fakeAuth) refreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshN
}

func testLogger() *logger.Logger {
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	if err != nil {
		panic(err)
	}
	return log
}

// newTestMux builds a real *jsonrpc.Multiplexer writing onto an in-memory
// buffer, so processor handlers can call p.Mux.SendNotification/SendRequest
// without a live stdio transport.
func newTestMux() (*jsonrpc.Multiplexer, *jsonrpc.Writer, *bytes.Buffer) {
	var buf bytes.Buffer
	writer := jsonrpc.NewWriter(&buf, testLogger())
	go writer.Run()
	mux := jsonrpc.NewMultiplexer(writer)
	return mux, writer, &buf
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			ExposeAllTools: false,
			MaxAuxAgents:   0,
		},
	}
	cfg.SetPath(filepath.Join(t.TempDir(), "config.yaml"))
	return cfg
}
