package auxagent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sangoi-exe/codex/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedNotification struct {
	method string
	params any
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []recordedNotification
}

func (f *fakeNotifier) SendNotification(method string, params any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, recordedNotification{method: method, params: params})
}

func (f *fakeNotifier) find(method string) []recordedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedNotification
	for _, n := range f.got {
		if n.method == method {
			out = append(out, n)
		}
	}
	return out
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSpawnStreamsStdoutAndEmitsExit(t *testing.T) {
	notifier := &fakeNotifier{}
	m := New(2, "echo", "", notifier, testLog(t))

	agentID, err := m.Spawn(context.Background(), "hello from aux", "")
	require.NoError(t, err)
	assert.NotEmpty(t, agentID)

	waitFor(t, func() bool { return len(notifier.find("codex/aux-agent/exit")) == 1 })

	output := notifier.find("codex/aux-agent/output")
	require.NotEmpty(t, output)

	waitFor(t, func() bool { return len(m.List()) == 0 })
}

func TestSpawnFailsWhenPoolIsFull(t *testing.T) {
	notifier := &fakeNotifier{}
	m := New(0, "echo", "", notifier, testLog(t))

	_, err := m.Spawn(context.Background(), "anything", "")
	assert.ErrorIs(t, err, ErrPoolFull)
}

func TestStopUnknownAgentReturnsErrNotFound(t *testing.T) {
	m := New(1, "echo", "", &fakeNotifier{}, testLog(t))
	err := m.Stop("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStopKillsRunningAgent(t *testing.T) {
	notifier := &fakeNotifier{}
	m := New(1, "yes", "", notifier, testLog(t))

	agentID, err := m.Spawn(context.Background(), "ignored", "")
	require.NoError(t, err)

	waitFor(t, func() bool { return len(m.List()) == 1 })

	require.NoError(t, m.Stop(agentID))

	waitFor(t, func() bool { return len(m.List()) == 0 })
}

func TestListReportsRunningAgents(t *testing.T) {
	notifier := &fakeNotifier{}
	m := New(2, "yes", "", notifier, testLog(t))

	agentID, err := m.Spawn(context.Background(), "ignored", "")
	require.NoError(t, err)

	waitFor(t, func() bool { return len(m.List()) == 1 })

	summaries := m.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, agentID, summaries[0].AgentID)
	assert.True(t, summaries[0].Running)

	require.NoError(t, m.Stop(agentID))
	waitFor(t, func() bool { return len(m.List()) == 0 })
}
