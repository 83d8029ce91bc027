// Package auxagent supervises auxiliary-agent subprocesses: independent
// copies of the current executable run in non-interactive mode to offload
// parallel work (spec.md §4.6, glossary "Auxiliary agent"). It is grounded
// on codex-rs's aux_agents.rs, reshaped onto the corpus's goroutine +
// errgroup supervision idiom (see the teacher's agentctl/process.Manager)
// rather than tokio tasks.
package auxagent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/logger"
	"github.com/sangoi-exe/codex/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier is the outbound sink the manager emits streaming events through.
// Satisfied by *jsonrpc.Multiplexer; kept as an interface so the package has
// no import-cycle dependency on jsonrpc.
type Notifier interface {
	SendNotification(method string, params any)
}

// Summary is one entry in a listAuxAgents response.
type Summary struct {
	AgentID ids.AgentID `json:"agentId"`
	Running bool        `json:"running"`
}

type agentState struct {
	cmd *exec.Cmd
	mu  sync.Mutex // guards cmd.Process access for kill/wait races
}

// Manager bounds a pool of auxiliary-agent subprocesses.
type Manager struct {
	maxAgents  int
	currentExe string
	defaultCwd string
	out        Notifier
	log        *logger.Logger

	mu     sync.Mutex
	agents map[ids.AgentID]*agentState
}

// New builds a Manager. currentExe is the binary to re-exec (the embedded
// CLI's `exec` subcommand, out of scope for this repo per spec.md §1).
func New(maxAgents int, currentExe, defaultCwd string, out Notifier, log *logger.Logger) *Manager {
	return &Manager{
		maxAgents:  maxAgents,
		currentExe: currentExe,
		defaultCwd: defaultCwd,
		out:        out,
		log:        log,
		agents:     make(map[ids.AgentID]*agentState),
	}
}

// Spawn launches a new auxiliary agent. Fails with ErrPoolFull once the
// live-agent count reaches maxAgents (spec.md §8 boundary case).
func (m *Manager) Spawn(ctx context.Context, prompt, cwd string) (ids.AgentID, error) {
	m.mu.Lock()
	if len(m.agents) >= m.maxAgents {
		m.mu.Unlock()
		return "", ErrPoolFull
	}
	m.mu.Unlock()

	if cwd == "" {
		cwd = m.defaultCwd
	}

	cmd := exec.CommandContext(ctx, m.currentExe, "exec", "--skip-git-repo-check", "--ask-for-approval", "never", prompt)
	cmd.Dir = cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("auxagent: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("auxagent: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("auxagent: spawn failed: %w", err)
	}

	agentID := ids.NewAgentID()
	state := &agentState{cmd: cmd}

	m.mu.Lock()
	m.agents[agentID] = state
	m.mu.Unlock()

	_, span := tracing.Tracer("codex-mcp-server").Start(ctx, "auxagent.spawn")
	span.SetAttributes(attribute.String("codex.agent_id", string(agentID)))

	var g errgroup.Group
	g.Go(func() error { return m.streamLines(agentID, stdout, "stdout") })
	g.Go(func() error { return m.streamLines(agentID, stderr, "stderr") })

	go func() {
		_ = g.Wait()
		err := cmd.Wait()
		m.out.SendNotification("codex/aux-agent/exit", map[string]any{
			"agent_id": agentID,
			"status":   exitCode(cmd, err),
		})
		span.End()
		m.remove(agentID)
	}()

	return agentID, nil
}

// streamLines forwards r line-by-line as notifications. Its error return
// exists only to satisfy errgroup.Group.Go; a scanner read failure is
// logged, not propagated, since the sibling stream and process-wait still
// need to run to completion.
func (m *Manager) streamLines(agentID ids.AgentID, r io.Reader, stream string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		m.out.SendNotification("codex/aux-agent/output", map[string]any{
			"agent_id": agentID,
			"stream":   stream,
			"line":     string(line),
		})
	}
	if err := scanner.Err(); err != nil {
		m.log.Warn("auxiliary agent stream read error", zap.String("agent_id", string(agentID)), zap.String("stream", stream), zap.Error(err))
	}
	return nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// remove is the sole place an agent leaves the map, mirroring the original's
// "completion task is the unique remover" invariant (spec.md §4.6).
func (m *Manager) remove(agentID ids.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, agentID)
}

// Stop kills the agent's subprocess. ErrNotFound if agentID is unknown.
func (m *Manager) Stop(agentID ids.AgentID) error {
	m.mu.Lock()
	state, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.cmd.Process == nil {
		return nil
	}
	if err := state.cmd.Process.Kill(); err != nil && !isProcessFinished(err) {
		return fmt.Errorf("auxagent: kill failed: %w", err)
	}
	return nil
}

func isProcessFinished(err error) bool {
	return err == os.ErrProcessDone
}

// List probes every live agent's liveness without blocking (spec.md §4.6:
// "non-blocking wait").
func (m *Manager) List() []Summary {
	m.mu.Lock()
	entries := make(map[ids.AgentID]*agentState, len(m.agents))
	for id, st := range m.agents {
		entries[id] = st
	}
	m.mu.Unlock()

	summaries := make([]Summary, 0, len(entries))
	for id, st := range entries {
		st.mu.Lock()
		running := st.cmd.ProcessState == nil
		st.mu.Unlock()
		summaries = append(summaries, Summary{AgentID: id, Running: running})
	}
	return summaries
}
