package processor

import (
	"context"
	"testing"
	"time"

	"github.com/sangoi-exe/codex/internal/auxagent"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/rollout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessorWithAuxAgents(t *testing.T, maxAgents int) *Processor {
	t.Helper()
	mux, writer, _ := newTestMux()
	t.Cleanup(writer.Stop)

	auxAgents := auxagent.New(maxAgents, "echo", "", mux, testLogger())
	cfg := testConfig(t)
	cfg.Server.MaxAuxAgents = maxAgents

	return New(mux, &fakeEngine{}, rollout.New(t.TempDir()), auxAgents, &fakeAuth{}, cfg, testLogger(), "codex-mcp-server", "0.1.0")
}

func TestHandleSpawnAuxAgentRequiresPrompt(t *testing.T) {
	p := newTestProcessorWithAuxAgents(t, 2)

	_, _, rpcErr := p.handleSpawnAuxAgent(context.Background(), jsonrpc.NewIntID(1), marshal(t, map[string]any{}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
}

func TestHandleSpawnAuxAgentSucceedsAndListsIt(t *testing.T) {
	p := newTestProcessorWithAuxAgents(t, 2)

	params := marshal(t, map[string]any{"prompt": "do something"})
	result, _, rpcErr := p.handleSpawnAuxAgent(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr)
	agentID := result.(map[string]any)["agentId"]
	assert.NotEmpty(t, agentID)

	listResult, _, rpcErr := p.handleListAuxAgents(context.Background(), jsonrpc.NewIntID(2), nil)
	require.Nil(t, rpcErr)
	agents := listResult.(map[string]any)["agents"].([]auxagent.Summary)
	assert.Len(t, agents, 1)
}

func TestHandleSpawnAuxAgentReturnsResourceExhaustedWhenPoolFull(t *testing.T) {
	p := newTestProcessorWithAuxAgents(t, 0)

	params := marshal(t, map[string]any{"prompt": "do something"})
	_, _, rpcErr := p.handleSpawnAuxAgent(context.Background(), jsonrpc.NewIntID(1), params)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInternalError, rpcErr.Code)
}

func TestHandleStopAuxAgentReturnsNotFoundForUnknownID(t *testing.T) {
	p := newTestProcessorWithAuxAgents(t, 2)

	params := marshal(t, map[string]any{"agentId": "does-not-exist"})
	_, _, rpcErr := p.handleStopAuxAgent(context.Background(), jsonrpc.NewIntID(1), params)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidParams, rpcErr.Code)
}

func TestHandleStopAuxAgentStopsRunningAgent(t *testing.T) {
	p := newTestProcessorWithAuxAgents(t, 2)
	p.AuxAgents = auxagent.New(2, "yes", "", p.Mux, testLogger())

	spawnResult, _, rpcErr := p.handleSpawnAuxAgent(context.Background(), jsonrpc.NewIntID(1), marshal(t, map[string]any{"prompt": "ignored"}))
	require.Nil(t, rpcErr)
	agentID := spawnResult.(map[string]any)["agentId"]

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.AuxAgents.List()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	params := marshal(t, map[string]any{"agentId": agentID})
	_, _, rpcErr = p.handleStopAuxAgent(context.Background(), jsonrpc.NewIntID(2), params)
	require.Nil(t, rpcErr)
}
