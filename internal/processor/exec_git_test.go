package processor

import (
	"context"
	"testing"

	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleExecOneOffCommandCapturesStdoutAndExitCode(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{"command": []string{"echo", "hello"}})
	result, deferred, rpcErr := p.handleExecOneOffCommand(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr)
	assert.False(t, deferred)

	body := result.(map[string]any)
	assert.Equal(t, "hello\n", body["stdout"])
	assert.Equal(t, 0, body["exitCode"])
	_, hasError := body["error"]
	assert.False(t, hasError)
}

func TestHandleExecOneOffCommandFailsOpenOnNonZeroExit(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{"command": []string{"sh", "-c", "exit 3"}})
	result, _, rpcErr := p.handleExecOneOffCommand(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr, "a failing command must not become an RPC error")

	body := result.(map[string]any)
	assert.Equal(t, 3, body["exitCode"])
	assert.NotEmpty(t, body["error"])
}

func TestHandleExecOneOffCommandRequiresNonEmptyCommand(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{"command": []string{}})
	_, _, rpcErr := p.handleExecOneOffCommand(context.Background(), jsonrpc.NewIntID(1), params)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
}

func TestHandleExecOneOffCommandRespectsTimeout(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{"command": []string{"sleep", "5"}, "timeoutMs": 50})
	result, _, rpcErr := p.handleExecOneOffCommand(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr)

	body := result.(map[string]any)
	assert.NotEqual(t, 0, body["exitCode"])
}

func TestHandleGitDiffToRemoteRequiresCwd(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	_, _, rpcErr := p.handleGitDiffToRemote(context.Background(), jsonrpc.NewIntID(1), marshal(t, map[string]any{}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
}

func TestHandleGitDiffToRemoteFailsWithoutUpstream(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{"cwd": t.TempDir()})
	_, _, rpcErr := p.handleGitDiffToRemote(context.Background(), jsonrpc.NewIntID(1), params)
	require.NotNil(t, rpcErr, "a directory with no git remote must surface as an error, not a panic")
}
