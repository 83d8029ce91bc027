package processor

import (
	"context"
	"testing"
	"time"

	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCallToolCodexStartsStreamingSession(t *testing.T) {
	conv := newFakeConversation("conv-1", engine.Event{ID: "e1", Msg: engine.EventMsg{Kind: engine.EventTaskComplete}})
	eng := &fakeEngine{
		newConversation: func(ctx context.Context, overrides engine.TurnOverrides) (engine.Conversation, engine.RolloutInfo, error) {
			return conv, engine.RolloutInfo{ConversationID: "conv-1"}, nil
		},
	}
	p, _ := newTestProcessor(t, eng)

	params := marshal(t, map[string]any{
		"name":      "codex",
		"arguments": map[string]any{"prompt": "do the thing"},
	})
	result, deferred, rpcErr := p.handleCallTool(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr)
	assert.True(t, deferred)
	assert.Nil(t, result)

	waitForCondition(t, func() bool { return len(conv.submittedOps()) == 1 })
	ops := conv.submittedOps()
	assert.Equal(t, engine.OpUserTurn, ops[0].Kind)
	assert.Equal(t, "do the thing", ops[0].UserTurnItems[0].Text)
}

func TestHandleCallToolCodexRequiresPrompt(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{"name": "codex", "arguments": map[string]any{}})
	_, deferred, rpcErr := p.handleCallTool(context.Background(), jsonrpc.NewIntID(1), params)
	require.NotNil(t, rpcErr)
	assert.False(t, deferred)
}

func TestHandleCallToolCodexReplyRequiresKnownConversation(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{
		"name":      "codex-reply",
		"arguments": map[string]any{"conversationId": "does-not-exist", "prompt": "go on"},
	})
	_, _, rpcErr := p.handleCallTool(context.Background(), jsonrpc.NewIntID(1), params)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
}

func TestHandleCallToolCodexReplyContinuesExistingConversation(t *testing.T) {
	conv := newFakeConversation("conv-1", engine.Event{ID: "e1", Msg: engine.EventMsg{Kind: engine.EventTaskComplete}})
	p, _ := newTestProcessor(t, &fakeEngine{})
	p.putConversation(conv)

	params := marshal(t, map[string]any{
		"name":      "codex-reply",
		"arguments": map[string]any{"conversationId": "conv-1", "prompt": "go on"},
	})
	_, deferred, rpcErr := p.handleCallTool(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr)
	assert.True(t, deferred)

	waitForCondition(t, func() bool { return len(conv.submittedOps()) == 1 })
}

func TestHandleCallToolDelegatesNonStreamingNameToExtendedHandler(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{
		"name":      "codex.getUserAgent",
		"arguments": map[string]any{},
	})
	result, deferred, rpcErr := p.handleCallTool(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr)
	assert.False(t, deferred)

	body := result.(map[string]any)
	assert.Contains(t, body, "content")
	assert.Contains(t, body, "structuredContent")
}

func TestHandleCallToolUnknownNameIsInvalidRequest(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	params := marshal(t, map[string]any{"name": "not-a-real-tool", "arguments": map[string]any{}})
	_, _, rpcErr := p.handleCallTool(context.Background(), jsonrpc.NewIntID(1), params)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
}

func TestDelegateCallToolWrapsHandlerErrorAsIsError(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	result, deferred, rpcErr := p.delegateCallTool(context.Background(), jsonrpc.NewIntID(1), "codex.sendUserMessage",
		marshal(t, map[string]any{"conversationId": "does-not-exist", "items": []any{}}))
	require.Nil(t, rpcErr)
	assert.False(t, deferred)

	body := result.(map[string]any)
	assert.Equal(t, true, body["isError"])
}

func TestExtendedHandlerForExecCommandAliasesExecOneOffCommand(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	aliasHandler, ok := p.extendedHandlerFor("codex.execCommand")
	require.True(t, ok)
	canonicalHandler, ok := p.extendedHandlerFor("codex.execOneOffCommand")
	require.True(t, ok)

	argsAlias := marshal(t, map[string]any{"command": []string{"echo", "alias"}})
	argsCanon := marshal(t, map[string]any{"command": []string{"echo", "canonical"}})

	r1, _, err1 := aliasHandler(context.Background(), jsonrpc.NewIntID(1), argsAlias)
	require.Nil(t, err1)
	r2, _, err2 := canonicalHandler(context.Background(), jsonrpc.NewIntID(2), argsCanon)
	require.Nil(t, err2)

	assert.Equal(t, "alias\n", r1.(map[string]any)["stdout"])
	assert.Equal(t, "canonical\n", r2.(map[string]any)["stdout"])
}

func TestExtendedHandlerForAuxAgentMethodsAbsentWithoutPool(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})
	_, ok := p.extendedHandlerFor("codex.spawnAuxAgent")
	assert.False(t, ok)
}

func TestStreamSessionUntracksRequestOnTaskComplete(t *testing.T) {
	conv := newFakeConversation("conv-1", engine.Event{ID: "e1", Msg: engine.EventMsg{Kind: engine.EventTaskComplete}})
	p, _ := newTestProcessor(t, &fakeEngine{})
	p.putConversation(conv)

	reqID := jsonrpc.NewIntID(99)
	p.trackRunningRequest(reqID, conv.ID())
	p.streamSession(reqID, conv)

	_, stillTracked := p.lookupRunningRequest(reqID.String())
	assert.False(t, stillTracked)
}

func TestStreamSessionUntracksRequestOnTurnAborted(t *testing.T) {
	conv := newFakeConversation("conv-1", engine.Event{
		ID:  "e1",
		Msg: engine.EventMsg{Kind: engine.EventTurnAborted, TurnAborted: &engine.TurnAbortedPayload{Reason: "interrupted"}},
	})
	p, _ := newTestProcessor(t, &fakeEngine{})
	p.putConversation(conv)

	reqID := jsonrpc.NewIntID(100)
	p.trackRunningRequest(reqID, conv.ID())
	p.streamSession(reqID, conv)

	_, stillTracked := p.lookupRunningRequest(reqID.String())
	assert.False(t, stillTracked)
}

func waitForCondition(t *testing.T, cond func() bool) {
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
