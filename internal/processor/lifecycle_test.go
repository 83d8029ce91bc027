package processor

import (
	"context"
	"testing"

	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleResumeConversationFiltersNonPlainMessages(t *testing.T) {
	conv := newFakeConversation("conv-1")
	replay := []engine.ReplayMessage{
		{Kind: engine.UserMessagePlain, Item: engine.InputItem{Kind: engine.InputItemText, Text: "hello"}},
		{Kind: engine.UserMessageOther, Item: engine.InputItem{Kind: engine.InputItemText, Text: "<system instructions>"}},
		{Kind: engine.UserMessagePlain, Item: engine.InputItem{Kind: engine.InputItemText, Text: "second plain message"}},
	}
	eng := &fakeEngine{
		resumeConv: func(ctx context.Context, path string, overrides engine.TurnOverrides) (engine.Conversation, engine.RolloutInfo, []engine.ReplayMessage, error) {
			assert.Equal(t, "/tmp/rollout.jsonl", path)
			return conv, engine.RolloutInfo{ConversationID: "conv-1", Model: "gpt-5-codex"}, replay, nil
		},
	}
	p, _ := newTestProcessor(t, eng)

	params := marshal(t, map[string]any{"path": "/tmp/rollout.jsonl"})
	result, deferred, rpcErr := p.handleResumeConversation(context.Background(), jsonrpc.NewIntID(1), params)
	require.Nil(t, rpcErr)
	assert.False(t, deferred)

	body := result.(map[string]any)
	messages := body["initialMessages"].([]engine.InputItem)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, "second plain message", messages[1].Text)

	stored, ok := p.getConversation("conv-1")
	require.True(t, ok)
	assert.Equal(t, conv, stored)
}

func TestHandleResumeConversationRequiresPath(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	_, _, rpcErr := p.handleResumeConversation(context.Background(), jsonrpc.NewIntID(1), marshal(t, map[string]any{}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
}

func TestFilterPlainUserMessagesDropsNonPlain(t *testing.T) {
	in := []engine.ReplayMessage{
		{Kind: engine.UserMessagePlain, Item: engine.InputItem{Text: "a"}},
		{Kind: engine.UserMessageOther, Item: engine.InputItem{Text: "b"}},
	}
	out := filterPlainUserMessages(in)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Text)
}

func TestHandleListConversationsReturnsEmptyItemsWhenNoSessions(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeEngine{})

	result, _, rpcErr := p.handleListConversations(context.Background(), jsonrpc.NewIntID(1), nil)
	require.Nil(t, rpcErr)
	assert.Empty(t, result.(map[string]any)["items"])
	_, hasCursor := result.(map[string]any)["nextCursor"]
	assert.False(t, hasCursor)
}
