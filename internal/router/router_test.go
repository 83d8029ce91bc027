package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New()
	var gotMethod string
	d.RegisterFunc("codex.getUserAgent", func(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (any, bool, *jsonrpc.Error) {
		gotMethod = "codex.getUserAgent"
		return map[string]string{"userAgent": "codex-mcp-server/0.1.0"}, false, nil
	})

	result, deferred, rpcErr := d.Dispatch(context.Background(), &jsonrpc.Request{
		JSONRPC: "2.0",
		ID:      jsonrpc.NewIntID(1),
		Method:  "codex.getUserAgent",
	})

	require.Nil(t, rpcErr)
	assert.False(t, deferred)
	assert.Equal(t, "codex.getUserAgent", gotMethod)
	assert.Equal(t, map[string]string{"userAgent": "codex-mcp-server/0.1.0"}, result)
}

func TestDispatchUnknownMethodIsInvalidRequest(t *testing.T) {
	d := New()

	_, deferred, rpcErr := d.Dispatch(context.Background(), &jsonrpc.Request{
		JSONRPC: "2.0",
		ID:      jsonrpc.NewIntID(2),
		Method:  "codex.doesNotExist",
	})

	require.NotNil(t, rpcErr)
	assert.False(t, deferred)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
}

func TestDispatchDeferredHandlerReturnsNilResultAndError(t *testing.T) {
	d := New()
	d.RegisterFunc("codex.interruptConversation", func(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (any, bool, *jsonrpc.Error) {
		return nil, true, nil
	})

	result, deferred, rpcErr := d.Dispatch(context.Background(), &jsonrpc.Request{
		JSONRPC: "2.0",
		ID:      jsonrpc.NewIntID(3),
		Method:  "codex.interruptConversation",
	})

	assert.Nil(t, result)
	assert.True(t, deferred)
	assert.Nil(t, rpcErr)
}

func TestRegisterOverwritesPriorHandler(t *testing.T) {
	d := New()
	d.RegisterFunc("x", func(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (any, bool, *jsonrpc.Error) {
		return "first", false, nil
	})
	d.RegisterFunc("x", func(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (any, bool, *jsonrpc.Error) {
		return "second", false, nil
	})

	result, _, rpcErr := d.Dispatch(context.Background(), &jsonrpc.Request{JSONRPC: "2.0", ID: jsonrpc.NewIntID(4), Method: "x"})
	require.Nil(t, rpcErr)
	assert.Equal(t, "second", result)
}

func TestHasHandler(t *testing.T) {
	d := New()
	assert.False(t, d.HasHandler("codex.userInfo"))

	d.RegisterFunc("codex.userInfo", func(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (any, bool, *jsonrpc.Error) {
		return nil, false, nil
	})
	assert.True(t, d.HasHandler("codex.userInfo"))
}
