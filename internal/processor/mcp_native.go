package processor

import (
	"context"
	"encoding/json"

	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/toolcatalog"
	"go.uber.org/zap"
)

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ClientInfo      clientInfo `json:"clientInfo"`
	ProtocolVersion string     `json:"protocolVersion"`
}

// handleInitialize is idempotence-sensitive (spec.md §4.3): the first call
// succeeds and records client info; any later call is InvalidRequest.
func (p *Processor) handleInitialize(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	if !p.initialized.CompareAndSwap(false, true) {
		return nil, false, jsonrpc.InvalidRequest("initialize must only be called once per session")
	}

	var params initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, false, jsonrpc.InvalidRequest("invalid initialize params: %v", err)
		}
	}

	p.initMu.Lock()
	p.clientName = params.ClientInfo.Name
	p.clientVersion = params.ClientInfo.Version
	p.initMu.Unlock()

	return map[string]any{
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": true},
		},
		"protocolVersion": params.ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    p.serverName,
			"version": p.serverVersion,
		},
	}, false, nil
}

func (p *Processor) handlePing(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	return map[string]any{}, false, nil
}

func (p *Processor) handleListTools(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	tools, err := toolcatalog.ListTools(p.toolOptions())
	if err != nil {
		return nil, false, jsonrpc.Internal("failed to compute tool catalog: %v", err)
	}
	return map[string]any{"tools": tools}, false, nil
}

// handleStub logs the params of a no-op native MCP method and returns an
// empty success result (spec.md §4.3 step 2: "stubs for resource/prompt
// subsystems that simply log params").
func (p *Processor) handleStub(method string) func(context.Context, jsonrpc.RequestID, json.RawMessage) (any, bool, *jsonrpc.Error) {
	return func(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
		p.Log.Debug("stub method invoked", zap.String("method", method), zap.ByteString("params", raw))
		return map[string]any{}, false, nil
	}
}
