package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sangoi-exe/codex/internal/auxagent"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
)

type spawnAuxAgentParams struct {
	Prompt string `json:"prompt"`
	Cwd    string `json:"cwd,omitempty"`
}

// handleSpawnAuxAgent implements spec.md §4.4.f "spawnAuxAgent".
func (p *Processor) handleSpawnAuxAgent(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params spawnAuxAgentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid spawnAuxAgent params: %v", err)
	}
	if params.Prompt == "" {
		return nil, false, jsonrpc.InvalidRequest("prompt is required")
	}

	agentID, err := p.AuxAgents.Spawn(ctx, params.Prompt, params.Cwd)
	if err != nil {
		if errors.Is(err, auxagent.ErrPoolFull) {
			return nil, false, jsonrpc.ResourceExhausted("%v", err)
		}
		return nil, false, jsonrpc.Internal("failed to spawn auxiliary agent: %v", err)
	}
	return map[string]any{"agentId": agentID}, false, nil
}

type stopAuxAgentParams struct {
	AgentID ids.AgentID `json:"agentId"`
}

// handleStopAuxAgent implements spec.md §4.4.f "stopAuxAgent".
func (p *Processor) handleStopAuxAgent(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params stopAuxAgentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid stopAuxAgent params: %v", err)
	}

	if err := p.AuxAgents.Stop(params.AgentID); err != nil {
		if errors.Is(err, auxagent.ErrNotFound) {
			return nil, false, jsonrpc.NotFound("%v", err)
		}
		return nil, false, jsonrpc.Internal("failed to stop auxiliary agent: %v", err)
	}
	return map[string]any{}, false, nil
}

// handleListAuxAgents implements spec.md §4.4.f "listAuxAgents".
func (p *Processor) handleListAuxAgents(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	return map[string]any{"agents": p.AuxAgents.List()}, false, nil
}
