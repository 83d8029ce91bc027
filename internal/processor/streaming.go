package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/subscription"
	"go.uber.org/zap"
)

// callToolParams is the native MCP tools/call envelope.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// codexToolParams is the argument shape of the "codex" tool (spec.md
// §4.4.c): it opens a fresh conversation and starts a turn in one call.
type codexToolParams struct {
	Prompt         string `json:"prompt"`
	Cwd            string `json:"cwd,omitempty"`
	Model          string `json:"model,omitempty"`
	ApprovalPolicy string `json:"approvalPolicy,omitempty"`
	SandboxPolicy  string `json:"sandboxPolicy,omitempty"`
}

// codexReplyToolParams is the argument shape of "codex-reply": it continues
// an existing conversation's turn.
type codexReplyToolParams struct {
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
}

// handleCallTool implements spec.md §4.4.c's "polymorphic requests" design:
// "codex" and "codex-reply" each open or continue a conversation and hand
// its event stream off to a background streaming session that replies to
// this very request once the turn reaches a terminal state; every other
// registered tool name is answered synchronously by delegating to the same
// handler function the extended codex.* method of the same shape already
// uses, just re-wrapped as a CallToolResult.
func (p *Processor) handleCallTool(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params callToolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid tools/call params: %v", err)
	}

	switch params.Name {
	case "codex":
		return p.startCodexToolSession(ctx, id, params.Arguments)
	case "codex-reply":
		return p.continueCodexToolSession(ctx, id, params.Arguments)
	default:
		return p.delegateCallTool(ctx, id, params.Name, params.Arguments)
	}
}

func (p *Processor) startCodexToolSession(ctx context.Context, id jsonrpc.RequestID, argsRaw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var args codexToolParams
	if err := json.Unmarshal(argsRaw, &args); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid codex tool arguments: %v", err)
	}
	if args.Prompt == "" {
		return nil, false, jsonrpc.InvalidRequest("prompt is required")
	}

	overrides := engine.TurnOverrides{
		Cwd:            args.Cwd,
		Model:          args.Model,
		ApprovalPolicy: args.ApprovalPolicy,
		SandboxPolicy:  args.SandboxPolicy,
	}

	conv, _, err := p.Engine.NewConversation(ctx, overrides)
	if err != nil {
		return nil, false, jsonrpc.Internal("error creating conversation: %v", err)
	}
	p.putConversation(conv)

	turn := engine.Op{
		Kind:          engine.OpUserTurn,
		UserTurnItems: []engine.InputItem{{Kind: engine.InputItemText, Text: args.Prompt}},
	}
	if _, err := conv.Submit(ctx, turn); err != nil {
		return nil, false, jsonrpc.Internal("failed to submit user turn: %v", err)
	}

	p.trackRunningRequest(id, conv.ID())
	go p.streamSession(id, conv)
	return nil, true, nil
}

func (p *Processor) continueCodexToolSession(ctx context.Context, id jsonrpc.RequestID, argsRaw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var args codexReplyToolParams
	if err := json.Unmarshal(argsRaw, &args); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid codex-reply tool arguments: %v", err)
	}
	if args.ConversationID == "" || args.Prompt == "" {
		return nil, false, jsonrpc.InvalidRequest("conversationId and prompt are required")
	}

	conv, ok := p.getConversation(ids.ConversationID(args.ConversationID))
	if !ok {
		return nil, false, jsonrpc.InvalidRequest("conversation not found: %s", args.ConversationID)
	}

	turn := engine.Op{
		Kind:          engine.OpUserTurn,
		UserTurnItems: []engine.InputItem{{Kind: engine.InputItemText, Text: args.Prompt}},
	}
	if _, err := conv.Submit(ctx, turn); err != nil {
		return nil, false, jsonrpc.Internal("failed to submit user turn: %v", err)
	}

	p.trackRunningRequest(id, conv.ID())
	go p.streamSession(id, conv)
	return nil, true, nil
}

// delegateCallTool answers a non-streaming tool name by running it through
// the already-registered extended handler for the same method (spec.md
// §4.4.c: the two entry points drive identical internal logic), then
// re-wrapping the result as a CallToolResult.
func (p *Processor) delegateCallTool(ctx context.Context, id jsonrpc.RequestID, name string, argsRaw json.RawMessage) (any, bool, *jsonrpc.Error) {
	handler, ok := p.extendedHandlerFor(name)
	if !ok {
		return nil, false, jsonrpc.InvalidRequest("unknown tool: %s", name)
	}

	result, deferred, rpcErr := handler(ctx, id, argsRaw)
	if deferred {
		return nil, true, nil
	}
	if rpcErr != nil {
		return map[string]any{
			"isError": true,
			"content": []map[string]string{{"type": "text", "text": rpcErr.Message}},
		}, false, nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, false, jsonrpc.Internal("failed to encode tool result: %v", err)
	}
	return map[string]any{
		"content":           []map[string]string{{"type": "text", "text": string(encoded)}},
		"structuredContent": result,
	}, false, nil
}

// extendedHandlerFor maps a callTool tool name onto the same handler
// function its codex.* sibling method is registered with.
func (p *Processor) extendedHandlerFor(name string) (func(context.Context, jsonrpc.RequestID, json.RawMessage) (any, bool, *jsonrpc.Error), bool) {
	handlers := map[string]func(context.Context, jsonrpc.RequestID, json.RawMessage) (any, bool, *jsonrpc.Error){
		"codex.newConversation":           p.handleNewConversation,
		"codex.sendUserMessage":           p.handleSendUserMessage,
		"codex.sendUserTurn":              p.handleSendUserTurn,
		"codex.interruptConversation":     p.handleInterruptConversation,
		"codex.addConversationListener":   p.handleAddConversationListener,
		"codex.removeConversationListener": p.handleRemoveConversationListener,
		"codex.listConversations":         p.handleListConversations,
		"codex.resumeConversation":        p.handleResumeConversation,
		"codex.archiveConversation":       p.handleArchiveConversation,
		"codex.loginApiKey":               p.handleLoginAPIKey,
		"codex.loginChatGpt":              p.handleLoginChatGpt,
		"codex.cancelLoginChatGpt":        p.handleCancelLoginChatGpt,
		"codex.logoutChatGpt":             p.handleLogoutChatGpt,
		"codex.getAuthStatus":             p.handleGetAuthStatus,
		"codex.getUserSavedConfig":        p.handleGetUserSavedConfig,
		"codex.setDefaultModel":           p.handleSetDefaultModel,
		"codex.getUserAgent":              p.handleGetUserAgent,
		"codex.userInfo":                  p.handleUserInfo,
		"codex.execOneOffCommand":         p.handleExecOneOffCommand,
		"codex.execCommand":               p.handleExecOneOffCommand,
		"codex.gitDiffToRemote":           p.handleGitDiffToRemote,
	}
	if p.AuxAgents != nil {
		handlers["codex.spawnAuxAgent"] = p.handleSpawnAuxAgent
		handlers["codex.stopAuxAgent"] = p.handleStopAuxAgent
		handlers["codex.listAuxAgents"] = p.handleListAuxAgents
	}
	h, ok := handlers[name]
	return h, ok
}

// streamSession fans out one turn's events as notifications exactly like a
// subscription.Listener, applies the same bespoke approval handling, and
// replies to the original deferred tools/call request on the first terminal
// event (TaskComplete or TurnAborted). On TurnAborted it sends its own reply
// and returns; it does not drain the conversation's pending interrupts. It
// is meant to be launched with `go`.
func (p *Processor) streamSession(id jsonrpc.RequestID, conv engine.Conversation) {
	ctx := context.Background()
	defer p.untrackRunningRequest(id)

	listener := &subscription.Listener{
		ConversationID: conv.ID(),
		Conversation:   conv,
		Out:            p.Mux,
		Interrupts:     p.interrupts,
		Log:            p.Log,
	}

	for {
		event, err := conv.NextEvent(ctx)
		if err != nil {
			p.Log.Warn("streaming tool session: conversation.next_event failed", zap.String("conversation_id", string(conv.ID())), zap.Error(err))
			p.Mux.SendResponse(id, map[string]any{
				"isError": true,
				"content": []map[string]string{{"type": "text", "text": fmt.Sprintf("conversation stream ended: %v", err)}},
			})
			return
		}

		method := fmt.Sprintf("codex/event/%s", event.Msg.Kind)
		p.Mux.SendNotification(method, subscription.EventToNotificationParams(event, conv.ID()))

		if event.Msg.Kind == engine.EventTurnAborted {
			reason := ""
			if event.Msg.TurnAborted != nil {
				reason = event.Msg.TurnAborted.Reason
			}
			p.Mux.SendResponse(id, map[string]any{
				"content":           []map[string]string{{"type": "text", "text": fmt.Sprintf("Turn aborted: %s", reason)}},
				"structuredContent": map[string]string{"abortReason": reason},
			})
			return
		}
		if event.Msg.Kind == engine.EventTaskComplete {
			p.Mux.SendResponse(id, map[string]any{
				"content": []map[string]string{{"type": "text", "text": "Turn complete."}},
			})
			return
		}

		listener.ApplyBespokeHandling(ctx, event)
	}
}
