package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/subscription"
	"go.uber.org/zap"
)

// archiveShutdownTimeout bounds how long archiveConversation waits for a
// live conversation's ShutdownComplete before archiving regardless
// (spec.md §5: "Archive-shutdown wait has a 10-second ceiling").
const archiveShutdownTimeout = 10 * time.Second

func (p *Processor) shutdownWithTimeout(ctx context.Context, conv engine.Conversation) {
	shutdownCtx, cancel := context.WithTimeout(ctx, archiveShutdownTimeout)
	defer cancel()

	if _, err := conv.Submit(ctx, engine.Op{Kind: engine.OpShutdown}); err != nil {
		p.Log.Error("failed to submit Shutdown", zap.Error(err))
		return
	}

	for {
		event, err := conv.NextEvent(shutdownCtx)
		if err != nil {
			if shutdownCtx.Err() != nil {
				p.Log.Warn("conversation shutdown timed out; proceeding with archive", zap.String("conversation_id", string(conv.ID())))
			}
			return
		}
		if event.Msg.Kind == engine.EventShutdownComplete {
			return
		}
	}
}

type sendUserMessageParams struct {
	ConversationID ids.ConversationID `json:"conversationId"`
	Items          []engine.InputItem `json:"items"`
}

// handleSendUserMessage implements spec.md §4.4.b "sendUserMessage".
func (p *Processor) handleSendUserMessage(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params sendUserMessageParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid sendUserMessage params: %v", err)
	}

	conv, ok := p.getConversation(params.ConversationID)
	if !ok {
		return nil, false, jsonrpc.InvalidRequest("conversation not found: %s", params.ConversationID)
	}

	if _, err := conv.Submit(ctx, engine.Op{Kind: engine.OpUserInput, UserInputItems: params.Items}); err != nil {
		return nil, false, jsonrpc.Internal("failed to submit user input: %v", err)
	}
	return map[string]any{}, false, nil
}

type sendUserTurnParams struct {
	ConversationID ids.ConversationID  `json:"conversationId"`
	Items          []engine.InputItem  `json:"items"`
	Cwd            string              `json:"cwd,omitempty"`
	ApprovalPolicy string              `json:"approvalPolicy,omitempty"`
	SandboxPolicy  string              `json:"sandboxPolicy,omitempty"`
	Model          string              `json:"model,omitempty"`
	Effort         string              `json:"effort,omitempty"`
	Summary        string              `json:"summary,omitempty"`
}

// handleSendUserTurn implements spec.md §4.4.b "sendUserTurn".
func (p *Processor) handleSendUserTurn(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params sendUserTurnParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid sendUserTurn params: %v", err)
	}

	conv, ok := p.getConversation(params.ConversationID)
	if !ok {
		return nil, false, jsonrpc.InvalidRequest("conversation not found: %s", params.ConversationID)
	}

	op := engine.Op{
		Kind:          engine.OpUserTurn,
		UserTurnItems: params.Items,
		UserTurnOverrides: engine.TurnOverrides{
			Cwd:            params.Cwd,
			ApprovalPolicy: params.ApprovalPolicy,
			SandboxPolicy:  params.SandboxPolicy,
			Model:          params.Model,
			Effort:         params.Effort,
			Summary:        params.Summary,
		},
	}
	if _, err := conv.Submit(ctx, op); err != nil {
		return nil, false, jsonrpc.Internal("failed to submit user turn: %v", err)
	}
	return map[string]any{}, false, nil
}

type interruptConversationParams struct {
	ConversationID ids.ConversationID `json:"conversationId"`
}

// handleInterruptConversation implements spec.md §4.4.b
// "interruptConversation": the response is deferred until TurnAborted
// arrives on the conversation's stream (handled by the subscription
// fan-out's bespoke event handling).
func (p *Processor) handleInterruptConversation(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params interruptConversationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid interruptConversation params: %v", err)
	}

	if err := p.scheduleInterrupt(ctx, params.ConversationID, subscription.PendingInterrupt{
		Kind: subscription.PendingInterruptJsonRpc,
		ID:   id,
	}); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func (p *Processor) scheduleInterrupt(ctx context.Context, conversationID ids.ConversationID, pending subscription.PendingInterrupt) *jsonrpc.Error {
	conv, ok := p.getConversation(conversationID)
	if !ok {
		return jsonrpc.InvalidRequest("conversation not found: %s", conversationID)
	}

	p.interrupts.Schedule(conversationID, pending)

	if _, err := conv.Submit(ctx, engine.Op{Kind: engine.OpInterrupt}); err != nil {
		p.Log.Error("failed to submit Interrupt", zap.Error(err))
	}
	return nil
}

type addConversationListenerParams struct {
	ConversationID ids.ConversationID `json:"conversationId"`
}

// handleAddConversationListener implements spec.md §4.4.b
// "addConversationListener": mints a subscription id and spawns the
// fan-out task (spec.md §4.5).
func (p *Processor) handleAddConversationListener(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params addConversationListenerParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid addConversationListener params: %v", err)
	}

	conv, ok := p.getConversation(params.ConversationID)
	if !ok {
		return nil, false, jsonrpc.InvalidRequest("conversation not found: %s", params.ConversationID)
	}

	subscriptionID := ids.NewSubscriptionID()
	cancel := make(chan struct{})

	p.subMu.Lock()
	p.listeners[subscriptionID] = cancel
	p.subMu.Unlock()

	listener := &subscription.Listener{
		SubscriptionID: subscriptionID,
		ConversationID: params.ConversationID,
		Conversation:   conv,
		Out:            p.Mux,
		Interrupts:     p.interrupts,
		Log:            p.Log,
	}
	go listener.Run(context.Background(), cancel)

	return map[string]any{"subscriptionId": subscriptionID}, false, nil
}

type removeConversationListenerParams struct {
	SubscriptionID ids.SubscriptionID `json:"subscriptionId"`
}

// handleRemoveConversationListener implements spec.md §4.4.b
// "removeConversationListener": signals cancel and replies.
func (p *Processor) handleRemoveConversationListener(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params removeConversationListenerParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid removeConversationListener params: %v", err)
	}

	p.subMu.Lock()
	cancel, ok := p.listeners[params.SubscriptionID]
	if ok {
		delete(p.listeners, params.SubscriptionID)
	}
	p.subMu.Unlock()

	if !ok {
		return nil, false, jsonrpc.NotFound("subscription not found: %s", params.SubscriptionID)
	}
	close(cancel)
	return map[string]any{}, false, nil
}

// HandleCancelledNotification translates an inbound `cancelled`
// notification carrying a tool-call request id into an engine Interrupt,
// if that request id is a tracked running tool call (spec.md §4.4.b).
func (p *Processor) HandleCancelledNotification(ctx context.Context, requestIDStr string) {
	conversationID, ok := p.lookupRunningRequest(requestIDStr)
	if !ok {
		return
	}
	if err := p.scheduleInterrupt(ctx, conversationID, subscription.PendingInterrupt{
		Kind: subscription.PendingInterruptTool,
		ID:   jsonrpc.NewStringID(requestIDStr),
	}); err != nil {
		p.Log.Warn("failed to translate cancelled notification into Interrupt", zap.String("request_id", requestIDStr), zap.String("error", err.Message))
	}
}
