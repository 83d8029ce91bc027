// Package subscription runs the per-conversation event fan-out task and the
// two coordination maps its bespoke event handling depends on: pending
// interrupts and outbound approval requests. Grounded directly on
// codex_message_processor.rs's add_conversation_listener,
// apply_bespoke_event_handling, on_patch_approval_response, and
// on_exec_approval_response.
package subscription

import (
	"context"
	"fmt"

	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/logger"
	"github.com/sangoi-exe/codex/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PendingInterruptKind discriminates how an interrupt reply must be shaped.
type PendingInterruptKind int

const (
	// PendingInterruptJsonRpc replies with {abortReason: reason}.
	PendingInterruptJsonRpc PendingInterruptKind = iota
	// PendingInterruptTool replies with a CallToolResult.
	PendingInterruptTool
)

// PendingInterrupt is one unanswered interruptConversation (or aborted
// streaming callTool) awaiting a TurnAborted event.
type PendingInterrupt struct {
	Kind PendingInterruptKind
	ID   jsonrpc.RequestID
}

// InterruptCoordinator tracks pending interrupts per conversation, FIFO
// (spec.md §3: "pending_interrupts: Map<ConversationId, OrderedList<...>>").
type InterruptCoordinator struct {
	mu      chanMutex
	pending map[ids.ConversationID][]PendingInterrupt
}

// NewInterruptCoordinator builds an empty coordinator.
func NewInterruptCoordinator() *InterruptCoordinator {
	return &InterruptCoordinator{pending: make(map[ids.ConversationID][]PendingInterrupt)}
}

// Schedule appends a pending interrupt for conversationID.
func (c *InterruptCoordinator) Schedule(conversationID ids.ConversationID, p PendingInterrupt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[conversationID] = append(c.pending[conversationID], p)
}

// Drain removes and returns every pending interrupt for conversationID.
func (c *InterruptCoordinator) Drain(conversationID ids.ConversationID) []PendingInterrupt {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.pending[conversationID]
	delete(c.pending, conversationID)
	return pending
}

// chanMutex is a tiny channel-based mutex, matching the corpus's preference
// for explicit, cancellable synchronization primitives over bare
// sync.Mutex where the lock is ever held near I/O. Here it is never held
// across I/O (only slice mutation), so a plain mutex would also do; kept
// minimal on purpose.
type chanMutex struct{ ch chan struct{} }

func (m *chanMutex) Lock() {
	if m.ch == nil {
		m.ch = make(chan struct{}, 1)
	}
	m.ch <- struct{}{}
}

func (m *chanMutex) Unlock() { <-m.ch }

// Outbound is the sink a Listener sends through: notifications and
// server-initiated requests with a correlated reply channel. Satisfied by
// *jsonrpc.Multiplexer.
type Outbound interface {
	SendNotification(method string, params any)
	SendRequest(method string, params any) <-chan jsonrpc.Reply
	SendResponse(id jsonrpc.RequestID, result any)
}

// ApprovalDecisionReply is the client's expected reply shape to
// applyPatchApproval / execCommandApproval (spec.md §6).
type ApprovalDecisionReply struct {
	Decision string `json:"decision"`
}

// Listener runs the fan-out loop for one subscription: race cancellation
// against the conversation's event stream, emit a notification per event,
// then apply bespoke handling for approval-request and turn-aborted events.
type Listener struct {
	SubscriptionID ids.SubscriptionID
	ConversationID ids.ConversationID
	Conversation   engine.Conversation
	Out            Outbound
	Interrupts     *InterruptCoordinator
	Log            *logger.Logger
}

// Run blocks until cancel fires or the event stream ends/errors (spec.md
// §4.5 step 1). It is meant to be launched with `go`.
func (l *Listener) Run(ctx context.Context, cancel <-chan struct{}) {
	for {
		select {
		case <-cancel:
			return
		default:
		}

		evCtx, stop := contextWithCancelChan(ctx, cancel)
		event, err := l.Conversation.NextEvent(evCtx)
		stop()

		select {
		case <-cancel:
			return
		default:
		}

		if err != nil {
			l.Log.Warn("conversation.next_event failed", zap.String("conversation_id", string(l.ConversationID)), zap.Error(err))
			return
		}

		method := fmt.Sprintf("codex/event/%s", event.Msg.Kind)
		params := EventToNotificationParams(event, l.ConversationID)
		l.Out.SendNotification(method, params)

		l.ApplyBespokeHandling(ctx, event)
	}
}

// ApplyBespokeHandling implements spec.md §4.5 step 3. Exported so the
// streaming callTool session (processor.streamSession) can reuse the exact
// same approval/turn-aborted handling without its own event loop having to
// go through a full subscription.
func (l *Listener) ApplyBespokeHandling(ctx context.Context, event engine.Event) {
	switch event.Msg.Kind {
	case engine.EventApplyPatchApprovalReq:
		req := event.Msg.ApplyPatchApproval
		params := map[string]any{
			"conversationId": l.ConversationID,
			"callId":         req.CallID,
			"fileChanges":    req.Changes,
			"reason":         req.Reason,
			"grantRoot":      req.GrantRoot,
		}
		spanCtx, span := tracing.Tracer("codex-mcp-server").Start(ctx, "approval.applyPatch")
		span.SetAttributes(attribute.String("codex.call_id", req.CallID))
		reply := l.Out.SendRequest("applyPatchApproval", params)
		go l.onPatchApprovalResponse(spanCtx, event.ID, reply, span)

	case engine.EventExecApprovalRequest:
		req := event.Msg.ExecApproval
		params := map[string]any{
			"conversationId": l.ConversationID,
			"callId":         req.CallID,
			"command":        req.Command,
			"cwd":            req.Cwd,
			"reason":         req.Reason,
		}
		spanCtx, span := tracing.Tracer("codex-mcp-server").Start(ctx, "approval.execCommand")
		span.SetAttributes(attribute.String("codex.call_id", req.CallID))
		reply := l.Out.SendRequest("execCommandApproval", params)
		go l.onExecApprovalResponse(spanCtx, event.ID, reply, span)

	case engine.EventTurnAborted:
		reason := ""
		if event.Msg.TurnAborted != nil {
			reason = event.Msg.TurnAborted.Reason
		}
		l.replyPendingInterrupts(reason)
	}
}

// onPatchApprovalResponse mirrors on_patch_approval_response: a dropped
// reply channel submits Denied (fail closed, symmetric case). span covers
// the full round trip started in ApplyBespokeHandling.
func (l *Listener) onPatchApprovalResponse(ctx context.Context, eventID string, reply <-chan jsonrpc.Reply, span trace.Span) {
	defer span.End()

	decision := engine.DecisionDenied
	r, ok := <-reply
	switch {
	case !ok:
		l.Log.Warn("patch approval request channel dropped", zap.String("event_id", eventID))
		span.SetStatus(codes.Error, "reply channel dropped")
	case r.Err != nil:
		l.Log.Warn("patch approval request failed", zap.String("event_id", eventID), zap.String("error", r.Err.Message))
		span.SetStatus(codes.Error, r.Err.Message)
	default:
		var parsed ApprovalDecisionReply
		if err := unmarshalReply(r, &parsed); err != nil {
			l.Log.Warn("failed to deserialize patch approval response", zap.Error(err))
			span.SetStatus(codes.Error, err.Error())
		} else {
			decision = engine.ParseDecision(parsed.Decision)
		}
	}
	span.SetAttributes(attribute.String("codex.decision", string(decision)))

	if _, err := l.Conversation.Submit(ctx, engine.Op{
		Kind:                  engine.OpPatchApproval,
		PatchApprovalID:       eventID,
		PatchApprovalDecision: decision,
	}); err != nil {
		l.Log.Error("failed to submit PatchApproval", zap.Error(err))
	}
}

// onExecApprovalResponse mirrors on_exec_approval_response: a dropped reply
// channel silently abandons — no submission at all — the one deliberate
// asymmetry spec.md §9 calls out relative to the patch-approval path. span
// covers the full round trip started in ApplyBespokeHandling.
func (l *Listener) onExecApprovalResponse(ctx context.Context, eventID string, reply <-chan jsonrpc.Reply, span trace.Span) {
	defer span.End()

	r, ok := <-reply
	if !ok {
		l.Log.Warn("exec approval request channel dropped, abandoning", zap.String("event_id", eventID))
		span.SetStatus(codes.Error, "reply channel dropped")
		return
	}
	if r.Err != nil {
		l.Log.Warn("exec approval request failed, abandoning", zap.String("event_id", eventID), zap.String("error", r.Err.Message))
		span.SetStatus(codes.Error, r.Err.Message)
		return
	}

	decision := engine.DecisionDenied
	var parsed ApprovalDecisionReply
	if err := unmarshalReply(r, &parsed); err != nil {
		l.Log.Warn("failed to deserialize exec approval response, denying", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
	} else {
		decision = engine.ParseDecision(parsed.Decision)
	}
	span.SetAttributes(attribute.String("codex.decision", string(decision)))

	if _, err := l.Conversation.Submit(ctx, engine.Op{
		Kind:                 engine.OpExecApproval,
		ExecApprovalID:       eventID,
		ExecApprovalDecision: decision,
	}); err != nil {
		l.Log.Error("failed to submit ExecApproval", zap.Error(err))
	}
}

func (l *Listener) replyPendingInterrupts(reason string) {
	pending := l.Interrupts.Drain(l.ConversationID)
	if len(pending) == 0 {
		return
	}

	for _, p := range pending {
		switch p.Kind {
		case PendingInterruptJsonRpc:
			l.Out.SendResponse(p.ID, map[string]string{"abortReason": reason})
		case PendingInterruptTool:
			l.Out.SendResponse(p.ID, map[string]any{
				"content": []map[string]string{{
					"type": "text",
					"text": fmt.Sprintf("Conversation interrupted with reason: %s", reason),
				}},
				"structuredContent": map[string]string{"abortReason": reason},
			})
		}
	}
}

// EventToNotificationParams serializes event as a JSON object with
// conversationId injected (spec.md §4.5 step 2): the event's own Raw
// payload decoded and merged when present, falling back to just the event
// id when it isn't. Exported so processor.streamSession's tool-call
// streaming path emits byte-for-byte the same notification payload as the
// addConversationListener fan-out for the identical event stream.
func EventToNotificationParams(event engine.Event, conversationID ids.ConversationID) map[string]any {
	params := map[string]any{"conversationId": conversationID}
	if len(event.Msg.Raw) > 0 {
		var decoded map[string]any
		if err := unmarshalRaw(event.Msg.Raw, &decoded); err == nil {
			for k, v := range decoded {
				params[k] = v
			}
			return params
		}
	}
	params["id"] = event.ID
	return params
}
