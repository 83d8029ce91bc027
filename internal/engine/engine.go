// Package engine declares the abstract conversation-engine capability the
// core depends on. The actual agent runtime (conversation construction,
// rollout persistence, auth/config storage) is an external collaborator —
// out of scope for this repo (spec §1) — so this package holds only the
// interface and the wire-adjacent Op/Event vocabulary the processor speaks.
package engine

import (
	"context"
	"encoding/json"

	"github.com/sangoi-exe/codex/internal/ids"
)

// Decision is a client's answer to an approval request.
type Decision string

const (
	DecisionApproved           Decision = "approved"
	DecisionApprovedForSession Decision = "approved_for_session"
	DecisionDenied             Decision = "denied"
	DecisionAbort              Decision = "abort"
)

// ParseDecision maps a client-supplied string to a Decision, defaulting to
// Denied for anything unrecognized (fail closed, spec §6/§7).
func ParseDecision(raw string) Decision {
	switch Decision(raw) {
	case DecisionApproved, DecisionApprovedForSession, DecisionDenied, DecisionAbort:
		return Decision(raw)
	default:
		return DecisionDenied
	}
}

// InputItemKind discriminates a user-supplied content block.
type InputItemKind string

const (
	InputItemText       InputItemKind = "text"
	InputItemImage      InputItemKind = "image"
	InputItemLocalImage InputItemKind = "local_image"
)

// InputItem is one block of user-supplied content (spec §3).
type InputItem struct {
	Kind InputItemKind `json:"kind"`
	Text string        `json:"text,omitempty"`
	URL  string        `json:"url,omitempty"`
	Path string        `json:"path,omitempty"`
}

// TurnOverrides carries the optional per-turn knobs sendUserTurn and
// newConversation accept.
type TurnOverrides struct {
	Cwd            string         `json:"cwd,omitempty"`
	ApprovalPolicy string         `json:"approvalPolicy,omitempty"`
	SandboxPolicy  string         `json:"sandboxPolicy,omitempty"`
	Model          string         `json:"model,omitempty"`
	Effort         string         `json:"effort,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Profile        string         `json:"profile,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Op is a submission the core sends to the engine via Conversation.Submit.
// Exactly one of the typed fields is populated; OpKind says which.
type Op struct {
	Kind OpKind

	UserInputItems []InputItem

	UserTurnItems     []InputItem
	UserTurnOverrides TurnOverrides

	PatchApprovalID       string
	PatchApprovalDecision Decision

	ExecApprovalID       string
	ExecApprovalDecision Decision
}

// OpKind discriminates the Op union.
type OpKind int

const (
	OpUserInput OpKind = iota
	OpUserTurn
	OpInterrupt
	OpShutdown
	OpPatchApproval
	OpExecApproval
)

// Ack is the engine's acknowledgment of a submitted Op. The engine is free
// to leave it empty; the core does not depend on its contents today.
type Ack struct {
	SubmissionID string
}

// EventKind discriminates the Event.Msg union the core reacts to. Any kind
// not named here is passed through opaquely (spec §3: "plus opaque others").
type EventKind string

const (
	EventSessionConfigured        EventKind = "session_configured"
	EventApplyPatchApprovalReq    EventKind = "apply_patch_approval_request"
	EventExecApprovalRequest      EventKind = "exec_approval_request"
	EventTurnAborted              EventKind = "turn_aborted"
	EventShutdownComplete         EventKind = "shutdown_complete"
	EventUserMessage              EventKind = "user_message"
	EventAgentMessage             EventKind = "agent_message"
	EventTaskComplete             EventKind = "task_complete"
)

// UserMessageKind discriminates plain user messages (eligible for preview
// extraction and replay) from other wire shapes the engine may emit.
type UserMessageKind string

const (
	UserMessagePlain UserMessageKind = "plain"
	UserMessageOther UserMessageKind = "other"
)

// Event is one entry in a conversation's ordered event stream.
type Event struct {
	ID  string
	Msg EventMsg
}

// EventMsg is the typed payload of an Event. Fields not relevant to Kind
// are left zero. Raw carries the full original payload so the subscription
// fan-out can serialize it verbatim onto the wire (spec §4.5 step 2).
type EventMsg struct {
	Kind EventKind
	Raw  json.RawMessage

	ApplyPatchApproval *ApplyPatchApprovalRequest
	ExecApproval       *ExecApprovalRequest
	TurnAborted        *TurnAbortedPayload
	UserMessage        *UserMessagePayload
}

// ApplyPatchApprovalRequest is the payload of an EventApplyPatchApprovalReq.
type ApplyPatchApprovalRequest struct {
	CallID    string            `json:"call_id"`
	Changes   map[string]string `json:"changes"`
	Reason    string            `json:"reason,omitempty"`
	GrantRoot string            `json:"grant_root,omitempty"`
}

// ExecApprovalRequest is the payload of an EventExecApprovalRequest.
type ExecApprovalRequest struct {
	CallID  string   `json:"call_id"`
	Command []string `json:"command"`
	Cwd     string   `json:"cwd"`
	Reason  string   `json:"reason,omitempty"`
}

// TurnAbortedPayload is the payload of an EventTurnAborted.
type TurnAbortedPayload struct {
	Reason string `json:"reason"`
}

// UserMessagePayload is the payload of an EventUserMessage.
type UserMessagePayload struct {
	Kind UserMessageKind `json:"kind"`
	Text string          `json:"text,omitempty"`
}

// ReplayMessage is one entry of a resumed conversation's initial-message
// history: the replayable content plus the same Plain/Other discriminant
// UserMessagePayload carries, so resumeConversation can filter the replay
// to plain user messages the way the original's InputMessageKind does
// (spec §4.4.a).
type ReplayMessage struct {
	Kind UserMessageKind
	Item InputItem
}

// Conversation is the opaque handle the core holds for one live session.
// It is implemented by the agent runtime, which is out of scope for this
// repo (spec §1, §9 "Dynamic dispatch") — the core never assumes a
// concrete implementation, only this capability.
type Conversation interface {
	// ID returns the conversation's identifier.
	ID() ids.ConversationID

	// Submit enqueues an Op for the engine to act on and returns an Ack
	// once accepted. It must not block on the Op's eventual effects.
	Submit(ctx context.Context, op Op) (Ack, error)

	// NextEvent blocks until the next Event is available, ctx is
	// cancelled, or the stream ends (io.EOF-style sentinel error).
	NextEvent(ctx context.Context) (Event, error)
}

// Engine opens and resumes conversations. It is the single entry point the
// processor uses to acquire a Conversation handle.
type Engine interface {
	// NewConversation opens a fresh conversation with the given overrides.
	NewConversation(ctx context.Context, overrides TurnOverrides) (Conversation, RolloutInfo, error)

	// ResumeConversation reopens a conversation from a stored rollout path.
	ResumeConversation(ctx context.Context, rolloutPath string, overrides TurnOverrides) (Conversation, RolloutInfo, []ReplayMessage, error)
}

// RolloutInfo is the subset of a freshly opened conversation's metadata the
// lifecycle handlers echo back to the client.
type RolloutInfo struct {
	ConversationID   ids.ConversationID
	Model            string
	ReasoningEffort  string
	RolloutPath      string
}
