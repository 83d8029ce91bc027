package processor

import (
	"context"
	"encoding/json"

	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
)

type newConversationParams struct {
	Model          string         `json:"model,omitempty"`
	Profile        string         `json:"profile,omitempty"`
	Cwd            string         `json:"cwd,omitempty"`
	ApprovalPolicy string         `json:"approvalPolicy,omitempty"`
	SandboxPolicy  string         `json:"sandboxPolicy,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
}

func (p *newConversationParams) overrides() engine.TurnOverrides {
	return engine.TurnOverrides{
		Model:          p.Model,
		Profile:        p.Profile,
		Cwd:            p.Cwd,
		ApprovalPolicy: p.ApprovalPolicy,
		SandboxPolicy:  p.SandboxPolicy,
		Extra:          p.Config,
	}
}

// handleNewConversation implements spec.md §4.4.a "newConversation".
func (p *Processor) handleNewConversation(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params newConversationParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, false, jsonrpc.InvalidRequest("invalid newConversation params: %v", err)
		}
	}

	conv, info, err := p.Engine.NewConversation(ctx, params.overrides())
	if err != nil {
		return nil, false, jsonrpc.Internal("error creating conversation: %v", err)
	}
	p.putConversation(conv)

	return map[string]any{
		"conversationId":  info.ConversationID,
		"model":           info.Model,
		"reasoningEffort": info.ReasoningEffort,
		"rolloutPath":     info.RolloutPath,
	}, false, nil
}

type listConversationsParams struct {
	PageSize int    `json:"pageSize,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

// handleListConversations implements spec.md §4.4.a "listConversations".
func (p *Processor) handleListConversations(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params listConversationsParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, false, jsonrpc.InvalidRequest("invalid listConversations params: %v", err)
		}
	}

	items, nextCursor, err := p.Rollout.ListConversations(params.PageSize, params.Cursor)
	if err != nil {
		return nil, false, jsonrpc.Internal("failed to list conversations: %v", err)
	}

	result := map[string]any{"items": items}
	if nextCursor != "" {
		result["nextCursor"] = nextCursor
	}
	return result, false, nil
}

type resumeConversationParams struct {
	Path           string         `json:"path"`
	Model          string         `json:"model,omitempty"`
	Profile        string         `json:"profile,omitempty"`
	ApprovalPolicy string         `json:"approvalPolicy,omitempty"`
	SandboxPolicy  string         `json:"sandboxPolicy,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
}

// handleResumeConversation implements spec.md §4.4.a "resumeConversation":
// replays the filtered initial-message list and emits a SessionConfigured
// notification before the response. Mirrors
// codex_message_processor.rs's `matches!(user_message.kind,
// Some(InputMessageKind::Plain))` filter: only Plain-kind messages survive
// into the replay the client sees.
func (p *Processor) handleResumeConversation(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params resumeConversationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid resumeConversation params: %v", err)
	}
	if params.Path == "" {
		return nil, false, jsonrpc.InvalidRequest("path is required")
	}

	overrides := engine.TurnOverrides{
		Model:          params.Model,
		Profile:        params.Profile,
		ApprovalPolicy: params.ApprovalPolicy,
		SandboxPolicy:  params.SandboxPolicy,
		Extra:          params.Config,
	}

	conv, info, initialMessages, err := p.Engine.ResumeConversation(ctx, params.Path, overrides)
	if err != nil {
		return nil, false, jsonrpc.Internal("error resuming conversation: %v", err)
	}
	p.putConversation(conv)

	filtered := filterPlainUserMessages(initialMessages)

	p.Mux.SendNotification("codex/event/session_configured", map[string]any{
		"conversationId": info.ConversationID,
	})

	return map[string]any{
		"conversationId":  info.ConversationID,
		"model":           info.Model,
		"initialMessages": filtered,
	}, false, nil
}

// filterPlainUserMessages drops non-plain messages from a replay so the
// client does not re-render system-level instructions (spec.md §4.4.a).
func filterPlainUserMessages(messages []engine.ReplayMessage) []engine.InputItem {
	plain := make([]engine.InputItem, 0, len(messages))
	for _, msg := range messages {
		if msg.Kind != engine.UserMessagePlain {
			continue
		}
		plain = append(plain, msg.Item)
	}
	return plain
}

type archiveConversationParams struct {
	ConversationID ids.ConversationID `json:"conversationId"`
	RolloutPath    string             `json:"rolloutPath"`
}

// handleArchiveConversation implements spec.md §4.4.a "archiveConversation".
func (p *Processor) handleArchiveConversation(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params archiveConversationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid archiveConversation params: %v", err)
	}

	resolved, err := p.Rollout.ValidateArchivePath(params.RolloutPath, params.ConversationID)
	if err != nil {
		return nil, false, jsonrpc.InvalidRequest("%v", err)
	}

	if conv, live := p.removeConversation(params.ConversationID); live {
		p.shutdownWithTimeout(ctx, conv)
	}

	if err := p.Rollout.Archive(resolved); err != nil {
		return nil, false, jsonrpc.Internal("failed to archive conversation: %v", err)
	}

	return map[string]any{}, false, nil
}
