// Package toolcatalog computes the dynamic tools/list surface: a fixed
// code-editing allowlist, plus an optional administrative tier, plus an
// optional auxiliary-agent tier, following the allowlists in codex-rs's
// tool_catalog.rs. Descriptor shapes are built with mark3labs/mcp-go's
// mcp.Tool data type, the same vocabulary the rest of the corpus uses for
// describing tool schemas, even though this core serializes them itself
// rather than registering them with mcp-go's own server.
package toolcatalog

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// codeEditingToolNames is always present, in this exact order.
var codeEditingToolNames = []string{
	"reply",
	"codex",
	"codex-reply",
	"codex.newConversation",
	"codex.sendUserMessage",
	"codex.sendUserTurn",
	"codex.execCommand",
	"codex.gitDiffToRemote",
}

// adminToolNames is present only when expose_all_tools is set.
var adminToolNames = []string{
	"codex.listConversations",
	"codex.resumeConversation",
	"codex.archiveConversation",
	"codex.interruptConversation",
	"codex.loginApiKey",
	"codex.loginChatGpt",
	"codex.cancelLoginChatGpt",
	"codex.logoutChatGpt",
	"codex.getAuthStatus",
	"codex.getUserSavedConfig",
	"codex.setDefaultModel",
	"codex.getUserAgent",
	"codex.userInfo",
}

// auxToolNames is present only when max_aux_agents >= 1.
var auxToolNames = []string{
	"codex.spawnAuxAgent",
	"codex.stopAuxAgent",
	"codex.listAuxAgents",
}

// Options selects which optional tiers are included in the catalog.
type Options struct {
	ExposeAllTools bool
	MaxAuxAgents   int
}

// ListTools computes the tool descriptor list for the given options. The
// order is deterministic: code-editing tools, then admin (if enabled), then
// aux-agent tools (if enabled); duplicates or malformed descriptors are a
// catalog error rather than a silently degraded list (spec §4.2).
func ListTools(opts Options) ([]mcp.Tool, error) {
	names := computeToolNames(opts)

	seen := make(map[string]struct{}, len(names))
	tools := make([]mcp.Tool, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("toolcatalog: duplicate tool name %q", name)
		}
		seen[name] = struct{}{}

		tool, err := buildToolByName(name)
		if err != nil {
			return nil, err
		}
		if err := validateToolSchema(tool); err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func computeToolNames(opts Options) []string {
	names := dedupePreservingOrder(codeEditingToolNames)
	if opts.ExposeAllTools {
		names = append(names, dedupePreservingOrder(adminToolNames)...)
	}
	if opts.MaxAuxAgents >= 1 {
		names = append(names, dedupePreservingOrder(auxToolNames)...)
	}
	return names
}

func dedupePreservingOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// validateToolSchema enforces spec §4.2's descriptor invariants: non-empty
// name, non-empty input-schema type, and the descriptor must serialize.
func validateToolSchema(tool mcp.Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("toolcatalog: descriptor has empty name")
	}
	if tool.InputSchema.Type == "" {
		return fmt.Errorf("toolcatalog: tool %q has empty input schema type", tool.Name)
	}
	if _, err := json.Marshal(tool); err != nil {
		return fmt.Errorf("toolcatalog: tool %q failed to serialize: %w", tool.Name, err)
	}
	return nil
}

func buildToolByName(name string) (mcp.Tool, error) {
	switch name {
	case "reply":
		return mcp.NewTool(name,
			mcp.WithDescription("Continue the current turn with a plain-text reply."),
			mcp.WithString("text", mcp.Required(), mcp.Description("The reply text.")),
		), nil

	case "codex":
		return mcp.NewTool(name,
			mcp.WithDescription("Start a new Codex conversation and stream its turn back as notifications."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The initial user prompt.")),
			mcp.WithString("cwd", mcp.Description("Working directory for the conversation.")),
			mcp.WithString("model", mcp.Description("Model override.")),
			mcp.WithString("approvalPolicy", mcp.Description("Approval policy override.")),
			mcp.WithString("sandboxPolicy", mcp.Description("Sandbox policy override.")),
		), nil

	case "codex-reply":
		return mcp.NewTool(name,
			mcp.WithDescription("Continue an existing Codex conversation's turn."),
			mcp.WithString("conversationId", mcp.Required(), mcp.Description("The conversation to continue.")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The follow-up prompt.")),
		), nil

	case "codex.newConversation":
		return mcp.NewTool(name,
			mcp.WithDescription("Open a new conversation without starting a turn."),
			mcp.WithString("model", mcp.Description("Model override.")),
			mcp.WithString("profile", mcp.Description("Config profile override.")),
			mcp.WithString("cwd", mcp.Description("Working directory for the conversation.")),
			mcp.WithString("approvalPolicy", mcp.Description("Approval policy override.")),
			mcp.WithString("sandboxPolicy", mcp.Description("Sandbox policy override.")),
		), nil

	case "codex.sendUserMessage":
		return mcp.NewTool(name,
			mcp.WithDescription("Submit a plain user message to an existing conversation."),
			mcp.WithString("conversationId", mcp.Required(), mcp.Description("Target conversation.")),
			mcp.WithArray("items", mcp.Required(), mcp.Description("Ordered input content blocks.")),
		), nil

	case "codex.sendUserTurn":
		return mcp.NewTool(name,
			mcp.WithDescription("Submit a full user turn, with per-turn overrides, to an existing conversation."),
			mcp.WithString("conversationId", mcp.Required(), mcp.Description("Target conversation.")),
			mcp.WithArray("items", mcp.Required(), mcp.Description("Ordered input content blocks.")),
			mcp.WithString("cwd", mcp.Description("Working directory for this turn.")),
			mcp.WithString("approvalPolicy", mcp.Description("Approval policy for this turn.")),
			mcp.WithString("sandboxPolicy", mcp.Description("Sandbox policy for this turn.")),
			mcp.WithString("model", mcp.Description("Model for this turn.")),
			mcp.WithString("effort", mcp.Description("Reasoning effort for this turn.")),
			mcp.WithString("summary", mcp.Description("Summary mode for this turn.")),
		), nil

	case "codex.execCommand":
		return mcp.NewTool(name,
			mcp.WithDescription("Run a one-off shell command outside any conversation."),
			mcp.WithArray("command", mcp.Required(), mcp.Description("Argv to execute.")),
			mcp.WithString("cwd", mcp.Description("Working directory.")),
			mcp.WithNumber("timeoutMs", mcp.Description("Timeout in milliseconds.")),
			mcp.WithString("sandboxPolicy", mcp.Description("Sandbox policy override.")),
		), nil

	case "codex.gitDiffToRemote":
		return mcp.NewTool(name,
			mcp.WithDescription("Compute the working-tree diff against the remote tracking branch."),
			mcp.WithString("cwd", mcp.Required(), mcp.Description("Repository working directory.")),
		), nil

	case "codex.listConversations":
		return mcp.NewTool(name,
			mcp.WithDescription("List stored conversations with a text preview of each."),
			mcp.WithNumber("pageSize", mcp.Description("Page size, defaults to 25.")),
			mcp.WithString("cursor", mcp.Description("Opaque pagination cursor.")),
		), nil

	case "codex.resumeConversation":
		return mcp.NewTool(name,
			mcp.WithDescription("Resume a conversation from a stored rollout file."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Absolute rollout path.")),
			mcp.WithString("model", mcp.Description("Model override.")),
			mcp.WithString("approvalPolicy", mcp.Description("Approval policy override.")),
			mcp.WithString("sandboxPolicy", mcp.Description("Sandbox policy override.")),
		), nil

	case "codex.archiveConversation":
		return mcp.NewTool(name,
			mcp.WithDescription("Shut down (if live) and archive a conversation's rollout file."),
			mcp.WithString("conversationId", mcp.Required(), mcp.Description("Conversation to archive.")),
			mcp.WithString("rolloutPath", mcp.Required(), mcp.Description("Its rollout file path.")),
		), nil

	case "codex.interruptConversation":
		return mcp.NewTool(name,
			mcp.WithDescription("Interrupt the current turn of a conversation."),
			mcp.WithString("conversationId", mcp.Required(), mcp.Description("Conversation to interrupt.")),
		), nil

	case "codex.loginApiKey":
		return mcp.NewTool(name,
			mcp.WithDescription("Store an API key and reload the auth manager."),
			mcp.WithString("apiKey", mcp.Required(), mcp.Description("The API key to store.")),
		), nil

	case "codex.loginChatGpt":
		return mcp.NewTool(name,
			mcp.WithDescription("Start a ChatGPT OAuth login flow."),
		), nil

	case "codex.cancelLoginChatGpt":
		return mcp.NewTool(name,
			mcp.WithDescription("Cancel an in-flight ChatGPT login."),
			mcp.WithString("loginId", mcp.Required(), mcp.Description("The login id to cancel.")),
		), nil

	case "codex.logoutChatGpt":
		return mcp.NewTool(name,
			mcp.WithDescription("Log out of ChatGPT and clear stored tokens."),
		), nil

	case "codex.getAuthStatus":
		return mcp.NewTool(name,
			mcp.WithDescription("Report the current authentication method and status."),
			mcp.WithBoolean("includeToken", mcp.Description("Include the raw token in the response.")),
			mcp.WithBoolean("refreshToken", mcp.Description("Force a token refresh first.")),
		), nil

	case "codex.getUserSavedConfig":
		return mcp.NewTool(name,
			mcp.WithDescription("Return the on-disk user configuration."),
		), nil

	case "codex.setDefaultModel":
		return mcp.NewTool(name,
			mcp.WithDescription("Persist a default model and/or reasoning effort override."),
			mcp.WithString("model", mcp.Description("Model to persist, or omit to clear.")),
			mcp.WithString("reasoningEffort", mcp.Description("Reasoning effort to persist, or omit to clear.")),
		), nil

	case "codex.getUserAgent":
		return mcp.NewTool(name,
			mcp.WithDescription("Return the user-agent string this server identifies itself with."),
		), nil

	case "codex.userInfo":
		return mcp.NewTool(name,
			mcp.WithDescription("Return a read-only projection of the signed-in user's identity."),
		), nil

	case "codex.spawnAuxAgent":
		return mcp.NewTool(name,
			mcp.WithDescription("Spawn an auxiliary agent subprocess to work a prompt independently."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The prompt to hand to the auxiliary agent.")),
			mcp.WithString("cwd", mcp.Description("Working directory, defaults to the server's own.")),
		), nil

	case "codex.stopAuxAgent":
		return mcp.NewTool(name,
			mcp.WithDescription("Kill a running auxiliary agent."),
			mcp.WithString("agentId", mcp.Required(), mcp.Description("The agent to stop.")),
		), nil

	case "codex.listAuxAgents":
		return mcp.NewTool(name,
			mcp.WithDescription("List auxiliary agents and whether each is still running."),
		), nil

	default:
		return mcp.Tool{}, fmt.Errorf("toolcatalog: no descriptor builder registered for %q", name)
	}
}
