// Package processor implements the conversation handlers (spec.md §4.4):
// lifecycle, interaction, streaming tool sessions, auth/config, one-off
// execution, and the git helper. Each handler is a small pure-ish function
// wrapped by router.HandlerFunc; long-running work is detached into its own
// goroutine so the dispatch loop is never stalled (spec.md §5).
package processor

import (
	"sync"
	"sync/atomic"

	"github.com/sangoi-exe/codex/internal/auth"
	"github.com/sangoi-exe/codex/internal/auxagent"
	"github.com/sangoi-exe/codex/internal/config"
	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/logger"
	"github.com/sangoi-exe/codex/internal/rollout"
	"github.com/sangoi-exe/codex/internal/router"
	"github.com/sangoi-exe/codex/internal/subscription"
	"github.com/sangoi-exe/codex/internal/toolcatalog"
	"golang.org/x/sync/singleflight"
)

// activeLogin tracks the single in-flight ChatGPT login (spec.md §3:
// "active_login: Option<{shutdown_handle, login_id}>").
type activeLogin struct {
	id      ids.LoginID
	session *auth.LoginSession
}

// Processor owns every piece of processor state named in spec.md §3 and
// wires the conversation handlers onto a router.Dispatcher.
type Processor struct {
	Mux       *jsonrpc.Multiplexer
	Engine    engine.Engine
	Rollout   *rollout.Store
	AuxAgents *auxagent.Manager
	Auth      auth.Manager
	Config    *config.Config
	Log       *logger.Logger

	serverName    string
	serverVersion string

	initialized   atomic.Bool
	initMu        sync.Mutex
	clientName    string
	clientVersion string

	convMu        sync.Mutex
	conversations map[ids.ConversationID]engine.Conversation

	subMu     sync.Mutex
	listeners map[ids.SubscriptionID]chan struct{}

	interrupts *subscription.InterruptCoordinator

	reqMu           sync.Mutex
	runningRequests map[string]ids.ConversationID

	loginMu sync.Mutex
	login   *activeLogin

	authRefresh singleflight.Group
}

// New builds a Processor. serverName/serverVersion are echoed in the
// initialize response's serverInfo.
func New(mux *jsonrpc.Multiplexer, eng engine.Engine, rolloutStore *rollout.Store, auxAgents *auxagent.Manager, authMgr auth.Manager, cfg *config.Config, log *logger.Logger, serverName, serverVersion string) *Processor {
	return &Processor{
		Mux:             mux,
		Engine:          eng,
		Rollout:         rolloutStore,
		AuxAgents:       auxAgents,
		Auth:            authMgr,
		Config:          cfg,
		Log:             log,
		serverName:      serverName,
		serverVersion:   serverVersion,
		conversations:   make(map[ids.ConversationID]engine.Conversation),
		listeners:       make(map[ids.SubscriptionID]chan struct{}),
		interrupts:      subscription.NewInterruptCoordinator(),
		runningRequests: make(map[string]ids.ConversationID),
	}
}

// Register binds every native-MCP and extended codex.* handler onto d
// (spec.md §4.3).
func (p *Processor) Register(d *router.Dispatcher) {
	d.RegisterFunc("initialize", p.handleInitialize)
	d.RegisterFunc("ping", p.handlePing)
	d.RegisterFunc("tools/list", p.handleListTools)
	d.RegisterFunc("tools/call", p.handleCallTool)

	for _, stub := range []string{
		"resources/list", "resources/templates/list", "resources/read",
		"resources/subscribe", "resources/unsubscribe",
		"prompts/list", "prompts/get",
		"logging/setLevel", "completion/complete",
	} {
		d.RegisterFunc(stub, p.handleStub(stub))
	}

	d.RegisterFunc("codex.newConversation", p.handleNewConversation)
	d.RegisterFunc("codex.listConversations", p.handleListConversations)
	d.RegisterFunc("codex.resumeConversation", p.handleResumeConversation)
	d.RegisterFunc("codex.archiveConversation", p.handleArchiveConversation)

	d.RegisterFunc("codex.sendUserMessage", p.handleSendUserMessage)
	d.RegisterFunc("codex.sendUserTurn", p.handleSendUserTurn)
	d.RegisterFunc("codex.interruptConversation", p.handleInterruptConversation)
	d.RegisterFunc("codex.addConversationListener", p.handleAddConversationListener)
	d.RegisterFunc("codex.removeConversationListener", p.handleRemoveConversationListener)

	d.RegisterFunc("codex.loginApiKey", p.handleLoginAPIKey)
	d.RegisterFunc("codex.loginChatGpt", p.handleLoginChatGpt)
	d.RegisterFunc("codex.cancelLoginChatGpt", p.handleCancelLoginChatGpt)
	d.RegisterFunc("codex.logoutChatGpt", p.handleLogoutChatGpt)
	d.RegisterFunc("codex.getAuthStatus", p.handleGetAuthStatus)
	d.RegisterFunc("codex.getUserSavedConfig", p.handleGetUserSavedConfig)
	d.RegisterFunc("codex.setDefaultModel", p.handleSetDefaultModel)
	d.RegisterFunc("codex.getUserAgent", p.handleGetUserAgent)
	d.RegisterFunc("codex.userInfo", p.handleUserInfo)

	d.RegisterFunc("codex.execOneOffCommand", p.handleExecOneOffCommand)
	d.RegisterFunc("codex.execCommand", p.handleExecOneOffCommand)
	d.RegisterFunc("codex.gitDiffToRemote", p.handleGitDiffToRemote)

	if p.AuxAgents != nil {
		d.RegisterFunc("codex.spawnAuxAgent", p.handleSpawnAuxAgent)
		d.RegisterFunc("codex.stopAuxAgent", p.handleStopAuxAgent)
		d.RegisterFunc("codex.listAuxAgents", p.handleListAuxAgents)
	}
}

// toolOptions reflects this server's current tool-exposure configuration
// (spec.md §4.2).
func (p *Processor) toolOptions() toolcatalog.Options {
	return toolcatalog.Options{
		ExposeAllTools: p.Config.Server.ExposeAllTools,
		MaxAuxAgents:   p.Config.Server.MaxAuxAgents,
	}
}

// userAgentSuffix derives from the client info recorded at initialize time.
func (p *Processor) userAgentSuffix() string {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.clientName == "" {
		return p.serverName + "/" + p.serverVersion
	}
	return p.serverName + "/" + p.serverVersion + " (" + p.clientName + "/" + p.clientVersion + ")"
}

func (p *Processor) getConversation(id ids.ConversationID) (engine.Conversation, bool) {
	p.convMu.Lock()
	defer p.convMu.Unlock()
	c, ok := p.conversations[id]
	return c, ok
}

func (p *Processor) putConversation(c engine.Conversation) {
	p.convMu.Lock()
	defer p.convMu.Unlock()
	p.conversations[c.ID()] = c
}

func (p *Processor) removeConversation(id ids.ConversationID) (engine.Conversation, bool) {
	p.convMu.Lock()
	defer p.convMu.Unlock()
	c, ok := p.conversations[id]
	if ok {
		delete(p.conversations, id)
	}
	return c, ok
}

// trackRunningRequest records that requestID's long-running tool call
// belongs to conversationID (spec.md §3 "running_requests"), so an inbound
// `cancelled` notification can be translated into an Interrupt.
func (p *Processor) trackRunningRequest(requestID jsonrpc.RequestID, conversationID ids.ConversationID) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	p.runningRequests[requestID.String()] = conversationID
}

func (p *Processor) untrackRunningRequest(requestID jsonrpc.RequestID) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	delete(p.runningRequests, requestID.String())
}

func (p *Processor) lookupRunningRequest(requestIDStr string) (ids.ConversationID, bool) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	cid, ok := p.runningRequests[requestIDStr]
	if ok {
		delete(p.runningRequests, requestIDStr)
	}
	return cid, ok
}
