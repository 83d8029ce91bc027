package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sangoi-exe/codex/internal/auth"
	"github.com/sangoi-exe/codex/internal/ids"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"go.uber.org/zap"
)

// loginChatGptTimeout bounds how long a started ChatGPT login flow is kept
// alive before it is abandoned (spec.md §5: "ChatGPT login has a 10-minute
// hard timeout").
const loginChatGptTimeout = 10 * time.Minute

type loginAPIKeyParams struct {
	APIKey string `json:"apiKey"`
}

// handleLoginAPIKey implements spec.md §4.4.d "loginApiKey": any previously
// active ChatGPT login is torn down first, matching the original's
// take-and-drop of active_login before persisting the new credential.
func (p *Processor) handleLoginAPIKey(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params loginAPIKeyParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid loginApiKey params: %v", err)
	}

	p.dropActiveLogin(ctx)

	if err := p.Auth.LoginAPIKey(params.APIKey); err != nil {
		return nil, false, jsonrpc.Internal("failed to save api key: %v", err)
	}
	p.Auth.Reload()
	p.emitAuthStatusChange()

	return map[string]any{}, false, nil
}

// handleLoginChatGpt implements spec.md §4.4.d "loginChatGpt": starts a
// local OAuth callback server, registers it as the sole active login, and
// detaches a watcher that completes the flow (or times out) and notifies
// the client.
func (p *Processor) handleLoginChatGpt(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	session, err := auth.StartLoginSession(context.Background())
	if err != nil {
		return nil, false, jsonrpc.Internal("failed to start login server: %v", err)
	}

	loginID := ids.NewLoginID()
	p.dropActiveLogin(ctx)

	p.loginMu.Lock()
	p.login = &activeLogin{id: loginID, session: session}
	p.loginMu.Unlock()

	go p.watchLoginChatGpt(loginID, session)

	return map[string]any{
		"loginId": loginID,
		"authUrl": session.AuthURL,
	}, false, nil
}

func (p *Processor) watchLoginChatGpt(loginID ids.LoginID, session *auth.LoginSession) {
	var success bool
	var errMsg string

	select {
	case err := <-session.Done:
		if err != nil {
			errMsg = err.Error()
		} else {
			success = true
		}
	case <-time.After(loginChatGptTimeout):
		errMsg = "login timed out"
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	session.Shutdown(shutdownCtx)
	cancel()

	notification := map[string]any{"loginId": loginID, "success": success}
	if errMsg != "" {
		notification["error"] = errMsg
	}
	p.Mux.SendNotification("codex/loginChatGptComplete", notification)

	if success {
		p.Auth.Reload()
		p.emitAuthStatusChange()
	}

	p.loginMu.Lock()
	if p.login != nil && p.login.id == loginID {
		p.login = nil
	}
	p.loginMu.Unlock()
}

type cancelLoginChatGptParams struct {
	LoginID ids.LoginID `json:"loginId"`
}

// handleCancelLoginChatGpt implements spec.md §4.4.d
// "cancelLoginChatGpt": the supplied id must match the single active login.
func (p *Processor) handleCancelLoginChatGpt(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params cancelLoginChatGptParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid cancelLoginChatGpt params: %v", err)
	}

	p.loginMu.Lock()
	active := p.login
	if active != nil && active.id == params.LoginID {
		p.login = nil
	} else {
		active = nil
	}
	p.loginMu.Unlock()

	if active == nil {
		return nil, false, jsonrpc.InvalidRequest("login id not found: %s", params.LoginID)
	}
	active.session.Shutdown(ctx)
	return map[string]any{}, false, nil
}

// handleLogoutChatGpt implements spec.md §4.4.d "logoutChatGpt".
func (p *Processor) handleLogoutChatGpt(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	p.dropActiveLogin(ctx)

	if err := p.Auth.Logout(); err != nil {
		return nil, false, jsonrpc.Internal("logout failed: %v", err)
	}
	p.emitAuthStatusChange()
	return map[string]any{}, false, nil
}

func (p *Processor) dropActiveLogin(ctx context.Context) {
	p.loginMu.Lock()
	active := p.login
	p.login = nil
	p.loginMu.Unlock()
	if active != nil {
		active.session.Shutdown(ctx)
	}
}

func (p *Processor) emitAuthStatusChange() {
	info, ok := p.Auth.Auth()
	params := map[string]any{}
	if ok {
		params["authMethod"] = info.Mode
	}
	p.Mux.SendNotification("codex/event/auth_status_change", params)
}

type getAuthStatusParams struct {
	IncludeToken bool `json:"includeToken,omitempty"`
	RefreshToken bool `json:"refreshToken,omitempty"`
}

// handleGetAuthStatus implements spec.md §4.4.d "getAuthStatus". Concurrent
// refresh requests for the same process collapse onto a single in-flight
// RefreshToken call via singleflight, matching the corpus's use of
// golang.org/x/sync/singleflight to dedupe expensive shared work.
func (p *Processor) handleGetAuthStatus(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params getAuthStatusParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, false, jsonrpc.InvalidRequest("invalid getAuthStatus params: %v", err)
		}
	}

	if params.RefreshToken {
		_, err, _ := p.authRefresh.Do("refresh", func() (any, error) {
			return nil, p.Auth.RefreshToken(ctx)
		})
		if err != nil {
			p.Log.Warn("failed to refresh token while getting auth status", zap.Error(err))
		}
	}

	info, ok := p.Auth.Auth()
	result := map[string]any{}
	if !ok {
		return result, false, nil
	}
	result["authMethod"] = info.Mode
	if params.IncludeToken {
		result["authToken"] = info.Token
	}
	return result, false, nil
}

// handleGetUserSavedConfig implements spec.md §4.4.d "getUserSavedConfig":
// echoes back the subset of configuration the client is allowed to read,
// including whatever setDefaultModel has persisted for the active profile.
func (p *Processor) handleGetUserSavedConfig(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	model := p.Config.ActiveModel()
	return map[string]any{
		"config": map[string]any{
			"exposeAllTools":  p.Config.Server.ExposeAllTools,
			"maxAuxAgents":    p.Config.Server.MaxAuxAgents,
			"profile":         p.Config.Profile,
			"model":           model.Model,
			"reasoningEffort": model.ReasoningEffort,
		},
	}, false, nil
}

type setDefaultModelParams struct {
	Model           string `json:"model,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

// handleSetDefaultModel implements spec.md §4.4.d "setDefaultModel":
// persists the model/reasoning-effort override (clearing either key when
// left empty) onto the active profile if one is set, writing the change
// back to the on-disk config, matching
// codex_message_processor.rs's `set_default_model_internal` →
// `persist_overrides_and_clear_if_none`.
func (p *Processor) handleSetDefaultModel(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params setDefaultModelParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, false, jsonrpc.InvalidRequest("invalid setDefaultModel params: %v", err)
		}
	}
	if err := p.Config.SetDefaultModel(params.Model, params.ReasoningEffort); err != nil {
		return nil, false, jsonrpc.Internal("failed to persist default model: %v", err)
	}
	return map[string]any{}, false, nil
}

// handleGetUserAgent implements spec.md §4.4.d "getUserAgent".
func (p *Processor) handleGetUserAgent(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	return map[string]any{"userAgent": p.userAgentSuffix()}, false, nil
}

// handleUserInfo implements spec.md §4.4.d "userInfo".
func (p *Processor) handleUserInfo(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	info, ok := p.Auth.Auth()
	if !ok {
		return map[string]any{}, false, nil
	}
	return map[string]any{"authMethod": info.Mode}, false, nil
}
