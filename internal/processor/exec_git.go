package processor

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/sangoi-exe/codex/internal/jsonrpc"
)

type execOneOffCommandParams struct {
	Command   []string `json:"command"`
	Cwd       string   `json:"cwd,omitempty"`
	TimeoutMs int      `json:"timeoutMs,omitempty"`
}

// handleExecOneOffCommand implements spec.md §4.4.e "execOneOffCommand":
// runs an arbitrary command outside any conversation's sandbox and reports
// its outcome. Per spec.md §7, failures here fail open — the underlying
// error surfaces in the response rather than becoming an RPC error.
func (p *Processor) handleExecOneOffCommand(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params execOneOffCommandParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid execOneOffCommand params: %v", err)
	}
	if len(params.Command) == 0 {
		return nil, false, jsonrpc.InvalidRequest("command must not be empty")
	}

	runCtx := ctx
	if params.TimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, params.Command[0], params.Command[1:]...)
	if params.Cwd != "" {
		cmd.Dir = params.Cwd
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := map[string]any{
		"stdout":   stdout.String(),
		"stderr":   stderr.String(),
		"exitCode": exitCodeOf(cmd, runErr),
	}
	if runErr != nil {
		result["error"] = runErr.Error()
	}
	return result, false, nil
}

func exitCodeOf(cmd *exec.Cmd, runErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		return -1
	}
	return 0
}

type gitDiffToRemoteParams struct {
	Cwd string `json:"cwd"`
}

// handleGitDiffToRemote implements spec.md §4.4.e "gitDiffToRemote": diffs
// the working tree against its upstream remote tracking branch.
func (p *Processor) handleGitDiffToRemote(ctx context.Context, id jsonrpc.RequestID, raw json.RawMessage) (any, bool, *jsonrpc.Error) {
	var params gitDiffToRemoteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false, jsonrpc.InvalidRequest("invalid gitDiffToRemote params: %v", err)
	}
	if params.Cwd == "" {
		return nil, false, jsonrpc.InvalidRequest("cwd is required")
	}

	remoteRef, err := runGit(ctx, params.Cwd, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	if err != nil {
		return nil, false, jsonrpc.InvalidRequest("failed to compute git diff to remote for cwd %q: no upstream remote configured", params.Cwd)
	}
	remoteRef = strings.TrimSpace(remoteRef)

	sha, err := runGit(ctx, params.Cwd, "rev-parse", remoteRef)
	if err != nil {
		return nil, false, jsonrpc.InvalidRequest("failed to compute git diff to remote for cwd %q: %v", params.Cwd, err)
	}

	diff, err := runGit(ctx, params.Cwd, "diff", remoteRef)
	if err != nil {
		return nil, false, jsonrpc.InvalidRequest("failed to compute git diff to remote for cwd %q: %v", params.Cwd, err)
	}

	return map[string]any{
		"sha":  strings.TrimSpace(sha),
		"diff": diff,
	}, false, nil
}

func runGit(ctx context.Context, cwd string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = cwd
	out, err := cmd.Output()
	return string(out), err
}
