// Command codex-mcp-server runs the MCP core over stdio: a line-delimited
// JSON-RPC 2.0 loop exposing conversation-lifecycle, tool-call, and
// auxiliary-agent operations to a single connected client process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sangoi-exe/codex/internal/auth"
	"github.com/sangoi-exe/codex/internal/auxagent"
	"github.com/sangoi-exe/codex/internal/config"
	"github.com/sangoi-exe/codex/internal/engine"
	"github.com/sangoi-exe/codex/internal/jsonrpc"
	"github.com/sangoi-exe/codex/internal/logger"
	"github.com/sangoi-exe/codex/internal/processor"
	"github.com/sangoi-exe/codex/internal/rollout"
	"github.com/sangoi-exe/codex/internal/router"
	"github.com/sangoi-exe/codex/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	serverName    = "codex-mcp-server"
	serverVersion = "0.1.0"
)

var configPathFlag = flag.String("config-path", "", "directory to search for config.yaml")

func main() {
	flag.Parse()

	cfg, err := config.LoadWithPath(*configPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if engine.Provider == nil {
		log.Error("no conversation engine wired; set engine.Provider before starting the server")
		os.Exit(1)
	}
	eng, err := engine.Provider(cfg.Sessions.CodexHome)
	if err != nil {
		log.Error("failed to construct conversation engine", zap.Error(err))
		os.Exit(1)
	}

	rolloutStore := rollout.New(cfg.Sessions.CodexHome)
	authMgr := auth.NewFileManager(cfg.Sessions.CodexHome)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := jsonrpc.NewReader(os.Stdin, log)
	writer := jsonrpc.NewWriter(os.Stdout, log)
	mux := jsonrpc.NewMultiplexer(writer)

	var auxAgents *auxagent.Manager
	if cfg.Server.MaxAuxAgents > 0 {
		auxAgents = auxagent.New(cfg.Server.MaxAuxAgents, mustExecutable(log), "", mux, log)
	}

	proc := processor.New(mux, eng, rolloutStore, auxAgents, authMgr, cfg, log, serverName, serverVersion)
	dispatcher := router.New()
	proc.Register(dispatcher)

	go writer.Run()
	go reader.Run(ctx)

	log.Info("codex-mcp-server ready", zap.String("codex_home", cfg.Sessions.CodexHome))

	runDispatchLoop(ctx, log, reader, writer, mux, dispatcher, proc)

	writer.Stop()
	mux.Shutdown()
	log.Info("codex-mcp-server stopped")
}

func mustExecutable(log *logger.Logger) string {
	exe, err := os.Executable()
	if err != nil {
		log.Error("failed to resolve current executable path", zap.Error(err))
		os.Exit(1)
	}
	return exe
}

// runDispatchLoop is the main stdio event loop (spec.md §4.1): classify
// each inbound frame, route requests through dispatcher, correlate
// responses/errors back onto mux, and translate `cancelled` notifications
// into interrupts.
func runDispatchLoop(ctx context.Context, log *logger.Logger, reader *jsonrpc.Reader, writer *jsonrpc.Writer, mux *jsonrpc.Multiplexer, dispatcher *router.Dispatcher, proc *processor.Processor) {
	for {
		select {
		case frame, ok := <-reader.Frames():
			if !ok {
				return
			}
			handleFrame(ctx, log, mux, dispatcher, proc, frame)

		case err := <-writer.Fatal():
			log.Error("outbound write failed; shutting down", zap.Error(err))
			return

		case <-ctx.Done():
			return
		}
	}
}

func handleFrame(ctx context.Context, log *logger.Logger, mux *jsonrpc.Multiplexer, dispatcher *router.Dispatcher, proc *processor.Processor, frame jsonrpc.Inbound) {
	switch frame.Kind {
	case jsonrpc.KindRequest:
		var req jsonrpc.Request
		if err := json.Unmarshal(frame.Line, &req); err != nil {
			log.Warn("failed to decode request frame", zap.Error(err))
			return
		}

		spanCtx, span := tracing.Tracer(serverName).Start(ctx, req.Method)
		result, deferred, rpcErr := dispatcher.Dispatch(spanCtx, &req)
		if deferred {
			span.SetAttributes(attribute.Bool("codex.deferred", true))
			span.End()
			return
		}
		if rpcErr != nil {
			span.SetStatus(codes.Error, rpcErr.Message)
			span.SetAttributes(attribute.Int("codex.rpc_error_code", rpcErr.Code))
			span.End()
			mux.SendError(req.ID, rpcErr)
			return
		}
		span.End()
		mux.SendResponse(req.ID, result)

	case jsonrpc.KindResponse:
		var resp jsonrpc.Response
		if err := json.Unmarshal(frame.Line, &resp); err != nil {
			log.Warn("failed to decode response frame", zap.Error(err))
			return
		}
		mux.ResolveResponse(&resp)

	case jsonrpc.KindError:
		var errFrame jsonrpc.ErrorFrame
		if err := json.Unmarshal(frame.Line, &errFrame); err != nil {
			log.Warn("failed to decode error frame", zap.Error(err))
			return
		}
		mux.ResolveError(&errFrame)

	case jsonrpc.KindNotification:
		var notif jsonrpc.Notification
		if err := json.Unmarshal(frame.Line, &notif); err != nil {
			log.Warn("failed to decode notification frame", zap.Error(err))
			return
		}
		if notif.Method == "cancelled" || notif.Method == "notifications/cancelled" {
			handleCancelledNotification(ctx, proc, notif.Params)
		}
	}
}

type cancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
}

func handleCancelledNotification(ctx context.Context, proc *processor.Processor, raw json.RawMessage) {
	var params cancelledParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	var id jsonrpc.RequestID
	if err := json.Unmarshal(params.RequestID, &id); err != nil {
		return
	}
	proc.HandleCancelledNotification(ctx, id.String())
}
