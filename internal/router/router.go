// Package router dispatches inbound JSON-RPC requests to handlers, mirroring
// the dispatcher pattern from the corpus's websocket package: a map of
// method name to Handler, with an explicit unknown-method fallback.
package router

import (
	"context"
	"encoding/json"

	"github.com/sangoi-exe/codex/internal/jsonrpc"
)

// Handler answers one inbound request with a result payload or an RPC error.
// A true deferred flag means the handler sends its own response later,
// asynchronously (spec.md §4.4: interruptConversation, streaming callTool),
// and the router must not reply.
type Handler interface {
	Handle(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (result any, deferred bool, err *jsonrpc.Error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (any, bool, *jsonrpc.Error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, id jsonrpc.RequestID, params json.RawMessage) (any, bool, *jsonrpc.Error) {
	return f(ctx, id, params)
}

// Dispatcher routes requests by method name. One instance handles both the
// extended codex.* surface and the native MCP methods; the processor
// registers both sets onto it (spec.md §4.3 steps 1-2 are just "is there a
// handler registered for this exact method name").
type Dispatcher struct {
	handlers map[string]Handler
}

// New builds an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a handler to a method name, overwriting any prior one.
func (d *Dispatcher) Register(method string, h Handler) {
	d.handlers[method] = h
}

// RegisterFunc is the function-literal convenience form of Register.
func (d *Dispatcher) RegisterFunc(method string, h HandlerFunc) {
	d.handlers[method] = h
}

// HasHandler reports whether method is registered.
func (d *Dispatcher) HasHandler(method string) bool {
	_, ok := d.handlers[method]
	return ok
}

// Dispatch routes req to its handler. Step 3 of spec.md §4.3 (unknown method
// → InvalidRequest) lives here as the fallback case.
func (d *Dispatcher) Dispatch(ctx context.Context, req *jsonrpc.Request) (result any, deferred bool, rpcErr *jsonrpc.Error) {
	h, ok := d.handlers[req.Method]
	if !ok {
		return nil, false, jsonrpc.InvalidRequest("unknown method: %s", req.Method)
	}
	return h.Handle(ctx, req.ID, req.Params)
}
