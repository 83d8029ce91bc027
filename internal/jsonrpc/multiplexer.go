package jsonrpc

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Reply is what a server-initiated request eventually resolves to: the raw
// result payload on success, or an error payload on failure.
type Reply struct {
	Result json.RawMessage
	Err    *Error
}

// Multiplexer is the single sender endpoint used by every component
// (spec.md §4.1). It mints outbound request ids, correlates inbound
// responses/errors back to their reply channel, and serializes every
// outbound frame through a Writer.
type Multiplexer struct {
	writer *Writer

	nextID  int64
	mu      sync.Mutex
	pending map[string]chan Reply // keyed by RequestID.String()
}

// NewMultiplexer builds a Multiplexer fronting the given Writer.
func NewMultiplexer(w *Writer) *Multiplexer {
	return &Multiplexer{
		writer:  w,
		pending: make(map[string]chan Reply),
	}
}

// SendResponse enqueues a success response for request id.
func (m *Multiplexer) SendResponse(id RequestID, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		m.SendError(id, Internal("failed to marshal result: %v", err))
		return
	}
	m.writer.Enqueue(OutboundMessage{response: &Response{JSONRPC: "2.0", ID: id, Result: raw}})
}

// SendError enqueues an error response for request id.
func (m *Multiplexer) SendError(id RequestID, rpcErr *Error) {
	m.writer.Enqueue(OutboundMessage{errorFrame: &ErrorFrame{JSONRPC: "2.0", ID: id, Error: *rpcErr}})
}

// SendNotification enqueues a one-way notification.
func (m *Multiplexer) SendNotification(method string, params any) {
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err == nil {
			raw = encoded
		}
	}
	m.writer.Enqueue(OutboundMessage{notification: &Notification{JSONRPC: "2.0", Method: method, Params: raw}})
}

// SendRequest mints a fresh outbound id, registers a single-shot reply
// channel, enqueues the request, and returns the channel. The channel is
// resolved exactly once: by a matching inbound response/error, or closed
// (yielding a zero Reply) if the inbound side closes first.
func (m *Multiplexer) SendRequest(method string, params any) <-chan Reply {
	id := NewIntID(atomic.AddInt64(&m.nextID, 1))
	reply := make(chan Reply, 1)

	m.mu.Lock()
	m.pending[id.String()] = reply
	m.mu.Unlock()

	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err == nil {
			raw = encoded
		}
	}
	m.writer.Enqueue(OutboundMessage{request: &Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}})

	return reply
}

// ResolveResponse completes a pending server-initiated request with a
// success payload.
func (m *Multiplexer) ResolveResponse(resp *Response) {
	m.resolve(resp.ID, Reply{Result: resp.Result})
}

// ResolveError completes a pending server-initiated request with an error
// payload.
func (m *Multiplexer) ResolveError(frame *ErrorFrame) {
	m.resolve(frame.ID, Reply{Err: &frame.Error})
}

func (m *Multiplexer) resolve(id RequestID, reply Reply) {
	m.mu.Lock()
	ch, ok := m.pending[id.String()]
	if ok {
		delete(m.pending, id.String())
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ch <- reply
	close(ch)
}

// Shutdown closes every still-pending reply channel so waiters observe
// failure instead of blocking forever (spec.md §4.1: dropped on close).
func (m *Multiplexer) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
}
