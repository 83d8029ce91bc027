package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/sangoi-exe/codex/internal/logger"
	"go.uber.org/zap"
)

// inboundChannelCapacity bounds the stdin-reader-to-dispatcher channel.
// A slow processor stalls the reader, which applies OS-level backpressure
// to the client (spec.md §5 Backpressure).
const inboundChannelCapacity = 128

// Inbound is a classified, still-raw inbound line ready for typed decoding.
type Inbound struct {
	Kind Kind
	Line []byte
}

// Reader reads newline-delimited JSON-RPC frames from an io.Reader and
// publishes classified lines on a bounded channel. Parse failures are
// logged and skipped; they never abort the loop (spec.md §4.1).
type Reader struct {
	in     *bufio.Scanner
	log    *logger.Logger
	frames chan Inbound
}

// NewReader wraps r for line-delimited JSON-RPC framing.
func NewReader(r io.Reader, log *logger.Logger) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{
		in:     scanner,
		log:    log,
		frames: make(chan Inbound, inboundChannelCapacity),
	}
}

// Frames returns the channel of classified inbound lines. It is closed when
// Run returns, which is the canonical shutdown signal for the dispatch loop.
func (r *Reader) Frames() <-chan Inbound { return r.frames }

// Run reads until EOF or ctx cancellation, closing Frames() on return.
func (r *Reader) Run(ctx context.Context) {
	defer close(r.frames)
	for r.in.Scan() {
		line := r.in.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)

		kind, err := Classify(cp)
		if err != nil {
			r.log.Warn("failed to classify inbound frame", zap.Error(err), zap.ByteString("line", cp))
			continue
		}

		select {
		case r.frames <- Inbound{Kind: kind, Line: cp}:
		case <-ctx.Done():
			return
		}
	}
	if err := r.in.Err(); err != nil {
		r.log.Warn("stdin scanner error", zap.Error(err))
	}
}

// OutboundMessage is one of the four outbound frame shapes, enqueued by
// value so ordering matches enqueue order (spec.md §4.1 Outbound).
type OutboundMessage struct {
	response     *Response
	errorFrame   *ErrorFrame
	notification *Notification
	request      *Request
}

// Writer drains an outbound queue to an io.Writer, one JSON line per
// message. A write error is fatal: the process can no longer make progress.
//
// The queue itself is a mutex-guarded, ever-growing slice rather than a
// fixed-capacity channel (mirrors the orchestrator's mutex-guarded
// queue.TaskQueue, minus its maxSize/heap ordering: outbound frames have no
// priority and must never be rejected for capacity). Enqueue only ever
// appends and pings a 1-buffered wake channel, so it cannot block on a full
// buffer the way a bounded channel send can — a stalled/absent stdout
// reader grows this queue instead of stalling whatever goroutine is
// enqueueing (spec.md §5: the inbound dispatch loop must never stall on
// outbound backpressure).
type Writer struct {
	out     io.Writer
	log     *logger.Logger
	mu      sync.Mutex
	buf     []OutboundMessage
	stopped bool
	wake    chan struct{}
	fatal   chan error
	closed  chan struct{}
}

// NewWriter wraps w as the sole outbound serializer.
func NewWriter(w io.Writer, log *logger.Logger) *Writer {
	return &Writer{
		out:    w,
		log:    log,
		wake:   make(chan struct{}, 1),
		fatal:  make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// Enqueue is O(1) amortized and never blocks: it appends under a mutex held
// only for the append itself, never across I/O. Safe to call after Stop
// (the message is simply dropped once Stop has been called).
func (w *Writer) Enqueue(msg OutboundMessage) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.buf = append(w.buf, msg)
	w.mu.Unlock()
	w.wakeRun()
}

func (w *Writer) wakeRun() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run serializes and writes messages until Stop is called and the queue
// drains, or a write fails, in which case it reports the error on Fatal().
func (w *Writer) Run() {
	defer close(w.closed)
	for {
		msg, ok := w.dequeue()
		if !ok {
			return
		}

		line, err := encode(msg)
		if err != nil {
			w.log.Error("failed to serialize outbound frame", zap.Error(err))
			continue
		}
		if _, err := w.out.Write(append(line, '\n')); err != nil {
			w.log.Error("failed to write outbound frame", zap.Error(err))
			select {
			case w.fatal <- err:
			default:
			}
			return
		}
	}
}

// dequeue blocks until a message is available, ok is false once Stop has
// been called and the buffer has fully drained.
func (w *Writer) dequeue() (OutboundMessage, bool) {
	for {
		w.mu.Lock()
		if len(w.buf) > 0 {
			msg := w.buf[0]
			w.buf[0] = OutboundMessage{}
			w.buf = w.buf[1:]
			if len(w.buf) == 0 {
				w.buf = nil
			}
			w.mu.Unlock()
			return msg, true
		}
		if w.stopped {
			w.mu.Unlock()
			return OutboundMessage{}, false
		}
		w.mu.Unlock()
		<-w.wake
	}
}

// Stop marks the queue closed, letting Run drain whatever remains and exit.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.wakeRun()
}

// Fatal reports the write error that terminated Run, if any.
func (w *Writer) Fatal() <-chan error { return w.fatal }

func encode(msg OutboundMessage) ([]byte, error) {
	switch {
	case msg.response != nil:
		return json.Marshal(msg.response)
	case msg.errorFrame != nil:
		return json.Marshal(msg.errorFrame)
	case msg.notification != nil:
		return json.Marshal(msg.notification)
	case msg.request != nil:
		return json.Marshal(msg.request)
	default:
		return nil, fmt.Errorf("jsonrpc: empty outbound message")
	}
}
