package subscription

import (
	"context"
	"encoding/json"

	"github.com/sangoi-exe/codex/internal/jsonrpc"
)

func unmarshalReply(r jsonrpc.Reply, v any) error {
	return json.Unmarshal(r.Result, v)
}

func unmarshalRaw(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// contextWithCancelChan derives a context that is also cancelled when
// cancel fires, so a blocking NextEvent call can be interrupted by an
// explicit unsubscribe without the conversation engine knowing about
// cancel channels.
func contextWithCancelChan(parent context.Context, cancel <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, stop := context.WithCancel(parent)
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}
