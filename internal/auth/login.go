package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
)

// LoginSession is a single in-flight ChatGPT OAuth login (spec.md §4.4.d).
// It owns a short-lived local HTTP server that waits for the browser
// redirect carrying the OAuth callback, then signals completion on Done.
type LoginSession struct {
	AuthURL string
	Done    <-chan error

	server   *http.Server
	listener net.Listener
	once     sync.Once
}

// StartLoginSession binds an ephemeral local port, serves a single-shot
// callback handler, and returns immediately with the URL the client should
// open in a browser.
func StartLoginSession(ctx context.Context) (*LoginSession, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("auth: binding local login server: %w", err)
	}

	done := make(chan error, 1)
	mux := http.NewServeMux()
	session := &LoginSession{
		AuthURL:  fmt.Sprintf("http://%s/auth/callback", listener.Addr().String()),
		Done:     done,
		listener: listener,
	}

	mux.HandleFunc("/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			session.complete(done, fmt.Errorf("oauth error: %s", errMsg))
			http.Error(w, "login failed", http.StatusBadRequest)
			return
		}
		session.complete(done, nil)
		fmt.Fprint(w, "You may close this window and return to your editor.")
	})

	session.server = &http.Server{Handler: mux}
	go func() {
		if err := session.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			session.complete(done, err)
		}
	}()

	return session, nil
}

func (s *LoginSession) complete(done chan<- error, err error) {
	s.once.Do(func() {
		done <- err
		close(done)
	})
}

// Shutdown stops the local server, used both on success/failure and on a
// hard timeout or explicit cancelLoginChatGpt.
func (s *LoginSession) Shutdown(ctx context.Context) {
	if s.server != nil {
		_ = s.server.Shutdown(ctx)
	}
}
