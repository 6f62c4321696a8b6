package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// callbackTimeout bounds how long AwaitCallback will wait for a delivery
// before giving up, per spec.md §4.10.
const callbackTimeout = 5 * time.Minute

// CallbackResult carries whatever the transport's
// /auth/callback/<server_name> endpoint received.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackRegistry is a mutex-guarded map of single-shot channels keyed
// by server name: the transport layer calls Deliver when it receives the OAuth
// redirect; the flow that started the authorization calls AwaitCallback
// and blocks until delivery or timeout. A channel is consumed on first
// delivery and removed, so a second Deliver call for the same server
// name, with no waiter registered, returns a "no waiter" error without
// affecting any state — the round-trip idempotence law in spec.md §8.
type CallbackRegistry struct {
	mu       sync.Mutex
	waiters  map[string]chan CallbackResult
}

// NewCallbackRegistry builds an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{waiters: make(map[string]chan CallbackResult)}
}

// Register opens a single-shot waiter for serverName. Calling Register
// again for a server name that already has an open waiter replaces it
// (the prior AwaitCallback call will then time out).
func (r *CallbackRegistry) Register(serverName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiters[serverName] = make(chan CallbackResult, 1)
}

// AwaitCallback blocks until Deliver is called for serverName or
// callbackTimeout elapses, whichever comes first. The waiter is always
// removed when this returns, so the channel is genuinely single-shot.
func (r *CallbackRegistry) AwaitCallback(ctx context.Context, serverName string) (*CallbackResult, error) {
	r.mu.Lock()
	ch, ok := r.waiters[serverName]
	r.mu.Unlock()
	if !ok {
		return nil, tunnelerr.NewAuthError("no pending authorization for server: "+serverName, nil)
	}

	defer func() {
		r.mu.Lock()
		delete(r.waiters, serverName)
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	select {
	case result := <-ch:
		return &result, nil
	case <-ctx.Done():
		return nil, tunnelerr.NewAuthError("oauth callback timed out waiting for server: "+serverName, nil)
	}
}

// Deliver hands a callback result to the waiter registered for
// serverName. Delivering to a server name with no registered waiter
// (including a second delivery after the first consumed it) returns a
// "no waiter" error and otherwise does nothing.
func (r *CallbackRegistry) Deliver(serverName string, result CallbackResult) error {
	r.mu.Lock()
	ch, ok := r.waiters[serverName]
	r.mu.Unlock()
	if !ok {
		return tunnelerr.NewAuthError("no waiter registered for server: "+serverName, nil)
	}

	select {
	case ch <- result:
		return nil
	default:
		return tunnelerr.NewAuthError("callback already delivered for server: "+serverName, nil)
	}
}
