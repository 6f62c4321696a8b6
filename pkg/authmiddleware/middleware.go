// Package authmiddleware implements C9: it tries a caller-ordered chain of
// credential validators (C6) against an incoming
// request and yields the first successful AuthenticationResult, which it
// attaches to the request's context for downstream handlers. It mirrors
// toolhive's pkg/auth/middleware/auth.go TokenMiddleware /
// pkg/auth/middleware.go factory wiring, generalized from one JWT
// validator to the ordered multi-validator chain spec.md requires.
package authmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnellog"
)

// Validator is the uniform shape every C6 credential validator is
// adapted to: inspect the request, return (result, nil) on success,
// (nil, nil) when not applicable/not configured, or (nil, err) when the
// request clearly attempted this method and failed.
type Validator interface {
	Validate(r *http.Request) (*authresult.Result, error)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(r *http.Request) (*authresult.Result, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(r *http.Request) (*authresult.Result, error) {
	return f(r)
}

// BearerAdapter adapts a validator shaped as Validate(ctx, bearerToken)
// — the shape used by C6's OAuth-token and service-account validators,
// which have no need for the full *http.Request — into a Validator that
// extracts the bearer token from the Authorization header itself.
func BearerAdapter(fn func(ctx context.Context, bearer string) (*authresult.Result, error)) Validator {
	return ValidatorFunc(func(r *http.Request) (*authresult.Result, error) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return nil, nil
		}
		return fn(r.Context(), strings.TrimPrefix(header, "Bearer "))
	})
}

type contextKey struct{}

var resultContextKey = contextKey{}

// WithResult stashes an AuthenticationResult on a context, for handlers
// downstream of the middleware to retrieve.
func WithResult(ctx context.Context, result *authresult.Result) context.Context {
	return context.WithValue(ctx, resultContextKey, result)
}

// ResultFromContext retrieves the AuthenticationResult a prior middleware
// invocation attached, if any.
func ResultFromContext(ctx context.Context) (*authresult.Result, bool) {
	result, ok := ctx.Value(resultContextKey).(*authresult.Result)
	return result, ok
}

// Chain is an ordered sequence of validators, tried in exactly the order
// they were passed to NewChain. This package builds no default chain and
// does not reorder validators; putting them in priority order (for
// example API key -> OAuth -> JWT -> ServiceAccount -> DeviceCode) is
// left to the caller.
type Chain struct {
	validators []Validator
	logEvents  bool
}

// NewChain builds a Chain trying validators in the given order.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// WithAuditLogging turns on structured logging of each authentication
// attempt. Token values are never logged, only the winning auth type and
// remote address.
func (c *Chain) WithAuditLogging(enabled bool) *Chain {
	c.logEvents = enabled
	return c
}

// Authenticate tries each validator in order. The first Some (non-nil
// result, nil error) wins. If every validator returns (nil, nil), the
// request is unauthenticated but not rejected here — the caller's
// resolver decides per-tool whether that's acceptable. If a validator
// returns a non-nil error before any success, that is the first error
// encountered and is surfaced immediately.
func (c *Chain) Authenticate(r *http.Request) (*authresult.Result, error) {
	for _, v := range c.validators {
		result, err := v.Validate(r)
		if err != nil {
			if c.logEvents {
				tunnellog.Warnw("authentication attempt failed", "remote_addr", r.RemoteAddr, "error", err.Error())
			}
			return nil, err
		}
		if result != nil {
			if c.logEvents {
				tunnellog.Infow("authentication succeeded", "auth_type", string(result.Kind), "remote_addr", r.RemoteAddr)
			}
			return result, nil
		}
	}
	return nil, nil
}

// Middleware wraps next, attaching any successful AuthenticationResult
// to the downstream request's context. A nil result (unauthenticated)
// and a validator error are both passed through to next unchanged — this
// middleware never itself rejects a request; that decision belongs to
// the resolver and to individual tool handlers.
func (c *Chain) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := c.Authenticate(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if result != nil {
			r = r.WithContext(WithResult(r.Context(), result))
		}
		next.ServeHTTP(w, r)
	})
}
