// Package authresult defines AuthenticationResult, the uniform value
// every credential validator (C6) yields and the authentication context
// builder (C10) consumes. It lives in its own package so validators,
// middleware, and context construction can all depend on it without
// creating an import cycle between them.
package authresult

import "time"

// Kind tags which AuthenticationResult variant is populated.
type Kind string

const (
	KindAPIKey         Kind = "api_key"
	KindOAuth          Kind = "oauth"
	KindJWT            Kind = "jwt"
	KindServiceAccount Kind = "service_account"
	KindDeviceCode     Kind = "device_code"
)

// Result is the tagged union a successful validator returns.
type Result struct {
	Kind Kind

	// UserID is the resolved identity: key name, OAuth subject, JWT
	// subject, service-account login, or empty while a device-code flow
	// is still pending.
	UserID string

	Provider    string
	Scopes      []string
	Permissions []string

	AccessToken string
	ExpiresAt   *time.Time

	// Pending is true only for KindDeviceCode results still awaiting
	// user authorization.
	Pending bool

	Metadata map[string]string
}
