// Package secretval provides a zeroizing wrapper for sensitive byte/string
// values: access tokens, refresh tokens, client secrets, API keys, and
// service-account credentials. A value wrapped in a Secret cannot
// accidentally leak through logs, %v formatting, or JSON marshaling. Not
// every such value in this module is wrapped: the API-key, service-account
// and provider client-secret fields in authconfig, and
// authresult.Result's AccessToken, are plain strings.
package secretval

import "encoding/json"

// Secret holds a sensitive value whose Display/Debug/JSON forms never
// reveal it. Zero it explicitly with Zero() once it's no longer needed;
// the zero value of Secret is itself safe to use (empty, not exposed).
type Secret struct {
	value []byte
}

// New wraps a plaintext string as a Secret.
func New(value string) Secret {
	return Secret{value: []byte(value)}
}

// Expose returns the plaintext value. Named Expose (not String or Value)
// so every call site makes the unwrap visible during review.
func (s Secret) Expose() string {
	return string(s.value)
}

// IsEmpty reports whether the secret holds no value.
func (s Secret) IsEmpty() bool {
	return len(s.value) == 0
}

// Zero overwrites the backing array in place. Safe to call on an empty or
// already-zeroed Secret.
func (s *Secret) Zero() {
	for i := range s.value {
		s.value[i] = 0
	}
	s.value = nil
}

// String implements fmt.Stringer, always redacting the value.
func (s Secret) String() string {
	if s.IsEmpty() {
		return "Secret(<empty>)"
	}
	return "Secret(REDACTED)"
}

// GoString satisfies %#v formatting with the same redaction as String.
func (s Secret) GoString() string {
	return s.String()
}

// MarshalJSON redacts the value so Secret fields never leak into stored
// or transmitted JSON. Use MarshalForStorage when the plaintext genuinely
// needs to be persisted (e.g. the token-store's own encrypted envelope).
func (s Secret) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return json.Marshal("")
	}
	return json.Marshal("REDACTED")
}

// UnmarshalJSON accepts a plaintext JSON string into the Secret. This is
// intentionally asymmetric with MarshalJSON: call sites that need
// round-trip persistence use MarshalForStorage/UnmarshalFromStorage
// instead of the json.Marshaler pair, to make the redaction-vs-storage
// distinction explicit at the type level.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	s.value = []byte(str)
	return nil
}

// storageSecret is the wire type used only by components (the token
// store's own encrypted envelope) that must persist the real value.
type storageSecret struct {
	V string `json:"v"`
}

// MarshalForStorage renders the real plaintext value for callers that
// will immediately encrypt the result (e.g. TokenData before AES-GCM
// sealing). Never call this to build a log line or an API response.
func (s Secret) MarshalForStorage() ([]byte, error) {
	return json.Marshal(storageSecret{V: string(s.value)})
}

// UnmarshalFromStorage is the inverse of MarshalForStorage.
func (s *Secret) UnmarshalFromStorage(data []byte) error {
	var st storageSecret
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	s.value = []byte(st.V)
	return nil
}
