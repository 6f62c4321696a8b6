package validators

import (
	"net/http"
	"strings"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
)

// DeviceCodeValidator recognizes a request asking to use the Device Code
// flow (via Authorization: DeviceCode <provider>:<scopes> or the
// X-Device-Code-Provider/X-Device-Code-Scopes header pair) and yields a
// Pending result; the actual polling/exchange state machine lives in the
// OAuth core, not here.
type DeviceCodeValidator struct {
	Enabled bool
}

// NewDeviceCodeValidator builds a device-code request recognizer.
func NewDeviceCodeValidator(enabled bool) *DeviceCodeValidator {
	return &DeviceCodeValidator{Enabled: enabled}
}

// Validate returns a pending KindDeviceCode result when the request asks
// for the device-code flow, or (nil, nil) otherwise.
func (v *DeviceCodeValidator) Validate(r *http.Request) (*authresult.Result, error) {
	if !v.Enabled {
		return nil, nil
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "DeviceCode ") {
		rest := strings.TrimPrefix(header, "DeviceCode ")
		provider, scopesRaw, _ := strings.Cut(rest, ":")
		return &authresult.Result{
			Kind:     authresult.KindDeviceCode,
			Provider: provider,
			Scopes:   splitScope(strings.ReplaceAll(scopesRaw, ",", " ")),
			Pending:  true,
		}, nil
	}

	if provider := r.Header.Get("X-Device-Code-Provider"); provider != "" {
		scopes := r.Header.Get("X-Device-Code-Scopes")
		return &authresult.Result{
			Kind:     authresult.KindDeviceCode,
			Provider: provider,
			Scopes:   splitScope(strings.ReplaceAll(scopes, ",", " ")),
			Pending:  true,
		}, nil
	}

	return nil, nil
}
