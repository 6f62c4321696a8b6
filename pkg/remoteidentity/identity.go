// Package remoteidentity implements C13: extracting a ClientIdentity
// from an inbound request (and, optionally, the MCP initialization
// payload that rides over it), scoring how much that identity can be
// trusted, and deriving the isolation key and remote session id that
// key every other per-client structure downstream.
package remoteidentity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// ClientIdentity is extracted per request and immutable afterwards.
type ClientIdentity struct {
	ClientIP              string
	ClientPort            string
	ClientHostname        string
	ClientUsername        string
	ProcessInfo           string
	UserAgent             string
	ForwardedChain        []string
	CapabilityFingerprint string
	SessionFingerprint    string

	Confidence float64
}

// MCPInitIdentity is the subset of an MCP initialize payload that can
// carry client-reported identity, used to cross-check the HTTP-derived
// ClientIdentity.
type MCPInitIdentity struct {
	Hostname    string
	Username    string
	ProcessInfo string
	ReportedIP  string
}

// ExtractOptions tunes the confidence-scoring penalties.
type ExtractOptions struct {
	TrustForwardedFor bool // whether X-Forwarded-For is from a validated proxy
	MinConfidence     float64
	StrictMode        bool
}

// Extract builds a ClientIdentity from r, optionally cross-checked
// against an MCP init payload. Confidence starts at 1.0 and is
// penalized for missing fields, IP inconsistency between the HTTP peer
// and MCP-reported identity, and an untrusted X-Forwarded-For chain.
func Extract(r *http.Request, mcpInit *MCPInitIdentity, opts ExtractOptions) (*ClientIdentity, error) {
	id := &ClientIdentity{Confidence: 1.0}

	peerIP, peerPort := splitHostPort(r.RemoteAddr)
	id.ClientIP = peerIP
	id.ClientPort = peerPort

	id.ForwardedChain = parseForwardedFor(r.Header.Get("X-Forwarded-For"))
	if len(id.ForwardedChain) > 0 {
		if !opts.TrustForwardedFor {
			id.Confidence -= 0.1
		} else {
			// The first hop in an X-Forwarded-For chain is the original
			// client; prefer it over the immediate TCP peer (likely a
			// trusted proxy) when the chain is validated.
			id.ClientIP = id.ForwardedChain[0]
		}
	}

	id.UserAgent = r.Header.Get("User-Agent")
	if id.UserAgent == "" {
		id.Confidence -= 0.1
	}

	id.ClientHostname = r.Header.Get("X-Client-Hostname")
	id.ClientUsername = r.Header.Get("X-Client-Username")
	id.ProcessInfo = r.Header.Get("X-Client-Process-Info")

	if mcpInit != nil {
		if mcpInit.Hostname != "" {
			id.ClientHostname = mcpInit.Hostname
		}
		if mcpInit.Username != "" {
			id.ClientUsername = mcpInit.Username
		}
		if mcpInit.ProcessInfo != "" {
			id.ProcessInfo = mcpInit.ProcessInfo
		}
		if mcpInit.ReportedIP != "" && id.ClientIP != "" && mcpInit.ReportedIP != id.ClientIP {
			id.Confidence -= 0.3
		}
	}

	if id.ClientHostname == "" {
		id.Confidence -= 0.05
	}
	if id.ClientUsername == "" {
		id.Confidence -= 0.05
	}

	id.SessionFingerprint = Fingerprint(r)

	if id.Confidence < 0 {
		id.Confidence = 0
	}

	if opts.StrictMode && opts.MinConfidence > 0 && id.Confidence < opts.MinConfidence {
		return id, tunnelerr.NewSecurityError(
			fmt.Sprintf("client identity confidence %.2f below required minimum %.2f", id.Confidence, opts.MinConfidence), nil)
	}
	return id, nil
}

// Fingerprint computes the session fingerprint SHA256(user_agent ‖
// accept ‖ accept_language), truncated to 16 hex characters.
func Fingerprint(r *http.Request) string {
	h := sha256.New()
	h.Write([]byte(r.Header.Get("User-Agent")))
	h.Write([]byte("\x00"))
	h.Write([]byte(r.Header.Get("Accept")))
	h.Write([]byte("\x00"))
	h.Write([]byte(r.Header.Get("Accept-Language")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func splitHostPort(remoteAddr string) (host, port string) {
	h, p, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr, ""
	}
	return h, p
}

// parseForwardedFor splits a comma-separated X-Forwarded-For header,
// trimming whitespace, with the first entry (original client) first.
func parseForwardedFor(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	chain := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			chain = append(chain, trimmed)
		}
	}
	return chain
}
