package security

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/isolatedsession"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/remoteidentity"
)

// Config tunes the validator's policy set, threat rules, and timeouts.
type Config struct {
	Policies              []Policy
	SuspiciousIPPatterns  []string // wildcarded, e.g. "10.0.0.*"
	AllowIPChange         bool
	SessionTimeoutSeconds int
}

func (c *Config) applyDefaults() {
	if c.SessionTimeoutSeconds <= 0 {
		c.SessionTimeoutSeconds = 8 * 60 * 60
	}
}

// Validator runs the four security checks against an isolated session.
type Validator struct {
	cfg Config
}

// New builds a Validator.
func New(cfg Config) *Validator {
	cfg.applyDefaults()
	return &Validator{cfg: cfg}
}

// ValidateSession runs identity-drift, policy, threat-detection, and
// session-timeout checks against sess for the current request r, and
// combines them into a SecurityValidationResult.
func (v *Validator) ValidateSession(r *http.Request, sess *isolatedsession.IsolatedSession) (*SecurityValidationResult, error) {
	result := &SecurityValidationResult{SecurityScore: 1.0, ThreatLevel: ThreatNone}

	current, err := remoteidentity.Extract(r, nil, remoteidentity.ExtractOptions{TrustForwardedFor: true})
	if err != nil {
		return nil, err
	}
	original := sess.Identity()
	snap := sess.Snapshot()

	v.checkIdentityDrift(result, original, *current)
	v.checkPolicies(result, current, snap)
	v.checkThreats(result, r, original, current, snap)
	v.checkTimeout(result, snap)

	result.ThreatLevel = worstThreatLevel(append(violationLevels(result.PolicyViolations), findingLevels(result.ThreatFindings)...)...)

	if result.SecurityScore < 0 {
		result.SecurityScore = 0
	}
	return result, nil
}

func violationLevels(vs []PolicyViolation) []ThreatLevel {
	ls := make([]ThreatLevel, len(vs))
	for i, v := range vs {
		ls[i] = v.Severity
	}
	return ls
}

func findingLevels(fs []ThreatFinding) []ThreatLevel {
	ls := make([]ThreatLevel, len(fs))
	for i, f := range fs {
		ls[i] = f.Severity
	}
	return ls
}

// checkIdentityDrift compares the request's freshly-extracted identity
// against the one captured at session creation.
func (v *Validator) checkIdentityDrift(result *SecurityValidationResult, original, current remoteidentity.ClientIdentity) {
	if original.ClientIP != "" && current.ClientIP != "" && original.ClientIP != current.ClientIP && !v.cfg.AllowIPChange {
		result.SecurityScore -= 0.3
		result.Issues = append(result.Issues, "client IP changed since session creation")
		result.Recommendations = append(result.Recommendations, "verify client identity before continuing")
	}
	if original.UserAgent != "" && current.UserAgent != "" && original.UserAgent != current.UserAgent {
		result.SecurityScore -= 0.1
		result.Issues = append(result.Issues, "user agent changed since session creation")
	}
	if original.SessionFingerprint != "" && current.SessionFingerprint != "" && original.SessionFingerprint != current.SessionFingerprint {
		result.SecurityScore -= 0.2
		result.Issues = append(result.Issues, "session fingerprint mismatch")
	}
}

// checkPolicies evaluates every enabled, unexpired policy.
func (v *Validator) checkPolicies(result *SecurityValidationResult, current *remoteidentity.ClientIdentity, snap isolatedsession.Snapshot) {
	now := time.Now()
	for _, p := range v.cfg.Policies {
		if !p.Enabled || p.Expired(now) {
			continue
		}
		violation, ok := evaluatePolicy(p, current, snap, now)
		if !ok {
			continue
		}
		result.PolicyViolations = append(result.PolicyViolations, violation)
		result.SecurityScore -= policyPenalty(violation.Severity)
		result.Issues = append(result.Issues, violation.Message)
		if violation.Severity == ThreatCritical {
			result.ShouldBlock = true
		}
	}
}

func evaluatePolicy(p Policy, current *remoteidentity.ClientIdentity, snap isolatedsession.Snapshot, now time.Time) (PolicyViolation, bool) {
	switch p.Type {
	case PolicyIPWhitelist:
		if current.ClientIP == "" || !ipAllowed(current.ClientIP, p.AllowedIPs) {
			return PolicyViolation{PolicyID: p.ID, PolicyType: p.Type, Severity: ThreatHigh,
				Message: "client IP not in whitelist for policy " + p.Name}, true
		}
	case PolicySessionTimeout:
		if p.MaxSessionSeconds > 0 && now.Sub(snap.CreatedAt) > time.Duration(p.MaxSessionSeconds)*time.Second {
			return PolicyViolation{PolicyID: p.ID, PolicyType: p.Type, Severity: ThreatMedium,
				Message: "session exceeds policy-configured max duration"}, true
		}
	case PolicyConcurrentSessions:
		// Concurrency is enforced at session-creation time by
		// isolatedsession.Manager; nothing further to check per-request.
		return PolicyViolation{}, false
	case PolicyGeographic, PolicyTimeBasedAccess:
		// Neither geo-IP lookup nor a clock-source abstraction is
		// available in this module; undecidable policies are reported
		// as Medium per spec.md §4.16 rather than silently skipped.
		return PolicyViolation{PolicyID: p.ID, PolicyType: p.Type, Severity: ThreatMedium,
			Message: "policy " + p.Name + " could not be evaluated (undecidable in this deployment)"}, true
	}
	return PolicyViolation{}, false
}

func ipAllowed(ip string, allowed []string) bool {
	for _, pattern := range allowed {
		if matchWildcard(pattern, ip) {
			return true
		}
	}
	return false
}

// matchWildcard supports a trailing "*" wildcard, e.g. "10.0.0.*".
func matchWildcard(pattern, value string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	prefix := strings.TrimSuffix(pattern, "*")
	return strings.HasPrefix(value, prefix)
}

var maliciousUAPattern = regexp.MustCompile(`(?i)(curl|wget|python-requests|scanner|nikto|sqlmap|nmap)`)

// checkThreats runs the fixed set of threat-detection rules.
func (v *Validator) checkThreats(result *SecurityValidationResult, r *http.Request, original remoteidentity.ClientIdentity, current *remoteidentity.ClientIdentity, snap isolatedsession.Snapshot) {
	var findings []ThreatFinding

	if current.ClientIP != "" {
		for _, pattern := range v.cfg.SuspiciousIPPatterns {
			if matchWildcard(pattern, current.ClientIP) {
				findings = append(findings, ThreatFinding{Rule: ThreatSuspiciousIP, Severity: ThreatHigh,
					Message: "client IP matches suspicious pattern " + pattern})
				break
			}
		}
	}

	if now := time.Now(); now.Sub(snap.CreatedAt) > 24*time.Hour {
		findings = append(findings, ThreatFinding{Rule: ThreatAbnormalBehavior, Severity: ThreatLow,
			Message: "unusually long-lived session"})
	}
	if current.ClientIP == "" {
		findings = append(findings, ThreatFinding{Rule: ThreatAbnormalBehavior, Severity: ThreatMedium,
			Message: "missing client IP"})
	}

	if ua := r.Header.Get("User-Agent"); maliciousUAPattern.MatchString(ua) {
		findings = append(findings, ThreatFinding{Rule: ThreatMaliciousHeaders, Severity: ThreatHigh,
			Message: "user agent matches known scanner/tooling pattern"})
	}
	for _, hop := range current.ForwardedChain {
		if hop == "127.0.0.1" || hop == "::1" || strings.EqualFold(hop, "localhost") {
			findings = append(findings, ThreatFinding{Rule: ThreatMaliciousHeaders, Severity: ThreatMedium,
				Message: "forwarded-for chain references localhost"})
			break
		}
	}

	if hijacked(original, *current) {
		findings = append(findings, ThreatFinding{Rule: ThreatSessionHijacking, Severity: ThreatCritical,
			Message: "client IP or browser family changed mid-session"})
	}

	for _, f := range findings {
		result.ThreatFindings = append(result.ThreatFindings, f)
		result.SecurityScore -= threatPenalty(f.Severity)
		result.Issues = append(result.Issues, f.Message)
		if f.Severity == ThreatCritical {
			result.ShouldBlock = true
		}
	}
}

// hijacked reports likely session hijacking: the client IP changed, or
// the user agent's browser family changed (minor version differences,
// e.g. "Chrome/120" vs "Chrome/121", are not hijacking signals).
func hijacked(original, current remoteidentity.ClientIdentity) bool {
	if original.ClientIP == "" || current.ClientIP == "" {
		return false
	}
	if original.ClientIP != current.ClientIP {
		return true
	}
	if original.UserAgent == "" || current.UserAgent == "" {
		return false
	}
	return browserFamily(original.UserAgent) != browserFamily(current.UserAgent)
}

var browserFamilyPattern = regexp.MustCompile(`(?i)(Firefox|Chrome|Safari|Edge|OPR|MSIE|Trident)`)

// browserFamily extracts the first recognized browser token from a
// user-agent string, ignoring version numbers.
func browserFamily(userAgent string) string {
	m := browserFamilyPattern.FindString(userAgent)
	return strings.ToLower(m)
}

// checkTimeout zeroes the score and forces termination once the session
// age exceeds session_timeout_seconds; inactivity beyond half that
// requires additional auth.
func (v *Validator) checkTimeout(result *SecurityValidationResult, snap isolatedsession.Snapshot) {
	timeout := time.Duration(v.cfg.SessionTimeoutSeconds) * time.Second
	now := time.Now()
	if now.Sub(snap.CreatedAt) > timeout {
		result.SecurityScore = 0
		result.ShouldBlock = true
		result.RecommendedActions = append(result.RecommendedActions, ActionTerminate)
		result.Issues = append(result.Issues, "session exceeded configured timeout")
		return
	}
	if now.Sub(snap.LastActive) > timeout/2 {
		result.RequiresAdditionalAuth = true
		result.RecommendedActions = append(result.RecommendedActions, ActionRequireReauth)
		result.Issues = append(result.Issues, "session inactive beyond half the configured timeout")
	}
}
