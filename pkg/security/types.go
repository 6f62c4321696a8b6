// Package security implements C16: the per-request SecurityValidator and
// its recovery-token mechanism. ValidateSession runs four checks
// (identity drift, policy, threat detection, session timeout) against an
// existing IsolatedSession, whatever its lifecycle state, and combines them into a single
// SecurityValidationResult, exactly per the penalty table the spec
// defines.
package security

import "time"

// ThreatLevel is a coarse severity used by both policy violations and
// threat-detection findings.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// PolicyType enumerates the small fixed set of policies this validator
// can evaluate.
type PolicyType string

const (
	PolicyIPWhitelist         PolicyType = "ip_whitelist"
	PolicySessionTimeout      PolicyType = "session_timeout"
	PolicyConcurrentSessions  PolicyType = "concurrent_sessions"
	PolicyGeographic          PolicyType = "geographic_restriction"
	PolicyTimeBasedAccess     PolicyType = "time_based_access"
)

// Policy is one configured access-control rule. Only the fields
// relevant to its Type are populated.
type Policy struct {
	ID        string
	Name      string
	Type      PolicyType
	Priority  int
	Enabled   bool
	ExpiresAt *time.Time

	AllowedIPs            []string // PolicyIPWhitelist
	MaxSessionSeconds      int      // PolicySessionTimeout
	MaxConcurrentSessions  int      // PolicyConcurrentSessions
	AllowedCountries       []string // PolicyGeographic
	AllowedHoursStart      int      // PolicyTimeBasedAccess, 0-23 local hour
	AllowedHoursEnd        int      // PolicyTimeBasedAccess, 0-23 local hour
}

// Expired reports whether the policy's own expiry has passed.
func (p Policy) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// PolicyViolation is one policy evaluation failure.
type PolicyViolation struct {
	PolicyID string
	PolicyType PolicyType
	Severity ThreatLevel
	Message  string
}

// ThreatRuleType enumerates the threat-detection rule names. checkThreats
// produces every one of them except ThreatRateLimitViolation, which no
// check in this package emits.
type ThreatRuleType string

const (
	ThreatSuspiciousIP        ThreatRuleType = "suspicious_ip"
	ThreatAbnormalBehavior    ThreatRuleType = "abnormal_behavior"
	ThreatRateLimitViolation  ThreatRuleType = "rate_limit_violation"
	ThreatMaliciousHeaders    ThreatRuleType = "malicious_headers"
	ThreatSessionHijacking    ThreatRuleType = "session_hijacking"
)

// ThreatFinding is one detected threat-detection rule match.
type ThreatFinding struct {
	Rule     ThreatRuleType
	Severity ThreatLevel
	Message  string
}

// SessionAction is a recommended lifecycle action a caller may apply to
// the session in response to a validation result.
type SessionAction string

const (
	ActionNone              SessionAction = "none"
	ActionRequireReauth     SessionAction = "require_reauth"
	ActionSuspend           SessionAction = "suspend"
	ActionTerminate         SessionAction = "terminate"
)

// SecurityValidationResult is the combined output of ValidateSession.
type SecurityValidationResult struct {
	SecurityScore           float64
	ThreatLevel             ThreatLevel
	PolicyViolations        []PolicyViolation
	ThreatFindings          []ThreatFinding
	Issues                  []string
	Recommendations         []string
	ShouldBlock             bool
	RequiresAdditionalAuth  bool
	RecommendedActions      []SessionAction
}

// policyPenalty maps a severity to its score deduction for
// policy violations, per spec.md §4.16.
func policyPenalty(level ThreatLevel) float64 {
	switch level {
	case ThreatLow:
		return 0.1
	case ThreatMedium:
		return 0.2
	case ThreatHigh:
		return 0.4
	case ThreatCritical:
		return 0.6
	default:
		return 0
	}
}

// threatPenalty maps a severity to its score deduction for threat
// detection findings, per spec.md §4.16.
func threatPenalty(level ThreatLevel) float64 {
	switch level {
	case ThreatLow:
		return 0.05
	case ThreatMedium:
		return 0.15
	case ThreatHigh:
		return 0.3
	case ThreatCritical:
		return 0.5
	default:
		return 0
	}
}

// worstThreatLevel returns the highest-severity level across violations
// and findings, for the result's overall ThreatLevel.
func worstThreatLevel(levels ...ThreatLevel) ThreatLevel {
	rank := map[ThreatLevel]int{
		ThreatNone: 0, ThreatLow: 1, ThreatMedium: 2, ThreatHigh: 3, ThreatCritical: 4,
	}
	worst := ThreatNone
	for _, l := range levels {
		if rank[l] > rank[worst] {
			worst = l
		}
	}
	return worst
}
