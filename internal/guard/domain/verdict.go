package domain

import "fmt"

// Verdict is the outcome of evaluating a request.
type Verdict uint8

const (
	// VerdictAllow lets the request proceed.
	VerdictAllow Verdict = iota
	// VerdictBlock stops the request.
	VerdictBlock
)

// String returns "allow" or "block".
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictBlock:
		return "block"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

// IsBlock is a convenience accessor.
func (v Verdict) IsBlock() bool { return v == VerdictBlock }

// Reason names the precedence step that produced a verdict.
type Reason string

const (
	ReasonAllowlist    Reason = "allowlist"
	ReasonBlocklist    Reason = "blocklist"
	ReasonPattern      Reason = "pattern"
	ReasonAllowPattern Reason = "allow-pattern"
	ReasonDefault      Reason = "default"
)

// Decision is a Verdict plus why it was reached.
// Pure value type, no external dependencies.
type Decision struct {
	Verdict Verdict
	Reason  Reason
	Matched string // domain or pattern that decided; empty for the default
}

// Blocked reports whether the decision blocks the request.
func (d Decision) Blocked() bool { return d.Verdict == VerdictBlock }

// DefaultDecision returns the allow-by-default decision.
func DefaultDecision() Decision {
	return Decision{Verdict: VerdictAllow, Reason: ReasonDefault}
}
