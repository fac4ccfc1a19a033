package domain

import (
	"fmt"
	"strings"
)

// RuleKind tags the variant held by a Rule.
//
// block     - pattern matched against the full URL blocks it
// allow     - pattern matched against the full URL exempts it from block patterns
// hostblock - canonical domain added to the domain blocklist
type RuleKind uint8

const (
	RuleBlock RuleKind = iota
	RuleAllow
	RuleHostBlock
)

// String returns a stable string representation of the rule kind.
func (k RuleKind) String() string {
	switch k {
	case RuleBlock:
		return "block"
	case RuleAllow:
		return "allow"
	case RuleHostBlock:
		return "hostblock"
	default:
		return fmt.Sprintf("RuleKind(%d)", k)
	}
}

// ParseRuleKind converts a string into a RuleKind (case-insensitive).
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return RuleBlock, nil
	case "allow":
		return RuleAllow, nil
	case "hostblock":
		return RuleHostBlock, nil
	default:
		return 0, fmt.Errorf("unsupported RuleKind: %q", s)
	}
}

// Rule is one parsed filter-list entry.
//
// Notes:
// - For RuleHostBlock, Pattern holds a canonical domain (normalization handled by the parser).
// - Source is the name of the list the rule came from; seeds use "config".
type Rule struct {
	Kind    RuleKind
	Pattern string
	Source  string
}

// NewRule constructs a Rule and validates its fields.
func NewRule(kind RuleKind, pattern, source string) (Rule, error) {
	r := Rule{Kind: kind, Pattern: pattern, Source: strings.TrimSpace(source)}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// NewBlockRule convenience constructor for a URL block pattern.
func NewBlockRule(pattern, source string) (Rule, error) {
	return NewRule(RuleBlock, pattern, source)
}

// NewAllowRule convenience constructor for a URL allow pattern.
func NewAllowRule(pattern, source string) (Rule, error) {
	return NewRule(RuleAllow, pattern, source)
}

// NewHostBlockRule convenience constructor for a blocked domain.
func NewHostBlockRule(domain, source string) (Rule, error) {
	return NewRule(RuleHostBlock, domain, source)
}

// Validate checks the Rule for required fields and supported values.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("rule pattern must not be empty")
	}
	switch r.Kind {
	case RuleBlock, RuleAllow, RuleHostBlock:
		// ok
	default:
		return fmt.Errorf("unsupported RuleKind: %d", r.Kind)
	}
	return nil
}

// IsWildcard reports whether the pattern uses '*' or '?' wildcards.
func (r Rule) IsWildcard() bool {
	return strings.ContainsAny(r.Pattern, "*?")
}
