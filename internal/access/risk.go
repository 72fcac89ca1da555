package access

import (
	"fmt"
	"strings"
)

// RiskLevel classifies how sensitive an operation or audit event is.
// HIGH and CRITICAL events are flagged for review in the audit trail.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Rank returns the risk level's position, 1 (LOW) through 4 (CRITICAL).
// Unknown levels rank 0.
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// Valid reports whether r is one of the four defined risk levels.
func (r RiskLevel) Valid() bool {
	return riskRank[r] != 0
}

// ParseRiskLevel normalizes a risk level from a catalog definition.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level: %q", s)
	}
	return r, nil
}

// Result is the outcome recorded for a checked or mutated access path.
type Result string

const (
	// ResultAllowed is a successful permission check.
	ResultAllowed Result = "ALLOWED"

	// ResultDenied is a policy denial (no grant, clearance, conditions,
	// delegation rules).
	ResultDenied Result = "DENIED"

	// ResultBlocked is an eligibility denial (inactive, locked, or
	// unverified principal). Always flagged for review.
	ResultBlocked Result = "BLOCKED"

	// ResultSuccess is a completed mutation (grant, revoke, catalog
	// bootstrap, sweep).
	ResultSuccess Result = "SUCCESS"
)

// Valid reports whether res is one of the defined results.
func (res Result) Valid() bool {
	switch res {
	case ResultAllowed, ResultDenied, ResultBlocked, ResultSuccess:
		return true
	}
	return false
}
