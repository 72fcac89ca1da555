package access

import (
	"fmt"
	"strings"
)

// Scope is the breadth at which a permission applies. Scopes are ordered:
// SYSTEM > GLOBAL > DEPARTMENT > TEAM > USER > READ_ONLY.
//
// SYSTEM-scoped permissions are special: they are never inherited through
// the tier hierarchy and can only be granted directly by a SYSTEM-tier
// grantor.
type Scope string

const (
	// ScopeSystem covers platform-internal operations (catalog mutation,
	// engine administration). Direct grants from SYSTEM-tier grantors only.
	ScopeSystem Scope = "SYSTEM"

	// ScopeGlobal covers every department and tenant.
	ScopeGlobal Scope = "GLOBAL"

	// ScopeDepartment covers a single department.
	ScopeDepartment Scope = "DEPARTMENT"

	// ScopeTeam covers a single team within a department.
	ScopeTeam Scope = "TEAM"

	// ScopeUser covers the acting principal's own records.
	ScopeUser Scope = "USER"

	// ScopeReadOnly covers read-only views regardless of breadth.
	ScopeReadOnly Scope = "READ_ONLY"
)

// scopeRank orders scopes from narrowest (1) to broadest (6).
var scopeRank = map[Scope]int{
	ScopeReadOnly:   1,
	ScopeUser:       2,
	ScopeTeam:       3,
	ScopeDepartment: 4,
	ScopeGlobal:     5,
	ScopeSystem:     6,
}

// Rank returns the scope's position in the ordering, 1 (READ_ONLY) through
// 6 (SYSTEM). Unknown scopes rank 0.
func (s Scope) Rank() int {
	return scopeRank[s]
}

// Valid reports whether s is one of the six defined scopes.
func (s Scope) Valid() bool {
	return scopeRank[s] != 0
}

// ParseScope normalizes a scope segment from a permission key or catalog
// definition. It accepts any casing ("global", "GLOBAL", "Read_Only").
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToUpper(strings.TrimSpace(s)))
	if !scope.Valid() {
		return "", fmt.Errorf("unknown scope: %q", s)
	}
	return scope, nil
}
