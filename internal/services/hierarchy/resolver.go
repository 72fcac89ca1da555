// Package hierarchy holds the pure tier/scope rules of the access engine:
// the fallback clearance table consulted when no catalog row exists for a
// permission key, and the inheritance predicate that decides which tiers
// hold inheritable permissions without a direct grant.
//
// Everything here is deterministic and side-effect free. The permission
// catalog stays canonical: when a catalog row exists, its required
// clearance wins and only the inheritance predicate below is consulted.
package hierarchy

import (
	"github.com/J41RO/MeStore-sub006/internal/access"
)

// actionBaselines maps action verbs to their baseline clearance before
// scope modifiers. Unknown verbs get baselineUnknown: an unregistered
// action is treated as sensitive, never as cheap.
var actionBaselines = map[string]int{
	access.ActionRead:    1,
	access.ActionList:    1,
	access.ActionView:    1,
	access.ActionCreate:  2,
	access.ActionUpdate:  2,
	access.ActionDelete:  3,
	access.ActionApprove: 3,
	access.ActionExport:  3,
	access.ActionRefund:  3,
	access.ActionManage:  4,
}

const baselineUnknown = 3

// scopeModifiers widen the requirement as breadth grows. SYSTEM is absent
// on purpose: it is pinned to MaxClearance below, not computed.
var scopeModifiers = map[access.Scope]int{
	access.ScopeReadOnly:   0,
	access.ScopeUser:       0,
	access.ScopeTeam:       1,
	access.ScopeDepartment: 1,
	access.ScopeGlobal:     2,
}

// clearanceOverrides pins hardened thresholds for operations whose
// computed value came out too low for what they touch.
var clearanceOverrides = map[string]int{
	"users.delete.global":        5,
	"users.manage.global":        5,
	"payments.refund.global":     5,
	"payments.refund.department": 4,
	"payments.export.global":     5,
	"vendors.approve.global":     4,
}

// RequiredClearance returns the fallback clearance requirement for a
// permission key with no catalog row. SYSTEM scope always demands
// MaxClearance; everything else is action baseline + scope modifier,
// clamped to the valid range, with hardened overrides applied last.
func RequiredClearance(key access.Key) int {
	if key.Scope == access.ScopeSystem {
		return access.MaxClearance
	}

	if override, ok := clearanceOverrides[key.String()]; ok {
		return override
	}

	baseline, ok := actionBaselines[key.Action]
	if !ok {
		baseline = baselineUnknown
	}

	level := baseline + scopeModifiers[key.Scope]
	if level < access.MinClearance {
		level = access.MinClearance
	}
	if level > access.MaxClearance {
		level = access.MaxClearance
	}
	return level
}

// Inherits reports whether a tier holds permissions at the given scope
// without a direct grant:
//
//   - SYSTEM scope is never inherited, by anyone.
//   - SUPERUSER inherits every other scope.
//   - ADMIN inherits DEPARTMENT, TEAM, USER, and READ_ONLY scopes, and
//     only when the operation's department matches the principal's.
//   - VENDOR and BUYER never inherit.
//
// SYSTEM-tier principals bypass permission evaluation upstream, so the
// predicate answers false for them; their access never flows through
// inheritance.
func Inherits(tier access.Tier, scope access.Scope, departmentMatch bool) bool {
	if scope == access.ScopeSystem {
		return false
	}

	switch tier {
	case access.TierSuperuser:
		return true
	case access.TierAdmin:
		if !departmentMatch {
			return false
		}
		return scope == access.ScopeDepartment ||
			scope == access.ScopeTeam ||
			scope == access.ScopeUser ||
			scope == access.ScopeReadOnly
	default:
		return false
	}
}
