package authz

import (
	"errors"
	"fmt"
)

// Deny codes carried by AccessDenied and Decision. Machine-readable so
// clients and handlers can branch without parsing reasons.
const (
	DenyCodeBlocked           = "principal_blocked"
	DenyCodeClearance         = "insufficient_clearance"
	DenyCodeNoGrant           = "no_grant"
	DenyCodeConditionFailed   = "condition_failed"
	DenyCodeUnknownPermission = "unknown_permission"
	DenyCodeDelegation        = "delegation_denied"
	DenyCodeSystemTarget      = "system_target"
)

// ErrPermissionNotFound marks a permission name with no catalog row where
// one is required (grants always reference catalog rows).
var ErrPermissionNotFound = errors.New("permission not found in catalog")

// ErrPrincipalNotFound marks an unknown principal ID.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrGrantNotFound marks a missing or non-ACTIVE grant.
var ErrGrantNotFound = errors.New("no active grant")

// ErrInsufficientClearance matches any AccessDenied whose code is
// DenyCodeClearance, letting callers branch on the denial class with
// errors.Is without losing the typed detail.
var ErrInsufficientClearance = errors.New("insufficient clearance")

// AccessDenied reports that an operation was refused by policy, not by
// infrastructure. It carries enough detail for the caller to say what
// was required rather than just "no".
type AccessDenied struct {
	// Code is one of the DenyCode constants.
	Code string

	// Reason is a human-readable explanation.
	Reason string

	// Permission is the canonical key that was checked, when one applies.
	Permission string

	// RequiredClearance is the threshold that applied, 0 when clearance
	// was not the deciding factor.
	RequiredClearance int

	// PrincipalClearance is the principal's level, 0 when unknown.
	PrincipalClearance int
}

func (e *AccessDenied) Error() string {
	if e.Permission == "" {
		return fmt.Sprintf("access denied (%s): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("access denied (%s) for %s: %s", e.Code, e.Permission, e.Reason)
}

// Is reports clearance denials as ErrInsufficientClearance.
func (e *AccessDenied) Is(target error) bool {
	return target == ErrInsufficientClearance && e.Code == DenyCodeClearance
}

// StoreUnavailable wraps a database failure during evaluation. Permission
// checks fail closed on it: no decision is made, the caller gets this
// error instead.
type StoreUnavailable struct {
	Op  string
	Err error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("permission store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailable) Unwrap() error {
	return e.Err
}

// CacheUnavailable wraps a decision cache failure. The engine degrades to
// direct evaluation when it sees one; decisions stay correct, only slower.
type CacheUnavailable struct {
	Op  string
	Err error
}

func (e *CacheUnavailable) Error() string {
	return fmt.Sprintf("decision cache unavailable during %s: %v", e.Op, e.Err)
}

func (e *CacheUnavailable) Unwrap() error {
	return e.Err
}
