package authz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/services/hierarchy"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// Validate evaluates one permission check.
//
// Evaluation order is fixed. SYSTEM-tier principals bypass everything
// after the principal load. The cache is consulted before eligibility so
// hot checks cost no database reads; BLOCKED is never cached, so a
// blocked principal can never be resurrected by a stale entry. Store
// failures abort with StoreUnavailable (fail closed); cache failures
// degrade to direct evaluation (fail open on the cache layer only).
func (s *service) Validate(ctx context.Context, principalID string, key access.Key, checkCtx *CheckContext) (*Decision, error) {
	start := time.Now()
	permission := key.String()

	ctx, span := telemetry.StartSpan(ctx, tracerName, "authz.Validate",
		attribute.String(telemetry.AttrPrincipalID, principalID),
		attribute.String(telemetry.AttrPermission, permission),
	)
	defer span.End()

	if principalID == "" {
		return nil, fmt.Errorf("principal ID is required")
	}
	if key.Resource == "" || key.Action == "" || !key.Scope.Valid() {
		return nil, fmt.Errorf("invalid permission key %q", permission)
	}

	// Step 1: Load the principal. Unknown principals are an input error,
	// not a denial; store failures fail closed.
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("principal %s: %w", principalID, ErrPrincipalNotFound)
		}
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "load principal", Err: err}
	}

	d := &Decision{
		PrincipalID:   principalID,
		Permission:    permission,
		EvaluatedAt:   start,
		CorrelationID: bunx.NewUUIDv7(),
	}

	// Step 2: SYSTEM tier bypasses permission evaluation entirely.
	if principal.Tier == access.TierSystem {
		d.Result = access.ResultAllowed
		d.Source = "system_tier"
		d.Reason = "SYSTEM tier bypasses permission checks"
		return s.finishDecision(ctx, span, d, nil, start)
	}

	// Step 3: Cache lookup. A cache failure is logged and treated as a
	// miss; correctness never depends on the cache.
	ck := cacheKey(principalID, permission)
	if cached, ok, err := s.cache.Get(ctx, ck); err != nil {
		cacheErr := &CacheUnavailable{Op: "get", Err: err}
		log.Printf("WARNING: %v, evaluating directly", cacheErr)
		telemetry.AddEvent(span, "cache.degraded", attribute.String("error", err.Error()))
	} else if ok {
		hit := cached
		hit.Cached = true
		span.SetAttributes(
			attribute.String(telemetry.AttrResult, string(hit.Result)),
			attribute.Bool(telemetry.AttrCached, true),
		)
		// Cache hits feed metrics but not the audit trail; the original
		// decision was already audited.
		s.decisionMetrics.RecordDecision(ctx, string(hit.Result), reasonLabel(&hit), true, durationMs(start))
		return &hit, nil
	}

	// Step 4: Eligibility. Inactive, locked, or unverified principals are
	// BLOCKED no matter what they hold. BLOCKED is never cached.
	if !principal.Eligible() {
		d.Result = access.ResultBlocked
		d.Code = DenyCodeBlocked
		d.Reason = blockedReason(principal)
		return s.finishDecision(ctx, span, d, nil, start)
	}

	// Step 5: Resolve the requirement. The catalog row is canonical; with
	// no row, the static clearance table decides and only tier
	// inheritance can allow.
	var permRow *models.Permission
	permRow, err = s.permissions.GetByName(ctx, permission)
	switch {
	case err == nil:
		d.RequiredClearance = permRow.RequiredClearance
	case errors.Is(err, repository.ErrNotFound):
		permRow = nil
		d.FallbackUsed = true
		d.RequiredClearance = hierarchy.RequiredClearance(key)
		s.decisionMetrics.RecordFallback(ctx, permission)
		telemetry.AddEvent(span, "catalog.fallback",
			attribute.Int("required_clearance", d.RequiredClearance))
	default:
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "load permission", Err: err}
	}

	// Step 6: Clearance gate.
	if principal.ClearanceLevel < d.RequiredClearance {
		d.Result = access.ResultDenied
		d.Code = DenyCodeClearance
		d.Reason = fmt.Sprintf("clearance %d required, principal has %d",
			d.RequiredClearance, principal.ClearanceLevel)
		return s.finishDecision(ctx, span, d, permRow, start)
	}

	// Step 7: Entitlement. Direct grant first, tier inheritance second.
	if permRow == nil {
		s.resolveFallbackEntitlement(d, principal, key, checkCtx)
	} else if err := s.resolveEntitlement(ctx, d, principal, permRow, key, checkCtx, start); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return s.finishDecision(ctx, span, d, permRow, start)
}

// Require returns nil when the check passes and an *AccessDenied
// otherwise. Infrastructure failures pass through unchanged.
func (s *service) Require(ctx context.Context, principalID string, key access.Key, checkCtx *CheckContext) error {
	d, err := s.Validate(ctx, principalID, key, checkCtx)
	if err != nil {
		return err
	}
	if d.Allowed() {
		return nil
	}
	return &AccessDenied{
		Code:              d.Code,
		Reason:            d.Reason,
		Permission:        d.Permission,
		RequiredClearance: d.RequiredClearance,
	}
}

// resolveEntitlement decides steps 7a-7c against a catalog row: direct
// grant, then inheritance, then conditions on whatever allowed it.
func (s *service) resolveEntitlement(
	ctx context.Context,
	d *Decision,
	principal *models.Principal,
	permRow *models.Permission,
	key access.Key,
	checkCtx *CheckContext,
	now time.Time,
) error {
	grant, err := s.grants.GetActive(ctx, principal.ID, permRow.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return &StoreUnavailable{Op: "load grant", Err: err}
	}

	// A grant whose expiry passed confers nothing even before the sweep
	// flips its state.
	if grant != nil && !grant.ActiveAt(now) {
		grant = nil
	}

	switch {
	case grant != nil:
		d.Result = access.ResultAllowed
		d.Source = "grant"
		d.Reason = "active grant"
	case permRow.Inheritable && s.tierInherits(d, principal, key.Scope, checkCtx):
		d.Result = access.ResultAllowed
		d.Source = "inherited:" + string(principal.Tier)
		d.Reason = fmt.Sprintf("%s tier inherits %s scope", principal.Tier, key.Scope)
	default:
		d.Result = access.ResultDenied
		d.Code = DenyCodeNoGrant
		d.Reason = "no active grant and no tier inheritance"
		return nil
	}

	// Conditions apply to whatever allowed the operation. They are only
	// judged when the caller supplied context; either way the decision is
	// context-sensitive and stays out of the cache.
	if permissionHasConditions(permRow) {
		d.contextSensitive = true
		if checkCtx != nil {
			if ok, reason := evaluateConditions(permRow, checkCtx, now); !ok {
				d.Result = access.ResultDenied
				d.Code = DenyCodeConditionFailed
				d.Reason = reason
				d.Source = ""
			}
		}
	}

	return nil
}

// resolveFallbackEntitlement decides step 7 when no catalog row exists:
// no grants can reference the permission, so only tier inheritance against
// the static table can allow it.
func (s *service) resolveFallbackEntitlement(
	d *Decision,
	principal *models.Principal,
	key access.Key,
	checkCtx *CheckContext,
) {
	if s.tierInherits(d, principal, key.Scope, checkCtx) {
		d.Result = access.ResultAllowed
		d.Source = "fallback:" + string(principal.Tier)
		d.Reason = fmt.Sprintf("no catalog entry; %s tier inherits %s scope", principal.Tier, key.Scope)
		return
	}
	d.Result = access.ResultDenied
	d.Code = DenyCodeUnknownPermission
	d.Reason = "permission not in catalog and tier does not inherit it"
}

// tierInherits wraps the pure inheritance predicate with department
// matching. ADMIN decisions depend on the supplied context department, so
// they are marked context-sensitive; SUPERUSER inheritance is
// unconditional and stays cacheable.
func (s *service) tierInherits(d *Decision, principal *models.Principal, scope access.Scope, checkCtx *CheckContext) bool {
	if principal.Tier == access.TierAdmin {
		d.contextSensitive = true
		match := checkCtx != nil &&
			checkCtx.DepartmentID != "" &&
			principal.Department() == checkCtx.DepartmentID
		return hierarchy.Inherits(principal.Tier, scope, match)
	}
	return hierarchy.Inherits(principal.Tier, scope, false)
}

// finishDecision is step 8: cache write-back, audit, metrics, span
// attributes. Every fresh decision is audited; cache hits never reach
// here.
func (s *service) finishDecision(
	ctx context.Context,
	span trace.Span,
	d *Decision,
	permRow *models.Permission,
	start time.Time,
) (*Decision, error) {
	span.SetAttributes(
		attribute.String(telemetry.AttrResult, string(d.Result)),
		attribute.Bool(telemetry.AttrCached, false),
		attribute.Bool(telemetry.AttrFallback, d.FallbackUsed),
	)

	cacheable := d.Result != access.ResultBlocked &&
		!d.contextSensitive &&
		d.Source != "system_tier"
	if cacheable {
		if err := s.cache.Set(ctx, cacheKey(d.PrincipalID, d.Permission), *d); err != nil {
			cacheErr := &CacheUnavailable{Op: "set", Err: err}
			log.Printf("WARNING: %v, decision not cached", cacheErr)
		}
	}

	riskLevel := access.RiskMedium
	if permRow != nil {
		riskLevel = permRow.RiskLevel
	}
	// A SYSTEM bypass skips every gate, so its trail entry is always HIGH.
	if d.Source == "system_tier" {
		riskLevel = access.RiskHigh
	}

	entry := &models.AuditEntry{
		CorrelationID: d.CorrelationID,
		ActorID:       d.PrincipalID,
		ActionType:    models.AuditActionDecision,
		ActionName:    d.Permission,
		Result:        d.Result,
		RiskLevel:     riskLevel,
		Detail:        d.Reason,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Printf("ERROR: Audit append failed for decision %s: %v", d.CorrelationID, err)
	}

	s.decisionMetrics.RecordDecision(ctx, string(d.Result), reasonLabel(d), false, durationMs(start))

	return d, nil
}

// reasonLabel gives metrics a bounded cardinality label for a decision.
func reasonLabel(d *Decision) string {
	if d.Allowed() {
		return "allowed"
	}
	return d.Code
}

func durationMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// blockedReason spells out which eligibility gate failed.
func blockedReason(p *models.Principal) string {
	switch {
	case !p.Active:
		return "principal is inactive"
	case p.Locked:
		return "principal is locked"
	case !p.Verified:
		return "principal is not verified"
	default:
		return "principal is not eligible"
	}
}
