package authz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// Grant issues an ACTIVE grant of the named permission to the target.
//
// An existing ACTIVE, non-expired grant makes the call an idempotent
// no-op; the cache is still invalidated and the attempt still audited.
// A clock-expired ACTIVE row is transitioned to EXPIRED first so the
// unique-active index accepts the replacement.
func (s *service) Grant(ctx context.Context, grantorID, targetID, permissionName string, expiresAt *time.Time) (*GrantResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "authz.Grant",
		attribute.String(telemetry.AttrPrincipalID, targetID),
		attribute.String(telemetry.AttrPermission, permissionName),
		attribute.String(telemetry.AttrGrantedBy, grantorID),
	)
	defer span.End()

	now := time.Now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, fmt.Errorf("expiry %s is not in the future", expiresAt.Format(time.RFC3339))
	}

	grantor, target, permRow, key, err := s.loadGrantParties(ctx, grantorID, targetID, permissionName)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.authorizeGrantChange(ctx, "grant", grantor, target, permRow, key); err != nil {
		s.grantMetrics.RecordOperation(ctx, "grant", "denied")
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Targets below the permission's clearance would fail every validate
	// anyway; reject the grant up front instead of writing a dead row.
	if target.ClearanceLevel < permRow.RequiredClearance {
		s.grantMetrics.RecordOperation(ctx, "grant", "denied")
		return nil, &AccessDenied{
			Code:               DenyCodeClearance,
			Reason:             fmt.Sprintf("target clearance %d below permission requirement %d", target.ClearanceLevel, permRow.RequiredClearance),
			Permission:         permissionName,
			RequiredClearance:  permRow.RequiredClearance,
			PrincipalClearance: target.ClearanceLevel,
		}
	}

	existing, err := s.grants.GetActive(ctx, targetID, permRow.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "load grant", Err: err}
	}

	if existing != nil && existing.ActiveAt(now) {
		s.finishGrantChange(ctx, grantorID, targetID, permissionName, models.AuditActionGrant,
			fmt.Sprintf("grant already active (id %s)", existing.ID))
		s.grantMetrics.RecordOperation(ctx, "grant", "noop")
		return &GrantResult{Grant: existing, Changed: false}, nil
	}

	// A clock-expired row still holds the unique-active slot until the
	// sweep runs; settle it now.
	if existing != nil && existing.ClockExpired(now) {
		if err := existing.Expire(); err != nil {
			return nil, fmt.Errorf("settle expired grant %s: %w", existing.ID, err)
		}
		if err := s.grants.Update(ctx, existing); err != nil {
			telemetry.RecordError(span, err)
			return nil, &StoreUnavailable{Op: "expire grant", Err: err}
		}
	}

	grant := &models.Grant{
		ID:           bunx.NewUUIDv7(),
		PrincipalID:  targetID,
		PermissionID: permRow.ID,
		GrantedBy:    grantorID,
		GrantedAt:    now,
		ExpiresAt:    expiresAt,
		State:        models.GrantStateCreated,
	}
	if err := grant.Activate(); err != nil {
		return nil, err
	}

	if err := s.grants.CreateActive(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveGrant) {
			// A racing grant won the unique-active index; adopt its row.
			winner, lookupErr := s.grants.GetActive(ctx, targetID, permRow.ID)
			if lookupErr != nil {
				telemetry.RecordError(span, lookupErr)
				return nil, &StoreUnavailable{Op: "load racing grant", Err: lookupErr}
			}
			s.finishGrantChange(ctx, grantorID, targetID, permissionName, models.AuditActionGrant,
				fmt.Sprintf("grant already active (id %s)", winner.ID))
			s.grantMetrics.RecordOperation(ctx, "grant", "noop")
			return &GrantResult{Grant: winner, Changed: false}, nil
		}
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "create grant", Err: err}
	}

	telemetry.AddEvent(span, "grant.created", attribute.String(telemetry.AttrGrantID, grant.ID))
	s.finishGrantChange(ctx, grantorID, targetID, permissionName, models.AuditActionGrant,
		fmt.Sprintf("granted (id %s)", grant.ID))
	s.grantMetrics.RecordOperation(ctx, "grant", "created")
	log.Printf("INFO: Granted %s to principal %s by %s", permissionName, targetID, grantorID)

	return &GrantResult{Grant: grant, Changed: true}, nil
}

// Revoke terminates the target's ACTIVE grant of the named permission.
//
// A missing grant makes the call an idempotent no-op. A clock-expired
// ACTIVE row confers nothing, so it is also a no-op here; the sweep
// records it as EXPIRED rather than REVOKED.
func (s *service) Revoke(ctx context.Context, revokerID, targetID, permissionName string) (*GrantResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "authz.Revoke",
		attribute.String(telemetry.AttrPrincipalID, targetID),
		attribute.String(telemetry.AttrPermission, permissionName),
		attribute.String(telemetry.AttrRevokedBy, revokerID),
	)
	defer span.End()

	now := time.Now().UTC()

	revoker, target, permRow, key, err := s.loadGrantParties(ctx, revokerID, targetID, permissionName)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.authorizeGrantChange(ctx, "revoke", revoker, target, permRow, key); err != nil {
		s.grantMetrics.RecordOperation(ctx, "revoke", "denied")
		telemetry.RecordError(span, err)
		return nil, err
	}

	grant, err := s.grants.GetActive(ctx, targetID, permRow.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.finishGrantChange(ctx, revokerID, targetID, permissionName, models.AuditActionRevoke,
				"no active grant to revoke")
			s.grantMetrics.RecordOperation(ctx, "revoke", "noop")
			return &GrantResult{Changed: false}, nil
		}
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "load grant", Err: err}
	}

	if grant.ClockExpired(now) {
		s.finishGrantChange(ctx, revokerID, targetID, permissionName, models.AuditActionRevoke,
			fmt.Sprintf("grant %s already expired", grant.ID))
		s.grantMetrics.RecordOperation(ctx, "revoke", "noop")
		return &GrantResult{Grant: grant, Changed: false}, nil
	}

	if err := grant.Revoke(revokerID, now); err != nil {
		return nil, err
	}
	if err := s.grants.Update(ctx, grant); err != nil {
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "revoke grant", Err: err}
	}

	telemetry.AddEvent(span, "grant.revoked", attribute.String(telemetry.AttrGrantID, grant.ID))
	s.finishGrantChange(ctx, revokerID, targetID, permissionName, models.AuditActionRevoke,
		fmt.Sprintf("revoked (id %s)", grant.ID))
	s.grantMetrics.RecordOperation(ctx, "revoke", "revoked")
	log.Printf("INFO: Revoked %s from principal %s by %s", permissionName, targetID, revokerID)

	return &GrantResult{Grant: grant, Changed: true}, nil
}

// loadGrantParties resolves the actor, the target, and the catalog row
// for a lifecycle operation. Grants always reference a catalog row, so
// unlike Validate there is no fallback path here.
func (s *service) loadGrantParties(ctx context.Context, actorID, targetID, permissionName string) (actor, target *models.Principal, permRow *models.Permission, key access.Key, err error) {
	key, err = access.ParseKey(permissionName)
	if err != nil {
		return nil, nil, nil, key, err
	}

	actor, err = s.principals.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, key, fmt.Errorf("actor %s: %w", actorID, ErrPrincipalNotFound)
		}
		return nil, nil, nil, key, &StoreUnavailable{Op: "load actor", Err: err}
	}

	target, err = s.principals.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, key, fmt.Errorf("target %s: %w", targetID, ErrPrincipalNotFound)
		}
		return nil, nil, nil, key, &StoreUnavailable{Op: "load target", Err: err}
	}

	permRow, err = s.permissions.GetByName(ctx, permissionName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, key, fmt.Errorf("permission %s: %w", permissionName, ErrPermissionNotFound)
		}
		return nil, nil, nil, key, &StoreUnavailable{Op: "load permission", Err: err}
	}

	return actor, target, permRow, key, nil
}

// authorizeGrantChange enforces who may move grants. The same rules
// cover grant and revoke:
//
//   - SYSTEM-scope permissions move only by SYSTEM-tier actors;
//   - a non-SYSTEM actor never touches a SYSTEM-tier target;
//   - the actor's clearance meets the permission's requirement, checked
//     here because SYSTEM-tier actors skip Validate's clearance gate;
//   - the actor holds the permission themselves.
func (s *service) authorizeGrantChange(ctx context.Context, op string, actor, target *models.Principal, permRow *models.Permission, key access.Key) error {
	if key.Scope == access.ScopeSystem && actor.Tier != access.TierSystem {
		return &AccessDenied{
			Code:       DenyCodeDelegation,
			Reason:     fmt.Sprintf("SYSTEM scope permissions require a SYSTEM tier actor, not %s", actor.Tier),
			Permission: permRow.Name,
		}
	}

	if target.Tier == access.TierSystem && actor.Tier != access.TierSystem {
		return &AccessDenied{
			Code:       DenyCodeSystemTarget,
			Reason:     fmt.Sprintf("%s tier actor may not %s grants for a SYSTEM tier principal", actor.Tier, op),
			Permission: permRow.Name,
		}
	}

	if actor.ClearanceLevel < permRow.RequiredClearance {
		return &AccessDenied{
			Code:               DenyCodeClearance,
			Reason:             fmt.Sprintf("actor clearance %d below permission requirement %d", actor.ClearanceLevel, permRow.RequiredClearance),
			Permission:         permRow.Name,
			RequiredClearance:  permRow.RequiredClearance,
			PrincipalClearance: actor.ClearanceLevel,
		}
	}

	// Delegation cannot exceed possession: the actor must pass the same
	// check they are granting or revoking.
	if err := s.Require(ctx, actor.ID, key, nil); err != nil {
		var denied *AccessDenied
		if errors.As(err, &denied) {
			return &AccessDenied{
				Code:       DenyCodeDelegation,
				Reason:     fmt.Sprintf("actor does not hold %s: %s", permRow.Name, denied.Reason),
				Permission: permRow.Name,
			}
		}
		return err
	}

	return nil
}

// finishGrantChange runs the non-cancellable tail of a lifecycle
// operation: synchronous cache invalidation so the caller reads their
// own write, then the audit entry. Uses WithoutCancel so a caller
// timeout cannot strand a committed state change invisible and
// unaudited.
func (s *service) finishGrantChange(ctx context.Context, actorID, targetID, permissionName string, action models.AuditActionType, detail string) {
	tail := context.WithoutCancel(ctx)

	dropped, err := s.cache.InvalidatePrincipal(tail, targetID)
	if err != nil {
		cacheErr := &CacheUnavailable{Op: "invalidate principal", Err: err}
		log.Printf("ERROR: %v after %s of %s", cacheErr, action, permissionName)
	} else if dropped > 0 {
		log.Printf("INFO: Invalidated %d cached decisions for principal %s", dropped, targetID)
	}

	entry := &models.AuditEntry{
		CorrelationID: bunx.NewUUIDv7(),
		ActorID:       actorID,
		ActionType:    action,
		ActionName:    permissionName,
		TargetID:      targetID,
		Result:        access.ResultSuccess,
		RiskLevel:     access.RiskHigh,
		Detail:        detail,
	}
	if err := s.audit.Append(tail, entry); err != nil {
		log.Printf("ERROR: Audit append failed for %s of %s: %v", action, permissionName, err)
	}
}
