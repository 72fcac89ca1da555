package authz

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// SweepExpired advances overdue grants through their terminal states:
// clock-expired ACTIVE rows become EXPIRED, and terminal rows older than
// the retention window become INACTIVE. Rows are never deleted.
//
// A row that fails to update is logged and left for the next pass; one
// bad row does not stop the batch. Affected principals' cached decisions
// are dropped so the expiry is visible immediately rather than at cache
// TTL.
func (s *service) SweepExpired(ctx context.Context) (*SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "authz.SweepExpired")
	defer span.End()

	now := time.Now().UTC()
	result := &SweepResult{}
	touched := make(map[string]struct{})

	overdue, err := s.grants.ListClockExpired(ctx, now, s.sweepBatchLimit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "list clock-expired grants", Err: err}
	}
	for i := range overdue {
		g := &overdue[i]
		if err := g.Expire(); err != nil {
			log.Printf("ERROR: Sweep cannot expire grant %s: %v", g.ID, err)
			continue
		}
		if err := s.grants.Update(ctx, g); err != nil {
			log.Printf("ERROR: Sweep failed to persist expiry of grant %s: %v", g.ID, err)
			continue
		}
		result.Expired++
		touched[g.PrincipalID] = struct{}{}
	}

	cutoff := now.Add(-s.retention)
	retirable, err := s.grants.ListRetirable(ctx, cutoff, s.sweepBatchLimit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "list retirable grants", Err: err}
	}
	for i := range retirable {
		g := &retirable[i]
		if err := g.Retire(); err != nil {
			log.Printf("ERROR: Sweep cannot retire grant %s: %v", g.ID, err)
			continue
		}
		if err := s.grants.Update(ctx, g); err != nil {
			log.Printf("ERROR: Sweep failed to persist retirement of grant %s: %v", g.ID, err)
			continue
		}
		result.Retired++
	}

	// Only the ACTIVE→EXPIRED transitions change decision outcomes;
	// retired rows conferred nothing already.
	for principalID := range touched {
		if _, err := s.cache.InvalidatePrincipal(ctx, principalID); err != nil {
			log.Printf("ERROR: Sweep cache invalidation for principal %s: %v", principalID, err)
			continue
		}
		result.PrincipalsInvalidated++
	}

	s.grantMetrics.RecordSwept(ctx, "expired", int64(result.Expired))
	s.grantMetrics.RecordSwept(ctx, "retired", int64(result.Retired))
	span.SetAttributes(
		attribute.Int("sweep.expired", result.Expired),
		attribute.Int("sweep.retired", result.Retired),
	)

	if result.Expired > 0 || result.Retired > 0 {
		entry := &models.AuditEntry{
			CorrelationID: bunx.NewUUIDv7(),
			ActorID:       access.SystemActorID,
			ActionType:    models.AuditActionSweep,
			ActionName:    "grant_sweep",
			Result:        access.ResultSuccess,
			RiskLevel:     access.RiskLow,
			Detail:        fmt.Sprintf("%d expired, %d retired", result.Expired, result.Retired),
		}
		if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
			log.Printf("ERROR: Audit append failed for sweep: %v", err)
		}
		log.Printf("INFO: Sweep expired %d and retired %d grants", result.Expired, result.Retired)
	}

	return result, nil
}
