package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/services/hierarchy"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// ListEffective reports the permissions a principal currently holds.
//
// Direct entries come from ACTIVE, non-expired grants. Inherited entries
// are inheritable catalog rows the principal's tier would reach through
// the static hierarchy, judged against their own department and
// clearance. The listing is a reporting view; Validate never consults
// it.
func (s *service) ListEffective(ctx context.Context, principalID string, includeInherited bool) ([]EffectivePermission, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "authz.ListEffective",
		attribute.String(telemetry.AttrPrincipalID, principalID),
		attribute.Bool("access.include_inherited", includeInherited),
	)
	defer span.End()

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("principal %s: %w", principalID, ErrPrincipalNotFound)
		}
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "load principal", Err: err}
	}

	now := time.Now().UTC()

	grants, err := s.grants.ListActiveByPrincipal(ctx, principalID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "list grants", Err: err}
	}

	effective := make([]EffectivePermission, 0, len(grants))
	seen := make(map[string]struct{}, len(grants))
	for i := range grants {
		g := &grants[i]
		if !g.ActiveAt(now) || g.Permission == nil {
			continue
		}
		effective = append(effective, EffectivePermission{
			Permission: *g.Permission,
			Source:     SourceDirect,
			GrantID:    g.ID,
			ExpiresAt:  g.ExpiresAt,
		})
		seen[g.Permission.Name] = struct{}{}
	}

	if !includeInherited {
		return effective, nil
	}

	// SYSTEM tier bypasses evaluation entirely, so its report covers the
	// whole catalog rather than the inheritable subset.
	if principal.Tier == access.TierSystem {
		rows, err := s.permissions.List(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, &StoreUnavailable{Op: "list permissions", Err: err}
		}
		for i := range rows {
			if _, dup := seen[rows[i].Name]; dup {
				continue
			}
			effective = append(effective, EffectivePermission{
				Permission: rows[i],
				Source:     InheritedSource(access.TierSystem),
			})
		}
		return effective, nil
	}

	rows, err := s.permissions.ListInheritable(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &StoreUnavailable{Op: "list inheritable permissions", Err: err}
	}

	// Reporting judges ADMIN department scoping against the principal's
	// own department; a department-less ADMIN inherits nothing scoped.
	departmentMatch := principal.Department() != ""

	for i := range rows {
		row := &rows[i]
		if _, dup := seen[row.Name]; dup {
			continue
		}
		if principal.ClearanceLevel < row.RequiredClearance {
			continue
		}
		if !hierarchy.Inherits(principal.Tier, row.Scope, departmentMatch) {
			continue
		}
		effective = append(effective, EffectivePermission{
			Permission: *row,
			Source:     InheritedSource(principal.Tier),
		})
	}

	return effective, nil
}
