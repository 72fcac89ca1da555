package authz

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/services/catalog"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// InvalidatePrincipal drops every cached decision for one principal.
// Exposed for operators reacting to out-of-band directory changes, such
// as a lock or clearance drop that must bite before cache TTL.
func (s *service) InvalidatePrincipal(ctx context.Context, principalID string) error {
	if principalID == "" {
		return fmt.Errorf("principal ID is required")
	}
	dropped, err := s.cache.InvalidatePrincipal(ctx, principalID)
	if err != nil {
		return &CacheUnavailable{Op: "invalidate principal", Err: err}
	}
	log.Printf("INFO: Invalidated %d cached decisions for principal %s", dropped, principalID)
	return nil
}

// BootstrapCatalog applies permission definitions to the catalog and
// purges the decision cache when rows changed, since any cached decision
// may reference superseded requirements.
func (s *service) BootstrapCatalog(ctx context.Context, definitions []catalog.Definition) (*catalog.BootstrapResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "authz.BootstrapCatalog",
		attribute.Int("catalog.definitions", len(definitions)),
	)
	defer span.End()

	result, err := s.catalog.Apply(ctx, definitions)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if result.Created > 0 || result.Updated > 0 {
		if err := s.cache.Purge(ctx); err != nil {
			cacheErr := &CacheUnavailable{Op: "purge", Err: err}
			log.Printf("ERROR: %v after catalog bootstrap", cacheErr)
		}
	}

	entry := &models.AuditEntry{
		CorrelationID: bunx.NewUUIDv7(),
		ActorID:       access.SystemActorID,
		ActionType:    models.AuditActionCatalog,
		ActionName:    "catalog_bootstrap",
		Result:        access.ResultSuccess,
		RiskLevel:     access.RiskMedium,
		Detail: fmt.Sprintf("%d created, %d updated, %d unchanged, %d discrepancies",
			result.Created, result.Updated, result.Unchanged, result.Discrepancies),
	}
	if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("ERROR: Audit append failed for catalog bootstrap: %v", err)
	}

	log.Printf("INFO: Catalog bootstrap: %d created, %d updated, %d unchanged, %d discrepancies",
		result.Created, result.Updated, result.Unchanged, result.Discrepancies)

	return result, nil
}
