package authz

import (
	"context"
	"strings"
	"testing"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/services/catalog"
)

func TestInvalidatePrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.svc.InvalidatePrincipal(ctx, ""); err == nil {
		t.Error("empty principal ID accepted")
	}

	if _, err := env.svc.Validate(ctx, "super-1", mustKey(t, "orders.read.department"), nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := env.svc.Validate(ctx, "vendor-1", mustKey(t, "orders.read.department"), nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if env.cache.Len() != 2 {
		t.Fatalf("cache.Len() = %d, want 2", env.cache.Len())
	}

	if err := env.svc.InvalidatePrincipal(ctx, "super-1"); err != nil {
		t.Fatalf("InvalidatePrincipal: %v", err)
	}
	// Only super-1's entry is dropped.
	if env.cache.Len() != 1 {
		t.Errorf("cache.Len() = %d, want 1", env.cache.Len())
	}
}

func TestBootstrapCatalogAppliesAndPurges(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	// Warm the cache so the purge is observable.
	if _, err := env.svc.Validate(ctx, "super-1", mustKey(t, "orders.read.department"), nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if env.cache.Len() != 1 {
		t.Fatalf("cache.Len() = %d, want 1", env.cache.Len())
	}

	defs := []catalog.Definition{
		{
			Name:              "inventory.read.department",
			Description:       "Read inventory rows for a department",
			RequiredClearance: 2,
			Inheritable:       true,
			RiskLevel:         "LOW",
		},
		{
			Name:              "orders.read.department",
			Description:       "Read orders for a department",
			RequiredClearance: 2,
			Inheritable:       true,
			RiskLevel:         "LOW",
		},
	}

	res, err := env.svc.BootstrapCatalog(ctx, defs)
	if err != nil {
		t.Fatalf("BootstrapCatalog: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 {
		t.Fatalf("result = %+v, want 1 created, 1 updated", res)
	}
	if env.cache.Len() != 0 {
		t.Errorf("cache.Len() = %d after changed bootstrap, want 0", env.cache.Len())
	}

	entries := env.audit.byType(models.AuditActionCatalog)
	if len(entries) != 1 {
		t.Fatalf("CATALOG audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.ActorID != access.SystemActorID || e.Result != access.ResultSuccess || e.RiskLevel != access.RiskMedium {
		t.Errorf("entry = actor %s result %s risk %s", e.ActorID, e.Result, e.RiskLevel)
	}
	if !strings.Contains(e.Detail, "1 created, 1 updated") {
		t.Errorf("entry detail = %q", e.Detail)
	}

	// Re-applying the same definitions changes nothing and keeps the
	// cache warm.
	if _, err := env.svc.Validate(ctx, "super-1", mustKey(t, "inventory.read.department"), nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if env.cache.Len() != 1 {
		t.Fatalf("cache.Len() = %d, want 1", env.cache.Len())
	}

	res, err = env.svc.BootstrapCatalog(ctx, defs)
	if err != nil {
		t.Fatalf("repeat BootstrapCatalog: %v", err)
	}
	if res.Created != 0 || res.Updated != 0 || res.Unchanged != 2 {
		t.Fatalf("repeat result = %+v, want 2 unchanged", res)
	}
	if env.cache.Len() != 1 {
		t.Errorf("cache.Len() = %d, unchanged bootstrap must not purge", env.cache.Len())
	}
	if got := len(env.audit.byType(models.AuditActionCatalog)); got != 2 {
		t.Errorf("CATALOG audit entries = %d, want 2", got)
	}

	// The new row is live for decisions.
	d, err := env.svc.Validate(ctx, "super-1", mustKey(t, "inventory.read.department"), nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.Result != access.ResultAllowed || d.FallbackUsed {
		t.Errorf("decision = %s fallback=%v, want ALLOWED from catalog", d.Result, d.FallbackUsed)
	}
}

func TestBootstrapCatalogRejectsBadDefinitions(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.BootstrapCatalog(context.Background(), []catalog.Definition{
		{Name: "not-a-key", RequiredClearance: 2},
	})
	if err == nil {
		t.Fatal("malformed definition accepted")
	}
	// The failed run is not audited as a completed bootstrap.
	if got := len(env.audit.byType(models.AuditActionCatalog)); got != 0 {
		t.Errorf("CATALOG audit entries = %d, want 0", got)
	}
}
