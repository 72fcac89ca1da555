package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260219110500, down_20260219110500)
}

// up_20260219110500 seeds the rows the engine itself depends on: the
// well-known system principal (audit attribution for automated tasks)
// and the permissions guarding the engine's own admin surfaces.
func up_20260219110500(ctx context.Context, db *bun.DB) error {
	now := time.Now().UTC()

	fmt.Print(" [up] seeding system principal...")
	system := &models.Principal{
		ID:             access.SystemActorID,
		Email:          "system@mestore.internal",
		Name:           "MeStore Access Engine",
		Tier:           access.TierSystem,
		ClearanceLevel: access.MaxClearance,
		Active:         true,
		Verified:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := db.NewInsert().
		Model(system).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed system principal: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding engine permissions...")
	perms := []*models.Permission{
		{
			ID:                bunx.NewUUIDv7(),
			Name:              access.PermAccessManage,
			Resource:          access.ResourceAccess,
			Action:            access.ActionManage,
			Scope:             access.ScopeGlobal,
			RequiredClearance: 4,
			Inheritable:       true,
			Delegatable:       true,
			RiskLevel:         access.RiskHigh,
			Description:       "Operate the access engine: manual cache invalidation and expiry sweeps",
			CreatedAt:         now,
			UpdatedAt:         now,
			Version:           1,
		},
		{
			ID:                bunx.NewUUIDv7(),
			Name:              access.PermCatalogBootstrap,
			Resource:          access.ResourceAccess,
			Action:            "bootstrap",
			Scope:             access.ScopeSystem,
			RequiredClearance: access.MaxClearance,
			Inheritable:       false,
			Delegatable:       false,
			RiskLevel:         access.RiskCritical,
			Description:       "Mutate the permission catalog through bootstrap upserts",
			CreatedAt:         now,
			UpdatedAt:         now,
			Version:           1,
		},
	}

	for _, p := range perms {
		_, err := db.NewInsert().
			Model(p).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.Name, err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260219110500 removes the seeded rows
func down_20260219110500(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing engine seeds...")

	_, err := db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("name IN (?)", bun.In([]string{access.PermAccessManage, access.PermCatalogBootstrap})).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded permissions: %w", err)
	}

	_, err = db.NewDelete().
		Model((*models.Principal)(nil)).
		Where("id = ?", access.SystemActorID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove system principal: %w", err)
	}

	fmt.Println(" OK")
	return nil
}
