package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/migrations"
)

// setupTestDB opens a private in-memory SQLite database and runs the full
// migration set against it. Each test gets its own named database so
// parallel tests never share state.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := bunx.NewDB(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

// seedPrincipal inserts a directory row for tests
func seedPrincipal(t *testing.T, db *bun.DB, tier access.Tier, clearance int) *models.Principal {
	t.Helper()

	p := &models.Principal{
		ID:             bunx.NewUUIDv7(),
		Email:          bunx.NewUUIDv7() + "@mestore.test",
		Name:           "Test Principal",
		Tier:           tier,
		ClearanceLevel: clearance,
		Active:         true,
		Verified:       true,
	}
	_, err := db.NewInsert().Model(p).Exec(context.Background())
	require.NoError(t, err)
	return p
}

// seedPermission inserts a catalog row for tests
func seedPermission(t *testing.T, db *bun.DB, name string, clearance int, inheritable bool) *models.Permission {
	t.Helper()

	key, err := access.ParseKey(name)
	require.NoError(t, err)

	p := &models.Permission{
		ID:                bunx.NewUUIDv7(),
		Name:              key.String(),
		Resource:          key.Resource,
		Action:            key.Action,
		Scope:             key.Scope,
		RequiredClearance: clearance,
		Inheritable:       inheritable,
		Delegatable:       true,
		RiskLevel:         access.RiskMedium,
	}
	_, err = db.NewInsert().Model(p).Exec(context.Background())
	require.NoError(t, err)
	return p
}

func TestBunPermissionRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunPermissionRepository(db)
	ctx := context.Background()

	perm := &models.Permission{
		Name:              "orders.read.department",
		Resource:          "orders",
		Action:            "read",
		Scope:             access.ScopeDepartment,
		RequiredClearance: 2,
		Inheritable:       true,
		RiskLevel:         access.RiskLow,
	}
	require.NoError(t, repo.Create(ctx, perm))
	assert.NotEmpty(t, perm.ID)

	t.Run("get by name", func(t *testing.T) {
		got, err := repo.GetByName(ctx, "orders.read.department")
		require.NoError(t, err)
		assert.Equal(t, perm.ID, got.ID)
		assert.Equal(t, access.ScopeDepartment, got.Scope)
	})

	t.Run("not found wraps sentinel", func(t *testing.T) {
		_, err := repo.GetByName(ctx, "orders.read.global")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update bumps version", func(t *testing.T) {
		got, err := repo.GetByID(ctx, perm.ID)
		require.NoError(t, err)
		before := got.Version

		got.RequiredClearance = 3
		require.NoError(t, repo.Update(ctx, got))

		again, err := repo.GetByID(ctx, perm.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, again.RequiredClearance)
		assert.Equal(t, before+1, again.Version)
	})

	t.Run("list inheritable", func(t *testing.T) {
		inheritable, err := repo.ListInheritable(ctx)
		require.NoError(t, err)
		for _, p := range inheritable {
			assert.True(t, p.Inheritable)
		}
		// Seeded access.manage.global plus the one created here
		names := make([]string, 0, len(inheritable))
		for _, p := range inheritable {
			names = append(names, p.Name)
		}
		assert.Contains(t, names, "orders.read.department")
		assert.Contains(t, names, access.PermAccessManage)
	})
}

func TestBunGrantRepository_UniqueActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunGrantRepository(db)
	ctx := context.Background()

	principal := seedPrincipal(t, db, access.TierAdmin, 3)
	grantor := seedPrincipal(t, db, access.TierSuperuser, 5)
	perm := seedPermission(t, db, "users.read.global", 3, true)

	first := &models.Grant{
		PrincipalID:  principal.ID,
		PermissionID: perm.ID,
		GrantedBy:    grantor.ID,
		GrantedAt:    time.Now(),
		State:        models.GrantStateActive,
	}
	require.NoError(t, repo.CreateActive(ctx, first))

	// Second ACTIVE row for the same pair must hit the partial unique index
	second := &models.Grant{
		PrincipalID:  principal.ID,
		PermissionID: perm.ID,
		GrantedBy:    grantor.ID,
		GrantedAt:    time.Now(),
		State:        models.GrantStateActive,
	}
	err := repo.CreateActive(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateActiveGrant)

	// Terminating the first frees the pair for a new ACTIVE row
	got, err := repo.GetActive(ctx, principal.ID, perm.ID)
	require.NoError(t, err)
	require.NoError(t, got.Revoke(grantor.ID, time.Now()))
	require.NoError(t, repo.Update(ctx, got))

	third := &models.Grant{
		PrincipalID:  principal.ID,
		PermissionID: perm.ID,
		GrantedBy:    grantor.ID,
		GrantedAt:    time.Now(),
		State:        models.GrantStateActive,
	}
	require.NoError(t, repo.CreateActive(ctx, third))
}

func TestBunGrantRepository_RejectsNonActiveInsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunGrantRepository(db)

	err := repo.CreateActive(context.Background(), &models.Grant{
		PrincipalID:  bunx.NewUUIDv7(),
		PermissionID: bunx.NewUUIDv7(),
		GrantedBy:    bunx.NewUUIDv7(),
		State:        models.GrantStateCreated,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state must be ACTIVE")
}

func TestBunGrantRepository_ListActiveByPrincipal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunGrantRepository(db)
	ctx := context.Background()

	principal := seedPrincipal(t, db, access.TierAdmin, 3)
	grantor := seedPrincipal(t, db, access.TierSuperuser, 5)
	permA := seedPermission(t, db, "orders.read.department", 2, false)
	permB := seedPermission(t, db, "orders.update.department", 2, false)

	for _, pid := range []string{permA.ID, permB.ID} {
		require.NoError(t, repo.CreateActive(ctx, &models.Grant{
			PrincipalID:  principal.ID,
			PermissionID: pid,
			GrantedBy:    grantor.ID,
			GrantedAt:    time.Now(),
			State:        models.GrantStateActive,
		}))
	}

	grants, err := repo.ListActiveByPrincipal(ctx, principal.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)

	// Relation must be loaded for the effective-permission listing
	for _, g := range grants {
		require.NotNil(t, g.Permission)
		assert.Equal(t, "orders", g.Permission.Resource)
	}
}

func TestBunGrantRepository_SweepQueries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunGrantRepository(db)
	ctx := context.Background()

	principal := seedPrincipal(t, db, access.TierAdmin, 3)
	grantor := seedPrincipal(t, db, access.TierSuperuser, 5)
	perm := seedPermission(t, db, "reports.export.global", 4, false)

	now := time.Now()
	past := now.Add(-time.Hour)
	longPast := now.Add(-48 * time.Hour)

	overdue := &models.Grant{
		PrincipalID:  principal.ID,
		PermissionID: perm.ID,
		GrantedBy:    grantor.ID,
		GrantedAt:    longPast,
		ExpiresAt:    &past,
		State:        models.GrantStateActive,
	}
	require.NoError(t, repo.CreateActive(ctx, overdue))

	t.Run("clock expired", func(t *testing.T) {
		expired, err := repo.ListClockExpired(ctx, now, 100)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, overdue.ID, expired[0].ID)
	})

	t.Run("retirable after retention", func(t *testing.T) {
		got, err := repo.GetByID(ctx, overdue.ID)
		require.NoError(t, err)
		require.NoError(t, got.Expire())
		require.NoError(t, repo.Update(ctx, got))

		// Cutoff after the expiry instant makes the row retirable
		retirable, err := repo.ListRetirable(ctx, now, 100)
		require.NoError(t, err)
		require.Len(t, retirable, 1)
		assert.Equal(t, overdue.ID, retirable[0].ID)

		// Cutoff before the expiry instant does not
		retirable, err = repo.ListRetirable(ctx, past.Add(-time.Minute), 100)
		require.NoError(t, err)
		assert.Empty(t, retirable)
	})
}

func TestBunPrincipalRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunPrincipalRepository(db)
	ctx := context.Background()

	// The system principal is seeded by migration
	system, err := repo.GetByID(ctx, access.SystemActorID)
	require.NoError(t, err)
	assert.Equal(t, access.TierSystem, system.Tier)
	assert.Equal(t, access.MaxClearance, system.ClearanceLevel)
	assert.True(t, system.Eligible())

	_, err = repo.GetByID(ctx, bunx.NewUUIDv7())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBunAuditRepository_AppendAndQuery(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunAuditRepository(db)
	ctx := context.Background()

	actor := bunx.NewUUIDv7()
	correlation := bunx.NewUUIDv7()

	entries := []*models.AuditEntry{
		{
			CorrelationID: correlation,
			ActorID:       actor,
			ActionType:    models.AuditActionDecision,
			ActionName:    "users.read.global",
			Result:        access.ResultDenied,
			RiskLevel:     access.RiskMedium,
			CreatedAt:     time.Now().Add(-2 * time.Second),
		},
		{
			CorrelationID:  correlation,
			ActorID:        actor,
			ActionType:     models.AuditActionDecision,
			ActionName:     "users.read.global",
			Result:         access.ResultBlocked,
			RiskLevel:      access.RiskHigh,
			RequiresReview: true,
			CreatedAt:      time.Now().Add(-time.Second),
		},
	}
	for _, e := range entries {
		require.NoError(t, repo.Insert(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	byActor, err := repo.ListByActor(ctx, actor, 10)
	require.NoError(t, err)
	require.Len(t, byActor, 2)
	// Newest first
	assert.Equal(t, access.ResultBlocked, byActor[0].Result)

	byCorrelation, err := repo.ListByCorrelation(ctx, correlation)
	require.NoError(t, err)
	require.Len(t, byCorrelation, 2)
	// Oldest first
	assert.Equal(t, access.ResultDenied, byCorrelation[0].Result)

	review, err := repo.ListRequiringReview(ctx, 10)
	require.NoError(t, err)
	require.Len(t, review, 1)
	assert.True(t, review[0].RequiresReview)
}
