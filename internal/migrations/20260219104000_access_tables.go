package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260219104000, down_20260219104000)
}

// up_20260219104000 creates the access engine tables: principals,
// permissions, grants, and audit_entries.
//
// Check and FK constraints are applied on PostgreSQL only; SQLite cannot
// ALTER TABLE ADD CONSTRAINT, so dev/test databases rely on the engine's
// own validation. The partial unique index on active grants, the
// concurrency backstop, is created on both dialects.
func up_20260219104000(ctx context.Context, db *bun.DB) error {
	// 1. Create principals table (directory mirror)
	fmt.Print(" [up] creating principals table...")
	_, err := db.NewCreateTable().
		Model((*models.Principal)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create principals table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_email ON principals(email)`)
	if err != nil {
		return fmt.Errorf("failed to create principals email index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_principals_department_id ON principals(department_id)`)
	if err != nil {
		return fmt.Errorf("failed to create principals department index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE principals
			ADD CONSTRAINT chk_principals_clearance
			CHECK (clearance_level BETWEEN 1 AND 5)
		`)
		if err != nil {
			return fmt.Errorf("failed to add principals clearance check: %w", err)
		}

		_, err = db.Exec(`
			ALTER TABLE principals
			ADD CONSTRAINT chk_principals_tier
			CHECK (tier IN ('SYSTEM', 'SUPERUSER', 'ADMIN', 'VENDOR', 'BUYER'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add principals tier check: %w", err)
		}
	}
	fmt.Println(" OK")

	// 2. Create permissions table (catalog)
	fmt.Print(" [up] creating permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.Permission)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create permissions table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_permissions_name ON permissions(name)`)
	if err != nil {
		return fmt.Errorf("failed to create permissions name index: %w", err)
	}

	// The dotted name is derived from the triple; both must stay unique
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_permissions_triple
		ON permissions (resource, action, scope)
	`)
	if err != nil {
		return fmt.Errorf("failed to create permissions triple index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE permissions
			ADD CONSTRAINT chk_permissions_clearance
			CHECK (required_clearance BETWEEN 1 AND 5)
		`)
		if err != nil {
			return fmt.Errorf("failed to add permissions clearance check: %w", err)
		}

		_, err = db.Exec(`
			ALTER TABLE permissions
			ADD CONSTRAINT chk_permissions_scope
			CHECK (scope IN ('SYSTEM', 'GLOBAL', 'DEPARTMENT', 'TEAM', 'USER', 'READ_ONLY'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add permissions scope check: %w", err)
		}

		_, err = db.Exec(`
			ALTER TABLE permissions
			ADD CONSTRAINT chk_permissions_risk
			CHECK (risk_level IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add permissions risk check: %w", err)
		}
	}
	fmt.Println(" OK")

	// 3. Create grants table
	fmt.Print(" [up] creating grants table...")
	_, err = db.NewCreateTable().
		Model((*models.Grant)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create grants table: %w", err)
	}

	// Unique-active backstop: at most one ACTIVE grant per
	// (principal, permission), regardless of how many requests race
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_grants_active_unique
		ON grants (principal_id, permission_id)
		WHERE state = 'ACTIVE'
	`)
	if err != nil {
		return fmt.Errorf("failed to create grants unique-active index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_grants_principal_id ON grants(principal_id)`)
	if err != nil {
		return fmt.Errorf("failed to create grants principal index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_grants_permission_id ON grants(permission_id)`)
	if err != nil {
		return fmt.Errorf("failed to create grants permission index: %w", err)
	}

	// Sweep scans by expiry and state
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_grants_expires_at ON grants(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create grants expires_at index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE grants
			ADD CONSTRAINT chk_grants_state
			CHECK (state IN ('CREATED', 'ACTIVE', 'EXPIRED', 'REVOKED', 'INACTIVE'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add grants state check: %w", err)
		}

		_, err = db.Exec(`
			ALTER TABLE grants
			ADD CONSTRAINT fk_grants_permission_id
			FOREIGN KEY (permission_id) REFERENCES permissions(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add grants permission FK: %w", err)
		}

		_, err = db.Exec(`
			ALTER TABLE grants
			ADD CONSTRAINT fk_grants_principal_id
			FOREIGN KEY (principal_id) REFERENCES principals(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add grants principal FK: %w", err)
		}
	}
	fmt.Println(" OK")

	// 4. Create audit_entries table
	// No FK constraints here: an audit write must never fail because a
	// referenced row is missing or gone
	fmt.Print(" [up] creating audit_entries table...")
	_, err = db.NewCreateTable().
		Model((*models.AuditEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create audit_entries table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_entries_actor_id ON audit_entries(actor_id)`)
	if err != nil {
		return fmt.Errorf("failed to create audit actor index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_entries_correlation_id ON audit_entries(correlation_id)`)
	if err != nil {
		return fmt.Errorf("failed to create audit correlation index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_entries_created_at ON audit_entries(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create audit created_at index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_audit_entries_review
		ON audit_entries (created_at)
		WHERE requires_review
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit review index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260219104000 drops the access tables in reverse order
func down_20260219104000(ctx context.Context, db *bun.DB) error {
	tables := []string{
		"audit_entries",
		"grants",
		"permissions",
		"principals",
	}

	cascade := ""
	if IsPostgreSQL(db) {
		cascade = " CASCADE"
	}

	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		_, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s%s", table, cascade))
		if err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
