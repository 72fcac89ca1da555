package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

// ========================================
// Grant Repository
// ========================================

// BunGrantRepository implements GrantRepository using Bun ORM
type BunGrantRepository struct {
	db *bun.DB
}

// NewBunGrantRepository creates a new Bun-based grant repository
func NewBunGrantRepository(db *bun.DB) GrantRepository {
	return &BunGrantRepository{db: db}
}

// CreateActive inserts a grant in ACTIVE state. The partial unique index
// on (principal_id, permission_id) WHERE state = 'ACTIVE' is the race
// backstop: a violation surfaces as ErrDuplicateActiveGrant.
func (r *BunGrantRepository) CreateActive(ctx context.Context, grant *models.Grant) error {
	if grant.ID == "" {
		grant.ID = bunx.NewUUIDv7()
	}
	if grant.State != models.GrantStateActive {
		return fmt.Errorf("create grant: state must be ACTIVE, got %s", grant.State)
	}

	_, err := r.db.NewInsert().
		Model(grant).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("grant for principal %s: %w", grant.PrincipalID, ErrDuplicateActiveGrant)
		}
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// Update persists a state transition
func (r *BunGrantRepository) Update(ctx context.Context, grant *models.Grant) error {
	result, err := r.db.NewUpdate().
		Model(grant).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update grant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("grant %s: %w", grant.ID, ErrNotFound)
	}

	return nil
}

// GetByID retrieves a grant by ID
func (r *BunGrantRepository) GetByID(ctx context.Context, id string) (*models.Grant, error) {
	grant := new(models.Grant)
	err := r.db.NewSelect().
		Model(grant).
		Where("g.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("grant %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get grant: %w", err)
	}
	return grant, nil
}

// GetActive retrieves the single ACTIVE grant for a (principal, permission)
// pair. Clock-expired rows whose sweep is pending still come back; the
// caller decides what an overdue expiry means.
func (r *BunGrantRepository) GetActive(ctx context.Context, principalID, permissionID string) (*models.Grant, error) {
	grant := new(models.Grant)
	err := r.db.NewSelect().
		Model(grant).
		Where("g.principal_id = ?", principalID).
		Where("g.permission_id = ?", permissionID).
		Where("g.state = ?", models.GrantStateActive).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active grant for principal %s: %w", principalID, ErrNotFound)
		}
		return nil, fmt.Errorf("get active grant: %w", err)
	}
	return grant, nil
}

// ListActiveByPrincipal retrieves a principal's ACTIVE grants with their
// permissions loaded
func (r *BunGrantRepository) ListActiveByPrincipal(ctx context.Context, principalID string) ([]models.Grant, error) {
	var grants []models.Grant
	err := r.db.NewSelect().
		Model(&grants).
		Relation("Permission").
		Where("g.principal_id = ?", principalID).
		Where("g.state = ?", models.GrantStateActive).
		Order("g.granted_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}
	return grants, nil
}

// ListClockExpired retrieves ACTIVE grants whose expiry instant has passed
func (r *BunGrantRepository) ListClockExpired(ctx context.Context, now time.Time, limit int) ([]models.Grant, error) {
	var grants []models.Grant
	err := r.db.NewSelect().
		Model(&grants).
		Where("g.state = ?", models.GrantStateActive).
		Where("g.expires_at IS NOT NULL").
		Where("g.expires_at <= ?", now).
		Order("g.expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clock-expired grants: %w", err)
	}
	return grants, nil
}

// ListRetirable retrieves EXPIRED and REVOKED grants whose terminal
// instant is older than the retention cutoff
func (r *BunGrantRepository) ListRetirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Grant, error) {
	var grants []models.Grant
	err := r.db.NewSelect().
		Model(&grants).
		Where("(g.state = ? AND g.expires_at <= ?) OR (g.state = ? AND g.revoked_at <= ?)",
			models.GrantStateExpired, cutoff, models.GrantStateRevoked, cutoff).
		Order("g.granted_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retirable grants: %w", err)
	}
	return grants, nil
}

// isUniqueViolation detects a unique index violation on either dialect:
// SQLSTATE 23505 on PostgreSQL, the UNIQUE constraint message on SQLite.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
