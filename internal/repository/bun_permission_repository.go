package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

// ========================================
// Permission Repository
// ========================================

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db *bun.DB
}

// NewBunPermissionRepository creates a new Bun-based permission repository
func NewBunPermissionRepository(db *bun.DB) PermissionRepository {
	return &BunPermissionRepository{db: db}
}

// Create inserts a new catalog entry
func (r *BunPermissionRepository) Create(ctx context.Context, permission *models.Permission) error {
	if permission.ID == "" {
		permission.ID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(permission).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// Update rewrites an existing catalog entry (bootstrap upserts only)
func (r *BunPermissionRepository) Update(ctx context.Context, permission *models.Permission) error {
	permission.UpdatedAt = time.Now()
	permission.Version++ // Optimistic locking
	result, err := r.db.NewUpdate().
		Model(permission).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update permission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("permission %s: %w", permission.ID, ErrNotFound)
	}

	return nil
}

// GetByID retrieves a catalog entry by ID
func (r *BunPermissionRepository) GetByID(ctx context.Context, id string) (*models.Permission, error) {
	permission := new(models.Permission)
	err := r.db.NewSelect().
		Model(permission).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return permission, nil
}

// GetByName retrieves a catalog entry by its dotted name
func (r *BunPermissionRepository) GetByName(ctx context.Context, name string) (*models.Permission, error) {
	permission := new(models.Permission)
	err := r.db.NewSelect().
		Model(permission).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("get permission by name: %w", err)
	}
	return permission, nil
}

// List retrieves the whole catalog
func (r *BunPermissionRepository) List(ctx context.Context) ([]models.Permission, error) {
	var permissions []models.Permission
	err := r.db.NewSelect().
		Model(&permissions).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return permissions, nil
}

// ListInheritable retrieves catalog entries flagged inheritable
func (r *BunPermissionRepository) ListInheritable(ctx context.Context) ([]models.Permission, error) {
	var permissions []models.Permission
	err := r.db.NewSelect().
		Model(&permissions).
		Where("inheritable = ?", true).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list inheritable permissions: %w", err)
	}
	return permissions, nil
}
