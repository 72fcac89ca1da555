package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

// ========================================
// Principal Repository
// ========================================

// BunPrincipalRepository implements PrincipalRepository using Bun ORM.
// Read-only: the principal directory owns these rows.
type BunPrincipalRepository struct {
	db *bun.DB
}

// NewBunPrincipalRepository creates a new Bun-based principal repository
func NewBunPrincipalRepository(db *bun.DB) PrincipalRepository {
	return &BunPrincipalRepository{db: db}
}

// GetByID retrieves a principal by ID
func (r *BunPrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	principal := new(models.Principal)
	err := r.db.NewSelect().
		Model(principal).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return principal, nil
}
