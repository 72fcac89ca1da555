package repository

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

// ========================================
// Audit Repository
// ========================================

// BunAuditRepository implements AuditRepository using Bun ORM. Entries
// are append-only; no update or delete path exists.
type BunAuditRepository struct {
	db *bun.DB
}

// NewBunAuditRepository creates a new Bun-based audit repository
func NewBunAuditRepository(db *bun.DB) AuditRepository {
	return &BunAuditRepository{db: db}
}

// Insert appends one audit entry
func (r *BunAuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(entry).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByActor retrieves an actor's entries, newest first
func (r *BunAuditRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("actor_id = ?", actorID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit entries by actor: %w", err)
	}
	return entries, nil
}

// ListByCorrelation retrieves every entry produced by one engine
// operation, oldest first
func (r *BunAuditRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit entries by correlation: %w", err)
	}
	return entries, nil
}

// ListRequiringReview retrieves flagged entries, newest first
func (r *BunAuditRepository) ListRequiringReview(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("requires_review = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit entries requiring review: %w", err)
	}
	return entries, nil
}
