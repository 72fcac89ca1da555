package repository

import (
	"context"
	"time"

	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

// PermissionRepository exposes persistence operations for catalog entries.
type PermissionRepository interface {
	// Catalog mutation (bootstrap upserts only)
	Create(ctx context.Context, permission *models.Permission) error
	Update(ctx context.Context, permission *models.Permission) error

	// Lookups
	GetByID(ctx context.Context, id string) (*models.Permission, error)
	GetByName(ctx context.Context, name string) (*models.Permission, error)
	List(ctx context.Context) ([]models.Permission, error)
	ListInheritable(ctx context.Context) ([]models.Permission, error)
}

// GrantRepository exposes persistence operations for grants. Grants are
// soft-terminated, never deleted, so there is no Delete.
type GrantRepository interface {
	// CreateActive inserts a grant in ACTIVE state. Returns
	// ErrDuplicateActiveGrant when the unique-active index rejects it.
	CreateActive(ctx context.Context, grant *models.Grant) error
	Update(ctx context.Context, grant *models.Grant) error
	GetByID(ctx context.Context, id string) (*models.Grant, error)

	// GetActive returns the single ACTIVE grant for the pair, including
	// one whose expiry has passed but whose sweep is still pending.
	GetActive(ctx context.Context, principalID, permissionID string) (*models.Grant, error)

	// ListActiveByPrincipal returns ACTIVE grants with their permissions
	// loaded, oldest grant first.
	ListActiveByPrincipal(ctx context.Context, principalID string) ([]models.Grant, error)

	// Sweep queries
	ListClockExpired(ctx context.Context, now time.Time, limit int) ([]models.Grant, error)
	ListRetirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Grant, error)
}

// PrincipalRepository reads the principal directory mirror. The engine
// never writes principals, so the interface is read-only.
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (*models.Principal, error)
}

// AuditRepository is append-only: entries are inserted and queried,
// never updated or deleted.
type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
	ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error)
	ListByCorrelation(ctx context.Context, correlationID string) ([]models.AuditEntry, error)
	ListRequiringReview(ctx context.Context, limit int) ([]models.AuditEntry, error)
}
