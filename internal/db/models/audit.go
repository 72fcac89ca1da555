package models

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/access"
)

// AuditActionType classifies what kind of engine operation produced an
// audit entry.
type AuditActionType string

const (
	// AuditActionDecision is a permission check (allow or deny).
	AuditActionDecision AuditActionType = "DECISION"

	// AuditActionGrant is a grant creation (or idempotent re-grant).
	AuditActionGrant AuditActionType = "GRANT"

	// AuditActionRevoke is a grant revocation.
	AuditActionRevoke AuditActionType = "REVOKE"

	// AuditActionCatalog is a catalog bootstrap run.
	AuditActionCatalog AuditActionType = "CATALOG"

	// AuditActionSweep is an expiry sweep run.
	AuditActionSweep AuditActionType = "SWEEP"
)

// AuditEntry is one append-only record of a decision or mutation. Entries
// are never updated or deleted; the repository exposes insert and query
// only. HIGH and CRITICAL risk entries, and every BLOCKED result, are
// flagged for review.
type AuditEntry struct {
	bun.BaseModel `bun:"table:audit_entries,alias:ae"`

	ID             string           `bun:"id,pk,type:uuid"`
	CorrelationID  string           `bun:"correlation_id,notnull,type:uuid"` // groups entries from one engine operation
	ActorID        string           `bun:"actor_id,notnull,type:uuid"`
	ActionType     AuditActionType  `bun:"action_type,notnull"`
	ActionName     string           `bun:"action_name,notnull"` // permission key or operation name
	TargetID       string           `bun:"target_id"`           // principal or permission acted on, "" when none
	Result         access.Result    `bun:"result,notnull"`
	RiskLevel      access.RiskLevel `bun:"risk_level,notnull"`
	RequiresReview bool             `bun:"requires_review,notnull,default:false"`
	Detail         string           `bun:"detail"` // human-readable reason or summary
	CreatedAt      time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
