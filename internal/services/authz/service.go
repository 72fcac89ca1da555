// Package authz is the decision engine: it evaluates permission checks,
// runs the grant lifecycle, and keeps the decision cache and audit trail
// consistent with both.
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/services/catalog"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

const tracerName = "authzapi/services/authz"

// Service provides all access evaluation and grant lifecycle operations.
//
// This service centralizes:
//   - Permission checks (request path - performance critical, cached)
//   - Grant issuance and revocation (control plane - invalidates cache)
//   - Effective permission listing (introspection)
//   - Catalog bootstrap (admin - purges cache)
//   - Expiry sweep (background maintenance)
type Service interface {
	// =========================================================================
	// Decision Path (Request Path - Performance Critical)
	// =========================================================================

	// Validate answers whether a principal may perform the operation the
	// key names. Denials and blocks come back as a Decision, not an
	// error; the error return is reserved for infrastructure failures
	// (store down, unknown principal), on which no decision is made.
	//
	// checkCtx is optional. Without it, condition evaluation is skipped
	// and department-scoped inheritance cannot match.
	Validate(ctx context.Context, principalID string, key access.Key, checkCtx *CheckContext) (*Decision, error)

	// Require is Validate for callers that want an error on denial: it
	// returns nil when allowed and an *AccessDenied otherwise.
	Require(ctx context.Context, principalID string, key access.Key, checkCtx *CheckContext) error

	// =========================================================================
	// Grant Lifecycle (Control Plane - Invalidates Cache)
	// =========================================================================

	// Grant issues an ACTIVE grant of the named catalog permission to the
	// target principal. Issuing a grant that is already held is a no-op
	// that still reports success with Changed=false.
	//
	// expiresAt nil means the grant does not expire on its own.
	Grant(ctx context.Context, grantorID, targetID, permissionName string, expiresAt *time.Time) (*GrantResult, error)

	// Revoke transitions the target's ACTIVE grant of the named
	// permission to REVOKED. Revoking a permission the target does not
	// hold is a no-op with Changed=false.
	Revoke(ctx context.Context, revokerID, targetID, permissionName string) (*GrantResult, error)

	// ListEffective returns the permissions a principal can currently
	// exercise: direct ACTIVE grants, plus tier-inherited catalog
	// permissions when includeInherited is set.
	ListEffective(ctx context.Context, principalID string, includeInherited bool) ([]EffectivePermission, error)

	// =========================================================================
	// Administration (Out-of-Band)
	// =========================================================================

	// BootstrapCatalog applies parsed permission definitions to the
	// catalog, purges the decision cache, and audits the run.
	BootstrapCatalog(ctx context.Context, definitions []catalog.Definition) (*catalog.BootstrapResult, error)

	// SweepExpired transitions overdue ACTIVE grants to EXPIRED, retires
	// terminal grants past the retention window, and invalidates cached
	// decisions for every principal it touched.
	SweepExpired(ctx context.Context) (*SweepResult, error)

	// InvalidatePrincipal drops every cached decision for the principal.
	InvalidatePrincipal(ctx context.Context, principalID string) error
}

// CheckContext carries request attributes that conditioned permissions
// evaluate against. All fields are optional; absent attestations simply
// fail the conditions that need them.
type CheckContext struct {
	// IPAddress is the caller's address, checked against IP allowlists.
	IPAddress string

	// DepartmentID is the department the operation targets. It drives
	// both department allowlist conditions and ADMIN-tier inheritance.
	DepartmentID string

	// MFAVerified attests that the caller passed a second factor.
	MFAVerified bool

	// ApprovalRef references an approval record for permissions that
	// demand one. Empty means no approval.
	ApprovalRef string

	// Attributes feeds attribute expressions (bexpr syntax).
	Attributes map[string]any
}

// Decision is the outcome of one permission check.
type Decision struct {
	PrincipalID string        `json:"principal_id"`
	Permission  string        `json:"permission"`
	Result      access.Result `json:"result"`

	// Code is a DenyCode constant; empty when allowed.
	Code string `json:"code,omitempty"`

	// Reason says in words why the check came out this way.
	Reason string `json:"reason"`

	// Source names what allowed the operation: "system_tier", "grant",
	// "inherited:SUPERUSER", "inherited:ADMIN", or "fallback:<tier>".
	// Empty on denial.
	Source string `json:"source,omitempty"`

	// RequiredClearance is the threshold that applied to this check.
	RequiredClearance int `json:"required_clearance,omitempty"`

	// Cached is true when the decision was served from the cache.
	Cached bool `json:"cached"`

	// FallbackUsed is true when no catalog row existed and the static
	// clearance table decided the requirement.
	FallbackUsed bool `json:"fallback_used,omitempty"`

	EvaluatedAt   time.Time `json:"evaluated_at"`
	CorrelationID string    `json:"correlation_id"`

	// contextSensitive marks decisions whose outcome consulted the
	// CheckContext. Those are never cached: a later call with different
	// context must not see them.
	contextSensitive bool
}

// Allowed reports whether the check passed.
func (d *Decision) Allowed() bool {
	return d.Result == access.ResultAllowed
}

// GrantResult reports the outcome of a Grant or Revoke call.
type GrantResult struct {
	// Grant is the affected row: the ACTIVE grant after Grant, the
	// REVOKED grant after Revoke. Nil when a revoke found nothing.
	Grant *models.Grant

	// Changed is false for idempotent no-ops.
	Changed bool
}

// EffectivePermission is one entry in a principal's effective permission
// listing.
type EffectivePermission struct {
	Permission models.Permission `json:"permission"`

	// Source is SourceDirect for granted permissions, or
	// "INHERITED_<TIER>" for tier-inherited ones.
	Source string `json:"source"`

	// GrantID is set only for direct grants.
	GrantID string `json:"grant_id,omitempty"`

	// ExpiresAt is set only for direct grants that expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SourceDirect marks an effective permission held through an ACTIVE grant.
const SourceDirect = "DIRECT"

// InheritedSource names the effective-permission source for a tier.
func InheritedSource(tier access.Tier) string {
	return "INHERITED_" + string(tier)
}

// SweepResult reports what one sweep pass changed.
type SweepResult struct {
	// Expired is how many overdue ACTIVE grants moved to EXPIRED.
	Expired int `json:"expired"`

	// Retired is how many terminal grants past retention moved to INACTIVE.
	Retired int `json:"retired"`

	// PrincipalsInvalidated is how many principals had cached decisions
	// dropped because the sweep touched their grants.
	PrincipalsInvalidated int `json:"principals_invalidated"`
}

// Dependencies contains all collaborators for service construction.
//
// This struct is used for dependency injection, making it easy to test
// with stubs and to swap implementations.
type Dependencies struct {
	Principals  repository.PrincipalRepository
	Permissions repository.PermissionRepository
	Grants      repository.GrantRepository

	Cache   DecisionCache
	Audit   AuditSink
	Catalog *catalog.Loader

	DecisionMetrics *telemetry.DecisionMetrics
	GrantMetrics    *telemetry.GrantMetrics
}

// AuditSink accepts audit entries for asynchronous persistence.
// *audit.Logger satisfies it.
type AuditSink interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// Config contains tuning for service construction, separated from
// runtime dependencies.
type Config struct {
	// RetentionDays is how long EXPIRED and REVOKED grants stay before
	// the sweep retires them to INACTIVE.
	RetentionDays int

	// SweepBatchLimit caps grants transitioned per sweep pass.
	SweepBatchLimit int
}

// service implements the Service interface.
type service struct {
	principals  repository.PrincipalRepository
	permissions repository.PermissionRepository
	grants      repository.GrantRepository

	cache   DecisionCache
	audit   AuditSink
	catalog *catalog.Loader

	decisionMetrics *telemetry.DecisionMetrics
	grantMetrics    *telemetry.GrantMetrics

	retention       time.Duration
	sweepBatchLimit int
}

// NewService creates the decision engine with all dependencies.
//
// A nil Cache disables caching rather than failing: the engine runs
// correct but uncached.
func NewService(deps Dependencies, cfg Config) (Service, error) {
	if deps.Principals == nil {
		return nil, fmt.Errorf("principal repository is required")
	}
	if deps.Permissions == nil {
		return nil, fmt.Errorf("permission repository is required")
	}
	if deps.Grants == nil {
		return nil, fmt.Errorf("grant repository is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog loader is required")
	}
	if deps.DecisionMetrics == nil || deps.GrantMetrics == nil {
		return nil, fmt.Errorf("telemetry instruments are required")
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", cfg.RetentionDays)
	}
	if cfg.SweepBatchLimit <= 0 {
		return nil, fmt.Errorf("sweep batch limit must be positive, got %d", cfg.SweepBatchLimit)
	}

	cache := deps.Cache
	if cache == nil {
		cache = NewDisabledDecisionCache()
	}

	return &service{
		principals:      deps.Principals,
		permissions:     deps.Permissions,
		grants:          deps.Grants,
		cache:           cache,
		audit:           deps.Audit,
		catalog:         deps.Catalog,
		decisionMetrics: deps.DecisionMetrics,
		grantMetrics:    deps.GrantMetrics,
		retention:       time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		sweepBatchLimit: cfg.SweepBatchLimit,
	}, nil
}
