package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/access"
)

// Permission is a catalog entry: one grantable capability, identified by
// its dotted name ("users.read.global") and carried as a typed triple.
// The name is parsed exactly once, when the catalog row is written; the
// string survives only as the display and lookup key. Rows referenced by
// grants are immutable outside catalog bootstrap upserts.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID                string           `bun:"id,pk,type:uuid"`
	Name              string           `bun:"name,notnull,unique"` // canonical dotted key
	Resource          string           `bun:"resource,notnull"`
	Action            string           `bun:"action,notnull"`
	Scope             access.Scope     `bun:"scope,notnull"`
	RequiredClearance int              `bun:"required_clearance,notnull"` // 1..5, checked by constraint
	Inheritable       bool             `bun:"inheritable,notnull,default:false"`
	Delegatable       bool             `bun:"delegatable,notnull,default:false"`
	RequiresMFA       bool             `bun:"requires_mfa,notnull,default:false"`
	RequiresApproval  bool             `bun:"requires_approval,notnull,default:false"`
	Conditions        ConditionSet     `bun:"conditions,type:jsonb,notnull,default:'{}'"`
	RiskLevel         access.RiskLevel `bun:"risk_level,notnull,default:'MEDIUM'"`
	Description       string           `bun:"description"`
	CreatedAt         time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	Version           int              `bun:"version,notnull,default:1"`
}

// Key returns the typed triple for this permission.
func (p *Permission) Key() access.Key {
	return access.Key{Resource: p.Resource, Action: p.Action, Scope: p.Scope}
}

// ConditionSet holds the optional contextual predicates attached to a
// permission. All present predicates must pass for a check to succeed;
// a zero ConditionSet imposes no constraint.
type ConditionSet struct {
	// TimeWindow restricts checks to a daily window.
	TimeWindow *TimeWindow `json:"time_window,omitempty"`

	// IPAllowlist restricts checks to source IPs inside the listed
	// addresses or CIDR blocks.
	IPAllowlist []string `json:"ip_allowlist,omitempty"`

	// DepartmentAllowlist restricts checks to requests attributed to the
	// listed departments.
	DepartmentAllowlist []string `json:"department_allowlist,omitempty"`

	// AttributeExpr is an optional go-bexpr expression evaluated against
	// the request's attribute map.
	AttributeExpr string `json:"attribute_expr,omitempty"`
}

// TimeWindow is a daily validity window in 24h "HH:MM" form. Windows may
// wrap midnight (start 22:00, end 06:00). An empty Days list means every
// day; entries are lowercase three-letter day names ("mon".."sun").
type TimeWindow struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Days  []string `json:"days,omitempty"`
}

// Empty reports whether the set carries no predicates at all.
func (cs ConditionSet) Empty() bool {
	return cs.TimeWindow == nil &&
		len(cs.IPAllowlist) == 0 &&
		len(cs.DepartmentAllowlist) == 0 &&
		cs.AttributeExpr == ""
}

// Scan implements sql.Scanner for reading from database. PostgreSQL
// hands jsonb over as []byte, SQLite as string.
func (cs *ConditionSet) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*cs = ConditionSet{}
		return nil
	case []byte:
		return json.Unmarshal(v, cs)
	case string:
		return json.Unmarshal([]byte(v), cs)
	default:
		return fmt.Errorf("failed to scan ConditionSet: expected []byte or string, got %T", value)
	}
}

// Value implements driver.Valuer for writing to database
func (cs ConditionSet) Value() (driver.Value, error) {
	bytes, err := json.Marshal(cs)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// GrantState is a grant's position in its lifecycle. Transitions are
// one-way: CREATED → ACTIVE → (EXPIRED | REVOKED) → INACTIVE. A grant
// that leaves ACTIVE never returns; re-granting inserts a new row.
type GrantState string

const (
	GrantStateCreated  GrantState = "CREATED"
	GrantStateActive   GrantState = "ACTIVE"
	GrantStateExpired  GrantState = "EXPIRED"
	GrantStateRevoked  GrantState = "REVOKED"
	GrantStateInactive GrantState = "INACTIVE"
)

// Grant records that a principal holds a permission. Grants are never
// physically deleted; terminal states preserve the audit trail. At most
// one ACTIVE grant exists per (principal, permission), enforced by a
// partial unique index.
type Grant struct {
	bun.BaseModel `bun:"table:grants,alias:g"`

	ID           string     `bun:"id,pk,type:uuid"`
	PrincipalID  string     `bun:"principal_id,notnull,type:uuid"`
	PermissionID string     `bun:"permission_id,notnull,type:uuid"` // FK to permissions(id)
	GrantedBy    string     `bun:"granted_by,notnull,type:uuid"`
	GrantedAt    time.Time  `bun:"granted_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt    *time.Time `bun:"expires_at"` // nil = no expiry
	State        GrantState `bun:"state,notnull,default:'CREATED'"`
	RevokedAt    *time.Time `bun:"revoked_at"`
	RevokedBy    *string    `bun:"revoked_by,type:uuid"`

	Permission *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// Activate moves a freshly built grant into service: CREATED → ACTIVE.
func (g *Grant) Activate() error {
	if g.State != GrantStateCreated {
		return fmt.Errorf("cannot activate grant in state %s", g.State)
	}
	g.State = GrantStateActive
	return nil
}

// Expire marks a grant whose expiry instant passed: ACTIVE → EXPIRED.
func (g *Grant) Expire() error {
	if g.State != GrantStateActive {
		return fmt.Errorf("cannot expire grant in state %s", g.State)
	}
	g.State = GrantStateExpired
	return nil
}

// Revoke soft-terminates an active grant: ACTIVE → REVOKED.
func (g *Grant) Revoke(revokedBy string, at time.Time) error {
	if g.State != GrantStateActive {
		return fmt.Errorf("cannot revoke grant in state %s", g.State)
	}
	g.State = GrantStateRevoked
	g.RevokedAt = &at
	g.RevokedBy = &revokedBy
	return nil
}

// Retire archives a terminal grant after the retention window:
// EXPIRED or REVOKED → INACTIVE.
func (g *Grant) Retire() error {
	if g.State != GrantStateExpired && g.State != GrantStateRevoked {
		return fmt.Errorf("cannot retire grant in state %s", g.State)
	}
	g.State = GrantStateInactive
	return nil
}

// ClockExpired reports whether the grant carries an expiry that has
// passed, regardless of its recorded state.
func (g *Grant) ClockExpired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// ActiveAt reports whether the grant confers access at the given instant:
// state ACTIVE and not clock-expired. A row whose sweep is overdue counts
// as expired here even while the state column still says ACTIVE.
func (g *Grant) ActiveAt(now time.Time) bool {
	return g.State == GrantStateActive && !g.ClockExpired(now)
}
