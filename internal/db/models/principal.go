package models

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/J41RO/MeStore-sub006/internal/access"
)

// Principal mirrors an account from the MeStore principal directory. The
// directory owns these rows; the engine reads tier, clearance, department,
// and standing, and never writes them outside migrations and seeds.
type Principal struct {
	bun.BaseModel `bun:"table:principals,alias:pr"`

	ID             string      `bun:"id,pk,type:uuid"`
	Email          string      `bun:"email,notnull,unique"`
	Name           string      `bun:"name"`
	Tier           access.Tier `bun:"tier,notnull"`
	ClearanceLevel int         `bun:"clearance_level,notnull"` // 1..5, checked by constraint
	DepartmentID   *string     `bun:"department_id"`           // nil for tenant-wide principals
	Active         bool        `bun:"active,notnull,default:true"`
	Locked         bool        `bun:"locked,notnull,default:false"`
	Verified       bool        `bun:"verified,notnull,default:false"`
	CreatedAt      time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Eligible reports whether the principal meets base eligibility: active,
// verified, and not locked. Ineligible principals are denied before any
// permission evaluation happens.
func (p *Principal) Eligible() bool {
	if p == nil {
		return false
	}
	return p.Active && p.Verified && !p.Locked
}

// Department returns the principal's department ID, or "" when none is
// assigned.
func (p *Principal) Department() string {
	if p == nil || p.DepartmentID == nil {
		return ""
	}
	return *p.DepartmentID
}
