package access

import (
	"fmt"
	"strings"
)

// Tier is a principal's position in the account hierarchy. Tiers are
// ordered: SYSTEM > SUPERUSER > ADMIN > VENDOR > BUYER.
//
// Tier assignment is owned by the principal directory; the engine reads
// tiers but never changes them.
type Tier string

const (
	// TierSystem is the platform itself. SYSTEM-tier principals bypass
	// permission checks entirely (every check is still audited).
	TierSystem Tier = "SYSTEM"

	// TierSuperuser is a platform operator. Inherits every inheritable
	// non-SYSTEM permission.
	TierSuperuser Tier = "SUPERUSER"

	// TierAdmin is a department administrator. Inherits department-bounded
	// permissions when the department matches.
	TierAdmin Tier = "ADMIN"

	// TierVendor is a marketplace seller account. No inheritance.
	TierVendor Tier = "VENDOR"

	// TierBuyer is a marketplace customer account. No inheritance.
	TierBuyer Tier = "BUYER"
)

// tierRank orders tiers from lowest (1) to highest (5).
var tierRank = map[Tier]int{
	TierBuyer:     1,
	TierVendor:    2,
	TierAdmin:     3,
	TierSuperuser: 4,
	TierSystem:    5,
}

// Rank returns the tier's position in the ordering, 1 (BUYER) through
// 5 (SYSTEM). Unknown tiers rank 0.
func (t Tier) Rank() int {
	return tierRank[t]
}

// Valid reports whether t is one of the five defined tiers.
func (t Tier) Valid() bool {
	return tierRank[t] != 0
}

// ParseTier normalizes a tier string from the principal directory.
func ParseTier(s string) (Tier, error) {
	tier := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !tier.Valid() {
		return "", fmt.Errorf("unknown tier: %q", s)
	}
	return tier, nil
}
