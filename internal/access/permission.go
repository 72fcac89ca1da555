package access

import (
	"fmt"
	"strings"
)

// Clearance level bounds. Every principal and every permission carries a
// clearance level inside this range; values outside it are rejected at
// catalog load and by DB check constraints.
const (
	MinClearance = 1
	MaxClearance = 5
)

// ValidClearance reports whether level is inside [MinClearance, MaxClearance].
func ValidClearance(level int) bool {
	return level >= MinClearance && level <= MaxClearance
}

// Key is a permission identity parsed into its typed parts. Permission
// names are dotted triples, "resource.action.scope" (for example
// "users.read.global"); parsing happens once, at catalog load or at the
// validation entry point, and everything downstream works with the typed
// form. The dotted string survives only as a display and lookup key.
type Key struct {
	Resource string
	Action   string
	Scope    Scope
}

// ParseKey parses a dotted permission name into a Key. The name must have
// exactly three non-empty segments and a recognizable scope.
func ParseKey(name string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed permission name %q: want resource.action.scope", name)
	}
	for _, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("malformed permission name %q: empty segment", name)
		}
	}

	scope, err := ParseScope(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("malformed permission name %q: %w", name, err)
	}

	return Key{
		Resource: strings.ToLower(parts[0]),
		Action:   strings.ToLower(parts[1]),
		Scope:    scope,
	}, nil
}

// NewKey builds a Key from already-split parts, validating the scope.
func NewKey(resource, action string, scope Scope) (Key, error) {
	resource = strings.ToLower(strings.TrimSpace(resource))
	action = strings.ToLower(strings.TrimSpace(action))
	if resource == "" || action == "" {
		return Key{}, fmt.Errorf("permission key needs resource and action, got %q/%q", resource, action)
	}
	if !scope.Valid() {
		return Key{}, fmt.Errorf("unknown scope: %q", scope)
	}
	return Key{Resource: resource, Action: action, Scope: scope}, nil
}

// String renders the canonical dotted name, with the scope lowercased
// ("users.read.global"). The inverse of ParseKey.
func (k Key) String() string {
	return k.Resource + "." + k.Action + "." + strings.ToLower(string(k.Scope))
}
