package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary
// keys and correlation IDs. Works on both PostgreSQL and SQLite, so no
// row depends on gen_random_uuid() being available.
//
// Panics if the entropy source fails; no ID can be generated anywhere in
// the process at that point.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
