package repository

import "errors"

// ErrNotFound is wrapped by every repository lookup that finds no row.
// Callers match it with errors.Is to tell "no such row" apart from
// infrastructure failures; the distinction drives the engine's fallback
// and fail-closed paths.
var ErrNotFound = errors.New("not found")

// ErrDuplicateActiveGrant is returned when inserting an ACTIVE grant
// collides with the unique-active index. A racing grant for the same
// (principal, permission) pair won; callers treat this as idempotent
// success.
var ErrDuplicateActiveGrant = errors.New("active grant already exists")
