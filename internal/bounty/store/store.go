// Package store persists bounty aggregates with their milestones and
// contributions. Stores are pure I/O; every rule lives in models and service.
package store

import "lexbounty/pkg/platform/sentinel"

var (
	// ErrNotFound is returned when a bounty does not exist.
	ErrNotFound = sentinel.ErrNotFound
	// ErrConflict is returned when an update carries a stale version or a
	// create reuses an id.
	ErrConflict = sentinel.ErrConflict
)
