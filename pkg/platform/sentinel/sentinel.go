package sentinel

import "errors"

// Sentinel errors for storage facts. Stores and collaborators return these
// (optionally wrapped) and services translate them into coded domain errors.
//
//   - ErrNotFound: the row or record does not exist
//   - ErrConflict: optimistic version check failed or the key already exists
//   - ErrInvalidState: the record is in the wrong state for the requested write
//   - ErrUnavailable: backing service is unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
