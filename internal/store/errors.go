package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness
// constraint. The database constraint is the source of truth;
// application-level pre-checks only provide an early exit.
var ErrConflict = errors.New("conflict")
