package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrInvalidArgument indicates a write was rejected by a constraint.
var ErrInvalidArgument = errors.New("repository: invalid argument")

// ErrStatusConflict indicates a guarded status transition did not match the
// record's current status. Callers treat this as "someone got there first".
var ErrStatusConflict = errors.New("repository: status conflict")
