// Package common defines shared sentinel errors and typed errors used across
// the onboarding server layers. Callers should use errors.Is/errors.As to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Optimistic concurrency loss. The identical request is safe to retry.
	ErrVersionConflict = errors.New("version conflict")

	// Session lifecycle errors.
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrSessionExpired    = errors.New("session resume window elapsed")
	ErrSessionTerminated = errors.New("session terminated")

	// Auth errors (invalid or malformed resume token).
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError reports a user-fixable problem with a submitted payload.
// No writes have happened when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// GateError means the session has not reached (or may no longer submit) the
// requested step. Terminal for the request; retrying will not help without a
// state change elsewhere.
type GateError struct {
	Step   string
	Reason string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("step %q not allowed: %s", e.Step, e.Reason)
}

// StorageFinalizeError means an object-store move failed mid-saga. By the
// time it is returned, already-finalized siblings from the same call have
// been compensated, so the identical request is safe to retry.
type StorageFinalizeError struct {
	Field string
	Err   error
}

func (e *StorageFinalizeError) Error() string {
	return fmt.Sprintf("finalize %q: %v", e.Field, e.Err)
}

func (e *StorageFinalizeError) Unwrap() error { return e.Err }
