// Package repository provides the alert store's repository interfaces and
// their GORM implementations.
package repository

import "github.com/civicwatch/alertwatch/internal/errors"

// Sentinel errors for repository operations.
var (
	// ErrAlertNotFound indicates the requested alert does not exist.
	ErrAlertNotFound = errors.NewStd("alert not found")

	// ErrActorNotFound indicates the requested actor does not exist.
	ErrActorNotFound = errors.NewStd("actor not found")

	// ErrDuplicateVote indicates the voter already voted on the alert.
	ErrDuplicateVote = errors.NewStd("duplicate vote")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.NewStd("invalid input")
)
