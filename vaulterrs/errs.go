// Package vaulterrs defines the error taxonomy shared by every core
// component: ValidationError, NotFoundError, DriverError and
// RepositoryError, each modeled as its own errs.Class so that a wrapped
// cause survives and callers can classify an error without a type
// assertion on a concrete struct.
package vaulterrs

import (
	"errors"

	"github.com/zeebo/errs"
)

var (
	// Validation wraps caller-provided data that is wrong: a missing
	// field, a masked placeholder resubmitted as a real secret, a bad
	// URL shape, an oversize upload, an unknown restore mode or backup
	// table.
	Validation = errs.Class("validation")

	// NotFound wraps a reference to an entity that does not exist for
	// the caller.
	NotFound = errs.Class("not found")

	// Driver wraps a downstream storage/HTTP failure.
	Driver = errs.Class("driver")

	// Repository wraps an unexpected database statement failure.
	Repository = errs.Class("repository")
)

// Kind classifies err against the taxonomy above. It returns "" if err
// does not belong to any of them.
func Kind(err error) string {
	switch {
	case Validation.Has(err):
		return "validation"
	case NotFound.Has(err):
		return "not_found"
	case Driver.Has(err):
		return "driver"
	case Repository.Has(err):
		return "repository"
	default:
		return ""
	}
}

// IsNotFound reports whether err (or anything it wraps) is a NotFound
// error.
func IsNotFound(err error) bool {
	return NotFound.Has(err)
}

// IsValidation reports whether err (or anything it wraps) is a
// Validation error.
func IsValidation(err error) bool {
	return Validation.Has(err)
}

// As is re-exported for callers that want errors.As semantics without
// importing both packages.
func As(err error, target any) bool {
	return errors.As(err, target)
}
