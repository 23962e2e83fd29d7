// Package apperr holds the error kinds every layer agrees on. Domain packages
// wrap these sentinels so handlers can map any error to a status code with
// errors.Is while tests can still match the precise cause.
package apperr

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
)

// Kind names the error kind of err. Errors outside the taxonomy are "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
