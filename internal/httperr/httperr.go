package httperr

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds surfaced to clients alongside the message. Handlers map every
// business-rule failure onto one of these; SQL error details never leak out.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindForbidden  = "forbidden"
	KindConflict   = "conflict"
	KindInternal   = "internal"
)

func respond(c echo.Context, status int, kind, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "kind": kind})
}

// BadRequest reports malformed or out-of-range input
func BadRequest(c echo.Context, msg string) error {
	return respond(c, http.StatusBadRequest, KindValidation, msg)
}

// NotFound reports a missing (or soft-deleted) entity
func NotFound(c echo.Context, msg string) error {
	return respond(c, http.StatusNotFound, KindNotFound, msg)
}

// Forbidden reports a permission failure for the resolved actor
func Forbidden(c echo.Context, msg string) error {
	return respond(c, http.StatusForbidden, KindForbidden, msg)
}

// Conflict reports a state-machine or uniqueness violation
func Conflict(c echo.Context, msg string) error {
	return respond(c, http.StatusConflict, KindConflict, msg)
}

// Internal reports a persistence or other unexpected failure
func Internal(c echo.Context, msg string) error {
	return respond(c, http.StatusInternalServerError, KindInternal, msg)
}

// Unauthorized reports a missing or invalid identity
func Unauthorized(c echo.Context, msg string) error {
	return respond(c, http.StatusUnauthorized, "unauthorized", msg)
}

// StatusForKind maps an error kind back to its HTTP status.
func StatusForKind(kind string) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
