// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable marks a failure the caller may retry, such as an aborted transaction.
	ErrUnavailable = errors.New("temporarily unavailable")
)

type problemMapping struct {
	target error
	status int
	title  string
	// hideDetail replaces err.Error() with a fixed message.
	hideDetail string
}

// First match wins.
var problemMappings = []problemMapping{
	{target: ErrNotFound, status: http.StatusNotFound, title: "Not Found"},
	{target: ErrDuplicate, status: http.StatusConflict, title: "Duplicate"},
	{target: ErrValidation, status: http.StatusBadRequest, title: "Validation Failed"},
	{target: ErrForbidden, status: http.StatusForbidden, title: "Forbidden"},
	{target: ErrUnauthorized, status: http.StatusUnauthorized, title: "Unauthorized"},
	{target: ErrUnavailable, status: http.StatusServiceUnavailable, title: "Service Unavailable",
		hideDetail: "the change was not applied; retry the request"},
}

// StatusOf returns the HTTP status RespondError would use for err.
func StatusOf(err error) int {
	for _, m := range problemMappings {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807. Unmapped
// errors become a 500 with no detail so internals never leak.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range problemMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		detail := err.Error()
		if m.hideDetail != "" {
			detail = m.hideDetail
		}
		if m.status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		Problem(w, m.status, m.title, detail)
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
