package api

import (
	"errors"
	"net/http"

	"github.com/okian/tierboard/internal/domain/model"
)

// ErrBadRequest marks a malformed request.
var ErrBadRequest = errors.New("bad request")

// statusFor maps a domain error kind to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	}
	switch model.KindOf(err) {
	case model.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case model.ErrInvalidInput:
		return http.StatusBadRequest, "invalid_input"
	case model.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case model.ErrDuplicateState, model.ErrAlreadyResolved:
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
