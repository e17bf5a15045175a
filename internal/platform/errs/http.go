package errs

import "net/http"

// HTTPStatus maps the taxonomy onto HTTP status codes for the API surface.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidState(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
