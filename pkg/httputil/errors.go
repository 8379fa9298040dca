package httputil

import (
	"net/http"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch errdefs.KindOf(err) {
	case errdefs.KindValidation:
		return http.StatusBadRequest
	case errdefs.KindAuthorization:
		return http.StatusForbidden
	case errdefs.KindStateConflict:
		return http.StatusConflict
	case errdefs.KindNotFound:
		return http.StatusNotFound
	case errdefs.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes an error response with the status implied by the
// error's kind. Unclassified errors become 500s with a generic message so
// internals are not leaked.
func WriteDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		WriteErrorMessage(w, status, "internal server error")
		return
	}
	WriteError(w, status, err)
}
