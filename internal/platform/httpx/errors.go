// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/achievehub/achievehub/internal/shared"
)

var kindStatus = map[shared.Kind]int{
	shared.KindUnauthorized:    http.StatusForbidden,
	shared.KindNotFound:        http.StatusNotFound,
	shared.KindInvalidState:    http.StatusConflict,
	shared.KindInvalidArgument: http.StatusBadRequest,
	shared.KindStorage:         http.StatusInternalServerError,
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind shared.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807. Storage
// causes are never written to the response.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	status := StatusFor(kind)
	Problem(w, status, string(kind), http.StatusText(status), shared.PublicMessage(err))
}
