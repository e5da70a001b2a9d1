// Package response writes the service's JSON bodies. All errors share the
// shape {error, message?, detail?} with a matching non-2xx status; internal
// failures are logged in full and returned as a generic message.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/keyward/keyward/internal/errs"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, data)
}

func Error(w http.ResponseWriter, status int, code, message string, detail any) {
	writeJSON(w, status, errorBody{Error: code, Message: message, Detail: detail})
}

// FromError maps a domain error to its HTTP shape. Anything that is not a
// domain error, plus internal crypto/storage kinds, is logged server-side and
// surfaced as a generic message so no key material or internals leak.
func FromError(w http.ResponseWriter, err error) {
	e, ok := errs.As(err)
	if !ok {
		slog.Error("unhandled error", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred", nil)
		return
	}
	if e.Kind == errs.KindEncryption || e.Kind == errs.KindUpstream {
		slog.Error("internal error", "code", e.Code, "error", err)
		Error(w, e.Status(), e.Code, "an internal error occurred", nil)
		return
	}
	Error(w, e.Status(), e.Code, e.Message, e.Detail)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
