package httpapi

import (
	"encoding/json"
	"net/http"

	"vocald/internal/cache"
	"vocald/internal/registry"
	"vocald/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case registry.IsUnknownModel(err):
		return http.StatusNotFound
	case registry.IsNotDownloaded(err):
		return http.StatusConflict
	case registry.IsTransferFailed(err):
		return http.StatusBadGateway
	case cache.IsConstructionFailed(err):
		return http.StatusInternalServerError
	case cache.IsCacheBusy(err):
		return http.StatusInternalServerError
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}
