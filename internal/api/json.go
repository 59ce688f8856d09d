package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/flashfs/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an engine error to an HTTP status. Not-found is checked
// first: a missing directory also reports ErrNotDirectory.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrNotMounted):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrExists):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrIsDirectory),
		errors.Is(err, apperr.ErrNotDirectory),
		errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON body. Server errors are logged and their
// detail is withheld from the client.
func writeError(w http.ResponseWriter, op, path string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
