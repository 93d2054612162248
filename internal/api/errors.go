package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aboutme/cards/internal/directory"
	"github.com/aboutme/cards/internal/importer"
	"github.com/aboutme/cards/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// serviceError maps directory and storage errors onto HTTP responses.
func serviceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput), errors.Is(err, directory.ErrTooManySelected):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, directory.ErrNotMember), errors.Is(err, directory.ErrForbidden):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, storage.ErrConflict):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, importer.ErrNoText):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
	default:
		logger.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}
