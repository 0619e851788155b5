// Provides helper functions for writing error responses.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/storage/drive"
	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

// writeErrorResponse writes an APIError as a JSON response.
// Use this in raw http.HandlerFunc handlers that don't use server.Wrap.
func writeErrorResponse(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := dto.ErrorCodeInternal
	message := "internal error"
	var details map[string]any

	var ewsErr dto.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		errorCode = ewsErr.Code()
		message = ewsErr.Error()
		details = ewsErr.Details()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := dto.ErrorResponse{
		Error: dto.ErrorDetails{
			Code:    errorCode,
			Message: message,
		},
		Details: details,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// nodeError maps the storage layer's sentinel errors onto API errors.
func nodeError(err error) error {
	switch {
	case errors.Is(err, drive.ErrNodeNotFound):
		return dto.NotFound("File")
	case errors.Is(err, drive.ErrNotOwner):
		return dto.Forbidden("You do not have access to this file")
	case errors.Is(err, drive.ErrNotAFolder):
		return dto.BadRequest("Parent is not a folder")
	case errors.Is(err, drive.ErrParentTrashed):
		return dto.BadRequest("Parent folder is in the trash")
	case errors.Is(err, drive.ErrFolderCycle):
		return dto.BadRequest("A folder cannot be moved inside itself")
	case errors.Is(err, drive.ErrNotATextFile):
		return dto.BadRequest("Not a plain-text file")
	case errors.Is(err, identity.ErrUserNotFound):
		return dto.NotFound("User")
	}
	var qe *drive.QuotaError
	if errors.As(err, &qe) {
		return dto.QuotaExceeded(qe.Requested, qe.Limit, qe.Available())
	}
	return dto.InternalWithError("Storage operation failed", err)
}
