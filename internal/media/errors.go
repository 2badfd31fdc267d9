package media

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/radif/media/internal/response"
)

// Error taxonomy shared by the upload, avatar and reaper paths.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidationFailed    = errors.New("validation failed")
	ErrStorageWriteFailed  = errors.New("storage write failed")
	ErrStorageDeleteFailed = errors.New("storage delete failed")
	ErrMetadataWriteFailed = errors.New("metadata write failed")
	ErrProfileUpdateFailed = errors.New("profile update failed")

	// ErrNotFound is returned when a media record does not exist.
	ErrNotFound = errors.New("media not found")
	// ErrAlreadyAttached is returned when an attach names a record that is missing or already linked.
	ErrAlreadyAttached = errors.New("media missing or already attached to a post")
)

// Validation failures; each satisfies errors.Is(err, ErrValidationFailed).
var (
	ErrNoFiles              = fmt.Errorf("%w: no files provided", ErrValidationFailed)
	ErrTooManyFiles         = fmt.Errorf("%w: too many files", ErrValidationFailed)
	ErrPayloadTooLarge      = fmt.Errorf("%w: payload too large", ErrValidationFailed)
	ErrUnsupportedMediaType = fmt.Errorf("%w: unsupported media type", ErrValidationFailed)
)

// StatusCode maps an error from this package's taxonomy to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyAttached):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error body. Server-side failures get a generic message;
// callers log the detailed cause.
func WriteError(w http.ResponseWriter, err error) {
	switch status := StatusCode(err); status {
	case http.StatusInternalServerError:
		response.InternalError(w)
	case http.StatusUnauthorized:
		response.Unauthorized(w, "unauthorized")
	case http.StatusNotFound:
		response.NotFound(w, err.Error())
	case http.StatusConflict:
		response.Conflict(w, err.Error())
	default:
		response.Error(w, status, err.Error())
	}
}

// failureReason is the metrics label for a failed batch.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrStorageWriteFailed):
		return "storage"
	case errors.Is(err, ErrMetadataWriteFailed):
		return "metadata"
	default:
		return "other"
	}
}
