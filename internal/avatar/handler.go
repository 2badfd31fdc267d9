package avatar

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/radif/media/internal/media"
	"github.com/radif/media/internal/middleware"
	"github.com/radif/media/internal/response"
)

const maxRequestBytes = MaxSize + 1<<20

// Handler serves the avatar upload endpoint.
type Handler struct {
	replacer *Replacer
	log      *zap.SugaredLogger
}

// NewHandler creates a new avatar Handler.
func NewHandler(replacer *Replacer, log *zap.SugaredLogger) *Handler {
	return &Handler{replacer: replacer, log: log}
}

type avatarResponse struct {
	AvatarURL string `json:"avatarUrl" example:"http://localhost:9000/media/avatars/7c9e6679_1700000000000.png"`
}

// Upload godoc
//
//	@Summary		Replace the caller's avatar
//	@Description	Accepts exactly one image up to 512 KiB in the "file" field. The previous avatar object is removed.
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"Avatar image"
//	@Success		200		{object}	avatarResponse
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/uploads/avatar [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		media.WriteError(w, media.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			media.WriteError(w, media.ErrPayloadTooLarge)
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	headers := r.MultipartForm.File["file"]
	switch {
	case len(headers) == 0:
		media.WriteError(w, media.ErrNoFiles)
		return
	case len(headers) > 1:
		media.WriteError(w, media.ErrTooManyFiles)
		return
	}

	files, closeAll, err := media.OpenParts(headers)
	if err != nil {
		h.log.Errorw("open avatar part", "user_id", userID, "error", err)
		response.InternalError(w)
		return
	}
	defer closeAll()

	url, err := h.replacer.Replace(r.Context(), userID, files[0])
	if err != nil {
		if media.StatusCode(err) == http.StatusInternalServerError {
			h.log.Errorw("avatar replace failed", "user_id", userID, "error", err)
		} else {
			h.log.Infow("avatar rejected", "user_id", userID, "error", err)
		}
		media.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, avatarResponse{AvatarURL: url})
}
