package media

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radif/media/internal/middleware"
	"github.com/radif/media/internal/response"
)

const (
	// multipartMemory is how much of a form is kept in memory before spilling to temp files.
	multipartMemory = 32 << 20
	// maxRequestBytes bounds a whole attachments request: five maximum-size videos plus form overhead.
	maxRequestBytes = MaxFilesPerUpload*MaxVideoSize + 1<<20
)

// Handler holds HTTP handlers for attachment endpoints.
type Handler struct {
	svc *Service
	log *zap.SugaredLogger
}

// NewHandler creates a new media Handler.
func NewHandler(svc *Service, log *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, log: log}
}

type uploadResponse struct {
	Results []UploadResult `json:"results"`
}

type attachRequest struct {
	PostID   string   `json:"postId"   example:"2b1f6c1e-8f7c-4c2f-9d55-0d5c8e0e6a11"`
	MediaIDs []string `json:"mediaIds"`
}

// UploadAttachments godoc
//
//	@Summary		Upload post attachments
//	@Description	Stores 1 to 5 files (images up to 4 MiB, videos up to 64 MiB) and returns a staged media id for each. Media not linked to a post are reclaimed by the cleanup job.
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			files	formData	file	true	"Attachment (repeat the field for several files)"
//	@Success		200		{object}	uploadResponse
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/uploads/attachments [post]
func (h *Handler) UploadAttachments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		WriteError(w, ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrPayloadTooLarge)
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	files, closeAll, err := OpenParts(r.MultipartForm.File["files"])
	if err != nil {
		h.log.Errorw("open upload parts", "user_id", userID, "error", err)
		response.InternalError(w)
		return
	}
	defer closeAll()

	results, err := h.svc.Upload(r.Context(), userID, files)
	if err != nil {
		h.logFailure("attachment upload failed", userID, err)
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, uploadResponse{Results: results})
}

// Attach godoc
//
//	@Summary		Link staged media to a post
//	@Description	Called by the post service when a post is created. All ids must be staged; otherwise nothing is linked.
//	@Tags			internal
//	@Accept			json
//	@Produce		json
//	@Security		CronSecret
//	@Param			request	body		attachRequest	true	"Post and media ids"
//	@Success		200		{object}	response.Envelope
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/internal/media/attach [post]
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.svc.Attach(r.Context(), req.PostID, req.MediaIDs); err != nil {
		h.logFailure("attach media failed", req.PostID, err)
		WriteError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"postId":   req.PostID,
		"mediaIds": req.MediaIDs,
	})
}

// Delete godoc
//
//	@Summary		Delete an attachment
//	@Description	Removes the object and then its media record.
//	@Tags			internal
//	@Produce		json
//	@Security		CronSecret
//	@Param			id	path		string	true	"Media id"
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/internal/media/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.logFailure("delete media failed", id, err)
		WriteError(w, err)
		return
	}
	response.OK(w, map[string]bool{"deleted": true})
}

func (h *Handler) logFailure(msg, subject string, err error) {
	if StatusCode(err) == http.StatusInternalServerError {
		h.log.Errorw(msg, "subject", subject, "error", err)
		return
	}
	h.log.Infow(msg, "subject", subject, "error", err)
}
