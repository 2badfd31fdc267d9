package reaper

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/radif/media/internal/response"
)

// Handler exposes the sweep to an external scheduler.
type Handler struct {
	reaper *Reaper
	log    *zap.SugaredLogger
}

// NewHandler creates a new reaper Handler.
func NewHandler(reaper *Reaper, log *zap.SugaredLogger) *Handler {
	return &Handler{reaper: reaper, log: log}
}

// Cleanup godoc
//
//	@Summary		Reap orphaned attachments
//	@Description	Deletes media never linked to a post, object first and then record. Returns an empty body on success.
//	@Tags			internal
//	@Security		CronSecret
//	@Success		200
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/uploads/cleanup [get]
//	@Router			/uploads/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if _, err := h.reaper.Sweep(r.Context()); err != nil {
		h.log.Errorw("orphan sweep failed", "error", err)
		response.InternalError(w)
		return
	}
	w.WriteHeader(http.StatusOK)
}
