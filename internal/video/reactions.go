package video

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/reaction"
)

type reactRequest struct {
	Type string `json:"type"`
}

// React toggles the viewer's like or dislike on a video.
func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var req reactRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := reaction.ParseType(req.Type)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.reactions.Set(r.Context(), videoID, userID, kind)
	if err != nil {
		if errors.Is(err, reaction.ErrSubjectNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "video not found")
			return
		}
		slog.Error("video: react", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save reaction")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
