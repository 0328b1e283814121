package video

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
)

type generateResponse struct {
	JobID int64 `json:"jobId"`
}

type generateThumbnailRequest struct {
	Prompt string `json:"prompt"`
}

func (h *Handler) GenerateTitle(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		httputil.WriteError(w, http.StatusForbidden, "AI features not enabled")
		return
	}
	h.generateFromTranscript(w, r, h.generator.GenerateTitle)
}

func (h *Handler) GenerateDescription(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		httputil.WriteError(w, http.StatusForbidden, "AI features not enabled")
		return
	}
	h.generateFromTranscript(w, r, h.generator.GenerateDescription)
}

// generateFromTranscript queues a text job. Both text jobs read the
// transcript, so the video must have one.
func (h *Handler) generateFromTranscript(w http.ResponseWriter, r *http.Request, enqueue func(context.Context, string, string) (int64, error)) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var transcriptURL *string
	err := h.db.QueryRow(r.Context(),
		"SELECT transcript_url FROM videos WHERE id = $1 AND user_id = $2", videoID, userID,
	).Scan(&transcriptURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httputil.WriteError(w, http.StatusNotFound, "video not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch video")
		return
	}
	if transcriptURL == nil || *transcriptURL == "" {
		httputil.WriteError(w, http.StatusConflict, "transcript not ready")
		return
	}

	jobID, err := enqueue(r.Context(), videoID, userID)
	if err != nil {
		slog.Error("video: enqueue generation", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not enqueue generation")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, generateResponse{JobID: jobID})
}

func (h *Handler) GenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		httputil.WriteError(w, http.StatusForbidden, "AI features not enabled")
		return
	}
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var req generateThumbnailRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if msg := validate.ThumbnailPrompt(prompt); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	if _, err := h.ownedVideo(r.Context(), videoID, userID); err != nil {
		writeOwnedVideoError(w, err)
		return
	}

	jobID, err := h.generator.GenerateThumbnail(r.Context(), videoID, userID, prompt)
	if err != nil {
		slog.Error("video: enqueue thumbnail", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not enqueue generation")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, generateResponse{JobID: jobID})
}
