package video

import (
	"log/slog"
	"net/http"

	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/storage"
)

const maxThumbnailBytes = 4 << 20

type thumbnailUploadRequest struct {
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

type thumbnailUploadResponse struct {
	UploadURL string `json:"uploadUrl"`
}

// ThumbnailUploadURL presigns a custom thumbnail upload. The video keeps its
// current thumbnail until ConfirmThumbnail sees the new object.
func (h *Handler) ThumbnailUploadURL(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var req thumbnailUploadRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ext, ok := storage.ImageExtension(req.ContentType)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "only image/jpeg, image/png and image/webp thumbnails are supported")
		return
	}
	if req.FileSize <= 0 || req.FileSize > maxThumbnailBytes {
		httputil.WriteError(w, http.StatusBadRequest, "thumbnail must be between 1 byte and 4 MB")
		return
	}

	if _, err := h.ownedVideo(r.Context(), videoID, userID); err != nil {
		writeOwnedVideoError(w, err)
		return
	}

	key := storage.ThumbnailKey(userID, videoID, ext)
	uploadURL, err := h.storage.GenerateUploadURL(r.Context(), key, req.ContentType, req.FileSize, uploadURLExpiry)
	if err != nil {
		slog.Error("video: presign thumbnail", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, thumbnailUploadResponse{UploadURL: uploadURL})
}

type thumbnailConfirmRequest struct {
	ContentType string `json:"contentType"`
}

// ConfirmThumbnail points the video at an uploaded custom thumbnail and
// removes the one it replaces.
func (h *Handler) ConfirmThumbnail(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var req thumbnailConfirmRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ext, ok := storage.ImageExtension(req.ContentType)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "only image/jpeg, image/png and image/webp thumbnails are supported")
		return
	}

	v, err := h.ownedVideo(r.Context(), videoID, userID)
	if err != nil {
		writeOwnedVideoError(w, err)
		return
	}

	key := storage.ThumbnailKey(userID, videoID, ext)
	if _, _, err := h.storage.HeadObject(r.Context(), key); err != nil {
		slog.Warn("video: thumbnail not uploaded", "video_id", videoID, "key", key, "error", err)
		httputil.WriteError(w, http.StatusConflict, "thumbnail has not been uploaded")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		"UPDATE videos SET thumbnail_key = $1, updated_at = now() WHERE id = $2 AND user_id = $3",
		key, videoID, userID,
	); err != nil {
		slog.Error("video: set thumbnail key", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update thumbnail")
		return
	}
	if v.ThumbnailKey != nil && *v.ThumbnailKey != key {
		h.deleteObject(r, videoID, *v.ThumbnailKey)
	}

	w.WriteHeader(http.StatusNoContent)
}

// RestoreThumbnail drops a custom or generated thumbnail so the
// transcoder's default frame is shown again.
func (h *Handler) RestoreThumbnail(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	v, err := h.ownedVideo(r.Context(), videoID, userID)
	if err != nil {
		writeOwnedVideoError(w, err)
		return
	}
	if v.ThumbnailKey == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := h.db.Exec(r.Context(),
		"UPDATE videos SET thumbnail_key = NULL, updated_at = now() WHERE id = $1 AND user_id = $2",
		videoID, userID,
	); err != nil {
		slog.Error("video: restore thumbnail", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to restore thumbnail")
		return
	}
	h.deleteObject(r, videoID, *v.ThumbnailKey)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteObject(r *http.Request, videoID, key string) {
	if err := h.storage.DeleteObject(r.Context(), key); err != nil {
		slog.Warn("video: delete object", "video_id", videoID, "key", key, "error", err)
	}
}
