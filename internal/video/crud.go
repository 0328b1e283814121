package video

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/feed"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/storage"
	"github.com/newtube/newtube/internal/validate"
)

const defaultTitle = "Untitled"

type createRequest struct {
	Title       string `json:"title"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

type createResponse struct {
	ID        string `json:"id"`
	UploadURL string `json:"uploadUrl"`
}

type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	CategoryID  *string `json:"categoryId"`
	Visibility  *string `json:"visibility"`
}

// Detail is a single video with its creator's channel stats.
type Detail struct {
	Item
	SubscriberCount  int64 `json:"subscriberCount"`
	ViewerSubscribed bool  `json:"viewerSubscribed"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ext, ok := storage.VideoExtension(req.ContentType)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "only video/mp4, video/webm and video/quicktime uploads are supported")
		return
	}
	if req.FileSize <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "fileSize must be positive")
		return
	}
	if h.maxUploadBytes > 0 && req.FileSize > h.maxUploadBytes {
		httputil.WriteError(w, http.StatusBadRequest, "file too large")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle
	}
	if msg := validate.Title(title); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	videoID := uuid.NewString()
	uploadKey := storage.UploadKey(userID, videoID, ext)
	if _, err := h.db.Exec(r.Context(),
		`INSERT INTO videos (id, user_id, title, content_type, upload_key) VALUES ($1, $2, $3, $4, $5)`,
		videoID, userID, title, req.ContentType, uploadKey,
	); err != nil {
		slog.Error("video: create", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create video")
		return
	}

	uploadURL, err := h.storage.GenerateUploadURL(r.Context(), uploadKey, req.ContentType, req.FileSize, uploadURLExpiry)
	if err != nil {
		slog.Error("video: presign upload", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createResponse{ID: videoID, UploadURL: uploadURL})
}

func detailSQL(videoID, viewerID string) (string, []any) {
	b := &feed.Binder{}
	cols := append(append([]string{}, itemColumns...),
		"v.updated_at AS sort_at",
		feed.ViewerReaction(b, Reactions, viewerID)+" AS viewer_reaction",
		feed.LikeCount(Reactions)+" AS like_count",
		feed.DislikeCount(Reactions)+" AS dislike_count",
		"(SELECT COUNT(*) FROM subscriptions s WHERE s.creator_id = v.user_id) AS subscriber_count",
	)
	if viewerID == "" {
		cols = append(cols, "false AS viewer_subscribed")
	} else {
		cols = append(cols, "EXISTS (SELECT 1 FROM subscriptions s WHERE s.creator_id = v.user_id AND s.viewer_id = "+
			b.Bind(viewerID)+") AS viewer_subscribed")
	}
	sql := "SELECT " + strings.Join(cols, ", ") + " FROM " + itemFrom + " WHERE v.id = " + b.Bind(videoID)
	return sql, b.Args()
}

// Get returns one video. Private videos are only visible to their owner.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	viewerID := auth.UserIDFromContext(r.Context())

	var d Detail
	sql, args := detailSQL(videoID, viewerID)
	dest := append(d.dest(), &d.ViewerReaction, &d.LikeCount, &d.DislikeCount, &d.SubscriberCount, &d.ViewerSubscribed)
	if err := h.db.QueryRow(r.Context(), sql, args...).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httputil.WriteError(w, http.StatusNotFound, "video not found")
			return
		}
		slog.Error("video: get", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch video")
		return
	}
	if d.Visibility != VisibilityPublic && d.Author.ID != viewerID {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	resolveThumbnail(r.Context(), h.storage, &d.Item)
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var req updateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b := &feed.Binder{}
	var sets []string
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			httputil.WriteError(w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		if msg := validate.Title(title); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		sets = append(sets, "title = "+b.Bind(title))
	}
	if req.Description != nil {
		if msg := validate.Description(*req.Description); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		sets = append(sets, "description = "+b.Bind(nullIfEmpty(*req.Description)))
	}
	if req.CategoryID != nil {
		if *req.CategoryID != "" && !validate.ID(*req.CategoryID) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid category id")
			return
		}
		sets = append(sets, "category_id = "+b.Bind(nullIfEmpty(*req.CategoryID)))
	}
	if req.Visibility != nil {
		if *req.Visibility != VisibilityPublic && *req.Visibility != VisibilityPrivate {
			httputil.WriteError(w, http.StatusBadRequest, "visibility must be public or private")
			return
		}
		sets = append(sets, "visibility = "+b.Bind(*req.Visibility))
	}
	if len(sets) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	sets = append(sets, "updated_at = now()")

	sql := "UPDATE videos SET " + strings.Join(sets, ", ") +
		" WHERE id = " + b.Bind(videoID) + " AND user_id = " + b.Bind(userID)
	tag, err := h.db.Exec(r.Context(), sql, b.Args()...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			httputil.WriteError(w, http.StatusBadRequest, "category not found")
			return
		}
		slog.Error("video: update", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update video")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete removes stored objects best effort, then the row. Views,
// reactions, comments and playlist entries cascade.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
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

	keys := []string{v.UploadKey}
	if v.ThumbnailKey != nil {
		keys = append(keys, *v.ThumbnailKey)
	}
	for _, key := range keys {
		if err := h.storage.DeleteObject(r.Context(), key); err != nil {
			slog.Warn("video: delete object", "video_id", videoID, "key", key, "error", err)
		}
	}

	if _, err := h.db.Exec(r.Context(), "DELETE FROM videos WHERE id = $1 AND user_id = $2", videoID, userID); err != nil {
		slog.Error("video: delete", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
