package playlist

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/feed"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
	"github.com/newtube/newtube/internal/video"
)

// visibleTo keeps public videos plus the viewer's own private ones.
func visibleTo(viewerID string) feed.Predicate {
	return feed.Where("(v.visibility = ? OR v.user_id = ?)", video.VisibilityPublic, viewerID)
}

// AddVideo appends a video the viewer can see to their playlist.
func (h *Handler) AddVideo(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := playlistParam(w, r)
	if !ok {
		return
	}
	videoID := chi.URLParam(r, "videoId")
	if !validate.ID(videoID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	if _, err := h.owned(r.Context(), playlistID, userID); err != nil {
		writeOwnedError(w, playlistID, err)
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`INSERT INTO playlist_videos (playlist_id, video_id)
		 SELECT $1, v.id FROM videos v WHERE v.id = $2 AND (v.visibility = 'public' OR v.user_id = $3)`,
		playlistID, videoID, userID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			httputil.WriteError(w, http.StatusConflict, "video already in playlist")
			return
		}
		slog.Error("playlist: add video", "playlist_id", playlistID, "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to add video")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	h.touch(r, playlistID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveVideo(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := playlistParam(w, r)
	if !ok {
		return
	}
	videoID := chi.URLParam(r, "videoId")
	if !validate.ID(videoID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	if _, err := h.owned(r.Context(), playlistID, userID); err != nil {
		writeOwnedError(w, playlistID, err)
		return
	}

	tag, err := h.db.Exec(r.Context(),
		"DELETE FROM playlist_videos WHERE playlist_id = $1 AND video_id = $2", playlistID, videoID,
	)
	if err != nil {
		slog.Error("playlist: remove video", "playlist_id", playlistID, "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to remove video")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "video not in playlist")
		return
	}

	h.touch(r, playlistID)
	w.WriteHeader(http.StatusNoContent)
}

// touch moves the playlist to the front of the owner's list. A failure only
// affects ordering, so it is logged.
func (h *Handler) touch(r *http.Request, playlistID string) {
	if _, err := h.db.Exec(r.Context(), "UPDATE playlists SET updated_at = now() WHERE id = $1", playlistID); err != nil {
		slog.Warn("playlist: touch", "playlist_id", playlistID, "error", err)
	}
}

// Videos lists a playlist's contents, most recently added first.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := playlistParam(w, r)
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	if _, err := h.owned(r.Context(), playlistID, userID); err != nil {
		writeOwnedError(w, playlistID, err)
		return
	}

	video.WriteListing(w, r, h.db, h.thumbs, video.Listing{
		Scope:      "playlist=" + playlistID + ":videos",
		Join:       "JOIN playlist_videos pv ON pv.video_id = v.id",
		SortColumn: "pv.updated_at",
		Where:      []feed.Predicate{feed.Eq("pv.playlist_id", playlistID), visibleTo(userID)},
	}, userID)
}

// Liked lists videos the viewer liked, most recent reaction first.
func (h *Handler) Liked(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	video.WriteListing(w, r, h.db, h.thumbs, video.Listing{
		Scope:      "playlist=liked:user=" + userID,
		Join:       "JOIN video_reactions vr ON vr.video_id = v.id",
		SortColumn: "vr.updated_at",
		Where: []feed.Predicate{
			feed.Eq("vr.user_id", userID),
			feed.Eq("vr.type", "like"),
			visibleTo(userID),
		},
	}, userID)
}

// History lists videos the viewer watched, most recent view first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	video.WriteListing(w, r, h.db, h.thumbs, video.Listing{
		Scope:      "playlist=history:user=" + userID,
		Join:       "JOIN video_views vw ON vw.video_id = v.id",
		SortColumn: "vw.updated_at",
		Where:      []feed.Predicate{feed.Eq("vw.user_id", userID), visibleTo(userID)},
	}, userID)
}
