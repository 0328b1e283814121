// Package playlist serves user playlists and the virtual "liked" and
// "history" lists.
package playlist

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/feed"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
	"github.com/newtube/newtube/internal/video"
)

type Playlist struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	VideoCount    int64     `json:"videoCount"`
	ContainsVideo *bool     `json:"containsVideo,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p Playlist) PageKey() feed.Cursor {
	return feed.Cursor{UpdatedAt: p.UpdatedAt, ID: p.ID}
}

var playlistColumns = []string{
	"p.id", "p.name", "p.description", "p.created_at", "p.updated_at",
	"(SELECT COUNT(*) FROM playlist_videos pv WHERE pv.playlist_id = p.id) AS video_count",
}

func (p *Playlist) dest() []any {
	return []any{&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.VideoCount}
}

type Handler struct {
	db     database.DBTX
	thumbs video.ThumbnailSigner
}

func NewHandler(db database.DBTX, thumbs video.ThumbnailSigner) *Handler {
	return &Handler{db: db, thumbs: thumbs}
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func validateName(name string) string {
	if name == "" {
		return "playlist name is required"
	}
	return validate.PlaylistName(name)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if msg := validateName(name); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	description := strings.TrimSpace(req.Description)
	if msg := validate.PlaylistDescription(description); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	p := Playlist{Name: name, Description: nullIfEmpty(description)}
	err := h.db.QueryRow(r.Context(),
		"INSERT INTO playlists (user_id, name, description) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at",
		userID, name, p.Description,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		slog.Error("playlist: create", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create playlist")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, p)
}

// List pages through the viewer's playlists, most recently changed first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	h.writePlaylists(w, r, "playlists:user="+userID, userID, nil)
}

// ForVideo lists the viewer's playlists, flagging the ones that already
// hold videoId.
func (h *Handler) ForVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	if !validate.ID(videoID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	contains := feed.Where(
		"EXISTS (SELECT 1 FROM playlist_videos pv WHERE pv.playlist_id = p.id AND pv.video_id = ?) AS contains_video",
		videoID,
	)
	h.writePlaylists(w, r, "playlists:user="+userID+":video="+videoID, userID, contains)
}

func (h *Handler) writePlaylists(w http.ResponseWriter, r *http.Request, scope, userID string, contains feed.Predicate) {
	params, err := feed.ParseParams(r.URL.Query(), scope)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := feed.Query{
		Scope:  scope,
		Select: playlistColumns,
		From:   "playlists p",
		Where:  []feed.Predicate{feed.Eq("p.user_id", userID)},
		Keyset: feed.Keyset{UpdatedAt: "p.updated_at", ID: "p.id"},
		Cursor: params.Cursor,
		Limit:  params.Limit,
	}
	if contains != nil {
		q.Computed = []feed.Predicate{contains}
	}

	page, err := feed.List(r.Context(), h.db, q, func(rows pgx.Rows) (Playlist, error) {
		var p Playlist
		dest := p.dest()
		if contains != nil {
			p.ContainsVideo = new(bool)
			dest = append(dest, p.ContainsVideo)
		}
		err := rows.Scan(dest...)
		return p, err
	})
	if err != nil {
		slog.Error("playlist: list", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch playlists")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page.Response())
}

var errNotFound = errors.New("playlist not found")

// owned loads a playlist only if userID owns it.
func (h *Handler) owned(ctx context.Context, playlistID, userID string) (Playlist, error) {
	var p Playlist
	err := h.db.QueryRow(ctx,
		"SELECT "+strings.Join(playlistColumns, ", ")+" FROM playlists p WHERE p.id = $1 AND p.user_id = $2",
		playlistID, userID,
	).Scan(p.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, errNotFound
	}
	return p, err
}

func playlistParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validate.ID(id) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid playlist id")
		return "", false
	}
	return id, true
}

func writeOwnedError(w http.ResponseWriter, playlistID string, err error) {
	if errors.Is(err, errNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "playlist not found")
		return
	}
	slog.Error("playlist: load", "playlist_id", playlistID, "error", err)
	httputil.WriteError(w, http.StatusInternalServerError, "could not fetch playlist")
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := playlistParam(w, r)
	if !ok {
		return
	}
	p, err := h.owned(r.Context(), playlistID, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeOwnedError(w, playlistID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := playlistParam(w, r)
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
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if msg := validateName(name); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		sets = append(sets, "name = "+b.Bind(name))
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if msg := validate.PlaylistDescription(description); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		sets = append(sets, "description = "+b.Bind(nullIfEmpty(description)))
	}
	if len(sets) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	sets = append(sets, "updated_at = now()")

	tag, err := h.db.Exec(r.Context(),
		"UPDATE playlists SET "+strings.Join(sets, ", ")+" WHERE id = "+b.Bind(playlistID)+" AND user_id = "+b.Bind(userID),
		b.Args()...,
	)
	if err != nil {
		slog.Error("playlist: update", "playlist_id", playlistID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update playlist")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "playlist not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := playlistParam(w, r)
	if !ok {
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	tag, err := h.db.Exec(r.Context(), "DELETE FROM playlists WHERE id = $1 AND user_id = $2", playlistID, userID)
	if err != nil {
		slog.Error("playlist: delete", "playlist_id", playlistID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete playlist")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "playlist not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
