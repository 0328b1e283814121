// Package comment serves threaded video comments. Threads are one level
// deep: a reply's parent is always a top-level comment.
package comment

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/feed"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/reaction"
	"github.com/newtube/newtube/internal/validate"
)

var (
	reactions = feed.Reactions{Table: "comment_reactions", Subject: "comment_id", Target: "c.id"}
	replies   = feed.Replies{Table: "comments", Parent: "parent_id", Target: "c.id"}
)

type Author struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ImageURL *string `json:"imageUrl"`
}

type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	ParentID  *string   `json:"parentId"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Author    Author    `json:"author"`
	feed.Annotations
}

func (c Comment) PageKey() feed.Cursor {
	return feed.Cursor{UpdatedAt: c.UpdatedAt, ID: c.ID}
}

type Handler struct {
	db        database.DBTX
	reactions *reaction.Store
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{db: db, reactions: reaction.NewCommentStore(db)}
}

type createRequest struct {
	Value    string  `json:"value"`
	ParentID *string `json:"parentId"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validate.ID(videoID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		httputil.WriteError(w, http.StatusBadRequest, "comment cannot be empty")
		return
	}
	if msg := validate.Comment(value); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	if req.ParentID != nil {
		if !validate.ID(*req.ParentID) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid parent id")
			return
		}
		var parentVideoID string
		var grandparentID *string
		err := h.db.QueryRow(r.Context(),
			"SELECT video_id, parent_id FROM comments WHERE id = $1", *req.ParentID,
		).Scan(&parentVideoID, &grandparentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				httputil.WriteError(w, http.StatusNotFound, "parent comment not found")
				return
			}
			slog.Error("comment: load parent", "parent_id", *req.ParentID, "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "could not fetch parent comment")
			return
		}
		if parentVideoID != videoID {
			httputil.WriteError(w, http.StatusBadRequest, "parent comment belongs to another video")
			return
		}
		if grandparentID != nil {
			httputil.WriteError(w, http.StatusBadRequest, "replies cannot be nested")
			return
		}
	}

	c := Comment{VideoID: videoID, ParentID: req.ParentID, Value: value}
	err := h.db.QueryRow(r.Context(),
		`INSERT INTO comments (video_id, user_id, parent_id, value) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		videoID, userID, req.ParentID, value,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			httputil.WriteError(w, http.StatusNotFound, "video not found")
			return
		}
		slog.Error("comment: create", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create comment")
		return
	}
	c.Author.ID = userID

	httputil.WriteJSON(w, http.StatusCreated, c)
}

// List pages through a video's top-level comments, or the replies of
// parentId when it is given. Only top-level comments carry a reply count.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validate.ID(videoID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	viewerID := auth.UserIDFromContext(r.Context())

	parentID := r.URL.Query().Get("parentId")
	if parentID != "" && !validate.ID(parentID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid parent id")
		return
	}
	q := listQuery(videoID, parentID, viewerID)

	params, err := feed.ParseParams(r.URL.Query(), q.Scope)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.Cursor = params.Cursor
	q.Limit = params.Limit

	page, err := feed.List(r.Context(), h.db, q, func(rows pgx.Rows) (Comment, error) {
		var c Comment
		dest := []any{&c.ID, &c.VideoID, &c.ParentID, &c.Value, &c.CreatedAt, &c.UpdatedAt,
			&c.Author.ID, &c.Author.Name, &c.Author.ImageURL}
		err := rows.Scan(append(dest, q.Dest(&c.Annotations)...)...)
		return c, err
	})
	if err != nil {
		slog.Error("comment: list", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page.Response())
}

func listQuery(videoID, parentID, viewerID string) feed.Query {
	q := feed.Query{
		Scope: "comments:video=" + videoID + ":parent=root",
		Select: []string{"c.id", "c.video_id", "c.parent_id", "c.value", "c.created_at", "c.updated_at",
			"u.id", "u.name", "u.image_url"},
		From:      "comments c JOIN users u ON u.id = c.user_id",
		Where:     []feed.Predicate{feed.Eq("c.video_id", videoID)},
		Keyset:    feed.Keyset{UpdatedAt: "c.updated_at", ID: "c.id"},
		Reactions: &reactions,
		ViewerID:  viewerID,
	}
	if parentID == "" {
		q.Where = append(q.Where, feed.IsNull("c.parent_id"))
		q.Replies = &replies
	} else {
		q.Scope = "comments:video=" + videoID + ":parent=" + parentID
		q.Where = append(q.Where, feed.Eq("c.parent_id", parentID))
	}
	return q
}

// Delete removes the viewer's own comment. Replies cascade.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	if !validate.ID(commentID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid comment id")
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	tag, err := h.db.Exec(r.Context(), "DELETE FROM comments WHERE id = $1 AND user_id = $2", commentID, userID)
	if err != nil {
		slog.Error("comment: delete", "comment_id", commentID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "comment not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reactRequest struct {
	Type string `json:"type"`
}

func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	if !validate.ID(commentID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid comment id")
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

	result, err := h.reactions.Set(r.Context(), commentID, userID, kind)
	if err != nil {
		if errors.Is(err, reaction.ErrSubjectNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "comment not found")
			return
		}
		slog.Error("comment: react", "comment_id", commentID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to save reaction")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
