// Package subscription manages viewer -> creator follows.
package subscription

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/feed"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
)

// Creator is a followed channel.
type Creator struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ImageURL        *string   `json:"imageUrl"`
	SubscriberCount int64     `json:"subscriberCount"`
	SubscribedAt    time.Time `json:"subscribedAt"`
}

func (c Creator) PageKey() feed.Cursor {
	return feed.Cursor{UpdatedAt: c.SubscribedAt, ID: c.ID}
}

type Handler struct {
	db database.DBTX
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{db: db}
}

func creatorParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "userId")
	if !validate.ID(id) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid user id")
		return "", false
	}
	return id, true
}

// Subscribe is idempotent; subscribing twice leaves the original row alone.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := creatorParam(w, r)
	if !ok {
		return
	}
	viewerID := auth.UserIDFromContext(r.Context())
	if creatorID == viewerID {
		httputil.WriteError(w, http.StatusBadRequest, "cannot subscribe to yourself")
		return
	}

	_, err := h.db.Exec(r.Context(),
		"INSERT INTO subscriptions (viewer_id, creator_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		viewerID, creatorID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("subscription: subscribe", "creator_id", creatorID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := creatorParam(w, r)
	if !ok {
		return
	}
	viewerID := auth.UserIDFromContext(r.Context())

	tag, err := h.db.Exec(r.Context(),
		"DELETE FROM subscriptions WHERE viewer_id = $1 AND creator_id = $2", viewerID, creatorID,
	)
	if err != nil {
		slog.Error("subscription: unsubscribe", "creator_id", creatorID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "not subscribed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List pages through the creators the viewer follows, most recent first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())
	scope := "subscriptions:viewer=" + viewerID

	params, err := feed.ParseParams(r.URL.Query(), scope)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := feed.Query{
		Scope: scope,
		Select: []string{
			"u.id", "u.name", "u.image_url",
			"(SELECT COUNT(*) FROM subscriptions sc WHERE sc.creator_id = u.id) AS subscriber_count",
			"s.updated_at",
		},
		From:   "subscriptions s JOIN users u ON u.id = s.creator_id",
		Where:  []feed.Predicate{feed.Eq("s.viewer_id", viewerID)},
		Keyset: feed.Keyset{UpdatedAt: "s.updated_at", ID: "s.creator_id"},
		Cursor: params.Cursor,
		Limit:  params.Limit,
	}
	page, err := feed.List(r.Context(), h.db, q, func(rows pgx.Rows) (Creator, error) {
		var c Creator
		err := rows.Scan(&c.ID, &c.Name, &c.ImageURL, &c.SubscriberCount, &c.SubscribedAt)
		return c, err
	})
	if err != nil {
		slog.Error("subscription: list", "viewer_id", viewerID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch subscriptions")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page.Response())
}
