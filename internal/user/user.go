// Package user serves public channel information.
package user

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
)

// Channel is the header shown on a creator's page.
type Channel struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ImageURL         *string   `json:"imageUrl"`
	SubscriberCount  int64     `json:"subscriberCount"`
	VideoCount       int64     `json:"videoCount"`
	ViewerSubscribed bool      `json:"viewerSubscribed"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Handler struct {
	db database.DBTX
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{db: db}
}

// Get returns a channel. The video count covers public videos, or all of
// them when viewers look at their own channel.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !validate.ID(userID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var viewerID *string
	if id := auth.UserIDFromContext(r.Context()); id != "" {
		viewerID = &id
	}

	var c Channel
	err := h.db.QueryRow(r.Context(),
		`SELECT u.id, u.name, u.image_url, u.created_at,
		        (SELECT COUNT(*) FROM subscriptions s WHERE s.creator_id = u.id),
		        (SELECT COUNT(*) FROM videos v WHERE v.user_id = u.id AND (v.visibility = 'public' OR v.user_id = $2)),
		        EXISTS (SELECT 1 FROM subscriptions s WHERE s.creator_id = u.id AND s.viewer_id = $2)
		 FROM users u WHERE u.id = $1`,
		userID, viewerID,
	).Scan(&c.ID, &c.Name, &c.ImageURL, &c.CreatedAt, &c.SubscriberCount, &c.VideoCount, &c.ViewerSubscribed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("user: get channel", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, c)
}
