package video

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mssola/useragent"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/httputil"
)

const (
	deviceDesktop = "desktop"
	deviceMobile  = "mobile"
	deviceTablet  = "tablet"
)

// RecordView counts one view per signed-in viewer, or per IP and user agent
// for anonymous viewers. Repeat views only bump updated_at, which orders the
// watch history.
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDParam(w, r, "id")
	if !ok {
		return
	}
	viewerID := auth.UserIDFromContext(r.Context())

	ua := useragent.New(r.UserAgent())
	if ua.Bot() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var ownerID, visibility string
	err := h.db.QueryRow(r.Context(),
		"SELECT user_id, visibility FROM videos WHERE id = $1", videoID,
	).Scan(&ownerID, &visibility)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httputil.WriteError(w, http.StatusNotFound, "video not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch video")
		return
	}
	if visibility != VisibilityPublic && ownerID != viewerID {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	ip := httputil.ClientIP(r)
	loc := h.locator.Lookup(ip)
	if _, err := h.db.Exec(r.Context(),
		`INSERT INTO video_views (video_id, user_id, viewer_hash, country, city, device)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (video_id, viewer_hash) DO UPDATE SET updated_at = now()`,
		videoID, nullIfEmpty(viewerID), viewerHash(viewerID, ip, r.UserAgent()),
		nullIfEmpty(loc.Country), nullIfEmpty(loc.City), deviceClass(ua),
	); err != nil {
		slog.Error("video: record view", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to record view")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func viewerHash(viewerID, ip, userAgent string) string {
	if viewerID != "" {
		return "user:" + viewerID
	}
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return fmt.Sprintf("%x", sum[:8])
}

func deviceClass(ua *useragent.UserAgent) string {
	raw := ua.UA()
	if strings.Contains(raw, "iPad") || strings.Contains(raw, "Tablet") {
		return deviceTablet
	}
	if ua.Mobile() {
		return deviceMobile
	}
	return deviceDesktop
}
