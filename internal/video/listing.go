package video

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/feed"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
)

// WriteListing serves one page of l as JSON.
func WriteListing(w http.ResponseWriter, r *http.Request, db database.DBTX, signer ThumbnailSigner, l Listing, viewerID string) {
	params, err := feed.ParseParams(r.URL.Query(), l.Scope)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := l.Query(viewerID, params)
	page, err := feed.List(r.Context(), db, q, ScanItem(q))
	if err != nil {
		slog.Error("video: list", "scope", l.Scope, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch videos")
		return
	}

	ResolveThumbnails(r.Context(), signer, page.Items)
	httputil.WriteJSON(w, http.StatusOK, page.Response())
}

// Home lists public videos, optionally narrowed to one category.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	l := Listing{
		Scope: scope("videos", "home", "category=all"),
		Where: []feed.Predicate{feed.Eq("v.visibility", VisibilityPublic)},
	}
	if categoryID := r.URL.Query().Get("categoryId"); categoryID != "" {
		if !validate.ID(categoryID) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid category id")
			return
		}
		l.Scope = scope("videos", "home", "category="+categoryID)
		l.Where = append(l.Where, feed.Eq("v.category_id", categoryID))
	}

	WriteListing(w, r, h.db, h.storage, l, auth.UserIDFromContext(r.Context()))
}

// ByUser lists a creator's videos. Creators see their private videos too and
// may narrow their own listing with status=ready,preparing.
func (h *Handler) ByUser(w http.ResponseWriter, r *http.Request) {
	creatorID := chi.URLParam(r, "userId")
	if !validate.ID(creatorID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	viewerID := auth.UserIDFromContext(r.Context())

	l := Listing{
		Scope: scope("videos", "user="+creatorID, "public"),
		Where: []feed.Predicate{feed.Eq("v.user_id", creatorID)},
	}
	if viewerID == creatorID {
		l.Scope = scope("videos", "user="+creatorID, "all")

		statuses, ok := parseStatuses(r.URL.Query().Get("status"))
		if !ok {
			httputil.WriteError(w, http.StatusBadRequest, "invalid status")
			return
		}
		if len(statuses) > 0 {
			l.Scope = scope(l.Scope, "status="+strings.Join(statuses, ","))
			values := make([]any, len(statuses))
			for i, st := range statuses {
				values[i] = st
			}
			l.Where = append(l.Where, feed.In("v.status", values...))
		}
	} else {
		l.Where = append(l.Where, feed.Eq("v.visibility", VisibilityPublic))
	}

	WriteListing(w, r, h.db, h.storage, l, viewerID)
}

var knownStatuses = map[string]bool{
	StatusWaiting:   true,
	StatusPreparing: true,
	StatusReady:     true,
	StatusErrored:   true,
}

// parseStatuses reads a comma-separated status list. The result is sorted
// and deduplicated so equal filters share one cursor scope.
func parseStatuses(raw string) ([]string, bool) {
	if raw == "" {
		return nil, true
	}
	seen := make(map[string]bool)
	var statuses []string
	for _, st := range strings.Split(raw, ",") {
		st = strings.TrimSpace(st)
		if !knownStatuses[st] {
			return nil, false
		}
		if !seen[st] {
			seen[st] = true
			statuses = append(statuses, st)
		}
	}
	sort.Strings(statuses)
	return statuses, true
}

// Subscriptions lists public videos from creators the viewer follows.
func (h *Handler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())

	l := Listing{
		Scope: scope("videos", "subscriptions", "viewer="+viewerID),
		Join:  "JOIN subscriptions s ON s.creator_id = v.user_id",
		Where: []feed.Predicate{
			feed.Eq("s.viewer_id", viewerID),
			feed.Eq("v.visibility", VisibilityPublic),
		},
	}

	WriteListing(w, r, h.db, h.storage, l, viewerID)
}
