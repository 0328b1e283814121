package video

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/geoip"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/reaction"
	"github.com/newtube/newtube/internal/validate"
)

const (
	uploadURLExpiry    = 30 * time.Minute
	thumbnailURLExpiry = time.Hour
)

type ObjectStorage interface {
	GenerateUploadURL(ctx context.Context, key, contentType string, contentLength int64, expiry time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	HeadObject(ctx context.Context, key string) (int64, string, error)
	DeleteObject(ctx context.Context, key string) error
}

// Generator queues background AI jobs and returns the job id.
type Generator interface {
	GenerateTitle(ctx context.Context, videoID, userID string) (int64, error)
	GenerateDescription(ctx context.Context, videoID, userID string) (int64, error)
	GenerateThumbnail(ctx context.Context, videoID, userID, prompt string) (int64, error)
}

type Locator interface {
	Lookup(addr string) geoip.Location
}

type Handler struct {
	db             database.DBTX
	storage        ObjectStorage
	reactions      *reaction.Store
	generator      Generator
	locator        Locator
	webhookSecret  string
	maxUploadBytes int64
	now            func() time.Time
}

func NewHandler(db database.DBTX, s ObjectStorage, maxUploadBytes int64) *Handler {
	return &Handler{
		db:             db,
		storage:        s,
		reactions:      reaction.NewVideoStore(db),
		locator:        &geoip.Resolver{},
		maxUploadBytes: maxUploadBytes,
		now:            time.Now,
	}
}

// SetGenerator enables the AI generation endpoints.
func (h *Handler) SetGenerator(g Generator) {
	h.generator = g
}

func (h *Handler) SetLocator(l Locator) {
	h.locator = l
}

func (h *Handler) SetWebhookSecret(secret string) {
	h.webhookSecret = secret
}

var errNotOwned = errors.New("video not found")

type ownedVideo struct {
	ID           string
	UploadKey    string
	ThumbnailKey *string
}

// ownedVideo loads a video only if userID owns it. Videos owned by someone
// else are reported as missing.
func (h *Handler) ownedVideo(ctx context.Context, videoID, userID string) (ownedVideo, error) {
	v := ownedVideo{ID: videoID}
	err := h.db.QueryRow(ctx,
		"SELECT upload_key, thumbnail_key FROM videos WHERE id = $1 AND user_id = $2",
		videoID, userID,
	).Scan(&v.UploadKey, &v.ThumbnailKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, errNotOwned
	}
	return v, err
}

// videoIDParam reads and validates the {id} route parameter, writing a 400
// when it is not a UUID.
func videoIDParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if !validate.ID(id) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
		return "", false
	}
	return id, true
}

func writeOwnedVideoError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNotOwned) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, "could not fetch video")
}
