package video

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/feed"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	StatusWaiting   = "waiting"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusErrored   = "errored"
)

// Reactions is the like/dislike source for video rows aliased as v.
var Reactions = feed.Reactions{Table: "video_reactions", Subject: "video_id", Target: "v.id"}

type Author struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ImageURL *string `json:"imageUrl"`
}

// Item is a video as it appears in any listing.
type Item struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	CategoryID   *string   `json:"categoryId"`
	Visibility   string    `json:"visibility"`
	Status       string    `json:"status"`
	PlaybackURL  *string   `json:"playbackUrl"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	PreviewURL   *string   `json:"previewUrl"`
	Duration     int       `json:"duration"`
	ViewCount    int64     `json:"viewCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Author       Author    `json:"author"`
	feed.Annotations

	thumbnailKey *string
	sortAt       time.Time
}

// PageKey uses the listing's sort column, which is the video's updated_at
// for plain feeds and the join row's updated_at for playlists and history.
func (v Item) PageKey() feed.Cursor {
	return feed.Cursor{UpdatedAt: v.sortAt, ID: v.ID}
}

var itemColumns = []string{
	"v.id", "v.title", "v.description", "v.category_id", "v.visibility", "v.status",
	"v.playback_url", "v.default_thumbnail_url", "v.thumbnail_key", "v.preview_url",
	"v.duration", "v.created_at", "v.updated_at",
	"u.id", "u.name", "u.image_url",
	"(SELECT COUNT(*) FROM video_views vv WHERE vv.video_id = v.id) AS view_count",
}

const itemFrom = "videos v JOIN users u ON u.id = v.user_id"

// Listing describes a video listing. Join adds tables to the base
// "videos v JOIN users u" source and SortColumn replaces v.updated_at as the
// primary keyset column.
type Listing struct {
	Scope      string
	Join       string
	SortColumn string
	Where      []feed.Predicate
}

// Query builds the feed query for l.
func (l Listing) Query(viewerID string, p feed.Params) feed.Query {
	sort := l.SortColumn
	if sort == "" {
		sort = "v.updated_at"
	}
	from := itemFrom
	if l.Join != "" {
		from += " " + l.Join
	}
	cols := append(append([]string{}, itemColumns...), sort+" AS sort_at")

	return feed.Query{
		Scope:     l.Scope,
		Select:    cols,
		From:      from,
		Where:     l.Where,
		Keyset:    feed.Keyset{UpdatedAt: sort, ID: "v.id"},
		Reactions: &Reactions,
		ViewerID:  viewerID,
		Cursor:    p.Cursor,
		Limit:     p.Limit,
	}
}

// ScanItem returns a row scanner for q.
func ScanItem(q feed.Query) func(pgx.Rows) (Item, error) {
	return func(rows pgx.Rows) (Item, error) {
		var v Item
		err := rows.Scan(append(v.dest(), q.Dest(&v.Annotations)...)...)
		return v, err
	}
}

// dest matches itemColumns followed by sort_at.
func (v *Item) dest() []any {
	return []any{
		&v.ID, &v.Title, &v.Description, &v.CategoryID, &v.Visibility, &v.Status,
		&v.PlaybackURL, &v.ThumbnailURL, &v.thumbnailKey, &v.PreviewURL,
		&v.Duration, &v.CreatedAt, &v.UpdatedAt,
		&v.Author.ID, &v.Author.Name, &v.Author.ImageURL,
		&v.ViewCount, &v.sortAt,
	}
}

// ThumbnailSigner presigns stored thumbnail keys.
type ThumbnailSigner interface {
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ResolveThumbnails replaces the transcoder's default frame with a signed
// URL for videos that have a custom or generated thumbnail.
func ResolveThumbnails(ctx context.Context, signer ThumbnailSigner, items []Item) {
	for i := range items {
		resolveThumbnail(ctx, signer, &items[i])
	}
}

func resolveThumbnail(ctx context.Context, signer ThumbnailSigner, v *Item) {
	if v.thumbnailKey == nil || *v.thumbnailKey == "" || signer == nil {
		return
	}
	url, err := signer.GenerateDownloadURL(ctx, *v.thumbnailKey, thumbnailURLExpiry)
	if err != nil {
		slog.Warn("video: sign thumbnail url", "video_id", v.ID, "error", err)
		return
	}
	v.ThumbnailURL = &url
}

func scope(parts ...string) string {
	return strings.Join(parts, ":")
}
