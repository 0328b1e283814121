package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/feed"
	"github.com/pashagolub/pgxmock/v4"
)

const (
	testJWTSecret = "test-secret-for-video-tests"
	testUserID    = "550e8400-e29b-41d4-a716-446655440000"
	otherUserID   = "660e8400-e29b-41d4-a716-446655440001"
	testVideoID   = "770e8400-e29b-41d4-a716-446655440002"
	testCategory  = "880e8400-e29b-41d4-a716-446655440003"
)

type mockStorage struct {
	uploadURL   string
	uploadErr   error
	uploadKeys  []string
	downloadURL string
	stored      map[string]bool
	deleted     []string
	deleteErr   error
}

func (m *mockStorage) GenerateUploadURL(_ context.Context, key, _ string, _ int64, _ time.Duration) (string, error) {
	m.uploadKeys = append(m.uploadKeys, key)
	return m.uploadURL, m.uploadErr
}

func (m *mockStorage) GenerateDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return m.downloadURL + key, nil
}

func (m *mockStorage) HeadObject(_ context.Context, key string) (int64, string, error) {
	if !m.stored[key] {
		return 0, "", errors.New("not found")
	}
	return 1024, "image/png", nil
}

func (m *mockStorage) DeleteObject(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return m.deleteErr
}

func strPtr(s string) *string { return &s }

func authenticatedRequest(t *testing.T, method, target string, body []byte) *http.Request {
	t.Helper()
	return requestAs(t, testUserID, method, target, body)
}

func requestAs(t *testing.T, userID, method, target string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	token, err := auth.GenerateAccessToken(testJWTSecret, userID)
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func parseErrorResponse(t *testing.T, body []byte) string {
	t.Helper()
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	return errResp.Error
}

func newTestHandler(t *testing.T) (*Handler, pgxmock.PgxPoolIface, *mockStorage) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mock.Close() })
	store := &mockStorage{uploadURL: "https://s3.example.com/upload?signed=abc", downloadURL: "https://s3.example.com/"}
	return NewHandler(mock, store, 100<<20), mock, store
}

func newTestRouter(h *Handler) chi.Router {
	a := auth.NewHandler(nil, testJWTSecret, false)
	r := chi.NewRouter()
	r.Post("/api/webhooks/transcoder", h.TranscoderWebhook)
	r.Group(func(r chi.Router) {
		r.Use(a.Optional)
		r.Get("/api/videos", h.Home)
		r.Get("/api/videos/{id}", h.Get)
		r.Get("/api/users/{userId}/videos", h.ByUser)
		r.Post("/api/videos/{id}/views", h.RecordView)
	})
	r.Group(func(r chi.Router) {
		r.Use(a.Middleware)
		r.Get("/api/feed/subscriptions", h.Subscriptions)
		r.Post("/api/videos", h.Create)
		r.Patch("/api/videos/{id}", h.Update)
		r.Delete("/api/videos/{id}", h.Delete)
		r.Post("/api/videos/{id}/reactions", h.React)
		r.Post("/api/videos/{id}/thumbnail/restore", h.RestoreThumbnail)
		r.Post("/api/videos/{id}/thumbnail/upload-url", h.ThumbnailUploadURL)
		r.Post("/api/videos/{id}/thumbnail/confirm", h.ConfirmThumbnail)
		r.Post("/api/videos/{id}/generate/title", h.GenerateTitle)
		r.Post("/api/videos/{id}/generate/description", h.GenerateDescription)
		r.Post("/api/videos/{id}/generate/thumbnail", h.GenerateThumbnail)
	})
	return r
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)
	return rec
}

var itemColumnNames = []string{
	"id", "title", "description", "category_id", "visibility", "status",
	"playback_url", "default_thumbnail_url", "thumbnail_key", "preview_url",
	"duration", "created_at", "updated_at", "author_id", "name", "image_url",
	"view_count", "sort_at", "viewer_reaction", "like_count", "dislike_count",
}

func itemRow(id, ownerID, visibility string, at time.Time, thumbnailKey *string) []any {
	return []any{
		id, "Video " + id[:8], (*string)(nil), (*string)(nil), visibility, StatusReady,
		strPtr("https://stream.example.com/" + id + ".m3u8"), strPtr("https://image.example.com/" + id + ".jpg"),
		thumbnailKey, (*string)(nil),
		90, at, at, ownerID, "Alice", (*string)(nil),
		int64(12), at, (*string)(nil), int64(3), int64(1),
	}
}

func countRows(n int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"count"}).AddRow(n)
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	h, mock, store := newTestHandler(t)

	mock.ExpectExec(`INSERT INTO videos \(id, user_id, title, content_type, upload_key\)`).
		WithArgs(pgxmock.AnyArg(), testUserID, "My video", "video/mp4", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := []byte(`{"title":"  My video ","contentType":"video/mp4","fileSize":5000000}`)
	rec := serve(h, authenticatedRequest(t, http.MethodPost, "/api/videos", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var resp createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UploadURL != store.uploadURL {
		t.Errorf("expected upload URL %q, got %q", store.uploadURL, resp.UploadURL)
	}
	wantKey := "uploads/" + testUserID + "/" + resp.ID + ".mp4"
	if len(store.uploadKeys) != 1 || store.uploadKeys[0] != wantKey {
		t.Errorf("expected upload key %q, got %v", wantKey, store.uploadKeys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreate_DefaultsTitle(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectExec(`INSERT INTO videos`).
		WithArgs(pgxmock.AnyArg(), testUserID, defaultTitle, "video/webm", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := []byte(`{"contentType":"video/webm","fileSize":100}`)
	rec := serve(h, authenticatedRequest(t, http.MethodPost, "/api/videos", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unsupported type", `{"contentType":"video/x-msvideo","fileSize":100}`},
		{"zero size", `{"contentType":"video/mp4","fileSize":0}`},
		{"too large", `{"contentType":"video/mp4","fileSize":104857601}`},
		{"long title", `{"title":"` + strings.Repeat("t", 101) + `","contentType":"video/mp4","fileSize":100}`},
		{"malformed", `{`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, mock, _ := newTestHandler(t)

			rec := serve(h, authenticatedRequest(t, http.MethodPost, "/api/videos", []byte(tc.body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unexpected database call: %v", err)
			}
		})
	}
}

func TestCreate_RequiresAuth(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(`{}`))
	rec := serve(h, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

// --- Get ---

func detailRows() *pgxmock.Rows {
	cols := append(append([]string{}, itemColumnNames...), "subscriber_count", "viewer_subscribed")
	return pgxmock.NewRows(cols)
}

func TestGet_PublicVideoAnonymous(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	row := append(itemRow(testVideoID, otherUserID, VisibilityPublic, at, nil), int64(42), false)
	mock.ExpectQuery(`SELECT v\.id, .* false AS viewer_subscribed FROM videos v JOIN users u ON u\.id = v\.user_id WHERE v\.id = \$1`).
		WithArgs(testVideoID).
		WillReturnRows(detailRows().AddRow(row...))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SubscriberCount != 42 || resp.ViewerSubscribed {
		t.Errorf("unexpected channel stats: %+v", resp)
	}
	if resp.LikeCount != 3 || resp.DislikeCount != 1 || resp.ViewerReaction != nil {
		t.Errorf("unexpected annotations: %+v", resp.Annotations)
	}
	if resp.ViewCount != 12 {
		t.Errorf("expected 12 views, got %d", resp.ViewCount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGet_SignedInViewerBindsViewerTwice(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	at := time.Now()

	row := itemRow(testVideoID, otherUserID, VisibilityPublic, at, strPtr("thumbnails/x/y.png"))
	row[18] = strPtr("like")
	row = append(row, int64(1), true)
	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(testUserID, testUserID, testVideoID).
		WillReturnRows(detailRows().AddRow(row...))

	rec := serve(h, authenticatedRequest(t, http.MethodGet, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.ViewerSubscribed {
		t.Error("expected viewerSubscribed")
	}
	if resp.ViewerReaction == nil || *resp.ViewerReaction != "like" {
		t.Errorf("expected viewer reaction like, got %v", resp.ViewerReaction)
	}
	if resp.ThumbnailURL == nil || *resp.ThumbnailURL != "https://s3.example.com/thumbnails/x/y.png" {
		t.Errorf("expected signed custom thumbnail, got %v", resp.ThumbnailURL)
	}
}

func TestGet_PrivateVideoHiddenFromOthers(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	row := append(itemRow(testVideoID, otherUserID, VisibilityPrivate, time.Now(), nil), int64(0), false)
	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(testVideoID).
		WillReturnRows(detailRows().AddRow(row...))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGet_PrivateVideoVisibleToOwner(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	row := append(itemRow(testVideoID, testUserID, VisibilityPrivate, time.Now(), nil), int64(0), false)
	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(testUserID, testUserID, testVideoID).
		WillReturnRows(detailRows().AddRow(row...))

	rec := serve(h, authenticatedRequest(t, http.MethodGet, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestGet_NotFound(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id`).WithArgs(testVideoID).WillReturnError(pgx.ErrNoRows)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGet_InvalidID(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos/not-a-uuid", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// --- Listings ---

func TestHome_AnonymousFirstPage(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(itemColumnNames).
		AddRow(itemRow("00000000-0000-0000-0000-000000000003", testUserID, VisibilityPublic, at, nil)...).
		AddRow(itemRow("00000000-0000-0000-0000-000000000002", testUserID, VisibilityPublic, at.Add(-time.Hour), nil)...).
		AddRow(itemRow("00000000-0000-0000-0000-000000000001", testUserID, VisibilityPublic, at.Add(-2*time.Hour), nil)...)
	mock.ExpectQuery(`SELECT v\.id, .* NULL::text AS viewer_reaction`).
		WithArgs(VisibilityPublic, 3).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos v`).
		WithArgs(VisibilityPublic).
		WillReturnRows(countRows(7))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos?limit=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp feed.Response[Item]
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.TotalCount != 7 {
		t.Fatalf("expected 2 of 7 items, got %d of %d", len(resp.Items), resp.TotalCount)
	}
	if resp.NextCursor == nil {
		t.Fatal("expected next cursor")
	}
	cursor, err := feed.DecodeCursor(*resp.NextCursor, scope("videos", "home", "category=all"))
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	if cursor.ID != "00000000-0000-0000-0000-000000000002" || !cursor.UpdatedAt.Equal(at.Add(-time.Hour)) {
		t.Errorf("unexpected cursor %+v", cursor)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHome_CategoryCursorRejectedWithoutCategory(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	token := feed.EncodeCursor(feed.Cursor{UpdatedAt: time.Now(), ID: testVideoID}, scope("videos", "home", "category="+testCategory))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos?cursor="+token, nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != feed.ErrInvalidCursor.Error() {
		t.Errorf("unexpected error %q", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database call: %v", err)
	}
}

func TestHome_FiltersByCategory(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(testUserID, VisibilityPublic, testCategory, feed.DefaultLimit+1).
		WillReturnRows(pgxmock.NewRows(itemColumnNames))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos v`).
		WithArgs(VisibilityPublic, testCategory).
		WillReturnRows(countRows(0))

	rec := serve(h, authenticatedRequest(t, http.MethodGet, "/api/videos?categoryId="+testCategory, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("expected empty items array, got %s", rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHome_InvalidParams(t *testing.T) {
	for _, target := range []string{"/api/videos?limit=0", "/api/videos?limit=101", "/api/videos?categoryId=nope", "/api/videos?cursor=garbage"} {
		t.Run(target, func(t *testing.T) {
			h, mock, _ := newTestHandler(t)

			rec := serve(h, httptest.NewRequest(http.MethodGet, target, nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unexpected database call: %v", err)
			}
		})
	}
}

func TestHome_StorageError(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(VisibilityPublic, feed.DefaultLimit+1).
		WillReturnError(errors.New("connection refused"))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != "could not fetch videos" {
		t.Errorf("unexpected error %q", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHome_CountErrorReturnsNoPage(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(VisibilityPublic, feed.DefaultLimit+1).
		WillReturnRows(pgxmock.NewRows(itemColumnNames).
			AddRow(itemRow(testVideoID, testUserID, VisibilityPublic, time.Now(), nil)...))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos v`).
		WithArgs(VisibilityPublic).
		WillReturnError(errors.New("connection reset"))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if strings.Contains(rec.Body.String(), testVideoID) {
		t.Errorf("expected no partial page, got %s", rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestByUser_OwnerSeesPrivateVideos(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(testUserID, testUserID, feed.DefaultLimit+1).
		WillReturnRows(pgxmock.NewRows(itemColumnNames).
			AddRow(itemRow(testVideoID, testUserID, VisibilityPrivate, time.Now(), nil)...))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos v`).
		WithArgs(testUserID).
		WillReturnRows(countRows(1))

	rec := serve(h, authenticatedRequest(t, http.MethodGet, "/api/users/"+testUserID+"/videos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestByUser_OthersSeePublicOnly(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id`).
		WithArgs(otherUserID, VisibilityPublic, feed.DefaultLimit+1).
		WillReturnRows(pgxmock.NewRows(itemColumnNames))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos v`).
		WithArgs(otherUserID, VisibilityPublic).
		WillReturnRows(countRows(0))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/users/"+otherUserID+"/videos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestByUser_OwnerFiltersByStatus(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id, .* WHERE v\.user_id = \$2 AND v\.status IN \(\$3, \$4\)`).
		WithArgs(testUserID, testUserID, StatusErrored, StatusReady, feed.DefaultLimit+1).
		WillReturnRows(pgxmock.NewRows(itemColumnNames))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos v .* v\.status IN \(\$2, \$3\)`).
		WithArgs(testUserID, StatusErrored, StatusReady).
		WillReturnRows(countRows(0))

	rec := serve(h, authenticatedRequest(t, http.MethodGet, "/api/users/"+testUserID+"/videos?status=ready,errored,ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestByUser_RejectsUnknownStatus(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	rec := serve(h, authenticatedRequest(t, http.MethodGet, "/api/users/"+testUserID+"/videos?status=ready,deleted", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSubscriptions_JoinsFollowedCreators(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(`SELECT v\.id, .* JOIN subscriptions s ON s\.creator_id = v\.user_id WHERE s\.viewer_id = \$2 AND v\.visibility = \$3`).
		WithArgs(testUserID, testUserID, VisibilityPublic, feed.DefaultLimit+1).
		WillReturnRows(pgxmock.NewRows(itemColumnNames))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM videos v JOIN users u ON u\.id = v\.user_id JOIN subscriptions s`).
		WithArgs(testUserID, VisibilityPublic).
		WillReturnRows(countRows(0))

	rec := serve(h, authenticatedRequest(t, http.MethodGet, "/api/feed/subscriptions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// --- Update ---

func TestUpdate_SetsProvidedFields(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectExec(`UPDATE videos SET title = \$1, visibility = \$2, updated_at = now\(\) WHERE id = \$3 AND user_id = \$4`).
		WithArgs("New title", VisibilityPublic, testVideoID, testUserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	body := []byte(`{"title":"New title","visibility":"public"}`)
	rec := serve(h, authenticatedRequest(t, http.MethodPatch, "/api/videos/"+testVideoID, body))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdate_ClearsCategory(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectExec(`UPDATE videos SET category_id = \$1`).
		WithArgs((*string)(nil), testVideoID, testUserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec := serve(h, authenticatedRequest(t, http.MethodPatch, "/api/videos/"+testVideoID, []byte(`{"categoryId":""}`)))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}
}

func TestUpdate_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank title", `{"title":"   "}`},
		{"bad visibility", `{"visibility":"unlisted"}`},
		{"bad category", `{"categoryId":"nope"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, mock, _ := newTestHandler(t)

			rec := serve(h, authenticatedRequest(t, http.MethodPatch, "/api/videos/"+testVideoID, []byte(tc.body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unexpected database call: %v", err)
			}
		})
	}
}

func TestUpdate_NotOwned(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectExec(`UPDATE videos SET title`).
		WithArgs("Mine now", testVideoID, testUserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rec := serve(h, authenticatedRequest(t, http.MethodPatch, "/api/videos/"+testVideoID, []byte(`{"title":"Mine now"}`)))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestUpdate_UnknownCategory(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectExec(`UPDATE videos SET category_id`).
		WithArgs(strPtr(testCategory), testVideoID, testUserID).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	rec := serve(h, authenticatedRequest(t, http.MethodPatch, "/api/videos/"+testVideoID, []byte(`{"categoryId":"`+testCategory+`"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// --- Delete ---

func expectOwnedVideo(mock pgxmock.PgxPoolIface, thumbnailKey *string) {
	mock.ExpectQuery(`SELECT upload_key, thumbnail_key FROM videos WHERE id = \$1 AND user_id = \$2`).
		WithArgs(testVideoID, testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"upload_key", "thumbnail_key"}).
			AddRow("uploads/"+testUserID+"/"+testVideoID+".mp4", thumbnailKey))
}

func TestDelete_RemovesObjectsThenRow(t *testing.T) {
	h, mock, store := newTestHandler(t)

	expectOwnedVideo(mock, strPtr("thumbnails/custom.png"))
	mock.ExpectExec(`DELETE FROM videos WHERE id = \$1 AND user_id = \$2`).
		WithArgs(testVideoID, testUserID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	rec := serve(h, authenticatedRequest(t, http.MethodDelete, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}
	if len(store.deleted) != 2 || store.deleted[1] != "thumbnails/custom.png" {
		t.Errorf("expected upload and thumbnail deleted, got %v", store.deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDelete_StorageFailureStillDeletesRow(t *testing.T) {
	h, mock, store := newTestHandler(t)
	store.deleteErr = errors.New("s3 unavailable")

	expectOwnedVideo(mock, nil)
	mock.ExpectExec(`DELETE FROM videos`).
		WithArgs(testVideoID, testUserID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	rec := serve(h, authenticatedRequest(t, http.MethodDelete, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestDelete_NotOwned(t *testing.T) {
	h, mock, store := newTestHandler(t)

	mock.ExpectQuery(`SELECT upload_key, thumbnail_key FROM videos`).
		WithArgs(testVideoID, testUserID).
		WillReturnError(pgx.ErrNoRows)

	rec := serve(h, authenticatedRequest(t, http.MethodDelete, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if len(store.deleted) != 0 {
		t.Errorf("expected no storage deletes, got %v", store.deleted)
	}
}
