package comment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
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
	testJWTSecret = "test-secret-for-comment-tests"
	testUserID    = "550e8400-e29b-41d4-a716-446655440000"
	testVideoID   = "770e8400-e29b-41d4-a716-446655440002"
	otherVideoID  = "770e8400-e29b-41d4-a716-446655440099"
	testCommentID = "990e8400-e29b-41d4-a716-446655440004"
)

var listColumns = []string{
	"id", "video_id", "parent_id", "value", "created_at", "updated_at",
	"author_id", "name", "image_url", "viewer_reaction", "like_count", "dislike_count", "reply_count",
}

func strPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64 { return &n }

func newTestRouter(t *testing.T) (chi.Router, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mock.Close() })

	h := NewHandler(mock)
	a := auth.NewHandler(nil, testJWTSecret, false)
	r := chi.NewRouter()
	r.With(a.Optional).Get("/api/videos/{id}/comments", h.List)
	r.Group(func(r chi.Router) {
		r.Use(a.Middleware)
		r.Post("/api/videos/{id}/comments", h.Create)
		r.Delete("/api/comments/{id}", h.Delete)
		r.Post("/api/comments/{id}/reactions", h.React)
	})
	return r, mock
}

func authenticatedRequest(t *testing.T, method, target string, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	token, err := auth.GenerateAccessToken(testJWTSecret, testUserID)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serve(r chi.Router, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func commentID(n int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
}

// --- Create ---

func TestCreate_TopLevel(t *testing.T) {
	r, mock := newTestRouter(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO comments \(video_id, user_id, parent_id, value\)`).
		WithArgs(testVideoID, testUserID, (*string)(nil), "Great video!").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(testCommentID, now, now))

	rec := serve(r, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/comments", `{"value":"  Great video!  "}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var c Comment
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if c.ID != testCommentID || c.Value != "Great video!" || c.ParentID != nil {
		t.Errorf("unexpected comment %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreate_Reply(t *testing.T) {
	r, mock := newTestRouter(t)
	now := time.Now()
	parent := commentID(1)

	mock.ExpectQuery(`SELECT video_id, parent_id FROM comments WHERE id = \$1`).
		WithArgs(parent).
		WillReturnRows(pgxmock.NewRows([]string{"video_id", "parent_id"}).AddRow(testVideoID, (*string)(nil)))
	mock.ExpectQuery(`INSERT INTO comments`).
		WithArgs(testVideoID, testUserID, strPtr(parent), "Agreed").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(testCommentID, now, now))

	rec := serve(r, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/comments", `{"value":"Agreed","parentId":"`+parent+`"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreate_ReplyRules(t *testing.T) {
	parent := commentID(1)
	tests := []struct {
		name          string
		parentVideo   string
		grandparentID *string
		lookupErr     error
		wantStatus    int
	}{
		{"parent on another video", otherVideoID, nil, nil, http.StatusBadRequest},
		{"nested reply", testVideoID, strPtr(commentID(9)), nil, http.StatusBadRequest},
		{"missing parent", "", nil, pgx.ErrNoRows, http.StatusNotFound},
		{"lookup failure", "", nil, errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, mock := newTestRouter(t)

			q := mock.ExpectQuery(`SELECT video_id, parent_id FROM comments`).WithArgs(parent)
			if tc.lookupErr != nil {
				q.WillReturnError(tc.lookupErr)
			} else {
				q.WillReturnRows(pgxmock.NewRows([]string{"video_id", "parent_id"}).AddRow(tc.parentVideo, tc.grandparentID))
			}

			rec := serve(r, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/comments", `{"value":"hi","parentId":"`+parent+`"}`))

			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	for name, body := range map[string]string{
		"empty":     `{"value":""}`,
		"blank":     `{"value":"   "}`,
		"too long":  `{"value":"` + strings.Repeat("x", 5001) + `"}`,
		"bad json":  `{"value":`,
		"bad param": `{"value":"ok","parentId":"nope"}`,
	} {
		t.Run(name, func(t *testing.T) {
			r, mock := newTestRouter(t)

			rec := serve(r, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/comments", body))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unexpected database call: %v", err)
			}
		})
	}
}

func TestCreate_VideoMissing(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery(`INSERT INTO comments`).
		WithArgs(testVideoID, testUserID, (*string)(nil), "hello").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	rec := serve(r, authenticatedRequest(t, http.MethodPost, "/api/videos/"+testVideoID+"/comments", `{"value":"hello"}`))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

// --- List ---

func commentRow(n int, at time.Time, replies *int64) []any {
	return []any{commentID(n), testVideoID, (*string)(nil), fmt.Sprintf("comment %d", n), at, at,
		testUserID, "Alice", (*string)(nil), (*string)(nil), int64(0), int64(0), replies}
}

// Five comments t5 > ... > t1 paged two at a time come back as [t5 t4],
// [t3 t2], [t1] with the cursor pointing at the last item of each full page.
func TestList_PagesThroughThread(t *testing.T) {
	r, mock := newTestRouter(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	at := func(n int) time.Time { return base.Add(time.Duration(n) * time.Minute) }
	target := "/api/videos/" + testVideoID + "/comments?limit=2"
	scope := "comments:video=" + testVideoID + ":parent=root"

	pages := [][]int{{5, 4, 3}, {3, 2, 1}, {1}}
	var cursor string
	var got [][]string
	for i, ids := range pages {
		rows := pgxmock.NewRows(listColumns)
		for _, n := range ids {
			rows.AddRow(commentRow(n, at(n), int64Ptr(0))...)
		}
		if i == 0 {
			mock.ExpectQuery(`SELECT c\.id, .* FROM comments c JOIN users u ON u\.id = c\.user_id WHERE c\.video_id = \$1 AND c\.parent_id IS NULL ORDER BY c\.updated_at DESC, c\.id DESC LIMIT \$2`).
				WithArgs(testVideoID, 3).
				WillReturnRows(rows)
		} else {
			mock.ExpectQuery(`WHERE c\.video_id = \$1 AND c\.parent_id IS NULL AND \(c\.updated_at, c\.id\) < \(\$2, \$3\)`).
				WithArgs(testVideoID, pgxmock.AnyArg(), commentID(pages[i-1][1]), 3).
				WillReturnRows(rows)
		}
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM comments c`).
			WithArgs(testVideoID).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))

		url := target
		if cursor != "" {
			url += "&cursor=" + cursor
		}
		rec := serve(r, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("page %d: expected status %d, got %d: %s", i, http.StatusOK, rec.Code, rec.Body.String())
		}

		var resp feed.Response[Comment]
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("page %d: decode: %v", i, err)
		}
		if resp.TotalCount != 5 {
			t.Errorf("page %d: expected totalCount 5, got %d", i, resp.TotalCount)
		}
		var values []string
		for _, c := range resp.Items {
			values = append(values, c.Value)
		}
		got = append(got, values)

		if resp.NextCursor == nil {
			cursor = ""
			continue
		}
		decoded, err := feed.DecodeCursor(*resp.NextCursor, scope)
		if err != nil {
			t.Fatalf("page %d: decode cursor: %v", i, err)
		}
		last := resp.Items[len(resp.Items)-1]
		if decoded.ID != last.ID || !decoded.UpdatedAt.Equal(last.UpdatedAt) {
			t.Errorf("page %d: cursor %+v does not match last item", i, decoded)
		}
		cursor = *resp.NextCursor
	}

	want := [][]string{{"comment 5", "comment 4"}, {"comment 3", "comment 2"}, {"comment 1"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected pages %v, got %v", want, got)
	}
	if cursor != "" {
		t.Error("expected no cursor after the last page")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestList_RepliesUseOwnScope(t *testing.T) {
	r, mock := newTestRouter(t)
	parent := commentID(1)

	mock.ExpectQuery(`SELECT c\.id, .* \(SELECT rx\.type FROM comment_reactions rx WHERE rx\.comment_id = c\.id AND rx\.user_id = \$1\) AS viewer_reaction, .* WHERE c\.video_id = \$2 AND c\.parent_id = \$3`).
		WithArgs(testUserID, testVideoID, parent, feed.DefaultLimit+1).
		WillReturnRows(pgxmock.NewRows(listColumns[:12]).
			AddRow(commentRow(2, time.Now(), nil)[:12]...))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM comments c`).
		WithArgs(testVideoID, parent).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	rec := serve(r, authenticatedRequest(t, http.MethodGet, "/api/videos/"+testVideoID+"/comments?parentId="+parent, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "replyCount") {
		t.Errorf("replies should not carry a reply count: %s", rec.Body.String())
	}

	rootCursor := feed.EncodeCursor(feed.Cursor{UpdatedAt: time.Now(), ID: commentID(3)}, "comments:video="+testVideoID+":parent=root")
	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/videos/"+testVideoID+"/comments?parentId="+parent+"&cursor="+rootCursor, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected root cursor rejected for replies, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestList_InvalidLimit(t *testing.T) {
	r, mock := newTestRouter(t)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/videos/"+testVideoID+"/comments?limit=500", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database call: %v", err)
	}
}

// --- Delete / React ---

func TestDelete(t *testing.T) {
	tests := []struct {
		name       string
		affected   int64
		wantStatus int
	}{
		{"own comment", 1, http.StatusNoContent},
		{"someone else's", 0, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, mock := newTestRouter(t)
			mock.ExpectExec(`DELETE FROM comments WHERE id = \$1 AND user_id = \$2`).
				WithArgs(testCommentID, testUserID).
				WillReturnResult(pgxmock.NewResult("DELETE", tc.affected))

			rec := serve(r, authenticatedRequest(t, http.MethodDelete, "/api/comments/"+testCommentID, ""))

			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestReact_TogglesOff(t *testing.T) {
	r, mock := newTestRouter(t)
	now := time.Now()

	mock.ExpectQuery(`DELETE FROM comment_reactions WHERE comment_id = \$1 AND user_id = \$2 AND type = \$3`).
		WithArgs(testCommentID, testUserID, "like").
		WillReturnRows(pgxmock.NewRows([]string{"type", "created_at", "updated_at"}).AddRow("like", now, now))

	rec := serve(r, authenticatedRequest(t, http.MethodPost, "/api/comments/"+testCommentID+"/reactions", `{"type":"like"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"removed":true`) {
		t.Errorf("expected removed reaction, got %s", rec.Body.String())
	}
}
