package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/database"
)

// Keyed is implemented by records that can be paginated.
type Keyed interface {
	PageKey() Cursor
}

type Page[T any] struct {
	Items      []T
	TotalCount int64
	NextCursor *Cursor
	scope      string
}

// Response is the JSON shape of a page; the cursor is an opaque token.
type Response[T any] struct {
	Items      []T     `json:"items"`
	TotalCount int64   `json:"totalCount"`
	NextCursor *string `json:"nextCursor"`
}

func (p *Page[T]) Response() Response[T] {
	resp := Response[T]{Items: p.Items, TotalCount: p.TotalCount}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	if p.NextCursor != nil {
		token := EncodeCursor(*p.NextCursor, p.scope)
		resp.NextCursor = &token
	}
	return resp
}

// List runs q and returns one page. scan reads a single row; it is expected
// to append q.Dest(&item.Annotations) to its own scan targets.
func List[T Keyed](ctx context.Context, db database.DBTX, q Query, scan func(pgx.Rows) (T, error)) (*Page[T], error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	pageSQL, pageArgs := q.PageSQL()
	rows, err := db.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	defer rows.Close()

	items := make([]T, 0, q.Limit+1)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	rows.Close()

	page := &Page[T]{Items: items, scope: q.Scope}
	if len(items) > q.Limit {
		page.Items = items[:q.Limit]
		next := page.Items[q.Limit-1].PageKey()
		page.NextCursor = &next
	}

	countSQL, countArgs := q.CountSQL()
	if err := db.QueryRow(ctx, countSQL, countArgs...).Scan(&page.TotalCount); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	return page, nil
}

// Params are the pagination inputs of an HTTP listing.
type Params struct {
	Limit  int
	Cursor *Cursor
}

// ParseParams reads "limit" and "cursor" from a query string. A missing limit
// defaults to DefaultLimit.
func ParseParams(values url.Values, scope string) (Params, error) {
	p := Params{Limit: DefaultLimit}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < MinLimit || limit > MaxLimit {
			return Params{}, ErrInvalidLimit
		}
		p.Limit = limit
	}

	cursor, err := DecodeCursor(values.Get("cursor"), scope)
	if err != nil {
		return Params{}, err
	}
	p.Cursor = cursor
	return p, nil
}
