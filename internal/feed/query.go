package feed

import (
	"errors"
	"strconv"
	"strings"
)

const (
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 20
)

var ErrInvalidLimit = errors.New("limit must be between 1 and 100")

// Binder hands out $n placeholders in the order values are bound.
type Binder struct {
	args []any
}

func (b *Binder) Bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *Binder) Args() []any {
	return b.args
}

// Predicate is one AND-ed condition of a listing's filter.
type Predicate interface {
	SQL(b *Binder) string
}

type wherePredicate struct {
	format string
	values []any
}

// Where builds a predicate from a SQL fragment whose ? marks are replaced by
// bound placeholders, in order.
func Where(format string, values ...any) Predicate {
	return wherePredicate{format: format, values: values}
}

func (p wherePredicate) SQL(b *Binder) string {
	var sb strings.Builder
	next := 0
	for _, r := range p.format {
		if r == '?' && next < len(p.values) {
			sb.WriteString(b.Bind(p.values[next]))
			next++
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Eq matches column = value.
func Eq(column string, value any) Predicate {
	return Where(column+" = ?", value)
}

// In matches column against any of values. An empty list matches nothing.
func In(column string, values ...any) Predicate {
	if len(values) == 0 {
		return Where("FALSE")
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return Where(column+" IN ("+marks+")", values...)
}

// IsNull matches column IS NULL.
func IsNull(column string) Predicate {
	return Where(column + " IS NULL")
}

// Keyset names the two ordering columns, most significant first.
type Keyset struct {
	UpdatedAt string
	ID        string
}

// Query describes one keyset-paginated listing.
type Query struct {
	// Scope identifies the filter; cursors are only valid within one scope.
	Scope  string
	Select []string
	// Computed are extra select expressions that bind values, such as a
	// membership check. They follow Select.
	Computed  []Predicate
	From      string
	Where     []Predicate
	Keyset    Keyset
	Reactions *Reactions
	Replies   *Replies
	ViewerID  string
	Cursor    *Cursor
	Limit     int
}

func (q Query) validate() error {
	if q.Limit < MinLimit || q.Limit > MaxLimit {
		return ErrInvalidLimit
	}
	if q.Keyset.UpdatedAt == "" || q.Keyset.ID == "" {
		return errors.New("keyset columns are required")
	}
	return nil
}

func (q Query) filter(b *Binder) []string {
	conds := make([]string, 0, len(q.Where)+1)
	for _, p := range q.Where {
		conds = append(conds, p.SQL(b))
	}
	return conds
}

// PageSQL renders the page query. It fetches Limit+1 rows so the caller can
// tell whether another page exists.
func (q Query) PageSQL() (string, []any) {
	b := &Binder{}

	cols := append([]string{}, q.Select...)
	for _, c := range q.Computed {
		cols = append(cols, c.SQL(b))
	}
	if q.Reactions != nil {
		cols = append(cols,
			ViewerReaction(b, *q.Reactions, q.ViewerID)+" AS viewer_reaction",
			LikeCount(*q.Reactions)+" AS like_count",
			DislikeCount(*q.Reactions)+" AS dislike_count",
		)
	}
	if q.Replies != nil {
		cols = append(cols, ReplyCount(*q.Replies)+" AS reply_count")
	}

	conds := q.filter(b)
	if q.Cursor != nil {
		conds = append(conds, "("+q.Keyset.UpdatedAt+", "+q.Keyset.ID+") < ("+
			b.Bind(q.Cursor.UpdatedAt)+", "+b.Bind(q.Cursor.ID)+")")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.From)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(q.Keyset.UpdatedAt + " DESC, " + q.Keyset.ID + " DESC")
	sb.WriteString(" LIMIT ")
	sb.WriteString(b.Bind(q.Limit + 1))

	return sb.String(), b.Args()
}

// CountSQL renders the cursor-independent total for the filter.
func (q Query) CountSQL() (string, []any) {
	b := &Binder{}
	conds := q.filter(b)

	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(q.From)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	return sb.String(), b.Args()
}

// Dest returns the scan targets for the annotation columns this query
// selects, to be appended after the record's own columns.
func (q Query) Dest(a *Annotations) []any {
	var dest []any
	if q.Reactions != nil {
		dest = append(dest, &a.ViewerReaction, &a.LikeCount, &a.DislikeCount)
	}
	if q.Replies != nil {
		dest = append(dest, &a.ReplyCount)
	}
	return dest
}
