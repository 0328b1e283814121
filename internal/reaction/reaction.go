// Package reaction stores like/dislike reactions with at most one row per
// (subject, user) pair.
package reaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newtube/newtube/internal/database"
)

type Type string

const (
	Like    Type = "like"
	Dislike Type = "dislike"
)

var (
	ErrInvalidType     = errors.New("reaction type must be like or dislike")
	ErrSubjectNotFound = errors.New("reaction subject not found")
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Like, Dislike:
		return Type(s), nil
	}
	return "", ErrInvalidType
}

// Reaction is the row as it stands after Set. Removed reports that Set
// toggled an existing reaction off.
type Reaction struct {
	SubjectID string    `json:"subjectId"`
	UserID    string    `json:"userId"`
	Type      Type      `json:"type"`
	Removed   bool      `json:"removed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store manages one reaction table, e.g. video_reactions keyed by video_id.
type Store struct {
	db            database.DBTX
	table         string
	subjectColumn string
}

func NewStore(db database.DBTX, table, subjectColumn string) *Store {
	return &Store{db: db, table: table, subjectColumn: subjectColumn}
}

func NewVideoStore(db database.DBTX) *Store {
	return NewStore(db, "video_reactions", "video_id")
}

func NewCommentStore(db database.DBTX) *Store {
	return NewStore(db, "comment_reactions", "comment_id")
}

// Set toggles reactionType for (subjectID, userID). A matching reaction is
// deleted; otherwise the row is inserted or its type overwritten in a single
// INSERT ... ON CONFLICT statement.
func (s *Store) Set(ctx context.Context, subjectID, userID string, reactionType Type) (*Reaction, error) {
	if _, err := ParseType(string(reactionType)); err != nil {
		return nil, err
	}

	r := Reaction{SubjectID: subjectID, UserID: userID}
	var stored string
	err := s.db.QueryRow(ctx,
		`DELETE FROM `+s.table+` WHERE `+s.subjectColumn+` = $1 AND user_id = $2 AND type = $3
		 RETURNING type, created_at, updated_at`,
		subjectID, userID, string(reactionType),
	).Scan(&stored, &r.CreatedAt, &r.UpdatedAt)
	if err == nil {
		r.Type = Type(stored)
		r.Removed = true
		return &r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("remove reaction: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO `+s.table+` (`+s.subjectColumn+`, user_id, type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, `+s.subjectColumn+`) DO UPDATE SET type = EXCLUDED.type, updated_at = now()
		 RETURNING type, created_at, updated_at`,
		subjectID, userID, string(reactionType),
	).Scan(&stored, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("upsert reaction: %w", err)
	}
	r.Type = Type(stored)
	return &r, nil
}
