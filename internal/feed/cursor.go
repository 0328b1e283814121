package feed

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor identifies the last record of a page: its updated_at and id.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

type cursorToken struct {
	UpdatedAt time.Time `json:"u"`
	ID        string    `json:"i"`
	Scope     string    `json:"s"`
}

// EncodeCursor returns the opaque token handed to clients. The token is bound
// to scope so it cannot be replayed against a different listing.
func EncodeCursor(c Cursor, scope string) string {
	b, _ := json.Marshal(cursorToken{
		UpdatedAt: c.UpdatedAt.UTC(),
		ID:        c.ID,
		Scope:     fingerprint(scope),
	})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token means
// "first page" and yields a nil cursor.
func DecodeCursor(token, scope string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var t cursorToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, ErrInvalidCursor
	}
	if t.UpdatedAt.IsZero() || t.Scope != fingerprint(scope) {
		return nil, ErrInvalidCursor
	}
	if _, err := uuid.Parse(t.ID); err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{UpdatedAt: t.UpdatedAt, ID: t.ID}, nil
}

func fingerprint(scope string) string {
	sum := sha256.Sum256([]byte(scope))
	return hex.EncodeToString(sum[:8])
}
