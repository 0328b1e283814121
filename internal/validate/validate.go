package validate

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Text field length limits, counted in characters.
const (
	MaxNameLength                = 100
	MaxTitleLength               = 100
	MaxDescriptionLength         = 5000
	MaxCommentLength             = 5000
	MaxPlaylistNameLength        = 100
	MaxPlaylistDescriptionLength = 1000
	MinThumbnailPromptLength     = 10
	MaxThumbnailPromptLength     = 1000
)

func checkLen(value string, max int, field string) string {
	if utf8.RuneCountInString(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Name(s string) string        { return checkLen(s, MaxNameLength, "name") }
func Title(s string) string       { return checkLen(s, MaxTitleLength, "title") }
func Description(s string) string { return checkLen(s, MaxDescriptionLength, "description") }
func Comment(s string) string     { return checkLen(s, MaxCommentLength, "comment") }
func PlaylistName(s string) string {
	return checkLen(s, MaxPlaylistNameLength, "playlist name")
}
func PlaylistDescription(s string) string {
	return checkLen(s, MaxPlaylistDescriptionLength, "playlist description")
}

func ThumbnailPrompt(s string) string {
	if utf8.RuneCountInString(s) < MinThumbnailPromptLength {
		return fmt.Sprintf("prompt must be at least %d characters", MinThumbnailPromptLength)
	}
	return checkLen(s, MaxThumbnailPromptLength, "prompt")
}

// ID reports whether s is a well-formed UUID. Path parameters are checked
// before they reach a uuid column so malformed input is a 400, not a 500.
func ID(s string) bool {
	return uuid.Validate(s) == nil
}

// FieldLimits returns field names mapped to max lengths for clients.
func FieldLimits() map[string]int {
	return map[string]int{
		"name":                MaxNameLength,
		"title":               MaxTitleLength,
		"description":         MaxDescriptionLength,
		"comment":             MaxCommentLength,
		"playlistName":        MaxPlaylistNameLength,
		"playlistDescription": MaxPlaylistDescriptionLength,
		"thumbnailPrompt":     MaxThumbnailPromptLength,
	}
}
