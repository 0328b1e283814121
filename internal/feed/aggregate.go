package feed

// Reactions describes the like/dislike table attached to a record source.
type Reactions struct {
	Table   string // e.g. "video_reactions"
	Subject string // column referencing the record, e.g. "video_id"
	Target  string // record id in the outer query, e.g. "v.id"
}

// Replies describes the self-reference used to count child records.
type Replies struct {
	Table  string // e.g. "comments"
	Parent string // e.g. "parent_id"
	Target string // e.g. "c.id"
}

// LikeCount counts every "like" on the record, regardless of viewer.
func LikeCount(r Reactions) string {
	return ReactionCount(r, "like")
}

// DislikeCount counts every "dislike" on the record, regardless of viewer.
func DislikeCount(r Reactions) string {
	return ReactionCount(r, "dislike")
}

// ReactionCount counts reactions of one kind on the record. kind is a
// fixed reaction type, never user input.
func ReactionCount(r Reactions, kind string) string {
	return "(SELECT COUNT(*) FROM " + r.Table + " rx WHERE rx." + r.Subject + " = " + r.Target +
		" AND rx.type = '" + kind + "')"
}

// ViewerReaction selects the viewer's own reaction type. Anonymous viewers get
// a typed NULL so the column layout stays the same.
func ViewerReaction(b *Binder, r Reactions, viewerID string) string {
	if viewerID == "" {
		return "NULL::text"
	}
	return "(SELECT rx.type FROM " + r.Table + " rx WHERE rx." + r.Subject + " = " + r.Target +
		" AND rx.user_id = " + b.Bind(viewerID) + ")"
}

// ReplyCount counts direct children of the record.
func ReplyCount(r Replies) string {
	return "(SELECT COUNT(*) FROM " + r.Table + " rp WHERE rp." + r.Parent + " = " + r.Target + ")"
}

// Annotations are the per-record aggregates appended to every row.
// Embed it in a record type so the fields are flattened in JSON.
type Annotations struct {
	ViewerReaction *string `json:"viewerReaction,omitempty"`
	LikeCount      int64   `json:"likeCount"`
	DislikeCount   int64   `json:"dislikeCount"`
	ReplyCount     *int64  `json:"replyCount,omitempty"`
}
