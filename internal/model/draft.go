package model

import (
	"strings"
	"time"
)

// A Kind discriminates the two draft variants.
type Kind string

// Draft kinds.
const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

type (
	// A Draft is locally-persisted, not-yet-submitted user content.
	// Post and comment drafts live in distinct buckets so a record can never
	// be retrieved through the accessors of the other kind.
	Draft interface {
		Model
		// GetKind returns the draft variant tag.
		GetKind() Kind
		// GetOwnerKey returns the normalized owner index key.
		GetOwnerKey() string
		// GetExpiresAt returns the draft expiry date.
		GetExpiresAt() time.Time
		// SetExpiresAt defines the draft expiry date.
		SetExpiresAt(time.Time)
		// Empty returns true when the draft holds no content worth keeping.
		Empty() bool
	}

	// A DraftMeta contains the envelope fields shared by both draft variants.
	// ExpiresAt slides forward on every write.
	DraftMeta struct {
		OwnerKey  string    `json:"owner_key"  msgpack:"owner_key"  storm:"index"`
		ExpiresAt time.Time `json:"expires_at" msgpack:"expires_at" storm:"index"`
	}

	// A PostDraft represents an in-progress post composer state.
	PostDraft struct {
		Base      `msgpack:",inline" storm:"inline"`
		DraftMeta `msgpack:",inline" storm:"inline"`

		EventID   string     `json:"event_id,omitempty"   msgpack:"event_id" storm:"index"`
		PostType  string     `json:"post_type,omitempty"  msgpack:"post_type"`
		Content   string     `json:"content"              msgpack:"content"`
		MeetTime  *time.Time `json:"meet_time,omitempty"  msgpack:"meet_time"`
		PlaceText string     `json:"place_text,omitempty" msgpack:"place_text"`
		PlaceHint string     `json:"place_hint,omitempty" msgpack:"place_hint"`
		MaxPeople int        `json:"max_people,omitempty" msgpack:"max_people"`
		VideoURL  string     `json:"video_url,omitempty"  msgpack:"video_url"`
		Rating    int        `json:"rating,omitempty"     msgpack:"rating"`
		ImageURLs []string   `json:"image_urls,omitempty" msgpack:"image_urls"`
	}

	// A CommentDraft represents an in-progress comment box state.
	CommentDraft struct {
		Base      `msgpack:",inline" storm:"inline"`
		DraftMeta `msgpack:",inline" storm:"inline"`

		PostID   string `json:"post_id"             msgpack:"post_id" storm:"index"`
		ParentID string `json:"parent_id,omitempty" msgpack:"parent_id"`
		Content  string `json:"content"             msgpack:"content"`
	}
)

// GetOwnerKey returns the normalized owner index key.
func (m *DraftMeta) GetOwnerKey() string {
	return m.OwnerKey
}

// GetExpiresAt returns the draft expiry date.
func (m *DraftMeta) GetExpiresAt() time.Time {
	return m.ExpiresAt
}

// SetExpiresAt defines the draft expiry date.
func (m *DraftMeta) SetExpiresAt(t time.Time) {
	m.ExpiresAt = t
}

// GetKind returns the draft variant tag.
func (d *PostDraft) GetKind() Kind {
	return KindPost
}

// Empty returns true when the draft has blank content and no meeting time,
// place, video or images. Callers use it to discard no-op drafts on close.
func (d *PostDraft) Empty() bool {
	return strings.TrimSpace(d.Content) == "" &&
		d.MeetTime == nil &&
		d.PlaceText == "" &&
		d.VideoURL == "" &&
		len(d.ImageURLs) == 0
}

// GetKind returns the draft variant tag.
func (d *CommentDraft) GetKind() Kind {
	return KindComment
}

// Empty returns true when the draft has blank content.
func (d *CommentDraft) Empty() bool {
	return strings.TrimSpace(d.Content) == ""
}
