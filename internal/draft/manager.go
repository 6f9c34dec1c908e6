// Package draft is the typed facade over the database for the two draft
// variants. It owns lifecycle policy: id assignment, sliding expiry and
// owner scoping.
package draft

import (
	"time"

	"github.com/festbuddy/offlinebox/internal/database"
	"github.com/festbuddy/offlinebox/internal/model"
	"github.com/festbuddy/offlinebox/internal/oberror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	// A Manager handles drafts on top of a database Client.
	Manager struct {
		db        database.Client
		retention time.Duration
		log       logrus.FieldLogger
	}

	// PostFields are the editable fields of a post draft. Nil pointers leave
	// the stored value untouched; the merged record is persisted atomically.
	PostFields struct {
		EventID   *string
		PostType  *string
		Content   *string
		MeetTime  *time.Time
		PlaceText *string
		PlaceHint *string
		MaxPeople *int
		VideoURL  *string
		Rating    *int
		ImageURLs []string
	}

	// CommentFields are the editable fields of a comment draft.
	CommentFields struct {
		PostID   *string
		ParentID *string
		Content  *string
	}
)

// NewManager returns a new draft Manager. Every write pushes the draft
// expiry to now plus retention.
func NewManager(db database.Client, retention time.Duration, log logrus.FieldLogger) *Manager {
	return &Manager{
		db:        db,
		retention: retention,
		log:       log,
	}
}

func (f PostFields) apply(d *model.PostDraft) {
	if f.EventID != nil {
		d.EventID = *f.EventID
	}
	if f.PostType != nil {
		d.PostType = *f.PostType
	}
	if f.Content != nil {
		d.Content = *f.Content
	}
	if f.MeetTime != nil {
		t := *f.MeetTime
		d.MeetTime = &t
	}
	if f.PlaceText != nil {
		d.PlaceText = *f.PlaceText
	}
	if f.PlaceHint != nil {
		d.PlaceHint = *f.PlaceHint
	}
	if f.MaxPeople != nil {
		d.MaxPeople = *f.MaxPeople
	}
	if f.VideoURL != nil {
		d.VideoURL = *f.VideoURL
	}
	if f.Rating != nil {
		d.Rating = *f.Rating
	}
	if f.ImageURLs != nil {
		d.ImageURLs = append([]string(nil), f.ImageURLs...)
	}
}

func (f CommentFields) apply(d *model.CommentDraft) {
	if f.PostID != nil {
		d.PostID = *f.PostID
	}
	if f.ParentID != nil {
		d.ParentID = *f.ParentID
	}
	if f.Content != nil {
		d.Content = *f.Content
	}
}

// stamp applies the sliding expiry: saved-at and expiry derive from the same
// clock read so expiry always equals saved-at plus retention.
func (m *Manager) stamp(d model.Draft) {
	now := time.Now().UTC()
	d.SetUpdatedAt(now)
	d.SetExpiresAt(now.Add(m.retention))
}

// CreatePostDraft persists a new post draft for the given owner.
func (m *Manager) CreatePostDraft(ownerID *string, fields PostFields) (*model.PostDraft, error) {
	draft := &model.PostDraft{}
	draft.OwnerKey = model.NormalizeOwnerKey(ownerID)
	fields.apply(draft)
	m.stamp(draft)

	if err := m.db.Save(draft); err != nil {
		return nil, errors.Wrap(err, "could not create post draft")
	}

	m.log.WithFields(logrus.Fields{"id": draft.ID, "owner": draft.OwnerKey}).Debug("post draft created")
	return draft, nil
}

// CreateCommentDraft persists a new comment draft for the given owner.
func (m *Manager) CreateCommentDraft(ownerID *string, fields CommentFields) (*model.CommentDraft, error) {
	draft := &model.CommentDraft{}
	draft.OwnerKey = model.NormalizeOwnerKey(ownerID)
	fields.apply(draft)
	m.stamp(draft)

	if err := m.db.Save(draft); err != nil {
		return nil, errors.Wrap(err, "could not create comment draft")
	}

	m.log.WithFields(logrus.Fields{"id": draft.ID, "owner": draft.OwnerKey}).Debug("comment draft created")
	return draft, nil
}

// UpdatePostDraft merges fields into the stored post draft and restamps its
// expiry. The stored record is re-read before writing; the write replaces
// the full record.
func (m *Manager) UpdatePostDraft(id string, fields PostFields) (*model.PostDraft, error) {
	draft, err := m.db.FindPostDraft(id)
	if err != nil {
		if m.db.IsNotFound(err) {
			if _, cerr := m.db.FindCommentDraft(id); cerr == nil {
				return nil, oberror.KindMismatch(string(model.KindPost), string(model.KindComment))
			}
			return nil, oberror.NotFound("post draft")
		}
		return nil, err
	}

	fields.apply(draft)
	m.stamp(draft)

	if err := m.db.Save(draft); err != nil {
		return nil, errors.Wrap(err, "could not update post draft")
	}
	return draft, nil
}

// UpdateCommentDraft merges fields into the stored comment draft and
// restamps its expiry.
func (m *Manager) UpdateCommentDraft(id string, fields CommentFields) (*model.CommentDraft, error) {
	draft, err := m.db.FindCommentDraft(id)
	if err != nil {
		if m.db.IsNotFound(err) {
			if _, perr := m.db.FindPostDraft(id); perr == nil {
				return nil, oberror.KindMismatch(string(model.KindComment), string(model.KindPost))
			}
			return nil, oberror.NotFound("comment draft")
		}
		return nil, err
	}

	fields.apply(draft)
	m.stamp(draft)

	if err := m.db.Save(draft); err != nil {
		return nil, errors.Wrap(err, "could not update comment draft")
	}
	return draft, nil
}

// GetOrCreatePostDraft resumes the draft an owner already has for the given
// event, without restamping it. A new draft is created only when none exists,
// so reopening a composer never forks a duplicate.
func (m *Manager) GetOrCreatePostDraft(ownerID *string, eventID string) (*model.PostDraft, error) {
	ownerKey := model.NormalizeOwnerKey(ownerID)

	draft, err := m.db.FindPostDraftByOwnerAndEvent(ownerKey, eventID)
	if err == nil {
		return draft, nil
	}
	if !m.db.IsNotFound(err) {
		return nil, err
	}

	return m.CreatePostDraft(ownerID, PostFields{EventID: &eventID})
}

// ListPostDrafts returns all post drafts of the given owner.
func (m *Manager) ListPostDrafts(ownerID *string) ([]*model.PostDraft, error) {
	return m.db.FindPostDraftsByOwner(model.NormalizeOwnerKey(ownerID))
}

// ListCommentDrafts returns all comment drafts of the given owner, optionally
// restricted to one target post.
func (m *Manager) ListCommentDrafts(ownerID *string, postID string) ([]*model.CommentDraft, error) {
	ownerKey := model.NormalizeOwnerKey(ownerID)
	if postID == "" {
		return m.db.FindCommentDraftsByOwner(ownerKey)
	}
	return m.db.FindCommentDraftsByOwnerAndPost(ownerKey, postID)
}

// Remove hard-deletes the draft with the given id, whatever its kind.
// Removing an absent id is not an error.
func (m *Manager) Remove(id string) error {
	if err := m.db.DeletePostDraft(id); err != nil {
		return errors.Wrap(err, "could not remove post draft")
	}
	return errors.Wrap(m.db.DeleteCommentDraft(id), "could not remove comment draft")
}

// SweepExpired deletes every draft whose expiry has passed and returns how
// many were removed.
func (m *Manager) SweepExpired(now time.Time) (int, error) {
	count, err := m.db.DeleteExpiredDrafts(now)
	if err != nil {
		return count, errors.Wrap(err, "could not sweep expired drafts")
	}
	if count > 0 {
		m.log.WithField("count", count).Info("expired drafts swept")
	}
	return count, nil
}

// Count returns the number of drafts of both kinds for the given owner.
func (m *Manager) Count(ownerID *string) (int, error) {
	return m.db.CountDraftsByOwner(model.NormalizeOwnerKey(ownerID))
}
