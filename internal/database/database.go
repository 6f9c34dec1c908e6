package database

import (
	"time"

	"github.com/festbuddy/offlinebox/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Save inserts or updates the entry in database with the given model.
		Save(m model.Model) error
		// Close the database.
		Close() error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool
		// EstimateUsage returns a best-effort storage usage report.
		// It never fails; when the engine cannot report, it returns
		// zero used bytes and the configured quota.
		EstimateUsage() Usage

		DraftInteraction
		SyncItemInteraction
		MetadataInteraction
	}

	// A DraftInteraction defines all the methods used to interact with draft records.
	// Post and comment drafts are separate buckets; an id of one kind is a
	// not found error through the accessors of the other kind.
	DraftInteraction interface {
		// FindPostDraft returns the post draft for the given id (UUID).
		FindPostDraft(id string) (*model.PostDraft, error)
		// FindPostDraftsByOwner returns all post drafts for the given owner key.
		FindPostDraftsByOwner(ownerKey string) ([]*model.PostDraft, error)
		// FindPostDraftByOwnerAndEvent returns the post draft targeting the
		// given event for the given owner key.
		FindPostDraftByOwnerAndEvent(ownerKey, eventID string) (*model.PostDraft, error)
		// FindCommentDraft returns the comment draft for the given id (UUID).
		FindCommentDraft(id string) (*model.CommentDraft, error)
		// FindCommentDraftsByOwner returns all comment drafts for the given owner key.
		FindCommentDraftsByOwner(ownerKey string) ([]*model.CommentDraft, error)
		// FindCommentDraftsByOwnerAndPost returns all comment drafts targeting
		// the given post for the given owner key.
		FindCommentDraftsByOwnerAndPost(ownerKey, postID string) ([]*model.CommentDraft, error)
		// DeletePostDraft deletes the post draft for the given id.
		// Deleting an absent id is not an error.
		DeletePostDraft(id string) error
		// DeleteCommentDraft deletes the comment draft for the given id.
		// Deleting an absent id is not an error.
		DeleteCommentDraft(id string) error
		// DeleteExpiredDrafts deletes all drafts of both kinds whose expiry
		// predates the given time and returns how many were removed.
		DeleteExpiredDrafts(before time.Time) (int, error)
		// CountDraftsByOwner returns the number of drafts of both kinds for
		// the given owner key.
		CountDraftsByOwner(ownerKey string) (int, error)
	}

	// A SyncItemInteraction defines all the methods used to interact with sync queue records.
	SyncItemInteraction interface {
		// FindSyncItem returns the sync item for the given id (UUID).
		FindSyncItem(id string) (*model.SyncItem, error)
		// FindSyncItemsByStatus returns all sync items with the given status,
		// in insertion order.
		FindSyncItemsByStatus(status model.SyncStatus) ([]*model.SyncItem, error)
		// CountSyncItems returns the total number of sync items.
		CountSyncItems() (int, error)
		// CountSyncItemsByStatus returns the number of sync items with the given status.
		CountSyncItemsByStatus(status model.SyncStatus) (int, error)
		// CountSyncItemsByOwnerAndStatus returns the number of sync items with
		// the given status for the given owner key.
		CountSyncItemsByOwnerAndStatus(ownerKey string, status model.SyncStatus) (int, error)
		// DeleteSyncItem deletes the sync item for the given id.
		// Deleting an absent id is not an error.
		DeleteSyncItem(id string) error
		// DeleteCompletedSyncItems deletes all completed sync items and
		// returns how many were removed.
		DeleteCompletedSyncItems() (int, error)
		// ClearSyncItems unconditionally empties the sync queue and returns
		// how many items were removed.
		ClearSyncItems() (int, error)
	}

	// A MetadataInteraction defines all the methods used to interact with keyed
	// singleton metadata records.
	MetadataInteraction interface {
		// SetMetadata upserts the metadata record for the given key.
		SetMetadata(key, value string) error
		// GetMetadata returns the metadata record for the given key.
		GetMetadata(key string) (*model.Metadata, error)
	}
)

// An Usage is a best-effort storage usage report.
type Usage struct {
	UsedBytes  int64 `json:"used_bytes"`
	QuotaBytes int64 `json:"quota_bytes"`
}

// Ratio returns used over quota, in [0, 1] when a quota is configured.
func (u Usage) Ratio() float64 {
	if u.QuotaBytes <= 0 {
		return 0
	}
	return float64(u.UsedBytes) / float64(u.QuotaBytes)
}
