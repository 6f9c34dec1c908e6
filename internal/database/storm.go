package database

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/msgpack"
	"github.com/asdine/storm/v3/q"
	"github.com/festbuddy/offlinebox/internal/model"
	"github.com/festbuddy/offlinebox/internal/oberror"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

type strm struct {
	path  string
	quota int64

	mu sync.Mutex
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(msgpack.Codec)

// StormInit initializes Storm database.
func StormInit(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	if err := db.Init(&model.PostDraft{}); err != nil {
		return errors.Wrap(err, "could not init post draft index")
	}

	if err := db.Init(&model.CommentDraft{}); err != nil {
		return errors.Wrap(err, "could not init comment draft index")
	}

	if err := db.Init(&model.SyncItem{}); err != nil {
		return errors.Wrap(err, "could not init sync item index")
	}

	err = writeSchemaVersion(db)
	return errors.Wrap(err, "could not write schema version")
}

// StormReIndex reindex Storm database.
func StormReIndex(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	if err := db.ReIndex(&model.PostDraft{}); err != nil {
		return errors.Wrap(err, "could not ReIndex post drafts")
	}

	if err := db.ReIndex(&model.CommentDraft{}); err != nil {
		return errors.Wrap(err, "could not ReIndex comment drafts")
	}

	err = db.ReIndex(&model.SyncItem{})
	return errors.Wrap(err, "could not ReIndex sync items")
}

// StormOpen returns a new Storm database client. The connection is opened
// lazily on first use and reopened after a Close, so one client can span
// the whole process lifetime.
func StormOpen(database string, quotaBytes int64) Client {
	return &strm{
		path:  database,
		quota: quotaBytes,
	}
}

// session returns the open database handle, opening it when needed.
// Open failures are normalized: callers see a storage-unavailable error,
// never a raw engine error.
func (c *strm) session() (*storm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db, nil
	}

	db, err := storm.Open(c.path, StormCodec)
	if err != nil {
		return nil, oberror.StorageUnavailable(err)
	}

	if err := checkSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	// Best-effort durability request, akin to asking the platform for
	// persistent storage.
	_ = db.Bolt.Sync()

	c.db = db
	return db, nil
}

func writeSchemaVersion(db *storm.DB) error {
	return db.Set(model.MetadataBucket, model.SchemaVersionKey, &model.Metadata{
		Key:       model.SchemaVersionKey,
		Value:     strconv.Itoa(model.SchemaVersion),
		UpdatedAt: time.Now().UTC(),
	})
}

func checkSchemaVersion(db *storm.DB) error {
	var m model.Metadata
	err := db.Get(model.MetadataBucket, model.SchemaVersionKey, &m)
	if err == storm.ErrNotFound {
		return errors.Wrap(writeSchemaVersion(db), "could not stamp schema version")
	}
	if err != nil {
		return oberror.StorageUnavailable(err)
	}

	version, err := strconv.Atoi(m.Value)
	if err != nil {
		return oberror.StorageUnavailable(errors.Wrap(err, "corrupted schema version"))
	}
	if version > model.SchemaVersion {
		// Written by a newer release. Refuse to touch it rather than guess
		// at a migration.
		return oberror.StorageUnavailable(errors.Errorf("unsupported schema version %d", version))
	}
	return nil
}

// Save inserts or updates the entry in database with the given model.
// UpdatedAt is stamped when the writer has not set it for this write.
func (c *strm) Save(m model.Model) error {
	db, err := c.session()
	if err != nil {
		return err
	}

	t := time.Now().UTC()
	if m.GetUpdatedAt() == nil {
		m.SetUpdatedAt(t)
	}

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
		m.SetCreatedAt(t)
	}

	return errors.Wrap(db.Save(m), "could not save the model")
}

// Close the database. A later operation transparently reopens it.
func (c *strm) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return errors.Wrap(err, "could not close the database")
}

// IsNotFound returns true if err is a not found error.
func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

// EstimateUsage returns the size of the database file against the configured
// quota. It never fails; a stat error reports zero used bytes.
func (c *strm) EstimateUsage() Usage {
	usage := Usage{QuotaBytes: c.quota}
	if fi, err := os.Stat(c.path); err == nil {
		usage.UsedBytes = fi.Size()
	}
	return usage
}

// FindPostDraft returns the post draft for the given id (UUID).
func (c *strm) FindPostDraft(id string) (*model.PostDraft, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	var draft model.PostDraft
	if err := db.One("ID", id, &draft); err != nil {
		return nil, errors.Wrap(err, "could not find post draft")
	}
	return &draft, nil
}

// FindPostDraftsByOwner returns all post drafts for the given owner key.
func (c *strm) FindPostDraftsByOwner(ownerKey string) ([]*model.PostDraft, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	drafts := make([]*model.PostDraft, 0)
	err = db.Select(q.Eq("OwnerKey", ownerKey)).OrderBy("UpdatedAt").Reverse().Find(&drafts)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find post drafts by owner")
	}
	return drafts, nil
}

// FindPostDraftByOwnerAndEvent returns the post draft targeting the given
// event for the given owner key.
func (c *strm) FindPostDraftByOwnerAndEvent(ownerKey, eventID string) (*model.PostDraft, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	var draft model.PostDraft
	err = db.Select(q.Eq("OwnerKey", ownerKey), q.Eq("EventID", eventID)).First(&draft)
	if err != nil {
		return nil, errors.Wrap(err, "could not find post draft by owner and event")
	}
	return &draft, nil
}

// FindCommentDraft returns the comment draft for the given id (UUID).
func (c *strm) FindCommentDraft(id string) (*model.CommentDraft, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	var draft model.CommentDraft
	if err := db.One("ID", id, &draft); err != nil {
		return nil, errors.Wrap(err, "could not find comment draft")
	}
	return &draft, nil
}

// FindCommentDraftsByOwner returns all comment drafts for the given owner key.
func (c *strm) FindCommentDraftsByOwner(ownerKey string) ([]*model.CommentDraft, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	drafts := make([]*model.CommentDraft, 0)
	err = db.Select(q.Eq("OwnerKey", ownerKey)).OrderBy("UpdatedAt").Reverse().Find(&drafts)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find comment drafts by owner")
	}
	return drafts, nil
}

// FindCommentDraftsByOwnerAndPost returns all comment drafts targeting the
// given post for the given owner key.
func (c *strm) FindCommentDraftsByOwnerAndPost(ownerKey, postID string) ([]*model.CommentDraft, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	drafts := make([]*model.CommentDraft, 0)
	err = db.Select(q.Eq("OwnerKey", ownerKey), q.Eq("PostID", postID)).OrderBy("UpdatedAt").Reverse().Find(&drafts)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find comment drafts by owner and post")
	}
	return drafts, nil
}

// DeletePostDraft deletes the post draft for the given id.
func (c *strm) DeletePostDraft(id string) error {
	db, err := c.session()
	if err != nil {
		return err
	}

	var draft model.PostDraft
	if err := db.One("ID", id, &draft); err != nil {
		if c.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "could not find post draft for deletion")
	}
	return errors.Wrap(db.DeleteStruct(&draft), "could not delete post draft")
}

// DeleteCommentDraft deletes the comment draft for the given id.
func (c *strm) DeleteCommentDraft(id string) error {
	db, err := c.session()
	if err != nil {
		return err
	}

	var draft model.CommentDraft
	if err := db.One("ID", id, &draft); err != nil {
		if c.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "could not find comment draft for deletion")
	}
	return errors.Wrap(db.DeleteStruct(&draft), "could not delete comment draft")
}

// DeleteExpiredDrafts deletes all drafts of both kinds whose expiry predates
// the given time and returns how many were removed.
func (c *strm) DeleteExpiredDrafts(before time.Time) (int, error) {
	db, err := c.session()
	if err != nil {
		return 0, err
	}

	var count int

	posts := make([]*model.PostDraft, 0)
	err = db.Select(q.Lt("ExpiresAt", before)).Find(&posts)
	if err != nil && !c.IsNotFound(err) {
		return 0, errors.Wrap(err, "could not find expired post drafts")
	}
	for _, draft := range posts {
		if err := db.DeleteStruct(draft); err != nil {
			return count, errors.Wrap(err, "could not delete expired post draft")
		}
		count++
	}

	comments := make([]*model.CommentDraft, 0)
	err = db.Select(q.Lt("ExpiresAt", before)).Find(&comments)
	if err != nil && !c.IsNotFound(err) {
		return count, errors.Wrap(err, "could not find expired comment drafts")
	}
	for _, draft := range comments {
		if err := db.DeleteStruct(draft); err != nil {
			return count, errors.Wrap(err, "could not delete expired comment draft")
		}
		count++
	}

	return count, nil
}

// CountDraftsByOwner returns the number of drafts of both kinds for the given owner key.
func (c *strm) CountDraftsByOwner(ownerKey string) (int, error) {
	db, err := c.session()
	if err != nil {
		return 0, err
	}

	posts, err := db.Select(q.Eq("OwnerKey", ownerKey)).Count(&model.PostDraft{})
	if err != nil {
		return 0, errors.Wrap(err, "could not count post drafts")
	}

	comments, err := db.Select(q.Eq("OwnerKey", ownerKey)).Count(&model.CommentDraft{})
	if err != nil {
		return 0, errors.Wrap(err, "could not count comment drafts")
	}

	return posts + comments, nil
}

// FindSyncItem returns the sync item for the given id (UUID).
func (c *strm) FindSyncItem(id string) (*model.SyncItem, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	var item model.SyncItem
	if err := db.One("ID", id, &item); err != nil {
		return nil, errors.Wrap(err, "could not find sync item")
	}
	return &item, nil
}

// FindSyncItemsByStatus returns all sync items with the given status, in insertion order.
func (c *strm) FindSyncItemsByStatus(status model.SyncStatus) ([]*model.SyncItem, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	items := make([]*model.SyncItem, 0)
	err = db.Select(q.Eq("Status", status)).OrderBy("CreatedAt").Find(&items)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find sync items by status")
	}
	return items, nil
}

// CountSyncItems returns the total number of sync items.
func (c *strm) CountSyncItems() (int, error) {
	db, err := c.session()
	if err != nil {
		return 0, err
	}

	count, err := db.Count(&model.SyncItem{})
	return count, errors.Wrap(err, "could not count sync items")
}

// CountSyncItemsByStatus returns the number of sync items with the given status.
func (c *strm) CountSyncItemsByStatus(status model.SyncStatus) (int, error) {
	db, err := c.session()
	if err != nil {
		return 0, err
	}

	count, err := db.Select(q.Eq("Status", status)).Count(&model.SyncItem{})
	return count, errors.Wrap(err, "could not count sync items by status")
}

// CountSyncItemsByOwnerAndStatus returns the number of sync items with the
// given status for the given owner key.
func (c *strm) CountSyncItemsByOwnerAndStatus(ownerKey string, status model.SyncStatus) (int, error) {
	db, err := c.session()
	if err != nil {
		return 0, err
	}

	count, err := db.Select(q.Eq("OwnerKey", ownerKey), q.Eq("Status", status)).Count(&model.SyncItem{})
	return count, errors.Wrap(err, "could not count sync items by owner and status")
}

// DeleteSyncItem deletes the sync item for the given id.
func (c *strm) DeleteSyncItem(id string) error {
	db, err := c.session()
	if err != nil {
		return err
	}

	var item model.SyncItem
	if err := db.One("ID", id, &item); err != nil {
		if c.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "could not find sync item for deletion")
	}
	return errors.Wrap(db.DeleteStruct(&item), "could not delete sync item")
}

// DeleteCompletedSyncItems deletes all completed sync items and returns how
// many were removed.
func (c *strm) DeleteCompletedSyncItems() (int, error) {
	db, err := c.session()
	if err != nil {
		return 0, err
	}

	items := make([]*model.SyncItem, 0)
	err = db.Select(q.Eq("Status", model.SyncCompleted)).Find(&items)
	if err != nil && !c.IsNotFound(err) {
		return 0, errors.Wrap(err, "could not find completed sync items")
	}

	var count int
	for _, item := range items {
		if err := db.DeleteStruct(item); err != nil {
			return count, errors.Wrap(err, "could not delete completed sync item")
		}
		count++
	}
	return count, nil
}

// ClearSyncItems unconditionally empties the sync queue.
func (c *strm) ClearSyncItems() (int, error) {
	db, err := c.session()
	if err != nil {
		return 0, err
	}

	count, err := db.Count(&model.SyncItem{})
	if err != nil {
		return 0, errors.Wrap(err, "could not count sync items")
	}
	if count == 0 {
		return 0, nil
	}

	if err := db.Drop(&model.SyncItem{}); err != nil {
		return 0, errors.Wrap(err, "could not drop sync items")
	}
	return count, errors.Wrap(db.Init(&model.SyncItem{}), "could not init sync item index")
}

// SetMetadata upserts the metadata record for the given key.
func (c *strm) SetMetadata(key, value string) error {
	db, err := c.session()
	if err != nil {
		return err
	}

	err = db.Set(model.MetadataBucket, key, &model.Metadata{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	})
	return errors.Wrap(err, "could not set metadata")
}

// GetMetadata returns the metadata record for the given key.
func (c *strm) GetMetadata(key string) (*model.Metadata, error) {
	db, err := c.session()
	if err != nil {
		return nil, err
	}

	var m model.Metadata
	if err := db.Get(model.MetadataBucket, key, &m); err != nil {
		return nil, errors.Wrap(err, "could not get metadata")
	}
	return &m, nil
}
