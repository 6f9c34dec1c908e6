package database

import (
	"sort"
	"sync"
	"time"

	"github.com/festbuddy/offlinebox/internal/model"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// errNotFound is the memory client's not found error.
var errNotFound = errors.New("not found")

// memory is the degraded-mode Client used when the durable engine cannot be
// opened. Records live for the process lifetime only; the application keeps
// working, just without durability.
type memory struct {
	mu    sync.RWMutex
	quota int64
	seq   int64

	posts    map[string]*model.PostDraft
	comments map[string]*model.CommentDraft
	items    map[string]*model.SyncItem
	order    map[string]int64 // sync item insertion order
	meta     map[string]*model.Metadata
}

// NewMemory returns an in-memory Client sharing the durable Client contract.
func NewMemory(quotaBytes int64) Client {
	return &memory{
		quota:    quotaBytes,
		posts:    make(map[string]*model.PostDraft),
		comments: make(map[string]*model.CommentDraft),
		items:    make(map[string]*model.SyncItem),
		order:    make(map[string]int64),
		meta:     make(map[string]*model.Metadata),
	}
}

// Save inserts or updates the entry with the given model.
// UpdatedAt is stamped when the writer has not set it for this write.
func (c *memory) Save(m model.Model) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := time.Now().UTC()
	if m.GetUpdatedAt() == nil {
		m.SetUpdatedAt(t)
	}

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
		m.SetCreatedAt(t)
	}

	switch v := m.(type) {
	case *model.PostDraft:
		clone := *v
		c.posts[v.ID] = &clone
	case *model.CommentDraft:
		clone := *v
		c.comments[v.ID] = &clone
	case *model.SyncItem:
		if _, ok := c.order[v.ID]; !ok {
			c.seq++
			c.order[v.ID] = c.seq
		}
		clone := *v
		c.items[v.ID] = &clone
	default:
		return errors.Errorf("unsupported model %T", m)
	}
	return nil
}

// Close is a no-op for the memory client.
func (c *memory) Close() error {
	return nil
}

// IsNotFound returns true if err is a not found error.
func (c *memory) IsNotFound(err error) bool {
	return errors.Cause(err) == errNotFound
}

// EstimateUsage reports zero used bytes; there is nothing durable to measure.
func (c *memory) EstimateUsage() Usage {
	return Usage{QuotaBytes: c.quota}
}

// FindPostDraft returns the post draft for the given id.
func (c *memory) FindPostDraft(id string) (*model.PostDraft, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	draft, ok := c.posts[id]
	if !ok {
		return nil, errors.Wrap(errNotFound, "could not find post draft")
	}
	clone := *draft
	return &clone, nil
}

// FindPostDraftsByOwner returns all post drafts for the given owner key.
func (c *memory) FindPostDraftsByOwner(ownerKey string) ([]*model.PostDraft, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	drafts := make([]*model.PostDraft, 0)
	for _, draft := range c.posts {
		if draft.OwnerKey == ownerKey {
			clone := *draft
			drafts = append(drafts, &clone)
		}
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[j].UpdatedAt.Before(*drafts[i].UpdatedAt)
	})
	return drafts, nil
}

// FindPostDraftByOwnerAndEvent returns the post draft targeting the given
// event for the given owner key.
func (c *memory) FindPostDraftByOwnerAndEvent(ownerKey, eventID string) (*model.PostDraft, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, draft := range c.posts {
		if draft.OwnerKey == ownerKey && draft.EventID == eventID {
			clone := *draft
			return &clone, nil
		}
	}
	return nil, errors.Wrap(errNotFound, "could not find post draft by owner and event")
}

// FindCommentDraft returns the comment draft for the given id.
func (c *memory) FindCommentDraft(id string) (*model.CommentDraft, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	draft, ok := c.comments[id]
	if !ok {
		return nil, errors.Wrap(errNotFound, "could not find comment draft")
	}
	clone := *draft
	return &clone, nil
}

// FindCommentDraftsByOwner returns all comment drafts for the given owner key.
func (c *memory) FindCommentDraftsByOwner(ownerKey string) ([]*model.CommentDraft, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	drafts := make([]*model.CommentDraft, 0)
	for _, draft := range c.comments {
		if draft.OwnerKey == ownerKey {
			clone := *draft
			drafts = append(drafts, &clone)
		}
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[j].UpdatedAt.Before(*drafts[i].UpdatedAt)
	})
	return drafts, nil
}

// FindCommentDraftsByOwnerAndPost returns all comment drafts targeting the
// given post for the given owner key.
func (c *memory) FindCommentDraftsByOwnerAndPost(ownerKey, postID string) ([]*model.CommentDraft, error) {
	drafts, err := c.FindCommentDraftsByOwner(ownerKey)
	if err != nil {
		return nil, err
	}

	var n int
	for _, draft := range drafts {
		if draft.PostID == postID {
			drafts[n] = draft
			n++
		}
	}
	return drafts[:n], nil
}

// DeletePostDraft deletes the post draft for the given id.
func (c *memory) DeletePostDraft(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.posts, id)
	return nil
}

// DeleteCommentDraft deletes the comment draft for the given id.
func (c *memory) DeleteCommentDraft(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.comments, id)
	return nil
}

// DeleteExpiredDrafts deletes all drafts of both kinds whose expiry predates
// the given time.
func (c *memory) DeleteExpiredDrafts(before time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	for id, draft := range c.posts {
		if draft.ExpiresAt.Before(before) {
			delete(c.posts, id)
			count++
		}
	}
	for id, draft := range c.comments {
		if draft.ExpiresAt.Before(before) {
			delete(c.comments, id)
			count++
		}
	}
	return count, nil
}

// CountDraftsByOwner returns the number of drafts of both kinds for the given owner key.
func (c *memory) CountDraftsByOwner(ownerKey string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	for _, draft := range c.posts {
		if draft.OwnerKey == ownerKey {
			count++
		}
	}
	for _, draft := range c.comments {
		if draft.OwnerKey == ownerKey {
			count++
		}
	}
	return count, nil
}

// FindSyncItem returns the sync item for the given id.
func (c *memory) FindSyncItem(id string) (*model.SyncItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, errors.Wrap(errNotFound, "could not find sync item")
	}
	clone := *item
	return &clone, nil
}

// FindSyncItemsByStatus returns all sync items with the given status, in insertion order.
func (c *memory) FindSyncItemsByStatus(status model.SyncStatus) ([]*model.SyncItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]*model.SyncItem, 0)
	for _, item := range c.items {
		if item.Status == status {
			clone := *item
			items = append(items, &clone)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return c.order[items[i].ID] < c.order[items[j].ID]
	})
	return items, nil
}

// CountSyncItems returns the total number of sync items.
func (c *memory) CountSyncItems() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items), nil
}

// CountSyncItemsByStatus returns the number of sync items with the given status.
func (c *memory) CountSyncItemsByStatus(status model.SyncStatus) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	for _, item := range c.items {
		if item.Status == status {
			count++
		}
	}
	return count, nil
}

// CountSyncItemsByOwnerAndStatus returns the number of sync items with the
// given status for the given owner key.
func (c *memory) CountSyncItemsByOwnerAndStatus(ownerKey string, status model.SyncStatus) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	for _, item := range c.items {
		if item.OwnerKey == ownerKey && item.Status == status {
			count++
		}
	}
	return count, nil
}

// DeleteSyncItem deletes the sync item for the given id.
func (c *memory) DeleteSyncItem(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, id)
	delete(c.order, id)
	return nil
}

// DeleteCompletedSyncItems deletes all completed sync items.
func (c *memory) DeleteCompletedSyncItems() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	for id, item := range c.items {
		if item.Status == model.SyncCompleted {
			delete(c.items, id)
			delete(c.order, id)
			count++
		}
	}
	return count, nil
}

// ClearSyncItems unconditionally empties the sync queue.
func (c *memory) ClearSyncItems() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.items)
	c.items = make(map[string]*model.SyncItem)
	c.order = make(map[string]int64)
	return count, nil
}

// SetMetadata upserts the metadata record for the given key.
func (c *memory) SetMetadata(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.meta[key] = &model.Metadata{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// GetMetadata returns the metadata record for the given key.
func (c *memory) GetMetadata(key string) (*model.Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.meta[key]
	if !ok {
		return nil, errors.Wrap(errNotFound, "could not get metadata")
	}
	clone := *m
	return &clone, nil
}
