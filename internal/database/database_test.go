package database_test

import (
	"os"
	"testing"
	"time"

	"github.com/festbuddy/offlinebox/internal/database"
	"github.com/festbuddy/offlinebox/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (database.Client, func()) {
	tmpfile, err := os.CreateTemp("", "offlinebox.*.db")
	require.NoError(t, err)
	filename := tmpfile.Name()
	tmpfile.Close()

	db := database.StormOpen(filename, 1<<20)

	return db, func() {
		db.Close()
		os.RemoveAll(filename)
	}
}

// Exercised against both clients: the memory client must honor the same
// contract as the durable one, since it backs the degraded mode.
func clients(t *testing.T) map[string]struct {
	db      database.Client
	cleanup func()
} {
	storm, cleanup := setup(t)
	return map[string]struct {
		db      database.Client
		cleanup func()
	}{
		"storm":  {db: storm, cleanup: cleanup},
		"memory": {db: database.NewMemory(1 << 20), cleanup: func() {}},
	}
}

func savePostDraft(t *testing.T, db database.Client, owner, event, content string, expiresAt time.Time) *model.PostDraft {
	draft := &model.PostDraft{Content: content}
	draft.OwnerKey = owner
	draft.EventID = event
	draft.ExpiresAt = expiresAt
	require.NoError(t, db.Save(draft))
	return draft
}

func TestDraftRoundTrip(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			draft := savePostDraft(t, c.db, "u1", "e1", "hello", time.Now().Add(time.Hour))
			assert.NotEmpty(t, draft.ID)
			assert.NotNil(t, draft.CreatedAt)
			assert.NotNil(t, draft.UpdatedAt)

			found, err := c.db.FindPostDraft(draft.ID)
			require.NoError(t, err)
			assert.Equal(t, "hello", found.Content)
			assert.Equal(t, "u1", found.OwnerKey)
		})
	}
}

func TestDraftKindIsolation(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			comment := &model.CommentDraft{PostID: "p1", Content: "nice"}
			comment.OwnerKey = "u1"
			comment.ExpiresAt = time.Now().Add(time.Hour)
			require.NoError(t, c.db.Save(comment))

			// A comment id is invisible through the post accessors.
			_, err := c.db.FindPostDraft(comment.ID)
			assert.Error(t, err)
			assert.True(t, c.db.IsNotFound(err))
		})
	}
}

func TestDraftOwnerScoping(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			savePostDraft(t, c.db, "u1", "e1", "mine", time.Now().Add(time.Hour))
			savePostDraft(t, c.db, "u2", "e1", "theirs", time.Now().Add(time.Hour))
			savePostDraft(t, c.db, model.GuestOwnerKey, "e2", "guest", time.Now().Add(time.Hour))

			drafts, err := c.db.FindPostDraftsByOwner("u1")
			require.NoError(t, err)
			require.Len(t, drafts, 1)
			assert.Equal(t, "mine", drafts[0].Content)

			drafts, err = c.db.FindPostDraftsByOwner(model.GuestOwnerKey)
			require.NoError(t, err)
			require.Len(t, drafts, 1)
			assert.Equal(t, "guest", drafts[0].Content)

			count, err := c.db.CountDraftsByOwner("u1")
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestDraftDeleteIdempotent(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			draft := savePostDraft(t, c.db, "u1", "e1", "bye", time.Now().Add(time.Hour))

			assert.NoError(t, c.db.DeletePostDraft(draft.ID))
			assert.NoError(t, c.db.DeletePostDraft(draft.ID))
			assert.NoError(t, c.db.DeletePostDraft("no-such-id"))
		})
	}
}

func TestDeleteExpiredDrafts(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			now := time.Now().UTC()
			savePostDraft(t, c.db, "u1", "e1", "old", now.Add(-time.Hour))
			fresh := savePostDraft(t, c.db, "u1", "e2", "fresh", now.Add(time.Hour))

			stale := &model.CommentDraft{PostID: "p1", Content: "old comment"}
			stale.OwnerKey = "u1"
			stale.ExpiresAt = now.Add(-time.Minute)
			require.NoError(t, c.db.Save(stale))

			count, err := c.db.DeleteExpiredDrafts(now)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			_, err = c.db.FindPostDraft(fresh.ID)
			assert.NoError(t, err)
		})
	}
}

func TestSyncItemsByStatusInsertionOrder(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			for _, action := range []string{"create_post", "create_comment", "like_post"} {
				item := &model.SyncItem{Action: action, Status: model.SyncPending, OwnerKey: "u1", MaxRetries: 3}
				require.NoError(t, c.db.Save(item))
				time.Sleep(time.Millisecond) // distinct CreatedAt
			}

			items, err := c.db.FindSyncItemsByStatus(model.SyncPending)
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, "create_post", items[0].Action)
			assert.Equal(t, "like_post", items[2].Action)

			count, err := c.db.CountSyncItemsByStatus(model.SyncPending)
			require.NoError(t, err)
			assert.Equal(t, 3, count)

			count, err = c.db.CountSyncItemsByOwnerAndStatus("u2", model.SyncPending)
			require.NoError(t, err)
			assert.Equal(t, 0, count)
		})
	}
}

func TestDeleteCompletedSyncItems(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			done := &model.SyncItem{Action: "create_post", Status: model.SyncCompleted, OwnerKey: "u1"}
			require.NoError(t, c.db.Save(done))
			waiting := &model.SyncItem{Action: "create_comment", Status: model.SyncPending, OwnerKey: "u1"}
			require.NoError(t, c.db.Save(waiting))

			count, err := c.db.DeleteCompletedSyncItems()
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			total, err := c.db.CountSyncItems()
			require.NoError(t, err)
			assert.Equal(t, 1, total)
		})
	}
}

func TestClearSyncItems(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			for i := 0; i < 3; i++ {
				require.NoError(t, c.db.Save(&model.SyncItem{Action: "create_post", Status: model.SyncPending}))
			}

			count, err := c.db.ClearSyncItems()
			require.NoError(t, err)
			assert.Equal(t, 3, count)

			total, err := c.db.CountSyncItems()
			require.NoError(t, err)
			assert.Equal(t, 0, total)

			// Clearing an empty queue is fine.
			count, err = c.db.ClearSyncItems()
			require.NoError(t, err)
			assert.Equal(t, 0, count)
		})
	}
}

func TestMetadata(t *testing.T) {
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			defer c.cleanup()

			_, err := c.db.GetMetadata("nope")
			assert.True(t, c.db.IsNotFound(err))

			require.NoError(t, c.db.SetMetadata("last_sync_at", "2026-08-29T10:00:00Z"))
			require.NoError(t, c.db.SetMetadata("last_sync_at", "2026-08-29T11:00:00Z"))

			m, err := c.db.GetMetadata("last_sync_at")
			require.NoError(t, err)
			assert.Equal(t, "2026-08-29T11:00:00Z", m.Value)
			assert.False(t, m.UpdatedAt.IsZero())
		})
	}
}

func TestEstimateUsage(t *testing.T) {
	db, cleanup := setup(t)
	defer cleanup()

	// Force the file into existence.
	require.NoError(t, db.SetMetadata("k", "v"))

	usage := db.EstimateUsage()
	assert.Equal(t, int64(1<<20), usage.QuotaBytes)
	assert.Greater(t, usage.UsedBytes, int64(0))
	assert.Greater(t, usage.Ratio(), 0.0)

	// The memory client reports nothing used, quota intact.
	usage = database.NewMemory(42).EstimateUsage()
	assert.Equal(t, database.Usage{QuotaBytes: 42}, usage)
	assert.Equal(t, 0.0, usage.Ratio())
}

func TestReopenAfterClose(t *testing.T) {
	db, cleanup := setup(t)
	defer cleanup()

	require.NoError(t, db.SetMetadata("k", "v"))
	require.NoError(t, db.Close())

	// A later operation transparently reopens the handle.
	m, err := db.GetMetadata("k")
	require.NoError(t, err)
	assert.Equal(t, "v", m.Value)
}

func TestSchemaVersionStamp(t *testing.T) {
	db, cleanup := setup(t)
	defer cleanup()

	require.NoError(t, db.SetMetadata("k", "v"))

	m, err := db.GetMetadata(model.SchemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", m.Value)
}
