package coordinator_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/festbuddy/offlinebox/internal/coordinator"
	"github.com/festbuddy/offlinebox/internal/database"
	"github.com/festbuddy/offlinebox/internal/draft"
	"github.com/festbuddy/offlinebox/internal/syncqueue"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerSpy struct {
	mu      sync.Mutex
	actions []string
}

func (h *handlerSpy) handle(_ context.Context, action string, _ []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, action)
	return nil
}

func (h *handlerSpy) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.actions...)
}

func setup(handler syncqueue.Handler) *coordinator.Coordinator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	params := coordinator.DefaultParameters()
	params.RetentionDays = 0 // drafts expire as soon as time moves on
	params.BackoffBase = time.Millisecond
	params.BackoffCap = 10 * time.Millisecond

	return coordinator.New(database.NewMemory(1<<20), handler, params, logger)
}

func str(s string) *string { return &s }

// Create a draft, let it age past retention, sweep: the draft is gone and
// the count reflects it.
func TestExpirySweepLifecycle(t *testing.T) {
	c := setup(nil)

	owner := "u1"
	c.SetOwner(&owner)

	_, err := c.Drafts().CreatePostDraft(&owner, draft.PostFields{Content: str("hello")})
	require.NoError(t, err)

	c.Refresh()
	require.Equal(t, 1, c.State().DraftCount)

	time.Sleep(5 * time.Millisecond)

	removed, _, err := c.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.State().DraftCount)
}

// Queue a mutation while offline: nothing is dispatched. Coming back online
// drains it, and the completed item is swept by cleanup.
func TestOfflineToOnlineTransition(t *testing.T) {
	spy := &handlerSpy{}
	c := setup(spy.handle)

	_, err := c.QueueAction("create_post", map[string]string{"title": "x"})
	require.NoError(t, err)

	// Offline: a sync attempt is a no-op and the handler is never invoked.
	processed, err := c.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Empty(t, spy.calls())
	assert.Equal(t, 1, c.State().PendingSyncCount)

	// Flipping online triggers one immediate sync attempt.
	c.SetOnline(true)
	assert.Equal(t, []string{"create_post"}, spy.calls())

	state := c.State()
	assert.True(t, state.IsOnline)
	assert.Equal(t, 0, state.PendingSyncCount)
	require.NotNil(t, state.LastSyncAt)

	// The completed item is eventually removed by cleanup.
	_, swept, err := c.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	stats, err := c.Queue().Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestSetOnlineIsEdgeTriggered(t *testing.T) {
	spy := &handlerSpy{}
	c := setup(spy.handle)

	c.SetOnline(true)
	require.Empty(t, spy.calls())

	_, err := c.QueueAction("create_post", nil)
	require.NoError(t, err)

	// Already online: no drain happens outside the periodic tick.
	c.SetOnline(true)
	assert.Empty(t, spy.calls())

	// Only an offline->online edge drains immediately.
	c.SetOnline(false)
	c.SetOnline(true)
	assert.Equal(t, []string{"create_post"}, spy.calls())
}

// A login or logout rescopes the counts; guest records are not migrated to
// the new owner.
func TestOwnerSwitchRescopesCounts(t *testing.T) {
	c := setup(nil)

	_, err := c.Drafts().CreatePostDraft(nil, draft.PostFields{Content: str("guest draft")})
	require.NoError(t, err)

	owner := "u1"
	_, err = c.Drafts().CreatePostDraft(&owner, draft.PostFields{Content: str("u1 draft")})
	require.NoError(t, err)

	c.Refresh()
	assert.Equal(t, 1, c.State().DraftCount) // guest scope

	c.SetOwner(&owner)
	assert.Equal(t, 1, c.State().DraftCount) // u1 scope, not guest's plus u1's

	c.SetOwner(nil)
	assert.Equal(t, 1, c.State().DraftCount)
}

func TestStorageSignals(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	params := coordinator.DefaultParameters()
	params.StorageWarnBytes = 1
	params.StorageLimitBytes = 1

	// The memory client reports zero usage: neither signal fires.
	c := coordinator.New(database.NewMemory(1<<20), nil, params, logger)
	state := c.State()
	assert.False(t, state.StorageWarning)
	assert.False(t, state.StorageLimitReached)
	assert.Equal(t, int64(1<<20), state.StorageUsage.QuotaBytes)
}

// The autosave bridge persists editor snapshots through the draft manager,
// restamping the expiry on each flush.
func TestPostAutosaveBridge(t *testing.T) {
	c := setup(nil)

	d, err := c.Drafts().CreatePostDraft(nil, draft.PostFields{Content: str("v1")})
	require.NoError(t, err)

	s := coordinator.PostAutosave(c, d.ID)
	s.Update(draft.PostFields{Content: str("v2")})
	require.NoError(t, s.SaveNow(context.Background()))

	stored, err := c.Drafts().ListPostDrafts(nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "v2", stored[0].Content)
}

func TestStartStop(t *testing.T) {
	c := setup(nil)

	c.Start()
	c.Start() // idempotent
	c.Stop()
	c.Stop() // idempotent
}
