// Package coordinator orchestrates the offline engine for the lifetime of an
// application session: it tracks connectivity, paces cleanup and sync ticks,
// and exposes an aggregate state snapshot to the host UI.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/festbuddy/offlinebox/internal/autosave"
	"github.com/festbuddy/offlinebox/internal/database"
	"github.com/festbuddy/offlinebox/internal/draft"
	"github.com/festbuddy/offlinebox/internal/model"
	"github.com/festbuddy/offlinebox/internal/syncqueue"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A State is a read-mostly snapshot recomputed on a schedule, not a live
// subscription; callers should expect brief staleness.
type State struct {
	IsOnline            bool           `json:"is_online"`
	DraftCount          int            `json:"draft_count"`
	PendingSyncCount    int            `json:"pending_sync_count"`
	FailedSyncCount     int            `json:"failed_sync_count"`
	LastSyncAt          *time.Time     `json:"last_sync_at,omitempty"`
	StorageUsage        database.Usage `json:"storage_usage"`
	StorageWarning      bool           `json:"storage_warning"`
	StorageLimitReached bool           `json:"storage_limit_reached"`
}

// A Coordinator owns the draft manager and the sync queue of one process.
// Construct it at the composition root and inject it; it holds no package
// globals, so the drain reentrancy guard is testable in isolation.
type Coordinator struct {
	db      database.Client
	drafts  *draft.Manager
	queue   *syncqueue.Queue
	handler syncqueue.Handler
	params  Parameters
	log     logrus.FieldLogger

	online atomic.Bool

	mu    sync.RWMutex
	owner *string
	state State

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// New returns a new Coordinator. The handler is the caller-supplied bridge
// to the remote backend; it is only invoked from drain passes.
func New(db database.Client, handler syncqueue.Handler, params Parameters, log logrus.FieldLogger) *Coordinator {
	c := &Coordinator{
		db:      db,
		drafts:  draft.NewManager(db, params.Retention(), log),
		queue: syncqueue.New(db, params.MaxSyncRetries, syncqueue.BackoffPolicy{
			Base: params.BackoffBase,
			Cap:  params.BackoffCap,
		}, log),
		handler: handler,
		params:  params,
		log:     log,
	}
	c.Refresh()
	return c
}

// Drafts returns the draft manager.
func (c *Coordinator) Drafts() *draft.Manager {
	return c.drafts
}

// Queue returns the sync queue.
func (c *Coordinator) Queue() *syncqueue.Queue {
	return c.queue
}

// PostAutosave returns a scheduler persisting edits of one post draft
// through the draft manager, debounced by the configured interval. The host
// editor feeds it snapshots and forwards lifecycle signals to Flush.
func PostAutosave(c *Coordinator, draftID string) *autosave.Scheduler[draft.PostFields] {
	return autosave.New(c.params.AutosaveInterval, func(_ context.Context, fields draft.PostFields) error {
		_, err := c.drafts.UpdatePostDraft(draftID, fields)
		return err
	}, c.log)
}

// CommentAutosave returns a scheduler persisting edits of one comment draft,
// see PostAutosave.
func CommentAutosave(c *Coordinator, draftID string) *autosave.Scheduler[draft.CommentFields] {
	return autosave.New(c.params.AutosaveInterval, func(_ context.Context, fields draft.CommentFields) error {
		_, err := c.drafts.UpdateCommentDraft(draftID, fields)
		return err
	}, c.log)
}

// IsOnline reports the last known connectivity.
func (c *Coordinator) IsOnline() bool {
	return c.online.Load()
}

// SetOnline records a connectivity transition. Coming back online triggers
// one immediate sync attempt.
func (c *Coordinator) SetOnline(online bool) {
	was := c.online.Swap(online)
	if !was && online {
		c.log.Info("connectivity restored")
		ctx, cancel := context.WithTimeout(context.Background(), c.params.SyncInterval)
		defer cancel()
		if _, err := c.SyncNow(ctx); err != nil {
			c.log.WithError(err).Warn("sync on reconnect failed")
		}
		return
	}
	c.Refresh()
}

// SetOwner switches the active owner identity, e.g. on login or logout, and
// re-derives the counts so the session only sees its own records. Guest
// records are not migrated; they stay under the guest sentinel.
func (c *Coordinator) SetOwner(ownerID *string) {
	c.mu.Lock()
	if ownerID == nil {
		c.owner = nil
	} else {
		owner := *ownerID
		c.owner = &owner
	}
	c.mu.Unlock()

	c.Refresh()
}

// Owner returns the active owner identity, nil for a guest session.
func (c *Coordinator) Owner() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.owner == nil {
		return nil
	}
	owner := *c.owner
	return &owner
}

// QueueAction buffers a mutation under the active owner for later delivery.
func (c *Coordinator) QueueAction(action string, payload any) (*model.SyncItem, error) {
	item, err := c.queue.Enqueue(c.Owner(), action, payload)
	if err != nil {
		return nil, err
	}
	c.Refresh()
	return item, nil
}

// SyncNow drains the queue once through the handler. It is a no-op while
// offline or when no handler was supplied. Returns how many items were
// attempted.
func (c *Coordinator) SyncNow(ctx context.Context) (int, error) {
	if !c.online.Load() || c.handler == nil {
		return 0, nil
	}

	processed, err := c.queue.Drain(ctx, c.handler)
	if err != nil {
		return processed, errors.Wrap(err, "could not drain sync queue")
	}

	if processed > 0 {
		now := time.Now().UTC()
		if err := c.db.SetMetadata(model.LastSyncAtKey, now.Format(time.RFC3339Nano)); err != nil {
			c.log.WithError(err).Warn("could not record last sync time")
		}
	}

	c.Refresh()
	return processed, nil
}

// Cleanup sweeps expired drafts and completed sync items.
func (c *Coordinator) Cleanup() (drafts, items int, err error) {
	drafts, err = c.drafts.SweepExpired(time.Now().UTC())
	if err != nil {
		return drafts, 0, err
	}

	items, err = c.queue.SweepCompleted()
	if err != nil {
		return drafts, items, err
	}

	c.Refresh()
	return drafts, items, nil
}

// Refresh recomputes the state snapshot from the database and the current
// connectivity. Storage degradation is tolerated: counts freeze at their
// zero values rather than failing the caller.
func (c *Coordinator) Refresh() {
	owner := c.Owner()
	ownerKey := model.NormalizeOwnerKey(owner)

	state := State{IsOnline: c.online.Load()}

	if count, err := c.drafts.Count(owner); err == nil {
		state.DraftCount = count
	} else {
		c.log.WithError(err).Debug("could not count drafts")
	}

	if pending, err := c.db.CountSyncItemsByOwnerAndStatus(ownerKey, model.SyncPending); err == nil {
		state.PendingSyncCount = pending
	}
	if syncing, err := c.db.CountSyncItemsByOwnerAndStatus(ownerKey, model.SyncSyncing); err == nil {
		state.PendingSyncCount += syncing
	}
	if failed, err := c.db.CountSyncItemsByOwnerAndStatus(ownerKey, model.SyncFailed); err == nil {
		state.FailedSyncCount = failed
	}

	if m, err := c.db.GetMetadata(model.LastSyncAtKey); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, m.Value); err == nil {
			state.LastSyncAt = &t
		}
	}

	state.StorageUsage = c.db.EstimateUsage()
	state.StorageWarning = c.params.StorageWarnBytes > 0 &&
		state.StorageUsage.UsedBytes >= c.params.StorageWarnBytes
	state.StorageLimitReached = c.params.StorageLimitBytes > 0 &&
		state.StorageUsage.UsedBytes >= c.params.StorageLimitBytes

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Start launches the periodic cleanup and sync ticks. Sync ticks only drain
// while online. Start is idempotent.
func (c *Coordinator) Start() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(c.stop, c.done)
}

// Stop halts the periodic ticks and waits for the loop to exit.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}

func (c *Coordinator) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	cleanup := time.NewTicker(c.params.CleanupInterval)
	defer cleanup.Stop()
	sync := time.NewTicker(c.params.SyncInterval)
	defer sync.Stop()

	for {
		select {
		case <-stop:
			return
		case <-cleanup.C:
			if _, _, err := c.Cleanup(); err != nil {
				c.log.WithError(err).Warn("cleanup tick failed")
			}
		case <-sync.C:
			if !c.online.Load() {
				continue
			}
			// Bound each pass so a hung handler cannot pile up drains.
			ctx, cancel := context.WithTimeout(context.Background(), c.params.SyncInterval)
			if _, err := c.SyncNow(ctx); err != nil {
				c.log.WithError(err).Warn("sync tick failed")
			}
			cancel()
		}
	}
}
