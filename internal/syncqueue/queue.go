// Package syncqueue is the at-least-once delivery queue of buffered
// mutations. Delivery is decoupled from connectivity: items wait in the
// database until a drain pass hands them to the remote handler.
package syncqueue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/festbuddy/offlinebox/internal/database"
	"github.com/festbuddy/offlinebox/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	// A Handler delivers one mutation to the remote backend. Any error it
	// returns drives the retry/failed transition of the item. The handler
	// owns deduplication when the backend is not idempotent per action.
	Handler func(ctx context.Context, action string, payload []byte) error

	// A Queue handles sync items on top of a database Client.
	Queue struct {
		db         database.Client
		policy     BackoffPolicy
		maxRetries int
		log        logrus.FieldLogger

		// Guard against overlapping drains. At most one drain is in flight;
		// this is what prevents duplicate remote side effects.
		draining atomic.Bool
	}

	// Stats is an aggregate snapshot of the queue.
	Stats struct {
		Pending int `json:"pending"`
		Syncing int `json:"syncing"`
		Failed  int `json:"failed"`
		Total   int `json:"total"`
	}
)

// New returns a new sync Queue. Items fail terminally after maxRetries
// rejected attempts.
func New(db database.Client, maxRetries int, policy BackoffPolicy, log logrus.FieldLogger) *Queue {
	return &Queue{
		db:         db,
		policy:     policy,
		maxRetries: maxRetries,
		log:        log,
	}
}

// Enqueue buffers a mutation for later delivery. payload is JSON-encoded
// unless it is already a raw byte slice.
func (q *Queue) Enqueue(ownerID *string, action string, payload any) (*model.SyncItem, error) {
	item := &model.SyncItem{
		OwnerKey:   model.NormalizeOwnerKey(ownerID),
		Action:     action,
		Status:     model.SyncPending,
		MaxRetries: q.maxRetries,
	}

	switch v := payload.(type) {
	case nil:
	case []byte:
		item.Payload = v
	case json.RawMessage:
		item.Payload = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "could not encode payload")
		}
		item.Payload = raw
	}

	if err := q.db.Save(item); err != nil {
		return nil, errors.Wrap(err, "could not enqueue sync item")
	}

	q.log.WithFields(logrus.Fields{"id": item.ID, "action": action}).Debug("sync item enqueued")
	return item, nil
}

// Drain attempts to deliver every currently-eligible pending item through
// the handler and returns how many items were attempted. A drain started
// while another is in flight is a no-op and reports zero items; eligible
// items are attempted in insertion order, with retried items gated by the
// backoff policy.
func (q *Queue) Drain(ctx context.Context, handler Handler) (int, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer q.draining.Store(false)

	items, err := q.db.FindSyncItemsByStatus(model.SyncPending)
	if err != nil {
		return 0, errors.Wrap(err, "could not load pending sync items")
	}

	var processed int
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return processed, errors.Wrap(err, "drain interrupted")
		}
		if !q.eligible(item, time.Now().UTC()) {
			continue
		}
		if err := q.attempt(ctx, handler, item); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// eligible applies the backoff gate: a retried item waits out the delay of
// its previous failed attempt.
func (q *Queue) eligible(item *model.SyncItem, now time.Time) bool {
	if item.RetryCount == 0 || item.LastAttemptAt == nil {
		return true
	}
	return now.Sub(*item.LastAttemptAt) >= q.policy.Delay(item.RetryCount-1)
}

// attempt marks the item syncing, dispatches it and persists the outcome.
// Only database errors are returned; handler rejections are recorded on the
// item and drive its state machine.
func (q *Queue) attempt(ctx context.Context, handler Handler, item *model.SyncItem) error {
	now := time.Now().UTC()
	item.Status = model.SyncSyncing
	item.LastAttemptAt = &now
	item.SetUpdatedAt(now)
	if err := q.db.Save(item); err != nil {
		return errors.Wrap(err, "could not mark sync item syncing")
	}

	err := dispatch(ctx, handler, item)

	done := time.Now().UTC()
	item.SetUpdatedAt(done)
	if err == nil {
		item.Status = model.SyncCompleted
		item.Error = ""
	} else {
		item.RetryCount++
		item.Error = err.Error()
		if item.RetryCount >= item.MaxRetries {
			item.Status = model.SyncFailed
			q.log.WithFields(logrus.Fields{"id": item.ID, "action": item.Action}).
				WithError(err).Warn("sync item failed terminally")
		} else {
			item.Status = model.SyncPending
			q.log.WithFields(logrus.Fields{"id": item.ID, "retry": item.RetryCount}).
				WithError(err).Debug("sync item attempt rejected")
		}
	}

	return errors.Wrap(q.db.Save(item), "could not persist sync item outcome")
}

// dispatch shields the queue from a panicking handler.
func dispatch(ctx context.Context, handler Handler, item *model.SyncItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, item.Action, item.Payload)
}

// RetryAllFailed resets every failed item to pending with a fresh retry
// budget and a cleared error, and returns how many were reset.
func (q *Queue) RetryAllFailed() (int, error) {
	items, err := q.db.FindSyncItemsByStatus(model.SyncFailed)
	if err != nil {
		return 0, errors.Wrap(err, "could not load failed sync items")
	}

	var count int
	for _, item := range items {
		item.Status = model.SyncPending
		item.RetryCount = 0
		item.Error = ""
		item.SetUpdatedAt(time.Now().UTC())
		if err := q.db.Save(item); err != nil {
			return count, errors.Wrap(err, "could not reset failed sync item")
		}
		count++
	}
	return count, nil
}

// Stats returns an aggregate snapshot of the queue.
func (q *Queue) Stats() (Stats, error) {
	var stats Stats
	var err error

	if stats.Pending, err = q.db.CountSyncItemsByStatus(model.SyncPending); err != nil {
		return stats, errors.Wrap(err, "could not count pending sync items")
	}
	if stats.Syncing, err = q.db.CountSyncItemsByStatus(model.SyncSyncing); err != nil {
		return stats, errors.Wrap(err, "could not count syncing sync items")
	}
	if stats.Failed, err = q.db.CountSyncItemsByStatus(model.SyncFailed); err != nil {
		return stats, errors.Wrap(err, "could not count failed sync items")
	}
	if stats.Total, err = q.db.CountSyncItems(); err != nil {
		return stats, errors.Wrap(err, "could not count sync items")
	}
	return stats, nil
}

// SweepCompleted deletes delivered items and returns how many were removed.
func (q *Queue) SweepCompleted() (int, error) {
	count, err := q.db.DeleteCompletedSyncItems()
	if err != nil {
		return count, errors.Wrap(err, "could not sweep completed sync items")
	}
	if count > 0 {
		q.log.WithField("count", count).Debug("completed sync items swept")
	}
	return count, nil
}

// Clear unconditionally empties the queue, whatever the item states. Used on
// account switch and logout.
func (q *Queue) Clear() (int, error) {
	count, err := q.db.ClearSyncItems()
	return count, errors.Wrap(err, "could not clear sync queue")
}
