// Package autosave bridges frequently-changing editor state into a save
// callback without saving on every keystroke. Changes are debounced against
// the last saved snapshot; lifecycle signals (tab hidden, unload) force an
// immediate flush so no content is lost to a closed tab.
package autosave

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Status is the save indicator shown by the host UI.
type Status string

// Scheduler statuses.
const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// A SaveFunc persists one snapshot of editor state.
type SaveFunc[T any] func(ctx context.Context, data T) error

// A Scheduler debounces snapshot changes into a SaveFunc. At most one save
// is in flight; a change arriving during a save is coalesced into the next
// cycle, never lost and never overlapping.
type Scheduler[T any] struct {
	saveFn    SaveFunc[T]
	debounced func(func())
	log       logrus.FieldLogger

	mu          sync.Mutex
	equals      func(a, b T) bool
	enabled     bool
	pending     T
	dirty       bool
	last        T
	lastSet     bool
	status      Status
	lastSavedAt time.Time
	lastErr     error

	// saveMu serializes actual save executions.
	saveMu sync.Mutex
}

// New returns a new Scheduler flushing at most once per interval.
// Change detection defaults to reflect.DeepEqual against the last saved
// snapshot; see SetEquals.
func New[T any](interval time.Duration, save SaveFunc[T], log logrus.FieldLogger) *Scheduler[T] {
	return &Scheduler[T]{
		saveFn:    save,
		debounced: debounce.New(interval),
		log:       log,
		equals:    func(a, b T) bool { return reflect.DeepEqual(a, b) },
		enabled:   true,
		status:    StatusIdle,
	}
}

// SetEquals replaces the snapshot comparison function.
func (s *Scheduler[T]) SetEquals(equals func(a, b T) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equals = equals
}

// SetEnabled toggles the scheduler. While disabled, changes neither arm the
// debounce timer nor get saved.
func (s *Scheduler[T]) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Update feeds the scheduler the current editor snapshot. The debounce timer
// restarts only when data differs from the last saved snapshot, so unrelated
// re-renders do not trigger redundant saves.
func (s *Scheduler[T]) Update(data T) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	if s.lastSet && s.equals(data, s.last) {
		s.dirty = false
		s.mu.Unlock()
		return
	}
	s.pending = data
	s.dirty = true
	s.mu.Unlock()

	s.debounced(func() {
		if err := s.flush(context.Background()); err != nil {
			s.log.WithError(err).Warn("autosave failed")
		}
	})
}

// SaveNow cancels any pending debounce and saves the newest snapshot
// immediately, returning when that save completes. With no unsaved changes
// it returns at once.
func (s *Scheduler[T]) SaveNow(ctx context.Context) error {
	s.debounced(func() {})
	return s.flush(ctx)
}

// Flush is the forced-flush entry point for lifecycle signals such as
// visibility-hidden and unload. The error is logged, not returned: the
// in-memory data survives and the next change retries.
func (s *Scheduler[T]) Flush(ctx context.Context) {
	if err := s.SaveNow(ctx); err != nil {
		s.log.WithError(err).Warn("forced autosave flush failed")
	}
}

// flush performs at most one save. A concurrent flush blocks until the
// in-flight save completes, then saves the newest pending snapshot if it
// still differs; the dirty check makes stacked flushes no-ops.
func (s *Scheduler[T]) flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.dirty || !s.enabled {
		s.mu.Unlock()
		return nil
	}
	data := s.pending
	s.status = StatusSaving
	s.mu.Unlock()

	err := s.saveFn(ctx, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.status = StatusError
		s.lastErr = err
		// pending stays dirty so the next change or flush retries.
		return errors.Wrap(err, "could not save snapshot")
	}

	s.status = StatusSaved
	s.lastSavedAt = time.Now().UTC()
	s.lastErr = nil
	s.last = data
	s.lastSet = true

	if s.equals(s.pending, data) {
		s.dirty = false
	} else {
		// A change arrived while saving; coalesce it into the next cycle.
		s.debounced(func() {
			if err := s.flush(context.Background()); err != nil {
				s.log.WithError(err).Warn("autosave failed")
			}
		})
	}
	return nil
}

// Status returns the current save indicator.
func (s *Scheduler[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSavedAt returns the time of the last successful save, zero when none
// happened yet.
func (s *Scheduler[T]) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// Err returns the error of the last failed save, nil after a success.
func (s *Scheduler[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
