package autosave_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/festbuddy/offlinebox/internal/autosave"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Content string
}

type recorder struct {
	mu    sync.Mutex
	saved []snapshot
	err   error
}

func (r *recorder) save(_ context.Context, data snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, data)
	return nil
}

func (r *recorder) all() []snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]snapshot(nil), r.saved...)
}

func discard() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Three rapid changes within one debounce window collapse into a single save
// of the latest value.
func TestDebounceCoalescing(t *testing.T) {
	rec := &recorder{}
	s := autosave.New(150*time.Millisecond, rec.save, discard())

	s.Update(snapshot{Content: "h"})
	time.Sleep(10 * time.Millisecond)
	s.Update(snapshot{Content: "he"})
	time.Sleep(10 * time.Millisecond)
	s.Update(snapshot{Content: "hello"})

	time.Sleep(400 * time.Millisecond)

	saved := rec.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "hello", saved[0].Content)
	assert.Equal(t, autosave.StatusSaved, s.Status())
	assert.False(t, s.LastSavedAt().IsZero())
}

// Re-submitting the last saved snapshot does not rearm the timer: change
// detection compares against the last saved value, not the last rendered one.
func TestNoRedundantSave(t *testing.T) {
	rec := &recorder{}
	s := autosave.New(50*time.Millisecond, rec.save, discard())

	s.Update(snapshot{Content: "same"})
	require.NoError(t, s.SaveNow(context.Background()))

	s.Update(snapshot{Content: "same"})
	time.Sleep(150 * time.Millisecond)

	assert.Len(t, rec.all(), 1)
}

func TestSaveNow(t *testing.T) {
	rec := &recorder{}
	s := autosave.New(time.Hour, rec.save, discard())

	s.Update(snapshot{Content: "urgent"})
	require.NoError(t, s.SaveNow(context.Background()))

	saved := rec.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "urgent", saved[0].Content)

	// Nothing dirty: an immediate save resolves without calling out.
	require.NoError(t, s.SaveNow(context.Background()))
	assert.Len(t, rec.all(), 1)
}

func TestFlushOnLifecycleSignal(t *testing.T) {
	rec := &recorder{}
	s := autosave.New(time.Hour, rec.save, discard())

	// The debounce window never elapses, yet hiding the tab must persist.
	s.Update(snapshot{Content: "about to close"})
	s.Flush(context.Background())

	saved := rec.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "about to close", saved[0].Content)
}

func TestSaveFailureIsRecoverable(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	s := autosave.New(time.Hour, rec.save, discard())

	s.Update(snapshot{Content: "v1"})
	err := s.SaveNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, autosave.StatusError, s.Status())
	assert.EqualError(t, errors.Cause(s.Err()), "disk full")

	// The data is not lost; the next attempt saves it.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	require.NoError(t, s.SaveNow(context.Background()))
	assert.Equal(t, autosave.StatusSaved, s.Status())
	assert.Nil(t, s.Err())

	saved := rec.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "v1", saved[0].Content)
}

func TestDisabledSchedulerIgnoresChanges(t *testing.T) {
	rec := &recorder{}
	s := autosave.New(10*time.Millisecond, rec.save, discard())
	s.SetEnabled(false)

	s.Update(snapshot{Content: "ignored"})
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.SaveNow(context.Background()))

	assert.Empty(t, rec.all())
}

// A change landing while a save is in flight is coalesced: the running save
// completes with its own snapshot and the newest data goes out next cycle.
func TestInFlightCoalescing(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var saved []snapshot
	var once sync.Once

	s := autosave.New(20*time.Millisecond, func(_ context.Context, data snapshot) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		mu.Lock()
		saved = append(saved, data)
		mu.Unlock()
		return nil
	}, discard())

	s.Update(snapshot{Content: "v1"})
	<-entered

	s.Update(snapshot{Content: "v2"})
	close(release)

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, saved, 2)
	assert.Equal(t, "v1", saved[0].Content)
	assert.Equal(t, "v2", saved[1].Content)
}
