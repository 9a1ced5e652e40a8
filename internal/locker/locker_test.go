package locker

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "sync.lock")
	l, err := New(path)
	require.NoError(t, err)

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
	assert.Equal(t, path, l.Path())
}

func TestLock_WithReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")
	l, err := New(path)
	require.NoError(t, err)

	boom := errors.New("boom")
	assert.ErrorIs(t, l.With(func() error { return boom }), boom)

	// Lock must be free again after the failing callback.
	other, err := New(path)
	require.NoError(t, err)
	require.NoError(t, other.Acquire())
	require.NoError(t, other.Release())
}

func TestLock_SerializesCriticalSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")

	var inside atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		l, err := New(path)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.With(func() error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				defer inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two holders observed inside the critical section")
}

// The daemon hands one shared Lock to every trigger goroutine (monitor,
// watchers, webhook), so exclusivity must hold on a single instance, not just
// across instances.
func TestLock_SharedInstanceSerializesGoroutines(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "sync.lock"))
	require.NoError(t, err)

	var inside atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.With(func() error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				defer inside.Add(-1)
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two triggers ran the critical section concurrently on the shared lock")
}
