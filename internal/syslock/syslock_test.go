package syslock

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRegion lets tests exercise the contention loop without touching
// the filesystem.
type fakeRegion struct {
	closed, unlinked bool
}

func (f *fakeRegion) Close() error  { f.closed = true; return nil }
func (f *fakeRegion) Unlink() error { f.unlinked = true; return nil }

func TestAcquireRetriesUntilFree(t *testing.T) {
	var mu sync.Mutex
	held := false

	create := func(name string, size int) (region, error) {
		mu.Lock()
		defer mu.Unlock()
		if held {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
		}
		held = true
		return &fakeRegion{}, nil
	}

	l1, err := acquireWith(create, "x")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		l2, err := acquireWith(create, "x")
		require.NoError(t, err)
		close(done)
		_ = l2
	}()

	select {
	case <-done:
		t.Fatal("second acquire should not have succeeded while held")
	case <-time.After(5 * tick):
	}

	mu.Lock()
	held = false
	mu.Unlock()

	require.NoError(t, l1.Release())
	<-done
}

func TestReleaseTwiceFails(t *testing.T) {
	create := func(name string, size int) (region, error) {
		return &fakeRegion{}, nil
	}

	l, err := acquireWith(create, "y")
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.Error(t, l.Release())
}

func TestAcquireRealRegion(t *testing.T) {
	l, err := Acquire(t.Name())
	require.NoError(t, err)
	require.NoError(t, l.Release())
}
