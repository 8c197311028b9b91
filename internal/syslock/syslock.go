// Package syslock provides a cross-process mutex built on the exclusive
// creation of a named shared memory region: the first process to
// successfully create the region holds the lock, and every other
// contender spins, retrying creation until the holder unlinks it.
//
// It is deliberately not reentrant — acquiring twice from the same
// goroutine deadlocks against itself exactly as it would against a
// different process, matching the original implementation.
package syslock

import (
	"errors"
	"os"
	"time"
)

// salt namespaces syslock's region names away from any other region
// name a caller might pick, the same role the original's SysLock.SALT
// class attribute plays.
const salt = "syslock-hTRxcJTsFYsMNsLg-"

// tick is how long Acquire sleeps between creation attempts while
// contended.
const tick = 100 * time.Microsecond

// size is the byte size of the sentinel region; SysLock never reads or
// writes its payload, only contends on its existence.
const size = 8

// Lock is a held or releasable cross-process mutex.
type Lock struct {
	region region
}

// region is the subset of shmregion.Region that Lock depends on,
// declared locally to keep this package's public surface independent of
// shmregion's.
type region interface {
	Close() error
	Unlink() error
}

// creator matches shmregion.Create's signature, overridable in tests.
type creator func(name string, size int) (region, error)

var defaultCreator creator = func(name string, size int) (region, error) {
	return createRegion(name, size)
}

// Acquire blocks until it holds the named lock. An empty name is a
// valid, globally-shared lock distinct from any named one.
func Acquire(name string) (*Lock, error) {
	return acquireWith(defaultCreator, name)
}

func acquireWith(create creator, name string) (*Lock, error) {
	full := salt + name
	for {
		r, err := create(full, size)
		if err == nil {
			return &Lock{region: r}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		time.Sleep(tick)
	}
}

// Release unlocks and removes the underlying region. Releasing an
// already-released Lock is an error, matching the original's "release
// unlocked syslock" RuntimeError.
func (l *Lock) Release() error {
	if l.region == nil {
		return errors.New("syslock: release of unlocked lock")
	}
	defer func() { l.region = nil }()

	if err := l.region.Close(); err != nil {
		return err
	}
	return l.region.Unlink()
}
