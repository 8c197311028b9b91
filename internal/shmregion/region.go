// Package shmregion implements named cross-process shared memory regions
// over a plain file and POSIX mmap. It is the Go analog of a Python
// multiprocessing.shared_memory.SharedMemory: a byte slice that multiple
// unrelated OS processes can map and observe the same writes to.
//
// Go has no equivalent of CPython's resource_tracker, so there is no
// "untrack this region" concern to port; instead the lifetime rule is
// simple and explicit: Close only unmaps the caller's view, Unlink is
// the only operation that removes the backing file, and only the
// process that created the region is expected to call it.
package shmregion

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Dir is the directory regions are rooted under. It mirrors /dev/shm's
// role without depending on tmpfs being mounted there: POSIX
// MAP_SHARED over any regular file gives the same cross-process
// visibility a tmpfs-backed file would, just with a page-cache trip
// instead of a pure-memory one.
func Dir() string {
	return filepath.Join(os.TempDir(), "kvbroker-shm")
}

// Region is a named, mmap'd byte slice shared across processes.
type Region struct {
	Name string
	Data []byte

	path string
}

// Create makes a brand-new region of the given size, failing if one of
// the same name already exists. This mirrors
// shared_memory.SharedMemory(create=True, exclusive) and is the
// primitive SysLock builds its mutual exclusion on top of.
func Create(name string, size int) (*Region, error) {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("shmregion: create dir: %w", err)
	}

	path := filepath.Join(Dir(), name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("shmregion: truncate: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("shmregion: mmap: %w", err)
	}

	return &Region{Name: name, Data: data, path: path}, nil
}

// Attach opens and maps an already-existing region by name. It returns
// os.ErrNotExist (wrapped) if the region has not been created yet; the
// caller may poll by retrying.
func Attach(name string, size int) (*Region, error) {
	path := filepath.Join(Dir(), name)

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmregion: mmap: %w", err)
	}

	return &Region{Name: name, Data: data, path: path}, nil
}

// Close unmaps this process's view of the region. It does not remove
// the backing file; other attached processes are unaffected.
func (r *Region) Close() error {
	if r.Data == nil {
		return nil
	}
	err := unix.Munmap(r.Data)
	r.Data = nil
	return err
}

// Unlink removes the backing file. Only the owning process (the one
// responsible for the region's lifetime — the broker maintainer for
// the slot table, a SysLock holder for its own lock file) should ever
// call this.
func (r *Region) Unlink() error {
	return os.Remove(r.path)
}
