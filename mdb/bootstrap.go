// Package mdb is the public client for a multi-process-safe key/value
// store: many unrelated OS processes attach to one shared memory slot
// table, and a single maintainer process — spawned on demand — is the
// only one that ever opens the underlying embedded engine.
package mdb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/kvbroker/internal/broker"
	"github.com/dreamware/kvbroker/internal/engine"
	"github.com/dreamware/kvbroker/internal/shmregion"
	"github.com/dreamware/kvbroker/internal/syslock"
	"github.com/dreamware/kvbroker/internal/transport"
)

// MaintainFlag and EngineDirFlag are the re-exec arguments a binary
// importing this package must recognize by calling MaintainerMain at
// the very top of main, before parsing its own flags.
const (
	MaintainFlag  = "--maintain"
	EngineDirFlag = "--engine-dir"
)

// salt namespaces this module's shared memory region names the same
// way the original implementation salts its SharedMemory name with a
// qualified class name — any other region on the machine with a
// colliding raw path is still distinguishable.
const salt = "kvbroker-muqpjaTWTcwHmmqL-"

func regionName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha1.Sum([]byte(abs))
	return salt + hex.EncodeToString(sum[:])
}

// MaintainerMain checks os.Args for the maintainer re-exec flags and,
// if present, runs the maintainer loop against the named engine
// directory until every peer detaches, then exits the process — it
// never returns in that case. Call it as the first line of main() in
// any binary that calls Open, before flag.Parse or any other argument
// handling, so a spawned maintainer child never falls through into the
// parent binary's normal logic.
//
// If the re-exec flags are absent, MaintainerMain returns immediately
// and the caller's main() proceeds as normal.
func MaintainerMain() {
	fs := flag.NewFlagSet("kvbroker-maintain", flag.ContinueOnError)
	fs.SetOutput(discardWriter{})

	maintain := fs.Bool("maintain", false, "")
	engineDir := fs.String("engine-dir", "", "")

	// Tolerate any other flags the host binary defines; we only care
	// whether ours are present.
	_ = fs.Parse(os.Args[1:])

	if !*maintain || *engineDir == "" {
		return
	}

	if err := RunMaintainerProcess(*engineDir, regionName(*engineDir), nil); err != nil {
		fmt.Fprintf(os.Stderr, "kvbroker maintainer: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Maintain opens the engine at dir and runs the maintainer loop under
// dir's derived region name until every peer detaches. It is the entry
// point for cmd/kvbroker-maintain, which runs the maintainer as a
// standalone long-lived process instead of relying on the re-exec
// idiom MaintainerMain implements.
func Maintain(dir string, logger *zap.Logger) error {
	return RunMaintainerProcess(dir, regionName(dir), logger)
}

// RunMaintainerProcess opens the engine at dir, creates the slot table
// region under name, and runs the maintainer loop until every peer
// detaches. Both MaintainerMain (the re-exec path) and Maintain (used by
// cmd/kvbroker-maintain) run the maintainer through it.
func RunMaintainerProcess(dir, name string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	eng, err := engine.Open(dir)
	if err != nil {
		return fmt.Errorf("mdb: opening engine at %q: %w", dir, err)
	}
	defer eng.Close()

	region, err := shmregion.Create(name, transport.RegionSize)
	if err != nil {
		return fmt.Errorf("mdb: creating shared region: %w", err)
	}
	defer func() {
		_ = region.Close()
		_ = region.Unlink()
	}()

	logger.Info("maintainer owns engine", zap.String("dir", dir), zap.String("region", name))

	m := broker.New(region.Data, eng, logger)
	return m.Run(context.Background())
}

// attachOrSpawn attaches to the slot table region for dir, spawning a
// maintainer child process via a re-exec of the current binary if the
// region does not exist yet. Callers must hold the path's SysLock while
// calling this, so that only one process in the race ever spawns a
// child.
func attachOrSpawn(dir string) (*shmregion.Region, error) {
	name := regionName(dir)

	region, err := shmregion.Attach(name, transport.RegionSize)
	if err == nil {
		return region, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("mdb: resolving own executable: %w", err)
	}

	cmd := exec.Command(exe, MaintainFlag, EngineDirFlag, dir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mdb: spawning maintainer: %w", err)
	}
	// Intentionally not waiting: the maintainer is a long-lived
	// process that outlives this call and, typically, this peer.

	for {
		region, err := shmregion.Attach(name, transport.RegionSize)
		if err == nil {
			return region, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
		time.Sleep(transport.Tick)
	}
}

// tryAcquireSlot scans region once for a free slot, claiming and
// returning it immediately. It reports false, leaving region
// unmodified, if every slot is already held.
func tryAcquireSlot(region []byte) (int, bool) {
	for i := 0; i < transport.NumSlots; i++ {
		seek := transport.SeekLock(i)
		if transport.LockState(region[seek]) == transport.LockFree {
			region[seek] = byte(transport.LockHeld)
			return i, true
		}
	}
	return 0, false
}

// acquireSlot finds and claims the first free slot in region, blocking
// until one is available. Callers must hold the path's SysLock.
func acquireSlot(region []byte) int {
	for {
		if i, ok := tryAcquireSlot(region); ok {
			return i
		}
		time.Sleep(transport.Tick)
	}
}

func acquireSysLock(dir string) (*syslock.Lock, error) {
	return syslock.Acquire(regionName(dir))
}
