// Package transport defines the wire format peers and the broker
// maintainer exchange over a shared memory region: a fixed table of
// slots, each carrying a lock byte, a state byte, and a fixed-size data
// frame holding a NUL-terminated textual literal.
//
// Layout of the region, as a flat byte slice of RegionSize bytes:
//
//	[ lock0, lock1, ..., lockN-1,  state0, state1, ..., stateN-1,  data0, data1, ..., dataN-1 ]
//
// lock and state are single bytes so that reads and writes to them are
// atomic on every architecture Go supports without extra
// synchronization. data[i] is FrameSize bytes, holding a textual
// literal (see internal/literal) terminated by a NUL byte.
package transport

import "time"

// NumSlots bounds the number of peers the broker can serve without a
// peer having to wait for one to free up. It doubles as the modulus a
// caller's slot index is always taken against, the same role
// MAX_PROCESSES plays in the original implementation.
const NumSlots = 24

// FrameSize is the maximum encoded size, including the trailing NUL, of
// a single request or response frame. It matches the KV engine's
// on-disk block size, since the largest single value the protocol ever
// needs to carry end-to-end is one engine block.
const FrameSize = 16 * 1024

// Tick is the poll interval both peers and the maintainer use while
// spin-waiting on a state transition. It is deliberately short: shared
// memory polling has no wakeup mechanism, so latency is bounded only by
// how often each side checks.
const Tick = 100 * time.Microsecond

// RegionSize is the total byte size of the shared memory region backing
// the slot table.
const RegionSize = NumSlots + NumSlots + NumSlots*FrameSize

// LockState is a slot's ownership byte.
type LockState byte

const (
	// LockFree marks a slot with no peer attached.
	LockFree LockState = 0
	// LockHeld marks a slot owned by a connected peer.
	LockHeld LockState = 1
	// LockClean marks a slot whose peer disconnected; the maintainer
	// tears down any open iterator/batch for it and then resets it to
	// LockFree.
	LockClean LockState = 2
)

// SlotState is a slot's request/response handshake byte.
type SlotState byte

const (
	// StateIdle means no request is outstanding; the slot's data frame
	// is not meaningful.
	StateIdle SlotState = 0
	// StateRequest means the peer has written a request frame and is
	// waiting for the maintainer to process it.
	StateRequest SlotState = 1
	// StateResponse means the maintainer has written a response frame
	// and is waiting for the peer to consume it.
	StateResponse SlotState = 2
)

// SeekLock returns the byte offset of slot index's lock byte.
func SeekLock(index int) int { return mod(index) }

// SeekState returns the byte offset of slot index's state byte.
func SeekState(index int) int { return NumSlots + mod(index) }

// SeekData returns the byte offset of the start of slot index's data
// frame.
func SeekData(index int) int { return NumSlots + NumSlots + mod(index)*FrameSize }

func mod(index int) int {
	i := index % NumSlots
	if i < 0 {
		i += NumSlots
	}
	return i
}
