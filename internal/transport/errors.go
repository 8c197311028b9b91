package transport

import "errors"

// ErrDisconnected is returned by a client-side wait loop when its slot's
// lock byte drops to LockFree or LockClean mid-wait — the maintainer
// (or another peer racing for the same slot) tore the session down
// before a response arrived.
var ErrDisconnected = errors.New("transport: slot disconnected")

// ErrExhausted is returned when every slot in the table is held and a
// new peer cannot attach.
var ErrExhausted = errors.New("transport: no free slot")

// ErrNestingIterator is returned when a peer issues "iterator" while one
// is already open on its slot.
var ErrNestingIterator = errors.New("transport: nesting iterators")

// ErrNestingBatch is returned when a peer issues "batch_enter" while one
// is already open on its slot.
var ErrNestingBatch = errors.New("transport: nesting batches")

// StopIteration is the sentinel result value the maintainer writes for
// "next" once an iterator is exhausted, mirroring the original's string
// marker of the same name in the response payload.
const StopIteration = "StopIteration"

// RemoteError wraps an error message the maintainer reported in a
// response frame. It deliberately does not Unwrap to a sentinel: the
// maintainer only ever sends a string, so a RemoteError can never be
// identified with errors.Is against a local sentinel — callers compare
// against Message if they need to distinguish cases.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return nil }
