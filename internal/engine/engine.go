// Package engine defines the contract the broker uses to talk to the
// underlying ordered key/value store, and provides two implementations:
// DB (backed by goleveldb, for production use) and MemEngine (an
// in-memory implementation used by tests that don't need real disk
// persistence).
//
// Keys are always strings; values are arbitrary structured data
// serialized through internal/literal. Iterators yield the key suffix
// after a caller-supplied prefix, in ascending or descending byte order.
// A single mutex per Engine serializes iterator and batch creation,
// because neither is safe for concurrent use once opened.
package engine

// IteratorOptions configures a prefix scan.
type IteratorOptions struct {
	// Prefix restricts iteration to keys sharing this byte prefix.
	Prefix string

	// Reverse iterates from the largest matching key to the smallest.
	Reverse bool

	// Seek, if non-empty, is appended to Prefix to compute the starting
	// point: the first key >= Prefix+Seek (Reverse=false) or the first
	// key <= Prefix+Seek (Reverse=true). An empty Seek starts at the
	// natural end of the range (smallest for forward, largest for
	// reverse).
	Seek string
}

// Iterator yields (suffix, value) pairs within a prefix scan. Suffix is
// the portion of the key after the configured prefix. Iterator is not
// safe for concurrent use, and must be closed (even on early exit) to
// free the underlying engine resources.
type Iterator interface {
	// Next advances to the next pair and reports whether one was found.
	Next() (suffix string, value any, ok bool, err error)

	// Close releases the iterator. Idempotent.
	Close() error
}

// Batch accumulates Put/Delete operations for atomic application: either
// every operation in the batch becomes visible, or none do.
type Batch interface {
	Put(key string, value any) error
	Delete(key string) error

	// Commit applies all accumulated operations atomically.
	Commit() error

	// Discard abandons the batch; no operation in it becomes visible.
	Discard() error
}

// Engine is the KV engine adapter contract. See the package doc for the
// concurrency and serialization rules implementations must uphold.
type Engine interface {
	Get(key string) (value any, found bool, err error)
	Put(key string, value any) error
	Delete(key string) error

	NewIterator(opts IteratorOptions) (Iterator, error)
	NewBatch() Batch

	// Stats returns an engine-specific, human-readable statistics blob
	// (e.g. goleveldb's "leveldb.stats" property), or "" if unavailable.
	Stats() string

	Close() error
}
