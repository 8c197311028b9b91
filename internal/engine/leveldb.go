package engine

import (
	"bytes"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dreamware/kvbroker/internal/literal"
)

// Build-time tuning constants for the embedded engine, carried over from
// the original implementation's DB class attributes.
const (
	blockSize       = 16 * 1024
	writeBufferSize = blockSize * 1024 * 16
)

// DB is an Engine backed by goleveldb, the pure-Go LevelDB port. It is
// the production KV engine adapter: one *leveldb.DB may only be opened by
// one OS process at a time, which is exactly the constraint that forces
// this module's broker architecture to exist in the first place.
type DB struct {
	path string
	db   *leveldb.DB

	// mu serializes iterator and batch creation; goleveldb's Iterator and
	// Batch types are not safe for concurrent use once opened, matching
	// the instance-level lock the spec requires.
	mu sync.Mutex
}

// Open opens (creating if necessary) the LevelDB database rooted at path.
func Open(path string) (*DB, error) {
	options := &opt.Options{
		BlockCacheCapacity:     8 * opt.MiB,
		BlockSize:              blockSize,
		WriteBuffer:            writeBufferSize,
		Compression:            opt.SnappyCompression,
		Strict:                 opt.StrictJournalChecksum | opt.StrictBlockChecksum,
	}

	db, err := leveldb.OpenFile(path, options)
	if corrupted, ok := err.(*errors.ErrCorrupted); ok {
		_ = corrupted
		db, err = leveldb.RecoverFile(path, options)
	}
	if err != nil {
		return nil, err
	}

	return &DB{path: path, db: db}, nil
}

func (d *DB) Get(key string) (any, bool, error) {
	raw, err := d.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	v, err := literal.DecodeKey(key, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *DB) Put(key string, value any) error {
	raw, err := literal.Encode(value)
	if err != nil {
		return err
	}
	return d.db.Put([]byte(key), raw, nil)
}

func (d *DB) Delete(key string) error {
	return d.db.Delete([]byte(key), nil)
}

func (d *DB) Stats() string {
	s, err := d.db.GetProperty("leveldb.stats")
	if err != nil {
		return ""
	}
	return s
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) NewIterator(opts IteratorOptions) (Iterator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prefix := []byte(opts.Prefix)
	rng := util.BytesPrefix(prefix)

	it := d.db.NewIterator(rng, nil)

	var seek []byte
	if opts.Seek != "" {
		seek = append(append([]byte(nil), prefix...), []byte(opts.Seek)...)
	}

	return &levelIterator{it: it, prefix: prefix, reverse: opts.Reverse, seek: seek}, nil
}

// levelIterator adapts goleveldb's ascending-only iterator.Iterator to
// the Engine contract's Reverse flag and prefix+seek semantics.
type levelIterator struct {
	it      lvIterator
	prefix  []byte
	reverse bool
	seek    []byte
	started bool
	closed  bool
}

// lvIterator is the subset of goleveldb's iterator.Iterator this package
// relies on; declared locally so tests can supply a fake if ever needed.
type lvIterator interface {
	First() bool
	Last() bool
	Next() bool
	Prev() bool
	Seek(key []byte) bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

func (it *levelIterator) Next() (string, any, bool, error) {
	if it.closed {
		return "", nil, false, nil
	}

	ok := it.advance()
	if !ok {
		return "", nil, false, it.it.Error()
	}

	key := it.it.Key()
	val, err := literal.DecodeKey(string(key), it.it.Value())
	if err != nil {
		return "", nil, false, err
	}

	return string(key[len(it.prefix):]), val, true, nil
}

func (it *levelIterator) advance() bool {
	if !it.started {
		it.started = true
		return it.seekInitial()
	}
	if it.reverse {
		return it.it.Prev()
	}
	return it.it.Next()
}

func (it *levelIterator) seekInitial() bool {
	if it.seek == nil {
		if it.reverse {
			return it.it.Last()
		}
		return it.it.First()
	}

	if !it.reverse {
		// First key >= seek, used verbatim.
		return it.it.Seek(it.seek)
	}

	// Reverse: first key <= seek. goleveldb's Seek always lands on the
	// first key >= target (ascending internal order); step back one
	// position unless we landed exactly on the target, and fall back to
	// Last() if nothing in range is >= target (every matching key is
	// already <= target).
	if it.it.Seek(it.seek) {
		if bytes.Equal(it.it.Key(), it.seek) {
			return true
		}
		return it.it.Prev()
	}
	return it.it.Last()
}

func (it *levelIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.it.Release()
	return nil
}

func (d *DB) NewBatch() Batch {
	d.mu.Lock()
	defer d.mu.Unlock()

	return &levelBatch{db: d, b: new(leveldb.Batch)}
}

type levelBatch struct {
	db   *DB
	b    *leveldb.Batch
	done bool
}

func (b *levelBatch) Put(key string, value any) error {
	raw, err := literal.Encode(value)
	if err != nil {
		return err
	}
	b.b.Put([]byte(key), raw)
	return nil
}

func (b *levelBatch) Delete(key string) error {
	b.b.Delete([]byte(key))
	return nil
}

func (b *levelBatch) Commit() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.db.db.Write(b.b, nil)
}

func (b *levelBatch) Discard() error {
	b.done = true
	b.b.Reset()
	return nil
}
