package engine

import (
	"sort"
	"strings"
	"sync"

	"github.com/dreamware/kvbroker/internal/literal"
)

// MemEngine is an in-memory Engine implementation. It has no persistence
// across restarts and exists for tests and local experimentation where
// spinning up a real goleveldb directory is unnecessary overhead; it
// honors the exact same ordering and iterator semantics as DB so broker
// and ORM tests can run against either implementation interchangeably.
//
// Adapted from the in-memory key/value store pattern of a plain
// sync.RWMutex-guarded map with copy-on-read/copy-on-write semantics;
// MemEngine adds ordered prefix iteration and batch commit on top, since
// the engine adapter's contract requires both.
type MemEngine struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemEngine returns an empty, ready-to-use MemEngine.
func NewMemEngine() *MemEngine {
	return &MemEngine{data: make(map[string][]byte)}
}

func (m *MemEngine) Get(key string) (any, bool, error) {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	v, err := literal.DecodeKey(key, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (m *MemEngine) Put(key string, value any) error {
	raw, err := literal.Encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemEngine) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemEngine) Stats() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "MemEngine: " + itoa(len(m.data)) + " keys"
}

func (m *MemEngine) Close() error { return nil }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// sortedKeysWithPrefix returns every key sharing prefix, sorted
// ascending — the ordering goleveldb gives for free via its SSTable
// layout, reproduced here with an explicit sort since the in-memory
// store is a plain map.
func (m *MemEngine) sortedKeysWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *MemEngine) NewIterator(opts IteratorOptions) (Iterator, error) {
	keys := m.sortedKeysWithPrefix(opts.Prefix)

	start := 0
	if opts.Seek != "" {
		target := opts.Prefix + opts.Seek
		start = sort.SearchStrings(keys, target)
		if opts.Reverse {
			if start == len(keys) || keys[start] != target {
				start--
			}
		}
	} else if opts.Reverse {
		start = len(keys) - 1
	}

	return &memIterator{eng: m, prefix: opts.Prefix, reverse: opts.Reverse, keys: keys, pos: start, started: false}, nil
}

type memIterator struct {
	eng     *MemEngine
	prefix  string
	reverse bool
	keys    []string
	pos     int
	started bool
	closed  bool
}

func (it *memIterator) Next() (string, any, bool, error) {
	if it.closed {
		return "", nil, false, nil
	}

	if it.started {
		if it.reverse {
			it.pos--
		} else {
			it.pos++
		}
	}
	it.started = true

	if it.pos < 0 || it.pos >= len(it.keys) {
		return "", nil, false, nil
	}

	key := it.keys[it.pos]
	val, _, err := it.eng.Get(key)
	if err != nil {
		return "", nil, false, err
	}
	return key[len(it.prefix):], val, true, nil
}

func (it *memIterator) Close() error {
	it.closed = true
	return nil
}

func (m *MemEngine) NewBatch() Batch {
	return &memBatch{eng: m}
}

type memOp struct {
	del   bool
	key   string
	value any
}

type memBatch struct {
	eng *MemEngine
	ops []memOp
	done bool
}

func (b *memBatch) Put(key string, value any) error {
	b.ops = append(b.ops, memOp{key: key, value: value})
	return nil
}

func (b *memBatch) Delete(key string) error {
	b.ops = append(b.ops, memOp{del: true, key: key})
	return nil
}

func (b *memBatch) Commit() error {
	if b.done {
		return nil
	}
	b.done = true
	for _, op := range b.ops {
		if op.del {
			if err := b.eng.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.eng.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBatch) Discard() error {
	b.done = true
	b.ops = nil
	return nil
}
