package orm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dreamware/kvbroker/internal/lexokey"
	"github.com/dreamware/kvbroker/internal/literal"
	"github.com/dreamware/kvbroker/mdb"
)

// rowStore is the subset of mdb.Client a Table depends on, declared
// locally so tests can supply an in-memory fake instead of wiring up a
// real broker.
type rowStore interface {
	Put(key string, val any) error
	Delete(key string) error
	Get(key string) (any, error)
	Iterator(prefix string, reverse bool, seek string) (next func() (string, any, bool, error), closeFn func() error, err error)
	WriteBatch() (writeBatch, error)
}

// writeBatch is the subset of mdb.WriteBatch a Table depends on.
type writeBatch interface {
	Put(key string, val any) error
	Delete(key string) error
	Commit() error
	Abort() error
}

// Table is one model's ordered row store plus its secondary indexes,
// all layered over a single rowStore connection. Name is the model
// name: rows live under "Name.", index entries under "Names.", and the
// write counter under "Name#wcount".
type Table struct {
	store rowStore
	name  string

	mu         sync.Mutex
	selectMu   sync.Mutex
	selectMemo map[string][]Record

	stats OperationStats
}

// Open returns a Table bound to store for the named model.
func Open(store rowStore, name string) *Table {
	return &Table{store: store, name: name, selectMemo: make(map[string][]Record)}
}

// OpenTable returns a Table backed directly by an mdb.Client — the
// common case for application code, which never needs to see rowStore.
func OpenTable(client *mdb.Client, name string) *Table {
	return Open(NewClientStore(client), name)
}

func (t *Table) dataPrefix() string  { return t.name + "." }
func (t *Table) indexPrefix() string { return t.name + "s." }
func (t *Table) wcountKey() string   { return t.name + "#wcount" }

func (t *Table) invalidateCache() {
	t.selectMu.Lock()
	t.selectMemo = make(map[string][]Record)
	t.selectMu.Unlock()
}

func (t *Table) wcountLocked() (int64, error) {
	v, err := t.store.Get(t.wcountKey())
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	n, ok := literal.AsInt64(v)
	if !ok {
		return 0, fmt.Errorf("orm: table %q: corrupt write counter %#v", t.name, v)
	}
	return n, nil
}

// WCount returns the number of writes (inserts, updates, and removes)
// this table has ever recorded.
func (t *Table) WCount() (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wcountLocked()
}

// nextID scans the row store in reverse for the highest existing
// lexokey id and returns one past it, or lexokey.Zero if the table is
// empty.
func (t *Table) nextID() (lexokey.Key, error) {
	next, closeFn, err := t.store.Iterator(t.dataPrefix(), true, "")
	if err != nil {
		return lexokey.Key{}, err
	}
	defer closeFn()

	for {
		suffix, _, ok, err := next()
		if err != nil {
			return lexokey.Key{}, err
		}
		if !ok {
			return lexokey.Zero(), nil
		}
		if !lexokey.Match(suffix) {
			continue
		}
		k, err := lexokey.Parse(suffix)
		if err != nil {
			continue
		}
		return k.Incr(), nil
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func containsAll(have []string, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}
