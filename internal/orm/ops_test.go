package orm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/kvbroker/internal/engine"
	"github.com/dreamware/kvbroker/internal/lexokey"
)

// memStore adapts engine.Engine to rowStore, so Table can be exercised
// against a real ordered in-memory store without wiring up mdb or a
// broker at all.
type memStore struct {
	eng *engine.MemEngine
}

func newMemStore() memStore { return memStore{eng: engine.NewMemEngine()} }

func (s memStore) Put(key string, val any) error { return s.eng.Put(key, val) }
func (s memStore) Delete(key string) error        { return s.eng.Delete(key) }

func (s memStore) Get(key string) (any, error) {
	v, ok, err := s.eng.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	return v, nil
}

func (s memStore) Iterator(prefix string, reverse bool, seek string) (func() (string, any, bool, error), func() error, error) {
	it, err := s.eng.NewIterator(engine.IteratorOptions{Prefix: prefix, Reverse: reverse, Seek: seek})
	if err != nil {
		return nil, nil, err
	}
	return it.Next, it.Close, nil
}

func (s memStore) WriteBatch() (writeBatch, error) {
	return memBatch{b: s.eng.NewBatch()}, nil
}

type memBatch struct{ b engine.Batch }

func (b memBatch) Put(key string, val any) error { return b.b.Put(key, val) }
func (b memBatch) Delete(key string) error       { return b.b.Delete(key) }
func (b memBatch) Commit() error                 { return b.b.Commit() }
func (b memBatch) Abort() error                  { return b.b.Discard() }

func newTestTable(t *testing.T, name string) *Table {
	t.Helper()
	return Open(newMemStore(), name)
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	tbl := newTestTable(t, "Widget")

	r1, err := tbl.Insert(Record{"name": "first"})
	require.NoError(t, err)
	require.Equal(t, "0000000000000000", r1.ID())

	r2, err := tbl.Insert(Record{"name": "second"})
	require.NoError(t, err)
	require.Equal(t, "0000000000000001", r2.ID())

	wcount, err := tbl.WCount()
	require.NoError(t, err)
	require.Equal(t, int64(2), wcount)
}

func TestInsertWithPredicateIndex(t *testing.T) {
	RegisterPredicate("widget-color-ops-test", func(r Record) string {
		color, _ := r["color"].(string)
		return "color:" + color
	})

	tbl := newTestTable(t, "WidgetColored")

	red1, err := tbl.Insert(Record{"color": "red"}, "widget-color-ops-test")
	require.NoError(t, err)
	red2, err := tbl.Insert(Record{"color": "red"}, "widget-color-ops-test")
	require.NoError(t, err)
	_, err = tbl.Insert(Record{"color": "blue"}, "widget-color-ops-test")
	require.NoError(t, err)

	rows, err := tbl.Select(false, "inter", []string{"color:red"}, "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.ElementsMatch(t, []string{red1.ID(), red2.ID()}, []string{rows[0].ID(), rows[1].ID()})
}

func TestGetRowRoundTrip(t *testing.T) {
	tbl := newTestTable(t, "Gadget")

	inserted, err := tbl.Insert(Record{"name": "gizmo"})
	require.NoError(t, err)

	got, err := tbl.GetRow(inserted.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "gizmo", got["name"])

	missing, err := tbl.GetRow("0000000099999999")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestUpdateRecomputesIndex(t *testing.T) {
	RegisterPredicate("gadget-status-ops-test", func(r Record) string {
		status, _ := r["status"].(string)
		return "status:" + status
	})

	tbl := newTestTable(t, "GadgetStatus")

	row, err := tbl.Insert(Record{"status": "pending"}, "gadget-status-ops-test")
	require.NoError(t, err)

	pending, err := tbl.Select(false, "inter", []string{"status:pending"}, "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	row["status"] = "done"
	updated, err := tbl.Update(row)
	require.NoError(t, err)
	require.Equal(t, "done", updated["status"])

	pendingAfter, err := tbl.Select(false, "inter", []string{"status:pending"}, "", 10)
	require.NoError(t, err)
	require.Empty(t, pendingAfter)

	done, err := tbl.Select(false, "inter", []string{"status:done"}, "", 10)
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, row.ID(), done[0].ID())
}

func TestUpdateUnknownIDFails(t *testing.T) {
	tbl := newTestTable(t, "Orphan")

	_, err := tbl.Update(Record{"id": "0000000000000042"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = tbl.Update(Record{"id": "not-a-lexokey"})
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestRemoveIsIdempotent(t *testing.T) {
	tbl := newTestTable(t, "Throwaway")

	row, err := tbl.Insert(Record{"name": "x"})
	require.NoError(t, err)

	require.NoError(t, tbl.Remove(row))
	require.NoError(t, tbl.Remove(row))

	got, err := tbl.GetRow(row.ID())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSelectPaginationForwardAndReverse(t *testing.T) {
	tbl := newTestTable(t, "Paged")

	var ids []string
	for i := 0; i < 5; i++ {
		row, err := tbl.Insert(Record{"n": i})
		require.NoError(t, err)
		ids = append(ids, row.ID())
	}

	page, err := tbl.Select(false, "inter", []string{"items"}, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[0], page[0].ID())
	require.Equal(t, ids[1], page[1].ID())

	rev, err := tbl.Select(true, "inter", []string{"items"}, "", 2)
	require.NoError(t, err)
	require.Len(t, rev, 2)
	require.Equal(t, ids[4], rev[0].ID())
	require.Equal(t, ids[3], rev[1].ID())
}

func TestSelectSeekContinuesReversePagination(t *testing.T) {
	tbl := newTestTable(t, "SeekCont")

	var ids []string
	for i := 0; i < 3; i++ {
		row, err := tbl.Insert(Record{"n": i})
		require.NoError(t, err)
		ids = append(ids, row.ID())
	}

	first, err := tbl.Select(true, "inter", []string{"items"}, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, ids[2], first[0].ID())
	require.Equal(t, ids[1], first[1].ID())

	lastKey, err := lexokey.Parse(first[1].ID())
	require.NoError(t, err)

	second, err := tbl.Select(true, "inter", []string{"items"}, lastKey.Decr().String(), 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, ids[0], second[0].ID())
}

func TestSelectUnionIsSupersetOfIntersection(t *testing.T) {
	tbl := newTestTable(t, "SetAlgebra")

	onlyA, err := tbl.Insert(Record{"tag": "a"}, "a")
	require.NoError(t, err)
	onlyB, err := tbl.Insert(Record{"tag": "b"}, "b")
	require.NoError(t, err)
	both, err := tbl.Insert(Record{"tag": "ab"}, "a", "b")
	require.NoError(t, err)

	union, err := tbl.Select(false, "union", []string{"a", "b"}, "", 10)
	require.NoError(t, err)
	var unionIDs []string
	for _, r := range union {
		unionIDs = append(unionIDs, r.ID())
	}
	require.ElementsMatch(t, []string{onlyA.ID(), onlyB.ID(), both.ID()}, unionIDs)

	inter, err := tbl.Select(false, "inter", []string{"a", "b"}, "", 10)
	require.NoError(t, err)
	require.Len(t, inter, 1)
	require.Equal(t, both.ID(), inter[0].ID())
	require.Subset(t, unionIDs, []string{inter[0].ID()})
}

func TestSelectCacheInvalidatesOnWrite(t *testing.T) {
	tbl := newTestTable(t, "Cached")

	_, err := tbl.Insert(Record{"n": 1})
	require.NoError(t, err)

	first, err := tbl.Select(false, "inter", []string{"items"}, "", 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = tbl.Insert(Record{"n": 2})
	require.NoError(t, err)

	second, err := tbl.Select(false, "inter", []string{"items"}, "", 10)
	require.NoError(t, err)
	require.Len(t, second, 2)
}

func TestTableStatsCountOperations(t *testing.T) {
	tbl := newTestTable(t, "Counted")

	row, err := tbl.Insert(Record{"n": 1})
	require.NoError(t, err)

	_, err = tbl.GetRow(row.ID())
	require.NoError(t, err)

	row["n"] = 2
	_, err = tbl.Update(row)
	require.NoError(t, err)

	require.NoError(t, tbl.Remove(row))

	stats := tbl.Stats()
	require.Equal(t, uint64(1), stats.Inserts)
	require.Equal(t, uint64(1), stats.Updates)
	require.Equal(t, uint64(1), stats.Removes)
	require.Equal(t, uint64(1), stats.GetRows)
	require.GreaterOrEqual(t, stats.Selects, uint64(1))
}
