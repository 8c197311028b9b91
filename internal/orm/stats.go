package orm

import "sync/atomic"

// OperationStats tracks per-table operation counts for monitoring and
// capacity planning. Counters are monotonically increasing and safe to
// read concurrently with any Table method.
type OperationStats struct {
	Inserts uint64
	Updates uint64
	Removes uint64
	Selects uint64
	GetRows uint64
}

// Stats returns a snapshot of this table's cumulative operation counts.
func (t *Table) Stats() OperationStats {
	return OperationStats{
		Inserts: atomic.LoadUint64(&t.stats.Inserts),
		Updates: atomic.LoadUint64(&t.stats.Updates),
		Removes: atomic.LoadUint64(&t.stats.Removes),
		Selects: atomic.LoadUint64(&t.stats.Selects),
		GetRows: atomic.LoadUint64(&t.stats.GetRows),
	}
}
