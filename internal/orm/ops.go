package orm

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/dreamware/kvbroker/internal/lexokey"
)

// Insert allocates a fresh id, computes the record's secondary index
// entries, and writes the row, its index entries, and the table's
// write counter as a single batch. names lists the predicate names the
// row should be filed under; "items" is implicit and need not be
// included. Every index entry's stored value is the predicate name
// itself, not its computed ckey — Update re-derives ckeys later by
// looking each name back up in the registry, never from what's
// currently in memory.
func (t *Table) Insert(data Record, names ...string) (Record, error) {
	atomic.AddUint64(&t.stats.Inserts, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	ikeys := uniqueStrings(append([]string{"items"}, names...))

	id, err := t.nextID()
	if err != nil {
		return nil, err
	}
	wcount, err := t.wcountLocked()
	if err != nil {
		return nil, err
	}

	row := cloneRecord(data)
	delete(row, "ckeys")
	row["id"] = id.String()

	ckeys, _ := computeIndex(ikeys, row)
	row["ckeys"] = ckeys

	wb, err := t.store.WriteBatch()
	if err != nil {
		return nil, err
	}

	for i, ckey := range ckeys {
		if err := wb.Put(t.indexPrefix()+ckey+"."+id.String(), ikeys[i]); err != nil {
			_ = wb.Abort()
			return nil, err
		}
	}
	if err := wb.Put(t.dataPrefix()+id.String(), map[string]any(row)); err != nil {
		_ = wb.Abort()
		return nil, err
	}
	if err := wb.Put(t.wcountKey(), wcount+1); err != nil {
		_ = wb.Abort()
		return nil, err
	}
	if err := wb.Commit(); err != nil {
		return nil, err
	}

	t.invalidateCache()
	return row, nil
}

// Remove deletes the row named by data's id field along with every
// index entry it was filed under. An id that fails to parse, or that
// names a row already removed (or never inserted), is silently a
// no-op — removing the same row twice is not an error.
func (t *Table) Remove(data Record) error {
	atomic.AddUint64(&t.stats.Removes, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	idStr, _ := data["id"].(string)
	key, err := lexokey.Parse(idStr)
	if err != nil || idStr == "" {
		return nil
	}
	id := key.String()

	wcount, err := t.wcountLocked()
	if err != nil {
		return err
	}

	val, err := t.store.Get(t.dataPrefix() + id)
	if err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	rowMap, ok := val.(map[string]any)
	if !ok {
		return fmt.Errorf("orm: table %q: corrupt row %q", t.name, id)
	}
	row := Record(rowMap)

	wb, err := t.store.WriteBatch()
	if err != nil {
		return err
	}
	for _, ckey := range row.CKeys() {
		// Best-effort, matching the original's swallowed per-entry
		// delete failures: a missing index entry must not abort the
		// row delete.
		_ = wb.Delete(t.indexPrefix() + ckey + "." + id)
	}
	if err := wb.Delete(t.dataPrefix() + id); err != nil {
		_ = wb.Abort()
		return err
	}
	if err := wb.Put(t.wcountKey(), wcount+1); err != nil {
		_ = wb.Abort()
		return err
	}
	if err := wb.Commit(); err != nil {
		return err
	}

	t.invalidateCache()
	return nil
}

// Update merges data into the existing row sharing its id (data's
// fields win on conflict), recomputes every index entry from the
// predicate names the row was last filed under, and rewrites the row,
// the retracted old index entries, and the new ones as a single batch.
func (t *Table) Update(data Record) (Record, error) {
	atomic.AddUint64(&t.stats.Updates, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	idStr, _ := data["id"].(string)
	key, err := lexokey.Parse(idStr)
	if err != nil || idStr == "" {
		return nil, ErrInvalidID
	}
	id := key.String()

	wcount, err := t.wcountLocked()
	if err != nil {
		return nil, err
	}

	existing, err := t.store.Get(t.dataPrefix() + id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	oldRowMap, ok := existing.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("orm: table %q: corrupt row %q", t.name, id)
	}
	old := Record(oldRowMap)
	oldCKeys := old.CKeys()

	// The only place the predicate-name set for this row survives is
	// the value stored alongside each of its old index entries.
	nameSet := make(map[string]bool, len(oldCKeys))
	for _, ckey := range oldCKeys {
		v, err := t.store.Get(t.indexPrefix() + ckey + "." + id)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(string); ok {
			nameSet[s] = true
		}
	}
	ikeys := make([]string, 0, len(nameSet))
	for n := range nameSet {
		ikeys = append(ikeys, n)
	}
	sort.Strings(ikeys)

	merged := cloneRecord(old)
	for k, v := range data {
		if k == "ckeys" {
			continue
		}
		merged[k] = v
	}
	delete(merged, "ckeys")

	newCKeys, _ := computeIndex(ikeys, merged)
	merged["ckeys"] = newCKeys

	wb, err := t.store.WriteBatch()
	if err != nil {
		return nil, err
	}
	for _, ckey := range oldCKeys {
		_ = wb.Delete(t.indexPrefix() + ckey + "." + id)
	}
	for i, ckey := range newCKeys {
		if err := wb.Put(t.indexPrefix()+ckey+"."+id, ikeys[i]); err != nil {
			_ = wb.Abort()
			return nil, err
		}
	}
	if err := wb.Put(t.dataPrefix()+id, map[string]any(merged)); err != nil {
		_ = wb.Abort()
		return nil, err
	}
	if err := wb.Put(t.wcountKey(), wcount+1); err != nil {
		_ = wb.Abort()
		return nil, err
	}
	if err := wb.Commit(); err != nil {
		return nil, err
	}

	t.invalidateCache()
	return merged, nil
}

// Select scans the index under each name in ckeys and returns the
// matching rows, deduplicated by id. mode "inter" (the default every
// caller should pass unless they mean otherwise) keeps only rows whose
// own persisted ckeys list contains every name in ckeys; any other
// mode unions the per-name scans instead. seek, if non-empty, names a
// row id to resume from; per the engine adapter's own seek contract, a
// match equal to seek is included on both sides (the first id >= seek
// ascending, or the first id <= seek descending), which is what lets a
// caller page through results by re-seeking to (last_id ± 1) without
// re-returning or skipping a row. Results are memoized per (reverse,
// mode, ckeys, seek, limit) until the next write to this table.
func (t *Table) Select(reverse bool, mode string, ckeys []string, seek string, limit int) ([]Record, error) {
	atomic.AddUint64(&t.stats.Selects, 1)

	if len(ckeys) == 0 {
		ckeys = []string{"items"}
	}
	if limit <= 0 {
		return nil, nil
	}
	intersection := strings.HasPrefix(mode, "inter")

	var seekArg string
	if seek != "" {
		k, err := lexokey.Parse(seek)
		if err != nil {
			return nil, err
		}
		seekArg = k.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cacheKey := selectCacheKey(reverse, intersection, ckeys, seekArg, limit)

	t.selectMu.Lock()
	if cached, ok := t.selectMemo[cacheKey]; ok {
		t.selectMu.Unlock()
		return cached, nil
	}
	t.selectMu.Unlock()

	ids := make(map[string]bool)
	var result []Record
	count := 0

outer:
	for _, ckey := range ckeys {
		next, closeFn, err := t.store.Iterator(t.indexPrefix()+ckey+".", reverse, seekArg)
		if err != nil {
			return nil, err
		}

		for {
			id, _, ok, err := next()
			if err != nil {
				_ = closeFn()
				return nil, err
			}
			if !ok {
				break
			}
			if ids[id] {
				continue
			}
			ids[id] = true
			if !lexokey.Match(id) {
				continue
			}

			val, err := t.store.Get(t.dataPrefix() + id)
			if err != nil {
				_ = closeFn()
				return nil, err
			}
			rowMap, ok := val.(map[string]any)
			if !ok {
				continue
			}
			row := Record(rowMap)

			if !intersection {
				result = append(result, row)
				count++
				if count >= limit {
					_ = closeFn()
					break outer
				}
				continue
			}

			if containsAll(row.CKeys(), ckeys) {
				result = append(result, row)
				count++
				if count >= limit {
					_ = closeFn()
					break outer
				}
			}
		}
		_ = closeFn()
	}

	t.selectMu.Lock()
	t.selectMemo[cacheKey] = result
	t.selectMu.Unlock()

	return result, nil
}

func selectCacheKey(reverse, intersection bool, ckeys []string, seek string, limit int) string {
	return fmt.Sprintf("%v|%v|%s|%s|%d", reverse, intersection, strings.Join(ckeys, "\x00"), seek, limit)
}

// InsertModel builds a record from data via schema's field declarations
// — applying defaults and failing on any still-missing mandatory field
// — then inserts it under schema's declared predicate names.
func (t *Table) InsertModel(schema *Schema, data Record) (Record, error) {
	row, err := schema.New(data)
	if err != nil {
		return nil, err
	}
	return t.Insert(row, schema.IKeysFor()...)
}

// UpdateModel merges data into the existing row the same way Update
// does, after running it through schema's field declarations.
func (t *Table) UpdateModel(schema *Schema, data Record) (Record, error) {
	row, err := schema.New(data)
	if err != nil {
		return nil, err
	}
	return t.Update(row)
}

// GetRow returns the row with the given id, or (nil, nil) if no such
// row exists. It is built on Select exactly as the original layers
// get-by-id on top of its selection primitive: seek id in reverse order
// under limit 1 — which, since a reverse seek includes an exact match,
// lands on id itself when it exists — then verify the row landed on
// really is id (seeking to an absent id instead lands on its nearest
// lesser neighbor).
func (t *Table) GetRow(id string) (Record, error) {
	atomic.AddUint64(&t.stats.GetRows, 1)

	key, err := lexokey.Parse(id)
	if err != nil {
		return nil, nil
	}

	rows, err := t.Select(true, "inter", []string{"items"}, key.String(), 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	if row.ID() != key.String() {
		return nil, nil
	}
	return row, nil
}
