// Package orm implements a small document model on top of mdb.Client:
// ordered row storage keyed by internal/lexokey ids, secondary indexes
// materialized from registered predicates, and cached set-algebra
// selection over those indexes. Schema (model.go) declares a record's
// fields — which are mandatory, which carry a default — on top of the
// bare Record map, along with the field-set equality and hash every
// model needs.
//
// A table named "User" stores its rows under the "User." key prefix
// and its index entries under the "Users." prefix — deliberately
// distinct prefixes (the trailing 's' is not a typo) so a row scan and
// an index scan never collide despite sharing a common root.
package orm

// Record is a single row: a flat, JSON-literal-compatible document.
// The "id" field holds the row's lexokey.Key, rendered as a string;
// "ckeys" holds the list of index keys this exact version of the row
// was last filed under, so Update and Remove know what to retract.
type Record map[string]any

// ID returns the record's id field as a string, or "" if absent or not
// a string.
func (r Record) ID() string {
	s, _ := r["id"].(string)
	return s
}

// CKeys returns the record's persisted index key list. It accepts both
// []string (a record just built in this process, not yet round-tripped
// through the engine) and []any (one decoded off the wire or out of
// storage, where every JSON array comes back as []any).
func (r Record) CKeys() []string {
	switch raw := r["ckeys"].(type) {
	case []string:
		out := make([]string, len(raw))
		copy(out, raw)
		return out
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
