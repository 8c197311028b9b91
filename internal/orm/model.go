package orm

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/dreamware/kvbroker/internal/literal"
)

// FieldDefault computes a field's value when a caller omits it. It is
// invoked at construction time with the partially-built record — every
// field already resolved by an earlier Field call in the same Schema —
// mirroring a model field whose default derives from a sibling field.
type FieldDefault func(Record) any

// FieldSpec declares one field of a Schema. A field with both Default
// and Value nil is mandatory: Schema.New fails if the caller omits it.
// A field with Default set gets a freshly computed value for every
// record that omits it; a field with Value set is copied verbatim.
// Exactly one of Default/Value should be set; Default takes precedence
// if both are.
type FieldSpec struct {
	Default FieldDefault
	Value   any
}

// Schema declares a model's fields, in the order their defaults should
// resolve (a later field's Default may read an earlier field's
// resolved value, never the reverse), plus the predicate names every
// row of this model is indexed under. Every Schema implicitly declares
// "timestamp" first, defaulting to the Unix time of construction, the
// one field every model carries without being asked — it is excluded,
// along with "id", from Equal and Hash comparisons.
type Schema struct {
	name   string
	order  []string
	fields map[string]FieldSpec
	ikeys  []string
}

// NewSchema returns an empty Schema for the named model.
func NewSchema(name string) *Schema {
	s := &Schema{name: name, fields: make(map[string]FieldSpec)}
	s.Field("timestamp", FieldSpec{Default: func(Record) any { return time.Now().Unix() }})
	return s
}

// Field declares or redeclares a field. Calling Field again with a name
// already declared replaces its spec without changing its position in
// declaration order.
func (s *Schema) Field(name string, spec FieldSpec) *Schema {
	if _, exists := s.fields[name]; !exists {
		s.order = append(s.order, name)
	}
	s.fields[name] = spec
	return s
}

// IKeys sets the predicate names every record built by this Schema is
// indexed under; "items" is implicit and need not be included. Table
// Insert callers pass Schema.IKeysFor() as the names argument.
func (s *Schema) IKeys(names ...string) *Schema {
	s.ikeys = names
	return s
}

// IKeysFor returns this Schema's declared predicate names, for passing
// to Table.Insert. Table.Update takes no names: it re-derives them from
// the row's persisted index entries.
func (s *Schema) IKeysFor() []string {
	return append([]string(nil), s.ikeys...)
}

// New builds a record from data: caller-supplied fields win; any field
// still missing after declaration-order defaults are applied is
// reported via ErrMandatoryField.
func (s *Schema) New(data Record) (Record, error) {
	row := cloneRecord(data)
	for _, name := range s.order {
		if _, ok := row[name]; ok {
			continue
		}
		spec := s.fields[name]
		switch {
		case spec.Default != nil:
			row[name] = spec.Default(row)
		case spec.Value != nil:
			row[name] = spec.Value
		default:
			return nil, fmt.Errorf("%w: %q field %q", ErrMandatoryField, s.name, name)
		}
	}
	return row, nil
}

// comparables returns every declared field except id and timestamp, the
// set Equal and Hash compare over.
func (s *Schema) comparables() []string {
	out := make([]string, 0, len(s.order))
	for _, name := range s.order {
		if name == "id" || name == "timestamp" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Equal reports whether a and b agree on every comparable field: every
// declared field except id and timestamp.
func (s *Schema) Equal(a, b Record) bool {
	for _, name := range s.comparables() {
		ae, _ := literal.Encode(a[name])
		be, _ := literal.Encode(b[name])
		if string(ae) != string(be) {
			return false
		}
	}
	return true
}

// Hash returns a value such that Equal(a, b) implies Hash(a) == Hash(b),
// derived from the same comparable fields and the same canonical
// literal encoding Equal compares with.
func (s *Schema) Hash(r Record) uint64 {
	h := fnv.New64a()
	for _, name := range s.comparables() {
		enc, _ := literal.Encode(r[name])
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(enc)
		h.Write([]byte{0})
	}
	return h.Sum64()
}
