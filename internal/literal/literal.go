// Package literal implements the reversible textual encoding shared by the
// KV engine adapter (stored values) and the slot transport (request/reply
// frames). Both call this the "textual literal" form: a JSON document
// admitting decimal integers, quoted strings, true/false/null, and nested
// arrays/objects.
//
// Integers round-trip exactly: Decode reports whole numbers as int64
// rather than float64, so LexoKey strings and write counters never pick
// up floating point noise.
package literal

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/decoder"
)

// api is the sonic configuration used for every literal encode/decode in
// the module. UseNumber preserves integer precision across the
// marshal/unmarshal round trip; SortMapKeys makes encoded maps
// deterministic, which matters because frame/value bytes are compared and
// logged for diagnostics.
var api = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// CorruptionError reports a textual literal that failed to parse, naming
// the engine key it was read from. It is always fatal to the operation
// that raised it.
type CorruptionError struct {
	Key string
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt value for key %q: %v", e.Key, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Encode renders v as its canonical textual literal.
func Encode(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Decode parses a textual literal into a generic value: map[string]any,
// []any, string, int64 (whole numbers), json.Number (any other number),
// bool, or nil. Callers that need a concrete shape should further
// type-assert or re-decode into a struct with DecodeInto.
func Decode(raw []byte) (any, error) {
	var v any
	dec := decoder.NewDecoder(string(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return wholeNumbers(v), nil
}

func wholeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
	case map[string]any:
		for k, e := range x {
			x[k] = wholeNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = wholeNumbers(e)
		}
	}
	return v
}

// DecodeKey parses raw as a textual literal, wrapping any parse failure in
// a CorruptionError naming key, per the KV engine adapter contract.
func DecodeKey(key string, raw []byte) (any, error) {
	v, err := Decode(raw)
	if err != nil {
		return nil, &CorruptionError{Key: key, Err: err}
	}
	return v, nil
}

// DecodeInto parses raw into the struct or map pointed to by out.
func DecodeInto(raw []byte, out any) error {
	dec := decoder.NewDecoder(string(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// AsInt64 converts a decoded numeric literal (json.Number, int64, float64,
// or int) to int64. It returns false if v is not a whole number.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
