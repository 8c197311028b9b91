package orm

import "sync"

// Predicate computes a secondary index key from a record. It is the Go
// analog of the original's index lambdas: given a row's data, return
// the string every row satisfying some condition should be filed
// under.
type Predicate func(Record) string

var predicateRegistry = struct {
	mu sync.RWMutex
	m  map[string]Predicate
}{m: make(map[string]Predicate)}

// RegisterPredicate associates fn with name. Model packages call this
// from an init() function, once per predicate, so the name survives
// process restarts as the durable, re-lookupable identity of an index
// — the persisted index entry stores name, never fn itself.
//
// Registering the same name twice panics: two conflicting definitions
// under one name is a build-time programming error, not a runtime
// condition to recover from.
func RegisterPredicate(name string, fn Predicate) {
	predicateRegistry.mu.Lock()
	defer predicateRegistry.mu.Unlock()

	if _, exists := predicateRegistry.m[name]; exists {
		panic("orm: predicate already registered under name " + name)
	}
	predicateRegistry.m[name] = fn
}

func lookupPredicate(name string) (Predicate, bool) {
	predicateRegistry.mu.RLock()
	defer predicateRegistry.mu.RUnlock()

	fn, ok := predicateRegistry.m[name]
	return fn, ok
}

// computeIndex resolves each name in ikeys against the predicate
// registry, producing the ckey each one maps data to. A name with no
// registered predicate is used verbatim as its own ckey — the literal
// index key case, identical to a registered predicate's result in
// every way except how it was derived. A predicate that panics yields
// the sentinel ckey indexPanicCKey, so a single misbehaving predicate
// degrades one index entry rather than the whole insert/update.
func computeIndex(ikeys []string, data Record) (ckeys []string, names []string) {
	ckeys = make([]string, len(ikeys))
	names = make([]string, len(ikeys))

	for i, name := range ikeys {
		names[i] = name
		ckeys[i] = evalIKey(name, data)
	}
	return ckeys, names
}

// indexPanicCKey is the sentinel ckey a panicking predicate is indexed
// under, so it can still be retracted on the next update or remove.
const indexPanicCKey = "..."

func evalIKey(name string, data Record) (ckey string) {
	fn, ok := lookupPredicate(name)
	if !ok {
		return name
	}

	defer func() {
		if r := recover(); r != nil {
			ckey = indexPanicCKey
		}
	}()
	return fn(data)
}
