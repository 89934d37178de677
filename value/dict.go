package value

import (
	"iter"
	"strings"
)

// Dict is the engine's mapping type: insertion-ordered, with arbitrary
// Values as keys. Keys are unique under value equality, which follows the
// numeric tower, so 1, 1.0 and true all address the same entry. Lookup is
// a linear scan; template mappings are small and the predictable order is
// what keeps rendered text deterministic.
type Dict struct {
	entries []dictEntry
}

type dictEntry struct {
	key Value
	val Value
}

// NewDict creates an empty Dict.
func NewDict() *Dict {
	return &Dict{}
}

// Set inserts or replaces the entry for key. Replacing keeps the original
// insertion position.
func (d *Dict) Set(key, val Value) {
	for i, e := range d.entries {
		if e.key.Equal(key) {
			d.entries[i].val = val
			return
		}
	}
	d.entries = append(d.entries, dictEntry{key: key, val: val})
}

// Get returns the value stored under key.
func (d *Dict) Get(key Value) (Value, bool) {
	for _, e := range d.entries {
		if e.key.Equal(key) {
			return e.val, true
		}
	}
	return Undefined(), false
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.entries)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []Value {
	keys := make([]Value, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.key
	}
	return keys
}

// Values returns the values in insertion order.
func (d *Dict) Values() []Value {
	vals := make([]Value, len(d.entries))
	for i, e := range d.entries {
		vals[i] = e.val
	}
	return vals
}

// All iterates the entries in insertion order.
func (d *Dict) All() iter.Seq2[Value, Value] {
	return func(yield func(Value, Value) bool) {
		for _, e := range d.entries {
			if !yield(e.key, e.val) {
				return
			}
		}
	}
}

// Clone returns a shallow copy.
func (d *Dict) Clone() *Dict {
	entries := make([]dictEntry, len(d.entries))
	copy(entries, d.entries)
	return &Dict{entries: entries}
}

// Equal reports whether two dicts hold equal values under equal keys,
// ignoring insertion order.
func (d *Dict) Equal(other *Dict) bool {
	if d.Len() != other.Len() {
		return false
	}
	for _, e := range d.entries {
		ov, ok := other.Get(e.key)
		if !ok || !e.val.Equal(ov) {
			return false
		}
	}
	return true
}

func (d *Dict) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, e := range d.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.key.Repr())
		b.WriteString(": ")
		b.WriteString(e.val.Repr())
	}
	b.WriteString("}")
	return b.String()
}

// Export converts to plain Go data for encoders: map[string]any when every
// key is a string, map[any]any otherwise.
func (d *Dict) Export() any {
	allStrings := true
	for _, e := range d.entries {
		if _, ok := e.key.AsString(); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		out := make(map[string]any, len(d.entries))
		for _, e := range d.entries {
			s, _ := e.key.AsString()
			out[s] = e.val.Export()
		}
		return out
	}
	out := make(map[any]any, len(d.entries))
	for _, e := range d.entries {
		out[e.key.Export()] = e.val.Export()
	}
	return out
}

// Set is the engine's set type: unique Values in insertion order. Like
// Dict it deduplicates under value equality with a linear scan.
type Set struct {
	items []Value
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Add inserts v unless an equal value is already present.
func (s *Set) Add(v Value) {
	for _, item := range s.items {
		if item.Equal(v) {
			return
		}
	}
	s.items = append(s.items, v)
}

// Has reports whether an equal value is present.
func (s *Set) Has(v Value) bool {
	for _, item := range s.items {
		if item.Equal(v) {
			return true
		}
	}
	return false
}

// Len returns the number of elements.
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns the elements in insertion order.
func (s *Set) Items() []Value {
	return s.items
}

// All iterates the elements in insertion order.
func (s *Set) All() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		for _, item := range s.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Equal reports whether two sets have the same membership.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, item := range s.items {
		if !other.Has(item) {
			return false
		}
	}
	return true
}

func (s *Set) String() string {
	// There is no literal for the empty set; it renders like the
	// constructor call its source form would use.
	if len(s.items) == 0 {
		return "set()"
	}
	var b strings.Builder
	b.WriteString("{")
	for i, item := range s.items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(item.Repr())
	}
	b.WriteString("}")
	return b.String()
}
