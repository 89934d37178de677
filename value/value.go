// Package value provides the dynamic value type for the native template
// engine.
//
// Unlike engines that render everything to text, this engine's renders
// produce a Value: the result of {{ 40 + 2 }} is the integer 42, the result
// of {{ [1, 2] }} is a list, and only genuinely textual output comes back as
// a string. The package therefore carries a closed set of value kinds that
// mirrors the literal grammar of the engine (ParseLiteral): none, booleans,
// integers (arbitrary precision), floats, strings, byte strings, lists,
// tuples, mappings, and sets. Everything else a host program hands in is
// carried through unchanged as an opaque value.
//
// # Creating Values
//
// Values are created with constructor functions:
//
//	name := value.FromString("World")
//	count := value.FromInt(42)
//	pair := value.FromTuple([]value.Value{name, count})
//
// Arbitrary Go data converts with FromAny, which maps slices to lists,
// arrays to tuples, maps and structs to mappings, and wraps anything it
// does not understand as an opaque value:
//
//	ctx := value.FromAny(map[string]any{"name": "Alice", "age": 30})
//
// # Text Conversion
//
// String returns the rendered text of a value and Repr its source-like
// form. The two are aligned with ParseLiteral: for every value built from
// the literal grammar, parsing the String output recovers an equal value.
// This round-trip is what allows the engine to join several output pieces
// into one string and still recover the typed result.
package value

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Callable is implemented by values that can be invoked from templates with
// call syntax, such as macros and registered functions.
type Callable interface {
	// Call invokes the callable with positional and keyword arguments.
	Call(state State, args []Value, kwargs map[string]Value) (Value, error)
}

// Object is implemented by host objects that expose attributes to
// templates via dot notation. Objects are opaque to the literal grammar;
// they pass through renders unchanged unless their text is needed.
type Object interface {
	// GetAttr returns the named attribute, or Undefined() if absent.
	GetAttr(name string) Value
}

// State is the interface the engine's render state implements. It lets
// callables reach back into the render without a dependency cycle between
// this package and the engine.
type State interface {
	// Context returns the Go context for this render operation.
	Context() context.Context

	// Lookup looks up a variable by name in the current scope.
	Lookup(name string) Value

	// Name returns the name of the template being rendered.
	Name() string
}

// Kind describes the variant a Value holds.
type Kind int

const (
	// KindUndefined is the sentinel for an unbound name, attribute or item.
	// It is not part of the literal grammar: it can flow through output and
	// definedness checks, but value-producing operators reject it.
	KindUndefined Kind = iota

	// KindNone is the null value, spelled none in templates.
	KindNone

	// KindBool is true or false.
	KindBool

	// KindInt is an integer of arbitrary precision. Small integers are
	// stored as int64 and overflow into big integers.
	KindInt

	// KindFloat is a 64-bit floating point number.
	KindFloat

	// KindString is UTF-8 text.
	KindString

	// KindBytes is a byte string, distinct from text.
	KindBytes

	// KindList is an ordered, growable sequence of values.
	KindList

	// KindTuple is a fixed-arity ordered sequence, distinct from a list.
	KindTuple

	// KindMap is an insertion-ordered mapping with value keys (see Dict).
	KindMap

	// KindSet is a collection of unique values (see Set).
	KindSet

	// KindCallable is a macro or function value.
	KindCallable

	// KindOpaque is any host object outside the literal grammar, carried
	// through unchanged.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindCallable:
		return "callable"
	case KindOpaque:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed template value.
//
// A Value holds exactly one of the kinds above. Primitive kinds are
// immutable; lists, tuples, mappings and sets are references, so a value
// returned from a render can be the very instance that was passed in. That
// identity is deliberate: a template consisting of a single expression
// returns the expression's value itself, not a copy and not its text.
type Value struct {
	data any
}

// internal marker types for the two singleton-ish kinds
type undefinedType struct{}
type noneType struct{}

// tupleValue distinguishes tuples from lists in the type switch.
type tupleValue []Value

// bigIntValue wraps a big.Int for integers beyond int64.
type bigIntValue struct {
	*big.Int
}

var (
	undefinedVal = undefinedType{}
	noneVal      = noneType{}
)

// ErrUndefinedOperation is wrapped by every error produced from applying a
// value-producing operator to an undefined value. Callers detect it with
// errors.Is.
var ErrUndefinedOperation = errors.New("undefined value used in operation")

// Undefined returns the undefined sentinel value.
func Undefined() Value {
	return Value{data: undefinedVal}
}

// None returns the none/null value.
func None() Value {
	return Value{data: noneVal}
}

// True returns the boolean true value.
func True() Value {
	return Value{data: true}
}

// False returns the boolean false value.
func False() Value {
	return Value{data: false}
}

// FromBool creates a Value from a boolean.
func FromBool(v bool) Value {
	return Value{data: v}
}

// FromInt creates a Value from an int64.
func FromInt(v int64) Value {
	return Value{data: v}
}

// FromBigInt creates a Value from a big.Int. Values that fit int64 are
// normalized to the small representation so equality and formatting do not
// depend on how an integer was produced.
func FromBigInt(v *big.Int) Value {
	if v.IsInt64() {
		return Value{data: v.Int64()}
	}
	return Value{data: bigIntValue{v}}
}

// FromFloat creates a Value from a float64.
func FromFloat(v float64) Value {
	return Value{data: v}
}

// FromString creates a Value from a string.
func FromString(v string) Value {
	return Value{data: v}
}

// FromBytes creates a Value from a byte slice.
func FromBytes(v []byte) Value {
	return Value{data: v}
}

// FromSlice creates a list Value from a slice of Values. The slice is
// referenced, not copied.
func FromSlice(v []Value) Value {
	return Value{data: v}
}

// FromTuple creates a tuple Value from a slice of Values. Tuples compare
// unequal to lists of the same elements and render in parentheses.
func FromTuple(v []Value) Value {
	return Value{data: tupleValue(v)}
}

// FromDict creates a map Value from a Dict.
func FromDict(d *Dict) Value {
	return Value{data: d}
}

// FromMap creates a map Value from a Go map with string keys. Keys are
// inserted in sorted order so the rendered text is deterministic.
func FromMap(v map[string]Value) Value {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := NewDict()
	for _, k := range keys {
		d.Set(FromString(k), v[k])
	}
	return FromDict(d)
}

// FromSet creates a set Value from a Set.
func FromSet(s *Set) Value {
	return Value{data: s}
}

// FromCallable creates a Value from a Callable.
func FromCallable(c Callable) Value {
	return Value{data: c}
}

// FromObject creates an opaque Value from an Object.
func FromObject(o Object) Value {
	return Value{data: o}
}

// FromOpaque wraps an arbitrary host value without conversion.
func FromOpaque(v any) Value {
	return Value{data: opaqueValue{v}}
}

// opaqueValue shields host data from the type switches so that, say, a host
// []Value does not accidentally become a list.
type opaqueValue struct {
	inner any
}

// FromAny creates a Value from any Go value using reflection.
//
//   - nil -> None()
//   - bool, integers, floats, string, []byte -> the matching kind
//   - slices -> lists, arrays -> tuples (both recursively)
//   - maps -> mappings (string keys sorted, other keys converted)
//   - structs -> mappings (exported fields, honoring json tags)
//   - pointers and interfaces -> dereferenced and converted
//   - anything else -> opaque
func FromAny(v any) Value {
	if v == nil {
		return None()
	}
	switch t := v.(type) {
	case Value:
		return t
	case *Dict:
		return FromDict(t)
	case *Set:
		return FromSet(t)
	case *big.Int:
		return FromBigInt(t)
	case Callable:
		return FromCallable(t)
	case Object:
		return FromObject(t)
	}
	return fromReflectValue(reflect.ValueOf(v))
}

func fromReflectValue(rv reflect.Value) Value {
	if !rv.IsValid() {
		return None()
	}
	if rv.CanInterface() {
		if val, ok := rv.Interface().(Value); ok {
			return val
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return FromBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FromInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return FromBigInt(new(big.Int).SetUint64(u))
		}
		return FromInt(int64(u))
	case reflect.Float32, reflect.Float64:
		return FromFloat(rv.Float())
	case reflect.String:
		return FromString(rv.String())
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return FromBytes(rv.Bytes())
		}
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = fromReflectValue(rv.Index(i))
		}
		return FromSlice(items)
	case reflect.Array:
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = fromReflectValue(rv.Index(i))
		}
		return FromTuple(items)
	case reflect.Map:
		type pair struct {
			text string
			key  Value
			val  Value
		}
		pairs := make([]pair, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fromReflectValue(iter.Key())
			pairs = append(pairs, pair{k.String(), k, fromReflectValue(iter.Value())})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].text < pairs[j].text })
		d := NewDict()
		for _, p := range pairs {
			d.Set(p.key, p.val)
		}
		return FromDict(d)
	case reflect.Struct:
		return fromStruct(rv)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return None()
		}
		if rv.CanInterface() {
			if obj, ok := rv.Interface().(Object); ok {
				return FromObject(obj)
			}
			if c, ok := rv.Interface().(Callable); ok {
				return FromCallable(c)
			}
		}
		return fromReflectValue(rv.Elem())
	default:
		return FromOpaque(rv.Interface())
	}
}

func fromStruct(rv reflect.Value) Value {
	t := rv.Type()
	d := NewDict()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
		}
		d.Set(FromString(name), fromReflectValue(rv.Field(i)))
	}
	return FromDict(d)
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	switch v.data.(type) {
	case undefinedType:
		return KindUndefined
	case noneType:
		return KindNone
	case bool:
		return KindBool
	case int64, bigIntValue:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	case []byte:
		return KindBytes
	case tupleValue:
		return KindTuple
	case []Value:
		return KindList
	case *Dict:
		return KindMap
	case *Set:
		return KindSet
	case Callable:
		return KindCallable
	default:
		return KindOpaque
	}
}

// IsUndefined returns true if the value is undefined.
func (v Value) IsUndefined() bool {
	_, ok := v.data.(undefinedType)
	return ok
}

// IsNone returns true if the value is none.
func (v Value) IsNone() bool {
	_, ok := v.data.(noneType)
	return ok
}

// IsNumber returns true for integers and floats.
func (v Value) IsNumber() bool {
	k := v.Kind()
	return k == KindInt || k == KindFloat
}

// IsActualInt returns true if the value is stored as an integer (not a
// float that happens to be whole). This distinguishes 42 from 42.0.
func (v Value) IsActualInt() bool {
	switch v.data.(type) {
	case int64, bigIntValue:
		return true
	}
	return false
}

// IsTrue returns the truthiness of the value. Empty collections, empty
// strings, zero numbers, none and undefined are false; opaque objects and
// callables are true.
func (v Value) IsTrue() bool {
	switch d := v.data.(type) {
	case undefinedType, noneType:
		return false
	case bool:
		return d
	case int64:
		return d != 0
	case bigIntValue:
		return d.Sign() != 0
	case float64:
		return d != 0 && !math.IsNaN(d)
	case string:
		return d != ""
	case []byte:
		return len(d) > 0
	case tupleValue:
		return len(d) > 0
	case []Value:
		return len(d) > 0
	case *Dict:
		return d.Len() > 0
	case *Set:
		return d.Len() > 0
	default:
		return true
	}
}

// String returns the rendered text of the value.
//
// The format round-trips through ParseLiteral for every literal-grammar
// kind: containers render their elements in Repr form, byte strings render
// with the b prefix, and floats keep a decimal point. Lone strings render
// bare (no quotes); it is the container context that quotes them.
func (v Value) String() string {
	switch d := v.data.(type) {
	case undefinedType:
		return ""
	case noneType:
		return "none"
	case bool:
		if d {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(d, 10)
	case bigIntValue:
		return d.Int.String()
	case float64:
		return formatFloat(d)
	case string:
		return d
	case []byte:
		return fmt.Sprintf("b%q", d)
	case tupleValue:
		return formatTuple(d)
	case []Value:
		return formatSeq("[", d, "]")
	case *Dict:
		return d.String()
	case *Set:
		return d.String()
	case opaqueValue:
		return fmt.Sprintf("%v", d.inner)
	default:
		if s, ok := d.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("%v", d)
	}
}

// Repr returns a source-like representation of the value. It differs from
// String only for undefined (spelled out) and for strings, which are
// double-quoted with escapes.
func (v Value) Repr() string {
	switch d := v.data.(type) {
	case undefinedType:
		return "undefined"
	case string:
		return strconv.Quote(d)
	default:
		return v.String()
	}
}

func formatFloat(d float64) string {
	if math.IsInf(d, 1) {
		return "inf"
	}
	if math.IsInf(d, -1) {
		return "-inf"
	}
	if math.IsNaN(d) {
		return "nan"
	}
	if d == math.Trunc(d) && math.Abs(d) < 1e15 {
		return fmt.Sprintf("%.1f", d)
	}
	return fmt.Sprintf("%g", d)
}

func formatSeq(open string, items []Value, closing string) string {
	var b strings.Builder
	b.WriteString(open)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(item.Repr())
	}
	b.WriteString(closing)
	return b.String()
}

// formatTuple renders one-element tuples with a trailing comma so the text
// re-parses as a tuple rather than a parenthesized value.
func formatTuple(items []Value) string {
	if len(items) == 1 {
		return "(" + items[0].Repr() + ",)"
	}
	return formatSeq("(", items, ")")
}

// AsString returns the string if the value is one.
func (v Value) AsString() (string, bool) {
	if s, ok := v.data.(string); ok {
		return s, true
	}
	return "", false
}

// AsBytes returns the byte string if the value is one.
func (v Value) AsBytes() ([]byte, bool) {
	if b, ok := v.data.([]byte); ok {
		return b, true
	}
	return nil, false
}

// AsBool returns the boolean if the value is one.
func (v Value) AsBool() (bool, bool) {
	if b, ok := v.data.(bool); ok {
		return b, true
	}
	return false, false
}

// AsInt returns the value as an int64 if it is an integer in range, or a
// whole float.
func (v Value) AsInt() (int64, bool) {
	switch d := v.data.(type) {
	case int64:
		return d, true
	case bigIntValue:
		if d.IsInt64() {
			return d.Int64(), true
		}
		return 0, false
	case float64:
		if d == math.Trunc(d) && !math.IsInf(d, 0) {
			return int64(d), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsBigInt returns the value as a big.Int if it is an integer. The result
// must not be mutated.
func (v Value) AsBigInt() (*big.Int, bool) {
	switch d := v.data.(type) {
	case int64:
		return big.NewInt(d), true
	case bigIntValue:
		return d.Int, true
	default:
		return nil, false
	}
}

// AsFloat returns the value as a float64 if it is numeric.
func (v Value) AsFloat() (float64, bool) {
	switch d := v.data.(type) {
	case int64:
		return float64(d), true
	case bigIntValue:
		f, _ := new(big.Float).SetInt(d.Int).Float64()
		return f, true
	case float64:
		return d, true
	default:
		return 0, false
	}
}

// AsSlice returns the elements if the value is a list or tuple. The
// returned slice aliases the value's storage.
func (v Value) AsSlice() ([]Value, bool) {
	switch d := v.data.(type) {
	case []Value:
		return d, true
	case tupleValue:
		return d, true
	default:
		return nil, false
	}
}

// AsDict returns the Dict if the value is a mapping.
func (v Value) AsDict() (*Dict, bool) {
	if d, ok := v.data.(*Dict); ok {
		return d, true
	}
	return nil, false
}

// AsSet returns the Set if the value is one.
func (v Value) AsSet() (*Set, bool) {
	if s, ok := v.data.(*Set); ok {
		return s, true
	}
	return nil, false
}

// AsCallable returns the Callable if the value is callable.
func (v Value) AsCallable() (Callable, bool) {
	if c, ok := v.data.(Callable); ok {
		return c, true
	}
	return nil, false
}

// AsObject returns the Object if the value wraps one.
func (v Value) AsObject() (Object, bool) {
	if o, ok := v.data.(Object); ok {
		return o, true
	}
	return nil, false
}

// Len returns the length of the value if it has one: characters of a
// string, bytes of a byte string, elements of a collection.
func (v Value) Len() (int, bool) {
	switch d := v.data.(type) {
	case string:
		return len([]rune(d)), true
	case []byte:
		return len(d), true
	case tupleValue:
		return len(d), true
	case []Value:
		return len(d), true
	case *Dict:
		return d.Len(), true
	case *Set:
		return d.Len(), true
	case SequenceObject:
		return len(d.Items()), true
	default:
		return 0, false
	}
}

// GetItem looks up an item by key: integer index for sequences, strings
// and byte strings (negative indexes count from the end), arbitrary value
// key for mappings. Missing items are Undefined.
func (v Value) GetItem(key Value) Value {
	switch d := v.data.(type) {
	case []Value:
		return seqItem(d, key)
	case tupleValue:
		return seqItem(d, key)
	case *Dict:
		if val, ok := d.Get(key); ok {
			return val
		}
	case string:
		if idx, ok := key.AsInt(); ok {
			runes := []rune(d)
			if idx < 0 {
				idx += int64(len(runes))
			}
			if idx >= 0 && idx < int64(len(runes)) {
				return FromString(string(runes[idx]))
			}
		}
	case []byte:
		if idx, ok := key.AsInt(); ok {
			if idx < 0 {
				idx += int64(len(d))
			}
			if idx >= 0 && idx < int64(len(d)) {
				return FromInt(int64(d[idx]))
			}
		}
	case Object:
		if seq, ok := d.(SequenceObject); ok {
			if _, isInt := key.AsInt(); isInt {
				return seqItem(seq.Items(), key)
			}
		}
		if s, ok := key.AsString(); ok {
			return d.GetAttr(s)
		}
	}
	return Undefined()
}

func seqItem(items []Value, key Value) Value {
	idx, ok := key.AsInt()
	if !ok {
		return Undefined()
	}
	if idx < 0 {
		idx += int64(len(items))
	}
	if idx >= 0 && idx < int64(len(items)) {
		return items[idx]
	}
	return Undefined()
}

// GetAttr looks up an attribute by name: mapping entries with a matching
// string key, or host object attributes.
func (v Value) GetAttr(name string) Value {
	switch d := v.data.(type) {
	case *Dict:
		if val, ok := d.Get(FromString(name)); ok {
			return val
		}
	case Object:
		return d.GetAttr(name)
	}
	return Undefined()
}

// Iter returns the iteration items of the value: elements of sequences and
// sets, keys of mappings, characters of a string. The second result is
// false when the value cannot be iterated.
func (v Value) Iter() ([]Value, bool) {
	switch d := v.data.(type) {
	case []Value:
		return d, true
	case tupleValue:
		return d, true
	case *Dict:
		return d.Keys(), true
	case *Set:
		return d.Items(), true
	case string:
		runes := []rune(d)
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = FromString(string(r))
		}
		return items, true
	case SequenceObject:
		return d.Items(), true
	default:
		return nil, false
	}
}

// SameAs checks whether two values are the same value, which is stricter
// than equality. Reference kinds (lists, tuples, mappings, sets, objects)
// must be the same instance; primitives must match in kind and value, so
// 42 is not the same as 42.0 even though they are equal.
func (v Value) SameAs(other Value) bool {
	switch d := v.data.(type) {
	case []Value:
		o, ok := other.data.([]Value)
		return ok && sameSlice(d, o)
	case tupleValue:
		o, ok := other.data.(tupleValue)
		return ok && sameSlice(d, o)
	case *Dict:
		o, ok := other.data.(*Dict)
		return ok && d == o
	case *Set:
		o, ok := other.data.(*Set)
		return ok && d == o
	case []byte:
		o, ok := other.data.([]byte)
		return ok && sameSlice(d, o)
	case Callable, Object:
		return sameRef(v.data, other.data)
	case opaqueValue:
		o, ok := other.data.(opaqueValue)
		return ok && sameRef(d.inner, o.inner)
	}
	if v.Kind() != other.Kind() {
		return false
	}
	if v.IsActualInt() != other.IsActualInt() {
		return false
	}
	return v.Equal(other)
}

func sameSlice[T any](a, b []T) bool {
	// Compare the full slice header so reslices do not count as the same.
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer() &&
		len(a) == len(b) && cap(a) == cap(b)
}

// Clone returns a shallow copy of lists and mappings and the value itself
// for everything immutable.
func (v Value) Clone() Value {
	switch d := v.data.(type) {
	case []Value:
		items := make([]Value, len(d))
		copy(items, d)
		return FromSlice(items)
	case *Dict:
		return FromDict(d.Clone())
	default:
		return v
	}
}

// Raw returns the underlying Go representation. Opaque values unwrap to
// the host value they were created from.
func (v Value) Raw() any {
	if o, ok := v.data.(opaqueValue); ok {
		return o.inner
	}
	return v.data
}

// Export converts the value to plain Go data: nil for none and undefined,
// int64 or *big.Int for integers, []any for sequences and sets,
// map[string]any for mappings with string keys (map[any]any otherwise).
// This is the form handed to YAML and JSON encoders.
func (v Value) Export() any {
	switch d := v.data.(type) {
	case undefinedType, noneType:
		return nil
	case bool:
		return d
	case int64:
		return d
	case bigIntValue:
		return d.Int
	case float64:
		return d
	case string:
		return d
	case []byte:
		return d
	case tupleValue:
		return exportSlice(d)
	case []Value:
		return exportSlice(d)
	case *Dict:
		return d.Export()
	case *Set:
		return exportSlice(d.Items())
	case opaqueValue:
		return d.inner
	default:
		return d
	}
}

func exportSlice(items []Value) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item.Export()
	}
	return out
}
