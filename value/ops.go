package value

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
)

// Operators in this file never run on undefined operands: every
// value-producing operation checks first and fails with an error wrapping
// ErrUndefinedOperation. Definedness tests, equality and truthiness stay
// error-free, so templates can probe missing values without tripping over
// them.

func checkDefined(op string, a, b Value) error {
	if a.IsUndefined() || b.IsUndefined() {
		return fmt.Errorf("%w: cannot %s undefined value", ErrUndefinedOperation, op)
	}
	return nil
}

// Neg performs unary negation.
func (v Value) Neg() (Value, error) {
	switch d := v.data.(type) {
	case undefinedType:
		return Undefined(), fmt.Errorf("%w: cannot negate undefined value", ErrUndefinedOperation)
	case int64:
		if d == math.MinInt64 {
			return FromBigInt(new(big.Int).Neg(big.NewInt(d))), nil
		}
		return FromInt(-d), nil
	case bigIntValue:
		return FromBigInt(new(big.Int).Neg(d.Int)), nil
	case float64:
		return FromFloat(-d), nil
	default:
		return Undefined(), fmt.Errorf("cannot negate %s", v.Kind())
	}
}

// Add performs addition, string/bytes concatenation or sequence
// concatenation. Adding two integers stays exact: int64 arithmetic
// overflows into big integers instead of wrapping.
func (v Value) Add(other Value) (Value, error) {
	if err := checkDefined("add", v, other); err != nil {
		return Undefined(), err
	}

	if s1, ok := v.AsString(); ok {
		if s2, ok := other.AsString(); ok {
			return FromString(s1 + s2), nil
		}
	}
	if b1, ok := v.AsBytes(); ok {
		if b2, ok := other.AsBytes(); ok {
			out := make([]byte, 0, len(b1)+len(b2))
			out = append(out, b1...)
			out = append(out, b2...)
			return FromBytes(out), nil
		}
	}

	if v.IsActualInt() && other.IsActualInt() {
		if x, ok1 := v.data.(int64); ok1 {
			if y, ok2 := other.data.(int64); ok2 {
				sum := x + y
				if (y > 0 && sum < x) || (y < 0 && sum > x) {
					return bigOp(v, other, new(big.Int).Add), nil
				}
				return FromInt(sum), nil
			}
		}
		return bigOp(v, other, new(big.Int).Add), nil
	}
	if f1, ok := numOperand(v); ok {
		if f2, ok := numOperand(other); ok {
			return FromFloat(f1 + f2), nil
		}
	}

	if v.Kind() == KindList && other.Kind() == KindList {
		s1, _ := v.AsSlice()
		s2, _ := other.AsSlice()
		return FromSlice(concatSlices(s1, s2)), nil
	}
	if v.Kind() == KindTuple && other.Kind() == KindTuple {
		s1, _ := v.AsSlice()
		s2, _ := other.AsSlice()
		return FromTuple(concatSlices(s1, s2)), nil
	}

	return Undefined(), fmt.Errorf("cannot add %s and %s", v.Kind(), other.Kind())
}

// Sub performs subtraction.
func (v Value) Sub(other Value) (Value, error) {
	if err := checkDefined("subtract", v, other); err != nil {
		return Undefined(), err
	}
	if v.IsActualInt() && other.IsActualInt() {
		if x, ok1 := v.data.(int64); ok1 {
			if y, ok2 := other.data.(int64); ok2 {
				diff := x - y
				if (y < 0 && diff < x) || (y > 0 && diff > x) {
					return bigOp(v, other, new(big.Int).Sub), nil
				}
				return FromInt(diff), nil
			}
		}
		return bigOp(v, other, new(big.Int).Sub), nil
	}
	if f1, ok := numOperand(v); ok {
		if f2, ok := numOperand(other); ok {
			return FromFloat(f1 - f2), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot subtract %s from %s", other.Kind(), v.Kind())
}

// Mul performs multiplication, or repetition when one operand is a string
// or sequence and the other a non-negative integer.
func (v Value) Mul(other Value) (Value, error) {
	if err := checkDefined("multiply", v, other); err != nil {
		return Undefined(), err
	}

	if out, ok := tryRepeat(v, other); ok {
		return out, nil
	}
	if out, ok := tryRepeat(other, v); ok {
		return out, nil
	}

	if v.IsActualInt() && other.IsActualInt() {
		if x, ok1 := v.data.(int64); ok1 {
			if y, ok2 := other.data.(int64); ok2 {
				prod := x * y
				if x != 0 && (prod/x != y || (x == -1 && y == math.MinInt64)) {
					return bigOp(v, other, new(big.Int).Mul), nil
				}
				return FromInt(prod), nil
			}
		}
		return bigOp(v, other, new(big.Int).Mul), nil
	}
	if f1, ok := numOperand(v); ok {
		if f2, ok := numOperand(other); ok {
			return FromFloat(f1 * f2), nil
		}
	}

	return Undefined(), fmt.Errorf("cannot multiply %s and %s", v.Kind(), other.Kind())
}

func tryRepeat(val, count Value) (Value, bool) {
	n, ok := count.AsInt()
	if !ok || !count.IsActualInt() || n < 0 {
		return Undefined(), false
	}
	if s, ok := val.AsString(); ok {
		return FromString(strings.Repeat(s, int(n))), true
	}
	if b, ok := val.AsBytes(); ok {
		return FromBytes(bytes.Repeat(b, int(n))), true
	}
	if items, ok := val.AsSlice(); ok {
		out := make([]Value, 0, len(items)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, items...)
		}
		if val.Kind() == KindTuple {
			return FromTuple(out), true
		}
		return FromSlice(out), true
	}
	return Undefined(), false
}

// Div performs true division and always yields a float.
func (v Value) Div(other Value) (Value, error) {
	if err := checkDefined("divide", v, other); err != nil {
		return Undefined(), err
	}
	if f1, ok := numOperand(v); ok {
		if f2, ok := numOperand(other); ok {
			if f2 == 0 && v.IsActualInt() && other.IsActualInt() {
				return Undefined(), fmt.Errorf("division by zero")
			}
			return FromFloat(f1 / f2), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot divide %s by %s", v.Kind(), other.Kind())
}

// FloorDiv performs floor division. Integer operands stay integers and
// round toward negative infinity.
func (v Value) FloorDiv(other Value) (Value, error) {
	if err := checkDefined("floor divide", v, other); err != nil {
		return Undefined(), err
	}
	if v.IsActualInt() && other.IsActualInt() {
		x, _ := v.AsBigInt()
		y, _ := other.AsBigInt()
		if y.Sign() == 0 {
			return Undefined(), fmt.Errorf("division by zero")
		}
		q, r := new(big.Int).QuoRem(x, y, new(big.Int))
		if r.Sign() != 0 && (x.Sign() < 0) != (y.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		}
		return FromBigInt(q), nil
	}
	if f1, ok := numOperand(v); ok {
		if f2, ok := numOperand(other); ok {
			if f2 == 0 {
				return Undefined(), fmt.Errorf("division by zero")
			}
			return FromFloat(math.Floor(f1 / f2)), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot floor divide %s by %s", v.Kind(), other.Kind())
}

// Rem performs the modulo operation. The result carries the sign of the
// divisor, matching floor division.
func (v Value) Rem(other Value) (Value, error) {
	if err := checkDefined("take modulo of", v, other); err != nil {
		return Undefined(), err
	}
	if v.IsActualInt() && other.IsActualInt() {
		x, _ := v.AsBigInt()
		y, _ := other.AsBigInt()
		if y.Sign() == 0 {
			return Undefined(), fmt.Errorf("modulo by zero")
		}
		m := new(big.Int).Rem(x, y)
		if m.Sign() != 0 && (m.Sign() < 0) != (y.Sign() < 0) {
			m.Add(m, y)
		}
		return FromBigInt(m), nil
	}
	if f1, ok := numOperand(v); ok {
		if f2, ok := numOperand(other); ok {
			if f2 == 0 {
				return Undefined(), fmt.Errorf("modulo by zero")
			}
			return FromFloat(math.Mod(f1, f2)), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot take modulo of %s by %s", v.Kind(), other.Kind())
}

// Pow performs exponentiation. Integer base with a non-negative integer
// exponent is computed exactly; everything else goes through float math.
func (v Value) Pow(other Value) (Value, error) {
	if err := checkDefined("raise", v, other); err != nil {
		return Undefined(), err
	}
	if v.IsActualInt() && other.IsActualInt() {
		exp, ok := other.AsInt()
		if ok && exp >= 0 {
			base, _ := v.AsBigInt()
			return FromBigInt(new(big.Int).Exp(base, big.NewInt(exp), nil)), nil
		}
	}
	if f1, ok := numOperand(v); ok {
		if f2, ok := numOperand(other); ok {
			return FromFloat(math.Pow(f1, f2)), nil
		}
	}
	return Undefined(), fmt.Errorf("cannot raise %s to %s", v.Kind(), other.Kind())
}

// Concat performs the tilde (~) operator: both sides render to text and
// the texts join.
func (v Value) Concat(other Value) (Value, error) {
	if err := checkDefined("concatenate", v, other); err != nil {
		return Undefined(), err
	}
	return FromString(v.String() + other.String()), nil
}

// numOperand returns the float form of a numeric operand. Booleans do not
// count as numbers for arithmetic.
func numOperand(v Value) (float64, bool) {
	if v.Kind() == KindInt || v.Kind() == KindFloat {
		return v.AsFloat()
	}
	return 0, false
}

func concatSlices(a, b []Value) []Value {
	out := make([]Value, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func bigOp(a, b Value, op func(x, y *big.Int) *big.Int) Value {
	x, _ := a.AsBigInt()
	y, _ := b.AsBigInt()
	return FromBigInt(op(x, y))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// Equal returns true if two values are equal. Equality follows the
// numeric tower (1 == 1.0 == true) but never crosses unrelated kinds: a
// tuple is not equal to a list of the same elements and bytes are not
// equal to their decoded text. Undefined compares equal only to itself and
// never errors; that keeps definedness probes safe.
func (v Value) Equal(other Value) bool {
	if v.IsUndefined() || other.IsUndefined() {
		return v.IsUndefined() && other.IsUndefined()
	}
	if v.IsNone() || other.IsNone() {
		return v.IsNone() && other.IsNone()
	}

	// Bool/number coercion
	if b1, ok := v.AsBool(); ok {
		if b2, ok := other.AsBool(); ok {
			return b1 == b2
		}
		if f2, ok := numOperand(other); ok {
			return boolToFloat(b1) == f2
		}
		return false
	}
	if b2, ok := other.AsBool(); ok {
		if f1, ok := numOperand(v); ok {
			return f1 == boolToFloat(b2)
		}
		return false
	}

	if v.IsNumber() || other.IsNumber() {
		if !v.IsNumber() || !other.IsNumber() {
			return false
		}
		if v.IsActualInt() && other.IsActualInt() {
			x, _ := v.AsBigInt()
			y, _ := other.AsBigInt()
			return x.Cmp(y) == 0
		}
		f1, _ := v.AsFloat()
		f2, _ := other.AsFloat()
		return f1 == f2
	}

	if s1, ok := v.AsString(); ok {
		s2, ok := other.AsString()
		return ok && s1 == s2
	}
	if b1, ok := v.AsBytes(); ok {
		b2, ok := other.AsBytes()
		return ok && bytes.Equal(b1, b2)
	}

	if v.Kind() == KindList || v.Kind() == KindTuple {
		if v.Kind() != other.Kind() {
			return false
		}
		s1, _ := v.AsSlice()
		s2, _ := other.AsSlice()
		if len(s1) != len(s2) {
			return false
		}
		for i := range s1 {
			if !s1[i].Equal(s2[i]) {
				return false
			}
		}
		return true
	}
	if d1, ok := v.AsDict(); ok {
		d2, ok := other.AsDict()
		return ok && d1.Equal(d2)
	}
	if st1, ok := v.AsSet(); ok {
		st2, ok := other.AsSet()
		return ok && st1.Equal(st2)
	}

	// Callables and opaque objects compare by identity.
	return sameRef(v.Raw(), other.Raw())
}

// sameRef reports reference identity for pointer-shaped host values. It
// never panics on uncomparable types.
func sameRef(a, b any) bool {
	ra := reflect.ValueOf(a)
	rb := reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() || ra.Kind() != rb.Kind() {
		return false
	}
	switch ra.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Chan, reflect.Map, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	}
	return false
}

// Compare returns -1, 0 or 1 ordering v against other. Values of
// different kinds order by kind so heterogeneous collections still sort
// deterministically. The second result is false when two values of the
// same kind have no meaningful order (maps, sets, opaque objects).
func (v Value) Compare(other Value) (int, bool) {
	k1, k2 := kindOrder(v.Kind()), kindOrder(other.Kind())
	if k1 != k2 {
		if k1 < k2 {
			return -1, true
		}
		return 1, true
	}

	if b1, ok := v.AsBool(); ok {
		if b2, ok := other.AsBool(); ok {
			switch {
			case !b1 && b2:
				return -1, true
			case b1 && !b2:
				return 1, true
			}
			return 0, true
		}
	}

	if v.IsNumber() && other.IsNumber() {
		if v.IsActualInt() && other.IsActualInt() {
			x, _ := v.AsBigInt()
			y, _ := other.AsBigInt()
			return x.Cmp(y), true
		}
		f1, _ := v.AsFloat()
		f2, _ := other.AsFloat()
		switch {
		case f1 < f2:
			return -1, true
		case f1 > f2:
			return 1, true
		}
		return 0, true
	}

	if s1, ok := v.AsString(); ok {
		if s2, ok := other.AsString(); ok {
			return strings.Compare(s1, s2), true
		}
	}
	if b1, ok := v.AsBytes(); ok {
		if b2, ok := other.AsBytes(); ok {
			return bytes.Compare(b1, b2), true
		}
	}

	if s1, ok := v.AsSlice(); ok {
		if s2, ok := other.AsSlice(); ok {
			minLen := min(len(s1), len(s2))
			for i := 0; i < minLen; i++ {
				if cmp, ok := s1[i].Compare(s2[i]); ok && cmp != 0 {
					return cmp, true
				}
			}
			switch {
			case len(s1) < len(s2):
				return -1, true
			case len(s1) > len(s2):
				return 1, true
			}
			return 0, true
		}
	}

	return 0, false
}

func kindOrder(k Kind) int {
	switch k {
	case KindUndefined:
		return 0
	case KindNone:
		return 1
	case KindBool:
		return 2
	case KindInt, KindFloat:
		return 3
	case KindString:
		return 4
	case KindBytes:
		return 5
	case KindList:
		return 6
	case KindTuple:
		return 7
	case KindMap:
		return 8
	case KindSet:
		return 9
	default:
		return 10
	}
}

// Contains checks membership: substring for strings and bytes, element
// for sequences and sets, key for mappings.
func (v Value) Contains(other Value) bool {
	switch d := v.data.(type) {
	case string:
		if s, ok := other.AsString(); ok {
			return strings.Contains(d, s)
		}
	case []byte:
		if b, ok := other.AsBytes(); ok {
			return bytes.Contains(d, b)
		}
	case []Value:
		for _, item := range d {
			if item.Equal(other) {
				return true
			}
		}
	case tupleValue:
		for _, item := range d {
			if item.Equal(other) {
				return true
			}
		}
	case *Dict:
		_, ok := d.Get(other)
		return ok
	case *Set:
		return d.Has(other)
	}
	return false
}
