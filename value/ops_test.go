package value

import (
	"errors"
	"testing"
)

func mustOp(t *testing.T) func(Value, error) Value {
	return func(v Value, err error) Value {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}

func TestAddNumbers(t *testing.T) {
	if got := mustOp(t)(FromInt(2).Add(FromInt(3))); !got.Equal(FromInt(5)) {
		t.Fatalf("got %s", got)
	}
	// int64 arithmetic overflows into big integers instead of wrapping.
	got := mustOp(t)(FromInt(9223372036854775807).Add(FromInt(1)))
	if got.String() != "9223372036854775808" {
		t.Fatalf("overflow not promoted: %s", got)
	}
	if got := mustOp(t)(FromInt(1).Add(FromFloat(2.5))); got.String() != "3.5" {
		t.Fatalf("got %s", got)
	}
}

func TestAddSequences(t *testing.T) {
	if got := mustOp(t)(FromString("a").Add(FromString("b"))); got.String() != "ab" {
		t.Fatalf("got %s", got)
	}

	l := mustOp(t)(FromSlice([]Value{FromInt(1)}).Add(FromSlice([]Value{FromInt(2)})))
	if l.String() != "[1, 2]" {
		t.Fatalf("got %s", l)
	}
	tp := mustOp(t)(FromTuple([]Value{FromInt(1)}).Add(FromTuple([]Value{FromInt(2)})))
	if tp.String() != "(1, 2)" {
		t.Fatalf("got %s", tp)
	}

	// Mixed sequence kinds and booleans do not add.
	if _, err := FromSlice(nil).Add(FromTuple(nil)); err == nil {
		t.Fatal("expected error for list + tuple")
	}
	if _, err := FromBool(true).Add(FromInt(1)); err == nil {
		t.Fatal("expected error for bool + int")
	}

	_, err := Undefined().Add(FromInt(1))
	if !errors.Is(err, ErrUndefinedOperation) {
		t.Fatalf("expected undefined operation, got %v", err)
	}
}

func TestMultiplyAndRepeat(t *testing.T) {
	if got := mustOp(t)(FromInt(6).Mul(FromInt(7))); !got.Equal(FromInt(42)) {
		t.Fatalf("got %s", got)
	}
	got := mustOp(t)(FromInt(1<<62).Mul(FromInt(4)))
	if got.String() != "18446744073709551616" {
		t.Fatalf("overflow not promoted: %s", got)
	}
	if got := mustOp(t)(FromFloat(2.5).Mul(FromInt(2))); got.String() != "5.0" {
		t.Fatalf("got %s", got)
	}

	if got := mustOp(t)(FromString("ab").Mul(FromInt(3))); got.String() != "ababab" {
		t.Fatalf("got %s", got)
	}
	// Repetition works with the count on either side.
	if got := mustOp(t)(FromInt(3).Mul(FromString("x"))); got.String() != "xxx" {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromSlice([]Value{FromInt(1), FromInt(2)}).Mul(FromInt(2))); got.String() != "[1, 2, 1, 2]" {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromTuple([]Value{FromInt(1)}).Mul(FromInt(2))); got.String() != "(1, 1)" {
		t.Fatalf("got %s", got)
	}

	if _, err := FromString("x").Mul(FromInt(-1)); err == nil {
		t.Fatal("expected error for negative repeat count")
	}
}

func TestDivisions(t *testing.T) {
	// True division always yields a float.
	if got := mustOp(t)(FromInt(7).Div(FromInt(2))); got.String() != "3.5" {
		t.Fatalf("got %s", got)
	}
	if _, err := FromInt(1).Div(FromInt(0)); err == nil {
		t.Fatal("expected division by zero")
	}
	// Float division by zero follows float math instead.
	if got := mustOp(t)(FromFloat(1.0).Div(FromInt(0))); got.String() != "inf" {
		t.Fatalf("got %s", got)
	}

	// Floor division rounds toward negative infinity.
	if got := mustOp(t)(FromInt(7).FloorDiv(FromInt(2))); !got.Equal(FromInt(3)) {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromInt(-7).FloorDiv(FromInt(2))); !got.Equal(FromInt(-4)) {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromFloat(7.5).FloorDiv(FromInt(2))); got.String() != "3.0" {
		t.Fatalf("got %s", got)
	}
	if _, err := FromInt(1).FloorDiv(FromInt(0)); err == nil {
		t.Fatal("expected division by zero")
	}
}

func TestRemainder(t *testing.T) {
	if got := mustOp(t)(FromInt(7).Rem(FromInt(3))); !got.Equal(FromInt(1)) {
		t.Fatalf("got %s", got)
	}
	// The result carries the sign of the divisor.
	if got := mustOp(t)(FromInt(-7).Rem(FromInt(3))); !got.Equal(FromInt(2)) {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromInt(7).Rem(FromInt(-3))); !got.Equal(FromInt(-2)) {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromFloat(7.5).Rem(FromInt(2))); got.String() != "1.5" {
		t.Fatalf("got %s", got)
	}
	if _, err := FromInt(1).Rem(FromInt(0)); err == nil {
		t.Fatal("expected modulo by zero")
	}
}

func TestPower(t *testing.T) {
	if got := mustOp(t)(FromInt(2).Pow(FromInt(10))); !got.Equal(FromInt(1024)) {
		t.Fatalf("got %s", got)
	}
	// Integer exponentiation is exact well past int64.
	got := mustOp(t)(FromInt(2).Pow(FromInt(100)))
	if got.String() != "1267650600228229401496703205376" {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromInt(2).Pow(FromInt(-1))); got.String() != "0.5" {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromInt(9).Pow(FromFloat(0.5))); got.String() != "3.0" {
		t.Fatalf("got %s", got)
	}
}

func TestNegation(t *testing.T) {
	if got := mustOp(t)(FromInt(5).Neg()); !got.Equal(FromInt(-5)) {
		t.Fatalf("got %s", got)
	}
	got := mustOp(t)(FromInt(-9223372036854775808).Neg())
	if got.String() != "9223372036854775808" {
		t.Fatalf("min int not promoted: %s", got)
	}
	if got := mustOp(t)(FromFloat(2.5).Neg()); got.String() != "-2.5" {
		t.Fatalf("got %s", got)
	}

	if _, err := FromString("x").Neg(); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Undefined().Neg(); !errors.Is(err, ErrUndefinedOperation) {
		t.Fatalf("expected undefined operation, got %v", err)
	}
}

func TestConcatOperator(t *testing.T) {
	if got := mustOp(t)(FromString("a").Concat(FromInt(1))); got.String() != "a1" {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromInt(1).Concat(FromInt(2))); got.String() != "12" {
		t.Fatalf("got %s", got)
	}
	if got := mustOp(t)(FromSlice([]Value{FromInt(1)}).Concat(FromString("x"))); got.String() != "[1]x" {
		t.Fatalf("got %s", got)
	}
}

func TestEquality(t *testing.T) {
	// The numeric tower: 1 == 1.0 == true.
	if !FromInt(1).Equal(FromFloat(1.0)) {
		t.Fatal("1 should equal 1.0")
	}
	if !FromInt(1).Equal(FromBool(true)) {
		t.Fatal("1 should equal true")
	}
	if !FromInt(0).Equal(FromBool(false)) {
		t.Fatal("0 should equal false")
	}
	if FromInt(2).Equal(FromBool(true)) {
		t.Fatal("2 should not equal true")
	}

	// Equality never crosses unrelated kinds.
	if FromBytes([]byte("x")).Equal(FromString("x")) {
		t.Fatal("bytes should not equal their decoded text")
	}
	if FromTuple([]Value{FromInt(1)}).Equal(FromSlice([]Value{FromInt(1)})) {
		t.Fatal("tuple should not equal list")
	}
	if FromString("1").Equal(FromInt(1)) {
		t.Fatal("string should not equal number")
	}

	if !Undefined().Equal(Undefined()) || Undefined().Equal(None()) {
		t.Fatal("undefined equals only itself")
	}
	if !None().Equal(None()) || None().Equal(FromInt(0)) {
		t.Fatal("none equals only itself")
	}
}

func TestCompareTotalOrder(t *testing.T) {
	lt := func(a, b Value) {
		t.Helper()
		c, ok := a.Compare(b)
		if !ok || c >= 0 {
			t.Fatalf("%s should sort before %s (ok=%v c=%d)", a.Repr(), b.Repr(), ok, c)
		}
	}

	lt(FromInt(1), FromInt(2))
	lt(FromString("a"), FromString("b"))
	lt(FromSlice([]Value{FromInt(1), FromInt(2)}), FromSlice([]Value{FromInt(1), FromInt(3)}))
	// A prefix sorts before its extension.
	lt(FromSlice([]Value{FromInt(1)}), FromSlice([]Value{FromInt(1), FromInt(0)}))

	// Unrelated kinds order by kind, so sorting mixed values is stable.
	lt(None(), FromBool(false))
	lt(FromBool(true), FromInt(0))
	lt(FromInt(99), FromString(""))

	a, b := NewDict(), NewDict()
	a.Set(FromString("x"), FromInt(1))
	b.Set(FromString("y"), FromInt(2))
	if _, ok := FromDict(a).Compare(FromDict(b)); ok {
		t.Fatal("mappings should not be comparable")
	}
}

func TestContains(t *testing.T) {
	if !FromString("hello").Contains(FromString("ell")) {
		t.Fatal("substring expected")
	}
	if !FromSlice([]Value{FromInt(1)}).Contains(FromFloat(1.0)) {
		t.Fatal("tower membership expected")
	}

	d := NewDict()
	d.Set(FromString("k"), FromInt(1))
	if !FromDict(d).Contains(FromString("k")) {
		t.Fatal("key membership expected")
	}
	if FromDict(d).Contains(FromInt(1)) {
		t.Fatal("values are not members")
	}

	s := NewSet()
	s.Add(FromInt(2))
	if !FromSet(s).Contains(FromInt(2)) {
		t.Fatal("set membership expected")
	}

	if FromInt(42).Contains(FromInt(4)) {
		t.Fatal("numbers have no members")
	}
}
