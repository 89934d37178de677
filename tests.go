package nativejinja

import (
	"strings"
	"unicode"

	"nativejinja/value"
)

// TestDefined checks whether a value is defined. Looking a name up
// never fails by itself, even under strict undefined behavior, so this
// works as a guard:
//
//	{% if my_variable is defined %}{{ my_variable }}{% endif %}
func TestDefined(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return !val.IsUndefined(), nil
}

// TestUndefined is the negation of defined.
func TestUndefined(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.IsUndefined(), nil
}

// TestNone checks whether a value is none.
func TestNone(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.IsNone(), nil
}

// TestTrue checks whether a value is the boolean true. This is a strict
// kind check, not truthiness.
func TestTrue(_ *State, val value.Value, _ []value.Value) (bool, error) {
	b, ok := val.AsBool()
	return ok && b, nil
}

// TestFalse checks whether a value is the boolean false.
func TestFalse(_ *State, val value.Value, _ []value.Value) (bool, error) {
	b, ok := val.AsBool()
	return ok && !b, nil
}

// TestOdd checks whether a number is an odd integer.
//
//	{% if loop.index is odd %}...{% endif %}
func TestOdd(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) > 0 {
		return false, NewError(ErrTooManyArguments, "odd takes no arguments")
	}
	if i, ok := val.AsInt(); ok {
		return i%2 != 0, nil
	}
	return false, nil
}

// TestEven checks whether a number is an even integer.
func TestEven(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) > 0 {
		return false, NewError(ErrTooManyArguments, "even takes no arguments")
	}
	if i, ok := val.AsInt(); ok {
		return i%2 == 0, nil
	}
	return false, nil
}

// TestDivisibleBy checks whether a value divides evenly:
//
//	{{ 42 is divisibleby(7) }} -> true
func TestDivisibleBy(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, NewError(ErrMissingArgument, "divisibleby needs a divisor")
	}
	if i, ok := val.AsInt(); ok {
		if d, ok := args[0].AsInt(); ok && d != 0 {
			return i%d == 0, nil
		}
	}
	return false, nil
}

// TestEq is the test form of ==, useful with select and reject:
//
//	{{ [1, 2, 3] | select("eq", 1) }} -> [1]
func TestEq(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return val.Equal(args[0]), nil
}

// TestNe is the test form of !=.
func TestNe(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return !val.Equal(args[0]), nil
}

// TestLt is the test form of <.
func TestLt(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp < 0, nil
	}
	return false, nil
}

// TestLe is the test form of <=.
func TestLe(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp <= 0, nil
	}
	return false, nil
}

// TestGt is the test form of >.
func TestGt(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp > 0, nil
	}
	return false, nil
}

// TestGe is the test form of >=.
func TestGe(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp >= 0, nil
	}
	return false, nil
}

// TestIn is the test form of the in operator:
//
//	{{ [1, 2, 3] | select("in", [1, 2]) }} -> [1, 2]
func TestIn(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return args[0].Contains(val), nil
}

// TestString checks whether a value is a string. In native output this
// distinguishes {{ "42" }} sources from {{ 42 }}:
//
//	{{ "42" is string }} -> true
func TestString(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindString, nil
}

// TestNumber checks whether a value is an integer or a float.
func TestNumber(_ *State, val value.Value, _ []value.Value) (bool, error) {
	switch val.Kind() {
	case value.KindInt, value.KindFloat:
		return true, nil
	}
	return false, nil
}

// TestInteger checks whether a value is an integer. 42.0 is not one.
func TestInteger(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindInt, nil
}

// TestFloat checks whether a value is a float. 42 is not one.
func TestFloat(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindFloat, nil
}

// TestBoolean checks whether a value is a boolean.
func TestBoolean(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindBool, nil
}

// TestSequence checks whether a value is a list or a tuple.
func TestSequence(_ *State, val value.Value, _ []value.Value) (bool, error) {
	switch val.Kind() {
	case value.KindList, value.KindTuple:
		return true, nil
	}
	return false, nil
}

// TestMapping checks whether a value is a mapping.
func TestMapping(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindMap, nil
}

// TestIterable checks whether a value can be iterated over. Strings can;
// numbers cannot.
func TestIterable(_ *State, val value.Value, _ []value.Value) (bool, error) {
	_, ok := val.Iter()
	return ok, nil
}

// TestCallable checks whether a value can be called, such as a macro or
// a host function.
func TestCallable(_ *State, val value.Value, _ []value.Value) (bool, error) {
	_, ok := val.AsCallable()
	return ok, nil
}

// TestSameAs checks identity rather than equality: two structurally
// equal lists built separately are not the same value.
//
//	{{ [1, 2] is sameas([1, 2]) }} -> false
func TestSameAs(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return val.SameAs(args[0]), nil
}

// TestLower checks whether all cased characters are lowercase.
func TestLower(_ *State, val value.Value, _ []value.Value) (bool, error) {
	s, ok := val.AsString()
	if !ok {
		return false, nil
	}
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.IsLower(r) {
			return false, nil
		}
	}
	return true, nil
}

// TestUpper checks whether all cased characters are uppercase.
func TestUpper(_ *State, val value.Value, _ []value.Value) (bool, error) {
	s, ok := val.AsString()
	if !ok {
		return false, nil
	}
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false, nil
		}
	}
	return true, nil
}

// TestFilter checks whether a filter of the given name is registered:
//
//	{% if "slugify" is filter %}...{% endif %}
func TestFilter(state *State, val value.Value, _ []value.Value) (bool, error) {
	name, ok := val.AsString()
	if !ok {
		return false, nil
	}
	_, exists := state.env.getFilter(name)
	return exists, nil
}

// TestTest checks whether a test of the given name is registered.
func TestTest(state *State, val value.Value, _ []value.Value) (bool, error) {
	name, ok := val.AsString()
	if !ok {
		return false, nil
	}
	_, exists := state.env.getTest(name)
	return exists, nil
}

// TestStartingWith checks a string prefix.
func TestStartingWith(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if s, ok := val.AsString(); ok {
		if prefix, ok := args[0].AsString(); ok {
			return strings.HasPrefix(s, prefix), nil
		}
	}
	return false, nil
}

// TestEndingWith checks a string suffix.
func TestEndingWith(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if s, ok := val.AsString(); ok {
		if suffix, ok := args[0].AsString(); ok {
			return strings.HasSuffix(s, suffix), nil
		}
	}
	return false, nil
}

// TestContaining is the in operator with the operands swapped, which
// reads better after select and reject.
func TestContaining(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return val.Contains(args[0]), nil
}
