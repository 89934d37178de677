package nativejinja

import (
	"bytes"
	"fmt"
	"testing"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"nativejinja/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func renderValue(t *testing.T, source string, ctx map[string]any) value.Value {
	t.Helper()
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString(source)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	result, err := tmpl.Render(ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	return result
}

func fragmentSeq(vals ...value.Value) Fragments {
	return func(yield func(value.Value) bool) {
		for _, v := range vals {
			if !yield(v) {
				return
			}
		}
	}
}

func TestConcatEmpty(t *testing.T) {
	result := Concat(fragmentSeq())
	if result.Kind() != value.KindNone {
		t.Errorf("expected none for empty stream, got %s", result.Kind())
	}
}

func TestConcatSingletonIdentity(t *testing.T) {
	list := value.FromSlice([]value.Value{value.FromInt(1), value.FromInt(2)})
	result := Concat(fragmentSeq(list))
	if !result.SameAs(list) {
		t.Error("expected singleton list to come back identical")
	}

	dict := value.NewDict()
	dict.Set(value.FromString("k"), value.FromInt(1))
	mapped := value.FromDict(dict)
	result = Concat(fragmentSeq(mapped))
	if !result.SameAs(mapped) {
		t.Error("expected singleton mapping to come back identical")
	}

	for _, v := range []value.Value{value.True(), value.None(), value.Undefined(), value.FromFloat(2.5)} {
		result = Concat(fragmentSeq(v))
		if result.Kind() != v.Kind() {
			t.Errorf("expected %s to survive unchanged, got %s", v.Kind(), result.Kind())
		}
	}
}

// A lone string fragment still goes through the literal parser; only
// non-string singletons skip it.
func TestConcatSingletonString(t *testing.T) {
	result := Concat(fragmentSeq(value.FromString("123")))
	if result.Kind() != value.KindInt {
		t.Fatalf("expected int from lone numeric string, got %s", result.Kind())
	}

	result = Concat(fragmentSeq(value.FromString("abcd")))
	if result.Kind() != value.KindString {
		t.Fatalf("expected string fallback, got %s", result.Kind())
	}
	if result.String() != "abcd" {
		t.Errorf("expected exact text back, got %q", result.String())
	}
}

// Each fragment is pulled exactly once, including at the two-fragment
// peek boundary.
func TestConcatNoDuplicatePulls(t *testing.T) {
	pulled := 0
	frags := func(yield func(value.Value) bool) {
		for _, s := range []string{"12", "34"} {
			pulled++
			if !yield(value.FromString(s)) {
				return
			}
		}
	}

	result := Concat(frags)
	if pulled != 2 {
		t.Errorf("expected 2 pulls, got %d", pulled)
	}
	if n, ok := result.AsInt(); !ok || n != 1234 {
		t.Errorf("expected 1234, got %s", result.Repr())
	}
}

// Joining happens before any parsing: a numeric-looking prefix must
// not be evaluated on its own.
func TestConcatNoIntermediateParsing(t *testing.T) {
	result := Concat(fragmentSeq(value.FromString("0.000"), value.FromInt(7)))
	if result.Kind() != value.KindFloat {
		t.Fatalf("expected float, got %s", result.Kind())
	}
	if f, _ := result.AsFloat(); f != 0.0007 {
		t.Errorf("expected 0.0007, got %v", f)
	}
}

func TestConcatQuotedSplices(t *testing.T) {
	result := Concat(fragmentSeq(
		value.FromString("'"), value.FromInt(1), value.FromString("'"),
		value.FromString(", 'data', '"), value.FromInt(2), value.FromString("', b'"),
		value.FromString("bytes"), value.FromString("'"),
	))
	if result.Kind() != value.KindTuple {
		t.Fatalf("expected tuple, got %s: %s", result.Kind(), result.Repr())
	}
	items, _ := result.AsSlice()
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].String() != "1" || items[1].String() != "data" || items[2].String() != "2" {
		t.Errorf("unexpected tuple items: %s", result.Repr())
	}
	if b, ok := items[3].AsBytes(); !ok || !bytes.Equal(b, []byte("bytes")) {
		t.Errorf("expected byte string item, got %s", items[3].Repr())
	}
}

func TestConcatGrammarMismatch(t *testing.T) {
	result := Concat(fragmentSeq(
		value.FromString("--host='"), value.FromString("localhost"),
		value.FromString("' --user \""), value.FromString("Jinja"), value.FromString("\""),
	))
	if result.Kind() != value.KindString {
		t.Fatalf("expected string fallback, got %s", result.Kind())
	}
	expected := `--host='localhost' --user "Jinja"`
	if result.String() != expected {
		t.Errorf("expected %q, got %q", expected, result.String())
	}
}

func TestRenderEmptyIsNone(t *testing.T) {
	for _, source := range []string{"", "{# comment #}", "{% if false %}x{% endif %}"} {
		result := renderValue(t, source, nil)
		if result.Kind() != value.KindNone {
			t.Errorf("expected none for %q, got %s", source, result.Kind())
		}
	}

	// Whitespace is a fragment; it just fails the literal grammar.
	result := renderValue(t, "   ", nil)
	if result.Kind() != value.KindString || result.String() != "   " {
		t.Errorf("expected whitespace to stay text, got %s", result.Repr())
	}
}

func TestRenderSingleExpression(t *testing.T) {
	cases := []struct {
		source string
		ctx    map[string]any
		kind   value.Kind
	}{
		{"{{ 42 }}", nil, value.KindInt},
		{"{{ 2.5 }}", nil, value.KindFloat},
		{"{{ true }}", nil, value.KindBool},
		{"{{ none }}", nil, value.KindNone},
		{"{{ items }}", map[string]any{"items": []int{1, 2, 3}}, value.KindList},
		{"{{ d }}", map[string]any{"d": map[string]any{"k": 1}}, value.KindMap},
		{"{{ missing }}", nil, value.KindUndefined},
		{"{{ missing.attr }}", nil, value.KindUndefined},
	}

	for _, tc := range cases {
		result := renderValue(t, tc.source, tc.ctx)
		if result.Kind() != tc.kind {
			t.Errorf("%s: expected %s, got %s", tc.source, tc.kind, result.Kind())
		}
	}
}

func TestRenderContextValueIdentity(t *testing.T) {
	items := value.FromSlice([]value.Value{value.FromInt(1), value.FromInt(2)})
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("{{ items }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	ctx := value.NewDict()
	ctx.Set(value.FromString("items"), items)
	result, err := tmpl.RenderValue(nil, value.FromDict(ctx))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if !result.SameAs(items) {
		t.Error("expected the context list to come back identical")
	}
}

func TestRenderStringReparse(t *testing.T) {
	cases := []struct {
		source string
		kind   value.Kind
	}{
		{"{{ '123' }}", value.KindInt},
		{"{{ '12.5' }}", value.KindFloat},
		{"{{ 'true' }}", value.KindBool},
		{"{{ 'none' }}", value.KindNone},
		{"{{ '[1, 2]' }}", value.KindList},
		{"{{ '(1,)' }}", value.KindTuple},
		{"{{ '{\"a\": 1}' }}", value.KindMap},
		{"{{ \"'quoted'\" }}", value.KindString},
		{"{{ 'plain text' }}", value.KindString},
		{"{{ '0112' }}", value.KindString},
	}

	for _, tc := range cases {
		result := renderValue(t, tc.source, nil)
		if result.Kind() != tc.kind {
			t.Errorf("%s: expected %s, got %s", tc.source, tc.kind, result.Kind())
		}
	}

	// The quote splice unwraps.
	if got := renderValue(t, "{{ \"'quoted'\" }}", nil); got.String() != "quoted" {
		t.Errorf("expected unquoted string, got %q", got.String())
	}
}

func TestRenderJoinedFragments(t *testing.T) {
	intCases := []struct {
		source string
		ctx    map[string]any
		want   int64
	}{
		{"{{ 12 }}{{ 34 }}", nil, 1234},
		{"{{ 1 }}{{ 2 }}{{ 3 }}{{ 4 }}", nil, 1234},
		{"-{{ 5 }}", nil, -5},
		{"{% for d in [9, 8, 7] %}{{ d }}{% endfor %}", nil, 987},
	}
	for _, tc := range intCases {
		result := renderValue(t, tc.source, tc.ctx)
		if n, ok := result.AsInt(); !ok || n != tc.want {
			t.Errorf("%s: expected %d, got %s", tc.source, tc.want, result.Repr())
		}
	}

	result := renderValue(t, "0.000{{ a }}", map[string]any{"a": 7})
	if f, ok := result.AsFloat(); !ok || f != 0.0007 {
		t.Errorf("expected 0.0007, got %s", result.Repr())
	}

	result = renderValue(t, "{{ 1 }}e{{ 3 }}", nil)
	if f, ok := result.AsFloat(); !ok || f != 1000.0 {
		t.Errorf("expected 1000.0, got %s", result.Repr())
	}

	// A nonzero decimal with a leading zero is not a number.
	result = renderValue(t, "0{{ 112 }}", nil)
	if result.Kind() != value.KindString || result.String() != "0112" {
		t.Errorf("expected '0112' to stay text, got %s", result.Repr())
	}
}

func TestRenderStructuralJoin(t *testing.T) {
	result := renderValue(t, "[{{ 1 }}, {{ 2 }}]", nil)
	if result.Kind() != value.KindList {
		t.Fatalf("expected list, got %s", result.Kind())
	}

	result = renderValue(t, "({{ 1 }}, {{ 2 }})", nil)
	if result.Kind() != value.KindTuple {
		t.Fatalf("expected tuple, got %s", result.Kind())
	}

	result = renderValue(t, "{{ 1 }}, {{ 2 }}", nil)
	if result.Kind() != value.KindTuple {
		t.Fatalf("expected bare tuple, got %s: %s", result.Kind(), result.Repr())
	}

	result = renderValue(t, "{'k': {{ 1 }}}", nil)
	if result.Kind() != value.KindMap {
		t.Fatalf("expected mapping, got %s", result.Kind())
	}

	result = renderValue(t, "'{{ name }}'", map[string]any{"name": "joe"})
	if result.Kind() != value.KindString || result.String() != "joe" {
		t.Errorf("expected spliced string 'joe', got %s", result.Repr())
	}
}

func TestRenderMixedTextStaysString(t *testing.T) {
	cases := []struct {
		source string
		ctx    map[string]any
		want   string
	}{
		{"no {{ n }}", map[string]any{"n": 1}, "no 1"},
		{"{{ n }} items", map[string]any{"n": 2}, "2 items"},
		{"a{{ 'b' }}c", nil, "abc"},
		{"x{{ missing }}y", nil, "xy"},
	}

	for _, tc := range cases {
		result := renderValue(t, tc.source, tc.ctx)
		if result.Kind() != value.KindString || result.String() != tc.want {
			t.Errorf("%s: expected %q, got %s", tc.source, tc.want, result.Repr())
		}
	}
}

// Composed render units hand native values to the enclosing operator:
// a macro returning a number can be added to a number.
func TestRenderUnitComposition(t *testing.T) {
	source := "{% macro n() %}{{ 2 }}{{ 1 }}{% endmacro %}{{ n() + n() }}"
	result := renderValue(t, source, nil)
	if v, ok := result.AsInt(); !ok || v != 42 {
		t.Errorf("expected 42, got %s", result.Repr())
	}

	source = "{% macro l() %}[{{ 1 }}]{% endmacro %}{{ l() + l() }}"
	result = renderValue(t, source, nil)
	if result.Kind() != value.KindList {
		t.Fatalf("expected list concatenation, got %s", result.Kind())
	}
	if result.Repr() != "[1, 1]" {
		t.Errorf("expected [1, 1], got %s", result.Repr())
	}
}

func TestRenderUndefinedOperationError(t *testing.T) {
	for _, behavior := range []UndefinedBehavior{UndefinedLenient, UndefinedStrict} {
		env := NewEnvironment()
		env.SetUndefinedBehavior(behavior)
		tmpl, err := env.TemplateFromString("{{ 3 + missing }}")
		if err != nil {
			t.Fatalf("parse error: %v", err)
		}

		_, err = tmpl.Render(nil)
		if err == nil {
			t.Fatal("expected undefined operation error")
		}
		if tErr, ok := err.(*Error); !ok || tErr.Kind != ErrUndefinedOperation {
			t.Fatalf("expected undefined operation error, got %v", err)
		}
	}
}

// Text mode and native mode agree whenever the native result is a
// string; they deliberately differ on empty output.
func TestTextModeAgreement(t *testing.T) {
	sources := []struct {
		source string
		ctx    map[string]any
	}{
		{"Hello {{ name }}!", map[string]any{"name": "World"}},
		{"{% for x in [1, 2] %}{{ x }}-{% endfor %}", nil},
		{"{{ 'plain' }}", nil},
	}

	for _, tc := range sources {
		nativeEnv := NewEnvironment()
		textEnv := NewEnvironment()
		textEnv.SetOutputMode(OutputText)

		nativeOut, err := renderString(nativeEnv, tc.source, tc.ctx)
		if err != nil {
			t.Fatalf("native render error: %v", err)
		}
		textOut, err := renderString(textEnv, tc.source, tc.ctx)
		if err != nil {
			t.Fatalf("text render error: %v", err)
		}
		if nativeOut != textOut {
			t.Errorf("%s: native %q != text %q", tc.source, nativeOut, textOut)
		}
	}

	textEnv := NewEnvironment()
	textEnv.SetOutputMode(OutputText)
	out, err := renderString(textEnv, "", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty text output, got %q", out)
	}
}

func TestRenderParallel(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("{{ n * n }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	var eg errgroup.Group
	for i := 0; i < 32; i++ {
		eg.Go(func() error {
			result, err := tmpl.Render(map[string]any{"n": i})
			if err != nil {
				return err
			}
			if v, ok := result.AsInt(); !ok || v != int64(i*i) {
				return fmt.Errorf("render %d: got %s", i, result.Repr())
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}
