package value

import (
	"errors"
	"strings"
	"testing"
)

func TestParseLiteralScalars(t *testing.T) {
	cases := []struct {
		src  string
		repr string
	}{
		{"42", "42"},
		{" 42 ", "42"},
		{"-17", "-17"},
		{"+3", "3"},
		{"- 5", "-5"},
		{"0", "0"},
		{"1_000_000", "1000000"},
		{"0x2a", "42"},
		{"0x_ff", "255"},
		{"0o17", "15"},
		{"0b101", "5"},
		{"123456789012345678901234567890", "123456789012345678901234567890"},
		{"0.5", "0.5"},
		{".5", "0.5"},
		{"5.", "5.0"},
		{"1e3", "1000.0"},
		{"1.5e-2", "0.015"},
		{"true", "true"},
		{"True", "true"},
		{"false", "false"},
		{"none", "none"},
		{"None", "none"},
	}
	for _, tc := range cases {
		v, err := ParseLiteral(tc.src)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.src, err)
			continue
		}
		if got := v.Repr(); got != tc.repr {
			t.Errorf("%q: got %s, want %s", tc.src, got, tc.repr)
		}
	}
}

func TestParseLiteralStrings(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`'hi'`, "hi"},
		{`"hi"`, "hi"},
		{`u'hi'`, "hi"},
		{`'a' "b"`, "ab"},
		{`'a\nb'`, "a\nb"},
		{`'a\tb'`, "a\tb"},
		{`'don\'t'`, "don't"},
		{`'\x41'`, "A"},
		{`'\101'`, "A"},
		{`'é'`, "é"},
		{`'\U0001f600'`, "\U0001f600"},
		{`r'a\nb'`, `a\nb`},
		{`r'a\'b'`, `a\'b`},
		// Unknown escapes keep the backslash.
		{`'\q'`, `\q`},
		// A backslash before a newline continues the line.
		{"'a\\\nb'", "ab"},
	}
	for _, tc := range cases {
		v, err := ParseLiteral(tc.src)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.src, err)
			continue
		}
		s, ok := v.AsString()
		if !ok {
			t.Errorf("%q: not a string: %s", tc.src, v.Kind())
			continue
		}
		if s != tc.want {
			t.Errorf("%q: got %q, want %q", tc.src, s, tc.want)
		}
	}
}

func TestParseLiteralBytes(t *testing.T) {
	v, err := ParseLiteral(`b'hi'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := v.AsBytes()
	if !ok || string(b) != "hi" {
		t.Fatalf("got %v", v)
	}

	v, err = ParseLiteral(`b'\xff'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, _ := v.AsBytes(); len(b) != 1 || b[0] != 0xff {
		t.Fatalf("got %v", b)
	}

	// Adjacent byte strings concatenate like text strings do.
	v, err = ParseLiteral(`b'a' b'b'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, _ := v.AsBytes(); string(b) != "ab" {
		t.Fatalf("got %q", b)
	}

	if _, err := ParseLiteral(`'a' b'b'`); err == nil {
		t.Fatal("mixing text and bytes should fail")
	}
	if _, err := ParseLiteral("b'é'"); err == nil {
		t.Fatal("non-ascii bytes literal should fail")
	}
}

func TestParseLiteralContainers(t *testing.T) {
	cases := []struct {
		src  string
		repr string
	}{
		{"[1, 2]", "[1, 2]"},
		{"[]", "[]"},
		{"[1,]", "[1]"},
		{"()", "()"},
		{"(1)", "1"},
		{"(1,)", "(1,)"},
		{"(1, 2)", "(1, 2)"},
		{"1, 2", "(1, 2)"},
		{"1,", "(1,)"},
		{"1, 2,", "(1, 2)"},
		{"{}", "{}"},
		{"{'a': 1, 'b': 2}", `{"a": 1, "b": 2}`},
		{"{1: 'a', 1: 'b'}", `{1: "b"}`},
		{"{1, 2, 2}", "{1, 2}"},
		{"[{'k': (1,)}]", `[{"k": (1,)}]`},
		{"('a', [1.5, none], {'x': true})", `("a", [1.5, none], {"x": true})`},
	}
	for _, tc := range cases {
		v, err := ParseLiteral(tc.src)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.src, err)
			continue
		}
		if got := v.Repr(); got != tc.repr {
			t.Errorf("%q: got %s, want %s", tc.src, got, tc.repr)
		}
	}
}

func TestParseLiteralRejects(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"foo",
		"_x",
		"1 + 2",
		"42x",
		"[1",
		"(1",
		"'abc",
		"'a\nb'",
		"07",
		"1__0",
		"--1",
		"-[1]",
		`'\x4'`,
		`'\ud800'`,
		"{1: }",
		"[1 2]",
	}
	for _, src := range cases {
		if _, err := ParseLiteral(src); err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}

func TestParseLiteralErrorDetails(t *testing.T) {
	_, err := ParseLiteral("42x")
	var lerr *LiteralError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *LiteralError, got %T", err)
	}
	if lerr.Pos != 2 {
		t.Fatalf("unexpected offset %d", lerr.Pos)
	}
	if !strings.Contains(lerr.Error(), "invalid literal") {
		t.Fatalf("unexpected message %q", lerr.Error())
	}
}

func TestParseLiteralDepthLimit(t *testing.T) {
	deep := strings.Repeat("[", 101) + "1" + strings.Repeat("]", 101)
	if _, err := ParseLiteral(deep); err == nil {
		t.Fatal("expected depth error")
	}

	ok := strings.Repeat("[", 50) + "1" + strings.Repeat("]", 50)
	if _, err := ParseLiteral(ok); err != nil {
		t.Fatalf("moderate nesting should parse: %v", err)
	}
}
