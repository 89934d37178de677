package nativejinja

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestBasicRender(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("Hello {{ name }}!")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.RenderString(map[string]any{"name": "World"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if result != "Hello World!" {
		t.Errorf("expected 'Hello World!', got %q", result)
	}
}

func TestVariableTypes(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("{{ str }} {{ num }} {{ float }} {{ bool }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.RenderString(map[string]any{
		"str":   "hello",
		"num":   42,
		"float": 3.14,
		"bool":  true,
	})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if result != "hello 42 3.14 true" {
		t.Errorf("expected 'hello 42 3.14 true', got %q", result)
	}
}

func TestForLoop(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("{% for item in items %}{{ item }}{% endfor %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.RenderString(map[string]any{
		"items": []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if result != "abc" {
		t.Errorf("expected 'abc', got %q", result)
	}
}

func TestForLoopWithIndex(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("{% for item in items %}{{ loop.index }}:{{ item }} {% endfor %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.RenderString(map[string]any{
		"items": []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if result != "1:a 2:b 3:c " {
		t.Errorf("expected '1:a 2:b 3:c ', got %q", result)
	}
}

func TestForLoopElse(t *testing.T) {
	env := NewEnvironment()
	assertRender(t, env, "{% for item in items %}{{ item }}{% else %}empty{% endfor %}",
		map[string]any{"items": []string{}}, "empty")
}

func TestLoopVariables(t *testing.T) {
	env := NewEnvironment()
	ctx := map[string]any{"items": []string{"a", "b", "c"}}

	assertRender(t, env, "{% for x in items %}{{ loop.index0 }}{% endfor %}", ctx, "012")
	assertRender(t, env, "{% for x in items %}{{ loop.revindex }};{% endfor %}", ctx, "3;2;1;")
	assertRender(t, env, "{% for x in items %}{{ loop.index }}/{{ loop.length }} {% endfor %}", ctx, "1/3 2/3 3/3 ")
	assertRender(t, env,
		"{% for x in items %}{% if loop.first %}[{% endif %}{{ x }}{% if loop.last %}]{% endif %}{% endfor %}",
		ctx, "[abc]")
}

func TestNestedForLoop(t *testing.T) {
	env := NewEnvironment()
	assertRender(t, env,
		"{% for row in matrix %}{% for cell in row %}{{ cell }}{% endfor %}|{% endfor %}",
		map[string]any{"matrix": [][]int{{1, 2}, {3, 4}}}, "12|34|")
}

func TestForLoopCondition(t *testing.T) {
	env := NewEnvironment()
	assertRender(t, env, "{% for x in range(10) if x % 3 == 0 %}{{ x }};{% endfor %}", nil, "0;3;6;9;")
}

func TestBreakAndContinue(t *testing.T) {
	env := NewEnvironment()
	assertRender(t, env,
		"{% for x in range(10) %}{% if x == 3 %}{% break %}{% endif %}{{ x }}{% endfor %}",
		nil, "012")
	assertRender(t, env,
		"{% for x in range(5) %}{% if x % 2 == 0 %}{% continue %}{% endif %}{{ x }}{% endfor %}",
		nil, "13")
}

func TestIfCondition(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("{% if show %}visible{% endif %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.RenderString(map[string]any{"show": true})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if result != "visible" {
		t.Errorf("expected 'visible', got %q", result)
	}

	// A render that emits nothing collapses to none.
	result, err = tmpl.RenderString(map[string]any{"show": false})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if result != "none" {
		t.Errorf("expected 'none', got %q", result)
	}
}

func TestIfElifElse(t *testing.T) {
	env := NewEnvironment()
	source := "{% if n < 0 %}neg{% elif n == 0 %}zero{% else %}pos{% endif %}"

	assertRender(t, env, source, map[string]any{"n": -1}, "neg")
	assertRender(t, env, source, map[string]any{"n": 0}, "zero")
	assertRender(t, env, source, map[string]any{"n": 7}, "pos")
}

func TestTruthiness(t *testing.T) {
	env := NewEnvironment()
	source := "{% if v %}T{% else %}F{% endif %}"

	assertRender(t, env, source, map[string]any{"v": []int{}}, "F")
	assertRender(t, env, source, map[string]any{"v": []int{1}}, "T")
	assertRender(t, env, source, map[string]any{"v": ""}, "F")
	assertRender(t, env, source, map[string]any{"v": "x"}, "T")
	assertRender(t, env, source, map[string]any{"v": 0}, "F")
	assertRender(t, env, source, map[string]any{"v": 0.0}, "F")
	assertRender(t, env, source, map[string]any{"v": nil}, "F")
	assertRender(t, env, source, map[string]any{"v": map[string]any{}}, "F")
}

func TestTernaryExpression(t *testing.T) {
	env := NewEnvironment()
	source := "{{ 'yes' if ok else 'no' }}"

	assertRender(t, env, source, map[string]any{"ok": true}, "yes")
	assertRender(t, env, source, map[string]any{"ok": false}, "no")
}

func TestArithmetic(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 1 + 2 }}", nil, "3")
	assertRender(t, env, "{{ 10 - 4 }}", nil, "6")
	assertRender(t, env, "{{ 3 * 4 }}", nil, "12")
	assertRender(t, env, "{{ 10 / 4 }}", nil, "2.5")
	assertRender(t, env, "{{ 10 // 4 }}", nil, "2")
	assertRender(t, env, "{{ -7 // 2 }}", nil, "-4")
	assertRender(t, env, "{{ 10 % 3 }}", nil, "1")
	assertRender(t, env, "{{ 2 ** 8 }}", nil, "256")
	assertRender(t, env, "{{ -5 }}", nil, "-5")
	assertRender(t, env, "{{ 1 + 2 * 3 }}", nil, "7")
	assertRender(t, env, "{{ (1 + 2) * 3 }}", nil, "9")
	assertRender(t, env, "{{ 1 + 1.5 }}", nil, "2.5")
	assertRender(t, env, "{{ 2.0 * 3 }}", nil, "6.0")
}

func TestComparisons(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 1 < 2 }}", nil, "true")
	assertRender(t, env, "{{ 2 <= 2 }}", nil, "true")
	assertRender(t, env, "{{ 3 > 4 }}", nil, "false")
	assertRender(t, env, "{{ 3 >= 4 }}", nil, "false")
	assertRender(t, env, "{{ 'a' == 'a' }}", nil, "true")
	assertRender(t, env, "{{ 'a' != 'b' }}", nil, "true")
	assertRender(t, env, "{{ 1 == 1.0 }}", nil, "true")
	assertRender(t, env, "{{ 'a' < 'b' }}", nil, "true")
	assertRender(t, env, "{{ [1, 2] == [1, 2] }}", nil, "true")
}

// and/or return the deciding operand rather than a boolean.
func TestLogicalOperators(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ true and false }}", nil, "false")
	assertRender(t, env, "{{ true or false }}", nil, "true")
	assertRender(t, env, "{{ not true }}", nil, "false")
	assertRender(t, env, "{{ 0 or 'fallback' }}", nil, "fallback")
	assertRender(t, env, "{{ 'first' and 'second' }}", nil, "second")
	assertRender(t, env, "{{ '' or none }}", nil, "none")
}

func TestStringConcat(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'a' ~ 'b' ~ 'c' }}", nil, "abc")
	assertRender(t, env, "{{ 'v' ~ 1 }}", nil, "v1")
	assertRender(t, env, "{{ 'ab' + 'cd' }}", nil, "abcd")
	assertRender(t, env, "{{ 'ab' * 3 }}", nil, "ababab")
}

func TestStringMethods(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'Hello'.upper() }}", nil, "HELLO")
	assertRender(t, env, "{{ 'Hello'.lower() }}", nil, "hello")
	assertRender(t, env, "{{ '  x  '.strip() }}", nil, "x")
	assertRender(t, env, `{{ 'a,b,c'.split(',') }}`, nil, `["a", "b", "c"]`)
	assertRender(t, env, "{{ 'abc'.startswith('ab') }}", nil, "true")
	assertRender(t, env, "{{ 'abc'.endswith('z') }}", nil, "false")
	assertRender(t, env, "{{ 'banana'.count('an') }}", nil, "2")
	assertRender(t, env, "{{ 'banana'.find('na') }}", nil, "2")
	assertRender(t, env, "{{ 'a-b'.replace('-', '+') }}", nil, "a+b")
}

func TestFilters(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'hello'|upper }}", nil, "HELLO")
	assertRender(t, env, "{{ 'WORLD'|lower }}", nil, "world")
	assertRender(t, env, "{{ 'hello world'|title }}", nil, "Hello World")
	assertRender(t, env, "{{ 'hello'|capitalize }}", nil, "Hello")
	assertRender(t, env, "{{ '  pad  '|trim }}", nil, "pad")
	assertRender(t, env, "{{ 'aaa'|replace('a', 'b') }}", nil, "bbb")
	assertRender(t, env, "{{ [1, 2, 3]|length }}", nil, "3")
	assertRender(t, env, "{{ 'abcd'|length }}", nil, "4")
	assertRender(t, env, "{{ [5, 6, 7]|first }}", nil, "5")
	assertRender(t, env, "{{ [5, 6, 7]|last }}", nil, "7")
	assertRender(t, env, "{{ [1, 2, 3]|reverse }}", nil, "[3, 2, 1]")
	assertRender(t, env, "{{ [3, 1, 2]|sort }}", nil, "[1, 2, 3]")
	assertRender(t, env, "{{ ['c', 'a', 'b']|sort|join }}", nil, "abc")
	assertRender(t, env, "{{ ['x', 'y']|join(', ') }}", nil, "x, y")
	assertRender(t, env, "{{ '42'|int }}", nil, "42")
	assertRender(t, env, "{{ 3.9|int }}", nil, "3")
	assertRender(t, env, "{{ 3|float }}", nil, "3.0")
	assertRender(t, env, "{{ (-5)|abs }}", nil, "5")
	assertRender(t, env, "{{ 2.7|round }}", nil, "3.0")
	assertRender(t, env, "{{ 2.1234|round(2) }}", nil, "2.12")
	assertRender(t, env, "{{ [1, 2, 3]|sum }}", nil, "6")
	assertRender(t, env, "{{ [4, 1, 9]|min }}", nil, "1")
	assertRender(t, env, "{{ [4, 1, 9]|max }}", nil, "9")
	assertRender(t, env, "{{ [1, 1, 2, 1]|unique }}", nil, "[1, 2]")
	assertRender(t, env, "{{ [1, 2, 3, 4]|batch(2) }}", nil, "[[1, 2], [3, 4]]")
	assertRender(t, env, "{{ {'a': 1}|items }}", nil, `[("a", 1)]`)
	assertRender(t, env, "{{ 42|string }}", nil, "42")
	assertRender(t, env, "{{ [1, 2, 3, 4]|select('even')|list }}", nil, "[2, 4]")
	assertRender(t, env, "{{ [1, 2, 3, 4]|reject('even')|list }}", nil, "[1, 3]")
	assertRender(t, env, "{{ [1, 2, 3]|map('float')|list }}", nil, "[1.0, 2.0, 3.0]")
}

func TestDefaultFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ missing|default('fb') }}", nil, "fb")
	assertRender(t, env, "{{ 'val'|default('fb') }}", nil, "val")
	assertRender(t, env, "{{ missing|d('fb') }}", nil, "fb")
}

func TestValueTests(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 4 is even }}", nil, "true")
	assertRender(t, env, "{{ 5 is odd }}", nil, "true")
	assertRender(t, env, "{{ 4 is not odd }}", nil, "true")
	assertRender(t, env, "{{ 9 is divisibleby(3) }}", nil, "true")
	assertRender(t, env, "{{ none is none }}", nil, "true")
	assertRender(t, env, "{{ 'a' is string }}", nil, "true")
	assertRender(t, env, "{{ 1 is number }}", nil, "true")
	assertRender(t, env, "{{ 1.5 is float }}", nil, "true")
	assertRender(t, env, "{{ [1] is sequence }}", nil, "true")
	assertRender(t, env, "{{ {'a': 1} is mapping }}", nil, "true")
	assertRender(t, env, "{{ 'abc' is startingwith('ab') }}", nil, "true")
	assertRender(t, env, "{{ 3 is eq(3) }}", nil, "true")
}

func TestInOperator(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 2 in [1, 2, 3] }}", nil, "true")
	assertRender(t, env, "{{ 9 in [1, 2, 3] }}", nil, "false")
	assertRender(t, env, "{{ 'ell' in 'hello' }}", nil, "true")
	assertRender(t, env, "{{ 'k' in {'k': 1} }}", nil, "true")
	assertRender(t, env, "{{ 5 not in [1, 2] }}", nil, "true")
}

func TestAttributeAccess(t *testing.T) {
	env := NewEnvironment()
	ctx := map[string]any{
		"user": map[string]any{
			"name":    "joe",
			"profile": map[string]any{"age": 42},
		},
	}

	assertRender(t, env, "{{ user.name }}", ctx, "joe")
	assertRender(t, env, "{{ user.profile.age }}", ctx, "42")
	assertRender(t, env, "{{ user['name'] }}", ctx, "joe")
}

func TestIndexAccess(t *testing.T) {
	env := NewEnvironment()
	ctx := map[string]any{"items": []int{10, 20, 30}}

	assertRender(t, env, "{{ items[0] }}", ctx, "10")
	assertRender(t, env, "{{ items[2] }}", ctx, "30")
	assertRender(t, env, "{{ items[-1] }}", ctx, "30")
}

func TestSlicing(t *testing.T) {
	env := NewEnvironment()
	ctx := map[string]any{"items": []int{1, 2, 3, 4, 5}}

	assertRender(t, env, "{{ 'hello world'[0:5] }}", nil, "hello")
	assertRender(t, env, "{{ 'hello'[::-1] }}", nil, "olleh")
	assertRender(t, env, "{{ items[1:4] }}", ctx, "[2, 3, 4]")
	assertRender(t, env, "{{ items[::2] }}", ctx, "[1, 3, 5]")
	assertRender(t, env, "{{ items[-2:] }}", ctx, "[4, 5]")
	assertRender(t, env, "{{ items[:2] }}", ctx, "[1, 2]")
}

func TestRangeFunction(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{% for i in range(3) %}{{ i }};{% endfor %}", nil, "0;1;2;")
	assertRender(t, env, "{{ range(2, 5)|list }}", nil, "[2, 3, 4]")
	assertRender(t, env, "{{ range(0, 10, 3)|list }}", nil, "[0, 3, 6, 9]")
}

func TestSetStatement(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{% set x = 21 * 2 %}{{ x }}", nil, "42")
	assertRender(t, env, "{% set a, b = [1, 2] %}{{ a }}-{{ b }}", nil, "1-2")
}

func TestSetBlock(t *testing.T) {
	env := NewEnvironment()
	assertRender(t, env, "{% set x %}a{{ 'b' }}{% endset %}{{ x }}", nil, "ab")
}

func TestWithBlock(t *testing.T) {
	env := NewEnvironment()
	assertRender(t, env, "{% with a = 1, b = 2 %}{{ a + b }}{% endwith %}", nil, "3")
}

func TestMacro(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env,
		"{% macro greet(name) %}Hello {{ name }}{% endmacro %}{{ greet('Bob') }}",
		nil, "Hello Bob")
	assertRender(t, env,
		"{% macro m(a, b='d') %}{{ a }}{{ b }}{% endmacro %}{{ m('x') }}",
		nil, "xd")
	assertRender(t, env,
		"{% macro m(a, b='d') %}{{ a }}{{ b }}{% endmacro %}{{ m('x', b='y') }}",
		nil, "xy")
}

func TestDictLiteral(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ {'a': 1}['a'] }}", nil, "1")
	assertRender(t, env, "{{ {'a': 1}.a }}", nil, "1")
	assertRender(t, env, "{{ {'a': {'b': 2}}.a.b }}", nil, "2")
}

func TestWhitespaceControl(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "  {%- if true -%}   x   {%- endif -%}  ", nil, "x")
	assertRender(t, env, "a  {{- 'b' -}}  c", nil, "abc")
}

func TestComments(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "a{# hidden #}b", nil, "ab")
	assertRender(t, env, "{# only a comment #}", nil, "none")
}

func TestSyntaxErrors(t *testing.T) {
	env := NewEnvironment()

	for _, source := range []string{
		"{% if %}",
		"{% for %}{% endfor %}",
		"{{ }}",
		"{% endfor %}",
		"{% if true %}",
		"{{ 1 +",
	} {
		if _, err := env.TemplateFromString(source); err == nil {
			t.Errorf("expected syntax error for %q", source)
		}
	}
}

// Template composition statements are not part of the language; they
// fail at parse time like any other unknown statement.
func TestCompositionStatementsRejected(t *testing.T) {
	env := NewEnvironment()

	for _, source := range []string{
		`{% include "other.txt" %}`,
		`{% extends "base.txt" %}`,
		`{% block body %}{% endblock %}`,
		`{% import "macros.txt" as m %}`,
	} {
		_, err := env.TemplateFromString(source)
		if err == nil {
			t.Fatalf("expected parse error for %q", source)
		}
		if !strings.Contains(err.Error(), "unknown statement") {
			t.Errorf("expected unknown statement error for %q, got %v", source, err)
		}
	}
}
