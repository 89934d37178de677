package nativejinja

import "testing"

func TestStringStripVariants(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ '  x  '.strip() }}", nil, "x")
	assertRender(t, env, "{{ 'xxhixx'.strip('x') }}", nil, "hi")
	assertRender(t, env, "{{ 'abchia'.strip('abc') }}", nil, "hi")
	assertRender(t, env, "{{ '  x'.lstrip() }}", nil, "x")
	assertRender(t, env, "{{ 'x  '.rstrip() }}", nil, "x")
}

func TestStringSplitMethods(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'a b  c'.split() }}", nil, `["a", "b", "c"]`)
	assertRender(t, env, "{{ 'a,b,c'.split(',', 1) }}", nil, `["a", "b,c"]`)
	assertRender(t, env, "{{ lines.splitlines() }}",
		map[string]any{"lines": "a\nb\nc\n"}, `["a", "b", "c"]`)
}

func TestStringReplaceCount(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'aaaa'.replace('a', 'b', 2) }}", nil, "bbaa")
	assertRender(t, env, "{{ 'banana'.count('an') }}", nil, "2")
}

func TestStringAffixMethods(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'main.go'.endswith('.go') }}", nil, "true")
	assertRender(t, env, "{{ 'main.go'.endswith(['.rs', '.go']) }}", nil, "true")
	assertRender(t, env, "{{ 'x.txt'.endswith(('.a', '.b')) }}", nil, "false")
	assertRender(t, env, "{{ 'photo.jpg'.startswith('photo') }}", nil, "true")
}

func TestStringFindMethod(t *testing.T) {
	env := NewEnvironment()

	// Indexes count characters, not bytes.
	assertRender(t, env, "{{ 'héllo'.find('llo') }}", nil, "2")
	assertRender(t, env, "{{ 'abc'.find('z') }}", nil, "-1")
}

func TestStringJoinMethod(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ ', '.join(['a', 'b']) }}", nil, "a, b")
	assertRender(t, env, "{{ '-'.join([1, 2, 3]) }}", nil, "1-2-3")
	assertRenderErrorKind(t, env, "{{ ','.join(42) }}", nil, ErrNotIterable)
}

func TestDictGetMethod(t *testing.T) {
	env := NewEnvironment()
	prefix := "{% set d = {'a': 1} %}"

	assertRender(t, env, prefix+"{{ d.get('a') }}", nil, "1")
	assertRender(t, env, prefix+"{{ d.get('z') }}", nil, "none")
	assertRender(t, env, prefix+"{{ d.get('z', 9) }}", nil, "9")
}

func TestDictViewMethods(t *testing.T) {
	env := NewEnvironment()
	prefix := "{% set d = {'b': 1, 'a': 2} %}"

	assertRender(t, env, prefix+"{{ d.keys() }}", nil, `["b", "a"]`)
	assertRender(t, env, prefix+"{{ d.values() }}", nil, "[1, 2]")
	assertRender(t, env, prefix+"{{ d.items() }}", nil, `[("b", 1), ("a", 2)]`)
}

func TestMethodResolutionOrder(t *testing.T) {
	env := NewEnvironment()

	// A callable attribute wins over the builtin methods.
	assertRender(t, env,
		"{% macro hi() %}yo{% endmacro %}{% set d = {'hi': hi} %}{{ d.hi() }}",
		nil, "yo")
	// A plain attribute of the same name is an error, not a fallthrough.
	assertRenderErrorKind(t, env, "{% set d = {'upper': 1} %}{{ d.upper() }}", nil, ErrInvalidOperation)
	assertRenderErrorKind(t, env, "{{ 'abc'.nope() }}", nil, ErrUnknownMethod)
}

func TestMethodArgumentErrors(t *testing.T) {
	env := NewEnvironment()

	assertRenderErrorKind(t, env, "{{ 'a'.upper(1) }}", nil, ErrTooManyArguments)
	assertRenderErrorKind(t, env, "{{ 'a'.upper(x=1) }}", nil, ErrTooManyArguments)
	assertRenderErrorKind(t, env, "{{ 'abc'.replace('a') }}", nil, ErrMissingArgument)
	assertRenderErrorKind(t, env, "{{ 'abc'.replace(1, 'b') }}", nil, ErrInvalidOperation)
}
