package nativejinja

import (
	"testing"
)

func TestSplitFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ text|split }}",
		map[string]any{"text": "  alpha  beta gamma "},
		`["alpha", "beta", "gamma"]`)
	assertRender(t, env, "{{ 'a,b,c'|split(',') }}", nil, `["a", "b", "c"]`)
	assertRender(t, env, "{{ 'a,b,c'|split(',', 1) }}", nil, `["a", "b,c"]`)
	assertRender(t, env, "{{ 'one two  three four'|split(none, 2) }}", nil,
		`["one", "two", "three four"]`)
	assertRender(t, env, "{{ ''|split(',') }}", nil, `[""]`)
	assertRender(t, env, "{{ 42|split }}", nil, "[]")
}

func TestLinesFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ log|lines }}",
		map[string]any{"log": "a\r\nb\rc\nd"},
		`["a", "b", "c", "d"]`)
	assertRender(t, env, "{{ text|lines }}",
		map[string]any{"text": "x\n"},
		`["x", ""]`)
}

func TestSlugifyFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'Hello, Wörld!'|slugify }}", nil, "hello-world")
	assertRender(t, env, "{{ 'The Go Programming Language'|slugify }}", nil,
		"the-go-programming-language")
}

func TestSortFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ [1, 3, 2]|sort(true) }}", nil, "[3, 2, 1]")
	assertRender(t, env, "{{ [1, 3, 2]|sort(reverse=true) }}", nil, "[3, 2, 1]")
	assertRender(t, env, "{{ [3, 1.5, 2]|sort }}", nil, "[1.5, 2, 3]")

	// Strings compare case-insensitively unless asked otherwise.
	assertRender(t, env, "{{ ['a', 'B']|sort }}", nil, `["a", "B"]`)
	assertRender(t, env, "{{ ['a', 'B']|sort(case_sensitive=true) }}", nil, `["B", "a"]`)

	assertRender(t, env, "{{ ['host10', 'host9', 'host1']|sort }}", nil,
		`["host1", "host10", "host9"]`)
	assertRender(t, env, "{{ ['host10', 'host9', 'host1']|sort(natural=true) }}", nil,
		`["host1", "host9", "host10"]`)

	assertRenderErrorKind(t, env, "{{ 1|sort }}", nil, ErrNotIterable)
}

func TestSortFilterAttribute(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env,
		"{% set servers = [{'name': 'web2', 'load': 7}, {'name': 'web1', 'load': 3}] %}"+
			"{{ servers|sort(attribute='name')|map(attribute='name')|join(';') }}",
		nil, "web1;web2")
	assertRender(t, env,
		"{% set rows = [{'meta': {'rank': 2}}, {'meta': {'rank': 1}}] %}"+
			"{{ rows|sort(attribute='meta.rank')|map(attribute='meta.rank')|join(';') }}",
		nil, "1;2")
	// Numeric path segments index into sequences.
	assertRender(t, env,
		"{% set pairs = [['a', 3], ['b', 1]] %}"+
			"{{ pairs|sort(attribute='1')|map(attribute='0')|join(';') }}",
		nil, "b;a")
}

func TestJoinFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ ['x', 'y']|join }}", nil, "xy")
	assertRender(t, env, "{{ [1, 2, 3]|join('-') }}", nil, "1-2-3")
	assertRender(t, env,
		"{% set users = [{'name': 'ada'}, {'name': 'bob'}] %}"+
			"{{ users|join(', ', attribute='name') }}",
		nil, "ada, bob")
	assertRenderErrorKind(t, env, "{{ 42|join }}", nil, ErrNotIterable)
}

func TestUniqueFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ ['Apple', 'apple', 'BANANA', 'banana']|unique }}", nil,
		`["Apple", "BANANA"]`)
	assertRender(t, env, "{{ ['Apple', 'apple']|unique(case_sensitive=true) }}", nil,
		`["Apple", "apple"]`)
	// Equality follows the numeric tower, so 1, 1.0 and true collapse.
	assertRender(t, env, "{{ [1, 1.0, 2, true]|unique }}", nil, "[1, 2]")
}

func TestMinMaxFilters(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "<{{ []|min }}>", nil, "<>")
	assertRender(t, env, "<{{ []|max }}>", nil, "<>")

	source := "{% set users = [{'name': 'ada', 'age': 33}, {'name': 'bob', 'age': 25}] %}"
	assertRender(t, env,
		source+"{% set youngest = users|min(attribute='age') %}{{ youngest.name }}",
		nil, "bob")
	assertRender(t, env,
		source+"{% set oldest = users|max(attribute='age') %}{{ oldest.name }}",
		nil, "ada")
}

func TestSumFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ []|sum }}", nil, "0")
	assertRender(t, env, "{{ [1, 2, 3]|sum(10) }}", nil, "16")
	assertRender(t, env, "{{ [1, 2]|sum(start=5) }}", nil, "8")
	assertRender(t, env, "{{ [0.5, 0.25]|sum }}", nil, "0.75")
	assertRender(t, env,
		"{% set users = [{'age': 33}, {'age': 25}] %}{{ users|sum(attribute='age') }}",
		nil, "58")
	assertRenderErrorKind(t, env, "{{ 42|sum }}", nil, ErrNotIterable)
}

func TestBatchFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ [1, 2, 3]|batch(2, 0) }}", nil, "[[1, 2], [3, 0]]")
	assertRender(t, env, "{{ [1, 2, 3]|batch(2, fill_with='x') }}", nil,
		`[[1, 2], [3, "x"]]`)
	assertRender(t, env, "{{ []|batch(3) }}", nil, "[]")
}

func TestSliceFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ [1, 2, 3, 4, 5]|slice(2) }}", nil, "[[1, 2, 3], [4, 5]]")
	assertRender(t, env, "{{ [1, 2, 3, 4, 5]|slice(3, 0) }}", nil,
		"[[1, 2], [3, 4], [5, 0]]")
}

func TestMapFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env,
		"{% set users = [{'name': 'ada'}, {}] %}"+
			"{{ users|map(attribute='name', default='?')|join(';') }}",
		nil, "ada;?")
	assertRender(t, env, "{{ ['a-b', 'c-d']|map('replace', '-', '+')|join(';') }}",
		nil, "a+b;c+d")
	// An integer attribute plucks by index.
	assertRender(t, env, "{{ [[1, 2], [3, 4]]|map(attribute=0)|join(';') }}",
		nil, "1;3")

	assertRenderErrorKind(t, env, "{{ [1]|map('nope') }}", nil, ErrUnknownFilter)
	assertRenderErrorKind(t, env, "{{ [1]|map }}", nil, ErrMissingArgument)
}

func TestSelectRejectFilters(t *testing.T) {
	env := NewEnvironment()

	// Without a test the element's own truthiness decides.
	assertRender(t, env, "{{ [0, 1, '', 'x', none]|select|list }}", nil, `[1, "x"]`)
	assertRender(t, env, "{{ [1, 2, 3, 4, 5]|select('gt', 3)|list }}", nil, "[4, 5]")
	assertRender(t, env, "{{ [1, 2, 3, 4]|reject('divisibleby', 2)|list }}", nil, "[1, 3]")

	assertRenderErrorKind(t, env, "{{ [1]|select('bogus') }}", nil, ErrUnknownTest)
}

func TestSelectAttrFilter(t *testing.T) {
	env := NewEnvironment()

	source := "{% set users = [{'name': 'ada', 'active': true}, {'name': 'bob', 'active': false}] %}"
	assertRender(t, env,
		source+"{{ users|selectattr('active')|map(attribute='name')|join(';') }}",
		nil, "ada")
	assertRender(t, env,
		source+"{{ users|selectattr('name', 'eq', 'bob')|map(attribute='name')|join(';') }}",
		nil, "bob")
	assertRender(t, env,
		source+"{{ users|rejectattr('active')|map(attribute='name')|join(';') }}",
		nil, "bob")

	assertRenderErrorKind(t, env, "{{ [1]|selectattr }}", nil, ErrMissingArgument)
}

func TestGroupByFilter(t *testing.T) {
	env := NewEnvironment()

	source := "{% set people = [{'city': 'Oslo', 'name': 'a'}, " +
		"{'city': 'Bergen', 'name': 'b'}, {'city': 'Oslo', 'name': 'c'}] %}"

	// Groups unpack as (grouper, list) pairs, sorted by key.
	assertRender(t, env,
		source+"{% for city, members in people|groupby('city') %}"+
			"{{ city }}:{% for m in members %}{{ m.name }}{% endfor %};{% endfor %}",
		nil, "Bergen:b;Oslo:ac;")
	assertRender(t, env,
		source+"{% for g in people|groupby('city') %}"+
			"{{ g.grouper }}={{ g.list|length }};{% endfor %}",
		nil, "Bergen=1;Oslo=2;")

	assertRender(t, env,
		"{% set people = [{'city': 'Oslo'}, {}] %}"+
			"{% for city, ms in people|groupby('city', default='?') %}"+
			"{{ city }}={{ ms|length }};{% endfor %}",
		nil, "?=1;Oslo=1;")

	// Grouping folds case unless case_sensitive=true.
	assertRender(t, env,
		"{% set ws = [{'k': 'a'}, {'k': 'A'}] %}{{ ws|groupby('k')|length }}",
		nil, "1")
	assertRender(t, env,
		"{% set ws = [{'k': 'a'}, {'k': 'A'}] %}{{ ws|groupby('k', case_sensitive=true)|length }}",
		nil, "2")

	assertRenderErrorKind(t, env, "{{ [1]|groupby }}", nil, ErrMissingArgument)
}

func TestChainFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ [1, 2]|chain([3], [4]) }}", nil, "[1, 2, 3, 4]")
	// All-mapping inputs merge instead, right over left.
	assertRender(t, env, "{{ {'a': 1, 'b': 1}|chain({'b': 2}) }}", nil,
		`{"a": 1, "b": 2}`)
	// A mapping mixed with a sequence contributes its keys.
	assertRender(t, env, "{{ {'a': 1}|chain([2]) }}", nil, `["a", 2]`)

	assertRenderErrorKind(t, env, "{{ 1|chain([2]) }}", nil, ErrNotIterable)
}

func TestZipFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ [1, 2, 3]|zip(['a', 'b']) }}", nil, `[(1, "a"), (2, "b")]`)
	assertRender(t, env, "{{ [1]|zip([2], [3]) }}", nil, "[(1, 2, 3)]")
	assertRender(t, env, "{{ [1]|zip([]) }}", nil, "[]")
	assertRenderErrorKind(t, env, "{{ [1]|zip(42) }}", nil, ErrNotIterable)
}

func TestIntFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ '0x2a'|int }}", nil, "42")
	assertRender(t, env, "{{ '0o17'|int }}", nil, "15")
	assertRender(t, env, "{{ '0b101'|int }}", nil, "5")
	assertRender(t, env, "{{ ' 12 '|int }}", nil, "12")
	assertRender(t, env, "{{ '12.9'|int }}", nil, "12")
	assertRender(t, env, "{{ '1e3'|int }}", nil, "1000")
	assertRender(t, env, "{{ true|int }}", nil, "1")
	assertRender(t, env, "{{ false|int }}", nil, "0")
	assertRender(t, env, "{{ '123456789012345678901234567890'|int }}", nil,
		"123456789012345678901234567890")

	assertRender(t, env, "{{ 'zzz'|int }}", nil, "0")
	assertRender(t, env, "{{ 'zzz'|int(7) }}", nil, "7")
	assertRender(t, env, "{{ 'zzz'|int(default=9) }}", nil, "9")
}

func TestFloatFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ '1.5'|float }}", nil, "1.5")
	assertRender(t, env, "{{ '1e3'|float }}", nil, "1000.0")
	assertRender(t, env, "{{ true|float }}", nil, "1.0")
	assertRender(t, env, "{{ 'x'|float }}", nil, "0.0")
	assertRender(t, env, "{{ 'x'|float(2.5) }}", nil, "2.5")
}

func TestBoolFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ []|bool }}", nil, "false")
	assertRender(t, env, "{{ 'x'|bool }}", nil, "true")
	assertRender(t, env, "{{ none|bool }}", nil, "false")
	assertRender(t, env, "{{ 1|bool }}", nil, "true")
}

func TestRoundFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 1.25|round(1) }}", nil, "1.3")
	assertRender(t, env, "{{ -1.5|round }}", nil, "-2.0")
	assertRender(t, env, "{{ 2.1|round(0, 'ceil') }}", nil, "3.0")
	assertRender(t, env, "{{ 2.9|round(0, 'floor') }}", nil, "2.0")
	assertRender(t, env, "{{ 2.9|round(method='floor') }}", nil, "2.0")
	assertRender(t, env, "{{ 3.14159|round(precision=3) }}", nil, "3.142")

	assertRenderErrorKind(t, env, "{{ 1.0|round(0, 'bogus') }}", nil, ErrInvalidOperation)
	assertRenderErrorKind(t, env, "{{ 'x'|round }}", nil, ErrInvalidOperation)
}

func TestDictAccessFilters(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ {'b': 1, 'a': 2}|keys }}", nil, `["b", "a"]`)
	assertRender(t, env, "{{ {'b': 1, 'a': 2}|values }}", nil, "[1, 2]")
	assertRender(t, env, "{{ {'a': 1, 'b': 2}|items }}", nil, `[("a", 1), ("b", 2)]`)

	// Undefined collapses to an empty list rather than an error.
	assertRender(t, env, "{{ missing|keys }}", nil, "[]")
	assertRender(t, env, "{{ missing|values }}", nil, "[]")
	assertRender(t, env, "{{ missing|items }}", nil, "[]")

	assertRenderErrorKind(t, env, "{{ 1|items }}", nil, ErrInvalidOperation)
	assertRenderErrorKind(t, env, "{{ [1]|keys }}", nil, ErrInvalidOperation)
}

func TestDictSortFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ {'b': 1, 'a': 2}|dictsort }}", nil, `[("a", 2), ("b", 1)]`)
	assertRender(t, env, "{{ {'a': 2, 'b': 1}|dictsort(by='value') }}", nil,
		`[("b", 1), ("a", 2)]`)
	assertRender(t, env, "{{ {'b': 1, 'a': 2}|dictsort(reverse=true) }}", nil,
		`[("b", 1), ("a", 2)]`)

	assertRenderErrorKind(t, env, "{{ [1]|dictsort }}", nil, ErrInvalidOperation)
}

func TestAttrFilter(t *testing.T) {
	env := NewEnvironment()
	ctx := map[string]any{"user": map[string]any{"name": "joe", "age": 30}}

	assertRender(t, env, "{{ user|attr('name') }}", ctx, "joe")
	assertRender(t, env, "{% set field = 'age' %}{{ user|attr(field) }}", ctx, "30")

	assertRenderErrorKind(t, env, "{{ user|attr }}", ctx, ErrMissingArgument)
	assertRenderErrorKind(t, env, "{{ user|attr(1) }}", ctx, ErrInvalidOperation)
}

func TestIndentFilter(t *testing.T) {
	env := NewEnvironment()
	ctx := map[string]any{
		"text": "line1\nline2\nline3",
		"para": "a\n\nb",
	}

	assertRender(t, env, "{{ text|indent }}", ctx, "line1\n    line2\n    line3")
	assertRender(t, env, "{{ text|indent(2) }}", ctx, "line1\n  line2\n  line3")
	assertRender(t, env, "{{ text|indent(width=1) }}", ctx, "line1\n line2\n line3")
	assertRender(t, env, "{{ text|indent(2, true) }}", ctx, "  line1\n  line2\n  line3")

	assertRender(t, env, "{{ para|indent(2) }}", ctx, "a\n\n  b")
	assertRender(t, env, "{{ para|indent(2, false, true) }}", ctx, "a\n  \n  b")

	assertRender(t, env, "{{ 42|indent }}", nil, "42")
}

func TestPprintFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "p={{ 42|pprint }}", nil, "p=42")
	assertRender(t, env, "p={{ 'hi'|pprint }}", nil, `p="hi"`)
	assertRender(t, env, "p={{ []|pprint }}", nil, "p=[]")
	assertRender(t, env, "p={{ [1, 'a']|pprint }}", nil,
		"p=[\n    1,\n    \"a\",\n]")
	assertRender(t, env, "p={{ {'k': [1]}|pprint }}", nil,
		"p={\n    \"k\": [\n        1,\n    ],\n}")
}

func TestTojsonFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "j={{ 'plain'|tojson }}", nil, `j="plain"`)
	assertRender(t, env, "j={{ {'b': 2, 'a': [1, true, none]}|tojson }}", nil,
		`j={"a":[1,true,null],"b":2}`)
	assertRender(t, env, "j={{ [1, 2]|tojson(indent=2) }}", nil,
		"j=[\n  1,\n  2\n]")
}

func TestUrlencodeFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'hello world'|urlencode }}", nil, "hello%20world")
	assertRender(t, env, "{{ '/path to/file'|urlencode }}", nil, "/path%20to/file")
	assertRender(t, env, "{{ 'a&b=c'|urlencode }}", nil, "a%26b%3Dc")
	// Mappings render as query strings, skipping none values.
	assertRender(t, env, "{{ {'q': 'go lang', 'page': 2, 'skip': none}|urlencode }}",
		nil, "q=go%20lang&page=2")
}

func TestLengthAndCount(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'abc'|count }}", nil, "3")
	assertRender(t, env, "{{ {'a': 1, 'b': 2}|length }}", nil, "2")
	assertRender(t, env, "{{ 'héllo'|length }}", nil, "5")

	assertRender(t, env, "{{ 'abc'|first }}", nil, "a")
	assertRender(t, env, "{{ 'abc'|last }}", nil, "c")
	assertRenderErrorKind(t, env, "{{ 42|length }}", nil, ErrInvalidOperation)
	assertRenderErrorKind(t, env, "{{ 42|first }}", nil, ErrNotIterable)
}

func TestReverseFilter(t *testing.T) {
	env := NewEnvironment()

	assertRender(t, env, "{{ 'hello'|reverse }}", nil, "olleh")
	assertRender(t, env, "{{ 'héllo'|reverse }}", nil, "olléh")
	assertRender(t, env, "{{ (1, 2, 3)|reverse }}", nil, "[3, 2, 1]")
	assertRenderErrorKind(t, env, "{{ 42|reverse }}", nil, ErrNotIterable)
}

func TestDefaultFilterBooleanMode(t *testing.T) {
	env := NewEnvironment()

	// none is replaced like undefined.
	assertRender(t, env, "{{ none|default('fb') }}", nil, "fb")
	assertRender(t, env, "{{ missing|default(default='x') }}", nil, "x")

	assertRender(t, env, "{{ ''|default('fb', true) }}", nil, "fb")
	assertRender(t, env, "{{ 0|default('fb', boolean=true) }}", nil, "fb")
	assertRender(t, env, "{{ 'v'|default('fb', true) }}", nil, "v")
	assertRender(t, env, "{{ ''|default('fb') }}", nil, "")
}
