package nativejinja

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"nativejinja/value"
)

func registerDefaultFilters(env *Environment) {
	// String filters
	env.AddFilter("upper", FilterUpper)
	env.AddFilter("lower", FilterLower)
	env.AddFilter("capitalize", FilterCapitalize)
	env.AddFilter("title", FilterTitle)
	env.AddFilter("trim", FilterTrim)
	env.AddFilter("replace", FilterReplace)
	env.AddFilter("format", FilterFormat)
	env.AddFilter("default", FilterDefault)
	env.AddFilter("d", FilterDefault) // alias
	env.AddFilter("string", FilterString)
	env.AddFilter("bool", FilterBool)
	env.AddFilter("split", FilterSplit)
	env.AddFilter("lines", FilterLines)
	env.AddFilter("slugify", FilterSlugify)

	// List/sequence filters
	env.AddFilter("length", FilterLength)
	env.AddFilter("count", FilterLength) // alias
	env.AddFilter("first", FilterFirst)
	env.AddFilter("last", FilterLast)
	env.AddFilter("reverse", FilterReverse)
	env.AddFilter("sort", FilterSort)
	env.AddFilter("join", FilterJoin)
	env.AddFilter("list", FilterList)
	env.AddFilter("unique", FilterUnique)
	env.AddFilter("min", FilterMin)
	env.AddFilter("max", FilterMax)
	env.AddFilter("sum", FilterSum)
	env.AddFilter("batch", FilterBatch)
	env.AddFilter("slice", FilterSlice)
	env.AddFilter("map", FilterMap)
	env.AddFilter("select", FilterSelect)
	env.AddFilter("reject", FilterReject)
	env.AddFilter("selectattr", FilterSelectAttr)
	env.AddFilter("rejectattr", FilterRejectAttr)
	env.AddFilter("groupby", FilterGroupBy)
	env.AddFilter("chain", FilterChain)
	env.AddFilter("zip", FilterZip)

	// Numeric filters
	env.AddFilter("abs", FilterAbs)
	env.AddFilter("int", FilterInt)
	env.AddFilter("float", FilterFloat)
	env.AddFilter("round", FilterRound)

	// Mapping filters
	env.AddFilter("items", FilterItems)
	env.AddFilter("keys", FilterKeys)
	env.AddFilter("values", FilterValues)
	env.AddFilter("dictsort", FilterDictSort)

	// Other filters
	env.AddFilter("attr", FilterAttr)
	env.AddFilter("indent", FilterIndent)
	env.AddFilter("pprint", FilterPprint)
	env.AddFilter("tojson", FilterTojson)
	env.AddFilter("urlencode", FilterUrlencode)
}

func registerDefaultTests(env *Environment) {
	env.AddTest("defined", TestDefined)
	env.AddTest("undefined", TestUndefined)
	env.AddTest("none", TestNone)
	env.AddTest("true", TestTrue)
	env.AddTest("false", TestFalse)
	env.AddTest("odd", TestOdd)
	env.AddTest("even", TestEven)
	env.AddTest("divisibleby", TestDivisibleBy)
	env.AddTest("eq", TestEq)
	env.AddTest("equalto", TestEq)
	env.AddTest("ne", TestNe)
	env.AddTest("lt", TestLt)
	env.AddTest("lessthan", TestLt)
	env.AddTest("le", TestLe)
	env.AddTest("gt", TestGt)
	env.AddTest("greaterthan", TestGt)
	env.AddTest("ge", TestGe)
	env.AddTest("in", TestIn)
	env.AddTest("string", TestString)
	env.AddTest("number", TestNumber)
	env.AddTest("integer", TestInteger)
	env.AddTest("int", TestInteger) // alias
	env.AddTest("float", TestFloat)
	env.AddTest("boolean", TestBoolean)
	env.AddTest("sequence", TestSequence)
	env.AddTest("mapping", TestMapping)
	env.AddTest("iterable", TestIterable)
	env.AddTest("callable", TestCallable)
	env.AddTest("startingwith", TestStartingWith)
	env.AddTest("endingwith", TestEndingWith)
	env.AddTest("containing", TestContaining)
	env.AddTest("sameas", TestSameAs)
	env.AddTest("lower", TestLower)
	env.AddTest("upper", TestUpper)
	env.AddTest("filter", TestFilter)
	env.AddTest("test", TestTest)
}

func registerDefaultFunctions(env *Environment) {
	env.AddFunction("range", fnRange)
	env.AddFunction("dict", fnDict)
	env.AddFunction("cycler", fnCycler)
	env.AddFunction("joiner", fnJoiner)
	env.AddFunction("namespace", fnNamespace)
	env.AddFunction("debug", fnDebug)
	env.AddFunction("lipsum", fnLipsum)
	env.AddFunction("uuid4", fnUUID4)
}

// --- Functions ---

const maxRangeLength = 100000

func fnRange(_ *State, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	var start, stop, step int64 = 0, 0, 1

	switch len(args) {
	case 1:
		stop, _ = args[0].AsInt()
	case 2:
		start, _ = args[0].AsInt()
		stop, _ = args[1].AsInt()
	case 3:
		start, _ = args[0].AsInt()
		stop, _ = args[1].AsInt()
		step, _ = args[2].AsInt()
	default:
		if len(args) == 0 {
			return value.Undefined(), NewError(ErrMissingArgument, "range needs at least a stop value")
		}
		return value.Undefined(), NewErrorf(ErrTooManyArguments, "range takes at most 3 arguments, got %d", len(args))
	}

	if step == 0 {
		return value.Undefined(), NewError(ErrInvalidOperation, "range step cannot be zero")
	}

	var length int64
	if step > 0 && stop > start {
		length = (stop - start + step - 1) / step
	} else if step < 0 && stop < start {
		length = (start - stop - step - 1) / -step
	}
	if length > maxRangeLength {
		return value.Undefined(), NewError(ErrInvalidOperation, "range has too many elements")
	}

	result := make([]value.Value, 0, length)
	if step > 0 {
		for i := start; i < stop; i += step {
			result = append(result, value.FromInt(i))
		}
	} else {
		for i := start; i > stop; i += step {
			result = append(result, value.FromInt(i))
		}
	}
	return value.FromSlice(result), nil
}

func fnDict(_ *State, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	d := value.NewDict()

	if len(args) > 1 {
		return value.Undefined(), NewErrorf(ErrTooManyArguments, "dict takes at most one positional argument, got %d", len(args))
	}
	if len(args) == 1 {
		if src, ok := args[0].AsDict(); ok {
			for k, v := range src.All() {
				d.Set(k, v)
			}
		} else if items, ok := args[0].Iter(); ok {
			for _, item := range items {
				pair, ok := item.AsSlice()
				if !ok || len(pair) != 2 {
					return value.Undefined(), NewError(ErrInvalidOperation, "dict needs (key, value) pairs")
				}
				d.Set(pair[0], pair[1])
			}
		} else if !args[0].IsNone() {
			return value.Undefined(), NewErrorf(ErrInvalidOperation, "cannot build a dict from %s", args[0].Kind())
		}
	}

	// Keyword order is not observable through a Go map, so entries are
	// added sorted by name to keep renders deterministic.
	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.Set(value.FromString(name), kwargs[name])
	}
	return value.FromDict(d), nil
}

// cyclerObject cycles through its values on each next() call:
//
//	{% set row = cycler("odd", "even") %}
//	{% for item in items %}{{ row.next() }}{% endfor %}
type cyclerObject struct {
	items []value.Value
	index int
}

func fnCycler(_ *State, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Undefined(), NewError(ErrMissingArgument, "cycler needs at least one value")
	}
	return value.FromObject(&cyclerObject{items: args}), nil
}

func (c *cyclerObject) GetAttr(name string) value.Value {
	if name == "current" {
		return c.items[c.index]
	}
	return value.Undefined()
}

func (c *cyclerObject) CallMethod(_ value.State, name string, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	switch name {
	case "next":
		result := c.items[c.index]
		c.index = (c.index + 1) % len(c.items)
		return result, nil
	case "reset":
		c.index = 0
		return value.None(), nil
	}
	return value.Undefined(), value.ErrUnknownMethod
}

func (c *cyclerObject) String() string {
	return fmt.Sprintf("<cycler %s>", value.FromSlice(c.items).Repr())
}

// joinerValue emits nothing on its first call and the separator on
// every later one, for comma placement in loops.
type joinerValue struct {
	sep   string
	first bool
}

func fnJoiner(_ *State, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	sep := ", "
	if len(args) > 0 {
		if s, ok := args[0].AsString(); ok {
			sep = s
		}
	}
	return value.FromCallable(&joinerValue{sep: sep, first: true}), nil
}

func (j *joinerValue) Call(_ value.State, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if j.first {
		j.first = false
		return value.FromString(""), nil
	}
	return value.FromString(j.sep), nil
}

func (j *joinerValue) String() string {
	return fmt.Sprintf("<joiner %q>", j.sep)
}

// namespaceValue backs the namespace() function. Its attributes can be
// assigned from templates, which is how totals survive loop scopes:
//
//	{% set ns = namespace(total=0) %}
//	{% for x in prices %}{% set ns.total = ns.total + x %}{% endfor %}
type namespaceValue struct {
	data map[string]value.Value
}

func fnNamespace(_ *State, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	ns := &namespaceValue{data: make(map[string]value.Value, len(kwargs))}

	if len(args) > 0 {
		d, ok := args[0].AsDict()
		if !ok {
			if !args[0].IsUndefined() && !args[0].IsNone() {
				return value.Undefined(), NewErrorf(ErrInvalidOperation, "namespace expects a mapping, not %s", args[0].Kind())
			}
		} else {
			for k, v := range d.All() {
				if name, ok := k.AsString(); ok {
					ns.data[name] = v
				}
			}
		}
	}
	for k, v := range kwargs {
		ns.data[k] = v
	}
	return value.FromObject(ns), nil
}

func (n *namespaceValue) GetAttr(name string) value.Value {
	if v, ok := n.data[name]; ok {
		return v
	}
	return value.Undefined()
}

func (n *namespaceValue) SetAttr(name string, v value.Value) error {
	n.data[name] = v
	return nil
}

func (n *namespaceValue) String() string {
	keys := make([]string, 0, len(n.data))
	for k := range n.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q: %s", k, n.data[k].Repr()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func fnDebug(state *State, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) > 0 {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.Repr()
		}
		return value.FromString(strings.Join(parts, ", ")), nil
	}

	var sb strings.Builder
	sb.WriteString("State {\n")
	fmt.Fprintf(&sb, "  name: %q,\n", state.name)
	sb.WriteString("  current variables: {\n")
	seen := map[string]bool{}
	for i := len(state.scopes) - 1; i >= 0; i-- {
		keys := make([]string, 0, len(state.scopes[i]))
		for k := range state.scopes[i] {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "    %s: %s,\n", k, state.scopes[i][k].Repr())
		}
	}
	sb.WriteString("  }\n}")
	return value.FromString(sb.String()), nil
}

func fnLipsum(_ *State, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	n := int64(5)
	if len(args) > 0 {
		if nn, ok := args[0].AsInt(); ok {
			n = nn
		}
	}
	if nn, ok := kwargs["n"]; ok {
		if nnn, ok := nn.AsInt(); ok {
			n = nnn
		}
	}

	const lorem = "Lorem ipsum dolor sit amet, consectetur adipiscing elit. " +
		"Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. " +
		"Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris."

	paragraphs := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		paragraphs = append(paragraphs, lorem)
	}
	return value.FromString(strings.Join(paragraphs, "\n\n")), nil
}

// fnUUID4 returns a random UUID as a string:
//
//	{{ uuid4() }} -> "0cc66e0a-d9a5-4e1e-b395-0e619e9c6271"
func fnUUID4(_ *State, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) > 0 {
		return value.Undefined(), NewError(ErrTooManyArguments, "uuid4 takes no arguments")
	}
	return value.FromString(uuid.NewString()), nil
}
