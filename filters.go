package nativejinja

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
	"github.com/maruel/natural"

	"nativejinja/value"
)

// FilterUpper converts a string to uppercase.
func FilterUpper(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if s, ok := val.AsString(); ok {
		return value.FromString(strings.ToUpper(s)), nil
	}
	return val, nil
}

// FilterLower converts a string to lowercase.
func FilterLower(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if s, ok := val.AsString(); ok {
		return value.FromString(strings.ToLower(s)), nil
	}
	return val, nil
}

// FilterCapitalize uppercases the first character and lowercases the rest.
func FilterCapitalize(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if s, ok := val.AsString(); ok {
		return value.FromString(capitalize(s)), nil
	}
	return val, nil
}

// FilterTitle converts a string to title case.
func FilterTitle(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if s, ok := val.AsString(); ok {
		return value.FromString(titleCase(s)), nil
	}
	return val, nil
}

// FilterTrim strips surrounding whitespace, or the characters given as
// argument: {{ " hi " | trim }} or {{ "--hi--" | trim("-") }}.
func FilterTrim(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	s, ok := val.AsString()
	if !ok {
		return val, nil
	}
	if len(args) > 0 {
		if cutset, ok := args[0].AsString(); ok {
			return value.FromString(strings.Trim(s, cutset)), nil
		}
	}
	return value.FromString(strings.TrimSpace(s)), nil
}

// FilterReplace replaces occurrences of a substring:
// {{ "hello" | replace("l", "L") }} or with a count as third argument.
func FilterReplace(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	s, ok := val.AsString()
	if !ok {
		return val, nil
	}
	if len(args) < 2 {
		return val, NewError(ErrMissingArgument, "replace needs the substring and its replacement")
	}
	old, _ := args[0].AsString()
	repl, _ := args[1].AsString()
	n := -1
	if len(args) > 2 {
		if c, ok := args[2].AsInt(); ok {
			n = int(c)
		}
	}
	return value.FromString(strings.Replace(s, old, repl, n)), nil
}

// FilterFormat applies printf-style formatting to a string:
// {{ "%s scored %d points"|format(name, score) }} renders with the
// arguments spliced in order. The %(key)s form reads named values from
// a single mapping argument instead.
func FilterFormat(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	format, ok := val.AsString()
	if !ok {
		return val, NewErrorf(ErrInvalidOperation, "format expects a string, not %s", val.Kind())
	}

	var named *value.Dict
	if len(args) == 1 {
		if d, ok := args[0].AsDict(); ok {
			named = d
		}
	}

	var b strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			return value.Undefined(), NewError(ErrInvalidOperation, "incomplete format directive at end of string")
		}
		if format[i] == '%' {
			b.WriteByte('%')
			continue
		}

		var operand value.Value
		haveOperand := false
		if format[i] == '(' {
			end := strings.IndexByte(format[i:], ')')
			if end < 0 {
				return value.Undefined(), NewError(ErrInvalidOperation, "unterminated format key")
			}
			key := format[i+1 : i+end]
			if named == nil {
				return value.Undefined(), NewError(ErrInvalidOperation, "format with named directives needs a mapping argument")
			}
			v, ok := named.Get(value.FromString(key))
			if !ok {
				return value.Undefined(), NewErrorf(ErrMissingArgument, "format key %q is missing", key)
			}
			operand = v
			haveOperand = true
			i += end + 1
			if i >= len(format) {
				return value.Undefined(), NewError(ErrInvalidOperation, "incomplete format directive at end of string")
			}
		}

		// flags, width and precision carry over to Go's fmt unchanged
		start := i
		for i < len(format) && strings.IndexByte("-+ 0#", format[i]) >= 0 {
			i++
		}
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		if i < len(format) && format[i] == '.' {
			i++
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
		}
		if i >= len(format) {
			return value.Undefined(), NewError(ErrInvalidOperation, "incomplete format directive at end of string")
		}
		spec := format[start:i]
		verb := format[i]

		if !haveOperand {
			if next >= len(args) {
				return value.Undefined(), NewError(ErrMissingArgument, "not enough arguments for format string")
			}
			operand = args[next]
			next++
		}

		formatted, err := formatDirective(verb, spec, operand)
		if err != nil {
			return value.Undefined(), err
		}
		b.WriteString(formatted)
	}
	if named == nil && next < len(args) {
		return value.Undefined(), NewError(ErrTooManyArguments, "not all arguments converted during formatting")
	}
	return value.FromString(b.String()), nil
}

// formatDirective renders one % directive. The verbs map onto Go's fmt
// where the semantics line up; %i and %r are translated.
func formatDirective(verb byte, spec string, operand value.Value) (string, error) {
	switch verb {
	case 's':
		return fmt.Sprintf("%"+spec+"s", operand.String()), nil
	case 'r':
		return fmt.Sprintf("%"+spec+"s", operand.Repr()), nil
	case 'd', 'i':
		n, ok := operand.AsInt()
		if !ok {
			return "", NewErrorf(ErrInvalidOperation, "%%%c needs an integer, not %s", verb, operand.Kind())
		}
		return fmt.Sprintf("%"+spec+"d", n), nil
	case 'x', 'X', 'o':
		n, ok := operand.AsInt()
		if !ok {
			return "", NewErrorf(ErrInvalidOperation, "%%%c needs an integer, not %s", verb, operand.Kind())
		}
		return fmt.Sprintf("%"+spec+string(verb), n), nil
	case 'f', 'F', 'e', 'E', 'g', 'G':
		f, ok := operand.AsFloat()
		if !ok {
			return "", NewErrorf(ErrInvalidOperation, "%%%c needs a number, not %s", verb, operand.Kind())
		}
		v := verb
		if v == 'F' {
			v = 'f'
		}
		return fmt.Sprintf("%"+spec+string(v), f), nil
	case 'c':
		if s, ok := operand.AsString(); ok {
			return fmt.Sprintf("%"+spec+"s", s), nil
		}
		if n, ok := operand.AsInt(); ok {
			return fmt.Sprintf("%"+spec+"c", rune(n)), nil
		}
		return "", NewErrorf(ErrInvalidOperation, "%%c needs a character, not %s", operand.Kind())
	default:
		return "", NewErrorf(ErrInvalidOperation, "unsupported format character %q", string(verb))
	}
}

// FilterDefault substitutes a fallback for undefined or none values:
// {{ maybe | default("n/a") }}. With boolean=true any falsy value is
// replaced.
func FilterDefault(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	fallback := value.FromString("")
	if len(args) > 0 {
		fallback = args[0]
	} else if def, ok := kwargs["default"]; ok {
		fallback = def
	}

	if val.IsUndefined() || val.IsNone() {
		return fallback, nil
	}

	checkBool := false
	if len(args) > 1 {
		if b, ok := args[1].AsBool(); ok {
			checkBool = b
		}
	}
	if b, ok := kwargs["boolean"]; ok {
		if bb, ok := b.AsBool(); ok {
			checkBool = bb
		}
	}
	if checkBool && !val.IsTrue() {
		return fallback, nil
	}
	return val, nil
}

// FilterString converts a value to its string form; strings pass through.
func FilterString(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if val.Kind() == value.KindString {
		return val, nil
	}
	return value.FromString(val.String()), nil
}

// FilterBool converts a value to its truthiness.
func FilterBool(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	return value.FromBool(val.IsTrue()), nil
}

// FilterSplit splits a string into a list. Without arguments it splits
// on runs of whitespace; otherwise on the given separator, with an
// optional maximum number of splits.
func FilterSplit(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	s, ok := val.AsString()
	if !ok {
		return value.FromSlice(nil), nil
	}

	var sep *string
	if len(args) > 0 && !args[0].IsNone() {
		if sp, ok := args[0].AsString(); ok {
			sep = &sp
		}
	}
	maxParts := -1
	if len(args) > 1 {
		if m, ok := args[1].AsInt(); ok {
			maxParts = int(m) + 1
		}
	}

	var parts []string
	switch {
	case sep == nil && maxParts <= 0:
		parts = strings.Fields(s)
	case sep == nil:
		parts = splitWhitespaceN(s, maxParts)
	case maxParts <= 0:
		parts = strings.Split(s, *sep)
	default:
		parts = strings.SplitN(s, *sep, maxParts)
	}
	return stringListValue(parts), nil
}

func splitWhitespaceN(s string, n int) []string {
	var result []string
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				result = append(result, s[start:i])
				start = -1
				if len(result) >= n-1 {
					rest := strings.TrimLeftFunc(s[i:], unicode.IsSpace)
					if rest != "" {
						result = append(result, rest)
					}
					return result
				}
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		result = append(result, s[start:])
	}
	return result
}

// FilterLines splits a string into its lines.
func FilterLines(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	s, ok := val.AsString()
	if !ok {
		return value.FromSlice(nil), nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return stringListValue(strings.Split(s, "\n")), nil
}

// FilterSlugify turns a string into a URL and filename safe slug:
// {{ "Hello, Wörld!" | slugify }} renders hello-world.
func FilterSlugify(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	s, ok := val.AsString()
	if !ok {
		s = val.String()
	}
	return value.FromString(slug.Make(s)), nil
}

// FilterLength returns the number of elements or characters.
func FilterLength(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if l, ok := val.Len(); ok {
		return value.FromInt(int64(l)), nil
	}
	return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s has no length", val.Kind())
}

// FilterFirst returns the first element of a sequence, or undefined when
// it is empty.
func FilterFirst(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}
	if len(items) == 0 {
		return value.Undefined(), nil
	}
	return items[0], nil
}

// FilterLast returns the last element of a sequence, or undefined when
// it is empty.
func FilterLast(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}
	if len(items) == 0 {
		return value.Undefined(), nil
	}
	return items[len(items)-1], nil
}

// FilterReverse reverses a string or a sequence.
func FilterReverse(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if s, ok := val.AsString(); ok {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return value.FromString(string(runes)), nil
	}
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "cannot reverse %s", val.Kind())
	}
	result := make([]value.Value, len(items))
	for i, item := range items {
		result[len(items)-1-i] = item
	}
	return value.FromSlice(result), nil
}

// FilterSort sorts a sequence. Strings compare case-insensitively unless
// case_sensitive=true; natural=true orders embedded numbers numerically
// so host10 sorts after host9; attribute="name" sorts by an attribute,
// with dotted paths allowed.
func FilterSort(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "cannot sort %s", val.Kind())
	}

	reverse := false
	if len(args) > 0 {
		if b, ok := args[0].AsBool(); ok {
			reverse = b
		}
	}
	if r, ok := kwargs["reverse"]; ok {
		if b, ok := r.AsBool(); ok {
			reverse = b
		}
	}
	caseSensitive := kwargBool(kwargs, "case_sensitive")
	naturalOrder := kwargBool(kwargs, "natural")
	attrName := kwargString(kwargs, "attribute")

	result := make([]value.Value, len(items))
	copy(result, items)

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if attrName != "" {
			a = getDeepAttr(a, attrName)
			b = getDeepAttr(b, attrName)
		}
		cmp := compareForSort(a, b, caseSensitive, naturalOrder)
		if reverse {
			return cmp > 0
		}
		return cmp < 0
	})
	return value.FromSlice(result), nil
}

func compareForSort(a, b value.Value, caseSensitive, naturalOrder bool) int {
	if s1, ok := a.AsString(); ok {
		if s2, ok := b.AsString(); ok {
			if !caseSensitive {
				s1 = strings.ToLower(s1)
				s2 = strings.ToLower(s2)
			}
			if naturalOrder {
				switch {
				case s1 == s2:
					return 0
				case natural.Less(s1, s2):
					return -1
				default:
					return 1
				}
			}
			return strings.Compare(s1, s2)
		}
	}
	if cmp, ok := a.Compare(b); ok {
		return cmp
	}
	return strings.Compare(a.Repr(), b.Repr())
}

// getDeepAttr resolves a dotted attribute path; numeric segments index
// into sequences.
func getDeepAttr(v value.Value, path string) value.Value {
	for _, part := range strings.Split(path, ".") {
		if idx, err := strconv.ParseInt(part, 10, 64); err == nil {
			v = v.GetItem(value.FromInt(idx))
		} else {
			v = v.GetAttr(part)
		}
		if v.IsUndefined() {
			return v
		}
	}
	return v
}

// FilterJoin joins a sequence into a string: {{ [1, 2, 3] | join(", ") }}.
// With attribute="name" the named attribute of each element is joined.
func FilterJoin(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "cannot join %s", val.Kind())
	}

	sep := ""
	if len(args) > 0 {
		sep, _ = args[0].AsString()
	}
	attrName := kwargString(kwargs, "attribute")

	parts := make([]string, len(items))
	for i, item := range items {
		if attrName != "" {
			item = getDeepAttr(item, attrName)
		}
		parts[i] = item.String()
	}
	return value.FromString(strings.Join(parts, sep)), nil
}

// FilterList materializes any iterable into a list.
func FilterList(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}
	out := make([]value.Value, len(items))
	copy(out, items)
	return value.FromSlice(out), nil
}

// FilterUnique drops duplicate elements, keeping first occurrences.
// String comparison ignores case unless case_sensitive=true.
func FilterUnique(_ *State, val value.Value, _ []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}
	caseSensitive := kwargBool(kwargs, "case_sensitive")

	probe := func(v value.Value) value.Value {
		if s, ok := v.AsString(); ok && !caseSensitive {
			return value.FromString(strings.ToLower(s))
		}
		return v
	}

	var seen []value.Value
	var result []value.Value
	for _, item := range items {
		p := probe(item)
		dup := false
		for _, s := range seen {
			if s.Equal(p) {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, p)
			result = append(result, item)
		}
	}
	return value.FromSlice(result), nil
}

// FilterMin returns the smallest element, optionally of attribute="x".
func FilterMin(_ *State, val value.Value, _ []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return pickExtreme(val, kwargs, -1)
}

// FilterMax returns the largest element, optionally of attribute="x".
func FilterMax(_ *State, val value.Value, _ []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return pickExtreme(val, kwargs, 1)
}

func pickExtreme(val value.Value, kwargs map[string]value.Value, sign int) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}
	if len(items) == 0 {
		return value.Undefined(), nil
	}
	attrName := kwargString(kwargs, "attribute")

	keyOf := func(v value.Value) value.Value {
		if attrName != "" {
			return getDeepAttr(v, attrName)
		}
		return v
	}

	best := items[0]
	bestKey := keyOf(best)
	for _, item := range items[1:] {
		key := keyOf(item)
		if cmp, ok := key.Compare(bestKey); ok && cmp*sign > 0 {
			best, bestKey = item, key
		}
	}
	return best, nil
}

// FilterSum adds the elements of a sequence, starting from an optional
// initial value. With attribute="x" the named attribute is summed.
func FilterSum(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "cannot sum %s", val.Kind())
	}

	result := value.FromInt(0)
	if len(args) > 0 {
		result = args[0]
	} else if start, ok := kwargs["start"]; ok {
		result = start
	}
	attrName := kwargString(kwargs, "attribute")

	for _, item := range items {
		if attrName != "" {
			item = getDeepAttr(item, attrName)
		}
		var err error
		result, err = result.Add(item)
		if err != nil {
			return value.Undefined(), err
		}
	}
	return result, nil
}

// FilterBatch groups a sequence into lists of at most the given size:
// {{ items | batch(3) }}. A second argument pads the last batch.
func FilterBatch(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}

	size := 1
	if len(args) > 0 {
		if c, ok := args[0].AsInt(); ok && c > 0 {
			size = int(c)
		}
	}
	fillWith := value.Undefined()
	if len(args) > 1 {
		fillWith = args[1]
	}
	if f, ok := kwargs["fill_with"]; ok {
		fillWith = f
	}

	var result []value.Value
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		batch := make([]value.Value, end-i, size)
		copy(batch, items[i:end])
		if !fillWith.IsUndefined() {
			for len(batch) < size {
				batch = append(batch, fillWith)
			}
		}
		result = append(result, value.FromSlice(batch))
	}
	return value.FromSlice(result), nil
}

// FilterSlice splits a sequence into the given number of slices, front
// loading the extra elements. A second argument pads short slices.
func FilterSlice(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}

	sliceCount := 1
	if len(args) > 0 {
		if c, ok := args[0].AsInt(); ok && c > 0 {
			sliceCount = int(c)
		}
	}
	fillWith := value.Undefined()
	if len(args) > 1 {
		fillWith = args[1]
	}

	length := len(items)
	baseSize := length / sliceCount
	remainder := length % sliceCount
	maxSize := baseSize
	if remainder > 0 {
		maxSize++
	}

	var result []value.Value
	offset := 0
	for i := 0; i < sliceCount; i++ {
		size := baseSize
		if i < remainder {
			size++
		}
		part := make([]value.Value, size, maxSize)
		copy(part, items[offset:offset+size])
		if !fillWith.IsUndefined() {
			for len(part) < maxSize {
				part = append(part, fillWith)
			}
		}
		result = append(result, value.FromSlice(part))
		offset += size
	}
	return value.FromSlice(result), nil
}

// FilterMap transforms each element: {{ names | map("upper") }} applies
// a filter, {{ users | map(attribute="name") }} plucks an attribute,
// falling back to default= for elements that lack it.
func FilterMap(state *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "cannot map over %s", val.Kind())
	}

	var filterName string
	if len(args) > 0 {
		if s, ok := args[0].AsString(); ok {
			filterName = s
		}
	}
	attrValue, hasAttr := kwargs["attribute"]
	attrName := kwargString(kwargs, "attribute")
	defaultVal := value.Undefined()
	if def, ok := kwargs["default"]; ok {
		defaultVal = def
	}

	var result []value.Value
	for _, item := range items {
		var mapped value.Value
		switch {
		case hasAttr:
			if attrName != "" {
				mapped = getDeepAttr(item, attrName)
			} else {
				mapped = item.GetItem(attrValue)
			}
			if mapped.IsUndefined() && !defaultVal.IsUndefined() {
				mapped = defaultVal
			}
		case filterName != "":
			filterFn, ok := state.env.getFilter(filterName)
			if !ok {
				return value.Undefined(), NewErrorf(ErrUnknownFilter, "filter %s is unknown", filterName)
			}
			var err error
			mapped, err = filterFn(state, item, args[1:], kwargs)
			if err != nil {
				return value.Undefined(), err
			}
		default:
			return value.Undefined(), NewError(ErrMissingArgument, "map needs a filter name or an attribute")
		}
		result = append(result, mapped)
	}
	return value.FromSlice(result), nil
}

func normalizeTestName(name string) string {
	switch name {
	case "==":
		return "eq"
	case "!=":
		return "ne"
	case ">":
		return "gt"
	case ">=":
		return "ge"
	case "<":
		return "lt"
	case "<=":
		return "le"
	default:
		return name
	}
}

// FilterSelect keeps the elements that pass a test:
// {{ numbers | select("odd") }}. Without a test truthy elements pass.
func FilterSelect(state *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return applySelection(state, val, args, false, true)
}

// FilterReject drops the elements that pass a test.
func FilterReject(state *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return applySelection(state, val, args, false, false)
}

// FilterSelectAttr keeps the elements whose attribute passes a test:
// {{ users | selectattr("active") }} or
// {{ users | selectattr("role", "eq", "admin") }}.
func FilterSelectAttr(state *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return applySelection(state, val, args, true, true)
}

// FilterRejectAttr drops the elements whose attribute passes a test.
func FilterRejectAttr(state *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	return applySelection(state, val, args, true, false)
}

func applySelection(state *State, val value.Value, args []value.Value, byAttr, keep bool) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", val.Kind())
	}

	attrName := ""
	if byAttr {
		if len(args) < 1 {
			return value.Undefined(), NewError(ErrMissingArgument, "an attribute name is required")
		}
		attrName, _ = args[0].AsString()
		args = args[1:]
	}

	var testFn TestFunc
	var testArgs []value.Value
	if len(args) > 0 {
		name, ok := args[0].AsString()
		if !ok {
			return value.Undefined(), NewErrorf(ErrInvalidOperation, "test name must be a string, not %s", args[0].Kind())
		}
		testFn, ok = state.env.getTest(normalizeTestName(name))
		if !ok {
			return value.Undefined(), NewErrorf(ErrUnknownTest, "test %s is unknown", name)
		}
		testArgs = args[1:]
	}

	var result []value.Value
	for _, item := range items {
		probe := item
		if byAttr {
			probe = getDeepAttr(item, attrName)
		}
		var pass bool
		if testFn != nil {
			var err error
			pass, err = testFn(state, probe, testArgs)
			if err != nil {
				return value.Undefined(), err
			}
		} else {
			pass = probe.IsTrue()
		}
		if pass == keep {
			result = append(result, item)
		}
	}
	return value.FromSlice(result), nil
}

// FilterGroupBy groups a sequence by an attribute. Each group unpacks as
// a (grouper, list) pair and also answers .grouper and .list:
// {% for city, users in users | groupby("city") %}.
func FilterGroupBy(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	items, ok := val.Iter()
	if !ok {
		return value.Undefined(), NewErrorf(ErrNotIterable, "cannot group %s", val.Kind())
	}

	attrName := ""
	if len(args) > 0 {
		if s, ok := args[0].AsString(); ok {
			attrName = s
		}
	}
	if s := kwargString(kwargs, "attribute"); s != "" {
		attrName = s
	}
	if attrName == "" {
		return value.Undefined(), NewError(ErrMissingArgument, "groupby needs an attribute name")
	}

	defaultVal := value.Undefined()
	if def, ok := kwargs["default"]; ok {
		defaultVal = def
	} else if len(args) > 1 {
		defaultVal = args[1]
	}
	caseSensitive := kwargBool(kwargs, "case_sensitive")

	keyOf := func(item value.Value) value.Value {
		key := getDeepAttr(item, attrName)
		if key.IsUndefined() {
			key = defaultVal
		}
		return key
	}

	sorted := make([]value.Value, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareGroupKeys(keyOf(sorted[i]), keyOf(sorted[j]), caseSensitive) < 0
	})

	var result []value.Value
	var group *groupPair
	for _, item := range sorted {
		key := keyOf(item)
		if group == nil || !groupKeysEqual(group.grouper, key, caseSensitive) {
			group = &groupPair{grouper: key}
			result = append(result, value.FromObject(group))
		}
		group.list = append(group.list, item)
	}
	return value.FromSlice(result), nil
}

func compareGroupKeys(a, b value.Value, caseSensitive bool) int {
	if !caseSensitive {
		if s1, ok := a.AsString(); ok {
			if s2, ok := b.AsString(); ok {
				if cmp := strings.Compare(strings.ToLower(s1), strings.ToLower(s2)); cmp != 0 {
					return cmp
				}
				return strings.Compare(s1, s2)
			}
		}
	}
	if cmp, ok := a.Compare(b); ok {
		return cmp
	}
	return strings.Compare(a.Repr(), b.Repr())
}

func groupKeysEqual(a, b value.Value, caseSensitive bool) bool {
	if !caseSensitive {
		if s1, ok := a.AsString(); ok {
			if s2, ok := b.AsString(); ok {
				return strings.EqualFold(s1, s2)
			}
		}
	}
	return a.Equal(b)
}

// groupPair is one group produced by groupby. As a sequence object it
// unpacks like the (grouper, list) pair while keeping named access.
type groupPair struct {
	grouper value.Value
	list    []value.Value
}

func (g *groupPair) GetAttr(name string) value.Value {
	switch name {
	case "grouper":
		return g.grouper
	case "list":
		return value.FromSlice(g.list)
	}
	return value.Undefined()
}

func (g *groupPair) Items() []value.Value {
	return []value.Value{g.grouper, value.FromSlice(g.list)}
}

func (g *groupPair) String() string {
	return value.FromTuple(g.Items()).String()
}

// FilterChain concatenates sequences, or merges mappings right over
// left when every input is a mapping.
func FilterChain(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	all := append([]value.Value{val}, args...)

	allMaps := true
	for _, v := range all {
		if _, ok := v.AsDict(); !ok {
			allMaps = false
			break
		}
	}
	if allMaps {
		return value.MergeMaps(all...), nil
	}

	var items []value.Value
	for _, v := range all {
		part, ok := v.Iter()
		if !ok {
			return value.Undefined(), NewErrorf(ErrNotIterable, "cannot chain %s", v.Kind())
		}
		items = append(items, part...)
	}
	return value.FromSlice(items), nil
}

// FilterZip pairs up elements of sequences, stopping at the shortest:
// {{ names | zip(ages) }} yields (name, age) tuples.
func FilterZip(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	seqs := make([][]value.Value, 0, len(args)+1)
	for _, v := range append([]value.Value{val}, args...) {
		items, ok := v.Iter()
		if !ok {
			return value.Undefined(), NewErrorf(ErrNotIterable, "cannot zip %s", v.Kind())
		}
		seqs = append(seqs, items)
	}

	shortest := len(seqs[0])
	for _, seq := range seqs[1:] {
		shortest = min(shortest, len(seq))
	}

	result := make([]value.Value, shortest)
	for i := 0; i < shortest; i++ {
		row := make([]value.Value, len(seqs))
		for j, seq := range seqs {
			row[j] = seq[i]
		}
		result[i] = value.FromTuple(row)
	}
	return value.FromSlice(result), nil
}

// FilterAbs returns the absolute value of a number.
func FilterAbs(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	switch val.Kind() {
	case value.KindInt, value.KindFloat:
	default:
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "cannot take the absolute value of %s", val.Kind())
	}
	if cmp, ok := val.Compare(value.FromInt(0)); ok && cmp < 0 {
		return val.Neg()
	}
	return val, nil
}

// FilterInt converts a value to an integer. Strings may carry 0x, 0o and
// 0b prefixes. Unconvertible values yield the default, 0 unless given.
func FilterInt(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	fallback := value.FromInt(0)
	if len(args) > 0 {
		fallback = args[0]
	}
	if d, ok := kwargs["default"]; ok {
		fallback = d
	}

	switch val.Kind() {
	case value.KindInt:
		return val, nil
	case value.KindFloat:
		f, _ := val.AsFloat()
		return value.FromInt(int64(f)), nil
	case value.KindBool:
		if val.IsTrue() {
			return value.FromInt(1), nil
		}
		return value.FromInt(0), nil
	case value.KindString:
		s, _ := val.AsString()
		s = strings.TrimSpace(s)
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return value.FromInt(i), nil
		}
		if b, ok := new(big.Int).SetString(s, 0); ok {
			return value.FromBigInt(b), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return value.FromInt(int64(f)), nil
		}
	}
	return fallback, nil
}

// FilterFloat converts a value to a float. Unconvertible values yield
// the default, 0.0 unless given.
func FilterFloat(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	fallback := value.FromFloat(0)
	if len(args) > 0 {
		fallback = args[0]
	}
	if d, ok := kwargs["default"]; ok {
		fallback = d
	}

	switch val.Kind() {
	case value.KindInt, value.KindFloat:
		f, _ := val.AsFloat()
		return value.FromFloat(f), nil
	case value.KindBool:
		if val.IsTrue() {
			return value.FromFloat(1), nil
		}
		return value.FromFloat(0), nil
	case value.KindString:
		s, _ := val.AsString()
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return value.FromFloat(f), nil
		}
	}
	return fallback, nil
}

// FilterRound rounds a number to a precision, 0 unless given. The method
// may be "common", "ceil" or "floor". The result is always a float.
func FilterRound(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	f, ok := val.AsFloat()
	if !ok {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "cannot round %s", val.Kind())
	}

	precision := 0
	if len(args) > 0 {
		if p, ok := args[0].AsInt(); ok {
			precision = int(p)
		}
	}
	if p, ok := kwargs["precision"]; ok {
		if pp, ok := p.AsInt(); ok {
			precision = int(pp)
		}
	}
	method := "common"
	if len(args) > 1 {
		if m, ok := args[1].AsString(); ok {
			method = m
		}
	}
	if m := kwargString(kwargs, "method"); m != "" {
		method = m
	}

	multiplier := math.Pow(10, float64(precision))
	switch method {
	case "floor":
		f = math.Floor(f*multiplier) / multiplier
	case "ceil":
		f = math.Ceil(f*multiplier) / multiplier
	case "common":
		f = math.Round(f*multiplier) / multiplier
	default:
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "unknown rounding method %q", method)
	}
	return value.FromFloat(f), nil
}

// FilterItems returns a mapping's (key, value) pairs in insertion order.
func FilterItems(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if val.IsUndefined() {
		return value.FromSlice(nil), nil
	}
	d, ok := val.AsDict()
	if !ok {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s is not a mapping", val.Kind())
	}
	result := make([]value.Value, 0, d.Len())
	for k, v := range d.All() {
		result = append(result, value.FromTuple([]value.Value{k, v}))
	}
	return value.FromSlice(result), nil
}

// FilterKeys returns a mapping's keys in insertion order.
func FilterKeys(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if val.IsUndefined() {
		return value.FromSlice(nil), nil
	}
	d, ok := val.AsDict()
	if !ok {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s is not a mapping", val.Kind())
	}
	return value.FromSlice(d.Keys()), nil
}

// FilterValues returns a mapping's values in insertion order.
func FilterValues(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if val.IsUndefined() {
		return value.FromSlice(nil), nil
	}
	d, ok := val.AsDict()
	if !ok {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s is not a mapping", val.Kind())
	}
	return value.FromSlice(d.Values()), nil
}

// FilterDictSort returns a mapping's (key, value) pairs sorted by key,
// or by value with by="value".
func FilterDictSort(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	d, ok := val.AsDict()
	if !ok {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s is not a mapping", val.Kind())
	}

	byValue := false
	if len(args) > 1 {
		if b, ok := args[1].AsBool(); ok {
			byValue = b
		}
	}
	if s := kwargString(kwargs, "by"); s == "value" {
		byValue = true
	}
	reverse := false
	if len(args) > 2 {
		if b, ok := args[2].AsBool(); ok {
			reverse = b
		}
	}
	if r, ok := kwargs["reverse"]; ok {
		if b, ok := r.AsBool(); ok {
			reverse = b
		}
	}
	caseSensitive := kwargBool(kwargs, "case_sensitive")

	pairs := make([]value.Value, 0, d.Len())
	for k, v := range d.All() {
		pairs = append(pairs, value.FromTuple([]value.Value{k, v}))
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		idx := value.FromInt(0)
		if byValue {
			idx = value.FromInt(1)
		}
		cmp := compareForSort(pairs[i].GetItem(idx), pairs[j].GetItem(idx), caseSensitive, false)
		if reverse {
			return cmp > 0
		}
		return cmp < 0
	})
	return value.FromSlice(pairs), nil
}

// FilterAttr looks up an attribute dynamically: {{ obj | attr(name) }}.
func FilterAttr(_ *State, val value.Value, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.Undefined(), NewError(ErrMissingArgument, "attr needs an attribute name")
	}
	name, ok := args[0].AsString()
	if !ok {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "attribute name must be a string, not %s", args[0].Kind())
	}
	return val.GetAttr(name), nil
}

// FilterIndent indents all lines after the first by the given width.
// first=true also indents the first line, blank=true also blank ones.
func FilterIndent(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	s, ok := val.AsString()
	if !ok {
		return val, nil
	}

	width := 4
	if len(args) > 0 {
		if w, ok := args[0].AsInt(); ok {
			width = int(w)
		}
	}
	if w, ok := kwargs["width"]; ok {
		if ww, ok := w.AsInt(); ok {
			width = int(ww)
		}
	}
	first := false
	if len(args) > 1 {
		if b, ok := args[1].AsBool(); ok {
			first = b
		}
	}
	if f, ok := kwargs["first"]; ok {
		if ff, ok := f.AsBool(); ok {
			first = ff
		}
	}
	blank := false
	if len(args) > 2 {
		if b, ok := args[2].AsBool(); ok {
			blank = b
		}
	}
	if b, ok := kwargs["blank"]; ok {
		if bb, ok := b.AsBool(); ok {
			blank = bb
		}
	}

	indent := strings.Repeat(" ", width)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i == 0 && !first {
			continue
		}
		if line == "" && !blank {
			continue
		}
		lines[i] = indent + line
	}
	return value.FromString(strings.Join(lines, "\n")), nil
}

// FilterPprint renders a value with indentation for debugging.
func FilterPprint(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	return value.FromString(pprintValue(val, 0)), nil
}

func pprintValue(val value.Value, indent int) string {
	pad := strings.Repeat(" ", indent)
	inner := strings.Repeat(" ", indent+4)

	switch val.Kind() {
	case value.KindList, value.KindTuple:
		items, _ := val.AsSlice()
		open, closing := "[", "]"
		if val.Kind() == value.KindTuple {
			open, closing = "(", ")"
		}
		if len(items) == 0 {
			return open + closing
		}
		var sb strings.Builder
		sb.WriteString(open + "\n")
		for _, item := range items {
			sb.WriteString(inner)
			sb.WriteString(pprintValue(item, indent+4))
			sb.WriteString(",\n")
		}
		sb.WriteString(pad + closing)
		return sb.String()

	case value.KindMap:
		d, _ := val.AsDict()
		if d.Len() == 0 {
			return "{}"
		}
		var sb strings.Builder
		sb.WriteString("{\n")
		for k, v := range d.All() {
			sb.WriteString(inner)
			sb.WriteString(k.Repr())
			sb.WriteString(": ")
			sb.WriteString(pprintValue(v, indent+4))
			sb.WriteString(",\n")
		}
		sb.WriteString(pad + "}")
		return sb.String()

	default:
		return val.Repr()
	}
}

// FilterTojson serializes a value as JSON: {{ data | tojson }} or
// {{ data | tojson(indent=2) }}.
func FilterTojson(_ *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	indent := ""
	pick := func(v value.Value) {
		if b, ok := v.AsBool(); ok {
			if b {
				indent = "  "
			}
		} else if n, ok := v.AsInt(); ok && n > 0 {
			indent = strings.Repeat(" ", int(n))
		}
	}
	if len(args) > 0 {
		pick(args[0])
	}
	if i, ok := kwargs["indent"]; ok {
		pick(i)
	}

	var data []byte
	var err error
	if indent != "" {
		data, err = json.MarshalIndent(val.Export(), "", indent)
	} else {
		data, err = json.Marshal(val.Export())
	}
	if err != nil {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "cannot serialize to JSON: %w", err)
	}
	return value.FromString(string(data)), nil
}

// FilterUrlencode percent-encodes a string, or renders a mapping as a
// query string.
func FilterUrlencode(_ *State, val value.Value, _ []value.Value, _ map[string]value.Value) (value.Value, error) {
	if d, ok := val.AsDict(); ok {
		var parts []string
		for k, v := range d.All() {
			if v.IsNone() {
				continue
			}
			parts = append(parts, urlencodeString(k.String())+"="+urlencodeString(v.String()))
		}
		return value.FromString(strings.Join(parts, "&")), nil
	}
	s, ok := val.AsString()
	if !ok {
		s = val.String()
	}
	return value.FromString(urlencodeString(s)), nil
}

func urlencodeString(input string) string {
	escaped := url.QueryEscape(input)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return escaped
}

func kwargBool(kwargs map[string]value.Value, name string) bool {
	if v, ok := kwargs[name]; ok {
		if b, ok := v.AsBool(); ok {
			return b
		}
	}
	return false
}

func kwargString(kwargs map[string]value.Value, name string) string {
	if v, ok := kwargs[name]; ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return ""
}
