package nativejinja

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nativejinja/value"
)

// callMethod dispatches expr.name(...) calls. Objects get first say via
// the MethodCallable protocol, then a callable attribute (a function
// stored in a map, a macro on a namespace) is invoked, and finally the
// builtin string and dict methods apply.
func (s *State) callMethod(base value.Value, name string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if obj, ok := base.AsObject(); ok {
		if mc, ok := obj.(value.MethodCallable); ok {
			out, err := mc.CallMethod(s, name, args, kwargs)
			if err == nil || !errors.Is(err, value.ErrUnknownMethod) {
				return out, err
			}
		}
	}

	attrNotCallable := false
	if attr := base.GetAttr(name); !attr.IsUndefined() {
		if c, ok := attr.AsCallable(); ok {
			return c.Call(s, args, kwargs)
		}
		attrNotCallable = true
	}

	switch base.Kind() {
	case value.KindString:
		str, _ := base.AsString()
		if out, err, ok := callStringMethod(s, str, name, args, kwargs); ok {
			return out, err
		}
	case value.KindMap:
		d, _ := base.AsDict()
		if out, err, ok := callDictMethod(d, name, args, kwargs); ok {
			return out, err
		}
	}

	if attrNotCallable {
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "attribute %s exists but is not callable", name)
	}
	return value.Undefined(), NewErrorf(ErrUnknownMethod, "%s has no method named %s", base.Kind(), name)
}

func callStringMethod(s *State, str, name string, args []value.Value, kwargs map[string]value.Value) (value.Value, error, bool) {
	if len(kwargs) > 0 {
		return value.Undefined(), NewErrorf(ErrTooManyArguments, "string method %s takes no keyword arguments", name), true
	}

	switch name {
	case "upper":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		return value.FromString(strings.ToUpper(str)), nil, true

	case "lower":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		return value.FromString(strings.ToLower(str)), nil, true

	case "title":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		return value.FromString(titleCase(str)), nil, true

	case "capitalize":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		return value.FromString(capitalize(str)), nil, true

	case "strip", "lstrip", "rstrip":
		if err := wantArgs(name, args, 0, 1); err != nil {
			return value.Undefined(), err, true
		}
		if len(args) == 1 {
			cutset, err := argString(name, args, 0)
			if err != nil {
				return value.Undefined(), err, true
			}
			switch name {
			case "strip":
				return value.FromString(strings.Trim(str, cutset)), nil, true
			case "lstrip":
				return value.FromString(strings.TrimLeft(str, cutset)), nil, true
			default:
				return value.FromString(strings.TrimRight(str, cutset)), nil, true
			}
		}
		switch name {
		case "strip":
			return value.FromString(strings.TrimSpace(str)), nil, true
		case "lstrip":
			return value.FromString(strings.TrimLeftFunc(str, unicode.IsSpace)), nil, true
		default:
			return value.FromString(strings.TrimRightFunc(str, unicode.IsSpace)), nil, true
		}

	case "split":
		if err := wantArgs(name, args, 0, 2); err != nil {
			return value.Undefined(), err, true
		}
		var parts []string
		if len(args) == 0 || args[0].IsNone() {
			parts = strings.Fields(str)
		} else {
			sep, err := argString(name, args, 0)
			if err != nil {
				return value.Undefined(), err, true
			}
			n := -1
			if len(args) == 2 {
				maxSplit, ok := args[1].AsInt()
				if !ok {
					return value.Undefined(), NewErrorf(ErrInvalidOperation, "split maxsplit must be an integer, not %s", args[1].Kind()), true
				}
				n = int(maxSplit) + 1
			}
			parts = strings.SplitN(str, sep, n)
		}
		return stringListValue(parts), nil, true

	case "splitlines":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		return stringListValue(splitLines(str)), nil, true

	case "replace":
		if err := wantArgs(name, args, 2, 3); err != nil {
			return value.Undefined(), err, true
		}
		old, err := argString(name, args, 0)
		if err != nil {
			return value.Undefined(), err, true
		}
		repl, err := argString(name, args, 1)
		if err != nil {
			return value.Undefined(), err, true
		}
		n := -1
		if len(args) == 3 {
			count, ok := args[2].AsInt()
			if !ok {
				return value.Undefined(), NewErrorf(ErrInvalidOperation, "replace count must be an integer, not %s", args[2].Kind()), true
			}
			n = int(count)
		}
		return value.FromString(strings.Replace(str, old, repl, n)), nil, true

	case "startswith", "endswith":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return value.Undefined(), err, true
		}
		needles, ok := stringCandidates(args[0])
		if !ok {
			return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s needs a string or a sequence of strings, not %s", name, args[0].Kind()), true
		}
		for _, needle := range needles {
			if name == "startswith" && strings.HasPrefix(str, needle) {
				return value.FromBool(true), nil, true
			}
			if name == "endswith" && strings.HasSuffix(str, needle) {
				return value.FromBool(true), nil, true
			}
		}
		return value.FromBool(false), nil, true

	case "find":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return value.Undefined(), err, true
		}
		sub, err := argString(name, args, 0)
		if err != nil {
			return value.Undefined(), err, true
		}
		idx := strings.Index(str, sub)
		if idx < 0 {
			return value.FromInt(-1), nil, true
		}
		return value.FromInt(int64(utf8.RuneCountInString(str[:idx]))), nil, true

	case "count":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return value.Undefined(), err, true
		}
		sub, err := argString(name, args, 0)
		if err != nil {
			return value.Undefined(), err, true
		}
		return value.FromInt(int64(strings.Count(str, sub))), nil, true

	case "join":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return value.Undefined(), err, true
		}
		items, ok := args[0].Iter()
		if !ok {
			return value.Undefined(), NewErrorf(ErrNotIterable, "%s is not iterable", args[0].Kind()), true
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = item.String()
		}
		return value.FromString(strings.Join(parts, str)), nil, true
	}

	return value.Undefined(), nil, false
}

func callDictMethod(d *value.Dict, name string, args []value.Value, kwargs map[string]value.Value) (value.Value, error, bool) {
	if len(kwargs) > 0 {
		return value.Undefined(), NewErrorf(ErrTooManyArguments, "dict method %s takes no keyword arguments", name), true
	}

	switch name {
	case "get":
		if err := wantArgs(name, args, 1, 2); err != nil {
			return value.Undefined(), err, true
		}
		if v, ok := d.Get(args[0]); ok {
			return v, nil, true
		}
		if len(args) == 2 {
			return args[1], nil, true
		}
		return value.None(), nil, true

	case "keys":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		return value.FromSlice(d.Keys()), nil, true

	case "values":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		return value.FromSlice(d.Values()), nil, true

	case "items":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return value.Undefined(), err, true
		}
		items := make([]value.Value, 0, d.Len())
		for k, v := range d.All() {
			items = append(items, value.FromTuple([]value.Value{k, v}))
		}
		return value.FromSlice(items), nil, true
	}

	return value.Undefined(), nil, false
}

func wantArgs(name string, args []value.Value, minArgs, maxArgs int) error {
	if len(args) < minArgs {
		return NewErrorf(ErrMissingArgument, "%s takes at least %d argument(s), got %d", name, minArgs, len(args))
	}
	if len(args) > maxArgs {
		return NewErrorf(ErrTooManyArguments, "%s takes at most %d argument(s), got %d", name, maxArgs, len(args))
	}
	return nil
}

func argString(name string, args []value.Value, i int) (string, error) {
	s, ok := args[i].AsString()
	if !ok {
		return "", NewErrorf(ErrInvalidOperation, "%s argument %d must be a string, not %s", name, i+1, args[i].Kind())
	}
	return s, nil
}

// stringCandidates unpacks the argument of startswith and endswith,
// which accept a single string or a sequence of alternatives.
func stringCandidates(v value.Value) ([]string, bool) {
	if s, ok := v.AsString(); ok {
		return []string{s}, true
	}
	items, ok := v.AsSlice()
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.AsString()
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func stringListValue(parts []string) value.Value {
	items := make([]value.Value, len(parts))
	for i, p := range parts {
		items[i] = value.FromString(p)
	}
	return value.FromSlice(items)
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:])
}

// splitLines splits on \n, \r\n and \r without keeping the line ends.
// A trailing newline does not produce a final empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
