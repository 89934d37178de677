package nativejinja

import (
	"iter"
	"strings"

	"go.uber.org/zap"

	"nativejinja/value"
)

// Fragments is the lazy output stream of one render unit. A render unit
// (the whole template, a macro invocation, a recursive loop re-entry, a
// set or filter block capture) produces its fragments in source order,
// exactly once. The sequence is finite, single-pass and non-restartable;
// Concat is its only consumer.
type Fragments = iter.Seq[value.Value]

// Concat collapses a fragment stream into a single value. This is where
// typed output comes from: a render that produces one non-string value
// returns that value untouched, while anything longer is joined to text
// and re-read through the restricted literal grammar.
//
// The rules, in order:
//
//  1. No fragments at all yields none.
//  2. Exactly one fragment that is not a string is returned as-is.
//     Identity is preserved, so lists, maps, callables, opaque host
//     objects and the undefined value survive a render untouched.
//  3. Otherwise all fragments are rendered to text and joined. The join
//     is attempted as a literal: "12" and "34" become the integer 1234,
//     "[1, " and "2]" become a list. Text that is not a literal stays a
//     plain string.
//
// The stream is pulled at most once and always drained, so producers can
// rely on running to completion.
func Concat(fragments Fragments) value.Value {
	return concatFragments(fragments, nil)
}

func concatFragments(fragments Fragments, log *zap.Logger) value.Value {
	next, stop := iter.Pull(fragments)
	defer stop()

	first, ok := next()
	if !ok {
		return value.None()
	}

	var raw strings.Builder
	second, ok := next()
	if !ok {
		if first.Kind() != value.KindString {
			return first
		}
		s, _ := first.AsString()
		raw.WriteString(s)
	} else {
		raw.WriteString(first.String())
		raw.WriteString(second.String())
		for {
			frag, ok := next()
			if !ok {
				break
			}
			raw.WriteString(frag.String())
		}
	}

	joined := raw.String()
	parsed, err := value.ParseLiteral(joined)
	if err != nil {
		if log != nil {
			log.Debug("joined output is not a literal, keeping text",
				zap.Int("len", len(joined)),
				zap.Error(err))
		}
		return value.FromString(joined)
	}
	return parsed
}

// concatText joins a fragment stream to plain text. It is the finisher
// for the text output mode; the producer side is identical to the
// native mode, only the collapse at the end differs.
func concatText(fragments Fragments) string {
	var raw strings.Builder
	for frag := range fragments {
		raw.WriteString(frag.String())
	}
	return raw.String()
}
