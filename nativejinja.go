// Package nativejinja is a Jinja-style template engine that renders to
// typed values instead of text.
//
// # Quick Start
//
//	env := nativejinja.NewEnvironment()
//	env.AddTemplate("answer", "{{ 6 * 7 }}")
//	tmpl, _ := env.GetTemplate("answer")
//	result, _ := tmpl.Render(nil)
//	fmt.Println(result.Kind()) // integer
//
// # Native Output
//
// A render produces a single Value. A template whose output is one
// interpolation keeps that value's identity: {{ items }} against a list
// returns the list itself, not its printed form. When a template mixes
// text and interpolations, the fragments are joined and the joined text
// is read back as a literal where possible, so "[{{ a }}, {{ b }}]"
// with a=1, b=2 returns the list [1, 2] and "no {{ n }}" stays the
// string "no 9". Text that does not form a literal stays a string.
// SetOutputMode(OutputText) switches a render back to conventional
// string templating.
//
// # Template Syntax
//
// The usual Jinja constructs are available:
//   - Interpolations: {{ expression }}
//   - Blocks: {% if %}, {% for %}, {% set %}, {% with %}, {% macro %},
//     {% call %}, {% filter %}, {% do %}, {% break %}, {% continue %}
//   - Comments: {# comment #}
//   - Filters: {{ value|filter(args) }}
//   - Tests: {% if value is test %}
//
// The delimiters are configurable via SetSyntaxConfig, whitespace
// handling via SetWhitespace.
//
// # Environment Configuration
//
//	env := nativejinja.NewEnvironment()
//	env.AddTemplate("greeting", "hello {{ name }}")
//	env.SetUndefinedBehavior(nativejinja.UndefinedStrict)
//	env.SetFuel(10000)
//	env.AddFilter("shout", MyShoutFilter)
//	env.AddFunction("now", MyNowFunction)
//	env.SetLoader(func(name string) (string, error) { ... })
//
// # Custom Filters and Functions
//
// Filters transform the piped value:
//
//	func MyShoutFilter(state *nativejinja.State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
//	    s, _ := val.AsString()
//	    return value.FromString(strings.ToUpper(s) + "!"), nil
//	}
//
// Functions are called directly: {{ now() }}. The slim-sprig function
// map can be loaded wholesale with env.LoadSprigFunctions().
//
// # Error Handling
//
// Errors carry a kind, the template name and a source span:
//
//	if _, err := tmpl.Render(data); err != nil {
//	    var terr *nativejinja.Error
//	    if errors.As(err, &terr) {
//	        fmt.Printf("%s at %s line %d\n", terr.Kind, terr.Name, terr.Span.StartLine)
//	    }
//	}
//
// With SetDebug(true) the %+v verb renders the failing source line and
// the referenced variables.
//
// # See Also
//
//   - environment.go: environment and template API
//   - native.go: the native output composition
//   - filters.go, tests.go, defaults.go: the builtin registries
//   - value package: the typed value model and the literal reader
package nativejinja

import (
	"nativejinja/value"
)

// Version is the library version.
const Version = "0.1.0"

// Value is a dynamically typed template value.
type Value = value.Value

// Kind describes the variant a Value holds.
type Kind = value.Kind

// Value kinds.
const (
	KindUndefined = value.KindUndefined
	KindNone      = value.KindNone
	KindBool      = value.KindBool
	KindInt       = value.KindInt
	KindFloat     = value.KindFloat
	KindString    = value.KindString
	KindBytes     = value.KindBytes
	KindList      = value.KindList
	KindTuple     = value.KindTuple
	KindMap       = value.KindMap
	KindSet       = value.KindSet
	KindCallable  = value.KindCallable
	KindOpaque    = value.KindOpaque
)

// Value constructors and helpers re-exported for convenience.
var (
	Undefined    = value.Undefined
	None         = value.None
	FromBool     = value.FromBool
	FromInt      = value.FromInt
	FromFloat    = value.FromFloat
	FromString   = value.FromString
	FromBytes    = value.FromBytes
	FromSlice    = value.FromSlice
	FromTuple    = value.FromTuple
	FromDict     = value.FromDict
	FromAny      = value.FromAny
	ParseLiteral = value.ParseLiteral
)
