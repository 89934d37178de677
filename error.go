package nativejinja

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"nativejinja/syntax"
	"nativejinja/value"
)

// ErrorKind describes the type of error.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrTemplateNotFound
	ErrTooManyArguments
	ErrMissingArgument
	ErrUnknownFilter
	ErrUnknownTest
	ErrUnknownFunction
	ErrUnknownMethod
	ErrBadEscape
	ErrUndefinedVar
	ErrUndefinedOperation
	ErrInvalidOperation
	ErrNotIterable
	ErrRecursionLimit
	ErrOutOfFuel
	ErrWriteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrTemplateNotFound:
		return "template not found"
	case ErrTooManyArguments:
		return "too many arguments"
	case ErrMissingArgument:
		return "missing argument"
	case ErrUnknownFilter:
		return "unknown filter"
	case ErrUnknownTest:
		return "unknown test"
	case ErrUnknownFunction:
		return "unknown function"
	case ErrUnknownMethod:
		return "unknown method"
	case ErrBadEscape:
		return "bad escape"
	case ErrUndefinedVar:
		return "undefined variable"
	case ErrUndefinedOperation:
		return "undefined operation"
	case ErrInvalidOperation:
		return "invalid operation"
	case ErrNotIterable:
		return "not iterable"
	case ErrRecursionLimit:
		return "recursion limit exceeded"
	case ErrOutOfFuel:
		return "out of fuel"
	case ErrWriteFailure:
		return "write failure"
	default:
		return "error"
	}
}

// Error represents an error that occurred during template processing.
// The zero Span means no location information is available.
type Error struct {
	Kind    ErrorKind
	Message string
	Span    syntax.Span
	Name    string // template name
	Source  string // template source (for error display)
	Err     error  // wrapped cause

	debug *debugInfo
}

func (e *Error) Error() string {
	switch {
	case e.Name != "" && !e.Span.IsZero():
		return fmt.Sprintf("%s: %s (in %s, line %d)", e.Kind, e.Message, e.Name, e.Span.StartLine)
	case e.Name != "":
		return fmt.Sprintf("%s: %s (in %s)", e.Kind, e.Message, e.Name)
	case !e.Span.IsZero():
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Span.StartLine)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// NewErrorf creates a new error with a formatted message. Arguments are
// passed through fmt, so %w wraps a cause the usual way.
func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Message: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// WithSpan adds span information to an error.
func (e *Error) WithSpan(span syntax.Span) *Error {
	e.Span = span
	return e
}

// WithName adds the template name to an error.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// WithSource adds the template source to an error.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// debugInfo is a snapshot of render state captured when an error occurs
// and debug mode is enabled on the environment.
type debugInfo struct {
	referencedLocals map[string]value.Value
}

// Format implements fmt.Formatter. The %+v verb renders the template
// source around the failing span together with the referenced variables
// when debug information was captured; every other verb prints the plain
// error string.
func (e *Error) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('+') {
		formatErrorWithDebug(f, e, true)
		return
	}
	fmt.Fprint(f, e.Error())
}

func formatErrorWithDebug(f fmt.State, err *Error, includeChain bool) {
	fmt.Fprint(f, err.Error())
	if err.debug != nil {
		renderDebugInfo(f, err)
	}

	if includeChain {
		for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
			fmt.Fprint(f, "\n\ncaused by: ")
			if next, ok := cause.(*Error); ok {
				formatErrorWithDebug(f, next, false)
			} else {
				fmt.Fprintf(f, "%v", cause)
			}
		}
	}
}

func renderDebugInfo(f fmt.State, err *Error) {
	if err.Source != "" {
		title := fmt.Sprintf(" %s ", templateTitle(err.Name))
		fmt.Fprint(f, "\n")
		fmt.Fprintln(f, centerLine(title, '-', 79))

		lines := strings.Split(err.Source, "\n")
		lineIdx := 0
		if err.Span.StartLine > 0 {
			lineIdx = int(err.Span.StartLine - 1)
		}
		if lineIdx >= len(lines) {
			lineIdx = len(lines) - 1
		}
		if lineIdx < 0 {
			lineIdx = 0
		}

		skip := lineIdx - 3
		if skip < 0 {
			skip = 0
		}
		for idx := skip; idx < lineIdx && idx < len(lines); idx++ {
			fmt.Fprintf(f, "%4d | %s\n", idx+1, lines[idx])
		}
		if lineIdx < len(lines) {
			fmt.Fprintf(f, "%4d > %s\n", lineIdx+1, lines[lineIdx])
		}
		if !err.Span.IsZero() && err.Span.StartLine == err.Span.EndLine {
			fmt.Fprintf(
				f,
				"     i %s%s %s\n",
				strings.Repeat(" ", int(err.Span.StartCol)),
				strings.Repeat("^", caretWidth(err.Span)),
				err.Kind,
			)
		}
		for idx := lineIdx + 1; idx <= lineIdx+3 && idx < len(lines); idx++ {
			fmt.Fprintf(f, "%4d | %s\n", idx+1, lines[idx])
		}
		fmt.Fprint(f, strings.Repeat("~", 79))
	}

	fmt.Fprint(f, "\n")
	renderReferencedLocals(f, err.debug.referencedLocals)
	fmt.Fprint(f, strings.Repeat("-", 79))
}

func renderReferencedLocals(f fmt.State, locals map[string]value.Value) {
	if len(locals) == 0 {
		fmt.Fprint(f, "No referenced variables\n")
		return
	}

	fmt.Fprint(f, "Referenced variables:\n")
	keys := make([]string, 0, len(locals))
	for key := range locals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(f, "    %s: %s\n", key, locals[key].Repr())
	}
}

func caretWidth(span syntax.Span) int {
	if span.EndCol <= span.StartCol {
		return 1
	}
	return int(span.EndCol - span.StartCol)
}

func templateTitle(name string) string {
	if name == "" {
		return "Template Source"
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return "Template Source"
	}
	return parts[len(parts)-1]
}

func centerLine(title string, fill rune, width int) string {
	if len(title) >= width {
		return title
	}
	pad := width - len(title)
	left := pad / 2
	right := pad - left
	return strings.Repeat(string(fill), left) + title + strings.Repeat(string(fill), right)
}
