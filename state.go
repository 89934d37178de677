package nativejinja

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nativejinja/parser"
	"nativejinja/value"
)

// maxRecursion caps render unit nesting: macro calls, recursive loop
// re-entries and block captures. Expression nesting is already bounded
// by the parser.
const maxRecursion = 500

// State holds the evaluation state during one render. A fresh State is
// created per render, so a template may render concurrently from
// multiple goroutines.
type State struct {
	env    *Environment
	ctx    context.Context
	name   string
	source string
	scopes []map[string]value.Value

	// emit is the active fragment sink. renderUnit swaps it so nested
	// units collect their own stream.
	emit func(value.Value)

	depth int
	fuel  *fuelTracker
}

func newState(ctx context.Context, env *Environment, name, source string, data value.Value) *State {
	if ctx == nil {
		ctx = context.Background()
	}

	root := make(map[string]value.Value, len(env.globals))
	for k, v := range env.globals {
		root[k] = v
	}

	s := &State{
		env:    env,
		ctx:    ctx,
		name:   name,
		source: source,
		scopes: []map[string]value.Value{root, contextScope(data)},
	}
	if env.fuel > 0 {
		s.fuel = newFuelTracker(env.fuel)
	}
	return s
}

// contextScope flattens the render data into the template's top level
// variables. Mapping entries with string keys become variables; any
// other data renders against an empty context.
func contextScope(data value.Value) map[string]value.Value {
	scope := make(map[string]value.Value)
	if d, ok := data.AsDict(); ok {
		for k, v := range d.All() {
			if name, ok := k.AsString(); ok {
				scope[name] = v
			}
		}
	}
	return scope
}

// Context returns the Go context for this render operation.
func (s *State) Context() context.Context {
	return s.ctx
}

// Name returns the name of the template being rendered.
func (s *State) Name() string {
	return s.name
}

// Lookup looks up a variable in the current scope chain, innermost
// first. Unknown names are undefined, never an error; strictness is
// enforced where values are output or iterated.
func (s *State) Lookup(name string) value.Value {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if v, ok := s.scopes[i][name]; ok {
			return v
		}
	}
	return value.Undefined()
}

// Set binds a variable in the innermost scope.
func (s *State) Set(name string, v value.Value) {
	s.scopes[len(s.scopes)-1][name] = v
}

func (s *State) pushScope() {
	s.scopes = append(s.scopes, make(map[string]value.Value))
}

func (s *State) popScope() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// renderTemplate runs the whole template as the outermost render unit
// and returns its value.
func (s *State) renderTemplate(tmpl *parser.Template) (value.Value, error) {
	result, err := s.renderUnit("template", func() error {
		return s.evalStmts(tmpl.Children)
	})
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, tmpl)
	}
	return result, nil
}

// renderUnit runs body as one render unit: everything the body emits
// becomes the unit's fragment stream, which is collapsed to a single
// value. The same helper serves the whole template, macro invocations,
// recursive loop re-entries, and set/filter block captures, so all of
// them compose the same way.
//
// The stream is lazy: the concatenator pulls it, and each pull resumes
// the body until its next emit. The body always runs to completion
// because the concatenator drains every stream it peeks into.
func (s *State) renderUnit(unit string, body func() error) (value.Value, error) {
	if s.depth+1 > maxRecursion {
		return value.Undefined(), NewError(ErrRecursionLimit, "render depth exceeded")
	}
	s.depth++
	defer func() { s.depth-- }()

	logging := s.env.logger.Core().Enabled(zapcore.DebugLevel)
	var start time.Time
	if logging {
		start = time.Now()
	}

	var renderErr error
	fragments := func(yield func(value.Value) bool) {
		prevEmit := s.emit
		defer func() { s.emit = prevEmit }()

		stopped := false
		s.emit = func(v value.Value) {
			if stopped {
				return
			}
			if !yield(v) {
				stopped = true
			}
		}
		renderErr = body()
	}

	var result value.Value
	if s.env.outputMode == OutputText {
		result = value.FromString(concatText(fragments))
	} else {
		result = concatFragments(fragments, s.env.logger)
	}
	if renderErr != nil {
		return value.Undefined(), renderErr
	}

	if logging {
		s.env.logger.Debug("render unit finished",
			zap.String("template", s.name),
			zap.String("unit", unit),
			zap.Stringer("result_kind", result.Kind()),
			zap.Duration("elapsed", time.Since(start)))
	}
	return result, nil
}

// attachErrorInfo locates an error: it wraps foreign errors into the
// engine's Error type, classifying the value package's sentinels, and
// fills in template name and span where missing. With debug mode on it
// additionally captures the template source and the values of the
// variables the failing node references.
func (s *State) attachErrorInfo(err error, node parser.Node) error {
	if err == nil || err == errBreak || err == errContinue {
		return err
	}

	templErr, ok := err.(*Error)
	if !ok {
		kind := ErrInvalidOperation
		switch {
		case errors.Is(err, value.ErrUndefinedOperation):
			kind = ErrUndefinedOperation
		case errors.Is(err, value.ErrUnknownMethod):
			kind = ErrUnknownMethod
		}
		templErr = &Error{Kind: kind, Message: err.Error(), Err: err}
	}

	if templErr.Name == "" {
		templErr.WithName(s.name)
	}
	if templErr.Span.IsZero() && node != nil {
		templErr.WithSpan(node.Span())
	}
	if s.env.debug {
		if templErr.Source == "" {
			templErr.WithSource(s.source)
		}
		if templErr.debug == nil {
			templErr.debug = &debugInfo{referencedLocals: s.referencedLocals(node)}
		}
	}
	return templErr
}

func (s *State) consumeFuel() error {
	if s.fuel == nil {
		return nil
	}
	return s.fuel.consume(1)
}
