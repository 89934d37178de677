package nativejinja

import (
	"context"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"

	"nativejinja/lexer"
	"nativejinja/parser"
	"nativejinja/value"
)

// UndefinedBehavior determines how undefined variables are handled.
type UndefinedBehavior int

const (
	// UndefinedLenient lets undefined values flow: they render as empty
	// text when joined, survive a singleton render as the undefined
	// value, and iterate as an empty sequence. Arithmetic on them still
	// fails.
	UndefinedLenient UndefinedBehavior = iota

	// UndefinedStrict turns any output, iteration or attribute access of
	// an undefined value into an error.
	UndefinedStrict
)

// OutputMode selects what a render produces.
type OutputMode int

const (
	// OutputNative renders to a single typed value: one fragment keeps
	// its identity, several are joined and re-read as a literal.
	OutputNative OutputMode = iota

	// OutputText renders to plain text the conventional way: all
	// fragments are stringified and joined, nothing is re-parsed.
	OutputText
)

// FilterFunc is the signature for filter functions. It receives the
// render state, the piped value, and the call arguments.
type FilterFunc func(state *State, val value.Value, args []value.Value, kwargs map[string]value.Value) (value.Value, error)

// TestFunc is the signature for test functions.
type TestFunc func(state *State, val value.Value, args []value.Value) (bool, error)

// FunctionFunc is the signature for global functions.
type FunctionFunc func(state *State, args []value.Value, kwargs map[string]value.Value) (value.Value, error)

// LoaderFunc loads template source by name. It is consulted by
// GetTemplate when no registered template matches.
type LoaderFunc func(name string) (string, error)

// Environment holds the templates and the configuration they render
// under. Configure it first, then render; renders of one environment may
// run concurrently.
type Environment struct {
	templates   map[string]*compiledTemplate
	templatesMu sync.RWMutex

	filters   map[string]FilterFunc
	tests     map[string]TestFunc
	functions map[string]FunctionFunc
	globals   map[string]value.Value
	loader    LoaderFunc

	syntaxConfig lexer.SyntaxConfig
	wsConfig     lexer.WhitespaceConfig

	undefinedBehavior UndefinedBehavior
	outputMode        OutputMode
	fuel              uint64
	debug             bool
	logger            *zap.Logger
}

type compiledTemplate struct {
	name   string
	source string
	ast    *parser.Template
}

// NewEnvironment creates a new environment with the default filters,
// tests and functions registered.
func NewEnvironment() *Environment {
	env := EmptyEnvironment()
	registerDefaultFilters(env)
	registerDefaultTests(env)
	registerDefaultFunctions(env)
	return env
}

// EmptyEnvironment creates an environment with no defaults.
func EmptyEnvironment() *Environment {
	return &Environment{
		templates:    make(map[string]*compiledTemplate),
		filters:      make(map[string]FilterFunc),
		tests:        make(map[string]TestFunc),
		functions:    make(map[string]FunctionFunc),
		globals:      make(map[string]value.Value),
		syntaxConfig: lexer.DefaultSyntax(),
		wsConfig:     lexer.DefaultWhitespace(),
		logger:       zap.NewNop(),
	}
}

// AddTemplate compiles a template from source and stores it under name.
func (e *Environment) AddTemplate(name, source string) error {
	compiled, err := e.compile(name, source)
	if err != nil {
		return err
	}

	e.templatesMu.Lock()
	e.templates[name] = compiled
	e.templatesMu.Unlock()

	e.logger.Debug("template registered",
		zap.String("template", name),
		zap.Int("source_len", len(source)))
	return nil
}

// Templates returns the names of all registered templates, sorted.
func (e *Environment) Templates() []string {
	e.templatesMu.RLock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	e.templatesMu.RUnlock()
	sort.Strings(names)
	return names
}

// RemoveTemplate drops a registered template. Removing an unknown name
// is a no-op.
func (e *Environment) RemoveTemplate(name string) {
	e.templatesMu.Lock()
	delete(e.templates, name)
	e.templatesMu.Unlock()
}

// ClearTemplates removes all registered templates.
func (e *Environment) ClearTemplates() {
	e.templatesMu.Lock()
	e.templates = make(map[string]*compiledTemplate)
	e.templatesMu.Unlock()
}

func (e *Environment) compile(name, source string) (*compiledTemplate, error) {
	ast, err := parser.Parse(source, name, e.syntaxConfig, e.wsConfig)
	if err != nil {
		if perr, ok := err.(*parser.Error); ok {
			return nil, &Error{
				Kind:    ErrSyntax,
				Message: perr.Detail,
				Span:    perr.Span,
				Name:    name,
				Source:  source,
				Err:     err,
			}
		}
		return nil, &Error{Kind: ErrSyntax, Message: err.Error(), Name: name, Source: source, Err: err}
	}
	return &compiledTemplate{name: name, source: source, ast: ast}, nil
}

// GetTemplate retrieves a template by name, consulting the loader for
// names that were never registered.
func (e *Environment) GetTemplate(name string) (*Template, error) {
	e.templatesMu.RLock()
	compiled, ok := e.templates[name]
	e.templatesMu.RUnlock()

	if !ok && e.loader != nil {
		source, err := e.loader(name)
		if err != nil {
			return nil, NewErrorf(ErrTemplateNotFound, "template %q does not exist: %w", name, err)
		}
		if err := e.AddTemplate(name, source); err != nil {
			return nil, err
		}
		e.templatesMu.RLock()
		compiled, ok = e.templates[name]
		e.templatesMu.RUnlock()
	}

	if !ok {
		return nil, NewErrorf(ErrTemplateNotFound, "template %q does not exist", name)
	}
	return &Template{env: e, compiled: compiled}, nil
}

// TemplateFromString compiles a template from source without storing it.
func (e *Environment) TemplateFromString(source string) (*Template, error) {
	return e.TemplateFromNamedString("<string>", source)
}

// TemplateFromNamedString compiles a named template from source without
// storing it.
func (e *Environment) TemplateFromNamedString(name, source string) (*Template, error) {
	compiled, err := e.compile(name, source)
	if err != nil {
		return nil, err
	}
	return &Template{env: e, compiled: compiled}, nil
}

// Render renders the stored template called name against data.
func (e *Environment) Render(name string, data any) (value.Value, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return value.Undefined(), err
	}
	return tmpl.Render(data)
}

// RenderString renders the stored template called name against data and
// stringifies the result.
func (e *Environment) RenderString(name string, data any) (string, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}
	return tmpl.RenderString(data)
}

// RenderNamedString compiles source under name and renders it against
// data in one step, without storing the template.
func (e *Environment) RenderNamedString(name, source string, data any) (value.Value, error) {
	tmpl, err := e.TemplateFromNamedString(name, source)
	if err != nil {
		return value.Undefined(), err
	}
	return tmpl.Render(data)
}

// SetLoader sets the template loader function.
func (e *Environment) SetLoader(loader LoaderFunc) {
	e.loader = loader
}

// AddFilter registers a filter function.
func (e *Environment) AddFilter(name string, f FilterFunc) {
	e.filters[name] = f
}

// AddTest registers a test function.
func (e *Environment) AddTest(name string, f TestFunc) {
	e.tests[name] = f
}

// AddFunction registers a global function.
func (e *Environment) AddFunction(name string, f FunctionFunc) {
	e.functions[name] = f
}

// AddGlobal registers a global variable.
func (e *Environment) AddGlobal(name string, v value.Value) {
	e.globals[name] = v
}

// SetSyntaxConfig sets the template delimiters.
func (e *Environment) SetSyntaxConfig(config lexer.SyntaxConfig) {
	e.syntaxConfig = config
}

// SetWhitespace sets the whitespace handling configuration.
func (e *Environment) SetWhitespace(config lexer.WhitespaceConfig) {
	e.wsConfig = config
}

// SetKeepTrailingNewline controls whether a single trailing newline at
// the end of the template survives rendering. The default is to strip
// it.
func (e *Environment) SetKeepTrailingNewline(keep bool) {
	e.wsConfig.KeepTrailingNewline = keep
}

// SetUndefinedBehavior sets how undefined variables are handled.
func (e *Environment) SetUndefinedBehavior(behavior UndefinedBehavior) {
	e.undefinedBehavior = behavior
}

// SetOutputMode selects between typed and plain-text rendering.
func (e *Environment) SetOutputMode(mode OutputMode) {
	e.outputMode = mode
}

// SetFuel bounds the number of evaluation steps a single render may
// take. Zero means unlimited.
func (e *Environment) SetFuel(fuel uint64) {
	e.fuel = fuel
}

// SetLogger installs a logger for debug-level render events. The
// default is a no-op logger.
func (e *Environment) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.logger = logger
}

// SetDebug enables capture of template source and referenced variables
// on render errors, for display via the %+v error format.
func (e *Environment) SetDebug(debug bool) {
	e.debug = debug
}

func (e *Environment) getFilter(name string) (FilterFunc, bool) {
	f, ok := e.filters[name]
	return f, ok
}

func (e *Environment) getTest(name string) (TestFunc, bool) {
	t, ok := e.tests[name]
	return t, ok
}

func (e *Environment) getFunction(name string) (FunctionFunc, bool) {
	f, ok := e.functions[name]
	return f, ok
}

func (e *Environment) filterNames() []string {
	names := make([]string, 0, len(e.filters))
	for name := range e.filters {
		names = append(names, name)
	}
	return names
}

func (e *Environment) testNames() []string {
	names := make([]string, 0, len(e.tests))
	for name := range e.tests {
		names = append(names, name)
	}
	return names
}

func (e *Environment) functionNames() []string {
	names := make([]string, 0, len(e.functions))
	for name := range e.functions {
		names = append(names, name)
	}
	return names
}

// Template represents a compiled template bound to its environment.
type Template struct {
	env      *Environment
	compiled *compiledTemplate
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.compiled.name
}

// Source returns the template source.
func (t *Template) Source() string {
	return t.compiled.source
}

// Render renders the template against data and returns the typed
// result. data may be a map, a struct, a *value.Dict or any other value
// convertible by value.FromAny; its entries become the template's top
// level variables.
func (t *Template) Render(data any) (value.Value, error) {
	return t.RenderValue(context.Background(), value.FromAny(data))
}

// RenderString renders the template against data and stringifies the
// result.
func (t *Template) RenderString(data any) (string, error) {
	result, err := t.Render(data)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// RenderValue renders the template against an already-converted context
// value. The context is available to callables via the render state.
func (t *Template) RenderValue(ctx context.Context, data value.Value) (value.Value, error) {
	state := newState(ctx, t.env, t.compiled.name, t.compiled.source, data)
	result, err := state.renderTemplate(t.compiled.ast)
	if err != nil {
		return value.Undefined(), err
	}
	return result, nil
}

// RenderTo renders the template against data and writes the stringified
// result to w.
func (t *Template) RenderTo(w io.Writer, data any) error {
	out, err := t.RenderString(data)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, out); err != nil {
		return NewErrorf(ErrWriteFailure, "cannot write rendered output: %w", err).WithName(t.compiled.name)
	}
	return nil
}
