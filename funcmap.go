package nativejinja

import (
	"fmt"
	"reflect"

	sprig "github.com/go-task/slim-sprig/v3"

	"nativejinja/value"
)

// LoadSprigFunctions registers the slim-sprig function map as template
// functions, bridged through the value model:
//
//	env.LoadSprigFunctions()
//	// {{ sha256sum("hello") }}, {{ trimSuffix(".go", name) }}, ...
//
// Names already registered, by the defaults or by the caller, are left
// alone.
func (e *Environment) LoadSprigFunctions() {
	for name, fn := range sprig.FuncMap() {
		if _, exists := e.functions[name]; exists {
			continue
		}
		if wrapped, ok := wrapGoFunction(name, fn); ok {
			e.AddFunction(name, wrapped)
		}
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// wrapGoFunction adapts a plain Go function to a template function.
// Arguments are exported to Go data and converted to the parameter
// types; a trailing error return is surfaced as a template error.
func wrapGoFunction(name string, fn any) (FunctionFunc, bool) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func || ft.NumOut() == 0 || ft.NumOut() > 2 {
		return nil, false
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, false
	}

	wrapped := func(_ *State, args []value.Value, kwargs map[string]value.Value) (out value.Value, err error) {
		if len(kwargs) > 0 {
			return value.Undefined(), NewErrorf(ErrTooManyArguments, "%s takes no keyword arguments", name)
		}
		numIn := ft.NumIn()
		if ft.IsVariadic() {
			if len(args) < numIn-1 {
				return value.Undefined(), NewErrorf(ErrMissingArgument,
					"%s takes at least %d argument(s), got %d", name, numIn-1, len(args))
			}
		} else if len(args) != numIn {
			kind := ErrTooManyArguments
			if len(args) < numIn {
				kind = ErrMissingArgument
			}
			return value.Undefined(), NewErrorf(kind,
				"%s takes %d argument(s), got %d", name, numIn, len(args))
		}

		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			var paramType reflect.Type
			if ft.IsVariadic() && i >= numIn-1 {
				paramType = ft.In(numIn - 1).Elem()
			} else {
				paramType = ft.In(i)
			}
			cv, cerr := convertToGo(arg, paramType)
			if cerr != nil {
				return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s argument %d: %w", name, i+1, cerr)
			}
			in[i] = cv
		}

		defer func() {
			if p := recover(); p != nil {
				out = value.Undefined()
				err = NewErrorf(ErrInvalidOperation, "%s failed: %v", name, p)
			}
		}()

		results := fv.Call(in)
		if len(results) == 2 && !results[1].IsNil() {
			return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s failed: %w", name, results[1].Interface().(error))
		}
		return value.FromAny(results[0].Interface()), nil
	}
	return wrapped, true
}

func convertToGo(v value.Value, t reflect.Type) (reflect.Value, error) {
	// String parameters accept anything the way template output would
	// render it; this also avoids Go's rune conversion from integers.
	if t.Kind() == reflect.String {
		return reflect.ValueOf(v.String()).Convert(t), nil
	}

	exported := v.Export()
	if exported == nil {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return reflect.ValueOf(exported), nil
	}

	ev := reflect.ValueOf(exported)
	if ev.Type().AssignableTo(t) {
		return ev, nil
	}
	if ev.Type().ConvertibleTo(t) {
		return ev.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", v.Kind(), t)
}
