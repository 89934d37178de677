package value

import "errors"

// ErrUnknownMethod is returned by MethodCallable.CallMethod when the
// method is not known. It signals the engine to fall back to attribute
// lookup followed by an ordinary call.
var ErrUnknownMethod = errors.New("unknown method")

// MethodCallable is implemented by host objects that dispatch method
// calls themselves, so obj.method(args) need not round-trip through a
// bound callable attribute.
type MethodCallable interface {
	Object

	// CallMethod invokes a method on the object. Return ErrUnknownMethod
	// to fall back to GetAttr(name) and calling the result.
	CallMethod(state State, name string, args []Value, kwargs map[string]Value) (Value, error)
}

// MutableObject is implemented by host objects whose attributes can be
// assigned from templates, such as namespaces.
type MutableObject interface {
	Object

	// SetAttr assigns the named attribute.
	SetAttr(name string, v Value) error
}

// SequenceObject is implemented by host objects that also behave like a
// sequence: they iterate, report a length and answer integer subscripts
// through Items.
type SequenceObject interface {
	Object

	// Items returns the elements of the sequence.
	Items() []Value
}
