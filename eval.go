package nativejinja

import (
	"errors"
	"fmt"

	"nativejinja/parser"
	"nativejinja/value"
)

// Loop control flows through the statement walk as sentinel errors so
// deeply nested bodies unwind without extra plumbing. They never escape
// a loop: the parser rejects break/continue outside one.
var (
	errBreak    = errors.New("break")
	errContinue = errors.New("continue")
)

func (s *State) evalStmts(stmts []parser.Stmt) error {
	for _, stmt := range stmts {
		if err := s.evalStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) evalStmt(stmt parser.Stmt) error {
	if err := s.consumeFuel(); err != nil {
		return err
	}

	switch st := stmt.(type) {
	case *parser.EmitRaw:
		if st.Raw != "" {
			s.emit(value.FromString(st.Raw))
		}
		return nil

	case *parser.EmitExpr:
		v, err := s.evalExpr(st.Expr)
		if err != nil {
			return s.attachErrorInfo(err, st)
		}
		if v.IsUndefined() && s.env.undefinedBehavior == UndefinedStrict {
			msg := "tried to output undefined value"
			if vr, ok := st.Expr.(*parser.Var); ok {
				msg = fmt.Sprintf("%s is undefined", vr.ID)
			}
			return s.attachErrorInfo(NewError(ErrUndefinedVar, msg), st)
		}
		s.emit(v)
		return nil

	case *parser.IfCond:
		cond, err := s.evalExpr(st.Expr)
		if err != nil {
			return s.attachErrorInfo(err, st)
		}
		if cond.IsTrue() {
			return s.evalStmts(st.TrueBody)
		}
		return s.evalStmts(st.FalseBody)

	case *parser.ForLoop:
		return s.evalForLoop(st)

	case *parser.WithBlock:
		s.pushScope()
		defer s.popScope()
		for _, assignment := range st.Assignments {
			v, err := s.evalExpr(assignment.Value)
			if err != nil {
				return s.attachErrorInfo(err, st)
			}
			if err := s.unpackTarget(assignment.Target, v); err != nil {
				return s.attachErrorInfo(err, st)
			}
		}
		return s.evalStmts(st.Body)

	case *parser.Set:
		v, err := s.evalExpr(st.Expr)
		if err != nil {
			return s.attachErrorInfo(err, st)
		}
		return s.attachErrorInfo(s.unpackTarget(st.Target, v), st)

	case *parser.SetBlock:
		captured, err := s.renderUnit("set block", func() error {
			return s.evalStmts(st.Body)
		})
		if err != nil {
			return s.attachErrorInfo(err, st)
		}
		if st.Filter != nil {
			chain, ok := st.Filter.(*parser.Filter)
			if !ok {
				return s.attachErrorInfo(NewError(ErrInvalidOperation, "malformed filter on set block"), st)
			}
			captured, err = s.evalFilterExpr(chain, &captured)
			if err != nil {
				return s.attachErrorInfo(err, st)
			}
		}
		return s.attachErrorInfo(s.unpackTarget(st.Target, captured), st)

	case *parser.FilterBlock:
		captured, err := s.renderUnit("filter block", func() error {
			return s.evalStmts(st.Body)
		})
		if err != nil {
			return s.attachErrorInfo(err, st)
		}
		chain, ok := st.Filter.(*parser.Filter)
		if !ok {
			return s.attachErrorInfo(NewError(ErrInvalidOperation, "malformed filter block"), st)
		}
		result, err := s.evalFilterExpr(chain, &captured)
		if err != nil {
			return s.attachErrorInfo(err, st)
		}
		s.emit(result)
		return nil

	case *parser.Macro:
		s.Set(st.Name, value.FromCallable(&macroValue{macro: st, state: s}))
		return nil

	case *parser.CallBlock:
		s.pushScope()
		defer s.popScope()
		s.Set("caller", value.FromCallable(&macroValue{macro: st.MacroDecl, state: s}))
		result, err := s.evalCall(st.Call)
		if err != nil {
			return s.attachErrorInfo(err, st)
		}
		s.emit(result)
		return nil

	case *parser.Do:
		_, err := s.evalCall(st.Call)
		return s.attachErrorInfo(err, st)

	case *parser.Break:
		return errBreak

	case *parser.Continue:
		return errContinue

	default:
		return s.attachErrorInfo(NewErrorf(ErrInvalidOperation, "cannot evaluate %T", stmt), stmt)
	}
}

// --- for loops ---

// loopState is the mutable per-iteration window the loop object reads.
type loopState struct {
	index0 int
	length int
	depth0 int
}

// loopValue is the value bound to "loop" inside a for body. It exposes
// the iteration counters as attributes and, for recursive loops, makes
// loop(iterable) re-enter the loop body one level deeper.
type loopValue struct {
	state   *loopState
	recurse func(value.Value) (value.Value, error)
}

func (l *loopValue) GetAttr(name string) value.Value {
	st := l.state
	switch name {
	case "index":
		return value.FromInt(int64(st.index0 + 1))
	case "index0":
		return value.FromInt(int64(st.index0))
	case "revindex":
		return value.FromInt(int64(st.length - st.index0))
	case "revindex0":
		return value.FromInt(int64(st.length - st.index0 - 1))
	case "first":
		return value.FromBool(st.index0 == 0)
	case "last":
		return value.FromBool(st.index0 == st.length-1)
	case "length":
		return value.FromInt(int64(st.length))
	case "depth":
		return value.FromInt(int64(st.depth0 + 1))
	case "depth0":
		return value.FromInt(int64(st.depth0))
	}
	return value.Undefined()
}

func (l *loopValue) Call(_ value.State, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if l.recurse == nil {
		return value.Undefined(), NewError(ErrInvalidOperation,
			"cannot recurse: the for tag is not marked recursive")
	}
	if len(kwargs) > 0 {
		return value.Undefined(), NewError(ErrTooManyArguments, "loop() takes no keyword arguments")
	}
	if len(args) != 1 {
		return value.Undefined(), NewErrorf(ErrMissingArgument, "loop() takes exactly one iterable, got %d arguments", len(args))
	}
	return l.recurse(args[0])
}

func (l *loopValue) String() string {
	return fmt.Sprintf("<loop %d/%d>", l.state.index0, l.state.length)
}

func (s *State) evalForLoop(loop *parser.ForLoop) error {
	iterable, err := s.evalExpr(loop.Iter)
	if err != nil {
		return s.attachErrorInfo(err, loop)
	}
	return s.runForLoop(loop, iterable, 0)
}

func (s *State) runForLoop(loop *parser.ForLoop, iterable value.Value, depth int) error {
	items, err := s.iterationItems(iterable)
	if err != nil {
		return s.attachErrorInfo(err, loop)
	}
	if loop.FilterExpr != nil {
		items, err = s.filterLoopItems(loop, items)
		if err != nil {
			return s.attachErrorInfo(err, loop)
		}
	}

	if len(items) == 0 {
		return s.evalStmts(loop.ElseBody)
	}

	var recurse func(value.Value) (value.Value, error)
	if loop.Recursive {
		recurse = func(v value.Value) (value.Value, error) {
			return s.renderUnit("loop", func() error {
				return s.runForLoop(loop, v, depth+1)
			})
		}
	}

	s.pushScope()
	defer s.popScope()

	st := &loopState{length: len(items), depth0: depth}
	s.Set("loop", value.FromObject(&loopValue{state: st, recurse: recurse}))

	for i, item := range items {
		st.index0 = i
		if err := s.unpackTarget(loop.Target, item); err != nil {
			return s.attachErrorInfo(err, loop)
		}
		err := s.evalStmts(loop.Body)
		if err == errContinue {
			continue
		}
		if err == errBreak {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *State) iterationItems(iterable value.Value) ([]value.Value, error) {
	if iterable.IsUndefined() {
		if s.env.undefinedBehavior == UndefinedStrict {
			return nil, NewError(ErrUndefinedVar, "cannot iterate over undefined value")
		}
		return nil, nil
	}
	items, ok := iterable.Iter()
	if !ok {
		return nil, NewErrorf(ErrNotIterable, "%s is not iterable", iterable.Kind())
	}
	return items, nil
}

// filterLoopItems applies the inline loop condition ahead of the loop
// so loop.length and loop.last see the filtered count. The target is
// bound in a throwaway scope while the condition runs.
func (s *State) filterLoopItems(loop *parser.ForLoop, items []value.Value) ([]value.Value, error) {
	s.pushScope()
	defer s.popScope()

	kept := make([]value.Value, 0, len(items))
	for _, item := range items {
		if err := s.unpackTarget(loop.Target, item); err != nil {
			return nil, err
		}
		cond, err := s.evalExpr(loop.FilterExpr)
		if err != nil {
			return nil, err
		}
		if cond.IsTrue() {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// unpackTarget assigns a value to an assignment target: a plain name, a
// possibly nested tuple of names, or an attribute of a mutable object
// such as a namespace.
func (s *State) unpackTarget(target parser.Expr, v value.Value) error {
	switch t := target.(type) {
	case *parser.Var:
		s.Set(t.ID, v)
		return nil

	case *parser.Tuple:
		items, ok := v.AsSlice()
		if !ok {
			items, ok = v.Iter()
		}
		if !ok {
			return NewErrorf(ErrInvalidOperation, "cannot unpack %s", v.Kind())
		}
		if len(items) != len(t.Items) {
			return NewErrorf(ErrInvalidOperation,
				"cannot unpack %d value(s) into %d target(s)", len(items), len(t.Items))
		}
		for i, sub := range t.Items {
			if err := s.unpackTarget(sub, items[i]); err != nil {
				return err
			}
		}
		return nil

	case *parser.GetAttr:
		base, err := s.evalExpr(t.Expr)
		if err != nil {
			return err
		}
		if obj, ok := base.AsObject(); ok {
			if m, ok := obj.(value.MutableObject); ok {
				return m.SetAttr(t.Name, v)
			}
		}
		return NewErrorf(ErrInvalidOperation, "cannot assign attribute %q on %s", t.Name, base.Kind())

	default:
		return NewError(ErrInvalidOperation, "invalid assignment target")
	}
}

// --- macros ---

// macroValue makes a macro a first-class callable. It closes over the
// render state it was defined in, so a macro that escapes the render as
// its result still works when called later.
type macroValue struct {
	macro *parser.Macro
	state *State
}

func (m *macroValue) Call(_ value.State, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	return m.state.invokeMacro(m.macro, args, kwargs)
}

func (m *macroValue) String() string {
	return fmt.Sprintf("<macro %s>", m.macro.Name)
}

func (s *State) invokeMacro(m *parser.Macro, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	if len(args) > len(m.Args) {
		return value.Undefined(), NewErrorf(ErrTooManyArguments,
			"macro %s takes at most %d argument(s), got %d", m.Name, len(m.Args), len(args))
	}

	s.pushScope()
	defer s.popScope()

	consumed := 0
	for i, argExpr := range m.Args {
		name := argExpr.(*parser.Var).ID
		if v, ok := kwargs[name]; ok {
			if i < len(args) {
				return value.Undefined(), NewErrorf(ErrTooManyArguments,
					"macro %s got multiple values for argument %q", m.Name, name)
			}
			s.Set(name, v)
			consumed++
			continue
		}
		if i < len(args) {
			s.Set(name, args[i])
			continue
		}
		defaultIdx := i - (len(m.Args) - len(m.Defaults))
		if defaultIdx >= 0 && defaultIdx < len(m.Defaults) {
			v, err := s.evalExpr(m.Defaults[defaultIdx])
			if err != nil {
				return value.Undefined(), err
			}
			s.Set(name, v)
			continue
		}
		s.Set(name, value.Undefined())
	}
	if consumed < len(kwargs) {
		for name := range kwargs {
			known := false
			for _, argExpr := range m.Args {
				if argExpr.(*parser.Var).ID == name {
					known = true
					break
				}
			}
			if !known {
				return value.Undefined(), NewErrorf(ErrTooManyArguments,
					"macro %s got an unexpected keyword argument %q", m.Name, name)
			}
		}
	}

	return s.renderUnit("macro "+m.Name, func() error {
		return s.evalStmts(m.Body)
	})
}

// --- expressions ---

func (s *State) evalExpr(expr parser.Expr) (value.Value, error) {
	if err := s.consumeFuel(); err != nil {
		return value.Undefined(), err
	}

	switch e := expr.(type) {
	case *parser.Var:
		return s.Lookup(e.ID), nil

	case *parser.Const:
		return e.Value, nil

	case *parser.UnaryOp:
		v, err := s.evalExpr(e.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		switch e.Op {
		case parser.UnaryNot:
			return value.FromBool(!v.IsTrue()), nil
		case parser.UnaryNeg:
			out, err := v.Neg()
			return out, s.attachErrorInfo(err, e)
		}
		return value.Undefined(), s.attachErrorInfo(NewErrorf(ErrInvalidOperation, "unknown unary operator %s", e.Op), e)

	case *parser.BinOp:
		return s.evalBinOp(e)

	case *parser.IfExpr:
		cond, err := s.evalExpr(e.TestExpr)
		if err != nil {
			return value.Undefined(), err
		}
		if cond.IsTrue() {
			return s.evalExpr(e.TrueExpr)
		}
		if e.FalseExpr == nil {
			return value.Undefined(), nil
		}
		return s.evalExpr(e.FalseExpr)

	case *parser.Filter:
		return s.evalFilterExpr(e, nil)

	case *parser.Test:
		return s.evalTest(e)

	case *parser.GetAttr:
		base, err := s.evalExpr(e.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		if base.IsUndefined() && s.env.undefinedBehavior == UndefinedStrict {
			return value.Undefined(), s.attachErrorInfo(
				NewErrorf(ErrUndefinedVar, "cannot read attribute %q of undefined value", e.Name), e)
		}
		return base.GetAttr(e.Name), nil

	case *parser.GetItem:
		base, err := s.evalExpr(e.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		sub, err := s.evalExpr(e.SubscriptExpr)
		if err != nil {
			return value.Undefined(), err
		}
		if base.IsUndefined() && s.env.undefinedBehavior == UndefinedStrict {
			return value.Undefined(), s.attachErrorInfo(
				NewError(ErrUndefinedVar, "cannot subscript undefined value"), e)
		}
		return base.GetItem(sub), nil

	case *parser.Slice:
		return s.evalSlice(e)

	case *parser.Call:
		return s.evalCall(e)

	case *parser.List:
		items := make([]value.Value, len(e.Items))
		for i, itemExpr := range e.Items {
			v, err := s.evalExpr(itemExpr)
			if err != nil {
				return value.Undefined(), err
			}
			items[i] = v
		}
		return value.FromSlice(items), nil

	case *parser.Tuple:
		items := make([]value.Value, len(e.Items))
		for i, itemExpr := range e.Items {
			v, err := s.evalExpr(itemExpr)
			if err != nil {
				return value.Undefined(), err
			}
			items[i] = v
		}
		return value.FromTuple(items), nil

	case *parser.Map:
		d := value.NewDict()
		for i := range e.Keys {
			k, err := s.evalExpr(e.Keys[i])
			if err != nil {
				return value.Undefined(), err
			}
			v, err := s.evalExpr(e.Values[i])
			if err != nil {
				return value.Undefined(), err
			}
			d.Set(k, v)
		}
		return value.FromDict(d), nil

	default:
		return value.Undefined(), s.attachErrorInfo(NewErrorf(ErrInvalidOperation, "cannot evaluate %T", expr), expr)
	}
}

func (s *State) evalBinOp(e *parser.BinOp) (value.Value, error) {
	// and/or return their deciding operand unevaluated on the other side.
	switch e.Op {
	case parser.BinOpScAnd:
		left, err := s.evalExpr(e.Left)
		if err != nil {
			return value.Undefined(), err
		}
		if !left.IsTrue() {
			return left, nil
		}
		return s.evalExpr(e.Right)
	case parser.BinOpScOr:
		left, err := s.evalExpr(e.Left)
		if err != nil {
			return value.Undefined(), err
		}
		if left.IsTrue() {
			return left, nil
		}
		return s.evalExpr(e.Right)
	}

	left, err := s.evalExpr(e.Left)
	if err != nil {
		return value.Undefined(), err
	}
	right, err := s.evalExpr(e.Right)
	if err != nil {
		return value.Undefined(), err
	}

	var out value.Value
	switch e.Op {
	case parser.BinOpEq:
		return value.FromBool(left.Equal(right)), nil
	case parser.BinOpNe:
		return value.FromBool(!left.Equal(right)), nil
	case parser.BinOpLt, parser.BinOpLte, parser.BinOpGt, parser.BinOpGte:
		cmp, ok := left.Compare(right)
		if !ok {
			return value.Undefined(), s.attachErrorInfo(
				NewErrorf(ErrInvalidOperation, "cannot compare %s with %s", left.Kind(), right.Kind()), e)
		}
		switch e.Op {
		case parser.BinOpLt:
			return value.FromBool(cmp < 0), nil
		case parser.BinOpLte:
			return value.FromBool(cmp <= 0), nil
		case parser.BinOpGt:
			return value.FromBool(cmp > 0), nil
		default:
			return value.FromBool(cmp >= 0), nil
		}
	case parser.BinOpIn:
		return value.FromBool(right.Contains(left)), nil
	case parser.BinOpAdd:
		out, err = left.Add(right)
	case parser.BinOpSub:
		out, err = left.Sub(right)
	case parser.BinOpMul:
		out, err = left.Mul(right)
	case parser.BinOpDiv:
		out, err = left.Div(right)
	case parser.BinOpFloorDiv:
		out, err = left.FloorDiv(right)
	case parser.BinOpRem:
		out, err = left.Rem(right)
	case parser.BinOpPow:
		out, err = left.Pow(right)
	case parser.BinOpConcat:
		out, err = left.Concat(right)
	default:
		return value.Undefined(), s.attachErrorInfo(
			NewErrorf(ErrInvalidOperation, "unknown operator %s", e.Op), e)
	}
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, e)
	}
	return out, nil
}

// evalFilterExpr evaluates a filter application. In set and filter
// blocks the head of the chain has no piped expression; the captured
// block value flows in through blockValue instead.
func (s *State) evalFilterExpr(f *parser.Filter, blockValue *value.Value) (value.Value, error) {
	var piped value.Value
	var err error
	switch {
	case f.Expr == nil:
		if blockValue == nil {
			return value.Undefined(), s.attachErrorInfo(
				NewError(ErrInvalidOperation, "filter chain has no input"), f)
		}
		piped = *blockValue
	default:
		if inner, ok := f.Expr.(*parser.Filter); ok {
			piped, err = s.evalFilterExpr(inner, blockValue)
		} else {
			piped, err = s.evalExpr(f.Expr)
		}
		if err != nil {
			return value.Undefined(), err
		}
	}

	args, kwargs, err := s.evalCallArgs(f.Args)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, f)
	}

	filter, ok := s.env.getFilter(f.Name)
	if !ok {
		return value.Undefined(), s.attachErrorInfo(
			NewErrorf(ErrUnknownFilter, "filter %s is unknown%s", f.Name,
				suggestName(f.Name, s.env.filterNames())), f)
	}
	out, err := filter(s, piped, args, kwargs)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, f)
	}
	return out, nil
}

func (s *State) evalTest(e *parser.Test) (value.Value, error) {
	val, err := s.evalExpr(e.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	args, _, err := s.evalCallArgs(e.Args)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, e)
	}

	test, ok := s.env.getTest(e.Name)
	if !ok {
		return value.Undefined(), s.attachErrorInfo(
			NewErrorf(ErrUnknownTest, "test %s is unknown%s", e.Name,
				suggestName(e.Name, s.env.testNames())), e)
	}
	pass, err := test(s, val, args)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, e)
	}
	return value.FromBool(pass), nil
}

// --- calls ---

func (s *State) evalCall(e *parser.Call) (value.Value, error) {
	args, kwargs, err := s.evalCallArgs(e.Args)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, e)
	}

	switch callee := e.Expr.(type) {
	case *parser.Var:
		// Scoped values (macros, the loop object, context callables)
		// shadow registered functions.
		if v := s.Lookup(callee.ID); !v.IsUndefined() {
			out, err := s.callValue(v, callee.ID, args, kwargs)
			return out, s.attachErrorInfo(err, e)
		}
		if fn, ok := s.env.getFunction(callee.ID); ok {
			out, err := fn(s, args, kwargs)
			return out, s.attachErrorInfo(err, e)
		}
		return value.Undefined(), s.attachErrorInfo(
			NewErrorf(ErrUnknownFunction, "%s is unknown%s", callee.ID,
				suggestName(callee.ID, s.env.functionNames())), e)

	case *parser.GetAttr:
		base, err := s.evalExpr(callee.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		out, err := s.callMethod(base, callee.Name, args, kwargs)
		return out, s.attachErrorInfo(err, e)

	default:
		v, err := s.evalExpr(e.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		out, err := s.callValue(v, "", args, kwargs)
		return out, s.attachErrorInfo(err, e)
	}
}

func (s *State) callValue(v value.Value, name string, args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
	c, ok := v.AsCallable()
	if !ok {
		if name != "" {
			return value.Undefined(), NewErrorf(ErrInvalidOperation, "%s is not callable", name)
		}
		return value.Undefined(), NewErrorf(ErrInvalidOperation, "value of type %s is not callable", v.Kind())
	}
	return c.Call(s, args, kwargs)
}

func (s *State) evalCallArgs(callArgs []parser.CallArg) ([]value.Value, map[string]value.Value, error) {
	var args []value.Value
	kwargs := make(map[string]value.Value)

	for _, arg := range callArgs {
		switch arg.Kind {
		case parser.CallArgPos:
			v, err := s.evalExpr(arg.Value)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)

		case parser.CallArgKwarg:
			v, err := s.evalExpr(arg.Value)
			if err != nil {
				return nil, nil, err
			}
			kwargs[arg.Name] = v

		case parser.CallArgPosSplat:
			v, err := s.evalExpr(arg.Value)
			if err != nil {
				return nil, nil, err
			}
			items, ok := v.Iter()
			if !ok {
				return nil, nil, NewErrorf(ErrInvalidOperation, "cannot splat %s as positional arguments", v.Kind())
			}
			args = append(args, items...)

		case parser.CallArgKwargSplat:
			v, err := s.evalExpr(arg.Value)
			if err != nil {
				return nil, nil, err
			}
			d, ok := v.AsDict()
			if !ok {
				return nil, nil, NewErrorf(ErrInvalidOperation, "cannot splat %s as keyword arguments", v.Kind())
			}
			for k, kv := range d.All() {
				name, ok := k.AsString()
				if !ok {
					return nil, nil, NewErrorf(ErrInvalidOperation, "keyword splat key %s is not a string", k.Repr())
				}
				kwargs[name] = kv
			}
		}
	}
	return args, kwargs, nil
}

// --- slices ---

func (s *State) evalSlice(e *parser.Slice) (value.Value, error) {
	base, err := s.evalExpr(e.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	if base.IsUndefined() {
		if s.env.undefinedBehavior == UndefinedStrict {
			return value.Undefined(), s.attachErrorInfo(
				NewError(ErrUndefinedVar, "cannot slice undefined value"), e)
		}
		return value.Undefined(), nil
	}

	start, err := s.sliceBound(e.Start)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, e)
	}
	stop, err := s.sliceBound(e.Stop)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, e)
	}
	step, err := s.sliceBound(e.Step)
	if err != nil {
		return value.Undefined(), s.attachErrorInfo(err, e)
	}
	if step != nil && *step == 0 {
		return value.Undefined(), s.attachErrorInfo(
			NewError(ErrInvalidOperation, "slice step cannot be zero"), e)
	}

	switch base.Kind() {
	case value.KindString:
		str, _ := base.AsString()
		runes := []rune(str)
		picked := sliceIndexes(start, stop, step, len(runes))
		out := make([]rune, 0, len(picked))
		for _, i := range picked {
			out = append(out, runes[i])
		}
		return value.FromString(string(out)), nil

	case value.KindBytes:
		b, _ := base.AsBytes()
		picked := sliceIndexes(start, stop, step, len(b))
		out := make([]byte, 0, len(picked))
		for _, i := range picked {
			out = append(out, b[i])
		}
		return value.FromBytes(out), nil

	case value.KindList, value.KindTuple:
		items, _ := base.AsSlice()
		picked := sliceIndexes(start, stop, step, len(items))
		out := make([]value.Value, 0, len(picked))
		for _, i := range picked {
			out = append(out, items[i])
		}
		if base.Kind() == value.KindTuple {
			return value.FromTuple(out), nil
		}
		return value.FromSlice(out), nil

	default:
		return value.Undefined(), s.attachErrorInfo(
			NewErrorf(ErrInvalidOperation, "cannot slice %s", base.Kind()), e)
	}
}

func (s *State) sliceBound(expr parser.Expr) (*int64, error) {
	if expr == nil {
		return nil, nil
	}
	v, err := s.evalExpr(expr)
	if err != nil {
		return nil, err
	}
	if v.IsNone() || v.IsUndefined() {
		return nil, nil
	}
	i, ok := v.AsInt()
	if !ok {
		return nil, NewErrorf(ErrInvalidOperation, "slice indices must be integers, not %s", v.Kind())
	}
	return &i, nil
}

// sliceIndexes resolves slice bounds the way Python resolves them:
// defaults depend on the step sign, negative indexes count from the
// end, and everything clamps instead of erroring.
func sliceIndexes(start, stop, step *int64, n int) []int {
	st := int64(1)
	if step != nil {
		st = *step
	}

	length := int64(n)
	var lower, upper int64
	if st > 0 {
		lower, upper = 0, length
	} else {
		lower, upper = -1, length-1
	}

	resolve := func(bound *int64, missing int64) int64 {
		if bound == nil {
			return missing
		}
		b := *bound
		if b < 0 {
			return max(b+length, lower)
		}
		return min(b, upper)
	}

	var from, to int64
	if st > 0 {
		from = resolve(start, lower)
		to = resolve(stop, upper)
	} else {
		from = resolve(start, upper)
		to = resolve(stop, lower)
	}

	var picked []int
	if st > 0 {
		for i := from; i < to; i += st {
			picked = append(picked, int(i))
		}
	} else {
		for i := from; i > to; i += st {
			picked = append(picked, int(i))
		}
	}
	return picked
}
