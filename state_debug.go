package nativejinja

import (
	"nativejinja/parser"
	"nativejinja/value"
)

// referencedLocals resolves every variable name the failing node
// mentions, for the debug display. Only names that resolve to a value
// are included.
func (s *State) referencedLocals(node parser.Node) map[string]value.Value {
	referenced := map[string]struct{}{}
	switch typed := node.(type) {
	case parser.Expr:
		collectReferencedNamesExpr(typed, referenced)
	case parser.Stmt:
		collectReferencedNamesStmt(typed, referenced)
	}

	locals := make(map[string]value.Value, len(referenced))
	for name := range referenced {
		if v := s.Lookup(name); !v.IsUndefined() {
			locals[name] = v
		}
	}
	return locals
}

func collectReferencedNamesStmt(stmt parser.Stmt, referenced map[string]struct{}) {
	switch st := stmt.(type) {
	case *parser.EmitExpr:
		collectReferencedNamesExpr(st.Expr, referenced)
	case *parser.ForLoop:
		collectReferencedNamesExpr(st.Iter, referenced)
		if st.FilterExpr != nil {
			collectReferencedNamesExpr(st.FilterExpr, referenced)
		}
	case *parser.IfCond:
		collectReferencedNamesExpr(st.Expr, referenced)
	case *parser.WithBlock:
		for _, assignment := range st.Assignments {
			collectReferencedNamesExpr(assignment.Value, referenced)
		}
	case *parser.Set:
		collectReferencedNamesExpr(st.Expr, referenced)
	case *parser.SetBlock:
		if st.Filter != nil {
			collectReferencedNamesExpr(st.Filter, referenced)
		}
	case *parser.FilterBlock:
		collectReferencedNamesExpr(st.Filter, referenced)
	case *parser.CallBlock:
		if st.Call != nil {
			collectReferencedNamesExpr(st.Call, referenced)
		}
	case *parser.Do:
		collectReferencedNamesExpr(st.Call, referenced)
	}
}

func collectReferencedNamesExpr(expr parser.Expr, referenced map[string]struct{}) {
	if expr == nil {
		return
	}

	switch e := expr.(type) {
	case *parser.Var:
		referenced[e.ID] = struct{}{}
	case *parser.Const:
		return
	case *parser.UnaryOp:
		collectReferencedNamesExpr(e.Expr, referenced)
	case *parser.BinOp:
		collectReferencedNamesExpr(e.Left, referenced)
		collectReferencedNamesExpr(e.Right, referenced)
	case *parser.IfExpr:
		collectReferencedNamesExpr(e.TestExpr, referenced)
		collectReferencedNamesExpr(e.TrueExpr, referenced)
		if e.FalseExpr != nil {
			collectReferencedNamesExpr(e.FalseExpr, referenced)
		}
	case *parser.Filter:
		if e.Expr != nil {
			collectReferencedNamesExpr(e.Expr, referenced)
		}
		collectReferencedNamesCallArgs(e.Args, referenced)
	case *parser.Test:
		collectReferencedNamesExpr(e.Expr, referenced)
		collectReferencedNamesCallArgs(e.Args, referenced)
	case *parser.GetAttr:
		collectReferencedNamesExpr(e.Expr, referenced)
	case *parser.GetItem:
		collectReferencedNamesExpr(e.Expr, referenced)
		collectReferencedNamesExpr(e.SubscriptExpr, referenced)
	case *parser.Slice:
		collectReferencedNamesExpr(e.Expr, referenced)
		collectReferencedNamesExpr(e.Start, referenced)
		collectReferencedNamesExpr(e.Stop, referenced)
		collectReferencedNamesExpr(e.Step, referenced)
	case *parser.Call:
		collectReferencedNamesExpr(e.Expr, referenced)
		collectReferencedNamesCallArgs(e.Args, referenced)
	case *parser.List:
		for _, item := range e.Items {
			collectReferencedNamesExpr(item, referenced)
		}
	case *parser.Tuple:
		for _, item := range e.Items {
			collectReferencedNamesExpr(item, referenced)
		}
	case *parser.Map:
		for i := range e.Keys {
			collectReferencedNamesExpr(e.Keys[i], referenced)
			collectReferencedNamesExpr(e.Values[i], referenced)
		}
	}
}

func collectReferencedNamesCallArgs(args []parser.CallArg, referenced map[string]struct{}) {
	for _, arg := range args {
		collectReferencedNamesExpr(arg.Value, referenced)
	}
}
