package parser

import (
	"fmt"
	"math/big"
	"strconv"

	"nativejinja/lexer"
	"nativejinja/syntax"
	"nativejinja/value"
)

const maxRecursion = 150

var reservedNames = map[string]bool{
	"true": true, "True": true,
	"false": true, "False": true,
	"none": true, "None": true,
	"loop": true, "caller": true,
}

// Error represents a parse error.
type Error struct {
	Detail string
	Name   string
	Span   syntax.Span
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("syntax error: %s (in %s, line %d)", e.Detail, e.Name, e.Span.StartLine)
	}
	return fmt.Sprintf("syntax error: %s (line %d)", e.Detail, e.Span.StartLine)
}

// Parser turns a token stream into a Template AST.
type Parser struct {
	tokens   []lexer.Token
	pos      int
	filename string
	inLoop   bool
	depth    int
	lastSpan Span
}

// Parse parses template source and returns the AST or an error.
func Parse(source, filename string, syntaxCfg lexer.SyntaxConfig, whitespaceCfg lexer.WhitespaceConfig) (*Template, error) {
	tokens, err := lexer.Tokenize(source, syntaxCfg, whitespaceCfg)
	if err != nil {
		return nil, fmt.Errorf("%s (in %s)", err, filename)
	}

	p := &Parser{
		tokens:   tokens,
		filename: filename,
	}

	tmpl, parseErr := p.parse()
	if parseErr != nil {
		return nil, parseErr
	}
	return tmpl, nil
}

// ParseDefault parses template source with the default syntax.
func ParseDefault(source, filename string) (*Template, error) {
	return Parse(source, filename, lexer.DefaultSyntax(), lexer.DefaultWhitespace())
}

func (p *Parser) parse() (*Template, *Error) {
	span := Span{StartLine: 1}
	children, err := p.subparse(func(tok lexer.Token) bool { return false })
	if err != nil {
		return nil, err
	}
	return &Template{
		Children: children,
		span:     p.expandSpan(span),
	}, nil
}

func (p *Parser) current() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) advance() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	tok := &p.tokens[p.pos]
	p.lastSpan = tok.Span
	p.pos++
	return tok
}

func (p *Parser) currentSpan() Span {
	if tok := p.current(); tok != nil {
		return tok.Span
	}
	return p.lastSpan
}

func (p *Parser) expandSpan(start Span) Span {
	return Span{
		StartLine:   start.StartLine,
		StartCol:    start.StartCol,
		StartOffset: start.StartOffset,
		EndLine:     p.lastSpan.EndLine,
		EndCol:      p.lastSpan.EndCol,
		EndOffset:   p.lastSpan.EndOffset,
	}
}

func (p *Parser) syntaxError(msg string) *Error {
	return &Error{
		Detail: msg,
		Name:   p.filename,
		Span:   p.currentSpan(),
	}
}

func (p *Parser) unexpected(got string, expected string) *Error {
	return p.syntaxError(fmt.Sprintf("unexpected %s, expected %s", got, expected))
}

func (p *Parser) unexpectedEOF(expected string) *Error {
	return p.syntaxError(fmt.Sprintf("unexpected end of input, expected %s", expected))
}

func (p *Parser) expect(typ lexer.TokenType, expected string) (*lexer.Token, *Error) {
	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF(expected)
	}
	if tok.Type != typ {
		return nil, p.unexpected(tokenDescription(tok), expected)
	}
	return tok, nil
}

func (p *Parser) expectIdent(expected string) (string, Span, *Error) {
	tok := p.advance()
	if tok == nil {
		return "", Span{}, p.unexpectedEOF(expected)
	}
	if tok.Type != lexer.TokenIdent {
		return "", Span{}, p.unexpected(tokenDescription(tok), expected)
	}
	return tok.Value, tok.Span, nil
}

func (p *Parser) expectKeyword(kw string, expected string) *Error {
	tok := p.advance()
	if tok == nil {
		return p.unexpectedEOF(expected)
	}
	if tok.Type != lexer.TokenIdent || tok.Value != kw {
		return p.unexpected(tokenDescription(tok), expected)
	}
	return nil
}

func (p *Parser) skip(typ lexer.TokenType) bool {
	if tok := p.current(); tok != nil && tok.Type == typ {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) skipKeyword(kw string) bool {
	if tok := p.current(); tok != nil && tok.Type == lexer.TokenIdent && tok.Value == kw {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matches(typ lexer.TokenType) bool {
	tok := p.current()
	return tok != nil && tok.Type == typ
}

func (p *Parser) matchesKeyword(kw string) bool {
	tok := p.current()
	return tok != nil && tok.Type == lexer.TokenIdent && tok.Value == kw
}

func (p *Parser) matchesAny(types ...lexer.TokenType) bool {
	tok := p.current()
	if tok == nil {
		return false
	}
	for _, t := range types {
		if tok.Type == t {
			return true
		}
	}
	return false
}

func (p *Parser) matchesAnyKeyword(keywords ...string) bool {
	tok := p.current()
	if tok == nil || tok.Type != lexer.TokenIdent {
		return false
	}
	for _, kw := range keywords {
		if tok.Value == kw {
			return true
		}
	}
	return false
}

func tokenDescription(tok *lexer.Token) string {
	switch tok.Type {
	case lexer.TokenIdent:
		return "identifier"
	case lexer.TokenString:
		return "string"
	case lexer.TokenBytes:
		return "bytes"
	case lexer.TokenInteger, lexer.TokenBigInt:
		return "integer"
	case lexer.TokenFloat:
		return "float"
	case lexer.TokenBlockEnd:
		return "end of block"
	case lexer.TokenVariableEnd:
		return "end of variable block"
	default:
		return fmt.Sprintf("`%s`", tok.Value)
	}
}

// --- Expression parsing ---

func (p *Parser) parseExpr() (Expr, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum recursion limits")
	}
	defer func() { p.depth-- }()
	return p.parseIfExpr()
}

func (p *Parser) parseExprNoIf() (Expr, *Error) {
	return p.parseOr()
}

// parseTupleExpr parses expr (`,` expr)* into a Tuple when at least one
// comma appears. Used where Python permits bare tuples: variable output,
// for-loop iterables and set right-hand sides.
func (p *Parser) parseTupleExpr(noIf bool) (Expr, *Error) {
	span := p.currentSpan()
	parseOne := p.parseExpr
	if noIf {
		parseOne = p.parseExprNoIf
	}

	expr, err := parseOne()
	if err != nil {
		return nil, err
	}
	if !p.matches(lexer.TokenComma) {
		return expr, nil
	}

	items := []Expr{expr}
	for p.skip(lexer.TokenComma) {
		if p.matchesAny(lexer.TokenVariableEnd, lexer.TokenBlockEnd) ||
			p.matchesAnyKeyword("if", "recursive") {
			break // trailing comma
		}
		item, err := parseOne()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &Tuple{Items: items, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseIfExpr() (Expr, *Error) {
	span := p.lastSpan
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	for p.skipKeyword("if") {
		testExpr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		var falseExpr Expr
		if p.skipKeyword("else") {
			falseExpr, err = p.parseIfExpr()
			if err != nil {
				return nil, err
			}
		}
		expr = &IfExpr{
			TestExpr:  testExpr,
			TrueExpr:  expr,
			FalseExpr: falseExpr,
			span:      p.expandSpan(span),
		}
		span = p.lastSpan
	}
	return expr, nil
}

func (p *Parser) parseOr() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpScOr, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpScAnd, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, *Error) {
	span := p.currentSpan()
	if p.skipKeyword("not") {
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryNot, Expr: expr, span: p.expandSpan(span)}, nil
	}
	return p.parseCompare()
}

func (p *Parser) parseCompare() (Expr, *Error) {
	span := p.lastSpan
	expr, err := p.parseMath1()
	if err != nil {
		return nil, err
	}

	for {
		var op BinOpKind
		negated := false

		tok := p.current()
		if tok == nil {
			break
		}

		switch tok.Type {
		case lexer.TokenEq:
			op = BinOpEq
		case lexer.TokenNe:
			op = BinOpNe
		case lexer.TokenLt:
			op = BinOpLt
		case lexer.TokenLe:
			op = BinOpLte
		case lexer.TokenGt:
			op = BinOpGt
		case lexer.TokenGe:
			op = BinOpGte
		case lexer.TokenIdent:
			if tok.Value == "in" {
				op = BinOpIn
			} else if tok.Value == "not" {
				p.advance()
				if err := p.expectKeyword("in", "in"); err != nil {
					return nil, err
				}
				op = BinOpIn
				negated = true
			} else {
				return expr, nil
			}
		default:
			return expr, nil
		}

		if !negated {
			p.advance()
		}

		right, err := p.parseMath1()
		if err != nil {
			return nil, err
		}
		expr = &BinOp{Op: op, Left: expr, Right: right, span: p.expandSpan(span)}
		if negated {
			expr = &UnaryOp{Op: UnaryNot, Expr: expr, span: p.expandSpan(span)}
		}
		span = p.lastSpan
	}
	return expr, nil
}

func (p *Parser) parseMath1() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		switch {
		case p.skip(lexer.TokenPlus):
			op = BinOpAdd
		case p.skip(lexer.TokenMinus):
			op = BinOpSub
		default:
			return left, nil
		}
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}
	}
}

func (p *Parser) parseConcat() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseMath2()
	if err != nil {
		return nil, err
	}
	for p.skip(lexer.TokenTilde) {
		right, err := p.parseMath2()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpConcat, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseMath2() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		switch {
		case p.skip(lexer.TokenMul):
			op = BinOpMul
		case p.skip(lexer.TokenDiv):
			op = BinOpDiv
		case p.skip(lexer.TokenFloorDiv):
			op = BinOpFloorDiv
		case p.skip(lexer.TokenMod):
			op = BinOpRem
		default:
			return left, nil
		}
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}
	}
}

func (p *Parser) parsePow() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.skip(lexer.TokenPow) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpPow, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, *Error) {
	span := p.currentSpan()
	expr, err := p.parseUnaryOnly()
	if err != nil {
		return nil, err
	}
	expr, err = p.parsePostfix(expr, span)
	if err != nil {
		return nil, err
	}
	return p.parseFilterExpr(expr)
}

func (p *Parser) parseUnaryOnly() (Expr, *Error) {
	span := p.currentSpan()
	if p.skip(lexer.TokenMinus) {
		expr, err := p.parseUnaryOnly()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryNeg, Expr: expr, span: p.expandSpan(span)}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePostfix(expr Expr, span Span) (Expr, *Error) {
	for {
		nextSpan := p.currentSpan()
		switch {
		case p.skip(lexer.TokenDot):
			name, _, err := p.expectIdent("identifier")
			if err != nil {
				return nil, err
			}
			expr = &GetAttr{Expr: expr, Name: name, span: p.expandSpan(span)}

		case p.skip(lexer.TokenBracketOpen):
			var start, stop, step Expr
			var isSlice bool
			var err *Error

			if !p.matches(lexer.TokenColon) {
				start, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
			if p.skip(lexer.TokenColon) {
				isSlice = true
				if !p.matchesAny(lexer.TokenBracketClose, lexer.TokenColon) {
					stop, err = p.parseExpr()
					if err != nil {
						return nil, err
					}
				}
				if p.skip(lexer.TokenColon) && !p.matches(lexer.TokenBracketClose) {
					step, err = p.parseExpr()
					if err != nil {
						return nil, err
					}
				}
			}
			if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
				return nil, err
			}

			if !isSlice {
				if start == nil {
					return nil, p.syntaxError("empty subscript")
				}
				expr = &GetItem{Expr: expr, SubscriptExpr: start, span: p.expandSpan(span)}
			} else {
				expr = &Slice{Expr: expr, Start: start, Stop: stop, Step: step, span: p.expandSpan(span)}
			}

		case p.matches(lexer.TokenParenOpen):
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &Call{Expr: expr, Args: args, span: p.expandSpan(span)}

		default:
			return expr, nil
		}
		span = nextSpan
	}
}

func (p *Parser) parseFilterExpr(expr Expr) (Expr, *Error) {
	for {
		switch {
		case p.skip(lexer.TokenPipe):
			name, span, err := p.expectIdent("identifier")
			if err != nil {
				return nil, err
			}
			var args []CallArg
			if p.matches(lexer.TokenParenOpen) {
				args, err = p.parseArgs()
				if err != nil {
					return nil, err
				}
			}
			expr = &Filter{Name: name, Expr: expr, Args: args, span: p.expandSpan(span)}

		case p.matchesKeyword("is"):
			p.advance()
			negated := p.skipKeyword("not")
			name, span, err := p.expectIdent("identifier")
			if err != nil {
				return nil, err
			}
			var args []CallArg
			if p.matches(lexer.TokenParenOpen) {
				args, err = p.parseArgs()
				if err != nil {
					return nil, err
				}
			} else if p.matchesAny(lexer.TokenIdent, lexer.TokenString, lexer.TokenBytes,
				lexer.TokenInteger, lexer.TokenBigInt, lexer.TokenFloat,
				lexer.TokenPlus, lexer.TokenMinus,
				lexer.TokenBracketOpen, lexer.TokenBraceOpen) &&
				!p.matchesAnyKeyword("and", "or", "else", "is", "in", "not") {
				// Shorthand single argument: x is divisibleby 3.
				argSpan := p.currentSpan()
				argExpr, err := p.parseUnaryOnly()
				if err != nil {
					return nil, err
				}
				argExpr, err = p.parsePostfix(argExpr, argSpan)
				if err != nil {
					return nil, err
				}
				args = []CallArg{{Kind: CallArgPos, Value: argExpr}}
			}
			expr = &Test{Name: name, Expr: expr, Args: args, span: p.expandSpan(span)}
			if negated {
				expr = &UnaryOp{Op: UnaryNot, Expr: expr, span: p.expandSpan(span)}
			}

		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgs() ([]CallArg, *Error) {
	var args []CallArg
	hasKwargs := false

	if _, err := p.expect(lexer.TokenParenOpen, "`(`"); err != nil {
		return nil, err
	}

	for {
		if p.skip(lexer.TokenParenClose) {
			break
		}
		if len(args) > 0 || hasKwargs {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
			if p.skip(lexer.TokenParenClose) {
				break
			}
		}

		var kind CallArgKind
		switch {
		case p.skip(lexer.TokenPow):
			kind = CallArgKwargSplat
		case p.skip(lexer.TokenMul):
			kind = CallArgPosSplat
		default:
			kind = CallArgPos
		}

		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		switch kind {
		case CallArgPos:
			if v, ok := expr.(*Var); ok && p.skip(lexer.TokenAssign) {
				hasKwargs = true
				val, err := p.parseExprNoIf()
				if err != nil {
					return nil, err
				}
				args = append(args, CallArg{Kind: CallArgKwarg, Name: v.ID, Value: val})
			} else if hasKwargs {
				return nil, p.syntaxError("non-keyword arg after keyword arg")
			} else {
				args = append(args, CallArg{Kind: CallArgPos, Value: expr})
			}
		case CallArgPosSplat:
			args = append(args, CallArg{Kind: CallArgPosSplat, Value: expr})
		case CallArgKwargSplat:
			args = append(args, CallArg{Kind: CallArgKwargSplat, Value: expr})
			hasKwargs = true
		}

		if len(args) > 2000 {
			return nil, p.syntaxError("too many arguments in call")
		}
	}

	return args, nil
}

func (p *Parser) parsePrimary() (Expr, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum recursion limits")
	}
	defer func() { p.depth-- }()

	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF("expression")
	}
	span := tok.Span

	switch tok.Type {
	case lexer.TokenIdent:
		switch tok.Value {
		case "true", "True":
			return &Const{Value: value.FromBool(true), span: span}, nil
		case "false", "False":
			return &Const{Value: value.FromBool(false), span: span}, nil
		case "none", "None":
			return &Const{Value: value.None(), span: span}, nil
		default:
			return &Var{ID: tok.Value, span: span}, nil
		}

	case lexer.TokenString:
		// Adjacent string literals concatenate.
		val := tok.Value
		for p.matches(lexer.TokenString) {
			val += p.advance().Value
		}
		if p.matches(lexer.TokenBytes) {
			return nil, p.syntaxError("cannot mix string and bytes literals")
		}
		return &Const{Value: value.FromString(val), span: p.expandSpan(span)}, nil

	case lexer.TokenBytes:
		val := tok.Value
		for p.matches(lexer.TokenBytes) {
			val += p.advance().Value
		}
		if p.matches(lexer.TokenString) {
			return nil, p.syntaxError("cannot mix string and bytes literals")
		}
		return &Const{Value: value.FromBytes([]byte(val)), span: p.expandSpan(span)}, nil

	case lexer.TokenInteger:
		val, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			bi, ok := new(big.Int).SetString(tok.Value, 10)
			if !ok {
				return nil, p.syntaxError("invalid integer literal")
			}
			return &Const{Value: value.FromBigInt(bi), span: span}, nil
		}
		return &Const{Value: value.FromInt(val), span: span}, nil

	case lexer.TokenBigInt:
		bi, ok := new(big.Int).SetString(tok.Value, 10)
		if !ok {
			return nil, p.syntaxError("invalid integer literal")
		}
		return &Const{Value: value.FromBigInt(bi), span: span}, nil

	case lexer.TokenFloat:
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.syntaxError("invalid float literal")
		}
		return &Const{Value: value.FromFloat(val), span: span}, nil

	case lexer.TokenParenOpen:
		return p.parseTupleOrExpr(span)

	case lexer.TokenBracketOpen:
		return p.parseListExpr(span)

	case lexer.TokenBraceOpen:
		return p.parseMapExpr(span)

	default:
		return nil, p.syntaxError(fmt.Sprintf("unexpected %s", tokenDescription(tok)))
	}
}

func (p *Parser) parseTupleOrExpr(span Span) (Expr, *Error) {
	if p.skip(lexer.TokenParenClose) {
		return &Tuple{Items: nil, span: p.expandSpan(span)}, nil
	}

	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.matches(lexer.TokenComma) {
		items := []Expr{expr}
		for {
			if p.skip(lexer.TokenParenClose) {
				break
			}
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
			if p.skip(lexer.TokenParenClose) {
				break
			}
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return &Tuple{Items: items, span: p.expandSpan(span)}, nil
	}

	// Plain parenthesized expression.
	if _, err := p.expect(lexer.TokenParenClose, "`)`"); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *Parser) parseListExpr(span Span) (Expr, *Error) {
	var items []Expr
	for {
		if p.skip(lexer.TokenBracketClose) {
			break
		}
		if len(items) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
			if p.skip(lexer.TokenBracketClose) {
				break
			}
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &List{Items: items, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseMapExpr(span Span) (Expr, *Error) {
	var keys, values []Expr
	for {
		if p.skip(lexer.TokenBraceClose) {
			break
		}
		if len(keys) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
			if p.skip(lexer.TokenBraceClose) {
				break
			}
		}
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenColon, "`:`"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		values = append(values, val)
	}
	return &Map{Keys: keys, Values: values, span: p.expandSpan(span)}, nil
}

// --- Statement parsing ---

func (p *Parser) parseStmt() (Stmt, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum recursion limits")
	}
	defer func() { p.depth-- }()

	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF("block keyword")
	}
	span := tok.Span

	if tok.Type != lexer.TokenIdent {
		return nil, p.unexpected(tokenDescription(tok), "statement")
	}

	switch tok.Value {
	case "for":
		stmt, err := p.parseForStmt()
		if err != nil {
			return nil, err
		}
		stmt.span = p.expandSpan(span)
		return stmt, nil

	case "if":
		stmt, err := p.parseIfCond()
		if err != nil {
			return nil, err
		}
		stmt.span = p.expandSpan(span)
		return stmt, nil

	case "with":
		stmt, err := p.parseWithBlock()
		if err != nil {
			return nil, err
		}
		stmt.span = p.expandSpan(span)
		return stmt, nil

	case "set":
		return p.parseSet(span)

	case "filter":
		stmt, err := p.parseFilterBlock()
		if err != nil {
			return nil, err
		}
		stmt.span = p.expandSpan(span)
		return stmt, nil

	case "macro":
		stmt, err := p.parseMacro()
		if err != nil {
			return nil, err
		}
		stmt.span = p.expandSpan(span)
		return stmt, nil

	case "call":
		stmt, err := p.parseCallBlock(span)
		if err != nil {
			return nil, err
		}
		stmt.span = p.expandSpan(span)
		return stmt, nil

	case "continue":
		if !p.inLoop {
			return nil, p.syntaxError("'continue' must be placed inside a loop")
		}
		return &Continue{span: p.expandSpan(span)}, nil

	case "break":
		if !p.inLoop {
			return nil, p.syntaxError("'break' must be placed inside a loop")
		}
		return &Break{span: p.expandSpan(span)}, nil

	case "do":
		stmt, err := p.parseDo()
		if err != nil {
			return nil, err
		}
		stmt.span = p.expandSpan(span)
		return stmt, nil

	default:
		return nil, p.syntaxError(fmt.Sprintf("unknown statement %s", tok.Value))
	}
}

func (p *Parser) parseAssignName() (Expr, *Error) {
	name, span, err := p.expectIdent("identifier")
	if err != nil {
		return nil, err
	}
	if reservedNames[name] {
		return nil, p.syntaxError(fmt.Sprintf("cannot assign to reserved variable name %s", name))
	}
	return &Var{ID: name, span: span}, nil
}

// parseAssignment parses an assignment target, which may be a single
// name or a possibly nested tuple of names.
func (p *Parser) parseAssignment() (Expr, *Error) {
	span := p.currentSpan()
	var items []Expr
	isTuple := false

	for {
		if len(items) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
		}
		if p.matchesAny(lexer.TokenParenClose, lexer.TokenVariableEnd, lexer.TokenBlockEnd) ||
			p.matchesKeyword("in") {
			break
		}

		var item Expr
		var err *Error
		if p.skip(lexer.TokenParenOpen) {
			item, err = p.parseAssignment()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenParenClose, "`)`"); err != nil {
				return nil, err
			}
		} else {
			item, err = p.parseAssignName()
			if err != nil {
				return nil, err
			}
		}
		items = append(items, item)

		if p.matches(lexer.TokenComma) {
			isTuple = true
		} else {
			break
		}
	}

	if !isTuple && len(items) == 1 {
		return items[0], nil
	}
	return &Tuple{Items: items, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseForStmt() (*ForLoop, *Error) {
	oldInLoop := p.inLoop
	p.inLoop = true
	defer func() { p.inLoop = oldInLoop }()

	target, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}

	if err := p.expectKeyword("in", "in"); err != nil {
		return nil, err
	}

	iter, err := p.parseTupleExpr(true)
	if err != nil {
		return nil, err
	}

	var filterExpr Expr
	if p.skipKeyword("if") {
		filterExpr, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}

	recursive := p.skipKeyword("recursive")

	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	body, err := p.subparse(func(tok lexer.Token) bool {
		return tok.Type == lexer.TokenIdent && (tok.Value == "endfor" || tok.Value == "else")
	})
	if err != nil {
		return nil, err
	}

	var elseBody []Stmt
	if p.skipKeyword("else") {
		if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
			return nil, err
		}
		elseBody, err = p.subparse(func(tok lexer.Token) bool {
			return tok.Type == lexer.TokenIdent && tok.Value == "endfor"
		})
		if err != nil {
			return nil, err
		}
	}
	p.advance() // consume endfor

	return &ForLoop{
		Target:     target,
		Iter:       iter,
		FilterExpr: filterExpr,
		Recursive:  recursive,
		Body:       body,
		ElseBody:   elseBody,
	}, nil
}

func (p *Parser) parseIfCond() (*IfCond, *Error) {
	expr, err := p.parseExprNoIf()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	trueBody, err := p.subparse(func(tok lexer.Token) bool {
		return tok.Type == lexer.TokenIdent && (tok.Value == "endif" || tok.Value == "else" || tok.Value == "elif")
	})
	if err != nil {
		return nil, err
	}

	var falseBody []Stmt
	tok := p.advance()
	if tok != nil && tok.Type == lexer.TokenIdent {
		switch tok.Value {
		case "else":
			if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
				return nil, err
			}
			falseBody, err = p.subparse(func(tok lexer.Token) bool {
				return tok.Type == lexer.TokenIdent && tok.Value == "endif"
			})
			if err != nil {
				return nil, err
			}
			p.advance() // consume endif

		case "elif":
			span := tok.Span
			nested, err := p.parseIfCond()
			if err != nil {
				return nil, err
			}
			nested.span = p.expandSpan(span)
			falseBody = []Stmt{nested}
		}
	}

	return &IfCond{
		Expr:      expr,
		TrueBody:  trueBody,
		FalseBody: falseBody,
	}, nil
}

func (p *Parser) parseWithBlock() (*WithBlock, *Error) {
	var assignments []Assignment

	for !p.matches(lexer.TokenBlockEnd) {
		if len(assignments) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
		}

		var target Expr
		var err *Error
		if p.skip(lexer.TokenParenOpen) {
			target, err = p.parseAssignment()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenParenClose, "`)`"); err != nil {
				return nil, err
			}
		} else {
			target, err = p.parseAssignName()
			if err != nil {
				return nil, err
			}
		}

		if _, err := p.expect(lexer.TokenAssign, "assignment operator"); err != nil {
			return nil, err
		}

		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		assignments = append(assignments, Assignment{Target: target, Value: val})
	}

	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	body, err := p.subparse(func(tok lexer.Token) bool {
		return tok.Type == lexer.TokenIdent && tok.Value == "endwith"
	})
	if err != nil {
		return nil, err
	}
	p.advance() // consume endwith

	return &WithBlock{Assignments: assignments, Body: body}, nil
}

// parseSetTarget parses a set target. Unlike loop targets, a plain name
// may take attribute segments so namespace objects can be assigned into:
// {% set ns.counter = ns.counter + 1 %}.
func (p *Parser) parseSetTarget() (Expr, *Error) {
	span := p.currentSpan()
	target, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	if _, ok := target.(*Var); ok {
		for p.skip(lexer.TokenDot) {
			name, _, err := p.expectIdent("attribute name")
			if err != nil {
				return nil, err
			}
			target = &GetAttr{Expr: target, Name: name, span: p.expandSpan(span)}
		}
	}
	return target, nil
}

func (p *Parser) parseSet(span Span) (Stmt, *Error) {
	target, err := p.parseSetTarget()
	if err != nil {
		return nil, err
	}

	// {% set x %}...{% endset %} captures the body, optionally filtered.
	if p.matchesAny(lexer.TokenBlockEnd, lexer.TokenPipe) {
		var filter Expr
		if p.skip(lexer.TokenPipe) {
			filter, err = p.parseFilterChain()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
			return nil, err
		}
		body, err := p.subparse(func(tok lexer.Token) bool {
			return tok.Type == lexer.TokenIdent && tok.Value == "endset"
		})
		if err != nil {
			return nil, err
		}
		p.advance() // consume endset
		return &SetBlock{
			Target: target,
			Filter: filter,
			Body:   body,
			span:   p.expandSpan(span),
		}, nil
	}

	if _, err := p.expect(lexer.TokenAssign, "assignment operator"); err != nil {
		return nil, err
	}

	expr, err := p.parseTupleExpr(false)
	if err != nil {
		return nil, err
	}

	return &Set{Target: target, Expr: expr, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseFilterChain() (Expr, *Error) {
	var filter Expr

	for !p.matches(lexer.TokenBlockEnd) {
		if filter != nil {
			if _, err := p.expect(lexer.TokenPipe, "`|`"); err != nil {
				return nil, err
			}
		}
		name, span, err := p.expectIdent("identifier")
		if err != nil {
			return nil, err
		}
		var args []CallArg
		if p.matches(lexer.TokenParenOpen) {
			args, err = p.parseArgs()
			if err != nil {
				return nil, err
			}
		}
		filter = &Filter{Name: name, Expr: filter, Args: args, span: p.expandSpan(span)}
	}

	if filter == nil {
		return nil, p.syntaxError("expected a filter")
	}
	return filter, nil
}

func (p *Parser) parseFilterBlock() (*FilterBlock, *Error) {
	filter, err := p.parseFilterChain()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	body, err := p.subparse(func(tok lexer.Token) bool {
		return tok.Type == lexer.TokenIdent && tok.Value == "endfilter"
	})
	if err != nil {
		return nil, err
	}
	p.advance() // consume endfilter

	return &FilterBlock{Filter: filter, Body: body}, nil
}

func (p *Parser) parseMacro() (*Macro, *Error) {
	name, _, err := p.expectIdent("identifier")
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.TokenParenOpen, "`(`"); err != nil {
		return nil, err
	}

	var args, defaults []Expr
	if err := p.parseMacroArgsAndDefaults(&args, &defaults); err != nil {
		return nil, err
	}

	return p.parseMacroOrCallBlockBody(args, defaults, name)
}

func (p *Parser) parseMacroArgsAndDefaults(args, defaults *[]Expr) *Error {
	for {
		if p.skip(lexer.TokenParenClose) {
			break
		}
		if len(*args) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return err
			}
			if p.skip(lexer.TokenParenClose) {
				break
			}
		}

		arg, err := p.parseAssignName()
		if err != nil {
			return err
		}
		*args = append(*args, arg)

		if p.skip(lexer.TokenAssign) {
			def, err := p.parseExpr()
			if err != nil {
				return err
			}
			*defaults = append(*defaults, def)
		} else if len(*defaults) > 0 {
			if _, err := p.expect(lexer.TokenAssign, "`=`"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Parser) parseMacroOrCallBlockBody(args, defaults []Expr, name string) (*Macro, *Error) {
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	// break/continue do not reach through a macro boundary.
	oldInLoop := p.inLoop
	p.inLoop = false
	defer func() { p.inLoop = oldInLoop }()

	endKeyword := "endmacro"
	if name == "" {
		endKeyword = "endcall"
		name = "caller"
	}

	body, err := p.subparse(func(tok lexer.Token) bool {
		return tok.Type == lexer.TokenIdent && tok.Value == endKeyword
	})
	if err != nil {
		return nil, err
	}
	p.advance() // consume end keyword

	return &Macro{Name: name, Args: args, Defaults: defaults, Body: body}, nil
}

func (p *Parser) parseCallBlock(span Span) (*CallBlock, *Error) {
	var args, defaults []Expr
	if p.skip(lexer.TokenParenOpen) {
		if err := p.parseMacroArgsAndDefaults(&args, &defaults); err != nil {
			return nil, err
		}
	}

	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	call, ok := expr.(*Call)
	if !ok {
		return nil, p.syntaxError(fmt.Sprintf("expected call expression in call block, got %s", exprDescription(expr)))
	}

	macroDecl, err := p.parseMacroOrCallBlockBody(args, defaults, "")
	if err != nil {
		return nil, err
	}

	return &CallBlock{
		Call:      call,
		CallSpan:  call.span,
		MacroDecl: macroDecl,
		MacroSpan: p.expandSpan(span),
	}, nil
}

func (p *Parser) parseDo() (*Do, *Error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	call, ok := expr.(*Call)
	if !ok {
		return nil, p.syntaxError(fmt.Sprintf("expected call expression in do block, got %s", exprDescription(expr)))
	}

	return &Do{Call: call, CallSpan: call.span}, nil
}

func exprDescription(e Expr) string {
	switch e.(type) {
	case *Var:
		return "variable"
	case *Const:
		return "constant"
	case *Call:
		return "call"
	case *List:
		return "list literal"
	case *Tuple:
		return "tuple literal"
	case *Map:
		return "map literal"
	case *Test:
		return "test expression"
	case *Filter:
		return "filter expression"
	default:
		return "expression"
	}
}

func (p *Parser) subparse(endCheck func(lexer.Token) bool) ([]Stmt, *Error) {
	var stmts []Stmt

	for {
		tok := p.advance()
		if tok == nil {
			break
		}

		switch tok.Type {
		case lexer.TokenTemplateData:
			stmts = append(stmts, &EmitRaw{Raw: tok.Value, span: tok.Span})

		case lexer.TokenVariableStart:
			span := tok.Span
			expr, err := p.parseTupleExpr(false)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, &EmitExpr{Expr: expr, span: p.expandSpan(span)})
			if _, err := p.expect(lexer.TokenVariableEnd, "end of variable block"); err != nil {
				return nil, err
			}

		case lexer.TokenBlockStart:
			if current := p.current(); current == nil {
				return nil, p.syntaxError("unexpected end of input, expected keyword")
			} else if endCheck(*current) {
				return stmts, nil
			}
			stmt, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
			if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
				return nil, err
			}

		default:
			return nil, p.syntaxError(fmt.Sprintf("unexpected token %s", tok.Type))
		}
	}

	return stmts, nil
}
