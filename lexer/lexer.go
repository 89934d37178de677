package lexer

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Lexer tokenizes template source code.
type Lexer struct {
	source    string // original source (possibly with trailing newline stripped)
	pos       int    // current position in source
	start     int    // start position of current token
	line      uint16 // current line (1-indexed)
	col       uint16 // current column (0-indexed at line start)
	startLine uint16
	startCol  uint16
	syntax     SyntaxConfig
	whitespace WhitespaceConfig

	stack                 []lexerState
	trimLeadingWhitespace bool
	pendingStartMarker    *pendingMarker
	parenBalance          int
}

type lexerState int

const (
	stateTemplate lexerState = iota
	stateVariable
	stateBlock
)

type pendingMarker struct {
	marker startMarker
	length int
}

type startMarker int

const (
	markerVariable startMarker = iota
	markerBlock
	markerComment
)

type whitespaceMode int

const (
	wsDefault whitespaceMode = iota
	wsPreserve // +
	wsRemove   // -
)

func whitespaceFromByte(b byte) whitespaceMode {
	switch b {
	case '-':
		return wsRemove
	case '+':
		return wsPreserve
	default:
		return wsDefault
	}
}

// New creates a new Lexer for the given input.
func New(input string, syntax SyntaxConfig, whitespace WhitespaceConfig) *Lexer {
	source := input
	// Strip one trailing newline unless configured to keep it.
	if !whitespace.KeepTrailingNewline {
		source = strings.TrimSuffix(source, "\n")
		source = strings.TrimSuffix(source, "\r")
	}

	return &Lexer{
		source:     source,
		line:       1,
		col:        0,
		syntax:     syntax,
		whitespace: whitespace,
		stack:      []lexerState{stateTemplate},
	}
}

// Tokenize returns all tokens from the input.
func Tokenize(input string, syntax SyntaxConfig, whitespace WhitespaceConfig) ([]Token, error) {
	l := New(input, syntax, whitespace)
	return l.All()
}

// All collects all tokens into a slice.
func (l *Lexer) All() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			break
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}

// Next returns the next token, or nil at end of input.
func (l *Lexer) Next() (*Token, error) {
	for {
		if l.atEnd() {
			return nil, nil
		}

		var tok *Token
		var err error
		var cont bool

		switch l.currentState() {
		case stateTemplate:
			tok, cont, err = l.tokenizeRoot()
		case stateVariable:
			tok, cont, err = l.tokenizeBlockOrVar(sentinelVariable)
		case stateBlock:
			tok, cont, err = l.tokenizeBlockOrVar(sentinelBlock)
		}

		if err != nil {
			return nil, err
		}
		if cont {
			continue
		}
		if tok != nil {
			return tok, nil
		}
	}
}

func (l *Lexer) currentState() lexerState {
	if len(l.stack) == 0 {
		return stateTemplate
	}
	return l.stack[len(l.stack)-1]
}

func (l *Lexer) pushState(s lexerState) {
	l.stack = append(l.stack, s)
}

func (l *Lexer) popState() {
	if len(l.stack) > 0 {
		l.stack = l.stack[:len(l.stack)-1]
	}
}

type blockSentinel int

const (
	sentinelVariable blockSentinel = iota
	sentinelBlock
)

// tokenizeRoot handles the template data state.
func (l *Lexer) tokenizeRoot() (*Token, bool, error) {
	if l.pendingStartMarker != nil {
		pm := l.pendingStartMarker
		l.pendingStartMarker = nil
		return l.handleStartMarker(pm.marker, pm.length)
	}

	// Trim leading whitespace requested by a previous -%} or -}}.
	if l.trimLeadingWhitespace {
		l.trimLeadingWhitespace = false
		l.skipWhitespace()
	}

	l.markStart()

	match := l.findStartMarker()
	if match == nil {
		// No marker found, the rest is template data.
		if l.pos < len(l.source) {
			text := l.advance(len(l.source) - l.pos)
			tok := l.makeToken(TokenTemplateData, text)
			return &tok, false, nil
		}
		return nil, false, nil
	}

	l.pendingStartMarker = &pendingMarker{marker: match.marker, length: match.length}

	// Emit the template data leading up to the marker, honoring the
	// whitespace control attached to it.
	var lead string
	var span Span
	switch match.ws {
	case wsDefault:
		if l.shouldLstripBlock(match.marker, l.source[:l.pos+match.offset]) {
			peeked := l.rest()[:match.offset]
			trimmed := lstripBlock(peeked)
			lead = l.advance(len(trimmed))
			span = l.span()
			l.advance(len(peeked) - len(trimmed))
		} else {
			lead = l.advance(match.offset)
			span = l.span()
		}
	case wsPreserve:
		lead = l.advance(match.offset)
		span = l.span()
	case wsRemove:
		peeked := l.rest()[:match.offset]
		trimmed := strings.TrimRight(peeked, " \t\n\r")
		lead = l.advance(len(trimmed))
		span = l.span()
		l.advance(len(peeked) - len(trimmed))
	}

	if lead == "" {
		return nil, true, nil // continue to handle the start marker
	}

	tok := Token{
		Type:  TokenTemplateData,
		Value: lead,
		Span:  span,
	}
	return &tok, false, nil
}

type markerMatch struct {
	offset int
	marker startMarker
	length int
	ws     whitespaceMode
}

// findStartMarker locates the earliest of the three configured start
// delimiters in the remaining input. On a tie the longest delimiter wins
// so that one delimiter being a prefix of another stays unambiguous.
func (l *Lexer) findStartMarker() *markerMatch {
	rest := l.rest()

	candidates := [...]struct {
		prefix string
		marker startMarker
	}{
		{l.syntax.VarStart, markerVariable},
		{l.syntax.BlockStart, markerBlock},
		{l.syntax.CommentStart, markerComment},
	}

	best := -1
	var marker startMarker
	markerLen := 0
	for _, cand := range candidates {
		if cand.prefix == "" {
			continue
		}
		idx := strings.Index(rest, cand.prefix)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best || (idx == best && len(cand.prefix) > markerLen) {
			best = idx
			marker = cand.marker
			markerLen = len(cand.prefix)
		}
	}
	if best < 0 {
		return nil
	}

	ws := wsDefault
	if best+markerLen < len(rest) {
		ws = whitespaceFromByte(rest[best+markerLen])
	}
	length := markerLen
	if ws != wsDefault {
		length++
	}

	return &markerMatch{
		offset: best,
		marker: marker,
		length: length,
		ws:     ws,
	}
}

func (l *Lexer) handleStartMarker(marker startMarker, skip int) (*Token, bool, error) {
	switch marker {
	case markerComment:
		rest := l.rest()[skip:]
		endIdx := strings.Index(rest, l.syntax.CommentEnd)
		if endIdx < 0 {
			l.advance(len(l.rest()))
			return nil, false, l.syntaxError("unexpected end of comment")
		}

		ws := wsDefault
		if endIdx > 0 {
			ws = whitespaceFromByte(rest[endIdx-1])
		}

		l.advance(skip + endIdx + len(l.syntax.CommentEnd))
		l.handleTailWhitespace(ws)
		return nil, true, nil

	case markerVariable:
		l.markStart()
		l.advance(skip)
		l.pushState(stateVariable)
		tok := l.makeToken(TokenVariableStart, l.syntax.VarStart)
		return &tok, false, nil

	case markerBlock:
		// {% raw %} swallows everything up to the matching endraw.
		blockContent := l.rest()[skip:]
		if rawLen, wsStart := l.skipBasicTag(blockContent, "raw"); rawLen > 0 {
			l.advance(skip + rawLen)
			return l.handleRawTag(wsStart)
		}

		l.markStart()
		l.advance(skip)
		l.pushState(stateBlock)
		tok := l.makeToken(TokenBlockStart, l.syntax.BlockStart)
		return &tok, false, nil
	}

	return nil, false, nil
}

func (l *Lexer) handleRawTag(wsStart whitespaceMode) (*Token, bool, error) {
	l.markStart()

	rest := l.rest()
	ptr := 0

	for {
		blockIdx := strings.Index(rest[ptr:], l.syntax.BlockStart)
		if blockIdx < 0 {
			l.advance(len(rest))
			return nil, false, l.syntaxError("unexpected end of raw block")
		}
		blockIdx += ptr

		afterBlockStart := blockIdx + len(l.syntax.BlockStart)
		remaining := rest[afterBlockStart:]
		endrawLen, wsNext := l.skipBasicTag(remaining, "endraw")
		if endrawLen == 0 {
			ptr = afterBlockStart
			continue
		}

		ws := wsDefault
		if afterBlockStart < len(rest) {
			ws = whitespaceFromByte(rest[afterBlockStart])
		}

		result := rest[:blockIdx]

		// Whitespace control after the raw tag itself.
		switch wsStart {
		case wsDefault:
			if l.whitespace.TrimBlocks {
				result = strings.TrimPrefix(result, "\r")
				result = strings.TrimPrefix(result, "\n")
			}
		case wsRemove:
			result = strings.TrimLeft(result, " \t\n\r")
		}

		// Whitespace control before the endraw tag.
		switch ws {
		case wsDefault:
			if l.whitespace.LstripBlocks {
				result = lstripBlock(result)
			}
		case wsRemove:
			result = strings.TrimRight(result, " \t\n\r")
		}

		l.advance(blockIdx)
		span := l.span()
		l.advance(len(l.syntax.BlockStart) + endrawLen)
		l.handleTailWhitespace(wsNext)

		tok := Token{
			Type:  TokenTemplateData,
			Value: result,
			Span:  span,
		}
		return &tok, false, nil
	}
}

// skipBasicTag checks whether s starts with a bare tag like "raw" or
// "endraw" and returns the length to skip plus the whitespace mode at
// its end. A zero length means no match.
func (l *Lexer) skipBasicTag(s string, name string) (int, whitespaceMode) {
	ptr := s

	if len(ptr) > 0 && (ptr[0] == '-' || ptr[0] == '+') {
		ptr = ptr[1:]
	}
	ptr = strings.TrimLeft(ptr, " \t\n\r")

	if !strings.HasPrefix(ptr, name) {
		return 0, wsDefault
	}
	ptr = ptr[len(name):]

	// The name must not continue as an identifier.
	if len(ptr) > 0 && isIdentPart(ptr[0]) {
		return 0, wsDefault
	}
	ptr = strings.TrimLeft(ptr, " \t\n\r")

	ws := wsDefault
	if len(ptr) > 0 && (ptr[0] == '-' || ptr[0] == '+') {
		ws = whitespaceFromByte(ptr[0])
		ptr = ptr[1:]
	}

	if !strings.HasPrefix(ptr, l.syntax.BlockEnd) {
		return 0, wsDefault
	}
	ptr = ptr[len(l.syntax.BlockEnd):]

	return len(s) - len(ptr), ws
}

func (l *Lexer) handleTailWhitespace(ws whitespaceMode) {
	switch ws {
	case wsPreserve:
	case wsDefault:
		l.skipNewlineIfTrimBlocks()
	case wsRemove:
		l.trimLeadingWhitespace = true
	}
}

func (l *Lexer) skipNewlineIfTrimBlocks() {
	if l.whitespace.TrimBlocks {
		if strings.HasPrefix(l.rest(), "\r") {
			l.advance(1)
		}
		if strings.HasPrefix(l.rest(), "\n") {
			l.advance(1)
		}
	}
}

func (l *Lexer) shouldLstripBlock(marker startMarker, prefix string) bool {
	if l.whitespace.LstripBlocks && marker != markerVariable {
		// Only strip when the marker sits at the start of a line.
		for i := len(prefix) - 1; i >= 0; i-- {
			c := prefix[i]
			if c == '\n' || c == '\r' {
				return true
			} else if c != ' ' && c != '\t' {
				return false
			}
		}
		// Start of file.
		return true
	}
	return false
}

// tokenizeBlockOrVar handles tokens inside {% %} or {{ }}.
func (l *Lexer) tokenizeBlockOrVar(sentinel blockSentinel) (*Token, bool, error) {
	l.skipWhitespace()

	if l.atEnd() {
		return nil, false, nil
	}

	l.markStart()
	rest := l.rest()

	// End delimiters only close the expression at paren balance zero so
	// that e.g. a }} inside a nested dict display does not terminate it.
	if l.parenBalance == 0 {
		switch sentinel {
		case sentinelBlock:
			if len(rest) > 0 && (rest[0] == '-' || rest[0] == '+') && strings.HasPrefix(rest[1:], l.syntax.BlockEnd) {
				wasMinus := rest[0] == '-'
				l.popState()
				l.advance(1 + len(l.syntax.BlockEnd))
				tok := l.makeToken(TokenBlockEnd, string(rest[0])+l.syntax.BlockEnd)
				if wasMinus {
					l.trimLeadingWhitespace = true
				}
				return &tok, false, nil
			}
			if strings.HasPrefix(rest, l.syntax.BlockEnd) {
				l.popState()
				l.advance(len(l.syntax.BlockEnd))
				tok := l.makeToken(TokenBlockEnd, l.syntax.BlockEnd)
				l.skipNewlineIfTrimBlocks()
				return &tok, false, nil
			}

		case sentinelVariable:
			if len(rest) > 0 && (rest[0] == '-' || rest[0] == '+') && strings.HasPrefix(rest[1:], l.syntax.VarEnd) {
				wasMinus := rest[0] == '-'
				l.popState()
				l.advance(1 + len(l.syntax.VarEnd))
				if wasMinus {
					l.trimLeadingWhitespace = true
				}
				tok := l.makeToken(TokenVariableEnd, string(rest[0])+l.syntax.VarEnd)
				return &tok, false, nil
			}
			if strings.HasPrefix(rest, l.syntax.VarEnd) {
				l.popState()
				l.advance(len(l.syntax.VarEnd))
				tok := l.makeToken(TokenVariableEnd, l.syntax.VarEnd)
				return &tok, false, nil
			}
		}
	}

	// Two-character operators.
	if len(rest) >= 2 {
		var typ TokenType
		found := true
		switch rest[:2] {
		case "//":
			typ = TokenFloorDiv
		case "**":
			typ = TokenPow
		case "==":
			typ = TokenEq
		case "!=":
			typ = TokenNe
		case ">=":
			typ = TokenGe
		case "<=":
			typ = TokenLe
		default:
			found = false
		}
		if found {
			op := rest[:2]
			l.advance(2)
			tok := l.makeToken(typ, op)
			return &tok, false, nil
		}
	}

	// Single character operators and punctuation.
	ch := rest[0]
	var typ TokenType
	switch ch {
	case '+':
		typ = TokenPlus
	case '-':
		typ = TokenMinus
	case '*':
		typ = TokenMul
	case '/':
		typ = TokenDiv
	case '%':
		typ = TokenMod
	case '~':
		typ = TokenTilde
	case '<':
		typ = TokenLt
	case '>':
		typ = TokenGt
	case '=':
		typ = TokenAssign
	case '.':
		typ = TokenDot
	case ',':
		typ = TokenComma
	case ':':
		typ = TokenColon
	case '|':
		typ = TokenPipe
	case '(':
		l.parenBalance++
		typ = TokenParenOpen
	case ')':
		l.parenBalance--
		typ = TokenParenClose
	case '[':
		l.parenBalance++
		typ = TokenBracketOpen
	case ']':
		l.parenBalance--
		typ = TokenBracketClose
	case '{':
		l.parenBalance++
		typ = TokenBraceOpen
	case '}':
		l.parenBalance--
		typ = TokenBraceClose
	case '"', '\'':
		return l.lexString(ch, false, false)
	default:
		if isDigit(ch) {
			return l.lexNumber()
		}
		if isIdentStart(ch) {
			return l.lexIdent()
		}
		return nil, false, l.syntaxError(fmt.Sprintf("unexpected character %q", ch))
	}

	l.advance(1)
	tok := l.makeToken(typ, string(ch))
	return &tok, false, nil
}

// lexString lexes a string or bytes literal. The opening quote has not
// been consumed yet. raw disables escape processing, bytesLit restricts
// the contents to ASCII and yields a TokenBytes.
func (l *Lexer) lexString(quote byte, raw, bytesLit bool) (*Token, bool, error) {
	l.advance(1) // opening quote

	var sb strings.Builder
	for !l.atEnd() {
		ch := l.rest()[0]

		if ch == quote {
			l.advance(1)
			typ := TokenString
			if bytesLit {
				typ = TokenBytes
			}
			tok := l.makeToken(typ, sb.String())
			return &tok, false, nil
		}

		if bytesLit && ch >= utf8.RuneSelf {
			return nil, false, l.syntaxError("bytes literal may only contain ASCII characters")
		}

		if ch != '\\' {
			sb.WriteByte(ch)
			l.advance(1)
			continue
		}

		l.advance(1)
		if l.atEnd() {
			return nil, false, l.syntaxError("unexpected end of string")
		}

		if raw {
			// Raw strings keep the backslash but it still shields a quote.
			next := l.rest()[0]
			sb.WriteByte('\\')
			sb.WriteByte(next)
			l.advance(1)
			continue
		}

		if err := l.lexEscape(&sb, bytesLit); err != nil {
			return nil, false, err
		}
	}

	return nil, false, l.syntaxError("unexpected end of string")
}

// lexEscape consumes one escape sequence after the backslash has been
// eaten and appends the decoded result to sb.
func (l *Lexer) lexEscape(sb *strings.Builder, bytesLit bool) error {
	escaped := l.rest()[0]
	l.advance(1)

	switch escaped {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '\\':
		sb.WriteByte('\\')
	case '\'':
		sb.WriteByte('\'')
	case '"':
		sb.WriteByte('"')
	case '\n':
		// Line continuation.
	case '\r':
		if strings.HasPrefix(l.rest(), "\n") {
			l.advance(1)
		}
	case '0', '1', '2', '3', '4', '5', '6', '7':
		val := int(escaped - '0')
		for n := 1; n < 3 && !l.atEnd(); n++ {
			c := l.rest()[0]
			if c < '0' || c > '7' {
				break
			}
			val = val*8 + int(c-'0')
			l.advance(1)
		}
		if bytesLit {
			if val > 0xff {
				return l.syntaxError("octal escape out of range")
			}
			sb.WriteByte(byte(val))
		} else {
			sb.WriteRune(rune(val))
		}
	case 'x':
		if len(l.rest()) < 2 {
			return l.syntaxError("invalid hex escape")
		}
		val, err := strconv.ParseUint(l.rest()[:2], 16, 8)
		if err != nil {
			return l.syntaxError("invalid hex escape")
		}
		l.advance(2)
		if bytesLit {
			sb.WriteByte(byte(val))
		} else {
			sb.WriteRune(rune(val))
		}
	case 'u', 'U':
		digits := 4
		if escaped == 'U' {
			digits = 8
		}
		if bytesLit {
			// Not an escape in bytes literals.
			sb.WriteByte('\\')
			sb.WriteByte(escaped)
			return nil
		}
		if len(l.rest()) < digits {
			return l.syntaxError("invalid unicode escape")
		}
		val, err := strconv.ParseUint(l.rest()[:digits], 16, 32)
		if err != nil {
			return l.syntaxError("invalid unicode escape")
		}
		r := rune(val)
		if r > utf8.MaxRune || (r >= 0xd800 && r <= 0xdfff) {
			return l.syntaxError("unicode escape out of range")
		}
		l.advance(digits)
		sb.WriteRune(r)
	default:
		// Unknown escape, keep both characters.
		sb.WriteByte('\\')
		sb.WriteByte(escaped)
	}
	return nil
}

// lexNumber lexes an integer or float literal, including hex, octal,
// binary radix prefixes and underscore separators.
func (l *Lexer) lexNumber() (*Token, bool, error) {
	rest := l.rest()

	radix := 10
	prefixLen := 0
	if len(rest) >= 2 {
		switch rest[:2] {
		case "0b", "0B":
			radix = 2
			prefixLen = 2
		case "0o", "0O":
			radix = 8
			prefixLen = 2
		case "0x", "0X":
			radix = 16
			prefixLen = 2
		}
	}

	type numState int
	const (
		stateRadixInt numState = iota // after 0x, 0b, 0o
		stateInt
		stateFraction // after .
		stateExponent // after e/E
		stateExpSign  // after e+/e-
	)

	state := stateInt
	if radix != 10 {
		state = stateRadixInt
	}

	numLen := prefixLen
	hasUnderscore := false

scan:
	for i := prefixLen; i < len(rest); i++ {
		c := rest[i]
		switch state {
		case stateRadixInt:
			switch {
			case isDigitForRadix(c, radix):
				numLen++
			case c == '_':
				hasUnderscore = true
				numLen++
			default:
				break scan
			}

		case stateInt:
			switch {
			case isDigit(c):
				numLen++
			case c == '_':
				hasUnderscore = true
				numLen++
			case c == '.' && i+1 < len(rest) && isDigit(rest[i+1]):
				state = stateFraction
				numLen++
			case c == 'e' || c == 'E':
				state = stateExponent
				numLen++
			default:
				break scan
			}

		case stateFraction:
			switch {
			case isDigit(c):
				numLen++
			case c == '_':
				hasUnderscore = true
				numLen++
			case c == 'e' || c == 'E':
				state = stateExponent
				numLen++
			default:
				break scan
			}

		case stateExponent:
			switch {
			case c == '+' || c == '-':
				state = stateExpSign
				numLen++
			case isDigit(c):
				state = stateExpSign
				numLen++
			case c == '_':
				hasUnderscore = true
				state = stateExpSign
				numLen++
			default:
				break scan
			}

		case stateExpSign:
			switch {
			case isDigit(c):
				numLen++
			case c == '_':
				hasUnderscore = true
				numLen++
			default:
				break scan
			}
		}
	}

	isFloat := state == stateFraction || state == stateExponent || state == stateExpSign

	numStr := rest[:numLen]
	l.advance(numLen)

	if hasUnderscore && strings.HasSuffix(numStr, "_") {
		return nil, false, l.syntaxError("'_' may not occur at end of number")
	}

	cleanNum := numStr
	if hasUnderscore {
		cleanNum = strings.ReplaceAll(numStr, "_", "")
	}

	parseStr := cleanNum
	if prefixLen > 0 {
		parseStr = cleanNum[prefixLen:]
	}

	if isFloat {
		floatVal, err := strconv.ParseFloat(cleanNum, 64)
		if err != nil {
			return nil, false, l.syntaxError("invalid float")
		}
		// Normalize so the parser always sees a decimal point.
		floatStr := strconv.FormatFloat(floatVal, 'f', -1, 64)
		if !strings.Contains(floatStr, ".") {
			floatStr += ".0"
		}
		tok := l.makeToken(TokenFloat, floatStr)
		return &tok, false, nil
	}

	if value, err := strconv.ParseInt(parseStr, radix, 64); err == nil {
		tok := l.makeToken(TokenInteger, strconv.FormatInt(value, 10))
		return &tok, false, nil
	}

	// Too large for int64, carry it as a decimal big integer.
	bigVal, ok := new(big.Int).SetString(parseStr, radix)
	if !ok {
		return nil, false, l.syntaxError("invalid integer")
	}
	tok := l.makeToken(TokenBigInt, bigVal.String())
	return &tok, false, nil
}

func isDigitForRadix(c byte, radix int) bool {
	switch radix {
	case 2:
		return c == '0' || c == '1'
	case 8:
		return c >= '0' && c <= '7'
	case 10:
		return isDigit(c)
	case 16:
		return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	}
	return false
}

// lexIdent lexes an identifier, or a prefixed string literal when the
// identifier turns out to be a valid string prefix such as r, b or rb
// followed directly by a quote.
func (l *Lexer) lexIdent() (*Token, bool, error) {
	rest := l.rest()
	n := 0
	for n < len(rest) && isIdentPart(rest[n]) {
		n++
	}

	if n <= 2 && n < len(rest) && (rest[n] == '"' || rest[n] == '\'') {
		if raw, bytesLit, ok := stringPrefixFlags(rest[:n]); ok {
			l.advance(n)
			return l.lexString(rest[n], raw, bytesLit)
		}
	}

	value := l.advance(n)
	tok := l.makeToken(TokenIdent, value)
	return &tok, false, nil
}

// stringPrefixFlags interprets a string literal prefix. Valid prefixes
// are r, b, u and the rb/br combinations in any case. u combines with
// nothing and changes nothing.
func stringPrefixFlags(prefix string) (raw, bytesLit, ok bool) {
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case 'r', 'R':
			if raw {
				return false, false, false
			}
			raw = true
		case 'b', 'B':
			if bytesLit {
				return false, false, false
			}
			bytesLit = true
		case 'u', 'U':
			if len(prefix) != 1 {
				return false, false, false
			}
		default:
			return false, false, false
		}
	}
	return raw, bytesLit, true
}

// Helper methods

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) rest() string {
	if l.pos >= len(l.source) {
		return ""
	}
	return l.source[l.pos:]
}

func (l *Lexer) advance(n int) string {
	if n <= 0 {
		return ""
	}
	start := l.pos
	end := l.pos + n
	if end > len(l.source) {
		end = len(l.source)
	}

	skipped := l.source[start:end]
	for _, c := range skipped {
		if c == '\n' {
			l.line++
			l.col = 0
		} else if l.col < 65535 {
			l.col++
		}
	}
	l.pos = end
	return skipped
}

func (l *Lexer) markStart() {
	l.start = l.pos
	l.startLine = l.line
	l.startCol = l.col
}

func (l *Lexer) span() Span {
	return Span{
		StartLine:   l.startLine,
		StartCol:    l.startCol,
		StartOffset: uint32(l.start),
		EndLine:     l.line,
		EndCol:      l.col,
		EndOffset:   uint32(l.pos),
	}
}

func (l *Lexer) makeToken(typ TokenType, value string) Token {
	return Token{
		Type:  typ,
		Value: value,
		Span:  l.span(),
	}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		c := l.rest()[0]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.advance(1)
		} else {
			break
		}
	}
}

func (l *Lexer) syntaxError(msg string) error {
	return fmt.Errorf("syntax error at line %d, col %d: %s", l.line, l.col, msg)
}

func lstripBlock(s string) string {
	trimmed := strings.TrimRightFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
	// Only strip when what remains ends at a line boundary.
	if trimmed == "" || strings.HasSuffix(trimmed, "\n") {
		return trimmed
	}
	return s
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= utf8.RuneSelf
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
