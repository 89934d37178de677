package value

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseLiteral parses a string against the restricted literal grammar and
// returns the value it denotes.
//
// The grammar covers exactly what the engine's own renders can emit:
// signed numbers, strings, byte strings, booleans, none, lists, tuples
// (parenthesized or bare comma sequences), mappings and sets, nested
// arbitrarily. Names, calls, attribute access and operators are rejected,
// so parsing can never execute anything. Failure is an expected outcome
// reported as *LiteralError; the function never panics. Callers that want
// "parse or keep the text" simply fall back to the input on error.
//
//	v, err := value.ParseLiteral("(1, 'two', [3.0])")
//	// v is the tuple (1, "two", [3.0])
func ParseLiteral(raw string) (Value, error) {
	p := &literalParser{src: raw}
	v, err := p.parseBareTuple()
	if err != nil {
		return Undefined(), err
	}
	p.skipSpace()
	if !p.atEnd() {
		return Undefined(), p.errorf("unexpected %q after literal", p.rest())
	}
	return v, nil
}

// LiteralError describes why a string is not a valid literal. Pos is a
// byte offset into the input.
type LiteralError struct {
	Msg string
	Pos int
}

func (e *LiteralError) Error() string {
	return fmt.Sprintf("invalid literal: %s (offset %d)", e.Msg, e.Pos)
}

// maxLiteralDepth caps container nesting so that pathological input turns
// into an ordinary parse failure instead of exhausting the stack.
const maxLiteralDepth = 100

type literalParser struct {
	src   string
	pos   int
	depth int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return &LiteralError{Msg: fmt.Sprintf(format, args...), Pos: p.pos}
}

func (p *literalParser) atEnd() bool {
	return p.pos >= len(p.src)
}

func (p *literalParser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) peekAt(off int) byte {
	if p.pos+off >= len(p.src) {
		return 0
	}
	return p.src[p.pos+off]
}

// rest returns a short prefix of the unconsumed input for error messages.
func (p *literalParser) rest() string {
	r := p.src[p.pos:]
	if len(r) > 10 {
		r = r[:10] + "..."
	}
	return r
}

func (p *literalParser) skipSpace() {
	for !p.atEnd() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q, found %q", string(c), p.rest())
	}
	p.pos++
	return nil
}

// parseBareTuple parses a literal optionally followed by a comma-separated
// continuation. At the top level and inside parentheses, "1, 2" denotes a
// tuple and a trailing comma turns a single value into a one-tuple.
func (p *literalParser) parseBareTuple() (Value, error) {
	first, err := p.parseValue()
	if err != nil {
		return Undefined(), err
	}
	p.skipSpace()
	if p.peek() != ',' {
		return first, nil
	}
	items := []Value{first}
	for {
		p.pos++ // consume comma
		p.skipSpace()
		if p.atEnd() || p.peek() == ')' {
			break
		}
		item, err := p.parseValue()
		if err != nil {
			return Undefined(), err
		}
		items = append(items, item)
		p.skipSpace()
		if p.peek() != ',' {
			break
		}
	}
	return FromTuple(items), nil
}

// parseValue parses exactly one literal value.
func (p *literalParser) parseValue() (Value, error) {
	p.skipSpace()
	if p.atEnd() {
		return Undefined(), p.errorf("unexpected end of input")
	}

	switch c := p.peek(); {
	case c == '+' || c == '-':
		return p.parseSigned()
	case c == '\'' || c == '"':
		return p.parseString()
	case c >= '0' && c <= '9':
		return p.parseNumber()
	case c == '.' && isDigit(p.peekAt(1)):
		return p.parseNumber()
	case c == '[':
		return p.parseList()
	case c == '(':
		return p.parseParen()
	case c == '{':
		return p.parseBraced()
	case isIdentStart(c):
		if p.stringAhead() {
			return p.parseString()
		}
		return p.parseKeyword()
	default:
		return Undefined(), p.errorf("unexpected character %q", string(c))
	}
}

// parseSigned handles a single numeric sign prefix. Signs apply to numbers
// only; "-[1]" and "--1" are not literals.
func (p *literalParser) parseSigned() (Value, error) {
	neg := p.peek() == '-'
	p.pos++
	p.skipSpace()
	if c := p.peek(); !isDigit(c) && !(c == '.' && isDigit(p.peekAt(1))) {
		return Undefined(), p.errorf("sign must be followed by a number")
	}
	v, err := p.parseNumber()
	if err != nil {
		return Undefined(), err
	}
	if neg {
		return v.Neg()
	}
	return v, nil
}

func (p *literalParser) parseList() (Value, error) {
	if err := p.enter(); err != nil {
		return Undefined(), err
	}
	defer p.leave()
	p.pos++ // consume [
	items := []Value{}
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return FromSlice(items), nil
	}
	for {
		item, err := p.parseValue()
		if err != nil {
			return Undefined(), err
		}
		items = append(items, item)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			if p.peek() == ']' {
				break
			}
			continue
		}
		break
	}
	if err := p.expect(']'); err != nil {
		return Undefined(), err
	}
	return FromSlice(items), nil
}

// parseParen handles parentheses: "()" is the empty tuple, "(x)" is just
// x, and "(x,)" or "(x, y)" are tuples.
func (p *literalParser) parseParen() (Value, error) {
	if err := p.enter(); err != nil {
		return Undefined(), err
	}
	defer p.leave()
	p.pos++ // consume (
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return FromTuple(nil), nil
	}
	v, err := p.parseBareTuple()
	if err != nil {
		return Undefined(), err
	}
	if err := p.expect(')'); err != nil {
		return Undefined(), err
	}
	return v, nil
}

// parseBraced handles both mappings and sets: "{}" is an empty mapping,
// a colon after the first element makes it a mapping, anything else a set.
func (p *literalParser) parseBraced() (Value, error) {
	if err := p.enter(); err != nil {
		return Undefined(), err
	}
	defer p.leave()
	p.pos++ // consume {
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return FromDict(NewDict()), nil
	}

	first, err := p.parseValue()
	if err != nil {
		return Undefined(), err
	}
	p.skipSpace()
	if p.peek() == ':' {
		return p.parseDictRest(first)
	}

	set := NewSet()
	set.Add(first)
	p.skipSpace()
	for p.peek() == ',' {
		p.pos++
		p.skipSpace()
		if p.peek() == '}' {
			break
		}
		item, err := p.parseValue()
		if err != nil {
			return Undefined(), err
		}
		set.Add(item)
		p.skipSpace()
	}
	if err := p.expect('}'); err != nil {
		return Undefined(), err
	}
	return FromSet(set), nil
}

// parseDictRest continues a mapping after its first key. Duplicate keys
// keep the last value.
func (p *literalParser) parseDictRest(firstKey Value) (Value, error) {
	d := NewDict()
	key := firstKey
	for {
		if err := p.expect(':'); err != nil {
			return Undefined(), err
		}
		val, err := p.parseValue()
		if err != nil {
			return Undefined(), err
		}
		d.Set(key, val)
		p.skipSpace()
		if p.peek() != ',' {
			break
		}
		p.pos++
		p.skipSpace()
		if p.peek() == '}' {
			break
		}
		key, err = p.parseValue()
		if err != nil {
			return Undefined(), err
		}
		p.skipSpace()
	}
	if err := p.expect('}'); err != nil {
		return Undefined(), err
	}
	return FromDict(d), nil
}

func (p *literalParser) parseKeyword() (Value, error) {
	start := p.pos
	for !p.atEnd() && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	switch p.src[start:p.pos] {
	case "true", "True":
		return True(), nil
	case "false", "False":
		return False(), nil
	case "none", "None":
		return None(), nil
	default:
		p.pos = start
		return Undefined(), p.errorf("names are not literals")
	}
}

func (p *literalParser) enter() error {
	p.depth++
	if p.depth > maxLiteralDepth {
		return p.errorf("literal nests too deeply")
	}
	return nil
}

func (p *literalParser) leave() {
	p.depth--
}

// parseNumber scans an unsigned numeric literal. Integers follow the
// usual source rules: underscores between digits, 0x/0o/0b prefixes, and
// no leading zeros on nonzero decimals (so the digit join "0123456" is not
// a number and falls back to text). Floats allow leading zeros, a bare
// leading or trailing dot, and exponents. Integers that do not fit int64
// become big integers.
func (p *literalParser) parseNumber() (Value, error) {
	start := p.pos

	if p.peek() == '0' {
		switch p.peekAt(1) {
		case 'x', 'X':
			return p.parsePrefixedInt(16, isHexDigit)
		case 'o', 'O':
			return p.parsePrefixedInt(8, isOctDigit)
		case 'b', 'B':
			return p.parsePrefixedInt(2, isBinDigit)
		}
	}

	digits, err := p.scanDigitRun()
	if err != nil {
		return Undefined(), err
	}
	isFloat := false

	if p.peek() == '.' {
		isFloat = true
		p.pos++
		if isDigit(p.peek()) {
			if _, err := p.scanDigitRun(); err != nil {
				return Undefined(), err
			}
		} else if digits == "" {
			return Undefined(), p.errorf("malformed number")
		}
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		if !isDigit(p.peek()) {
			return Undefined(), p.errorf("malformed exponent")
		}
		if _, err := p.scanDigitRun(); err != nil {
			return Undefined(), err
		}
	}

	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Undefined(), p.errorf("malformed float %q", text)
		}
		return FromFloat(f), nil
	}

	if len(text) > 1 && text[0] == '0' && strings.TrimLeft(text, "0") != "" {
		return Undefined(), p.errorf("decimal integer cannot have leading zeros")
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return FromInt(i), nil
	}
	bi, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return Undefined(), p.errorf("malformed integer %q", text)
	}
	return FromBigInt(bi), nil
}

func (p *literalParser) parsePrefixedInt(base int, valid func(byte) bool) (Value, error) {
	p.pos += 2 // consume 0x / 0o / 0b
	start := p.pos
	seen := false
	for !p.atEnd() {
		c := p.src[p.pos]
		if c == '_' {
			// Each underscore must be followed by a digit; this also
			// permits the 0x_ff spelling.
			if !valid(p.peekAt(1)) {
				return Undefined(), p.errorf("misplaced underscore in number")
			}
			p.pos++
			continue
		}
		if !valid(c) {
			break
		}
		seen = true
		p.pos++
	}
	if !seen {
		return Undefined(), p.errorf("malformed number")
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if i, err := strconv.ParseInt(text, base, 64); err == nil {
		return FromInt(i), nil
	}
	bi, ok := new(big.Int).SetString(text, base)
	if !ok {
		return Undefined(), p.errorf("malformed integer")
	}
	return FromBigInt(bi), nil
}

// scanDigitRun consumes decimal digits with single underscores between
// them and returns the consumed text.
func (p *literalParser) scanDigitRun() (string, error) {
	start := p.pos
	prevUnderscore := false
	for !p.atEnd() {
		c := p.src[p.pos]
		if c == '_' {
			if prevUnderscore || p.pos == start {
				return "", p.errorf("misplaced underscore in number")
			}
			prevUnderscore = true
			p.pos++
			continue
		}
		if !isDigit(c) {
			break
		}
		prevUnderscore = false
		p.pos++
	}
	if prevUnderscore {
		return "", p.errorf("misplaced underscore in number")
	}
	return p.src[start:p.pos], nil
}

// stringAhead reports whether the upcoming token is a prefixed string
// literal such as b'..', r"..", or rb'..'.
func (p *literalParser) stringAhead() bool {
	i := 0
	for i < 2 {
		c := p.peekAt(i)
		if c == '\'' || c == '"' {
			return i > 0
		}
		if !isStringPrefixChar(c) {
			return false
		}
		i++
	}
	c := p.peekAt(2)
	return i == 2 && (c == '\'' || c == '"')
}

// parseString parses one or more adjacent string or byte-string literals.
// Adjacent literals concatenate, but text and bytes cannot mix.
func (p *literalParser) parseString() (Value, error) {
	isBytes, text, data, err := p.parseOneString()
	if err != nil {
		return Undefined(), err
	}
	for {
		p.skipSpace()
		c := p.peek()
		if c != '\'' && c != '"' && !p.stringAhead() {
			break
		}
		nextBytes, t, d, err := p.parseOneString()
		if err != nil {
			return Undefined(), err
		}
		if nextBytes != isBytes {
			return Undefined(), p.errorf("cannot mix bytes and string literals")
		}
		text += t
		data = append(data, d...)
	}
	if isBytes {
		return FromBytes(data), nil
	}
	return FromString(text), nil
}

func (p *literalParser) parseOneString() (isBytes bool, text string, data []byte, err error) {
	var raw, plainText bool
	for isStringPrefixChar(p.peek()) {
		switch p.peek() {
		case 'r', 'R':
			if raw || plainText {
				return false, "", nil, p.errorf("invalid string prefix")
			}
			raw = true
		case 'b', 'B':
			if isBytes || plainText {
				return false, "", nil, p.errorf("invalid string prefix")
			}
			isBytes = true
		case 'u', 'U':
			// The u prefix stands alone; it cannot combine with r or b.
			if raw || isBytes || plainText {
				return false, "", nil, p.errorf("invalid string prefix")
			}
			plainText = true
		}
		p.pos++
	}
	quote := p.peek()
	if quote != '\'' && quote != '"' {
		return false, "", nil, p.errorf("expected string quote")
	}
	p.pos++

	var sb strings.Builder
	var bb []byte
	for {
		if p.atEnd() {
			return false, "", nil, p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			if isBytes {
				return true, "", bb, nil
			}
			return false, sb.String(), nil, nil
		case c == '\n':
			return false, "", nil, p.errorf("newline in string")
		case c == '\\':
			if raw {
				// In raw strings the backslash stays, and it still
				// shields a following quote from closing the literal.
				if p.pos+1 >= len(p.src) {
					return false, "", nil, p.errorf("unterminated string")
				}
				if isBytes {
					bb = append(bb, p.src[p.pos], p.src[p.pos+1])
				} else {
					sb.WriteByte(p.src[p.pos])
					sb.WriteByte(p.src[p.pos+1])
				}
				p.pos += 2
				continue
			}
			if err := p.decodeEscape(&sb, &bb, isBytes); err != nil {
				return false, "", nil, err
			}
		default:
			if isBytes {
				if c > 0x7f {
					return false, "", nil, p.errorf("bytes literal must be ASCII")
				}
				bb = append(bb, c)
				p.pos++
				continue
			}
			sb.WriteByte(c)
			p.pos++
		}
	}
}

// decodeEscape decodes one backslash escape. Unknown escapes keep the
// backslash and the character, matching the lenient source convention.
func (p *literalParser) decodeEscape(sb *strings.Builder, bb *[]byte, isBytes bool) error {
	p.pos++ // consume backslash
	if p.atEnd() {
		return p.errorf("unterminated escape")
	}
	emit := func(r rune) {
		if isBytes {
			*bb = append(*bb, byte(r))
		} else {
			sb.WriteRune(r)
		}
	}
	c := p.src[p.pos]
	switch c {
	case '\n':
		p.pos++ // line continuation
	case '\\', '\'', '"':
		emit(rune(c))
		p.pos++
	case 'n':
		emit('\n')
		p.pos++
	case 't':
		emit('\t')
		p.pos++
	case 'r':
		emit('\r')
		p.pos++
	case 'a':
		emit('\a')
		p.pos++
	case 'b':
		emit('\b')
		p.pos++
	case 'f':
		emit('\f')
		p.pos++
	case 'v':
		emit('\v')
		p.pos++
	case '0', '1', '2', '3', '4', '5', '6', '7':
		val := 0
		n := 0
		for n < 3 && isOctDigit(p.peek()) {
			val = val*8 + int(p.src[p.pos]-'0')
			p.pos++
			n++
		}
		if isBytes && val > 0xff {
			return p.errorf("octal escape out of range")
		}
		emit(rune(val))
	case 'x':
		p.pos++
		val, err := p.hexDigits(2)
		if err != nil {
			return err
		}
		emit(rune(val))
	case 'u', 'U':
		if isBytes {
			// Not an escape in byte strings; keep it verbatim.
			*bb = append(*bb, '\\', c)
			p.pos++
			return nil
		}
		p.pos++
		width := 4
		if c == 'U' {
			width = 8
		}
		val, err := p.hexDigits(width)
		if err != nil {
			return err
		}
		if val > unicode.MaxRune || (val >= 0xd800 && val <= 0xdfff) {
			return p.errorf("unicode escape out of range")
		}
		sb.WriteRune(rune(val))
	default:
		// Unknown escape: keep both characters.
		if isBytes {
			*bb = append(*bb, '\\', c)
		} else {
			sb.WriteByte('\\')
			sb.WriteByte(c)
		}
		p.pos++
	}
	return nil
}

func (p *literalParser) hexDigits(n int) (int, error) {
	val := 0
	for i := 0; i < n; i++ {
		c := p.peek()
		if !isHexDigit(c) {
			return 0, p.errorf("truncated hex escape")
		}
		val = val*16 + hexVal(c)
		p.pos++
	}
	return val, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isOctDigit(c byte) bool { return c >= '0' && c <= '7' }

func isBinDigit(c byte) bool { return c == '0' || c == '1' }

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isStringPrefixChar(c byte) bool {
	switch c {
	case 'r', 'R', 'b', 'B', 'u', 'U':
		return true
	}
	return false
}
