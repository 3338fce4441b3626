package expression

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokTemplate
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	pos  int

	// text is the identifier, punctuator, or cooked string value.
	text string
	num  float64

	// template literal pieces: len(quasis) == len(exprs)+1.
	quasis []string
	exprs  []templateExpr
}

type templateExpr struct {
	src string
	pos int
}

// punctuators ordered longest first so that the lexer is greedy.
var punctuators = []string{
	"===", "!==", "...", "**",
	"==", "!=", "<=", ">=", "&&", "||", "??", "?.", "=>",
	"+", "-", "*", "/", "%", "<", ">", "!", "?", ":", ".", ",",
	"(", ")", "[", "]", "{", "}",
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

// tokenize splits src into tokens, ending with tokEOF.
func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		lx.tokens = append(lx.tokens, tok)
		if tok.kind == tokEOF {
			return lx.tokens, nil
		}
	}
}

func (lx *lexer) peekRune() rune {
	if lx.pos >= len(lx.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos:])
	return r
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		lx.pos += size
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	r := lx.peekRune()
	switch {
	case r == '"' || r == '\'':
		s, err := lx.lexString(byte(r))
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, pos: start, text: s}, nil
	case r == '`':
		return lx.lexTemplate()
	case isDigit(r) || (r == '.' && lx.pos+1 < len(lx.src) && isDigit(rune(lx.src[lx.pos+1]))):
		return lx.lexNumber()
	case isIdentStart(r):
		for lx.pos < len(lx.src) {
			r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
			if !isIdentPart(r) {
				break
			}
			lx.pos += size
		}
		return token{kind: tokIdent, pos: start, text: lx.src[start:lx.pos]}, nil
	}

	rest := lx.src[lx.pos:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			// "?." followed by a digit is a conditional with a decimal.
			if p == "?." && len(rest) > 2 && isDigit(rune(rest[2])) {
				continue
			}
			lx.pos += len(p)
			return token{kind: tokPunct, pos: start, text: p}, nil
		}
	}
	return token{}, syntaxErrorf(start, "Invalid or unexpected token '%c'", r)
}

func (lx *lexer) lexNumber() (token, error) {
	start := lx.pos
	src := lx.src
	if strings.HasPrefix(src[lx.pos:], "0x") || strings.HasPrefix(src[lx.pos:], "0X") {
		lx.pos += 2
		for lx.pos < len(src) && isHexDigit(rune(src[lx.pos])) {
			lx.pos++
		}
		n, err := strconv.ParseUint(src[start+2:lx.pos], 16, 64)
		if err != nil {
			return token{}, syntaxErrorf(start, "Invalid hexadecimal literal")
		}
		return token{kind: tokNumber, pos: start, num: float64(n)}, nil
	}

	for lx.pos < len(src) && isDigit(rune(src[lx.pos])) {
		lx.pos++
	}
	if lx.pos < len(src) && src[lx.pos] == '.' {
		lx.pos++
		for lx.pos < len(src) && isDigit(rune(src[lx.pos])) {
			lx.pos++
		}
	}
	if lx.pos < len(src) && (src[lx.pos] == 'e' || src[lx.pos] == 'E') {
		save := lx.pos
		lx.pos++
		if lx.pos < len(src) && (src[lx.pos] == '+' || src[lx.pos] == '-') {
			lx.pos++
		}
		if lx.pos < len(src) && isDigit(rune(src[lx.pos])) {
			for lx.pos < len(src) && isDigit(rune(src[lx.pos])) {
				lx.pos++
			}
		} else {
			lx.pos = save
		}
	}
	if lx.pos < len(src) && isIdentStart(lx.peekRune()) {
		return token{}, syntaxErrorf(lx.pos, "Invalid or unexpected token")
	}

	f, err := strconv.ParseFloat(src[start:lx.pos], 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return token{}, syntaxErrorf(start, "Invalid number literal")
		}
	}
	return token{kind: tokNumber, pos: start, num: f}, nil
}

// lexString reads a quoted string starting at the opening quote and returns
// the cooked value.
func (lx *lexer) lexString(quote byte) (string, error) {
	start := lx.pos
	lx.pos++
	var b strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return "", syntaxErrorf(start, "Invalid or unexpected token")
		}
		c := lx.src[lx.pos]
		switch {
		case c == quote:
			lx.pos++
			return b.String(), nil
		case c == '\\':
			if err := lx.lexEscape(&b); err != nil {
				return "", err
			}
		case c == '\n':
			return "", syntaxErrorf(start, "Invalid or unexpected token")
		default:
			b.WriteByte(c)
			lx.pos++
		}
	}
}

// lexEscape consumes a backslash escape and writes its cooked value.
func (lx *lexer) lexEscape(b *strings.Builder) error {
	lx.pos++ // backslash
	if lx.pos >= len(lx.src) {
		return syntaxErrorf(lx.pos, "Invalid or unexpected token")
	}
	c := lx.src[lx.pos]
	lx.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case 'x':
		if lx.pos+2 > len(lx.src) {
			return syntaxErrorf(lx.pos, "Invalid hexadecimal escape sequence")
		}
		n, err := strconv.ParseUint(lx.src[lx.pos:lx.pos+2], 16, 8)
		if err != nil {
			return syntaxErrorf(lx.pos, "Invalid hexadecimal escape sequence")
		}
		b.WriteRune(rune(n))
		lx.pos += 2
	case 'u':
		if lx.pos+4 > len(lx.src) {
			return syntaxErrorf(lx.pos, "Invalid Unicode escape sequence")
		}
		n, err := strconv.ParseUint(lx.src[lx.pos:lx.pos+4], 16, 16)
		if err != nil {
			return syntaxErrorf(lx.pos, "Invalid Unicode escape sequence")
		}
		b.WriteRune(rune(n))
		lx.pos += 4
	default:
		b.WriteByte(c)
	}
	return nil
}

// lexTemplate reads a backtick template literal. Substitution sources are
// kept as text and compiled by the parser.
func (lx *lexer) lexTemplate() (token, error) {
	start := lx.pos
	lx.pos++ // backtick
	tok := token{kind: tokTemplate, pos: start}
	var b strings.Builder

	for {
		if lx.pos >= len(lx.src) {
			return token{}, syntaxErrorf(start, "Unterminated template literal")
		}
		c := lx.src[lx.pos]
		switch {
		case c == '`':
			lx.pos++
			tok.quasis = append(tok.quasis, b.String())
			return tok, nil
		case c == '\\':
			if err := lx.lexEscape(&b); err != nil {
				return token{}, err
			}
		case c == '$' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '{':
			tok.quasis = append(tok.quasis, b.String())
			b.Reset()
			lx.pos += 2
			exprStart := lx.pos
			if err := lx.skipBalanced(); err != nil {
				return token{}, err
			}
			tok.exprs = append(tok.exprs, templateExpr{src: lx.src[exprStart : lx.pos-1], pos: exprStart})
		default:
			b.WriteByte(c)
			lx.pos++
		}
	}
}

// skipBalanced advances past the } closing a ${ substitution, skipping
// nested braces, strings and templates.
func (lx *lexer) skipBalanced() error {
	depth := 1
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case '{':
			depth++
			lx.pos++
		case '}':
			depth--
			lx.pos++
			if depth == 0 {
				return nil
			}
		case '"', '\'':
			if _, err := lx.lexString(c); err != nil {
				return err
			}
		case '`':
			if _, err := lx.lexTemplate(); err != nil {
				return err
			}
		default:
			lx.pos++
		}
	}
	return syntaxErrorf(lx.pos, "Unterminated template literal")
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
