package expression

import "strings"

// binaryPrecedence for binary and logical operators; higher binds tighter.
var binaryPrecedence = map[string]int{
	"??":  1,
	"||":  2,
	"&&":  3,
	"==":  4,
	"!=":  4,
	"===": 4,
	"!==": 4,
	"<":   5,
	"<=":  5,
	">":   5,
	">=":  5,
	"+":   6,
	"-":   6,
	"*":   7,
	"/":   7,
	"%":   7,
	"**":  8,
}

// reserved identifiers that cannot be arrow parameters.
var reserved = map[string]bool{
	"true": true, "false": true, "null": true, "undefined": true,
	"typeof": true, "new": true, "function": true, "return": true,
	"var": true, "let": true, "const": true, "this": true,
}

type parser struct {
	src    string
	tokens []token

	// offset is added to token positions; non-zero for template
	// substitutions compiled from a slice of the outer source.
	offset int
	pos    int
}

// parse compiles src into a node. Blank input evaluates to undefined.
func parse(src string, offset int) (node, error) {
	if strings.TrimSpace(src) == "" {
		return &literal{value: nil}, nil
	}
	tokens, err := tokenize(src)
	if err != nil {
		if perr, ok := err.(*Error); ok && perr.Pos >= 0 {
			perr.Pos += offset
		}
		return nil, err
	}

	p := &parser{src: src, tokens: tokens, offset: offset}
	n, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(i int) token {
	if p.pos+i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+i]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isPunct(s string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return p.unexpected(p.peek())
	}
	p.advance()
	return nil
}

func (p *parser) unexpected(tok token) error {
	pos := tok.pos + p.offset
	switch tok.kind {
	case tokEOF:
		return syntaxErrorf(pos, "Unexpected end of input")
	case tokNumber:
		return syntaxErrorf(pos, "Unexpected number")
	case tokString, tokTemplate:
		return syntaxErrorf(pos, "Unexpected string")
	case tokIdent:
		return syntaxErrorf(pos, "Unexpected identifier '%s'", tok.text)
	default:
		return syntaxErrorf(pos, "Unexpected token '%s'", tok.text)
	}
}

// sourceBetween returns the source text of tokens [from, p.pos).
func (p *parser) sourceBetween(from int) string {
	if from >= p.pos {
		return ""
	}
	start := p.tokens[from].pos
	end := len(p.src)
	if p.pos < len(p.tokens) {
		end = p.tokens[p.pos].pos
	}
	return strings.TrimSpace(p.src[start:end])
}

func (p *parser) parseExpression() (node, error) {
	if p.isArrowStart() {
		return p.parseArrow()
	}
	return p.parseConditional()
}

func (p *parser) parseConditional() (node, error) {
	test, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return test, nil
	}
	p.advance()

	consequent, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	alternate, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &conditional{test: test, consequent: consequent, alternate: alternate}, nil
}

func (p *parser) parseBinary(minPrec int) (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokPunct {
			return left, nil
		}
		prec, ok := binaryPrecedence[tok.text]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()

		nextMin := prec + 1
		if tok.text == "**" {
			nextMin = prec // right associative
		}
		right, err := p.parseBinary(nextMin)
		if err != nil {
			return nil, err
		}

		switch tok.text {
		case "&&", "||", "??":
			left = &logical{op: tok.text, left: left, right: right}
		default:
			left = &binary{op: tok.text, left: left, right: right}
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	tok := p.peek()
	if (tok.kind == tokPunct && (tok.text == "!" || tok.text == "-" || tok.text == "+")) ||
		(tok.kind == tokIdent && tok.text == "typeof") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: tok.text, operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	start := p.pos
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	chained := false
	for {
		switch {
		case p.isPunct("."):
			p.advance()
			name := p.advance()
			if name.kind != tokIdent {
				return nil, p.unexpected(name)
			}
			expr = &member{object: expr, property: name.text}

		case p.isPunct("?."):
			callee := p.sourceBetween(start)
			p.advance()
			chained = true
			switch {
			case p.isPunct("("):
				args, err := p.parseArguments()
				if err != nil {
					return nil, err
				}
				expr = &call{callee: expr, args: args, optional: true, src: callee}
			case p.isPunct("["):
				p.advance()
				key, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				if err := p.expectPunct("]"); err != nil {
					return nil, err
				}
				expr = &member{object: expr, computed: key, optional: true}
			default:
				name := p.advance()
				if name.kind != tokIdent {
					return nil, p.unexpected(name)
				}
				expr = &member{object: expr, property: name.text, optional: true}
			}

		case p.isPunct("["):
			p.advance()
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			expr = &member{object: expr, computed: key}

		case p.isPunct("("):
			callee := p.sourceBetween(start)
			args, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			expr = &call{callee: expr, args: args, src: callee}

		default:
			if chained {
				expr = &optionalChain{expr: expr}
			}
			return expr, nil
		}
	}
}

// parseArguments parses "(a, b, ...c)".
func (p *parser) parseArguments() ([]node, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	return p.parseElements(")")
}

// parseElements parses a comma separated list closed by end, allowing a
// trailing comma and spread elements.
func (p *parser) parseElements(end string) ([]node, error) {
	var elems []node
	for !p.isPunct(end) {
		var elem node
		var err error
		if p.isPunct("...") {
			p.advance()
			var inner node
			inner, err = p.parseExpression()
			elem = &spread{expr: inner}
		} else {
			elem, err = p.parseExpression()
		}
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)

		if p.isPunct(",") {
			p.advance()
			continue
		}
		if !p.isPunct(end) {
			return nil, p.unexpected(p.peek())
		}
	}
	p.advance()
	return elems, nil
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		return &literal{value: tok.num}, nil
	case tokString:
		return &literal{value: tok.text}, nil
	case tokTemplate:
		return p.parseTemplate(tok)
	case tokIdent:
		switch tok.text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null", "undefined":
			return &literal{value: nil}, nil
		}
		if reserved[tok.text] {
			return nil, syntaxErrorf(tok.pos+p.offset, "Unexpected token '%s'", tok.text)
		}
		return &identifier{name: tok.text}, nil
	case tokPunct:
		switch tok.text {
		case "(":
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return expr, nil
		case "[":
			elems, err := p.parseElements("]")
			if err != nil {
				return nil, err
			}
			return &arrayLit{elems: elems}, nil
		case "{":
			return p.parseObject()
		}
	}
	return nil, p.unexpected(tok)
}

func (p *parser) parseObject() (node, error) {
	obj := &objectLit{}
	for !p.isPunct("}") {
		if p.isPunct("...") {
			p.advance()
			inner, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			obj.keys = append(obj.keys, "")
			obj.values = append(obj.values, &spread{expr: inner})
		} else {
			keyTok := p.advance()
			var key string
			switch keyTok.kind {
			case tokIdent, tokString:
				key = keyTok.text
			case tokNumber:
				key = FormatNumber(keyTok.num)
			default:
				return nil, p.unexpected(keyTok)
			}

			var value node
			if p.isPunct(":") {
				p.advance()
				v, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				value = v
			} else if keyTok.kind == tokIdent && !reserved[key] {
				value = &identifier{name: key}
			} else {
				return nil, p.unexpected(p.peek())
			}
			obj.keys = append(obj.keys, key)
			obj.values = append(obj.values, value)
		}

		if p.isPunct(",") {
			p.advance()
			continue
		}
		if !p.isPunct("}") {
			return nil, p.unexpected(p.peek())
		}
	}
	p.advance()
	return obj, nil
}

func (p *parser) parseTemplate(tok token) (node, error) {
	tpl := &templateLit{quasis: tok.quasis}
	for _, x := range tok.exprs {
		n, err := parse(x.src, p.offset+x.pos)
		if err != nil {
			return nil, err
		}
		tpl.exprs = append(tpl.exprs, n)
	}
	return tpl, nil
}

// isArrowStart looks ahead for "x =>" or "(a, b) =>".
func (p *parser) isArrowStart() bool {
	tok := p.peek()
	if tok.kind == tokIdent {
		next := p.peekAt(1)
		return !reserved[tok.text] && next.kind == tokPunct && next.text == "=>"
	}
	if tok.kind != tokPunct || tok.text != "(" {
		return false
	}

	i := 1
	for {
		t := p.peekAt(i)
		if t.kind == tokPunct && t.text == ")" {
			next := p.peekAt(i + 1)
			return next.kind == tokPunct && next.text == "=>"
		}
		if t.kind != tokIdent || reserved[t.text] {
			return false
		}
		i++
		sep := p.peekAt(i)
		if sep.kind == tokPunct && sep.text == "," {
			i++
			continue
		}
		if sep.kind != tokPunct || sep.text != ")" {
			return false
		}
	}
}

func (p *parser) parseArrow() (node, error) {
	var params []string
	if p.isPunct("(") {
		p.advance()
		for !p.isPunct(")") {
			params = append(params, p.advance().text)
			if p.isPunct(",") {
				p.advance()
			}
		}
		p.advance()
	} else {
		params = append(params, p.advance().text)
	}
	if err := p.expectPunct("=>"); err != nil {
		return nil, err
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &arrowFunc{params: params, body: body}, nil
}
