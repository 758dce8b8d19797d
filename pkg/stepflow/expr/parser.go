package expr

import (
	"github.com/randalmurphal/stepflow/pkg/stepflow/value"
)

type parser struct {
	toks      []token
	pos       int
	customOps map[string]BinaryOp
}

func parse(src string, customOps map[string]BinaryOp) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, customOps: customOps}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxError(tok.pos, "unexpected token %q", tok.text)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) isWord(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) expect(kind tokenKind, text string) error {
	tok := p.next()
	if tok.kind != kind {
		if tok.kind == tokEOF {
			return syntaxError(tok.pos, "unexpected end of expression, expected %q", text)
		}
		return syntaxError(tok.pos, "unexpected token %q, expected %q", tok.text, text)
	}
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		_, sym := p.isOp("||")
		if !sym && !p.isWord("or") {
			return left, nil
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		_, sym := p.isOp("&&")
		if !sym && !p.isWord("and") {
			return left, nil
		}
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "&&", left: left, right: right}
	}
}

// parseNot handles the word form of negation, which binds looser than the
// comparison operators: "not a == b" negates the comparison.
func (p *parser) parseNot() (node, error) {
	if p.isWord("not") {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "!", x: x}, nil
	}
	return p.parseEquality()
}

func (p *parser) parseEquality() (node, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("==", "!=", "===", "!==")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseRelational() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		if op, ok := p.isOp("<", "<=", ">", ">="); ok {
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: op, left: left, right: right}
			continue
		}

		tok := p.peek()
		if tok.kind != tokIdent {
			return left, nil
		}
		if tok.text == "contains" {
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "contains", left: left, right: right}
			continue
		}
		fn, ok := p.customOps[tok.text]
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &customNode{name: tok.text, fn: fn, left: left, right: right}
	}
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("+", "-")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &arithNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &arithNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.isOp("!", "-", "+"); ok {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.kind {
		case tokDot:
			p.next()
			name := p.next()
			if name.kind != tokIdent {
				return nil, syntaxError(name.pos, "expected property name after '.'")
			}
			n = &memberNode{obj: n, prop: &literalNode{v: value.FromString(name.text)}, name: name.text, pos: name.pos}
		case tokLBracket:
			p.next()
			prop, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRBracket, "]"); err != nil {
				return nil, err
			}
			n = &memberNode{obj: n, prop: prop, pos: tok.pos}
		case tokLParen:
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			n = &callNode{callee: n, args: args, pos: tok.pos}
		default:
			return n, nil
		}
	}
}

func (p *parser) parseArgs() ([]node, error) {
	var args []node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return args, nil
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &literalNode{v: value.FromNumber(tok.num)}, nil
	case tokString:
		return &literalNode{v: value.FromString(tok.text)}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return n, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return &literalNode{v: value.True}, nil
		case "false":
			return &literalNode{v: value.False}, nil
		case "null", "nil":
			return &literalNode{v: value.NullValue}, nil
		case "undefined":
			return &literalNode{v: value.UndefinedValue}, nil
		case "and", "or", "not", "contains":
			return nil, syntaxError(tok.pos, "unexpected keyword %q", tok.text)
		}
		return &identNode{name: tok.text, pos: tok.pos}, nil
	case tokEOF:
		return nil, syntaxError(tok.pos, "unexpected end of expression")
	}
	return nil, syntaxError(tok.pos, "unexpected token %q", tok.text)
}
