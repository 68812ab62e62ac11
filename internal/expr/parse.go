package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	toks []token
	pos  int
}

// Parse compiles a single expression string into an AST.
func Parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("expr: unexpected trailing token %q at %d", p.cur().text, p.cur().pos)
	}
	return node, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) isOp(s string) bool {
	t := p.cur()
	return t.kind == tokOp && t.text == s
}

func (p *parser) expect(kind tokenKind, text string) error {
	t := p.cur()
	if t.kind != kind || (text != "" && t.text != text) {
		return fmt.Errorf("expr: expected %q, got %q at %d", text, t.text, t.pos)
	}
	p.advance()
	return nil
}

// parseTernary: X if COND else Y
func (p *parser) parseTernary() (Node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isOp("if") {
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokOp, "else"); err != nil {
			return nil, err
		}
		elseVal, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &IfElse{Cond: cond, Then: left, Else: elseVal}, nil
	}
	return left, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.isOp("or") {
		return left, nil
	}
	ops := []Node{left}
	for p.isOp("or") {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		ops = append(ops, next)
	}
	return &BoolOp{Op: "or", Operands: ops}, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.isOp("and") {
		return left, nil
	}
	ops := []Node{left}
	for p.isOp("and") {
		p.advance()
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		ops = append(ops, next)
	}
	return &BoolOp{Op: "and", Operands: ops}, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.isOp("not") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "in": true,
}

func (p *parser) parseComparison() (Node, error) {
	first, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	var ops []string
	var rest []Node
	for {
		if p.isOp("not") && p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].text == "in" {
			p.advance()
			p.advance()
			next, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			ops = append(ops, "not in")
			rest = append(rest, next)
			continue
		}
		t := p.cur()
		if t.kind == tokOp && compareOps[t.text] {
			p.advance()
			next, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			ops = append(ops, t.text)
			rest = append(rest, next)
			continue
		}
		break
	}

	if len(ops) == 0 {
		return first, nil
	}
	return &Compare{First: first, Ops: ops, Rest: rest}, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.isOp("-") || p.isOp("+") {
		op := p.advance().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Node, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		p.advance()
		right, err := p.parseUnary() // right-associative
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "**", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().kind {
		case tokDot:
			p.advance()
			name := p.cur()
			if name.kind != tokIdent {
				return nil, fmt.Errorf("expr: expected attribute name at %d", name.pos)
			}
			p.advance()
			node = &Attr{Target: node, Name: name.text}
		case tokLParen:
			p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			node = &Call{Target: node, Args: args}
		case tokLBracket:
			p.advance()
			idxNode, err := p.parseSubscript()
			if err != nil {
				return nil, err
			}
			switch n := idxNode.(type) {
			case sliceParts:
				node = &Slice{Target: node, Low: n.low, High: n.high, Step: n.step}
			default:
				node = &Index{Target: node, Index: idxNode.(Node)}
			}
			if err := p.expect(tokRBracket, "]"); err != nil {
				return nil, err
			}
		default:
			return node, nil
		}
	}
}

type sliceParts struct{ low, high, step Node }

// parseSubscript parses either an index expression or a slice a:b:c. The
// caller's type switch on sliceParts vs. plain Node distinguishes them.
func (p *parser) parseSubscript() (any, error) {
	var low, high, step Node
	haveColon := false

	if !p.isColonOrBracket() {
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		low = n
	}
	if p.cur().kind == tokColon {
		haveColon = true
		p.advance()
		if !p.isColonOrBracket() {
			n, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			high = n
		}
		if p.cur().kind == tokColon {
			p.advance()
			if p.cur().kind != tokRBracket {
				n, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				step = n
			}
		}
	}

	if !haveColon {
		return low, nil
	}
	return sliceParts{low: low, high: high, step: step}, nil
}

func (p *parser) isColonOrBracket() bool {
	k := p.cur().kind
	return k == tokColon || k == tokRBracket
}

func (p *parser) parseArgList() ([]Node, error) {
	var args []Node
	if p.cur().kind == tokRParen {
		p.advance()
		return args, nil
	}
	for {
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, n)
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseAtom() (Node, error) {
	t := p.cur()
	switch {
	case t.kind == tokNumber:
		p.advance()
		isInt := !strings.ContainsAny(t.text, ".eE")
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("expr: invalid number %q at %d", t.text, t.pos)
		}
		return &NumberLit{Value: v, IsInt: isInt}, nil

	case t.kind == tokString:
		p.advance()
		return &StringLit{Value: t.text}, nil

	case t.kind == tokOp && t.text == "True":
		p.advance()
		return &BoolLit{Value: true}, nil
	case t.kind == tokOp && t.text == "False":
		p.advance()
		return &BoolLit{Value: false}, nil
	case t.kind == tokOp && t.text == "None":
		p.advance()
		return &NoneLit{}, nil

	case t.kind == tokIdent:
		p.advance()
		return &Ident{Name: t.text}, nil

	case t.kind == tokLParen:
		p.advance()
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if p.cur().kind == tokComma {
			elems := []Node{n}
			for p.cur().kind == tokComma {
				p.advance()
				if p.cur().kind == tokRParen {
					break
				}
				next, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				elems = append(elems, next)
			}
			if err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return &TupleLit{Elems: elems}, nil
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return n, nil

	case t.kind == tokLBracket:
		return p.parseListOrComprehension()

	case t.kind == tokLBrace:
		return p.parseDictOrSet()
	}

	return nil, fmt.Errorf("expr: unexpected token %q at %d", t.text, t.pos)
}

func (p *parser) parseListOrComprehension() (Node, error) {
	p.advance() // consume '['
	if p.cur().kind == tokRBracket {
		p.advance()
		return &ListLit{}, nil
	}

	first, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if p.isOp("for") {
		p.advance()
		varName := p.cur()
		if varName.kind != tokIdent {
			return nil, fmt.Errorf("expr: expected loop variable at %d", varName.pos)
		}
		p.advance()
		if err := p.expect(tokOp, "in"); err != nil {
			return nil, err
		}
		iter, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		var cond Node
		if p.isOp("if") {
			p.advance()
			cond, err = p.parseOr()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expect(tokRBracket, "]"); err != nil {
			return nil, err
		}
		return &Comprehension{Result: first, Var: varName.text, Iter: iter, Cond: cond}, nil
	}

	elems := []Node{first}
	for p.cur().kind == tokComma {
		p.advance()
		if p.cur().kind == tokRBracket {
			break
		}
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		elems = append(elems, n)
	}
	if err := p.expect(tokRBracket, "]"); err != nil {
		return nil, err
	}
	return &ListLit{Elems: elems}, nil
}

func (p *parser) parseDictOrSet() (Node, error) {
	p.advance() // consume '{'
	if p.cur().kind == tokRBrace {
		p.advance()
		return &DictLit{}, nil
	}

	firstKey, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if p.cur().kind == tokColon {
		p.advance()
		firstVal, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		keys := []Node{firstKey}
		vals := []Node{firstVal}
		for p.cur().kind == tokComma {
			p.advance()
			if p.cur().kind == tokRBrace {
				break
			}
			k, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokColon, ":"); err != nil {
				return nil, err
			}
			v, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
			vals = append(vals, v)
		}
		if err := p.expect(tokRBrace, "}"); err != nil {
			return nil, err
		}
		return &DictLit{Keys: keys, Values: vals}, nil
	}

	elems := []Node{firstKey}
	for p.cur().kind == tokComma {
		p.advance()
		if p.cur().kind == tokRBrace {
			break
		}
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		elems = append(elems, n)
	}
	if err := p.expect(tokRBrace, "}"); err != nil {
		return nil, err
	}
	return &SetLit{Elems: elems}, nil
}
