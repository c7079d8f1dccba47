package query

import (
	"fmt"
	"strings"

	"github.com/guyvdb/dsearch/fault"
)

// ParseAST parses a query string:
//
//	or      := and (("OR" | <adjacent>) and)*
//	and     := unary ("AND" unary)*
//	unary   := ("NOT" | "-" | "+") unary | primary
//	primary := "(" or ")" | word ":" value | phrase | word | "*"
//	value   := word | phrase | "(" or ")" | op word
//	op      := ">" | ">=" | "<" | "<="
//
// Errors are *fault.QueryError.
func ParseAST(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &fault.QueryError{Query: input, Reason: "empty query"}
	}

	toks, err := lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{input: input, toks: toks}

	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tEOF {
		if t.kind == tRParen {
			return nil, p.errorf(t, "unbalanced parenthesis")
		}
		return nil, p.errorf(t, "unexpected %s", t.kind)
	}

	return n, nil
}

type parser struct {
	input string
	toks  []token
	pos   int

	// field applies to bare terms inside "field:( ... )"
	field string
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &fault.QueryError{Query: p.input, Token: t.text, Pos: t.pos, Reason: fmt.Sprintf(format, args...)}
}

func canStart(k tokenKind) bool {
	switch k {
	case tWord, tPhrase, tLParen, tNot, tMinus, tPlus:
		return true
	}
	return false
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	nodes := []Node{first}
	for {
		t := p.peek()
		if t.kind == tOr {
			p.next()
			if !canStart(p.peek().kind) {
				return nil, p.errorf(t, "dangling operator")
			}
		} else if !canStart(t.kind) {
			break
		}

		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	if len(nodes) == 1 {
		return first, nil
	}
	return &Or{Nodes: nodes}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	nodes := []Node{first}
	for p.peek().kind == tAnd {
		op := p.next()
		if !canStart(p.peek().kind) {
			return nil, p.errorf(op, "dangling operator")
		}
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	if len(nodes) == 1 {
		return first, nil
	}
	return &And{Nodes: nodes}, nil
}

func (p *parser) parseUnary() (Node, error) {
	t := p.peek()

	switch t.kind {
	case tNot, tMinus, tPlus:
		p.next()
		if !canStart(p.peek().kind) {
			return nil, p.errorf(t, "dangling operator")
		}
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.kind == tPlus {
			return &Required{Node: n}, nil
		}
		return &Not{Node: n}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()

	switch t.kind {
	case tLParen:
		return p.parseGroup(t)

	case tPhrase:
		return &Phrase{Field: p.field, Value: t.val, Pos: t.pos}, nil

	case tWord:
		if p.peek().kind == tColon {
			return p.parseField(t)
		}
		if t.val == "*" && p.field == "" {
			return &All{}, nil
		}
		return &Term{Field: p.field, Value: t.val, Pos: t.pos}, nil

	case tRParen:
		return nil, p.errorf(t, "unbalanced parenthesis")

	case tEOF:
		return nil, p.errorf(t, "unexpected end of query")
	}

	return nil, p.errorf(t, "unexpected %s", t.kind)
}

// parseGroup parses the rest of a parenthesised expression after open.
func (p *parser) parseGroup(open token) (Node, error) {
	if p.peek().kind == tRParen {
		return nil, p.errorf(p.peek(), "empty group")
	}

	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tRParen {
		return nil, p.errorf(open, "unbalanced parenthesis")
	}
	p.next()

	return n, nil
}

func (p *parser) parseField(name token) (Node, error) {
	p.next() // colon

	field := name.val
	v := p.next()

	switch v.kind {
	case tWord:
		return &Term{Field: field, Value: v.val, Pos: name.pos}, nil

	case tPhrase:
		return &Phrase{Field: field, Value: v.val, Pos: name.pos}, nil

	case tOp:
		val := p.next()
		if val.kind != tWord {
			return nil, p.errorf(v, "missing value after %s", v.val)
		}
		return &Range{Field: field, Op: v.val, Value: val.val, Pos: name.pos}, nil

	case tLParen:
		saved := p.field
		p.field = field
		n, err := p.parseGroup(v)
		p.field = saved
		return n, err
	}

	return nil, p.errorf(name, "missing value for field %s", field)
}
