package query

import (
	"strings"

	"github.com/guyvdb/dsearch/fault"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tWord
	tPhrase
	tLParen
	tRParen
	tColon
	tOp
	tAnd
	tOr
	tNot
	tMinus
	tPlus
)

func (k tokenKind) String() string {
	switch k {
	case tEOF:
		return "end of query"
	case tWord:
		return "term"
	case tPhrase:
		return "phrase"
	case tLParen:
		return "("
	case tRParen:
		return ")"
	case tColon:
		return ":"
	case tOp:
		return "range operator"
	case tAnd:
		return "AND"
	case tOr:
		return "OR"
	case tNot:
		return "NOT"
	case tMinus:
		return "-"
	case tPlus:
		return "+"
	}
	return "?"
}

// token is one lexeme. text is the source as written, val the unescaped
// value.
type token struct {
	kind tokenKind
	text string
	val  string
	pos  int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// lex splits input into tokens. After a "field:" or a range operator the
// lexer is in value mode: colons and leading '-' belong to the value, so
// timestamps and negative numbers need no quoting.
func lex(input string) ([]token, error) {
	var toks []token
	valueMode := false

	emit := func(kind tokenKind, start, end int, val string) {
		toks = append(toks, token{kind: kind, text: input[start:end], val: val, pos: start})
	}

	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case isSpace(c):
			i++
			valueMode = false

		case c == '(':
			emit(tLParen, i, i+1, "(")
			i++
			valueMode = false

		case c == ')':
			emit(tRParen, i, i+1, ")")
			i++
			valueMode = false

		case c == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(input) {
				if input[i] == '\\' && i+1 < len(input) {
					b.WriteByte(input[i+1])
					i += 2
					continue
				}
				if input[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteByte(input[i])
				i++
			}
			if !closed {
				return nil, &fault.QueryError{Query: input, Token: input[start:], Pos: start, Reason: "unterminated phrase"}
			}
			emit(tPhrase, start, i, b.String())
			valueMode = false

		case valueMode && (c == '>' || c == '<'):
			start := i
			i++
			if i < len(input) && input[i] == '=' {
				i++
			}
			emit(tOp, start, i, input[start:i])

		case !valueMode && c == ':':
			emit(tColon, i, i+1, ":")
			i++
			valueMode = true

		case !valueMode && (c == '-' || c == '+'):
			kind := tMinus
			if c == '+' {
				kind = tPlus
			}
			emit(kind, i, i+1, string(c))
			i++

		default:
			start := i
			var b strings.Builder
			for i < len(input) {
				c := input[i]
				if isSpace(c) || c == '(' || c == ')' || c == '"' || (!valueMode && c == ':') {
					break
				}
				if c == '\\' && i+1 < len(input) {
					b.WriteByte(input[i+1])
					i += 2
					continue
				}
				b.WriteByte(c)
				i++
			}

			word := b.String()
			kind := tWord
			if !valueMode {
				switch input[start:i] {
				case "AND", "&&":
					kind = tAnd
				case "OR", "||":
					kind = tOr
				case "NOT":
					kind = tNot
				}
			}
			emit(kind, start, i, word)
			valueMode = false
		}
	}

	toks = append(toks, token{kind: tEOF, pos: len(input)})
	return toks, nil
}
