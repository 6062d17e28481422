package odata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrParse is returned for filter strings the parser cannot handle.
var ErrParse = errors.New("invalid filter expression")

// Parse parses an OData filter string into an expression tree. It supports
// the subset the client emits: parentheses, and/or/not, the six comparison
// operators, the contains/startswith/endswith functions, dotted field
// paths, and string/number/boolean/null literals.
//
// Grammar:
//
//	expr    := or
//	or      := and ('or' and)*
//	and     := not ('and' not)*
//	not     := ['not'] cmp
//	cmp     := primary (OP primary)?
//	primary := FUNC '(' field ',' literal ')' | '(' expr ')' | literal | field
func Parse(s string) (Expr, error) {
	tokens, err := lex(s)
	if err != nil {
		return Expr{}, err
	}

	p := &parser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return Expr{}, err
	}
	if tok := p.peek(); tok != nil {
		return Expr{}, fmt.Errorf("%w: unexpected token %q", ErrParse, tok.text)
	}

	return Expr{n: n}, nil
}

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokComma
	tokOp     // eq ne gt ge lt le and or not
	tokFunc   // contains startswith endswith
	tokBool   // true false
	tokNull   // null
	tokNumber // 42, -3.5
	tokIdent  // dotted field path
	tokString // 'text with '' escapes'
)

type token struct {
	kind tokenKind
	text string
}

var comparisonOps = map[string]bool{
	opEq: true, opNe: true, opGt: true, opGe: true, opLt: true, opLe: true,
}

var stringFuncs = map[string]bool{
	fnContains: true, fnStartsWith: true, fnEndsWith: true,
}

// lex splits a filter string into tokens. Keywords are matched
// case-insensitively, matching the grammar the API accepts.
func lex(s string) ([]token, error) {
	var tokens []token
	runes := []rune(s)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ","})
			i++
		case r == '\'':
			text, next, err := lexString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, text})
			i = next
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, string(runes[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.' || runes[i] == '/') {
				i++
			}
			word := string(runes[start:i])
			tokens = append(tokens, classifyWord(word))
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrParse, string(r))
		}
	}

	return tokens, nil
}

// lexString consumes a single-quoted string starting at runes[start],
// unescaping doubled quotes. Returns the inner text and the index after
// the closing quote.
func lexString(runes []rune, start int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(runes) {
		if runes[i] == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("%w: unterminated string literal", ErrParse)
}

func classifyWord(word string) token {
	lower := strings.ToLower(word)
	switch {
	case lower == opAnd || lower == opOr || lower == "not" || comparisonOps[lower]:
		return token{tokOp, lower}
	case stringFuncs[lower]:
		return token{tokFunc, lower}
	case lower == "true" || lower == "false":
		return token{tokBool, lower}
	case lower == "null":
		return token{tokNull, lower}
	default:
		return token{tokIdent, word}
	}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) next() *token {
	tok := p.peek()
	if tok != nil {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (*token, error) {
	tok := p.next()
	if tok == nil || tok.kind != kind {
		got := "EOF"
		if tok != nil {
			got = strconv.Quote(tok.text)
		}
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrParse, what, got)
	}
	return tok, nil
}

func (p *parser) matchOp(op string) bool {
	tok := p.peek()
	if tok != nil && tok.kind == tokOp && tok.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	n, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchOp(opOr) {
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		n = logical{op: opOr, left: n, right: rhs}
	}
	return n, nil
}

func (p *parser) parseAnd() (node, error) {
	n, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchOp(opAnd) {
		rhs, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		n = logical{op: opAnd, left: n, right: rhs}
	}
	return n, nil
}

func (p *parser) parseNot() (node, error) {
	if p.matchOp("not") {
		operand, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		return unary{operand: operand}, nil
	}
	return p.parseCmp()
}

// primary is one operand: either a finished subtree (parenthesized
// expression or function call), a field path, or a literal.
type primary struct {
	n     node
	field string
	lit   any
	isLit bool
}

func (p *parser) parseCmp() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	if tok == nil || tok.kind != tokOp || !comparisonOps[tok.text] {
		// No comparison: a finished subtree or a bare boolean field.
		if left.n != nil {
			return left.n, nil
		}
		if left.field != "" {
			return fieldNode(left.field), nil
		}
		return nil, fmt.Errorf("%w: literal cannot stand alone", ErrParse)
	}
	op := p.next().text

	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	return buildComparison(left, op, right)
}

// buildComparison maps parsed operands onto a comparison leaf. The left
// side is normally a field path; a numeric literal is allowed so constant
// comparisons like 1 eq 0 round-trip.
func buildComparison(left primary, op string, right primary) (node, error) {
	var field string
	switch {
	case left.field != "":
		field = left.field
	case left.isLit:
		field = renderValue(left.lit)
		if strings.HasPrefix(field, "'") {
			return nil, fmt.Errorf("%w: string literal on left side of %s", ErrParse, op)
		}
	default:
		return nil, fmt.Errorf("%w: invalid left operand of %s", ErrParse, op)
	}

	var value any
	switch {
	case right.isLit:
		value = right.lit
	case right.field != "":
		value = Ident(right.field)
	default:
		return nil, fmt.Errorf("%w: invalid right operand of %s", ErrParse, op)
	}

	return comparison{field: field, op: op, value: value}, nil
}

func (p *parser) parsePrimary() (primary, error) {
	tok := p.peek()
	if tok == nil {
		return primary{}, fmt.Errorf("%w: unexpected end of input", ErrParse)
	}

	switch tok.kind {
	case tokFunc:
		name := p.next().text
		if _, err := p.expect(tokLParen, "("); err != nil {
			return primary{}, err
		}
		field, err := p.expect(tokIdent, "field path")
		if err != nil {
			return primary{}, err
		}
		if _, err := p.expect(tokComma, ","); err != nil {
			return primary{}, err
		}
		arg, err := p.parsePrimary()
		if err != nil {
			return primary{}, err
		}
		if !arg.isLit {
			return primary{}, fmt.Errorf("%w: %s expects a literal argument", ErrParse, name)
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return primary{}, err
		}
		return primary{n: comparison{field: field.text, op: name, value: arg.lit}}, nil

	case tokLParen:
		p.next()
		n, err := p.parseOr()
		if err != nil {
			return primary{}, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return primary{}, err
		}
		return primary{n: n}, nil

	case tokIdent:
		return primary{field: p.next().text}, nil

	case tokString:
		return primary{lit: p.next().text, isLit: true}, nil

	case tokNumber:
		text := p.next().text
		if strings.Contains(text, ".") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return primary{}, fmt.Errorf("%w: bad number %q", ErrParse, text)
			}
			return primary{lit: f, isLit: true}, nil
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return primary{}, fmt.Errorf("%w: bad number %q", ErrParse, text)
		}
		return primary{lit: i, isLit: true}, nil

	case tokBool:
		return primary{lit: p.next().text == "true", isLit: true}, nil

	case tokNull:
		p.next()
		return primary{lit: nil, isLit: true}, nil

	default:
		return primary{}, fmt.Errorf("%w: unexpected token %q", ErrParse, tok.text)
	}
}
