// Package condition compiles the small boolean language used by configuration
// defined fraud rules, e.g.
//
//	amount > 2500 AND location in ("LAGOS", "MINSK") AND NOT merchant_category == "TRAVEL"
//
// Expressions are parsed once when rules are built; evaluation never re-parses.
package condition

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Expr is a compiled boolean expression.
type Expr interface {
	exprNode()
}

// LogicalExpr joins two expressions with AND / OR.
type LogicalExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

// NotExpr negates an expression.
type NotExpr struct {
	Expr Expr
}

// CompareExpr compares a field against a literal.
type CompareExpr struct {
	Field string
	Op    Operator
	Value Literal
}

func (*LogicalExpr) exprNode() {}
func (*NotExpr) exprNode()     {}
func (*CompareExpr) exprNode() {}

// Literal is a constant on the right-hand side of a comparison. Exactly one of
// the value fields is meaningful, selected by Kind.
type Literal struct {
	Kind   LiteralKind
	Str    string
	Num    decimal.Decimal
	List   []Literal
	Regexp *regexp.Regexp // compiled for OpMatches
}

// LiteralKind tags a Literal.
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitNumber
	LitList
)

type tokKind int

const (
	tEOF tokKind = iota
	tIdent
	tString
	tNumber
	tOp
	tLParen
	tRParen
	tComma
)

type tok struct {
	kind tokKind
	text string
	pos  int
}

// lexer hands out one token at a time.
type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (tok, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return tok{kind: tEOF, pos: l.pos}, nil
	}
	start := l.pos
	ch := l.src[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return tok{tLParen, "(", start}, nil
	case ch == ')':
		l.pos++
		return tok{tRParen, ")", start}, nil
	case ch == ',':
		l.pos++
		return tok{tComma, ",", start}, nil
	case strings.ContainsRune("=!<>", rune(ch)):
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++
		}
		op := l.src[start:l.pos]
		if op == "=" || op == "!" {
			return tok{}, fmt.Errorf("invalid operator %q at position %d", op, start)
		}
		return tok{tOp, op, start}, nil
	case ch == '"' || ch == '\'':
		var b strings.Builder
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] != ch {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
			}
			b.WriteByte(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return tok{}, fmt.Errorf("unterminated string starting at position %d", start)
		}
		l.pos++
		return tok{tString, b.String(), start}, nil
	case unicode.IsDigit(rune(ch)) || ch == '-' || ch == '.':
		l.pos++
		for l.pos < len(l.src) && (unicode.IsDigit(rune(l.src[l.pos])) || l.src[l.pos] == '.') {
			l.pos++
		}
		return tok{tNumber, l.src[start:l.pos], start}, nil
	case unicode.IsLetter(rune(ch)) || ch == '_':
		for l.pos < len(l.src) && (unicode.IsLetter(rune(l.src[l.pos])) || unicode.IsDigit(rune(l.src[l.pos])) || l.src[l.pos] == '_') {
			l.pos++
		}
		return tok{tIdent, l.src[start:l.pos], start}, nil
	}
	return tok{}, fmt.Errorf("unexpected character %q at position %d", ch, start)
}

type parser struct {
	lex *lexer
	cur tok
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) keyword(kw string) bool {
	return p.cur.kind == tIdent && strings.EqualFold(p.cur.text, kw)
}

// Parse compiles an expression.
func Parse(src string) (Expr, error) {
	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.cur.text, p.cur.pos)
	}
	return e, nil
}

func (p *parser) parseOr() (Expr, error) {
	return p.parseLogical("OR", p.parseAnd)
}

func (p *parser) parseAnd() (Expr, error) {
	return p.parseLogical("AND", p.parseUnary)
}

func (p *parser) parseLogical(op string, operand func() (Expr, error)) (Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for p.keyword(op) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch {
	case p.keyword("NOT"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	case p.cur.kind == tLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tRParen {
			return nil, fmt.Errorf("expected ) at position %d, got %q", p.cur.pos, p.cur.text)
		}
		return inner, p.advance()
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (Expr, error) {
	if p.cur.kind != tIdent {
		return nil, fmt.Errorf("expected field name at position %d, got %q", p.cur.pos, p.cur.text)
	}
	field := strings.ToLower(p.cur.text)
	if !knownField(field) {
		return nil, fmt.Errorf("unknown field %q", p.cur.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var op Operator
	switch {
	case p.cur.kind == tOp:
		op = Operator(p.cur.text)
	case p.cur.kind == tIdent:
		op = Operator(strings.ToLower(p.cur.text))
	}
	if !op.valid() {
		return nil, fmt.Errorf("expected operator after %s, got %q", field, p.cur.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	lit, err := p.parseLiteral(op == OpIn)
	if err != nil {
		return nil, err
	}
	if err := checkOperands(field, op, &lit); err != nil {
		return nil, err
	}
	return &CompareExpr{Field: field, Op: op, Value: lit}, nil
}

func (p *parser) parseLiteral(list bool) (Literal, error) {
	if list {
		if p.cur.kind != tLParen {
			return Literal{}, fmt.Errorf("in: expected ( at position %d", p.cur.pos)
		}
		out := Literal{Kind: LitList}
		for {
			if err := p.advance(); err != nil {
				return Literal{}, err
			}
			item, err := p.parseLiteral(false)
			if err != nil {
				return Literal{}, err
			}
			out.List = append(out.List, item)
			if p.cur.kind == tRParen {
				return out, p.advance()
			}
			if p.cur.kind != tComma {
				return Literal{}, fmt.Errorf("in: expected , or ) at position %d", p.cur.pos)
			}
		}
	}

	t := p.cur
	switch t.kind {
	case tString:
		return Literal{Kind: LitString, Str: t.text}, p.advance()
	case tNumber:
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return Literal{}, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}
		return Literal{Kind: LitNumber, Num: d}, p.advance()
	}
	return Literal{}, fmt.Errorf("expected literal at position %d, got %q", t.pos, t.text)
}

// checkOperands rejects comparisons that can never be evaluated, so errors
// surface when rules are loaded instead of per transaction.
func checkOperands(field string, op Operator, lit *Literal) error {
	numeric := field == FieldAmount
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		if !numeric || lit.Kind != LitNumber {
			return fmt.Errorf("%s %s: ordering needs the numeric field %q and a number", field, op, FieldAmount)
		}
	case OpContains:
		if numeric || lit.Kind != LitString {
			return fmt.Errorf("%s contains: needs a text field and a string", field)
		}
	case OpMatches:
		if numeric || lit.Kind != LitString {
			return fmt.Errorf("%s matches: needs a text field and a pattern", field)
		}
		re, err := regexp.Compile(lit.Str)
		if err != nil {
			return fmt.Errorf("%s matches: invalid pattern %q: %w", field, lit.Str, err)
		}
		lit.Regexp = re
	case OpEq, OpNeq:
		if numeric != (lit.Kind == LitNumber) {
			return fmt.Errorf("%s %s: literal type does not match the field", field, op)
		}
	case OpIn:
		for _, item := range lit.List {
			if numeric != (item.Kind == LitNumber) {
				return fmt.Errorf("%s in: list item type does not match the field", field)
			}
		}
	}
	return nil
}
