// Package parser turns input text into expressions.
//
// The grammar is the operator subset the built-ins need: calls f[...],
// lists, patterns (x_, __, x_.), arithmetic, comparisons, rules, string
// operators (<>, ~~, |, ..), assignment and compound expressions.
package parser

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/mathics/gomathics/internal/expr"
)

type infixOp struct {
	lbp   int
	right bool
	head  string
	flat  bool
}

var infixOps = map[string]infixOp{
	";":   {lbp: 10, head: "CompoundExpression", flat: true},
	"=":   {lbp: 40, right: true, head: "Set"},
	":=":  {lbp: 40, right: true, head: "SetDelayed"},
	"//":  {lbp: 70},
	"/.":  {lbp: 110, head: "ReplaceAll"},
	"->":  {lbp: 120, right: true, head: "Rule"},
	":>":  {lbp: 120, right: true, head: "RuleDelayed"},
	"/;":  {lbp: 130, head: "Condition"},
	"~~":  {lbp: 135, head: "StringExpression", flat: true},
	"|":   {lbp: 160, head: "Alternatives", flat: true},
	"..":  {lbp: 170, head: "Repeated"},
	"...": {lbp: 170, head: "RepeatedNull"},
	"||":  {lbp: 215, head: "Or", flat: true},
	"&&":  {lbp: 216, head: "And", flat: true},
	"==":  {lbp: 290, head: "Equal"},
	"!=":  {lbp: 290, head: "Unequal"},
	"<":   {lbp: 290, head: "Less"},
	">":   {lbp: 290, head: "Greater"},
	"<=":  {lbp: 290, head: "LessEqual"},
	">=":  {lbp: 290, head: "GreaterEqual"},
	"===": {lbp: 290, head: "SameQ"},
	"=!=": {lbp: 290, head: "UnsameQ"},
	"+":   {lbp: 310, head: "Plus", flat: true},
	"-":   {lbp: 310, head: "Plus", flat: true},
	"*":   {lbp: 400, head: "Times", flat: true},
	"/":   {lbp: 400, head: "Times", flat: true},
	"^":   {lbp: 590, right: true, head: "Power"},
	"<>":  {lbp: 600, head: "StringJoin", flat: true},
	"[":   {lbp: 1000},
}

const (
	precNot         = 230
	precUnaryMinus  = 480
	precImplicitMul = 400
)

type parser struct {
	toks []token
	pos  int
	src  string
}

// Parse parses a single expression. Trailing input is an error.
func Parse(src string) (expr.Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: src}
	if p.peek().kind == tokEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty input", Incomplete: true}
	}
	e, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected " + strconv.Quote(tok.text)}
	}
	return e, nil
}

// Chunk is one complete top-level input and the source text it came from.
type Chunk struct {
	Source string
	Expr   expr.Expr
}

// ParseAll splits multi-line source into complete top-level expressions.
// Lines accumulate until they parse; blank lines between inputs are skipped.
func ParseAll(src string) ([]Chunk, error) {
	var chunks []Chunk
	var pending []string
	for _, line := range strings.Split(src, "\n") {
		if len(pending) == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		pending = append(pending, line)
		text := strings.Join(pending, "\n")
		e, err := Parse(text)
		if err == nil {
			chunks = append(chunks, Chunk{Source: text, Expr: e})
			pending = pending[:0]
			continue
		}
		if se, ok := err.(*SyntaxError); ok && se.Incomplete {
			continue
		}
		return chunks, err
	}
	if len(pending) > 0 && !isBlank(strings.Join(pending, "\n")) {
		_, err := Parse(strings.Join(pending, "\n"))
		return chunks, err
	}
	return chunks, nil
}

// isBlank reports whether src holds nothing but whitespace and comments.
func isBlank(src string) bool {
	toks, err := tokenize(src)
	return err == nil && len(toks) == 1
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOperator(text string) bool {
	tok := p.peek()
	return tok.kind == tokOperator && tok.text == text
}

func (p *parser) expect(text string) error {
	tok := p.peek()
	if tok.kind == tokEOF {
		return &SyntaxError{Pos: tok.pos, Msg: "expected " + strconv.Quote(text), Incomplete: true}
	}
	if tok.kind != tokOperator || tok.text != text {
		return &SyntaxError{Pos: tok.pos, Msg: "expected " + strconv.Quote(text) + " before " + strconv.Quote(tok.text)}
	}
	p.advance()
	return nil
}

func (p *parser) parseExpr(rbp int) (expr.Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOperator {
			if startsOperand(tok) && precImplicitMul > rbp {
				right, err := p.parseExpr(precImplicitMul)
				if err != nil {
					return nil, err
				}
				left = combine("Times", left, right, true)
				continue
			}
			return left, nil
		}
		op, ok := infixOps[tok.text]
		if !ok || op.lbp <= rbp {
			if (tok.text == "(" || tok.text == "%") && precImplicitMul > rbp {
				right, err := p.parseExpr(precImplicitMul)
				if err != nil {
					return nil, err
				}
				left = combine("Times", left, right, true)
				continue
			}
			return left, nil
		}
		p.advance()
		left, err = p.parseInfix(tok.text, op, left)
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseInfix(text string, op infixOp, left expr.Expr) (expr.Expr, error) {
	switch text {
	case "[":
		args, err := p.parseSequence("]")
		if err != nil {
			return nil, err
		}
		return expr.New(left, args...), nil
	case "..", "...":
		return expr.Call(op.head, left), nil
	case ";":
		if p.endsCompound() {
			return combine(op.head, left, expr.Null, true), nil
		}
	}

	rbp := op.lbp
	if op.right {
		rbp--
	}
	right, err := p.parseExpr(rbp)
	if err != nil {
		return nil, err
	}
	switch text {
	case "//":
		return expr.New(right, left), nil
	case "-":
		right = negate(right)
	case "/":
		right = expr.Call("Power", right, expr.Int(-1))
	}
	return combine(op.head, left, right, op.flat), nil
}

func (p *parser) endsCompound() bool {
	tok := p.peek()
	if tok.kind == tokEOF {
		return true
	}
	if tok.kind != tokOperator {
		return false
	}
	switch tok.text {
	case ")", "]", "}", ",", ";":
		return true
	}
	return false
}

func (p *parser) parsePrefix() (expr.Expr, error) {
	tok := p.advance()
	switch tok.kind {
	case tokEOF:
		return nil, &SyntaxError{Pos: tok.pos, Msg: "more input is needed", Incomplete: true}
	case tokNumber:
		return parseNumber(tok)
	case tokString:
		return expr.Str(tok.text), nil
	case tokSymbol:
		return expr.Sym(tok.text), nil
	case tokPattern:
		return patternExpr(tok), nil
	}

	switch tok.text {
	case "(":
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case "{":
		items, err := p.parseSequence("}")
		if err != nil {
			return nil, err
		}
		return expr.List(items...), nil
	case "-":
		operand, err := p.parseExpr(precUnaryMinus)
		if err != nil {
			return nil, err
		}
		return negate(operand), nil
	case "+":
		return p.parseExpr(precUnaryMinus)
	case "!":
		operand, err := p.parseExpr(precNot)
		if err != nil {
			return nil, err
		}
		return expr.Call("Not", operand), nil
	case "%":
		end := tok.pos + 1
		depth := int64(1)
		for next := p.peek(); next.kind == tokOperator && next.text == "%" && next.pos == end; next = p.peek() {
			p.advance()
			depth++
			end++
		}
		if depth > 1 {
			return expr.Call("Out", expr.Int(-depth)), nil
		}
		if next := p.peek(); next.kind == tokNumber && next.pos == end && !strings.Contains(next.text, ".") {
			p.advance()
			n, err := parseNumber(next)
			if err != nil {
				return nil, err
			}
			return expr.Call("Out", n), nil
		}
		return expr.Call("Out"), nil
	}
	return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected " + strconv.Quote(tok.text)}
}

func (p *parser) parseSequence(closer string) ([]expr.Expr, error) {
	var items []expr.Expr
	if p.isOperator(closer) {
		p.advance()
		return items, nil
	}
	for {
		item, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.isOperator(",") {
			p.advance()
			continue
		}
		if err := p.expect(closer); err != nil {
			return nil, err
		}
		return items, nil
	}
}

func startsOperand(tok token) bool {
	switch tok.kind {
	case tokNumber, tokSymbol, tokPattern:
		return true
	}
	return false
}

func combine(head string, left, right expr.Expr, flat bool) expr.Expr {
	if flat && expr.HasForm(left, head) {
		leaves := append(append([]expr.Expr{}, left.(*expr.Expression).Leaves()...), right)
		return expr.Call(head, leaves...)
	}
	return expr.Call(head, left, right)
}

func negate(e expr.Expr) expr.Expr {
	switch v := e.(type) {
	case expr.Integer:
		return expr.BigInt(new(big.Int).Neg(v.Big()))
	case expr.Real:
		return expr.Float(-v.Value)
	case expr.Rational:
		return expr.Rat(new(big.Rat).Neg(v.Big()))
	}
	return expr.Call("Times", expr.Int(-1), e)
}

func parseNumber(tok token) (expr.Expr, error) {
	if strings.Contains(tok.text, ".") {
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "invalid number " + tok.text}
		}
		return expr.Float(v), nil
	}
	v, ok := new(big.Int).SetString(tok.text, 10)
	if !ok {
		return nil, &SyntaxError{Pos: tok.pos, Msg: "invalid number " + tok.text}
	}
	return expr.BigInt(v), nil
}

func patternExpr(tok token) expr.Expr {
	head := "Blank"
	switch tok.blanks {
	case 2:
		head = "BlankSequence"
	case 3:
		head = "BlankNullSequence"
	}
	var blank expr.Expr = expr.Call(head)
	if tok.blankOf != "" {
		blank = expr.Call(head, expr.Sym(tok.blankOf))
	}
	var result = blank
	if tok.name != "" {
		result = expr.Call("Pattern", expr.Sym(tok.name), blank)
	}
	if tok.optional {
		result = expr.Call("Optional", result)
	}
	return result
}
