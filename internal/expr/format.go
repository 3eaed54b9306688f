package expr

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Form selects a textual rendering.
type Form int

const (
	// OutputFormat prints strings bare and uses juxtaposition for Times.
	OutputFormat Form = iota
	// InputFormat prints text that parses back to the same expression.
	InputFormat
	// FullFormat prints every node as head[leaves].
	FullFormat
)

type operator struct {
	symbol     string
	precedence int
	kind       opKind
}

type opKind int

const (
	infix opKind = iota
	prefix
	postfix
)

const (
	precUnaryMinus = 480
	precTimes      = 400
	precPlus       = 310
	precAtom       = 1000
)

var operators = map[string]operator{
	"CompoundExpression": {"; ", 10, infix},
	"Set":                {" = ", 40, infix},
	"SetDelayed":         {" := ", 40, infix},
	"ReplaceAll":         {" /. ", 110, infix},
	"Rule":               {" -> ", 120, infix},
	"RuleDelayed":        {" :> ", 120, infix},
	"Condition":          {" /; ", 130, infix},
	"StringExpression":   {" ~~ ", 135, infix},
	"Alternatives":       {" | ", 160, infix},
	"Repeated":           {"..", 170, postfix},
	"RepeatedNull":       {"...", 170, postfix},
	"Or":                 {" || ", 215, infix},
	"And":                {" && ", 215, infix},
	"Not":                {"!", 230, prefix},
	"Equal":              {" == ", 290, infix},
	"Unequal":            {" != ", 290, infix},
	"Less":               {" < ", 290, infix},
	"Greater":            {" > ", 290, infix},
	"LessEqual":          {" <= ", 290, infix},
	"GreaterEqual":       {" >= ", 290, infix},
	"SameQ":              {" === ", 290, infix},
	"UnsameQ":            {" =!= ", 290, infix},
	"Power":              {" ^ ", 590, infix},
	"StringJoin":         {" <> ", 600, infix},
}

// OutputForm renders e the way results are shown to users.
func OutputForm(e Expr) string { return Format(e, OutputFormat) }

// InputForm renders e as parseable input text.
func InputForm(e Expr) string { return Format(e, InputFormat) }

// FullForm renders e without any operator notation.
func FullForm(e Expr) string { return Format(e, FullFormat) }

// Format renders e in the requested form.
func Format(e Expr, form Form) string {
	var b strings.Builder
	if form == FullFormat {
		writeFull(&b, e)
		return b.String()
	}
	writeExpr(&b, e, form, 0)
	return b.String()
}

func writeFull(b *strings.Builder, e Expr) {
	switch v := e.(type) {
	case String:
		b.WriteString(quote(v.Value))
	case Rational:
		b.WriteString("Rational[")
		b.WriteString(v.v.Num().String())
		b.WriteString(", ")
		b.WriteString(v.v.Denom().String())
		b.WriteString("]")
	case *Expression:
		writeFull(b, v.head)
		b.WriteByte('[')
		for i, leaf := range v.leaves {
			if i > 0 {
				b.WriteString(", ")
			}
			writeFull(b, leaf)
		}
		b.WriteByte(']')
	default:
		b.WriteString(atomText(e, FullFormat))
	}
}

func atomText(e Expr, form Form) string {
	switch v := e.(type) {
	case Symbol:
		return v.Name
	case String:
		if form == OutputFormat {
			return v.Value
		}
		return quote(v.Value)
	case Integer:
		return v.value().String()
	case Rational:
		return v.String()
	case Real:
		return formatReal(v.Value)
	}
	return ""
}

func formatReal(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case math.IsNaN(v):
		return "Indeterminate"
	}
	text := strconv.FormatFloat(v, 'g', 16, 64)
	if !strings.ContainsAny(text, ".e") {
		text += "."
	}
	return text
}

func atomPrecedence(e Expr) int {
	switch v := e.(type) {
	case Integer:
		if v.Sign() < 0 {
			return precUnaryMinus
		}
	case Real:
		if v.Value < 0 {
			return precUnaryMinus
		}
	case Rational:
		if v.v.Sign() < 0 {
			return precUnaryMinus
		}
		return precTimes
	}
	return precAtom
}

func precedenceOf(e Expr) int {
	n, ok := e.(*Expression)
	if !ok {
		return atomPrecedence(e)
	}
	name := HeadName(n)
	switch name {
	case "Plus":
		if n.Len() >= 2 {
			return precPlus
		}
	case "Times":
		if n.Len() >= 2 {
			if isMinusOne(n.leaves[0]) {
				return precUnaryMinus
			}
			return precTimes
		}
	}
	if op, ok := operators[name]; ok && operatorApplies(name, op, n) {
		return op.precedence
	}
	return precAtom
}

func operatorApplies(name string, op operator, n *Expression) bool {
	switch op.kind {
	case prefix, postfix:
		return n.Len() == 1
	}
	switch name {
	case "Set", "SetDelayed", "Rule", "RuleDelayed", "ReplaceAll", "Condition", "Power",
		"SameQ", "UnsameQ":
		return n.Len() == 2
	}
	return n.Len() >= 2
}

func writeExpr(b *strings.Builder, e Expr, form Form, parent int) {
	prec := precedenceOf(e)
	wrap := prec < parent
	if wrap {
		b.WriteByte('(')
	}
	n, ok := e.(*Expression)
	if !ok {
		b.WriteString(atomText(e, form))
	} else {
		writeNormal(b, n, form, prec)
	}
	if wrap {
		b.WriteByte(')')
	}
}

func writeNormal(b *strings.Builder, n *Expression, form Form, prec int) {
	name := HeadName(n)
	switch name {
	case "List":
		b.WriteByte('{')
		writeLeaves(b, n.leaves, form)
		b.WriteByte('}')
		return
	case "FullForm":
		if n.Len() == 1 {
			writeFull(b, n.leaves[0])
			return
		}
	case "InputForm":
		if n.Len() == 1 {
			writeExpr(b, n.leaves[0], InputFormat, 0)
			return
		}
	case "OutputForm":
		if n.Len() == 1 {
			writeExpr(b, n.leaves[0], OutputFormat, 0)
			return
		}
	case "Plus":
		if n.Len() >= 2 {
			writePlus(b, n, form)
			return
		}
	case "Times":
		if n.Len() >= 2 {
			writeTimes(b, n, form)
			return
		}
	case "Blank", "BlankSequence", "BlankNullSequence":
		if n.Len() <= 1 {
			writeBlank(b, n, form)
			return
		}
	case "Pattern":
		if n.Len() == 2 {
			if sym, ok := n.leaves[0].(Symbol); ok {
				b.WriteString(sym.Name)
				if isBlankLike(n.leaves[1]) {
					writeBlank(b, n.leaves[1].(*Expression), form)
				} else {
					b.WriteByte(':')
					writeExpr(b, n.leaves[1], form, precAtom)
				}
				return
			}
		}
	case "MessageName":
		if n.Len() != 2 {
			break
		}
		if tag, ok := AsString(n.leaves[1]); ok {
			writeExpr(b, n.leaves[0], form, precAtom)
			b.WriteString("::")
			b.WriteString(tag)
			return
		}
	case "Optional":
		if n.Len() == 1 {
			writeExpr(b, n.leaves[0], form, precAtom)
			b.WriteByte('.')
			return
		}
		if n.Len() == 2 {
			writeExpr(b, n.leaves[0], form, precAtom)
			b.WriteByte(':')
			writeExpr(b, n.leaves[1], form, precAtom)
			return
		}
	}

	if op, ok := operators[name]; ok && operatorApplies(name, op, n) {
		symbol := op.symbol
		if name == "Power" && form == InputFormat {
			symbol = "^"
		}
		switch op.kind {
		case prefix:
			b.WriteString(symbol)
			writeExpr(b, n.leaves[0], form, prec+1)
		case postfix:
			writeExpr(b, n.leaves[0], form, prec+1)
			b.WriteString(symbol)
		default:
			for i, leaf := range n.leaves {
				if i > 0 {
					b.WriteString(symbol)
				}
				writeExpr(b, leaf, form, prec+1)
			}
		}
		return
	}

	writeExpr(b, n.head, form, precAtom)
	b.WriteByte('[')
	writeLeaves(b, n.leaves, form)
	b.WriteByte(']')
}

func writeLeaves(b *strings.Builder, leaves []Expr, form Form) {
	for i, leaf := range leaves {
		if i > 0 {
			b.WriteString(", ")
		}
		writeExpr(b, leaf, form, 0)
	}
}

func writePlus(b *strings.Builder, n *Expression, form Form) {
	for i, leaf := range n.leaves {
		if i == 0 {
			writeExpr(b, leaf, form, precPlus+1)
			continue
		}
		if negated, ok := negate(leaf); ok {
			b.WriteString(" - ")
			writeExpr(b, negated, form, precPlus+1)
			continue
		}
		b.WriteString(" + ")
		writeExpr(b, leaf, form, precPlus+1)
	}
}

func writeTimes(b *strings.Builder, n *Expression, form Form) {
	leaves := n.leaves
	if isMinusOne(leaves[0]) {
		b.WriteByte('-')
		rest := leaves[1:]
		if len(rest) == 1 {
			writeExpr(b, rest[0], form, precUnaryMinus+1)
			return
		}
		writeTimes(b, &Expression{head: n.head, leaves: rest}, form)
		return
	}
	separator := " "
	if form == InputFormat {
		separator = "*"
	}
	var numer, denom []Expr
	for _, leaf := range leaves {
		if base, ok := reciprocal(leaf); ok {
			denom = append(denom, base)
			continue
		}
		numer = append(numer, leaf)
	}
	if len(numer) == 0 {
		numer = []Expr{Int(1)}
	}
	for i, leaf := range numer {
		if i > 0 {
			b.WriteString(separator)
		}
		writeExpr(b, leaf, form, precTimes+1)
	}
	for _, leaf := range denom {
		b.WriteString(" / ")
		writeExpr(b, leaf, form, precTimes+1)
	}
}

func writeBlank(b *strings.Builder, n *Expression, form Form) {
	switch HeadName(n) {
	case "Blank":
		b.WriteString("_")
	case "BlankSequence":
		b.WriteString("__")
	default:
		b.WriteString("___")
	}
	if n.Len() == 1 {
		writeExpr(b, n.leaves[0], form, precAtom)
	}
}

func isBlankLike(e Expr) bool {
	return HasForm(e, "Blank", 0, 1) || HasForm(e, "BlankSequence", 0, 1) || HasForm(e, "BlankNullSequence", 0, 1)
}

func isMinusOne(e Expr) bool {
	v, ok := AsInt(e)
	return ok && v == -1
}

// reciprocal recognizes Power[x, -1].
func reciprocal(e Expr) (Expr, bool) {
	if !HasForm(e, "Power", 2) {
		return nil, false
	}
	n := e.(*Expression)
	if !isMinusOne(n.leaves[1]) {
		return nil, false
	}
	return n.leaves[0], true
}

// negate returns -e for negative numbers and Times[-k, ...] terms.
func negate(e Expr) (Expr, bool) {
	switch v := e.(type) {
	case Integer:
		if v.Sign() < 0 {
			return BigInt(new(big.Int).Neg(v.value())), true
		}
	case Real:
		if v.Value < 0 {
			return Float(-v.Value), true
		}
	case Rational:
		if v.v.Sign() < 0 {
			return Rat(new(big.Rat).Neg(v.v)), true
		}
	case *Expression:
		if HasForm(v, "Times") && v.Len() >= 2 {
			first, ok := negate(v.leaves[0])
			if !ok {
				return nil, false
			}
			rest := v.leaves[1:]
			if one, isInt := AsInt(first); isInt && one == 1 {
				if len(rest) == 1 {
					return rest[0], true
				}
				return New(v.head, rest...), true
			}
			return New(v.head, append([]Expr{first}, rest...)...), true
		}
	}
	return nil, false
}
