package builtin

import (
	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
)

func arithmeticBuiltins() []eval.Builtin {
	return []eval.Builtin{
		{Name: "Plus", Attributes: eval.Flat | eval.Listable | eval.OneIdentity | eval.Orderless, Apply: applyPlus},
		{Name: "Times", Attributes: eval.Flat | eval.Listable | eval.OneIdentity | eval.Orderless, Apply: applyTimes},
		{
			Name:       "Power",
			Attributes: eval.Listable | eval.OneIdentity,
			Apply:      applyPower,
			Messages: map[string]string{
				"infy":  "Infinite expression `1` encountered.",
				"indet": "Indeterminate expression `1` encountered.",
			},
		},
		{Name: "Minus", Attributes: eval.Listable, Apply: applyMinus},
		{Name: "Subtract", Attributes: eval.Listable, Apply: applySubtract},
		{Name: "Divide", Attributes: eval.Listable, Apply: applyDivide},
		{Name: "Max", Attributes: eval.Flat | eval.OneIdentity | eval.Orderless, Apply: extremum(1)},
		{Name: "Min", Attributes: eval.Flat | eval.OneIdentity | eval.Orderless, Apply: extremum(-1)},
		{Name: "Equal", Apply: applyEqual(false)},
		{Name: "Unequal", Apply: applyEqual(true)},
		{Name: "Less", Apply: applyInequality(func(c int) bool { return c < 0 })},
		{Name: "LessEqual", Apply: applyInequality(func(c int) bool { return c <= 0 })},
		{Name: "Greater", Apply: applyInequality(func(c int) bool { return c > 0 })},
		{Name: "GreaterEqual", Apply: applyInequality(func(c int) bool { return c >= 0 })},
		{Name: "ComplexInfinity"},
		{Name: "Indeterminate"},
		{Name: "Infinity"},
		{Name: "DirectedInfinity"},
	}
}

// splitCoefficient separates the numeric factor of a term: 3 x -> 3, x.
func splitCoefficient(e expr.Expr) (expr.Expr, expr.Expr) {
	if !expr.HasForm(e, "Times") {
		return expr.Int(1), e
	}
	n := e.(*expr.Expression)
	if n.Len() < 2 || !expr.IsNumber(n.Leaf(0)) {
		return expr.Int(1), e
	}
	rest := n.Leaves()[1:]
	if len(rest) == 1 {
		return n.Leaf(0), rest[0]
	}
	return n.Leaf(0), expr.Call("Times", rest...)
}

// splitPower separates base and exponent: x^2 -> x, 2.
func splitPower(e expr.Expr) (expr.Expr, expr.Expr) {
	if expr.HasForm(e, "Power", 2) {
		n := e.(*expr.Expression)
		return n.Leaf(0), n.Leaf(1)
	}
	return e, expr.Int(1)
}

func withCoefficient(coeff, rest expr.Expr) expr.Expr {
	if isOne(coeff) {
		return rest
	}
	if expr.HasForm(rest, "Times") {
		return expr.Call("Times", append([]expr.Expr{coeff}, rest.(*expr.Expression).Leaves()...)...)
	}
	return expr.Call("Times", coeff, rest)
}

func applyPlus(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	var number expr.Expr
	var coeffs, rests []expr.Expr
	for _, leaf := range call.Leaves() {
		if expr.IsNumber(leaf) {
			if number == nil {
				number = leaf
			} else {
				number = addNumbers(number, leaf)
			}
			continue
		}
		coeff, rest := splitCoefficient(leaf)
		merged := false
		for i := range rests {
			if rests[i].SameQ(rest) {
				coeffs[i] = addNumbers(coeffs[i], coeff)
				merged = true
				break
			}
		}
		if !merged {
			coeffs = append(coeffs, coeff)
			rests = append(rests, rest)
		}
	}

	var leaves []expr.Expr
	if number != nil && (!isZero(number) || len(rests) == 0) {
		leaves = append(leaves, number)
	}
	for i, rest := range rests {
		if isZero(coeffs[i]) {
			continue
		}
		leaves = append(leaves, withCoefficient(coeffs[i], rest))
	}
	switch len(leaves) {
	case 0:
		return expr.Int(0)
	case 1:
		return leaves[0]
	}
	return expr.Call("Plus", leaves...)
}

func applyTimes(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	var number expr.Expr
	var bases, exponents []expr.Expr
	for _, leaf := range call.Leaves() {
		if expr.IsNumber(leaf) {
			if number == nil {
				number = leaf
			} else {
				number = mulNumbers(number, leaf)
			}
			continue
		}
		base, exponent := splitPower(leaf)
		merged := false
		for i := range bases {
			if bases[i].SameQ(base) {
				if expr.IsNumber(exponents[i]) && expr.IsNumber(exponent) {
					exponents[i] = addNumbers(exponents[i], exponent)
				} else {
					exponents[i] = expr.Call("Plus", exponents[i], exponent)
				}
				merged = true
				break
			}
		}
		if !merged {
			bases = append(bases, base)
			exponents = append(exponents, exponent)
		}
	}
	if number != nil && isExact(number) && isZero(number) {
		return number
	}

	var leaves []expr.Expr
	if number != nil && (!isOne(number) || len(bases) == 0) {
		leaves = append(leaves, number)
	}
	for i, base := range bases {
		switch {
		case isExact(exponents[i]) && isZero(exponents[i]):
			continue
		case isOne(exponents[i]):
			leaves = append(leaves, base)
		default:
			leaves = append(leaves, expr.Call("Power", base, exponents[i]))
		}
	}
	switch len(leaves) {
	case 0:
		return expr.Int(1)
	case 1:
		return leaves[0]
	}
	return expr.Call("Times", leaves...)
}

func applyPower(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if call.Len() != 2 {
		return nil
	}
	base, exponent := call.Leaf(0), call.Leaf(1)
	if expr.IsNumber(base) && expr.IsNumber(exponent) {
		if isExact(base) && isZero(base) && isExact(exponent) {
			r, _ := expr.ToRat(exponent)
			switch r.Sign() {
			case -1:
				shown := expr.Expr(call)
				if isMinusOne(exponent) {
					shown = expr.Call("Times", expr.Int(1), call)
				}
				ev.Message("Power", "infy", shown)
				return expr.Sym("ComplexInfinity")
			case 0:
				ev.Message("Power", "indet", call)
				return expr.Sym("Indeterminate")
			}
		}
		if result, ok := powNumbers(base, exponent); ok {
			return result
		}
		return nil
	}
	switch {
	case isOne(exponent):
		return base
	case isExact(exponent) && isZero(exponent):
		return expr.Int(1)
	case isOne(base):
		return base
	}
	if _, ok := exponent.(expr.Integer); ok {
		if expr.HasForm(base, "Power", 2) {
			inner := base.(*expr.Expression)
			if expr.IsNumber(inner.Leaf(1)) {
				return expr.Call("Power", inner.Leaf(0), mulNumbers(inner.Leaf(1), exponent))
			}
		}
		if expr.HasForm(base, "Times") {
			factors := base.(*expr.Expression).Leaves()
			out := make([]expr.Expr, len(factors))
			for i, f := range factors {
				out[i] = expr.Call("Power", f, exponent)
			}
			return expr.Call("Times", out...)
		}
	}
	return nil
}

func applyMinus(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if call.Len() != 1 {
		return nil
	}
	return expr.Call("Times", expr.Int(-1), call.Leaf(0))
}

func applySubtract(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if call.Len() != 2 {
		return nil
	}
	return expr.Call("Plus", call.Leaf(0), expr.Call("Times", expr.Int(-1), call.Leaf(1)))
}

func applyDivide(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if call.Len() != 2 {
		return nil
	}
	return expr.Call("Times", call.Leaf(0), expr.Call("Power", call.Leaf(1), expr.Int(-1)))
}

func extremum(sign int) eval.BuiltinFunc {
	return func(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
		leaves := call.Leaves()
		if len(leaves) == 1 && expr.HasForm(leaves[0], "List") {
			leaves = leaves[0].(*expr.Expression).Leaves()
		}
		if len(leaves) == 0 {
			return nil
		}
		best := leaves[0]
		for _, leaf := range leaves {
			if !expr.IsNumber(leaf) {
				return nil
			}
			if expr.Compare(leaf, best)*sign > 0 {
				best = leaf
			}
		}
		return best
	}
}

type truth int

const (
	unknown truth = iota
	yes
	no
)

func equalAtoms(a, b expr.Expr) truth {
	if a.SameQ(b) {
		return yes
	}
	if expr.IsNumber(a) && expr.IsNumber(b) {
		if expr.Compare(a, b) == 0 {
			return yes
		}
		return no
	}
	_, aStr := a.(expr.String)
	_, bStr := b.(expr.String)
	if (aStr && (bStr || expr.IsNumber(b))) || (bStr && expr.IsNumber(a)) {
		return no
	}
	return unknown
}

func applyEqual(negate bool) eval.BuiltinFunc {
	return func(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
		if call.Len() < 2 {
			return expr.True
		}
		all := yes
		leaves := call.Leaves()
		for i := 1; i < len(leaves); i++ {
			switch equalAtoms(leaves[i-1], leaves[i]) {
			case no:
				all = no
			case unknown:
				if all == yes {
					all = unknown
				}
			}
		}
		switch all {
		case yes:
			return expr.Bool(!negate)
		case no:
			return expr.Bool(negate)
		}
		return nil
	}
}

func applyInequality(holds func(int) bool) eval.BuiltinFunc {
	return func(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
		leaves := call.Leaves()
		for _, leaf := range leaves {
			if !expr.IsNumber(leaf) {
				return nil
			}
		}
		for i := 1; i < len(leaves); i++ {
			if !holds(expr.Compare(leaves[i-1], leaves[i])) {
				return expr.False
			}
		}
		return expr.True
	}
}
