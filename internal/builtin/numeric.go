package builtin

import (
	"math"
	"math/big"

	"github.com/mathics/gomathics/internal/expr"
)

// numeric arithmetic on Integer, Rational and Real atoms. Exact operands stay
// exact; any Real operand makes the result Real.

func isExact(e expr.Expr) bool {
	switch e.(type) {
	case expr.Integer, expr.Rational:
		return true
	}
	return false
}

func addNumbers(a, b expr.Expr) expr.Expr {
	if isExact(a) && isExact(b) {
		x, _ := expr.ToRat(a)
		y, _ := expr.ToRat(b)
		return expr.Rat(x.Add(x, y))
	}
	return expr.Float(expr.ToFloat(a) + expr.ToFloat(b))
}

func mulNumbers(a, b expr.Expr) expr.Expr {
	if isExact(a) && isExact(b) {
		x, _ := expr.ToRat(a)
		y, _ := expr.ToRat(b)
		return expr.Rat(x.Mul(x, y))
	}
	return expr.Float(expr.ToFloat(a) * expr.ToFloat(b))
}

func isZero(e expr.Expr) bool {
	switch v := e.(type) {
	case expr.Integer:
		return v.Sign() == 0
	case expr.Real:
		return v.Value == 0
	}
	return false
}

func isMinusOne(e expr.Expr) bool {
	n, ok := expr.AsInt(e)
	return ok && n == -1
}

func isOne(e expr.Expr) bool {
	n, ok := expr.AsInt(e)
	return ok && n == 1
}

// powNumbers computes base^exponent for numeric atoms. ok is false when the
// result is not a number (e.g. an irrational root) and the power should be
// left alone.
func powNumbers(base, exponent expr.Expr) (result expr.Expr, ok bool) {
	if k, isInt := exponent.(expr.Integer); isInt && isExact(base) {
		n, fits := k.Int64()
		if !fits {
			return nil, false
		}
		r, _ := expr.ToRat(base)
		neg := n < 0
		if neg {
			n = -n
		}
		num := new(big.Int).Exp(r.Num(), big.NewInt(n), nil)
		den := new(big.Int).Exp(r.Denom(), big.NewInt(n), nil)
		if neg {
			num, den = den, num
		}
		if den.Sign() == 0 {
			return nil, false
		}
		if den.Sign() < 0 {
			num.Neg(num)
			den.Neg(den)
		}
		return expr.Rat(new(big.Rat).SetFrac(num, den)), true
	}
	if isExact(base) && isExact(exponent) {
		return nil, false
	}
	v := math.Pow(expr.ToFloat(base), expr.ToFloat(exponent))
	if math.IsNaN(v) {
		return nil, false
	}
	return expr.Float(v), true
}
