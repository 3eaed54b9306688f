package expr

import (
	"math/big"
	"sort"
	"strings"
)

// Compare orders expressions canonically: numbers by value, then strings,
// then symbols, then normal expressions. It returns -1, 0 or +1.
func Compare(a, b Expr) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case Integer, Rational, Real:
		return compareNumbers(av, b)
	case String:
		return strings.Compare(av.Value, b.(String).Value)
	case Symbol:
		return strings.Compare(av.Name, b.(Symbol).Name)
	case *Expression:
		bv := b.(*Expression)
		if c := Compare(av.head, bv.head); c != 0 {
			return c
		}
		if len(av.leaves) != len(bv.leaves) {
			if len(av.leaves) < len(bv.leaves) {
				return -1
			}
			return 1
		}
		for i := range av.leaves {
			if c := Compare(av.leaves[i], bv.leaves[i]); c != 0 {
				return c
			}
		}
	}
	return 0
}

// Sort sorts leaves in canonical order, in place.
func Sort(leaves []Expr) {
	sort.SliceStable(leaves, func(i, j int) bool {
		return Compare(leaves[i], leaves[j]) < 0
	})
}

func rank(e Expr) int {
	switch e.(type) {
	case Integer, Rational, Real:
		return 0
	case String:
		return 1
	case Symbol:
		return 2
	}
	return 3
}

func compareNumbers(a, b Expr) int {
	fa, aExact := exactValue(a)
	fb, bExact := exactValue(b)
	if aExact && bExact {
		return fa.Cmp(fb)
	}
	x, y := ToFloat(a), ToFloat(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func exactValue(e Expr) (*big.Rat, bool) {
	switch v := e.(type) {
	case Integer:
		return new(big.Rat).SetInt(v.value()), true
	case Rational:
		return v.Big(), true
	}
	return nil, false
}

// ToFloat converts a numeric atom to float64. Non numbers give zero.
func ToFloat(e Expr) float64 {
	switch v := e.(type) {
	case Integer:
		f, _ := new(big.Float).SetInt(v.value()).Float64()
		return f
	case Rational:
		f, _ := v.v.Float64()
		return f
	case Real:
		return v.Value
	}
	return 0
}

// ToRat converts an exact numeric atom to a big.Rat.
func ToRat(e Expr) (*big.Rat, bool) { return exactValue(e) }
