// Package expr defines the symbolic expression tree shared by the parser,
// the evaluator and the built-in functions.
//
// Expressions are immutable once built. Constructors copy the slices they
// are handed so callers may keep reusing their buffers.
package expr

import (
	"math/big"
	"strings"
)

// Expr is any node of an expression tree.
type Expr interface {
	// Head returns the head of the expression: the symbol String for a
	// string atom, the head of a normal expression, and so on.
	Head() Expr
	// SameQ reports structural identity.
	SameQ(other Expr) bool
	// String renders the expression in InputForm.
	String() string
}

// Symbol is a named atom.
type Symbol struct {
	Name string
}

// Sym builds a symbol.
func Sym(name string) Symbol { return Symbol{Name: name} }

func (s Symbol) Head() Expr { return Symbol{Name: "Symbol"} }

func (s Symbol) SameQ(other Expr) bool {
	o, ok := other.(Symbol)
	return ok && o.Name == s.Name
}

func (s Symbol) String() string { return s.Name }

// String is an immutable sequence of characters.
type String struct {
	Value string
}

// Str builds a string atom.
func Str(value string) String { return String{Value: value} }

func (s String) Head() Expr { return Symbol{Name: "String"} }

func (s String) SameQ(other Expr) bool {
	o, ok := other.(String)
	return ok && o.Value == s.Value
}

func (s String) String() string { return InputForm(s) }

// Integer is an arbitrary precision integer atom.
type Integer struct {
	v *big.Int
}

// Int builds an integer atom from a machine integer.
func Int(n int64) Integer { return Integer{v: big.NewInt(n)} }

// BigInt builds an integer atom. The value is copied.
func BigInt(n *big.Int) Integer { return Integer{v: new(big.Int).Set(n)} }

// Big returns a copy of the integer value.
func (i Integer) Big() *big.Int { return new(big.Int).Set(i.value()) }

// Int64 returns the value when it fits a machine integer.
func (i Integer) Int64() (int64, bool) {
	v := i.value()
	if !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

// Sign returns -1, 0 or +1.
func (i Integer) Sign() int { return i.value().Sign() }

func (i Integer) value() *big.Int {
	if i.v == nil {
		return new(big.Int)
	}
	return i.v
}

func (i Integer) Head() Expr { return Symbol{Name: "Integer"} }

func (i Integer) SameQ(other Expr) bool {
	o, ok := other.(Integer)
	return ok && o.value().Cmp(i.value()) == 0
}

func (i Integer) String() string { return i.value().String() }

// Rational is an exact fraction whose denominator is never one.
type Rational struct {
	v *big.Rat
}

// Rat builds an exact number, collapsing to Integer when possible.
func Rat(r *big.Rat) Expr {
	if r.IsInt() {
		return BigInt(r.Num())
	}
	return Rational{v: new(big.Rat).Set(r)}
}

// Big returns a copy of the fraction.
func (r Rational) Big() *big.Rat { return new(big.Rat).Set(r.v) }

func (r Rational) Head() Expr { return Symbol{Name: "Rational"} }

func (r Rational) SameQ(other Expr) bool {
	o, ok := other.(Rational)
	return ok && o.v.Cmp(r.v) == 0
}

func (r Rational) String() string { return r.v.Num().String() + "/" + r.v.Denom().String() }

// Real is a machine precision floating point atom.
type Real struct {
	Value float64
}

// Float builds a real atom.
func Float(v float64) Real { return Real{Value: v} }

func (r Real) Head() Expr { return Symbol{Name: "Real"} }

func (r Real) SameQ(other Expr) bool {
	o, ok := other.(Real)
	return ok && o.Value == r.Value
}

func (r Real) String() string { return formatReal(r.Value) }

// Expression is a normal expression head[leaf1, leaf2, ...].
type Expression struct {
	head   Expr
	leaves []Expr
}

// New builds a normal expression.
func New(head Expr, leaves ...Expr) *Expression {
	copied := make([]Expr, len(leaves))
	copy(copied, leaves)
	return &Expression{head: head, leaves: copied}
}

// Call builds a normal expression whose head is the named symbol.
func Call(head string, leaves ...Expr) *Expression {
	return New(Sym(head), leaves...)
}

// List builds List[items...].
func List(items ...Expr) *Expression { return Call("List", items...) }

// StringList builds a List of string atoms.
func StringList(items []string) *Expression {
	leaves := make([]Expr, len(items))
	for i, item := range items {
		leaves[i] = Str(item)
	}
	return &Expression{head: Sym("List"), leaves: leaves}
}

func (e *Expression) Head() Expr { return e.head }

// Leaves returns the argument slice. Callers must not modify it.
func (e *Expression) Leaves() []Expr { return e.leaves }

// Len returns the number of leaves.
func (e *Expression) Len() int { return len(e.leaves) }

// Leaf returns the i-th leaf (zero based).
func (e *Expression) Leaf(i int) Expr { return e.leaves[i] }

// WithLeaves returns a copy of e with the same head and new leaves.
func (e *Expression) WithLeaves(leaves []Expr) *Expression {
	return New(e.head, leaves...)
}

func (e *Expression) SameQ(other Expr) bool {
	o, ok := other.(*Expression)
	if !ok || len(o.leaves) != len(e.leaves) || !e.head.SameQ(o.head) {
		return false
	}
	for i := range e.leaves {
		if !e.leaves[i].SameQ(o.leaves[i]) {
			return false
		}
	}
	return true
}

func (e *Expression) String() string { return InputForm(e) }

// Common symbols.
var (
	Null    = Sym("Null")
	True    = Sym("True")
	False   = Sym("False")
	Failed  = Sym("$Failed")
	Aborted = Sym("$Aborted")
)

// Bool maps a Go bool onto True/False.
func Bool(v bool) Symbol {
	if v {
		return True
	}
	return False
}

// HeadName returns the name of e's head when it is a symbol. Atoms report
// their type name (String, Integer, Symbol...).
func HeadName(e Expr) string {
	if e == nil {
		return ""
	}
	if s, ok := e.Head().(Symbol); ok {
		return s.Name
	}
	return ""
}

// HasForm reports whether e is a normal expression with the named head and,
// when counts are given, one of those leaf counts.
func HasForm(e Expr, head string, counts ...int) bool {
	n, ok := e.(*Expression)
	if !ok || HeadName(n) != head {
		return false
	}
	if len(counts) == 0 {
		return true
	}
	for _, c := range counts {
		if n.Len() == c {
			return true
		}
	}
	return false
}

// AsString returns the value of a string atom.
func AsString(e Expr) (string, bool) {
	s, ok := e.(String)
	return s.Value, ok
}

// AsSymbol returns the name of a symbol atom.
func AsSymbol(e Expr) (string, bool) {
	s, ok := e.(Symbol)
	return s.Name, ok
}

// AsInt returns the value of an integer atom that fits in an int64.
func AsInt(e Expr) (int64, bool) {
	i, ok := e.(Integer)
	if !ok {
		return 0, false
	}
	return i.Int64()
}

// IsNull reports whether e is the symbol Null.
func IsNull(e Expr) bool { return Null.SameQ(e) }

// IsAtom reports whether e has no leaves.
func IsAtom(e Expr) bool {
	_, ok := e.(*Expression)
	return !ok
}

// IsNumber reports whether e is an Integer, Rational or Real atom.
func IsNumber(e Expr) bool {
	switch e.(type) {
	case Integer, Rational, Real:
		return true
	}
	return false
}

// Sequence returns the leaves of a Sequence[...] expression, or e alone.
func Sequence(e Expr) []Expr {
	if HasForm(e, "Sequence") {
		return e.(*Expression).Leaves()
	}
	return []Expr{e}
}

// Flatten splices nested occurrences of head into e, recursively.
func Flatten(e *Expression, head string) *Expression {
	changed := false
	out := make([]Expr, 0, len(e.leaves))
	for _, leaf := range e.leaves {
		if HasForm(leaf, head) {
			inner := Flatten(leaf.(*Expression), head)
			out = append(out, inner.leaves...)
			changed = true
			continue
		}
		out = append(out, leaf)
	}
	if !changed {
		return e
	}
	return &Expression{head: e.head, leaves: out}
}

// Walk calls fn on e and every sub-expression, heads included, depth first.
// Returning false from fn skips the children of that node.
func Walk(e Expr, fn func(Expr) bool) {
	if !fn(e) {
		return
	}
	n, ok := e.(*Expression)
	if !ok {
		return
	}
	Walk(n.head, fn)
	for _, leaf := range n.leaves {
		Walk(leaf, fn)
	}
}

// Contains reports whether a symbol with the given name appears in e.
func Contains(e Expr, name string) bool {
	found := false
	Walk(e, func(x Expr) bool {
		if found {
			return false
		}
		if s, ok := x.(Symbol); ok && s.Name == name {
			found = true
		}
		return true
	})
	return found
}

func quote(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
