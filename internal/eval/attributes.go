package eval

import (
	"sort"

	"github.com/mathics/gomathics/internal/expr"
)

// Attribute is a bit set of evaluation attributes carried by a symbol.
type Attribute uint32

const (
	HoldFirst Attribute = 1 << iota
	HoldRest
	Listable
	Flat
	OneIdentity
	Orderless
	Protected
	ReadProtected
	Locked

	HoldAll = HoldFirst | HoldRest
)

var attributeNames = map[Attribute]string{
	HoldFirst:     "HoldFirst",
	HoldRest:      "HoldRest",
	Listable:      "Listable",
	Flat:          "Flat",
	OneIdentity:   "OneIdentity",
	Orderless:     "Orderless",
	Protected:     "Protected",
	ReadProtected: "ReadProtected",
	Locked:        "Locked",
}

// Has reports whether all bits of flag are set.
func (a Attribute) Has(flag Attribute) bool { return a&flag == flag }

// Names lists the attribute names in alphabetical order. HoldAll is reported
// instead of HoldFirst plus HoldRest.
func (a Attribute) Names() []string {
	var names []string
	if a.Has(HoldAll) {
		names = append(names, "HoldAll")
		a &^= HoldAll
	}
	for flag, name := range attributeNames {
		if a.Has(flag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Expr renders the attributes as a List of symbols.
func (a Attribute) Expr() expr.Expr {
	names := a.Names()
	leaves := make([]expr.Expr, len(names))
	for i, name := range names {
		leaves[i] = expr.Sym(name)
	}
	return expr.List(leaves...)
}

// ParseAttribute maps an attribute name onto its flag.
func ParseAttribute(name string) (Attribute, bool) {
	if name == "HoldAll" {
		return HoldAll, true
	}
	for flag, candidate := range attributeNames {
		if candidate == name {
			return flag, true
		}
	}
	return 0, false
}
