package eval

import (
	"github.com/mathics/gomathics/internal/expr"
)

// substitute replaces bound pattern names in e. When the match consumed an
// OptionsPattern, OptionValue[name] is resolved against the supplied
// options first and the owner's defaults second.
func (ev *Evaluation) substitute(e expr.Expr, b Bindings) expr.Expr {
	switch x := e.(type) {
	case expr.Symbol:
		if v, ok := b.Get(x.Name); ok {
			return v
		}
		return x
	case *expr.Expression:
		if b.optionOwner != nil && expr.HasForm(x, "OptionValue", 1, 2) {
			if v, ok := ev.optionValue(x, b); ok {
				return v
			}
		}
		head := ev.substitute(x.Head(), b)
		leaves := make([]expr.Expr, x.Len())
		changed := !head.SameQ(x.Head())
		for i, leaf := range x.Leaves() {
			leaves[i] = ev.substitute(leaf, b)
			changed = changed || !leaves[i].SameQ(leaf)
		}
		if !changed {
			return x
		}
		return expr.New(head, leaves...)
	}
	return e
}

func (ev *Evaluation) optionValue(call *expr.Expression, b Bindings) (expr.Expr, bool) {
	owner := b.optionOwner
	nameExpr := call.Leaf(0)
	if call.Len() == 2 {
		owner, nameExpr = call.Leaf(0), call.Leaf(1)
	}
	name, ok := optionName(nameExpr)
	if !ok {
		return nil, false
	}
	for _, rule := range b.options {
		r := rule.(*expr.Expression)
		if n, ok := optionName(r.Leaf(0)); ok && n == name {
			return r.Leaf(1), true
		}
	}
	if v, ok := ev.OptionDefault(owner, name); ok {
		return v, true
	}
	ev.Message("OptionValue", "optnf", nameExpr, owner)
	return nil, false
}

// OptionDefault resolves the default of an option from an owner symbol's
// Options or from an explicit list of rules.
func (ev *Evaluation) OptionDefault(owner expr.Expr, name string) (expr.Expr, bool) {
	if sym, ok := expr.AsSymbol(owner); ok {
		v, ok := ev.Definitions.Options(sym)[name]
		return v, ok
	}
	for _, rule := range flattenOptions([]expr.Expr{owner}) {
		if !isOptionLike(rule) || expr.HasForm(rule, "List") {
			continue
		}
		r := rule.(*expr.Expression)
		if n, ok := optionName(r.Leaf(0)); ok && n == name {
			return r.Leaf(1), true
		}
	}
	return nil, false
}

func optionName(e expr.Expr) (string, bool) {
	if s, ok := expr.AsSymbol(e); ok {
		return s, true
	}
	return expr.AsString(e)
}
