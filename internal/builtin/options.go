package builtin

import (
	"sort"

	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
)

func optionBuiltins() []eval.Builtin {
	return []eval.Builtin{
		{
			Name:     "Options",
			Apply:    applyOptions,
			Messages: map[string]string{"options": "`1` is not a valid list of option rules."},
		},
		{Name: "OptionValue", Apply: applyOptionValue},
		{Name: "OptionsPattern"},
		{Name: "Default", Apply: applyDefault},
	}
}

func applyOptions(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	name, ok := expr.AsSymbol(call.Leaf(0))
	if !ok {
		ev.Message("Options", "sym", call.Leaf(0), expr.Int(1))
		return nil
	}
	return optionList(ev.Definitions.Options(name))
}

// optionList renders options as a sorted list of delayed rules so that the
// result can be assigned to Options again.
func optionList(options map[string]expr.Expr) expr.Expr {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	rules := make([]expr.Expr, len(names))
	for i, name := range names {
		rules[i] = expr.Call("RuleDelayed", expr.Sym(name), options[name])
	}
	return expr.List(rules...)
}

// assignOptions handles Options[f] = rules.
func assignOptions(ev *eval.Evaluation, f, rhs expr.Expr) expr.Expr {
	name, ok := expr.AsSymbol(f)
	if !ok {
		ev.Message("Options", "sym", f, expr.Int(1))
		return rhs
	}
	items := []expr.Expr{rhs}
	if expr.HasForm(rhs, "List") {
		items = rhs.(*expr.Expression).Leaves()
	}
	options := make(map[string]expr.Expr, len(items))
	for _, item := range items {
		if !expr.HasForm(item, "Rule", 2) && !expr.HasForm(item, "RuleDelayed", 2) {
			ev.Message("Options", "options", rhs)
			return rhs
		}
		rule := item.(*expr.Expression)
		key, ok := optionKey(rule.Leaf(0))
		if !ok {
			ev.Message("Options", "options", rhs)
			return rhs
		}
		options[key] = rule.Leaf(1)
	}
	ev.Definitions.SetOptions(name, options)
	return rhs
}

func applyOptionValue(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 2) {
		return nil
	}
	key := call.Leaf(call.Len() - 1)
	name, ok := optionKey(key)
	if !ok {
		ev.Message("OptionValue", "sym", key, expr.Int(int64(call.Len())))
		return nil
	}
	if call.Len() == 1 {
		return nil
	}
	if v, ok := ev.OptionDefault(call.Leaf(0), name); ok {
		return v
	}
	ev.Message("OptionValue", "optnf", key)
	return nil
}

func applyDefault(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if call.Len() == 0 || call.Len() > 3 {
		ev.Message("Default", "argb", expr.Sym("Default"), expr.Int(int64(call.Len())), expr.Int(1), expr.Int(3))
		return nil
	}
	indices := make([]int, 0, call.Len()-1)
	for i, leaf := range call.Leaves()[1:] {
		n, ok := expr.AsInt(leaf)
		if !ok || n < 1 {
			ev.Message("Default", "intp", expr.Int(int64(i+2)), call)
			return nil
		}
		indices = append(indices, int(n))
	}
	name, ok := expr.AsSymbol(call.Leaf(0))
	if !ok {
		ev.Message("Default", "sym", call.Leaf(0), expr.Int(1))
		return nil
	}
	if v, ok := ev.DefaultValue(name, indices...); ok {
		return eval.Done(v)
	}
	return nil
}

func optionKey(e expr.Expr) (string, bool) {
	if s, ok := expr.AsSymbol(e); ok {
		return s, true
	}
	return expr.AsString(e)
}

// splitOptions separates trailing option rules naming options of fn from
// the positional arguments.
func splitOptions(ev *eval.Evaluation, fn string, leaves []expr.Expr) ([]expr.Expr, []expr.Expr) {
	known := ev.Definitions.Options(fn)
	end := len(leaves)
	for end > 0 {
		leaf := leaves[end-1]
		if !expr.HasForm(leaf, "Rule", 2) && !expr.HasForm(leaf, "RuleDelayed", 2) {
			break
		}
		key, ok := optionKey(leaf.(*expr.Expression).Leaf(0))
		if _, isOption := known[key]; !ok || !isOption {
			break
		}
		end--
	}
	return leaves[:end], leaves[end:]
}

// optionOrDefault finds option key among opts, falling back to the
// registered default of fn.
func optionOrDefault(ev *eval.Evaluation, fn string, opts []expr.Expr, key string) (expr.Expr, bool) {
	for _, opt := range opts {
		rule := opt.(*expr.Expression)
		if k, ok := optionKey(rule.Leaf(0)); ok && k == key {
			return rule.Leaf(1), true
		}
	}
	v, ok := ev.Definitions.Options(fn)[key]
	return v, ok
}
