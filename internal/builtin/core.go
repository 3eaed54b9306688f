package builtin

import (
	"strings"

	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
)

func coreBuiltins() []eval.Builtin {
	return []eval.Builtin{
		{Name: "Set", Attributes: eval.HoldFirst, Apply: applySet},
		{Name: "SetDelayed", Attributes: eval.HoldAll, Apply: applySetDelayed},
		{Name: "Clear", Attributes: eval.HoldAll, Apply: applyClear},
		{Name: "CompoundExpression", Attributes: eval.HoldAll, Apply: applyCompound},
		{Name: "Print", Apply: applyPrint},
		{Name: "List", Attributes: eval.Locked},
		{Name: "Rule"},
		{Name: "RuleDelayed", Attributes: eval.HoldRest},
		{
			Name:  "ReplaceAll",
			Apply: applyReplaceAll,
			Messages: map[string]string{
				"reps": "`1` is neither a list of replacement rules nor a valid dispatch table, and so cannot be used for replacing.",
			},
		},
		{Name: "Head", Apply: applyHead},
		{Name: "Length", Apply: applyLength},
		{Name: "Hold", Attributes: eval.HoldAll},
		{Name: "HoldPattern", Attributes: eval.HoldAll},
		{Name: "Evaluate", Apply: applyEvaluate},
		{Name: "If", Attributes: eval.HoldRest, Apply: applyIf},
		{Name: "SameQ", Apply: applySameQ(false)},
		{Name: "UnsameQ", Apply: applySameQ(true)},
		{Name: "Not", Apply: applyNot},
		{Name: "And", Attributes: eval.HoldAll | eval.Flat | eval.OneIdentity, Apply: applyLogic("And")},
		{Name: "Or", Attributes: eval.HoldAll | eval.Flat | eval.OneIdentity, Apply: applyLogic("Or")},
		{Name: "True"},
		{Name: "False"},
		{Name: "Null"},
		{Name: "$Failed"},
		{Name: "$Aborted"},
		{Name: "Attributes", Attributes: eval.HoldAll | eval.Listable, Apply: applyAttributes},
		{
			Name:       "SetAttributes",
			Attributes: eval.HoldFirst,
			Apply:      applySetAttributes,
			Messages:   map[string]string{"unknownattr": "`1` is not a known attribute."},
		},
		{Name: "FullForm"},
		{Name: "InputForm"},
		{Name: "OutputForm"},
		{Name: "Sequence"},
		{Name: "MessageName", Attributes: eval.HoldFirst},
		{Name: "Pattern", Attributes: eval.HoldFirst},
		{Name: "Blank"},
		{Name: "BlankSequence"},
		{Name: "BlankNullSequence"},
		{Name: "Optional"},
		{Name: "Condition", Attributes: eval.HoldAll},
		{Name: "Alternatives"},
		{Name: "Repeated"},
		{Name: "RepeatedNull"},
		{Name: "Except"},
		{Name: "Shortest"},
		{Name: "Longest"},
		{Name: "In", Attributes: eval.Listable},
		{Name: "InString", Attributes: eval.Listable},
		{Name: "Out", Attributes: eval.Listable, Apply: applyOut},
		{Name: "MessageList"},
		{
			Name: "General",
			Messages: map[string]string{
				"newsym": "Symbol `1` is new.",
			},
		},
	}
}

func applySet(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 2, 2) {
		return nil
	}
	return eval.Done(assign(ev, "Set", call.Leaf(0), call.Leaf(1), false))
}

func applySetDelayed(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 2, 2) {
		return nil
	}
	if result := assign(ev, "SetDelayed", call.Leaf(0), call.Leaf(1), true); expr.Failed.SameQ(result) {
		return result
	}
	return expr.Null
}

// assign stores lhs = rhs and returns the value Set evaluates to.
func assign(ev *eval.Evaluation, setter string, lhs, rhs expr.Expr, delayed bool) expr.Expr {
	defs := ev.Definitions
	switch target := lhs.(type) {
	case expr.Symbol:
		if defs.Attributes(target.Name).Has(eval.Protected) {
			ev.Message(setter, "wrsym", target)
			return rhs
		}
		defs.SetOwnValue(target.Name, rhs)
		return rhs
	case *expr.Expression:
		name := expr.HeadName(target)
		if _, ok := target.Head().(expr.Symbol); !ok {
			ev.Message(setter, "setraw", lhs)
			return expr.Failed
		}
		switch name {
		case "Options":
			if target.Len() == 1 {
				return assignOptions(ev, ev.Eval(target.Leaf(0)), rhs)
			}
		case "Default":
			if target.Len() >= 1 {
				f, ok := expr.AsSymbol(target.Leaf(0))
				if !ok {
					ev.Message("Default", "sym", target.Leaf(0), expr.Int(1))
					return expr.Failed
				}
				defs.AddDefaultRule(f, eval.Rule{Pattern: target, Replacement: rhs, Delayed: delayed})
				return rhs
			}
		case "Attributes":
			if target.Len() == 1 {
				if f, ok := expr.AsSymbol(target.Leaf(0)); ok {
					if attrs, ok := parseAttributes(ev, rhs); ok {
						defs.SetAttributes(f, attrs)
						return rhs
					}
					return expr.Failed
				}
			}
		}
		if defs.Attributes(name).Has(eval.Protected) {
			ev.Message(setter, "write", expr.Sym(name), lhs)
			return expr.Failed
		}
		defs.AddRule(name, eval.Rule{Pattern: target, Replacement: rhs, Delayed: delayed})
		return rhs
	}
	ev.Message(setter, "setraw", lhs)
	return rhs
}

func applyClear(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	for _, leaf := range call.Leaves() {
		name, ok := expr.AsSymbol(leaf)
		if !ok {
			if s, isStr := expr.AsString(leaf); isStr {
				name, ok = s, true
			}
		}
		if !ok {
			ev.Message("Clear", "ssym", leaf)
			continue
		}
		if ev.Definitions.Attributes(name).Has(eval.Protected) {
			ev.Message("Clear", "wrsym", expr.Sym(name))
			continue
		}
		ev.Definitions.Clear(name)
	}
	return expr.Null
}

func applyCompound(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	var result expr.Expr = expr.Null
	for _, leaf := range call.Leaves() {
		result = ev.Eval(leaf)
	}
	return eval.Done(result)
}

func applyPrint(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	var b strings.Builder
	for _, leaf := range call.Leaves() {
		b.WriteString(expr.OutputForm(leaf))
	}
	ev.Print(b.String())
	return expr.Null
}

func applyReplaceAll(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 2, 2) {
		return nil
	}
	rules, ok := toRules(call.Leaf(1))
	if !ok {
		ev.Message("ReplaceAll", "reps", call.Leaf(1))
		return nil
	}
	result, _ := replaceAll(ev, call.Leaf(0), rules)
	return result
}

// toRules converts a rule or list of rules to eval.Rule values.
func toRules(e expr.Expr) ([]eval.Rule, bool) {
	items := []expr.Expr{e}
	if expr.HasForm(e, "List") {
		items = e.(*expr.Expression).Leaves()
	}
	rules := make([]eval.Rule, 0, len(items))
	for _, item := range items {
		switch {
		case expr.HasForm(item, "Rule", 2):
			n := item.(*expr.Expression)
			rules = append(rules, eval.Rule{Pattern: n.Leaf(0), Replacement: n.Leaf(1)})
		case expr.HasForm(item, "RuleDelayed", 2):
			n := item.(*expr.Expression)
			rules = append(rules, eval.Rule{Pattern: n.Leaf(0), Replacement: n.Leaf(1), Delayed: true})
		default:
			return nil, false
		}
	}
	return rules, true
}

// replaceAll rewrites the outermost parts of e matching any rule. Replaced
// parts are not searched again.
func replaceAll(ev *eval.Evaluation, e expr.Expr, rules []eval.Rule) (expr.Expr, bool) {
	for _, rule := range rules {
		if result, ok := ev.ApplyRule(rule, e); ok {
			return result, true
		}
	}
	n, ok := e.(*expr.Expression)
	if !ok {
		return e, false
	}
	head, changed := replaceAll(ev, n.Head(), rules)
	leaves := make([]expr.Expr, n.Len())
	for i, leaf := range n.Leaves() {
		var leafChanged bool
		leaves[i], leafChanged = replaceAll(ev, leaf, rules)
		changed = changed || leafChanged
	}
	if !changed {
		return e, false
	}
	return expr.New(head, leaves...), true
}

func applyHead(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	return call.Leaf(0).Head()
}

func applyLength(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	if n, ok := call.Leaf(0).(*expr.Expression); ok {
		return expr.Int(int64(n.Len()))
	}
	return expr.Int(0)
}

func applyEvaluate(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if call.Len() == 1 {
		return call.Leaf(0)
	}
	return expr.Call("Sequence", call.Leaves()...)
}

func applyIf(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 2, 4) {
		return nil
	}
	switch {
	case expr.True.SameQ(call.Leaf(0)):
		return call.Leaf(1)
	case expr.False.SameQ(call.Leaf(0)):
		if call.Len() >= 3 {
			return call.Leaf(2)
		}
		return expr.Null
	case call.Len() == 4:
		return call.Leaf(3)
	}
	return nil
}

func applySameQ(negate bool) eval.BuiltinFunc {
	return func(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
		leaves := call.Leaves()
		same := true
		for i := 1; i < len(leaves); i++ {
			if !leaves[i-1].SameQ(leaves[i]) {
				same = false
				break
			}
		}
		return expr.Bool(same != negate)
	}
}

func applyNot(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	switch {
	case expr.True.SameQ(call.Leaf(0)):
		return expr.False
	case expr.False.SameQ(call.Leaf(0)):
		return expr.True
	}
	return nil
}

// applyLogic evaluates And/Or left to right and stops at the first
// deciding value.
func applyLogic(head string) eval.BuiltinFunc {
	decisive, neutral := expr.False, expr.True
	if head == "Or" {
		decisive, neutral = expr.True, expr.False
	}
	return func(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
		var rest []expr.Expr
		for _, leaf := range call.Leaves() {
			v := ev.Eval(leaf)
			switch {
			case v.SameQ(decisive):
				return decisive
			case v.SameQ(neutral):
			default:
				rest = append(rest, v)
			}
		}
		switch len(rest) {
		case 0:
			return neutral
		case 1:
			return eval.Done(rest[0])
		}
		return eval.Done(expr.Call(head, rest...))
	}
}

func applyAttributes(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	name, ok := expr.AsSymbol(call.Leaf(0))
	if !ok {
		if s, isStr := expr.AsString(call.Leaf(0)); isStr {
			name, ok = s, true
		}
	}
	if !ok {
		ev.Message("Attributes", "ssym", call.Leaf(0))
		return nil
	}
	return ev.Definitions.Attributes(name).Expr()
}

func applySetAttributes(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 2, 2) {
		return nil
	}
	name, ok := expr.AsSymbol(call.Leaf(0))
	if !ok {
		ev.Message("SetAttributes", "sym", call.Leaf(0), expr.Int(1))
		return nil
	}
	if ev.Definitions.Attributes(name).Has(eval.Protected) {
		ev.Message("SetAttributes", "wrsym", expr.Sym(name))
		return expr.Null
	}
	attrs, ok := parseAttributes(ev, call.Leaf(1))
	if !ok {
		return nil
	}
	ev.Definitions.SetAttributes(name, ev.Definitions.Attributes(name)|attrs)
	return expr.Null
}

func parseAttributes(ev *eval.Evaluation, e expr.Expr) (eval.Attribute, bool) {
	items := []expr.Expr{e}
	if expr.HasForm(e, "List") {
		items = e.(*expr.Expression).Leaves()
	}
	var attrs eval.Attribute
	for _, item := range items {
		name, _ := expr.AsSymbol(item)
		flag, ok := eval.ParseAttribute(name)
		if !ok {
			ev.Message("SetAttributes", "unknownattr", item)
			return 0, false
		}
		attrs |= flag
	}
	return attrs, true
}

// applyOut resolves % and %% style references relative to $Line.
func applyOut(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	line := int64(1)
	if v, ok := ev.Definitions.OwnValue("$Line"); ok {
		if n, isInt := expr.AsInt(v); isInt {
			line = n
		}
	}
	switch call.Len() {
	case 0:
		return expr.Call("Out", expr.Int(line-1))
	case 1:
		if k, ok := expr.AsInt(call.Leaf(0)); ok && k < 0 {
			return expr.Call("Out", expr.Int(line+k))
		}
	}
	return nil
}
