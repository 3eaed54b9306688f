// Package builtin registers the built-in functions: assignment and control
// flow, arithmetic, string manipulation and option handling.
package builtin

import (
	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
)

// Register installs every built-in into defs. Built-in symbols are
// Protected.
func Register(defs *eval.Definitions) {
	groups := [][]eval.Builtin{
		coreBuiltins(),
		arithmeticBuiltins(),
		stringBuiltins(),
		optionBuiltins(),
	}
	for _, group := range groups {
		for _, b := range group {
			b.Attributes |= eval.Protected
			defs.Register(b)
		}
	}

	defs.SetOwnValue("$RecursionLimit", expr.Int(eval.DefaultRecursionLimit))
	defs.SetOwnValue("$IterationLimit", expr.Int(eval.DefaultIterationLimit))

	defs.AddDefaultRule("Plus", eval.Rule{Pattern: expr.Call("Default", expr.Sym("Plus")), Replacement: expr.Int(0)})
	defs.AddDefaultRule("Times", eval.Rule{Pattern: expr.Call("Default", expr.Sym("Times")), Replacement: expr.Int(1)})
	defs.AddDefaultRule("Power", eval.Rule{
		Pattern:     expr.Call("Default", expr.Sym("Power"), expr.Int(2)),
		Replacement: expr.Int(1),
	})
}

// checkArgs emits the standard argument count message when call does not
// have between min and max leaves. max < 0 means unbounded.
func checkArgs(ev *eval.Evaluation, call *expr.Expression, min, max int) bool {
	n := call.Len()
	if n >= min && (max < 0 || n <= max) {
		return true
	}
	name := call.Head()
	count := expr.Int(int64(n))
	switch {
	case min == max && min == 1:
		ev.Message(expr.HeadName(call), "argx", name, count)
	case min == max:
		ev.Message(expr.HeadName(call), "argrx", name, count, expr.Int(int64(min)))
	case max < 0:
		return n >= min
	default:
		ev.Message(expr.HeadName(call), "argb", name, count, expr.Int(int64(min)), expr.Int(int64(max)))
	}
	return false
}
