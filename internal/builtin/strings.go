package builtin

import (
	"errors"
	"regexp"
	"strings"

	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
	"github.com/mathics/gomathics/internal/parser"
)

func stringBuiltins() []eval.Builtin {
	builtins := []eval.Builtin{
		{Name: "String"},
		{Name: "StringJoin", Attributes: eval.Flat | eval.OneIdentity, Apply: applyStringJoin},
		{
			Name:     "StringSplit",
			Apply:    applyStringSplit,
			Messages: map[string]string{"strse": "String or list of strings expected at position `1` in `2`."},
		},
		{Name: "StringLength", Attributes: eval.Listable, Apply: applyStringLength},
		{
			Name:  "StringReplace",
			Apply: applyStringReplace,
			Messages: map[string]string{
				"strse": "String or list of strings expected at position `1` in `2`.",
				"srep":  "`1` is not a valid string replacement rule.",
				"innf":  "Non-negative integer or Infinity expected at position `1` in `2`.",
			},
			Options: map[string]expr.Expr{
				"IgnoreCase":     expr.False,
				"MetaCharacters": expr.Sym("None"),
			},
		},
		{Name: "Characters", Attributes: eval.Listable, Apply: applyCharacters},
		{
			Name:       "CharacterRange",
			Attributes: eval.ReadProtected,
			Apply:      applyCharacterRange,
			Messages:   map[string]string{"argtype": "Arguments `1` and `2` are not both strings of length 1."},
		},
		{Name: "ToString", Apply: applyToString},
		{
			Name:       "ToExpression",
			Attributes: eval.Listable,
			Apply:      applyToExpression,
			Messages: map[string]string{
				"argb": "`1` called with `2` arguments; between `3` and `4` arguments are expected.",
				"interpfmt": "`1` is not a valid interpretation format. " +
					"Valid interpretation formats include InputForm and any member of $BoxForms.",
				"notstr": "The format type `1` is valid only for string input.",
				"sntxi":  "Incomplete expression; more input is needed `1`.",
				"sntxf":  "Syntax error: `1`.",
			},
		},
		{Name: "StringQ", Apply: applyStringQ},
		{Name: "RegularExpression"},
		{
			Name:     "StringExpression",
			Apply:    applyStringExpression,
			Messages: map[string]string{"invld": "Element `1` is not a valid string or pattern element in `2`."},
		},
		{Name: "IgnoreCase"},
		{Name: "MetaCharacters"},
	}
	for name := range namedPatterns {
		builtins = append(builtins, eval.Builtin{Name: name})
	}
	return builtins
}

func applyStringJoin(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	var b strings.Builder
	for _, item := range expr.Flatten(expr.List(call.Leaves()...), "List").Leaves() {
		s, ok := expr.AsString(item)
		if !ok {
			ev.Message("StringJoin", "string")
			return nil
		}
		b.WriteString(s)
	}
	return expr.Str(b.String())
}

func applyStringSplit(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 2) {
		return nil
	}
	s, ok := expr.AsString(call.Leaf(0))
	if !ok {
		ev.Message("StringSplit", "strse", expr.Int(1), call)
		return nil
	}
	if call.Len() == 1 {
		return expr.StringList(strings.Fields(s))
	}

	seps := []expr.Expr{call.Leaf(1)}
	if expr.HasForm(call.Leaf(1), "List") {
		seps = call.Leaf(1).(*expr.Expression).Leaves()
	}
	patterns := make([]*regexp.Regexp, 0, len(seps))
	for _, sep := range seps {
		re, ok := compilePattern(sep, false)
		if !ok {
			ev.Message("StringSplit", "strse", expr.Int(2), call)
			return nil
		}
		patterns = append(patterns, re)
	}

	pieces := []string{s}
	for _, re := range patterns {
		var next []string
		for _, piece := range pieces {
			next = append(next, re.Split(piece, -1)...)
		}
		pieces = next
	}
	out := pieces[:0]
	for _, piece := range pieces {
		if piece != "" {
			out = append(out, piece)
		}
	}
	return expr.StringList(out)
}

func applyStringLength(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	s, ok := expr.AsString(call.Leaf(0))
	if !ok {
		ev.Message("StringLength", "string")
		return nil
	}
	return expr.Int(int64(len([]rune(s))))
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

func applyStringReplace(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	args, opts := splitOptions(ev, "StringReplace", call.Leaves())
	if len(args) < 2 || len(args) > 3 {
		checkArgs(ev, expr.New(call.Head(), args...), 2, 3)
		return nil
	}
	ignoreCase := false
	if v, ok := optionOrDefault(ev, "StringReplace", opts, "IgnoreCase"); ok {
		ignoreCase = expr.True.SameQ(v)
	}

	target := args[0]
	var inputs []string
	if expr.HasForm(target, "List") {
		for _, leaf := range target.(*expr.Expression).Leaves() {
			s, ok := expr.AsString(leaf)
			if !ok {
				ev.Message("StringReplace", "strse", expr.Int(1), call)
				return nil
			}
			inputs = append(inputs, s)
		}
	} else {
		s, ok := expr.AsString(target)
		if !ok {
			ev.Message("StringReplace", "strse", expr.Int(1), call)
			return nil
		}
		inputs = []string{s}
	}

	rules := []expr.Expr{args[1]}
	if expr.HasForm(args[1], "List") {
		rules = args[1].(*expr.Expression).Leaves()
	}
	var reps []replacement
	for _, rule := range rules {
		if !expr.HasForm(rule, "Rule", 2) && !expr.HasForm(rule, "RuleDelayed", 2) {
			ev.Message("StringReplace", "srep", rule)
			return nil
		}
		r := rule.(*expr.Expression)
		re, ok := compilePattern(r.Leaf(0), ignoreCase)
		if !ok {
			ev.Message("StringExpression", "invld", r.Leaf(0), r.Leaf(0))
			return nil
		}
		with, ok := expr.AsString(r.Leaf(1))
		if !ok {
			ev.Message("StringReplace", "srep", rule)
			return nil
		}
		reps = append(reps, replacement{re: re, with: with})
	}

	limit := -1
	if len(args) == 3 {
		n, ok := replaceLimit(args[2])
		if !ok {
			ev.Message("StringReplace", "innf", expr.Int(3), call)
			return nil
		}
		limit = n
	}

	results := make([]expr.Expr, len(inputs))
	for i, s := range inputs {
		for _, rep := range reps {
			s = replaceN(rep.re, s, rep.with, limit)
		}
		results[i] = expr.Str(s)
	}
	if expr.HasForm(target, "List") {
		return expr.List(results...)
	}
	return results[0]
}

// replaceLimit reads the replacement count; Infinity means no limit.
func replaceLimit(e expr.Expr) (int, bool) {
	if expr.Sym("Infinity").SameQ(e) || expr.Call("DirectedInfinity", expr.Int(1)).SameQ(e) {
		return -1, true
	}
	n, ok := expr.AsInt(e)
	if !ok || n < 0 {
		return 0, false
	}
	return int(n), true
}

// replaceN substitutes the first n matches of re, or all when n < 0. The
// replacement text is literal.
func replaceN(re *regexp.Regexp, s, with string, n int) string {
	if n == 0 {
		return s
	}
	matches := re.FindAllStringIndex(s, n)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteString(with)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func compilePattern(e expr.Expr, ignoreCase bool) (*regexp.Regexp, bool) {
	src, ok := toRegex(e)
	if !ok {
		return nil, false
	}
	if ignoreCase {
		src = "(?i)" + src
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, false
	}
	return re, true
}

func applyCharacters(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	s, ok := expr.AsString(call.Leaf(0))
	if !ok {
		return nil
	}
	chars := make([]string, 0, len(s))
	for _, r := range s {
		chars = append(chars, string(r))
	}
	return expr.StringList(chars)
}

func applyCharacterRange(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 2, 2) {
		return nil
	}
	start, ok1 := expr.AsString(call.Leaf(0))
	stop, ok2 := expr.AsString(call.Leaf(1))
	if !ok1 || !ok2 {
		return nil
	}
	a, b := []rune(start), []rune(stop)
	if len(a) != 1 || len(b) != 1 {
		ev.Message("CharacterRange", "argtype", call.Leaf(0), call.Leaf(1))
		return nil
	}
	var chars []string
	for r := a[0]; r <= b[0]; r++ {
		chars = append(chars, string(r))
	}
	return expr.StringList(chars)
}

func applyToString(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	return expr.Str(expr.OutputForm(call.Leaf(0)))
}

func applyToExpression(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if call.Len() < 1 || call.Len() > 3 {
		ev.Message("ToExpression", "argb", expr.Sym("ToExpression"), expr.Int(int64(call.Len())), expr.Int(1), expr.Int(3))
		return nil
	}
	input := call.Leaf(0)
	if call.Len() >= 2 && !expr.Sym("InputForm").SameQ(call.Leaf(1)) {
		ev.Message("ToExpression", "interpfmt", call.Leaf(1))
		return nil
	}
	result := input
	if s, ok := expr.AsString(input); ok {
		parsed, err := parser.Parse(s)
		if err != nil {
			var syntaxErr *parser.SyntaxError
			if errors.As(err, &syntaxErr) && !syntaxErr.Incomplete {
				ev.Message("ToExpression", "sntxf", expr.Str(syntaxErr.Msg))
			} else {
				ev.Message("ToExpression", "sntxi", expr.Str(""))
			}
			return expr.Failed
		}
		result = parsed
	}
	if call.Len() == 3 {
		return expr.New(call.Leaf(2), result)
	}
	return result
}

func applyStringQ(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	if !checkArgs(ev, call, 1, 1) {
		return nil
	}
	_, ok := expr.AsString(call.Leaf(0))
	return expr.Bool(ok)
}

// applyStringExpression concatenates adjacent literal strings.
func applyStringExpression(ev *eval.Evaluation, call *expr.Expression) expr.Expr {
	var out []expr.Expr
	for _, leaf := range call.Leaves() {
		if s, ok := expr.AsString(leaf); ok && len(out) > 0 {
			if prev, ok := expr.AsString(out[len(out)-1]); ok {
				out[len(out)-1] = expr.Str(prev + s)
				continue
			}
		}
		out = append(out, leaf)
	}
	if len(out) == 1 {
		if _, ok := out[0].(expr.String); ok {
			return out[0]
		}
	}
	result := expr.Call("StringExpression", out...)
	if result.SameQ(call) {
		return nil
	}
	return result
}
