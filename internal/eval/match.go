package eval

import (
	"github.com/mathics/gomathics/internal/expr"
)

// Bindings maps pattern names onto the expressions they matched. Values are
// never mutated in place so a failed branch can simply drop its copy.
type Bindings struct {
	names  []string
	values []expr.Expr

	options     []expr.Expr
	optionOwner expr.Expr
}

// Get returns the value bound to name.
func (b Bindings) Get(name string) (expr.Expr, bool) {
	for i := len(b.names) - 1; i >= 0; i-- {
		if b.names[i] == name {
			return b.values[i], true
		}
	}
	return nil, false
}

// Len returns the number of bound names.
func (b Bindings) Len() int { return len(b.names) }

func (b Bindings) with(name string, value expr.Expr) Bindings {
	out := b
	out.names = append(b.names[:len(b.names):len(b.names)], name)
	out.values = append(b.values[:len(b.values):len(b.values)], value)
	return out
}

func (b Bindings) withOptions(owner expr.Expr, options []expr.Expr) Bindings {
	out := b
	out.optionOwner = owner
	out.options = options
	return out
}

// seqContext locates a run of pattern leaves inside their parent so that
// optional arguments can consult Default[head, pos, total].
type seqContext struct {
	head  expr.Expr
	total int
}

// Match reports whether e matches pattern and returns the bindings of the
// first successful match.
func (ev *Evaluation) Match(pattern, e expr.Expr) (Bindings, bool) {
	var found Bindings
	ok := ev.match(pattern, e, Bindings{}, func(b Bindings) bool {
		found = b
		return true
	})
	return found, ok
}

// ApplyRule rewrites e with rule when it matches. The replacement is
// returned unevaluated.
func (ev *Evaluation) ApplyRule(rule Rule, e expr.Expr) (expr.Expr, bool) {
	var result expr.Expr
	ok := ev.match(rule.Pattern, e, Bindings{}, func(b Bindings) bool {
		result = ev.substitute(rule.Replacement, b)
		return true
	})
	return result, ok
}

func (ev *Evaluation) match(p, e expr.Expr, b Bindings, k func(Bindings) bool) bool {
	pn, ok := p.(*expr.Expression)
	if !ok {
		return p.SameQ(e) && k(b)
	}
	switch expr.HeadName(pn) {
	case "Pattern":
		if pn.Len() != 2 {
			break
		}
		name, ok := expr.AsSymbol(pn.Leaf(0))
		if !ok {
			break
		}
		if bound, ok := b.Get(name); ok {
			return bound.SameQ(e) && ev.match(pn.Leaf(1), e, b, k)
		}
		return ev.match(pn.Leaf(1), e, b, func(b2 Bindings) bool {
			return k(b2.with(name, e))
		})
	case "Blank", "BlankSequence", "BlankNullSequence":
		return blankMatches(pn, e) && k(b)
	case "Alternatives":
		for _, alt := range pn.Leaves() {
			if ev.match(alt, e, b, k) {
				return true
			}
		}
		return false
	case "HoldPattern":
		if pn.Len() == 1 {
			return ev.match(pn.Leaf(0), e, b, k)
		}
	case "Optional":
		if pn.Len() == 1 || pn.Len() == 2 {
			return ev.match(pn.Leaf(0), e, b, k)
		}
	case "Condition":
		if pn.Len() != 2 {
			break
		}
		return ev.match(pn.Leaf(0), e, b, func(b2 Bindings) bool {
			test := ev.Eval(ev.substitute(pn.Leaf(1), b2))
			return expr.True.SameQ(test) && k(b2)
		})
	}

	en, ok := e.(*expr.Expression)
	if !ok {
		return false
	}
	return ev.match(pn.Head(), en.Head(), b, func(b2 Bindings) bool {
		ctx := seqContext{head: pn.Head(), total: pn.Len()}
		return ev.matchSeq(ctx, pn.Leaves(), en.Leaves(), b2, k)
	})
}

func (ev *Evaluation) matchSeq(ctx seqContext, ps, es []expr.Expr, b Bindings, k func(Bindings) bool) bool {
	if len(ps) == 0 {
		return len(es) == 0 && k(b)
	}
	p, rest := ps[0], ps[1:]

	if name, blank, ok := sequencePattern(p); ok {
		min := 1
		if expr.HeadName(blank) == "BlankNullSequence" {
			min = 0
		}
		for n := min; n <= len(es); n++ {
			if n > 0 && !blankMatches(blank, es[n-1]) {
				break
			}
			b2 := b
			if name != "" {
				value := expr.Expr(expr.Call("Sequence", es[:n]...))
				if bound, ok := b.Get(name); ok {
					if !bound.SameQ(value) {
						continue
					}
				} else {
					b2 = b.with(name, value)
				}
			}
			if ev.matchSeq(ctx, rest, es[n:], b2, k) {
				return true
			}
		}
		return false
	}

	if expr.HasForm(p, "OptionsPattern", 0, 1) {
		owner := ctx.head
		if op := p.(*expr.Expression); op.Len() == 1 {
			owner = op.Leaf(0)
		}
		run := 0
		for run < len(es) && isOptionLike(es[run]) {
			run++
		}
		for n := run; n >= 0; n-- {
			options := flattenOptions(es[:n])
			if ev.matchSeq(ctx, rest, es[n:], b.withOptions(owner, options), k) {
				return true
			}
		}
		return false
	}

	if expr.HasForm(p, "Optional", 1, 2) {
		if len(es) > 0 && ev.match(p, es[0], b, func(b2 Bindings) bool {
			return ev.matchSeq(ctx, rest, es[1:], b2, k)
		}) {
			return true
		}
		opt := p.(*expr.Expression)
		var value expr.Expr
		if opt.Len() == 2 {
			value = opt.Leaf(1)
		} else {
			head, ok := expr.AsSymbol(ctx.head)
			if !ok {
				return false
			}
			pos := ctx.total - len(ps) + 1
			v, ok := ev.DefaultValue(head, pos, ctx.total)
			if !ok {
				return false
			}
			value = v
		}
		b2, ok := bindDefault(opt.Leaf(0), value, b)
		return ok && ev.matchSeq(ctx, rest, es, b2, k)
	}

	if len(es) == 0 {
		return false
	}
	return ev.match(p, es[0], b, func(b2 Bindings) bool {
		return ev.matchSeq(ctx, rest, es[1:], b2, k)
	})
}

// DefaultValue resolves Default[name, indices...], falling back to fewer
// indices: Default[f, k, n], then Default[f, k], then Default[f].
func (ev *Evaluation) DefaultValue(name string, indices ...int) (expr.Expr, bool) {
	rules := ev.Definitions.DefaultValues(name)
	if len(rules) == 0 {
		return nil, false
	}
	for l := len(indices); l >= 0; l-- {
		args := []expr.Expr{expr.Sym(name)}
		for _, i := range indices[:l] {
			args = append(args, expr.Int(int64(i)))
		}
		candidate := expr.Call("Default", args...)
		for _, rule := range rules {
			if result, ok := ev.ApplyRule(rule, candidate); ok {
				return ev.Eval(result), true
			}
		}
	}
	return nil, false
}

func bindDefault(p, value expr.Expr, b Bindings) (Bindings, bool) {
	if !expr.HasForm(p, "Pattern", 2) {
		return b, true
	}
	pn := p.(*expr.Expression)
	name, ok := expr.AsSymbol(pn.Leaf(0))
	if !ok {
		return b, false
	}
	if bound, ok := b.Get(name); ok {
		return b, bound.SameQ(value)
	}
	return b.with(name, value), true
}

// sequencePattern recognises __, ___ and their named forms.
func sequencePattern(p expr.Expr) (string, *expr.Expression, bool) {
	name := ""
	if expr.HasForm(p, "Pattern", 2) {
		pn := p.(*expr.Expression)
		n, ok := expr.AsSymbol(pn.Leaf(0))
		if !ok {
			return "", nil, false
		}
		name, p = n, pn.Leaf(1)
	}
	if expr.HasForm(p, "BlankSequence", 0, 1) || expr.HasForm(p, "BlankNullSequence", 0, 1) {
		return name, p.(*expr.Expression), true
	}
	return "", nil, false
}

func blankMatches(blank *expr.Expression, e expr.Expr) bool {
	if blank.Len() == 0 {
		return true
	}
	return e.Head().SameQ(blank.Leaf(0))
}

func isOptionLike(e expr.Expr) bool {
	if expr.HasForm(e, "Rule", 2) || expr.HasForm(e, "RuleDelayed", 2) {
		return true
	}
	if expr.HasForm(e, "List") {
		for _, leaf := range e.(*expr.Expression).Leaves() {
			if !isOptionLike(leaf) {
				return false
			}
		}
		return true
	}
	return false
}

func flattenOptions(es []expr.Expr) []expr.Expr {
	var out []expr.Expr
	for _, e := range es {
		if expr.HasForm(e, "List") {
			out = append(out, flattenOptions(e.(*expr.Expression).Leaves())...)
			continue
		}
		out = append(out, e)
	}
	return out
}
