// Package eval implements the term-rewriting evaluator: the symbol table,
// pattern matching and the fixed-point evaluation loop that built-in
// functions plug into.
package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/mathics/gomathics/internal/expr"
)

const (
	// DefaultRecursionLimit bounds the nesting depth of evaluation.
	DefaultRecursionLimit = 256
	// DefaultIterationLimit bounds the rewrites applied to one expression.
	DefaultIterationLimit = 4096
)

var (
	// ErrAborted reports an evaluation stopped by cancellation.
	ErrAborted = errors.New("computation aborted")
	// ErrTimeout reports an evaluation stopped by its deadline.
	ErrTimeout = errors.New("evaluation timed out")
	// ErrRecursion reports an evaluation that exceeded $RecursionLimit.
	ErrRecursion = errors.New("recursion limit exceeded")
)

// OutputSink receives text produced by Print while an evaluation runs.
type OutputSink interface {
	Emit(text string)
}

// SinkFunc adapts a function to OutputSink.
type SinkFunc func(text string)

func (f SinkFunc) Emit(text string) { f(text) }

// final marks a built-in result that is already fully evaluated.
type final struct {
	expr.Expr
}

// Done wraps a value a built-in has evaluated itself so that the evaluation
// loop returns it as is instead of evaluating it again.
func Done(e expr.Expr) expr.Expr { return final{e} }

type abortSignal struct {
	err error
}

// Evaluation is the state of evaluating one top-level expression.
type Evaluation struct {
	Definitions *Definitions

	ctx      context.Context
	sink     OutputSink
	messages []Message
	depth    int
	err      error

	recursionLimit int
	iterationLimit int
}

// NewEvaluation prepares an evaluation. A nil sink discards printed output.
func NewEvaluation(ctx context.Context, defs *Definitions, sink OutputSink) *Evaluation {
	if ctx == nil {
		ctx = context.Background()
	}
	ev := &Evaluation{
		Definitions:    defs,
		ctx:            ctx,
		sink:           sink,
		recursionLimit: DefaultRecursionLimit,
		iterationLimit: DefaultIterationLimit,
	}
	if v, ok := defs.OwnValue("$RecursionLimit"); ok {
		if n, ok := expr.AsInt(v); ok && n > 0 {
			ev.recursionLimit = int(n)
		}
	}
	if v, ok := defs.OwnValue("$IterationLimit"); ok {
		if n, ok := expr.AsInt(v); ok && n > 0 {
			ev.iterationLimit = int(n)
		}
	}
	return ev
}

// Context returns the context governing the evaluation.
func (ev *Evaluation) Context() context.Context { return ev.ctx }

// Messages returns the messages raised so far, in order.
func (ev *Evaluation) Messages() []Message { return ev.messages }

// Err reports why the evaluation was aborted, or nil.
func (ev *Evaluation) Err() error { return ev.err }

// Message records symbol::tag with the template filled from args.
func (ev *Evaluation) Message(symbol, tag string, args ...expr.Expr) {
	template, ok := ev.Definitions.MessageTemplate(symbol, tag)
	if !ok {
		template = "-- Message text not found --"
	}
	ev.messages = append(ev.messages, Message{
		Symbol: symbol,
		Tag:    tag,
		Text:   formatMessage(template, args),
	})
}

// Print sends text to the output sink.
func (ev *Evaluation) Print(text string) {
	if ev.sink != nil {
		ev.sink.Emit(text)
	}
}

// Evaluate evaluates e to a fixed point. Cancellation, deadline expiry and
// runaway recursion produce $Aborted and set Err.
func (ev *Evaluation) Evaluate(e expr.Expr) (result expr.Expr) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, ok := r.(abortSignal)
		if !ok {
			sig = abortSignal{err: fmt.Errorf("evaluation panic: %v", r)}
		}
		ev.err = sig.err
		ev.depth = 0
		result = expr.Aborted
	}()
	return ev.Eval(e)
}

// Abort stops the current evaluation. It must only be called from inside
// Evaluate, typically by a built-in.
func (ev *Evaluation) Abort() {
	panic(abortSignal{err: ErrAborted})
}

func (ev *Evaluation) checkInterrupt() {
	err := ev.ctx.Err()
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ev.Message("General", "timeout")
		panic(abortSignal{err: ErrTimeout})
	}
	ev.Message("General", "abort")
	panic(abortSignal{err: ErrAborted})
}

// Eval evaluates e to a fixed point. Built-ins use it to evaluate held
// arguments.
func (ev *Evaluation) Eval(e expr.Expr) expr.Expr {
	ev.checkInterrupt()
	ev.depth++
	defer func() { ev.depth-- }()
	if ev.depth > ev.recursionLimit {
		ev.Message("$RecursionLimit", "reclim", expr.Int(int64(ev.recursionLimit)))
		panic(abortSignal{err: ErrRecursion})
	}
	for i := 0; i < ev.iterationLimit; i++ {
		next, changed := ev.step(e)
		if f, ok := next.(final); ok {
			return f.Expr
		}
		if !changed {
			return next
		}
		e = next
	}
	ev.Message("$IterationLimit", "itlim", expr.Int(int64(ev.iterationLimit)))
	return e
}

// step applies one rewrite to e. Leaves of a normal expression are brought
// to their fixed points on the way, so a false result means e is final.
func (ev *Evaluation) step(e expr.Expr) (expr.Expr, bool) {
	switch x := e.(type) {
	case expr.Symbol:
		if v, ok := ev.Definitions.OwnValue(x.Name); ok && !v.SameQ(x) {
			return v, true
		}
		return x, false
	case *expr.Expression:
		return ev.stepNormal(x)
	}
	return e, false
}

func (ev *Evaluation) stepNormal(n *expr.Expression) (expr.Expr, bool) {
	head := ev.Eval(n.Head())
	name, _ := expr.AsSymbol(head)
	attrs := ev.Definitions.Attributes(name)

	leaves := make([]expr.Expr, 0, n.Len())
	for i, leaf := range n.Leaves() {
		held := (i == 0 && attrs.Has(HoldFirst)) || (i > 0 && attrs.Has(HoldRest))
		switch {
		case !held:
			leaf = ev.Eval(leaf)
		case expr.HasForm(leaf, "Evaluate", 1):
			leaf = ev.Eval(leaf.(*expr.Expression).Leaf(0))
		}
		leaves = append(leaves, expr.Sequence(leaf)...)
	}
	current := expr.New(head, leaves...)
	if attrs.Has(Flat) {
		current = expr.Flatten(current, name)
	}
	if attrs.Has(Orderless) {
		sorted := append([]expr.Expr(nil), current.Leaves()...)
		expr.Sort(sorted)
		current = current.WithLeaves(sorted)
	}

	if attrs.Has(Listable) {
		if threaded, ok := ev.thread(current); ok {
			return threaded, true
		}
	}

	if name == "" {
		return current, false
	}
	for _, rule := range ev.Definitions.DownValues(name) {
		if result, ok := ev.ApplyRule(rule, current); ok {
			return result, true
		}
	}
	if def := ev.Definitions.Lookup(name); def != nil && def.apply != nil {
		if result := def.apply(ev, current); result != nil && !result.SameQ(current) {
			return result, true
		}
	}
	return current, false
}

// thread maps a Listable head over its List arguments.
func (ev *Evaluation) thread(n *expr.Expression) (expr.Expr, bool) {
	length := -1
	for _, leaf := range n.Leaves() {
		if !expr.HasForm(leaf, "List") {
			continue
		}
		l := leaf.(*expr.Expression).Len()
		if length >= 0 && l != length {
			ev.Message("Thread", "tdlen", n)
			return nil, false
		}
		length = l
	}
	if length < 0 {
		return nil, false
	}
	items := make([]expr.Expr, length)
	for i := range items {
		args := make([]expr.Expr, n.Len())
		for j, leaf := range n.Leaves() {
			if expr.HasForm(leaf, "List") {
				args[j] = leaf.(*expr.Expression).Leaf(i)
			} else {
				args[j] = leaf
			}
		}
		items[i] = expr.New(n.Head(), args...)
	}
	return expr.List(items...), true
}
