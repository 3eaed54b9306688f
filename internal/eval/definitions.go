package eval

import (
	"sort"

	"github.com/mathics/gomathics/internal/expr"
)

// BuiltinFunc implements a built-in function. It receives the call with its
// leaves already evaluated (subject to hold attributes) and returns the
// replacement, or nil when the call should stay unevaluated.
type BuiltinFunc func(ev *Evaluation, call *expr.Expression) expr.Expr

// Builtin describes a built-in symbol to register.
type Builtin struct {
	Name       string
	Attributes Attribute
	Apply      BuiltinFunc
	Messages   map[string]string
	Options    map[string]expr.Expr
}

// Rule is a transformation pattern -> replacement.
type Rule struct {
	Pattern     expr.Expr
	Replacement expr.Expr
	Delayed     bool
}

// Expr renders the rule as Rule[...] or RuleDelayed[...].
func (r Rule) Expr() expr.Expr {
	head := "Rule"
	if r.Delayed {
		head = "RuleDelayed"
	}
	return expr.Call(head, r.Pattern, r.Replacement)
}

// Definition holds everything known about one symbol.
type Definition struct {
	Name          string
	Attributes    Attribute
	OwnValue      expr.Expr
	DownValues    []Rule
	DefaultValues []Rule
	Options       map[string]expr.Expr
	Messages      map[string]string

	apply BuiltinFunc
}

// Definitions is the symbol table of a session. It is owned by a single
// goroutine and is not safe for concurrent use.
type Definitions struct {
	symbols map[string]*Definition
}

// NewDefinitions creates an empty table.
func NewDefinitions() *Definitions {
	return &Definitions{symbols: make(map[string]*Definition)}
}

// Register installs a built-in symbol.
func (d *Definitions) Register(b Builtin) {
	def := d.ensure(b.Name)
	def.Attributes |= b.Attributes
	def.apply = b.Apply
	for tag, text := range b.Messages {
		if def.Messages == nil {
			def.Messages = make(map[string]string)
		}
		def.Messages[tag] = text
	}
	if len(b.Options) > 0 {
		def.Options = make(map[string]expr.Expr, len(b.Options))
		for name, value := range b.Options {
			def.Options[name] = value
		}
	}
}

// Lookup returns the definition of name or nil.
func (d *Definitions) Lookup(name string) *Definition {
	return d.symbols[name]
}

func (d *Definitions) ensure(name string) *Definition {
	def, ok := d.symbols[name]
	if !ok {
		def = &Definition{Name: name}
		d.symbols[name] = def
	}
	return def
}

// Attributes returns the attributes of name.
func (d *Definitions) Attributes(name string) Attribute {
	if def := d.symbols[name]; def != nil {
		return def.Attributes
	}
	return 0
}

// SetAttributes replaces the attributes of name.
func (d *Definitions) SetAttributes(name string, attrs Attribute) {
	d.ensure(name).Attributes = attrs
}

// OwnValue returns the value assigned to the symbol name.
func (d *Definitions) OwnValue(name string) (expr.Expr, bool) {
	def := d.symbols[name]
	if def == nil || def.OwnValue == nil {
		return nil, false
	}
	return def.OwnValue, true
}

// SetOwnValue assigns value to the symbol name.
func (d *Definitions) SetOwnValue(name string, value expr.Expr) {
	d.ensure(name).OwnValue = value
}

// AddRule adds a down value for name, replacing a rule with the same
// left-hand side.
func (d *Definitions) AddRule(name string, rule Rule) {
	def := d.ensure(name)
	def.DownValues = replaceRule(def.DownValues, rule)
}

// DownValues returns the rules attached to name.
func (d *Definitions) DownValues(name string) []Rule {
	if def := d.symbols[name]; def != nil {
		return def.DownValues
	}
	return nil
}

// AddDefaultRule adds a rule for Default[name, ...].
func (d *Definitions) AddDefaultRule(name string, rule Rule) {
	def := d.ensure(name)
	def.DefaultValues = replaceRule(def.DefaultValues, rule)
}

// DefaultValues returns the rules for Default[name, ...].
func (d *Definitions) DefaultValues(name string) []Rule {
	if def := d.symbols[name]; def != nil {
		return def.DefaultValues
	}
	return nil
}

// Options returns the option defaults of name. The map must not be modified.
func (d *Definitions) Options(name string) map[string]expr.Expr {
	if def := d.symbols[name]; def != nil {
		return def.Options
	}
	return nil
}

// SetOptions replaces the option defaults of name.
func (d *Definitions) SetOptions(name string, options map[string]expr.Expr) {
	d.ensure(name).Options = options
}

// Clear removes values and rules from name, keeping built-in behaviour.
func (d *Definitions) Clear(name string) {
	def := d.symbols[name]
	if def == nil {
		return
	}
	def.OwnValue = nil
	def.DownValues = nil
	def.DefaultValues = nil
	if def.apply == nil {
		def.Options = nil
	}
}

// MessageTemplate finds the text for symbol::tag, falling back to General.
func (d *Definitions) MessageTemplate(symbol, tag string) (string, bool) {
	for _, name := range []string{symbol, "General"} {
		if def := d.symbols[name]; def != nil {
			if text, ok := def.Messages[tag]; ok {
				return text, true
			}
		}
	}
	text, ok := generalMessages[tag]
	return text, ok
}

// Names lists every symbol with a definition, sorted.
func (d *Definitions) Names() []string {
	names := make([]string, 0, len(d.symbols))
	for name := range d.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func replaceRule(rules []Rule, rule Rule) []Rule {
	for i, existing := range rules {
		if existing.Pattern.SameQ(rule.Pattern) {
			out := make([]Rule, len(rules))
			copy(out, rules)
			out[i] = rule
			return out
		}
	}
	return append(rules, rule)
}
