package builtin

import "testing"

func TestCoreBuiltins(t *testing.T) {
	t.Parallel()

	runCases(t, []builtinCase{
		{name: "assignment", inputs: []string{`x = 5`, `x + 1`}, want: "6"},
		{name: "set returns value", inputs: []string{`x = 5`}, want: "5"},
		{name: "delayed assignment returns null", inputs: []string{`f[x_] := x ^ 2`}, want: "Null"},
		{name: "down value", inputs: []string{`f[x_] := x ^ 2`, `f[3]`}, want: "9"},
		{name: "clear", inputs: []string{`x = 5`, `Clear[x]`, `x`}, want: "x"},
		{
			name:     "protected symbol",
			inputs:   []string{`Plus = 1`},
			want:     "1",
			messages: []string{"Set::wrsym: Symbol Plus is Protected."},
		},
		{
			name:     "protected down value",
			inputs:   []string{`StringLength[x_] := 0`},
			want:     "$Failed",
			messages: []string{"SetDelayed::write: Tag StringLength in StringLength[x_] is Protected."},
		},
		{name: "compound expression", inputs: []string{`a = 1; b = 2; a + b`}, want: "3"},
		{name: "trailing semicolon", inputs: []string{`a = 1;`}, want: "Null"},
		{name: "print", inputs: []string{`Print["a", 1, "b"]`}, want: "Null", printed: []string{"a1b"}},
		{name: "replace all", inputs: []string{`{a, b, a} /. a -> 1`}, want: "{1, b, 1}"},
		{name: "replace all with rule list", inputs: []string{`{a, b} /. {a -> 1, b -> 2}`}, want: "{1, 2}"},
		{name: "replace all with pattern", inputs: []string{`{f[1], g[2]} /. f[x_] :> x + 10`}, want: "{11, g[2]}"},
		{name: "head", inputs: []string{`{Head["abc"], Head[1], Head[f[x]]}`}, want: "{String, Integer, f}"},
		{name: "length", inputs: []string{`{Length[{1, 2, 3}], Length[x]}`}, want: "{3, 0}"},
		{name: "hold", inputs: []string{`Hold[1 + 2]`}, want: "Hold[1 + 2]"},
		{name: "if", inputs: []string{`{If[1 == 1, a, b], If[1 == 2, a, b], If[1 == 2, a]}`}, want: "{a, b, Null}"},
		{name: "same q", inputs: []string{`{a === a, a === b, a =!= b}`}, want: "{True, False, True}"},
		{name: "equal", inputs: []string{`{1 == 1., "a" == "b", a == a, a == b}`}, want: "{True, False, True, a == b}"},
		{name: "inequalities", inputs: []string{`{1 < 2, 2 <= 1, 3 > 2.5, x > 1}`}, want: "{True, False, True, x > 1}"},
		{name: "logic", inputs: []string{`{!True, True && False, False || True, a && True}`}, want: "{False, False, True, a}"},
		{name: "attributes", inputs: []string{`Attributes[Plus]`}, want: "{Flat, Listable, OneIdentity, Orderless, Protected}"},
		{
			name:   "set attributes",
			inputs: []string{`SetAttributes[g, Listable]`, `g[x_Integer] := x + 1`, `g[{1, 2}]`},
			want:   "{2, 3}",
		},
		{name: "full form", inputs: []string{`FullForm["abc" + 2]`}, want: `Plus[2, "abc"]`},
		{name: "evaluate", inputs: []string{`x = 3`, `Hold[Evaluate[x]]`}, want: "Hold[3]"},
		{name: "sequence", inputs: []string{`f[Sequence[1, 2]]`}, want: "f[1, 2]"},
	})
}

func TestArithmetic(t *testing.T) {
	t.Parallel()

	runCases(t, []builtinCase{
		{name: "integers", inputs: []string{`1 + 2 * 3`}, want: "7"},
		{name: "rationals", inputs: []string{`1/2 + 1/3`}, want: "5/6"},
		{name: "exact division", inputs: []string{`6/3`}, want: "2"},
		{name: "reals", inputs: []string{`1.5 + 1`}, want: "2.5"},
		{name: "big integers", inputs: []string{`2 ^ 100`}, want: "1267650600228229401496703205376"},
		{name: "negative power", inputs: []string{`2 ^ -2`}, want: "1/4"},
		{name: "like terms", inputs: []string{`2 x + 3 x`}, want: "5 x"},
		{name: "cancelling terms", inputs: []string{`x - x`}, want: "0"},
		{name: "powers combine", inputs: []string{`x * x * x`}, want: "x ^ 3"},
		{name: "subtract", inputs: []string{`Subtract[5, 3]`}, want: "2"},
		{name: "divide", inputs: []string{`Divide[x, y]`}, want: "x / y"},
		{name: "minus", inputs: []string{`Minus[x]`}, want: "-x"},
		{name: "listable", inputs: []string{`{1, 2} + {10, 20}`}, want: "{11, 22}"},
		{name: "max", inputs: []string{`Max[3, 1, 2]`}, want: "3"},
		{
			name:     "division by zero",
			inputs:   []string{`1/0`},
			want:     "ComplexInfinity",
			messages: []string{"Power::infy: Infinite expression 1 / 0 encountered."},
		},
	})
}
