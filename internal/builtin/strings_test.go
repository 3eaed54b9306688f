package builtin

import "testing"

func TestStringBuiltins(t *testing.T) {
	t.Parallel()

	runCases(t, []builtinCase{
		{name: "join", inputs: []string{`StringJoin["a", "b", "c"]`}, want: "abc"},
		{name: "join operator", inputs: []string{`"a" <> "b" <> "c" // InputForm`}, want: `"abc"`},
		{name: "join flattens lists", inputs: []string{`StringJoin[{"a", "b"}] // InputForm`}, want: `"ab"`},
		{
			name:    "join nested lists in print",
			inputs:  []string{`Print[StringJoin[{"Hello", " ", {"world"}}, "!"]]`},
			want:    "Null",
			printed: []string{"Hello world!"},
		},
		{
			name:     "join rejects non-strings",
			inputs:   []string{`"U" <> 2`},
			want:     "U <> 2",
			messages: []string{"StringJoin::string: String expected."},
		},
		{name: "join with ToString", inputs: []string{`"U" <> ToString[2]`}, want: "U2"},
		{name: "split on separator", inputs: []string{`StringSplit["abc,123", ","]`}, want: "{abc, 123}"},
		{name: "split on whitespace", inputs: []string{`StringSplit["abc 123"]`}, want: "{abc, 123}"},
		{name: "split collapses whitespace", inputs: []string{`StringSplit["  a   b  "]`}, want: "{a, b}"},
		{name: "split on separator list", inputs: []string{`StringSplit["abc,123.456", {",", "."}]`}, want: "{abc, 123, 456}"},
		{name: "split drops empty pieces", inputs: []string{`StringSplit["x", "x"]`}, want: "{}"},
		{name: "split on pattern", inputs: []string{`StringSplit["a1b22c", DigitCharacter ..]`}, want: "{a, b, c}"},
		{
			name:     "split rejects non-string",
			inputs:   []string{`StringSplit[x]`},
			want:     "StringSplit[x]",
			messages: []string{"StringSplit::strse: String or list of strings expected at position 1 in StringSplit[x]."},
		},
		{
			name:     "split rejects symbol separator",
			inputs:   []string{`StringSplit["x", x]`},
			want:     "StringSplit[x, x]",
			messages: []string{"StringSplit::strse: String or list of strings expected at position 2 in StringSplit[x, x]."},
		},
		{name: "length", inputs: []string{`StringLength["abc"]`}, want: "3"},
		{name: "length is listable", inputs: []string{`StringLength[{"a", "bc"}]`}, want: "{1, 2}"},
		{
			name:     "length of symbol",
			inputs:   []string{`StringLength[x]`},
			want:     "StringLength[x]",
			messages: []string{"StringLength::string: String expected."},
		},
		{name: "characters", inputs: []string{`Characters["abc"]`}, want: "{a, b, c}"},
		{name: "character range", inputs: []string{`CharacterRange["a", "e"]`}, want: "{a, b, c, d, e}"},
		{name: "character range reversed", inputs: []string{`CharacterRange["b", "a"]`}, want: "{}"},
		{
			name:     "character range needs single characters",
			inputs:   []string{`CharacterRange["ab", "c"]`},
			want:     "CharacterRange[ab, c]",
			messages: []string{"CharacterRange::argtype: Arguments ab and c are not both strings of length 1."},
		},
		{name: "to string", inputs: []string{`ToString[2] // InputForm`}, want: `"2"`},
		{name: "to string of sum", inputs: []string{`ToString[a + b]`}, want: "a + b"},
		{name: "to expression", inputs: []string{`ToExpression["1 + 2"]`}, want: "3"},
		{name: "to expression with head", inputs: []string{`ToExpression["{2, 3, 1}", InputForm, Max]`}, want: "3"},
		{
			name:     "to expression incomplete",
			inputs:   []string{`ToExpression["1+"]`},
			want:     "$Failed",
			messages: []string{"ToExpression::sntxi: Incomplete expression; more input is needed ."},
		},
		{
			name:     "to expression without arguments",
			inputs:   []string{`ToExpression[]`},
			want:     "ToExpression[]",
			messages: []string{"ToExpression::argb: ToExpression called with 0 arguments; between 1 and 3 arguments are expected."},
		},
		{name: "string q", inputs: []string{`{StringQ["abc"], StringQ[1.5]}`}, want: "{True, False}"},
		{name: "regular expression stays inert", inputs: []string{`RegularExpression["[abc]"]`}, want: "RegularExpression[[abc]]"},
		{name: "string expression of literals", inputs: []string{`"a" ~~ "b" // InputForm`}, want: `"ab"`},
	})
}

func TestStringReplace(t *testing.T) {
	t.Parallel()

	runCases(t, []builtinCase{
		{name: "all occurrences", inputs: []string{`StringReplace["xyxyxyyyxxxyyxy", "xy" -> "A"]`}, want: "AAAyyxxAyA"},
		{name: "rule list", inputs: []string{`StringReplace["xyzwxyzwxxyzxyzw", {"xyz" -> "A", "w" -> "BCD"}]`}, want: "ABCDABCDxAABCD"},
		{name: "first n", inputs: []string{`StringReplace["xyxyxyyyxxxyyxy", "xy" -> "A", 2]`}, want: "AAxyyyxxxyyxy"},
		{name: "list of strings", inputs: []string{`StringReplace[{"xyxyxxy", "yxyxyxxxyyxy"}, "xy" -> "A"]`}, want: "{AAxA, yAAxxAyA}"},
		{name: "infinity", inputs: []string{`StringReplace["abcabc", "a" -> "b", Infinity]`}, want: "bbcbbc"},
		{name: "repeated", inputs: []string{`StringReplace["01101100010", "01" .. -> "x"]`}, want: "x1x100x0"},
		{name: "blank", inputs: []string{`StringReplace["abc abcb abdc", "ab" ~~ _ -> "X"]`}, want: "X Xb Xc"},
		{
			name:   "word boundary",
			inputs: []string{`StringReplace["abc abcd abcd", WordBoundary ~~ "abc" ~~ WordBoundary -> "XX"]`},
			want:   "XX abcd abcd",
		},
		{name: "regular expression", inputs: []string{`StringReplace["abcd acbd", RegularExpression["[ab]"] -> "XX"]`}, want: "XXXXcd XXcXXd"},
		{
			name:   "regular expression in string expression",
			inputs: []string{`StringReplace["abcd acbd", RegularExpression["[ab]"] ~~ _ -> "YY"]`},
			want:   "YYcd YYYY",
		},
		{name: "rules apply in order", inputs: []string{`StringReplace["abcdabcdaabcabcd", {"abc" -> "Y", "d" -> "XXX"}]`}, want: "YXXXYXXXaYYXXX"},
		{
			name:   "trim with anchors",
			inputs: []string{`StringReplace["  Have a nice day.  ", (StartOfString ~~ Whitespace) | (Whitespace ~~ EndOfString) -> ""] // FullForm`},
			want:   `"Have a nice day."`,
		},
		{name: "ignore case", inputs: []string{`StringReplace["ABab", "a" -> "x", IgnoreCase -> True]`}, want: "xBxb"},
		{name: "replacement text is literal", inputs: []string{`StringReplace["ab", "a" -> "$1"]`}, want: "$1b"},
		{
			name:     "non-string target",
			inputs:   []string{`StringReplace[x, "a" -> "b"]`},
			want:     "StringReplace[x, a -> b]",
			messages: []string{"StringReplace::strse: String or list of strings expected at position 1 in StringReplace[x, a -> b]."},
		},
		{
			name:     "invalid rule",
			inputs:   []string{`StringReplace["xyzwxyzwaxyzxyzw", x]`},
			want:     "StringReplace[xyzwxyzwaxyzxyzw, x]",
			messages: []string{"StringReplace::srep: x is not a valid string replacement rule."},
		},
		{
			name:     "invalid pattern element",
			inputs:   []string{`StringReplace["xyzwxyzwaxyzxyzw", x -> y]`},
			want:     "StringReplace[xyzwxyzwaxyzxyzw, x -> y]",
			messages: []string{"StringExpression::invld: Element x is not a valid string or pattern element in x."},
		},
		{
			name:     "invalid count",
			inputs:   []string{`StringReplace["abcabc", "a" -> "b", x]`},
			want:     "StringReplace[abcabc, a -> b, x]",
			messages: []string{"StringReplace::innf: Non-negative integer or Infinity expected at position 3 in StringReplace[abcabc, a -> b, x]."},
		},
	})
}
