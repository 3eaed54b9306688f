package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mathics/gomathics/internal/expr"
)

var namedPatterns = map[string]string{
	"NumberString":         `\d+`,
	"Whitespace":           `\s+`,
	"DigitCharacter":       `\d`,
	"WhitespaceCharacter":  `\s`,
	"WordCharacter":        `\w`,
	"LetterCharacter":      `[a-zA-Z]`,
	"HexidecimalCharacter": `[0-9a-fA-F]`,
	"StartOfLine":          `(?m:^)`,
	"EndOfLine":            `(?m:$)`,
	"StartOfString":        `^`,
	"EndOfString":          `$`,
	"WordBoundary":         `\b`,
}

// negatedClasses maps a single-character class onto its complement.
var negatedClasses = map[string]string{
	`\d`: `\D`,
	`\s`: `\S`,
	`\w`: `\W`,
}

// toRegex translates a string pattern into Go regexp syntax. ok is false for
// shapes that have no translation.
func toRegex(e expr.Expr) (string, bool) {
	switch v := e.(type) {
	case expr.String:
		return "(?:" + regexp.QuoteMeta(v.Value) + ")", true
	case expr.Symbol:
		re, ok := namedPatterns[v.Name]
		return re, ok
	case *expr.Expression:
		return expressionRegex(v)
	}
	return "", false
}

func expressionRegex(n *expr.Expression) (string, bool) {
	leaves := n.Leaves()
	switch expr.HeadName(n) {
	case "RegularExpression":
		if len(leaves) == 1 {
			if s, ok := expr.AsString(leaves[0]); ok {
				if _, err := regexp.Compile(s); err == nil {
					return "(?:" + s + ")", true
				}
			}
		}
	case "CharacterRange":
		if len(leaves) == 2 {
			start, ok1 := expr.AsString(leaves[0])
			stop, ok2 := expr.AsString(leaves[1])
			if ok1 && ok2 && len([]rune(start)) == 1 && len([]rune(stop)) == 1 {
				return fmt.Sprintf("[%s-%s]", classEscape(start), classEscape(stop)), true
			}
		}
	case "Characters":
		if len(leaves) == 1 {
			if s, ok := expr.AsString(leaves[0]); ok && s != "" {
				return "[" + classEscape(s) + "]", true
			}
		}
	case "Blank":
		if len(leaves) == 0 {
			return `(?s:.)`, true
		}
	case "BlankSequence":
		if len(leaves) == 0 {
			return `(?s:.+)`, true
		}
	case "BlankNullSequence":
		if len(leaves) == 0 {
			return `(?s:.*)`, true
		}
	case "Except":
		if len(leaves) == 1 {
			return exceptRegex(leaves[0])
		}
	case "StringExpression":
		var b strings.Builder
		for _, leaf := range leaves {
			re, ok := toRegex(leaf)
			if !ok {
				return "", false
			}
			b.WriteString(re)
		}
		return b.String(), true
	case "Longest":
		if len(leaves) == 1 {
			return toRegex(leaves[0])
		}
	case "Shortest":
		if len(leaves) == 1 {
			if re, ok := toRegex(leaves[0]); ok {
				return "(?U:" + re + ")", true
			}
		}
	case "Repeated":
		if len(leaves) == 1 {
			if re, ok := toRegex(leaves[0]); ok {
				return "(?:" + re + ")+", true
			}
		}
	case "RepeatedNull":
		if len(leaves) == 1 {
			if re, ok := toRegex(leaves[0]); ok {
				return "(?:" + re + ")*", true
			}
		}
	case "Alternatives":
		if len(leaves) == 0 {
			return "", false
		}
		parts := make([]string, len(leaves))
		for i, leaf := range leaves {
			re, ok := toRegex(leaf)
			if !ok {
				return "", false
			}
			parts[i] = re
		}
		return "(?:" + strings.Join(parts, "|") + ")", true
	}
	return "", false
}

// exceptRegex complements single-character patterns.
func exceptRegex(e expr.Expr) (string, bool) {
	if s, ok := expr.AsString(e); ok && len([]rune(s)) == 1 {
		return "[^" + classEscape(s) + "]", true
	}
	re, ok := toRegex(e)
	if !ok {
		return "", false
	}
	if neg, ok := negatedClasses[re]; ok {
		return neg, true
	}
	if strings.HasPrefix(re, "[") && !strings.HasPrefix(re, "[^") && strings.HasSuffix(re, "]") {
		return "[^" + re[1:], true
	}
	return "", false
}

func classEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', ']', '[', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
