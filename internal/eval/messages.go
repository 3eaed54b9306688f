package eval

import (
	"strconv"
	"strings"

	"github.com/mathics/gomathics/internal/expr"
)

// Message is a diagnostic raised during evaluation, e.g.
// StringSplit::strse: String or list of strings expected at position 1 in
// StringSplit[x].
type Message struct {
	Symbol string
	Tag    string
	Text   string
}

func (m Message) String() string {
	return m.Symbol + "::" + m.Tag + ": " + m.Text
}

// Expr renders the message name as MessageName[symbol, "tag"].
func (m Message) Expr() expr.Expr {
	return expr.Call("MessageName", expr.Sym(m.Symbol), expr.Str(m.Tag))
}

var generalMessages = map[string]string{
	"argb":      "`1` called with `2` arguments; between `3` and `4` arguments are expected.",
	"argr":      "`1` called with 1 argument; `2` arguments are expected.",
	"argrx":     "`1` called with `2` arguments; `3` arguments are expected.",
	"argx":      "`1` called with `2` arguments; 1 argument is expected.",
	"argt":      "`1` called with `2` arguments; `3` or `4` arguments are expected.",
	"string":    "String expected.",
	"strse":     "String or list of strings expected at position `1` in `2`.",
	"ssym":      "`1` is not a symbol or a string.",
	"sym":       "Argument `1` at position `2` is expected to be a symbol.",
	"intp":      "Positive integer expected at position `1` in `2`.",
	"int":       "Integer expected at position `1` in `2`.",
	"tdlen":     "Objects of unequal length in `1` cannot be combined.",
	"reclim":    "Recursion depth of `1` exceeded.",
	"itlim":     "Iteration limit of `1` exceeded.",
	"timeout":   "Timeout reached.",
	"abort":     "Computation aborted.",
	"wrsym":     "Symbol `1` is Protected.",
	"write":     "Tag `1` in `2` is Protected.",
	"setraw":    "Cannot assign to raw object `1`.",
	"optnf":     "Option name `1` not found.",
	"optx":      "Unknown option `1` in `2`.",
	"sntxi":     "Incomplete expression; more input is needed.",
	"sntxf":     "`1` cannot be followed by `2`.",
	"infy":      "Infinite expression `1` encountered.",
	"indet":     "Indeterminate expression `1` encountered.",
	"interpfmt": "`1` is not a valid interpretation format.",
	"partw":     "Part `1` of `2` does not exist.",
}

// formatMessage substitutes `n` placeholders with the OutputForm of the
// n-th argument.
func formatMessage(template string, args []expr.Expr) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(template, '`')
		if start < 0 {
			b.WriteString(template)
			break
		}
		end := strings.IndexByte(template[start+1:], '`')
		if end < 0 {
			b.WriteString(template)
			break
		}
		end += start + 1
		b.WriteString(template[:start])
		n, err := strconv.Atoi(template[start+1 : end])
		if err != nil || n < 1 || n > len(args) {
			b.WriteString(template[start : end+1])
		} else {
			b.WriteString(expr.OutputForm(args[n-1]))
		}
		template = template[end+1:]
	}
	return b.String()
}
