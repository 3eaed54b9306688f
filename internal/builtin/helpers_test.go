package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
	"github.com/mathics/gomathics/internal/parser"
)

// transcript is what a sequence of inputs produced: the OutputForm of the
// last value, every message and every printed line.
type transcript struct {
	out      string
	messages []string
	printed  []string
}

func run(t *testing.T, inputs ...string) transcript {
	t.Helper()
	defs := eval.NewDefinitions()
	Register(defs)

	var tr transcript
	sink := eval.SinkFunc(func(text string) { tr.printed = append(tr.printed, text) })
	for _, input := range inputs {
		parsed, err := parser.Parse(input)
		require.NoError(t, err, "parse %q", input)
		ev := eval.NewEvaluation(context.Background(), defs, sink)
		value := ev.Evaluate(parsed)
		require.NoError(t, ev.Err(), "evaluate %q", input)
		for _, m := range ev.Messages() {
			tr.messages = append(tr.messages, m.String())
		}
		tr.out = expr.OutputForm(value)
	}
	return tr
}

type builtinCase struct {
	name     string
	inputs   []string
	want     string
	messages []string
	printed  []string
}

func runCases(t *testing.T, tests []builtinCase) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := run(t, tt.inputs...)
			require.Equal(t, tt.want, got.out)
			require.Equal(t, tt.messages, got.messages)
			require.Equal(t, tt.printed, got.printed)
		})
	}
}
