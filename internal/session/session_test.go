package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
	"github.com/mathics/gomathics/internal/parser"
)

type recordingStore struct {
	results []Result
	err     error
}

func (r *recordingStore) Record(_ context.Context, result Result) error {
	r.results = append(r.results, result)
	return r.err
}

func evaluate(t *testing.T, s *Session, src string) []Result {
	t.Helper()
	results, err := s.Evaluate(context.Background(), src, nil)
	require.NoError(t, err)
	return results
}

func TestLineCounterAdvancesPerInput(t *testing.T) {
	t.Parallel()

	s := New()
	assert.Equal(t, 1, s.Line())
	assert.Equal(t, 0, s.ExecutionCount())

	results := evaluate(t, s, "1 + 1\n\nx = 5")
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Line)
	assert.Equal(t, "2", results[0].Text)
	assert.Equal(t, 2, results[1].Line)
	assert.Equal(t, "5", results[1].Text)
	assert.Equal(t, 3, s.Line())
	assert.Equal(t, 2, s.ExecutionCount())
}

func TestSyntaxErrorLeavesCounterUnchanged(t *testing.T) {
	t.Parallel()

	s := New()
	evaluate(t, s, "a = 1")

	results, err := s.Evaluate(context.Background(), "b = 2\n1 +* 2", nil)
	require.Error(t, err)
	var syntaxErr *parser.SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.Empty(t, results)
	assert.Equal(t, 2, s.Line())

	results = evaluate(t, s, "b")
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Text)
	assert.Equal(t, 2, results[0].Line)
}

func TestInOutReferences(t *testing.T) {
	t.Parallel()

	s := New()
	evaluate(t, s, "x = 3")
	evaluate(t, s, "x^2")

	cases := []struct {
		input string
		want  string
	}{
		{input: "%", want: "9"},
		{input: "Out[1]", want: "3"},
		{input: "%%", want: "9"},
		{input: "InString[2]", want: "x^2"},
	}
	for _, tc := range cases {
		results := evaluate(t, s, tc.input)
		require.Len(t, results, 1)
		assert.Equal(t, tc.want, results[0].Text, tc.input)
	}
}

func TestInReevaluates(t *testing.T) {
	t.Parallel()

	s := New()
	evaluate(t, s, "y")
	evaluate(t, s, "y = 7")
	results := evaluate(t, s, "In[1]")
	require.Len(t, results, 1)
	assert.Equal(t, "7", results[0].Text)
}

func TestNullValueIsNotStoredAsOut(t *testing.T) {
	t.Parallel()

	s := New()
	results := evaluate(t, s, "z = 1;")
	require.Len(t, results, 1)
	assert.True(t, expr.IsNull(results[0].Value))
	assert.Empty(t, results[0].Text)

	results = evaluate(t, s, "Out[1]")
	assert.Equal(t, "Out[1]", results[0].Text)
}

func TestLineReassignment(t *testing.T) {
	t.Parallel()

	s := New()
	evaluate(t, s, "$Line = 10")
	assert.Equal(t, 11, s.Line())

	results := evaluate(t, s, "1")
	assert.Equal(t, 11, results[0].Line)
	assert.Equal(t, 12, s.Line())
}

func TestMessageListPerLine(t *testing.T) {
	t.Parallel()

	s := New()
	results := evaluate(t, s, "StringLength[1, 2]")
	require.Len(t, results, 1)
	require.Len(t, results[0].Messages, 1)
	assert.Equal(t, "StringLength", results[0].Messages[0].Symbol)

	results = evaluate(t, s, "MessageList[1]")
	assert.Equal(t, "{StringLength::argx}", results[0].Text)

	results = evaluate(t, s, "$MessageList")
	assert.Equal(t, "{}", results[0].Text)
}

func TestPrintGoesToSink(t *testing.T) {
	t.Parallel()

	s := New()
	var printed []string
	sink := eval.SinkFunc(func(text string) { printed = append(printed, text) })
	results, err := s.Evaluate(context.Background(), `Print["hi ", 2]`, sink)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"hi 2"}, printed)
	assert.Empty(t, results[0].Text)
}

func TestTimeoutAborts(t *testing.T) {
	t.Parallel()

	s := New(WithTimeout(20 * time.Millisecond))
	evaluate(t, s, "$RecursionLimit = 1000000")
	evaluate(t, s, "$IterationLimit = 100000000")
	evaluate(t, s, "g[n_] := g[n + 1]")

	results := evaluate(t, s, "g[1]")
	require.Len(t, results, 1)
	assert.Equal(t, "$Aborted", results[0].Text)
	assert.True(t, results[0].Aborted())
	assert.ErrorIs(t, results[0].Err, eval.ErrTimeout)
}

func TestCancelledContextStopsRemainingInputs(t *testing.T) {
	t.Parallel()

	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.Evaluate(ctx, "1\n2", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "$Aborted", results[0].Text)
	assert.ErrorIs(t, results[0].Err, eval.ErrAborted)
	assert.Equal(t, 2, s.Line())
}

func TestRecorderReceivesResults(t *testing.T) {
	t.Parallel()

	store := &recordingStore{err: errors.New("disk full")}
	s := New(WithRecorder(store))
	evaluate(t, s, "1\n2")

	require.Len(t, store.results, 2)
	assert.Equal(t, 1, store.results[0].Line)
	assert.Equal(t, "2", store.results[1].Input)
}

func TestWithLimitsSetsOwnValues(t *testing.T) {
	t.Parallel()

	s := New(WithLimits(64, 0))
	results := evaluate(t, s, "{$RecursionLimit, $IterationLimit}")
	require.Len(t, results, 1)
	assert.Equal(t, "{64, 4096}", results[0].Text)
}

func TestSyntaxMessage(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Evaluate(context.Background(), "1 +* 2", nil)
	var syntaxErr *parser.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)

	msg := SyntaxMessage(syntaxErr)
	assert.Equal(t, "Syntax", msg.Symbol)
	assert.Equal(t, "sntxf", msg.Tag)
	assert.Contains(t, msg.String(), "Syntax::sntxf: ")

	incomplete := SyntaxMessage(&parser.SyntaxError{Msg: "unterminated string", Incomplete: true})
	assert.Equal(t, "Syntax::sntxi: Incomplete expression; more input is needed.", incomplete.String())
}

func TestEvaluateQuietLeavesCounterAlone(t *testing.T) {
	t.Parallel()

	s := New()
	results, err := s.EvaluateQuiet(context.Background(), "x = 4\nStringLength[\"abc\"]", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Line)
	assert.Equal(t, "3", results[1].Text)
	assert.Equal(t, 1, s.Line())

	evaluated := evaluate(t, s, "x")
	assert.Equal(t, "4", evaluated[0].Text)
	assert.Equal(t, 1, evaluated[0].Line)

	evaluated = evaluate(t, s, "InString[1]")
	assert.Equal(t, "x", evaluated[0].Text)
}
