// Package session owns the definitions of one kernel or REPL process and
// the input/output bookkeeping around each evaluated line.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mathics/gomathics/internal/builtin"
	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
	"github.com/mathics/gomathics/internal/logging"
	"github.com/mathics/gomathics/internal/parser"
)

// DefaultTimeout bounds a single top-level evaluation.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of one top-level input.
type Result struct {
	Line     int
	Input    string
	Value    expr.Expr
	Messages []eval.Message
	// Text is the OutputForm of Value, empty when Value is Null.
	Text string
	// Err is set when the evaluation was aborted (interrupt, timeout or
	// recursion limit).
	Err error
}

// Aborted reports whether the evaluation stopped early.
func (r Result) Aborted() bool { return r.Err != nil }

// Recorder receives every completed Result. The history store implements it.
type Recorder interface {
	Record(ctx context.Context, result Result) error
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout sets the per-input evaluation timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		if timeout >= 0 {
			s.timeout = timeout
		}
	}
}

// WithRecorder attaches a Recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Session) {
		s.recorder = recorder
	}
}

// WithLogger sets the logger used for recorder failures and evaluation
// summaries.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLimits overrides $RecursionLimit and $IterationLimit. Non-positive
// values keep the defaults.
func WithLimits(recursion, iteration int) Option {
	return func(s *Session) {
		s.recursionLimit = recursion
		s.iterationLimit = iteration
	}
}

// Session holds the definitions shared by every input of one process.
type Session struct {
	mu       sync.Mutex
	defs     *eval.Definitions
	timeout  time.Duration
	recorder Recorder
	logger   *log.Logger

	recursionLimit int
	iterationLimit int
}

// New builds a session with every built-in registered and $Line at 1.
func New(opts ...Option) *Session {
	s := &Session{
		defs:    eval.NewDefinitions(),
		timeout: DefaultTimeout,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	builtin.Register(s.defs)
	if s.recursionLimit > 0 {
		s.defs.SetOwnValue("$RecursionLimit", expr.Int(int64(s.recursionLimit)))
	}
	if s.iterationLimit > 0 {
		s.defs.SetOwnValue("$IterationLimit", expr.Int(int64(s.iterationLimit)))
	}
	s.defs.SetOwnValue("$Line", expr.Int(1))
	s.defs.SetOwnValue("$MessageList", expr.List())
	return s
}

// Definitions exposes the session's definitions table.
func (s *Session) Definitions() *eval.Definitions { return s.defs }

// Line returns $Line, the number the next input will get.
func (s *Session) Line() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.line()
}

// ExecutionCount returns how many inputs have been numbered so far.
func (s *Session) ExecutionCount() int { return s.Line() - 1 }

// Evaluate parses src into top-level inputs and evaluates them in order.
// A syntax error anywhere in src evaluates nothing and leaves $Line alone.
// Printed output goes to sink as it happens.
func (s *Session) Evaluate(ctx context.Context, src string, sink eval.OutputSink) ([]Result, error) {
	chunks, err := parser.ParseAll(src)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]Result, 0, len(chunks))
	for _, chunk := range chunks {
		result := s.evaluateChunk(ctx, chunk, sink)
		results = append(results, result)
		if s.recorder != nil {
			// Aborted inputs still consumed a line number.
			if err := s.recorder.Record(context.WithoutCancel(ctx), result); err != nil {
				s.logger.Warn("record history", "line", result.Line, "error", err)
			}
		}
		if errors.Is(result.Err, eval.ErrAborted) {
			break
		}
	}
	return results, nil
}

// evaluateChunk numbers one input, evaluates it and stores In, InString,
// Out and MessageList for its line.
func (s *Session) evaluateChunk(ctx context.Context, chunk parser.Chunk, sink eval.OutputSink) Result {
	line := s.line()
	n := expr.Int(int64(line))

	s.defs.AddRule("InString", eval.Rule{Pattern: expr.Call("InString", n), Replacement: expr.Str(chunk.Source)})
	s.defs.AddRule("In", eval.Rule{Pattern: expr.Call("In", n), Replacement: chunk.Expr, Delayed: true})

	evalCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	ev := eval.NewEvaluation(evalCtx, s.defs, sink)
	value := ev.Evaluate(chunk.Expr)

	messages := ev.Messages()
	messageList := make([]expr.Expr, 0, len(messages))
	for _, m := range messages {
		messageList = append(messageList, m.Expr())
	}
	list := expr.List(messageList...)
	s.defs.SetOwnValue("$MessageList", list)

	result := Result{
		Line:     line,
		Input:    chunk.Source,
		Value:    value,
		Messages: messages,
		Err:      ev.Err(),
	}
	if !expr.IsNull(value) {
		result.Text = expr.OutputForm(value)
		s.defs.AddRule("Out", eval.Rule{Pattern: expr.Call("Out", n), Replacement: value})
	}
	s.defs.AddRule("MessageList", eval.Rule{Pattern: expr.Call("MessageList", n), Replacement: list})
	s.defs.SetOwnValue("$MessageList", expr.List())

	// $Line may have been reassigned by the input itself.
	s.defs.SetOwnValue("$Line", expr.Int(int64(s.lineOr(line)+1)))

	s.logger.Debug("evaluated input",
		"line", line,
		"messages", len(messages),
		"elapsed", time.Since(started),
		"aborted", result.Aborted(),
	)
	return result
}

// EvaluateQuiet evaluates src without numbering it: In, Out, InString,
// MessageList and $Line are left alone. Startup commands run this way.
func (s *Session) EvaluateQuiet(ctx context.Context, src string, sink eval.OutputSink) ([]Result, error) {
	chunks, err := parser.ParseAll(src)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]Result, 0, len(chunks))
	for _, chunk := range chunks {
		evalCtx, cancel := s.withTimeout(ctx)
		ev := eval.NewEvaluation(evalCtx, s.defs, sink)
		value := ev.Evaluate(chunk.Expr)
		cancel()

		result := Result{Input: chunk.Source, Value: value, Messages: ev.Messages(), Err: ev.Err()}
		if !expr.IsNull(value) {
			result.Text = expr.OutputForm(value)
		}
		results = append(results, result)
		if errors.Is(result.Err, eval.ErrAborted) {
			break
		}
	}
	return results, nil
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) line() int { return s.lineOr(1) }

func (s *Session) lineOr(fallback int) int {
	v, ok := s.defs.OwnValue("$Line")
	if !ok {
		return fallback
	}
	n, ok := expr.AsInt(v)
	if !ok || n < 1 {
		return fallback
	}
	return int(n)
}

// SyntaxMessage renders a parse failure as a Syntax message for display.
func SyntaxMessage(err *parser.SyntaxError) eval.Message {
	if err.Incomplete {
		return eval.Message{Symbol: "Syntax", Tag: err.Tag(), Text: "Incomplete expression; more input is needed."}
	}
	return eval.Message{
		Symbol: "Syntax",
		Tag:    err.Tag(),
		Text:   fmt.Sprintf("%s (at position %d).", err.Msg, err.Pos+1),
	}
}
