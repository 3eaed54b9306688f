// Package repl is the line-oriented read-eval-print loop used from a
// terminal or with piped input.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/mathics/gomathics/internal/eval"
	"github.com/mathics/gomathics/internal/expr"
	"github.com/mathics/gomathics/internal/logging"
	"github.com/mathics/gomathics/internal/parser"
	"github.com/mathics/gomathics/internal/session"
)

const banner = `Mathics (gomathics %s)
Copyright (C) 2011-2013 The Mathics Team.
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it
under certain conditions.
See the documentation for the full license.
`

// Options mirrors the command-line flags of the REPL.
type Options struct {
	// NoPrompt suppresses the banner and the In/Out decoration.
	NoPrompt bool
	// NoInit skips InitFiles.
	NoInit    bool
	InitFiles []string
	// Run commands are evaluated before the loop without numbering.
	Run []string
	// Scripts are evaluated as if typed, then the REPL exits.
	Scripts []string
	// EchoInput prints script lines after their prompt.
	EchoInput bool
	// Color styles messages and Out labels for a terminal.
	Color   bool
	Version string
}

var (
	messageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	outLabelStyle = lipgloss.NewStyle().Faint(true)
)

// REPL reads inputs, evaluates them in one session and prints the results.
type REPL struct {
	session *session.Session
	out     io.Writer
	opts    Options
	logger  *log.Logger

	mu       sync.Mutex
	inFlight context.CancelFunc
}

// New creates a REPL writing to out.
func New(sess *session.Session, out io.Writer, opts Options, logger *log.Logger) *REPL {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &REPL{session: sess, out: out, opts: opts, logger: logger}
}

// Run prints the banner, evaluates init files and -run commands, then either
// runs the scripts or loops over reader until end of input.
func (r *REPL) Run(ctx context.Context, reader LineReader) error {
	if !r.opts.NoPrompt {
		fmt.Fprintf(r.out, banner, r.opts.Version)
	}

	if !r.opts.NoInit {
		for _, path := range r.opts.InitFiles {
			if err := r.runInitFile(ctx, path); err != nil {
				return err
			}
		}
	}

	for _, cmd := range r.opts.Run {
		r.evaluateQuiet(ctx, cmd)
	}

	if len(r.opts.Scripts) > 0 {
		for _, path := range r.opts.Scripts {
			if err := r.runScript(ctx, path); err != nil {
				return err
			}
		}
		return nil
	}
	return r.Loop(ctx, reader)
}

// Loop reads and evaluates inputs until reader reports io.EOF or ctx is
// cancelled. Lines are joined while the input is incomplete.
func (r *REPL) Loop(ctx context.Context, reader LineReader) error {
	for ctx.Err() == nil {
		src, err := r.readInput(reader)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(src) != "" {
			reader.AppendHistory(strings.ReplaceAll(src, "\n", " "))
			r.Evaluate(ctx, src)
		}
		if errors.Is(err, io.EOF) {
			if !r.opts.NoPrompt {
				fmt.Fprintln(r.out)
			}
			return nil
		}
	}
	return nil
}

func (r *REPL) readInput(reader LineReader) (string, error) {
	var b strings.Builder
	for {
		prompt := r.inPrompt()
		if b.Len() > 0 {
			prompt = r.continuationPrompt()
		}
		line, err := reader.Prompt(prompt)
		if err != nil {
			return b.String(), err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" {
			return src, nil
		}
		var syntaxErr *parser.SyntaxError
		if _, err := parser.ParseAll(src); errors.As(err, &syntaxErr) && syntaxErr.Incomplete {
			continue
		}
		return src, nil
	}
}

// Evaluate runs src as numbered input and prints messages and results.
// A syntax error prints a diagnostic and leaves the line number alone.
func (r *REPL) Evaluate(ctx context.Context, src string) []session.Result {
	evalCtx, cancel := context.WithCancel(ctx)
	r.setInFlight(cancel)
	defer func() {
		r.setInFlight(nil)
		cancel()
	}()

	results, err := r.session.Evaluate(evalCtx, src, r.sink())
	if err != nil {
		r.printError(err)
		return nil
	}
	for _, result := range results {
		r.printMessages(result.Messages)
		if !expr.IsNull(result.Value) {
			r.printResult(result)
		}
		if result.Aborted() {
			r.logger.Warn("evaluation aborted", "line", result.Line, "error", result.Err)
		}
	}
	if !r.opts.NoPrompt && len(results) > 0 {
		fmt.Fprintln(r.out)
	}
	return results
}

// Interrupt aborts the evaluation in flight, if any.
func (r *REPL) Interrupt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight == nil {
		return false
	}
	r.inFlight()
	return true
}

func (r *REPL) setInFlight(cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight = cancel
}

func (r *REPL) evaluateQuiet(ctx context.Context, src string) {
	results, err := r.session.EvaluateQuiet(ctx, src, r.sink())
	if err != nil {
		r.printError(err)
		return
	}
	for _, result := range results {
		r.printMessages(result.Messages)
	}
}

func (r *REPL) runInitFile(ctx context.Context, path string) error {
	// #nosec G304 -- init files are named on the command line.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read init file: %w", err)
	}
	r.logger.Debug("running init file", "path", path)
	r.evaluateQuiet(ctx, string(data))
	return nil
}

func (r *REPL) runScript(ctx context.Context, path string) error {
	// #nosec G304 -- scripts are named on the command line.
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	var promptOut io.Writer
	if !r.opts.NoPrompt {
		promptOut = r.out
	}
	r.logger.Debug("running script", "path", path)
	return r.Loop(ctx, NewScanReader(f, promptOut, r.opts.EchoInput))
}

func (r *REPL) sink() eval.OutputSink {
	return eval.SinkFunc(func(text string) {
		fmt.Fprintln(r.out, text)
	})
}

func (r *REPL) printMessages(messages []eval.Message) {
	for _, msg := range messages {
		fmt.Fprintln(r.out, r.paint(messageStyle, msg.String()))
	}
}

func (r *REPL) paint(style lipgloss.Style, text string) string {
	if !r.opts.Color {
		return text
	}
	return style.Render(text)
}

func (r *REPL) printResult(result session.Result) {
	if r.opts.NoPrompt {
		fmt.Fprintln(r.out, result.Text)
		return
	}
	label := r.paint(outLabelStyle, fmt.Sprintf("Out[%d]=", result.Line))
	fmt.Fprintf(r.out, "%s %s\n", label, result.Text)
}

func (r *REPL) printError(err error) {
	var syntaxErr *parser.SyntaxError
	if errors.As(err, &syntaxErr) {
		fmt.Fprintln(r.out, r.paint(messageStyle, session.SyntaxMessage(syntaxErr).String()))
		return
	}
	fmt.Fprintf(r.out, "error: %v\n", err)
}

func (r *REPL) inPrompt() string {
	if r.opts.NoPrompt {
		return ""
	}
	return fmt.Sprintf("In[%d]:= ", r.session.Line())
}

func (r *REPL) continuationPrompt() string {
	if r.opts.NoPrompt {
		return ""
	}
	return strings.Repeat(" ", len(r.inPrompt()))
}
