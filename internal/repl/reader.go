package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

// HistoryFileName is the liner history file kept in the home directory.
const HistoryFileName = ".mathics_history"

// LineReader yields one input line per Prompt call and io.EOF at the end of
// input.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// IsTerminal reports whether stdin and stdout are both terminals.
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// DefaultHistoryPath returns ~/.mathics_history.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, HistoryFileName)
}

// TerminalReader edits lines with liner and keeps a history file.
type TerminalReader struct {
	state       *liner.State
	historyPath string
}

// NewTerminalReader takes over the terminal. historyPath may be empty.
func NewTerminalReader(historyPath string) *TerminalReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return &TerminalReader{state: state, historyPath: historyPath}
}

// Prompt reads one line. Ctrl-C at the prompt discards the line.
func (r *TerminalReader) Prompt(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", nil
	}
	return line, err
}

func (r *TerminalReader) AppendHistory(line string) {
	r.state.AppendHistory(line)
}

// Close writes the history file and restores the terminal.
func (r *TerminalReader) Close() error {
	var errs []error
	if r.historyPath != "" {
		f, err := os.Create(r.historyPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("write history: %w", err))
		} else {
			if _, err := r.state.WriteHistory(f); err != nil {
				errs = append(errs, fmt.Errorf("write history: %w", err))
			}
			_ = f.Close()
		}
	}
	if err := r.state.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ScanReader reads lines from a pipe or file. Prompts are written to out
// followed by the line read when echo is set, or a newline otherwise.
type ScanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
	echo    bool
}

// NewScanReader reads from in. out may be nil to suppress prompts.
func NewScanReader(in io.Reader, out io.Writer, echo bool) *ScanReader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &ScanReader{scanner: scanner, out: out, echo: echo}
}

func (r *ScanReader) Prompt(prompt string) (string, error) {
	if r.out != nil && prompt != "" {
		fmt.Fprint(r.out, prompt)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	line := strings.TrimSuffix(r.scanner.Text(), "\r")
	switch {
	case r.out == nil:
	case r.echo:
		fmt.Fprintln(r.out, line)
	case prompt != "":
		fmt.Fprintln(r.out)
	}
	return line, nil
}

func (r *ScanReader) AppendHistory(string) {}

func (r *ScanReader) Close() error { return nil }
