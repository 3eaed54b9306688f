package repl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathics/gomathics/internal/session"
)

type scriptedReader struct {
	lines   []string
	prompts []string
	history []string
}

func (r *scriptedReader) Prompt(prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) AppendHistory(line string) { r.history = append(r.history, line) }

func (r *scriptedReader) Close() error { return nil }

func run(t *testing.T, opts Options, lines ...string) (string, *scriptedReader, *session.Session) {
	t.Helper()
	var out bytes.Buffer
	sess := session.New()
	reader := &scriptedReader{lines: lines}
	require.NoError(t, New(sess, &out, opts, nil).Run(context.Background(), reader))
	return out.String(), reader, sess
}

func TestNoPromptPrintsBareValues(t *testing.T) {
	t.Parallel()

	out, reader, sess := run(t, Options{NoPrompt: true},
		"1 + 1",
		"",
		"StringJoin[\"a\", \"b\"]",
		"x = 5;",
		"Print[\"hi\"]",
	)
	assert.Equal(t, "2\nab\nhi\n", out)
	assert.Equal(t, 5, sess.Line())
	assert.Equal(t, []string{"1 + 1", "StringJoin[\"a\", \"b\"]", "x = 5;", "Print[\"hi\"]"}, reader.history)
	for _, prompt := range reader.prompts {
		assert.Empty(t, prompt)
	}
}

func TestPromptsAndBanner(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sess := session.New()
	reader := NewScanReader(strings.NewReader("1 + 1\n"), &out, true)
	require.NoError(t, New(sess, &out, Options{Version: "9.9"}, nil).Run(context.Background(), reader))

	want := fmt.Sprintf(banner, "9.9") + "In[1]:= 1 + 1\nOut[1]= 2\n\nIn[2]:= \n"
	assert.Equal(t, want, out.String())
}

func TestEmptyLineDoesNotAdvanceCounter(t *testing.T) {
	t.Parallel()

	_, reader, sess := run(t, Options{}, "", "   ", "a")
	assert.Equal(t, []string{"In[1]:= ", "In[1]:= ", "In[1]:= ", "In[2]:= "}, reader.prompts)
	assert.Equal(t, 2, sess.Line())
}

func TestSyntaxErrorPrintsDiagnosticAndKeepsCounter(t *testing.T) {
	t.Parallel()

	out, reader, sess := run(t, Options{}, "1 +* 2", "3")
	assert.Contains(t, out, "Syntax::sntxf: ")
	assert.Contains(t, out, "Out[1]= 3\n")
	assert.Equal(t, []string{"In[1]:= ", "In[1]:= ", "In[2]:= "}, reader.prompts)
	assert.Equal(t, 2, sess.Line())
}

func TestIncompleteInputContinues(t *testing.T) {
	t.Parallel()

	out, reader, _ := run(t, Options{NoPrompt: false}, "StringJoin[\"a\",", "\"b\"]")
	assert.Contains(t, out, "Out[1]= ab\n")
	assert.Equal(t, []string{"In[1]:= ", "        ", "In[2]:= "}, reader.prompts)
	assert.Equal(t, []string{"StringJoin[\"a\", \"b\"]"}, reader.history)
}

func TestMessagesPrintedBeforeValue(t *testing.T) {
	t.Parallel()

	out, _, _ := run(t, Options{NoPrompt: true}, "StringLength[1, 2]")
	assert.Equal(t,
		"StringLength::argx: StringLength called with 2 arguments; 1 argument is expected.\nStringLength[1, 2]\n",
		out,
	)
}

func TestLineReassignmentIsHonored(t *testing.T) {
	t.Parallel()

	out, reader, _ := run(t, Options{}, "$Line = 10", "1")
	assert.Contains(t, out, "Out[1]= 10\n")
	assert.Contains(t, out, "Out[11]= 1\n")
	assert.Equal(t, []string{"In[1]:= ", "In[11]:= ", "In[12]:= "}, reader.prompts)
}

func TestInitFilesRunCommandsAndScripts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	initFile := filepath.Join(dir, "init.m")
	require.NoError(t, os.WriteFile(initFile, []byte("a = 1\n"), 0o600))
	script := filepath.Join(dir, "script.m")
	require.NoError(t, os.WriteFile(script, []byte("a + 10\nb = 3;\n\nb\n"), 0o600))

	opts := Options{
		NoPrompt:  true,
		InitFiles: []string{initFile},
		Run:       []string{"Print[a + 1]"},
		Scripts:   []string{script},
	}
	out, reader, sess := run(t, opts, "never read")
	assert.Equal(t, "2\n11\n3\n", out)
	assert.Equal(t, 4, sess.Line())
	assert.Empty(t, reader.prompts)

	opts.NoInit = true
	opts.Scripts = nil
	out, _, sess = run(t, opts)
	assert.Equal(t, "1 + a\n", out)
	assert.Equal(t, 1, sess.Line())
}

func TestMissingInitFileFails(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := New(session.New(), &out, Options{NoPrompt: true, InitFiles: []string{filepath.Join(t.TempDir(), "missing.m")}}, nil)
	err := r.Run(context.Background(), &scriptedReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read init file")
}

func TestScriptEchoesInputWithPrompts(t *testing.T) {
	t.Parallel()

	script := filepath.Join(t.TempDir(), "script.m")
	require.NoError(t, os.WriteFile(script, []byte("2 + 2\n"), 0o600))

	var out bytes.Buffer
	r := New(session.New(), &out, Options{Scripts: []string{script}, EchoInput: true, Version: "t"}, nil)
	require.NoError(t, r.Run(context.Background(), nil))

	want := fmt.Sprintf(banner, "t") + "In[1]:= 2 + 2\nOut[1]= 4\n\nIn[2]:= \n"
	assert.Equal(t, want, out.String())
}

func TestColorKeepsMessageAndResultText(t *testing.T) {
	t.Parallel()

	out, _, _ := run(t, Options{Color: true}, "StringLength[1, 2]", "1 + 1")
	assert.Contains(t, out, "StringLength::argx: StringLength called with 2 arguments; 1 argument is expected.")
	assert.Contains(t, out, "Out[2]=")
	assert.Contains(t, out, " 2\n")
}

type hookWriter struct {
	buf     bytes.Buffer
	onWrite func(p []byte)
}

func (w *hookWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if w.onWrite != nil {
		w.onWrite(p)
	}
	return n, err
}

func TestInterruptAbortsCurrentInputOnly(t *testing.T) {
	t.Parallel()

	out := &hookWriter{}
	r := New(session.New(), out, Options{NoPrompt: true}, nil)
	out.onWrite = func(p []byte) {
		if string(p) == "start\n" {
			r.Interrupt()
		}
	}

	require.NoError(t, r.Loop(context.Background(), &scriptedReader{lines: []string{
		"Print[\"start\"]; 1 + 1",
		"2 + 3",
	}}))
	assert.Equal(t, "start\nGeneral::abort: Computation aborted.\n$Aborted\n5\n", out.buf.String())
	assert.False(t, r.Interrupt())
}

func TestScanReaderPrompts(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	reader := NewScanReader(strings.NewReader("a\r\nb"), &out, false)
	line, err := reader.Prompt("> ")
	require.NoError(t, err)
	assert.Equal(t, "a", line)
	line, err = reader.Prompt("")
	require.NoError(t, err)
	assert.Equal(t, "b", line)
	_, err = reader.Prompt("> ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "> \n> ", out.String())
}
