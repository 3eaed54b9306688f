package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/mathics/gomathics/internal/config"
	"github.com/mathics/gomathics/test"
)

func TestRootCommandVersionFlag(t *testing.T) {
	originalVersion := Version
	defer func() {
		Version = originalVersion
	}()
	Version = "v0.1.0-test"
	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger(), "session-test")

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := strings.TrimSpace(stdout.String())
	if output != "v0.1.0-test" {
		t.Fatalf("version output = %q, want %q", output, "v0.1.0-test")
	}
}

func TestRootCommandHelpListsExpectedSubcommands(t *testing.T) {
	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger(), "session-test")
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := stdout.String()
	expected := []string{"kernel", "version", "bugreport", "--noprompt", "--initfile", "--script"}
	for _, name := range expected {
		if !strings.Contains(output, name) {
			t.Fatalf("help output missing %q: %s", name, output)
		}
	}
}

func TestKernelCommandRequiresExactlyOneArgument(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no connection file", args: []string{"kernel"}},
		{name: "two connection files", args: []string{"kernel", "a.json", "b.json"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newRootCommand(context.Background(), &config.Config{}, testLogger(), "session-test")
			var stdout bytes.Buffer
			cmd.SetOut(&stdout)
			cmd.SetErr(&stdout)
			cmd.SetArgs(tc.args)

			if err := cmd.Execute(); err == nil {
				t.Fatalf("execute %v succeeded, want argument error", tc.args)
			}
		})
	}
}

func TestKernelCommandFailsOnMissingConnectionFile(t *testing.T) {
	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger(), "session-test")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"kernel", filepath.Join(t.TempDir(), "missing.json")})

	err := cmd.Execute()
	if !errors.Is(err, config.ErrConnectionFile) {
		t.Fatalf("execute error = %v, want ErrConnectionFile", err)
	}
}

func TestVersionCommand(t *testing.T) {
	originalVersion := Version
	defer func() {
		Version = originalVersion
	}()
	Version = "1.2.3"

	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger(), "session-test")
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := stdout.String(); got != "gomathics 1.2.3\n" {
		t.Fatalf("version output = %q", got)
	}
}

func TestREPLWithoutPromptPrintsBareResults(t *testing.T) {
	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger(), "session-test")
	var stdout bytes.Buffer
	cmd.SetIn(strings.NewReader("1 + 1\nStringJoin[\"a\", \"b\"]\n"))
	cmd.SetOut(&stdout)
	cmd.SetArgs(normalizeLegacyFlags([]string{"-noprompt", "-run", "Print[7]"}))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := stdout.String(); got != "7\n2\nab\n" {
		t.Fatalf("repl output = %q", got)
	}
}

func TestREPLRunsScriptsAndExits(t *testing.T) {
	script := test.WriteFile(t, filepath.Join(t.TempDir(), "script.m"), "x = 4;\nx^2\n")

	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger(), "session-test")
	var stdout bytes.Buffer
	cmd.SetIn(strings.NewReader("never evaluated\n"))
	cmd.SetOut(&stdout)
	cmd.SetArgs(normalizeLegacyFlags([]string{"-noprompt", "-script", script}))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := stdout.String(); got != "16\n" {
		t.Fatalf("script output = %q", got)
	}
}

func TestREPLRecordsHistoryWhenEnabled(t *testing.T) {
	cfg := &config.Config{
		HistoryEnabled: true,
		HistoryFile:    filepath.Join(t.TempDir(), "history.db"),
	}
	cmd := newRootCommand(context.Background(), cfg, testLogger(), "session-test")
	cmd.SetIn(strings.NewReader("1 + 2\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--noprompt"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	store, err := openHistory(context.Background(), cfg, "session-check")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer closeHistory(store, testLogger())

	entries, err := store.Tail(context.Background(), 1)
	if err != nil {
		t.Fatalf("tail history: %v", err)
	}
	if len(entries) != 1 || entries[0].Input != "1 + 2" || entries[0].Output != "3" {
		t.Fatalf("history entries = %+v", entries)
	}
}

func TestNormalizeLegacyFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "single dash", args: []string{"-noprompt", "-run", "1"}, want: []string{"--noprompt", "--run", "1"}},
		{name: "with value", args: []string{"-initfile=a.m"}, want: []string{"--initfile=a.m"}},
		{name: "double dash kept", args: []string{"--script", "s.m"}, want: []string{"--script", "s.m"}},
		{name: "unknown kept", args: []string{"-h", "kernel", "-x"}, want: []string{"-h", "kernel", "-x"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeLegacyFlags(tc.args); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("normalizeLegacyFlags(%v) = %v, want %v", tc.args, got, tc.want)
			}
		})
	}
}

func TestRedactArgs(t *testing.T) {
	got := redactArgs([]string{"--api-key", "abc", "password=pw", "kernel", "conn.json"})
	want := []string{"--api-key", "<redacted>", "password=<redacted>", "kernel", "conn.json"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("redactArgs = %v, want %v", got, want)
	}
}

func testLogger() *log.Logger {
	return log.NewWithOptions(&bytes.Buffer{}, log.Options{})
}
