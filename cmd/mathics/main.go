package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mathics/gomathics/internal/config"
	"github.com/mathics/gomathics/internal/logging"
	"github.com/mathics/gomathics/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sessionID := uuid.NewString()
	logger, err := logging.New(ctx, logging.WithLevel(cfg.LogLevel), logging.WithSessionID(sessionID))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	telemetry.ServiceVersion = Version
	shutdown, err := telemetry.Init(ctx,
		telemetry.WithEndpoint(cfg.OTel.Endpoint),
		telemetry.WithServiceName(cfg.OTel.ServiceName),
		telemetry.WithFallbackWriter(os.Stderr),
		telemetry.WithLogger(logger.Logger),
	)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer shutdown()

	cmd := newRootCommand(ctx, cfg, logger.Logger, sessionID)
	cmd.SetArgs(normalizeLegacyFlags(args))
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Logger.With("args", redactArgs(args)).Error("command failed", "error", err)
		return err
	}

	return nil
}

// newRootCommand builds the CLI. Without a subcommand it runs the REPL.
func newRootCommand(ctx context.Context, cfg *config.Config, logger *log.Logger, sessionID string) *cobra.Command {
	root := newREPLCommand(cfg, logger, sessionID)
	root.Use = "mathics"
	root.Short = "Mathics symbolic kernel and REPL"
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.Version = Version

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newKernelCommand(cfg, logger, sessionID),
		newVersionCommand(),
		newBugreportCommand(logger),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "gomathics %s\n", Version)
			return err
		},
	}
}

var legacyFlags = []string{"noinit", "initfile", "run", "noprompt", "script"}

// normalizeLegacyFlags rewrites the single-dash long flags of the classic
// command line (-noprompt, -run cmd) into their double-dash form.
func normalizeLegacyFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		out = append(out, normalizeLegacyFlag(arg))
	}
	return out
}

func normalizeLegacyFlag(arg string) string {
	if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
		return arg
	}
	name, _, _ := strings.Cut(arg[1:], "=")
	for _, flag := range legacyFlags {
		if name == flag {
			return "-" + arg
		}
	}
	return arg
}

// notifyInterrupts calls interrupt for every SIGINT until the returned stop
// function runs.
func notifyInterrupts(logger *log.Logger, interrupt func() bool) func() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-signals:
				aborted := interrupt()
				logger.Info("interrupt received", "aborted", aborted)
			}
		}
	}()
	return func() {
		signal.Stop(signals)
		close(done)
	}
}

func redactArgs(args []string) []string {
	redacted := make([]string, 0, len(args))
	maskNext := false

	for _, arg := range args {
		if maskNext {
			redacted = append(redacted, "<redacted>")
			maskNext = false
			continue
		}

		trimmed := strings.TrimSpace(arg)
		if key, _, ok := strings.Cut(trimmed, "="); ok && isSensitiveToken(strings.ToLower(key)) {
			redacted = append(redacted, key+"=<redacted>")
			continue
		}
		if isSensitiveToken(strings.ToLower(trimmed)) {
			maskNext = true
		}
		redacted = append(redacted, trimmed)
	}

	return redacted
}

func isSensitiveToken(value string) bool {
	sensitiveSubstrings := []string{
		"token",
		"password",
		"passwd",
		"secret",
		"key",
		"auth",
		"bearer",
	}
	for _, candidate := range sensitiveSubstrings {
		if strings.Contains(value, candidate) {
			return true
		}
	}
	return false
}
