package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mathics/gomathics/internal/config"
	"github.com/mathics/gomathics/internal/doctor"
	"github.com/mathics/gomathics/internal/events"
	"github.com/mathics/gomathics/internal/history"
	"github.com/mathics/gomathics/internal/kernel"
	"github.com/mathics/gomathics/internal/repl"
	"github.com/mathics/gomathics/internal/session"
)

func newKernelCommand(cfg *config.Config, logger *log.Logger, sessionID string) *cobra.Command {
	return &cobra.Command{
		Use:   "kernel <connection-file>",
		Short: "Serve a frontend over the ZMQ kernel protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernel(cmd.Context(), cfg, logger, sessionID, args[0])
		},
	}
}

func runKernel(
	ctx context.Context,
	cfg *config.Config,
	logger *log.Logger,
	sessionID string,
	connectionFile string,
	extra ...kernel.Option,
) error {
	conn, err := config.LoadConnection(connectionFile)
	if err != nil {
		return err
	}

	store, err := openHistory(ctx, cfg, sessionID)
	if err != nil {
		return err
	}
	defer closeHistory(store, logger)

	bus := events.New(events.WithLogger(logger))
	defer bus.Close()
	bus.SubscribeAll(func(event events.Event) {
		fields := []any{
			"type", event.Type,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"payload", event.Payload,
		}
		if event.Severity == events.SeverityInfo {
			logger.Debug("kernel event", fields...)
			return
		}
		logger.Warn("kernel event", append(fields, "severity", event.Severity)...)
	})

	opts := []kernel.Option{
		kernel.WithLogger(logger),
		kernel.WithBus(bus),
		kernel.WithVersion(Version),
		kernel.WithSessionOptions(sessionOptions(cfg, logger, store)...),
	}
	if store != nil {
		opts = append(opts, kernel.WithHistory(store))
	}
	k, err := kernel.New(conn, append(opts, extra...)...)
	if err != nil {
		return err
	}

	monitor, err := doctor.NewManager(k, bus, doctor.Config{StuckTimeout: 2 * cfg.EvalTimeout})
	if err != nil {
		return err
	}
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go monitor.Start(monitorCtx)

	stop := notifyInterrupts(logger, k.Interrupt)
	defer stop()
	return k.Run(ctx)
}

type replFlags struct {
	noInit    bool
	initFiles []string
	run       []string
	noPrompt  bool
	scripts   []string
}

func newREPLCommand(cfg *config.Config, logger *log.Logger, sessionID string) *cobra.Command {
	flags := &replFlags{}
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Read, evaluate and print inputs from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var reader repl.LineReader
			if repl.IsTerminal() && len(flags.scripts) == 0 {
				reader = repl.NewTerminalReader(repl.DefaultHistoryPath())
			} else {
				var promptOut io.Writer
				if !flags.noPrompt {
					promptOut = cmd.OutOrStdout()
				}
				reader = repl.NewScanReader(cmd.InOrStdin(), promptOut, cfg.EchoInput)
			}
			defer func() {
				if err := reader.Close(); err != nil {
					logger.Warn("close line reader", "error", err)
				}
			}()
			return runREPL(cmd.Context(), cfg, logger, sessionID, flags, cmd.OutOrStdout(), reader)
		},
	}

	cmd.Flags().BoolVar(&flags.noInit, "noinit", false, "skip the init files")
	cmd.Flags().StringArrayVar(&flags.initFiles, "initfile", nil, "evaluate `file` at startup (repeatable)")
	cmd.Flags().StringArrayVar(&flags.run, "run", nil, "evaluate `command` before the loop (repeatable)")
	cmd.Flags().BoolVar(&flags.noPrompt, "noprompt", false, "print bare results without banner or prompts")
	cmd.Flags().StringArrayVar(&flags.scripts, "script", nil, "evaluate `file` as if typed, then exit (repeatable)")
	return cmd
}

func runREPL(
	ctx context.Context,
	cfg *config.Config,
	logger *log.Logger,
	sessionID string,
	flags *replFlags,
	out io.Writer,
	reader repl.LineReader,
) error {
	store, err := openHistory(ctx, cfg, sessionID)
	if err != nil {
		return err
	}
	defer closeHistory(store, logger)

	r := repl.New(session.New(sessionOptions(cfg, logger, store)...), out, repl.Options{
		NoPrompt:  flags.noPrompt,
		NoInit:    flags.noInit,
		InitFiles: flags.initFiles,
		Run:       flags.run,
		Scripts:   flags.scripts,
		EchoInput: cfg.EchoInput,
		Color:     repl.IsTerminal(),
		Version:   Version,
	}, logger)

	stop := notifyInterrupts(logger, r.Interrupt)
	defer stop()
	return r.Run(ctx, reader)
}

func sessionOptions(cfg *config.Config, logger *log.Logger, store *history.Store) []session.Option {
	opts := []session.Option{
		session.WithTimeout(cfg.EvalTimeout),
		session.WithLimits(cfg.RecursionLimit, cfg.IterationLimit),
		session.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, session.WithRecorder(store))
	}
	return opts
}

func openHistory(ctx context.Context, cfg *config.Config, sessionID string) (*history.Store, error) {
	if !cfg.HistoryEnabled || cfg.HistoryFile == "" {
		return nil, nil
	}
	store, err := history.Open(ctx, cfg.HistoryFile, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func closeHistory(store *history.Store, logger *log.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warn("close history", "error", err)
	}
}
