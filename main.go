package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/epalmerini/rabbitwatch/internal/commands"
	"github.com/epalmerini/rabbitwatch/internal/config"
	"github.com/epalmerini/rabbitwatch/internal/xdg"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

// defaultTUILogFile keeps a log of TUI sessions in the XDG state directory.
func defaultTUILogFile() string {
	dir, err := xdg.StateDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rabbitwatch.log")
}

func main() {
	if err := setupLogger("info", "", nil); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := &commands.Flags{}
	var deferredLogs *deferredWriter

	app := &cli.Command{
		Name:      "rabbitwatch",
		Usage:     "Watch RabbitMQ queues and topics",
		UsageText: "rabbitwatch [global options] command [command options]",
		Description: `rabbitwatch keeps a live view of the messages on RabbitMQ queues and topics.
Queues are browsed without consuming their messages; topics are watched
through a private subscription.

Run 'rabbitwatch' with no arguments to open the interactive monitor.`,
		Version: build(),
		Flags:   flags.Global(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// no subcommand means the TUI, which owns the terminal
			isTUI := len(c.Args().Slice()) == 0

			logFile := flags.LogFile
			var deferred io.Writer
			if isTUI {
				deferredLogs = &deferredWriter{}
				deferred = deferredLogs
				if logFile == "" {
					logFile = defaultTUILogFile()
				}
			}

			if err := setupLogger(flags.LogLevel, logFile, deferred); err != nil {
				return ctx, err
			}

			fc, err := config.LoadFileConfig(flags.ConfigDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.File = fc
			return ctx, nil
		},
	}

	tuiCmd := commands.NewTuiCmd(flags)

	app = commands.NewDiscoverCmd(flags).Register(app)
	app = commands.NewBrowseCmd(flags).Register(app)
	app = commands.NewMonitorCmd(flags).Register(app)
	app = commands.NewSendCmd(flags).Register(app)
	app = commands.NewHistoryCmd(flags).Register(app)
	app = commands.NewVersionCmd(build()).Register(app)

	app.Flags = append(app.Flags, tuiCmd.Flags()...)

	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'rabbitwatch --help' for usage", c.Args().First())
		}
		return tuiCmd.Run(ctx, c)
	}

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
	}

	if deferredLogs != nil {
		if err := deferredLogs.Flush(zerolog.ConsoleWriter{Out: os.Stderr}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}

	stop()
	os.Exit(exitCode)
}
