package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/epalmerini/rabbitwatch/internal/db"
	"github.com/epalmerini/rabbitwatch/internal/export"
	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/monitor"
)

const recorderFlushTimeout = 10 * time.Second

type MonitorCmd struct {
	flags *Flags

	queues    []string
	topics    []string
	all       bool
	duration  time.Duration
	exportDir string
	format    string
	record    bool
	json      bool
}

// NewMonitorCmd creates a new monitor command
func NewMonitorCmd(flags *Flags) *MonitorCmd {
	return &MonitorCmd{flags: flags}
}

// Register adds the monitor command to the application
func (cmd *MonitorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "monitor",
		Usage:     "Watch queues and topics without the TUI",
		UsageText: "rabbitwatch monitor [--queue q]... [--topic t]... [--all] [options]",
		Description: `Monitors the given destinations and prints every message the first time it
is seen. Without --queue or --topic every discovered destination is watched.

Runs until interrupted or until --duration elapses. On exit the last snapshot
can be exported (--export-dir) and the run archived (--record).

Examples:
  rabbitwatch monitor --queue orders --topic audit
  rabbitwatch monitor --all --duration 30s --export-dir ./out --format json
  rabbitwatch monitor --queue orders --record`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "queue",
				Aliases:     []string{"q"},
				Usage:       "queue to poll (repeatable)",
				Destination: &cmd.queues,
			},
			&cli.StringSliceFlag{
				Name:        "topic",
				Aliases:     []string{"t"},
				Usage:       "topic to subscribe to (repeatable)",
				Destination: &cmd.topics,
			},
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "monitor every discovered destination",
				Destination: &cmd.all,
			},
			&cli.DurationFlag{
				Name:        "duration",
				Usage:       "stop after this long (0 runs until interrupted)",
				Destination: &cmd.duration,
			},
			&cli.StringFlag{
				Name:        "export-dir",
				Usage:       "write the final snapshot to this directory",
				Destination: &cmd.exportDir,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "export format: csv or json",
				Value:       string(export.CSV),
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "record",
				Usage:       "archive every message in the SQLite database",
				Destination: &cmd.record,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print one JSON record per line",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *MonitorCmd) run(ctx context.Context, c *cli.Command) error {
	format, err := export.ParseFormat(cmd.format)
	if err != nil {
		return err
	}

	cfg, err := cmd.flags.Resolve(cmd.flags.Profile)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	queues, topics := cmd.queues, cmd.topics
	if cmd.all || len(queues)+len(topics) == 0 {
		queues, topics = rt.discovery(monitor.NopSink{}).Discover(ctx)
	}
	if len(queues)+len(topics) == 0 {
		return errors.New("nothing to monitor: no queues or topics given or discovered")
	}

	stream := newStreamSink(messagePrinter{out: c.Root().Writer, json: cmd.json})
	sinks := monitor.MultiSink{stream}

	var rec *db.Recorder
	if cmd.record {
		store, err := db.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()

		rec, err = db.NewRecorder(ctx, store, cfg.Broker.Redacted(), queues, topics, rt.log)
		if err != nil {
			return err
		}
		sinks = append(sinks, rec)
	}

	coord := rt.coordinator(sinks)
	if err := coord.StartAll(ctx, queues, topics); err != nil {
		return fmt.Errorf("start monitoring: %w", err)
	}
	q, t := coord.Monitored()
	rt.log.Info().Strs("queues", q).Strs("topics", t).Msg("monitoring")

	runCtx := ctx
	if cmd.duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.duration)
		defer cancel()
	}
	<-runCtx.Done()

	snapshot := coord.Snapshot()
	coord.Stop()
	rt.log.Info().Int("messages", stream.printed()).Msg("monitoring stopped")
	if n := stream.failed(); n > 0 {
		rt.log.Warn().Int("failed", n).Msg("some messages could not be written to the output")
	}

	var errs []error
	if rec != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), recorderFlushTimeout)
		defer cancel()
		if err := rec.Close(flushCtx); err != nil {
			errs = append(errs, fmt.Errorf("close archive run: %w", err))
		}
	}
	if cmd.exportDir != "" {
		errs = append(errs, exportSnapshot(rt, snapshot, cmd.exportDir, format))
	}
	return errors.Join(errs...)
}

func exportSnapshot(rt *runtime, snapshot []message.Message, dir string, format export.Format) error {
	path, err := export.WriteFile(snapshot, dir, format)
	if errors.Is(err, export.ErrEmpty) {
		rt.log.Warn().Msg("nothing to export")
		return nil
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	rt.log.Info().Str("path", path).Int("messages", len(snapshot)).Msg("exported snapshot")
	return nil
}
