package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/epalmerini/rabbitwatch/internal/monitor"
)

type BrowseCmd struct {
	flags *Flags

	json bool
}

// NewBrowseCmd creates a new browse command
func NewBrowseCmd(flags *Flags) *BrowseCmd {
	return &BrowseCmd{flags: flags}
}

// Register adds the browse command to the application
func (cmd *BrowseCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "browse",
		Usage:     "Print the messages waiting on one or more queues",
		UsageText: "rabbitwatch browse [--json] <queue> [queue...]",
		Description: `Reads every message currently on each queue without consuming it. Messages
that cannot be read are skipped and reported in the log.`,
		Flags: []cli.Flag{
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

func (cmd *BrowseCmd) run(ctx context.Context, c *cli.Command) error {
	queues := c.Args().Slice()
	if len(queues) == 0 {
		return fmt.Errorf("at least one queue is required")
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

	coord := rt.coordinator(monitor.NopSink{})
	p := messagePrinter{out: c.Root().Writer, json: cmd.json}

	var errs []error
	for _, q := range queues {
		res := coord.Browse(ctx, q)
		for _, m := range res.Messages() {
			if err := p.print(m); err != nil {
				return err
			}
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("browse %s: %w", q, res.Err))
		}
	}
	return errors.Join(errs...)
}
