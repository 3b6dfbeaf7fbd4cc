package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/monitor"
)

type DiscoverCmd struct {
	flags *Flags

	json bool
}

// NewDiscoverCmd creates a new discover command
func NewDiscoverCmd(flags *Flags) *DiscoverCmd {
	return &DiscoverCmd{flags: flags}
}

// Register adds the discover command to the application
func (cmd *DiscoverCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "discover",
		Usage:     "List the queues and topics on the broker",
		UsageText: "rabbitwatch discover [--json]",
		Description: `Lists queues and topics (exchanges) through the management API. When the
API is unavailable, destinations are collected from broker advisories for a
short while instead.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print a JSON object instead of a table",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *DiscoverCmd) run(ctx context.Context, c *cli.Command) error {
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

	queues, topics := rt.discovery(monitor.NopSink{}).Discover(ctx)
	return writeDestinations(c.Root().Writer, queues, topics, cmd.json)
}

func writeDestinations(out io.Writer, queues, topics []string, asJSON bool) error {
	if asJSON {
		if queues == nil {
			queues = []string{}
		}
		if topics == nil {
			topics = []string{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Queues []string `json:"queues"`
			Topics []string `json:"topics"`
		}{queues, topics})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tNAME")
	for _, q := range queues {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", message.Queue, q)
	}
	for _, t := range topics {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", message.Topic, t)
	}
	return w.Flush()
}
