package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/epalmerini/rabbitwatch/internal/config"
	"github.com/epalmerini/rabbitwatch/internal/monitor"
	"github.com/epalmerini/rabbitwatch/internal/tui"
)

const eventBuffer = 256

type TuiCmd struct {
	flags *Flags

	exportDir string
}

// NewTuiCmd creates a new tui command
func NewTuiCmd(flags *Flags) *TuiCmd {
	return &TuiCmd{flags: flags}
}

// Flags returns the TUI-specific flags for registration on the root command
func (cmd *TuiCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "export-dir",
			Usage:       "directory CSV exports are written to",
			Value:       ".",
			Destination: &cmd.exportDir,
		},
	}
}

// Run executes the TUI. Exported for use as default command.
func (cmd *TuiCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

func (cmd *TuiCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg, err := cmd.flags.Resolve(cmd.flags.Profile)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	events := monitor.NewChannelSink(eventBuffer)
	coord := rt.coordinator(events)
	defer coord.Stop()

	connect := func(ctx context.Context, profile string) (string, error) {
		pcfg, err := cmd.flags.Resolve(profile)
		if err != nil {
			return "", err
		}
		coord.Stop()
		if err := rt.manager.Connect(ctx, pcfg.Broker); err != nil {
			return "", err
		}
		return pcfg.Broker.Redacted(), nil
	}

	// Connection flags pick the broker, so there is nothing to choose from.
	var file config.FileConfig
	if cmd.flags.File != nil && !cmd.flags.connectionOverridden() {
		file = *cmd.flags.File
	}

	err = tui.Run(ctx, tui.Deps{
		Engine:    coord,
		Events:    events.Events(),
		Connect:   connect,
		File:      file,
		Profile:   cmd.flags.Profile,
		Config:    cfg,
		ExportDir: cmd.exportDir,
		Log:       rt.log,
	})
	if dropped := events.Dropped(); dropped > 0 {
		rt.log.Debug().Int64("dropped", dropped).Msg("ui fell behind on engine events")
	}
	return err
}
