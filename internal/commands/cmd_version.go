package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type VersionCmd struct {
	build string
}

// NewVersionCmd creates a new version command
func NewVersionCmd(build string) *VersionCmd {
	return &VersionCmd{build: build}
}

// Register adds the version command to the application
func (cmd *VersionCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(_ context.Context, c *cli.Command) error {
			_, err := fmt.Fprintf(c.Root().Writer, "rabbitwatch %s\n", cmd.build)
			return err
		},
	})

	return app
}
