package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/monitor"
)

type SendCmd struct {
	flags *Flags

	queue string
	topic string
	props []string
	file  string
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Publish a text message to a queue or topic",
		UsageText: "rabbitwatch send (--queue q | --topic t) [--prop k=v]... [body]",
		Description: `Publishes one text message. The body is taken from the argument, from
--file, or from stdin, in that order.

Properties are sent as string headers. Topic messages are published with an
empty routing key.

Examples:
  rabbitwatch send --queue orders '{"id": 1}'
  rabbitwatch send --topic audit --prop tenant=acme --file event.json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "queue",
				Aliases:     []string{"q"},
				Usage:       "destination queue",
				Destination: &cmd.queue,
			},
			&cli.StringFlag{
				Name:        "topic",
				Aliases:     []string{"t"},
				Usage:       "destination topic",
				Destination: &cmd.topic,
			},
			&cli.StringSliceFlag{
				Name:        "prop",
				Usage:       "message property as key=value (repeatable)",
				Destination: &cmd.props,
			},
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read the body from this file",
				Destination: &cmd.file,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	dest, err := sendDestination(cmd.queue, cmd.topic)
	if err != nil {
		return err
	}
	props, err := parseProps(cmd.props)
	if err != nil {
		return err
	}

	var body string
	switch {
	case c.NArg() >= 1:
		body = c.Args().Get(0)
	case cmd.file != "":
		data, err := os.ReadFile(cmd.file)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		body = string(data)
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		body = string(data)
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
	return rt.coordinator(monitor.NopSink{}).Publish(ctx, dest, body, props)
}

func sendDestination(queue, topic string) (message.Destination, error) {
	switch {
	case queue != "" && topic != "":
		return message.Destination{}, errors.New("use either --queue or --topic, not both")
	case queue != "":
		return message.Destination{Name: queue, Kind: message.Queue}, nil
	case topic != "":
		return message.Destination{Name: topic, Kind: message.Topic}, nil
	default:
		return message.Destination{}, errors.New("--queue or --topic is required")
	}
}

// parseProps turns key=value pairs into a property map. Values may contain
// '=' and may be empty; keys may not.
func parseProps(pairs []string) (map[string]string, error) {
	props := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q: want key=value", p)
		}
		props[k] = v
	}
	return props, nil
}
