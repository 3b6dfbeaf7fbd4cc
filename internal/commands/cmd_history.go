package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/epalmerini/rabbitwatch/internal/db"
)

type HistoryCmd struct {
	flags *Flags

	run    int
	search string
	limit  int
	offset int
	json   bool
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "Inspect runs archived with monitor --record",
		UsageText: "rabbitwatch history [--run ID | --search QUERY] [--limit N] [--offset N]",
		Description: `Lists archived monitoring runs, newest first. With --run the messages of one
run are listed; with --search the archive is searched with SQLite full-text
query syntax across bodies, destinations and message ids.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "run",
				Usage:       "list the messages of this run",
				Destination: &cmd.run,
			},
			&cli.StringFlag{
				Name:        "search",
				Aliases:     []string{"s"},
				Usage:       "full-text search over archived messages",
				Destination: &cmd.search,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "maximum rows to show",
				Value:       50,
				Destination: &cmd.limit,
			},
			&cli.IntFlag{
				Name:        "offset",
				Usage:       "rows to skip",
				Destination: &cmd.offset,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print messages as JSON records",
				Destination: &cmd.json,
			},
		},
		Action: cmd.runCmd,
	})

	return app
}

func (cmd *HistoryCmd) runCmd(ctx context.Context, c *cli.Command) error {
	cfg, err := cmd.flags.Resolve(cmd.flags.Profile)
	if err != nil {
		return err
	}
	store, err := db.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	return cmd.query(ctx, store, c.Root().Writer)
}

func (cmd *HistoryCmd) query(ctx context.Context, store db.Store, out io.Writer) error {
	limit, offset := int64(cmd.limit), int64(cmd.offset)
	if limit <= 0 {
		limit = 50
	}

	switch {
	case cmd.search != "":
		msgs, err := store.SearchMessages(ctx, cmd.search, limit, offset)
		if err != nil {
			return fmt.Errorf("search archive: %w", err)
		}
		return writeStoredMessages(out, msgs, cmd.json)
	case cmd.run > 0:
		msgs, err := store.ListMessages(ctx, int64(cmd.run), limit, offset)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		return writeStoredMessages(out, msgs, cmd.json)
	default:
		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		return writeRuns(out, runs)
	}
}

func writeRuns(out io.Writer, runs []db.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No archived runs")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBROKER\tSTARTED\tENDED\tQUEUES\tTOPICS")
	for _, r := range runs {
		ended := "running"
		if !r.EndedAt.IsZero() {
			ended = r.EndedAt.Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Broker, r.StartedAt.Format(time.DateTime), ended,
			strings.Join(r.Queues, ","), strings.Join(r.Topics, ","))
	}
	return w.Flush()
}

// archivedRecord is the message record with the archive's run and
// recording time attached.
type archivedRecord struct {
	RunID       int64             `json:"run_id"`
	ID          string            `json:"id"`
	Body        string            `json:"body"`
	Properties  map[string]string `json:"properties"`
	Destination string            `json:"destination"`
	Type        string            `json:"type"`
	MessageType string            `json:"message_type"`
	Timestamp   int64             `json:"timestamp"`
	RecordedAt  int64             `json:"recorded_at"`
}

func writeStoredMessages(out io.Writer, msgs []db.StoredMessage, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, m := range msgs {
			if err := enc.Encode(archivedRecord{
				RunID:       m.RunID,
				ID:          m.MessageID,
				Body:        m.Body,
				Properties:  m.Properties,
				Destination: m.Destination,
				Type:        m.Kind,
				MessageType: m.MessageType,
				Timestamp:   m.Timestamp,
				RecordedAt:  m.RecordedAt.UnixMilli(),
			}); err != nil {
				return err
			}
		}
		return nil
	}

	if len(msgs) == 0 {
		_, err := fmt.Fprintln(out, "No messages")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tDESTINATION\tID\tTYPE\tBODY")
	for _, m := range msgs {
		_, _ = fmt.Fprintf(w, "%d\t%s:%s\t%s\t%s\t%s\n",
			m.RunID, m.Kind, m.Destination, m.MessageID, m.MessageType, oneLine(m.Body, 60))
	}
	return w.Flush()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
