// Package export writes message snapshots as CSV or JSON files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

// Format selects the export encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("no messages to export")

// Header is the CSV column order.
var Header = []string{"id", "body", "properties", "destination", "type", "message_type", "timestamp"}

// ParseFormat maps a file extension or flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case CSV, JSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// WriteCSV writes one row per message, preceded by Header. Properties are
// encoded as a JSON object.
func WriteCSV(w io.Writer, msgs []message.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, m := range msgs {
		r := m.Record()
		props, err := json.Marshal(r.Properties)
		if err != nil {
			return fmt.Errorf("encoding properties of %s: %w", r.ID, err)
		}
		row := []string{
			r.ID,
			r.Body,
			string(props),
			r.Destination,
			r.Type,
			r.MessageType,
			strconv.FormatInt(r.Timestamp, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the message records as an indented JSON array.
func WriteJSON(w io.Writer, msgs []message.Message) error {
	records := make([]message.Record, len(msgs))
	for i, m := range msgs {
		records[i] = m.Record()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteFile exports msgs into a timestamped file under dir, creating dir if
// needed, and returns the file path.
func WriteFile(msgs []message.Message, dir string, format Format) (string, error) {
	if len(msgs) == 0 {
		return "", ErrEmpty
	}
	write := WriteCSV
	switch format {
	case CSV:
	case JSON:
		write = WriteJSON
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("rabbitwatch-export-%s.%s", time.Now().Format("20060102-150405.000"), format)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := write(f, msgs); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
