package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxDeferredLogs = 500

// deferredWriter holds log events while the TUI owns the terminal and
// replays the most recent ones once it exits.
type deferredWriter struct {
	mu      sync.Mutex
	entries [][]byte
}

func (w *deferredWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, append([]byte(nil), p...))
	if len(w.entries) > maxDeferredLogs {
		w.entries = w.entries[len(w.entries)-maxDeferredLogs:]
	}
	return len(p), nil
}

func (w *deferredWriter) Flush(out io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		if _, err := out.Write(e); err != nil {
			return err
		}
	}
	w.entries = nil
	return nil
}

func setupLogger(level string, logFile string, deferred io.Writer) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		if deferred != nil {
			output = io.MultiWriter(file, deferred)
		} else {
			output = io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr}, file)
		}
	} else if deferred != nil {
		output = deferred
	}

	log.Logger = log.Output(output).Level(parsedLevel)

	return nil
}
