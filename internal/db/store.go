// Package db archives observed messages to SQLite. The archive is write-only
// from the monitor's point of view: nothing is ever restored from it.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/xdg"
)

//go:embed schema.sql
var schemaSQL string

const defaultFile = "rabbitwatch.db"

// Store defines the archive operations.
type Store interface {
	StartRun(ctx context.Context, broker string, queues, topics []string) (int64, error)
	EndRun(ctx context.Context, runID int64) error
	ListRuns(ctx context.Context, limit int64) ([]Run, error)
	InsertMessage(ctx context.Context, msg *MessageRecord) (int64, error)
	ListMessages(ctx context.Context, runID, limit, offset int64) ([]StoredMessage, error)
	SearchMessages(ctx context.Context, query string, limit, offset int64) ([]StoredMessage, error)
	Close() error
}

// Run is one monitoring run. EndedAt is zero while the run is open.
type Run struct {
	ID        int64
	Broker    string
	Queues    []string
	Topics    []string
	StartedAt time.Time
	EndedAt   time.Time
}

// MessageRecord is a message to be inserted.
type MessageRecord struct {
	RunID       int64
	MessageID   string
	Destination string
	Kind        string
	Body        string
	Properties  map[string]string
	MessageType string
	Timestamp   int64
}

// NewMessageRecord converts an observed message.
func NewMessageRecord(m message.Message) *MessageRecord {
	r := m.Record()
	return &MessageRecord{
		MessageID:   r.ID,
		Destination: r.Destination,
		Kind:        r.Type,
		Body:        r.Body,
		Properties:  r.Properties,
		MessageType: r.MessageType,
		Timestamp:   r.Timestamp,
	}
}

// StoredMessage is an archived message.
type StoredMessage struct {
	ID int64
	MessageRecord
	RecordedAt time.Time
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (creating if needed) the archive at path, or at the default
// data directory location when path is empty.
func NewStore(path string) (*SQLiteStore, error) {
	if path == "" {
		dataDir, err := xdg.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		path = filepath.Join(dataDir, defaultFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; keeps PRAGMAs on the one connection that uses them.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to set pragmas: %w", err), db.Close())
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize schema: %w", err), db.Close())
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, broker string, queues, topics []string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (broker, queues, topics, started_at) VALUES (?, ?, ?, ?)`,
		broker, encodeList(queues), encodeList(topics), s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) EndRun(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		s.now().UnixMilli(), runID)
	return err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int64) (_ []Run, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, broker, queues, topics, started_at, ended_at FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var runs []Run
	for rows.Next() {
		var (
			r              Run
			queues, topics string
			started        int64
			ended          sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Broker, &queues, &topics, &started, &ended); err != nil {
			return nil, err
		}
		r.Queues, r.Topics = decodeList(queues), decodeList(topics)
		r.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			r.EndedAt = time.UnixMilli(ended.Int64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertMessage stores msg and returns its row id. A message already archived
// for the same run and destination is ignored and 0 is returned.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *MessageRecord) (int64, error) {
	props, err := json.Marshal(msg.Properties)
	if err != nil {
		return 0, fmt.Errorf("encoding properties: %w", err)
	}
	if msg.Properties == nil {
		props = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO messages
    (run_id, message_id, destination, kind, body, properties, message_type, timestamp, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.RunID, msg.MessageID, msg.Destination, msg.Kind, msg.Body, string(props),
		msg.MessageType, msg.Timestamp, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert message %s: %w", msg.MessageID, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, err
	}
	return res.LastInsertId()
}

const selectMessages = `
SELECT m.id, m.run_id, m.message_id, m.destination, m.kind, m.body, m.properties,
       m.message_type, m.timestamp, m.recorded_at
FROM messages m`

func (s *SQLiteStore) ListMessages(ctx context.Context, runID, limit, offset int64) ([]StoredMessage, error) {
	return s.scanMessages(ctx, selectMessages+`
WHERE m.run_id = ?
ORDER BY m.id ASC
LIMIT ? OFFSET ?`, runID, limit, offset)
}

// SearchMessages runs an FTS5 query over body, destination and message id.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit, offset int64) ([]StoredMessage, error) {
	return s.scanMessages(ctx, selectMessages+`
JOIN messages_fts fts ON m.id = fts.rowid
WHERE messages_fts MATCH ?
ORDER BY m.id DESC
LIMIT ? OFFSET ?`, query, limit, offset)
}

func (s *SQLiteStore) scanMessages(ctx context.Context, query string, args ...any) (_ []StoredMessage, err error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var messages []StoredMessage
	for rows.Next() {
		var (
			m        StoredMessage
			props    string
			recorded int64
		)
		if err := rows.Scan(
			&m.ID, &m.RunID, &m.MessageID, &m.Destination, &m.Kind, &m.Body, &props,
			&m.MessageType, &m.Timestamp, &recorded,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(props), &m.Properties); err != nil {
			return nil, fmt.Errorf("decoding properties of %s: %w", m.MessageID, err)
		}
		m.RecordedAt = time.UnixMilli(recorded)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeList(names []string) string {
	if len(names) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(names)
	return string(data)
}

func decodeList(s string) []string {
	var names []string
	_ = json.Unmarshal([]byte(s), &names)
	return names
}
