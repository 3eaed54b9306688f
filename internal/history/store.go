// Package history persists evaluated inputs and their outputs in SQLite so
// the kernel can answer history requests and the REPL keeps a record across
// runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mathics/gomathics/internal/session"
)

// DefaultTail is the number of entries returned when a request asks for none.
const DefaultTail = 10

// Entry is one recorded input.
type Entry struct {
	Session  int
	Line     int
	Input    string
	Output   string
	Messages []string
	Aborted  bool
	At       time.Time
}

// Store records results for one session. It implements session.Recorder.
type Store struct {
	db        *sql.DB
	sessionID string
	number    int
}

var _ session.Recorder = (*Store)(nil)

// Open opens (creating if needed) the database at dsn and starts a new
// history session identified by sessionID. Use ":memory:" in tests.
func Open(ctx context.Context, dsn, sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("history session id is required")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, sessionID: sessionID}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	if err := store.startSession(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			number INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			started_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session INTEGER NOT NULL,
			line INTEGER NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			messages TEXT,
			aborted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session) REFERENCES sessions(number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session, line)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *Store) startSession(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)`,
		s.sessionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("start history session: %w", err)
	}
	number, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read history session number: %w", err)
	}
	s.number = int(number)
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SessionNumber is the integer id of the current history session.
func (s *Store) SessionNumber() int { return s.number }

// Record stores one evaluated input.
func (s *Store) Record(ctx context.Context, result session.Result) error {
	messages := make([]string, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, m.String())
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (session, line, input, output, messages, aborted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.number, result.Line, result.Input, result.Text, string(encoded), result.Aborted(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record line %d: %w", result.Line, err)
	}
	return nil
}

// Tail returns the last n entries across all sessions, oldest first.
// n <= 0 means DefaultTail.
func (s *Store) Tail(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = DefaultTail
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session, line, input, output, messages, aborted, created_at
		 FROM entries ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var messages sql.NullString
		if err := rows.Scan(&entry.Session, &entry.Line, &entry.Input, &entry.Output,
			&messages, &entry.Aborted, &entry.At); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if messages.Valid && messages.String != "" {
			if err := json.Unmarshal([]byte(messages.String), &entry.Messages); err != nil {
				return nil, fmt.Errorf("decode messages: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Inputs returns the inputs of the current session in line order. The REPL
// seeds its line editor history from them.
func (s *Store) Inputs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT input FROM entries WHERE session = ? ORDER BY id`, s.number)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	var inputs []string
	for rows.Next() {
		var input string
		if err := rows.Scan(&input); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		inputs = append(inputs, input)
	}
	return inputs, rows.Err()
}
