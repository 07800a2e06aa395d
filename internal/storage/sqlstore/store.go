// Package sqlstore persists the chat in MySQL/MariaDB or SQLite through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"batepapo/internal/model"
	"batepapo/internal/storage"
)

// Store provides SQL-backed persistence for participants and messages.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ storage.Store = (*Store)(nil)

// Open opens, pings and migrates a database for the dialect.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s dsn is required", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
		db.SetMaxOpenConns(1)
	}

	// 接続テスト
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertParticipant(ctx context.Context, p model.Participant) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO participants (name, last_status) VALUES (?, ?)",
		p.Name, p.LastHeartbeat.UnixNano())
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, name string) (model.Participant, bool, error) {
	var lastStatus int64
	p := model.Participant{}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, last_status FROM participants WHERE name = ?", name).
		Scan(&p.Name, &lastStatus)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Participant{}, false, nil
		}
		return model.Participant{}, false, fmt.Errorf("get participant: %w", err)
	}
	p.LastHeartbeat = fromNanos(lastStatus)
	return p, true, nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, last_status FROM participants ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		var lastStatus int64
		if err := rows.Scan(&p.Name, &lastStatus); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.LastHeartbeat = fromNanos(lastStatus)
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

func (s *Store) TouchParticipant(ctx context.Context, name string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE participants SET last_status = ? WHERE name = ?", at.UnixNano(), name)
	if err != nil {
		return false, fmt.Errorf("touch participant: %w", err)
	}
	return s.affected(ctx, result, name)
}

func (s *Store) DeleteParticipant(ctx context.Context, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM participants WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeleteAllParticipants(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM participants"); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, m model.Message) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, from_name, to_name, text, kind, time) VALUES (?, ?, ?, ?, ?, ?)",
		m.ID.String(), m.From, m.To, m.Text, string(m.Kind), m.Time)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context) ([]model.Message, error) {
	return s.queryMessages(ctx,
		"SELECT id, from_name, to_name, text, kind, time FROM messages ORDER BY seq")
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, from_name, to_name, text, kind, time FROM (
			SELECT seq, id, from_name, to_name, text, kind, time FROM messages ORDER BY seq DESC LIMIT ?
		) recent ORDER BY seq`, limit)
}

func (s *Store) DeleteAllMessages(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		var id, kind string
		if err := rows.Scan(&id, &m.From, &m.To, &m.Text, &kind, &m.Time); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan message id %q: %w", id, err)
		}
		m.Kind = model.Kind(kind)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// affected distinguishes "no such row" from MySQL's "row matched but unchanged".
func (s *Store) affected(ctx context.Context, result sql.Result, name string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	_, ok, err := s.GetParticipant(ctx, name)
	return ok, err
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
