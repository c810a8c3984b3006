package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/moodlog/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// conn is the subset of *pgx.Conn the store needs; pgxmock implements it too.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Store archives finished capture sessions in PostgreSQL.
type Store struct {
	conn conn
}

// Session describes one run of the capture loop.
type Session struct {
	ID        int64
	Source    string
	Output    string
	StartedAt time.Time
	EndedAt   time.Time
	RowCount  int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	c, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	s, err := newStore(ctx, c)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, c conn) (*Store, error) {
	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Store{conn: c}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, c conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS capture_sessions (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			output TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			row_count INT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS emotion_rows (
			session_id BIGINT REFERENCES capture_sessions(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			emotion TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
	`
	_, err := c.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// ArchiveSession stores the session and all of its rows in one transaction and returns the session ID.
func (s *Store) ArchiveSession(ctx context.Context, sess Session, rows []types.LogRow) (int64, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO capture_sessions (source, output, started_at, ended_at, row_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, sess.Source, sess.Output, sess.StartedAt, sess.EndedAt, len(rows)).Scan(&id)
	if err != nil {
		tx.Rollback(ctx)
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"emotion_rows"},
			[]string{"session_id", "seq", "captured_at", "emotion", "confidence"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				r := rows[i]
				return []any{id, i + 1, r.Time, r.Emotion, r.Confidence}, nil
			}),
		)
		if err != nil {
			tx.Rollback(ctx)
			return 0, fmt.Errorf("failed to copy rows: %w", err)
		}
	}

	return id, tx.Commit(ctx)
}

// ListSessions returns archived sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, source, output, started_at, ended_at, row_count
		FROM capture_sessions
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Source, &sess.Output, &sess.StartedAt, &sess.EndedAt, &sess.RowCount); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionRows returns the rows of one session in acceptance order.
func (s *Store) SessionRows(ctx context.Context, id int64) ([]types.LogRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT captured_at, emotion, confidence
		FROM emotion_rows
		WHERE session_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.LogRow
	for rows.Next() {
		var r types.LogRow
		if err := rows.Scan(&r.Time, &r.Emotion, &r.Confidence); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS emotion_rows CASCADE;
		DROP TABLE IF EXISTS capture_sessions CASCADE;
	`)
	return err
}
