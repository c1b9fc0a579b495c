package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sqlx.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sqlx.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS mails (
            id TEXT PRIMARY KEY,
            mailbox TEXT NOT NULL,
            subject TEXT NOT NULL,
            text_body TEXT NOT NULL,
            html_body TEXT NOT NULL,
            sender TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_mails_mailbox_created ON mails(mailbox, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_mails_created ON mails(created_at);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Insert stores a mail record, assigning an id when it has none.
func (s *Store) Insert(ctx context.Context, mail Mail) error {
	if mail.ID == "" {
		mail.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO mails
        (id, mailbox, subject, text_body, html_body, sender, created_at)
        VALUES (:id, :mailbox, :subject, :text_body, :html_body, :sender, :created_at);`, mail)
	if err != nil {
		return fmt.Errorf("insert mail: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit records for a mailbox, newest first.
func (s *Store) QueryRecent(ctx context.Context, mailbox string, limit int) ([]Mail, error) {
	if limit <= 0 {
		limit = 50
	}
	var mails []Mail
	err := s.db.SelectContext(ctx, &mails, `SELECT id, mailbox, subject, text_body, html_body, sender, created_at
        FROM mails
        WHERE mailbox = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?;`, mailbox, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent mail: %w", err)
	}
	return mails, nil
}

// DeleteOlderThan removes every record created before cutoff (epoch
// seconds) and returns how many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mails WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old mail: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old mail: %w", err)
	}
	return rows, nil
}
